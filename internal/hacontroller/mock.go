package hacontroller

import (
	"context"
	"strings"
)

// MockClient is an in-memory fixture, useful for tests and for running
// without a real home-automation backend configured.
type MockClient struct {
	Entities []Entity
}

func NewMockClient(entities []Entity) *MockClient { return &MockClient{Entities: entities} }

func (c *MockClient) CallService(_ context.Context, domain, service, entityID string, data map[string]any) (CallResult, error) {
	for i, e := range c.Entities {
		if e.EntityID != entityID {
			continue
		}
		if service == "turn_on" {
			c.Entities[i].State = "on"
		} else if service == "turn_off" {
			c.Entities[i].State = "off"
		} else {
			c.Entities[i].State = service
		}
		return CallResult{Success: true, Data: data}, nil
	}
	return CallResult{Success: false}, nil
}

func (c *MockClient) GetState(_ context.Context, entityID string) (Entity, error) {
	for _, e := range c.Entities {
		if e.EntityID == entityID {
			return e, nil
		}
	}
	return Entity{}, nil
}

func (c *MockClient) SearchEntities(_ context.Context, query, domain string) ([]Entity, error) {
	query = strings.ToLower(query)
	var results []Entity
	for _, e := range c.Entities {
		if domain != "" && e.Domain != domain {
			continue
		}
		if query != "" && !strings.Contains(strings.ToLower(e.Name), query) && !strings.Contains(strings.ToLower(e.EntityID), query) {
			continue
		}
		results = append(results, e)
	}
	return results, nil
}
