package hacontroller

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/renfield-project/renfield/internal/reliability"
)

// RESTClient talks to a Home-Assistant-compatible REST API
// (POST /api/services/{domain}/{service}, GET /api/states/{entity_id}).
type RESTClient struct {
	baseURL string
	token   string
	client  *http.Client
	cb      *reliability.CircuitBreaker
}

func NewRESTClient(baseURL, token string) *RESTClient {
	return &RESTClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: 15 * time.Second},
		cb:      reliability.NewCircuitBreaker(5, 30*time.Second),
	}
}

func (c *RESTClient) do(ctx context.Context, method, path string, body any) ([]byte, error) {
	out, err := c.cb.Execute(ctx, func(ctx context.Context) (any, error) {
		return c.doOnce(ctx, method, path, body)
	})
	if err != nil {
		return nil, err
	}
	return out.([]byte), nil
}

func (c *RESTClient) doOnce(ctx context.Context, method, path string, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	res, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, fmt.Errorf("hacontroller %s %s: HTTP %d %s", method, path, res.StatusCode, strings.TrimSpace(string(raw)))
	}
	return raw, nil
}

func (c *RESTClient) CallService(ctx context.Context, domain, service, entityID string, data map[string]any) (CallResult, error) {
	payload := map[string]any{"entity_id": entityID}
	for k, v := range data {
		payload[k] = v
	}
	_, err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/services/%s/%s", domain, service), payload)
	if err != nil {
		return CallResult{Success: false}, err
	}
	return CallResult{Success: true, Data: payload}, nil
}

func (c *RESTClient) GetState(ctx context.Context, entityID string) (Entity, error) {
	raw, err := c.do(ctx, http.MethodGet, "/api/states/"+entityID, nil)
	if err != nil {
		return Entity{}, err
	}
	var parsed struct {
		EntityID   string `json:"entity_id"`
		State      string `json:"state"`
		Attributes struct {
			FriendlyName string `json:"friendly_name"`
		} `json:"attributes"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return Entity{}, err
	}
	domain := entityID
	if i := strings.IndexByte(entityID, '.'); i > 0 {
		domain = entityID[:i]
	}
	return Entity{EntityID: parsed.EntityID, Name: parsed.Attributes.FriendlyName, Domain: domain, State: parsed.State}, nil
}

func (c *RESTClient) SearchEntities(ctx context.Context, query, domain string) ([]Entity, error) {
	raw, err := c.do(ctx, http.MethodGet, "/api/states", nil)
	if err != nil {
		return nil, err
	}
	var all []struct {
		EntityID   string `json:"entity_id"`
		State      string `json:"state"`
		Attributes struct {
			FriendlyName string `json:"friendly_name"`
		} `json:"attributes"`
	}
	if err := json.Unmarshal(raw, &all); err != nil {
		return nil, err
	}

	query = strings.ToLower(query)
	var results []Entity
	for _, e := range all {
		d := e.EntityID
		if i := strings.IndexByte(e.EntityID, '.'); i > 0 {
			d = e.EntityID[:i]
		}
		if domain != "" && d != domain {
			continue
		}
		if query != "" && !strings.Contains(strings.ToLower(e.Attributes.FriendlyName), query) && !strings.Contains(strings.ToLower(e.EntityID), query) {
			continue
		}
		results = append(results, Entity{EntityID: e.EntityID, Name: e.Attributes.FriendlyName, Domain: d, State: e.State})
	}
	return results, nil
}
