// Package hacontroller is the home-automation collaborator: service
// calls, entity state reads, and entity search against whatever smart-home
// backend is configured (Home-Assistant-compatible REST API by default).
package hacontroller

import "context"

type Entity struct {
	EntityID string
	Name     string
	Domain   string // e.g. "light", "media_player", "switch"
	State    string
	AreaID   string
}

type CallResult struct {
	Success bool
	Data    map[string]any
}

// Client is the normalized surface over the configured home-automation
// backend. Every method is a suspension point and must observe ctx
// cancellation, mirroring spec.md §5's suspension-point requirement for
// every outbound HTTP call.
type Client interface {
	CallService(ctx context.Context, domain, service, entityID string, data map[string]any) (CallResult, error)
	GetState(ctx context.Context, entityID string) (Entity, error)
	SearchEntities(ctx context.Context, query, domain string) ([]Entity, error)
}
