// Package billing emits site lifecycle events to the external subscription system.
package billing

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"medgas-backend/config"
)

// EventSiteCreated is the only event type the service emits.
const EventSiteCreated = "site.created"

// SiteCreated asks billing to resync the subscription quantity of a team.
type SiteCreated struct {
	TeamID         string    `json:"teamId"`
	OrganizationID string    `json:"organizationId"`
	SiteID         string    `json:"siteId"`
	SiteCount      int64     `json:"siteCount"`
	OccurredAt     time.Time `json:"occurredAt"`
}

// fields flattens the event for transports that carry string maps.
func (e SiteCreated) fields() map[string]interface{} {
	return map[string]interface{}{
		"type":            EventSiteCreated,
		"team_id":         e.TeamID,
		"organization_id": e.OrganizationID,
		"site_id":         e.SiteID,
		"site_count":      strconv.FormatInt(e.SiteCount, 10),
		"occurred_at":     e.OccurredAt.UTC().Format(time.RFC3339),
	}
}

// Emitter delivers billing events.
type Emitter interface {
	SiteCreated(ctx context.Context, ev SiteCreated) error
}

// Noop drops every event.
type Noop struct{}

func (Noop) SiteCreated(context.Context, SiteCreated) error { return nil }

// Open builds the emitter selected by cfg.Driver.
func Open(cfg config.BillingConfig, log *zap.Logger) (Emitter, error) {
	switch cfg.Driver {
	case "", "none":
		return Noop{}, nil
	case "redis":
		return NewRedisEmitter(cfg.Redis), nil
	case "webhook":
		timeout := time.Duration(cfg.Webhook.TimeoutSeconds) * time.Second
		return NewWebhookEmitter(cfg.Webhook.URL, timeout, log), nil
	default:
		return nil, fmt.Errorf("unknown billing driver %q", cfg.Driver)
	}
}
