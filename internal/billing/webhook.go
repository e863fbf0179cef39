package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// WebhookEmitter posts events as JSON to an HTTP endpoint.
type WebhookEmitter struct {
	client *resty.Client
	url    string
	log    *zap.Logger
}

// NewWebhookEmitter builds a client with bounded retries.
func NewWebhookEmitter(url string, timeout time.Duration, log *zap.Logger) *WebhookEmitter {
	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(200*time.Millisecond).
		SetRetryMaxWaitTime(2*time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	return &WebhookEmitter{client: client, url: url, log: log}
}

type webhookBody struct {
	Type string      `json:"type"`
	Data SiteCreated `json:"data"`
}

func (e *WebhookEmitter) SiteCreated(ctx context.Context, ev SiteCreated) error {
	resp, err := e.client.R().
		SetContext(ctx).
		SetBody(webhookBody{Type: EventSiteCreated, Data: ev}).
		Post(e.url)
	if err != nil {
		return fmt.Errorf("post billing webhook: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("billing webhook returned %d", resp.StatusCode())
	}
	e.log.Debug("billing event delivered",
		zap.String("type", EventSiteCreated),
		zap.String("team_id", ev.TeamID),
		zap.Int("status", resp.StatusCode()),
	)
	return nil
}
