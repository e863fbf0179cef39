package billing

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"medgas-backend/config"
)

type fakeStreamer struct {
	args []*redis.XAddArgs
}

func (f *fakeStreamer) XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd {
	f.args = append(f.args, a)
	cmd := redis.NewStringCmd(ctx)
	cmd.SetVal("1-0")
	return cmd
}

func sampleEvent() SiteCreated {
	return SiteCreated{
		TeamID:         "team-1",
		OrganizationID: "org-1",
		SiteID:         "site-1",
		SiteCount:      3,
		OccurredAt:     time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC),
	}
}

func TestRedisEmitter_SiteCreated(t *testing.T) {
	fake := &fakeStreamer{}
	e := NewStreamEmitter(fake, "billing:site-events")

	require.NoError(t, e.SiteCreated(context.Background(), sampleEvent()))
	require.Len(t, fake.args, 1)

	assert.Equal(t, "billing:site-events", fake.args[0].Stream)
	assert.Equal(t, map[string]interface{}{
		"type":            "site.created",
		"team_id":         "team-1",
		"organization_id": "org-1",
		"site_id":         "site-1",
		"site_count":      "3",
		"occurred_at":     "2024-05-01T08:00:00Z",
	}, fake.args[0].Values)
}

func TestWebhookEmitter_SiteCreated(t *testing.T) {
	t.Run("posts the event", func(t *testing.T) {
		var got webhookBody
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			body, _ := io.ReadAll(r.Body)
			assert.NoError(t, json.Unmarshal(body, &got))
			w.WriteHeader(http.StatusAccepted)
		}))
		defer srv.Close()

		e := NewWebhookEmitter(srv.URL, time.Second, zap.NewNop())
		require.NoError(t, e.SiteCreated(context.Background(), sampleEvent()))
		assert.Equal(t, "site.created", got.Type)
		assert.Equal(t, "site-1", got.Data.SiteID)
		assert.Equal(t, int64(3), got.Data.SiteCount)
	})

	t.Run("client error is returned", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
		}))
		defer srv.Close()

		e := NewWebhookEmitter(srv.URL, time.Second, zap.NewNop())
		err := e.SiteCreated(context.Background(), sampleEvent())
		assert.ErrorContains(t, err, "400")
	})
}

func TestOpen(t *testing.T) {
	e, err := Open(config.BillingConfig{Driver: "none"}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, Noop{}, e)

	e, err = Open(config.BillingConfig{Driver: "webhook", Webhook: config.WebhookConfig{URL: "http://billing.local/events", TimeoutSeconds: 1}}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &WebhookEmitter{}, e)

	_, err = Open(config.BillingConfig{Driver: "kafka"}, zap.NewNop())
	assert.Error(t, err)
}
