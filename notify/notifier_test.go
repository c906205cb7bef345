package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"responder/core"
)

func notifyIncident() *core.Incident {
	return core.NewIncident("prometheus", "API latency spike", "", core.SeverityP1, core.IncidentTypeAvailability)
}

func TestRouterUnknownChannel(t *testing.T) {
	router := NewRouter(zap.NewNop().Sugar())
	err := router.Send(context.Background(), "nope", notifyIncident(), "hello")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestRouterWebhookDelivery(t *testing.T) {
	var payload map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
	}))
	defer server.Close()

	router := NewRouter(zap.NewNop().Sugar())
	router.AddChannel(NewWebhookSender("oncall", server.URL, server.Client()))

	incident := notifyIncident()
	require.NoError(t, router.Send(context.Background(), "oncall", incident, "latency above SLO"))

	assert.Equal(t, incident.ID.String(), payload["incident_id"])
	assert.Equal(t, "P1", payload["severity"])
	assert.Equal(t, "latency above SLO", payload["message"])
}

func TestRouterSlackDelivery(t *testing.T) {
	var payload map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
	}))
	defer server.Close()

	router := NewRouter(zap.NewNop().Sugar())
	router.AddChannel(NewSlackSender("slack-incidents", server.URL, server.Client()))

	require.NoError(t, router.Send(context.Background(), "slack-incidents", notifyIncident(), "paging"))

	assert.Equal(t, "paging", payload["text"])
	attachments, ok := payload["attachments"].([]interface{})
	require.True(t, ok)
	require.Len(t, attachments, 1)
	assert.Equal(t, "danger", attachments[0].(map[string]interface{})["color"])
}

func TestRouterBreakerOpensAfterRepeatedFailures(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	router := NewRouter(zap.NewNop().Sugar())
	router.AddChannel(NewWebhookSender("flaky", server.URL, server.Client()))

	ctx := context.Background()
	incident := notifyIncident()
	for i := 0; i < 3; i++ {
		assert.Error(t, router.Send(ctx, "flaky", incident, "attempt"))
	}

	// Breaker is open: the endpoint is no longer called.
	err := router.Send(ctx, "flaky", incident, "rejected")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrBreakerOpen)
	assert.Equal(t, int32(3), calls.Load())
}

func TestRouterChannels(t *testing.T) {
	router := NewRouter(zap.NewNop().Sugar())
	router.AddChannel(NewWebhookSender("a", "http://localhost/a", nil))
	router.AddChannel(NewSlackSender("b", "http://localhost/b", nil))
	assert.ElementsMatch(t, []string{"a", "b"}, router.Channels())
}

func TestMockNotifierRecordsAndFails(t *testing.T) {
	mock := &MockNotifier{}
	incident := notifyIncident()

	require.NoError(t, mock.Send(context.Background(), "oncall", incident, "msg"))
	require.Len(t, mock.Messages(), 1)

	mock.Err = assert.AnError
	assert.Error(t, mock.Send(context.Background(), "oncall", incident, "msg"))
	assert.Len(t, mock.Messages(), 1)
}
