package playbook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"responder/core"
)

// Notifier is the notification collaborator consumed by the notify
// action. Implementations live in the notify package.
type Notifier interface {
	Send(ctx context.Context, channel string, incident *core.Incident, message string) error
}

// IncidentStore is the incident persistence collaborator consumed by
// the incident-management actions. Implementations live in storage.
type IncidentStore interface {
	GetIncident(ctx context.Context, id uuid.UUID) (*core.Incident, error)
	SaveIncident(ctx context.Context, incident *core.Incident) error
	UpdateIncident(ctx context.Context, incident *core.Incident) error
}

// Handler executes one kind of action. Parameters arrive with template
// placeholders already substituted. The returned output map is recorded
// in the step result and exposed to later steps as context variables.
type Handler interface {
	Kind() ActionKind
	Execute(ctx context.Context, params map[string]interface{}, ec *ExecutionContext) (map[string]interface{}, error)
}

// Registry maps action kinds to handlers. Built-in handlers are wired
// with their collaborators at construction; additional custom handlers
// can be registered at runtime.
type Registry struct {
	mu       sync.RWMutex
	handlers map[ActionKind]Handler
	logger   *zap.SugaredLogger
}

// NewRegistry creates a registry with the built-in handlers. The notify
// handler is only registered when a notifier is provided, and the
// incident-management handlers when a store is; executing an action
// whose collaborator is absent fails as an unrecognized kind.
func NewRegistry(notifier Notifier, store IncidentStore, httpClient *http.Client, logger *zap.SugaredLogger) *Registry {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	outbound := newOutboundClient(httpClient)

	r := &Registry{
		handlers: make(map[ActionKind]Handler),
		logger:   logger,
	}

	r.Register(&waitHandler{})
	r.Register(&setVariableHandler{})
	r.Register(&webhookHandler{client: outbound})
	r.Register(&httpRequestHandler{client: outbound})
	if notifier != nil {
		r.Register(&notifyHandler{notifier: notifier})
	}
	if store != nil {
		r.Register(&resolveIncidentHandler{store: store})
		r.Register(&severityChangeHandler{store: store, increase: true})
		r.Register(&severityChangeHandler{store: store, increase: false})
	}

	return r
}

// Register adds or replaces the handler for its kind.
func (r *Registry) Register(handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[handler.Kind()] = handler
	r.logger.Debugf("Registered action handler: %s", handler.Kind())
}

// Lookup returns the handler for a kind. An unrecognized kind is a
// Validation error: the executor treats it as a fatal, non-retriable
// step failure.
func (r *Registry) Lookup(kind ActionKind) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	handler, ok := r.handlers[kind]
	if !ok {
		return nil, core.ValidationErrorf("no handler registered for action kind %q", kind)
	}
	return handler, nil
}

// outboundClient wraps the injected HTTP client with a shared rate
// limiter so a retry loop cannot hammer a downstream endpoint.
type outboundClient struct {
	client  *http.Client
	limiter *rate.Limiter
}

func newOutboundClient(client *http.Client) *outboundClient {
	return &outboundClient{
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(10), 20),
	}
}

func (oc *outboundClient) do(req *http.Request) (*http.Response, error) {
	if err := oc.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	return oc.client.Do(req)
}

// ---- wait ----

type waitHandler struct{}

func (*waitHandler) Kind() ActionKind { return ActionWait }

func (*waitHandler) Execute(ctx context.Context, params map[string]interface{}, _ *ExecutionContext) (map[string]interface{}, error) {
	seconds := 5.0
	if raw, ok := params["duration"]; ok {
		parsed, ok := asNumber(raw)
		if !ok {
			return nil, core.ValidationErrorf("wait duration %v is not numeric", raw)
		}
		seconds = parsed
	}
	if seconds < 0 {
		return nil, core.ValidationErrorf("wait duration must not be negative")
	}

	select {
	case <-time.After(time.Duration(seconds * float64(time.Second))):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	return map[string]interface{}{"waited_seconds": seconds}, nil
}

// ---- notify ----

type notifyHandler struct {
	notifier Notifier
}

func (*notifyHandler) Kind() ActionKind { return ActionNotify }

func (h *notifyHandler) Execute(ctx context.Context, params map[string]interface{}, ec *ExecutionContext) (map[string]interface{}, error) {
	channel, ok := stringParam(params, "channel")
	if !ok {
		return nil, core.ValidationErrorf("'channel' parameter required")
	}
	message, ok := stringParam(params, "message")
	if !ok {
		return nil, core.ValidationErrorf("'message' parameter required")
	}

	if err := h.notifier.Send(ctx, channel, ec.Incident(), message); err != nil {
		return nil, fmt.Errorf("notification to %s failed: %w", channel, err)
	}

	return map[string]interface{}{
		"channel":  channel,
		"notified": true,
	}, nil
}

// ---- webhook ----

type webhookHandler struct {
	client *outboundClient
}

func (*webhookHandler) Kind() ActionKind { return ActionWebhook }

func (h *webhookHandler) Execute(ctx context.Context, params map[string]interface{}, _ *ExecutionContext) (map[string]interface{}, error) {
	url, ok := stringParam(params, "url")
	if !ok {
		return nil, core.ValidationErrorf("'url' parameter required")
	}

	payload := params["payload"]
	if payload == nil {
		payload = map[string]interface{}{}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.do(req)
	if err != nil {
		return nil, fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	output := map[string]interface{}{
		"status_code":   resp.StatusCode,
		"response_body": string(respBody),
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return output, fmt.Errorf("webhook returned non-2xx status %d", resp.StatusCode)
	}
	return output, nil
}

// ---- set_variable ----

type setVariableHandler struct{}

func (*setVariableHandler) Kind() ActionKind { return ActionSetVariable }

func (*setVariableHandler) Execute(_ context.Context, params map[string]interface{}, ec *ExecutionContext) (map[string]interface{}, error) {
	name, ok := stringParam(params, "name")
	if !ok {
		return nil, core.ValidationErrorf("'name' parameter required")
	}
	value := params["value"]
	ec.SetVariable(name, value)

	return map[string]interface{}{
		"name":  name,
		"value": value,
	}, nil
}

// ---- http_request ----

type httpRequestHandler struct {
	client *outboundClient
}

func (*httpRequestHandler) Kind() ActionKind { return ActionHTTPRequest }

func (h *httpRequestHandler) Execute(ctx context.Context, params map[string]interface{}, _ *ExecutionContext) (map[string]interface{}, error) {
	url, ok := stringParam(params, "url")
	if !ok {
		return nil, core.ValidationErrorf("'url' parameter required")
	}

	method := http.MethodGet
	if m, ok := stringParam(params, "method"); ok {
		method = strings.ToUpper(m)
	}
	switch method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch:
	default:
		return nil, core.ValidationErrorf("unsupported HTTP method %q", method)
	}

	var bodyReader io.Reader
	if body, ok := params["body"]; ok && body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if bodyReader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if headers, ok := params["headers"].(map[string]interface{}); ok {
		for key, value := range headers {
			if s, ok := value.(string); ok {
				req.Header.Set(key, s)
			}
		}
	}

	resp, err := h.client.do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	output := map[string]interface{}{
		"status_code":   resp.StatusCode,
		"response_body": string(respBody),
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return output, fmt.Errorf("request returned status %d", resp.StatusCode)
	}
	return output, nil
}

// ---- resolve_incident ----

type resolveIncidentHandler struct {
	store IncidentStore
}

func (*resolveIncidentHandler) Kind() ActionKind { return ActionResolveIncident }

func (h *resolveIncidentHandler) Execute(ctx context.Context, params map[string]interface{}, ec *ExecutionContext) (map[string]interface{}, error) {
	notes := "Resolved by playbook"
	if n, ok := stringParam(params, "notes"); ok {
		notes = n
	}
	rootCause, _ := stringParam(params, "root_cause")

	incident := *ec.Incident()
	incident.Resolve("playbook-engine", core.ResolutionAutomated, notes, rootCause)

	if err := h.store.UpdateIncident(ctx, &incident); err != nil {
		return nil, fmt.Errorf("failed to persist resolution: %w", err)
	}

	return map[string]interface{}{
		"incident_resolved": true,
		"incident_id":       incident.ID.String(),
	}, nil
}

// ---- severity_increase / severity_decrease ----

type severityChangeHandler struct {
	store    IncidentStore
	increase bool
}

func (h *severityChangeHandler) Kind() ActionKind {
	if h.increase {
		return ActionSeverityIncrease
	}
	return ActionSeverityDecrease
}

func (h *severityChangeHandler) Execute(ctx context.Context, _ map[string]interface{}, ec *ExecutionContext) (map[string]interface{}, error) {
	incident := *ec.Incident()
	oldSeverity := incident.Severity

	newSeverity := oldSeverity.Decrease()
	if h.increase {
		newSeverity = oldSeverity.Increase()
	}

	if newSeverity != oldSeverity {
		incident.ChangeSeverity(newSeverity, "playbook-engine")
		if err := h.store.UpdateIncident(ctx, &incident); err != nil {
			return nil, fmt.Errorf("failed to persist severity change: %w", err)
		}
	}

	return map[string]interface{}{
		"old_severity": string(oldSeverity),
		"new_severity": string(newSeverity),
		"changed":      newSeverity != oldSeverity,
	}, nil
}

// stringParam extracts a non-empty string parameter.
func stringParam(params map[string]interface{}, key string) (string, bool) {
	value, ok := params[key].(string)
	if !ok || value == "" {
		return "", false
	}
	return value, true
}
