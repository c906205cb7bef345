package playbook

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"responder/core"
)

// fakeStore is a minimal in-memory Store/ExecutionStore for service tests.
type fakeStore struct {
	playbooks  map[uuid.UUID]*Playbook
	executions map[uuid.UUID]*Execution
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		playbooks:  make(map[uuid.UUID]*Playbook),
		executions: make(map[uuid.UUID]*Execution),
	}
}

func (f *fakeStore) SavePlaybook(_ context.Context, pb *Playbook) error {
	f.playbooks[pb.ID] = pb
	return nil
}

func (f *fakeStore) GetPlaybook(_ context.Context, id uuid.UUID) (*Playbook, error) {
	pb, ok := f.playbooks[id]
	if !ok {
		return nil, core.NotFoundErrorf("playbook %s", id)
	}
	return pb, nil
}

func (f *fakeStore) ListPlaybooks(_ context.Context) ([]*Playbook, error) {
	out := make([]*Playbook, 0, len(f.playbooks))
	for _, pb := range f.playbooks {
		out = append(out, pb)
	}
	return out, nil
}

func (f *fakeStore) UpdatePlaybook(_ context.Context, pb *Playbook) error {
	if _, ok := f.playbooks[pb.ID]; !ok {
		return core.NotFoundErrorf("playbook %s", pb.ID)
	}
	f.playbooks[pb.ID] = pb
	return nil
}

func (f *fakeStore) DeletePlaybook(_ context.Context, id uuid.UUID) error {
	if _, ok := f.playbooks[id]; !ok {
		return core.NotFoundErrorf("playbook %s", id)
	}
	delete(f.playbooks, id)
	return nil
}

func (f *fakeStore) SaveExecution(_ context.Context, exec *Execution) error {
	f.executions[exec.ID] = exec
	return nil
}

func (f *fakeStore) GetExecution(_ context.Context, id uuid.UUID) (*Execution, error) {
	exec, ok := f.executions[id]
	if !ok {
		return nil, core.NotFoundErrorf("execution %s", id)
	}
	return exec, nil
}

func (f *fakeStore) ListExecutions(_ context.Context) ([]*Execution, error) {
	out := make([]*Execution, 0, len(f.executions))
	for _, exec := range f.executions {
		out = append(out, exec)
	}
	return out, nil
}

func (f *fakeStore) ListExecutionsForIncident(_ context.Context, incidentID uuid.UUID) ([]*Execution, error) {
	var out []*Execution
	for _, exec := range f.executions {
		if exec.IncidentID == incidentID {
			out = append(out, exec)
		}
	}
	return out, nil
}

func testService(t *testing.T, autoExecute bool) (*Service, *fakeStore) {
	t.Helper()
	store := newFakeStore()
	registry := NewRegistry(nil, nil, nil, zap.NewNop().Sugar())
	registry.Register(&scriptedHandler{kind: "noop", fn: func(_ int, _ map[string]interface{}, _ *ExecutionContext) (map[string]interface{}, error) {
		return nil, nil
	}})
	executor := NewExecutor(registry, nil, zap.NewNop().Sugar())
	svc := NewService(store, store, executor, autoExecute, zap.NewNop().Sugar())
	return svc, store
}

func noopPlaybook(name string) *Playbook {
	pb := enabledPlaybook(name)
	pb.Steps = []Step{
		{ID: "only", Actions: []Action{{Kind: "noop"}}},
	}
	return pb
}

func TestServiceRegisterAssignsIDAndTimestamps(t *testing.T) {
	svc, _ := testService(t, false)

	pb := noopPlaybook("assign-id")
	pb.ID = uuid.Nil
	require.NoError(t, svc.Register(context.Background(), pb))

	assert.NotEqual(t, uuid.Nil, pb.ID)
	assert.False(t, pb.CreatedAt.IsZero())
	assert.Equal(t, pb.CreatedAt, pb.UpdatedAt)
}

func TestServiceRegisterRejectsInvalid(t *testing.T) {
	svc, _ := testService(t, false)
	ctx := context.Background()

	missingOwner := noopPlaybook("invalid")
	missingOwner.Owner = ""
	err := svc.Register(ctx, missingOwner)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrValidation)

	noActions := enabledPlaybook("no-actions")
	noActions.Steps = []Step{{ID: "empty"}}
	assert.Error(t, svc.Register(ctx, noActions))

	dupSteps := noopPlaybook("dup-steps")
	dupSteps.Steps = append(dupSteps.Steps, dupSteps.Steps[0])
	err = svc.Register(ctx, dupSteps)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate step id")

	badCondition := noopPlaybook("bad-condition")
	badCondition.Steps[0].Condition = "$ == 1"
	assert.Error(t, svc.Register(ctx, badCondition))

	badTimeout := noopPlaybook("bad-timeout")
	badTimeout.Steps[0].Timeout = "10x"
	assert.Error(t, svc.Register(ctx, badTimeout))
}

func TestServiceUpdatePreservesCreatedAt(t *testing.T) {
	svc, _ := testService(t, false)
	ctx := context.Background()

	pb := noopPlaybook("update-me")
	require.NoError(t, svc.Register(ctx, pb))
	created := pb.CreatedAt

	pb.Description = "now with a description"
	require.NoError(t, svc.Update(ctx, pb))
	assert.Equal(t, created, pb.CreatedAt)
	assert.True(t, pb.UpdatedAt.After(created) || pb.UpdatedAt.Equal(created))
}

func TestServiceGetUnknownIsNotFound(t *testing.T) {
	svc, _ := testService(t, false)
	_, err := svc.Get(context.Background(), uuid.New())
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestServiceFindMatching(t *testing.T) {
	svc, _ := testService(t, false)
	ctx := context.Background()

	p1Only := noopPlaybook("p1-only")
	p1Only.Triggers.Severities = []core.Severity{core.SeverityP1}
	require.NoError(t, svc.Register(ctx, p1Only))

	securityOnly := noopPlaybook("security-only")
	securityOnly.Triggers.Types = []core.IncidentType{core.IncidentTypeSecurity}
	require.NoError(t, svc.Register(ctx, securityOnly))

	disabled := noopPlaybook("disabled")
	disabled.Enabled = false
	require.NoError(t, svc.Register(ctx, disabled))

	matched, err := svc.FindMatching(ctx, testIncident()) // P1 availability
	require.NoError(t, err)
	require.Len(t, matched, 1)
	assert.Equal(t, "p1-only", matched[0].Name)
}

func TestServiceExecutePlaybook(t *testing.T) {
	svc, store := testService(t, false)
	ctx := context.Background()

	pb := noopPlaybook("run-me")
	require.NoError(t, svc.Register(ctx, pb))

	incident := testIncident()
	exec, err := svc.ExecutePlaybook(ctx, pb.ID, incident)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, exec.Status)

	// Trace persisted.
	saved, err := svc.GetExecution(ctx, exec.ID)
	require.NoError(t, err)
	assert.Equal(t, exec.ID, saved.ID)
	assert.Len(t, store.executions, 1)
}

func TestServiceExecuteDisabledPlaybook(t *testing.T) {
	svc, _ := testService(t, false)
	ctx := context.Background()

	pb := noopPlaybook("disabled")
	pb.Enabled = false
	require.NoError(t, svc.Register(ctx, pb))

	_, err := svc.ExecutePlaybook(ctx, pb.ID, testIncident())
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestServiceExecuteUnknownPlaybook(t *testing.T) {
	svc, _ := testService(t, false)
	_, err := svc.ExecutePlaybook(context.Background(), uuid.New(), testIncident())
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestServiceAutoExecuteDisabled(t *testing.T) {
	svc, _ := testService(t, false)
	ctx := context.Background()
	require.NoError(t, svc.Register(ctx, noopPlaybook("would-match")))

	execs, err := svc.AutoExecuteForIncident(ctx, testIncident())
	require.NoError(t, err)
	assert.Empty(t, execs)
}

func TestServiceAutoExecuteRunsAllMatches(t *testing.T) {
	svc, _ := testService(t, true)
	ctx := context.Background()

	require.NoError(t, svc.Register(ctx, noopPlaybook("first")))
	require.NoError(t, svc.Register(ctx, noopPlaybook("second")))

	nonMatching := noopPlaybook("other-source")
	nonMatching.Triggers.Sources = []string{"pagerduty"}
	require.NoError(t, svc.Register(ctx, nonMatching))

	incident := testIncident()
	execs, err := svc.AutoExecuteForIncident(ctx, incident)
	require.NoError(t, err)
	assert.Len(t, execs, 2)

	history, err := svc.ListExecutionsForIncident(ctx, incident.ID)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestServiceStats(t *testing.T) {
	svc, _ := testService(t, true)
	ctx := context.Background()

	enabled := noopPlaybook("enabled")
	require.NoError(t, svc.Register(ctx, enabled))

	disabled := noopPlaybook("disabled")
	disabled.Enabled = false
	require.NoError(t, svc.Register(ctx, disabled))

	_, err := svc.ExecutePlaybook(ctx, enabled.ID, testIncident())
	require.NoError(t, err)

	stats, err := svc.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalPlaybooks)
	assert.Equal(t, 1, stats.EnabledPlaybooks)
	assert.Equal(t, 1, stats.TotalExecutions)
	assert.Equal(t, 1, stats.SuccessfulExecutions)
	assert.Equal(t, 0, stats.FailedExecutions)
	assert.True(t, stats.AutoExecuteEnabled)
}

func TestServiceDelete(t *testing.T) {
	svc, _ := testService(t, false)
	ctx := context.Background()

	pb := noopPlaybook("delete-me")
	require.NoError(t, svc.Register(ctx, pb))
	require.NoError(t, svc.Delete(ctx, pb.ID))

	_, err := svc.Get(ctx, pb.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)
}
