package history

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Flowstack/internal/apperr"
	"github.com/shaiso/Flowstack/internal/channel"
	"github.com/shaiso/Flowstack/internal/domain"
	"github.com/shaiso/Flowstack/internal/engine"
	"github.com/shaiso/Flowstack/internal/fields"
	"github.com/shaiso/Flowstack/internal/node"
	"github.com/shaiso/Flowstack/internal/repo"
	"github.com/shaiso/Flowstack/internal/telemetry"
)

// Test helpers

type fakeNode struct {
	meta   node.Meta
	result *node.Result
}

func (n *fakeNode) Meta() node.Meta { return n.meta }

func (n *fakeNode) Execute(context.Context, *node.Context) (*node.Result, error) {
	return n.result, nil
}

func testFields() *fields.Registry {
	r := fields.NewRegistry()
	r.MustRegister(
		fields.Definition{Key: "SOURCE", Kind: fields.KindString},
		fields.Definition{Key: "TARGET", Kind: fields.KindString},
		fields.Definition{Key: "BYTES", Kind: fields.KindNumber},
	)
	return r
}

func testNodes() *node.Registry {
	r := node.NewRegistry()
	r.Register(
		&fakeNode{
			meta:   node.Meta{Name: "copy", Inputs: []string{"SOURCE"}, Outputs: []string{"BYTES"}},
			result: node.Success(map[string]any{"BYTES": 42}),
		},
		&fakeNode{
			meta:   node.Meta{Name: "upload", Inputs: []string{"BYTES", "TARGET"}},
			result: node.Success(nil),
		},
		&fakeNode{
			meta:   node.Meta{Name: "broken", Inputs: []string{"TARGET"}},
			result: node.Failed("disk full"),
		},
	)
	return r
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []string
	err    error
}

func (n *recordingNotifier) Notify(_ context.Context, ev channel.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev.String())
	return n.err
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.events)
}

type pipeline struct {
	ch        *channel.Channel
	store     *repo.MemoryStore
	engine    *engine.Engine
	persister *Persister
	notifier  *recordingNotifier
}

func newPipeline(t *testing.T) *pipeline {
	t.Helper()
	logger := telemetry.Discard()
	nodes := testNodes()

	p := &pipeline{
		ch:       channel.New(channel.Config{Capacity: 100, SendWait: 10 * time.Millisecond, Logger: logger}),
		store:    repo.NewMemoryStore(),
		notifier: &recordingNotifier{},
	}
	p.engine = engine.New(engine.Config{Nodes: nodes, Fields: testFields(), Emitter: p.ch, Logger: logger})
	p.persister = New(Config{Source: p.ch, Store: p.store, Nodes: nodes, Notifier: p.notifier, Logger: logger})
	return p
}

func (p *pipeline) run(t *testing.T, flowID int64, def *domain.FlowDefinition) *engine.Handle {
	t.Helper()
	h, err := p.engine.Execute(context.Background(), flowID, def)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = h.Wait(ctx)
	return h
}

func backupFlow(second string) *domain.FlowDefinition {
	return &domain.FlowDefinition{
		Name: "backup",
		Nodes: []domain.FlowNode{
			{
				NodeID:      "A",
				Name:        "copy",
				InputParams: map[string]domain.ParamValue{"SOURCE": domain.Manual("/data")},
				NextNodeIDs: []string{"B"},
			},
			{
				NodeID:      "B",
				Name:        second,
				InputParams: map[string]domain.ParamValue{"TARGET": domain.Manual("s3://bucket"), "BYTES": domain.FromNodeOutput()},
			},
		},
	}
}

// Persister Tests

func TestPersister_SuccessfulExecution(t *testing.T) {
	p := newPipeline(t)
	p.persister.Start(context.Background())
	defer p.persister.Stop()

	h := p.run(t, 5, backupFlow("upload"))
	ctx := context.Background()

	require.Eventually(t, func() bool { return p.notifier.count() == 6 }, 2*time.Second, 5*time.Millisecond)

	exec, err := p.store.GetFlowExecution(ctx, h.ExecutionID())
	require.NoError(t, err)
	assert.Equal(t, domain.ExecStatusSuccess, exec.Status)
	assert.Equal(t, int64(5), exec.FlowID)
	require.NotNil(t, exec.FinishedAt)
	assert.Equal(t, float64(42), exec.Context["BYTES"])
	assert.Empty(t, exec.Error)

	nodes, err := p.store.ListNodeExecutions(ctx, exec.ID)
	require.NoError(t, err)
	require.Len(t, nodes, 2)

	a, b := nodes[0], nodes[1]
	assert.Equal(t, "A", a.NodeID)
	assert.Equal(t, domain.ExecStatusSuccess, a.Status)
	// снимки ограничены объявленными ключами
	assert.Equal(t, map[string]any{"SOURCE": "/data"}, a.Input)
	assert.Equal(t, map[string]any{"BYTES": float64(42)}, a.Output)

	assert.Equal(t, "B", b.NodeID)
	assert.Equal(t, map[string]any{"BYTES": float64(42), "TARGET": "s3://bucket"}, b.Input)
	assert.Empty(t, b.Output)
	assert.Equal(t, exec.ID, b.FlowExecutionID)
}

func TestPersister_FailedExecution(t *testing.T) {
	p := newPipeline(t)
	p.persister.Start(context.Background())
	defer p.persister.Stop()

	h := p.run(t, 5, backupFlow("broken"))
	ctx := context.Background()

	require.Eventually(t, func() bool { return p.notifier.count() == 6 }, 2*time.Second, 5*time.Millisecond)

	exec, err := p.store.GetFlowExecution(ctx, h.ExecutionID())
	require.NoError(t, err)
	assert.Equal(t, domain.ExecStatusFailed, exec.Status)
	assert.Equal(t, "disk full", exec.Error)

	nodes, err := p.store.ListNodeExecutions(ctx, exec.ID)
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	assert.Equal(t, domain.ExecStatusSuccess, nodes[0].Status)
	assert.Equal(t, domain.ExecStatusFailed, nodes[1].Status)
	assert.Equal(t, "disk full", nodes[1].Log)
}

func TestPersister_TerminalWithoutRunningIsIsolated(t *testing.T) {
	p := newPipeline(t)

	orphan := channel.Event{
		Kind:            channel.KindFlow,
		FlowID:          1,
		FlowExecutionID: uuid.New(),
		Status:          domain.ExecStatusSuccess,
		At:              time.Now(),
	}
	err := p.persister.Handle(context.Background(), orphan)
	require.Error(t, err)
	assert.True(t, apperr.IsBusiness(err))
	assert.ErrorIs(t, err, repo.ErrNotFound)

	// в цикле ошибка не останавливает обработку следующих событий
	p.persister.Start(context.Background())
	defer p.persister.Stop()

	require.True(t, p.ch.Send(orphan))
	h := p.run(t, 1, backupFlow("upload"))

	require.Eventually(t, func() bool {
		exec, err := p.store.GetFlowExecution(context.Background(), h.ExecutionID())
		return err == nil && exec.Status == domain.ExecStatusSuccess
	}, 2*time.Second, 5*time.Millisecond)
}

func TestPersister_DuplicateRunningEvent(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()

	running := channel.Event{
		Kind:            channel.KindFlow,
		FlowID:          1,
		FlowExecutionID: uuid.New(),
		Status:          domain.ExecStatusRunning,
		At:              time.Now(),
	}
	require.NoError(t, p.persister.Handle(ctx, running))

	err := p.persister.Handle(ctx, running)
	assert.ErrorIs(t, err, repo.ErrAlreadyExists)

	execs, err := p.store.ListFlowExecutions(ctx, 1, 0)
	require.NoError(t, err)
	assert.Len(t, execs, 1)
}

func TestPersister_TerminalTwiceRejected(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()
	id := uuid.New()

	require.NoError(t, p.persister.Handle(ctx, channel.Event{Kind: channel.KindFlow, FlowID: 1, FlowExecutionID: id, Status: domain.ExecStatusRunning, At: time.Now()}))
	require.NoError(t, p.persister.Handle(ctx, channel.Event{Kind: channel.KindFlow, FlowID: 1, FlowExecutionID: id, Status: domain.ExecStatusSuccess, At: time.Now()}))

	err := p.persister.Handle(ctx, channel.Event{Kind: channel.KindFlow, FlowID: 1, FlowExecutionID: id, Status: domain.ExecStatusFailed, At: time.Now()})
	assert.ErrorIs(t, err, ErrAlreadyFinished)

	exec, err := p.store.GetFlowExecution(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.ExecStatusSuccess, exec.Status)
}

func TestPersister_UnknownEvent(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()

	err := p.persister.Handle(ctx, channel.Event{Kind: channel.KindFlow, Status: domain.ExecStatusPending})
	assert.ErrorIs(t, err, ErrUnknownEvent)

	err = p.persister.Handle(ctx, channel.Event{Kind: channel.KindNode, Status: domain.ExecStatusRunning})
	assert.ErrorIs(t, err, ErrUnknownEvent)
}

type panickingStore struct {
	*repo.MemoryStore
	once sync.Once
}

func (s *panickingStore) CreateFlowExecution(ctx context.Context, exec *domain.FlowExecution) error {
	panicked := false
	s.once.Do(func() { panicked = true })
	if panicked {
		panic("driver bug")
	}
	return s.MemoryStore.CreateFlowExecution(ctx, exec)
}

func TestPersister_PanicIsIsolated(t *testing.T) {
	p := newPipeline(t)
	store := &panickingStore{MemoryStore: p.store}
	p.persister = New(Config{Source: p.ch, Store: store, Nodes: testNodes(), Logger: telemetry.Discard()})

	p.persister.Start(context.Background())
	defer p.persister.Stop()

	first := uuid.New()
	second := uuid.New()
	require.True(t, p.ch.Send(channel.Event{Kind: channel.KindFlow, FlowID: 1, FlowExecutionID: first, Status: domain.ExecStatusRunning, At: time.Now()}))
	require.True(t, p.ch.Send(channel.Event{Kind: channel.KindFlow, FlowID: 1, FlowExecutionID: second, Status: domain.ExecStatusRunning, At: time.Now()}))

	require.Eventually(t, func() bool {
		_, err := p.store.GetFlowExecution(context.Background(), second)
		return err == nil
	}, 2*time.Second, 5*time.Millisecond)

	_, err := p.store.GetFlowExecution(context.Background(), first)
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestPersister_NotifierErrorsAreIgnored(t *testing.T) {
	p := newPipeline(t)
	p.notifier.err = errors.New("broker down")
	p.persister.Start(context.Background())
	defer p.persister.Stop()

	h := p.run(t, 1, backupFlow("upload"))

	require.Eventually(t, func() bool {
		exec, err := p.store.GetFlowExecution(context.Background(), h.ExecutionID())
		return err == nil && exec.Status == domain.ExecStatusSuccess
	}, 2*time.Second, 5*time.Millisecond)
}

func TestPersister_StopDrainsQueue(t *testing.T) {
	p := newPipeline(t)

	// события отправлены до запуска persister
	h := p.run(t, 1, backupFlow("upload"))
	require.Equal(t, 6, p.ch.Len())

	p.persister.Start(context.Background())
	p.persister.Stop()

	assert.Equal(t, 0, p.ch.Len())
	exec, err := p.store.GetFlowExecution(context.Background(), h.ExecutionID())
	require.NoError(t, err)
	assert.Equal(t, domain.ExecStatusSuccess, exec.Status)
}

// slowStore пишет завершение flow с задержкой и учитывает отмену ctx,
// как это делает pgx.
type slowStore struct {
	*repo.MemoryStore
	started chan struct{}
	once    sync.Once
}

func (s *slowStore) UpdateFlowExecution(ctx context.Context, exec *domain.FlowExecution) error {
	s.once.Do(func() { close(s.started) })
	select {
	case <-time.After(100 * time.Millisecond):
	case <-ctx.Done():
		return ctx.Err()
	}
	return s.MemoryStore.UpdateFlowExecution(ctx, exec)
}

func TestPersister_StopCompletesInFlightWrite(t *testing.T) {
	p := newPipeline(t)
	store := &slowStore{MemoryStore: p.store, started: make(chan struct{})}
	p.persister = New(Config{Source: p.ch, Store: store, Nodes: testNodes(), Logger: telemetry.Discard()})
	p.persister.Start(context.Background())

	id := uuid.New()
	require.True(t, p.ch.Send(channel.Event{Kind: channel.KindFlow, FlowID: 1, FlowExecutionID: id, Status: domain.ExecStatusRunning, At: time.Now()}))
	require.True(t, p.ch.Send(channel.Event{Kind: channel.KindFlow, FlowID: 1, FlowExecutionID: id, Status: domain.ExecStatusSuccess, At: time.Now()}))

	select {
	case <-store.started:
	case <-time.After(2 * time.Second):
		t.Fatal("terminal write did not start")
	}
	p.persister.Stop()

	exec, err := p.store.GetFlowExecution(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.ExecStatusSuccess, exec.Status)
}
