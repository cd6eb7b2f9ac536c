package channel

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Flowstack/internal/domain"
	"github.com/shaiso/Flowstack/internal/telemetry"
)

func newTestChannel(capacity int, wait time.Duration) *Channel {
	return New(Config{
		Capacity:    capacity,
		SendRetries: 3,
		SendWait:    wait,
		Logger:      telemetry.Discard(),
	})
}

func TestNew_Defaults(t *testing.T) {
	c := New(Config{})
	assert.Equal(t, DefaultCapacity, c.Cap())
	assert.Equal(t, DefaultSendRetries, c.retries)
	assert.Equal(t, DefaultSendWait, c.wait)
}

func TestSendTake_FIFO(t *testing.T) {
	c := newTestChannel(10, 10*time.Millisecond)
	execID := uuid.New()

	for _, st := range []domain.ExecStatus{domain.ExecStatusRunning, domain.ExecStatusSuccess} {
		require.True(t, c.Send(Event{Kind: KindFlow, FlowExecutionID: execID, Status: st}))
	}
	assert.Equal(t, 2, c.Len())

	ctx := context.Background()
	first, err := c.Take(ctx)
	require.NoError(t, err)
	second, err := c.Take(ctx)
	require.NoError(t, err)

	assert.Equal(t, domain.ExecStatusRunning, first.Status)
	assert.Equal(t, domain.ExecStatusSuccess, second.Status)
}

func TestSend_DropsWhenFull(t *testing.T) {
	c := newTestChannel(1, 5*time.Millisecond)

	require.True(t, c.Send(Event{Kind: KindFlow}))

	start := time.Now()
	ok := c.Send(Event{Kind: KindFlow})
	elapsed := time.Since(start)

	assert.False(t, ok)
	assert.GreaterOrEqual(t, elapsed, 15*time.Millisecond)
	assert.Equal(t, 1, c.Len())
}

func TestSend_SucceedsWhenSpaceFreed(t *testing.T) {
	c := newTestChannel(1, 200*time.Millisecond)
	require.True(t, c.Send(Event{Kind: KindFlow}))

	go func() {
		time.Sleep(20 * time.Millisecond)
		_, _ = c.Take(context.Background())
	}()

	assert.True(t, c.Send(Event{Kind: KindNode}))
}

func TestTake_BlocksUntilCancelled(t *testing.T) {
	c := newTestChannel(1, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.Take(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestEvent_String(t *testing.T) {
	ev := Event{Kind: KindNode, Status: domain.ExecStatusFailed, Node: &domain.FlowNode{NodeID: "A"}}
	assert.Equal(t, "NODE FAILED(A)", ev.String())
	assert.True(t, ev.IsNode())

	flow := Event{Kind: KindFlow, Status: domain.ExecStatusSuccess}
	assert.Equal(t, "FLOW SUCCESS", flow.String())
}

func TestTryTake(t *testing.T) {
	c := newTestChannel(2, time.Millisecond)

	_, ok := c.TryTake()
	assert.False(t, ok)

	require.True(t, c.Send(Event{Kind: KindNode}))
	ev, ok := c.TryTake()
	assert.True(t, ok)
	assert.Equal(t, KindNode, ev.Kind)
	assert.Equal(t, 0, c.Len())
}
