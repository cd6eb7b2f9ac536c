package node

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Flowstack/internal/domain"
	"github.com/shaiso/Flowstack/internal/fields"
)

type stubNode struct {
	name string
}

func (n stubNode) Meta() Meta {
	return Meta{Name: n.name, Group: "test"}
}

func (n stubNode) Execute(context.Context, *Context) (*Result, error) {
	return Success(nil), nil
}

// Registry Tests

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, 0, r.Count())

	r.Register(stubNode{name: "b"}, stubNode{name: "a"})
	assert.Equal(t, 2, r.Count())
	assert.True(t, r.Has("a"))
	assert.False(t, r.Has("c"))

	n, err := r.Get("a")
	require.NoError(t, err)
	assert.Equal(t, "a", n.Meta().Name)

	_, err = r.Get("c")
	assert.ErrorIs(t, err, ErrNodeNotFound)

	metas := r.Metas()
	require.Len(t, metas, 2)
	assert.Equal(t, "a", metas[0].Name)
	assert.Equal(t, "b", metas[1].Name)
}

func TestRegistry_LastRegistrationWins(t *testing.T) {
	r := NewRegistry()
	r.Register(stubNode{name: "a"}, stubNode{name: "a"})
	assert.Equal(t, 1, r.Count())
}

// Result Tests

func TestResult(t *testing.T) {
	in := map[string]any{"k": 1}
	ok := Success(in)
	in["k"] = 2

	assert.True(t, ok.IsSuccess())
	assert.Equal(t, 1, ok.Outputs["k"])

	failed := Failed("boom")
	assert.False(t, failed.IsSuccess())
	assert.Equal(t, domain.ExecStatusFailed, failed.Status)
	assert.Equal(t, "boom", failed.Error)
	assert.NotNil(t, failed.Outputs)

	var nilResult *Result
	assert.False(t, nilResult.IsSuccess())
}

// Context Tests

func TestContext_SetValidatesOnWrite(t *testing.T) {
	fc := NewContext(fields.Default(), 7, "nightly")

	require.NoError(t, fc.Set(fields.HTTPURL, "http://example.com"))
	require.NoError(t, fc.Set(fields.DelaySeconds, 3))

	err := fc.Set(fields.DelaySeconds, "three")
	assert.ErrorIs(t, err, fields.ErrTypeMismatch)

	err = fc.Set("NOPE", 1)
	assert.ErrorIs(t, err, fields.ErrUnknownField)

	n, err := fc.Number(fields.DelaySeconds)
	require.NoError(t, err)
	assert.Equal(t, float64(3), n)

	s, err := fc.String(fields.HTTPURL)
	require.NoError(t, err)
	assert.Equal(t, "http://example.com", s)
}

func TestContext_Accessors(t *testing.T) {
	fc := NewContext(fields.Default(), 0, "once")

	_, err := fc.String(fields.HTTPBody)
	assert.ErrorIs(t, err, ErrMissingValue)

	require.NoError(t, fc.Set(fields.HTTPStatusCode, 200))
	_, err = fc.String(fields.HTTPStatusCode)
	assert.ErrorIs(t, err, ErrWrongType)

	require.NoError(t, fc.Set(fields.HTTPHeaders, map[string]string{"Accept": "text/plain"}))
	obj, err := fc.Object(fields.HTTPHeaders)
	require.NoError(t, err)
	assert.Equal(t, "text/plain", obj["Accept"])

	assert.Equal(t, "GET", fc.StringOr(fields.HTTPMethod, "GET"))
	assert.Equal(t, int64(0), fc.FlowID())
	assert.Equal(t, "once", fc.FlowName())
	assert.NotEqual(t, uuid.Nil, fc.ExecutionID())
}

func TestContext_MergeIsAllOrNothing(t *testing.T) {
	fc := NewContext(fields.Default(), 1, "f")

	err := fc.Merge(map[string]any{
		fields.HTTPURL:      "http://a",
		fields.DelaySeconds: "bad",
	})
	require.Error(t, err)
	assert.False(t, fc.Has(fields.HTTPURL))

	require.NoError(t, fc.Merge(map[string]any{
		fields.HTTPURL:      "http://a",
		fields.DelaySeconds: 1.5,
	}))
	assert.Len(t, fc.Snapshot(), 2)
}

func TestContext_SnapshotIsCopy(t *testing.T) {
	fc := NewContext(fields.Default(), 1, "f")
	require.NoError(t, fc.Set(fields.HTTPURL, "http://a"))

	snap := fc.Snapshot()
	snap[fields.HTTPURL] = "http://b"
	delete(snap, fields.HTTPURL)

	v, ok := fc.Get(fields.HTTPURL)
	require.True(t, ok)
	assert.Equal(t, "http://a", v)
}

func TestContext_SnapshotIsDeep(t *testing.T) {
	fc := NewContext(fields.Default(), 1, "f")
	require.NoError(t, fc.Set(fields.HTTPHeaders, map[string]any{"A": "1"}))

	snap := fc.Snapshot()

	headers, err := fc.Object(fields.HTTPHeaders)
	require.NoError(t, err)
	headers["B"] = "2"

	assert.Equal(t, map[string]any{"A": "1"}, snap[fields.HTTPHeaders])

	again, err := fc.Object(fields.HTTPHeaders)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"A": "1"}, again)

	snap[fields.HTTPHeaders].(map[string]any)["C"] = "3"
	assert.Equal(t, map[string]any{"A": "1"}, fc.Snapshot()[fields.HTTPHeaders])
}

func TestContext_SetDoesNotAliasCaller(t *testing.T) {
	fc := NewContext(fields.Default(), 1, "f")
	headers := map[string]any{"A": "1"}
	require.NoError(t, fc.Set(fields.HTTPHeaders, headers))

	headers["B"] = "2"

	got, err := fc.Object(fields.HTTPHeaders)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"A": "1"}, got)
}

func TestContext_Restrict(t *testing.T) {
	fc := NewContext(fields.Default(), 1, "f")
	require.NoError(t, fc.Set(fields.HTTPURL, "http://a"))
	require.NoError(t, fc.Set(fields.HTTPBody, "x"))

	got := fc.Restrict([]string{fields.HTTPURL, fields.HTTPMethod})
	assert.Equal(t, map[string]any{fields.HTTPURL: "http://a"}, got)
}

func TestContext_DistinctExecutionIDs(t *testing.T) {
	a := NewContext(fields.Default(), 1, "f")
	b := NewContext(fields.Default(), 1, "f")
	assert.NotEqual(t, a.ExecutionID(), b.ExecutionID())
}
