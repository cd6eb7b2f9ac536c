package api

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Flowstack/internal/apperr"
	"github.com/shaiso/Flowstack/internal/engine"
	"github.com/shaiso/Flowstack/internal/fields"
	"github.com/shaiso/Flowstack/internal/node"
	"github.com/shaiso/Flowstack/internal/repo"
	"github.com/shaiso/Flowstack/internal/scheduler"
	"github.com/shaiso/Flowstack/internal/service"
	"github.com/shaiso/Flowstack/internal/telemetry"
)

// Test helpers

type echoNode struct{}

func (echoNode) Meta() node.Meta {
	return node.Meta{Name: "echo", Inputs: []string{"MESSAGE"}, Outputs: []string{"REPLY"}}
}

func (echoNode) Execute(_ context.Context, fc *node.Context) (*node.Result, error) {
	msg, err := fc.String("MESSAGE")
	if err != nil {
		return nil, err
	}
	if msg == "boom" {
		panic("echo exploded")
	}
	return node.Success(map[string]any{"REPLY": "re: " + msg}), nil
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	logger := telemetry.Discard()

	flds := fields.NewRegistry()
	flds.MustRegister(
		fields.Definition{Key: "MESSAGE", Kind: fields.KindString, Group: "test"},
		fields.Definition{Key: "REPLY", Kind: fields.KindString, Group: "test"},
	)
	nodes := node.NewRegistry()
	nodes.Register(echoNode{})

	store := repo.NewMemoryStore()
	eng := engine.New(engine.Config{Nodes: nodes, Fields: flds, Logger: logger})
	sched := scheduler.New(scheduler.Config{Store: store, Executor: eng, Logger: logger})
	t.Cleanup(func() { _ = sched.Stop(context.Background()) })

	svc := service.New(service.Config{Store: store, Engine: eng, Scheduler: sched, Nodes: nodes, Logger: logger})

	mux := http.NewServeMux()
	NewHandler(Config{Service: svc, Logger: logger}).RegisterRoutes(mux)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, srv *httptest.Server, method, path, body string) (int, map[string]any) {
	t.Helper()

	req, err := http.NewRequest(method, srv.URL+path, bytes.NewReader([]byte(body)))
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return resp.StatusCode, nil
	}

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

const echoFlow = `{
	"name": "greeter",
	"cron_expr": "*/5 * * * *",
	"nodes": [
		{"node_id": "A", "name": "echo", "input_params": {"MESSAGE": {"value": "hello"}}}
	]
}`

func errorMessage(body map[string]any) string {
	detail, _ := body["error"].(map[string]any)
	msg, _ := detail["message"].(string)
	return msg
}

// Flow Tests

func TestAPI_FlowLifecycle(t *testing.T) {
	srv := newTestServer(t)

	status, body := do(t, srv, http.MethodPost, "/api/v1/flows", echoFlow)
	require.Equal(t, http.StatusCreated, status, body)
	created := body["data"].(map[string]any)
	assert.Equal(t, "greeter", created["name"])
	assert.Equal(t, true, created["enabled"])

	status, body = do(t, srv, http.MethodGet, "/api/v1/flows", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(1), body["total"])
	info := body["data"].([]any)[0].(map[string]any)
	assert.Equal(t, "PENDING", info["last_status"])

	status, body = do(t, srv, http.MethodPost, "/api/v1/flows/1/disable", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, body["data"].(map[string]any)["enabled"])

	status, _ = do(t, srv, http.MethodPost, "/api/v1/flows/1/enable", "")
	require.Equal(t, http.StatusOK, status)

	status, _ = do(t, srv, http.MethodDelete, "/api/v1/flows/1", "")
	require.Equal(t, http.StatusNoContent, status)

	status, body = do(t, srv, http.MethodGet, "/api/v1/flows", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(0), body["total"])
}

func TestAPI_CreateFlowErrors(t *testing.T) {
	srv := newTestServer(t)

	status, body := do(t, srv, http.MethodPost, "/api/v1/flows", `{"name":`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, errorMessage(body), "invalid request body")

	bad := strings.Replace(echoFlow, "*/5 * * * *", "whenever", 1)
	status, body = do(t, srv, http.MethodPost, "/api/v1/flows", bad)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_ERROR", body["error"].(map[string]any)["code"])
	assert.Contains(t, errorMessage(body), "whenever")

	status, _ = do(t, srv, http.MethodPost, "/api/v1/flows", echoFlow)
	require.Equal(t, http.StatusCreated, status)

	// повторное имя — внутренняя ошибка с цепочкой причин
	status, body = do(t, srv, http.MethodPost, "/api/v1/flows", echoFlow)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "BusinessError: duplicate flow name greeter", errorMessage(body))
}

func TestAPI_NotFound(t *testing.T) {
	srv := newTestServer(t)

	status, _ := do(t, srv, http.MethodGet, "/api/v1/flows/42", "")
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = do(t, srv, http.MethodPost, "/api/v1/flows/42/enable", "")
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = do(t, srv, http.MethodGet, "/api/v1/flows/abc", "")
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = do(t, srv, http.MethodGet, "/api/v1/executions/00000000-0000-0000-0000-000000000001", "")
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = do(t, srv, http.MethodGet, "/api/v1/executions/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestAPI_TriggerFlow(t *testing.T) {
	srv := newTestServer(t)

	status, _ := do(t, srv, http.MethodPost, "/api/v1/flows", echoFlow)
	require.Equal(t, http.StatusCreated, status)

	status, body := do(t, srv, http.MethodPost, "/api/v1/flows/1/run", "")
	require.Equal(t, http.StatusAccepted, status)
	data := body["data"].(map[string]any)
	assert.Equal(t, float64(1), data["flow_id"])
	assert.NotEmpty(t, data["execution_id"])
}

func TestHandleError_RunningFlowIsConflict(t *testing.T) {
	err := apperr.Business("trigger flow 1", fmt.Errorf("%w: execution abc", scheduler.ErrAlreadyRunning))

	rec := httptest.NewRecorder()
	require.True(t, HandleError(rec, telemetry.Discard(), err, "flow not found"))

	assert.Equal(t, http.StatusConflict, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, string(ErrCodeConflict), body["error"].(map[string]any)["code"])
	assert.Contains(t, errorMessage(body), "flow execution already running")
}

// Editor Tests

func TestAPI_Editor(t *testing.T) {
	srv := newTestServer(t)
	nodes := `{"nodes":[{"node_id":"A","name":"echo","input_params":{"MESSAGE":{"value":"hi","source":"MANUAL"}}}]}`

	status, body := do(t, srv, http.MethodPost, "/api/v1/editor/validate-nodes", nodes)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["data"].(map[string]any)["valid"])

	status, body = do(t, srv, http.MethodPost, "/api/v1/editor/field-schemas", nodes)
	require.Equal(t, http.StatusOK, status)
	schema := body["data"].([]any)[0].(map[string]any)
	assert.Equal(t, "A", schema["node_id"])
	param := schema["params"].(map[string]any)["MESSAGE"].(map[string]any)
	assert.Equal(t, "MANUAL", param["source"])
	assert.Equal(t, "string", param["type"])

	status, _ = do(t, srv, http.MethodPost, "/api/v1/editor/validate-params", nodes)
	assert.Equal(t, http.StatusOK, status)

	wrongType := `{"nodes":[{"node_id":"A","name":"echo","input_params":{"MESSAGE":{"value":5}}}]}`
	status, body = do(t, srv, http.MethodPost, "/api/v1/editor/validate-params", wrongType)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, errorMessage(body), "MESSAGE")

	cycle := `{"nodes":[{"node_id":"A","name":"echo","next_node_ids":["A"]}]}`
	status, body = do(t, srv, http.MethodPost, "/api/v1/editor/validate-nodes", cycle)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, errorMessage(body), "cyclic dependency")
}

func TestAPI_RunOnce(t *testing.T) {
	srv := newTestServer(t)

	status, body := do(t, srv, http.MethodPost, "/api/v1/run-once",
		`{"nodes":[{"node_id":"A","name":"echo","input_params":{"MESSAGE":{"value":"ping"}}}],"timeout_sec":5}`)
	require.Equal(t, http.StatusOK, status)
	data := body["data"].(map[string]any)
	assert.Equal(t, "SUCCESS", data["status"])
	assert.Equal(t, "re: ping", data["context"].(map[string]any)["REPLY"])

	// panic внутри node превращается в FAILED, а не в 500
	status, body = do(t, srv, http.MethodPost, "/api/v1/run-once",
		`{"nodes":[{"node_id":"A","name":"echo","input_params":{"MESSAGE":{"value":"boom"}}}]}`)
	require.Equal(t, http.StatusOK, status)
	data = body["data"].(map[string]any)
	assert.Equal(t, "FAILED", data["status"])
	assert.Contains(t, data["error"], "echo exploded")
}

func TestAPI_Catalogue(t *testing.T) {
	srv := newTestServer(t)

	status, body := do(t, srv, http.MethodGet, "/api/v1/nodes", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(1), body["total"])

	status, body = do(t, srv, http.MethodGet, "/api/v1/fields", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(2), body["total"])
}

// Middleware Tests

func TestRecovery(t *testing.T) {
	h := Recovery(telemetry.Discard())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("handler bug")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestMiddleware_PanicThroughChain(t *testing.T) {
	logger := telemetry.Discard()
	var route string

	mux := http.NewServeMux()
	mux.Handle("GET /boom/{id}", Chain(Logging(logger), Recovery(logger))(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		route = routeOf(r)
		panic("handler bug")
	})))
	mux.Handle("POST /late/{id}", Chain(Logging(logger), Recovery(logger))(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		panic("after header")
	})))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom/42", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), string(ErrCodeInternalError))
	assert.Equal(t, "GET /boom/{id}", route)

	// заголовки уже ушли: ответ не переписывается
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/late/1", nil))
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestRouteOf_Unmatched(t *testing.T) {
	assert.Equal(t, "unmatched", routeOf(httptest.NewRequest(http.MethodGet, "/", nil)))
}

func TestParseLimit(t *testing.T) {
	cases := map[string]int{"": 50, "10": 10, "-1": 50, "abc": 50}
	for q, want := range cases {
		r := httptest.NewRequest(http.MethodGet, "/?limit="+q, nil)
		assert.Equal(t, want, parseLimit(r), q)
	}
}
