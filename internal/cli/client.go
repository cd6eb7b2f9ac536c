package cli

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	json "github.com/goccy/go-json"

	"github.com/shaiso/Flowstack/internal/api"
	"github.com/shaiso/Flowstack/internal/domain"
	"github.com/shaiso/Flowstack/internal/fields"
	"github.com/shaiso/Flowstack/internal/node"
	"github.com/shaiso/Flowstack/internal/service"
)

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

// APIError — ошибка, которую вернул сервер.
type APIError struct {
	Status  int
	Code    api.ErrorCode
	Message string
}

// Error реализует интерфейс error.
func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("API error: HTTP %d", e.Status)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// --- Client ---

// Client — HTTP-клиент для Flowstack API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// --- Flows ---

// ListFlows возвращает сводку по всем flows.
func (c *Client) ListFlows() ([]domain.FlowInfo, error) {
	var flows []domain.FlowInfo
	err := c.list("/api/v1/flows", nil, &flows)
	return flows, err
}

// CreateFlow создаёт flow и ставит его на расписание.
func (c *Client) CreateFlow(req *service.CreateFlowRequest) (*api.FlowResponse, error) {
	var flow api.FlowResponse
	err := c.post("/api/v1/flows", req, &flow)
	return &flow, err
}

// GetFlow возвращает flow по ID.
func (c *Client) GetFlow(id int64) (*api.FlowResponse, error) {
	var flow api.FlowResponse
	err := c.get(flowPath(id), &flow)
	return &flow, err
}

// DeleteFlow логически удаляет flow.
func (c *Client) DeleteFlow(id int64) error {
	return c.delete(flowPath(id))
}

// EnableFlow включает расписание flow.
func (c *Client) EnableFlow(id int64) (*api.FlowResponse, error) {
	var flow api.FlowResponse
	err := c.post(flowPath(id)+"/enable", nil, &flow)
	return &flow, err
}

// DisableFlow выключает расписание flow.
func (c *Client) DisableFlow(id int64) (*api.FlowResponse, error) {
	var flow api.FlowResponse
	err := c.post(flowPath(id)+"/disable", nil, &flow)
	return &flow, err
}

// TriggerFlow запускает flow вне расписания.
func (c *Client) TriggerFlow(id int64) (*api.TriggerResponse, error) {
	var resp api.TriggerResponse
	err := c.post(flowPath(id)+"/run", nil, &resp)
	return &resp, err
}

// --- Executions ---

// ListExecutions возвращает последние выполнения flow.
func (c *Client) ListExecutions(flowID int64, limit int) ([]domain.FlowExecution, error) {
	params := url.Values{}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	var execs []domain.FlowExecution
	err := c.list(flowPath(flowID)+"/executions", params, &execs)
	return execs, err
}

// GetExecution возвращает выполнение вместе с выполнениями node.
func (c *Client) GetExecution(executionID string) (*service.ExecutionDetails, error) {
	var details service.ExecutionDetails
	err := c.get("/api/v1/executions/"+url.PathEscape(executionID), &details)
	return &details, err
}

// --- Editor ---

// ValidateNodes проверяет структуру DAG на сервере.
func (c *Client) ValidateNodes(nodes []domain.FlowNode) error {
	return c.post("/api/v1/editor/validate-nodes", api.NodesRequest{Nodes: nodes}, nil)
}

// ValidateParams проверяет входные параметры на сервере.
func (c *Client) ValidateParams(nodes []domain.FlowNode) error {
	return c.post("/api/v1/editor/validate-params", api.NodesRequest{Nodes: nodes}, nil)
}

// FieldSchemas возвращает схемы входных параметров узлов.
func (c *Client) FieldSchemas(nodes []domain.FlowNode) ([]service.NodeSchema, error) {
	var schemas []service.NodeSchema
	err := c.listDo(http.MethodPost, "/api/v1/editor/field-schemas", api.NodesRequest{Nodes: nodes}, &schemas)
	return schemas, err
}

// RunOnce выполняет определение на сервере без сохранения.
func (c *Client) RunOnce(req api.RunOnceRequest) (*service.RunResult, error) {
	var result service.RunResult
	err := c.post("/api/v1/run-once", req, &result)
	return &result, err
}

// --- Catalogue ---

// ListNodes возвращает каталог node сервера.
func (c *Client) ListNodes() ([]node.Meta, error) {
	var metas []node.Meta
	err := c.list("/api/v1/nodes", nil, &metas)
	return metas, err
}

// ListFields возвращает реестр полей сервера.
func (c *Client) ListFields() ([]fields.Definition, error) {
	var defs []fields.Definition
	err := c.list("/api/v1/fields", nil, &defs)
	return defs, err
}

// --- HTTP helpers ---

func flowPath(id int64) string {
	return "/api/v1/flows/" + strconv.FormatInt(id, 10)
}

func (c *Client) get(path string, result any) error {
	return c.doData(http.MethodGet, path, nil, result)
}

func (c *Client) post(path string, body any, result any) error {
	return c.doData(http.MethodPost, path, body, result)
}

func (c *Client) delete(path string) error {
	resp, err := c.do(http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return c.checkError(resp)
}

func (c *Client) list(path string, params url.Values, result any) error {
	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}
	return c.listDo(http.MethodGet, path, nil, result)
}

func (c *Client) listDo(method, path string, body any, result any) error {
	resp, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return json.Unmarshal(lr.Data, result)
}

func (c *Client) doData(method, path string, body any, result any) error {
	resp, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	// 204 No Content
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if result != nil {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
}

func (c *Client) do(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er api.ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return &APIError{Status: resp.StatusCode}
	}

	return &APIError{
		Status:  resp.StatusCode,
		Code:    er.Error.Code,
		Message: er.Error.Message,
	}
}
