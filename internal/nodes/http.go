package nodes

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shaiso/Flowstack/internal/fields"
	"github.com/shaiso/Flowstack/internal/node"
)

const (
	// NameHTTPRequest — имя HTTP node.
	NameHTTPRequest = "http_request"

	defaultHTTPTimeout = 30 * time.Second
	maxResponseBody    = 10 * 1024 * 1024 // 10 MB
)

// HTTPRequest — node HTTP запроса.
//
// Ответ со статусом вне диапазона 2xx возвращается как FAILED,
// выходные поля при этом не записываются.
type HTTPRequest struct {
	client *http.Client
}

// NewHTTPRequest создаёт HTTP node с клиентом по умолчанию.
func NewHTTPRequest() *HTTPRequest {
	return NewHTTPRequestWithClient(&http.Client{Timeout: defaultHTTPTimeout})
}

// NewHTTPRequestWithClient создаёт HTTP node с заданным клиентом.
func NewHTTPRequestWithClient(client *http.Client) *HTTPRequest {
	return &HTTPRequest{client: client}
}

// Meta возвращает метаданные node.
func (h *HTTPRequest) Meta() node.Meta {
	return node.Meta{
		Name:        NameHTTPRequest,
		Description: "send an HTTP request and capture the response",
		Group:       "http",
		Inputs:      []string{fields.HTTPURL, fields.HTTPMethod, fields.HTTPHeaders, fields.HTTPBody},
		Outputs:     []string{fields.HTTPStatusCode, fields.HTTPResponseBody, fields.HTTPResponseHeaders},
	}
}

// Execute выполняет HTTP запрос.
func (h *HTTPRequest) Execute(ctx context.Context, fc *node.Context) (*node.Result, error) {
	req, err := h.buildRequest(ctx, fc)
	if err != nil {
		return nil, err
	}

	resp, err := h.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrCancelled, ctx.Err())
		}
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		httpErr := &HTTPError{StatusCode: resp.StatusCode, Status: resp.Status, Body: string(body)}
		return node.Failed(httpErr.Error()), nil
	}

	headers := make(map[string]any, len(resp.Header))
	for key := range resp.Header {
		headers[key] = resp.Header.Get(key)
	}

	return node.Success(map[string]any{
		fields.HTTPStatusCode:      resp.StatusCode,
		fields.HTTPResponseBody:    string(body),
		fields.HTTPResponseHeaders: headers,
	}), nil
}

// buildRequest собирает запрос из полей контекста.
func (h *HTTPRequest) buildRequest(ctx context.Context, fc *node.Context) (*http.Request, error) {
	url, err := fc.String(fields.HTTPURL)
	if err != nil || url == "" {
		return nil, fmt.Errorf("%w: %s: %s is required", ErrInvalidInput, NameHTTPRequest, fields.HTTPURL)
	}

	method := strings.ToUpper(fc.StringOr(fields.HTTPMethod, http.MethodGet))
	if method == "" {
		method = http.MethodGet
	}

	var bodyReader io.Reader
	body := fc.StringOr(fields.HTTPBody, "")
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	if fc.Has(fields.HTTPHeaders) {
		headers, err := fc.Object(fields.HTTPHeaders)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidInput, NameHTTPRequest, err)
		}
		for key, value := range headers {
			req.Header.Set(key, fmt.Sprint(value))
		}
	}
	if bodyReader != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	return req, nil
}

// HTTPError — ответ с неуспешным статусом.
type HTTPError struct {
	StatusCode int
	Status     string
	Body       string
}

// Error реализует интерфейс error.
func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, http.StatusText(e.StatusCode))
}
