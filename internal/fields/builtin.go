package fields

// Ключи полей встроенных node.
const (
	DelaySeconds = "DELAY_SECONDS"
	DelayedMs    = "DELAYED_MS"

	HTTPURL             = "HTTP_URL"
	HTTPMethod          = "HTTP_METHOD"
	HTTPHeaders         = "HTTP_HEADERS"
	HTTPBody            = "HTTP_BODY"
	HTTPStatusCode      = "HTTP_STATUS_CODE"
	HTTPResponseBody    = "HTTP_RESPONSE_BODY"
	HTTPResponseHeaders = "HTTP_RESPONSE_HEADERS"

	Template       = "TEMPLATE"
	TemplateResult = "TEMPLATE_RESULT"
)

// Builtin возвращает определения полей встроенных node.
func Builtin() []Definition {
	return []Definition{
		{Key: DelaySeconds, Kind: KindNumber, Description: "delay duration in seconds", Group: "delay"},
		{Key: DelayedMs, Kind: KindNumber, Description: "actual delay in milliseconds", Group: "delay"},

		{Key: HTTPURL, Kind: KindString, Description: "request URL", Group: "http"},
		{Key: HTTPMethod, Kind: KindString, Description: "request method (GET by default)", Group: "http"},
		{Key: HTTPHeaders, Kind: KindObject, Description: "request headers", Group: "http"},
		{Key: HTTPBody, Kind: KindString, Description: "request body", Group: "http"},
		{Key: HTTPStatusCode, Kind: KindNumber, Description: "response status code", Group: "http"},
		{Key: HTTPResponseBody, Kind: KindString, Description: "response body", Group: "http"},
		{Key: HTTPResponseHeaders, Kind: KindObject, Description: "response headers", Group: "http"},

		{Key: Template, Kind: KindString, Description: "Go template rendered over the flow context", Group: "data"},
		{Key: TemplateResult, Kind: KindString, Description: "rendered template", Group: "data"},
	}
}

// Default создаёт реестр со встроенными полями.
// Реестр не закрыт: плагины могут дорегистрировать свои поля до Seal.
func Default() *Registry {
	r := NewRegistry()
	r.MustRegister(Builtin()...)
	return r
}
