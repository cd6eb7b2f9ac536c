// Package nodes содержит встроенные реализации node.
//
// # Встроенные node
//
// ## delay (delay.go)
//
// Приостанавливает выполнение на DELAY_SECONDS секунд и записывает
// фактическую задержку в DELAYED_MS. Учитывает отмену контекста.
//
// ## http_request (http.go)
//
// Выполняет HTTP запрос:
//
//	Inputs:  HTTP_URL, HTTP_METHOD, HTTP_HEADERS, HTTP_BODY
//	Outputs: HTTP_STATUS_CODE, HTTP_RESPONSE_BODY, HTTP_RESPONSE_HEADERS
//
// Ответ со статусом вне 2xx — явный отказ node (Result FAILED).
//
// ## transform (transform.go)
//
// Рендерит Go template из TEMPLATE над снимком FlowContext,
// результат записывается в TEMPLATE_RESULT.
//
// # Registry
//
//	registry := nodes.DefaultRegistry()  // delay, http_request, transform
//
// Внешние плагины регистрируются в том же node.Registry при старте процесса.
package nodes
