// Package api содержит HTTP API сервер.
//
// Структура:
//   - handler.go           — Handler с зависимостями (FlowService, logger)
//   - routes.go            — регистрация маршрутов
//   - middleware.go        — middleware (logging, recovery)
//   - response.go          — JSON-ответы и отображение ошибок в HTTP-статусы
//   - dto.go               — Data Transfer Objects (request/response)
//   - flow_handler.go      — /flows: создание, сводка, расписание, ручной запуск
//   - execution_handler.go — /executions: история выполнений
//   - editor_handler.go    — /editor, /nodes, /fields, /run-once
//
// Ошибки валидации (apperr.Validation) возвращаются с кодом 400 и исходным
// сообщением, внутренние ошибки (apperr.Business) — с кодом 500 и цепочкой причин.
package api
