// Package cli реализует инструмент командной строки flowstack.
//
// # Обзор
//
// Один бинарник обслуживает две роли. Команда serve собирает сервер
// (HTTP API, планировщик, запись истории). Остальные команды работают
// либо с сервером через HTTP, либо локально со встроенным каталогом
// node: validate и run не требуют запущенного сервера.
//
// # Ключевые компоненты
//
// ## Client
//
// HTTP-клиент для API. Инкапсулирует запросы, разбор ответов
// (data/list/error) и превращает ответ с ошибкой в *APIError.
//
//	client := cli.NewClient("http://localhost:8080")
//	flows, err := client.ListFlows()
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) по умолчанию
//   - JSON с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) в stderr.
// Это позволяет использовать pipe: flowstack flow list --json | jq .
//
// ## Commands
//
// Cobra-команды организованы по ресурсам:
//   - flow: list, create, show, delete, trigger, executions
//   - schedule: enable, disable, next
//   - execution: show
//   - validate, run, nodes, fields (локально или с --remote)
//   - events watch: события из RabbitMQ
//   - serve
//
// Каждая группа создаётся через фабричную функцию (NewFlowCmd и т.д.),
// принимающую clientFn и outputFn: замыкания для ленивого создания
// Client и Output после парсинга PersistentFlags.
package cli
