// Package history записывает историю выполнений.
//
// Persister — единственный потребитель channel.Channel. Он живёт всё
// время работы процесса и превращает события engine в записи
// FlowExecution и NodeExecution:
//
//	FLOW RUNNING          → вставка FlowExecution
//	FLOW SUCCESS/FAILED   → обновление FlowExecution по UUID выполнения
//	NODE RUNNING          → вставка NodeExecution (входы node)
//	NODE SUCCESS/FAILED   → обновление NodeExecution по UUID (выходы node)
//
// Ошибка или panic при обработке одного события логируется, цикл
// продолжает работу со следующим событием.
package history
