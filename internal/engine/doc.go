// Package engine содержит движок выполнения flow.
//
// Включает:
//   - validator.go — проверка DAG и топологическая сортировка (алгоритм Кана)
//   - engine.go    — последовательное выполнение node одного flow
//   - handle.go    — Handle для ожидания и отмены выполнения
//
// Node внутри одного выполнения никогда не выполняются параллельно:
// порядок задаётся топологической сортировкой, независимые узлы идут
// в порядке объявления. Разные выполнения работают в своих горутинах.
//
// Отказ node (Result FAILED, ошибка или panic) завершает только своё
// выполнение статусом FAILED и никогда не выходит за пределы engine.
package engine
