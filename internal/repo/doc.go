// Package repo содержит хранилища определений flow и истории выполнений.
//
// Три реализации с одинаковым набором методов (см. Store):
//   - PostgresStore — PostgreSQL через pgx, схема в migrations/
//   - BadgerStore   — встроенное хранилище Badger для одиночного процесса
//   - MemoryStore   — в памяти, для тестов и разовых запусков
//
// Гарантии, на которые опираются persister и scheduler:
//   - имя flow уникально среди неудалённых (ErrAlreadyExists)
//   - execution UUID уникален для FlowExecution и NodeExecution
//     (повторная вставка — ErrAlreadyExists)
//   - удаление flow логическое, история остаётся
package repo
