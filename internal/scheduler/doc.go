// Package scheduler запускает flow по cron-расписанию.
//
// Scheduler владеет cron.Cron и двумя таблицами: flowID → cron-запись
// и flowID → последнее выполнение. Срабатывание запускает новое
// выполнение, только если предыдущее выполнение того же flow завершено;
// иначе срабатывание пропускается и не ставится в очередь. Ручной запуск
// (Trigger) проходит через ту же таблицу: пока flow выполняется, он
// отклоняется с ErrAlreadyRunning.
//
// Структура:
//   - scheduler.go — Scheduler (Schedule, Trigger, StopSchedule, EnableSchedule, Start/Stop)
//   - cron.go      — разбор cron-выражений
//   - errors.go    — ошибки
//
// Использование:
//
//	sched := scheduler.New(scheduler.Config{
//	    Store:    store,
//	    Executor: eng,
//	    Logger:   logger,
//	})
//	if err := sched.Start(ctx); err != nil {
//	    return err
//	}
//	defer sched.Stop(context.Background())
package scheduler
