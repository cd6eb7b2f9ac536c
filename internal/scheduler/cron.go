package scheduler

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// cronParser — парсер cron-выражений: пять полей или дескриптор (@hourly, @every 1m).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseCronExpr разбирает cron-выражение.
func ParseCronExpr(cronExpr string) (cron.Schedule, error) {
	schedule, err := cronParser.Parse(cronExpr)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %w", ErrInvalidCron, cronExpr, err)
	}
	return schedule, nil
}

// ValidateCronExpr проверяет валидность cron-выражения.
func ValidateCronExpr(cronExpr string) error {
	_, err := ParseCronExpr(cronExpr)
	return err
}

// NextFires возвращает n ближайших срабатываний после from (в UTC).
// Используется CLI для предпросмотра расписания.
func NextFires(cronExpr string, from time.Time, n int) ([]time.Time, error) {
	schedule, err := ParseCronExpr(cronExpr)
	if err != nil {
		return nil, err
	}

	result := make([]time.Time, 0, n)
	next := from
	for i := 0; i < n; i++ {
		next = schedule.Next(next)
		if next.IsZero() {
			break
		}
		result = append(result, next.UTC())
	}
	return result, nil
}

// cronLogger адаптирует slog к интерфейсу cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
