package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "flowstack"

var (
	// FlowExecutions — завершённые выполнения flow по статусу.
	FlowExecutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "flow_executions_total",
		Help:      "Finished flow executions by terminal status.",
	}, []string{"status"})

	// NodeExecutions — завершённые выполнения node по статусу.
	NodeExecutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "node_executions_total",
		Help:      "Finished node executions by terminal status.",
	}, []string{"status"})

	// ChannelDropped — события, отброшенные после исчерпания попыток отправки.
	ChannelDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "channel_events_dropped_total",
		Help:      "Execution events dropped because the channel stayed full.",
	})

	// ChannelDepth — текущее количество событий в канале.
	ChannelDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "channel_depth",
		Help:      "Execution events waiting in the channel.",
	})

	// SchedulerSkippedFires — срабатывания cron, пропущенные из-за активного выполнения.
	SchedulerSkippedFires = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "scheduler_skipped_fires_total",
		Help:      "Cron fires skipped because the previous execution was still running.",
	})

	// SchedulerActiveSchedules — количество активных расписаний.
	SchedulerActiveSchedules = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "scheduler_active_schedules",
		Help:      "Flows with an active cron trigger.",
	})

	// PersisterErrors — события, которые persister не смог записать.
	PersisterErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "persister_errors_total",
		Help:      "Execution events the history persister failed to store.",
	})

	// HTTPRequests — обработанные HTTP-запросы API по маршруту и коду ответа.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "HTTP API requests by route pattern and response status code.",
	}, []string{"route", "code"})
)
