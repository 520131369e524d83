package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики жизненного цикла задач.
var (
	// TasksSubmitted — количество принятых задач.
	TasksSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "svgtranslate_tasks_submitted_total",
		Help: "Total tasks submitted",
	})

	// TasksFinished — количество завершённых задач по финальному статусу.
	TasksFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "svgtranslate_tasks_finished_total",
		Help: "Total tasks finished, labelled by terminal status",
	}, []string{"status"})

	// StageDuration — длительность выполнения стадий пайплайна.
	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "svgtranslate_stage_duration_seconds",
		Help:    "Stage execution duration",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	}, []string{"stage"})

	// DBRetries — количество retry при работе с БД по классу ошибки.
	DBRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "svgtranslate_db_retries_total",
		Help: "Database retries, labelled by error class",
	}, []string{"class"})

	// PoolCheckedOut — количество занятых соединений по классу пула.
	PoolCheckedOut = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "svgtranslate_pool_checked_out",
		Help: "Connections currently checked out of the pool",
	}, []string{"pool"})
)
