package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Результаты выполнения задачи воркером
const (
	ResultCompleted = "completed"
	ResultFailed    = "failed"
)

// Причины выбрасывания элемента очереди
const (
	DropCanceled = "canceled"
	DropInvalid  = "invalid"
	DropKilled   = "killed"
)

// Recorder принимает метрики очередей конвейера
type Recorder interface {
	ObserveQueue(queue string, queued, running int)
	ObserveJob(queue, result string, d time.Duration)
	ObserveDrop(queue, reason string)
}

// NopRecorder ничего не записывает
type NopRecorder struct{}

func (NopRecorder) ObserveQueue(string, int, int)            {}
func (NopRecorder) ObserveJob(string, string, time.Duration) {}
func (NopRecorder) ObserveDrop(string, string)               {}

// PipelineMetrics метрики очередей в Prometheus
type PipelineMetrics struct {
	queued   *prometheus.GaugeVec
	running  *prometheus.GaugeVec
	jobs     *prometheus.CounterVec
	duration *prometheus.HistogramVec
	dropped  *prometheus.CounterVec
}

// NewPipelineMetrics создает метрики и регистрирует их в reg
func NewPipelineMetrics(reg prometheus.Registerer) *PipelineMetrics {
	m := &PipelineMetrics{
		queued: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "voxel",
			Name:      "queue_items",
			Help:      "Элементов в очереди, ожидающих воркера.",
		}, []string{"queue"}),
		running: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "voxel",
			Name:      "queue_running",
			Help:      "Запущенных воркеров очереди.",
		}, []string{"queue"}),
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voxel",
			Name:      "jobs_total",
			Help:      "Завершенных задач по результату.",
		}, []string{"queue", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "voxel",
			Name:      "job_duration_seconds",
			Help:      "Длительность задачи воркера.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 16),
		}, []string{"queue"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voxel",
			Name:      "queue_dropped_total",
			Help:      "Элементов, выброшенных из очереди без запуска.",
		}, []string{"queue", "reason"}),
	}
	reg.MustRegister(m.queued, m.running, m.jobs, m.duration, m.dropped)
	return m
}

func (m *PipelineMetrics) ObserveQueue(queue string, queued, running int) {
	m.queued.WithLabelValues(queue).Set(float64(queued))
	m.running.WithLabelValues(queue).Set(float64(running))
}

func (m *PipelineMetrics) ObserveJob(queue, result string, d time.Duration) {
	m.jobs.WithLabelValues(queue, result).Inc()
	m.duration.WithLabelValues(queue).Observe(d.Seconds())
}

func (m *PipelineMetrics) ObserveDrop(queue, reason string) {
	m.dropped.WithLabelValues(queue, reason).Inc()
}

var (
	_ Recorder = NopRecorder{}
	_ Recorder = (*PipelineMetrics)(nil)
)
