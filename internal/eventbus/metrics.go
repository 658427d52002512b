package eventbus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsExporter переносит Stats шины и диспетчера в Prometheus.
// Экспортер опирается только на интерфейс EventBus и не знает реализацию шины.
type MetricsExporter struct {
	bus        EventBus
	dispatcher *Dispatcher
	bridge     *Bridge
	quit       chan struct{}
	done       chan struct{}

	published prometheus.Counter
	consumed  prometheus.Counter
	dropped   prometheus.Counter
	inflight  prometheus.Gauge
	local     prometheus.Counter
}

// NewMetricsExporter создаёт экспортер и регистрирует метрики в reg, но не запускает опрос.
func NewMetricsExporter(reg prometheus.Registerer, bus EventBus, dispatcher *Dispatcher, bridge *Bridge) *MetricsExporter {
	me := &MetricsExporter{
		bus:        bus,
		dispatcher: dispatcher,
		bridge:     bridge,
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
		published: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "eventbus",
			Name:      "messages_published_total",
			Help:      "Общее число опубликованных сообщений.",
		}),
		consumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "eventbus",
			Name:      "messages_consumed_total",
			Help:      "Общее число доставленных сообщений подписчикам.",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "eventbus",
			Name:      "messages_dropped_total",
			Help:      "Сообщений, отброшенных из-за ошибок или ограничения back-pressure.",
		}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "eventbus",
			Name:      "messages_inflight",
			Help:      "Количество сообщений, находящихся в очереди (не доставленных).",
		}),
		local: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "eventbus",
			Name:      "dispatcher_published_total",
			Help:      "Событий, опубликованных через локальный диспетчер.",
		}),
	}

	reg.MustRegister(me.published, me.consumed, me.dropped, me.inflight, me.local)
	return me
}

// Start запускает периодическое обновление метрик
func (m *MetricsExporter) Start(interval time.Duration) {
	go m.loop(interval)
}

// Stop останавливает обновление метрик.
func (m *MetricsExporter) Stop() {
	close(m.quit)
	<-m.done
}

func (m *MetricsExporter) loop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	defer close(m.done)

	// Для коррекции Counter храним прошлое значение и прибавляем дельту.
	var prev Stats
	var prevLocal, prevBridgeDrop uint64

	for {
		select {
		case <-ticker.C:
			stats := m.bus.Metrics()
			m.published.Add(float64(stats.Published - prev.Published))
			m.consumed.Add(float64(stats.Consumed - prev.Consumed))
			m.dropped.Add(float64(stats.Dropped - prev.Dropped))
			m.inflight.Set(float64(stats.InFlight))
			prev = stats

			if m.dispatcher != nil {
				local := m.dispatcher.Stats().Published
				m.local.Add(float64(local - prevLocal))
				prevLocal = local
			}
			if m.bridge != nil {
				dropped := m.bridge.Dropped()
				m.dropped.Add(float64(dropped - prevBridgeDrop))
				prevBridgeDrop = dropped
			}
		case <-m.quit:
			return
		}
	}
}
