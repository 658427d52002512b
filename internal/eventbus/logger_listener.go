package eventbus

import (
	"context"

	"github.com/annel0/voxel-stream/internal/logging"
)

// StartLoggingListener подписывается на все события шины и пишет их в лог.
// Функция неблокирующая.
func StartLoggingListener(bus EventBus, logger *logging.Logger) (Subscription, error) {
	sub, err := bus.Subscribe(context.Background(), Filter{}, func(ctx context.Context, ev *Envelope) {
		if !logger.Enabled(logging.TRACE) {
			return
		}
		decoded, err := DecodeEnvelope(ev)
		if err != nil {
			logger.Warn("[EventBus] %s %s: %v", ev.ID, ev.EventType, err)
			return
		}
		logger.Trace("[EventBus] %s %s src=%s prio=%d size=%dB", ev.ID, decoded, ev.Source, ev.Priority, len(ev.Payload))
	})
	if err != nil {
		return nil, err
	}
	logger.Info("🪵 LoggingListener: подписка на все события активирована")
	return sub, nil
}
