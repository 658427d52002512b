package eventbus

import (
	"context"
	"sync"
	"sync/atomic"
)

// Observer получает события из Dispatcher
type Observer interface {
	NotifyOf(ctx context.Context, ev Event)
}

// ObserverFunc адаптер функции к Observer
type ObserverFunc func(ctx context.Context, ev Event)

func (f ObserverFunc) NotifyOf(ctx context.Context, ev Event) { f(ctx, ev) }

// Publisher возможность публиковать события, передается компонентам явно
type Publisher interface {
	Publish(ctx context.Context, ev Event, channels ...Channel)
}

// DispatcherStats счетчики диспетчера
type DispatcherStats struct {
	Published uint64
	Delivered uint64
}

// Dispatcher синхронная рассылка событий по каналам.
// Доставка идет в горутине публикующего, блокировка на время вызова обработчиков не держится.
type Dispatcher struct {
	mu       sync.RWMutex
	nextID   int
	channels map[Channel]map[int]Observer

	published atomic.Uint64
	delivered atomic.Uint64
}

// NewDispatcher создает пустой диспетчер
func NewDispatcher() *Dispatcher {
	return &Dispatcher{channels: make(map[Channel]map[int]Observer)}
}

// Subscribe подписывает наблюдателя на каналы. Без каналов подписка идет на Basic.
func (d *Dispatcher) Subscribe(o Observer, channels ...Channel) Subscription {
	if len(channels) == 0 {
		channels = []Channel{Basic}
	}

	d.mu.Lock()
	id := d.nextID
	d.nextID++
	for _, ch := range channels {
		subs, ok := d.channels[ch]
		if !ok {
			subs = make(map[int]Observer)
			d.channels[ch] = subs
		}
		subs[id] = o
	}
	d.mu.Unlock()

	return &dispatcherSub{d: d, id: id}
}

// Publish доставляет событие наблюдателям указанных каналов.
// Без каналов событие получают все наблюдатели. Каждый наблюдатель получает событие не больше одного раза.
func (d *Dispatcher) Publish(ctx context.Context, ev Event, channels ...Channel) {
	d.published.Add(1)

	// Копируем получателей под блокировкой, вызываем без нее
	d.mu.RLock()
	targets := make(map[int]Observer)
	if len(channels) == 0 {
		for _, subs := range d.channels {
			for id, o := range subs {
				targets[id] = o
			}
		}
	} else {
		for _, ch := range channels {
			for id, o := range d.channels[ch] {
				targets[id] = o
			}
		}
	}
	d.mu.RUnlock()

	for _, o := range targets {
		o.NotifyOf(ctx, ev)
		d.delivered.Add(1)
	}
}

// Stats возвращает счетчики
func (d *Dispatcher) Stats() DispatcherStats {
	return DispatcherStats{Published: d.published.Load(), Delivered: d.delivered.Load()}
}

type dispatcherSub struct {
	d    *Dispatcher
	id   int
	once sync.Once
}

func (s *dispatcherSub) Unsubscribe() {
	s.once.Do(func() {
		s.d.mu.Lock()
		for _, subs := range s.d.channels {
			delete(subs, s.id)
		}
		s.d.mu.Unlock()
	})
}

// NopPublisher публикатор, который ничего не делает
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event, ...Channel) {}

var _ Publisher = (*Dispatcher)(nil)
