package app

import (
	"github.com/annel0/voxel-stream/internal/eventbus"
	"github.com/annel0/voxel-stream/internal/logging"
	"github.com/annel0/voxel-stream/internal/observability"
	"go.opentelemetry.io/otel/trace"
)

// Context зависимости времени выполнения, которые компоненты получают явно при создании:
// логгер, публикатор событий, трейсер и метрики.
type Context struct {
	Logger  *logging.Logger
	Events  eventbus.Publisher
	Tracer  trace.Tracer
	Metrics observability.Recorder
}

// New собирает контекст. Отсутствующие зависимости заменяются пустыми реализациями.
func New(logger *logging.Logger, events eventbus.Publisher, tp trace.TracerProvider, metrics observability.Recorder) *Context {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if events == nil {
		events = eventbus.NopPublisher{}
	}
	if tp == nil {
		tp = observability.NoopTracerProvider()
	}
	if metrics == nil {
		metrics = observability.NopRecorder{}
	}
	return &Context{
		Logger:  logger,
		Events:  events,
		Tracer:  tp.Tracer(observability.InstrumentationName),
		Metrics: metrics,
	}
}

// Nop контекст без вывода, для тестов
func Nop() *Context {
	return New(nil, nil, nil, nil)
}

// Named возвращает копию контекста с логгером подкомпонента
func (c *Context) Named(component string) *Context {
	cp := *c
	cp.Logger = c.Logger.With(component)
	return &cp
}

// WithEvents возвращает копию контекста с другим публикатором
func (c *Context) WithEvents(events eventbus.Publisher) *Context {
	cp := *c
	cp.Events = events
	return &cp
}
