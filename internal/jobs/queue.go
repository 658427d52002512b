// Package jobs содержит обобщенную приоритетную очередь с ограниченным пулом воркеров.
//
// Производители вызывают Enqueue/Dequeue из любых горутин. Единственный потребитель,
// цикл обработки, владеет живой очередью и счетчиком запущенных воркеров: он забирает
// элементы из неограниченного входного буфера, сортирует их по приоритету и запускает
// воркеры, пока есть свободные слоты и элементы готовы.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/annel0/voxel-stream/internal/app"
	"github.com/annel0/voxel-stream/internal/observability"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Значения по умолчанию
const (
	DefaultMaxConcurrency = 20
	DefaultRetryInterval  = 10 * time.Millisecond
)

// ErrWorkerPanic оборачивает панику внутри воркера
var ErrWorkerPanic = errors.New("паника в воркере")

// Config описывает поведение очереди. Обязательны Name и Work.
type Config[T comparable] struct {
	Name           string
	MaxConcurrency int
	RetryInterval  time.Duration // Период перепроверки готовности

	// Work выполняет задачу. ctx отменяется в KillAll.
	Work func(ctx context.Context, item T) error
	// IsValid постоянная проверка: false выбрасывает элемент и вызывает OnInvalid
	IsValid func(item T) bool
	// IsReady временная проверка: false оставляет элемент до следующего прохода
	IsReady func(item T) bool
	// OnInvalid вызывается в цикле обработки для выброшенного элемента
	OnInvalid func(item T)
	// Priority меньше = раньше. nil сохраняет порядок поступления.
	Priority func(item T) float64
}

// token отмена для пары (элемент, поколение постановки)
type token struct {
	gen      uint64
	canceled atomic.Bool
}

type entry[T comparable] struct {
	item T
	tok  *token
}

type result[T comparable] struct {
	item T
	err  error
	took time.Duration
}

// Stats счетчики очереди
type Stats struct {
	Queued    int    `json:"queued"`
	Running   int    `json:"running"`
	Enqueued  uint64 `json:"enqueued"`
	Started   uint64 `json:"started"`
	Completed uint64 `json:"completed"`
	Failed    uint64 `json:"failed"`
	Canceled  uint64 `json:"canceled"`
	Invalid   uint64 `json:"invalid"`
	Killed    uint64 `json:"killed"`
}

// Snapshot элементы, ожидающие запуска и выполняющиеся сейчас
type Snapshot[T comparable] struct {
	Queued  []T
	Running []T
}

// Queue приоритетная очередь с пулом воркеров
type Queue[T comparable] struct {
	cfg Config[T]
	app *app.Context

	killCtx context.Context
	kill    context.CancelFunc

	mu      sync.Mutex
	pending map[T]*token   // Поставлены и еще не запущены
	running map[T]struct{}  // Выполняются; пишет только цикл
	inbox   []entry[T]      // Поставлены, но еще не забраны циклом
	gen     uint64
	killed  bool

	wake       chan struct{} // Сигнал циклу о новых элементах в inbox
	done       chan result[T]
	loopActive atomic.Bool
	loopDone   chan struct{} // Закрывается при выходе текущего цикла, под mu

	enqueued  atomic.Uint64
	started   atomic.Uint64
	completed atomic.Uint64
	failed    atomic.Uint64
	canceled  atomic.Uint64
	invalid   atomic.Uint64
	dropped   atomic.Uint64
}

// New создает очередь. Цикл обработки стартует при первой постановке.
func New[T comparable](actx *app.Context, cfg Config[T]) *Queue[T] {
	if cfg.Work == nil {
		panic("jobs: Config.Work обязателен")
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = DefaultMaxConcurrency
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = DefaultRetryInterval
	}
	if actx == nil {
		actx = app.Nop()
	}

	killCtx, kill := context.WithCancel(context.Background())
	return &Queue[T]{
		cfg:      cfg,
		app:      actx,
		killCtx:  killCtx,
		kill:     kill,
		pending:  make(map[T]*token),
		running:  make(map[T]struct{}),
		wake:     make(chan struct{}, 1),
		done:     make(chan result[T], cfg.MaxConcurrency),
	}
}

// Name имя очереди
func (q *Queue[T]) Name() string {
	return q.cfg.Name
}

// MaxConcurrency предел одновременно работающих воркеров
func (q *Queue[T]) MaxConcurrency() int {
	return q.cfg.MaxConcurrency
}

// Enqueue ставит элементы в очередь. Элемент с живой постановкой пропускается,
// отмененный получает новый токен. Безопасно из любой горутины и никогда не блокируется
// на размере партии.
func (q *Queue[T]) Enqueue(items ...T) {
	if len(items) == 0 {
		return
	}

	q.mu.Lock()
	if q.killed {
		q.mu.Unlock()
		return
	}
	staged := 0
	for _, item := range items {
		if tok, ok := q.pending[item]; ok && !tok.canceled.Load() {
			continue
		}
		q.gen++
		tok := &token{gen: q.gen}
		q.pending[item] = tok
		q.inbox = append(q.inbox, entry[T]{item: item, tok: tok})
		staged++
	}
	q.mu.Unlock()

	if staged == 0 {
		return
	}
	q.enqueued.Add(uint64(staged))

	select {
	case q.wake <- struct{}{}:
	default:
	}
	q.ensureLoop()
}

// Dequeue отменяет ожидающие запуска элементы. Запущенные воркеры не прерываются.
func (q *Queue[T]) Dequeue(items ...T) {
	if len(items) == 0 {
		return
	}
	q.mu.Lock()
	for _, item := range items {
		if tok, ok := q.pending[item]; ok {
			tok.canceled.Store(true)
			delete(q.pending, item)
		}
	}
	q.mu.Unlock()
}

// IsQueued true, если элемент ждет запуска
func (q *Queue[T]) IsQueued(item T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.pending[item]
	return ok
}

// IsRunning true, если для элемента работает воркер
func (q *Queue[T]) IsRunning(item T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.running[item]
	return ok
}

// KillAll прекращает прием работы, бросает ожидающие элементы
// и отменяет контекст запущенных воркеров.
func (q *Queue[T]) KillAll() {
	q.mu.Lock()
	if q.killed {
		q.mu.Unlock()
		return
	}
	q.killed = true
	abandoned := len(q.pending)
	for item, tok := range q.pending {
		tok.canceled.Store(true)
		delete(q.pending, item)
	}
	q.inbox = nil
	q.mu.Unlock()

	q.dropped.Add(uint64(abandoned))
	q.kill()
}

// Wait ждет выхода цикла обработки: после KillAll или когда работа кончилась
func (q *Queue[T]) Wait(ctx context.Context) error {
	for {
		q.mu.Lock()
		done := q.loopDone
		q.mu.Unlock()
		if done == nil {
			return nil
		}

		select {
		case <-done:
		case <-ctx.Done():
			return fmt.Errorf("очередь %s не остановилась: %w", q.cfg.Name, ctx.Err())
		}
	}
}

// Stats возвращает счетчики очереди
func (q *Queue[T]) Stats() Stats {
	q.mu.Lock()
	queued, running := len(q.pending), len(q.running)
	q.mu.Unlock()

	return Stats{
		Queued:    queued,
		Running:   running,
		Enqueued:  q.enqueued.Load(),
		Started:   q.started.Load(),
		Completed: q.completed.Load(),
		Failed:    q.failed.Load(),
		Canceled:  q.canceled.Load(),
		Invalid:   q.invalid.Load(),
		Killed:    q.dropped.Load(),
	}
}

// Snapshot возвращает ожидающие и выполняющиеся элементы
func (q *Queue[T]) Snapshot() Snapshot[T] {
	q.mu.Lock()
	defer q.mu.Unlock()

	s := Snapshot[T]{
		Queued:  make([]T, 0, len(q.pending)),
		Running: make([]T, 0, len(q.running)),
	}
	for item := range q.pending {
		s.Queued = append(s.Queued, item)
	}
	for item := range q.running {
		s.Running = append(s.Running, item)
	}
	return s
}

// ensureLoop запускает цикл обработки. Проигравший CAS просто выходит.
func (q *Queue[T]) ensureLoop() {
	if !q.loopActive.CompareAndSwap(false, true) {
		return
	}

	q.mu.Lock()
	if q.killed {
		q.loopActive.Store(false)
		q.mu.Unlock()
		return
	}
	done := make(chan struct{})
	q.loopDone = done
	q.mu.Unlock()

	go q.loop(done)
}

func (q *Queue[T]) loop(exited chan struct{}) {
	defer func() {
		q.mu.Lock()
		if q.loopDone == exited {
			q.loopDone = nil
		}
		q.mu.Unlock()
		close(exited)
	}()

	var live []entry[T]
	running := 0
	killC := q.killCtx.Done()
	added := false

	for {
		// (a) Забираем все новое из входного буфера
		if in := q.takeInbox(); len(in) > 0 {
			live = append(live, in...)
			added = true
		}

		if q.killCtx.Err() != nil {
			killC = nil
			for _, e := range live {
				e.tok.canceled.Store(true)
			}
			live = live[:0]
		} else {
			// (b) Пересортировка только после поступления новых элементов
			if added && q.cfg.Priority != nil {
				live = q.sortByPriority(live)
			}
			added = false
			// (c) Один проход по живой очереди
			live, running = q.sweep(live, running)
		}

		q.app.Metrics.ObserveQueue(q.cfg.Name, len(live), running)

		if len(live) == 0 && running == 0 {
			q.loopActive.Store(false)
			// Постановка могла успеть между опустошением буфера и сбросом флага
			if q.inboxLen() > 0 && q.killCtx.Err() == nil && q.loopActive.CompareAndSwap(false, true) {
				continue
			}
			return
		}

		var retry <-chan time.Time
		if len(live) > 0 && running < q.cfg.MaxConcurrency {
			retry = time.After(q.cfg.RetryInterval)
		}

		select {
		case <-q.wake:
		case r := <-q.done:
			running = q.finish(r, running)
		case <-retry:
		case <-killC:
		}
	}
}

// takeInbox забирает все поставленные элементы одним куском
func (q *Queue[T]) takeInbox() []entry[T] {
	q.mu.Lock()
	defer q.mu.Unlock()
	in := q.inbox
	q.inbox = nil
	return in
}

func (q *Queue[T]) inboxLen() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.inbox)
}

func (q *Queue[T]) sortByPriority(live []entry[T]) []entry[T] {
	type keyed struct {
		prio float64
		e    entry[T]
	}
	ks := make([]keyed, len(live))
	for i, e := range live {
		ks[i] = keyed{prio: q.cfg.Priority(e.item), e: e}
	}
	sort.SliceStable(ks, func(i, j int) bool { return ks[i].prio < ks[j].prio })
	for i := range ks {
		live[i] = ks[i].e
	}
	return live
}

// sweep проходит живую очередь один раз. Проверки валидности и готовности
// выполняются, пока есть свободные слоты; остальные элементы ждут следующего прохода.
func (q *Queue[T]) sweep(live []entry[T], running int) ([]entry[T], int) {
	kept := live[:0]
	for _, e := range live {
		if e.tok.canceled.Load() {
			q.canceled.Add(1)
			q.app.Metrics.ObserveDrop(q.cfg.Name, observability.DropCanceled)
			continue
		}
		if running >= q.cfg.MaxConcurrency {
			kept = append(kept, e)
			continue
		}
		if q.cfg.IsValid != nil && !q.cfg.IsValid(e.item) {
			q.dropInvalid(e)
			continue
		}
		if _, busy := q.running[e.item]; busy {
			kept = append(kept, e)
			continue
		}
		if q.cfg.IsReady != nil && !q.cfg.IsReady(e.item) {
			kept = append(kept, e)
			continue
		}
		if !q.start(e) {
			q.canceled.Add(1)
			q.app.Metrics.ObserveDrop(q.cfg.Name, observability.DropCanceled)
			continue
		}
		running++
	}

	// Обнуляем хвост, чтобы не держать ссылки на токены
	for i := len(kept); i < len(live); i++ {
		live[i] = entry[T]{}
	}
	return kept, running
}

func (q *Queue[T]) dropInvalid(e entry[T]) {
	q.mu.Lock()
	if cur, ok := q.pending[e.item]; ok && cur == e.tok {
		delete(q.pending, e.item)
	}
	q.mu.Unlock()

	q.invalid.Add(1)
	q.app.Metrics.ObserveDrop(q.cfg.Name, observability.DropInvalid)
	if q.cfg.OnInvalid != nil {
		q.cfg.OnInvalid(e.item)
	}
}

// start переводит элемент в выполняющиеся. Отмена проверяется под той же блокировкой,
// что и в Dequeue, поэтому отмененный элемент никогда не запускается.
func (q *Queue[T]) start(e entry[T]) bool {
	q.mu.Lock()
	if e.tok.canceled.Load() {
		q.mu.Unlock()
		return false
	}
	if cur, ok := q.pending[e.item]; ok && cur == e.tok {
		delete(q.pending, e.item)
	}
	q.running[e.item] = struct{}{}
	q.mu.Unlock()

	q.started.Add(1)
	go q.runWorker(e.item)
	return true
}

func (q *Queue[T]) finish(r result[T], running int) int {
	logger := q.app.Logger

	q.mu.Lock()
	delete(q.running, r.item)
	q.mu.Unlock()

	outcome := observability.ResultCompleted
	switch {
	case r.err == nil:
		q.completed.Add(1)
	case errors.Is(r.err, ErrWorkerPanic):
		q.failed.Add(1)
		outcome = observability.ResultFailed
		logger.Error("💥 %s: воркер для %v упал: %v", q.cfg.Name, r.item, r.err)
	case errors.Is(r.err, context.Canceled):
		q.failed.Add(1)
		outcome = observability.ResultFailed
	default:
		q.failed.Add(1)
		outcome = observability.ResultFailed
		logger.Warn("⚠️ %s: задача %v завершилась с ошибкой: %v", q.cfg.Name, r.item, r.err)
	}
	q.app.Metrics.ObserveJob(q.cfg.Name, outcome, r.took)
	return running - 1
}

// runWorker выполняет задачу и всегда сообщает циклу о завершении
func (q *Queue[T]) runWorker(item T) {
	began := time.Now()
	err := q.safeWork(item)
	q.done <- result[T]{item: item, err: err, took: time.Since(began)}
}

func (q *Queue[T]) safeWork(item T) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrWorkerPanic, r)
		}
	}()

	ctx, span := q.app.Tracer.Start(q.killCtx, q.cfg.Name+".work")
	defer span.End()
	span.SetAttributes(
		attribute.String("queue", q.cfg.Name),
		attribute.String("item", fmt.Sprint(item)),
	)

	if err = q.cfg.Work(ctx, item); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
