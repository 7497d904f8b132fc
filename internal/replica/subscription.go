package replica

import (
	"sync"
	"sync/atomic"

	"github.com/iudanet/linkmesh/internal/models"
)

// ChangeKind тип изменения в ленте реплики
type ChangeKind int

const (
	// ChangeInserted новая запись добавлена в реплику
	ChangeInserted ChangeKind = iota + 1
	// ChangeReplaced конфликт по ID разрешен в пользу новой записи
	ChangeReplaced
	// ChangeResync подписчик отстал, часть изменений выброшена;
	// состояние нужно перечитать через GetAll
	ChangeResync
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeInserted:
		return "inserted"
	case ChangeReplaced:
		return "replaced"
	case ChangeResync:
		return "resync"
	default:
		return "unknown"
	}
}

// Change одно изменение реплики, доставляемое подписчикам в порядке применения.
type Change struct {
	Entry    *models.ReplicaEntry // Entry запись после изменения (nil для ChangeResync)
	Previous *models.ReplicaEntry // Previous вытесненная запись (только для ChangeReplaced)
	Source   string               // Source узел, от которого пришла запись (свой nodeID для локальных)
	Kind     ChangeKind
}

// Subscription подписка на ленту изменений.
// Каждая подписка обслуживается своей горутиной, поэтому медленный подписчик
// не задерживает применение изменений к реплике. Очередь ограничена: при
// переполнении накопленные изменения выбрасываются и вместо них доставляется
// один ChangeResync.
type Subscription struct {
	fn      func(Change)
	wake    chan struct{}
	done    chan struct{}
	stopped chan struct{}
	unsub   func(*Subscription)
	queue   []Change
	limit   int
	dropped atomic.Int64
	mu      sync.Mutex
	once    sync.Once
	closed  bool
}

func newSubscription(fn func(Change), limit int, unsub func(*Subscription)) *Subscription {
	s := &Subscription{
		fn:      fn,
		limit:   limit,
		unsub:   unsub,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go s.run()
	return s
}

// enqueue никогда не блокирует вызывающего
func (s *Subscription) enqueue(c Change) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}

	if len(s.queue) >= s.limit {
		s.dropped.Add(int64(len(s.queue)))
		s.queue = append(s.queue[:0], Change{Kind: ChangeResync})
	}
	s.queue = append(s.queue, c)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Subscription) run() {
	defer close(s.stopped)

	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
		}

		s.mu.Lock()
		batch := s.queue
		s.queue = nil
		s.mu.Unlock()

		for _, c := range batch {
			select {
			case <-s.done:
				return
			default:
			}
			s.fn(c)
		}
	}
}

// Dropped возвращает число изменений, выброшенных из-за переполнения очереди.
func (s *Subscription) Dropped() int64 {
	return s.dropped.Load()
}

// Close отменяет подписку и ждет завершения текущего вызова callback.
// Нельзя вызывать из самого callback.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.queue = nil
		s.mu.Unlock()

		s.unsub(s)
		close(s.done)
	})
	<-s.stopped
}
