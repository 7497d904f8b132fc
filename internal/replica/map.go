// Package replica реализует реплицируемое множество редиректов узла:
// локальные записи, слияние удаленных записей и упорядоченную ленту изменений.
//
// Множество растет только вверх (grow-only), значения неизменяемы после создания.
// Конфликт возможен лишь при повторном использовании ID, что схема "nodeID:seq"
// практически исключает; если он все же случился, победитель выбирается
// детерминированно (models.ReplicaEntry.Wins), а проигравшая запись логируется.
// Полноценная семантика last-writer-wins сознательно не реализуется.
package replica

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/iudanet/linkmesh/internal/crdt"
	"github.com/iudanet/linkmesh/internal/models"
	"github.com/iudanet/linkmesh/internal/storage"
)

var (
	// ErrDuplicateID нарушена уникальность ID при локальной записи.
	// Означает поломку схемы генерации ID и не повторяется.
	ErrDuplicateID = errors.New("duplicate redirect id")

	// ErrInvalidEntry удаленная запись не прошла валидацию
	ErrInvalidEntry = errors.New("invalid replica entry")
)

// MergeResult итог слияния удаленной записи
type MergeResult int

const (
	// MergeInserted запись отсутствовала и была добавлена
	MergeInserted MergeResult = iota + 1
	// MergeUnchanged такая же запись уже есть
	MergeUnchanged
	// MergeReplaced конфликт по ID, удаленная запись победила
	MergeReplaced
	// MergeDiscarded конфликт по ID, локальная запись победила
	MergeDiscarded
	// MergeRejected запись невалидна и не применялась
	MergeRejected
)

func (r MergeResult) String() string {
	switch r {
	case MergeInserted:
		return "inserted"
	case MergeUnchanged:
		return "unchanged"
	case MergeReplaced:
		return "replaced"
	case MergeDiscarded:
		return "discarded"
	case MergeRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Store хранилище, на котором стоит реплика
type Store interface {
	storage.ReplicaStorage
	crdt.SequenceSource
}

// NewRecord параметры новой локальной записи
type NewRecord struct {
	ShortCode      string
	DestinationURL string
	Description    string
}

// Option настраивает Map
type Option func(*Map)

// WithSubscriberBuffer задает размер очереди каждого подписчика
func WithSubscriberBuffer(n int) Option {
	return func(m *Map) {
		if n > 0 {
			m.bufferSize = n
		}
	}
}

// WithClock задает источник времени для CreatedAt (для тестов)
func WithClock(now func() time.Time) Option {
	return func(m *Map) {
		m.now = now
	}
}

const defaultSubscriberBuffer = 1024

// Map реплика узла. Мутации (Create, Merge) выполняются в одной
// критической секции; чтения идут напрямую в хранилище и не ждут писателя.
type Map struct {
	store      Store
	ids        *crdt.IDGenerator
	clock      *crdt.LamportClock
	logger     *slog.Logger
	now        func() time.Time
	subs       map[*Subscription]struct{}
	nodeID     string
	bufferSize int
	conflicts  atomic.Int64
	mu         sync.Mutex // единственный писатель
	subsMu     sync.Mutex
}

// Open создает реплику поверх store и восстанавливает часы Лампорта
// по максимальной метке в хранилище.
func Open(ctx context.Context, store Store, nodeID string, logger *slog.Logger, opts ...Option) (*Map, error) {
	if nodeID == "" {
		return nil, fmt.Errorf("node id is required")
	}

	m := &Map{
		store:      store,
		ids:        crdt.NewIDGenerator(nodeID, store),
		clock:      crdt.NewLamportClock(),
		logger:     logger,
		now:        time.Now,
		subs:       make(map[*Subscription]struct{}),
		nodeID:     nodeID,
		bufferSize: defaultSubscriberBuffer,
	}
	for _, opt := range opts {
		opt(m)
	}

	maxTimestamp, err := store.GetMaxTimestamp(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to restore clock: %w", err)
	}
	m.clock.Restore(maxTimestamp)

	m.logger.Info("Replica opened", "node_id", nodeID, "clock", maxTimestamp)

	return m, nil
}

// NodeID возвращает идентификатор узла реплики
func (m *Map) NodeID() string {
	return m.nodeID
}

// Create выдает новой записи ID и метку Лампорта и сохраняет ее.
// Возвращает запись после того, как она надежно записана локально.
func (m *Map) Create(ctx context.Context, rec NewRecord) (*models.ReplicaEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, err := m.ids.NewID(ctx)
	if err != nil {
		return nil, err
	}

	entry := &models.ReplicaEntry{
		Redirect: models.Redirect{
			ID:             id,
			ShortCode:      rec.ShortCode,
			DestinationURL: rec.DestinationURL,
			Description:    rec.Description,
			CreatedAt:      m.now().UTC(),
		},
		Meta: models.WriteMeta{
			NodeID:    m.nodeID,
			Timestamp: m.clock.Tick(),
		},
	}

	if err := m.insertLocked(ctx, entry); err != nil {
		return nil, err
	}

	return entry.Clone(), nil
}

// insertLocked сохраняет новую запись. ErrDuplicateID означает, что схема
// выдачи ID нарушена (например, узел поднят на старой копии хранилища).
func (m *Map) insertLocked(ctx context.Context, entry *models.ReplicaEntry) error {
	if err := validateEntry(entry); err != nil {
		return err
	}

	_, err := m.store.GetEntry(ctx, entry.ID)
	switch {
	case err == nil:
		m.logger.Error("Duplicate id on local write, id scheme violated", "entry_id", entry.ID)
		return fmt.Errorf("%w: %s", ErrDuplicateID, entry.ID)
	case !errors.Is(err, storage.ErrEntryNotFound):
		return fmt.Errorf("failed to check existing entry: %w", err)
	}

	if err := m.store.SaveEntry(ctx, entry); err != nil {
		return fmt.Errorf("failed to save entry: %w", err)
	}

	m.publish(Change{Kind: ChangeInserted, Entry: entry, Source: m.nodeID})
	return nil
}

// Merge применяет запись, пришедшую от узла source. Операция идемпотентна:
// повторное слияние той же записи ничего не меняет.
func (m *Map) Merge(ctx context.Context, entry *models.ReplicaEntry, source string) (MergeResult, error) {
	if err := validateEntry(entry); err != nil {
		return MergeRejected, err
	}
	entry = entry.Clone()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.clock.Observe(entry.Meta.Timestamp)

	existing, err := m.store.GetEntry(ctx, entry.ID)
	if err != nil {
		if !errors.Is(err, storage.ErrEntryNotFound) {
			return 0, fmt.Errorf("failed to get existing entry: %w", err)
		}

		// Записи нет - просто сохраняем
		if err := m.store.SaveEntry(ctx, entry); err != nil {
			return 0, fmt.Errorf("failed to save entry: %w", err)
		}
		m.logger.Debug("Merged new entry", "entry_id", entry.ID, "source", source)
		m.publish(Change{Kind: ChangeInserted, Entry: entry, Source: source})
		return MergeInserted, nil
	}

	if existing.Equal(entry) {
		return MergeUnchanged, nil
	}

	// Разные записи с одним ID: выбираем победителя детерминированно
	m.conflicts.Add(1)

	if !entry.Wins(existing) {
		m.logger.Warn("Write conflict resolved, remote value discarded",
			"entry_id", entry.ID,
			"source", source,
			"kept_node", existing.Meta.NodeID,
			"discarded_node", entry.Meta.NodeID,
			"discarded_short_code", entry.ShortCode)
		return MergeDiscarded, nil
	}

	if err := m.store.SaveEntry(ctx, entry); err != nil {
		return 0, fmt.Errorf("failed to save entry: %w", err)
	}

	m.logger.Warn("Write conflict resolved, local value discarded",
		"entry_id", entry.ID,
		"source", source,
		"kept_node", entry.Meta.NodeID,
		"discarded_node", existing.Meta.NodeID,
		"discarded_short_code", existing.ShortCode)

	m.publish(Change{Kind: ChangeReplaced, Entry: entry, Previous: existing, Source: source})
	return MergeReplaced, nil
}

// validateEntry проверяет поля записи и формат ID (nodeID:seq)
func validateEntry(e *models.ReplicaEntry) error {
	if err := e.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidEntry, err)
	}
	if _, _, err := crdt.ParseID(e.ID); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidEntry, err)
	}
	return nil
}

// Get возвращает запись по ID
func (m *Map) Get(ctx context.Context, id string) (*models.ReplicaEntry, error) {
	return m.store.GetEntry(ctx, id)
}

// GetAll возвращает согласованный снимок всех записей в порядке первой вставки
func (m *Map) GetAll(ctx context.Context) ([]*models.ReplicaEntry, error) {
	entries, err := m.store.GetAllEntries(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get replica snapshot: %w", err)
	}
	return entries, nil
}

// Digest возвращает краткое описание реплики: ID -> отпечаток записи
func (m *Map) Digest(ctx context.Context) (map[string]string, error) {
	entries, err := m.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	digest := make(map[string]string, len(entries))
	for _, e := range entries {
		digest[e.ID] = e.Fingerprint()
	}
	return digest, nil
}

// Conflicts возвращает число разрешенных конфликтов по ID
func (m *Map) Conflicts() int64 {
	return m.conflicts.Load()
}

// Subscribe регистрирует callback, вызываемый один раз на каждое принятое изменение
// в порядке применения. Подписки независимы друг от друга.
func (m *Map) Subscribe(fn func(Change)) *Subscription {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()

	sub := newSubscription(fn, m.bufferSize, m.unsubscribe)
	m.subs[sub] = struct{}{}
	return sub
}

func (m *Map) unsubscribe(sub *Subscription) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()

	delete(m.subs, sub)
}

// publish вызывается под m.mu, поэтому порядок в очередях совпадает с порядком применения
func (m *Map) publish(c Change) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()

	for sub := range m.subs {
		sub.enqueue(c)
	}
}
