// Package cache содержит производную от реплики проекцию для чтения:
// поиск по короткому коду и постраничный обход в порядке вставки.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/iudanet/linkmesh/internal/models"
	"github.com/iudanet/linkmesh/internal/replica"
)

// CodeCollision две разные записи получили один короткий код.
// Код остается за записью, созданной раньше в порядке Лампорта.
type CodeCollision struct {
	DetectedAt time.Time `json:"detected_at"`
	ShortCode  string    `json:"short_code"`
	WinnerID   string    `json:"winner_id"`
	LoserID    string    `json:"loser_id"`
}

// Loader возвращает полный снимок реплики
type Loader func(ctx context.Context) ([]*models.ReplicaEntry, error)

// Cache проекция реплики. Каждое изменение применяется целиком под
// блокировкой записи, поэтому читатель не видит частично примененных изменений.
type Cache struct {
	logger     *slog.Logger
	loader     Loader
	now        func() time.Time
	entries    map[string]*models.ReplicaEntry // id -> запись
	byCode     map[string][]*models.ReplicaEntry
	seen       map[string]struct{} // уже учтенные коллизии
	order      []string            // id в порядке вставки
	collisions []CodeCollision
	changed    chan struct{} // закрывается и заменяется после каждого изменения
	mu         sync.RWMutex
}

// New создает пустой кеш. loader используется для перестроения после ChangeResync.
func New(logger *slog.Logger, loader Loader) *Cache {
	return &Cache{
		logger:  logger,
		loader:  loader,
		now:     time.Now,
		entries: make(map[string]*models.ReplicaEntry),
		byCode:  make(map[string][]*models.ReplicaEntry),
		seen:    make(map[string]struct{}),
		changed: make(chan struct{}),
	}
}

// Load добавляет записи, которых еще нет в кеше. Уже известные записи не
// трогает: изменения из ленты могут быть новее снимка.
func (c *Cache) Load(entries []*models.ReplicaEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, e := range entries {
		if _, ok := c.entries[e.ID]; ok {
			continue
		}
		c.insertLocked(e.Clone())
	}
	c.notifyLocked()
}

// Rebuild перестраивает кеш по снимку entries в порядке снимка.
// Снимок может быть старше кеша, поэтому кеш никогда не откатывается назад:
// записи, которых нет в снимке, сохраняются после записей снимка, а для
// записи, известной и кешу, и снимку, остается победитель конфликта по ID.
func (c *Cache) Rebuild(entries []*models.ReplicaEntry) {
	fresh := &Cache{
		logger:  c.logger,
		now:     c.now,
		entries: make(map[string]*models.ReplicaEntry, len(entries)),
		byCode:  make(map[string][]*models.ReplicaEntry, len(entries)),
		order:   make([]string, 0, len(entries)),
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Уже учтенные коллизии не должны повторно попадать в журнал
	fresh.seen = c.seen
	fresh.collisions = c.collisions
	for _, e := range entries {
		if _, ok := fresh.entries[e.ID]; ok {
			continue
		}
		e = e.Clone()
		if cached, ok := c.entries[e.ID]; ok && !cached.Equal(e) && cached.Wins(e) {
			e = cached
		}
		fresh.insertLocked(e)
	}
	for _, id := range c.order {
		if _, ok := fresh.entries[id]; ok {
			continue
		}
		fresh.insertLocked(c.entries[id])
	}

	c.entries = fresh.entries
	c.byCode = fresh.byCode
	c.order = fresh.order
	c.collisions = fresh.collisions
	c.seen = fresh.seen
	c.notifyLocked()
}

// Reload перечитывает реплику через loader и перестраивает кеш
func (c *Cache) Reload(ctx context.Context) error {
	if c.loader == nil {
		return fmt.Errorf("cache loader is not configured")
	}

	entries, err := c.loader(ctx)
	if err != nil {
		return fmt.Errorf("failed to reload cache: %w", err)
	}

	c.Rebuild(entries)
	c.logger.Info("Cache rebuilt from replica", "records", len(entries))
	return nil
}

// Apply применяет изменение из ленты реплики. Повторное применение
// того же изменения ничего не меняет.
func (c *Cache) Apply(ctx context.Context, change replica.Change) error {
	switch change.Kind {
	case replica.ChangeResync:
		return c.Reload(ctx)
	case replica.ChangeInserted, replica.ChangeReplaced:
		if change.Entry == nil {
			return fmt.Errorf("change %s without entry", change.Kind)
		}
	default:
		return fmt.Errorf("unknown change kind %d", change.Kind)
	}

	entry := change.Entry.Clone()

	c.mu.Lock()
	defer c.mu.Unlock()

	existing, ok := c.entries[entry.ID]
	switch {
	case !ok:
		c.insertLocked(entry)
	case existing.Equal(entry):
		// уже применено
	default:
		c.replaceLocked(existing, entry)
	}
	c.notifyLocked()
	return nil
}

func (c *Cache) notifyLocked() {
	close(c.changed)
	c.changed = make(chan struct{})
}

// WaitFor ждет, пока запись с ID id появится в кеше
func (c *Cache) WaitFor(ctx context.Context, id string) error {
	for {
		c.mu.RLock()
		_, ok := c.entries[id]
		changed := c.changed
		c.mu.RUnlock()

		if ok {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("entry %s not applied to cache: %w", id, ctx.Err())
		case <-changed:
		}
	}
}

func (c *Cache) insertLocked(e *models.ReplicaEntry) {
	c.entries[e.ID] = e
	c.order = append(c.order, e.ID)
	c.addCodeLocked(e)
}

// replaceLocked сохраняет позицию записи в порядке вставки
func (c *Cache) replaceLocked(old, e *models.ReplicaEntry) {
	c.removeCodeLocked(old)
	c.entries[e.ID] = e
	c.addCodeLocked(e)
}

func (c *Cache) addCodeLocked(e *models.ReplicaEntry) {
	holders := c.byCode[e.ShortCode]

	pos := len(holders)
	for i, h := range holders {
		if e.WrittenBefore(h) {
			pos = i
			break
		}
	}
	holders = append(holders, nil)
	copy(holders[pos+1:], holders[pos:])
	holders[pos] = e
	c.byCode[e.ShortCode] = holders

	if len(holders) > 1 {
		winner := holders[0]
		for _, h := range holders[1:] {
			c.recordCollisionLocked(e.ShortCode, winner.ID, h.ID)
		}
	}
}

func (c *Cache) removeCodeLocked(e *models.ReplicaEntry) {
	holders := c.byCode[e.ShortCode]
	for i, h := range holders {
		if h.ID == e.ID {
			holders = append(holders[:i], holders[i+1:]...)
			break
		}
	}
	if len(holders) == 0 {
		delete(c.byCode, e.ShortCode)
		return
	}
	c.byCode[e.ShortCode] = holders
}

func (c *Cache) recordCollisionLocked(code, winnerID, loserID string) {
	key := code + "\x00" + winnerID + "\x00" + loserID
	if _, ok := c.seen[key]; ok {
		return
	}
	c.seen[key] = struct{}{}

	c.collisions = append(c.collisions, CodeCollision{
		ShortCode:  code,
		WinnerID:   winnerID,
		LoserID:    loserID,
		DetectedAt: c.now().UTC(),
	})
	c.logger.Warn("Short code collision, first writer keeps the code",
		"short_code", code,
		"winner_id", winnerID,
		"loser_id", loserID)
}

// Lookup ищет запись по короткому коду
func (c *Cache) Lookup(code string) (models.Redirect, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	holders := c.byCode[code]
	if len(holders) == 0 {
		return models.Redirect{}, false
	}
	return holders[0].Redirect, true
}

// Get ищет запись по ID
func (c *Cache) Get(id string) (models.Redirect, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[id]
	if !ok {
		return models.Redirect{}, false
	}
	return e.Redirect, true
}

// Page возвращает limit записей, прошедших фильтр match, начиная с offset,
// и общее число подходящих записей. match == nil пропускает все записи.
func (c *Cache) Page(offset, limit int, match func(models.Redirect) bool) ([]models.Redirect, int) {
	if offset < 0 {
		offset = 0
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	page := make([]models.Redirect, 0, max(0, min(limit, len(c.order))))
	total := 0
	for _, id := range c.order {
		r := c.entries[id].Redirect
		if match != nil && !match(r) {
			continue
		}
		if total >= offset && len(page) < limit {
			page = append(page, r)
		}
		total++
	}
	return page, total
}

// Len возвращает число записей
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.order)
}

// Collisions возвращает копию журнала коллизий коротких кодов
func (c *Cache) Collisions() []CodeCollision {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]CodeCollision, len(c.collisions))
	copy(out, c.collisions)
	return out
}

// CollisionCount возвращает число обнаруженных коллизий
func (c *Cache) CollisionCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.collisions)
}
