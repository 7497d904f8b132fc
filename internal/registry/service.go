// Package registry единая точка входа для веб-слоя: создание, резолв и
// постраничный просмотр редиректов поверх локальной реплики.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/iudanet/linkmesh/internal/cache"
	"github.com/iudanet/linkmesh/internal/models"
	"github.com/iudanet/linkmesh/internal/replica"
	"github.com/iudanet/linkmesh/internal/validation"
)

var (
	// ErrInvalidInput некорректный адрес назначения или описание
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound короткий код не найден
	ErrNotFound = errors.New("redirect not found")
	// ErrCodeSpaceExhausted все попытки сгенерировать свободный код дали коллизию
	ErrCodeSpaceExhausted = errors.New("no free short code after retries")
)

const (
	DefaultPageSize   = 20
	MaxPageSize       = 100
	DefaultMaxRetries = 5
)

// CodeGenerator источник коротких кодов
type CodeGenerator interface {
	Generate(destination string) (string, error)
	Length() int
	// CollisionProbability вероятность совпадения нового кода с одним из liveEntries
	CollisionProbability(liveEntries int) float64
}

// Stats сводка по реестру узла
type Stats struct {
	NodeID               string  `json:"node_id"`
	Records              int     `json:"records"`
	Collisions           int     `json:"collisions"`
	Conflicts            int64   `json:"conflicts"`
	CodeLength           int     `json:"code_length"`
	CollisionProbability float64 `json:"collision_probability"` // для следующего кода
	FeedDropped          int64   `json:"feed_dropped"`          // изменений ленты, замененных перечитыванием
}

// Option настраивает Service
type Option func(*Service)

// WithMaxRetries задает число повторных генераций кода при коллизии
func WithMaxRetries(n int) Option {
	return func(s *Service) {
		if n >= 0 {
			s.maxRetries = n
		}
	}
}

// Service реестр редиректов узла
type Service struct {
	replica    *replica.Map
	cache      *cache.Cache
	codes      CodeGenerator
	logger     *slog.Logger
	sub        *replica.Subscription
	maxRetries int
	addMu      sync.Mutex // проверка кода и запись выполняются атомарно для узла
}

// New связывает реплику и кеш: подписывает кеш на ленту изменений и
// заполняет его текущим снимком реплики. Подписка оформляется до чтения
// снимка, поэтому ни одно изменение не теряется.
func New(ctx context.Context, m *replica.Map, c *cache.Cache, codes CodeGenerator, logger *slog.Logger, opts ...Option) (*Service, error) {
	s := &Service{
		replica:    m,
		cache:      c,
		codes:      codes,
		logger:     logger,
		maxRetries: DefaultMaxRetries,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.sub = m.Subscribe(func(change replica.Change) {
		if err := c.Apply(ctx, change); err != nil {
			logger.Error("Failed to apply change to cache", "kind", change.Kind.String(), "error", err)
		}
	})

	entries, err := m.GetAll(ctx)
	if err != nil {
		s.sub.Close()
		return nil, fmt.Errorf("failed to load cache: %w", err)
	}
	c.Load(entries)

	logger.Info("Registry ready", "records", c.Len(), "collisions", c.CollisionCount())

	return s, nil
}

// Close отписывает кеш от реплики
func (s *Service) Close() {
	s.sub.Close()
}

// AddRedirect создает запись и возвращает ее после надежной локальной записи.
// Распространение на другие узлы не ожидается.
func (s *Service) AddRedirect(ctx context.Context, destination, description string) (models.Redirect, error) {
	destination = strings.TrimSpace(destination)
	if err := validation.ValidateDestinationURL(destination); err != nil {
		return models.Redirect{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	if err := validation.ValidateDescription(description); err != nil {
		return models.Redirect{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	s.addMu.Lock()
	defer s.addMu.Unlock()

	code, err := s.freeCode(destination)
	if err != nil {
		return models.Redirect{}, err
	}

	entry, err := s.replica.Create(ctx, replica.NewRecord{
		ShortCode:      code,
		DestinationURL: destination,
		Description:    description,
	})
	if err != nil {
		return models.Redirect{}, fmt.Errorf("failed to create redirect: %w", err)
	}

	// Кеш обновляется только лентой реплики, чтобы порядок вставки был один.
	// Ждем доставки: запись должна резолвиться сразу после возврата.
	if err := s.cache.WaitFor(ctx, entry.ID); err != nil {
		return models.Redirect{}, fmt.Errorf("failed to update cache: %w", err)
	}

	s.logger.Info("Redirect created", "entry_id", entry.ID, "short_code", code)

	return entry.Redirect, nil
}

// freeCode генерирует код, не занятый в локальной реплике
func (s *Service) freeCode(destination string) (string, error) {
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		code, err := s.codes.Generate(destination)
		if err != nil {
			return "", fmt.Errorf("failed to generate short code: %w", err)
		}

		if _, taken := s.cache.Lookup(code); !taken {
			return code, nil
		}
		s.logger.Debug("Short code already taken, regenerating", "short_code", code, "attempt", attempt+1)
	}

	s.logger.Warn("Short code space exhausted", "retries", s.maxRetries, "records", s.cache.Len())
	return "", ErrCodeSpaceExhausted
}

// Resolve возвращает адрес назначения по короткому коду
func (s *Service) Resolve(ctx context.Context, code string) (string, error) {
	r, ok := s.cache.Lookup(code)
	if !ok {
		return "", ErrNotFound
	}
	return r.DestinationURL, nil
}

// ListPage возвращает страницу записей в порядке вставки и общее число записей,
// подходящих под search (поиск подстроки в описании без учета регистра).
// Номер страницы начинается с 1.
func (s *Service) ListPage(ctx context.Context, page, pageSize int, search string) ([]models.Redirect, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	var match func(models.Redirect) bool
	if search = strings.TrimSpace(search); search != "" {
		needle := strings.ToLower(search)
		match = func(r models.Redirect) bool {
			return strings.Contains(strings.ToLower(r.Description), needle)
		}
	}

	return s.cache.Page((page-1)*pageSize, pageSize, match)
}

// Collisions возвращает журнал коллизий коротких кодов
func (s *Service) Collisions() []cache.CodeCollision {
	return s.cache.Collisions()
}

// Stats возвращает сводку по реестру
func (s *Service) Stats() Stats {
	records := s.cache.Len()
	return Stats{
		NodeID:               s.replica.NodeID(),
		Records:              records,
		Collisions:           s.cache.CollisionCount(),
		Conflicts:            s.replica.Conflicts(),
		CodeLength:           s.codes.Length(),
		CollisionProbability: s.codes.CollisionProbability(records),
		FeedDropped:          s.sub.Dropped(),
	}
}
