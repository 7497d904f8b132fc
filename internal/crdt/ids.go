package crdt

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// SequenceSource выдает монотонно растущие номера, переживающие перезапуск узла.
type SequenceSource interface {
	NextSequence(ctx context.Context) (uint64, error)
}

// NewNodeID генерирует новый идентификатор узла (UUID).
func NewNodeID() string {
	return uuid.New().String()
}

// IDGenerator выдает ключи реплики вида "nodeID:seq".
// Два узла с разными nodeID никогда не выдадут одинаковый ключ,
// а seq берется из долговременного хранилища и не повторяется после рестарта.
type IDGenerator struct {
	seq    SequenceSource
	nodeID string
}

// NewIDGenerator создает генератор ключей для узла nodeID.
func NewIDGenerator(nodeID string, seq SequenceSource) *IDGenerator {
	return &IDGenerator{nodeID: nodeID, seq: seq}
}

// NodeID возвращает идентификатор узла генератора.
func (g *IDGenerator) NodeID() string {
	return g.nodeID
}

// NewID возвращает следующий ключ записи.
func (g *IDGenerator) NewID(ctx context.Context) (string, error) {
	n, err := g.seq.NextSequence(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to allocate id sequence: %w", err)
	}
	return FormatID(g.nodeID, n), nil
}

// FormatID собирает ключ записи из идентификатора узла и номера.
func FormatID(nodeID string, seq uint64) string {
	return nodeID + ":" + strconv.FormatUint(seq, 10)
}

// ParseID разбирает ключ записи. NodeID может сам содержать ':',
// поэтому номер отделяется по последнему двоеточию.
func ParseID(id string) (nodeID string, seq uint64, err error) {
	i := strings.LastIndexByte(id, ':')
	if i <= 0 || i == len(id)-1 {
		return "", 0, fmt.Errorf("malformed id %q", id)
	}
	seq, err = strconv.ParseUint(id[i+1:], 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("malformed id %q: %w", id, err)
	}
	return id[:i], seq, nil
}
