package crdt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// counterSource последовательность в памяти для тестов
type counterSource struct {
	n atomic.Uint64
}

func (c *counterSource) NextSequence(ctx context.Context) (uint64, error) {
	return c.n.Add(1), nil
}

type failingSource struct{}

func (failingSource) NextSequence(ctx context.Context) (uint64, error) {
	return 0, errors.New("disk full")
}

func TestIDGenerator_NewID(t *testing.T) {
	gen := NewIDGenerator("node-a", &counterSource{})

	id1, err := gen.NewID(context.Background())
	require.NoError(t, err)
	id2, err := gen.NewID(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "node-a:1", id1)
	assert.Equal(t, "node-a:2", id2)
	assert.Equal(t, "node-a", gen.NodeID())
}

func TestIDGenerator_NewID_SequenceError(t *testing.T) {
	gen := NewIDGenerator("node-a", failingSource{})

	id, err := gen.NewID(context.Background())
	assert.Error(t, err)
	assert.Empty(t, id)
}

func TestIDGenerator_ConcurrentPeersNeverCollide(t *testing.T) {
	const (
		peers         = 8
		writesPerPeer = 250
	)

	var (
		mu   sync.Mutex
		seen = make(map[string]struct{}, peers*writesPerPeer)
		wg   sync.WaitGroup
	)

	for p := 0; p < peers; p++ {
		gen := NewIDGenerator(NewNodeID(), &counterSource{})
		for w := 0; w < writesPerPeer; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				id, err := gen.NewID(context.Background())
				assert.NoError(t, err)

				mu.Lock()
				defer mu.Unlock()
				_, dup := seen[id]
				assert.False(t, dup, "duplicate id %s", id)
				seen[id] = struct{}{}
			}()
		}
	}

	wg.Wait()
	assert.Len(t, seen, peers*writesPerPeer)
}

func TestParseID(t *testing.T) {
	tests := []struct {
		name     string
		id       string
		wantNode string
		wantSeq  uint64
		wantErr  bool
	}{
		{name: "simple", id: "node-a:42", wantNode: "node-a", wantSeq: 42},
		{name: "node id with colon", id: "host:4999:7", wantNode: "host:4999", wantSeq: 7},
		{name: "missing seq", id: "node-a:", wantErr: true},
		{name: "missing node", id: ":5", wantErr: true},
		{name: "no separator", id: "node-a", wantErr: true},
		{name: "non numeric seq", id: "node-a:x", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node, seq, err := ParseID(tt.id)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantNode, node)
			assert.Equal(t, tt.wantSeq, seq)
			assert.Equal(t, tt.id, FormatID(node, seq), fmt.Sprintf("round trip of %s", tt.id))
		})
	}
}
