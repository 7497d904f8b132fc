package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestEntry(id, nodeID string, timestamp int64) *ReplicaEntry {
	return &ReplicaEntry{
		Redirect: Redirect{
			ID:             id,
			ShortCode:      "abc123",
			DestinationURL: "https://example.com/page",
			Description:    "example",
			CreatedAt:      time.Unix(1700000000, 0),
		},
		Meta: WriteMeta{NodeID: nodeID, Timestamp: timestamp},
	}
}

func TestReplicaEntry_Validate(t *testing.T) {
	tests := []struct {
		wantErr error
		mutate  func(e *ReplicaEntry)
		name    string
	}{
		{name: "valid entry", mutate: func(e *ReplicaEntry) {}},
		{name: "empty id", mutate: func(e *ReplicaEntry) { e.ID = "" }, wantErr: ErrEmptyID},
		{name: "empty destination", mutate: func(e *ReplicaEntry) { e.DestinationURL = "" }, wantErr: ErrEmptyDestination},
		{name: "empty short code", mutate: func(e *ReplicaEntry) { e.ShortCode = "" }, wantErr: ErrEmptyShortCode},
		{name: "empty node id", mutate: func(e *ReplicaEntry) { e.Meta.NodeID = "" }, wantErr: ErrEmptyNodeID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEntry("nodeA:1", "nodeA", 1)
			tt.mutate(e)

			err := e.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestReplicaEntry_Fingerprint(t *testing.T) {
	a := newTestEntry("nodeA:1", "nodeA", 1)
	b := a.Clone()

	assert.Equal(t, a.Fingerprint(), b.Fingerprint(), "clones must share a fingerprint")
	assert.Len(t, a.Fingerprint(), 64)

	b.Description = "other"
	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())

	// Поля с разделителями не должны склеиваться в одинаковый отпечаток
	c := newTestEntry("nodeA:1", "nodeA", 1)
	c.DestinationURL = "https://example.com/a|b"
	c.Description = "c"
	d := newTestEntry("nodeA:1", "nodeA", 1)
	d.DestinationURL = "https://example.com/a"
	d.Description = "b|c"
	assert.NotEqual(t, c.Fingerprint(), d.Fingerprint())
}

func TestReplicaEntry_Equal(t *testing.T) {
	a := newTestEntry("nodeA:1", "nodeA", 1)
	b := a.Clone()
	b.CreatedAt = a.CreatedAt.In(time.FixedZone("UTC+3", 3*3600))

	assert.True(t, a.Equal(b), "same instant in another zone is equal")

	b.Meta.Timestamp = 2
	assert.False(t, a.Equal(b))
}

func TestReplicaEntry_Wins(t *testing.T) {
	tests := []struct {
		self     *ReplicaEntry
		other    *ReplicaEntry
		name     string
		expected bool
	}{
		{
			name:     "smaller node id wins",
			self:     newTestEntry("x:1", "nodeA", 10),
			other:    newTestEntry("x:1", "nodeB", 1),
			expected: true,
		},
		{
			name:     "greater node id loses",
			self:     newTestEntry("x:1", "nodeB", 1),
			other:    newTestEntry("x:1", "nodeA", 10),
			expected: false,
		},
		{
			name:     "same node, earlier timestamp wins",
			self:     newTestEntry("x:1", "nodeA", 1),
			other:    newTestEntry("x:1", "nodeA", 2),
			expected: true,
		},
		{
			name:     "same node, later timestamp loses",
			self:     newTestEntry("x:1", "nodeA", 2),
			other:    newTestEntry("x:1", "nodeA", 1),
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.self.Wins(tt.other))
			assert.Equal(t, !tt.expected, tt.other.Wins(tt.self), "order must be antisymmetric")
		})
	}
}

func TestReplicaEntry_Wins_FingerprintTieBreak(t *testing.T) {
	a := newTestEntry("x:1", "nodeA", 1)
	b := newTestEntry("x:1", "nodeA", 1)
	b.DestinationURL = "https://example.org"

	assert.NotEqual(t, a.Wins(b), b.Wins(a), "exactly one of the two must win")
}

func TestReplicaEntry_WrittenBefore(t *testing.T) {
	a := newTestEntry("nodeB:1", "nodeB", 1)
	b := newTestEntry("nodeA:2", "nodeA", 2)
	c := newTestEntry("nodeA:1", "nodeA", 1)

	assert.True(t, a.WrittenBefore(b), "lower timestamp first")
	assert.True(t, c.WrittenBefore(a), "equal timestamp, lower node id first")
	assert.False(t, a.WrittenBefore(a))
}
