package models

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"time"

	"golang.org/x/crypto/blake2b"
)

// Ошибки валидации реплицируемой записи
var (
	ErrEmptyID          = errors.New("redirect id is empty")
	ErrEmptyDestination = errors.New("destination url is empty")
	ErrEmptyShortCode   = errors.New("short code is empty")
	ErrEmptyNodeID      = errors.New("writer node id is empty")
)

// Redirect представляет запись редиректа, видимую читателям.
// Все поля задаются при создании и больше не меняются.
type Redirect struct {
	CreatedAt      time.Time `json:"created_at"`      // CreatedAt время создания записи (для информации)
	ID             string    `json:"id"`              // ID глобально уникальный ключ реплики (nodeID:seq)
	ShortCode      string    `json:"short_code"`      // ShortCode публичный код для резолва
	DestinationURL string    `json:"destination_url"` // DestinationURL адрес назначения
	Description    string    `json:"description"`     // Description необязательное описание
}

// WriteMeta метаданные записи, используемые только при слиянии реплик.
type WriteMeta struct {
	NodeID    string `json:"node_id"`   // NodeID идентификатор узла, принявшего запись
	Timestamp int64  `json:"timestamp"` // Timestamp Lamport timestamp записи
}

// ReplicaEntry элемент реплицируемого множества: запись плюс метаданные автора.
type ReplicaEntry struct {
	Redirect
	Meta WriteMeta `json:"meta"`
}

// Validate проверяет, что запись пригодна для хранения в реплике.
func (e *ReplicaEntry) Validate() error {
	switch {
	case e.ID == "":
		return ErrEmptyID
	case e.DestinationURL == "":
		return ErrEmptyDestination
	case e.ShortCode == "":
		return ErrEmptyShortCode
	case e.Meta.NodeID == "":
		return ErrEmptyNodeID
	}
	return nil
}

// Clone создает копию записи
func (e *ReplicaEntry) Clone() *ReplicaEntry {
	c := *e
	return &c
}

// Equal сообщает, совпадают ли записи полностью, включая метаданные.
func (e *ReplicaEntry) Equal(other *ReplicaEntry) bool {
	return e.ID == other.ID &&
		e.ShortCode == other.ShortCode &&
		e.DestinationURL == other.DestinationURL &&
		e.Description == other.Description &&
		e.CreatedAt.Equal(other.CreatedAt) &&
		e.Meta == other.Meta
}

// Fingerprint возвращает blake2b-256 отпечаток записи в hex.
// Поля кодируются с префиксом длины, поэтому разделители внутри значений
// не могут дать одинаковый отпечаток разным записям.
func (e *ReplicaEntry) Fingerprint() string {
	h, _ := blake2b.New256(nil) // ошибка возможна только при ключе длиннее 64 байт

	var buf [8]byte
	writeField := func(s string) {
		binary.BigEndian.PutUint64(buf[:], uint64(len(s)))
		h.Write(buf[:])
		h.Write([]byte(s))
	}
	writeInt := func(v int64) {
		binary.BigEndian.PutUint64(buf[:], uint64(v))
		h.Write(buf[:])
	}

	writeField(e.ID)
	writeField(e.ShortCode)
	writeField(e.DestinationURL)
	writeField(e.Description)
	writeInt(e.CreatedAt.UnixNano())
	writeField(e.Meta.NodeID)
	writeInt(e.Meta.Timestamp)

	return hex.EncodeToString(h.Sum(nil))
}

// Wins определяет победителя конфликта двух разных записей с одним ID.
// Порядок полностью детерминирован, поэтому все узлы выбирают одну и ту же запись:
// 1. Лексикографически меньший NodeID
// 2. Меньший Timestamp
// 3. Меньший Fingerprint
func (e *ReplicaEntry) Wins(other *ReplicaEntry) bool {
	if e.Meta.NodeID != other.Meta.NodeID {
		return e.Meta.NodeID < other.Meta.NodeID
	}
	if e.Meta.Timestamp != other.Meta.Timestamp {
		return e.Meta.Timestamp < other.Meta.Timestamp
	}
	return e.Fingerprint() < other.Fingerprint()
}

// WrittenBefore сравнивает записи в порядке Лампорта (Timestamp, NodeID, ID).
// Используется для правила first-writer-wins по short code.
func (e *ReplicaEntry) WrittenBefore(other *ReplicaEntry) bool {
	if e.Meta.Timestamp != other.Meta.Timestamp {
		return e.Meta.Timestamp < other.Meta.Timestamp
	}
	if e.Meta.NodeID != other.Meta.NodeID {
		return e.Meta.NodeID < other.Meta.NodeID
	}
	return e.ID < other.ID
}
