package api

import "time"

// Entry представляет одну запись реплики при обмене между узлами
type Entry struct {
	CreatedAt      time.Time `json:"created_at"`
	ID             string    `json:"id"`
	ShortCode      string    `json:"short_code"`
	DestinationURL string    `json:"destination_url"`
	Description    string    `json:"description"`
	NodeID         string    `json:"node_id"`   // узел, принявший запись
	Timestamp      int64     `json:"timestamp"` // Lamport timestamp записи
}

// DigestEntry краткое описание записи: ID и отпечаток содержимого
type DigestEntry struct {
	ID          string `json:"id"`
	Fingerprint string `json:"fingerprint"`
}

// DigestResponse сводка реплики узла для сверки
type DigestResponse struct {
	NodeID  string        `json:"node_id"`
	Address string        `json:"address"`         // адрес, по которому узел принимает соединения
	Peers   []string      `json:"peers,omitempty"` // известные узлу адреса других узлов
	Entries []DigestEntry `json:"entries"`
}

// FetchRequest запрос записей по ID
type FetchRequest struct {
	IDs []string `json:"ids"`
}

// FetchResponse записи, найденные по FetchRequest
type FetchResponse struct {
	Entries []Entry `json:"entries"`
}

// PushRequest передача записей, которых нет у удаленного узла
type PushRequest struct {
	NodeID  string  `json:"node_id"`
	Entries []Entry `json:"entries"`
}

// PushResponse итог слияния переданных записей
type PushResponse struct {
	Merged    int `json:"merged"`    // новые или заменившие записи
	Conflicts int `json:"conflicts"` // конфликты по ID
	Skipped   int `json:"skipped"`   // уже известные или невалидные записи
}

// SyncRequest запрос ручной сверки с узлом
type SyncRequest struct {
	Address string `json:"address"`
}

// SyncResponse итог ручной сверки
type SyncResponse struct {
	Pulled    int `json:"pulled"`    // записей получено от узла
	Merged    int `json:"merged"`    // из них добавлено или заменило локальные
	Conflicts int `json:"conflicts"` // конфликтов по ID
	Skipped   int `json:"skipped"`   // уже известных или невалидных
	Pushed    int `json:"pushed"`    // записей отправлено узлу
}

// Типы кадров потока обновлений
const (
	FrameHello = "hello"
	FrameEntry = "entry"
)

// Hello первый кадр потока в обе стороны
type Hello struct {
	NodeID  string   `json:"node_id"`
	Address string   `json:"address"`
	Peers   []string `json:"peers,omitempty"`
}

// Frame кадр websocket потока обновлений
type Frame struct {
	Hello *Hello `json:"hello,omitempty"`
	Entry *Entry `json:"entry,omitempty"`
	Type  string `json:"type"`
}
