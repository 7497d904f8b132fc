package api

import "time"

// CreateRedirectRequest представляет запрос на создание редиректа
type CreateRedirectRequest struct {
	DestinationURL string `json:"destination_url"`       // адрес назначения
	Description    string `json:"description,omitempty"` // необязательное описание
}

// Redirect представляет запись редиректа в ответах API
type Redirect struct {
	CreatedAt      time.Time `json:"created_at"`
	ID             string    `json:"id"`
	ShortCode      string    `json:"short_code"`
	DestinationURL string    `json:"destination_url"`
	Description    string    `json:"description"`
}

// ListRedirectsResponse представляет страницу редиректов
type ListRedirectsResponse struct {
	Records  []Redirect `json:"records"`
	Total    int        `json:"total"`     // число записей, подходящих под поиск
	Page     int        `json:"page"`      // номер страницы (с 1)
	PageSize int        `json:"page_size"` // размер страницы
}

// HealthResponse представляет состояние узла
type HealthResponse struct {
	Status               string  `json:"status"` // ok или degraded
	Version              string  `json:"version,omitempty"`
	NodeID               string  `json:"node_id"`
	Records              int     `json:"records"`
	Collisions           int     `json:"collisions"`
	Conflicts            int64   `json:"conflicts"`
	CodeLength           int     `json:"code_length"`
	CollisionProbability float64 `json:"collision_probability"` // вероятность коллизии следующего кода
	FeedDropped          int64   `json:"feed_dropped"`
	ConnectedPeers       int     `json:"connected_peers"`
	KnownPeers           int     `json:"known_peers"`
}

// ErrorResponse представляет ответ с ошибкой
type ErrorResponse struct {
	Error   string `json:"error"`             // описание ошибки
	Message string `json:"message,omitempty"` // дополнительное сообщение
}
