package models

import "time"

// Status de entrega de mensagem
const (
	MessageStatusPending   = "pending"
	MessageStatusSent      = "sent"
	MessageStatusDelivered = "delivered"
	MessageStatusRead      = "read"
	MessageStatusFailed    = "failed"
)

// Message é uma mensagem raspada da conversa aberta. O timestamp é o texto
// exibido pelo WhatsApp Web (ex: "14:32"), não um time.Time estruturado.
type Message struct {
	ID          string `json:"id"`
	ChatID      string `json:"chatId"`
	From        string `json:"from"`
	FromName    string `json:"fromName,omitempty"`
	To          string `json:"to"`
	Body        string `json:"body"`
	Timestamp   string `json:"timestamp"`
	IsFromMe    bool   `json:"isFromMe"`
	IsForwarded bool   `json:"isForwarded"`
	HasMedia    bool   `json:"hasMedia"`
	MediaType   string `json:"mediaType,omitempty"`
	Status      string `json:"status"`
}

// Status de item da fila de envio
const (
	QueueStatusQueued     = "queued"
	QueueStatusProcessing = "processing"
	QueueStatusSent       = "sent"
	QueueStatusFailed     = "failed"
)

// QueueItem é um envio pendente na fila FIFO por sessão. Depois de "failed"
// o item não é reprocessado.
type QueueItem struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionId"`
	ChatID    string    `json:"chatId"`
	Message   string    `json:"message"`
	MediaURL  string    `json:"mediaUrl,omitempty"`
	Status    string    `json:"status"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// QueueStatus resume a fila de uma sessão para a API.
type QueueStatus struct {
	SessionID  string       `json:"sessionId"`
	Total      int          `json:"total"`
	Queued     int          `json:"queued"`
	Processing int          `json:"processing"`
	Sent       int          `json:"sent"`
	Failed     int          `json:"failed"`
	Items      []*QueueItem `json:"items"`
}
