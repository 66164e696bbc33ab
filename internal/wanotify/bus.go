package wanotify

import (
	"sync"
	"time"
)

// Tópicos de eventos de sessão
const (
	TopicQR           = "qr"
	TopicStatus       = "status"
	TopicConnected    = "connected"
	TopicSync         = "sync"
	TopicDisconnected = "disconnected"
	TopicError        = "error"
)

// Tópicos de eventos de conversa
const (
	TopicReady       = "ready"
	TopicChatReady   = "chat_ready"
	TopicChats       = "chats"
	TopicUnread      = "unread"
	TopicMessageSent = "message_sent"
	TopicQueued      = "message_queued"
	TopicQueueSent   = "queue_sent"
	TopicQueueFailed = "queue_failed"
)

type Event struct {
	Topic     string      `json:"type"`
	SessionID string      `json:"sessionId"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

type subscriber struct {
	sessionID string // vazio assina todas as sessões
	fn        func(Event)
}

// Bus é o pub/sub em memória que liga supervisor, driver e fila aos
// consumidores (SSE, WebSocket, gravador de sessões). Os callbacks rodam
// na goroutine de quem publica, então devem retornar rápido.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]*subscriber
}

func NewBus() *Bus {
	return &Bus{subs: make(map[int]*subscriber)}
}

// Subscribe registra fn para eventos da sessão informada. sessionID vazio
// recebe eventos de todas as sessões. O retorno cancela a assinatura e é
// seguro chamar mais de uma vez.
func (b *Bus) Subscribe(sessionID string, fn func(Event)) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = &subscriber{sessionID: sessionID, fn: fn}
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

func (b *Bus) Publish(topic, sessionID string, data interface{}) {
	ev := Event{
		Topic:     topic,
		SessionID: sessionID,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}

	b.mu.RLock()
	targets := make([]func(Event), 0, len(b.subs))
	for _, sub := range b.subs {
		if sub.sessionID == "" || sub.sessionID == sessionID {
			targets = append(targets, sub.fn)
		}
	}
	b.mu.RUnlock()

	for _, fn := range targets {
		fn(ev)
	}
}

// SubscriberCount existe para inspeção em testes e no endpoint de status.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
