package wanotify

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

type WebSocketManager struct {
	clients map[*websocket.Conn]bool
	lock    sync.RWMutex
	stop    func()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func Upgrader() *websocket.Upgrader {
	return &upgrader
}

// NewWebSocketManager cria o broadcaster e o assina no bus para retransmitir
// todos os eventos de todas as sessões aos clientes conectados.
func NewWebSocketManager(bus *Bus) *WebSocketManager {
	m := &WebSocketManager{
		clients: make(map[*websocket.Conn]bool),
	}
	m.stop = bus.Subscribe("", func(ev Event) {
		m.Broadcast(ev)
	})
	return m
}

func (m *WebSocketManager) AddClient(conn *websocket.Conn) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.clients[conn] = true
}

func (m *WebSocketManager) RemoveClient(conn *websocket.Conn) {
	m.lock.Lock()
	defer m.lock.Unlock()
	delete(m.clients, conn)
}

func (m *WebSocketManager) ClientCount() int {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return len(m.clients)
}

func (m *WebSocketManager) Broadcast(event interface{}) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	for client := range m.clients {
		client.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := client.WriteJSON(event); err != nil {
			client.Close()
			go m.RemoveClient(client)
		}
	}
}

// Close cancela a assinatura no bus e derruba todos os clientes.
func (m *WebSocketManager) Close() {
	if m.stop != nil {
		m.stop()
	}
	m.lock.Lock()
	defer m.lock.Unlock()
	for client := range m.clients {
		client.Close()
		delete(m.clients, client)
	}
}
