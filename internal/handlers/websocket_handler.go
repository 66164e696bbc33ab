package handlers

import (
	"net/http"

	"whatsapp-web-bot/internal/wanotify"
)

// WebSocketHandler conecta o cliente ao firehose de eventos: recebe tudo
// que passa no bus, de todas as sessões.
type WebSocketHandler struct {
	manager *wanotify.WebSocketManager
}

func NewWebSocketHandler(manager *wanotify.WebSocketManager) *WebSocketHandler {
	return &WebSocketHandler{manager: manager}
}

func (h *WebSocketHandler) Handle(w http.ResponseWriter, r *http.Request) {
	conn, err := wanotify.Upgrader().Upgrade(w, r, nil)
	if err != nil {
		return
	}
	h.manager.AddClient(conn)
	defer func() {
		h.manager.RemoveClient(conn)
		conn.Close()
	}()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}
