package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"whatsapp-web-bot/internal/models"
	"whatsapp-web-bot/internal/services"
	"whatsapp-web-bot/internal/utils"
	"whatsapp-web-bot/internal/wanotify"
)

var sessionTopics = map[string]bool{
	wanotify.TopicQR:           true,
	wanotify.TopicStatus:       true,
	wanotify.TopicConnected:    true,
	wanotify.TopicSync:         true,
	wanotify.TopicDisconnected: true,
	wanotify.TopicError:        true,
}

var chatTopics = map[string]bool{
	wanotify.TopicReady:       true,
	wanotify.TopicChatReady:   true,
	wanotify.TopicChats:       true,
	wanotify.TopicUnread:      true,
	wanotify.TopicMessageSent: true,
	wanotify.TopicQueued:      true,
	wanotify.TopicQueueSent:   true,
	wanotify.TopicQueueFailed: true,
}

// SSEHandler serve os streams de eventos de sessão e de conversa via
// Server-Sent Events, um subscriber no bus por cliente conectado.
type SSEHandler struct {
	supervisor *services.SessionSupervisor
	driver     *services.ChatDriver
	bus        *wanotify.Bus
}

func NewSSEHandler(supervisor *services.SessionSupervisor, driver *services.ChatDriver, bus *wanotify.Bus) *SSEHandler {
	return &SSEHandler{supervisor: supervisor, driver: driver, bus: bus}
}

// @Summary Session event stream
// @Description SSE stream with qr, status, connected, sync, disconnected and error events for one session
// @Tags sessions
// @Produce text/event-stream
// @Param sessionId query string true "Session id"
// @Success 200 {string} string "event stream"
// @Failure 400 {object} models.APIResponse
// @Router /sessions/events [get]
func (h *SSEHandler) SessionEvents(w http.ResponseWriter, r *http.Request) {
	h.stream(w, r, sessionTopics, h.sessionSnapshot)
}

// @Summary Chat event stream
// @Description SSE stream with chat list, unread and queue events for one session
// @Tags chats
// @Produce text/event-stream
// @Param sessionId query string true "Session id"
// @Success 200 {string} string "event stream"
// @Failure 400 {object} models.APIResponse
// @Router /chats/events [get]
func (h *SSEHandler) ChatEvents(w http.ResponseWriter, r *http.Request) {
	h.stream(w, r, chatTopics, h.chatSnapshot)
}

// sessionSnapshot devolve o estado atual da sessão como primeiro evento do
// stream, para o cliente não depender da próxima transição.
func (h *SSEHandler) sessionSnapshot(sessionID string) []wanotify.Event {
	session := h.supervisor.GetSession(sessionID)
	if session == nil {
		return nil
	}
	return []wanotify.Event{{
		Topic:     wanotify.TopicStatus,
		SessionID: sessionID,
		Data:      session,
		Timestamp: time.Now().UTC(),
	}}
}

// chatSnapshot replica os eventos ready e chats que o cliente teria visto
// se já estivesse conectado quando o driver inicializou.
func (h *SSEHandler) chatSnapshot(sessionID string) []wanotify.Event {
	if h.driver == nil || !h.driver.IsReady(sessionID) {
		return nil
	}
	now := time.Now().UTC()
	return []wanotify.Event{
		{Topic: wanotify.TopicReady, SessionID: sessionID, Timestamp: now},
		{Topic: wanotify.TopicChats, SessionID: sessionID, Data: h.driver.GetChats(sessionID), Timestamp: now},
	}
}

func (h *SSEHandler) stream(w http.ResponseWriter, r *http.Request, topics map[string]bool, snapshot func(string) []wanotify.Event) {
	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		models.RespondWithJSON(w, http.StatusBadRequest, models.NewErrorResponse("sessionId é obrigatório"))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		models.RespondWithJSON(w, http.StatusInternalServerError, models.NewErrorResponse("Streaming não suportado"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// canal com folga para o subscriber nunca bloquear o publisher,
	// eventos são descartados se o cliente não drena
	events := make(chan wanotify.Event, 64)
	unsubscribe := h.bus.Subscribe(sessionID, func(ev wanotify.Event) {
		if !topics[ev.Topic] {
			return
		}
		select {
		case events <- ev:
		default:
		}
	})
	defer unsubscribe()

	if snapshot != nil {
		for _, ev := range snapshot(sessionID) {
			writeSSE(w, ev)
		}
		flusher.Flush()
	}

	ping := time.NewTicker(30 * time.Second)
	defer ping.Stop()

	utils.LogDebug("Stream SSE aberto para a sessão %s", sessionID)
	for {
		select {
		case <-r.Context().Done():
			utils.LogDebug("Stream SSE encerrado para a sessão %s", sessionID)
			return
		case <-ping.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case ev := <-events:
			writeSSE(w, ev)
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, ev wanotify.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Topic, payload)
}
