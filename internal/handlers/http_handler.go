package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"whatsapp-web-bot/internal/models"
	"whatsapp-web-bot/internal/services"
	"whatsapp-web-bot/internal/utils"
	"whatsapp-web-bot/internal/wanotify"
)

type HTTPHandler struct {
	supervisor *services.SessionSupervisor
	driver     *services.ChatDriver
	queue      *services.MessageQueue
	repo       models.SessionRepository
	bus        *wanotify.Bus
}

func NewHTTPHandler(supervisor *services.SessionSupervisor, driver *services.ChatDriver, queue *services.MessageQueue, repo models.SessionRepository, bus *wanotify.Bus) *HTTPHandler {
	return &HTTPHandler{
		supervisor: supervisor,
		driver:     driver,
		queue:      queue,
		repo:       repo,
		bus:        bus,
	}
}

// @Summary Create a WhatsApp session
// @Description Launches a dedicated browser for the session and starts QR polling
// @Tags sessions
// @Accept json
// @Produce json
// @Param request body models.CreateSessionRequest true "Session details"
// @Success 201 {object} models.APIResponse
// @Failure 400 {object} models.APIResponse
// @Failure 500 {object} models.APIResponse
// @Router /sessions [post]
func (h *HTTPHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req models.CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.LogError("Erro ao decodificar requisição /sessions: %v", err)
		models.RespondWithJSON(w, http.StatusBadRequest, models.NewErrorResponse("Erro ao decodificar requisição: "+err.Error()))
		return
	}
	if req.UserID == "" {
		models.RespondWithJSON(w, http.StatusBadRequest, models.NewErrorResponse("userId é obrigatório"))
		return
	}

	sessionID := services.NewSessionID()
	deviceName := req.DeviceName
	if deviceName == "" {
		deviceName = "Device " + sessionID[len(sessionID)-6:]
	}
	session, err := h.supervisor.Create(r.Context(), sessionID, req.UserID, deviceName)
	if err != nil {
		utils.LogError("Erro ao criar sessão %s: %v", sessionID, err)
		models.RespondWithJSON(w, http.StatusInternalServerError, models.NewErrorResponse("Erro ao criar sessão: "+err.Error()))
		return
	}

	models.RespondWithJSON(w, http.StatusCreated, models.NewSuccessResponse("Sessão criada", session))
}

// @Summary Get session state
// @Description Returns the live session by id, or the persisted record when the session is no longer running. With userId lists that user's live sessions.
// @Tags sessions
// @Produce json
// @Param sessionId query string false "Session id"
// @Param userId query string false "User id"
// @Success 200 {object} models.APIResponse
// @Failure 404 {object} models.APIResponse
// @Router /sessions [get]
func (h *HTTPHandler) GetSessions(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	userID := r.URL.Query().Get("userId")

	switch {
	case sessionID != "":
		if session := h.supervisor.GetSession(sessionID); session != nil {
			models.RespondWithJSON(w, http.StatusOK, models.NewSuccessResponse("Sessão encontrada", session))
			return
		}
		if h.repo != nil {
			record, err := h.repo.GetByID(sessionID)
			if err == nil && record != nil {
				models.RespondWithJSON(w, http.StatusOK, models.NewSuccessResponse("Sessão encerrada, último estado persistido", record))
				return
			}
		}
		models.RespondWithJSON(w, http.StatusNotFound, models.NewErrorResponse("Sessão não encontrada"))
	case userID != "":
		sessions := h.supervisor.GetUserSessions(userID)
		if len(sessions) == 0 && h.repo != nil {
			records, err := h.repo.GetByUser(userID)
			if err == nil && len(records) > 0 {
				models.RespondWithJSON(w, http.StatusOK, models.NewSuccessResponse("Sessões encerradas, últimos estados persistidos", records))
				return
			}
		}
		models.RespondWithJSON(w, http.StatusOK, models.NewSuccessResponse("Sessões do usuário", sessions))
	default:
		models.RespondWithJSON(w, http.StatusBadRequest, models.NewErrorResponse("Informe sessionId ou userId"))
	}
}

// @Summary Get the pairing QR code
// @Description Returns the current QR code while the session waits for pairing. Responds with waiting status while the QR is not rendered yet.
// @Tags sessions
// @Produce json
// @Param sessionId query string true "Session id"
// @Success 200 {object} models.APIResponse
// @Success 202 {object} models.APIResponse
// @Failure 400 {object} models.APIResponse
// @Failure 404 {object} models.APIResponse
// @Router /sessions/qr [get]
func (h *HTTPHandler) GetQRCode(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		models.RespondWithJSON(w, http.StatusBadRequest, models.NewErrorResponse("sessionId é obrigatório"))
		return
	}

	session := h.supervisor.GetSession(sessionID)
	if session == nil {
		models.RespondWithJSON(w, http.StatusNotFound, models.NewErrorResponse("Sessão não encontrada"))
		return
	}

	switch session.Status {
	case models.StatusQRReady:
		models.RespondWithJSON(w, http.StatusOK, models.NewSuccessResponse("QR code disponível", &models.QRResponse{
			SessionID: session.ID,
			QRCode:    session.QRCode,
			Status:    session.Status,
		}))
	case models.StatusInitializing:
		models.RespondWithJSON(w, http.StatusAccepted, models.NewWaitingResponse("QR code ainda não disponível, aguarde"))
	case models.StatusConnected:
		models.RespondWithJSON(w, http.StatusOK, models.NewSuccessResponse("Sessão já está conectada", &models.QRResponse{
			SessionID: session.ID,
			Status:    session.Status,
		}))
	default:
		models.RespondWithJSON(w, http.StatusOK, models.NewErrorResponse("Sessão não está aguardando pareamento"))
	}
}

// @Summary Destroy a session
// @Description Stops all monitors, closes the browser and deletes the on-disk profile. Idempotent.
// @Tags sessions
// @Produce json
// @Param sessionId query string true "Session id"
// @Success 200 {object} models.APIResponse
// @Failure 400 {object} models.APIResponse
// @Router /sessions [delete]
func (h *HTTPHandler) DestroySession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		models.RespondWithJSON(w, http.StatusBadRequest, models.NewErrorResponse("sessionId é obrigatório"))
		return
	}

	h.supervisor.Destroy(sessionID)
	h.queue.DropSession(sessionID)
	models.RespondWithJSON(w, http.StatusOK, models.NewSuccessResponse("Sessão destruída", map[string]string{"sessionId": sessionID}))
}

// @Summary List chats
// @Description Returns the last chat snapshot. With refresh=true rescrapes the chat list first.
// @Tags chats
// @Produce json
// @Param sessionId query string true "Session id"
// @Param refresh query bool false "Force a rescrape"
// @Success 200 {object} models.APIResponse
// @Failure 400 {object} models.APIResponse
// @Router /chats [get]
func (h *HTTPHandler) GetChats(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		models.RespondWithJSON(w, http.StatusBadRequest, models.NewErrorResponse("sessionId é obrigatório"))
		return
	}

	refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh"))
	var chats []*models.Chat
	if refresh {
		chats = h.driver.LoadChatList(r.Context(), sessionID)
	} else {
		chats = h.driver.GetChats(sessionID)
		if len(chats) == 0 {
			chats = h.driver.LoadChatList(r.Context(), sessionID)
		}
	}

	models.RespondWithJSON(w, http.StatusOK, models.NewSuccessResponse("Conversas carregadas", chats))
}

// @Summary Open a chat
// @Description Opens a conversation by display name or by synthetic chat id from the current snapshot
// @Tags chats
// @Accept json
// @Produce json
// @Param request body models.OpenChatRequest true "Chat to open"
// @Success 200 {object} models.APIResponse
// @Failure 400 {object} models.APIResponse
// @Failure 404 {object} models.APIResponse
// @Router /chats/open [post]
func (h *HTTPHandler) OpenChat(w http.ResponseWriter, r *http.Request) {
	var req models.OpenChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		models.RespondWithJSON(w, http.StatusBadRequest, models.NewErrorResponse("Erro ao decodificar requisição: "+err.Error()))
		return
	}
	if req.SessionID == "" {
		models.RespondWithJSON(w, http.StatusBadRequest, models.NewErrorResponse("sessionId é obrigatório"))
		return
	}

	chatName := req.Phone
	if req.ChatID != "" {
		name, ok := h.driver.ChatNameByID(req.SessionID, req.ChatID)
		if !ok {
			models.RespondWithJSON(w, http.StatusNotFound, models.NewErrorResponse("Chat não está no snapshot atual, recarregue a lista"))
			return
		}
		chatName = name
	}
	if chatName == "" {
		models.RespondWithJSON(w, http.StatusBadRequest, models.NewErrorResponse("Informe chatId ou phone"))
		return
	}

	handle := h.driver.OpenChat(r.Context(), req.SessionID, chatName)
	if handle == nil {
		models.RespondWithJSON(w, http.StatusNotFound, models.NewErrorResponse("Conversa não encontrada"))
		return
	}
	models.RespondWithJSON(w, http.StatusOK, models.NewSuccessResponse("Conversa aberta", map[string]string{
		"sessionId": handle.SessionID,
		"chatName":  handle.ChatName,
	}))
}

// @Summary Get messages from a chat
// @Description Opens the chat by name and returns up to limit messages, oldest first
// @Tags chats
// @Produce json
// @Param sessionId query string true "Session id"
// @Param chatName query string true "Chat display name"
// @Param limit query int false "Max messages (default 50)"
// @Success 200 {object} models.APIResponse
// @Failure 400 {object} models.APIResponse
// @Failure 404 {object} models.APIResponse
// @Router /chats/messages [get]
func (h *HTTPHandler) GetMessages(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	chatName := r.URL.Query().Get("chatName")
	if sessionID == "" || chatName == "" {
		models.RespondWithJSON(w, http.StatusBadRequest, models.NewErrorResponse("sessionId e chatName são obrigatórios"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	handle := h.driver.OpenChat(r.Context(), sessionID, chatName)
	if handle == nil {
		models.RespondWithJSON(w, http.StatusNotFound, models.NewErrorResponse("Conversa não encontrada"))
		return
	}

	messages := h.driver.GetMessages(r.Context(), handle, limit)
	models.RespondWithJSON(w, http.StatusOK, models.NewSuccessResponse("Mensagens carregadas", messages))
}

// @Summary Send a message
// @Description Sends directly through the driver. With phone set uses the deep-link path, with chatId resolves and opens the chat first.
// @Tags chats
// @Accept json
// @Produce json
// @Param request body models.SendMessageRequest true "Message details"
// @Success 200 {object} models.APIResponse
// @Failure 400 {object} models.APIResponse
// @Failure 502 {object} models.APIResponse
// @Router /chats/messages [post]
func (h *HTTPHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req models.SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.LogError("Erro ao decodificar requisição /chats/messages: %v", err)
		models.RespondWithJSON(w, http.StatusBadRequest, models.NewErrorResponse("Erro ao decodificar requisição: "+err.Error()))
		return
	}
	if req.SessionID == "" || req.Message == "" {
		models.RespondWithJSON(w, http.StatusBadRequest, models.NewErrorResponse("sessionId e message são obrigatórios"))
		return
	}
	if req.MediaURL != "" && !utils.IsURL(req.MediaURL) {
		models.RespondWithJSON(w, http.StatusBadRequest, models.NewErrorResponse("mediaUrl inválida"))
		return
	}

	var outcome services.SendOutcome
	switch {
	case req.Phone != "":
		outcome = h.driver.SendMessageToNumber(r.Context(), req.SessionID, req.Phone, req.Message)
	case req.ChatID != "":
		outcome = h.driver.SendToChatID(r.Context(), req.SessionID, req.ChatID, req.Message)
	default:
		models.RespondWithJSON(w, http.StatusBadRequest, models.NewErrorResponse("Informe chatId ou phone"))
		return
	}

	if !outcome.Success {
		utils.LogWarning("Envio falhou na sessão %s: %s", req.SessionID, outcome.Error)
		models.RespondWithJSON(w, http.StatusBadGateway, models.NewErrorResponse(outcome.Error))
		return
	}

	models.RespondWithJSON(w, http.StatusOK, models.NewSuccessResponse("Mensagem enviada", &models.SendResult{
		SessionID: req.SessionID,
		ChatID:    req.ChatID,
		Phone:     req.Phone,
		SentAt:    time.Now().UTC().Format(time.RFC3339),
	}))
}

// @Summary Queue an outbound message
// @Description Appends the message to the session FIFO, delivered asynchronously by the dispatcher
// @Tags queue
// @Accept json
// @Produce json
// @Param request body models.QueueMessageRequest true "Message to queue"
// @Success 202 {object} models.APIResponse
// @Failure 400 {object} models.APIResponse
// @Router /chats/queue [post]
func (h *HTTPHandler) QueueMessage(w http.ResponseWriter, r *http.Request) {
	var req models.QueueMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		models.RespondWithJSON(w, http.StatusBadRequest, models.NewErrorResponse("Erro ao decodificar requisição: "+err.Error()))
		return
	}
	if req.SessionID == "" || req.ChatID == "" || req.Message == "" {
		models.RespondWithJSON(w, http.StatusBadRequest, models.NewErrorResponse("sessionId, chatId e message são obrigatórios"))
		return
	}

	item := h.queue.QueueMessage(req.SessionID, req.ChatID, req.Message, req.MediaURL)
	models.RespondWithJSON(w, http.StatusAccepted, models.NewSuccessResponse("Mensagem enfileirada", item))
}

// @Summary Queue status
// @Description Returns the session queue, including failed items retained for inspection
// @Tags queue
// @Produce json
// @Param sessionId query string true "Session id"
// @Success 200 {object} models.APIResponse
// @Failure 400 {object} models.APIResponse
// @Router /chats/queue [get]
func (h *HTTPHandler) GetQueueStatus(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		models.RespondWithJSON(w, http.StatusBadRequest, models.NewErrorResponse("sessionId é obrigatório"))
		return
	}
	models.RespondWithJSON(w, http.StatusOK, models.NewSuccessResponse("Fila da sessão", h.queue.GetQueueStatus(sessionID)))
}
