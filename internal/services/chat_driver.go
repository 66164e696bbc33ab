package services

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"whatsapp-web-bot/internal/browser"
	"whatsapp-web-bot/internal/models"
	"whatsapp-web-bot/internal/utils"
	"whatsapp-web-bot/internal/wanotify"
)

// Seletores da área de conversas
const (
	selChatList        = `[data-testid="chat-list"]`
	selChatCell        = `[data-testid="cell-frame-container"]`
	selSearchBox       = `[data-testid="chat-list-search"]`
	selSearchContainer = `[data-testid="chat-list-search-container"]`
	selSearchClear     = `[data-testid="x-alt"]`
	selMessagesPanel   = `[data-testid="conversation-panel-messages"]`
	selComposeInput    = `[data-testid="conversation-compose-box-input"]`
	selSendButton      = `[data-testid="send"]`
	selInvalidNumber   = `[data-testid="popup-confirm-editable-input"]`
)

const chatListJS = `() => {
	const chatList = [];
	const chatCells = document.querySelectorAll('[data-testid="cell-frame-container"]');
	chatCells.forEach((cell, index) => {
		if (index >= 50) return;
		const nameEl = cell.querySelector('[data-testid="cell-frame-title"] span');
		const lastMsgEl = cell.querySelector('[data-testid="last-msg-status"]')?.nextElementSibling;
		const timeEl = cell.querySelector('[data-testid="cell-frame-secondary"]');
		const unreadEl = cell.querySelector('[data-testid="icon-unread-count"]');
		const imgEl = cell.querySelector('img[src*="pps.whatsapp.net"]');
		const groupIcon = cell.querySelector('[data-testid="default-group"]');
		const name = nameEl?.textContent || "Unknown";
		chatList.push({
			id: "chat_" + index + "_" + name.replace(/\s+/g, "_").toLowerCase(),
			name,
			lastMessage: lastMsgEl?.textContent || "",
			lastMessageTime: timeEl?.textContent || "",
			unreadCount: parseInt(unreadEl?.textContent || "0", 10) || 0,
			isGroup: !!groupIcon,
			profilePic: imgEl?.getAttribute("src") || "",
		});
	});
	return chatList;
}`

const unreadJS = `() => {
	const unreadData = [];
	const unreadBadges = document.querySelectorAll('[data-testid="icon-unread-count"]');
	unreadBadges.forEach((badge) => {
		const chatRow = badge.closest('[data-testid="cell-frame-container"]');
		if (!chatRow) return;
		const nameEl = chatRow.querySelector('[data-testid="cell-frame-title"] span');
		const count = parseInt(badge.textContent || "0", 10) || 1;
		const name = nameEl?.textContent || "Unknown";
		unreadData.push({
			chatId: chatRow.getAttribute("data-id") || ("chat_" + name.replace(/\s+/g, "_").toLowerCase()),
			count,
			name,
		});
	});
	return unreadData;
}`

const messagesJS = `(limit) => {
	const messageList = [];
	const msgContainer = document.querySelector('[data-testid="conversation-panel-messages"]');
	if (!msgContainer) return messageList;
	const msgRows = msgContainer.querySelectorAll('[data-testid="msg-container"]');
	msgRows.forEach((row, index) => {
		if (index >= limit) return;
		const isFromMe = row.classList.contains("message-out") ||
			!!row.querySelector('[data-testid="msg-dblcheck"]');
		const bodyEl = row.querySelector('[data-testid="msg-text"]') ||
			row.querySelector('.selectable-text');
		const timeEl = row.querySelector('[data-testid="msg-meta"] span');
		const senderEl = row.querySelector('[data-testid="msg-author"]');
		const mediaEl = row.querySelector('[data-testid="image-thumb"]') ||
			row.querySelector('[data-testid="video-thumb"]');
		messageList.push({
			id: "msg_" + index + "_" + Date.now(),
			body: bodyEl?.textContent || "",
			isFromMe,
			timestamp: timeEl?.textContent || "",
			fromName: senderEl?.textContent || (isFromMe ? "Me" : ""),
			hasMedia: !!mediaEl,
		});
	});
	return messageList.reverse();
}`

// PageSource entrega a página viva de uma sessão conectada. Implementado
// pelo SessionSupervisor, substituído por fakes nos testes.
type PageSource interface {
	Page(sessionID string) browser.Page
}

// ChatHandle identifica a conversa que o chamador abriu. As operações de
// leitura e envio recebem o handle para que dois chamadores na mesma sessão
// não disputem silenciosamente a conversa aberta.
type ChatHandle struct {
	SessionID string
	ChatName  string
}

// SendOutcome é o resultado de um envio. Falhas de operação voltam aqui,
// nunca como panic ou erro fatal da sessão.
type SendOutcome struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type chatSessionData struct {
	chats       map[string]*models.Chat
	chatOrder   []string
	lastUnread  map[string]int
	currentChat string
	cancel      context.CancelFunc
}

type DriverOptions struct {
	ChatListTimeout time.Duration
	MessageTimeout  time.Duration
	SendTimeout     time.Duration
	SearchDelay     time.Duration
	SettleDelay     time.Duration
	NavSettle       time.Duration
	UnreadInterval  time.Duration
	InitDelay       time.Duration
}

func (o *DriverOptions) applyDefaults() {
	if o.ChatListTimeout == 0 {
		o.ChatListTimeout = 10 * time.Second
	}
	if o.MessageTimeout == 0 {
		o.MessageTimeout = 5 * time.Second
	}
	if o.SendTimeout == 0 {
		o.SendTimeout = 30 * time.Second
	}
	if o.SearchDelay == 0 {
		o.SearchDelay = time.Second
	}
	if o.SettleDelay == 0 {
		o.SettleDelay = 500 * time.Millisecond
	}
	if o.NavSettle == 0 {
		o.NavSettle = 2 * time.Second
	}
	if o.UnreadInterval == 0 {
		o.UnreadInterval = 2 * time.Second
	}
	if o.InitDelay == 0 {
		o.InitDelay = 3 * time.Second
	}
}

// ChatDriver raspa a lista de conversas e as mensagens da sessão conectada
// e executa envios. É inicializado automaticamente quando o supervisor
// publica "connected" e descartado no "disconnected".
type ChatDriver struct {
	mu       sync.RWMutex
	sessions map[string]*chatSessionData

	pages PageSource
	bus   *wanotify.Bus
	opts  DriverOptions
	stop  func()
}

func NewChatDriver(pages PageSource, bus *wanotify.Bus, opts DriverOptions) *ChatDriver {
	opts.applyDefaults()
	d := &ChatDriver{
		sessions: make(map[string]*chatSessionData),
		pages:    pages,
		bus:      bus,
		opts:     opts,
	}
	d.stop = bus.Subscribe("", func(ev wanotify.Event) {
		switch ev.Topic {
		case wanotify.TopicConnected:
			go d.initChatSession(ev.SessionID)
		case wanotify.TopicDisconnected:
			d.cleanupChatSession(ev.SessionID)
		}
	})
	return d
}

// Close cancela a assinatura no bus e os monitores de todas as sessões.
func (d *ChatDriver) Close() {
	if d.stop != nil {
		d.stop()
	}
	d.mu.Lock()
	for id, cd := range d.sessions {
		if cd.cancel != nil {
			cd.cancel()
		}
		delete(d.sessions, id)
	}
	d.mu.Unlock()
}

func (d *ChatDriver) initChatSession(sessionID string) {
	d.mu.Lock()
	if _, ok := d.sessions[sessionID]; ok {
		d.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	cd := &chatSessionData{
		chats:      make(map[string]*models.Chat),
		lastUnread: make(map[string]int),
		cancel:     cancel,
	}
	d.sessions[sessionID] = cd
	d.mu.Unlock()

	// dá tempo da UI terminar de renderizar depois da autenticação
	time.Sleep(d.opts.InitDelay)

	go d.runUnreadMonitor(ctx, sessionID)
	d.LoadChatList(context.Background(), sessionID)

	utils.LogInfo("Driver de conversas pronto para a sessão %s", sessionID)
	d.bus.Publish(wanotify.TopicReady, sessionID, nil)
}

func (d *ChatDriver) cleanupChatSession(sessionID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cd, ok := d.sessions[sessionID]; ok {
		if cd.cancel != nil {
			cd.cancel()
		}
		delete(d.sessions, sessionID)
	}
}

func (d *ChatDriver) IsReady(sessionID string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.sessions[sessionID]
	return ok
}

func (d *ChatDriver) runUnreadMonitor(ctx context.Context, sessionID string) {
	ticker := time.NewTicker(d.opts.UnreadInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.checkUnread(ctx, sessionID)
		}
	}
}

// checkUnread raspa os badges de não lidas e publica somente quando a
// contagem de um chat mudou, para manter o stream de eventos enxuto.
func (d *ChatDriver) checkUnread(ctx context.Context, sessionID string) {
	page := d.pages.Page(sessionID)
	d.mu.RLock()
	cd, ok := d.sessions[sessionID]
	d.mu.RUnlock()
	if page == nil || !ok {
		return
	}

	var unread []struct {
		ChatID string `json:"chatId"`
		Count  int    `json:"count"`
		Name   string `json:"name"`
	}
	if err := page.Eval(ctx, unreadJS, &unread); err != nil {
		return
	}

	for _, u := range unread {
		d.mu.Lock()
		last, seen := cd.lastUnread[u.ChatID]
		changed := !seen || last != u.Count
		if changed {
			cd.lastUnread[u.ChatID] = u.Count
		}
		d.mu.Unlock()

		if changed {
			d.bus.Publish(wanotify.TopicUnread, sessionID, map[string]interface{}{
				"sessionId": sessionID,
				"chatId":    u.ChatID,
				"name":      u.Name,
				"count":     u.Count,
			})
		}
	}
}

// LoadChatList raspa até 50 conversas visíveis e substitui a coleção da
// sessão inteira pelo snapshot novo. Entradas que sumiram do DOM são
// descartadas. Sessão não conectada devolve lista vazia sem erro.
func (d *ChatDriver) LoadChatList(ctx context.Context, sessionID string) []*models.Chat {
	page := d.pages.Page(sessionID)
	d.mu.RLock()
	cd, ok := d.sessions[sessionID]
	d.mu.RUnlock()
	if page == nil || !ok {
		return []*models.Chat{}
	}

	if err := page.WaitElement(ctx, selChatList, d.opts.ChatListTimeout); err != nil {
		utils.LogWarning("Sessão %s: lista de conversas não carregou: %v", sessionID, err)
		return []*models.Chat{}
	}

	var scraped []*models.Chat
	if err := page.Eval(ctx, chatListJS, &scraped); err != nil {
		utils.LogError("Sessão %s: erro ao raspar lista de conversas: %v", sessionID, err)
		return []*models.Chat{}
	}

	d.mu.Lock()
	cd.chats = make(map[string]*models.Chat, len(scraped))
	cd.chatOrder = cd.chatOrder[:0]
	for _, chat := range scraped {
		cd.chats[chat.ID] = chat
		cd.chatOrder = append(cd.chatOrder, chat.ID)
	}
	result := d.chatsLocked(cd)
	d.mu.Unlock()

	d.bus.Publish(wanotify.TopicChats, sessionID, result)
	return result
}

func (d *ChatDriver) chatsLocked(cd *chatSessionData) []*models.Chat {
	out := make([]*models.Chat, 0, len(cd.chatOrder))
	for _, id := range cd.chatOrder {
		if chat, ok := cd.chats[id]; ok {
			out = append(out, chat)
		}
	}
	return out
}

// GetChats devolve o último snapshot sem tocar no DOM.
func (d *ChatDriver) GetChats(sessionID string) []*models.Chat {
	d.mu.RLock()
	defer d.mu.RUnlock()
	cd, ok := d.sessions[sessionID]
	if !ok {
		return []*models.Chat{}
	}
	return d.chatsLocked(cd)
}

// ChatNameByID resolve o nome de exibição a partir do id sintético do
// último snapshot. O id não é estável entre dois LoadChatList.
func (d *ChatDriver) ChatNameByID(sessionID, chatID string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	cd, ok := d.sessions[sessionID]
	if !ok {
		return "", false
	}
	chat, ok := cd.chats[chatID]
	if !ok {
		return "", false
	}
	return chat.Name, true
}

// OpenChat localiza a conversa pela busca do cliente, clica no primeiro
// resultado e limpa o campo. Devolve o handle da conversa aberta, ou nil
// quando a sequência não encontrou alvo dentro do tempo limite.
func (d *ChatDriver) OpenChat(ctx context.Context, sessionID, chatName string) *ChatHandle {
	page := d.pages.Page(sessionID)
	if page == nil {
		return nil
	}

	if has, err := page.Has(selSearchBox); err != nil || !has {
		if btn, _ := page.Has(selSearchContainer); btn {
			_ = page.Click(ctx, selSearchContainer)
			time.Sleep(d.opts.SettleDelay)
		}
	}

	if has, err := page.Has(selSearchBox); err != nil || !has {
		return nil
	}
	if err := page.Click(ctx, selSearchBox); err != nil {
		return nil
	}
	if err := page.Input(ctx, selSearchBox, chatName); err != nil {
		return nil
	}
	time.Sleep(d.opts.SearchDelay)

	if has, err := page.Has(selChatCell); err != nil || !has {
		return nil
	}
	if err := page.Click(ctx, selChatCell); err != nil {
		return nil
	}
	time.Sleep(d.opts.SettleDelay)

	if has, _ := page.Has(selSearchClear); has {
		_ = page.Click(ctx, selSearchClear)
	}

	d.mu.Lock()
	if cd, ok := d.sessions[sessionID]; ok {
		cd.currentChat = chatName
	}
	d.mu.Unlock()

	d.bus.Publish(wanotify.TopicChatReady, sessionID, chatName)
	return &ChatHandle{SessionID: sessionID, ChatName: chatName}
}

// GetMessages raspa a conversa do handle, limitada a limit linhas, em ordem
// cronológica (mais antigas primeiro). Mensagens históricas voltam com
// status read. Conversa indisponível devolve lista vazia.
func (d *ChatDriver) GetMessages(ctx context.Context, handle *ChatHandle, limit int) []models.Message {
	if handle == nil {
		return []models.Message{}
	}
	if limit <= 0 {
		limit = 50
	}
	page, err := d.pageForHandle(ctx, handle)
	if err != nil {
		return []models.Message{}
	}

	if err := page.WaitElement(ctx, selMessagesPanel, d.opts.MessageTimeout); err != nil {
		return []models.Message{}
	}

	var scraped []struct {
		ID        string `json:"id"`
		Body      string `json:"body"`
		IsFromMe  bool   `json:"isFromMe"`
		Timestamp string `json:"timestamp"`
		FromName  string `json:"fromName"`
		HasMedia  bool   `json:"hasMedia"`
	}
	js := fmt.Sprintf(`() => (%s)(%d)`, messagesJS, limit)
	if err := page.Eval(ctx, js, &scraped); err != nil {
		utils.LogDebug("Sessão %s: erro ao raspar mensagens: %v", handle.SessionID, err)
		return []models.Message{}
	}

	messages := make([]models.Message, 0, len(scraped))
	for _, m := range scraped {
		from, to := "other", "me"
		if m.IsFromMe {
			from, to = "me", "other"
		}
		messages = append(messages, models.Message{
			ID:        m.ID,
			ChatID:    handle.ChatName,
			From:      from,
			FromName:  m.FromName,
			To:        to,
			Body:      m.Body,
			Timestamp: m.Timestamp,
			IsFromMe:  m.IsFromMe,
			HasMedia:  m.HasMedia,
			Status:    models.MessageStatusRead,
		})
	}
	return messages
}

// pageForHandle garante que a conversa do handle é a que está aberta,
// reabrindo pela busca quando outro chamador trocou a conversa.
func (d *ChatDriver) pageForHandle(ctx context.Context, handle *ChatHandle) (browser.Page, error) {
	page := d.pages.Page(handle.SessionID)
	if page == nil {
		return nil, fmt.Errorf("sessão não conectada")
	}

	d.mu.RLock()
	cd, ok := d.sessions[handle.SessionID]
	current := ""
	if ok {
		current = cd.currentChat
	}
	d.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("driver não inicializado para a sessão")
	}

	if current != handle.ChatName {
		if d.OpenChat(ctx, handle.SessionID, handle.ChatName) == nil {
			return nil, fmt.Errorf("não foi possível reabrir a conversa %s", handle.ChatName)
		}
	}
	return page, nil
}

// SendMessage digita e envia o texto na conversa do handle. Falhas viram
// SendOutcome, nunca erro propagado.
func (d *ChatDriver) SendMessage(ctx context.Context, handle *ChatHandle, message string) SendOutcome {
	if handle == nil {
		return SendOutcome{Success: false, Error: "Conversa não aberta"}
	}
	page, err := d.pageForHandle(ctx, handle)
	if err != nil {
		return SendOutcome{Success: false, Error: err.Error()}
	}

	if err := page.WaitElement(ctx, selComposeInput, d.opts.MessageTimeout); err != nil {
		return SendOutcome{Success: false, Error: "Campo de mensagem não encontrado"}
	}
	if err := page.Click(ctx, selComposeInput); err != nil {
		return SendOutcome{Success: false, Error: err.Error()}
	}
	if err := page.Input(ctx, selComposeInput, message); err != nil {
		return SendOutcome{Success: false, Error: err.Error()}
	}

	if has, err := page.Has(selSendButton); err != nil || !has {
		return SendOutcome{Success: false, Error: "Send button not found"}
	}
	if err := page.Click(ctx, selSendButton); err != nil {
		return SendOutcome{Success: false, Error: err.Error()}
	}
	time.Sleep(d.opts.SettleDelay)

	d.bus.Publish(wanotify.TopicMessageSent, handle.SessionID, map[string]interface{}{
		"chat":    handle.ChatName,
		"message": message,
	})
	return SendOutcome{Success: true}
}

// SendToChatID resolve o nome do chat a partir do id sintético do último
// snapshot, abre a conversa e envia. Usado pela fila de saída.
func (d *ChatDriver) SendToChatID(ctx context.Context, sessionID, chatID, message string) SendOutcome {
	name, ok := d.ChatNameByID(sessionID, chatID)
	if !ok {
		return SendOutcome{Success: false, Error: fmt.Sprintf("chat %s não está no snapshot atual", chatID)}
	}
	handle := d.OpenChat(ctx, sessionID, name)
	if handle == nil {
		return SendOutcome{Success: false, Error: fmt.Sprintf("não foi possível abrir a conversa %s", name)}
	}
	return d.SendMessage(ctx, handle, message)
}

// SendMessageToNumber envia direto para um número sem conversa prévia, via
// deep-link. Detecta o diálogo de número inválido antes de clicar em enviar.
func (d *ChatDriver) SendMessageToNumber(ctx context.Context, sessionID, phoneNumber, message string) SendOutcome {
	page := d.pages.Page(sessionID)
	if page == nil {
		return SendOutcome{Success: false, Error: "Sessão não encontrada"}
	}

	phone := utils.NormalizePhone(phoneNumber)
	target := fmt.Sprintf("https://web.whatsapp.com/send?phone=%s&text=%s", phone, url.QueryEscape(message))
	if err := page.Navigate(ctx, target); err != nil {
		return SendOutcome{Success: false, Error: err.Error()}
	}
	time.Sleep(d.opts.NavSettle)

	if has, _ := page.Has(selInvalidNumber); has {
		return SendOutcome{Success: false, Error: "Número de telefone inválido"}
	}

	if err := page.WaitElement(ctx, selSendButton, d.opts.SendTimeout); err != nil {
		return SendOutcome{Success: false, Error: "Send button not found"}
	}
	if err := page.Click(ctx, selSendButton); err != nil {
		return SendOutcome{Success: false, Error: err.Error()}
	}
	time.Sleep(d.opts.SettleDelay)

	d.bus.Publish(wanotify.TopicMessageSent, sessionID, map[string]interface{}{
		"phone":   phone,
		"message": message,
	})
	return SendOutcome{Success: true}
}
