package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whatsapp-web-bot/internal/wanotify"
)

func testDriverOptions() DriverOptions {
	return DriverOptions{
		ChatListTimeout: time.Second,
		MessageTimeout:  time.Second,
		SendTimeout:     time.Second,
		SearchDelay:     time.Millisecond,
		SettleDelay:     time.Millisecond,
		NavSettle:       time.Millisecond,
		UnreadInterval:  time.Hour,
		InitDelay:       time.Millisecond,
	}
}

func newTestDriver(page *fakePage, bus *wanotify.Bus) *ChatDriver {
	d := NewChatDriver(&fakePages{page: page}, bus, testDriverOptions())
	d.initChatSession("s1")
	return d
}

type fakeChat struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	LastMessage string `json:"lastMessage"`
	UnreadCount int    `json:"unreadCount"`
	IsGroup     bool   `json:"isGroup"`
}

type fakeUnread struct {
	ChatID string `json:"chatId"`
	Count  int    `json:"count"`
	Name   string `json:"name"`
}

// evalFor devolve um evalFn que responde por tipo de script raspado.
func evalFor(chats *[]fakeChat, unread *[]fakeUnread, messages *[]map[string]interface{}) func(js string, out interface{}) error {
	return func(js string, out interface{}) error {
		switch {
		case strings.Contains(js, "unreadBadges"):
			if unread == nil {
				return evalJSON(out, []fakeUnread{})
			}
			return evalJSON(out, *unread)
		case strings.Contains(js, "msg-container"):
			if messages == nil {
				return evalJSON(out, []map[string]interface{}{})
			}
			return evalJSON(out, *messages)
		default:
			if chats == nil {
				return evalJSON(out, []fakeChat{})
			}
			return evalJSON(out, *chats)
		}
	}
}

func TestLoadChatListReplacesSnapshot(t *testing.T) {
	page := newFakePage()
	bus := wanotify.NewBus()
	d := newTestDriver(page, bus)

	chats := []fakeChat{
		{ID: "chat_0_alice", Name: "Alice", UnreadCount: 2},
		{ID: "chat_1_bob", Name: "Bob"},
		{ID: "chat_2_equipe", Name: "Equipe", IsGroup: true},
	}
	page.mu.Lock()
	page.evalFn = evalFor(&chats, nil, nil)
	page.mu.Unlock()

	loaded := d.LoadChatList(context.Background(), "s1")
	require.Len(t, loaded, 3)
	assert.Equal(t, "Alice", loaded[0].Name)
	assert.True(t, loaded[2].IsGroup)

	// DOM encolheu: o snapshot novo substitui o anterior por inteiro
	chats = []fakeChat{{ID: "chat_0_bob", Name: "Bob"}}
	loaded = d.LoadChatList(context.Background(), "s1")
	require.Len(t, loaded, 1)
	assert.Len(t, d.GetChats("s1"), 1, "entradas antigas não podem sobreviver ao reload")
	assert.Equal(t, "Bob", d.GetChats("s1")[0].Name)
}

func TestLoadChatListWhenNotReady(t *testing.T) {
	page := newFakePage()
	bus := wanotify.NewBus()
	d := NewChatDriver(&fakePages{page: page}, bus, testDriverOptions())

	// sessão nunca inicializada: lista vazia, sem erro
	assert.Empty(t, d.LoadChatList(context.Background(), "desconhecida"))
	assert.Empty(t, d.GetChats("desconhecida"))
	assert.False(t, d.IsReady("desconhecida"))
}

func TestUnreadEmitsOnlyOnChange(t *testing.T) {
	page := newFakePage()
	bus := wanotify.NewBus()
	d := newTestDriver(page, bus)

	var events []wanotify.Event
	bus.Subscribe("s1", func(ev wanotify.Event) {
		if ev.Topic == wanotify.TopicUnread {
			events = append(events, ev)
		}
	})

	unread := []fakeUnread{{ChatID: "chat_0_alice", Count: 3, Name: "Alice"}}
	page.mu.Lock()
	page.evalFn = evalFor(nil, &unread, nil)
	page.mu.Unlock()

	d.checkUnread(context.Background(), "s1")
	d.checkUnread(context.Background(), "s1")
	assert.Len(t, events, 1, "contagem repetida não é evento")

	unread = []fakeUnread{{ChatID: "chat_0_alice", Count: 5, Name: "Alice"}}
	d.checkUnread(context.Background(), "s1")
	require.Len(t, events, 2)

	payload := events[1].Data.(map[string]interface{})
	assert.Equal(t, 5, payload["count"])
}

func TestOpenChatReturnsHandle(t *testing.T) {
	page := newFakePage()
	bus := wanotify.NewBus()
	d := newTestDriver(page, bus)

	page.set(selSearchBox, true)
	page.set(selChatCell, true)

	handle := d.OpenChat(context.Background(), "s1", "Alice")
	require.NotNil(t, handle)
	assert.Equal(t, "s1", handle.SessionID)
	assert.Equal(t, "Alice", handle.ChatName)

	page.mu.Lock()
	assert.Equal(t, "Alice", page.inputs[selSearchBox])
	page.mu.Unlock()
}

func TestOpenChatFailsWithoutResults(t *testing.T) {
	page := newFakePage()
	bus := wanotify.NewBus()
	d := newTestDriver(page, bus)

	page.set(selSearchBox, true)
	// nenhum resultado de busca
	assert.Nil(t, d.OpenChat(context.Background(), "s1", "Ninguém"))
}

func TestGetMessagesOldestFirst(t *testing.T) {
	page := newFakePage()
	bus := wanotify.NewBus()
	d := newTestDriver(page, bus)

	page.set(selSearchBox, true)
	page.set(selChatCell, true)

	// o script já devolve em ordem cronológica (o reverse acontece no JS)
	messages := []map[string]interface{}{
		{"id": "msg_1", "body": "oi", "isFromMe": false, "timestamp": "14:30", "fromName": "Alice", "hasMedia": false},
		{"id": "msg_0", "body": "tudo bem?", "isFromMe": true, "timestamp": "14:32", "fromName": "Me", "hasMedia": false},
	}
	page.mu.Lock()
	page.evalFn = evalFor(nil, nil, &messages)
	page.mu.Unlock()

	handle := d.OpenChat(context.Background(), "s1", "Alice")
	require.NotNil(t, handle)

	got := d.GetMessages(context.Background(), handle, 50)
	require.Len(t, got, 2)
	assert.Equal(t, "oi", got[0].Body)
	assert.Equal(t, "read", got[0].Status, "histórico raspado volta como lido")
	assert.Equal(t, "me", got[1].From)
	assert.True(t, got[1].IsFromMe)
}

func TestGetMessagesWithNilHandle(t *testing.T) {
	page := newFakePage()
	bus := wanotify.NewBus()
	d := newTestDriver(page, bus)
	assert.Empty(t, d.GetMessages(context.Background(), nil, 50))
}

func TestSendMessageWithoutSendButton(t *testing.T) {
	page := newFakePage()
	bus := wanotify.NewBus()
	d := newTestDriver(page, bus)

	page.set(selSearchBox, true)
	page.set(selChatCell, true)
	handle := d.OpenChat(context.Background(), "s1", "Alice")
	require.NotNil(t, handle)

	// campo de texto presente, botão de enviar ausente
	outcome := d.SendMessage(context.Background(), handle, "olá")
	assert.False(t, outcome.Success)
	assert.Equal(t, "Send button not found", outcome.Error)
}

func TestSendMessageSuccess(t *testing.T) {
	page := newFakePage()
	bus := wanotify.NewBus()
	d := newTestDriver(page, bus)

	var sent []wanotify.Event
	bus.Subscribe("s1", func(ev wanotify.Event) {
		if ev.Topic == wanotify.TopicMessageSent {
			sent = append(sent, ev)
		}
	})

	page.set(selSearchBox, true)
	page.set(selChatCell, true)
	page.set(selSendButton, true)

	handle := d.OpenChat(context.Background(), "s1", "Alice")
	require.NotNil(t, handle)

	outcome := d.SendMessage(context.Background(), handle, "olá")
	assert.True(t, outcome.Success)
	assert.Empty(t, outcome.Error)
	assert.Len(t, sent, 1)

	page.mu.Lock()
	assert.Equal(t, "olá", page.inputs[selComposeInput])
	page.mu.Unlock()
}

func TestSendMessageToNumberInvalid(t *testing.T) {
	page := newFakePage()
	bus := wanotify.NewBus()
	d := newTestDriver(page, bus)

	page.set(selInvalidNumber, true)
	outcome := d.SendMessageToNumber(context.Background(), "s1", "(11) 99999-9999", "olá")
	assert.False(t, outcome.Success)
	assert.Equal(t, "Número de telefone inválido", outcome.Error)
}

func TestSendMessageToNumberDeepLink(t *testing.T) {
	page := newFakePage()
	bus := wanotify.NewBus()
	d := newTestDriver(page, bus)

	page.set(selSendButton, true)
	outcome := d.SendMessageToNumber(context.Background(), "s1", "(11) 99999-9999", "olá mundo")
	assert.True(t, outcome.Success)

	page.mu.Lock()
	require.Len(t, page.navs, 1)
	nav := page.navs[0]
	page.mu.Unlock()

	assert.Contains(t, nav, "phone=5511999999999", "número deve ser normalizado com DDI")
	assert.Contains(t, nav, "text=ol%C3%A1+mundo")
}

func TestSendToChatIDResolvesName(t *testing.T) {
	page := newFakePage()
	bus := wanotify.NewBus()
	d := newTestDriver(page, bus)

	chats := []fakeChat{{ID: "chat_0_alice", Name: "Alice"}}
	page.mu.Lock()
	page.evalFn = evalFor(&chats, nil, nil)
	page.mu.Unlock()
	d.LoadChatList(context.Background(), "s1")

	page.set(selSearchBox, true)
	page.set(selChatCell, true)
	page.set(selSendButton, true)

	outcome := d.SendToChatID(context.Background(), "s1", "chat_0_alice", "oi")
	assert.True(t, outcome.Success)

	outcome = d.SendToChatID(context.Background(), "s1", "chat_9_fantasma", "oi")
	assert.False(t, outcome.Success)
	assert.Contains(t, outcome.Error, "não está no snapshot atual")
}

func TestCleanupOnDisconnect(t *testing.T) {
	page := newFakePage()
	bus := wanotify.NewBus()
	d := newTestDriver(page, bus)
	require.True(t, d.IsReady("s1"))

	bus.Publish(wanotify.TopicDisconnected, "s1", "")
	assert.False(t, d.IsReady("s1"), "estado do driver deve ser descartado no disconnected")
	assert.Empty(t, d.GetChats("s1"))
}
