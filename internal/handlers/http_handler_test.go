package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whatsapp-web-bot/internal/browser"
	"whatsapp-web-bot/internal/models"
	"whatsapp-web-bot/internal/services"
	"whatsapp-web-bot/internal/wanotify"
)

// nopPage responde vazio para tudo, suficiente para exercitar a camada HTTP.
type nopPage struct{}

func (nopPage) Navigate(context.Context, string) error { return nil }
func (nopPage) URL() (string, error)                   { return "https://web.whatsapp.com/", nil }
func (nopPage) Has(string) (bool, error)               { return false, nil }
func (nopPage) WaitElement(context.Context, string, time.Duration) error {
	return context.DeadlineExceeded
}
func (nopPage) Click(context.Context, string) error                      { return nil }
func (nopPage) Input(context.Context, string, string) error              { return nil }
func (nopPage) Attribute(context.Context, string, string) (string, error) { return "", nil }
func (nopPage) ElementScreenshot(context.Context, string) ([]byte, error) { return nil, nil }
func (nopPage) Eval(context.Context, string, interface{}) error          { return nil }
func (nopPage) Close() error                                             { return nil }

type nopBrowser struct{}

func (nopBrowser) Page() browser.Page { return nopPage{} }
func (nopBrowser) Close() error       { return nil }

type nopLauncher struct{}

func (nopLauncher) Launch(context.Context, string) (browser.Browser, error) {
	return nopBrowser{}, nil
}

func newTestHandler(t *testing.T) *HTTPHandler {
	t.Helper()
	bus := wanotify.NewBus()
	supervisor := services.NewSessionSupervisor(nopLauncher{}, bus, nil, services.SupervisorOptions{
		SessionDir:     t.TempDir(),
		QRInterval:     time.Hour,
		AuthInterval:   time.Hour,
		HealthInterval: time.Hour,
		SyncInterval:   time.Hour,
	})
	driver := services.NewChatDriver(supervisor, bus, services.DriverOptions{
		ChatListTimeout: time.Millisecond,
		MessageTimeout:  time.Millisecond,
		SendTimeout:     time.Millisecond,
		SearchDelay:     time.Millisecond,
		SettleDelay:     time.Millisecond,
		NavSettle:       time.Millisecond,
		UnreadInterval:  time.Hour,
		InitDelay:       time.Millisecond,
	})
	queue := services.NewMessageQueue(driver, bus, services.QueueOptions{DispatchInterval: time.Hour})
	return NewHTTPHandler(supervisor, driver, queue, nil, bus)
}

func decodeResponse(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return body
}

func TestCreateSessionEndpoint(t *testing.T) {
	h := newTestHandler(t)

	payload := bytes.NewBufferString(`{"userId":"alice","deviceName":"Atendimento 01"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions", payload)
	rr := httptest.NewRecorder()
	h.CreateSession(rr, req)

	require.Equal(t, http.StatusCreated, rr.Code)
	body := decodeResponse(t, rr)
	assert.Equal(t, "success", body["status"])

	data := body["data"].(map[string]interface{})
	assert.Equal(t, "alice", data["userId"])
	assert.Equal(t, models.StatusInitializing, data["status"])
	assert.NotEmpty(t, data["id"])
}

func TestCreateSessionRequiresUserID(t *testing.T) {
	h := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions", bytes.NewBufferString(`{}`))
	rr := httptest.NewRecorder()
	h.CreateSession(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "error", decodeResponse(t, rr)["status"])
}

func TestGetQRCodeWhileInitializing(t *testing.T) {
	h := newTestHandler(t)

	payload := bytes.NewBufferString(`{"userId":"alice"}`)
	rr := httptest.NewRecorder()
	h.CreateSession(rr, httptest.NewRequest(http.MethodPost, "/api/v1/sessions", payload))
	require.Equal(t, http.StatusCreated, rr.Code)
	sessionID := decodeResponse(t, rr)["data"].(map[string]interface{})["id"].(string)

	rr = httptest.NewRecorder()
	h.GetQRCode(rr, httptest.NewRequest(http.MethodGet, "/api/v1/sessions/qr?sessionId="+sessionID, nil))
	assert.Equal(t, http.StatusAccepted, rr.Code)
	assert.Equal(t, "waiting", decodeResponse(t, rr)["status"])

	rr = httptest.NewRecorder()
	h.GetQRCode(rr, httptest.NewRequest(http.MethodGet, "/api/v1/sessions/qr?sessionId=wa_fantasma", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestGetSessionNotFound(t *testing.T) {
	h := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions?sessionId=wa_fantasma", nil)
	rr := httptest.NewRecorder()
	h.GetSessions(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestDestroySessionIsIdempotentOverHTTP(t *testing.T) {
	h := newTestHandler(t)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/sessions?sessionId=wa_fantasma", nil)
	rr := httptest.NewRecorder()
	h.DestroySession(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	h.DestroySession(rr, httptest.NewRequest(http.MethodDelete, "/api/v1/sessions?sessionId=wa_fantasma", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestQueueEndpoints(t *testing.T) {
	h := newTestHandler(t)

	payload := bytes.NewBufferString(`{"sessionId":"wa_1","chatId":"chat_0_alice","message":"olá"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chats/queue", payload)
	rr := httptest.NewRecorder()
	h.QueueMessage(rr, req)
	require.Equal(t, http.StatusAccepted, rr.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/chats/queue?sessionId=wa_1", nil)
	rr = httptest.NewRecorder()
	h.GetQueueStatus(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	data := decodeResponse(t, rr)["data"].(map[string]interface{})
	assert.Equal(t, float64(1), data["total"])
	assert.Equal(t, float64(1), data["queued"])
}

func TestSendMessageValidation(t *testing.T) {
	h := newTestHandler(t)

	// sem chatId nem phone
	payload := bytes.NewBufferString(`{"sessionId":"wa_1","message":"olá"}`)
	rr := httptest.NewRecorder()
	h.SendMessage(rr, httptest.NewRequest(http.MethodPost, "/api/v1/chats/messages", payload))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	// mediaUrl inválida
	payload = bytes.NewBufferString(`{"sessionId":"wa_1","chatId":"chat_0","message":"olá","mediaUrl":"não-é-url"}`)
	rr = httptest.NewRecorder()
	h.SendMessage(rr, httptest.NewRequest(http.MethodPost, "/api/v1/chats/messages", payload))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
