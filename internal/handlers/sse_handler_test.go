package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whatsapp-web-bot/internal/services"
	"whatsapp-web-bot/internal/wanotify"
)

func newTestSSEHandler(t *testing.T) (*SSEHandler, *services.SessionSupervisor, *wanotify.Bus) {
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
	t.Cleanup(driver.Close)
	return NewSSEHandler(supervisor, driver, bus), supervisor, bus
}

func streamFor(t *testing.T, handler http.HandlerFunc, target string, d time.Duration) string {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	rr := httptest.NewRecorder()
	handler(rr, httptest.NewRequest(http.MethodGet, target, nil).WithContext(ctx))
	return rr.Body.String()
}

func TestSessionEventsSendsStatusSnapshot(t *testing.T) {
	h, supervisor, _ := newTestSSEHandler(t)

	_, err := supervisor.Create(context.Background(), "s1", "alice", "")
	require.NoError(t, err)

	body := streamFor(t, h.SessionEvents, "/api/v1/sessions/events?sessionId=s1", 50*time.Millisecond)
	assert.Contains(t, body, "event: status")
	assert.Contains(t, body, `"initializing"`)
}

func TestSessionEventsRequiresSessionID(t *testing.T) {
	h, _, _ := newTestSSEHandler(t)

	rr := httptest.NewRecorder()
	h.SessionEvents(rr, httptest.NewRequest(http.MethodGet, "/api/v1/sessions/events", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestChatEventsSendsReadySnapshot(t *testing.T) {
	h, supervisor, bus := newTestSSEHandler(t)

	_, err := supervisor.Create(context.Background(), "s1", "alice", "")
	require.NoError(t, err)

	// driver inicializa ao ver connected no bus
	bus.Publish(wanotify.TopicConnected, "s1", nil)
	require.Eventually(t, func() bool {
		return h.driver.IsReady("s1")
	}, time.Second, 5*time.Millisecond, "driver deveria estar pronto após connected")

	body := streamFor(t, h.ChatEvents, "/api/v1/chats/events?sessionId=s1", 50*time.Millisecond)
	assert.Contains(t, body, "event: ready")
	assert.Contains(t, body, "event: chats")
}

func TestChatEventsNoSnapshotBeforeReady(t *testing.T) {
	h, supervisor, _ := newTestSSEHandler(t)

	_, err := supervisor.Create(context.Background(), "s1", "alice", "")
	require.NoError(t, err)

	body := streamFor(t, h.ChatEvents, "/api/v1/chats/events?sessionId=s1", 50*time.Millisecond)
	assert.NotContains(t, body, "event: ready")
}
