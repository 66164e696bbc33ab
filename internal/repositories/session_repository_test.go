package repositories

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whatsapp-web-bot/config"
	"whatsapp-web-bot/internal/models"
	"whatsapp-web-bot/internal/wanotify"
)

func newTestRepo(t *testing.T) *SQLiteSessionRepository {
	t.Helper()
	db, err := config.ConnectDatabase(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewSQLiteSessionRepository(db)
}

func TestSaveAndGetByID(t *testing.T) {
	repo := newTestRepo(t)

	connectedAt := time.Now().Add(-time.Minute)
	err := repo.Save(&models.SessionRecord{
		ID:          "wa_1_abc",
		UserID:      "alice",
		DeviceName:  "Atendimento 01",
		Status:      models.StatusConnected,
		PhoneNumber: "5511999999999",
		PushName:    "Alice",
		Platform:    "WhatsApp Web",
		ConnectedAt: &connectedAt,
	})
	require.NoError(t, err)

	rec, err := repo.GetByID("wa_1_abc")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "alice", rec.UserID)
	assert.Equal(t, models.StatusConnected, rec.Status)
	assert.Equal(t, "5511999999999", rec.PhoneNumber)
	require.NotNil(t, rec.ConnectedAt)

	missing, err := repo.GetByID("não-existe")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSaveUpsertsExistingRow(t *testing.T) {
	repo := newTestRepo(t)

	require.NoError(t, repo.Save(&models.SessionRecord{ID: "wa_1", UserID: "alice", Status: models.StatusConnected}))
	require.NoError(t, repo.Save(&models.SessionRecord{ID: "wa_1", UserID: "alice", Status: models.StatusConnected, PushName: "Alice"}))

	rec, err := repo.GetByID("wa_1")
	require.NoError(t, err)
	assert.Equal(t, "Alice", rec.PushName)

	records, err := repo.GetByUser("alice")
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestUpdateStatusCreatesMinimalRow(t *testing.T) {
	repo := newTestRepo(t)

	// erro antes da sessão ter sido salva
	require.NoError(t, repo.UpdateStatus("wa_err", models.StatusError, "Authentication timeout"))

	rec, err := repo.GetByID("wa_err")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, models.StatusError, rec.Status)
	assert.Equal(t, "Authentication timeout", rec.Error)
}

func TestConnectionTimestamps(t *testing.T) {
	repo := newTestRepo(t)
	require.NoError(t, repo.Save(&models.SessionRecord{ID: "wa_1", UserID: "bob", Status: models.StatusQRReady}))

	at := time.Now()
	require.NoError(t, repo.SetConnected("wa_1", at))
	rec, err := repo.GetByID("wa_1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusConnected, rec.Status)
	require.NotNil(t, rec.ConnectedAt)

	require.NoError(t, repo.SetDisconnected("wa_1", at.Add(time.Minute)))
	rec, err = repo.GetByID("wa_1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusDisconnected, rec.Status)
	require.NotNil(t, rec.DisconnectedAt)

	require.NoError(t, repo.Touch("wa_1", at.Add(2*time.Minute)))
	rec, err = repo.GetByID("wa_1")
	require.NoError(t, err)
	require.NotNil(t, rec.LastSyncAt)
}

func TestRecorderMirrorsBusEvents(t *testing.T) {
	repo := newTestRepo(t)
	bus := wanotify.NewBus()
	recorder := NewSessionRecorder(repo, bus)
	defer recorder.Close()

	connectedAt := time.Now()
	session := &models.Session{
		ID:          "wa_1",
		UserID:      "alice",
		Status:      models.StatusConnected,
		PhoneNumber: "5511988887777",
		PushName:    "Alice",
		ConnectedAt: &connectedAt,
	}

	bus.Publish(wanotify.TopicConnected, "wa_1", session)
	rec, err := repo.GetByID("wa_1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "5511988887777", rec.PhoneNumber)

	session.PushName = "Alice Silva"
	bus.Publish(wanotify.TopicSync, "wa_1", session)
	rec, err = repo.GetByID("wa_1")
	require.NoError(t, err)
	assert.Equal(t, "Alice Silva", rec.PushName)
	require.NotNil(t, rec.LastSyncAt)

	bus.Publish(wanotify.TopicDisconnected, "wa_1", "")
	rec, err = repo.GetByID("wa_1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusDisconnected, rec.Status)
	require.NotNil(t, rec.DisconnectedAt)

	// tópicos transientes não criam linha
	bus.Publish(wanotify.TopicStatus, "wa_2", models.StatusQRReady)
	rec, err = repo.GetByID("wa_2")
	require.NoError(t, err)
	assert.Nil(t, rec)
}
