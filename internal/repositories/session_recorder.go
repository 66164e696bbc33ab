package repositories

import (
	"time"

	"whatsapp-web-bot/internal/models"
	"whatsapp-web-bot/internal/utils"
	"whatsapp-web-bot/internal/wanotify"
)

// SessionRecorder assina o bus e espelha as transições de sessão no banco.
// É o único escritor do SessionRepository, o supervisor não conhece o banco.
type SessionRecorder struct {
	repo models.SessionRepository
	stop func()
}

func NewSessionRecorder(repo models.SessionRepository, bus *wanotify.Bus) *SessionRecorder {
	r := &SessionRecorder{repo: repo}
	r.stop = bus.Subscribe("", r.handle)
	return r
}

func (r *SessionRecorder) Close() {
	if r.stop != nil {
		r.stop()
	}
}

func (r *SessionRecorder) handle(ev wanotify.Event) {
	var err error
	switch ev.Topic {
	case wanotify.TopicConnected:
		session, ok := ev.Data.(*models.Session)
		if !ok {
			return
		}
		err = r.repo.Save(&models.SessionRecord{
			ID:          session.ID,
			UserID:      session.UserID,
			DeviceName:  session.DeviceName,
			Status:      session.Status,
			PhoneNumber: session.PhoneNumber,
			PushName:    session.PushName,
			ProfilePic:  session.ProfilePic,
			Platform:    session.Platform,
			Error:       session.Error,
			ConnectedAt: session.ConnectedAt,
			LastSyncAt:  session.LastSyncAt,
		})
	case wanotify.TopicSync:
		session, ok := ev.Data.(*models.Session)
		if !ok {
			return
		}
		err = r.repo.UpdateProfile(session.ID, session.PhoneNumber, session.PushName, session.ProfilePic, session.Platform)
		if err == nil {
			err = r.repo.Touch(session.ID, ev.Timestamp)
		}
	case wanotify.TopicStatus:
		status, ok := ev.Data.(string)
		if !ok {
			return
		}
		switch status {
		case models.StatusConnected:
			err = r.repo.SetConnected(ev.SessionID, ev.Timestamp)
		case models.StatusDisconnected:
			err = r.repo.SetDisconnected(ev.SessionID, ev.Timestamp)
		case models.StatusError:
			err = r.repo.UpdateStatus(ev.SessionID, status, "")
		default:
			// initializing e qr_ready são transientes, não vão para o banco
		}
	case wanotify.TopicError:
		msg, _ := ev.Data.(string)
		err = r.repo.UpdateStatus(ev.SessionID, models.StatusError, msg)
	case wanotify.TopicDisconnected:
		err = r.repo.SetDisconnected(ev.SessionID, time.Now())
	}

	if err != nil {
		utils.LogWarning("Recorder: falha ao persistir evento %s da sessão %s: %v", ev.Topic, ev.SessionID, err)
	}
}
