package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"whatsapp-web-bot/internal/models"
)

// SQLiteSessionRepository persiste o último estado conhecido de cada sessão.
// O núcleo nunca lê daqui, quem escreve é o gravador de eventos e quem lê
// são ferramentas externas e o histórico pós-restart.
type SQLiteSessionRepository struct {
	db *sql.DB
}

func NewSQLiteSessionRepository(db *sql.DB) *SQLiteSessionRepository {
	return &SQLiteSessionRepository{db: db}
}

func (r *SQLiteSessionRepository) Save(rec *models.SessionRecord) error {
	now := time.Now()
	_, err := r.db.Exec(`
		INSERT INTO sessions (id, user_id, device_name, status, phone_number, push_name,
			profile_pic, platform, error, connected_at, last_sync_at, disconnected_at,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			phone_number = excluded.phone_number,
			push_name = excluded.push_name,
			profile_pic = excluded.profile_pic,
			platform = excluded.platform,
			error = excluded.error,
			connected_at = excluded.connected_at,
			last_sync_at = excluded.last_sync_at,
			disconnected_at = excluded.disconnected_at,
			updated_at = excluded.updated_at`,
		rec.ID, rec.UserID, rec.DeviceName, rec.Status, rec.PhoneNumber, rec.PushName,
		rec.ProfilePic, rec.Platform, rec.Error, rec.ConnectedAt, rec.LastSyncAt,
		rec.DisconnectedAt, now, now)
	if err != nil {
		return fmt.Errorf("erro ao salvar sessão: %v", err)
	}
	return nil
}

// UpdateStatus grava o status mesmo quando a sessão nunca chegou a ser
// salva (erro antes de conectar), criando a linha mínima se preciso.
func (r *SQLiteSessionRepository) UpdateStatus(sessionID, status, errMsg string) error {
	now := time.Now()
	_, err := r.db.Exec(`
		INSERT INTO sessions (id, user_id, status, error, created_at, updated_at)
		VALUES (?, '', ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			error = excluded.error,
			updated_at = excluded.updated_at`,
		sessionID, status, errMsg, now, now)
	if err != nil {
		return fmt.Errorf("erro ao atualizar status: %v", err)
	}
	return nil
}

func (r *SQLiteSessionRepository) UpdateProfile(sessionID, phoneNumber, pushName, profilePic, platform string) error {
	_, err := r.db.Exec(`
		UPDATE sessions SET
			phone_number = CASE WHEN ? != '' THEN ? ELSE phone_number END,
			push_name    = CASE WHEN ? != '' THEN ? ELSE push_name END,
			profile_pic  = CASE WHEN ? != '' THEN ? ELSE profile_pic END,
			platform     = CASE WHEN ? != '' THEN ? ELSE platform END,
			updated_at   = ?
		WHERE id = ?`,
		phoneNumber, phoneNumber, pushName, pushName, profilePic, profilePic,
		platform, platform, time.Now(), sessionID)
	if err != nil {
		return fmt.Errorf("erro ao atualizar perfil: %v", err)
	}
	return nil
}

func (r *SQLiteSessionRepository) SetConnected(sessionID string, at time.Time) error {
	_, err := r.db.Exec(`UPDATE sessions SET status = ?, connected_at = ?, updated_at = ? WHERE id = ?`,
		models.StatusConnected, at, time.Now(), sessionID)
	if err != nil {
		return fmt.Errorf("erro ao marcar conexão: %v", err)
	}
	return nil
}

func (r *SQLiteSessionRepository) SetDisconnected(sessionID string, at time.Time) error {
	_, err := r.db.Exec(`UPDATE sessions SET status = ?, disconnected_at = ?, updated_at = ? WHERE id = ?`,
		models.StatusDisconnected, at, time.Now(), sessionID)
	if err != nil {
		return fmt.Errorf("erro ao marcar desconexão: %v", err)
	}
	return nil
}

func (r *SQLiteSessionRepository) Touch(sessionID string, syncedAt time.Time) error {
	_, err := r.db.Exec(`UPDATE sessions SET last_sync_at = ?, updated_at = ? WHERE id = ?`,
		syncedAt, time.Now(), sessionID)
	if err != nil {
		return fmt.Errorf("erro ao atualizar sync: %v", err)
	}
	return nil
}

func (r *SQLiteSessionRepository) GetByID(sessionID string) (*models.SessionRecord, error) {
	row := r.db.QueryRow(`
		SELECT id, user_id, device_name, status, phone_number, push_name, profile_pic,
			platform, error, connected_at, last_sync_at, disconnected_at
		FROM sessions WHERE id = ?`, sessionID)

	rec := &models.SessionRecord{}
	err := row.Scan(&rec.ID, &rec.UserID, &rec.DeviceName, &rec.Status, &rec.PhoneNumber,
		&rec.PushName, &rec.ProfilePic, &rec.Platform, &rec.Error,
		&rec.ConnectedAt, &rec.LastSyncAt, &rec.DisconnectedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("erro ao buscar sessão: %v", err)
	}
	return rec, nil
}

func (r *SQLiteSessionRepository) GetByUser(userID string) ([]*models.SessionRecord, error) {
	rows, err := r.db.Query(`
		SELECT id, user_id, device_name, status, phone_number, push_name, profile_pic,
			platform, error, connected_at, last_sync_at, disconnected_at
		FROM sessions WHERE user_id = ? ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("erro ao listar sessões: %v", err)
	}
	defer rows.Close()

	records := make([]*models.SessionRecord, 0)
	for rows.Next() {
		rec := &models.SessionRecord{}
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.DeviceName, &rec.Status,
			&rec.PhoneNumber, &rec.PushName, &rec.ProfilePic, &rec.Platform, &rec.Error,
			&rec.ConnectedAt, &rec.LastSyncAt, &rec.DisconnectedAt); err != nil {
			return nil, fmt.Errorf("erro ao ler sessão: %v", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
