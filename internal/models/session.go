package models

import "time"

// Status do ciclo de vida de uma sessão (máquina de estados do supervisor)
const (
	StatusInitializing = "initializing"
	StatusQRReady      = "qr_ready"
	StatusConnected    = "connected"
	StatusDisconnected = "disconnected"
	StatusError        = "error"
)

type Session struct {
	ID          string     `json:"id"`
	UserID      string     `json:"userId"`
	DeviceName  string     `json:"deviceName,omitempty"`
	Status      string     `json:"status"`
	QRCode      string     `json:"qrCode,omitempty"`
	PhoneNumber string     `json:"phoneNumber,omitempty"`
	PushName    string     `json:"pushName,omitempty"`
	ProfilePic  string     `json:"profilePic,omitempty"`
	Platform    string     `json:"platform,omitempty"`
	Error       string     `json:"error,omitempty"`
	LastQRAt    *time.Time `json:"lastQrUpdate,omitempty"`
	LastSyncAt  *time.Time `json:"lastSyncAt,omitempty"`
	ConnectedAt *time.Time `json:"connectedAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// SessionRecord é a projeção da sessão persistida no banco. Só o recorder
// escreve esse registro, o restante do sistema lê o estado vivo do supervisor.
type SessionRecord struct {
	ID             string
	UserID         string
	DeviceName     string
	Status         string
	PhoneNumber    string
	PushName       string
	ProfilePic     string
	Platform       string
	Error          string
	ConnectedAt    *time.Time
	LastSyncAt     *time.Time
	DisconnectedAt *time.Time
	UpdatedAt      time.Time
}

type SessionRepository interface {
	Save(record *SessionRecord) error
	UpdateStatus(sessionID string, status string, errorMsg string) error
	UpdateProfile(sessionID string, phoneNumber, pushName, profilePic, platform string) error
	SetConnected(sessionID string, at time.Time) error
	SetDisconnected(sessionID string, at time.Time) error
	Touch(sessionID string, syncedAt time.Time) error
	GetByID(sessionID string) (*SessionRecord, error)
	GetByUser(userID string) ([]*SessionRecord, error)
}
