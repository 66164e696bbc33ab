package services

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/skip2/go-qrcode"

	"whatsapp-web-bot/internal/browser"
	"whatsapp-web-bot/internal/models"
	"whatsapp-web-bot/internal/utils"
	"whatsapp-web-bot/internal/wanotify"
)

// Seletores do WhatsApp Web. A UI não é uma API estável, então a detecção
// de autenticação usa vários marcadores alternativos.
const (
	selQRCanvas     = `canvas[aria-label="Scan this QR code to link a device!"]`
	selAnyCanvas    = `canvas`
	selQRRef        = `div[data-ref]`
	selDrawerAvatar = `[data-testid="menu-bar-avatar"]`
	selDrawerName   = `[data-testid="drawer-middle"] span[dir="auto"]`
	selDrawerPic    = `[data-testid="drawer-middle"] img[src*="pps.whatsapp.net"]`
	selDrawerCloser = `[data-testid="btn-closer-drawer"]`
	selDrawerPhone1 = `[data-testid="drawer-middle"] span[title*="+"]`
	selDrawerPhone2 = `[data-testid="drawer-subtitle"] span`
)

var authSelectors = []string{
	`[data-testid="chat-list"]`,
	`[data-testid="side"]`,
	`[data-testid="default-user"]`,
	`[data-testid="menu-bar-avatar"]`,
	`div[data-tab="3"]`,
	`#pane-side`,
}

// AvatarArchiver arquiva a foto de perfil em storage externo e devolve a
// URL permanente. Implementado pelo S3Service, opcional.
type AvatarArchiver interface {
	ArchiveAvatar(sessionID, avatarURL string) (string, error)
}

type SupervisorOptions struct {
	WebURL         string
	SessionDir     string
	NavTimeout     time.Duration
	AuthTimeout    time.Duration
	QRInterval     time.Duration
	AuthInterval   time.Duration
	HealthInterval time.Duration
	SyncInterval   time.Duration
}

func (o *SupervisorOptions) applyDefaults() {
	if o.WebURL == "" {
		o.WebURL = "https://web.whatsapp.com"
	}
	if o.SessionDir == "" {
		o.SessionDir = "./sessions"
	}
	if o.NavTimeout == 0 {
		o.NavTimeout = 60 * time.Second
	}
	if o.AuthTimeout == 0 {
		o.AuthTimeout = 5 * time.Minute
	}
	if o.QRInterval == 0 {
		o.QRInterval = 2 * time.Second
	}
	if o.AuthInterval == 0 {
		o.AuthInterval = 2 * time.Second
	}
	if o.HealthInterval == 0 {
		o.HealthInterval = 30 * time.Second
	}
	if o.SyncInterval == 0 {
		o.SyncInterval = 60 * time.Second
	}
}

type sessionData struct {
	session *models.Session
	browser browser.Browser
	page    browser.Page

	loopCtx   context.Context
	cancelAll context.CancelFunc
	cancelQR  context.CancelFunc

	healthDone bool
}

// SessionSupervisor é o dono de cada sessão: lança um navegador isolado por
// sessão, detecta QR e autenticação via polling do DOM e publica as
// transições de estado no bus.
type SessionSupervisor struct {
	mu       sync.RWMutex
	sessions map[string]*sessionData

	launcher browser.Launcher
	bus      *wanotify.Bus
	archiver AvatarArchiver
	opts     SupervisorOptions
}

func NewSessionSupervisor(launcher browser.Launcher, bus *wanotify.Bus, archiver AvatarArchiver, opts SupervisorOptions) *SessionSupervisor {
	opts.applyDefaults()
	return &SessionSupervisor{
		sessions: make(map[string]*sessionData),
		launcher: launcher,
		bus:      bus,
		archiver: archiver,
		opts:     opts,
	}
}

// NewSessionID gera um id de sessão no formato wa_<unixmilli>_<sufixo>.
func NewSessionID() string {
	return fmt.Sprintf("wa_%d_%s", time.Now().UnixMilli(), uuid.NewString()[:6])
}

// Create registra a sessão, lança o navegador e inicia os loops de QR e de
// autenticação. Idempotente: se o id já existe devolve o registro atual sem
// relançar nada.
func (s *SessionSupervisor) Create(ctx context.Context, sessionID, userID, deviceName string) (*models.Session, error) {
	s.mu.Lock()
	if existing, ok := s.sessions[sessionID]; ok {
		snapshot := cloneSession(existing.session)
		s.mu.Unlock()
		utils.LogInfo("Sessão %s já existe, retornando registro atual", sessionID)
		return snapshot, nil
	}

	session := &models.Session{
		ID:         sessionID,
		UserID:     userID,
		DeviceName: deviceName,
		Status:     models.StatusInitializing,
		CreatedAt:  time.Now(),
	}
	sd := &sessionData{session: session}
	s.sessions[sessionID] = sd
	s.mu.Unlock()

	utils.LogInfo("Criando sessão %s para usuário %s", sessionID, userID)

	userDataDir := filepath.Join(s.opts.SessionDir, "session-"+sessionID)
	b, err := s.launcher.Launch(context.Background(), userDataDir)
	if err != nil {
		return nil, s.failSession(sessionID, fmt.Sprintf("erro ao lançar navegador: %v", err))
	}

	navCtx, cancelNav := context.WithTimeout(ctx, s.opts.NavTimeout)
	defer cancelNav()
	if err := b.Page().Navigate(navCtx, s.opts.WebURL); err != nil {
		_ = b.Close()
		return nil, s.failSession(sessionID, fmt.Sprintf("erro ao navegar: %v", err))
	}

	loopCtx, cancelAll := context.WithCancel(context.Background())
	qrCtx, cancelQR := context.WithCancel(loopCtx)

	s.mu.Lock()
	sd.browser = b
	sd.page = b.Page()
	sd.loopCtx = loopCtx
	sd.cancelAll = cancelAll
	sd.cancelQR = cancelQR
	snapshot := cloneSession(session)
	s.mu.Unlock()

	go s.runQRLoop(qrCtx, sessionID)
	go s.runAuthLoop(loopCtx, sessionID)

	return snapshot, nil
}

func (s *SessionSupervisor) failSession(sessionID, message string) error {
	s.mu.Lock()
	if sd, ok := s.sessions[sessionID]; ok {
		sd.session.Status = models.StatusError
		sd.session.Error = message
	}
	s.mu.Unlock()

	utils.LogError("Sessão %s: %s", sessionID, message)
	s.bus.Publish(wanotify.TopicError, sessionID, message)
	s.bus.Publish(wanotify.TopicStatus, sessionID, models.StatusError)
	return fmt.Errorf("%s", message)
}

func (s *SessionSupervisor) runQRLoop(ctx context.Context, sessionID string) {
	ticker := time.NewTicker(s.opts.QRInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.pollQR(ctx, sessionID)
		}
	}
}

// pollQR tira um screenshot do canvas de QR e só publica quando a imagem
// muda. Ausência do canvas não é erro, a página pode ainda estar carregando
// ou já estar autenticada.
func (s *SessionSupervisor) pollQR(ctx context.Context, sessionID string) {
	s.mu.RLock()
	sd, ok := s.sessions[sessionID]
	if !ok || sd.page == nil {
		s.mu.RUnlock()
		return
	}
	page := sd.page
	s.mu.RUnlock()

	selector := selQRCanvas
	has, err := page.Has(selector)
	if err != nil {
		return
	}
	if !has {
		alt, err := page.Has(selAnyCanvas)
		if err != nil || !alt {
			return
		}
		selector = selAnyCanvas
	}

	var dataURL string
	shot, err := page.ElementScreenshot(ctx, selector)
	if err == nil && len(shot) > 0 {
		dataURL = "data:image/png;base64," + base64.StdEncoding.EncodeToString(shot)
	} else {
		// Fallback: reencoda o payload de pareamento exposto em data-ref
		ref, refErr := page.Attribute(ctx, selQRRef, "data-ref")
		if refErr != nil || ref == "" {
			return
		}
		png, encErr := qrcode.Encode(ref, qrcode.Medium, 264)
		if encErr != nil {
			return
		}
		dataURL = "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
	}

	s.mu.Lock()
	// O tick pode ter ficado em voo enquanto checkAuth autenticava a
	// sessão ou o loop era cancelado. Nesses casos o resultado é descartado.
	if ctx.Err() != nil || sd.session.Status == models.StatusConnected {
		s.mu.Unlock()
		return
	}
	if sd.session.QRCode == dataURL {
		s.mu.Unlock()
		return
	}
	now := time.Now()
	sd.session.QRCode = dataURL
	sd.session.Status = models.StatusQRReady
	sd.session.LastQRAt = &now
	s.mu.Unlock()

	utils.LogDebug("Sessão %s: novo QR code detectado", sessionID)
	s.bus.Publish(wanotify.TopicQR, sessionID, dataURL)
	s.bus.Publish(wanotify.TopicStatus, sessionID, models.StatusQRReady)
}

func (s *SessionSupervisor) runAuthLoop(ctx context.Context, sessionID string) {
	deadline := time.Now().Add(s.opts.AuthTimeout)
	ticker := time.NewTicker(s.opts.AuthInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.checkAuth(ctx, sessionID) {
				return
			}
			if time.Now().After(deadline) {
				s.authTimedOut(sessionID)
				return
			}
		}
	}
}

// checkAuth sonda os marcadores que só aparecem com a UI autenticada.
// Na primeira detecção positiva para o loop de QR, marca a sessão como
// conectada, extrai o perfil e inicia os monitores de saúde e de sync.
func (s *SessionSupervisor) checkAuth(ctx context.Context, sessionID string) bool {
	s.mu.RLock()
	sd, ok := s.sessions[sessionID]
	if !ok || sd.page == nil {
		s.mu.RUnlock()
		return false
	}
	page := sd.page
	s.mu.RUnlock()

	found := false
	for _, sel := range authSelectors {
		has, err := page.Has(sel)
		if err == nil && has {
			found = true
			break
		}
	}
	if !found {
		return false
	}

	s.mu.Lock()
	if sd.session.Status == models.StatusConnected {
		s.mu.Unlock()
		return true
	}
	if sd.cancelQR != nil {
		sd.cancelQR()
	}
	now := time.Now()
	sd.session.Status = models.StatusConnected
	sd.session.QRCode = ""
	sd.session.ConnectedAt = &now
	s.mu.Unlock()

	utils.LogInfo("Sessão %s autenticada com sucesso", sessionID)

	s.extractProfile(ctx, sessionID)

	s.mu.RLock()
	snapshot := cloneSession(sd.session)
	s.mu.RUnlock()

	s.bus.Publish(wanotify.TopicConnected, sessionID, snapshot)
	s.bus.Publish(wanotify.TopicStatus, sessionID, models.StatusConnected)

	s.mu.RLock()
	loopCtx := sd.loopCtx
	s.mu.RUnlock()
	if loopCtx == nil {
		loopCtx = context.Background()
	}

	go s.runHealthLoop(loopCtx, sessionID)
	go s.runSyncLoop(loopCtx, sessionID)
	return true
}

func (s *SessionSupervisor) authTimedOut(sessionID string) {
	s.mu.Lock()
	sd, ok := s.sessions[sessionID]
	if !ok || sd.session.Status == models.StatusConnected {
		s.mu.Unlock()
		return
	}
	sd.session.Status = models.StatusError
	sd.session.Error = "Authentication timeout"
	sd.session.QRCode = ""
	s.mu.Unlock()

	utils.LogWarning("Sessão %s: timeout de autenticação, QR code expirou", sessionID)
	s.bus.Publish(wanotify.TopicError, sessionID, "Authentication timeout - QR code expirado")
	s.bus.Publish(wanotify.TopicStatus, sessionID, models.StatusError)
}

// extractProfile faz a extração best-effort do perfil. Cada campo é
// opcional, ausência de qualquer um não é erro.
func (s *SessionSupervisor) extractProfile(ctx context.Context, sessionID string) {
	s.mu.RLock()
	sd, ok := s.sessions[sessionID]
	if !ok || sd.page == nil {
		s.mu.RUnlock()
		return
	}
	page := sd.page
	s.mu.RUnlock()

	var stored struct {
		PhoneNumber string `json:"phoneNumber"`
		PushName    string `json:"pushName"`
		Platform    string `json:"platform"`
	}
	err := page.Eval(ctx, `() => {
		try {
			let phoneNumber = "";
			const waNumber = localStorage.getItem("last-wid-md");
			if (waNumber) {
				const parsed = JSON.parse(waNumber);
				if (typeof parsed === "string") phoneNumber = parsed.split("@")[0];
			}
			let pushName = "";
			const pushNameData = localStorage.getItem("pushname");
			if (pushNameData) {
				try { pushName = JSON.parse(pushNameData); } catch { pushName = pushNameData; }
			}
			let platform = "";
			if (navigator.userAgent.includes("WhatsApp")) platform = "WhatsApp Web";
			return { phoneNumber, pushName, platform };
		} catch {
			return { phoneNumber: "", pushName: "", platform: "" };
		}
	}`, &stored)
	if err != nil {
		utils.LogDebug("Sessão %s: falha ao ler perfil do localStorage: %v", sessionID, err)
	}

	s.mu.Lock()
	if stored.PhoneNumber != "" {
		sd.session.PhoneNumber = stored.PhoneNumber
	}
	if stored.PushName != "" {
		sd.session.PushName = stored.PushName
	}
	if stored.Platform != "" {
		sd.session.Platform = stored.Platform
	}
	now := time.Now()
	sd.session.LastSyncAt = &now
	s.mu.Unlock()

	s.extractProfileFromDrawer(ctx, sessionID, page)

	// Último recurso: número na URL quando há redirect com phone=
	if url, err := page.URL(); err == nil {
		if idx := strings.Index(url, "phone="); idx >= 0 {
			digits := leadingDigits(url[idx+len("phone="):])
			s.mu.Lock()
			if digits != "" && sd.session.PhoneNumber == "" {
				sd.session.PhoneNumber = digits
			}
			s.mu.Unlock()
		}
	}

	s.mu.RLock()
	snapshot := cloneSession(sd.session)
	s.mu.RUnlock()

	utils.LogInfo("Sessão %s: perfil extraído (telefone=%s, nome=%s)", sessionID, snapshot.PhoneNumber, snapshot.PushName)
	s.bus.Publish(wanotify.TopicSync, sessionID, snapshot)
}

// extractProfileFromDrawer abre o drawer de perfil para complementar os
// campos que o localStorage não entrega.
func (s *SessionSupervisor) extractProfileFromDrawer(ctx context.Context, sessionID string, page browser.Page) {
	has, err := page.Has(selDrawerAvatar)
	if err != nil || !has {
		return
	}
	if err := page.Click(ctx, selDrawerAvatar); err != nil {
		return
	}
	time.Sleep(1500 * time.Millisecond)

	var name string
	_ = page.Eval(ctx, fmt.Sprintf(`() => {
		const el = document.querySelector(%q);
		return el ? (el.textContent || "") : "";
	}`, selDrawerName), &name)

	var phone string
	for _, sel := range []string{selDrawerPhone1, selDrawerPhone2} {
		var raw string
		_ = page.Eval(ctx, fmt.Sprintf(`() => {
			const el = document.querySelector(%q);
			if (!el) return "";
			return el.getAttribute("title") || el.textContent || "";
		}`, sel), &raw)
		digits := onlyDigits(raw)
		if len(digits) >= 10 {
			phone = digits
			break
		}
	}

	picURL, _ := page.Attribute(ctx, selDrawerPic, "src")

	s.mu.Lock()
	sd, ok := s.sessions[sessionID]
	if ok {
		if name != "" {
			sd.session.PushName = name
		}
		if phone != "" {
			sd.session.PhoneNumber = phone
		}
		if picURL != "" {
			sd.session.ProfilePic = picURL
		}
	}
	s.mu.Unlock()

	if ok && picURL != "" && s.archiver != nil {
		go func() {
			archived, err := s.archiver.ArchiveAvatar(sessionID, picURL)
			if err != nil {
				utils.LogWarning("Sessão %s: falha ao arquivar avatar: %v", sessionID, err)
				return
			}
			s.mu.Lock()
			if sd, ok := s.sessions[sessionID]; ok {
				sd.session.ProfilePic = archived
			}
			s.mu.Unlock()
		}()
	}

	if has, _ := page.Has(selDrawerCloser); has {
		_ = page.Click(ctx, selDrawerCloser)
	}
	time.Sleep(500 * time.Millisecond)
}

func (s *SessionSupervisor) runHealthLoop(ctx context.Context, sessionID string) {
	ticker := time.NewTicker(s.opts.HealthInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.checkHealth(sessionID) {
				return
			}
		}
	}
}

// checkHealth declara a sessão desconectada quando o navegador caiu, a
// página saiu do WhatsApp Web ou um QR novo apareceu (logout remoto).
// Retorna true quando a desconexão foi declarada, o loop então se encerra
// para não publicar o evento mais de uma vez.
func (s *SessionSupervisor) checkHealth(sessionID string) bool {
	s.mu.RLock()
	sd, ok := s.sessions[sessionID]
	if !ok || sd.page == nil || sd.healthDone {
		s.mu.RUnlock()
		return true
	}
	page := sd.page
	s.mu.RUnlock()

	url, err := page.URL()
	if err != nil {
		return s.markDisconnected(sessionID, "")
	}
	if !strings.Contains(url, "web.whatsapp.com") {
		return s.markDisconnected(sessionID, "")
	}
	if has, err := page.Has(selQRCanvas); err == nil && has {
		return s.markDisconnected(sessionID, "Sessão deslogada remotamente")
	}
	return false
}

func (s *SessionSupervisor) markDisconnected(sessionID, reason string) bool {
	s.mu.Lock()
	sd, ok := s.sessions[sessionID]
	if !ok || sd.healthDone {
		s.mu.Unlock()
		return true
	}
	sd.healthDone = true
	sd.session.Status = models.StatusDisconnected
	s.mu.Unlock()

	utils.LogWarning("Sessão %s desconectada (%s)", sessionID, reason)
	s.bus.Publish(wanotify.TopicDisconnected, sessionID, reason)
	s.bus.Publish(wanotify.TopicStatus, sessionID, models.StatusDisconnected)
	return true
}

func (s *SessionSupervisor) runSyncLoop(ctx context.Context, sessionID string) {
	ticker := time.NewTicker(s.opts.SyncInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			sd, ok := s.sessions[sessionID]
			if !ok || sd.session.Status != models.StatusConnected {
				s.mu.Unlock()
				return
			}
			now := time.Now()
			sd.session.LastSyncAt = &now
			snapshot := cloneSession(sd.session)
			s.mu.Unlock()

			s.bus.Publish(wanotify.TopicSync, sessionID, snapshot)
		}
	}
}

// Destroy para todos os loops, fecha o navegador e apaga o perfil em disco.
// Chamar com id desconhecido é no-op e não publica nada.
func (s *SessionSupervisor) Destroy(sessionID string) {
	s.mu.Lock()
	sd, ok := s.sessions[sessionID]
	if !ok {
		s.mu.Unlock()
		return
	}
	delete(s.sessions, sessionID)
	alreadyDown := sd.healthDone
	s.mu.Unlock()

	if sd.cancelQR != nil {
		sd.cancelQR()
	}
	if sd.cancelAll != nil {
		sd.cancelAll()
	}
	if sd.browser != nil {
		_ = sd.browser.Close()
	}

	profileDir := filepath.Join(s.opts.SessionDir, "session-"+sessionID)
	if err := os.RemoveAll(profileDir); err != nil {
		utils.LogWarning("Sessão %s: falha ao remover diretório de perfil: %v", sessionID, err)
	}

	utils.LogInfo("Sessão %s destruída", sessionID)
	if !alreadyDown {
		s.bus.Publish(wanotify.TopicDisconnected, sessionID, "")
		s.bus.Publish(wanotify.TopicStatus, sessionID, models.StatusDisconnected)
	}
}

// DestroyAll encerra todas as sessões, usado no shutdown do servidor.
func (s *SessionSupervisor) DestroyAll() {
	s.mu.RLock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	for _, id := range ids {
		s.Destroy(id)
	}
}

func (s *SessionSupervisor) GetSession(sessionID string) *models.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sd, ok := s.sessions[sessionID]
	if !ok {
		return nil
	}
	return cloneSession(sd.session)
}

func (s *SessionSupervisor) GetUserSessions(userID string) []*models.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*models.Session, 0)
	for _, sd := range s.sessions {
		if sd.session.UserID == userID {
			result = append(result, cloneSession(sd.session))
		}
	}
	return result
}

// Page expõe a página viva da sessão para o driver de conversas. Retorna
// nil quando a sessão não existe ou ainda não está conectada.
func (s *SessionSupervisor) Page(sessionID string) browser.Page {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sd, ok := s.sessions[sessionID]
	if !ok || sd.session.Status != models.StatusConnected {
		return nil
	}
	return sd.page
}

// SubscribeToQR registra um listener de QR limitado à sessão informada.
// O retorno cancela a assinatura.
func (s *SessionSupervisor) SubscribeToQR(sessionID string, cb func(qr string)) func() {
	return s.bus.Subscribe(sessionID, func(ev wanotify.Event) {
		if ev.Topic != wanotify.TopicQR {
			return
		}
		if qr, ok := ev.Data.(string); ok {
			cb(qr)
		}
	})
}

// SubscribeToStatus registra um listener de status limitado à sessão.
func (s *SessionSupervisor) SubscribeToStatus(sessionID string, cb func(status string)) func() {
	return s.bus.Subscribe(sessionID, func(ev wanotify.Event) {
		if ev.Topic != wanotify.TopicStatus {
			return
		}
		if status, ok := ev.Data.(string); ok {
			cb(status)
		}
	})
}

func cloneSession(in *models.Session) *models.Session {
	out := *in
	return &out
}

func onlyDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func leadingDigits(s string) string {
	for i, r := range s {
		if r < '0' || r > '9' {
			return s[:i]
		}
	}
	return s
}
