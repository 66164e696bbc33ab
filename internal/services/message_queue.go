package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"whatsapp-web-bot/internal/models"
	"whatsapp-web-bot/internal/utils"
	"whatsapp-web-bot/internal/wanotify"
)

// QueueSender é o pedaço do driver que a fila usa para despachar.
type QueueSender interface {
	SendToChatID(ctx context.Context, sessionID, chatID, message string) SendOutcome
}

type QueueOptions struct {
	DispatchInterval time.Duration
	InterMessageGap  time.Duration
}

func (o *QueueOptions) applyDefaults() {
	if o.DispatchInterval == 0 {
		o.DispatchInterval = 5 * time.Second
	}
	if o.InterMessageGap == 0 {
		o.InterMessageGap = time.Second
	}
}

// MessageQueue mantém uma FIFO de envios pendentes por sessão com um
// despachante global. O guard de single-flight garante que dois ciclos
// nunca rodam ao mesmo tempo, um tick que encontra o anterior rodando é
// descartado. Itens failed ficam na fila para inspeção, sem retry
// automático. O gap de 1s entre envios limita a taxa de saída.
type MessageQueue struct {
	mu     sync.Mutex
	queues map[string][]*models.QueueItem

	processing bool
	sender     QueueSender
	bus        *wanotify.Bus
	opts       QueueOptions
	cancel     context.CancelFunc
}

func NewMessageQueue(sender QueueSender, bus *wanotify.Bus, opts QueueOptions) *MessageQueue {
	opts.applyDefaults()
	return &MessageQueue{
		queues: make(map[string][]*models.QueueItem),
		sender: sender,
		bus:    bus,
		opts:   opts,
	}
}

// Start liga o despachante em background. Stop encerra.
func (q *MessageQueue) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	q.cancel = cancel
	go func() {
		ticker := time.NewTicker(q.opts.DispatchInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				q.DispatchOnce(ctx)
			}
		}
	}()
}

func (q *MessageQueue) Stop() {
	if q.cancel != nil {
		q.cancel()
	}
}

// QueueMessage acrescenta um item em status queued no fim da FIFO da sessão.
func (q *MessageQueue) QueueMessage(sessionID, chatID, message, mediaURL string) *models.QueueItem {
	item := &models.QueueItem{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		ChatID:    chatID,
		Message:   message,
		MediaURL:  mediaURL,
		Status:    models.QueueStatusQueued,
		CreatedAt: time.Now(),
	}

	q.mu.Lock()
	q.queues[sessionID] = append(q.queues[sessionID], item)
	q.mu.Unlock()

	utils.LogDebug("Mensagem %s enfileirada para a sessão %s", item.ID, sessionID)
	q.bus.Publish(wanotify.TopicQueued, sessionID, item)
	return item
}

// DispatchOnce roda um ciclo completo de despacho. Retorna false quando
// outro ciclo já estava em andamento e este foi descartado.
func (q *MessageQueue) DispatchOnce(ctx context.Context) bool {
	q.mu.Lock()
	if q.processing {
		q.mu.Unlock()
		return false
	}
	q.processing = true

	sessionIDs := make([]string, 0, len(q.queues))
	for id := range q.queues {
		sessionIDs = append(sessionIDs, id)
	}
	q.mu.Unlock()

	defer func() {
		q.mu.Lock()
		q.processing = false
		q.mu.Unlock()
	}()

	for _, sessionID := range sessionIDs {
		q.dispatchSession(ctx, sessionID)
	}
	return true
}

// dispatchSession processa os itens queued da sessão em ordem de inserção.
// Uma falha marca o item como failed e o ciclo segue para o próximo item.
// Depois do lote, os itens sent são removidos da fila.
func (q *MessageQueue) dispatchSession(ctx context.Context, sessionID string) {
	q.mu.Lock()
	pending := make([]*models.QueueItem, 0)
	for _, item := range q.queues[sessionID] {
		if item.Status == models.QueueStatusQueued {
			pending = append(pending, item)
		}
	}
	q.mu.Unlock()

	for _, item := range pending {
		q.mu.Lock()
		item.Status = models.QueueStatusProcessing
		q.mu.Unlock()

		outcome := q.sender.SendToChatID(ctx, sessionID, item.ChatID, item.Message)

		q.mu.Lock()
		if outcome.Success {
			item.Status = models.QueueStatusSent
		} else {
			item.Status = models.QueueStatusFailed
			item.Error = outcome.Error
		}
		q.mu.Unlock()

		if outcome.Success {
			q.bus.Publish(wanotify.TopicQueueSent, sessionID, item)
		} else {
			utils.LogWarning("Envio %s falhou na sessão %s: %s", item.ID, sessionID, outcome.Error)
			q.bus.Publish(wanotify.TopicQueueFailed, sessionID, item)
		}

		time.Sleep(q.opts.InterMessageGap)
	}

	q.mu.Lock()
	remaining := q.queues[sessionID][:0]
	for _, item := range q.queues[sessionID] {
		if item.Status != models.QueueStatusSent {
			remaining = append(remaining, item)
		}
	}
	q.queues[sessionID] = remaining
	q.mu.Unlock()
}

// GetQueueStatus resume a fila da sessão, incluindo itens failed retidos.
func (q *MessageQueue) GetQueueStatus(sessionID string) *models.QueueStatus {
	q.mu.Lock()
	defer q.mu.Unlock()

	status := &models.QueueStatus{
		SessionID: sessionID,
		Items:     make([]*models.QueueItem, 0, len(q.queues[sessionID])),
	}
	for _, item := range q.queues[sessionID] {
		copied := *item
		status.Items = append(status.Items, &copied)
		status.Total++
		switch item.Status {
		case models.QueueStatusQueued:
			status.Queued++
		case models.QueueStatusProcessing:
			status.Processing++
		case models.QueueStatusSent:
			status.Sent++
		case models.QueueStatusFailed:
			status.Failed++
		}
	}
	return status
}

// DropSession descarta a fila inteira da sessão, usado no teardown.
func (q *MessageQueue) DropSession(sessionID string) {
	q.mu.Lock()
	delete(q.queues, sessionID)
	q.mu.Unlock()
}
