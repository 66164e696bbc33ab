package models

type CreateSessionRequest struct {
	UserID     string `json:"userId" example:"user_123" swagger:"required" description:"Identificador do dono da sessão"`
	DeviceName string `json:"deviceName" example:"Atendimento 01" description:"Nome exibido para o dispositivo pareado"`
}

type SendMessageRequest struct {
	SessionID string `json:"sessionId" example:"wa_1714588800000_a1b2c3" swagger:"required" description:"ID da sessão conectada"`
	ChatID    string `json:"chatId" example:"chat_0_joao silva" description:"ID do chat na lista atual"`
	Phone     string `json:"phone" example:"5511999999999" description:"Número no formato DDDNúmero, usado quando chatId não é informado"`
	Message   string `json:"message" example:"Olá, como vai?" swagger:"required" description:"Texto da mensagem"`
	MediaURL  string `json:"mediaUrl" description:"URL de mídia opcional anexada à mensagem"`
}

type QueueMessageRequest struct {
	SessionID string `json:"sessionId" example:"wa_1714588800000_a1b2c3" swagger:"required" description:"ID da sessão"`
	ChatID    string `json:"chatId" example:"chat_0_joao silva" swagger:"required" description:"ID do chat de destino"`
	Message   string `json:"message" example:"Mensagem enfileirada" swagger:"required" description:"Texto da mensagem"`
	MediaURL  string `json:"mediaUrl" description:"URL de mídia opcional"`
}

type OpenChatRequest struct {
	SessionID string `json:"sessionId" swagger:"required" description:"ID da sessão"`
	ChatID    string `json:"chatId" description:"ID do chat na lista atual"`
	Phone     string `json:"phone" description:"Número alternativo quando o chat não está na lista"`
}
