package models

// Chat é um snapshot de uma conversa raspada da lista do WhatsApp Web.
// O id é sintético (posição do scrape + nome normalizado) e NÃO é um
// identificador estável do WhatsApp: vale apenas dentro da sessão e até o
// próximo reload da lista. Nunca persistir como chave estrangeira.
type Chat struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
	ProfilePic  string `json:"profilePic,omitempty"`
	IsGroup     bool   `json:"isGroup"`
	LastMessage string `json:"lastMessage,omitempty"`
	LastTime    string `json:"lastMessageTime,omitempty"`
	UnreadCount int    `json:"unreadCount"`
	IsArchived  bool   `json:"isArchived"`
	IsPinned    bool   `json:"isPinned"`
	IsMuted     bool   `json:"isMuted"`
}
