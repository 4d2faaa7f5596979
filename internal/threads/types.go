package threads

import "github.com/teemow/followmail/internal/mailparse"

// Header fallbacks used when a message lacks the header.
const (
	UnknownSender    = "Unknown sender"
	UnknownRecipient = "Unknown recipient"
	NoSubject        = "(no subject)"
)

// Role says which side of a followed address a thread was found on.
type Role string

const (
	RoleFrom Role = "from"
	RoleTo   Role = "to"

	// RoleSent marks the echo of a reply that was just sent.
	RoleSent Role = "sent"
)

// Query returns the Gmail search query selecting mail for addr in this role.
func (r Role) Query(addr string) string {
	return string(r) + ":" + addr
}

// Message is a normalized Gmail message.
type Message struct {
	ID          string                 `json:"id"`
	MessageID   string                 `json:"messageId,omitempty"`
	From        string                 `json:"from"`
	To          string                 `json:"to,omitempty"`
	Subject     string                 `json:"subject"`
	Date        string                 `json:"date"`
	Body        string                 `json:"body"`
	Type        Role                   `json:"type,omitempty"`
	Attachments []mailparse.Attachment `json:"attachments,omitempty"`
}

// Thread is an ordered list of messages sharing an id.
type Thread struct {
	ID       string    `json:"id"`
	Subject  string    `json:"subject"`
	Messages []Message `json:"messages"`
}
