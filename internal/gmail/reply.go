package gmail

import (
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	"strings"

	gmail "google.golang.org/api/gmail/v1"

	"github.com/teemow/followmail/internal/instrumentation"
)

// Reply is an HTML reply to a message in an existing thread.
type Reply struct {
	From    string
	To      string
	Subject string
	// Body is sent as-is with a text/html content type.
	Body     string
	ThreadID string
	// InReplyTo is the RFC 5322 Message-ID being answered. It fills both
	// In-Reply-To and References when set.
	InReplyTo string
}

// Validate checks that the reply can be sent.
func (r Reply) Validate() error {
	if r.To == "" {
		return fmt.Errorf("recipient is required")
	}
	if r.ThreadID == "" {
		return fmt.Errorf("threadId is required")
	}
	for name, value := range map[string]string{"From": r.From, "To": r.To, "In-Reply-To": r.InReplyTo} {
		if strings.ContainsAny(value, "\r\n") {
			return fmt.Errorf("%s header must not contain line breaks", name)
		}
	}
	return nil
}

// encodeRFC2047 encodes a string using RFC 2047 MIME encoding for email headers
// This is necessary for non-ASCII characters in headers like Subject
func encodeRFC2047(s string) string {
	return mime.BEncoding.Encode("UTF-8", s)
}

// Raw renders the reply as an RFC 2822 message, base64url encoded as the
// Gmail API expects in Message.Raw.
func (r Reply) Raw() string {
	var msg strings.Builder
	if r.From != "" {
		fmt.Fprintf(&msg, "From: %s\r\n", r.From)
	}
	fmt.Fprintf(&msg, "To: %s\r\n", r.To)
	fmt.Fprintf(&msg, "Subject: %s\r\n", encodeRFC2047(r.Subject))
	msg.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	msg.WriteString("MIME-Version: 1.0\r\n")
	if r.InReplyTo != "" {
		fmt.Fprintf(&msg, "In-Reply-To: %s\r\n", r.InReplyTo)
		fmt.Fprintf(&msg, "References: %s\r\n", r.InReplyTo)
	}
	msg.WriteString("\r\n")
	msg.WriteString(r.Body)

	return base64.URLEncoding.EncodeToString([]byte(msg.String()))
}

// SendReply sends r in its thread and returns the sent message as Gmail
// reports it after delivery.
func (c *Client) SendReply(ctx context.Context, r Reply) (*gmail.Message, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	var sent *gmail.Message
	err := c.observe(ctx, instrumentation.OperationSend, func(ctx context.Context) error {
		var err error
		sent, err = c.svc.Messages.Send(userID, &gmail.Message{
			Raw:      r.Raw(),
			ThreadId: r.ThreadID,
		}).Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to send reply: %w", err)
	}

	full, err := c.GetMessage(ctx, sent.Id)
	if err != nil {
		// The reply went out; fall back to what Send returned.
		return sent, nil
	}
	return full, nil
}

// SaveDraft stores r as a draft in its thread.
func (c *Client) SaveDraft(ctx context.Context, r Reply) (*gmail.Draft, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	var draft *gmail.Draft
	err := c.observe(ctx, instrumentation.OperationDraft, func(ctx context.Context) error {
		var err error
		draft, err = c.svc.Drafts.Create(userID, &gmail.Draft{
			Message: &gmail.Message{
				Raw:      r.Raw(),
				ThreadId: r.ThreadID,
			},
		}).Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save draft: %w", err)
	}
	return draft, nil
}
