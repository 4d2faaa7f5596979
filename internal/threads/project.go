package threads

import (
	"context"
	"time"

	gmail "google.golang.org/api/gmail/v1"

	"github.com/teemow/followmail/internal/mailparse"
)

// dateLayout matches the ISO-8601 form with milliseconds in UTC.
const dateLayout = "2006-01-02T15:04:05.000Z"

// HeaderValue returns the value of the first header named exactly name.
func HeaderValue(part *gmail.MessagePart, name string) string {
	if part == nil {
		return ""
	}
	for _, h := range part.Headers {
		if h != nil && h.Name == name {
			return h.Value
		}
	}
	return ""
}

// FormatDate renders a Gmail internal date (epoch milliseconds).
func FormatDate(internalDate int64) string {
	return time.UnixMilli(internalDate).UTC().Format(dateLayout)
}

// ProjectMessage normalizes a full Gmail message.
func ProjectMessage(raw *gmail.Message) Message {
	if raw == nil {
		return Message{From: UnknownSender, To: UnknownRecipient, Subject: NoSubject, Date: FormatDate(0)}
	}

	msg := Message{
		ID:          raw.Id,
		MessageID:   HeaderValue(raw.Payload, "Message-ID"),
		From:        orDefault(HeaderValue(raw.Payload, "From"), UnknownSender),
		To:          orDefault(HeaderValue(raw.Payload, "To"), UnknownRecipient),
		Subject:     orDefault(HeaderValue(raw.Payload, "Subject"), NoSubject),
		Date:        FormatDate(raw.InternalDate),
		Body:        mailparse.ExtractBody(raw.Payload),
		Attachments: mailparse.ListAttachments(raw.Payload),
	}
	return msg
}

// ProjectThread normalizes a full Gmail thread. The thread subject is the
// subject of its first message.
func ProjectThread(raw *gmail.Thread) Thread {
	if raw == nil {
		return Thread{Subject: NoSubject, Messages: []Message{}}
	}
	t := Thread{ID: raw.Id, Subject: NoSubject, Messages: make([]Message, 0, len(raw.Messages))}
	for _, m := range raw.Messages {
		if m == nil {
			continue
		}
		t.Messages = append(t.Messages, ProjectMessage(m))
	}
	if len(t.Messages) > 0 {
		t.Subject = t.Messages[0].Subject
	}
	return t
}

// ProjectThreadWithInlineImages is ProjectThread with every body passed
// through the resolver so cid: references become data URIs.
func ProjectThreadWithInlineImages(ctx context.Context, raw *gmail.Thread, resolver *mailparse.Resolver) Thread {
	t := ProjectThread(raw)
	if raw == nil || resolver == nil {
		return t
	}

	i := 0
	for _, m := range raw.Messages {
		if m == nil {
			continue
		}
		t.Messages[i].Body = resolver.Resolve(ctx, t.Messages[i].Body, m.Payload, m.Id)
		i++
	}
	return t
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
