package gmail

import (
	"context"
	"fmt"

	gmail "google.golang.org/api/gmail/v1"

	"github.com/teemow/followmail/internal/instrumentation"
	"github.com/teemow/followmail/internal/mailparse"
)

const (
	// MaxAttachmentSize defines the maximum attachment size in bytes (25MB)
	MaxAttachmentSize = 25 * 1024 * 1024
)

func (c *Client) getAttachment(ctx context.Context, messageID, attachmentID string) (*gmail.MessagePartBody, error) {
	if messageID == "" {
		return nil, fmt.Errorf("messageID is required")
	}
	if attachmentID == "" {
		return nil, fmt.Errorf("attachmentID is required")
	}

	var body *gmail.MessagePartBody
	err := c.observe(ctx, instrumentation.OperationAttachment, func(ctx context.Context) error {
		var err error
		body, err = c.svc.Messages.Attachments.Get(userID, messageID, attachmentID).Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get attachment %s: %w", attachmentID, err)
	}

	if body.Size > MaxAttachmentSize {
		return nil, fmt.Errorf("attachment size %d exceeds maximum size %d", body.Size, MaxAttachmentSize)
	}
	return body, nil
}

// AttachmentData returns the attachment's data exactly as Gmail encodes it
// (base64url). It satisfies mailparse.AttachmentFetcher.
func (c *Client) AttachmentData(ctx context.Context, messageID, attachmentID string) (string, error) {
	body, err := c.getAttachment(ctx, messageID, attachmentID)
	if err != nil {
		return "", err
	}
	return body.Data, nil
}

// GetAttachment retrieves and decodes the content of an attachment.
func (c *Client) GetAttachment(ctx context.Context, messageID, attachmentID string) ([]byte, error) {
	body, err := c.getAttachment(ctx, messageID, attachmentID)
	if err != nil {
		return nil, err
	}
	if body.Size == 0 && body.Data == "" {
		return []byte{}, nil
	}

	data, ok := mailparse.DecodeBytes(body.Data)
	if !ok {
		return nil, fmt.Errorf("failed to decode attachment %s", attachmentID)
	}
	return data, nil
}
