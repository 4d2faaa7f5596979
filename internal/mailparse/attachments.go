package mailparse

import (
	"strings"

	gmail "google.golang.org/api/gmail/v1"
)

// Attachment describes a file carried by a message part.
type Attachment struct {
	PartID       string `json:"partId,omitempty"`
	Filename     string `json:"filename,omitempty"`
	MimeType     string `json:"mimeType"`
	AttachmentID string `json:"attachmentId,omitempty"`
	Size         int64  `json:"size,omitempty"`
}

// ListAttachments collects every descendant of payload that has a filename
// or whose body references attachment data, in depth-first order. The root
// itself is never reported.
func ListAttachments(payload *gmail.MessagePart) []Attachment {
	var out []Attachment
	collectAttachments(payload, &out)
	return out
}

func collectAttachments(part *gmail.MessagePart, out *[]Attachment) {
	if part == nil {
		return
	}

	for _, sub := range part.Parts {
		if sub == nil {
			continue
		}
		if att, ok := attachmentOf(sub); ok {
			*out = append(*out, att)
		}
		collectAttachments(sub, out)
	}
}

func attachmentOf(part *gmail.MessagePart) (Attachment, bool) {
	var attachmentID string
	var size int64
	if part.Body != nil {
		attachmentID = part.Body.AttachmentId
		size = part.Body.Size
	}

	if part.Filename == "" && attachmentID == "" {
		return Attachment{}, false
	}

	return Attachment{
		PartID:       part.PartId,
		Filename:     part.Filename,
		MimeType:     part.MimeType,
		AttachmentID: attachmentID,
		Size:         size,
	}, true
}

// SanitizeFilename sanitizes a filename to prevent path traversal attacks
func SanitizeFilename(filename string) string {
	filename = strings.ReplaceAll(filename, "/", "_")
	filename = strings.ReplaceAll(filename, "\\", "_")
	filename = strings.ReplaceAll(filename, "..", "_")
	filename = strings.ReplaceAll(filename, "\"", "_")
	return filename
}
