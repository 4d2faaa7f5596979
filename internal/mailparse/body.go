package mailparse

import (
	gmail "google.golang.org/api/gmail/v1"
)

const (
	mimeTextHTML  = "text/html"
	mimeTextPlain = "text/plain"
)

// ExtractBody returns the best displayable body of a message payload.
//
// The first text/html part with inline data wins, searched depth-first in
// pre-order starting at the root. Without one, the first text/plain part is
// used, searched the same way. The plain-text search is recursive, so a
// text/plain root is still found first, and a plain-text-only multipart
// message nested below the root is not reported as empty.
func ExtractBody(payload *gmail.MessagePart) string {
	if html := findBody(payload, mimeTextHTML); html != "" {
		return html
	}
	return findBody(payload, mimeTextPlain)
}

func findBody(part *gmail.MessagePart, mimeType string) string {
	if part == nil {
		return ""
	}

	if part.MimeType == mimeType && part.Body != nil && part.Body.Data != "" {
		if body := Decode(part.Body.Data); body != "" {
			return body
		}
	}

	for _, sub := range part.Parts {
		if body := findBody(sub, mimeType); body != "" {
			return body
		}
	}

	return ""
}
