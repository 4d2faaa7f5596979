package mailparse

import (
	"context"
	"regexp"
	"strings"

	"golang.org/x/sync/errgroup"
	gmail "google.golang.org/api/gmail/v1"

	"github.com/teemow/followmail/internal/logging"
)

const (
	// DefaultImageMimeType is used in data URIs when the inline part does not
	// declare an image type of its own.
	DefaultImageMimeType = "image/jpeg"

	// DefaultFetchConcurrency bounds concurrent attachment fetches per message.
	DefaultFetchConcurrency = 4
)

// AttachmentFetcher returns the base64url encoded data of an attachment.
type AttachmentFetcher func(ctx context.Context, messageID, attachmentID string) (string, error)

// InlineImage is a part addressed from HTML through a Content-ID.
type InlineImage struct {
	ContentID    string
	AttachmentID string
	MimeType     string
}

// InlineImages maps every Content-ID found below payload to its attachment.
// Only descendants carrying both an attachment id and a Content-ID header are
// reported. Angle brackets around the Content-ID are stripped. A Content-ID
// seen twice keeps its first position and its last attachment.
func InlineImages(payload *gmail.MessagePart) []InlineImage {
	var out []InlineImage
	index := make(map[string]int)
	collectInlineImages(payload, &out, index)
	return out
}

func collectInlineImages(part *gmail.MessagePart, out *[]InlineImage, index map[string]int) {
	if part == nil {
		return
	}

	for _, sub := range part.Parts {
		if sub == nil {
			continue
		}
		if sub.Body != nil && sub.Body.AttachmentId != "" {
			if cid, ok := contentID(sub); ok {
				img := InlineImage{ContentID: cid, AttachmentID: sub.Body.AttachmentId, MimeType: sub.MimeType}
				if i, seen := index[cid]; seen {
					(*out)[i] = img
				} else {
					index[cid] = len(*out)
					*out = append(*out, img)
				}
			}
		}
		collectInlineImages(sub, out, index)
	}
}

func contentID(part *gmail.MessagePart) (string, bool) {
	for _, h := range part.Headers {
		if h != nil && strings.EqualFold(h.Name, "Content-ID") {
			return strings.NewReplacer("<", "", ">", "").Replace(h.Value), true
		}
	}
	return "", false
}

// Resolver rewrites cid: image references into inline data URIs.
type Resolver struct {
	// Fetch retrieves attachment data. Required.
	Fetch AttachmentFetcher

	// Logger receives one warning per attachment that could not be fetched.
	Logger logging.Logger

	// Concurrency bounds parallel fetches (default: DefaultFetchConcurrency).
	Concurrency int
}

// ResolveInlineImages is a convenience wrapper around a default Resolver.
func ResolveInlineImages(ctx context.Context, html string, payload *gmail.MessagePart, messageID string, fetch AttachmentFetcher) string {
	r := &Resolver{Fetch: fetch}
	return r.Resolve(ctx, html, payload, messageID)
}

// Resolve replaces every case-insensitive src="cid:<id>" in html with a
// data URI holding the fetched attachment. Each Content-ID is fetched once.
// A failed fetch leaves its references untouched; the others still resolve.
func (r *Resolver) Resolve(ctx context.Context, html string, payload *gmail.MessagePart, messageID string) string {
	if html == "" || r.Fetch == nil {
		return html
	}

	images := InlineImages(payload)
	if len(images) == 0 {
		return html
	}

	logger := r.Logger
	if logger == nil {
		logger = logging.DefaultLogger()
	}
	logger = logger.With(logging.KeyMessageID, messageID)
	limit := r.Concurrency
	if limit <= 0 {
		limit = DefaultFetchConcurrency
	}

	uris := make([]string, len(images))
	var g errgroup.Group
	g.SetLimit(limit)
	for i, img := range images {
		g.Go(func() error {
			data, err := r.Fetch(ctx, messageID, img.AttachmentID)
			if err != nil {
				logger.Warn("failed to fetch inline image",
					"content_id", img.ContentID,
					logging.KeyError, err.Error())
				return nil
			}
			encoded, ok := toStdBase64(data)
			if !ok {
				logger.Warn("inline image data is not valid base64",
					"content_id", img.ContentID)
				return nil
			}
			uris[i] = "data:" + dataURIMimeType(img.MimeType) + ";base64," + encoded
			return nil
		})
	}
	_ = g.Wait()

	for i, img := range images {
		if uris[i] == "" {
			continue
		}
		pattern := regexp.MustCompile(`(?i)src="cid:` + regexp.QuoteMeta(img.ContentID) + `"`)
		html = pattern.ReplaceAllLiteralString(html, `src="`+uris[i]+`"`)
	}

	return html
}

func dataURIMimeType(mimeType string) string {
	if strings.HasPrefix(strings.ToLower(mimeType), "image/") {
		return mimeType
	}
	return DefaultImageMimeType
}
