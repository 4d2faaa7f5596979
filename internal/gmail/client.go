package gmail

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/oauth2"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/teemow/followmail/internal/instrumentation"
)

const (
	// DefaultTimeout bounds every HTTP round trip to the Gmail API.
	DefaultTimeout = 30 * time.Second

	// maxPageSize is the largest page the Gmail list endpoints accept.
	maxPageSize = 500

	userID = "me"
)

// Client wraps the Gmail Users service for a single user.
type Client struct {
	svc     *gmail.UsersService
	metrics *instrumentation.Metrics
}

// NewClient creates a Gmail client authenticated by ts. metrics may be nil.
// Extra options are applied after the authenticated HTTP client, so tests
// can point the client at a fake endpoint.
func NewClient(ctx context.Context, ts oauth2.TokenSource, metrics *instrumentation.Metrics, opts ...option.ClientOption) (*Client, error) {
	if ts == nil {
		return nil, fmt.Errorf("token source is required")
	}

	httpClient := oauth2.NewClient(ctx, ts)
	httpClient.Timeout = DefaultTimeout

	clientOpts := append([]option.ClientOption{option.WithHTTPClient(httpClient)}, opts...)
	svc, err := gmail.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}

	return &Client{
		svc:     svc.Users,
		metrics: metrics,
	}, nil
}

// observe runs fn inside a Google API span and records its outcome.
func (c *Client) observe(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	ctx, span := instrumentation.StartGoogleAPISpan(ctx, instrumentation.ServiceGmail, operation)
	defer span.End()

	start := time.Now()
	err := fn(ctx)

	status := instrumentation.StatusSuccess
	if err != nil {
		status = instrumentation.StatusError
		instrumentation.SetSpanError(span, err)
	} else {
		instrumentation.SetSpanSuccess(span)
	}
	c.metrics.RecordGoogleAPIOperation(ctx, instrumentation.ServiceGmail, operation, status, time.Since(start))
	return err
}

// ListThreads lists threads matching the query with pagination.
// It will fetch up to maxResults threads, making multiple API calls if necessary.
// An empty query lists the whole mailbox in Gmail's default order.
func (c *Client) ListThreads(ctx context.Context, q string, maxResults int64) ([]*gmail.Thread, error) {
	var allThreads []*gmail.Thread
	pageToken := ""

	err := c.observe(ctx, instrumentation.OperationList, func(ctx context.Context) error {
		for {
			remaining := maxResults - int64(len(allThreads))
			if remaining <= 0 {
				return nil
			}

			req := c.svc.Threads.List(userID).MaxResults(min(remaining, maxPageSize)).Context(ctx)
			if q != "" {
				req = req.Q(q)
			}
			if pageToken != "" {
				req = req.PageToken(pageToken)
			}

			res, err := req.Do()
			if err != nil {
				return err
			}

			allThreads = append(allThreads, res.Threads...)

			if res.NextPageToken == "" {
				return nil
			}
			pageToken = res.NextPageToken
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list threads for %q: %w", q, err)
	}

	if int64(len(allThreads)) > maxResults {
		allThreads = allThreads[:maxResults]
	}
	return allThreads, nil
}

// GetThread retrieves a full Gmail thread with all its messages.
func (c *Client) GetThread(ctx context.Context, threadID string) (*gmail.Thread, error) {
	var thread *gmail.Thread
	err := c.observe(ctx, instrumentation.OperationGet, func(ctx context.Context) error {
		var err error
		thread, err = c.svc.Threads.Get(userID, threadID).Format("full").Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get thread %s: %w", threadID, err)
	}
	return thread, nil
}

// ListMessages lists messages matching the query, up to maxResults.
func (c *Client) ListMessages(ctx context.Context, q string, maxResults int64) ([]*gmail.Message, error) {
	var all []*gmail.Message
	pageToken := ""

	err := c.observe(ctx, instrumentation.OperationList, func(ctx context.Context) error {
		for {
			remaining := maxResults - int64(len(all))
			if remaining <= 0 {
				return nil
			}

			req := c.svc.Messages.List(userID).MaxResults(min(remaining, maxPageSize)).Context(ctx)
			if q != "" {
				req = req.Q(q)
			}
			if pageToken != "" {
				req = req.PageToken(pageToken)
			}

			res, err := req.Do()
			if err != nil {
				return err
			}

			all = append(all, res.Messages...)

			if res.NextPageToken == "" {
				return nil
			}
			pageToken = res.NextPageToken
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list messages for %q: %w", q, err)
	}

	if int64(len(all)) > maxResults {
		all = all[:maxResults]
	}
	return all, nil
}

// GetMessage retrieves a full Gmail message.
func (c *Client) GetMessage(ctx context.Context, messageID string) (*gmail.Message, error) {
	var msg *gmail.Message
	err := c.observe(ctx, instrumentation.OperationGet, func(ctx context.Context) error {
		var err error
		msg, err = c.svc.Messages.Get(userID, messageID).Format("full").Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get message %s: %w", messageID, err)
	}
	return msg, nil
}
