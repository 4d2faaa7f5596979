package threads

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"

	"github.com/teemow/followmail/internal/instrumentation"
	"github.com/teemow/followmail/internal/logging"
)

const (
	// DefaultMaxResults is the page size used for every search.
	DefaultMaxResults int64 = 100

	// DefaultConcurrency bounds concurrent Gmail calls per fan-out level.
	DefaultConcurrency = 8
)

// ErrCredential reports that the user's Google credential was rejected.
// It aborts an aggregation instead of being skipped per address.
var ErrCredential = errors.New("google credential rejected")

// IsCredentialError reports whether err means the credential is unusable:
// a failed token refresh or a 401 from the Gmail API.
func IsCredentialError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrCredential) {
		return true
	}
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return true
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusUnauthorized {
		return true
	}
	return false
}

func classify(err error) error {
	if err == nil || errors.Is(err, ErrCredential) || !IsCredentialError(err) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrCredential, err)
}

// Source is the subset of the Gmail API the aggregator needs.
type Source interface {
	ListThreads(ctx context.Context, query string, maxResults int64) ([]*gmail.Thread, error)
	GetThread(ctx context.Context, id string) (*gmail.Thread, error)
	ListMessages(ctx context.Context, query string, maxResults int64) ([]*gmail.Message, error)
	GetMessage(ctx context.Context, id string) (*gmail.Message, error)
}

// Aggregator runs search queries through a Source and projects the results.
type Aggregator struct {
	src         Source
	logger      logging.Logger
	metrics     *instrumentation.Metrics
	maxResults  int64
	concurrency int
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithLogger sets the logger used for per-address failures.
func WithLogger(l logging.Logger) Option {
	return func(a *Aggregator) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithMetrics records one query outcome per searched address.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(a *Aggregator) { a.metrics = m }
}

// WithMaxResults sets the per-query result limit.
func WithMaxResults(n int64) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.maxResults = n
		}
	}
}

// WithConcurrency bounds concurrent calls per fan-out level.
func WithConcurrency(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.concurrency = n
		}
	}
}

// New creates an Aggregator reading from src.
func New(src Source, opts ...Option) *Aggregator {
	a := &Aggregator{
		src:         src,
		logger:      logging.DefaultLogger(),
		maxResults:  DefaultMaxResults,
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Aggregate is a convenience wrapper around New(src, opts...).Aggregate.
func Aggregate(ctx context.Context, addresses []string, role Role, src Source, opts ...Option) ([]Thread, error) {
	return New(src, opts...).Aggregate(ctx, addresses, role)
}

// FetchThreads searches threads with query and returns them fully projected,
// in search order. Threads without messages are dropped. Any failure fails
// the whole call.
func (a *Aggregator) FetchThreads(ctx context.Context, query string) ([]Thread, error) {
	refs, err := a.src.ListThreads(ctx, query, a.maxResults)
	if err != nil {
		return nil, classify(fmt.Errorf("failed to list threads: %w", err))
	}

	full := make([]*gmail.Thread, len(refs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	for i, ref := range refs {
		if ref == nil {
			continue
		}
		g.Go(func() error {
			t, err := a.src.GetThread(gctx, ref.Id)
			if err != nil {
				return classify(fmt.Errorf("failed to get thread %s: %w", ref.Id, err))
			}
			full[i] = t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]Thread, 0, len(full))
	for _, t := range full {
		if t == nil || len(t.Messages) == 0 {
			continue
		}
		out = append(out, ProjectThread(t))
	}
	return out, nil
}

// Aggregate runs "<role>:<address>" for every address and merges the
// projected threads by id in address order, each message tagged with role.
// A thread found through several addresses appears once. A failing address
// is logged and skipped; a credential error aborts the whole aggregation
// and is returned.
func (a *Aggregator) Aggregate(ctx context.Context, addresses []string, role Role) ([]Thread, error) {
	ctx, span := instrumentation.StartSpan(ctx, "threads.aggregate",
		instrumentation.NewSpanAttributeBuilder().WithRole(string(role)).Build()...)
	defer span.End()

	results := make([][]Thread, len(addresses))
	logger := a.logger.With(logging.KeyOperation, "aggregate", logging.KeyRole, string(role))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	for i, addr := range addresses {
		g.Go(func() error {
			start := time.Now()
			threads, err := a.FetchThreads(gctx, role.Query(addr))
			if err != nil {
				a.metrics.RecordQuery(gctx, string(role), instrumentation.StatusError, time.Since(start))
				if IsCredentialError(err) {
					return err
				}
				logger.Warn("skipping address after failed query",
					logging.KeyUserHash, logging.AnonymizeEmail(addr),
					logging.KeyError, err.Error())
				return nil
			}
			a.metrics.RecordQuery(gctx, string(role), instrumentation.StatusSuccess, time.Since(start))

			for ti := range threads {
				for mi := range threads[ti].Messages {
					threads[ti].Messages[mi].Type = role
				}
			}
			results[i] = threads
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		instrumentation.SetSpanError(span, err)
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		instrumentation.SetSpanError(span, err)
		return nil, err
	}

	out := Merge(results...)
	span.SetAttributes(instrumentation.NewSpanAttributeBuilder().WithResultCount(len(out)).Build()...)
	instrumentation.SetSpanSuccess(span)
	return out, nil
}

// AggregateFollowed aggregates threads from the followed senders, then from
// the followed recipients, and merges both by thread id.
func (a *Aggregator) AggregateFollowed(ctx context.Context, from, to []string) ([]Thread, error) {
	fromThreads, err := a.Aggregate(ctx, from, RoleFrom)
	if err != nil {
		return nil, err
	}
	toThreads, err := a.Aggregate(ctx, to, RoleTo)
	if err != nil {
		return nil, err
	}
	return Merge(fromThreads, toThreads), nil
}

// GroupedBySender fetches the messages sent by each sender and groups them
// by their From header. Unlike Aggregate, any failure fails the call.
func (a *Aggregator) GroupedBySender(ctx context.Context, senders []string) ([]Thread, error) {
	perSender := make([][]Message, len(senders))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	for i, sender := range senders {
		g.Go(func() error {
			msgs, err := a.fetchMessages(gctx, RoleFrom.Query(sender))
			if err != nil {
				return err
			}
			perSender[i] = msgs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []Message
	for _, msgs := range perSender {
		all = append(all, msgs...)
	}
	return GroupBySender(all), nil
}

func (a *Aggregator) fetchMessages(ctx context.Context, query string) ([]Message, error) {
	refs, err := a.src.ListMessages(ctx, query, a.maxResults)
	if err != nil {
		return nil, classify(fmt.Errorf("failed to list messages: %w", err))
	}

	msgs := make([]*gmail.Message, len(refs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	for i, ref := range refs {
		if ref == nil {
			continue
		}
		g.Go(func() error {
			m, err := a.src.GetMessage(gctx, ref.Id)
			if err != nil {
				return classify(fmt.Errorf("failed to get message %s: %w", ref.Id, err))
			}
			msgs[i] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		if m == nil {
			continue
		}
		out = append(out, ProjectMessage(m))
	}
	return out, nil
}

// Merge combines thread lists by id. The first occurrence of an id fixes its
// position and subject; later occurrences append their messages.
func Merge(lists ...[]Thread) []Thread {
	index := make(map[string]int)
	out := []Thread{}
	for _, list := range lists {
		for _, t := range list {
			if i, ok := index[t.ID]; ok {
				out[i].Messages = append(out[i].Messages, t.Messages...)
				continue
			}
			index[t.ID] = len(out)
			t.Messages = append([]Message(nil), t.Messages...)
			out = append(out, t)
		}
	}
	return out
}

// GroupBySender builds one pseudo thread per distinct From value, keyed and
// identified by that value, in order of first appearance.
func GroupBySender(messages []Message) []Thread {
	index := make(map[string]int)
	out := []Thread{}
	for _, m := range messages {
		if i, ok := index[m.From]; ok {
			out[i].Messages = append(out[i].Messages, m)
			continue
		}
		index[m.From] = len(out)
		out = append(out, Thread{ID: m.From, Subject: m.Subject, Messages: []Message{m}})
	}
	return out
}
