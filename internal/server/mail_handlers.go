package server

import (
	"errors"
	"mime"
	"net/http"
	"strconv"
	"time"

	"google.golang.org/api/googleapi"

	"github.com/teemow/followmail/internal/gmail"
	"github.com/teemow/followmail/internal/instrumentation"
	"github.com/teemow/followmail/internal/logging"
	"github.com/teemow/followmail/internal/mailparse"
	"github.com/teemow/followmail/internal/store"
	"github.com/teemow/followmail/internal/threads"
)

// orEmpty keeps JSON responses as [] instead of null.
func orEmpty(ts []threads.Thread) []threads.Thread {
	if ts == nil {
		return []threads.Thread{}
	}
	return ts
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}

// handleInbox lists the mailbox's latest threads.
func (s *Server) handleInbox(w http.ResponseWriter, r *http.Request, _ *store.User, mb Mailbox) {
	result, err := s.aggregator(mb, 0).FetchThreads(r.Context(), "")
	if err != nil {
		s.upstreamError(w, r, "Email fetch failed", err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(result))
}

// handleFromSender lists the threads containing mail from one sender.
func (s *Server) handleFromSender(w http.ResponseWriter, r *http.Request, _ *store.User, mb Mailbox) {
	sender := r.PathValue("sender")
	result, err := s.aggregator(mb, 0).FetchThreads(r.Context(), threads.RoleFrom.Query(sender))
	if err != nil {
		s.upstreamError(w, r, "Email fetch failed", err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(result))
}

type sendersRequest struct {
	Senders []string `json:"senders"`
}

// handleGrouped returns the messages of the given senders grouped by their
// From header, one pseudo-thread per sender.
func (s *Server) handleGrouped(w http.ResponseWriter, r *http.Request, _ *store.User, mb Mailbox) {
	var req sendersRequest
	if err := decodeJSON(w, r, &req); err != nil || req.Senders == nil {
		writeError(w, http.StatusBadRequest, "Senders must be an array")
		return
	}

	result, err := s.aggregator(mb, 0).GroupedBySender(r.Context(), req.Senders)
	if err != nil {
		s.upstreamError(w, r, "Fetch failed", err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(result))
}

// handleThread returns one thread with inline images embedded.
func (s *Server) handleThread(w http.ResponseWriter, r *http.Request, _ *store.User, mb Mailbox) {
	ctx := r.Context()
	threadID := r.PathValue("threadId")

	raw, err := mb.GetThread(ctx, threadID)
	if err != nil {
		if isNotFound(err) {
			writeError(w, http.StatusNotFound, "Thread not found")
			return
		}
		s.upstreamError(w, r, "Failed to fetch thread", err)
		return
	}

	writeJSON(w, http.StatusOK, threads.ProjectThreadWithInlineImages(ctx, raw, s.resolver(mb)))
}

// handleAttachment streams one attachment. The client passes the filename
// and MIME type it got from the thread listing.
func (s *Server) handleAttachment(w http.ResponseWriter, r *http.Request, _ *store.User, mb Mailbox) {
	messageID := r.PathValue("messageId")
	attachmentID := r.PathValue("attachmentId")

	data, err := mb.GetAttachment(r.Context(), messageID, attachmentID)
	if err != nil {
		if isNotFound(err) {
			writeError(w, http.StatusNotFound, "Attachment not found")
			return
		}
		s.upstreamError(w, r, "Failed to fetch attachment", err)
		return
	}

	contentType := r.URL.Query().Get("mimeType")
	if _, _, err := mime.ParseMediaType(contentType); contentType == "" || err != nil {
		contentType = "application/octet-stream"
	}
	filename := mailparse.SanitizeFilename(r.URL.Query().Get("filename"))
	if filename == "" {
		filename = "attachment"
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

type emailThreadsRequest struct {
	FromEmails []string `json:"fromEmails"`
	ToEmails   []string `json:"toEmails"`
	Limit      int64    `json:"limit"`
}

type emailThreadsResponse struct {
	Threads    []threads.Thread `json:"threads"`
	TotalCount int              `json:"totalCount"`
}

// handleEmailThreads aggregates the threads of the given senders and
// recipients, merged by thread id.
func (s *Server) handleEmailThreads(w http.ResponseWriter, r *http.Request, _ *store.User, mb Mailbox) {
	var req emailThreadsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeErrorDetails(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	limit := req.Limit
	if limit <= 0 {
		limit = DefaultThreadLimit
	}
	limit = min(limit, maxThreadLimit)

	result, err := s.aggregator(mb, limit).AggregateFollowed(r.Context(), req.FromEmails, req.ToEmails)
	if err != nil {
		s.upstreamError(w, r, "Failed to fetch email threads", err)
		return
	}

	result = orEmpty(result)
	writeJSON(w, http.StatusOK, emailThreadsResponse{Threads: result, TotalCount: len(result)})
}

type replyRequest struct {
	To        string `json:"to"`
	Subject   string `json:"subject"`
	Message   string `json:"message"`
	ThreadID  string `json:"threadId"`
	MessageID string `json:"messageId"`
	Draft     bool   `json:"draft"`
}

type replySentResponse struct {
	Message     string          `json:"message"`
	MessageID   string          `json:"messageId"`
	ThreadID    string          `json:"threadId"`
	SentMessage threads.Message `json:"sentMessage"`
}

type draftSavedResponse struct {
	Message string `json:"message"`
	DraftID string `json:"draftId"`
}

// handleReply sends a reply in a thread, or saves it as a draft.
func (s *Server) handleReply(w http.ResponseWriter, r *http.Request, u *store.User, mb Mailbox) {
	ctx := r.Context()

	var req replyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeErrorDetails(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	to, ok := mailparse.ExtractEmailAddress(req.To)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid recipient address")
		return
	}
	if req.ThreadID == "" {
		writeError(w, http.StatusBadRequest, "threadId is required")
		return
	}

	reply := gmail.Reply{
		From:      u.Email,
		To:        to,
		Subject:   req.Subject,
		Body:      req.Message,
		ThreadID:  req.ThreadID,
		InReplyTo: req.MessageID,
	}
	if err := reply.Validate(); err != nil {
		writeErrorDetails(w, http.StatusBadRequest, "Invalid reply", err)
		return
	}

	kind, actionName := "sent", instrumentation.ActionReplySent
	if req.Draft {
		kind, actionName = "draft", instrumentation.ActionDraftSaved
	}
	action := instrumentation.NewAction(actionName, u.Email).
		WithTarget(to).
		WithSpanContext(ctx)

	if req.Draft {
		draft, err := mb.SaveDraft(ctx, reply)
		s.recordReply(r, action, kind, err)
		if err != nil {
			s.upstreamError(w, r, "Failed to send/save email", err)
			return
		}
		writeJSON(w, http.StatusOK, draftSavedResponse{Message: "Draft saved!", DraftID: draft.Id})
		return
	}

	sent, err := mb.SendReply(ctx, reply)
	s.recordReply(r, action, kind, err)
	if err != nil {
		s.upstreamError(w, r, "Failed to send/save email", err)
		return
	}

	writeJSON(w, http.StatusOK, replySentResponse{
		Message:   "Reply sent!",
		MessageID: sent.Id,
		ThreadID:  req.ThreadID,
		SentMessage: threads.Message{
			ID:      sent.Id,
			From:    u.Email,
			To:      to,
			Subject: req.Subject,
			Date:    threads.FormatDate(time.Now().UnixMilli()),
			Body:    req.Message,
			Type:    threads.RoleSent,
		},
	})
}

func (s *Server) recordReply(r *http.Request, action *instrumentation.Action, kind string, err error) {
	status := instrumentation.StatusSuccess
	if err != nil {
		status = instrumentation.StatusError
	}
	s.metrics.RecordReply(r.Context(), kind, status, action.UserEmail)
	s.audit.Log(action.Complete(err))
	if err == nil {
		s.logger.InfoContext(r.Context(), "reply delivered",
			logging.Operation(kind),
			logging.UserHash(action.UserEmail))
	}
}
