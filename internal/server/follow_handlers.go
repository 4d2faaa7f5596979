package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/teemow/followmail/internal/instrumentation"
	"github.com/teemow/followmail/internal/logging"
	"github.com/teemow/followmail/internal/mailparse"
	"github.com/teemow/followmail/internal/store"
	"github.com/teemow/followmail/internal/threads"
)

type followedResponse struct {
	Message      string   `json:"message,omitempty"`
	FollowedFrom []string `json:"followedFromEmails"`
	FollowedTo   []string `json:"followedToEmails"`
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func (s *Server) handleGetFollowed(w http.ResponseWriter, _ *http.Request, u *store.User) {
	writeJSON(w, http.StatusOK, followedResponse{
		FollowedFrom: nonNil(u.FollowedFrom),
		FollowedTo:   nonNil(u.FollowedTo),
	})
}

// normalizeAddress drops a display name around an address. Input that does
// not parse is kept trimmed.
func normalizeAddress(address string) string {
	address = strings.TrimSpace(address)
	if addr, ok := mailparse.ExtractEmailAddress(address); ok {
		return addr
	}
	return address
}

func normalizeAddresses(addrs []string) []string {
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, normalizeAddress(a))
	}
	return out
}

type setFollowedRequest struct {
	FromEmails []string `json:"fromEmails"`
	ToEmails   []string `json:"toEmails"`
}

// handleSetFollowed replaces both follow lists.
func (s *Server) handleSetFollowed(w http.ResponseWriter, r *http.Request, u *store.User) {
	ctx := r.Context()

	var req setFollowedRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeErrorDetails(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	action := instrumentation.NewAction(instrumentation.ActionFollowReplace, u.Email).WithSpanContext(ctx)
	if err := s.store.SetFollowed(ctx, u.GoogleID, normalizeAddresses(req.FromEmails), normalizeAddresses(req.ToEmails)); err != nil {
		s.audit.Log(action.Complete(err))
		s.logger.ErrorContext(ctx, "failed to update followed emails", logging.Err(err))
		writeErrorDetails(w, http.StatusInternalServerError, "Server error", err)
		return
	}
	s.audit.Log(action.Complete(nil))
	s.metrics.RecordFollowChange(ctx, string(threads.RoleFrom))
	s.metrics.RecordFollowChange(ctx, string(threads.RoleTo))

	updated, err := s.store.GetUser(ctx, u.GoogleID)
	if err != nil {
		writeErrorDetails(w, http.StatusInternalServerError, "Server error", err)
		return
	}
	writeJSON(w, http.StatusOK, followedResponse{
		Message:      "Followed emails updated",
		FollowedFrom: nonNil(updated.FollowedFrom),
		FollowedTo:   nonNil(updated.FollowedTo),
	})
}

type followRequest struct {
	Email string `json:"email"`
}

// handleFollow appends one address to the role's follow list. A display
// name around the address is dropped.
func (s *Server) handleFollow(role threads.Role) userHandler {
	return func(w http.ResponseWriter, r *http.Request, u *store.User) {
		ctx := r.Context()

		var req followRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeErrorDetails(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
		address := normalizeAddress(req.Email)
		if address == "" {
			writeError(w, http.StatusBadRequest, "Email is required")
			return
		}

		action := instrumentation.NewAction(instrumentation.ActionFollowAdded, u.Email).
			WithTarget(address).
			WithRole(string(role)).
			WithSpanContext(ctx)

		added, err := s.store.AddFollowed(ctx, u.GoogleID, role, address)
		if err != nil {
			s.audit.Log(action.Complete(err))
			s.logger.ErrorContext(ctx, "failed to add followed email", logging.Role(string(role)), logging.Err(err))
			writeError(w, http.StatusInternalServerError, "Server error")
			return
		}
		if added {
			s.audit.Log(action.Complete(nil))
			s.metrics.RecordFollowChange(ctx, string(role))
		}

		updated, err := s.store.GetUser(ctx, u.GoogleID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Server error")
			return
		}

		resp := map[string]any{
			"message": fmt.Sprintf("Email added to %q follow list", string(role)),
		}
		if role == threads.RoleFrom {
			resp["followedFromEmails"] = nonNil(updated.FollowedFrom)
		} else {
			resp["followedToEmails"] = nonNil(updated.FollowedTo)
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
