package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/teemow/followmail/internal/instrumentation"
	"github.com/teemow/followmail/internal/logging"
	"github.com/teemow/followmail/internal/threads"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// maxBodyBytes bounds JSON request bodies. Reply bodies are HTML, so this is
// generous.
const maxBodyBytes = 5 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

func writeErrorDetails(w http.ResponseWriter, status int, msg string, err error) {
	writeJSON(w, status, ErrorResponse{Error: msg, Details: err.Error()})
}

// decodeJSON reads a JSON body into v. An empty body leaves v untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	err := json.NewDecoder(r.Body).Decode(v)
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// upstreamError answers a failed Gmail or Google call. Rejected credentials
// answer 401 so the client starts a new login; everything else is a 500
// carrying msg and the error text.
func (s *Server) upstreamError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	if threads.IsCredentialError(err) {
		s.logger.WarnContext(r.Context(), "google credential rejected",
			logging.Route(r.Pattern),
			logging.TraceID(instrumentation.TraceID(r.Context())),
			logging.Err(err))
		writeErrorDetails(w, http.StatusUnauthorized, "Google credential rejected, please log in again", err)
		return
	}
	s.logger.ErrorContext(r.Context(), msg,
		logging.Route(r.Pattern),
		logging.TraceID(instrumentation.TraceID(r.Context())),
		logging.Err(err))
	writeErrorDetails(w, http.StatusInternalServerError, msg, err)
}
