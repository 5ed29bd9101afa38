package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/RyanBlaney/sonido-emotion/audio"
	"github.com/RyanBlaney/sonido-emotion/logging"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Warn("Failed to encode response", logging.Fields{"error": err.Error()})
	}
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch audio.KindOf(err) {
	case audio.KindClientInput:
		return http.StatusBadRequest
	case audio.KindTransient:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError reports err to the client. Client and extraction errors carry
// their own message; anything else gets fallback so tool output and
// internals do not leak.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	status := statusFor(err)

	detail := fallback
	var aerr *audio.Error
	if errors.As(err, &aerr) {
		switch aerr.Kind {
		case audio.KindClientInput, audio.KindExtraction:
			detail = capitalize(aerr.Err.Error())
		case audio.KindTransient:
			if errors.Is(err, audio.ErrMetadataUnavailable) {
				detail = capitalize(audio.ErrMetadataUnavailable.Error())
			}
		}
	}

	logger := s.logger.WithContext(r.Context())
	if status >= http.StatusInternalServerError {
		logger.Error(err, "Request failed", logging.Fields{"status": status, "path": r.URL.Path})
	} else {
		logger.Warn("Request rejected", logging.Fields{"status": status, "path": r.URL.Path, "error": err.Error()})
	}
	writeDetail(w, status, detail)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
