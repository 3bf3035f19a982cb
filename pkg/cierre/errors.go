package cierre

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrConflict marks an upload rejected because un-deleted prior records
// exist for the same period and document type.
var ErrConflict = errors.New("cierre: prior records exist for this period")

// ErrRejected marks an upload the backend refused outright (malformed
// filename or format). The server message is carried verbatim.
var ErrRejected = errors.New("cierre: upload rejected")

// APIError is a non-2xx backend response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("cierre: status %d", e.StatusCode)
	}
	return fmt.Sprintf("cierre: status %d: %s", e.StatusCode, e.Message)
}

// serverMessage extracts the human-readable message from an error body.
// The backend answers {"error": "..."}; anything else is used as-is.
func serverMessage(body []byte) string {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Error != "" {
			return payload.Error
		}
		if payload.Message != "" {
			return payload.Message
		}
	}
	return strings.TrimSpace(string(body))
}

// classifyUploadError maps upload responses onto the synchronous error
// taxonomy: 409 means conflicting prior records, 400/422 a rejected file.
// A failed upload never creates a job.
func classifyUploadError(err error) error {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return err
	}
	switch apiErr.StatusCode {
	case http.StatusConflict:
		return fmt.Errorf("%w: %s", ErrConflict, apiErr.Message)
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %s", ErrRejected, apiErr.Message)
	default:
		return err
	}
}
