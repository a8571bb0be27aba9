package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/deliblab/deliblab/internal/experiment"
	"github.com/deliblab/deliblab/internal/middleware"
	"github.com/deliblab/deliblab/internal/services"
	"github.com/deliblab/deliblab/internal/utils"
)

type errorBody struct {
	Error    string   `json:"error"`
	Code     string   `json:"code,omitempty"`
	Message  string   `json:"message,omitempty"`
	Problems Problems `json:"problems,omitempty"`
}

// sentinelStatus maps experiment errors to a status and a participant-facing i18n key.
var sentinelStatus = []struct {
	err    error
	status int
	key    string
}{
	{experiment.ErrStageNotFound, http.StatusNotFound, "stage.not_found"},
	{experiment.ErrKindMismatch, http.StatusConflict, "stage.kind_mismatch"},
	{experiment.ErrFinished, http.StatusConflict, "stage.finished"},
	{experiment.ErrStageNotReached, http.StatusBadRequest, "stage.not_reached"},
	{experiment.ErrInvalidAnswer, http.StatusBadRequest, "input.invalid_answer"},
	{experiment.ErrInvalidMessage, http.StatusBadRequest, "input.invalid_message"},
	{experiment.ErrUnknownKind, http.StatusBadRequest, "input.invalid_answer"},
	{experiment.ErrIdentityChanged, http.StatusInternalServerError, "server.integrity_error"},
	{experiment.ErrInvalidProgress, http.StatusInternalServerError, "server.integrity_error"},
}

var codeStatus = map[services.ErrorCode]int{
	services.ErrorInvalid:         http.StatusBadRequest,
	services.ErrorForbidden:       http.StatusForbidden,
	services.ErrorNotFound:        http.StatusNotFound,
	services.ErrorConflict:        http.StatusConflict,
	services.ErrorUnauthorized:    http.StatusUnauthorized,
	services.ErrorBadGateway:      http.StatusBadGateway,
	services.ErrorTooManyRequests: http.StatusTooManyRequests,
}

// writeError renders err as JSON. Integrity errors are logged; their details stay
// out of the response.
func (rt *Router) writeError(w http.ResponseWriter, r *http.Request, err error) {
	locale := middleware.LocaleFromContext(r.Context())
	if se, ok := services.AsServiceError(err); ok {
		status, known := codeStatus[se.Code]
		if !known {
			status = http.StatusInternalServerError
		}
		writeJSON(w, status, errorBody{Error: se.Message, Code: string(se.Code)})
		return
	}
	for _, s := range sentinelStatus {
		if errors.Is(err, s.err) {
			body := errorBody{Error: err.Error(), Message: utils.T(locale, s.key)}
			if s.status >= 500 {
				rt.log.Error("api", "integrity error", map[string]any{"error": err, "path": r.URL.Path})
				body.Error = s.err.Error()
			}
			writeJSON(w, s.status, body)
			return
		}
	}
	rt.log.Error("api", "unhandled error", map[string]any{"error": err, "path": r.URL.Path})
	writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error", Message: utils.T(locale, "server.integrity_error")})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		return services.NewInvalidError("invalid json: " + err.Error())
	}
	return nil
}
