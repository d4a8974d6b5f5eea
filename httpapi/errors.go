package httpapi

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/MrEthical07/authgate"
	"github.com/MrEthical07/authgate/middleware"
)

type validationBody struct {
	Status  int      `json:"status"`
	Message string   `json:"message"`
	Errors  []string `json:"errors"`
}

// StatusFor maps an Engine error to an HTTP status code.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, authgate.ErrInternal):
		return http.StatusInternalServerError
	case errors.Is(err, authgate.ErrValidation), errors.Is(err, authgate.ErrConflict):
		return http.StatusBadRequest
	case errors.Is(err, authgate.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, authgate.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, authgate.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, authgate.ErrLoginRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *authgate.ValidationError
	if errors.As(err, &verr) {
		middleware.WriteJSON(w, http.StatusBadRequest, validationBody{
			Status:  http.StatusBadRequest,
			Message: authgate.Reason(err),
			Errors:  verr.Fields,
		})
		return
	}

	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Any("err", err),
		)
	}
	middleware.WriteMessage(w, status, authgate.Reason(err))
}
