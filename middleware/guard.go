package middleware

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/MrEthical07/authgate"
)

// Authenticator resolves an access token to an identity. *authgate.Engine
// implements it.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (authgate.Identity, error)
}

// Authenticate returns the authentication gate. Requests whose Authorization
// header is missing or blank pass through with no identity.
func Authenticate(auth Authenticator, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header, present := r.Header["Authorization"]
			if !present || len(header) == 0 || strings.TrimSpace(header[0]) == "" {
				next.ServeHTTP(w, r)
				return
			}

			token := bearerToken(header[0])
			if token == "" {
				WriteMessage(w, http.StatusUnauthorized, authgate.Reason(authgate.ErrTokenInvalid))
				return
			}

			id, err := auth.Authenticate(r.Context(), token)
			if err != nil {
				if errors.Is(err, authgate.ErrInternal) {
					logger.ErrorContext(r.Context(), "authentication gate fault",
						slog.String("path", r.URL.Path),
						slog.Any("err", err),
					)
					WriteMessage(w, http.StatusInternalServerError, authgate.Reason(err))
					return
				}
				WriteMessage(w, http.StatusUnauthorized, authgate.Reason(err))
				return
			}

			next.ServeHTTP(w, r.WithContext(authgate.WithIdentity(r.Context(), id)))
		})
	}
}

// bearerToken strips an optional, case-insensitive "Bearer " prefix.
func bearerToken(value string) string {
	value = strings.TrimSpace(value)
	const bearer = "bearer "
	if len(value) >= len(bearer) && strings.EqualFold(value[:len(bearer)], bearer) {
		value = strings.TrimSpace(value[len(bearer):])
	}
	return value
}

// ClientIP attaches the remote host of each request to its context.
func ClientIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		if host != "" {
			r = r.WithContext(authgate.WithClientIP(r.Context(), host))
		}
		next.ServeHTTP(w, r)
	})
}
