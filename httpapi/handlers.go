package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/MrEthical07/authgate"
	"github.com/MrEthical07/authgate/middleware"
	"github.com/MrEthical07/authgate/permission"
)

// RefreshHeader carries the refresh token on logout and refresh requests.
const RefreshHeader = "Authorization-Refresh"

const maxBodyBytes = 1 << 16

// Service is the part of *authgate.Engine the handlers call.
type Service interface {
	Register(ctx context.Context, req authgate.RegisterRequest) (authgate.User, error)
	Login(ctx context.Context, loginOrEmail, password string) (authgate.TokenPair, error)
	Refresh(ctx context.Context, token string) (authgate.TokenPair, error)
	Logout(ctx context.Context, token string) error
	CurrentUser(ctx context.Context) (authgate.User, error)
	Ping(ctx context.Context) (time.Duration, error)
}

// Handler serves the session endpoints.
type Handler struct {
	svc    Service
	logger *slog.Logger
}

func NewHandler(svc Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Handler{svc: svc, logger: logger}
}

// Register mounts the handler's routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /session/register", h.register)
	mux.HandleFunc("POST /session/login", h.login)
	mux.HandleFunc("POST /session/logout", h.logout)
	mux.HandleFunc("POST /session/refresh-token", h.refreshToken)
	mux.HandleFunc("GET /session/me", h.me)
	mux.HandleFunc("GET /healthz", h.healthz)
}

type registerBody struct {
	Login                string `json:"login"`
	Email                string `json:"email"`
	Password             string `json:"password"`
	PasswordConfirmation string `json:"password_confirmation"`
	Role                 string `json:"role"`
}

type loginBody struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var body registerBody
	if err := decodeJSON(w, r, &body); err != nil {
		h.writeError(w, r, err)
		return
	}

	role := authgate.Role(strings.TrimSpace(body.Role))
	if parsed, err := permission.ParseRole(body.Role); err == nil {
		role = parsed
	}

	user, err := h.svc.Register(r.Context(), authgate.RegisterRequest{
		Login:                body.Login,
		Email:                body.Email,
		Password:             body.Password,
		PasswordConfirmation: body.PasswordConfirmation,
		Role:                 role,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, user)
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var body loginBody
	if err := decodeJSON(w, r, &body); err != nil {
		h.writeError(w, r, err)
		return
	}

	pair, err := h.svc.Login(r.Context(), body.Login, body.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, pair)
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	token, err := refreshToken(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.svc.Logout(r.Context(), token); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) refreshToken(w http.ResponseWriter, r *http.Request) {
	token, err := refreshToken(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	pair, err := h.svc.Refresh(r.Context(), token)
	if err != nil {
		// Expired and unknown tokens look the same to clients.
		if errors.Is(err, authgate.ErrRefreshExpired) {
			err = authgate.ErrRefreshInvalid
		}
		h.writeError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, pair)
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	user, err := h.svc.CurrentUser(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, user)
}

func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	latency, err := h.svc.Ping(ctx)
	if err != nil {
		h.logger.WarnContext(ctx, "health check failed", slog.Any("err", err))
		middleware.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"latency": latency.String(),
	})
}

func refreshToken(r *http.Request) (string, error) {
	values, ok := r.Header[RefreshHeader]
	if !ok || len(values) == 0 {
		verr := &authgate.ValidationError{}
		verr.Add(RefreshHeader, "header is required")
		return "", verr
	}
	return strings.TrimSpace(values[0]), nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		verr := &authgate.ValidationError{}
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			verr.Add("body", "must not be empty")
		case errors.As(err, &maxErr):
			verr.Add("body", "too large")
		default:
			verr.Add("body", "malformed JSON")
		}
		return verr
	}
	return nil
}
