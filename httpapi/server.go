package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/MrEthical07/authgate"
	"github.com/MrEthical07/authgate/middleware"
)

// Options customizes NewServer.
type Options struct {
	Logger *slog.Logger
	// Mount adds application routes. They sit behind the same gate and policy as
	// the session routes.
	Mount func(mux *http.ServeMux)
}

// NewServer returns the full HTTP surface for engine:
// CORS, client IP, authentication gate, authorization policy, then routes.
func NewServer(engine *authgate.Engine, opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = engine.Logger()
	}

	mux := http.NewServeMux()
	NewHandler(engine, logger).Register(mux)
	if opts.Mount != nil {
		opts.Mount(mux)
	}

	var h http.Handler = mux
	h = middleware.Authorize(engine.Policy())(h)
	h = middleware.Authenticate(engine, logger)(h)
	h = middleware.ClientIP(h)
	h = middleware.CORS(h)
	return h
}
