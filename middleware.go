package secheaders

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync/atomic"
)

// Middleware wraps an [http.Handler] to add logic before or after it runs.
type Middleware func(next http.Handler) http.Handler

// NewMiddleware creates a [Middleware] that builds an [Emitter] for each request and stores it in the request context.
// Headers are sent just before the handler's first WriteHeader or Write, or after it returns if it writes nothing,
// so nonces minted while handling the request make it into the policy.
//
// The configured loader is called once here, rather than for every request.
// A request whose headers can't be built gets a 500 response instead of a partial policy.
func NewMiddleware(ctx context.Context, cfg Config) (Middleware, error) {
	loader, err := Preload(ctx, cfg.loader())
	if err != nil {
		return nil, err
	}
	cfg.Loader = loader
	log := cfg.logger()
	return func(next http.Handler) http.Handler {
		if next == nil {
			panic("nil handler")
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			e, err := New(r.Context(), cfg, r)
			if err != nil {
				log.Error("Failed to build security headers", "error", err, "path", r.URL.Path)
				cfg.Metrics.emission(resultFailed)
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			ctx, err := WithEmitter(r.Context(), e)
			if err != nil {
				log.Error("Failed to attach security headers", "error", err, "path", r.URL.Path)
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			hw := &headerWriter{ResponseWriter: w, emitter: e, log: log}
			next.ServeHTTP(hw, r.WithContext(ctx))
			if !hw.emit() && !hw.HeaderWritten() {
				hw.fail()
			}
		})
	}, nil
}

var errEmitFailed = errors.New("security headers could not be sent")

// headerWriter sends the emitter's headers once, just before the response status is written.
type headerWriter struct {
	http.ResponseWriter
	emitter     *Emitter
	log         *slog.Logger
	emitted     atomic.Bool
	failed      bool
	wroteHeader bool
}

// emit sends headers on the first call, and reports whether the response may proceed.
func (w *headerWriter) emit() bool {
	if !w.emitted.CompareAndSwap(false, true) {
		return !w.failed
	}
	if _, err := w.emitter.SendHeaders(w.ResponseWriter); err != nil {
		w.log.Error("Failed to send security headers", "error", err)
		w.failed = true
	}
	return !w.failed
}

func (w *headerWriter) fail() {
	w.wroteHeader = true
	http.Error(w.ResponseWriter, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

func (w *headerWriter) WriteHeader(statusCode int) {
	if w.wroteHeader {
		return
	}
	if !w.emit() {
		w.fail()
		return
	}
	w.wroteHeader = true
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *headerWriter) Write(data []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	if w.failed {
		return 0, errEmitFailed
	}
	return w.ResponseWriter.Write(data)
}

// FlushError sends headers before flushing, since a flush commits the status line.
func (w *headerWriter) FlushError() error {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	if w.failed {
		return errEmitFailed
	}
	return http.NewResponseController(w.ResponseWriter).Flush()
}

func (w *headerWriter) Flush() {
	_ = w.FlushError()
}

// HeaderWritten reports whether the response status has been written.
func (w *headerWriter) HeaderWritten() bool {
	return w.wroteHeader
}

// Unwrap exposes the underlying writer to [http.ResponseController].
func (w *headerWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
