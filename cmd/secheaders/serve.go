package main

import (
	"context"
	"errors"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/saylorsolutions/secheaders"
	"github.com/saylorsolutions/secheaders/csp"
)

const demoPage = `<!DOCTYPE html>
<html>
<head>
<title>{{.Title}}</title>
<style {{nonceAttr "styles"}}>body { font-family: sans-serif; }</style>
</head>
<body>
<h1>{{.Title}}</h1>
<p id="status">Inline script blocked.</p>
<script {{nonceAttr "main"}}>document.getElementById("status").textContent = "Inline script allowed by nonce.";</script>
</body>
</html>
`

type demoData struct {
	Title string
}

// newDemoRouter serves a page with nonce-bound inline content, a panel path that gets no policy, and metrics.
func newDemoRouter(cfg secheaders.Config, reg *prometheus.Registry) (http.Handler, error) {
	metrics, err := secheaders.NewMetrics(reg)
	if err != nil {
		return nil, err
	}
	cfg.Metrics = metrics
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	mw, err := secheaders.NewMiddleware(context.Background(), cfg)
	if err != nil {
		return nil, err
	}
	log := cfg.Logger

	page := func(title string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if _, err := secheaders.MintNonce(ctx, "main", csp.ScriptSrc); err != nil {
				log.Error("Failed to mint script nonce", "error", err)
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			if _, err := secheaders.MintNonce(ctx, "styles", csp.StyleSrc); err != nil {
				log.Error("Failed to mint style nonce", "error", err)
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			tmpl, err := template.New("page").Funcs(secheaders.TemplateFuncs(ctx)).Parse(demoPage)
			if err != nil {
				log.Error("Failed to parse page", "error", err)
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			if err := tmpl.Execute(w, demoData{Title: title}); err != nil {
				log.Error("Failed to render page", "error", err)
			}
		}
	}

	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(mw)
		r.Get("/", page("Security headers"))
		r.Get("/panel", page("Panel"))
		r.Get("/panel/*", page("Panel"))
	})
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return r, nil
}

func serveDemo(ctx context.Context, cfg secheaders.Config, addr string) error {
	handler, err := newDemoRouter(cfg, prometheus.NewRegistry())
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	cfg.Logger.Info("Serving demo site", "addr", addr)
	return listenCtx(ctx, srv.ListenAndServe, srv.Shutdown, 5*time.Second)
}

// listenCtx runs serveFn until it fails or ctx is done, then shuts down within shutdownTimeout.
func listenCtx(ctx context.Context, serveFn func() error, shutdownFn func(context.Context) error, shutdownTimeout time.Duration) error {
	srvErrs := make(chan error, 1)
	go func() {
		defer close(srvErrs)
		if err := serveFn(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvErrs <- err
		}
	}()

	select {
	case err, more := <-srvErrs:
		if !more {
			return nil
		}
		return err
	case <-ctx.Done():
		timeout, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return shutdownFn(timeout)
	}
}
