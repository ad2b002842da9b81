package secheaders

import (
	"context"
	"fmt"
	"html"
	"html/template"
	"log/slog"
	"net/http"
	"os"
	"sort"
	"strings"

	"github.com/saylorsolutions/secheaders/csp"
	"github.com/saylorsolutions/secheaders/nonce"
)

type emitterState int

const (
	stateUnconfigured emitterState = iota
	stateLoaded
	stateSent
)

// headerWrittenChecker is implemented by response writers that know whether the status line has gone out.
type headerWrittenChecker interface {
	HeaderWritten() bool
}

// Emitter builds and sends the security headers for one request.
// It moves from unconfigured, to loaded once a policy exists, to sent after [Emitter.SendHeaders] succeeds.
// An Emitter is not safe for concurrent use.
type Emitter struct {
	cfg     Config
	policy  *csp.Policy
	nonces  *nonce.Manager
	enabled bool
	panel   bool
	state   emitterState
	log     *slog.Logger
}

// NewEmitter creates an unconfigured emitter for the request, which may be nil outside an HTTP handler.
// Call [Emitter.Load] before sending headers, or use [New] to do both.
func NewEmitter(cfg Config, r *http.Request) *Emitter {
	return &Emitter{
		cfg:     cfg,
		nonces:  nonce.New(cfg.NonceOptions...),
		enabled: cfg.ResolveEnabled(r),
		panel:   cfg.IsPanel(r),
		log:     cfg.logger(),
	}
}

// New creates an emitter for the request, loads its policy from [Config.Loader], and runs [Config.Setter].
func New(ctx context.Context, cfg Config, r *http.Request) (*Emitter, error) {
	e := NewEmitter(cfg, r)
	if err := e.Load(ctx, nil); err != nil {
		return nil, err
	}
	if cfg.Setter != nil {
		if err := cfg.Setter(e); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Load replaces the policy with one built from the loader, or from [Config.Loader] if loader is nil.
// The seed nonce and trusted nonces are added to the new policy.
// Previously minted nonces are kept, but only the seed nonce is added again.
func (e *Emitter) Load(ctx context.Context, loader Loader) error {
	if e.state == stateSent {
		return ErrAlreadySent
	}
	if loader == nil {
		loader = e.cfg.loader()
	}
	def, err := loader.Load(ctx)
	if err != nil {
		return err
	}
	policy, err := def.Policy(csp.WithSourceSets(e.cfg.SourceSets))
	if err != nil {
		return err
	}
	e.policy = policy
	e.state = stateLoaded
	if err := e.addSelfNonce(); err != nil {
		return err
	}
	return e.addTrustedNonces()
}

func (e *Emitter) addSelfNonce() error {
	seed := strings.TrimSpace(e.cfg.Seed)
	if len(seed) == 0 {
		return nil
	}
	_, err := e.MintNonce(seed, csp.ScriptSrc, csp.StyleSrc)
	return err
}

func (e *Emitter) addTrustedNonces() error {
	if len(strings.TrimSpace(e.cfg.Seed)) == 0 || e.panel {
		return nil
	}
	names := make([]string, 0, len(e.cfg.TrustedNonces))
	for name := range e.cfg.TrustedNonces {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		token := strings.TrimSpace(e.cfg.TrustedNonces[name])
		if len(token) == 0 {
			continue
		}
		for _, d := range []csp.Directive{csp.ImgSrc, csp.ScriptSrc, csp.StyleSrc} {
			if err := e.policy.AddNonce(d, token); err != nil {
				return err
			}
		}
	}
	return nil
}

// Policy returns the loaded policy, or nil before [Emitter.Load].
func (e *Emitter) Policy() *csp.Policy {
	return e.policy
}

func (e *Emitter) Nonces() *nonce.Manager {
	return e.nonces
}

// Enabled reports whether [Emitter.SendHeaders] will write anything.
func (e *Emitter) Enabled() bool {
	return e.enabled
}

// Panel reports whether the request targets a panel or API path.
func (e *Emitter) Panel() bool {
	return e.panel
}

// Sent reports whether headers have been sent.
func (e *Emitter) Sent() bool {
	return e.state == stateSent
}

// Nonce returns the token minted for key.
func (e *Emitter) Nonce(key string) (string, bool) {
	return e.nonces.Get(key)
}

// NonceAttr returns a nonce attribute for the token minted for key, or an empty attribute if there is none.
func (e *Emitter) NonceAttr(key string) template.HTMLAttr {
	token, ok := e.nonces.Get(key)
	if !ok {
		return ""
	}
	return template.HTMLAttr(`nonce="` + html.EscapeString(token) + `"`)
}

// MintNonce mints a token for key and adds it to each directive, or to script-src and style-src when none are given.
// It fails once headers are sent, because the token could no longer reach the policy.
func (e *Emitter) MintNonce(key string, directives ...csp.Directive) (string, error) {
	switch e.state {
	case stateUnconfigured:
		return "", ErrNotLoaded
	case stateSent:
		return "", ErrAlreadySent
	}
	if len(directives) == 0 {
		directives = []csp.Directive{csp.ScriptSrc, csp.StyleSrc}
	}
	for _, d := range directives {
		if !d.Valid() {
			return "", fmt.Errorf("%w: '%s'", csp.ErrInvalidDirective, d)
		}
	}
	token := e.nonces.Mint(key)
	for _, d := range directives {
		if err := e.policy.AddNonce(d, token); err != nil {
			return "", err
		}
	}
	e.cfg.Metrics.nonceMinted()
	return token, nil
}

// HeaderSet renders every header that [Emitter.SendHeaders] would write, in order:
// static headers, then the policy header if the policy renders to anything, then legacy headers if enabled.
// A static header with an empty value means the header is removed.
func (e *Emitter) HeaderSet() ([]csp.Header, error) {
	if e.state == stateUnconfigured {
		return nil, ErrNotLoaded
	}
	static := e.cfg.headers()
	set := make([]csp.Header, 0, len(static)+3)
	for _, h := range static {
		set = append(set, csp.Header{Name: h.Name, Value: h.Value()})
	}
	policyHeaders, err := e.policy.Headers(e.cfg.legacy())
	if err != nil {
		return nil, err
	}
	return append(set, policyHeaders...), nil
}

// SendHeaders writes the header set to w, and reports whether anything was written.
// Nothing is written when the emitter is disabled.
// A second call after a successful send fails with [ErrAlreadySent], and a writer that has already sent its
// status line fails with [ErrHeadersSent].
func (e *Emitter) SendHeaders(w http.ResponseWriter) (bool, error) {
	switch e.state {
	case stateUnconfigured:
		return false, ErrNotLoaded
	case stateSent:
		return false, ErrAlreadySent
	}
	if !e.enabled {
		e.log.Debug("Security headers disabled", "panel", e.panel, "mode", e.cfg.Enabled.String())
		e.cfg.Metrics.emission(resultDisabled)
		return false, nil
	}
	if hw, ok := w.(headerWrittenChecker); ok && hw.HeaderWritten() {
		e.cfg.Metrics.emission(resultFailed)
		return false, ErrHeadersSent
	}
	set, err := e.HeaderSet()
	if err != nil {
		e.cfg.Metrics.emission(resultFailed)
		return false, err
	}
	headers := w.Header()
	for _, h := range set {
		if len(h.Value) == 0 {
			headers.Del(h.Name)
			continue
		}
		headers.Set(h.Name, h.Value)
	}
	e.state = stateSent
	e.cfg.Metrics.emission(resultSent)
	e.log.Debug("Security headers sent", "count", len(set), "reportOnly", !e.policy.Enforced())
	return true, nil
}

// SaveApache writes the policy as an Apache configuration snippet.
func (e *Emitter) SaveApache(path string) error {
	return e.saveSnippet(path, csp.FormatApache)
}

// SaveNginx writes the policy as an Nginx configuration snippet.
func (e *Emitter) SaveNginx(path string) error {
	return e.saveSnippet(path, csp.FormatNginx)
}

func (e *Emitter) saveSnippet(path string, format csp.SnippetFormat) error {
	if e.state == stateUnconfigured {
		return ErrNotLoaded
	}
	if err := e.policy.SaveSnippet(path, format, e.cfg.legacy()); err != nil {
		return err
	}
	_, err := os.Stat(path)
	return err
}
