package secheaders

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/saylorsolutions/secheaders/csp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const defaultPolicyValue = "base-uri 'self'; connect-src 'self'; default-src 'self'; font-src 'self'; form-action 'self'; " +
	"frame-ancestors 'none'; frame-src 'none'; img-src 'self' data:; media-src 'none'; object-src 'none'; " +
	"script-src 'self'; style-src 'self'; worker-src 'none'; upgrade-insecure-requests; "

func testRequest(path string) *http.Request {
	return httptest.NewRequest(http.MethodGet, path, nil)
}

func TestEmitter_SendHeaders(t *testing.T) {
	cfg := Config{
		Enabled: EnabledOn,
		Loader: InlinePolicy{
			"script-src": map[string]any{"self": true},
		},
		Setter: func(e *Emitter) error {
			return e.Policy().AddNonce(csp.ScriptSrc, "abc")
		},
	}
	e, err := New(context.Background(), cfg, testRequest("/"))
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	sent, err := e.SendHeaders(rec)
	require.NoError(t, err)
	assert.True(t, sent)
	assert.True(t, e.Sent())
	assert.Contains(t, rec.Header().Get(csp.HeaderContentSecurityPolicy), "script-src 'self' 'nonce-abc'; ")
	assert.Equal(t, "DENY", rec.Header().Get(HeaderFrameOptions))

	sent, err = e.SendHeaders(httptest.NewRecorder())
	assert.ErrorIs(t, err, ErrAlreadySent)
	assert.False(t, sent)
}

func TestEmitter_DefaultHeaders(t *testing.T) {
	e, err := New(context.Background(), Config{Enabled: EnabledForce}, nil)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	rec.Header().Set(HeaderPoweredBy, "something")
	sent, err := e.SendHeaders(rec)
	require.NoError(t, err)
	assert.True(t, sent)

	headers := rec.Header()
	assert.Empty(t, headers.Values(HeaderPoweredBy), "X-Powered-By should be removed")
	assert.Equal(t, "DENY", headers.Get(HeaderFrameOptions))
	assert.Equal(t, "1; mode=block", headers.Get(HeaderXSSProtection))
	assert.Equal(t, "nosniff", headers.Get(HeaderContentTypeOptions))
	assert.Equal(t, "max-age=31536000; includeSubdomains; preload", headers.Get(HeaderStrictTransportSecurity))
	assert.Equal(t, "no-referrer-when-downgrade", headers.Get(HeaderReferrerPolicy))
	assert.Equal(t, "interest-cohort=()", headers.Get(HeaderPermissionsPolicy))
	features := strings.Split(headers.Get(HeaderFeaturePolicy), "; ")
	assert.Len(t, features, 27)
	assert.Contains(t, features, "camera 'none'")
	assert.Contains(t, features, "xr-spatial-tracking 'none'")
	assert.Equal(t, defaultPolicyValue, headers.Get(csp.HeaderContentSecurityPolicy))
	assert.Empty(t, headers.Get(csp.HeaderContentSecurityPolicyReportOnly))
}

func TestEmitter_Disabled(t *testing.T) {
	e, err := New(context.Background(), Config{Enabled: EnabledOff}, testRequest("/"))
	require.NoError(t, err)
	assert.False(t, e.Enabled())

	rec := httptest.NewRecorder()
	sent, err := e.SendHeaders(rec)
	assert.NoError(t, err)
	assert.False(t, sent)
	assert.Empty(t, rec.Header())
	assert.False(t, e.Sent())
}

func TestEmitter_HeaderSet(t *testing.T) {
	tests := map[string]struct {
		cfg      Config
		expected []csp.Header
	}{
		"Report only": {
			cfg: Config{
				Headers: []Header{},
				Loader: InlinePolicy{
					"report-only": true,
					"default-src": []string{"self"},
				},
			},
			expected: []csp.Header{
				{Name: csp.HeaderContentSecurityPolicyReportOnly, Value: "default-src 'self'; "},
			},
		},
		"Legacy headers follow static headers": {
			cfg: Config{
				Headers: []Header{NewHeader(HeaderXSSProtection, "1; mode=block")},
				Loader: InlinePolicy{
					"reflected-xss": "filter",
				},
			},
			expected: []csp.Header{
				{Name: HeaderXSSProtection, Value: "1; mode=block"},
				{Name: csp.HeaderContentSecurityPolicy, Value: "reflected-xss filter; "},
				{Name: HeaderXSSProtection, Value: "1"},
			},
		},
		"Legacy disabled": {
			cfg: Config{
				Headers: []Header{},
				Legacy:  Bool(false),
				Loader: InlinePolicy{
					"reflected-xss": "block",
				},
			},
			expected: []csp.Header{
				{Name: csp.HeaderContentSecurityPolicy, Value: "reflected-xss block; "},
			},
		},
		"Joined values": {
			cfg: Config{
				Headers: []Header{NewHeader("X-Multi", "a", "b", "c")},
				Loader:  InlinePolicy{},
			},
			expected: []csp.Header{
				{Name: "X-Multi", Value: "a; b; c"},
			},
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			e, err := New(context.Background(), tc.cfg, nil)
			require.NoError(t, err)
			set, err := e.HeaderSet()
			require.NoError(t, err)
			assert.Equal(t, tc.expected, set)
		})
	}
}

func TestEmitter_SeedNonce(t *testing.T) {
	e, err := New(context.Background(), Config{Seed: " site "}, nil)
	require.NoError(t, err)
	token, ok := e.Nonce("site")
	require.True(t, ok, "Seed nonce should be minted with the trimmed seed")
	assert.Equal(t, `nonce="`+token+`"`, string(e.NonceAttr("site")))

	value, err := e.Policy().Render()
	require.NoError(t, err)
	assert.Contains(t, value, "script-src 'self' 'nonce-"+token+"'; ")
	assert.Contains(t, value, "style-src 'self' 'nonce-"+token+"'; ")

	_, ok = e.Nonce("other")
	assert.False(t, ok)
	assert.Empty(t, e.NonceAttr("other"))
}

func TestEmitter_TrustedNonces(t *testing.T) {
	cfg := Config{
		Seed:          "site",
		TrustedNonces: map[string]string{"panel": "pnl", "blank": " "},
	}

	t.Run("Site request", func(t *testing.T) {
		e, err := New(context.Background(), cfg, testRequest("/blog"))
		require.NoError(t, err)
		for _, d := range []csp.Directive{csp.ImgSrc, csp.ScriptSrc, csp.StyleSrc} {
			val, ok := e.Policy().Directive(d)
			require.True(t, ok)
			assert.Contains(t, val.Nonces(), "pnl", "Trusted nonce should be allowed in %s", d)
		}
	})
	t.Run("Panel request", func(t *testing.T) {
		e, err := New(context.Background(), cfg, testRequest("/panel/pages"))
		require.NoError(t, err)
		assert.True(t, e.Panel())
		val, ok := e.Policy().Directive(csp.ImgSrc)
		require.True(t, ok)
		assert.Empty(t, val.Nonces())
	})
	t.Run("No seed", func(t *testing.T) {
		cfg := cfg
		cfg.Seed = ""
		e, err := New(context.Background(), cfg, testRequest("/blog"))
		require.NoError(t, err)
		val, ok := e.Policy().Directive(csp.ScriptSrc)
		require.True(t, ok)
		assert.Empty(t, val.Nonces())
	})
}

func TestEmitter_CallbackErrors(t *testing.T) {
	errCallback := errors.New("callback failed")

	_, err := New(context.Background(), Config{
		Setter: func(_ *Emitter) error {
			return errCallback
		},
	}, nil)
	assert.Equal(t, errCallback, err, "Setter errors should be returned unmodified")

	_, err = New(context.Background(), Config{
		Loader: LoaderFunc(func(_ context.Context) (csp.Definition, error) {
			return csp.Definition{}, errCallback
		}),
	}, nil)
	assert.Equal(t, errCallback, err, "Loader errors should be returned unmodified")
}

type writtenRecorder struct {
	*httptest.ResponseRecorder
}

func (w writtenRecorder) HeaderWritten() bool {
	return true
}

func TestEmitter_SendErrors(t *testing.T) {
	t.Run("Not loaded", func(t *testing.T) {
		e := NewEmitter(Config{Enabled: EnabledForce}, nil)
		_, err := e.SendHeaders(httptest.NewRecorder())
		assert.ErrorIs(t, err, ErrNotLoaded)
		_, err = e.HeaderSet()
		assert.ErrorIs(t, err, ErrNotLoaded)
		_, err = e.MintNonce("x")
		assert.ErrorIs(t, err, ErrNotLoaded)
	})
	t.Run("Transport already sent headers", func(t *testing.T) {
		e, err := New(context.Background(), Config{Enabled: EnabledForce}, nil)
		require.NoError(t, err)
		_, err = e.SendHeaders(writtenRecorder{httptest.NewRecorder()})
		assert.ErrorIs(t, err, ErrHeadersSent)
		assert.False(t, e.Sent())
	})
	t.Run("Render failure writes nothing", func(t *testing.T) {
		e, err := New(context.Background(), Config{
			Enabled: EnabledForce,
			Setter: func(e *Emitter) error {
				return e.Policy().AddSourceSetRef(csp.ScriptSrc, "cdn")
			},
		}, nil)
		require.NoError(t, err)
		rec := httptest.NewRecorder()
		sent, err := e.SendHeaders(rec)
		assert.ErrorIs(t, err, csp.ErrSetNotFound)
		assert.False(t, sent)
		assert.Empty(t, rec.Header())
	})
}

func TestEmitter_SharedSourceSets(t *testing.T) {
	sets := csp.NewSourceSets()
	sets.Define("cdn", "https://cdn.example.com")
	e, err := New(context.Background(), Config{
		SourceSets: sets,
		Loader: InlinePolicy{
			"script-src": map[string]any{"self": true, "sets": []string{"cdn"}},
		},
	}, nil)
	require.NoError(t, err)
	value, err := e.Policy().Render()
	require.NoError(t, err)
	assert.Equal(t, "script-src 'self' https://cdn.example.com; ", value)
}

func TestEmitter_MintNonce(t *testing.T) {
	e, err := New(context.Background(), Config{Enabled: EnabledForce, Loader: InlinePolicy{}}, nil)
	require.NoError(t, err)

	_, err = e.MintNonce("bad", csp.Directive("script"))
	assert.ErrorIs(t, err, csp.ErrInvalidDirective)
	_, ok := e.Nonce("bad")
	assert.False(t, ok, "Nothing should be minted for an invalid directive")

	token, err := e.MintNonce("widget", csp.ImgSrc)
	require.NoError(t, err)
	token2, err := e.MintNonce("inline")
	require.NoError(t, err)
	value, err := e.Policy().Render()
	require.NoError(t, err)
	assert.Equal(t, "img-src 'nonce-"+token+"'; script-src 'nonce-"+token2+"'; style-src 'nonce-"+token2+"'; ", value)

	_, err = e.SendHeaders(httptest.NewRecorder())
	require.NoError(t, err)
	_, err = e.MintNonce("late")
	assert.ErrorIs(t, err, ErrAlreadySent)
	assert.ErrorIs(t, e.Load(context.Background(), nil), ErrAlreadySent)
}

func TestEmitter_Snippets(t *testing.T) {
	e, err := New(context.Background(), Config{
		Loader: InlinePolicy{
			"default-src":   []string{"self"},
			"reflected-xss": "block",
		},
	}, nil)
	require.NoError(t, err)
	dir := t.TempDir()

	apache := filepath.Join(dir, "security.conf")
	require.NoError(t, e.SaveApache(apache))
	data, err := os.ReadFile(apache)
	require.NoError(t, err)
	assert.Equal(t, "Header set Content-Security-Policy \"default-src 'self'; reflected-xss block;\"\n"+
		"Header set X-XSS-Protection \"1; mode=block\"\n", string(data))

	nginx := filepath.Join(dir, "security-nginx.conf")
	require.NoError(t, e.SaveNginx(nginx))
	data, err = os.ReadFile(nginx)
	require.NoError(t, err)
	assert.Equal(t, "add_header Content-Security-Policy \"default-src 'self'; reflected-xss block;\";\n"+
		"add_header X-XSS-Protection \"1; mode=block\";\n", string(data))

	assert.Error(t, e.SaveApache(filepath.Join(dir, "missing", "security.conf")))
}
