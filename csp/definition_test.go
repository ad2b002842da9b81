package csp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const defaultPolicyValue = "base-uri 'self'; connect-src 'self'; default-src 'self'; font-src 'self'; form-action 'self'; " +
	"frame-ancestors 'none'; frame-src 'none'; img-src 'self' data:; media-src 'none'; object-src 'none'; " +
	"script-src 'self'; style-src 'self'; worker-src 'none'; upgrade-insecure-requests; "

const testPolicyJSON = `{
	"report-only": true,
	"report-uri": "https://example.com/csp",
	"referrer": "origin",
	"source-sets": {
		"cdn": ["https://cdn.example.com"]
	},
	"script-src": {
		"self": true,
		"allow": ["https://js.example.com"],
		"unsafe-eval": true,
		"sets": ["cdn"],
		"hashes": [{"sha256": "abc="}, {"sha384": ["def=", "ghi="]}]
	},
	"img-src": ["https://img.example.com", "data:"],
	"frame-ancestors": [],
	"object-src": "*",
	"default-src": {"self": true},
	"plugin-types": {}
}`

const testPolicyYAML = `
default-src:
  self: true
frame-ancestors: []
img-src:
  - https://img.example.com
  - "data:"
object-src: "*"
plugin-types: {}
script-src:
  allow:
    - https://js.example.com
  hashes:
    - sha256: abc=
    - sha384:
        - def=
        - ghi=
  self: true
  sets: [cdn]
  unsafe-eval: true
source-sets:
  cdn:
    - https://cdn.example.com
referrer: origin
report-only: true
report-uri: https://example.com/csp
`

const testPolicyValue = "default-src 'self'; frame-ancestors 'none'; img-src https://img.example.com data:; object-src *; " +
	"script-src 'self' https://js.example.com 'unsafe-eval' https://cdn.example.com 'sha256-abc=' 'sha384-def=' 'sha384-ghi='; " +
	"referrer origin; report-uri https://example.com/csp; "

func TestDefaultDefinition(t *testing.T) {
	p, err := DefaultDefinition().Policy()
	require.NoError(t, err)
	value, err := p.Render()
	require.NoError(t, err)
	assert.Equal(t, defaultPolicyValue, value)
	assert.True(t, p.Enforced())
	_, ok := p.Directive(PluginTypes)
	assert.False(t, ok, "Empty plugin-types should be skipped")
}

func TestDecode_JSONAndYAMLMatch(t *testing.T) {
	fromJSON, err := Decode([]byte(testPolicyJSON), "application/json; charset=utf-8")
	require.NoError(t, err)
	fromYAML, err := Decode([]byte(testPolicyYAML), "text/yaml")
	require.NoError(t, err)
	assert.Equal(t, fromJSON, fromYAML)

	for name, def := range map[string]Definition{"JSON": fromJSON, "YAML": fromYAML} {
		def := def
		t.Run(name, func(t *testing.T) {
			p, err := def.Policy()
			require.NoError(t, err)
			headers, err := p.Headers(true)
			require.NoError(t, err)
			assert.Equal(t, []Header{{Name: HeaderContentSecurityPolicyReportOnly, Value: testPolicyValue}}, headers)
		})
	}
}

func TestDecode_Errors(t *testing.T) {
	tests := map[string]struct {
		doc       string
		mediaType string
		errs      []error
	}{
		"Malformed JSON": {
			doc:       `{"default-src": `,
			mediaType: MediaTypeJSON,
			errs:      []error{ErrDecode},
		},
		"Malformed YAML": {
			doc:       "default-src: [self\n",
			mediaType: MediaTypeYAML,
			errs:      []error{ErrDecode},
		},
		"Unsupported media type": {
			doc:       `{}`,
			mediaType: "text/plain",
			errs:      []error{ErrDecode},
		},
		"Unknown directive": {
			doc:       `{"navigate-to": ["self"]}`,
			mediaType: MediaTypeJSON,
			errs:      []error{ErrDecode, ErrInvalidDirective},
		},
		"Unknown source key": {
			doc:       `{"script-src": {"strict-dynamic": true}}`,
			mediaType: MediaTypeJSON,
			errs:      []error{ErrDecode},
		},
		"Wrong scalar type": {
			doc:       `{"report-only": "yes"}`,
			mediaType: MediaTypeJSON,
			errs:      []error{ErrDecode},
		},
		"Unsupported hash": {
			doc:       `{"script-src": {"hashes": [{"md5": "abc"}]}}`,
			mediaType: MediaTypeJSON,
			errs:      []error{ErrDecode, ErrInvalidValue},
		},
		"Unknown frame options": {
			doc:       `{"frame-options": "ALLOWALL"}`,
			mediaType: MediaTypeJSON,
			errs:      []error{ErrInvalidValue},
		},
		"Frame options without origin": {
			doc:       "frame-options:\n  value: ALLOW-FROM\n",
			mediaType: MediaTypeYAML,
			errs:      []error{ErrInvalidOrigin},
		},
		"Unknown frame options key": {
			doc:       `{"frame-options": {"value": "DENY", "uri": "https://example.com"}}`,
			mediaType: MediaTypeJSON,
			errs:      []error{ErrDecode},
		},
		"Non-string source": {
			doc:       `{"img-src": ["self", 5]}`,
			mediaType: MediaTypeJSON,
			errs:      []error{ErrDecode},
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			def, err := Decode([]byte(tc.doc), tc.mediaType)
			if err == nil {
				_, err = def.Policy()
			}
			require.Error(t, err)
			for _, expected := range tc.errs {
				assert.ErrorIs(t, err, expected)
			}
		})
	}
}

func TestDefinition_Apply_Errors(t *testing.T) {
	def := Definition{
		ReflectedXSS: "sometimes",
		Directives: map[Directive]Sources{
			"bogus-src": {Self: true},
			ScriptSrc:   {Hashes: []Hash{{Algorithm: "crc32", Digest: "abc"}}},
		},
	}
	_, err := def.Policy()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidDirective)
	assert.ErrorIs(t, err, ErrInvalidValue)
}

func TestDefinition_SourceSetsAreLocal(t *testing.T) {
	def := Definition{
		SourceSets: map[string][]string{"self-origin": {"self", "https://example.com"}},
		Directives: map[Directive]Sources{
			DefaultSrc: {Sets: []string{"self-origin"}},
			FontSrc:    {Sets: []string{"missing"}},
		},
	}
	p, err := def.Policy()
	require.NoError(t, err)
	_, err = p.Render()
	assert.ErrorIs(t, err, ErrSetNotFound)

	p.DefineSourceSet("missing", "https://fonts.example.com")
	value, err := p.Render()
	require.NoError(t, err)
	assert.Equal(t, "default-src 'self' https://example.com; font-src https://fonts.example.com; ", value)
}

func TestSupportsMediaType(t *testing.T) {
	for _, mt := range []string{"application/json", "text/json", "application/csp+json", "application/yaml", "application/x-yaml", "text/yaml; charset=utf-8", "application/policy+yaml"} {
		assert.True(t, SupportsMediaType(mt), mt)
	}
	for _, mt := range []string{"", "text/plain", "application/xml", "not a media type"} {
		assert.False(t, SupportsMediaType(mt), mt)
	}
}

func TestDefinitionFromMap_GoValues(t *testing.T) {
	def, err := DefinitionFromMap(map[string]any{
		"default-src": []string{"self", "https://example.com"},
		"source-sets": map[string]any{"cdn": []string{"https://cdn.example.com"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"self", "https://example.com"}, def.Directives[DefaultSrc].Allow)
	assert.Equal(t, map[string][]string{"cdn": {"https://cdn.example.com"}}, def.SourceSets)
}

func TestDecode_FrameOptions(t *testing.T) {
	tests := map[string]struct {
		doc       string
		mediaType string
		expected  string
	}{
		"Header value": {
			doc:       `{"frame-options": "SAMEORIGIN"}`,
			mediaType: MediaTypeJSON,
			expected:  "SAMEORIGIN",
		},
		"Lower case": {
			doc:       "frame-options: deny\n",
			mediaType: MediaTypeYAML,
			expected:  "DENY",
		},
		"Allow from in value": {
			doc:       `{"frame-options": "ALLOW-FROM https://example.com/embed"}`,
			mediaType: MediaTypeJSON,
			expected:  "ALLOW-FROM https://example.com",
		},
		"Object with origin": {
			doc:       "frame-options:\n  value: ALLOW-FROM\n  origin: https://example.com:8443/path?q=1\n",
			mediaType: MediaTypeYAML,
			expected:  "ALLOW-FROM https://example.com:8443",
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			def, err := Decode([]byte(tc.doc), tc.mediaType)
			require.NoError(t, err)
			p, err := def.Policy()
			require.NoError(t, err)
			assert.Equal(t, []Header{{Name: HeaderFrameOptions, Value: tc.expected}}, p.LegacyHeaders())
		})
	}
}
