package csp

import (
	"fmt"
	"strings"
)

// Directive is the name of a CSP directive that may be mutated in a [Policy].
// Only the names in [Directives] are accepted, anything else is rejected with [ErrInvalidDirective].
//
// Source: https://www.w3.org/TR/CSP2/#directives
type Directive string

const (
	BaseURI        Directive = "base-uri"
	ChildSrc       Directive = "child-src"
	ConnectSrc     Directive = "connect-src"
	DefaultSrc     Directive = "default-src"
	FontSrc        Directive = "font-src"
	FormAction     Directive = "form-action"
	FrameAncestors Directive = "frame-ancestors"
	FrameSrc       Directive = "frame-src"
	ImgSrc         Directive = "img-src"
	ManifestSrc    Directive = "manifest-src"
	MediaSrc       Directive = "media-src"
	ObjectSrc      Directive = "object-src"
	PluginTypes    Directive = "plugin-types"
	ScriptSrc      Directive = "script-src"
	StyleSrc       Directive = "style-src"
	WorkerSrc      Directive = "worker-src"
)

// Keywords must be single-quoted in a rendered policy. Bare keywords passed to [Policy.AddExpression] are quoted automatically.
const (
	KeywordSelf           = "self"
	KeywordUnsafeInline   = "unsafe-inline"
	KeywordUnsafeEval     = "unsafe-eval"
	KeywordUnsafeRedirect = "unsafe-redirect"
	KeywordNone           = "none"
)

const (
	SchemeBlob        = "blob:"
	SchemeData        = "data:"
	SchemeFilesystem  = "filesystem:"
	SchemeMediaStream = "mediastream:"
)

// directives is the whitelist, in the order used when a [Definition] is applied.
var directives = []Directive{
	BaseURI,
	ChildSrc,
	ConnectSrc,
	DefaultSrc,
	FontSrc,
	FormAction,
	FrameAncestors,
	FrameSrc,
	ImgSrc,
	ManifestSrc,
	MediaSrc,
	ObjectSrc,
	PluginTypes,
	ScriptSrc,
	StyleSrc,
	WorkerSrc,
}

var (
	knownDirectives = func() map[Directive]bool {
		m := make(map[Directive]bool, len(directives))
		for _, d := range directives {
			m[d] = true
		}
		return m
	}()
	keywords = map[string]bool{
		KeywordSelf:           true,
		KeywordUnsafeInline:   true,
		KeywordUnsafeEval:     true,
		KeywordUnsafeRedirect: true,
		KeywordNone:           true,
	}
)

// Directives returns every directive name accepted by a [Policy].
func Directives() []Directive {
	out := make([]Directive, len(directives))
	copy(out, directives)
	return out
}

// Valid reports whether d is in the directive whitelist.
func (d Directive) Valid() bool {
	return knownDirectives[d]
}

func (d Directive) String() string {
	return string(d)
}

// ParseDirective normalizes and validates a directive name.
func ParseDirective(name string) (Directive, error) {
	d := Directive(strings.ToLower(strings.TrimSpace(name)))
	if err := d.validate(); err != nil {
		return "", err
	}
	return d, nil
}

func (d Directive) validate() error {
	if !d.Valid() {
		return fmt.Errorf("%w: '%s'", ErrInvalidDirective, string(d))
	}
	return nil
}

// HashAlgorithm identifies the digest algorithm of a hash source.
type HashAlgorithm string

const (
	SHA256 HashAlgorithm = "sha256"
	SHA384 HashAlgorithm = "sha384"
	SHA512 HashAlgorithm = "sha512"
)

func (a HashAlgorithm) validate() error {
	switch a {
	case SHA256, SHA384, SHA512:
		return nil
	default:
		return fmt.Errorf("%w: unsupported hash algorithm '%s'", ErrInvalidValue, string(a))
	}
}

// DirectiveValue holds everything that has been added to a single directive.
// Each list keeps the order in which values were added.
type DirectiveValue struct {
	expressions []string
	setRefs     []string
	nonces      []string
	hashAlgos   []HashAlgorithm
	hashes      map[HashAlgorithm][]string
}

// Expressions returns the raw source expressions.
func (v *DirectiveValue) Expressions() []string {
	return append([]string(nil), v.expressions...)
}

// SourceSetRefs returns the names of referenced source sets.
func (v *DirectiveValue) SourceSetRefs() []string {
	return append([]string(nil), v.setRefs...)
}

// Nonces returns the nonce tokens, without the 'nonce-' wrapping.
func (v *DirectiveValue) Nonces() []string {
	return append([]string(nil), v.nonces...)
}

// HashAlgorithms returns algorithms in the order they were first used.
func (v *DirectiveValue) HashAlgorithms() []HashAlgorithm {
	return append([]HashAlgorithm(nil), v.hashAlgos...)
}

// Hashes returns the digests added for the given algorithm.
func (v *DirectiveValue) Hashes(algo HashAlgorithm) []string {
	return append([]string(nil), v.hashes[algo]...)
}

func (v *DirectiveValue) addHash(algo HashAlgorithm, digest string) {
	if v.hashes == nil {
		v.hashes = map[HashAlgorithm][]string{}
	}
	if _, ok := v.hashes[algo]; !ok {
		v.hashAlgos = append(v.hashAlgos, algo)
	}
	v.hashes[algo] = append(v.hashes[algo], digest)
}

// sources assembles the directive value: expressions, resolved source sets, nonces, then hashes.
func (v *DirectiveValue) sources(resolve func(name string) ([]string, error)) ([]string, error) {
	out := make([]string, 0, len(v.expressions)+len(v.nonces))
	out = append(out, v.expressions...)
	for _, name := range v.setRefs {
		exprs, err := resolve(name)
		if err != nil {
			return nil, err
		}
		out = append(out, exprs...)
	}
	for _, n := range v.nonces {
		out = append(out, NonceSource(n))
	}
	for _, algo := range v.hashAlgos {
		for _, digest := range v.hashes[algo] {
			out = append(out, HashSource(algo, digest))
		}
	}
	return out, nil
}

// NonceSource returns a correctly formatted nonce source.
// Example: 'nonce-R4nd0m'
func NonceSource(token string) string {
	return "'nonce-" + token + "'"
}

// HashSource returns a correctly formatted hash source for an already base64 encoded digest.
// Example: 'sha256-Abc123=='
func HashSource(algo HashAlgorithm, digestBase64 string) string {
	return "'" + string(algo) + "-" + digestBase64 + "'"
}

// encodeSource escapes the characters that would break the header grammar and quotes bare keywords.
func encodeSource(value string) string {
	value = strings.NewReplacer(";", "%3B", ",", "%2C").Replace(value)
	value = strings.TrimSpace(value)
	if keywords[value] {
		return "'" + value + "'"
	}
	return value
}
