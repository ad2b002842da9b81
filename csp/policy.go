// Package csp models a Content Security Policy as a table of directives and renders it into a single header value.
//
// A [Policy] is meant to be built for one request and discarded afterward, it's not safe for concurrent use.
// Named source sets that are shared between requests belong in a [SourceSets] registry passed with [WithSourceSets].
package csp

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	HeaderContentSecurityPolicy           = "Content-Security-Policy"
	HeaderContentSecurityPolicyReportOnly = "Content-Security-Policy-Report-Only"
	HeaderXSSProtection                   = "X-XSS-Protection"
	HeaderFrameOptions                    = "X-Frame-Options"
)

// Referrer is a value for the CSP referrer directive.
type Referrer string

const (
	ReferrerNone                  Referrer = "none"
	ReferrerNoneWhenDowngrade     Referrer = "none-when-downgrade"
	ReferrerOrigin                Referrer = "origin"
	ReferrerOriginWhenCrossOrigin Referrer = "origin-when-cross-origin"
	ReferrerUnsafeURL             Referrer = "unsafe-url"
)

// ReflectedXSS is a value for the CSP reflected-xss directive, which also drives the legacy X-XSS-Protection header.
type ReflectedXSS string

const (
	ReflectedXSSAllow  ReflectedXSS = "allow"
	ReflectedXSSFilter ReflectedXSS = "filter"
	ReflectedXSSBlock  ReflectedXSS = "block"
)

// FrameOption is a value for the legacy X-Frame-Options header.
type FrameOption string

const (
	FrameDeny       FrameOption = "DENY"
	FrameSameOrigin FrameOption = "SAMEORIGIN"
	FrameAllowFrom  FrameOption = "ALLOW-FROM"
)

// Header is a single response header name and value.
type Header struct {
	Name  string
	Value string
}

// Policy is the directive table plus the top-level policy scalars.
// The zero value is not usable, use [New].
type Policy struct {
	order           []Directive
	directives      map[Directive]*DirectiveValue
	sets            *SourceSets
	shared          *SourceSets
	enforce         bool
	reportURI       string
	reflectedXSS    ReflectedXSS
	referrer        Referrer
	frameOptions    string
	upgradeInsecure bool
}

// Option configures a new [Policy].
type Option func(p *Policy)

// WithSourceSets allows the policy to resolve references against a shared, read-only registry.
// Sets defined with [Policy.DefineSourceSet] take precedence.
func WithSourceSets(shared *SourceSets) Option {
	return func(p *Policy) {
		p.shared = shared
	}
}

// New creates an empty, enforced policy.
func New(opts ...Option) *Policy {
	p := &Policy{
		directives: map[Directive]*DirectiveValue{},
		sets:       NewSourceSets(),
		enforce:    true,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Policy) directive(d Directive) (*DirectiveValue, error) {
	if err := d.validate(); err != nil {
		return nil, err
	}
	v, ok := p.directives[d]
	if !ok {
		v = new(DirectiveValue)
		p.directives[d] = v
		p.order = append(p.order, d)
	}
	return v, nil
}

// Directive returns the value stored for d, if anything has been added to it.
func (p *Policy) Directive(d Directive) (*DirectiveValue, bool) {
	v, ok := p.directives[d]
	return v, ok
}

// DefinedDirectives returns the directives that have been mutated, in render order.
func (p *Policy) DefinedDirectives() []Directive {
	return append([]Directive(nil), p.order...)
}

// DefineSourceSet defines, or redefines, a source set local to this policy.
func (p *Policy) DefineSourceSet(name string, expressions ...string) {
	p.sets.Define(name, expressions...)
}

// SourceSets returns the registry of sets local to this policy.
func (p *Policy) SourceSets() *SourceSets {
	return p.sets
}

func (p *Policy) resolve(name string) ([]string, error) {
	if p.sets.Has(name) {
		return p.sets.Resolve(name)
	}
	return p.shared.Resolve(name)
}

// AddExpression appends a source expression to the directive verbatim.
// Escaping and keyword quoting happen when the policy is rendered.
func (p *Policy) AddExpression(d Directive, expr string) error {
	v, err := p.directive(d)
	if err != nil {
		return err
	}
	v.expressions = append(v.expressions, expr)
	return nil
}

// AddSourceSetRef adds a reference to a named source set.
// The name is resolved by [Policy.Render], so the set may be defined after this call.
func (p *Policy) AddSourceSetRef(d Directive, setName string) error {
	v, err := p.directive(d)
	if err != nil {
		return err
	}
	v.setRefs = append(v.setRefs, setName)
	return nil
}

// AddNonce adds a nonce token to the directive. It will be rendered as 'nonce-<token>'.
func (p *Policy) AddNonce(d Directive, token string) error {
	v, err := p.directive(d)
	if err != nil {
		return err
	}
	v.nonces = append(v.nonces, token)
	return nil
}

// AddHash adds a base64 encoded digest to script-src.
func (p *Policy) AddHash(algo HashAlgorithm, digestBase64 string) error {
	return p.AddHashTo(ScriptSrc, algo, digestBase64)
}

// AddHashTo adds a base64 encoded digest to an arbitrary directive, such as style-src.
func (p *Policy) AddHashTo(d Directive, algo HashAlgorithm, digestBase64 string) error {
	if err := d.validate(); err != nil {
		return err
	}
	if err := algo.validate(); err != nil {
		return err
	}
	v, _ := p.directive(d)
	v.addHash(algo, digestBase64)
	return nil
}

// SetReferrerPolicy sets the referrer directive. An empty value clears it.
func (p *Policy) SetReferrerPolicy(value Referrer) error {
	switch value {
	case "", ReferrerNone, ReferrerNoneWhenDowngrade, ReferrerOrigin, ReferrerOriginWhenCrossOrigin, ReferrerUnsafeURL:
		p.referrer = value
		return nil
	default:
		return fmt.Errorf("%w: referrer policy '%s'", ErrInvalidValue, string(value))
	}
}

// SetReflectedXSSPolicy sets the reflected-xss directive. An empty value clears it.
func (p *Policy) SetReflectedXSSPolicy(value ReflectedXSS) error {
	switch value {
	case "", ReflectedXSSAllow, ReflectedXSSFilter, ReflectedXSSBlock:
		p.reflectedXSS = value
		return nil
	default:
		return fmt.Errorf("%w: reflected XSS policy '%s'", ErrInvalidValue, string(value))
	}
}

// SetFrameOptions sets the value of the legacy X-Frame-Options header. An empty value clears it.
// The origin is only used with [FrameAllowFrom], and must have at least a scheme and a host.
func (p *Policy) SetFrameOptions(value FrameOption, origin string) error {
	switch value {
	case "":
		p.frameOptions = ""
	case FrameDeny, FrameSameOrigin:
		p.frameOptions = string(value)
	case FrameAllowFrom:
		serialized, err := ExtractOrigin(origin)
		if err != nil {
			return err
		}
		p.frameOptions = string(value) + " " + serialized
	default:
		return fmt.Errorf("%w: frame options '%s'", ErrInvalidValue, string(value))
	}
	return nil
}

// ExtractOrigin returns the serialized origin (scheme://host[:port]) of uri.
func ExtractOrigin(uri string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(uri))
	if err != nil {
		return "", fmt.Errorf("%w '%s': %w", ErrInvalidOrigin, uri, err)
	}
	if len(u.Scheme) == 0 || len(u.Hostname()) == 0 {
		return "", fmt.Errorf("%w '%s': scheme and host are required", ErrInvalidOrigin, uri)
	}
	return u.Scheme + "://" + u.Host, nil
}

// SetReportURI sets the report-uri directive. An empty value clears it.
func (p *Policy) SetReportURI(uri string) {
	p.reportURI = uri
}

// SetEnforce chooses between the enforced header and the report-only header.
func (p *Policy) SetEnforce(enforce bool) {
	p.enforce = enforce
}

// Enforced reports whether the policy will be sent with the enforcing header name.
func (p *Policy) Enforced() bool {
	return p.enforce
}

// SetUpgradeInsecureRequests toggles the value-less upgrade-insecure-requests directive.
func (p *Policy) SetUpgradeInsecureRequests(upgrade bool) {
	p.upgradeInsecure = upgrade
}
