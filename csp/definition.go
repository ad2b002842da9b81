package csp

import (
	"errors"
	"fmt"
	"sort"
)

// Sources describes the value of one directive in a [Definition].
type Sources struct {
	Allow        []string // Allow lists arbitrary source expressions, such as hosts or schemes.
	Self         bool
	Data         bool
	Blob         bool
	MediaStream  bool
	Filesystem   bool
	UnsafeInline bool
	UnsafeEval   bool
	Hashes       []Hash
	Nonces       []string
	Sets         []string // Sets references source sets by name.
}

// Hash is a pre-computed, base64 encoded digest.
type Hash struct {
	Algorithm HashAlgorithm
	Digest    string
}

// Definition is a declarative policy, as loaded from an inline map or a JSON/YAML document.
type Definition struct {
	ReportOnly              bool
	ReportURI               string
	UpgradeInsecureRequests bool
	ReflectedXSS            ReflectedXSS
	Referrer                Referrer
	FrameOptions            FrameOption
	FrameOrigin             string // FrameOrigin is only used with [FrameAllowFrom].
	SourceSets              map[string][]string
	Directives              map[Directive]Sources
}

// DefaultDefinition returns the built-in policy: same-origin everything, data: images, no plugins, frames, or workers.
func DefaultDefinition() Definition {
	return Definition{
		UpgradeInsecureRequests: true,
		Directives: map[Directive]Sources{
			BaseURI:        {Self: true},
			DefaultSrc:     {Self: true},
			ConnectSrc:     {Self: true},
			FontSrc:        {Self: true},
			FormAction:     {Self: true},
			FrameAncestors: {},
			FrameSrc:       {},
			ImgSrc:         {Self: true, Data: true},
			MediaSrc:       {},
			ObjectSrc:      {},
			PluginTypes:    {},
			ScriptSrc:      {Self: true},
			StyleSrc:       {Self: true},
			WorkerSrc:      {},
		},
	}
}

func (s Sources) expressions() []string {
	var out []string
	if s.Self {
		out = append(out, KeywordSelf)
	}
	out = append(out, s.Allow...)
	if s.Data {
		out = append(out, SchemeData)
	}
	if s.Blob {
		out = append(out, SchemeBlob)
	}
	if s.MediaStream {
		out = append(out, SchemeMediaStream)
	}
	if s.Filesystem {
		out = append(out, SchemeFilesystem)
	}
	if s.UnsafeInline {
		out = append(out, KeywordUnsafeInline)
	}
	if s.UnsafeEval {
		out = append(out, KeywordUnsafeEval)
	}
	return out
}

func (s Sources) empty() bool {
	return len(s.expressions()) == 0 && len(s.Hashes) == 0 && len(s.Nonces) == 0 && len(s.Sets) == 0
}

// Policy creates a new [Policy] from the definition.
func (def Definition) Policy(opts ...Option) (*Policy, error) {
	p := New(opts...)
	if err := def.Apply(p); err != nil {
		return nil, err
	}
	return p, nil
}

// Apply adds everything in the definition to p.
//
// Source sets are defined first, then directives are applied in whitelist order, so the rendered output doesn't depend on map iteration.
// A directive without any sources is rendered as 'none', except plugin-types which is skipped.
// All problems found are returned together.
func (def Definition) Apply(p *Policy) error {
	var errs []error
	setNames := make([]string, 0, len(def.SourceSets))
	for name := range def.SourceSets {
		setNames = append(setNames, name)
	}
	sort.Strings(setNames)
	for _, name := range setNames {
		p.DefineSourceSet(name, def.SourceSets[name]...)
	}

	for d := range def.Directives {
		if err := d.validate(); err != nil {
			errs = append(errs, err)
		}
	}
	for _, d := range directives {
		sources, ok := def.Directives[d]
		if !ok {
			continue
		}
		if err := applySources(p, d, sources); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", d, err))
		}
	}

	p.SetEnforce(!def.ReportOnly)
	p.SetReportURI(def.ReportURI)
	p.SetUpgradeInsecureRequests(def.UpgradeInsecureRequests)
	if err := p.SetReflectedXSSPolicy(def.ReflectedXSS); err != nil {
		errs = append(errs, err)
	}
	if err := p.SetReferrerPolicy(def.Referrer); err != nil {
		errs = append(errs, err)
	}
	if err := p.SetFrameOptions(def.FrameOptions, def.FrameOrigin); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func applySources(p *Policy, d Directive, sources Sources) error {
	if sources.empty() {
		if d == PluginTypes {
			return nil
		}
		return p.AddExpression(d, KeywordNone)
	}
	for _, expr := range sources.expressions() {
		if err := p.AddExpression(d, expr); err != nil {
			return err
		}
	}
	for _, set := range sources.Sets {
		if err := p.AddSourceSetRef(d, set); err != nil {
			return err
		}
	}
	for _, n := range sources.Nonces {
		if err := p.AddNonce(d, n); err != nil {
			return err
		}
	}
	for _, h := range sources.Hashes {
		if err := p.AddHashTo(d, h.Algorithm, h.Digest); err != nil {
			return err
		}
	}
	return nil
}
