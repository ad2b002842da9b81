package csp

import (
	"fmt"
	"strings"
)

const directiveSeparator = "; "

// Render builds the header value.
//
// Directives are written in the order they were first mutated, followed by upgrade-insecure-requests, reflected-xss,
// referrer, and report-uri when set. Every directive is terminated by "; ", including the last one.
// Within a directive, values are ordered as expressions, resolved source sets, nonces, then hashes.
//
// An empty string is returned when there's nothing to send.
// [ErrSetNotFound] is returned if a referenced source set hasn't been defined.
func (p *Policy) Render() (string, error) {
	var buf strings.Builder
	for _, d := range p.order {
		sources, err := p.directives[d].sources(p.resolve)
		if err != nil {
			return "", fmt.Errorf("%s: %w", d, err)
		}
		value := joinSources(sources)
		if len(value) == 0 {
			continue
		}
		writeDirective(&buf, string(d), value)
	}
	if p.upgradeInsecure {
		buf.WriteString("upgrade-insecure-requests")
		buf.WriteString(directiveSeparator)
	}
	if len(p.reflectedXSS) > 0 {
		writeDirective(&buf, "reflected-xss", string(p.reflectedXSS))
	}
	if len(p.referrer) > 0 {
		writeDirective(&buf, "referrer", string(p.referrer))
	}
	if len(p.reportURI) > 0 {
		writeDirective(&buf, "report-uri", p.reportURI)
	}
	return buf.String(), nil
}

func joinSources(sources []string) string {
	encoded := make([]string, 0, len(sources))
	for _, s := range sources {
		if s = encodeSource(s); len(s) > 0 {
			encoded = append(encoded, s)
		}
	}
	return strings.Join(encoded, " ")
}

func writeDirective(buf *strings.Builder, name, value string) {
	buf.WriteString(name)
	buf.WriteByte(' ')
	buf.WriteString(value)
	buf.WriteString(directiveSeparator)
}

// HeaderName returns the enforcing or report-only header name, depending on [Policy.SetEnforce].
func (p *Policy) HeaderName() string {
	if p.enforce {
		return HeaderContentSecurityPolicy
	}
	return HeaderContentSecurityPolicyReportOnly
}

// Headers returns the CSP header, if there's anything to send, optionally followed by the legacy headers.
func (p *Policy) Headers(includeLegacy bool) ([]Header, error) {
	value, err := p.Render()
	if err != nil {
		return nil, err
	}
	var headers []Header
	if len(value) > 0 {
		headers = append(headers, Header{Name: p.HeaderName(), Value: value})
	}
	if includeLegacy {
		headers = append(headers, p.LegacyHeaders()...)
	}
	return headers, nil
}

// LegacyHeaders derives X-XSS-Protection from the reflected-xss policy and X-Frame-Options from the frame options.
// Unset values are omitted.
func (p *Policy) LegacyHeaders() []Header {
	var headers []Header
	switch p.reflectedXSS {
	case ReflectedXSSAllow:
		headers = append(headers, Header{Name: HeaderXSSProtection, Value: "0"})
	case ReflectedXSSFilter:
		headers = append(headers, Header{Name: HeaderXSSProtection, Value: "1"})
	case ReflectedXSSBlock:
		headers = append(headers, Header{Name: HeaderXSSProtection, Value: "1; mode=block"})
	}
	if len(p.frameOptions) > 0 {
		headers = append(headers, Header{Name: HeaderFrameOptions, Value: p.frameOptions})
	}
	return headers
}
