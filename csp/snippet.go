package csp

import (
	"fmt"
	"os"
	"strings"
)

// SnippetFormat selects the web server configuration syntax produced by [Policy.Snippet].
type SnippetFormat int

const (
	FormatApache SnippetFormat = iota // Header set Name "value"
	FormatNginx                       // add_header Name "value";
)

func (f SnippetFormat) String() string {
	switch f {
	case FormatApache:
		return "apache"
	case FormatNginx:
		return "nginx"
	default:
		return fmt.Sprintf("SnippetFormat(%d)", int(f))
	}
}

// ParseSnippetFormat parses "apache" or "nginx".
func ParseSnippetFormat(name string) (SnippetFormat, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "apache":
		return FormatApache, nil
	case "nginx":
		return FormatNginx, nil
	default:
		return 0, fmt.Errorf("%w: snippet format '%s'", ErrInvalidValue, name)
	}
}

var snippetEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

// Snippet renders the policy headers as static web server configuration.
func (p *Policy) Snippet(format SnippetFormat, includeLegacy bool) (string, error) {
	headers, err := p.Headers(includeLegacy)
	if err != nil {
		return "", err
	}
	var buf strings.Builder
	for _, h := range headers {
		value := snippetEscaper.Replace(strings.TrimSpace(h.Value))
		switch format {
		case FormatApache:
			fmt.Fprintf(&buf, "Header set %s \"%s\"\n", h.Name, value)
		case FormatNginx:
			fmt.Fprintf(&buf, "add_header %s \"%s\";\n", h.Name, value)
		default:
			return "", fmt.Errorf("%w: snippet format %s", ErrInvalidValue, format)
		}
	}
	return buf.String(), nil
}

// SaveSnippet writes [Policy.Snippet] output to path, replacing an existing file.
func (p *Policy) SaveSnippet(path string, format SnippetFormat, includeLegacy bool) error {
	snippet, err := p.Snippet(format, includeLegacy)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(snippet), 0644); err != nil {
		return fmt.Errorf("failed to write %s snippet: %w", format, err)
	}
	return nil
}

// SaveApache writes an Apache snippet, including legacy headers, to path.
func (p *Policy) SaveApache(path string) error {
	return p.SaveSnippet(path, FormatApache, true)
}

// SaveNginx writes an Nginx snippet, including legacy headers, to path.
func (p *Policy) SaveNginx(path string) error {
	return p.SaveSnippet(path, FormatNginx, true)
}
