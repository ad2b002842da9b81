package secheaders

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/saylorsolutions/secheaders/csp"
	"github.com/saylorsolutions/secheaders/nonce"
)

// Enabled controls whether an [Emitter] writes headers.
type Enabled int

const (
	// EnabledAuto sends headers unless the request is local, or targets a panel path.
	EnabledAuto Enabled = iota
	// EnabledOn sends headers for local requests too, but still skips panel paths.
	// This is stricter than a plain "true" setting in some CMS plugins, where explicit enablement also covers the panel.
	// Use EnabledForce to send headers on panel paths.
	EnabledOn
	// EnabledOff never sends headers.
	EnabledOff
	// EnabledForce always sends headers, including local requests and panel paths.
	EnabledForce
)

func (e Enabled) String() string {
	switch e {
	case EnabledAuto:
		return "auto"
	case EnabledOn:
		return "on"
	case EnabledOff:
		return "off"
	case EnabledForce:
		return "force"
	default:
		return fmt.Sprintf("Enabled(%d)", int(e))
	}
}

// ParseEnabled reads "auto" (or blank), "force", or any of [TruthyValues] and [FalsyValues].
func ParseEnabled(value string) (Enabled, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	switch value {
	case "", "auto":
		return EnabledAuto, nil
	case "force":
		return EnabledForce, nil
	}
	b, ok := parseBool(value)
	if !ok {
		return EnabledAuto, fmt.Errorf("%w: enabled '%s'", csp.ErrInvalidValue, value)
	}
	if b {
		return EnabledOn, nil
	}
	return EnabledOff, nil
}

// Bool is a convenience for setting optional boolean fields like [Config.Legacy].
func Bool(b bool) *bool {
	return &b
}

var (
	DefaultLocalEnvironments = []string{"local", "development", "dev"}
	DefaultPanelPaths        = []string{"/panel", "/api"}
)

// Config holds every option for building an [Emitter].
// The zero value is usable and sends the default headers and policy to non-local requests.
type Config struct {
	Enabled Enabled
	// Legacy sends X-XSS-Protection and X-Frame-Options derived from the policy. Defaults to true.
	Legacy *bool
	// Headers are written before the policy headers. A nil slice means [DefaultHeaders], an empty slice means none.
	Headers []Header
	// Loader provides the policy definition. Nil means [csp.DefaultDefinition].
	Loader Loader
	// SourceSets are shared by every policy, and must not be changed while requests are served.
	SourceSets *csp.SourceSets
	// Seed is the nonce key for the site's own inline scripts and styles. Blank disables it.
	Seed string
	// Setter is called with each newly loaded emitter, and may change its policy.
	Setter func(e *Emitter) error
	// TrustedNonces are tokens minted elsewhere, such as by an admin panel, allowed on non-panel pages when a Seed is set.
	TrustedNonces map[string]string

	Environment       string
	LocalEnvironments []string // Defaults to DefaultLocalEnvironments.
	PanelPaths        []string // Defaults to DefaultPanelPaths.

	NonceOptions []nonce.Option
	Logger       *slog.Logger
	Metrics      *Metrics
}

// FromEnv overrides fields from environment variables named with the given prefix, compared case-insensitive:
// <PREFIX>_ENABLED, <PREFIX>_LEGACY, <PREFIX>_SEED, <PREFIX>_POLICY_FILE, and <PREFIX>_ENVIRONMENT.
// Unset or blank variables leave the field unchanged.
func (c *Config) FromEnv(prefix string) error {
	vars := environ()
	key := func(name string) string {
		if len(prefix) == 0 {
			return name
		}
		return prefix + "_" + name
	}
	if val, ok := envVal(vars, key("ENABLED")); ok {
		enabled, err := ParseEnabled(val)
		if err != nil {
			return fmt.Errorf("%s: %w", key("ENABLED"), err)
		}
		c.Enabled = enabled
	}
	if val, ok := envVal(vars, key("LEGACY")); ok {
		legacy, valid := parseBool(val)
		if !valid {
			return fmt.Errorf("%s: %w: '%s'", key("LEGACY"), csp.ErrInvalidValue, val)
		}
		c.Legacy = Bool(legacy)
	}
	if val, ok := envVal(vars, key("SEED")); ok {
		c.Seed = val
	}
	if val, ok := envVal(vars, key("POLICY_FILE")); ok {
		c.Loader = PolicyFile(val)
	}
	if val, ok := envVal(vars, key("ENVIRONMENT")); ok {
		c.Environment = val
	}
	return nil
}

func (c Config) legacy() bool {
	if c.Legacy == nil {
		return true
	}
	return *c.Legacy
}

func (c Config) headers() []Header {
	if c.Headers == nil {
		return DefaultHeaders()
	}
	return c.Headers
}

func (c Config) loader() Loader {
	if c.Loader == nil {
		return DefaultPolicy()
	}
	return c.Loader
}

func (c Config) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return c.Logger
}

func (c Config) localEnvironments() []string {
	if c.LocalEnvironments == nil {
		return DefaultLocalEnvironments
	}
	return c.LocalEnvironments
}

func (c Config) panelPaths() []string {
	if c.PanelPaths == nil {
		return DefaultPanelPaths
	}
	return c.PanelPaths
}
