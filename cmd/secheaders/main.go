// Command secheaders renders security header policies, writes them as web server configuration, and serves a demo site.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/saylorsolutions/secheaders"
	"github.com/saylorsolutions/secheaders/csp"
	flag "github.com/spf13/pflag"
	"golang.org/x/term"
)

const envPrefix = "SECHEADERS"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "Error:", err)
		cancel()
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out, errOut io.Writer) error {
	cmds := newCommandSet("secheaders", out, errOut)

	render := cmds.add("render", "Prints the headers that would be sent for a request", func(flags *flag.FlagSet, out io.Writer) error {
		cfg, err := configFromFlags(flags, errOut)
		if err != nil {
			return err
		}
		return renderHeaders(ctx, cfg, out, isTerminal(out))
	})
	addPolicyFlags(render, "force")

	for _, format := range []csp.SnippetFormat{csp.FormatApache, csp.FormatNginx} {
		fs := cmds.add(format.String(), fmt.Sprintf("Writes the policy headers as %s configuration", format), func(flags *flag.FlagSet, out io.Writer) error {
			cfg, err := configFromFlags(flags, errOut)
			if err != nil {
				return err
			}
			output, _ := flags.GetString("output")
			return writeSnippet(ctx, cfg, format, output, out)
		})
		addPolicyFlags(fs, "force")
		fs.StringP("output", "o", "", "Path of the file to write, or standard output if empty")
	}

	serve := cmds.add("serve", "Serves a demo site with security headers and nonces", func(flags *flag.FlagSet, _ io.Writer) error {
		cfg, err := configFromFlags(flags, errOut)
		if err != nil {
			return err
		}
		addr, _ := flags.GetString("addr")
		return serveDemo(ctx, cfg, addr)
	})
	addPolicyFlags(serve, "on")
	serve.String("addr", "127.0.0.1:8080", "Address to listen on")

	return cmds.exec(args)
}

func addPolicyFlags(fs *flag.FlagSet, enabled string) {
	fs.StringP("policy", "p", "", "JSON or YAML policy file, the built-in policy is used if empty or missing")
	fs.String("enabled", enabled, "Whether headers are sent: auto, force, or a boolean")
	fs.Bool("legacy", true, "Send X-XSS-Protection and X-Frame-Options derived from the policy")
	fs.String("seed", "", "Nonce key for the site's own inline scripts and styles")
	fs.String("environment", "", "Environment name, used to detect local development")
	fs.Bool("no-env", false, "Ignore "+envPrefix+"_* environment variables")
	fs.BoolP("verbose", "v", false, "Log at debug level")
}

// configFromFlags builds a config from environment variables, then overrides them with any flags that were set.
func configFromFlags(flags *flag.FlagSet, errOut io.Writer) (secheaders.Config, error) {
	var cfg secheaders.Config
	level := slog.LevelInfo
	if verbose, _ := flags.GetBool("verbose"); verbose {
		level = slog.LevelDebug
	}
	cfg.Logger = slog.New(slog.NewTextHandler(errOut, &slog.HandlerOptions{Level: level}))

	enabled, _ := flags.GetString("enabled")
	parsed, err := secheaders.ParseEnabled(enabled)
	if err != nil {
		return cfg, fmt.Errorf("%w: --enabled: %w", ErrUsage, err)
	}
	cfg.Enabled = parsed
	if noEnv, _ := flags.GetBool("no-env"); !noEnv {
		if err := cfg.FromEnv(envPrefix); err != nil {
			return cfg, err
		}
	}
	if flags.Changed("enabled") {
		cfg.Enabled = parsed
	}
	if flags.Changed("legacy") || cfg.Legacy == nil {
		legacy, _ := flags.GetBool("legacy")
		cfg.Legacy = secheaders.Bool(legacy)
	}
	if seed, _ := flags.GetString("seed"); flags.Changed("seed") {
		cfg.Seed = seed
	}
	if env, _ := flags.GetString("environment"); flags.Changed("environment") {
		cfg.Environment = env
	}
	if path, _ := flags.GetString("policy"); len(path) > 0 {
		cfg.Loader = secheaders.PolicyFile(path)
	}
	return cfg, nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// renderHeaders prints every header as "Name: value" for a terminal.
// Otherwise, only the policy header value is written, so it can be captured by scripts.
func renderHeaders(ctx context.Context, cfg secheaders.Config, out io.Writer, tty bool) error {
	e, err := secheaders.New(ctx, cfg, nil)
	if err != nil {
		return err
	}
	if !tty {
		value, err := e.Policy().Render()
		if err != nil {
			return err
		}
		_, err = io.WriteString(out, value)
		return err
	}
	set, err := e.HeaderSet()
	if err != nil {
		return err
	}
	var buf strings.Builder
	for _, h := range set {
		if len(h.Value) == 0 {
			continue
		}
		fmt.Fprintf(&buf, "%s: %s\n", h.Name, h.Value)
	}
	_, err = io.WriteString(out, buf.String())
	return err
}

func writeSnippet(ctx context.Context, cfg secheaders.Config, format csp.SnippetFormat, path string, out io.Writer) error {
	e, err := secheaders.New(ctx, cfg, nil)
	if err != nil {
		return err
	}
	if len(path) == 0 {
		snippet, err := e.Policy().Snippet(format, cfg.Legacy == nil || *cfg.Legacy)
		if err != nil {
			return err
		}
		_, err = io.WriteString(out, snippet)
		return err
	}
	switch format {
	case csp.FormatApache:
		err = e.SaveApache(path)
	case csp.FormatNginx:
		err = e.SaveNginx(path)
	default:
		err = errors.New("unsupported snippet format")
	}
	if err != nil {
		return err
	}
	cfg.Logger.Info("Wrote snippet", "format", format.String(), "path", path)
	return nil
}
