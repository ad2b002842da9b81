package main

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	flag "github.com/spf13/pflag"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrUsage          = errors.New("usage error")
)

// commandFunc runs a command with its parsed flags, writing results to out.
type commandFunc = func(flags *flag.FlagSet, out io.Writer) error

type command struct {
	key        string
	shortUsage string
	flags      *flag.FlagSet
	exec       commandFunc
}

// commandSet dispatches to a sub-command by its first argument.
type commandSet struct {
	name     string
	commands map[string]*command
	out      io.Writer
	errOut   io.Writer
}

func newCommandSet(name string, out, errOut io.Writer) *commandSet {
	return &commandSet{name: name, commands: map[string]*command{}, out: out, errOut: errOut}
}

// add registers a sub-command. Flags may be added to the returned flag set before calling exec.
func (s *commandSet) add(key, shortUsage string, exec commandFunc) *flag.FlagSet {
	key = strings.ToLower(strings.TrimSpace(key))
	fs := flag.NewFlagSet(s.name+" "+key, flag.ContinueOnError)
	fs.SetOutput(s.errOut)
	fs.BoolP("help", "h", false, "Prints this usage information")
	cmd := &command{key: key, shortUsage: shortUsage, flags: fs, exec: exec}
	fs.Usage = func() {
		_, _ = fmt.Fprintf(s.errOut, "%s\n\nUSAGE:\n%s %s [FLAGS]\n\nFLAGS\n%s", cmd.shortUsage, s.name, key, fs.FlagUsages())
	}
	s.commands[key] = cmd
	return fs
}

func (s *commandSet) usage() string {
	keys := make([]string, 0, len(s.commands))
	maxLen := 0
	for key := range s.commands {
		keys = append(keys, key)
		maxLen = max(maxLen, len(key))
	}
	slices.Sort(keys)
	var buf strings.Builder
	fmt.Fprintf(&buf, "USAGE:\n%s COMMAND [FLAGS]\n\nCOMMANDS:\n", s.name)
	for _, key := range keys {
		fmt.Fprintf(&buf, "  %-*s\t%s\n", maxLen, key, s.commands[key].shortUsage)
	}
	return buf.String()
}

func (s *commandSet) exec(args []string) error {
	if len(args) == 0 {
		_, _ = fmt.Fprint(s.errOut, s.usage())
		return fmt.Errorf("%w: no command given", ErrUsage)
	}
	key := strings.ToLower(args[0])
	if key == "help" || key == "--help" || key == "-h" {
		_, _ = fmt.Fprint(s.errOut, s.usage())
		return nil
	}
	cmd, ok := s.commands[key]
	if !ok {
		_, _ = fmt.Fprint(s.errOut, s.usage())
		return fmt.Errorf("%w: %s", ErrUnknownCommand, args[0])
	}
	if err := cmd.flags.Parse(args[1:]); err != nil {
		return fmt.Errorf("%w: %w", ErrUsage, err)
	}
	if help, _ := cmd.flags.GetBool("help"); help {
		cmd.flags.Usage()
		return nil
	}
	return cmd.exec(cmd.flags, s.out)
}
