// Package exec runs a command on every target's script console.
package exec

import (
	"context"
	"sync"

	"github.com/CompassSecurity/groovyleek/pkg/format"
	"github.com/CompassSecurity/groovyleek/pkg/jenkins/report"
	"github.com/CompassSecurity/groovyleek/pkg/jenkins/scriptconsole"
	"github.com/CompassSecurity/groovyleek/pkg/jenkins/targets"
	"github.com/CompassSecurity/groovyleek/pkg/logging"
	"github.com/rs/zerolog/log"
	"github.com/wandb/parallel"
)

// Options configure a run across targets.
type Options struct {
	Targets     []targets.Target
	Command     string
	Shell       scriptconsole.Shell
	KillTimeout int
	Threads     int
	Crumb       bool
	ReportFile  string
}

// Summary aggregates the results of a run.
type Summary struct {
	Succeeded int
	Failed    int
	Results   []scriptconsole.Result
}

// Run executes opts.Command on all targets with at most opts.Threads
// concurrent targets. Failures are logged per target and never stop the run.
func Run(ctx context.Context, requester scriptconsole.Requester, reporter report.Reporter, opts Options) Summary {
	threads := opts.Threads
	if threads < 1 {
		threads = 1
	}

	execOpts := scriptconsole.Options{
		Command:     opts.Command,
		Shell:       opts.Shell,
		KillTimeout: opts.KillTimeout,
	}

	var (
		mu      sync.Mutex
		summary Summary
	)

	group := parallel.Limited(ctx, threads)
	for _, target := range opts.Targets {
		group.Go(func(ctx context.Context) {
			res := scriptconsole.Execute(ctx, requester, target, execOpts)
			handleResult(res, reporter)

			mu.Lock()
			defer mu.Unlock()
			summary.Results = append(summary.Results, res)
			if res.Succeeded() {
				summary.Succeeded++
			} else {
				summary.Failed++
			}
		})
	}
	group.Wait()

	return summary
}

func handleResult(res scriptconsole.Result, reporter report.Reporter) {
	target := res.Target.Address()

	switch res.Outcome {
	case scriptconsole.OutcomeSuccess:
		log.Info().Str("target", target).Int("attempts", res.Attempts).Msg("The command executed. Output:")
		log.Info().Str("target", target).Msg(format.SanitizeOutput(res.Stdout))
		if res.Stderr != "" {
			log.Warn().Str("target", target).Str("stderr", format.SanitizeOutput(res.Stderr)).Msg("Command wrote to stderr")
		}
		if reporter != nil {
			if err := reporter.Report(report.FromResult(res)); err != nil {
				log.Error().Err(err).Str("target", target).Msg("Failed reporting result")
			}
		}
	case scriptconsole.OutcomeInvalidCommand:
		log.Error().Str("target", target).Int("attempts", res.Attempts).Msg("The provided command is not valid. Try again.")
	default:
		log.Error().Err(res.Err).Str("target", target).Msg("An unknown error occurred when running the command.")
	}
}

// RunExec wires the script console client and reporters and runs opts.
func RunExec(ctx context.Context, opts Options) (Summary, error) {
	client, err := scriptconsole.NewClient(opts.Crumb)
	if err != nil {
		return Summary{}, err
	}
	defer func() { _ = client.Close() }()

	reporters := report.Multi{report.HitReporter{}}
	if opts.ReportFile != "" {
		fileReporter, err := report.NewFileReporter(opts.ReportFile)
		if err != nil {
			return Summary{}, err
		}
		defer func() { _ = fileReporter.Close() }()
		reporters = append(reporters, fileReporter)
	}

	log.Info().Int("targets", len(opts.Targets)).Str("command", opts.Command).Str("shell", string(opts.Shell)).Msg("Running command on script consoles")
	summary := Run(ctx, client, reporters, opts)
	log.Info().Int("succeeded", summary.Succeeded).Int("failed", summary.Failed).Int64("hits", logging.HitCount()).Msg("Done")

	return summary, nil
}
