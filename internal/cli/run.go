package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/cuongbtq/analysis-console/internal/analysis/domain"
	"github.com/cuongbtq/analysis-console/internal/poller"
	"github.com/cuongbtq/analysis-console/internal/results"
	"github.com/spf13/cobra"
)

// ErrJobFailed is returned when the analysis could not be started or ended in error
var ErrJobFailed = errors.New("analysis failed")

type runRequest struct {
	symbol string
	mode   domain.Mode
	freq   domain.Frequency
	filter results.Filter
}

// RunCmd submits one analysis, follows its progress and prints the result
func RunCmd(a *app) *cobra.Command {
	var symbol, mode, freq, query, health string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Submit an analysis and wait for its result",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := domain.ParseMode(mode)
			if err != nil {
				return err
			}
			f, err := domain.ParseFrequency(freq)
			if err != nil {
				return err
			}
			h, err := results.ParseHealth(health)
			if err != nil {
				return err
			}

			return a.run(cmd.Context(), cmd.OutOrStdout(), runRequest{
				symbol: symbol,
				mode:   m,
				freq:   f,
				filter: results.Filter{Query: query, Health: h},
			})
		},
	}

	cmd.Flags().StringVar(&symbol, "symbol", "", "Ticker to analyse")
	cmd.Flags().StringVar(&mode, "mode", string(domain.ModeFull), "Analysis mode (see `analysisctl modes`)")
	cmd.Flags().StringVar(&freq, "frequency", string(domain.FrequencyAnnual), "annual or quarterly; ignored in full mode")
	cmd.Flags().StringVar(&query, "query", "", "Only show results containing this text")
	cmd.Flags().StringVar(&health, "health", "", "Only show positive, negative or error results")
	_ = cmd.MarkFlagRequired("symbol")

	return cmd
}

func (a *app) run(ctx context.Context, w io.Writer, req runRequest) error {
	printer := &progressPrinter{out: w}
	finished := make(chan poller.Snapshot, 1)

	rec := poller.New(a.backend,
		poller.WithInterval(a.cfg.Poller.Interval),
		poller.WithLogger(a.logger),
		poller.WithListener(func(s poller.Snapshot) {
			printer.print(s)
			if s.State == domain.StateDone || s.State == domain.StateError {
				select {
				case finished <- s:
				default:
				}
			}
		}),
	)
	defer rec.Close()

	if _, err := rec.Submit(ctx, req.symbol, req.mode, req.freq); err != nil {
		if domain.IsPhase(err, domain.PhaseSubmit) {
			return fmt.Errorf("%w: %s", ErrJobFailed, rec.Snapshot().Error)
		}
		return err
	}

	select {
	case <-ctx.Done():
		// Close waits for the polling goroutine, so the writer is ours again
		rec.Close()
		fmt.Fprintln(w, "Interrupted, analysis abandoned")
		return ctx.Err()

	case snap := <-finished:
		if snap.State == domain.StateError {
			return fmt.Errorf("%w: %s", ErrJobFailed, snap.Error)
		}
		return printResults(w, snap.Result, req.filter)
	}
}

// progressPrinter writes one line per visible change of the active job
type progressPrinter struct {
	out  io.Writer
	last string
}

func (p *progressPrinter) print(s poller.Snapshot) {
	if s.Job == nil {
		return
	}
	line := formatProgress(s)
	if line == "" || line == p.last {
		return
	}
	p.last = line
	fmt.Fprintln(p.out, line)
}

func formatProgress(s poller.Snapshot) string {
	job := s.Job
	label := job.Symbol + " " + job.Mode.DisplayName()
	if job.Frequency != "" {
		label += " (" + string(job.Frequency) + ")"
	}

	switch s.State {
	case domain.StateRunning:
		line := fmt.Sprintf("[%3d%%] %s %d/%d", s.Percent, label, s.Done, s.Total)
		if s.Current != "" {
			line += " " + s.Current
		}
		return line
	case domain.StateFetchingResult:
		return fmt.Sprintf("[%3d%%] %s fetching result", s.Percent, label)
	case domain.StateDone:
		return fmt.Sprintf("[100%%] %s done", label)
	case domain.StateError:
		return fmt.Sprintf("[fail] %s %s", label, s.Error)
	default:
		return ""
	}
}

func printResults(w io.Writer, res *domain.Result, filter results.Filter) error {
	entries, err := results.Build(res)
	if err != nil {
		return fmt.Errorf("failed to read analysis result: %w", err)
	}
	view := results.Apply(entries, filter)

	if len(view.Matches) == 0 {
		fmt.Fprintf(w, "No results match (%d total)\n", view.Total)
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ANALYSIS\tFREQUENCY\tHEALTH\tCRITERIA\tASSESSMENT")
	for _, m := range view.Matches {
		criteria := "-"
		if m.Criteria > 0 {
			criteria = fmt.Sprintf("%d/%d", m.CriteriaMet, m.Criteria)
		}
		assessment := m.Assessment
		if m.ErrorText != "" {
			assessment = m.ErrorText
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", m.Analysis, m.Frequency, m.Health, criteria, assessment)
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("failed to write results: %w", err)
	}

	fmt.Fprintf(w, "%d of %d results shown\n", len(view.Matches), view.Total)
	return nil
}
