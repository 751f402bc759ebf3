package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/coffersTech/behavelog/internal/analysis"
	"github.com/coffersTech/behavelog/internal/model"
	"github.com/coffersTech/behavelog/internal/segstore"
)

func (a *app) newAnalyzeCmd() *cobra.Command {
	var (
		qf      queryFlags
		session string
		follow  bool
	)
	cmd := &cobra.Command{
		Use:   "analyze [expression]",
		Short: "Report behavior flow, patterns and statistics over stored records",
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := qf.build(strings.Join(args, " "), time.Now())
			if err != nil {
				return err
			}
			r, err := a.reader()
			if err != nil {
				return err
			}
			var keep func(model.Record) bool
			if session != "" {
				keep = analysis.InSession(session)
			}
			engine := analysis.NewEngine()

			run := func(ctx context.Context) error {
				recs, err := r.Query(ctx, q)
				if err != nil {
					return err
				}
				report := engine.Analyze(recs, keep)
				if a.jsonOutput {
					return a.writeJSON(cmd.OutOrStdout(), report)
				}
				printReport(cmd.OutOrStdout(), report)
				return nil
			}
			if err := run(cmd.Context()); err != nil {
				return err
			}
			if !follow {
				return nil
			}
			return r.Watch(cmd.Context(), func(info segstore.Info) {
				a.logger.Debug("new segment", "segment", info.Name)
				if err := run(cmd.Context()); err != nil {
					a.logger.Warn("analysis failed", "error", err)
				}
			})
		},
	}
	qf.register(cmd, 0)
	f := cmd.Flags()
	f.StringVar(&session, "session", "", "only this session key (see sessions)")
	f.BoolVarP(&follow, "follow", "f", false, "re-run whenever a new segment is written")
	return cmd
}

func printReport(w io.Writer, r analysis.Report) {
	heading := lipgloss.NewRenderer(w).NewStyle().Bold(true)
	section := func(title string) { fmt.Fprintln(w, heading.Render(title)) }

	st := r.Stats
	section("Statistics")
	fmt.Fprintf(w, "  records      %s\n", humanize.Comma(int64(st.Total)))
	fmt.Fprintf(w, "  error rate   %.1f%%\n", st.ErrorRate*100)
	if st.TopCategory != nil {
		fmt.Fprintf(w, "  top category %s (%s)\n", st.TopCategory.Key, humanize.Comma(int64(st.TopCategory.Count)))
	}
	if st.TopScene != nil {
		fmt.Fprintf(w, "  top scene    %s (%s)\n", st.TopScene.Key, humanize.Comma(int64(st.TopScene.Count)))
	}
	if st.PeakHour != nil {
		fmt.Fprintf(w, "  peak hour    %02d:00 (%s)\n", st.PeakHour.Hour, humanize.Comma(int64(st.PeakHour.Count)))
	}
	for _, lvl := range model.Levels() {
		if n := st.ByLevel[lvl.String()]; n > 0 {
			fmt.Fprintf(w, "  %-12s %s\n", strings.ToLower(lvl.String()), humanize.Comma(int64(n)))
		}
	}

	b := r.Behavior
	section("Behavior")
	fmt.Fprintf(w, "  behaviors    %s over %.1f min (%.2f/min)\n",
		humanize.Comma(int64(b.TotalBehaviors)), b.SessionMinutes, b.PerMinute)
	if b.TotalBehaviors > 0 {
		fmt.Fprintf(w, "  dominant     %s\n", b.Dominant())
	}

	if len(r.Nodes) > 0 {
		section("Flow")
		for i, n := range r.Nodes {
			line := fmt.Sprintf("  %s %-11s %s", n.Timestamp.Format(time.TimeOnly), n.Type, n.Details)
			if i > 0 {
				tr := r.Transitions[i-1]
				line += fmt.Sprintf("  (+%.1fs", tr.DeltaSeconds)
				if tr.Kind != analysis.TransitionNormal {
					line += ", " + string(tr.Kind)
				}
				line += ")"
			}
			fmt.Fprintln(w, line)
		}
	}

	if len(r.Patterns) > 0 {
		section("Patterns")
		for _, p := range r.Patterns {
			seq := make([]string, len(p.Sequence))
			for i, n := range p.Sequence {
				seq[i] = n.Type.String()
			}
			fmt.Fprintf(w, "  %-16s x%d  %s  avg %.1fs\n", p.Name, p.Frequency, strings.Join(seq, " > "), p.AverageSpanSeconds)
		}
	}
}
