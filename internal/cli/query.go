package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/coffersTech/behavelog/internal/model"
	"github.com/coffersTech/behavelog/internal/segstore"
)

// queryFlags are shared by query and analyze.
type queryFlags struct {
	start    string
	end      string
	category string
	level    string
	limit    int
}

func (qf *queryFlags) register(cmd *cobra.Command, defLimit int) {
	f := cmd.Flags()
	f.StringVar(&qf.start, "start", "", "lower time bound: RFC 3339 or a duration ago such as 2h")
	f.StringVar(&qf.end, "end", "", "upper time bound: RFC 3339 or a duration ago")
	f.StringVar(&qf.category, "category", "", "only this category")
	f.StringVar(&qf.level, "level", "", "minimum level")
	f.IntVar(&qf.limit, "limit", defLimit, "maximum records, 0 for all")
}

func (qf *queryFlags) build(expr string, now time.Time) (segstore.Query, error) {
	q := segstore.Query{Category: qf.category, Expr: expr, Limit: qf.limit}
	var err error
	if q.Start, err = parseBound(qf.start, now); err != nil {
		return q, fmt.Errorf("--start: %w", err)
	}
	if q.End, err = parseBound(qf.end, now); err != nil {
		return q, fmt.Errorf("--end: %w", err)
	}
	if qf.level != "" {
		if q.MinLevel, err = model.ParseLevel(qf.level); err != nil {
			return q, fmt.Errorf("--level: %w", err)
		}
	}
	return q, nil
}

// parseBound accepts an RFC 3339 time or a duration before now.
func parseBound(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if d, err := time.ParseDuration(s); err == nil {
		return now.Add(-d), nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

func (a *app) newQueryCmd() *cobra.Command {
	var qf queryFlags
	cmd := &cobra.Command{
		Use:   "query [expression]",
		Short: "Search stored records, newest first",
		Long: `query scans the segment store. The optional expression filters records,
for example:

  behavelog query 'level>=warning AND (category:Net OR scene:Arena)'
  behavelog query --start 1h buy`,
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := qf.build(strings.Join(args, " "), time.Now())
			if err != nil {
				return err
			}
			r, err := a.reader()
			if err != nil {
				return err
			}
			recs, err := r.Query(cmd.Context(), q)
			if err != nil {
				return err
			}
			if a.jsonOutput {
				if recs == nil {
					recs = []model.Record{}
				}
				return a.writeJSON(cmd.OutOrStdout(), recs)
			}
			printRecords(cmd.OutOrStdout(), recs)
			return nil
		},
	}
	qf.register(cmd, 100)
	return cmd
}

func printRecords(w io.Writer, recs []model.Record) {
	for _, rec := range recs {
		fmt.Fprintln(w, rec.String())
		if rec.StackTrace != "" {
			fmt.Fprintf(w, "Stack: %s\n", rec.StackTrace)
		}
	}
}
