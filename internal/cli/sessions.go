package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/coffersTech/behavelog/internal/analysis"
	"github.com/coffersTech/behavelog/internal/segstore"
)

func (a *app) newSessionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List stored sessions (device and day)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := a.reader()
			if err != nil {
				return err
			}
			recs, err := r.Query(cmd.Context(), segstore.Query{})
			if err != nil {
				return err
			}
			keys := analysis.Sessions(recs)
			if a.jsonOutput {
				if keys == nil {
					keys = []string{}
				}
				return a.writeJSON(cmd.OutOrStdout(), keys)
			}

			counts := make(map[string]int, len(keys))
			for _, rec := range recs {
				counts[analysis.SessionKey(rec)]++
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SESSION\tRECORDS")
			for _, k := range keys {
				fmt.Fprintf(tw, "%s\t%s\n", k, humanize.Comma(int64(counts[k])))
			}
			return tw.Flush()
		},
	}
}

func (a *app) newSegmentsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "segments",
		Short: "List segment files, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := a.reader()
			if err != nil {
				return err
			}
			infos, err := r.Segments()
			if err != nil {
				return err
			}
			if a.jsonOutput {
				if infos == nil {
					infos = []segstore.Info{}
				}
				return a.writeJSON(cmd.OutOrStdout(), infos)
			}

			var total int64
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SEGMENT\tCREATED\tSIZE")
			for _, info := range infos {
				total += info.Size
				fmt.Fprintf(tw, "%s\t%s\t%s\n", info.Name,
					info.Created.Format(time.DateTime), humanize.Bytes(uint64(info.Size)))
			}
			fmt.Fprintf(tw, "%d segments\t\t%s\n", len(infos), humanize.Bytes(uint64(total)))
			return tw.Flush()
		},
	}
}
