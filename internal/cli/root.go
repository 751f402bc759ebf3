// Package cli wires the pipeline, the segment store and the analysis engine
// into the behavelog command.
package cli

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/coffersTech/behavelog/internal/config"
	"github.com/coffersTech/behavelog/internal/logging"
	"github.com/coffersTech/behavelog/internal/segstore"
)

// app holds what the persistent flags resolve to.
type app struct {
	configPath string
	logLevel   string
	logFormat  string
	jsonOutput bool

	cfg    config.Config
	logger *slog.Logger
}

// NewRoot builds the behavelog command tree.
func NewRoot() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "behavelog",
		Short: "Structured event logging and behavior analysis",
		Long: `behavelog routes structured log records to console, rotating file,
network and segment store sinks, and analyzes stored records for player
behavior flows, patterns and statistics.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&a.configPath, "config", "c", "", "config file (.yaml, .toml or .json)")
	pf.StringVar(&a.logLevel, "log-level", "", "diagnostic log level (overrides log.level)")
	pf.StringVar(&a.logFormat, "log-format", "", "diagnostic log format: text or json")
	pf.BoolVar(&a.jsonOutput, "json", false, "output in JSON format")

	root.AddCommand(
		a.newPipeCmd(),
		a.newQueryCmd(),
		a.newSessionsCmd(),
		a.newSegmentsCmd(),
		a.newAnalyzeCmd(),
		a.newServeCmd(),
	)
	return root
}

// Execute runs the command tree with ctx.
func Execute(ctx context.Context) error {
	return NewRoot().ExecuteContext(ctx)
}

func (a *app) load(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg

	level, format := cfg.Log.Level, cfg.Log.Format
	if a.logLevel != "" {
		level = a.logLevel
	}
	if a.logFormat != "" {
		format = a.logFormat
	}
	a.logger = logging.New(logging.Options{
		Level:  logging.ParseLevel(level),
		Format: logging.ParseFormat(format),
		Output: cmd.ErrOrStderr(),
	})
	return nil
}

func (a *app) reader() (*segstore.Reader, error) {
	return segstore.NewReader(a.cfg.Store.Dir, a.logger)
}

func (a *app) writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
