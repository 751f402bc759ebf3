package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/valyala/fastjson"

	"github.com/coffersTech/behavelog/internal/model"
	"github.com/coffersTech/behavelog/internal/pipeline"
)

const maxLineSize = 1 << 20

func (a *app) newPipeCmd() *cobra.Command {
	var (
		levelName string
		category  string
		source    string
	)
	cmd := &cobra.Command{
		Use:   "pipe",
		Short: "Route records read from stdin through the configured sinks",
		Long: `pipe reads one record per line from stdin. Lines holding a JSON object
are decoded field by field (message or msg, level, category, scene, source,
deviceId, appVersion, stackTrace, timestamp); any other line is logged as
plain text at the default level.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			def, err := model.ParseLevel(levelName)
			if err != nil {
				return err
			}
			p, err := pipeline.New(a.cfg, pipeline.Options{
				Env: pipeline.Env{
					Logger: a.logger,
					Stdout: cmd.OutOrStdout(),
					Stderr: cmd.ErrOrStderr(),
				},
				Source: source,
			})
			if err != nil {
				return err
			}

			var routed, filtered int
			var parser fastjson.Parser
			sc := bufio.NewScanner(cmd.InOrStdin())
			sc.Buffer(make([]byte, 64*1024), maxLineSize)
			for sc.Scan() {
				rec, ok := parseLine(&parser, sc.Text(), def, category)
				if !ok {
					continue
				}
				if len(p.LogRecord(rec)) == 0 {
					filtered++
				} else {
					routed++
				}
			}
			scanErr := sc.Err()

			ctx, cancel := context.WithTimeout(context.WithoutCancel(cmd.Context()), 30*time.Second)
			defer cancel()
			if err := p.Close(ctx); err != nil {
				return fmt.Errorf("close pipeline: %w", err)
			}
			a.logger.Info("pipe finished",
				"routed", humanize.Comma(int64(routed)),
				"filtered", humanize.Comma(int64(filtered)))
			if scanErr != nil {
				return fmt.Errorf("read stdin: %w", scanErr)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&levelName, "level", "info", "level for lines that do not carry one")
	f.StringVar(&category, "category", model.DefaultCategory, "category for lines that do not carry one")
	f.StringVar(&source, "source", "pipe", "source stamped on every record")
	return cmd
}

// parseLine turns one input line into a record. Blank lines are skipped.
func parseLine(p *fastjson.Parser, line string, def model.Level, category string) (model.Record, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return model.Record{}, false
	}
	if strings.HasPrefix(line, "{") {
		if v, err := p.Parse(line); err == nil && v.Type() == fastjson.TypeObject {
			return recordFromJSON(v, line, def, category), true
		}
	}
	return model.Record{Message: line, Level: def, Category: category}, true
}

func recordFromJSON(v *fastjson.Value, line string, def model.Level, category string) model.Record {
	str := func(keys ...string) string {
		for _, k := range keys {
			if b := v.GetStringBytes(k); len(b) > 0 {
				return string(b)
			}
		}
		return ""
	}

	rec := model.Record{
		ID:         str("id"),
		Message:    str("message", "msg"),
		Level:      def,
		Category:   str("category"),
		Scene:      str("scene"),
		Source:     str("source"),
		DeviceID:   str("deviceId", "device_id"),
		AppVersion: str("appVersion", "app_version"),
		StackTrace: str("stackTrace", "stack_trace"),
	}
	if rec.Message == "" {
		rec.Message = line
	}
	if lvl := str("level"); lvl != "" {
		rec.Level = model.LenientLevel(lvl)
	}
	if rec.Category == "" {
		rec.Category = category
	}
	if ts := str("timestamp", "time"); ts != "" {
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			rec.Timestamp = t.Local()
		}
	}
	return rec
}
