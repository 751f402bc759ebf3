package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/coffersTech/behavelog/internal/analysis"
	"github.com/coffersTech/behavelog/internal/pipeline"
	"github.com/coffersTech/behavelog/internal/segstore"
	"github.com/coffersTech/behavelog/internal/server"
)

func (a *app) newServeCmd() *cobra.Command {
	var (
		addr          string
		cleanInterval time.Duration
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the read-only query API and expire old segments",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				addr = a.cfg.Server.Addr
			}
			ctx := cmd.Context()

			// The server only reads; the WAL belongs to whichever process
			// is writing the directory.
			opts := pipeline.StoreOptions(a.cfg, a.logger)
			opts.WAL = false
			store, err := segstore.Open(opts)
			if err != nil {
				return err
			}
			defer store.Close()
			store.Sweep()
			cleanCtx, stopCleaner := context.WithCancel(ctx)
			defer stopCleaner()
			go store.RunCleaner(cleanCtx, cleanInterval)

			srv := server.NewQueryServer(store.Reader, analysis.NewEngine(), a.logger)
			errc := make(chan error, 1)
			go func() {
				a.logger.Info("listening", "addr", addr, "dir", store.Dir())
				errc <- srv.Start(addr)
			}()

			select {
			case err := <-errc:
				return err
			case <-ctx.Done():
			}
			a.logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				a.logger.Warn("server shutdown error", "error", err)
			}
			return <-errc
		},
	}
	f := cmd.Flags()
	f.StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	f.DurationVar(&cleanInterval, "clean-interval", time.Hour, "how often expired segments are swept")
	return cmd
}
