package commands

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/layerkit/layerkit/pkg/config"
	"github.com/layerkit/layerkit/pkg/telemetry"
)

func newWatchCommand() *cobra.Command {
	var (
		metricsAddr string
		delay       time.Duration
		policyPaths []string
	)

	cmd := &cobra.Command{
		Use:   "watch <file>",
		Short: "Re-validate a layer configuration file whenever it changes",
		Long: `Watch a layer configuration file and re-validate it on every change.

Invalid revisions are reported and skipped. Every valid revision is also
checked against the Rego policies. With --metrics-addr the reload counters
are served in Prometheus format.`,
		Example: `  layerctl watch layers.yaml
  layerctl watch --metrics-addr :9090 layers.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			ctx := cmd.Context()

			tcfg := telemetry.DisabledConfig()
			if metricsAddr != "" {
				tcfg.Metrics.Enabled = true
				tcfg.Metrics.ListenAddress = metricsAddr
				tcfg.Metrics.Path = "/metrics"
				tcfg.Metrics.Namespace = "layerctl"
			}
			metrics, err := telemetry.NewMetrics(tcfg.Metrics)
			if err != nil {
				return err
			}
			srv, err := metrics.StartMetricsServer()
			if err != nil {
				return err
			}
			if srv != nil {
				log.Info().Str("addr", metricsAddr).Msg("Serving metrics")
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					_ = srv.Shutdown(shutdownCtx)
				}()
			}

			report := func(f *config.File) {
				metrics.RecordConfigReload(telemetry.OutcomeSuccess)
				printSummary(cmd.OutOrStdout(), path, f)
				res, err := lintConfig(cmd, path, f, policyPaths)
				if err != nil {
					log.Warn().Err(err).Msg("Policy check failed")
					return
				}
				printPolicyResult(cmd.OutOrStdout(), res)
			}

			// Report the starting revision before watching.
			if f, err := config.Load(path); err != nil {
				metrics.RecordConfigReload(telemetry.OutcomeFailure)
				log.Warn().Err(err).Msg("Initial config is invalid")
			} else {
				report(f)
			}

			w := config.NewWatcher(path, log.Logger)
			if delay > 0 {
				w.SetDelay(delay)
			}
			err = w.Watch(ctx, func(f *config.File) error {
				report(f)
				return nil
			})
			if err != nil {
				return err
			}
			defer func() { _ = w.Stop() }()

			<-ctx.Done()
			log.Info().Msg("Stopped watching")
			return nil
		},
	}

	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve /metrics on this address")
	cmd.Flags().DurationVar(&delay, "delay", config.DefaultReloadDelay, "debounce delay between change and reload")
	cmd.Flags().StringSliceVar(&policyPaths, "policy", nil, "Rego policy file or directory (repeatable)")

	return cmd
}
