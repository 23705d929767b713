package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/exp/slog"

	"posclient/cmd/client/cmd/cliutil"
	"posclient/internal/app/client"
	"posclient/internal/app/client/config"
	"posclient/internal/utils/logger"
)

var (
	cfgFile string
	cfg     *config.Config
	log     *slog.Logger
	app     *client.App
)

var rootCmd = &cobra.Command{
	Use:   "posclient",
	Short: "posclient - offline-first point of sale sync client",
	Long: `posclient keeps a local copy of the ERP data a register needs, queues
customers and sessions created while offline and pushes them once the
backend is reachable again.`,
	PersistentPreRunE:  setupApp,
	PersistentPostRunE: closeApp,
	SilenceUsage:       true,
	SilenceErrors:      true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		cliutil.PrintError(os.Stderr, err)
		os.Exit(1)
	}
}

func setupApp(cmd *cobra.Command, _ []string) error {
	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log = logger.New(cfg.Env, cfg.LogLevel)

	app, err = client.New(cfg, log)
	if err != nil {
		return fmt.Errorf("start client: %w", err)
	}

	cmd.SetContext(cliutil.WithApp(cmd.Context(), app))
	return nil
}

func closeApp(_ *cobra.Command, _ []string) error {
	if app == nil {
		return nil
	}
	return app.Close()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML)")
	rootCmd.PersistentFlags().BoolVar(&cliutil.JSONOutput, "json", false, "print results as JSON")
}
