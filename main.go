// Command kartlobby runs a race lobby server, a headless client, or a
// launcher that supervises a server and serves a dashboard for it.
package main

import (
	"os"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"kartlobby/config"
	"kartlobby/logging"
)

var (
	configPath string
	logLevel   string

	rootCmd = &cobra.Command{
		Use:           "kartlobby",
		Short:         "Multiplayer kart race lobby.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	serverCmd = &cobra.Command{
		Use:   "server",
		Short: "Runs the lobby server.",
		RunE:  runServer,
	}

	clientCmd = &cobra.Command{
		Use:   "client",
		Short: "Joins a lobby as a headless client.",
		RunE:  runClient,
	}

	launchCmd = &cobra.Command{
		Use:   "launch",
		Short: "Starts a server and serves its dashboard.",
		RunE:  runLauncher,
	}
)

// loadConfig reads the configuration and sets up logging. The returned func
// closes the log file.
func loadConfig(cmd *cobra.Command) (config.Config, func() error, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, nil, errors.Wrap(err, "load config failed")
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Log.Level = logLevel
	}
	closeLog, err := logging.Setup(cfg.Log.Level, cfg.Log.File)
	if err != nil {
		return cfg, nil, errors.Wrap(err, "set up logging failed")
	}
	return cfg, closeLog, nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "trace, debug, info, warn or error")

	serverCmd.Flags().String("ready-file", "", "write this file once the server accepts clients")
	serverCmd.Flags().Bool("wan", false, "register with the master directory")

	clientCmd.Flags().String("url", "", "signaling url of the server")
	clientCmd.Flags().StringSlice("name", nil, "local player names")
	clientCmd.Flags().Bool("start", false, "ask the server to open selection once connected")
	clientCmd.Flags().Bool("stay", false, "stay for another race after the results")

	launchCmd.Flags().Int("port", 8080, "dashboard port")
	launchCmd.Flags().Duration("ready-timeout", defaultReadyTimeout, "how long to wait for the server to come up")

	rootCmd.AddCommand(serverCmd, clientCmd, launchCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.WithError(err).Error("kartlobby failed")
		os.Exit(1)
	}
}
