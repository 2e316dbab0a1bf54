package commands

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/opd-ai/onionrelay/config"
	"github.com/opd-ai/onionrelay/instrument"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	configFile   string
	logLevel     string
	identityFile string
	passphrase   string

	cfg *config.Config
)

// Execute runs the root command.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "onionctl",
		Short:         "Send messages through the storage node onion network",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if configFile != "" {
				cfg, err = config.LoadFile(configFile)
			} else {
				cfg = config.Default()
			}
			if err != nil {
				return err
			}
			if logLevel != "" {
				cfg.Logging.Level = logLevel
			}
			if err := cfg.Logging.Apply(); err != nil {
				return err
			}

			if identityFile == "" {
				dir, err := os.UserHomeDir()
				if err != nil {
					return err
				}
				identityFile = filepath.Join(dir, ".onionrelay", "identity")
			}

			if cfg.Metrics.Address != "" {
				serveMetrics(cfg.Metrics.Address)
			}
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&configFile, "config", "c", "", "TOML configuration file")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&identityFile, "identity", "", "identity file (default ~/.onionrelay/identity)")
	root.PersistentFlags().StringVarP(&passphrase, "passphrase", "p", "", "passphrase protecting the identity file")

	root.AddCommand(keygenCmd(), sealCmd(), pathsCmd(), sendCmd())
	return root
}

func serveMetrics(address string) {
	instrument.Init()
	mux := http.NewServeMux()
	mux.Handle("/metrics", instrument.Handler())
	srv := &http.Server{Addr: address, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithFields(logrus.Fields{
				"function": "serveMetrics",
				"address":  address,
				"error":    err.Error(),
			}).Error("Metrics endpoint stopped")
		}
	}()

	logrus.WithFields(logrus.Fields{
		"function": "serveMetrics",
		"address":  address,
	}).Info("Serving metrics")
}
