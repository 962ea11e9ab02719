package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/simp-lee/epubtrans/internal/config"
	"github.com/simp-lee/epubtrans/internal/logging"
)

var (
	cfgFile  string
	logLevel string

	cfg *config.Config
	log *logrus.Logger
)

var rootCmd = &cobra.Command{
	Use:   "epubtrans",
	Short: "Translate ePub books segment by segment",
	Long: `epubtrans translates an ePub book with a language model while keeping
the original markup, styles and images.

The pipeline has three steps that can be run and resumed independently:
  extract    split the book's text into bounded segments
  translate  send pending segments to an OpenAI-compatible endpoint
  build      write a new ePub with the translated text`,
	Version:       buildVersion(),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return err
		}
		level := cfg.Log.Level
		if logLevel != "" {
			level = logLevel
		}
		log, err = logging.New(level, cfg.Log.Format)
		return err
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./epubtrans.yaml or ~/.epubtrans/epubtrans.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&logLevel, "log-level", "", "log level override (debug, info, warn, error)",
	)

	rootCmd.AddCommand(extractCmd, translateCmd, buildCmd, infoCmd, configCmd, versionCmd)
}
