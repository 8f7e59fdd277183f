package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/reduct56/cookiefest-hackaton/pkg/config"
	"github.com/reduct56/cookiefest-hackaton/pkg/logger"
)

var (
	configPath string
	cfg        *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "matcher",
	Short: "Match free-text requests against an inventory catalog",
	Long: `matcher ranks catalog items by TF-IDF cosine similarity to free-text
requests. Run a one-off batch with "match" or start the HTTP service with
"serve".`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		cfg = loaded
		logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	rootCmd.AddCommand(matchCmd)
	rootCmd.AddCommand(serveCmd)
}
