package catalogd

import (
	"fmt"
	"os"

	"github.com/edgeflare/catalogd/pkg/config"
	"github.com/edgeflare/catalogd/pkg/util"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	// Register built-in connectors
	_ "github.com/edgeflare/catalogd/pkg/pipeline/peer/debug"
	_ "github.com/edgeflare/catalogd/pkg/pipeline/peer/kafka"
	_ "github.com/edgeflare/catalogd/pkg/pipeline/peer/mqtt"
	_ "github.com/edgeflare/catalogd/pkg/pipeline/peer/nats"
)

var (
	cfgFile string
	cfg     *config.Config
	logger  = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "catalogd",
	Short: "catalogd keeps a wine catalog in sync with CSV batches",
	Long: `catalogd consumes CSV batches of wine records from a topic and reconciles
them into a store keyed by code, serves the catalog over REST and forwards
local files to a topic`,
	Run: func(cmd *cobra.Command, args []string) {
		versionFlag, _ := cmd.Flags().GetBool("version")
		if versionFlag {
			fmt.Println(config.Version)
			return
		}

		// If no subcommand is provided, print help
		cmd.Help()
	},
}

func Main() {
	defer func() { _ = logger.Sync() }()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", util.GetEnvOrDefault("CATALOGD_CONFIG", ""), "config file (default is $HOME/.config/catalogd.yaml)")
	pf.StringP("log-level", "L", "info", "log at this level (debug, info, warn, error)")
	rootCmd.Flags().BoolP("version", "v", false, "Print the version number")
	pf.Bool("metrics.enabled", true, "serve prometheus metrics")
	pf.String("metrics.addr", "", "metrics listen address (default :9100)")
	viper.BindPFlag("logLevel", pf.Lookup("log-level"))
	viper.BindPFlag("metrics.enabled", pf.Lookup("metrics.enabled"))
	viper.BindPFlag("metrics.addr", pf.Lookup("metrics.addr"))

	rootCmd.AddCommand(consumeCmd, serveCmd, forwardCmd)
}

func initConfig() {
	var err error
	cfg, err = config.Load(viper.GetViper(), cfgFile)
	if err != nil {
		fmt.Println("Error loading config:", err)
		os.Exit(1)
	}

	logger, err = util.NewLogger(cfg.LogLevel)
	if err != nil {
		fmt.Println("Error creating logger:", err)
		os.Exit(1)
	}
}
