package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/terminally-online/snowreport/internal/config"
	"github.com/terminally-online/snowreport/internal/logging"
)

var (
	cfgFile    string
	outputFile string
	cfg        *config.Config
	flags      config.Flags
	logger     *zap.Logger
	version    = "dev"
)

var rootCmd = &cobra.Command{
	Use:   "snowreport",
	Short: "Report on warehouse roles, grants and databases",
	Long: `Snowreport reads the catalog of a Snowflake account (or a PostgreSQL
cluster) and prints two reports:

  roles      the role hierarchy, with users and database/schema grants
  databases  every database with its schemas, sequences, streams,
             procedures, functions, tasks, stages and pipes

It only reads metadata. Nothing in the warehouse is changed.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "version" {
			return nil
		}

		if err := config.LoadEnvFiles(".env"); err != nil {
			return err
		}

		var err error
		if _, statErr := os.Stat(cfgFile); os.IsNotExist(statErr) {
			if cmd.Flags().Changed("config") {
				return fmt.Errorf("config file %s not found", cfgFile)
			}
			cfg = &config.Config{}
		} else {
			cfg, err = config.LoadFile(cfgFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
		}

		logger, err = logging.New(cfg.GetLogLevel(&flags), cfg.GetLogFormat(&flags))
		if err != nil {
			return err
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "snowreport %s\n", version)
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&cfgFile, "config", "c", "snowreport.yaml", "config file path (.yaml or .properties)")
	pf.StringVar(&flags.Driver, "driver", "", "catalog driver: snowflake or postgres")
	pf.StringVar(&flags.URL, "url", "", "connection DSN or URL")
	pf.StringVar(&flags.Account, "account", "", "snowflake account identifier")
	pf.StringVar(&flags.User, "user", "", "user name")
	pf.StringVar(&flags.Password, "password", "", "password")
	pf.StringVar(&flags.Warehouse, "warehouse", "", "snowflake warehouse")
	pf.StringVar(&flags.Role, "role", "", "snowflake role to connect as")
	pf.StringVar(&flags.Format, "format", "", "report format: json or yaml")
	pf.StringVar(&flags.LogLevel, "log-level", "", "log level: debug, info, warn or error")
	pf.StringVar(&flags.LogFormat, "log-format", "", "log format: console or json")
	pf.StringVarP(&outputFile, "output", "o", "", "output file (default: stdout)")

	rootCmd.AddCommand(rolesCmd)
	rootCmd.AddCommand(databasesCmd)
	rootCmd.AddCommand(shellCmd)
	rootCmd.AddCommand(versionCmd)
}

func SetVersion(v string) {
	version = v
}

func Execute() error {
	return rootCmd.Execute()
}

func Root() *cobra.Command {
	return rootCmd
}
