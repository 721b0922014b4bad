package cmd

import (
	"net/http"
	"os"

	"github.com/hwenwur/oh-my-ddl/cmd/ohmyddl/internal/config"
	"github.com/hwenwur/oh-my-ddl/cmd/ohmyddl/internal/killswitch"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	configFile string
	relogin    bool
	force      bool
)

// flagKeys binds command line flags to configuration keys. Flags win over the environment and
// the config file.
var flagKeys = map[string]string{
	"session":       "session_file",
	"verbose":       "debug",
	"cache-dsn":     "cache_dsn",
	"addr":          "server_addr",
	"data-dir":      "data_dir",
	"otlp-endpoint": "otlp_endpoint",
}

// Version is set at build time with -ldflags "-X github.com/hwenwur/oh-my-ddl/cmd/ohmyddl/cmd.Version=...".
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:     "ohmyddl",
	Version: Version,
	Short:   "List unfinished assignments from the campus learning portal",
	Long: `ohmyddl logs in to the campus SSO portal, collects the assignments of your
current courses and prints the ones still to do, soonest deadline first.

The session, including cookies and recently fetched results, is kept in a local
file so later runs skip the login and reuse results for a few minutes.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		v := config.New()
		if err := bindFlags(v, cmd); err != nil {
			return err
		}
		cfg, err := config.Load(v, configFile)
		if err != nil {
			return err
		}

		app := NewApp(cfg)
		app.notice = killswitch.Check(cmd.Context(), &http.Client{Timeout: killswitch.DefaultTimeout}, cfg.KillSwitchURL)
		cmd.SetContext(InjectApp(cmd.Context(), app))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		app, ok := FromContext(cmd.Context())
		if !ok {
			return
		}
		if n, ok := killswitch.Poll(app.notice); ok && n.Disabled {
			pterm.Warning.Printf("This tool has been disabled upstream: %s\n", n.Message)
		}
		_ = app.Close()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDeadlines(cmd, MustFromContext(cmd.Context()))
	},
}

func bindFlags(v *viper.Viper, cmd *cobra.Command) error {
	for name, key := range flagKeys {
		if f := cmd.Flags().Lookup(name); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return err
			}
		}
	}
	return nil
}

// Execute runs the root command and exits with a code describing the failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		reportError(os.Stderr, err, verbose())
		os.Exit(exitCode(err))
	}
}

func verbose() bool {
	v, _ := rootCmd.PersistentFlags().GetBool("verbose")
	return v
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (YAML)")
	rootCmd.PersistentFlags().String("session", ".user_data", "Session file (env: OHMYDDL_SESSION_FILE)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Print debug information (env: OHMYDDL_DEBUG)")
	rootCmd.PersistentFlags().String("cache-dsn", "", "Shared result cache: sqlite path or postgres URL (env: OHMYDDL_CACHE_DSN)")
	rootCmd.PersistentFlags().BoolVarP(&relogin, "relogin", "c", false, "Ignore the saved session and ask for credentials")
	rootCmd.PersistentFlags().BoolVarP(&force, "force", "f", false, "Refresh from the portal even if cached results are fresh")

	rootCmd.AddCommand(termsCmd)
	rootCmd.AddCommand(coursesCmd)
	rootCmd.AddCommand(worksCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(cacheCmd)
}
