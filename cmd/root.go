package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zjrosen/milspecs/internal/app"
	"github.com/zjrosen/milspecs/internal/config"
	"github.com/zjrosen/milspecs/internal/log"
	"github.com/zjrosen/milspecs/internal/paths"
)

// localConfigPath is checked before the user config directory.
var localConfigPath = filepath.Join(paths.StateDirName, "config.yaml")

var (
	version    = "dev"
	cfgFile    string
	stateDir   string
	debugFlag  bool
	jsonOutput bool
	cfg        config.Config

	logCleanup func()
)

var rootCmd = &cobra.Command{
	Use:   "milspecs",
	Short: "Reference site and tools for military packaging specifications",
	Long: `Serve the mil-specs reference site and work with its spec plugins.

Without a subcommand the site is served, the same as "milspecs serve".`,
	Version:           version,
	SilenceUsage:      true,
	PersistentPreRunE: setupLogging,
	PersistentPostRun: func(*cobra.Command, []string) {
		if logCleanup != nil {
			logCleanup()
		}
	},
	RunE: runServe,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default: ./.milspecs/config.yaml, then ~/.config/milspecs/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&stateDir, "state-dir", "s", "",
		"project directory holding .milspecs state (default: current directory)")
	rootCmd.PersistentFlags().BoolVarP(&debugFlag, "debug", "d", false,
		"write debug logs (to log.path, or debug.log)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false,
		"print JSON instead of tables")

	addServeFlags(rootCmd)
}

// setDefaults registers every config key so environment variables can
// override keys the config file leaves out.
func setDefaults(v *viper.Viper) {
	d := config.Defaults()
	v.SetDefault("state_dir", d.StateDir)
	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("data.dir", d.Data.Dir)
	v.SetDefault("data.base_url", d.Data.BaseURL)
	v.SetDefault("data.watch", d.Data.Watch)
	v.SetDefault("data.watch_patterns", d.Data.WatchPatterns)
	v.SetDefault("data.debounce", d.Data.Debounce)
	v.SetDefault("cache.expiration", d.Cache.Expiration)
	v.SetDefault("cache.cleanup_interval", d.Cache.CleanupInterval)
	v.SetDefault("forms.enabled", d.Forms.Enabled)
	v.SetDefault("forms.db_path", d.Forms.DBPath)
	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("log.path", d.Log.Path)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.exporter", d.Tracing.Exporter)
	v.SetDefault("tracing.file_path", d.Tracing.FilePath)
	v.SetDefault("tracing.otlp_endpoint", d.Tracing.OTLPEndpoint)
	v.SetDefault("tracing.sample_rate", d.Tracing.SampleRate)
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)
	v.SetDefault("flags", d.Flags)
}

func initConfig() {
	setDefaults(viper.GetViper())
	viper.SetEnvPrefix("MILSPECS")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		// Config lookup order:
		// 1. .milspecs/config.yaml (current directory)
		// 2. ~/.config/milspecs/config.yaml (user config)
		if _, err := os.Stat(localConfigPath); err == nil {
			viper.SetConfigFile(localConfigPath)
		} else {
			if dir := paths.UserConfigDir(); dir != "" {
				viper.AddConfigPath(dir)
			}
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		// No config file found anywhere - create default at .milspecs/config.yaml
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			if writeErr := config.WriteDefaultConfig(localConfigPath); writeErr == nil {
				viper.SetConfigFile(localConfigPath)
				_ = viper.ReadInConfig()
			}
			// If write fails, just continue with defaults (no config file)
		}
	}

	_ = viper.Unmarshal(&cfg)
	cfg = resolveConfig(cfg, stateDir)
}

// resolveConfig fills the paths that default into the state directory.
// The data directory is only used when it exists.
func resolveConfig(c config.Config, stateFlag string) config.Config {
	dir := c.StateDir
	if stateFlag != "" {
		dir = stateFlag
	}
	c.StateDir = paths.ResolveStateDir(dir)

	if c.Data.Dir == "" {
		if info, err := os.Stat(paths.DataDir(c.StateDir)); err == nil && info.IsDir() {
			c.Data.Dir = paths.DataDir(c.StateDir)
		}
	}
	if c.Tracing.FilePath == "" {
		c.Tracing.FilePath = paths.TraceFile(c.StateDir)
	}
	if c.Flags == nil {
		c.Flags = config.Defaults().Flags
	}
	return c
}

// configPath returns the file flags:set writes to.
func configPath() string {
	if used := viper.ConfigFileUsed(); used != "" {
		return used
	}
	return localConfigPath
}

func setupLogging(cmd *cobra.Command, _ []string) error {
	debug := debugFlag || os.Getenv("MILSPECS_DEBUG") != ""
	level := log.ParseLevel(cfg.Log.Level)
	if debug {
		level = log.LevelDebug
	}

	logPath := cfg.Log.Path
	if debug && logPath == "" {
		logPath = "debug.log"
	}
	if logPath != "" {
		cleanup, err := log.Init(logPath)
		if err != nil {
			return fmt.Errorf("initializing logging: %w", err)
		}
		logCleanup = cleanup
		log.SetMinLevel(level)
		log.Info(log.CatConfig, "milspecs starting", "command", cmd.Name(), "debug", debug, "logPath", logPath)
		return nil
	}

	// The server streams logs at /api/logs, so it always gets a logger.
	if isServe(cmd) {
		log.InitWriter(os.Stderr, level)
	}
	return nil
}

func isServe(cmd *cobra.Command) bool {
	return cmd == rootCmd || cmd == serveCmd
}

// openApp builds the site for one-shot commands: no watcher, and the
// forms database only when asked for.
func openApp(ctx context.Context, withForms bool) (*app.App, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	c := cfg
	c.Data.Watch = false
	c.Tracing.Enabled = false
	c.Forms.Enabled = withForms && c.Forms.Enabled
	if withForms && !cfg.Forms.Enabled {
		return nil, errors.New("forms storage is disabled (forms.enabled: false)")
	}
	return app.New(ctx, c)
}

// readInput reads a file argument, or stdin for "-" or no argument.
func readInput(stdin io.Reader, args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(args[0]) //nolint:gosec // G304: user-supplied input file
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets the version string (called from main with ldflags)
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}
