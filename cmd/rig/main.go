package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"syscall"

	"github.com/go-rig/rig/internal/history"
	"github.com/go-rig/rig/internal/log"
	"github.com/go-rig/rig/internal/model"
	"github.com/go-rig/rig/internal/scenario"
	"gopkg.in/yaml.v3"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	userConfigPath string // /default/config/path/rig on given OS
	configPath     string // actual config file used (if loaded)
	config         model.Config

	flagConfigFilePath string // value of --config flag
	flagVerbose        bool   // value of --verbose flag
)

func init() {
	d, err := os.UserConfigDir()
	if err != nil {
		panic(err)
	}
	userConfigPath = filepath.Join(d, "rig")
}

func main() {
	// root flags
	rootCmd.PersistentFlags().StringVar(&flagConfigFilePath, "config", "", "Config file to load - default is rig.yaml in current directory or in "+userConfigPath)
	rootCmd.PersistentFlags().BoolVar(&flagVerbose, "verbose", false, "verbose logging")

	// never print messages
	rootCmd.SilenceErrors = true

	// parse or create a config, setup logging
	rootCmd.PersistentPreRunE = initRig

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(versionCmd)

	// a signal is the only way out of a scheduled run
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		slog.Error("rig failed", "err", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "rig",
	Short:        "Tool orchestrating service lifecycles on a cluster of nodes",
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "run command reads the configuration and executes the scenario",
	RunE:  doRun,
}

var historyCmd = &cobra.Command{
	Use:   "history [run-id]",
	Short: "history lists recorded runs, or one run with its snapshots",
	Args:  cobra.MaximumNArgs(1),
	RunE:  doHistory,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "version provide version of a rig",
	Run: func(cmd *cobra.Command, args []string) {
		info, ok := debug.ReadBuildInfo()
		if !ok {
			fmt.Println("rig: version info not available")
		}

		if configPath != "" {
			fmt.Printf("config: %s\n", configPath)
		}
		fmt.Printf("rig:    %s\n", info.Main.Version)
		fmt.Printf("go:     %s\n", info.GoVersion)
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				fmt.Printf("commit: %s\n", s.Value)
			case "vcs.time":
				fmt.Printf("date:   %s\n", s.Value)
			case "vcs.modified":
				fmt.Printf("dirty:  %s\n", s.Value)
			}
		}
		fmt.Println()
	},
}

func doRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	attrs := slog.Group("rig",
		slog.String("cmd", "run"),
		slog.Int("pid", os.Getpid()),
	)
	ctx = log.ContextAttrs(ctx, attrs)

	runner, err := scenario.NewRunner(ctx, config)
	if err != nil {
		return err
	}
	defer func() {
		if err := runner.Close(); err != nil {
			slog.ErrorContext(ctx, "closing the runner failed", "error", err)
		}
	}()

	return runner.Do(ctx)
}

func doHistory(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if config.History == nil {
		return fmt.Errorf("history is not configured")
	}

	db, err := history.InitDB(ctx, config.History.DB)
	if err != nil {
		return err
	}
	defer func() {
		_ = db.Close()
	}()

	if len(args) == 1 {
		return printRun(ctx, db, args[0])
	}

	runs, err := history.Runs(ctx, db)
	if err != nil {
		return err
	}
	for _, run := range runs {
		fmt.Println(run)
	}
	return nil
}

func printRun(ctx context.Context, db *sql.DB, uuid string) error {
	run, err := history.Get(ctx, db, uuid)
	if err != nil {
		return err
	}
	fmt.Println(run)

	snaps, err := history.Snapshots(ctx, db, uuid)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	for _, snap := range snaps {
		if err := enc.Encode(snap); err != nil {
			return err
		}
	}
	return nil
}

func initRig(cmd *cobra.Command, _ []string) error {
	if envConfig, ok := os.LookupEnv("RIGCONFIG"); ok {
		configPath = envConfig
	} else if flagConfigFilePath != "" {
		configPath = flagConfigFilePath
	} else {
		for _, d := range []string{userConfigPath, "."} {
			path := filepath.Join(d, "rig.yaml")
			if exists(path) {
				configPath = path
				break
			}
		}
	}

	// store default configuration
	if configPath == "" {
		config = model.DefaultConfig(context.Background())
		configPath = filepath.Join(userConfigPath, "rig.yaml")
		err := os.MkdirAll(filepath.Dir(configPath), 0755)
		if err != nil {
			return fmt.Errorf("creating directory %s: %w", filepath.Dir(configPath), err)
		}

		f, err := os.Create(configPath)
		if err != nil {
			return fmt.Errorf("creating file %s: %w", configPath, err)
		}
		defer func() {
			_ = f.Close()
		}()
		enc := yaml.NewEncoder(f)
		err = enc.Encode(config)
		if err != nil {
			return fmt.Errorf("storing configuration: %w", err)
		}
	} else {
		var err error
		f, err := os.Open(configPath)
		if err != nil {
			return fmt.Errorf("opening config file: %w", err)
		}
		defer func() {
			_ = f.Close()
		}()
		config, err = model.LoadConfig(f)
		if err != nil {
			for _, d := range model.CueErrDetails(err) {
				slog.Error("invalid configuration", d.Attr("detail"))
			}
			return fmt.Errorf("parsing config: %w", err)
		}
	}

	// the scenario document lives in the same file and is owned by the
	// scenario package, see scenario.ParseConfig
	viper.SetConfigFile(configPath)
	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("reading config %s: %w", configPath, err)
	}

	// --verbose has a precedence over config file
	verbose := config.Service.Verbose != nil && *config.Service.Verbose
	if flagVerbose {
		verbose = true
	}

	slog.SetDefault(log.New(logWriter(config.Service), verbose))

	slog.Debug("rig run", "configPath", configPath)
	slog.Debug("rig run", "config", config)
	return nil
}

func logWriter(cfg model.Service) io.Writer {
	if cfg.Log == nil {
		return os.Stderr
	}
	switch *cfg.Log {
	case model.LogStdout:
		return os.Stdout
	case model.LogDiscard:
		return io.Discard
	default:
		return os.Stderr
	}
}

func exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
