// -- cmd/root.go --
package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/xkilldash9x/parley-cli/internal/auth"
	"github.com/xkilldash9x/parley-cli/internal/config"
	"github.com/xkilldash9x/parley-cli/internal/observability"
	"github.com/xkilldash9x/parley-cli/internal/orchestrator"
)

// osExit is swapped out in tests.
var osExit = os.Exit

// conversationRunner is the part of the orchestrator the command drives.
type conversationRunner interface {
	Run(ctx context.Context, creds auth.Credentials, prompts orchestrator.PromptSource) (orchestrator.Report, error)
}

// runnerFactory builds the runner once configuration and logging are ready.
type runnerFactory func(cfg config.Interface, logger *zap.Logger, onReply func(orchestrator.ExchangeOutcome)) (conversationRunner, error)

func newOrchestrator(cfg config.Interface, logger *zap.Logger, onReply func(orchestrator.ExchangeOutcome)) (conversationRunner, error) {
	return orchestrator.New(cfg, logger, orchestrator.WithReplyHandler(onReply))
}

// dependencies are the process-level collaborators of the root command.
type dependencies struct {
	newRunner    runnerFactory
	getenv       func(string) string
	dotenvPath   string
	stdin        io.Reader
	readPassword func(in *bufio.Reader) (string, error)
	logSink      zapcore.WriteSyncer
}

func defaultDependencies() dependencies {
	return dependencies{
		newRunner:    newOrchestrator,
		getenv:       os.Getenv,
		dotenvPath:   ".env",
		stdin:        os.Stdin,
		readPassword: readTerminalPassword,
		logSink:      zapcore.Lock(os.Stderr),
	}
}

// Execute runs the root command with a signal-aware context.
func Execute(ctx context.Context) {
	if err := newRootCmd(defaultDependencies()).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "ERROR:", err)
		osExit(1)
	}
}

func newRootCmd(deps dependencies) *cobra.Command {
	var (
		cfgFile string
		cfg     *config.Config
		logger  *zap.Logger
	)
	v := viper.New()
	config.SetDefaults(v)

	cmd := &cobra.Command{
		Use:   "parley",
		Short: "Parley drives a chat web UI through a real browser and records the conversation.",
		Long: `Parley logs in to a chat web UI with the given credentials, sends an initial
prompt and a follow-up reply, prints each response and exports the transcript
to CSV, XLSX or JSON.`,
		Version:       Version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := initializeConfig(cmd, v, cfgFile); err != nil {
				return fmt.Errorf("failed to initialize configuration: %w", err)
			}
			loaded, err := config.NewConfigFromViper(v)
			if err != nil {
				return fmt.Errorf("failed to load or validate config: %w", err)
			}
			if err := applyFlagOverrides(cmd, loaded); err != nil {
				return err
			}
			cfg = loaded

			logger = observability.NewLogger(cfg.Logger(), deps.logSink)
			logger.Info("Starting parley", zap.String("version", Version))
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConversation(cmd, v, cfg, logger, deps)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			observability.Sync(logger)
		},
	}

	flags := cmd.Flags()
	cmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	flags.String("email", "", "login email (env PARLEY_EMAIL)")
	flags.String("password", "", "login password (env PARLEY_PASSWORD)")
	flags.String("prompt", "", "initial prompt to send")
	flags.String("reply", "", "follow-up prompt sent after the first response")
	flags.String("output", "output/conversation.csv", "base path of the exported transcript")
	flags.String("format", "", "transcript format: csv, xlsx or json (default from --output extension)")
	flags.Bool("headless", false, "run the browser without a window")
	flags.Bool("debug", false, "enable debug logging")
	flags.Int("wait-timeout", 120, "seconds to wait for each response")

	cmd.SetVersionTemplate(`{{printf "%s version %s\n" .Name .Version}}`)
	return cmd
}

// initializeConfig reads the config file and environment, then binds the
// flags that map directly onto configuration keys.
func initializeConfig(cmd *cobra.Command, v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("PARLEY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	bindings := map[string]string{
		"browser.headless": "headless",
		"export.output":    "output",
		"export.format":    "format",
		"email":            "email",
		"password":         "password",
		"prompt":           "prompt",
		"reply":            "reply",
	}
	for key, flag := range bindings {
		if err := v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return err
		}
	}
	return nil
}

// applyFlagOverrides handles flags whose values need translating before
// they reach the configuration.
func applyFlagOverrides(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if debug, _ := flags.GetBool("debug"); debug {
		cfg.SetLoggerLevel("debug")
	}
	if flags.Changed("wait-timeout") {
		secs, err := flags.GetInt("wait-timeout")
		if err != nil {
			return err
		}
		if secs <= 0 {
			return fmt.Errorf("--wait-timeout must be positive, got %d", secs)
		}
		cfg.SetExchangeResponseTimeout(time.Duration(secs) * time.Second)
	}
	return nil
}
