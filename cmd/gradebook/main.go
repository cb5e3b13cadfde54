// Package main - точка входа CLI Grade Registry.
//
// Команды:
//   - demo: прогоняет сценарий зачисления и выставления оценок и печатает
//     список студентов и отсортированные средние баллы
//   - migrate up|down|status: управляет схемой PostgreSQL-проекции
//   - version: печатает версию
//
// Реестр живёт только в памяти процесса. Redis и PostgreSQL, если включены,
// получают проекции средних баллов и никогда не читаются обратно.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alem-hub/gradebook/config"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

// rootOptions holds state shared by all subcommands.
type rootOptions struct {
	logLevel  string
	logFormat string

	cfg *config.Config
	log *slog.Logger

	// logOutput is where structured logs go. Command output goes to cmd.OutOrStdout().
	logOutput io.Writer
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{logOutput: os.Stderr}

	root := &cobra.Command{
		Use:           "gradebook",
		Short:         "In-memory grade registry",
		Long:          `Enroll students, record integer grades and compute per-student averages in memory.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if opts.logLevel != "" {
				cfg.Observability.LogLevel = opts.logLevel
			}
			if opts.logFormat != "" {
				cfg.Observability.LogFormat = opts.logFormat
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			opts.cfg = cfg
			opts.log = setupLogger(cfg, opts.logOutput)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "",
		"log level: debug, info, warn, error (overrides LOG_LEVEL)")
	root.PersistentFlags().StringVar(&opts.logFormat, "log-format", "",
		"log format: json or text (overrides LOG_FORMAT)")

	root.AddCommand(newDemoCmd(opts))
	root.AddCommand(newMigrateCmd(opts))
	root.AddCommand(newVersionCmd())

	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "gradebook %s\n", version)
			return err
		},
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// setupLogger настраивает структурированное логирование.
func setupLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: parseLevel(cfg.Observability.LogLevel),
	}

	if strings.EqualFold(cfg.Observability.LogFormat, "json") || cfg.IsProduction() {
		// JSON формат для production (лучше для агрегаторов логов)
		handler = slog.NewJSONHandler(w, opts)
	} else {
		// Текстовый формат для development (лучше читается)
		handler = slog.NewTextHandler(w, opts)
	}

	log := slog.New(handler).With("app", cfg.App.Name)
	slog.SetDefault(log)

	return log
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
