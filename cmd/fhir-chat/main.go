// Package main provides the fhir-chat command: the HTTP chat service, a stdio
// MCP server and audit topic tooling.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/drfirst/fhir-chat/internal/config"
)

const serviceName = "fhir-chat"

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	var envFile string

	rootCmd := &cobra.Command{
		Use:           serviceName,
		Short:         "Chat with a FHIR server through Azure OpenAI tool calls",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file read before the environment")

	rootCmd.AddCommand(serveCmd(&envFile))
	rootCmd.AddCommand(mcpCmd(&envFile))
	rootCmd.AddCommand(topicsCmd(&envFile))
	rootCmd.AddCommand(auditCmd(&envFile))
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup loads the configuration and builds the logger every command shares.
func setup(envFile string) (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, nil, err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// newLogger writes to stderr so the stdio MCP transport keeps stdout.
func newLogger(cfg *config.Config) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if cfg.IsDev() {
		zc = zap.NewDevelopmentConfig()
	}

	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", cfg.LogLevel, err)
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.OutputPaths = []string{"stderr"}

	logger, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger.With(zap.String("service", serviceName), zap.String("env", cfg.Env)), nil
}
