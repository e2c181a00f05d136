package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/drfirst/fhir-chat/internal/audit"
	"github.com/drfirst/fhir-chat/internal/gateway"
	"github.com/drfirst/fhir-chat/internal/infrastructure/redpanda"
	"github.com/drfirst/fhir-chat/internal/mcpserver"
	"github.com/drfirst/fhir-chat/internal/search"
	"github.com/drfirst/fhir-chat/internal/tools"
)

func mcpCmd(envFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the FHIR search tools over MCP on stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(*envFile)
			if err != nil {
				return err
			}
			defer logger.Sync()

			if err := cfg.ValidateMCP(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			fhirClient, err := gateway.NewClient(gateway.Config{
				BaseURL: cfg.FHIRBaseURL,
				Timeout: cfg.FHIRTimeout,
			}, nil, nil, logger)
			if err != nil {
				return fmt.Errorf("fhir client: %w", err)
			}

			registry := tools.Default()
			srv := mcpserver.New(mcpserver.Config{
				Name:        serviceName,
				Version:     version,
				AccessToken: cfg.FHIRAccessToken,
				CallTimeout: cfg.FHIRTimeout,
			}, registry, search.NewService(registry, fhirClient, logger), logger)
			return srv.Serve()
		},
	}
}

func topicsCmd(envFile *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "topics",
		Short: "Manage the audit topic",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "ensure",
		Short: "Create the audit topic if it does not exist",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(*envFile)
			if err != nil {
				return err
			}
			defer logger.Sync()

			if err := cfg.ValidateKafka(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			if err := redpanda.HealthCheck(ctx, cfg.KafkaBrokers); err != nil {
				return fmt.Errorf("broker unreachable: %w", err)
			}

			admin, err := redpanda.NewAdmin(cfg.KafkaBrokers, logger)
			if err != nil {
				return err
			}
			defer admin.Close()

			return admin.EnsureTopics(ctx, redpanda.AuditTopicConfig(cfg.AuditTopic))
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List the broker's topics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(*envFile)
			if err != nil {
				return err
			}
			defer logger.Sync()

			if err := cfg.ValidateKafka(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			admin, err := redpanda.NewAdmin(cfg.KafkaBrokers, logger)
			if err != nil {
				return err
			}
			defer admin.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			names, err := admin.ListTopics(ctx)
			if err != nil {
				return err
			}
			for _, name := range names {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	})

	return cmd
}

func auditCmd(envFile *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect published audit entries",
	}

	var (
		group     string
		fromStart bool
	)
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Print audit entries as they are published",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(*envFile)
			if err != nil {
				return err
			}
			defer logger.Sync()

			if err := cfg.ValidateKafka(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			consumerCfg := redpanda.DefaultConsumerConfig(cfg.KafkaBrokers, group, cfg.AuditTopic)
			if fromStart {
				consumerCfg.StartOffset = "earliest"
			}

			out := json.NewEncoder(cmd.OutOrStdout())
			consumer, err := redpanda.NewConsumer(consumerCfg, func(ctx context.Context, msg *redpanda.ConsumedMessage) error {
				var entry audit.Entry
				if err := json.Unmarshal(msg.Value, &entry); err != nil {
					logger.Warn("skipping malformed audit entry",
						zap.Int64("offset", msg.Offset),
						zap.Error(err))
					return nil
				}
				return out.Encode(entry)
			}, logger)
			if err != nil {
				return err
			}

			consumer.Start()
			logger.Info("tailing audit topic", zap.String("topic", cfg.AuditTopic), zap.String("group", group))

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
			<-sigChan

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return consumer.Stop(ctx)
		},
	}
	tail.Flags().StringVar(&group, "group", "fhir-chat-audit-tail", "consumer group")
	tail.Flags().BoolVar(&fromStart, "from-start", false, "read from the earliest retained entry")

	cmd.AddCommand(tail)
	return cmd
}
