/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/blue-carbon-registry/apiserver/config"
	"github.com/blue-carbon-registry/apiserver/internal/mq"
	"github.com/blue-carbon-registry/apiserver/types"
	"github.com/spf13/cobra"
)

// workerCmd represents the worker command
var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Consume registry lifecycle events",
	Long: `Consumes registry lifecycle events (account approvals, proof
submissions, retirements) from the configured broker and logs them.
Downstream notification delivery hooks in here.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		if cfg.MQ.Backend == "" {
			return errors.New("MQ_BACKEND is required for the worker")
		}

		log, err := newLogger(cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
			os.Exit(1)
		}
		defer log.Sync()

		bus, err := newEventBus(cmd.Context(), cfg.MQ)
		if err != nil {
			return err
		}
		defer bus.Close()

		log.Infow("worker consuming", "backend", cfg.MQ.Backend, "channel", cfg.MQ.Channel)
		return bus.Subscribe(cmd.Context(), func(ctx context.Context, msg mq.Message) error {
			var event types.Event
			if err := json.Unmarshal(msg.Data, &event); err != nil {
				log.Warnw("dropping malformed event", "msg_id", msg.ID, "error", err)
				return nil
			}
			log.Infow("event received",
				"kind", event.Kind,
				"event_id", event.ID,
				"account_id", event.AccountID,
				"wallet", event.Wallet,
				"tx_hash", event.TxHash,
			)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func newEventBus(ctx context.Context, cfg config.MQConfig) (*mq.EventBus, error) {
	switch cfg.Backend {
	case "rabbitmq":
		client, err := mq.NewRabbitMQClient(cfg.RabbitMQ)
		if err != nil {
			return nil, fmt.Errorf("rabbitmq: %w", err)
		}
		return mq.NewEventBus(client, cfg.Channel), nil
	case "pubsub":
		client, err := mq.NewPubSubClient(ctx, cfg.PubSub)
		if err != nil {
			return nil, fmt.Errorf("pubsub: %w", err)
		}
		return mq.NewEventBus(client, cfg.Channel), nil
	default:
		return nil, fmt.Errorf("unknown mq backend %q", cfg.Backend)
	}
}
