package cli

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shaiso/Flowstack/internal/mq"
	"github.com/shaiso/Flowstack/internal/telemetry"
)

// NewEventsCmd создаёт группу команд для событий выполнения в RabbitMQ.
func NewEventsCmd(outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Observe execution events published to RabbitMQ",
	}

	cmd.AddCommand(newEventsWatchCmd(outputFn))

	return cmd
}

func newEventsWatchCmd(outputFn func() *Output) *cobra.Command {
	var url string
	var patterns []string
	var failuresOnly bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print execution events as they are published",
		RunE: func(cmd *cobra.Command, args []string) error {
			if url == "" {
				url = os.Getenv("RABBITMQ_URL")
			}

			keys := make([]mq.RoutingKey, 0, len(patterns))
			for _, p := range patterns {
				keys = append(keys, mq.RoutingKey(p))
			}
			if failuresOnly {
				keys = []mq.RoutingKey{mq.PatternFailures}
			}

			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: telemetry.LogLevel()}))

			conn, err := mq.Dial(url, logger)
			if err != nil {
				return err
			}
			defer conn.Close()

			queue, err := mq.DeclareWatchQueue(conn, keys...)
			if err != nil {
				return err
			}

			out := outputFn()
			consumer := mq.NewConsumer(conn, mq.ConsumerConfig{
				Queue:   queue,
				Handler: eventPrinter(out),
				Logger:  logger,
			})

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			out.Success("Watching events, press Ctrl+C to stop")
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&url, "url", "", "RabbitMQ URL (default $RABBITMQ_URL or local broker)")
	cmd.Flags().StringSliceVar(&patterns, "pattern", nil, "Routing key pattern, e.g. flow.* or node.failed (repeatable)")
	cmd.Flags().BoolVar(&failuresOnly, "failures", false, "Only FAILED flow and node events")

	return cmd
}

// eventPrinter выводит каждое событие одной строкой или JSON-объектом.
func eventPrinter(out *Output) mq.Handler {
	return func(_ context.Context, msg *mq.Message) error {
		p, err := mq.ParsePayload[mq.EventPayload](msg)
		if err != nil {
			return err
		}

		if out.IsJSON() {
			out.JSON(p)
			return nil
		}

		line := formatTime(p.At) + "  " + string(msg.Type) + "  flow=" + p.FlowName + "  " + p.Status.String()
		if p.NodeID != "" {
			line += "  node=" + p.NodeID + " (" + p.NodeName + ")"
		}
		if p.Error != "" {
			line += "  error=" + p.Error
		}
		out.Line("%s", line)
		return nil
	}
}
