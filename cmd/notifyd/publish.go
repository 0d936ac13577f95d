package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/notify/internal/client"
	"github.com/alfredjeanlab/notify/internal/events"
	"github.com/alfredjeanlab/notify/internal/ingress"
	"github.com/alfredjeanlab/notify/internal/model"
)

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish a producer event",
	Long: `Publish a producer event over HTTP, NATS or Kafka.

Examples:
  notifyd publish --kind LIKE --sender 1 --receiver 2 --target-id 42
  notifyd publish --kind SYSTEM --receiver 2 --content "maintenance tonight" --via nats`,
	GroupID: "system",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ev, err := eventFromFlags(cmd)
		if err != nil {
			return err
		}
		if err := ev.Validate(); err != nil {
			return err
		}

		via, _ := cmd.Flags().GetString("via")
		producer, err := newProducer(cmd, via)
		if err != nil {
			return err
		}
		defer producer.Close()

		if err := producer.Produce(cmd.Context(), ev); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Published %s event for receiver %d via %s\n", ev.Kind, ev.ReceiverID, via)
		return nil
	},
}

func eventFromFlags(cmd *cobra.Command) (model.Event, error) {
	kindStr, _ := cmd.Flags().GetString("kind")
	kind, err := model.ParseKind(strings.ToUpper(kindStr))
	if err != nil {
		return model.Event{}, err
	}
	sender, _ := cmd.Flags().GetInt64("sender")
	receiver, _ := cmd.Flags().GetInt64("receiver")
	targetID, _ := cmd.Flags().GetInt64("target-id")
	targetType, _ := cmd.Flags().GetString("target-type")
	content, _ := cmd.Flags().GetString("content")

	target := model.Target{ID: targetID}
	if targetID != 0 {
		switch targetType {
		case "note":
			target.Type = model.TargetNote
		case "comment":
			target.Type = model.TargetComment
		default:
			return model.Event{}, fmt.Errorf("invalid target type %q (want note or comment)", targetType)
		}
	}

	return model.Event{
		Kind:       kind,
		SenderID:   sender,
		ReceiverID: receiver,
		Target:     target,
		Content:    content,
	}, nil
}

// httpProducer posts events to the internal ingress route.
type httpProducer struct {
	c *client.HTTPClient
}

func (p httpProducer) Produce(ctx context.Context, ev model.Event) error {
	return p.c.PublishEvent(ctx, ev)
}
func (p httpProducer) Close() error { return p.c.Close() }

func newProducer(cmd *cobra.Command, via string) (ingress.Producer, error) {
	switch via {
	case "http":
		token, _ := cmd.Flags().GetString("service-token")
		if token == "" {
			return nil, fmt.Errorf("--service-token (or NOTIFY_SERVICE_TOKEN) is required for http publishing")
		}
		return httpProducer{c: client.NewHTTPClient(httpURL, token)}, nil
	case "nats":
		url, _ := cmd.Flags().GetString("nats-url")
		pub, err := events.NewNATSPublisher(url)
		if err != nil {
			return nil, err
		}
		return ingress.NewNATSProducer(pub), nil
	case "kafka":
		brokers, _ := cmd.Flags().GetStringSlice("kafka-brokers")
		topic, _ := cmd.Flags().GetString("kafka-topic")
		if len(brokers) == 0 {
			return nil, fmt.Errorf("--kafka-brokers is required for kafka publishing")
		}
		return ingress.NewKafkaProducer(ingress.NewKafkaWriter(brokers, topic)), nil
	default:
		return nil, fmt.Errorf("invalid --via %q (want http, nats or kafka)", via)
	}
}

func init() {
	definePublishFlags(publishCmd)
	_ = publishCmd.MarkFlagRequired("kind")
	_ = publishCmd.MarkFlagRequired("receiver")
}

func definePublishFlags(cmd *cobra.Command) {
	cmd.Flags().String("kind", "", "event kind: LIKE, COMMENT or SYSTEM (required)")
	cmd.Flags().Int64("sender", 0, "sender user id (omit for SYSTEM)")
	cmd.Flags().Int64("receiver", 0, "receiver user id (required)")
	cmd.Flags().Int64("target-id", 0, "id of the note or comment the event is about")
	cmd.Flags().String("target-type", "note", "target type: note or comment")
	cmd.Flags().String("content", "", "notification text")
	cmd.Flags().String("via", "http", "transport: http, nats or kafka")
	cmd.Flags().String("service-token", os.Getenv("NOTIFY_SERVICE_TOKEN"), "service token for http publishing")
	cmd.Flags().String("nats-url", envOrDefault("NOTIFY_NATS_URL", "nats://localhost:4222"), "NATS server URL")
	cmd.Flags().StringSlice("kafka-brokers", splitEnv("NOTIFY_KAFKA_BROKERS"), "Kafka broker addresses")
	cmd.Flags().String("kafka-topic", envOrDefault("NOTIFY_KAFKA_TOPIC", "notify-events"), "Kafka topic")
}

func splitEnv(key string) []string {
	var out []string
	for _, p := range strings.Split(os.Getenv(key), ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
