// Package events carries notification lifecycle events over the message bus.
package events

import (
	"context"

	"github.com/alfredjeanlab/notify/internal/model"
)

// Outbound topics, published after the state change has been persisted.
const (
	TopicMessageCreated = "notify.message.created"
	TopicMessagesRead   = "notify.message.read"
	TopicMessageDeleted = "notify.message.deleted"
)

// Inbound producer subjects. Producers publish a JSON model.Event on
// notify.event.<kind>, e.g. notify.event.like.
const (
	TopicProducerPrefix = "notify.event."
	TopicProducerAll    = "notify.event.>"
)

// ProducerTopic returns the inbound subject for events of kind k.
func ProducerTopic(k model.Kind) string {
	switch k {
	case model.KindLike:
		return TopicProducerPrefix + "like"
	case model.KindComment:
		return TopicProducerPrefix + "comment"
	case model.KindSystem:
		return TopicProducerPrefix + "system"
	default:
		return TopicProducerPrefix + "unknown"
	}
}

// Event types

type MessageCreated struct {
	ReceiverID int64             `json:"receiver_id"`
	Message    model.MessageView `json:"message"`
}

type MessagesRead struct {
	ReceiverID int64   `json:"receiver_id"`
	MessageIDs []int64 `json:"message_ids,omitempty"`
	All        bool    `json:"all,omitempty"`
}

type MessageDeleted struct {
	ReceiverID int64 `json:"receiver_id"`
	MessageID  int64 `json:"message_id"`
}

// Publisher is the interface for emitting events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}
