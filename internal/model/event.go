package model

import "fmt"

// Kind identifies what happened to produce a notification.
// Values match the integer codes stored in messages.type.
type Kind int

const (
	KindLike    Kind = 1
	KindComment Kind = 2
	KindSystem  Kind = 3
)

var kindNames = map[Kind]string{
	KindLike:    "LIKE",
	KindComment: "COMMENT",
	KindSystem:  "SYSTEM",
}

// IsValid reports whether k is a known kind.
func (k Kind) IsValid() bool {
	_, ok := kindNames[k]
	return ok
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind accepts either the symbolic name ("LIKE") or the numeric code ("1").
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	var n int
	if _, err := fmt.Sscanf(s, "%d", &n); err == nil && Kind(n).IsValid() {
		return Kind(n), nil
	}
	return 0, fmt.Errorf("unknown message type %q", s)
}

// TargetType identifies the kind of entity a notification is about.
type TargetType int

const (
	TargetNote    TargetType = 1
	TargetComment TargetType = 2
)

// IsValid reports whether t is a known target type.
func (t TargetType) IsValid() bool {
	return t == TargetNote || t == TargetComment
}

// Target references the entity an event is about.
type Target struct {
	ID   int64      `json:"targetId"`
	Type TargetType `json:"targetType"`
}

// Event describes a notification-worthy occurrence. It is a plain value:
// once built it is passed by copy and never modified. SenderID is zero for
// system events.
type Event struct {
	Kind       Kind   `json:"kind"`
	SenderID   int64  `json:"senderId,omitempty"`
	ReceiverID int64  `json:"receiverId"`
	Target     Target `json:"target"`
	Content    string `json:"content"`
}

// NewLikeEvent builds the event for sender liking one of receiver's targets.
func NewLikeEvent(senderID, receiverID int64, target Target, content string) Event {
	return Event{Kind: KindLike, SenderID: senderID, ReceiverID: receiverID, Target: target, Content: content}
}

// NewCommentEvent builds the event for sender commenting on one of receiver's targets.
func NewCommentEvent(senderID, receiverID int64, target Target, content string) Event {
	return Event{Kind: KindComment, SenderID: senderID, ReceiverID: receiverID, Target: target, Content: content}
}

// NewSystemEvent builds a system notification. System events have no sender.
func NewSystemEvent(receiverID int64, target Target, content string) Event {
	return Event{Kind: KindSystem, ReceiverID: receiverID, Target: target, Content: content}
}

// Validate checks the fields a producer is responsible for. Construction
// never validates; call sites and ingress adapters do.
func (e Event) Validate() error {
	var ve ValidationError
	if e.ReceiverID <= 0 {
		ve.Errors = append(ve.Errors, FieldError{Field: "receiverId", Message: "is required"})
	}
	if !e.Kind.IsValid() {
		ve.Errors = append(ve.Errors, FieldError{Field: "kind", Message: fmt.Sprintf("invalid value %d", int(e.Kind))})
	}
	if e.Kind == KindSystem && e.SenderID != 0 {
		ve.Errors = append(ve.Errors, FieldError{Field: "senderId", Message: "must be empty for system events"})
	}
	if e.Kind != KindSystem && e.Kind.IsValid() && e.SenderID <= 0 {
		ve.Errors = append(ve.Errors, FieldError{Field: "senderId", Message: "is required"})
	}
	if ve.HasErrors() {
		return &ve
	}
	return nil
}

// ToMessage derives the unsaved message record for this event.
func (e Event) ToMessage() *Message {
	return &Message{
		ReceiverID: e.ReceiverID,
		SenderID:   e.SenderID,
		Type:       e.Kind,
		TargetID:   e.Target.ID,
		TargetType: e.Target.Type,
		Content:    e.Content,
	}
}
