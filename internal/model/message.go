package model

import "time"

// Message is the persisted notification record derived from an Event.
// Only IsRead and UpdatedAt change after insertion.
type Message struct {
	ID         int64      `json:"id"`
	ReceiverID int64      `json:"receiver_id"`
	SenderID   int64      `json:"sender_id,omitempty"`
	Type       Kind       `json:"type"`
	TargetID   int64      `json:"target_id"`
	TargetType TargetType `json:"target_type"`
	Content    string     `json:"content"`
	IsRead     bool       `json:"is_read"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Sender is the public profile of a message's originating user.
type Sender struct {
	UserID    int64  `json:"userId"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatarUrl"`
}

// MessageView is the wire representation pushed over the live connection and
// returned by the list API. Sender is nil for system messages.
type MessageView struct {
	MessageID int64     `json:"messageId"`
	Sender    *Sender   `json:"sender"`
	Type      Kind      `json:"type"`
	Target    Target    `json:"target"`
	Content   string    `json:"content"`
	IsRead    bool      `json:"isRead"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewMessageView builds the wire view of m. senders may be nil; when the
// sender is missing from it a view with only the user id is produced.
func NewMessageView(m *Message, senders map[int64]Sender) MessageView {
	v := MessageView{
		MessageID: m.ID,
		Type:      m.Type,
		Target:    Target{ID: m.TargetID, Type: m.TargetType},
		Content:   m.Content,
		IsRead:    m.IsRead,
		CreatedAt: m.CreatedAt,
	}
	if m.SenderID != 0 {
		s, ok := senders[m.SenderID]
		if !ok {
			s = Sender{UserID: m.SenderID}
		}
		v.Sender = &s
	}
	return v
}

// MessagePage is one page of a receiver's messages.
type MessagePage struct {
	Items      []MessageView `json:"items"`
	Page       int           `json:"page"`
	PageSize   int           `json:"pageSize"`
	Total      int           `json:"total"`
	TotalPages int           `json:"totalPages"`
}

// NewMessagePage assembles page metadata around items.
func NewMessagePage(items []MessageView, page, pageSize, total int) *MessagePage {
	if items == nil {
		items = []MessageView{}
	}
	pages := 0
	if pageSize > 0 {
		pages = (total + pageSize - 1) / pageSize
	}
	return &MessagePage{
		Items:      items,
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: pages,
	}
}

// UnreadByType maps each kind to its unread count. Kinds with no unread
// messages may be absent.
type UnreadByType map[Kind]int

// Total sums the per-kind counts.
func (u UnreadByType) Total() int {
	n := 0
	for _, c := range u {
		n += c
	}
	return n
}

// Named returns the counts keyed by kind name, the shape the API returns.
func (u UnreadByType) Named() map[string]int {
	out := make(map[string]int, len(u))
	for k, c := range u {
		out[k.String()] = c
	}
	return out
}
