package postgres

import (
	"database/sql"

	"github.com/alfredjeanlab/notify/internal/model"
)

// scannable is the interface satisfied by both *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

// scanMessage scans a single row into a model.Message.
// The row must contain columns in the order defined by messageColumns.
func scanMessage(row scannable) (*model.Message, error) {
	var (
		m          model.Message
		senderID   sql.NullInt64
		kind       int
		targetType int
	)
	err := row.Scan(
		&m.ID,
		&m.ReceiverID,
		&senderID,
		&kind,
		&m.TargetID,
		&targetType,
		&m.Content,
		&m.IsRead,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	m.SenderID = senderID.Int64
	m.Type = model.Kind(kind)
	m.TargetType = model.TargetType(targetType)
	return &m, nil
}

// scanMessageWithTotal scans a row with a leading total_count column
// followed by the messageColumns.
func scanMessageWithTotal(row scannable) (*model.Message, int, error) {
	var (
		total      int
		m          model.Message
		senderID   sql.NullInt64
		kind       int
		targetType int
	)
	err := row.Scan(
		&total,
		&m.ID,
		&m.ReceiverID,
		&senderID,
		&kind,
		&m.TargetID,
		&targetType,
		&m.Content,
		&m.IsRead,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		return nil, 0, err
	}
	m.SenderID = senderID.Int64
	m.Type = model.Kind(kind)
	m.TargetType = model.TargetType(targetType)
	return &m, total, nil
}

func scanMessages(rows *sql.Rows) ([]*model.Message, error) {
	var msgs []*model.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func scanSender(row scannable) (model.Sender, error) {
	var (
		s         model.Sender
		username  sql.NullString
		avatarURL sql.NullString
	)
	if err := row.Scan(&s.UserID, &username, &avatarURL); err != nil {
		return model.Sender{}, err
	}
	s.Username = username.String
	s.AvatarURL = avatarURL.String
	return s, nil
}

// nullInt64 converts an id to sql.NullInt64; zero is null.
func nullInt64(id int64) sql.NullInt64 {
	if id == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: id, Valid: true}
}
