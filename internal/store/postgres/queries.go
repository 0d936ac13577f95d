package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/alfredjeanlab/notify/internal/model"
)

// messageColumns is the column list used for SELECT statements on the messages table.
const messageColumns = `id, receiver_id, sender_id, type, target_id, target_type,
	content, is_read, created_at, updated_at`

// executor is the interface satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func queryInsertMessage(ctx context.Context, db executor, m *model.Message) error {
	err := db.QueryRowContext(ctx, `
		INSERT INTO messages (receiver_id, sender_id, type, target_id, target_type, content)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, is_read, created_at, updated_at`,
		m.ReceiverID,
		nullInt64(m.SenderID),
		int(m.Type),
		m.TargetID,
		int(m.TargetType),
		m.Content,
	).Scan(&m.ID, &m.IsRead, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func queryListMessages(ctx context.Context, db executor, receiverID int64, filter model.MessageFilter) ([]*model.Message, int, error) {
	var (
		whereClauses []string
		args         []any
		argIdx       int
	)

	nextArg := func() string {
		argIdx++
		return fmt.Sprintf("$%d", argIdx)
	}

	whereClauses = append(whereClauses, "receiver_id = "+nextArg())
	args = append(args, receiverID)

	if filter.Type != nil {
		whereClauses = append(whereClauses, "type = "+nextArg())
		args = append(args, int(*filter.Type))
	}

	if filter.IsRead != nil {
		whereClauses = append(whereClauses, "is_read = "+nextArg())
		args = append(args, *filter.IsRead)
	}

	if filter.StartTime != nil {
		whereClauses = append(whereClauses, "created_at >= "+nextArg())
		args = append(args, *filter.StartTime)
	}

	if filter.EndTime != nil {
		whereClauses = append(whereClauses, "created_at <= "+nextArg())
		args = append(args, *filter.EndTime)
	}

	whereSQL := " WHERE " + strings.Join(whereClauses, " AND ")
	countArgs := append([]any(nil), args...)

	// Single query with COUNT(*) OVER() to get total and rows atomically.
	dataQuery := "SELECT COUNT(*) OVER() AS total_count, " + messageColumns + " FROM messages" + whereSQL +
		" ORDER BY " + parseSortClause(filter.Sort)

	if filter.PageSize > 0 {
		dataQuery += " LIMIT " + nextArg()
		args = append(args, filter.PageSize)
	}
	offset := filter.Offset()
	if offset > 0 {
		dataQuery += " OFFSET " + nextArg()
		args = append(args, offset)
	}

	rows, err := db.QueryContext(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var msgs []*model.Message
	var total int
	for rows.Next() {
		m, t, err := scanMessageWithTotal(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan messages: %w", err)
		}
		total = t
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("scan messages: %w", err)
	}

	// A page past the end returns no rows and therefore no window count.
	if len(msgs) == 0 && offset > 0 {
		if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM messages"+whereSQL, countArgs...).Scan(&total); err != nil {
			return nil, 0, fmt.Errorf("count messages: %w", err)
		}
	}

	return msgs, total, nil
}

func queryDeleteMessage(ctx context.Context, db executor, messageID, receiverID int64) error {
	_, err := db.ExecContext(ctx, `DELETE FROM messages WHERE id = $1 AND receiver_id = $2`, messageID, receiverID)
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}

// queryMarkAsRead only touches unread rows so a repeat call leaves
// updated_at alone.
func queryMarkAsRead(ctx context.Context, db executor, messageID, receiverID int64) error {
	_, err := db.ExecContext(ctx, `
		UPDATE messages SET is_read = TRUE, updated_at = NOW()
		WHERE id = $1 AND receiver_id = $2 AND is_read = FALSE`,
		messageID, receiverID,
	)
	if err != nil {
		return fmt.Errorf("mark as read: %w", err)
	}
	return nil
}

func queryMarkAsReadBatch(ctx context.Context, db executor, messageIDs []int64, receiverID int64) (int, error) {
	if len(messageIDs) == 0 {
		return 0, nil
	}
	res, err := db.ExecContext(ctx, `
		UPDATE messages SET is_read = TRUE, updated_at = NOW()
		WHERE id = ANY($1) AND receiver_id = $2 AND is_read = FALSE`,
		pq.Array(messageIDs), receiverID,
	)
	if err != nil {
		return 0, fmt.Errorf("mark batch as read: %w", err)
	}
	return rowsAffected(res)
}

func queryMarkAllAsRead(ctx context.Context, db executor, receiverID int64) (int, error) {
	res, err := db.ExecContext(ctx, `
		UPDATE messages SET is_read = TRUE, updated_at = NOW()
		WHERE receiver_id = $1 AND is_read = FALSE`,
		receiverID,
	)
	if err != nil {
		return 0, fmt.Errorf("mark all as read: %w", err)
	}
	return rowsAffected(res)
}

func queryCountUnread(ctx context.Context, db executor, receiverID int64) (int, error) {
	var n int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE receiver_id = $1 AND is_read = FALSE`, receiverID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return n, nil
}

func queryCountUnreadByType(ctx context.Context, db executor, receiverID int64) (model.UnreadByType, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT type, COUNT(*) FROM messages
		WHERE receiver_id = $1 AND is_read = FALSE
		GROUP BY type`,
		receiverID,
	)
	if err != nil {
		return nil, fmt.Errorf("count unread by type: %w", err)
	}
	defer rows.Close()

	counts := make(model.UnreadByType)
	for rows.Next() {
		var (
			kind int
			n    int
		)
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, fmt.Errorf("scan unread counts: %w", err)
		}
		counts[model.Kind(kind)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan unread counts: %w", err)
	}
	return counts, nil
}

func queryGetSenders(ctx context.Context, db executor, userIDs []int64) (map[int64]model.Sender, error) {
	senders := make(map[int64]model.Sender, len(userIDs))
	if len(userIDs) == 0 {
		return senders, nil
	}
	rows, err := db.QueryContext(ctx,
		`SELECT user_id, username, avatar_url FROM users WHERE user_id = ANY($1)`,
		pq.Array(userIDs),
	)
	if err != nil {
		return nil, fmt.Errorf("get senders: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		s, err := scanSender(rows)
		if err != nil {
			return nil, fmt.Errorf("scan senders: %w", err)
		}
		senders[s.UserID] = s
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan senders: %w", err)
	}
	return senders, nil
}

func queryListMessagesAfter(ctx context.Context, db executor, afterID int64, limit int) ([]*model.Message, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE id > $1 ORDER BY id ASC LIMIT $2`,
		afterID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list messages after %d: %w", afterID, err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

func rowsAffected(res sql.Result) (int, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}

// parseSortClause maps a filter sort key to an ORDER BY clause. Unknown keys
// fall back to newest first. id breaks ties between equal timestamps.
func parseSortClause(sort string) string {
	desc := sort == "" || strings.HasPrefix(sort, "-")
	col := strings.TrimPrefix(sort, "-")
	if col != "created_at" {
		return "created_at DESC, id DESC"
	}
	if desc {
		return "created_at DESC, id DESC"
	}
	return "created_at ASC, id ASC"
}
