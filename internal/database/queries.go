package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
)

const presenceColumns = "account_id, online, last_seen_at, session_started_at, total_online_seconds, failed_login_count, locked_until, updated_at"

func scanPresence(row interface{ Scan(...any) error }) (Presence, error) {
	var p Presence
	err := row.Scan(
		&p.AccountId,
		&p.Online,
		&p.LastSeenAt,
		&p.SessionStartedAt,
		&p.TotalOnlineSeconds,
		&p.FailedLoginCount,
		&p.LockedUntil,
		&p.UpdatedAt,
	)
	return p, err
}

func (db *PgRepository) CreateAccount(params CreateAccountParams) (User, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return User{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	res := tx.QueryRow(
		"INSERT INTO accounts (username, email, password_hash, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $4) RETURNING id, username, email, created_at, updated_at",
		params.Username,
		params.EmailAddress,
		params.PasswordHash,
		time.Now().UTC(),
	)

	var u User
	err = res.Scan(
		&u.Id,
		&u.Username,
		&u.EmailAddress,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return User{}, err
	}

	// every account gets a presence row up front
	_, err = tx.Exec(
		"INSERT INTO presences (account_id, last_seen_at, updated_at) VALUES ($1, $2, $2)",
		u.Id,
		time.Now().UTC(),
	)
	if err != nil {
		return User{}, err
	}

	if err = tx.Commit(); err != nil {
		return User{}, err
	}

	return u, nil
}

func (db *PgRepository) GetAccountById(id int) (User, error) {
	row := db.conn.QueryRow(
		"SELECT id, username, email, created_at, updated_at FROM accounts "+
			"WHERE id = $1 LIMIT 1",
		id,
	)

	var user User
	err := row.Scan(
		&user.Id,
		&user.Username,
		&user.EmailAddress,
		&user.CreatedAt,
		&user.UpdatedAt,
	)

	return user, err
}

func (db *PgRepository) GetAccountByEmail(email string) (User, error) {
	row := db.conn.QueryRow(
		"SELECT id, username, email, password_hash, created_at, updated_at FROM accounts "+
			"WHERE email = $1 LIMIT 1",
		email,
	)

	var user User
	err := row.Scan(
		&user.Id,
		&user.Username,
		&user.EmailAddress,
		&user.PasswordHash,
		&user.CreatedAt,
		&user.UpdatedAt,
	)

	return user, err
}

func (db *PgRepository) GetPresence(accountId int) (Presence, error) {
	row := db.conn.QueryRow(
		"SELECT "+presenceColumns+" FROM presences WHERE account_id = $1 LIMIT 1",
		accountId,
	)

	return scanPresence(row)
}

func (db *PgRepository) TouchLastSeen(accountId int, now time.Time) error {
	_, err := db.conn.Exec(
		"UPDATE presences SET last_seen_at = $2, updated_at = $2 WHERE account_id = $1",
		accountId,
		now,
	)

	return err
}

func (db *PgRepository) OpenPresenceSession(accountId int, now time.Time) error {
	_, err := db.conn.Exec(
		"UPDATE presences SET online = TRUE, "+
			"session_started_at = COALESCE(session_started_at, $2), "+
			"last_seen_at = $2, updated_at = $2 "+
			"WHERE account_id = $1",
		accountId,
		now,
	)

	return err
}

// ClosePresenceSession flushes the open session timer into
// total_online_seconds and marks the account offline. The flush is guarded on
// session_started_at so a concurrent or repeated close adds nothing.
func (db *PgRepository) ClosePresenceSession(accountId int, now time.Time) (bool, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return false, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	res, err := tx.Exec(
		"UPDATE presences SET "+
			"total_online_seconds = total_online_seconds + GREATEST(EXTRACT(EPOCH FROM ($2::timestamptz - session_started_at))::bigint, 0), "+
			"session_started_at = NULL, online = FALSE, last_seen_at = $2, updated_at = $2 "+
			"WHERE account_id = $1 AND session_started_at IS NOT NULL",
		accountId,
		now,
	)
	if err != nil {
		return false, err
	}

	flushed, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	// an online row without a session timer still has to go offline
	if flushed == 0 {
		_, err = tx.Exec(
			"UPDATE presences SET online = FALSE, last_seen_at = $2, updated_at = $2 "+
				"WHERE account_id = $1 AND online",
			accountId,
			now,
		)
		if err != nil {
			return false, err
		}
	}

	if err = tx.Commit(); err != nil {
		return false, err
	}

	return flushed > 0, nil
}

func (db *PgRepository) ListStaleOnlinePresences(cutoff time.Time, limit int) ([]Presence, error) {
	rows, err := db.conn.Query(
		"SELECT "+presenceColumns+" FROM presences "+
			"WHERE online AND last_seen_at < $1 ORDER BY last_seen_at ASC LIMIT $2",
		cutoff,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var presences []Presence
	for rows.Next() {
		p, err := scanPresence(rows)
		if err != nil {
			return nil, err
		}
		presences = append(presences, p)
	}

	return presences, rows.Err()
}

func (db *PgRepository) CountOnline() (int, error) {
	var count int
	err := db.conn.QueryRow("SELECT COUNT(*) FROM presences WHERE online").Scan(&count)

	return count, err
}

func (db *PgRepository) GetPresences(accountIds []int) ([]Presence, error) {
	rows, err := db.conn.Query(
		"SELECT "+presenceColumns+" FROM presences WHERE account_id = ANY($1)",
		pq.Array(accountIds),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var presences []Presence
	for rows.Next() {
		p, err := scanPresence(rows)
		if err != nil {
			return nil, err
		}
		presences = append(presences, p)
	}

	return presences, rows.Err()
}

func (db *PgRepository) IncrementFailedLogins(accountId int) (int, error) {
	var count int
	err := db.conn.QueryRow(
		"UPDATE presences SET failed_login_count = failed_login_count + 1, updated_at = $2 "+
			"WHERE account_id = $1 RETURNING failed_login_count",
		accountId,
		time.Now().UTC(),
	).Scan(&count)

	return count, err
}

func (db *PgRepository) SetLock(accountId int, until time.Time) error {
	_, err := db.conn.Exec(
		"UPDATE presences SET locked_until = $2, updated_at = $3 WHERE account_id = $1",
		accountId,
		until,
		time.Now().UTC(),
	)

	return err
}

func (db *PgRepository) ResetFailedLogins(accountId int) error {
	_, err := db.conn.Exec(
		"UPDATE presences SET failed_login_count = 0, locked_until = NULL, updated_at = $2 "+
			"WHERE account_id = $1",
		accountId,
		time.Now().UTC(),
	)

	return err
}

func (db *PgRepository) ClearLock(accountId int) error {
	_, err := db.conn.Exec(
		"UPDATE presences SET locked_until = NULL, updated_at = $2 WHERE account_id = $1",
		accountId,
		time.Now().UTC(),
	)

	return err
}

const conversationColumns = "id, external_id, user_a_id, user_b_id, created_at, updated_at"

func scanConversation(row interface{ Scan(...any) error }) (Conversation, error) {
	var c Conversation
	err := row.Scan(
		&c.Id,
		&c.ExternalId,
		&c.UserAId,
		&c.UserBId,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	return c, err
}

// CreateConversation inserts the canonically ordered pair, returning the
// existing row when another request got there first. The unique constraint on
// (user_a_id, user_b_id) is what makes concurrent creators converge.
func (db *PgRepository) CreateConversation(userAId, userBId int, externalId string) (Conversation, bool, error) {
	if userAId >= userBId {
		return Conversation{}, false, fmt.Errorf("conversation pair not canonical: %d, %d", userAId, userBId)
	}

	row := db.conn.QueryRow(
		"INSERT INTO conversations (external_id, user_a_id, user_b_id, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $4) "+
			"ON CONFLICT (user_a_id, user_b_id) DO NOTHING "+
			"RETURNING "+conversationColumns,
		externalId,
		userAId,
		userBId,
		time.Now().UTC(),
	)

	conv, err := scanConversation(row)
	if err == nil {
		return conv, true, nil
	}
	if err != sql.ErrNoRows {
		return Conversation{}, false, err
	}

	row = db.conn.QueryRow(
		"SELECT "+conversationColumns+" FROM conversations "+
			"WHERE user_a_id = $1 AND user_b_id = $2 LIMIT 1",
		userAId,
		userBId,
	)

	conv, err = scanConversation(row)
	return conv, false, err
}

func (db *PgRepository) GetConversationById(id int) (Conversation, error) {
	row := db.conn.QueryRow(
		"SELECT "+conversationColumns+" FROM conversations WHERE id = $1 LIMIT 1",
		id,
	)

	return scanConversation(row)
}

func (db *PgRepository) ListConversations(accountId int) ([]Conversation, error) {
	rows, err := db.conn.Query(
		"SELECT "+conversationColumns+" FROM conversations "+
			"WHERE user_a_id = $1 OR user_b_id = $1 ORDER BY updated_at DESC",
		accountId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var convs []Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		convs = append(convs, c)
	}

	return convs, rows.Err()
}

const messageColumns = "id, conversation_id, sender_id, content, attachment_path, attachment_duration_seconds, is_read, is_deleted, created_at"

func scanMessage(row interface{ Scan(...any) error }) (Message, error) {
	var m Message
	err := row.Scan(
		&m.Id,
		&m.ConversationId,
		&m.SenderId,
		&m.Content,
		&m.AttachmentPath,
		&m.AttachmentSecs,
		&m.IsRead,
		&m.IsDeleted,
		&m.CreatedAt,
	)
	return m, err
}

func (db *PgRepository) CreateMessage(params CreateMessageParams) (Message, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return Message{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	row := tx.QueryRow(
		"INSERT INTO messages (conversation_id, sender_id, content, attachment_path, attachment_duration_seconds, created_at) "+
			"VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, 0), $6) "+
			"RETURNING "+messageColumns,
		params.ConversationId,
		params.SenderId,
		params.Content,
		params.AttachmentPath,
		params.AttachmentSecs,
		now,
	)

	var msg Message
	msg, err = scanMessage(row)
	if err != nil {
		return Message{}, err
	}

	_, err = tx.Exec(
		"UPDATE conversations SET updated_at = $2 WHERE id = $1",
		params.ConversationId,
		now,
	)
	if err != nil {
		return Message{}, err
	}

	if err = tx.Commit(); err != nil {
		return Message{}, err
	}

	return msg, nil
}

func (db *PgRepository) GetMessageById(id int) (Message, error) {
	row := db.conn.QueryRow(
		"SELECT "+messageColumns+" FROM messages WHERE id = $1 LIMIT 1",
		id,
	)

	return scanMessage(row)
}

func (db *PgRepository) GetMessages(conversationId, viewerId int, filter MessageFilter) ([]Message, error) {
	query := "SELECT " + messageColumns + " FROM messages " +
		"WHERE conversation_id = $1 AND NOT is_deleted AND id > $2"
	if filter.UnreadOnly {
		query += " AND sender_id <> $3 AND NOT is_read"
	}
	query += " ORDER BY created_at ASC, id ASC"

	args := []any{conversationId, filter.SinceId}
	if filter.UnreadOnly {
		args = append(args, viewerId)
	}

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}

	return messages, rows.Err()
}

func (db *PgRepository) GetLastMessage(conversationId int) (*Message, error) {
	row := db.conn.QueryRow(
		"SELECT "+messageColumns+" FROM messages "+
			"WHERE conversation_id = $1 AND NOT is_deleted "+
			"ORDER BY created_at DESC, id DESC LIMIT 1",
		conversationId,
	)

	msg, err := scanMessage(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &msg, nil
}

// MarkMessagesRead flips the given messages to read, skipping the viewer's
// own messages. Read state is monotonic; already-read rows are untouched.
func (db *PgRepository) MarkMessagesRead(conversationId, viewerId int, messageIds []int) (int, error) {
	if len(messageIds) == 0 {
		return 0, nil
	}

	res, err := db.conn.Exec(
		"UPDATE messages SET is_read = TRUE "+
			"WHERE conversation_id = $1 AND sender_id <> $2 AND id = ANY($3) AND NOT is_read",
		conversationId,
		viewerId,
		pq.Array(messageIds),
	)
	if err != nil {
		return 0, err
	}

	count, err := res.RowsAffected()
	return int(count), err
}

func (db *PgRepository) MarkAllMessagesRead(conversationId, viewerId int) (int, error) {
	res, err := db.conn.Exec(
		"UPDATE messages SET is_read = TRUE "+
			"WHERE conversation_id = $1 AND sender_id <> $2 AND NOT is_read AND NOT is_deleted",
		conversationId,
		viewerId,
	)
	if err != nil {
		return 0, err
	}

	count, err := res.RowsAffected()
	return int(count), err
}

func (db *PgRepository) UnreadCount(conversationId, viewerId int) (int, error) {
	var count int
	err := db.conn.QueryRow(
		"SELECT COUNT(*) FROM messages "+
			"WHERE conversation_id = $1 AND sender_id <> $2 AND NOT is_read AND NOT is_deleted",
		conversationId,
		viewerId,
	).Scan(&count)

	return count, err
}

func (db *PgRepository) GlobalUnreadCount(viewerId int) (int, error) {
	var count int
	err := db.conn.QueryRow(
		"SELECT COUNT(*) FROM messages m "+
			"JOIN conversations c ON m.conversation_id = c.id "+
			"WHERE (c.user_a_id = $1 OR c.user_b_id = $1) "+
			"AND m.sender_id <> $1 AND NOT m.is_read AND NOT m.is_deleted",
		viewerId,
	).Scan(&count)

	return count, err
}

func (db *PgRepository) MessageStatuses(conversationId, senderId int) (map[int]bool, error) {
	rows, err := db.conn.Query(
		"SELECT id, is_read FROM messages "+
			"WHERE conversation_id = $1 AND sender_id = $2 AND NOT is_deleted",
		conversationId,
		senderId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	statuses := make(map[int]bool)
	for rows.Next() {
		var id int
		var isRead bool
		if err := rows.Scan(&id, &isRead); err != nil {
			return nil, err
		}
		statuses[id] = isRead
	}

	return statuses, rows.Err()
}

func (db *PgRepository) RecordActivity(accountId int, event ActivityEventType, day time.Time) error {
	_, err := db.conn.Exec(
		"INSERT INTO activity_events (account_id, day, event_type, count) VALUES ($1, $2, $3, 1) "+
			"ON CONFLICT (account_id, day, event_type) DO UPDATE SET count = activity_events.count + 1",
		accountId,
		day.UTC().Truncate(24*time.Hour),
		string(event),
	)

	return err
}
