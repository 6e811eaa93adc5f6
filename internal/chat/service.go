// Package chat owns conversations, their participants and messages.
package chat

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/christopherjohns/socialhub/internal/apperr"
	"github.com/christopherjohns/socialhub/internal/models"
)

const (
	DefaultPageSize  = 50
	maxPageSize      = 100
	maxMessageLength = 4000
)

type Service struct {
	db  *sql.DB
	now func() time.Time
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db, now: time.Now}
}

// CreateConversation creates a conversation containing the creator and
// participantIDs. A direct (non-group) conversation between the same two
// users is reused instead of duplicated.
func (s *Service) CreateConversation(ctx context.Context, creatorID int64, participantIDs []int64, name string, isGroup bool) (*models.Conversation, error) {
	members := lo.Uniq(append([]int64{creatorID}, participantIDs...))
	if len(members) < 2 {
		return nil, apperr.Invalid("a conversation needs at least one other participant")
	}
	if !isGroup && len(members) > 2 {
		return nil, apperr.Invalid("a direct conversation has exactly two participants")
	}
	if err := s.requireUsers(ctx, members); err != nil {
		return nil, err
	}

	if !isGroup {
		existing, err := s.findDirect(ctx, members[0], members[1])
		if err != nil {
			return nil, err
		}
		if existing != 0 {
			return s.GetConversation(ctx, creatorID, existing)
		}
	}

	now := s.now().UTC()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin create conversation: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO conversations (name, is_group, created_at) VALUES (?, ?, ?)`,
		strings.TrimSpace(name), isGroup, now)
	if err != nil {
		return nil, fmt.Errorf("insert conversation: %w", err)
	}
	convID, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("conversation id: %w", err)
	}
	for _, userID := range members {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO conversation_participants (conversation_id, user_id, joined_at) VALUES (?, ?, ?)`,
			convID, userID, now); err != nil {
			return nil, fmt.Errorf("insert participant: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit create conversation: %w", err)
	}
	return s.GetConversation(ctx, creatorID, convID)
}

// ListConversations returns the user's conversations, most recently active first.
func (s *Service) ListConversations(ctx context.Context, userID int64) ([]*models.Conversation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT c.id, c.name, c.is_group, c.created_at, c.last_message_at
		 FROM conversations c
		 JOIN conversation_participants p ON p.conversation_id = c.id
		 WHERE p.user_id = ?
		 ORDER BY COALESCE(c.last_message_at, c.created_at) DESC, c.id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	var convs []*models.Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		convs = append(convs, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}

	for _, c := range convs {
		if err := s.fill(ctx, userID, c); err != nil {
			return nil, err
		}
	}
	if convs == nil {
		convs = []*models.Conversation{}
	}
	return convs, nil
}

// GetConversation returns a conversation the user participates in.
func (s *Service) GetConversation(ctx context.Context, userID, convID int64) (*models.Conversation, error) {
	if err := s.RequireParticipant(ctx, convID, userID); err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, is_group, created_at, last_message_at FROM conversations WHERE id = ?`, convID)
	c, err := scanConversation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("conversation not found")
		}
		return nil, err
	}
	if err := s.fill(ctx, userID, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Participants returns the user ids of a conversation's participants.
func (s *Service) Participants(ctx context.Context, convID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id FROM conversation_participants WHERE conversation_id = ? ORDER BY user_id`, convID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// IsParticipant reports whether userID belongs to the conversation.
func (s *Service) IsParticipant(ctx context.Context, convID, userID int64) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM conversation_participants WHERE conversation_id = ? AND user_id = ?`,
		convID, userID).Scan(&n); err != nil {
		return false, fmt.Errorf("check participant: %w", err)
	}
	return n > 0, nil
}

// RequireParticipant fails with not-found for an unknown conversation and
// forbidden when userID is not a participant.
func (s *Service) RequireParticipant(ctx context.Context, convID, userID int64) error {
	var exists, member int
	err := s.db.QueryRowContext(ctx,
		`SELECT
			(SELECT COUNT(*) FROM conversations WHERE id = ?),
			(SELECT COUNT(*) FROM conversation_participants WHERE conversation_id = ? AND user_id = ?)`,
		convID, convID, userID,
	).Scan(&exists, &member)
	if err != nil {
		return fmt.Errorf("check participant: %w", err)
	}
	if exists == 0 {
		return apperr.NotFound("conversation not found")
	}
	if member == 0 {
		return apperr.Forbidden("you are not a participant of this conversation")
	}
	return nil
}

// SendMessage stores a message from a participant and bumps the
// conversation's activity timestamp.
func (s *Service) SendMessage(ctx context.Context, senderID, convID int64, content string, typ models.MessageType) (*models.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperr.Invalid("message content is required")
	}
	if len(content) > maxMessageLength {
		return nil, apperr.Invalid("message exceeds maximum length of %d characters", maxMessageLength)
	}
	if typ == "" {
		typ = models.MessageText
	}
	if !typ.Valid() {
		return nil, apperr.Invalid("unknown message type %q", typ)
	}
	if err := s.RequireParticipant(ctx, convID, senderID); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin send message: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO messages (conversation_id, sender_id, content, type, sent_at) VALUES (?, ?, ?, ?, ?)`,
		convID, senderID, content, string(typ), now)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	msgID, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("message id: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE conversations SET last_message_at = ? WHERE id = ?`, now, convID); err != nil {
		return nil, fmt.Errorf("touch conversation: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit send message: %w", err)
	}
	return s.GetMessage(ctx, msgID)
}

// GetMessages returns a page of a conversation's messages in send order.
// skip counts back from the newest message.
func (s *Service) GetMessages(ctx context.Context, userID, convID int64, skip, take int) ([]*models.Message, error) {
	if err := s.RequireParticipant(ctx, convID, userID); err != nil {
		return nil, err
	}
	if skip < 0 {
		skip = 0
	}
	if take <= 0 {
		take = DefaultPageSize
	}
	if take > maxPageSize {
		take = maxPageSize
	}
	rows, err := s.db.QueryContext(ctx, messageQuery+`
		 WHERE m.conversation_id = ? AND m.is_deleted = ?
		 ORDER BY m.sent_at DESC, m.id DESC LIMIT ? OFFSET ?`,
		convID, false, take, skip)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	msgs := []*models.Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	slices.Reverse(msgs)
	return msgs, nil
}

func (s *Service) GetMessage(ctx context.Context, messageID int64) (*models.Message, error) {
	m, err := scanMessage(s.db.QueryRowContext(ctx, messageQuery+` WHERE m.id = ?`, messageID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("message not found")
	}
	return m, err
}

// MarkMessageAsRead moves the reader's read marker to now and returns the
// message so the caller can notify its sender.
func (s *Service) MarkMessageAsRead(ctx context.Context, userID, messageID int64) (*models.Message, error) {
	m, err := s.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if err := s.MarkConversationRead(ctx, userID, m.ConversationID); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *Service) MarkConversationRead(ctx context.Context, userID, convID int64) error {
	if err := s.RequireParticipant(ctx, convID, userID); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx,
		`UPDATE conversation_participants SET last_read_at = ? WHERE conversation_id = ? AND user_id = ?`,
		s.now().UTC(), convID, userID); err != nil {
		return fmt.Errorf("mark conversation read: %w", err)
	}
	return nil
}

func (s *Service) requireUsers(ctx context.Context, ids []int64) error {
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := lo.Map(ids, func(id int64, _ int) any { return id })
	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE id IN (`+placeholders+`)`, args...).Scan(&n); err != nil {
		return fmt.Errorf("check users: %w", err)
	}
	if n != len(ids) {
		return apperr.NotFound("one or more participants do not exist")
	}
	return nil
}

func (s *Service) findDirect(ctx context.Context, a, b int64) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`SELECT c.id FROM conversations c
		 JOIN conversation_participants p1 ON p1.conversation_id = c.id AND p1.user_id = ?
		 JOIN conversation_participants p2 ON p2.conversation_id = c.id AND p2.user_id = ?
		 WHERE c.is_group = ?
		 ORDER BY c.id LIMIT 1`, a, b, false).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("find direct conversation: %w", err)
	}
	return id, nil
}

// fill loads participants, the last message and the unread count for userID.
func (s *Service) fill(ctx context.Context, userID int64, c *models.Conversation) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT u.id, u.username, u.display_name, u.profile_picture_url, u.is_online, u.last_seen
		 FROM conversation_participants p JOIN users u ON u.id = p.user_id
		 WHERE p.conversation_id = ? ORDER BY u.id`, c.ID)
	if err != nil {
		return fmt.Errorf("load participants: %w", err)
	}
	c.Participants = []models.UserSummary{}
	for rows.Next() {
		var (
			u        models.UserSummary
			lastSeen sql.NullTime
		)
		if err := rows.Scan(&u.ID, &u.Username, &u.DisplayName, &u.ProfilePictureURL, &u.IsOnline, &lastSeen); err != nil {
			rows.Close()
			return fmt.Errorf("scan participant: %w", err)
		}
		if lastSeen.Valid {
			t := lastSeen.Time
			u.LastSeen = &t
		}
		c.Participants = append(c.Participants, u)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("load participants: %w", err)
	}

	last, err := scanMessage(s.db.QueryRowContext(ctx, messageQuery+`
		 WHERE m.conversation_id = ? AND m.is_deleted = ?
		 ORDER BY m.sent_at DESC, m.id DESC LIMIT 1`, c.ID, false))
	switch {
	case err == nil:
		c.LastMessage = last
	case !errors.Is(err, sql.ErrNoRows):
		return err
	}

	var lastRead sql.NullTime
	if err := s.db.QueryRowContext(ctx,
		`SELECT last_read_at FROM conversation_participants WHERE conversation_id = ? AND user_id = ?`,
		c.ID, userID).Scan(&lastRead); err != nil {
		return fmt.Errorf("load read marker: %w", err)
	}
	query := `SELECT COUNT(*) FROM messages WHERE conversation_id = ? AND sender_id <> ? AND is_deleted = ?`
	args := []any{c.ID, userID, false}
	if lastRead.Valid {
		query += ` AND sent_at > ?`
		args = append(args, lastRead.Time)
	}
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&c.UnreadCount); err != nil {
		return fmt.Errorf("count unread messages: %w", err)
	}
	return nil
}

const messageQuery = `SELECT m.id, m.conversation_id, m.sender_id, u.username, u.display_name,
	m.content, m.type, m.sent_at, m.is_edited, m.is_deleted
	FROM messages m JOIN users u ON u.id = m.sender_id`

type scanner interface {
	Scan(dest ...any) error
}

func scanMessage(row scanner) (*models.Message, error) {
	var (
		m   models.Message
		typ string
	)
	err := row.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.SenderUsername, &m.SenderDisplayName,
		&m.Content, &typ, &m.SentAt, &m.IsEdited, &m.IsDeleted)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan message: %w", err)
	}
	m.Type = models.MessageType(typ)
	return &m, nil
}

func scanConversation(row scanner) (*models.Conversation, error) {
	var (
		c       models.Conversation
		lastMsg sql.NullTime
	)
	if err := row.Scan(&c.ID, &c.Name, &c.IsGroup, &c.CreatedAt, &lastMsg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan conversation: %w", err)
	}
	if lastMsg.Valid {
		t := lastMsg.Time
		c.LastMessageAt = &t
	}
	return &c, nil
}
