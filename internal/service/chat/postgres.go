package chat

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	migrate "github.com/rubenv/sql-migrate"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/zhouzirui/scene-studio/backend/internal/model/chat"
)

//go:embed migrations/*.sql
var migrations embed.FS

// OpenPostgres opens a pooled connection using the pgdriver connector.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// Migrate applies the embedded schema migrations and returns how many ran.
func Migrate(ctx context.Context, db *sql.DB, dir migrate.MigrationDirection) (int, error) {
	source := migrate.EmbedFileSystemMigrationSource{FileSystem: migrations, Root: "migrations"}
	n, err := migrate.ExecContext(ctx, db, "postgres", source, dir)
	if err != nil {
		return n, fmt.Errorf("run migrations: %w", err)
	}
	return n, nil
}

// PostgresStore keeps conversations in PostgreSQL. The schema comes from Migrate.
type PostgresStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (s *PostgresStore) CreateConversation(ctx context.Context, userID, toolID, title string) (string, error) {
	if toolID == "" {
		return "", ErrToolRequired
	}
	id := uuid.NewString()
	now := s.now()
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO conversations (id, user_id, tool_id, title, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $5)
    `, id, userID, toolID, title, now)
	if err != nil {
		return "", fmt.Errorf("insert conversation: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) GetConversation(ctx context.Context, conversationID string) (chat.Conversation, error) {
	row := s.db.QueryRowContext(ctx, `
        SELECT id, user_id, tool_id, title, created_at, updated_at
        FROM conversations
        WHERE id = $1
    `, conversationID)

	conv, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return chat.Conversation{}, ErrConversationNotFound
	}
	return conv, err
}

func (s *PostgresStore) ListConversations(ctx context.Context, userID string) ([]chat.Conversation, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, user_id, tool_id, title, created_at, updated_at
        FROM conversations
        WHERE user_id = $1
        ORDER BY updated_at DESC
    `, userID)
	if err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}
	defer rows.Close()

	out := make([]chat.Conversation, 0)
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, conv)
	}
	return out, rows.Err()
}

func (s *PostgresStore) TouchConversation(ctx context.Context, conversationID string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE conversations SET updated_at = $2 WHERE id = $1`, conversationID, s.now())
	if err != nil {
		return fmt.Errorf("touch conversation: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrConversationNotFound
	}
	return nil
}

func (s *PostgresStore) ListTurns(ctx context.Context, conversationID string) ([]chat.Turn, error) {
	if _, err := s.GetConversation(ctx, conversationID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
        SELECT id, conversation_id, role, text, attachments, created_at
        FROM turns
        WHERE conversation_id = $1
        ORDER BY created_at, seq
    `, conversationID)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	defer rows.Close()

	turns := make([]chat.Turn, 0, 16)
	for rows.Next() {
		var (
			turn        chat.Turn
			role        string
			attachments sql.NullString
		)
		if err := rows.Scan(&turn.ID, &turn.ConversationID, &role, &turn.Text, &attachments, &turn.CreatedAt); err != nil {
			return nil, err
		}
		turn.Role = chat.Role(role)
		if attachments.Valid && attachments.String != "" {
			turn.AttachmentsRaw = json.RawMessage(attachments.String)
		}
		turns = append(turns, turn)
	}
	return turns, rows.Err()
}

func (s *PostgresStore) AppendTurn(ctx context.Context, conversationID string, turn chat.Turn) (chat.Turn, error) {
	turn.ID = uuid.NewString()
	turn.ConversationID = conversationID
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = s.now()
	}

	var attachments sql.NullString
	if turn.HasAttachments() {
		attachments = sql.NullString{String: string(turn.AttachmentsRaw), Valid: true}
	}

	res, err := s.db.ExecContext(ctx, `
        INSERT INTO turns (id, conversation_id, role, text, attachments, created_at)
        SELECT $1, id, $3, $4, $5, $6 FROM conversations WHERE id = $2
    `, turn.ID, conversationID, string(turn.Role), turn.Text, attachments, turn.CreatedAt)
	if err != nil {
		return chat.Turn{}, fmt.Errorf("insert turn: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return chat.Turn{}, ErrConversationNotFound
	}
	return turn, nil
}

func (s *PostgresStore) RecordAudit(ctx context.Context, entry chat.AuditEntry) error {
	entry.ID = uuid.NewString()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO audit_log (id, user_id, action, detail, ip, user_agent, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
    `, entry.ID, entry.UserID, entry.Action, entry.Detail, entry.IP, entry.UserAgent, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (chat.Conversation, error) {
	var conv chat.Conversation
	err := row.Scan(&conv.ID, &conv.UserID, &conv.ToolID, &conv.Title, &conv.CreatedAt, &conv.UpdatedAt)
	return conv, err
}

var _ Store = (*PostgresStore)(nil)
