package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/studydesk/classfeed/internal/model"
)

// ErrNotFound is returned when a message does not exist.
var ErrNotFound = errors.New("message not found")

// Store reads and writes the messages table.
type Store struct {
	db     *pgxpool.Pool
	logger *slog.Logger
}

// New creates a Store on an existing pool.
func New(db *pgxpool.Pool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}
}

// Create inserts a new message. CreatedAt/UpdatedAt are set here if zero.
func (s *Store) Create(ctx context.Context, msg *model.Message) error {
	now := time.Now().UnixMicro()
	if msg.CreatedAt == 0 {
		msg.CreatedAt = now
	}
	if msg.UpdatedAt == 0 {
		msg.UpdatedAt = msg.CreatedAt
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO messages (id, room_key, author_id, content, file_url, deleted, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING
	`, msg.ID, msg.Room.String(), msg.AuthorID, msg.Content, msg.FileURL, msg.Deleted, msg.CreatedAt, msg.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// Update replaces a message's content in place.
func (s *Store) Update(ctx context.Context, id uuid.UUID, content string) (*model.Message, error) {
	row := s.db.QueryRow(ctx, `
		UPDATE messages
		SET content = $2, updated_at = $3
		WHERE id = $1 AND NOT deleted
		RETURNING id, room_key, author_id, content, file_url, deleted, created_at, updated_at
	`, id, content, time.Now().UnixMicro())

	msg, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("update message: %w", err)
	}
	return msg, nil
}

// SoftDelete tombstones a message: the row stays, content and file are
// cleared, and the deleted flag is set.
func (s *Store) SoftDelete(ctx context.Context, id uuid.UUID) (*model.Message, error) {
	row := s.db.QueryRow(ctx, `
		UPDATE messages
		SET content = 'This message has been deleted', file_url = '', deleted = TRUE, updated_at = $2
		WHERE id = $1
		RETURNING id, room_key, author_id, content, file_url, deleted, created_at, updated_at
	`, id, time.Now().UnixMicro())

	msg, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("soft delete message: %w", err)
	}
	return msg, nil
}

// Delete removes a message row entirely and returns the removed message so
// the caller can broadcast its removal.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) (*model.Message, error) {
	row := s.db.QueryRow(ctx, `
		DELETE FROM messages
		WHERE id = $1
		RETURNING id, room_key, author_id, content, file_url, deleted, created_at, updated_at
	`, id)

	msg, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("delete message: %w", err)
	}
	return msg, nil
}

// ListPage returns one page of a room's messages, newest first. An empty
// cursor starts from the head. The returned next cursor is empty once the
// history is exhausted.
func (s *Store) ListPage(ctx context.Context, room model.RoomKey, cursorToken string, limit int) (model.Page, error) {
	var (
		rows pgx.Rows
		err  error
	)

	// Fetch one extra row to learn whether more history exists.
	if cursorToken == "" {
		rows, err = s.db.Query(ctx, `
			SELECT id, room_key, author_id, content, file_url, deleted, created_at, updated_at
			FROM messages
			WHERE room_key = $1
			ORDER BY created_at DESC, id DESC
			LIMIT $2
		`, room.String(), limit+1)
	} else {
		createdAt, id, cerr := DecodeCursor(cursorToken)
		if cerr != nil {
			return model.Page{}, cerr
		}
		rows, err = s.db.Query(ctx, `
			SELECT id, room_key, author_id, content, file_url, deleted, created_at, updated_at
			FROM messages
			WHERE room_key = $1 AND (created_at, id) < ($2, $3)
			ORDER BY created_at DESC, id DESC
			LIMIT $4
		`, room.String(), createdAt, id, limit+1)
	}
	if err != nil {
		return model.Page{}, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var messages []model.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return model.Page{}, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, *msg)
	}
	if err := rows.Err(); err != nil {
		return model.Page{}, fmt.Errorf("list messages: %w", err)
	}

	page := model.Page{Messages: messages}
	if len(messages) > limit {
		page.Messages = messages[:limit]
		last := page.Messages[limit-1]
		page.NextCursor = EncodeCursor(last.CreatedAt, last.ID)
	}
	return page, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (*model.Message, error) {
	var (
		msg     model.Message
		roomKey string
	)
	if err := row.Scan(&msg.ID, &roomKey, &msg.AuthorID, &msg.Content, &msg.FileURL,
		&msg.Deleted, &msg.CreatedAt, &msg.UpdatedAt); err != nil {
		return nil, err
	}

	room, err := model.ParseRoomKey(roomKey)
	if err != nil {
		return nil, err
	}
	msg.Room = room
	return &msg, nil
}
