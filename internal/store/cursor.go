package store

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// ErrBadCursor is returned when a cursor token cannot be decoded.
var ErrBadCursor = errors.New("malformed cursor")

// EncodeCursor produces the opaque token for a (createdAt, id) position: the
// oldest row of the page that produced it. The next page contains rows
// strictly older than that position, which keeps pagination stable while new
// messages are written at the head.
func EncodeCursor(createdAt int64, id uuid.UUID) string {
	raw := fmt.Sprintf("%d:%s", createdAt, id)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor parses an opaque token. Clients must treat tokens as opaque;
// any token not produced by EncodeCursor fails with ErrBadCursor.
func DecodeCursor(token string) (createdAt int64, id uuid.UUID, err error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return 0, uuid.Nil, fmt.Errorf("%w: %v", ErrBadCursor, err)
	}

	tsPart, idPart, ok := strings.Cut(string(raw), ":")
	if !ok {
		return 0, uuid.Nil, ErrBadCursor
	}

	createdAt, err = strconv.ParseInt(tsPart, 10, 64)
	if err != nil {
		return 0, uuid.Nil, fmt.Errorf("%w: %v", ErrBadCursor, err)
	}

	id, err = uuid.Parse(idPart)
	if err != nil {
		return 0, uuid.Nil, fmt.Errorf("%w: %v", ErrBadCursor, err)
	}

	return createdAt, id, nil
}
