// Package pagination implements keyset paging over (created_at DESC, id DESC).
package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultLimit = 25
	MaxLimit     = 100
)

var ErrBadCursor = errors.New("malformed cursor")

// Params is one page request. Cursor is the opaque token from the previous page.
type Params struct {
	Limit  int
	Cursor string
}

// PageSize clamps Limit into [1, MaxLimit], using DefaultLimit when unset.
func (p Params) PageSize() int {
	switch {
	case p.Limit <= 0:
		return DefaultLimit
	case p.Limit > MaxLimit:
		return MaxLimit
	default:
		return p.Limit
	}
}

// FetchSize asks for one extra row so callers can tell whether another page exists.
func (p Params) FetchSize() int {
	return p.PageSize() + 1
}

// After decodes Cursor. A blank cursor means the first page and yields nil.
func (p Params) After() (*Cursor, error) {
	raw := strings.TrimSpace(p.Cursor)
	if raw == "" {
		return nil, nil
	}
	data, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadCursor, err)
	}
	var c Cursor
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadCursor, err)
	}
	if c.CreatedAt.IsZero() || c.ID == uuid.Nil {
		return nil, ErrBadCursor
	}
	return &c, nil
}

// Cursor is the last row of the previous page.
type Cursor struct {
	CreatedAt time.Time `json:"t"`
	ID        uuid.UUID `json:"id"`
}

func (c Cursor) Encode() string {
	c.CreatedAt = c.CreatedAt.UTC()
	data, _ := json.Marshal(c)
	return base64.RawURLEncoding.EncodeToString(data)
}

// Cut trims rows fetched with FetchSize to the page and reports whether more remain.
func Cut[T any](rows []T, p Params) ([]T, bool) {
	size := p.PageSize()
	if len(rows) > size {
		return rows[:size], true
	}
	return rows, false
}
