package utils

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// UserCursor marks the last row of a page in (created_at DESC, id DESC) order.
type UserCursor struct {
	CreatedAt time.Time `json:"createdAt"`
	ID        string    `json:"id"`
}

func EncodeUserCursor(createdAt time.Time, id string) (string, error) {
	b, err := json.Marshal(UserCursor{CreatedAt: createdAt, ID: id})
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func DecodeUserCursor(cursor string) (UserCursor, error) {
	if cursor == "" {
		return UserCursor{}, errors.New("empty cursor")
	}

	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return UserCursor{}, err
	}

	var c UserCursor
	if err := json.Unmarshal(raw, &c); err != nil {
		return UserCursor{}, err
	}
	if c.ID == "" || c.CreatedAt.IsZero() {
		return UserCursor{}, errors.New("invalid cursor payload")
	}
	return c, nil
}

// FirstPage is the DESC keyset sentinel: later than any row, max UUID.
func FirstPage() UserCursor {
	return UserCursor{
		CreatedAt: time.Date(9999, 12, 31, 23, 59, 59, 0, time.UTC),
		ID:        "ffffffff-ffff-ffff-ffff-ffffffffffff",
	}
}

func IsUUID(s string) bool {
	return uuid.Validate(s) == nil
}
