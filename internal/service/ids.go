package service

import (
	"strconv"
	"strings"
	"time"

	"github.com/damoang/coinchat/internal/common"
	"github.com/google/uuid"
)

// Clock returns the current time. Services take one so windows can be tested.
type Clock func() time.Time

// SystemClock UTC wall clock
func SystemClock() time.Time { return time.Now().UTC() }

// ValidateUserID user ids are UUIDs issued by the identity provider.
func ValidateUserID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return common.NewValidationError("Invalid user id")
	}
	return nil
}

// ParseConversationID conversation ids are positive integers.
func ParseConversationID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, common.NewValidationError("Invalid conversation id")
	}
	return id, nil
}

// clampPage applies page >= 1 and 1 <= limit <= max, falling back to def for non-positive limits.
func clampPage(page, limit, def, max int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = def
	}
	if limit > max {
		limit = max
	}
	return page, limit
}
