package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const ChannelMessenger = "messenger"

var ErrInvalidConversationKey = errors.New("invalid conversation key")

// ConversationKey identifies one customer thread inside one tenant. Its string
// form is the scheduler's queue key.
type ConversationKey struct {
	CompanyID int64
	Channel   string
	SenderID  string
}

func (k ConversationKey) String() string {
	return fmt.Sprintf("%d:%s:%s", k.CompanyID, k.Channel, k.SenderID)
}

// ParseConversationKey reverses String. The sender ID is the remainder after
// the second colon and may itself contain colons.
func ParseConversationKey(s string) (ConversationKey, error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) != 3 {
		return ConversationKey{}, fmt.Errorf("%w: %q", ErrInvalidConversationKey, s)
	}

	companyID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || companyID <= 0 {
		return ConversationKey{}, fmt.Errorf("%w: bad company id in %q", ErrInvalidConversationKey, s)
	}
	if parts[1] == "" || parts[2] == "" {
		return ConversationKey{}, fmt.Errorf("%w: %q", ErrInvalidConversationKey, s)
	}

	return ConversationKey{
		CompanyID: companyID,
		Channel:   parts[1],
		SenderID:  parts[2],
	}, nil
}
