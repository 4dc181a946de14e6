package domain

import (
	"errors"
	"strings"
)

// ConversationIdentity addresses one state document. UserID is optional.
type ConversationIdentity struct {
	ChannelID      string
	ConversationID string
	UserID         string
}

// Validate reports whether the identity carries the fields required to
// address a document.
func (id ConversationIdentity) Validate() error {
	if strings.TrimSpace(id.ChannelID) == "" {
		return errors.New("domain: channel id is required")
	}
	if strings.TrimSpace(id.ConversationID) == "" {
		return errors.New("domain: conversation id is required")
	}
	return nil
}

// String serializes the identity as a storage path segment.
func (id ConversationIdentity) String() string {
	var b strings.Builder
	b.WriteString(id.ChannelID)
	b.WriteString("/conversations/")
	b.WriteString(id.ConversationID)
	if id.UserID != "" {
		b.WriteString("/users/")
		b.WriteString(id.UserID)
	}
	return b.String()
}
