package domain

import "strings"

// ActivityType is the channel-independent kind of an inbound activity.
type ActivityType string

const (
	ActivityMessage            ActivityType = "message"
	ActivityConversationUpdate ActivityType = "conversationUpdate"
	ActivityOther              ActivityType = "other"
)

// ParseActivityType maps a channel type string onto the known activity types.
// Anything unrecognized is ActivityOther.
func ParseActivityType(s string) ActivityType {
	switch strings.TrimSpace(s) {
	case string(ActivityMessage):
		return ActivityMessage
	case string(ActivityConversationUpdate):
		return ActivityConversationUpdate
	default:
		return ActivityOther
	}
}

// Member is a participant reference carried on an activity.
type Member struct {
	ID   string
	Name string
}

// Activity is one inbound event delivered by a channel.
type Activity struct {
	Type         ActivityType
	ChannelID    string
	Conversation string
	Text         string
	From         Member
	Recipient    Member
	// MembersAdded is nil when the channel did not send the field.
	MembersAdded []Member
}

// Identity returns the key under which this activity's state lives.
func (a Activity) Identity() ConversationIdentity {
	return ConversationIdentity{
		ChannelID:      a.ChannelID,
		ConversationID: a.Conversation,
		UserID:         a.From.ID,
	}
}
