package connector

import "festival-bot/internal/domain"

const (
	TypeMessage = "message"

	DeliveryExpectReplies = "expectReplies"

	actionImBack = "imBack"
)

type ChannelAccount struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

type ConversationAccount struct {
	ID      string `json:"id"`
	Name    string `json:"name,omitempty"`
	IsGroup bool   `json:"isGroup,omitempty"`
}

// CardAction is one suggested action button. With type imBack the channel
// posts Value back as the text of the next message.
type CardAction struct {
	Type  string `json:"type"`
	Title string `json:"title"`
	Value string `json:"value"`
}

type SuggestedActions struct {
	To      []string     `json:"to,omitempty"`
	Actions []CardAction `json:"actions"`
}

// Activity is the channel wire shape for both inbound and outbound activities.
type Activity struct {
	Type             string               `json:"type"`
	ID               string               `json:"id,omitempty"`
	Timestamp        string               `json:"timestamp,omitempty"`
	ServiceURL       string               `json:"serviceUrl,omitempty"`
	ChannelID        string               `json:"channelId,omitempty"`
	From             *ChannelAccount      `json:"from,omitempty"`
	Recipient        *ChannelAccount      `json:"recipient,omitempty"`
	Conversation     *ConversationAccount `json:"conversation,omitempty"`
	MembersAdded     []ChannelAccount     `json:"membersAdded,omitempty"`
	Text             string               `json:"text,omitempty"`
	InputHint        string               `json:"inputHint,omitempty"`
	ReplyToID        string               `json:"replyToId,omitempty"`
	DeliveryMode     string               `json:"deliveryMode,omitempty"`
	SuggestedActions *SuggestedActions    `json:"suggestedActions,omitempty"`
}

// ToDomain converts an inbound wire activity. Absent accounts become empty
// members; absent membersAdded stays nil.
func (a Activity) ToDomain() domain.Activity {
	out := domain.Activity{
		Type:      domain.ParseActivityType(a.Type),
		ChannelID: a.ChannelID,
		Text:      a.Text,
		From:      member(a.From),
		Recipient: member(a.Recipient),
	}
	if a.Conversation != nil {
		out.Conversation = a.Conversation.ID
	}
	if a.MembersAdded != nil {
		out.MembersAdded = make([]domain.Member, 0, len(a.MembersAdded))
		for i := range a.MembersAdded {
			out.MembersAdded = append(out.MembersAdded, member(&a.MembersAdded[i]))
		}
	}
	return out
}

// NewReply renders action as a reply to in, addressed back to its sender.
func NewReply(in Activity, action domain.Action) Activity {
	reply := Activity{
		Type:         TypeMessage,
		ServiceURL:   in.ServiceURL,
		ChannelID:    in.ChannelID,
		From:         in.Recipient,
		Recipient:    in.From,
		Conversation: in.Conversation,
		ReplyToID:    in.ID,
		Text:         action.Text,
		InputHint:    "acceptingInput",
	}
	if action.Kind == domain.ActionSendChoices {
		sa := &SuggestedActions{Actions: make([]CardAction, 0, len(action.Choices))}
		if in.From != nil && in.From.ID != "" {
			sa.To = []string{in.From.ID}
		}
		for _, c := range action.Choices {
			sa.Actions = append(sa.Actions, CardAction{Type: actionImBack, Title: c.Label, Value: c.Value})
		}
		reply.SuggestedActions = sa
		reply.InputHint = "expectingInput"
	}
	return reply
}

func member(a *ChannelAccount) domain.Member {
	if a == nil {
		return domain.Member{}
	}
	return domain.Member{ID: a.ID, Name: a.Name}
}
