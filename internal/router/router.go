// Package router decides, for one inbound activity and the conversation's
// welcome state, which replies to send and what state to persist. It performs
// no I/O.
package router

import (
	"errors"
	"fmt"
	"strings"

	"festival-bot/internal/domain"
)

const (
	DefaultWelcomeMessage  = "Hey there! I'm your ASH Music Festival bot. I'm here to guide you around the festival!"
	DefaultWelcomeQuestion = "How would you like to explore the event?"

	unexpectedChoice = "Unexpected choice."
)

// DefaultOptions is the welcome menu. Matching against it is exact and case
// sensitive.
var DefaultOptions = []domain.Choice{
	{Label: "FAQs", Value: "FAQs"},
	{Label: "Band Search", Value: "Band Search"},
	{Label: "Navigate", Value: "Navigate"},
}

// Content is the reply copy the router emits.
type Content struct {
	WelcomeMessage  string
	WelcomeQuestion string
	Options         []domain.Choice
}

// DefaultContent returns the built-in copy.
func DefaultContent() Content {
	opts := make([]domain.Choice, len(DefaultOptions))
	copy(opts, DefaultOptions)
	return Content{
		WelcomeMessage:  DefaultWelcomeMessage,
		WelcomeQuestion: DefaultWelcomeQuestion,
		Options:         opts,
	}
}

type Router struct {
	content Content
	known   map[string]struct{}
}

func New(c Content) (*Router, error) {
	if strings.TrimSpace(c.WelcomeMessage) == "" {
		return nil, errors.New("router: welcome message must not be empty")
	}
	if strings.TrimSpace(c.WelcomeQuestion) == "" {
		return nil, errors.New("router: welcome question must not be empty")
	}
	if len(c.Options) == 0 {
		return nil, errors.New("router: at least one option is required")
	}
	known := make(map[string]struct{}, len(c.Options))
	for _, o := range c.Options {
		if o.Value == "" || o.Label == "" {
			return nil, errors.New("router: option label and value must not be empty")
		}
		if _, dup := known[o.Value]; dup {
			return nil, fmt.Errorf("router: duplicate option value %q", o.Value)
		}
		known[o.Value] = struct{}{}
	}
	opts := make([]domain.Choice, len(c.Options))
	copy(opts, c.Options)
	c.Options = opts
	return &Router{content: c, known: known}, nil
}

// HandleTurn returns the state to persist and the ordered replies for one
// activity. It is total: malformed and unhandled activities yield the input
// state and no actions.
func (r *Router) HandleTurn(a domain.Activity, s domain.WelcomeState) (domain.WelcomeState, []domain.Action) {
	switch a.Type {
	case domain.ActivityConversationUpdate:
		return r.onMembersAdded(a, s)
	case domain.ActivityMessage:
		return r.onMessage(a, s)
	default:
		return s, nil
	}
}

func (r *Router) onMembersAdded(a domain.Activity, s domain.WelcomeState) (domain.WelcomeState, []domain.Action) {
	if s.HasWelcomed {
		return s, nil
	}
	// nil MembersAdded falls through the loop as a no-op.
	for _, m := range a.MembersAdded {
		if m.ID == a.Recipient.ID {
			continue
		}
		s.HasWelcomed = true
		return s, r.welcome(a.From.Name, a.Recipient.ID)
	}
	return s, nil
}

func (r *Router) onMessage(a domain.Activity, s domain.WelcomeState) (domain.WelcomeState, []domain.Action) {
	if !s.HasWelcomed {
		s.HasWelcomed = true
		return s, r.welcome(a.From.Name, a.Recipient.ID)
	}
	if _, ok := r.known[a.Text]; ok {
		return s, []domain.Action{domain.SendText("You said " + a.Text)}
	}
	return s, []domain.Action{
		domain.SendText(unexpectedChoice),
		r.menu(),
	}
}

func (r *Router) welcome(name, recipientID string) []domain.Action {
	return []domain.Action{
		domain.SendText(fmt.Sprintf("Welcome %s - ID=%s.", name, recipientID)),
		domain.SendText(r.content.WelcomeMessage),
		r.menu(),
	}
}

func (r *Router) menu() domain.Action {
	return domain.SendChoices(r.content.WelcomeQuestion, r.content.Options)
}
