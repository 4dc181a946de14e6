package router

import (
	"testing"

	"github.com/stretchr/testify/require"

	"festival-bot/internal/domain"
)

func mustRouter(t *testing.T) *Router {
	t.Helper()
	r, err := New(DefaultContent())
	require.NoError(t, err)
	return r
}

func message(text string) domain.Activity {
	return domain.Activity{
		Type:         domain.ActivityMessage,
		ChannelID:    "webchat",
		Conversation: "conv-1",
		Text:         text,
		From:         domain.Member{ID: "user-1", Name: "Ann"},
		Recipient:    domain.Member{ID: "bot1", Name: "festival-bot"},
	}
}

func membersAdded(members ...domain.Member) domain.Activity {
	a := message("")
	a.Type = domain.ActivityConversationUpdate
	a.MembersAdded = members
	return a
}

func menuAction() domain.Action {
	return domain.SendChoices(DefaultWelcomeQuestion, DefaultOptions)
}

func TestNew_ValidatesContent(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Content)
		want   string
	}{
		{name: "empty message", mutate: func(c *Content) { c.WelcomeMessage = " " }, want: "welcome message"},
		{name: "empty question", mutate: func(c *Content) { c.WelcomeQuestion = "" }, want: "welcome question"},
		{name: "no options", mutate: func(c *Content) { c.Options = nil }, want: "at least one option"},
		{name: "empty value", mutate: func(c *Content) { c.Options[0].Value = "" }, want: "must not be empty"},
		{name: "duplicate value", mutate: func(c *Content) { c.Options[1].Value = c.Options[0].Value }, want: "duplicate option"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := DefaultContent()
			tc.mutate(&c)
			_, err := New(c)
			require.ErrorContains(t, err, tc.want)
		})
	}
}

func TestHandleTurn_FirstMessageWelcomes(t *testing.T) {
	r := mustRouter(t)

	state, actions := r.HandleTurn(message("hi"), domain.WelcomeState{})
	require.True(t, state.HasWelcomed)
	require.Equal(t, []domain.Action{
		domain.SendText("Welcome Ann - ID=bot1."),
		domain.SendText(DefaultWelcomeMessage),
		menuAction(),
	}, actions)
}

func TestHandleTurn_KnownChoice(t *testing.T) {
	r := mustRouter(t)
	for _, opt := range DefaultOptions {
		t.Run(opt.Value, func(t *testing.T) {
			state, actions := r.HandleTurn(message(opt.Value), domain.WelcomeState{HasWelcomed: true})
			require.True(t, state.HasWelcomed)
			require.Equal(t, []domain.Action{domain.SendText("You said " + opt.Value)}, actions)
		})
	}
}

func TestHandleTurn_UnknownChoice(t *testing.T) {
	r := mustRouter(t)
	for _, text := range []string{"Xyz", "faqs", "FAQs ", ""} {
		state, actions := r.HandleTurn(message(text), domain.WelcomeState{HasWelcomed: true})
		require.True(t, state.HasWelcomed)
		require.Equal(t, []domain.Action{domain.SendText("Unexpected choice."), menuAction()}, actions, "text=%q", text)
		require.Equal(t, []domain.Choice{
			{Label: "FAQs", Value: "FAQs"},
			{Label: "Band Search", Value: "Band Search"},
			{Label: "Navigate", Value: "Navigate"},
		}, actions[1].Choices)
	}
}

func TestHandleTurn_MembersAddedSkipsBot(t *testing.T) {
	r := mustRouter(t)
	a := membersAdded(domain.Member{ID: "bot1", Name: "festival-bot"}, domain.Member{ID: "userA", Name: "Alex"})

	state, actions := r.HandleTurn(a, domain.WelcomeState{})
	require.True(t, state.HasWelcomed)
	require.Len(t, actions, 3)
	require.Equal(t, domain.SendText("Welcome Ann - ID=bot1."), actions[0])
	require.Equal(t, menuAction(), actions[2])
}

func TestHandleTurn_MembersAddedGreetsWithSenderName(t *testing.T) {
	r := mustRouter(t)
	_, actions := r.HandleTurn(membersAdded(domain.Member{ID: "userA", Name: "Alex"}), domain.WelcomeState{})
	require.Equal(t, domain.SendText("Welcome Ann - ID=bot1."), actions[0])
}

func TestHandleTurn_MembersAddedWelcomesOncePerActivity(t *testing.T) {
	r := mustRouter(t)
	a := membersAdded(domain.Member{ID: "userA"}, domain.Member{ID: "userB"})

	_, actions := r.HandleTurn(a, domain.WelcomeState{})
	require.Len(t, actions, 3)
}

func TestHandleTurn_MembersAddedOnlyBot(t *testing.T) {
	r := mustRouter(t)
	state, actions := r.HandleTurn(membersAdded(domain.Member{ID: "bot1"}), domain.WelcomeState{})
	require.False(t, state.HasWelcomed)
	require.Empty(t, actions)
}

func TestHandleTurn_MembersAddedMissingIsNoop(t *testing.T) {
	r := mustRouter(t)
	state, actions := r.HandleTurn(membersAdded(), domain.WelcomeState{})
	require.False(t, state.HasWelcomed)
	require.Empty(t, actions)

	a := membersAdded()
	a.MembersAdded = nil
	state, actions = r.HandleTurn(a, domain.WelcomeState{})
	require.False(t, state.HasWelcomed)
	require.Empty(t, actions)
}

func TestHandleTurn_MembersAddedAfterWelcomeIsNoop(t *testing.T) {
	r := mustRouter(t)
	state, actions := r.HandleTurn(membersAdded(domain.Member{ID: "userA"}), domain.WelcomeState{HasWelcomed: true})
	require.True(t, state.HasWelcomed)
	require.Empty(t, actions)
}

func TestHandleTurn_OtherTypesIgnored(t *testing.T) {
	r := mustRouter(t)
	a := message("FAQs")
	a.Type = domain.ActivityOther

	for _, s := range []domain.WelcomeState{{}, {HasWelcomed: true}} {
		state, actions := r.HandleTurn(a, s)
		require.Equal(t, s, state)
		require.Empty(t, actions)
	}
}

func TestHandleTurn_Deterministic(t *testing.T) {
	r := mustRouter(t)
	inputs := []struct {
		a domain.Activity
		s domain.WelcomeState
	}{
		{message("hi"), domain.WelcomeState{}},
		{message("Navigate"), domain.WelcomeState{HasWelcomed: true}},
		{message("nope"), domain.WelcomeState{HasWelcomed: true}},
		{membersAdded(domain.Member{ID: "bot1"}, domain.Member{ID: "u"}), domain.WelcomeState{}},
	}
	for _, in := range inputs {
		s1, a1 := r.HandleTurn(in.a, in.s)
		s2, a2 := r.HandleTurn(in.a, in.s)
		require.Equal(t, s1, s2)
		require.Equal(t, a1, a2)
	}
}

func TestHandleTurn_WelcomeTransitionsAtMostOnce(t *testing.T) {
	r := mustRouter(t)
	turns := []domain.Activity{
		membersAdded(domain.Member{ID: "bot1"}),
		message("hello"),
		membersAdded(domain.Member{ID: "userA"}),
		message("hello again"),
		message("FAQs"),
		membersAdded(domain.Member{ID: "userB"}),
	}

	var state domain.WelcomeState
	transitions := 0
	for _, a := range turns {
		next, _ := r.HandleTurn(a, state)
		if !state.HasWelcomed && next.HasWelcomed {
			transitions++
		}
		state = next
	}
	require.Equal(t, 1, transitions)
}

func TestHandleTurn_ReturnedChoicesAreIsolated(t *testing.T) {
	r := mustRouter(t)
	_, actions := r.HandleTurn(message("x"), domain.WelcomeState{HasWelcomed: true})
	actions[1].Choices[0].Value = "tampered"

	_, again := r.HandleTurn(message("FAQs"), domain.WelcomeState{HasWelcomed: true})
	require.Equal(t, []domain.Action{domain.SendText("You said FAQs")}, again)
}
