package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/require"

	"festival-bot/internal/domain"
	"festival-bot/internal/integrations/connector"
	"festival-bot/internal/usecase"
)

type stubTurns struct {
	out usecase.TurnOutput
	err error
	in  domain.Activity
}

func (s *stubTurns) ProcessTurn(_ context.Context, a domain.Activity) (usecase.TurnOutput, error) {
	s.in = a
	return s.out, s.err
}

type stubSender struct {
	sent   []connector.Activity
	failAt int // 1-based; 0 never fails
}

func (s *stubSender) SendActivity(_ context.Context, reply connector.Activity) error {
	s.sent = append(s.sent, reply)
	if s.failAt > 0 && len(s.sent) == s.failAt {
		return &connector.HTTPStatusError{StatusCode: http.StatusServiceUnavailable, Body: "unavailable"}
	}
	return nil
}

const messageBody = `{
	"type": "message",
	"id": "act-1",
	"serviceUrl": "https://smba.example.net/emea",
	"channelId": "webchat",
	"from": {"id": "user-1", "name": "Ann"},
	"recipient": {"id": "bot1", "name": "festival-bot"},
	"conversation": {"id": "conv-1"},
	"text": "FAQs"
}`

func makeEvent(body string) events.APIGatewayProxyRequest {
	return events.APIGatewayProxyRequest{
		HTTPMethod: http.MethodPost,
		Path:       "/api/messages",
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       body,
	}
}

func parseBody[T any](t *testing.T, body string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(body), &v))
	return v
}

func welcomeOutput() usecase.TurnOutput {
	return usecase.TurnOutput{
		Welcomed: true,
		Actions: []domain.Action{
			domain.SendText("Welcome Ann - ID=bot1."),
			domain.SendChoices("How would you like to explore the event?", []domain.Choice{{Label: "FAQs", Value: "FAQs"}}),
		},
	}
}

func TestNewHandler_ValidatesDependencies(t *testing.T) {
	_, err := NewHandler(nil, &stubSender{}, nil)
	require.Error(t, err)
	_, err = NewHandler(&stubTurns{}, nil, nil)
	require.Error(t, err)
}

func TestHandle_SendsRepliesInOrder(t *testing.T) {
	turns := &stubTurns{out: welcomeOutput()}
	sender := &stubSender{}
	h, err := NewHandler(turns, sender, nil)
	require.NoError(t, err)

	resp, err := h.Handle(context.Background(), makeEvent(messageBody))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.JSONEq(t, `{}`, resp.Body)
	require.NotEmpty(t, resp.Headers["X-Correlation-Id"])

	require.Equal(t, domain.Activity{
		Type:         domain.ActivityMessage,
		ChannelID:    "webchat",
		Conversation: "conv-1",
		Text:         "FAQs",
		From:         domain.Member{ID: "user-1", Name: "Ann"},
		Recipient:    domain.Member{ID: "bot1", Name: "festival-bot"},
	}, turns.in)

	require.Len(t, sender.sent, 2)
	require.Equal(t, "Welcome Ann - ID=bot1.", sender.sent[0].Text)
	require.Equal(t, "act-1", sender.sent[0].ReplyToID)
	require.Equal(t, "user-1", sender.sent[0].Recipient.ID)
	require.Nil(t, sender.sent[0].SuggestedActions)
	require.NotNil(t, sender.sent[1].SuggestedActions)
	require.Equal(t, "FAQs", sender.sent[1].SuggestedActions.Actions[0].Value)
}

func TestHandle_ExpectRepliesReturnsActivities(t *testing.T) {
	turns := &stubTurns{out: welcomeOutput()}
	sender := &stubSender{}
	h, err := NewHandler(turns, sender, nil)
	require.NoError(t, err)

	var in map[string]any
	require.NoError(t, json.Unmarshal([]byte(messageBody), &in))
	in["deliveryMode"] = "expectReplies"
	body, err := json.Marshal(in)
	require.NoError(t, err)

	resp, err := h.Handle(context.Background(), makeEvent(string(body)))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Empty(t, sender.sent)

	out := parseBody[repliesResponse](t, resp.Body)
	require.Len(t, out.Activities, 2)
	require.Equal(t, "Welcome Ann - ID=bot1.", out.Activities[0].Text)
}

func TestHandle_NoActions(t *testing.T) {
	sender := &stubSender{}
	h, err := NewHandler(&stubTurns{}, sender, nil)
	require.NoError(t, err)

	resp, err := h.Handle(context.Background(), makeEvent(messageBody))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Empty(t, sender.sent)
}

func TestHandle_Base64Body(t *testing.T) {
	turns := &stubTurns{}
	h, err := NewHandler(turns, &stubSender{}, nil)
	require.NoError(t, err)

	event := makeEvent(base64.StdEncoding.EncodeToString([]byte(messageBody)))
	event.IsBase64Encoded = true
	resp, err := h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "FAQs", turns.in.Text)
}

func TestHandle_InvalidBody(t *testing.T) {
	turns := &stubTurns{}
	h, err := NewHandler(turns, &stubSender{}, nil)
	require.NoError(t, err)

	resp, err := h.Handle(context.Background(), makeEvent(`not-json`))
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	out := parseBody[errorResponse](t, resp.Body)
	require.Equal(t, string(usecase.ErrorInvalidInput), out.Error)
	require.Empty(t, turns.in.ChannelID)
}

func TestHandle_DeliveryFailureApologizes(t *testing.T) {
	sender := &stubSender{failAt: 1}
	h, err := NewHandler(&stubTurns{out: welcomeOutput()}, sender, nil)
	require.NoError(t, err)

	resp, err := h.Handle(context.Background(), makeEvent(messageBody))
	require.NoError(t, err)
	require.Equal(t, http.StatusBadGateway, resp.StatusCode)
	require.Equal(t, string(usecase.ErrorUpstream), parseBody[errorResponse](t, resp.Body).Error)

	require.Len(t, sender.sent, 2)
	require.Equal(t, "Sorry, it looks like something went wrong.", sender.sent[1].Text)
}

func TestHandle_MapsUseCaseErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{name: "invalid input", err: &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "missing_identity"}, status: http.StatusBadRequest, code: string(usecase.ErrorInvalidInput)},
		{name: "conflict", err: &usecase.Error{Code: usecase.ErrorConflict, Reason: "state_conflict_retries_exhausted"}, status: http.StatusConflict, code: string(usecase.ErrorConflict)},
		{name: "upstream", err: &usecase.Error{Code: usecase.ErrorUpstream, Reason: "connector_error"}, status: http.StatusBadGateway, code: string(usecase.ErrorUpstream)},
		{name: "internal", err: &usecase.Error{Code: usecase.ErrorInternal, Reason: "state_write_error"}, status: http.StatusInternalServerError, code: string(usecase.ErrorInternal)},
		{name: "unexpected", err: errors.New("boom"), status: http.StatusInternalServerError, code: string(usecase.ErrorInternal)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sender := &stubSender{}
			h, err := NewHandler(&stubTurns{err: tc.err}, sender, nil)
			require.NoError(t, err)

			resp, err := h.Handle(context.Background(), makeEvent(messageBody))
			require.NoError(t, err)
			require.Equal(t, tc.status, resp.StatusCode)
			require.Empty(t, sender.sent)

			out := parseBody[errorResponse](t, resp.Body)
			require.Equal(t, tc.code, out.Error)
		})
	}
}

func TestHandle_UsesProvidedCorrelationID_CaseInsensitive(t *testing.T) {
	h, err := NewHandler(&stubTurns{}, &stubSender{}, nil)
	require.NoError(t, err)

	event := makeEvent(messageBody)
	event.Headers["x-correlation-id"] = "corr-123"
	resp, err := h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, "corr-123", resp.Headers["X-Correlation-Id"])
}
