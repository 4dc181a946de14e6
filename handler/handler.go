package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"festival-bot/internal/domain"
	"festival-bot/internal/integrations/connector"
	"festival-bot/internal/usecase"
)

const (
	correlationHeader = "X-Correlation-Id"
	apologyText       = "Sorry, it looks like something went wrong."
)

type TurnProcessor interface {
	ProcessTurn(ctx context.Context, a domain.Activity) (usecase.TurnOutput, error)
}

type Sender interface {
	SendActivity(ctx context.Context, reply connector.Activity) error
}

type Handler struct {
	turns  TurnProcessor
	sender Sender
	logger *slog.Logger
}

type repliesResponse struct {
	Activities []connector.Activity `json:"activities"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func NewHandler(turns TurnProcessor, sender Sender, logger *slog.Logger) (*Handler, error) {
	if turns == nil {
		return nil, errors.New("handler: turn processor must not be nil")
	}
	if sender == nil {
		return nil, errors.New("handler: sender must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{turns: turns, sender: sender, logger: logger}, nil
}

// Handle processes one inbound activity posted by the channel. Replies are
// sent through the connector in order, or returned inline when the channel
// asked for expectReplies delivery.
func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	corrID := correlationID(req.Headers)
	logger := h.logger.With("correlation_id", corrID)

	body := req.Body
	if req.IsBase64Encoded {
		raw, err := base64.StdEncoding.DecodeString(body)
		if err != nil {
			logger.WarnContext(ctx, "invalid base64 body", "err", err)
			return errorJSON(http.StatusBadRequest, usecase.ErrorInvalidInput, corrID), nil
		}
		body = string(raw)
	}

	var in connector.Activity
	if err := json.Unmarshal([]byte(body), &in); err != nil {
		logger.WarnContext(ctx, "invalid activity body", "err", err)
		return errorJSON(http.StatusBadRequest, usecase.ErrorInvalidInput, corrID), nil
	}

	a := in.ToDomain()
	logger = logger.With("activity_type", string(a.Type), "conversation", a.Identity().String())

	out, err := h.turns.ProcessTurn(ctx, a)
	if err != nil {
		status, code := mapError(err)
		if status >= http.StatusInternalServerError {
			logger.ErrorContext(ctx, "turn failed", "err", err)
		} else {
			logger.WarnContext(ctx, "turn rejected", "err", err)
		}
		return errorJSON(status, code, corrID), nil
	}

	replies := make([]connector.Activity, 0, len(out.Actions))
	for _, action := range out.Actions {
		replies = append(replies, connector.NewReply(in, action))
	}

	if in.DeliveryMode == connector.DeliveryExpectReplies {
		return jsonResponse(http.StatusOK, repliesResponse{Activities: replies}, corrID), nil
	}

	for i, reply := range replies {
		if err := h.sender.SendActivity(ctx, reply); err != nil {
			logger.ErrorContext(ctx, "reply delivery failed", "err", err, "reply_index", i)
			if apologyErr := h.sender.SendActivity(ctx, connector.NewReply(in, domain.SendText(apologyText))); apologyErr != nil {
				logger.ErrorContext(ctx, "apology delivery failed", "err", apologyErr)
			}
			return errorJSON(http.StatusBadGateway, usecase.ErrorUpstream, corrID), nil
		}
	}

	logger.InfoContext(ctx, "turn handled", "replies", len(replies), "welcomed", out.Welcomed)
	return jsonResponse(http.StatusOK, struct{}{}, corrID), nil
}

func mapError(err error) (int, usecase.ErrorCode) {
	var ucErr *usecase.Error
	if !errors.As(err, &ucErr) {
		return http.StatusInternalServerError, usecase.ErrorInternal
	}
	switch ucErr.Code {
	case usecase.ErrorInvalidInput:
		return http.StatusBadRequest, ucErr.Code
	case usecase.ErrorConflict:
		return http.StatusConflict, ucErr.Code
	case usecase.ErrorUpstream:
		return http.StatusBadGateway, ucErr.Code
	default:
		return http.StatusInternalServerError, usecase.ErrorInternal
	}
}

func correlationID(headers map[string]string) string {
	for k, v := range headers {
		if strings.EqualFold(k, correlationHeader) && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return uuid.NewString()
}

func errorJSON(status int, code usecase.ErrorCode, corrID string) events.APIGatewayProxyResponse {
	return jsonResponse(status, errorResponse{Error: string(code)}, corrID)
}

func jsonResponse(status int, v any, corrID string) events.APIGatewayProxyResponse {
	b, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		b = []byte(`{"error":"INTERNAL_ERROR"}`)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":    "application/json",
			correlationHeader: corrID,
		},
		Body: string(b),
	}
}
