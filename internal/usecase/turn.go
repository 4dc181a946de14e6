package usecase

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"festival-bot/internal/domain"
	"festival-bot/internal/lock"
	"festival-bot/internal/repository"
	"festival-bot/internal/router"
	"festival-bot/internal/state"
)

const (
	defaultMaxSaveAttempts = 3
	welcomePropertyName    = "WelcomeUserState"
	tracerName             = "festival-bot/usecase"
)

// RouterProvider yields the router for the current reply copy.
type RouterProvider interface {
	Router(ctx context.Context) (*router.Router, error)
}

// TurnService runs one turn: lock the identity, load state, route, save, and
// hand back the replies. Replies are only returned once the state they
// depend on is persisted.
type TurnService struct {
	states      *state.Manager
	welcome     *state.Property[domain.WelcomeState]
	locker      lock.Locker
	content     RouterProvider
	maxAttempts int
	logger      *slog.Logger
	tracer      trace.Tracer
}

type TurnOutput struct {
	Actions []domain.Action
	// Welcomed is true when this turn fired the welcome flow.
	Welcomed bool
}

func NewTurnService(states *state.Manager, locker lock.Locker, content RouterProvider, maxAttempts int, logger *slog.Logger) (*TurnService, error) {
	if states == nil {
		return nil, errors.New("usecase: state manager must not be nil")
	}
	if locker == nil {
		return nil, errors.New("usecase: locker must not be nil")
	}
	if content == nil {
		return nil, errors.New("usecase: content provider must not be nil")
	}
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxSaveAttempts
	}
	if logger == nil {
		logger = slog.Default()
	}
	welcome, err := state.NewProperty[domain.WelcomeState](states, welcomePropertyName)
	if err != nil {
		return nil, err
	}
	return &TurnService{
		states:      states,
		welcome:     welcome,
		locker:      locker,
		content:     content,
		maxAttempts: maxAttempts,
		logger:      logger,
		tracer:      otel.Tracer(tracerName),
	}, nil
}

func (s *TurnService) ProcessTurn(ctx context.Context, a domain.Activity) (TurnOutput, error) {
	ctx, span := s.tracer.Start(ctx, "usecase.ProcessTurn", trace.WithAttributes(
		attribute.String("activity.type", string(a.Type)),
		attribute.String("channel.id", a.ChannelID),
	))
	defer span.End()

	out, err := s.processTurn(ctx, a)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return TurnOutput{}, err
	}
	span.SetAttributes(
		attribute.Int("turn.actions", len(out.Actions)),
		attribute.Bool("turn.welcomed", out.Welcomed),
	)
	return out, nil
}

func (s *TurnService) processTurn(ctx context.Context, a domain.Activity) (TurnOutput, error) {
	id := a.Identity()
	if err := id.Validate(); err != nil {
		return TurnOutput{}, newError(ErrorInvalidInput, "missing_identity", err)
	}
	if a.Type == domain.ActivityOther {
		s.logger.DebugContext(ctx, "ignoring activity", "conversation", id.String())
		return TurnOutput{}, nil
	}

	r, err := s.content.Router(ctx)
	if err != nil {
		return TurnOutput{}, newError(ErrorInternal, "content_load_error", err)
	}

	key := s.states.Key(id)
	unlock, err := s.locker.Lock(ctx, key)
	if err != nil {
		return TurnOutput{}, newError(ErrorInternal, "lock_error", err)
	}
	defer unlock()

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		doc, err := s.states.Load(ctx, id)
		if err != nil {
			return TurnOutput{}, newError(ErrorInternal, "state_load_error", err)
		}
		current, err := s.welcome.Get(doc)
		if err != nil {
			return TurnOutput{}, newError(ErrorInternal, "state_decode_error", err)
		}

		next, actions := r.HandleTurn(a, current)
		if next == current {
			return TurnOutput{Actions: actions}, nil
		}

		if err := s.welcome.Set(doc, next); err != nil {
			return TurnOutput{}, newError(ErrorInternal, "state_encode_error", err)
		}
		err = s.states.Save(ctx, id, doc)
		if err == nil {
			welcomed := !current.HasWelcomed && next.HasWelcomed
			if welcomed {
				s.logger.InfoContext(ctx, "welcome flow fired", "conversation", id.String(), "activity_type", string(a.Type))
			}
			return TurnOutput{Actions: actions, Welcomed: welcomed}, nil
		}
		if !errors.Is(err, repository.ErrConflict) {
			return TurnOutput{}, newError(ErrorInternal, "state_write_error", err)
		}
		s.logger.WarnContext(ctx, "state changed concurrently, recomputing turn", "conversation", id.String(), "attempt", attempt)
	}
	return TurnOutput{}, newError(ErrorConflict, "state_conflict_retries_exhausted", nil)
}
