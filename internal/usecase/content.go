package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"festival-bot/internal/integrations/paramstore"
	"festival-bot/internal/router"
)

type ParamGetter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// ContentSource loads the reply copy from Parameter Store once per process.
// Parameters that do not exist keep the built-in copy.
type ContentSource struct {
	params      ParamGetter
	paramPrefix string

	mu     sync.RWMutex
	router *router.Router
}

func NewContentSource(p ParamGetter, paramPrefix string) (*ContentSource, error) {
	if p == nil {
		return nil, errors.New("usecase: param getter must not be nil")
	}
	paramPrefix = strings.TrimRight(strings.TrimSpace(paramPrefix), "/")
	if paramPrefix == "" {
		return nil, errors.New("usecase: parameter prefix must not be empty")
	}
	return &ContentSource{params: p, paramPrefix: paramPrefix}, nil
}

// Router returns the router built from the loaded copy. A failed load is
// retried on the next call.
func (s *ContentSource) Router(ctx context.Context) (*router.Router, error) {
	s.mu.RLock()
	if s.router != nil {
		r := s.router
		s.mu.RUnlock()
		return r, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.router != nil {
		return s.router, nil
	}

	content, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	r, err := router.New(content)
	if err != nil {
		return nil, err
	}
	s.router = r
	return r, nil
}

func (s *ContentSource) load(ctx context.Context) (router.Content, error) {
	content := router.DefaultContent()
	fields := []struct {
		name string
		dst  *string
	}{
		{name: "/welcome_message", dst: &content.WelcomeMessage},
		{name: "/welcome_question", dst: &content.WelcomeQuestion},
	}
	for _, f := range fields {
		v, err := s.params.GetParameter(ctx, s.paramPrefix+f.name)
		if errors.Is(err, paramstore.ErrNotFound) {
			continue
		}
		if err != nil {
			return router.Content{}, fmt.Errorf("usecase: load %s: %w", strings.TrimPrefix(f.name, "/"), err)
		}
		if v = strings.TrimSpace(v); v != "" {
			*f.dst = v
		}
	}
	return content, nil
}
