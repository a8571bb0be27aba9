package services

import (
	"context"
	"strings"
)

type AIConfigStore interface {
	GetSettings(ctx context.Context) (Settings, error)
	UpdateSettings(ctx context.Context, s Settings) error
}

var knownProviders = map[string]bool{"vertex": true, "genai": true}

type AIConfigService struct{ store AIConfigStore }

func NewAIConfigService(store AIConfigStore) *AIConfigService { return &AIConfigService{store: store} }

func (s *AIConfigService) Get(ctx context.Context) (LLMSettings, error) {
	st, err := s.store.GetSettings(ctx)
	if err != nil {
		return LLMSettings{}, err
	}
	return st.LLM, nil
}

func (s *AIConfigService) Update(ctx context.Context, in LLMSettings) error {
	in.Provider = strings.ToLower(strings.TrimSpace(in.Provider))
	if in.Provider != "" && !knownProviders[in.Provider] {
		return NewInvalidError("unknown provider " + in.Provider)
	}
	st, err := s.store.GetSettings(ctx)
	if err != nil {
		return err
	}
	st.LLM = in
	return s.store.UpdateSettings(ctx, st)
}

// ExternalAllowed reports whether experimenters enabled calls to external models.
func (s *AIConfigService) ExternalAllowed(ctx context.Context) (bool, error) {
	cfg, err := s.Get(ctx)
	if err != nil {
		return false, err
	}
	return cfg.AllowExternal, nil
}
