package services

import (
	"context"
	"time"

	"github.com/deliblab/deliblab/internal/experiment"
)

// ExperimentStore is the slice of the app-state store the participant and experiment
// services need. GetExperiment returns a deep copy, or nil when the experiment is
// unknown. UpdateExperiment runs fn on a private copy and commits it only when fn
// succeeds; an unknown name yields a not-found ServiceError.
type ExperimentStore interface {
	GetExperiment(ctx context.Context, name string) (*experiment.Experiment, error)
	UpdateExperiment(ctx context.Context, name string, fn func(*experiment.Experiment) error) error
}

// LLMSettings gates and configures calls to external language models.
type LLMSettings struct {
	Provider       string `json:"provider"`
	Model          string `json:"model"`
	EmbeddingModel string `json:"embeddingModel"`
	AllowExternal  bool   `json:"allowExternal"`
}

// Settings are the experimenter-editable application settings.
type Settings struct {
	LLM      LLMSettings `json:"llm"`
	SheetsID string      `json:"sheetsId,omitempty"`
}

type Experimenter struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	PassHash  []byte    `json:"passHash"`
	CreatedAt time.Time `json:"createdAt"`
}

type AuditEntry struct {
	Time   time.Time
	Actor  string
	Action string
	Target string
	Note   string
}
