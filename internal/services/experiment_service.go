package services

import (
	"context"
	"strings"
	"time"

	"github.com/deliblab/deliblab/internal/experiment"
)

type ExperimentAdminStore interface {
	ExperimentStore
	InsertExperiment(ctx context.Context, e *experiment.Experiment) error
	ListExperiments(ctx context.Context) ([]*experiment.Experiment, error)
	DeleteExperiment(ctx context.Context, name string) (bool, error)
	AddAudit(entry AuditEntry)
}

// Refresher is implemented by stores that can re-read their persisted state.
type Refresher interface {
	Refresh(ctx context.Context) error
}

type ExperimentService struct {
	store ExperimentAdminStore
	now   func() time.Time
	idGen func() string
	setup experiment.SetupOptions
}

type CreateExperimentRequest struct {
	Name         string              `json:"name"`
	Participants int                 `json:"numberOfParticipants"`
	Template     []*experiment.Stage `json:"stages,omitempty"`
}

type ExperimentSummary struct {
	Name                 string    `json:"name"`
	Date                 time.Time `json:"date"`
	NumberOfParticipants int       `json:"numberOfParticipants"`
	StageNames           []string  `json:"stageNames"`
	Finished             int       `json:"finished"`
}

func NewExperimentService(store ExperimentAdminStore) *ExperimentService {
	return &ExperimentService{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
		idGen: func() string { return shortID(12) },
	}
}

// Create sets up a new experiment. An empty template selects the default one.
func (s *ExperimentService) Create(ctx context.Context, actor string, req CreateExperimentRequest) (*experiment.Experiment, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return nil, NewInvalidError("name required")
	}
	if req.Participants < 1 {
		return nil, NewInvalidError("numberOfParticipants must be positive")
	}
	tmpl := req.Template
	if len(tmpl) == 0 {
		tmpl = experiment.DefaultTemplate()
	}
	opts := s.setup
	if opts.Now == nil {
		opts.Now = s.now
	}
	exp, err := experiment.NewExperiment(req.Name, req.Participants, tmpl, opts)
	if err != nil {
		return nil, NewInvalidError(err.Error())
	}
	if err := s.store.InsertExperiment(ctx, exp); err != nil {
		return nil, err
	}
	s.store.AddAudit(AuditEntry{Time: s.now(), Actor: actor, Action: "create_experiment", Target: exp.Name})
	return exp, nil
}

func (s *ExperimentService) List(ctx context.Context) ([]ExperimentSummary, error) {
	exps, err := s.store.ListExperiments(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]ExperimentSummary, 0, len(exps))
	for _, e := range exps {
		sum := ExperimentSummary{Name: e.Name, Date: e.Date, NumberOfParticipants: e.NumberOfParticipants, StageNames: e.StageNames}
		for _, p := range e.Participants {
			if p.Finished() {
				sum.Finished++
			}
		}
		out = append(out, sum)
	}
	return out, nil
}

func (s *ExperimentService) Get(ctx context.Context, name string) (*experiment.Experiment, error) {
	exp, err := s.store.GetExperiment(ctx, name)
	if err != nil {
		return nil, err
	}
	if exp == nil {
		return nil, NewNotFoundError("experiment not found")
	}
	return exp, nil
}

func (s *ExperimentService) Delete(ctx context.Context, actor, name string) error {
	ok, err := s.store.DeleteExperiment(ctx, name)
	if err != nil {
		return err
	}
	if !ok {
		return NewNotFoundError("experiment not found")
	}
	s.store.AddAudit(AuditEntry{Time: s.now(), Actor: actor, Action: "delete_experiment", Target: name})
	return nil
}

// RevealLeader recomputes the tally behind revealStage and writes it to every
// participant.
func (s *ExperimentService) RevealLeader(ctx context.Context, name, revealStage string) ([]experiment.Candidate, error) {
	var ranking []experiment.Candidate
	err := s.store.UpdateExperiment(ctx, name, func(exp *experiment.Experiment) error {
		voteStage, err := pendingVoteStage(exp, revealStage)
		if err != nil {
			return err
		}
		if err := publishReveal(exp, revealStage, voteStage, s.now()); err != nil {
			return err
		}
		ranking, err = experiment.Tally(exp, voteStage)
		return err
	})
	if err != nil {
		return nil, err
	}
	return ranking, nil
}

func pendingVoteStage(exp *experiment.Experiment, revealStage string) (string, error) {
	if !exp.HasStage(revealStage) {
		return "", NewNotFoundError("stage not found: " + revealStage)
	}
	for _, id := range exp.ParticipantIDs() {
		st, err := exp.Participants[id].Stage(revealStage)
		if err != nil {
			return "", err
		}
		cfg, err := experiment.ConfigAs[experiment.RevealConfig](st)
		if err != nil {
			return "", err
		}
		return cfg.PendingVoteStageName, nil
	}
	return "", NewInvalidError("experiment has no participants")
}

// DiscussItems posts a discuss-item prompt into every participant's copy of chatStage.
func (s *ExperimentService) DiscussItems(ctx context.Context, name, chatStage string, pair experiment.ItemPair, text string) (*experiment.Message, error) {
	if strings.TrimSpace(text) == "" {
		text = "Discuss: " + experiment.Items[pair.Item1].Name + " or " + experiment.Items[pair.Item2].Name + "?"
	}
	msg := experiment.NewDiscussItemsMessage(s.idGen(), pair, text, s.now())
	if err := msg.Validate(); err != nil {
		return nil, NewInvalidError(err.Error())
	}
	err := s.store.UpdateExperiment(ctx, name, func(exp *experiment.Experiment) error {
		if !exp.HasStage(chatStage) {
			return NewNotFoundError("stage not found: " + chatStage)
		}
		return broadcast(exp, chatStage, msg)
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// Refresh re-reads persisted state when the store supports it.
func (s *ExperimentService) Refresh(ctx context.Context) error {
	r, ok := s.store.(Refresher)
	if !ok {
		return NewInvalidError("store cannot refresh")
	}
	return r.Refresh(ctx)
}

// JoinResult binds an access code to its experiment and participant.
type JoinResult struct {
	Experiment string `json:"experiment"`
	UserID     string `json:"userId"`
}

// Join resolves a participant access code across all experiments.
func (s *ExperimentService) Join(ctx context.Context, code string) (*JoinResult, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, NewInvalidError("access code required")
	}
	exps, err := s.store.ListExperiments(ctx)
	if err != nil {
		return nil, err
	}
	for _, e := range exps {
		if p, ok := e.FindByAccessCode(code); ok {
			return &JoinResult{Experiment: e.Name, UserID: p.UserID}, nil
		}
	}
	return nil, NewNotFoundError("unknown access code")
}
