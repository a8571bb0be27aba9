package services

import (
	"context"
	"fmt"
	"sort"
	"testing"

	"github.com/deliblab/deliblab/internal/experiment"
)

type stubExperimentStore struct {
	experiments map[string]*experiment.Experiment
	settings    Settings
	audit       []AuditEntry
	updates     int
}

func newStubExperimentStore(exps ...*experiment.Experiment) *stubExperimentStore {
	s := &stubExperimentStore{experiments: map[string]*experiment.Experiment{}}
	for _, e := range exps {
		s.experiments[e.Name] = e
	}
	return s
}

func (s *stubExperimentStore) GetExperiment(_ context.Context, name string) (*experiment.Experiment, error) {
	if e, ok := s.experiments[name]; ok {
		return e.Clone(), nil
	}
	return nil, nil
}

func (s *stubExperimentStore) UpdateExperiment(_ context.Context, name string, fn func(*experiment.Experiment) error) error {
	e, ok := s.experiments[name]
	if !ok {
		return NewNotFoundError("experiment not found")
	}
	draft := e.Clone()
	if err := fn(draft); err != nil {
		return err
	}
	if err := draft.Validate(); err != nil {
		return err
	}
	s.experiments[name] = draft
	s.updates++
	return nil
}

func (s *stubExperimentStore) InsertExperiment(_ context.Context, e *experiment.Experiment) error {
	if _, ok := s.experiments[e.Name]; ok {
		return NewConflictError("experiment exists")
	}
	s.experiments[e.Name] = e.Clone()
	return nil
}

func (s *stubExperimentStore) ListExperiments(_ context.Context) ([]*experiment.Experiment, error) {
	names := make([]string, 0, len(s.experiments))
	for n := range s.experiments {
		names = append(names, n)
	}
	sort.Strings(names)
	out := make([]*experiment.Experiment, 0, len(names))
	for _, n := range names {
		out = append(out, s.experiments[n].Clone())
	}
	return out, nil
}

func (s *stubExperimentStore) DeleteExperiment(_ context.Context, name string) (bool, error) {
	if _, ok := s.experiments[name]; !ok {
		return false, nil
	}
	delete(s.experiments, name)
	return true, nil
}

func (s *stubExperimentStore) GetSettings(_ context.Context) (Settings, error) {
	return s.settings, nil
}

func (s *stubExperimentStore) UpdateSettings(_ context.Context, in Settings) error {
	s.settings = in
	return nil
}

func (s *stubExperimentStore) AddAudit(entry AuditEntry) { s.audit = append(s.audit, entry) }

// newLabExperiment builds an experiment whose participants are named by ids.
func newLabExperiment(t *testing.T, name string, template []*experiment.Stage, ids ...string) *experiment.Experiment {
	t.Helper()
	i, c := 0, 0
	exp, err := experiment.NewExperiment(name, len(ids), template, experiment.SetupOptions{
		NewUserID: func() string {
			id := ids[i]
			i++
			return id
		},
		NewAccessCode: func() string {
			c++
			return fmt.Sprintf("code-%d", c)
		},
	})
	if err != nil {
		t.Fatalf("NewExperiment: %v", err)
	}
	return exp
}

func labTemplate() []*experiment.Stage {
	return []*experiment.Stage{
		experiment.NewStage("consent", &experiment.TOSAndProfileConfig{TOS: experiment.TOSConfig{TOSLines: []string{"Be kind.", "Data is recorded."}}}),
		experiment.NewStage("rank", &experiment.SurveyConfig{Questions: []*experiment.Question{
			{ID: "r1", Kind: experiment.QuestionRating, Text: "Which?", Rating: &experiment.ItemRating{ItemPair: experiment.ItemPair{Item1: "compass", Item2: "rope"}}},
			{ID: "s1", Kind: experiment.QuestionScale, Text: "How much?", UpperBound: 10},
		}}),
		experiment.NewStage("chat", &experiment.ChatConfig{ChatID: "room", RatingsToDiscuss: []experiment.ItemPair{{Item1: "compass", Item2: "rope"}}, Messages: []*experiment.Message{}}),
		experiment.NewStage("vote", &experiment.VoteConfig{Votes: experiment.Votes{}}),
		experiment.NewStage("reveal", &experiment.RevealConfig{PendingVoteStageName: "vote", Ranking: []experiment.Candidate{}}),
	}
}

// moveTo advances uid until its working stage is stage.
func moveTo(t *testing.T, exp *experiment.Experiment, uid, stage string) {
	t.Helper()
	p := exp.Participants[uid]
	for p.WorkingOn != stage {
		if !p.Advance() {
			t.Fatalf("%s never reached %s", uid, stage)
		}
	}
}
