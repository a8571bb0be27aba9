package experiment

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// DefaultTemplate returns the stage sequence used when an experimenter does not supply
// one: consent and profile, an initial ranking, a group discussion, a leader vote, a
// post-discussion survey, and the reveal of the elected leader.
func DefaultTemplate() []*Stage {
	ratings := []ItemPair{
		{Item1: "compass", Item2: "blanket"},
		{Item1: "lighter", Item2: "water"},
		{Item1: "mirror", Item2: "rope"},
	}
	initial := make([]*Question, 0, len(ratings)+1)
	for i, pair := range ratings {
		initial = append(initial, &Question{
			ID:     fmt.Sprintf("rating-%d", i+1),
			Kind:   QuestionRating,
			Text:   "Which item is more useful to survive at sea?",
			Rating: &ItemRating{ItemPair: pair},
		})
	}
	initial = append(initial, &Question{
		ID:         "leader-willingness",
		Kind:       QuestionScale,
		Text:       "How much would you like to lead the group?",
		UpperBound: 10,
		LowerLabel: "Not at all",
		UpperLabel: "Very much",
	})
	return []*Stage{
		NewStage("tos-and-profile", &TOSAndProfileConfig{TOS: TOSConfig{TOSLines: []string{
			"You agree to take part in a research study about group decisions.",
			"Your messages and answers are recorded for research purposes.",
			"You may leave at any time.",
		}}}),
		NewStage("initial-ranking", &SurveyConfig{Questions: initial}),
		NewStage("group-discussion", &ChatConfig{
			ChatID:           "chat-1",
			RatingsToDiscuss: ratings,
			Messages:         []*Message{},
		}),
		NewStage("leader-vote", &VoteConfig{Votes: Votes{}}),
		NewStage("post-discussion", &SurveyConfig{Questions: []*Question{
			{ID: "chat-satisfaction", Kind: QuestionScale, Text: "How satisfied are you with the discussion?", UpperBound: 10, LowerLabel: "Not at all", UpperLabel: "Very"},
			{ID: "chat-feedback", Kind: QuestionText, Text: "Anything you want to tell us about the discussion?"},
		}}),
		NewStage("leader-reveal", &RevealConfig{PendingVoteStageName: "leader-vote", Ranking: []Candidate{}}),
	}
}

// templateFile is the YAML layout of a stage template.
type templateFile struct {
	Stages []templateStage `yaml:"stages"`
}

type templateStage struct {
	Name             string             `yaml:"name"`
	Kind             StageKind          `yaml:"kind"`
	TOSLines         []string           `yaml:"tos_lines,omitempty"`
	Questions        []templateQuestion `yaml:"questions,omitempty"`
	ChatID           string             `yaml:"chat_id,omitempty"`
	RatingsToDiscuss []ItemPair         `yaml:"ratings_to_discuss,omitempty"`
	PendingVoteStage string             `yaml:"pending_vote_stage,omitempty"`
}

type templateQuestion struct {
	ID         string       `yaml:"id"`
	Kind       QuestionKind `yaml:"kind"`
	Text       string       `yaml:"text"`
	Item1      string       `yaml:"item1,omitempty"`
	Item2      string       `yaml:"item2,omitempty"`
	UpperBound int          `yaml:"upper_bound,omitempty"`
	LowerLabel string       `yaml:"lower_label,omitempty"`
	UpperLabel string       `yaml:"upper_label,omitempty"`
}

// LoadTemplate reads a YAML stage template.
func LoadTemplate(r io.Reader) ([]*Stage, error) {
	var f templateFile
	if err := yaml.NewDecoder(r).Decode(&f); err != nil {
		return nil, fmt.Errorf("decode template: %w", err)
	}
	out := make([]*Stage, 0, len(f.Stages))
	for _, ts := range f.Stages {
		st, err := ts.build()
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	if _, err := TemplateStageNames(out); err != nil {
		return nil, err
	}
	return out, nil
}

// WriteTemplate renders stages as a YAML template. Participant answers are not written.
func WriteTemplate(w io.Writer, stages []*Stage) error {
	f := templateFile{Stages: make([]templateStage, 0, len(stages))}
	for _, st := range stages {
		ts, err := toTemplateStage(st)
		if err != nil {
			return err
		}
		f.Stages = append(f.Stages, ts)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(f); err != nil {
		return err
	}
	return enc.Close()
}

func (ts templateStage) build() (*Stage, error) {
	var cfg StageConfig
	switch ts.Kind {
	case KindAcceptTOS:
		cfg = &TOSConfig{TOSLines: nonNil(ts.TOSLines)}
	case KindAcceptTOSAndSetProfile:
		cfg = &TOSAndProfileConfig{TOS: TOSConfig{TOSLines: nonNil(ts.TOSLines)}}
	case KindSetProfile:
		cfg = &ProfileConfig{}
	case KindSurvey:
		qs := make([]*Question, 0, len(ts.Questions))
		for _, tq := range ts.Questions {
			q, err := tq.build()
			if err != nil {
				return nil, fmt.Errorf("stage %q: %w", ts.Name, err)
			}
			qs = append(qs, q)
		}
		cfg = &SurveyConfig{Questions: qs}
	case KindLeaderVote:
		cfg = &VoteConfig{Votes: Votes{}}
	case KindGroupChat:
		for _, p := range ts.RatingsToDiscuss {
			if err := p.Validate(); err != nil {
				return nil, fmt.Errorf("stage %q: %w", ts.Name, err)
			}
		}
		cfg = &ChatConfig{ChatID: ts.ChatID, RatingsToDiscuss: append([]ItemPair{}, ts.RatingsToDiscuss...), Messages: []*Message{}}
	case KindLeaderReveal:
		if ts.PendingVoteStage == "" {
			return nil, fmt.Errorf("stage %q: pending_vote_stage required", ts.Name)
		}
		cfg = &RevealConfig{PendingVoteStageName: ts.PendingVoteStage, Ranking: []Candidate{}}
	default:
		return nil, fmt.Errorf("%w: %q in stage %q", ErrUnknownKind, ts.Kind, ts.Name)
	}
	return &Stage{Kind: ts.Kind, Name: ts.Name, Config: cfg}, nil
}

func (tq templateQuestion) build() (*Question, error) {
	q := &Question{ID: tq.ID, Kind: tq.Kind, Text: tq.Text}
	if q.ID == "" {
		return nil, fmt.Errorf("question without id")
	}
	switch tq.Kind {
	case QuestionRating:
		pair := ItemPair{Item1: tq.Item1, Item2: tq.Item2}
		if err := pair.Validate(); err != nil {
			return nil, fmt.Errorf("question %q: %w", tq.ID, err)
		}
		q.Rating = &ItemRating{ItemPair: pair}
	case QuestionScale:
		if tq.UpperBound <= 0 {
			return nil, fmt.Errorf("question %q: upper_bound must be positive", tq.ID)
		}
		q.UpperBound, q.LowerLabel, q.UpperLabel = tq.UpperBound, tq.LowerLabel, tq.UpperLabel
	case QuestionText, QuestionCheck:
	default:
		return nil, fmt.Errorf("question %q: unknown kind %q", tq.ID, tq.Kind)
	}
	return q, nil
}

func toTemplateStage(st *Stage) (templateStage, error) {
	if err := st.Validate(); err != nil {
		return templateStage{}, err
	}
	ts := templateStage{Name: st.Name, Kind: st.Kind}
	switch cfg := st.Config.(type) {
	case *TOSConfig:
		ts.TOSLines = cfg.TOSLines
	case *TOSAndProfileConfig:
		ts.TOSLines = cfg.TOS.TOSLines
	case *SurveyConfig:
		for _, q := range cfg.Questions {
			tq := templateQuestion{ID: q.ID, Kind: q.Kind, Text: q.Text, UpperBound: q.UpperBound, LowerLabel: q.LowerLabel, UpperLabel: q.UpperLabel}
			if q.Rating != nil {
				tq.Item1, tq.Item2 = q.Rating.Item1, q.Rating.Item2
			}
			ts.Questions = append(ts.Questions, tq)
		}
	case *ChatConfig:
		ts.ChatID = cfg.ChatID
		ts.RatingsToDiscuss = cfg.RatingsToDiscuss
	case *RevealConfig:
		ts.PendingVoteStage = cfg.PendingVoteStageName
	case *ProfileConfig, *VoteConfig:
	}
	return ts, nil
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
