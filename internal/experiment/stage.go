package experiment

import (
	"encoding/json"
	"fmt"
	"time"
)

// StageKind tags the payload carried by a Stage.
type StageKind string

const (
	KindAcceptTOS              StageKind = "accept-tos"
	KindAcceptTOSAndSetProfile StageKind = "accept-tos-and-set-profile"
	KindSurvey                 StageKind = "survey"
	KindSetProfile             StageKind = "set-profile"
	KindLeaderVote             StageKind = "leader-vote"
	KindGroupChat              StageKind = "group-chat"
	KindLeaderReveal           StageKind = "leader-reveal"
)

// Kinds lists every stage kind in declaration order.
var Kinds = []StageKind{
	KindAcceptTOS,
	KindAcceptTOSAndSetProfile,
	KindSurvey,
	KindSetProfile,
	KindLeaderVote,
	KindGroupChat,
	KindLeaderReveal,
}

func (k StageKind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// StageConfig is the kind-specific payload of a stage. Implementations are the pointer
// types of the *Config structs in this package.
type StageConfig interface {
	Kind() StageKind
	cloneConfig() StageConfig
}

// Stage is one named step of the experiment protocol.
type Stage struct {
	Kind   StageKind
	Name   string
	Config StageConfig
}

// NewStage builds a stage whose kind is taken from its config.
func NewStage(name string, cfg StageConfig) *Stage {
	return &Stage{Kind: cfg.Kind(), Name: name, Config: cfg}
}

// Validate checks that the payload matches the tag.
func (s *Stage) Validate() error {
	if s == nil {
		return fmt.Errorf("%w: nil stage", ErrStageNotFound)
	}
	if s.Name == "" {
		return fmt.Errorf("%w: stage without name", ErrInvalidProgress)
	}
	if !s.Kind.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownKind, s.Kind)
	}
	if s.Config == nil {
		return fmt.Errorf("%w: stage %q has no config", ErrKindMismatch, s.Name)
	}
	if s.Config.Kind() != s.Kind {
		return fmt.Errorf("%w: stage %q is %s but carries %s", ErrKindMismatch, s.Name, s.Kind, s.Config.Kind())
	}
	return nil
}

// Clone returns a deep copy.
func (s *Stage) Clone() *Stage {
	if s == nil {
		return nil
	}
	out := &Stage{Kind: s.Kind, Name: s.Name}
	if s.Config != nil {
		out.Config = s.Config.cloneConfig()
	}
	return out
}

// ConfigAs returns the payload of s as *T, failing with ErrKindMismatch when the stage
// holds another variant.
func ConfigAs[T any, PT interface {
	*T
	StageConfig
}](s *Stage) (PT, error) {
	if s == nil {
		return nil, ErrStageNotFound
	}
	cfg, ok := s.Config.(PT)
	if !ok {
		want := PT(new(T))
		return nil, fmt.Errorf("%w: stage %q is %s, want %s", ErrKindMismatch, s.Name, s.Kind, want.Kind())
	}
	return cfg, nil
}

type stageJSON struct {
	Kind   StageKind       `json:"kind"`
	Name   string          `json:"name"`
	Config json.RawMessage `json:"config"`
}

func (s *Stage) MarshalJSON() ([]byte, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	cfg, err := json.Marshal(s.Config)
	if err != nil {
		return nil, err
	}
	return json.Marshal(stageJSON{Kind: s.Kind, Name: s.Name, Config: cfg})
}

func (s *Stage) UnmarshalJSON(b []byte) error {
	var raw stageJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	cfg, err := newConfig(raw.Kind)
	if err != nil {
		return err
	}
	if len(raw.Config) > 0 && string(raw.Config) != "null" {
		if err := json.Unmarshal(raw.Config, cfg); err != nil {
			return fmt.Errorf("decode %s config of stage %q: %w", raw.Kind, raw.Name, err)
		}
	}
	s.Kind = raw.Kind
	s.Name = raw.Name
	s.Config = cfg
	return nil
}

func newConfig(kind StageKind) (StageConfig, error) {
	switch kind {
	case KindAcceptTOS:
		return &TOSConfig{TOSLines: []string{}}, nil
	case KindAcceptTOSAndSetProfile:
		return &TOSAndProfileConfig{TOS: TOSConfig{TOSLines: []string{}}}, nil
	case KindSurvey:
		return &SurveyConfig{Questions: []*Question{}}, nil
	case KindSetProfile:
		return &ProfileConfig{}, nil
	case KindLeaderVote:
		return &VoteConfig{Votes: Votes{}}, nil
	case KindGroupChat:
		return &ChatConfig{RatingsToDiscuss: []ItemPair{}, Messages: []*Message{}}, nil
	case KindLeaderReveal:
		return &RevealConfig{Ranking: []Candidate{}}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

// TOSConfig holds the terms a participant must accept.
type TOSConfig struct {
	TOSLines   []string   `json:"tosLines" yaml:"tos_lines"`
	AcceptedAt *time.Time `json:"acceptedTosTimestamp,omitempty" yaml:"-"`
	Hash       string     `json:"tosHash,omitempty" yaml:"-"`
}

func (*TOSConfig) Kind() StageKind { return KindAcceptTOS }

func (c *TOSConfig) cloneConfig() StageConfig {
	out := c.clone()
	return &out
}

func (c *TOSConfig) clone() TOSConfig {
	out := TOSConfig{TOSLines: append([]string(nil), c.TOSLines...), Hash: c.Hash}
	if c.TOSLines != nil && out.TOSLines == nil {
		out.TOSLines = []string{}
	}
	if c.AcceptedAt != nil {
		t := *c.AcceptedAt
		out.AcceptedAt = &t
	}
	return out
}

// ProfileConfig is the payload of a set-profile stage.
type ProfileConfig struct {
	Profile Profile `json:"profile"`
}

func (*ProfileConfig) Kind() StageKind { return KindSetProfile }

func (c *ProfileConfig) cloneConfig() StageConfig {
	out := *c
	return &out
}

// TOSAndProfileConfig combines TOS acceptance with profile entry.
type TOSAndProfileConfig struct {
	TOS     TOSConfig `json:"tos"`
	Profile Profile   `json:"profile"`
}

func (*TOSAndProfileConfig) Kind() StageKind { return KindAcceptTOSAndSetProfile }

func (c *TOSAndProfileConfig) cloneConfig() StageConfig {
	return &TOSAndProfileConfig{TOS: c.TOS.clone(), Profile: c.Profile}
}

// SurveyConfig is an ordered list of questions.
type SurveyConfig struct {
	Questions []*Question `json:"questions"`
}

func (*SurveyConfig) Kind() StageKind { return KindSurvey }

func (c *SurveyConfig) cloneConfig() StageConfig {
	out := &SurveyConfig{Questions: make([]*Question, 0, len(c.Questions))}
	for _, q := range c.Questions {
		out.Questions = append(out.Questions, q.Clone())
	}
	if c.Questions == nil {
		out.Questions = nil
	}
	return out
}

// Question returns the question with the given id.
func (c *SurveyConfig) Question(id string) *Question {
	for _, q := range c.Questions {
		if q.ID == id {
			return q
		}
	}
	return nil
}

// VoteConfig holds one participant's votes on the other participants.
type VoteConfig struct {
	Votes Votes `json:"votes"`
}

func (*VoteConfig) Kind() StageKind { return KindLeaderVote }

func (c *VoteConfig) cloneConfig() StageConfig {
	return &VoteConfig{Votes: c.Votes.Clone()}
}

// ChatConfig is one participant's copy of a shared chat room.
type ChatConfig struct {
	ChatID           string     `json:"chatId"`
	RatingsToDiscuss []ItemPair `json:"ratingsToDiscuss"`
	Messages         []*Message `json:"messages"`
	ReadyToEndChat   bool       `json:"readyToEndChat"`
}

func (*ChatConfig) Kind() StageKind { return KindGroupChat }

func (c *ChatConfig) cloneConfig() StageConfig {
	out := &ChatConfig{
		ChatID:         c.ChatID,
		ReadyToEndChat: c.ReadyToEndChat,
	}
	if c.RatingsToDiscuss != nil {
		out.RatingsToDiscuss = append([]ItemPair{}, c.RatingsToDiscuss...)
	}
	if c.Messages != nil {
		out.Messages = make([]*Message, 0, len(c.Messages))
		for _, m := range c.Messages {
			out.Messages = append(out.Messages, m.Clone())
		}
	}
	return out
}

// RevealConfig shows the outcome of a leader vote.
type RevealConfig struct {
	PendingVoteStageName string      `json:"pendingVoteStageName"`
	RevealedAt           *time.Time  `json:"revealTimestamp,omitempty"`
	Ranking              []Candidate `json:"ranking"`
	WinnerID             string      `json:"winnerId,omitempty"`
}

func (*RevealConfig) Kind() StageKind { return KindLeaderReveal }

func (c *RevealConfig) cloneConfig() StageConfig {
	out := &RevealConfig{PendingVoteStageName: c.PendingVoteStageName, WinnerID: c.WinnerID}
	if c.Ranking != nil {
		out.Ranking = append([]Candidate{}, c.Ranking...)
	}
	if c.RevealedAt != nil {
		t := *c.RevealedAt
		out.RevealedAt = &t
	}
	return out
}
