package experiment

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Experiment is a named collection of participant records sharing one stage sequence.
type Experiment struct {
	Name                 string                   `json:"name"`
	Date                 time.Time                `json:"date"`
	NumberOfParticipants int                      `json:"numberOfParticipants"`
	StageNames           []string                 `json:"stageNames"`
	Participants         map[string]*UserProgress `json:"participants"`
}

// SetupOptions carries the collaborators used to build a new experiment.
type SetupOptions struct {
	Now           func() time.Time
	NewUserID     func() string
	NewAccessCode func() string
}

func shortID(n int) string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:n]
}

func (o SetupOptions) withDefaults() SetupOptions {
	if o.Now == nil {
		o.Now = func() time.Time { return time.Now().UTC() }
	}
	if o.NewUserID == nil {
		o.NewUserID = func() string { return shortID(12) }
	}
	if o.NewAccessCode == nil {
		o.NewAccessCode = func() string { return shortID(8) }
	}
	return o
}

// maxIDAttempts bounds regeneration of colliding ids.
const maxIDAttempts = 32

var errIDExhausted = errors.New("could not generate a unique id")

// NewExperiment builds an experiment with count participants. Each participant owns a
// deep copy of template; the first stage is working-on and the rest are future.
func NewExperiment(name string, count int, template []*Stage, opts SetupOptions) (*Experiment, error) {
	if strings.TrimSpace(name) == "" {
		return nil, errors.New("experiment name required")
	}
	if count < 1 {
		return nil, fmt.Errorf("experiment needs at least one participant, got %d", count)
	}
	names, err := TemplateStageNames(template)
	if err != nil {
		return nil, err
	}
	opts = opts.withDefaults()

	exp := &Experiment{
		Name:                 name,
		Date:                 opts.Now(),
		NumberOfParticipants: count,
		StageNames:           names,
		Participants:         make(map[string]*UserProgress, count),
	}
	codes := make(map[string]struct{}, count)
	for i := 0; i < count; i++ {
		uid, err := uniqueID(opts.NewUserID, func(id string) bool { _, taken := exp.Participants[id]; return taken })
		if err != nil {
			return nil, err
		}
		code, err := uniqueID(opts.NewAccessCode, func(id string) bool { _, taken := codes[id]; return taken })
		if err != nil {
			return nil, err
		}
		codes[code] = struct{}{}
		exp.Participants[uid] = newProgress(uid, code, template)
	}
	return exp, nil
}

func uniqueID(gen func() string, taken func(string) bool) (string, error) {
	for i := 0; i < maxIDAttempts; i++ {
		id := gen()
		if id != "" && !taken(id) {
			return id, nil
		}
	}
	return "", errIDExhausted
}

func newProgress(uid, code string, template []*Stage) *UserProgress {
	p := &UserProgress{
		AccessCode: code,
		UserID:     uid,
		StageMap:   make(map[string]*Stage, len(template)),
		Completed:  []string{},
		Future:     []string{},
	}
	for i, st := range template {
		p.StageMap[st.Name] = st.Clone()
		if i == 0 {
			p.WorkingOn = st.Name
			continue
		}
		p.Future = append(p.Future, st.Name)
	}
	return p
}

// TemplateStageNames validates a template and returns its stage names in order.
func TemplateStageNames(template []*Stage) ([]string, error) {
	if len(template) == 0 {
		return nil, errors.New("stage template is empty")
	}
	names := make([]string, 0, len(template))
	seen := make(map[string]struct{}, len(template))
	for _, st := range template {
		if err := st.Validate(); err != nil {
			return nil, err
		}
		if _, dup := seen[st.Name]; dup {
			return nil, fmt.Errorf("duplicate stage name %q", st.Name)
		}
		seen[st.Name] = struct{}{}
		names = append(names, st.Name)
	}
	return names, nil
}

// ParticipantIDs returns the participant ids in sorted order.
func (e *Experiment) ParticipantIDs() []string {
	ids := make([]string, 0, len(e.Participants))
	for id := range e.Participants {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Participant returns the record for uid.
func (e *Experiment) Participant(uid string) (*UserProgress, bool) {
	p, ok := e.Participants[uid]
	return p, ok && p != nil
}

// FindByAccessCode returns the participant holding code.
func (e *Experiment) FindByAccessCode(code string) (*UserProgress, bool) {
	if code == "" {
		return nil, false
	}
	for _, p := range e.Participants {
		if p.AccessCode == code {
			return p, true
		}
	}
	return nil, false
}

// HasStage reports whether name is part of the stage sequence.
func (e *Experiment) HasStage(name string) bool {
	for _, n := range e.StageNames {
		if n == name {
			return true
		}
	}
	return false
}

// Validate checks every participant record.
func (e *Experiment) Validate() error {
	for id, p := range e.Participants {
		if p == nil || p.UserID != id {
			return fmt.Errorf("%w: participant key %q does not match record", ErrIdentityChanged, id)
		}
		if err := p.Validate(e.StageNames); err != nil {
			return err
		}
	}
	return nil
}

// Clone returns a deep copy.
func (e *Experiment) Clone() *Experiment {
	if e == nil {
		return nil
	}
	out := &Experiment{
		Name:                 e.Name,
		Date:                 e.Date,
		NumberOfParticipants: e.NumberOfParticipants,
		StageNames:           cloneStrings(e.StageNames),
	}
	if e.Participants != nil {
		out.Participants = make(map[string]*UserProgress, len(e.Participants))
		for id, p := range e.Participants {
			out.Participants[id] = p.Clone()
		}
	}
	return out
}
