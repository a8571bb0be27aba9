package experiment

import (
	"fmt"
	"time"
)

// Profile is what other participants see of a participant.
type Profile struct {
	Pronouns  string `json:"pronouns"`
	AvatarURL string `json:"avatarUrl"`
	Name      string `json:"name"`
}

// UserProgress is one participant's record: identity, profile, a private copy of every
// stage, and the partition of stage names into completed, working-on and future.
type UserProgress struct {
	AccessCode    string            `json:"accessCode"`
	UserID        string            `json:"userId"`
	Profile       Profile           `json:"profile"`
	AcceptedTOSAt *time.Time        `json:"acceptedTosTimestamp,omitempty"`
	StageMap      map[string]*Stage `json:"stageMap"`
	Completed     []string          `json:"completedStageNames"`
	WorkingOn     string            `json:"workingOnStageName,omitempty"`
	Future        []string          `json:"futureStageNames"`
}

// Finished reports whether every stage has been completed.
func (p *UserProgress) Finished() bool { return p.WorkingOn == "" }

// Stage returns the participant's copy of the named stage.
func (p *UserProgress) Stage(name string) (*Stage, error) {
	st, ok := p.StageMap[name]
	if !ok || st == nil {
		return nil, fmt.Errorf("%w: %q", ErrStageNotFound, name)
	}
	return st, nil
}

// CurrentStage returns the working-on stage.
func (p *UserProgress) CurrentStage() (*Stage, error) {
	if p.Finished() {
		return nil, ErrFinished
	}
	return p.Stage(p.WorkingOn)
}

// Order returns completed ++ [workingOn] ++ future.
func (p *UserProgress) Order() []string {
	out := make([]string, 0, len(p.Completed)+1+len(p.Future))
	out = append(out, p.Completed...)
	if p.WorkingOn != "" {
		out = append(out, p.WorkingOn)
	}
	return append(out, p.Future...)
}

func (p *UserProgress) completedIndex(name string) int {
	for i, n := range p.Completed {
		if n == name {
			return i
		}
	}
	return -1
}

// Reached reports whether the participant may view the named stage.
func (p *UserProgress) Reached(name string) bool {
	return name != "" && (name == p.WorkingOn || p.completedIndex(name) >= 0)
}

// Advance moves the working-on stage to completed and pops the next future stage.
// It returns false when the participant had already finished.
func (p *UserProgress) Advance() bool {
	if p.Finished() {
		return false
	}
	p.Completed = append(p.Completed, p.WorkingOn)
	p.WorkingOn = ""
	if len(p.Future) > 0 {
		p.WorkingOn = p.Future[0]
		p.Future = p.Future[1:]
	}
	return true
}

// NextStep applies "next" while the participant views the named stage and returns the
// stage to view afterwards. At the frontier (viewing the working-on stage) it advances
// progress. While reviewing a completed stage it only pages the view forward.
// An empty viewing name means the working-on stage.
//
// Once finished, the view rests on the last completed stage.
func (p *UserProgress) NextStep(viewing string) (next string, advanced bool, err error) {
	if viewing == "" {
		viewing = p.WorkingOn
	}
	if viewing != "" {
		if _, err := p.Stage(viewing); err != nil {
			return "", false, err
		}
	}
	if viewing == p.WorkingOn {
		advanced = p.Advance()
		return p.viewAfterProgress(), advanced, nil
	}
	i := p.completedIndex(viewing)
	if i < 0 {
		return "", false, fmt.Errorf("%w: %q", ErrStageNotReached, viewing)
	}
	if i+1 < len(p.Completed) {
		return p.Completed[i+1], false, nil
	}
	if p.Finished() {
		return viewing, false, nil
	}
	return p.WorkingOn, false, nil
}

func (p *UserProgress) viewAfterProgress() string {
	if !p.Finished() {
		return p.WorkingOn
	}
	if n := len(p.Completed); n > 0 {
		return p.Completed[n-1]
	}
	return ""
}

// Validate checks the partition invariant against the experiment's stage order.
func (p *UserProgress) Validate(stageNames []string) error {
	if p.UserID == "" {
		return fmt.Errorf("%w: missing user id", ErrInvalidProgress)
	}
	if p.WorkingOn == "" && len(p.Future) > 0 {
		return fmt.Errorf("%w: user %s has future stages but no working stage", ErrInvalidProgress, p.UserID)
	}
	seen := make(map[string]int, len(stageNames))
	for _, n := range p.Order() {
		seen[n]++
	}
	if len(seen) != len(stageNames) {
		return fmt.Errorf("%w: user %s tracks %d stages, want %d", ErrInvalidProgress, p.UserID, len(seen), len(stageNames))
	}
	for _, n := range stageNames {
		if seen[n] != 1 {
			return fmt.Errorf("%w: user %s lists stage %q %d times", ErrInvalidProgress, p.UserID, n, seen[n])
		}
		st, err := p.Stage(n)
		if err != nil {
			return err
		}
		if err := st.Validate(); err != nil {
			return err
		}
	}
	if len(p.StageMap) != len(stageNames) {
		return fmt.Errorf("%w: user %s owns %d stages, want %d", ErrInvalidProgress, p.UserID, len(p.StageMap), len(stageNames))
	}
	return nil
}

// Clone returns a deep copy.
func (p *UserProgress) Clone() *UserProgress {
	if p == nil {
		return nil
	}
	out := &UserProgress{
		AccessCode: p.AccessCode,
		UserID:     p.UserID,
		Profile:    p.Profile,
		WorkingOn:  p.WorkingOn,
		Completed:  cloneStrings(p.Completed),
		Future:     cloneStrings(p.Future),
	}
	if p.AcceptedTOSAt != nil {
		t := *p.AcceptedTOSAt
		out.AcceptedTOSAt = &t
	}
	if p.StageMap != nil {
		out.StageMap = make(map[string]*Stage, len(p.StageMap))
		for k, st := range p.StageMap {
			out.StageMap[k] = st.Clone()
		}
	}
	return out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append(make([]string, 0, len(in)), in...)
}
