package experiment

import "sort"

// VoteValue is one participant's opinion of another as a leader.
type VoteValue string

const (
	VotePositive VoteValue = "positive"
	VoteNeutral  VoteValue = "neutral"
	VoteNegative VoteValue = "negative"
	VoteNotRated VoteValue = "not-rated"
)

func (v VoteValue) Valid() bool {
	switch v {
	case VotePositive, VoteNeutral, VoteNegative, VoteNotRated:
		return true
	}
	return false
}

// Votes maps another participant's id to a vote.
type Votes map[string]VoteValue

func (v Votes) Clone() Votes {
	if v == nil {
		return nil
	}
	out := make(Votes, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

// NormalizeVotes returns a copy of v holding exactly the other participants: self and
// stale entries are dropped and missing participants are added as not-rated.
func NormalizeVotes(v Votes, self string, participants []string) Votes {
	out := make(Votes, len(participants))
	for _, id := range participants {
		if id == self {
			continue
		}
		if val, ok := v[id]; ok && val.Valid() {
			out[id] = val
			continue
		}
		out[id] = VoteNotRated
	}
	return out
}

// Candidate is a participant's net leader score.
type Candidate struct {
	UserID string `json:"userId"`
	Score  int    `json:"score"`
}

// Tally ranks every participant by positive minus negative votes received in the named
// leader-vote stage. Ties are broken by ascending user id.
func Tally(exp *Experiment, stageName string) ([]Candidate, error) {
	scores := make(map[string]int, len(exp.Participants))
	for id := range exp.Participants {
		scores[id] = 0
	}
	for voterID, p := range exp.Participants {
		st, err := p.Stage(stageName)
		if err != nil {
			return nil, err
		}
		cfg, err := ConfigAs[VoteConfig](st)
		if err != nil {
			return nil, err
		}
		for target, val := range cfg.Votes {
			if target == voterID {
				continue
			}
			if _, ok := scores[target]; !ok {
				continue
			}
			switch val {
			case VotePositive:
				scores[target]++
			case VoteNegative:
				scores[target]--
			}
		}
	}
	ranking := make([]Candidate, 0, len(scores))
	for id, s := range scores {
		ranking = append(ranking, Candidate{UserID: id, Score: s})
	}
	sort.Slice(ranking, func(i, j int) bool {
		if ranking[i].Score != ranking[j].Score {
			return ranking[i].Score > ranking[j].Score
		}
		return ranking[i].UserID < ranking[j].UserID
	})
	return ranking, nil
}

// Winner returns the top of a ranking produced by Tally.
func Winner(ranking []Candidate) (Candidate, bool) {
	if len(ranking) == 0 {
		return Candidate{}, false
	}
	return ranking[0], true
}
