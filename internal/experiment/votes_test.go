package experiment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func voteExperiment(t *testing.T, ids ...string) *Experiment {
	t.Helper()
	i := 0
	exp, err := NewExperiment("vote", len(ids), []*Stage{
		NewStage("vote", &VoteConfig{Votes: Votes{}}),
		NewStage("reveal", &RevealConfig{PendingVoteStageName: "vote", Ranking: []Candidate{}}),
	}, SetupOptions{
		NewUserID: func() string {
			id := ids[i%len(ids)]
			i++
			return id
		},
		NewAccessCode: sequentialIDs("code"),
	})
	require.NoError(t, err)
	return exp
}

func setVotes(t *testing.T, exp *Experiment, voter string, v Votes) {
	t.Helper()
	cfg, err := ConfigAs[VoteConfig](exp.Participants[voter].StageMap["vote"])
	require.NoError(t, err)
	cfg.Votes = v
}

func TestTallyPicksHighestNetScore(t *testing.T) {
	exp := voteExperiment(t, "A", "B", "C")
	setVotes(t, exp, "A", Votes{"B": VoteNegative, "C": VoteNeutral})
	setVotes(t, exp, "B", Votes{"A": VotePositive, "C": VoteNeutral})
	setVotes(t, exp, "C", Votes{"A": VotePositive, "B": VoteNeutral})

	ranking, err := Tally(exp, "vote")
	require.NoError(t, err)
	assert.Equal(t, []Candidate{{"A", 2}, {"C", 0}, {"B", -1}}, ranking)

	winner, ok := Winner(ranking)
	require.True(t, ok)
	assert.Equal(t, "A", winner.UserID)
}

func TestTallyBreaksTiesByUserID(t *testing.T) {
	exp := voteExperiment(t, "zed", "amy", "bob")
	setVotes(t, exp, "bob", Votes{"zed": VotePositive})
	setVotes(t, exp, "zed", Votes{"amy": VotePositive})

	ranking, err := Tally(exp, "vote")
	require.NoError(t, err)
	assert.Equal(t, []Candidate{{"amy", 1}, {"zed", 1}, {"bob", 0}}, ranking)
}

func TestTallyIgnoresSelfAndStrangers(t *testing.T) {
	exp := voteExperiment(t, "A", "B")
	setVotes(t, exp, "A", Votes{"A": VotePositive, "ghost": VotePositive})
	setVotes(t, exp, "B", Votes{"B": VotePositive, "A": VoteNotRated})

	ranking, err := Tally(exp, "vote")
	require.NoError(t, err)
	assert.Equal(t, []Candidate{{"A", 0}, {"B", 0}}, ranking)
}

func TestTallyRejectsWrongStage(t *testing.T) {
	exp := voteExperiment(t, "A", "B")

	_, err := Tally(exp, "reveal")
	assert.ErrorIs(t, err, ErrKindMismatch)

	_, err = Tally(exp, "missing")
	assert.ErrorIs(t, err, ErrStageNotFound)
}

func TestNormalizeVotes(t *testing.T) {
	got := NormalizeVotes(Votes{"me": VotePositive, "b": VoteNegative, "gone": VotePositive, "c": "bogus"}, "me", []string{"me", "b", "c", "d"})
	assert.Equal(t, Votes{"b": VoteNegative, "c": VoteNotRated, "d": VoteNotRated}, got)
}

func TestWinnerEmpty(t *testing.T) {
	_, ok := Winner(nil)
	assert.False(t, ok)
}
