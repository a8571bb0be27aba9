package experiment

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func threeStageTemplate() []*Stage {
	return []*Stage{
		NewStage("accept-tos", &TOSConfig{TOSLines: []string{"I agree"}}),
		NewStage("set-profile", &ProfileConfig{}),
		NewStage("survey", &SurveyConfig{Questions: []*Question{{ID: "q1", Kind: QuestionText, Text: "Why?"}}}),
	}
}

func sequentialIDs(prefix string) func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("%s%d", prefix, n)
	}
}

func newTestExperiment(t *testing.T, count int, template []*Stage) *Experiment {
	t.Helper()
	exp, err := NewExperiment("exp", count, template, SetupOptions{
		NewUserID:     sequentialIDs("u"),
		NewAccessCode: sequentialIDs("code"),
	})
	require.NoError(t, err)
	return exp
}

func assertPartition(t *testing.T, p *UserProgress, names []string) {
	t.Helper()
	require.NoError(t, p.Validate(names))
	assert.ElementsMatch(t, names, p.Order())
}

func TestScenarioThreeParticipantsAdvanceOnce(t *testing.T) {
	exp := newTestExperiment(t, 3, threeStageTemplate())
	require.Len(t, exp.Participants, 3)

	for _, p := range exp.Participants {
		assert.Equal(t, "accept-tos", p.WorkingOn)
		assert.Equal(t, []string{"set-profile", "survey"}, p.Future)
		assert.Empty(t, p.Completed)
	}
	for _, p := range exp.Participants {
		next, advanced, err := p.NextStep(p.WorkingOn)
		require.NoError(t, err)
		assert.True(t, advanced)
		assert.Equal(t, "set-profile", next)
	}
	for _, p := range exp.Participants {
		assert.Equal(t, "set-profile", p.WorkingOn)
		assert.Equal(t, []string{"accept-tos"}, p.Completed)
		assert.Equal(t, []string{"survey"}, p.Future)
	}
}

func TestNextStepRunsToTerminalState(t *testing.T) {
	exp := newTestExperiment(t, 1, threeStageTemplate())
	p := exp.Participants["u1"]
	names := exp.StageNames

	for i := 0; i < len(names); i++ {
		assertPartition(t, p, names)
		_, advanced, err := p.NextStep("")
		require.NoError(t, err)
		assert.True(t, advanced)
	}
	assert.True(t, p.Finished())
	assert.Equal(t, "", p.WorkingOn)
	assert.Equal(t, names, p.Completed)
	assert.Empty(t, p.Future)
	assertPartition(t, p, names)

	next, advanced, err := p.NextStep("")
	require.NoError(t, err)
	assert.False(t, advanced)
	assert.Equal(t, "survey", next)
}

func TestNextStepWhileReviewingOnlyMovesView(t *testing.T) {
	exp := newTestExperiment(t, 1, threeStageTemplate())
	p := exp.Participants["u1"]
	p.Advance()
	p.Advance()
	require.Equal(t, "survey", p.WorkingOn)

	future := append([]string(nil), p.Future...)
	next, advanced, err := p.NextStep("accept-tos")
	require.NoError(t, err)
	assert.False(t, advanced)
	assert.Equal(t, "set-profile", next)
	assert.Equal(t, "survey", p.WorkingOn)
	assert.Equal(t, future, p.Future)

	next, advanced, err = p.NextStep("set-profile")
	require.NoError(t, err)
	assert.False(t, advanced)
	assert.Equal(t, "survey", next, "last completed pages to the working stage")
	assert.Equal(t, []string{"accept-tos", "set-profile"}, p.Completed)
}

func TestNextStepReviewAfterFinishing(t *testing.T) {
	exp := newTestExperiment(t, 1, threeStageTemplate())
	p := exp.Participants["u1"]
	for p.Advance() {
	}
	next, advanced, err := p.NextStep("set-profile")
	require.NoError(t, err)
	assert.False(t, advanced)
	assert.Equal(t, "survey", next)

	next, _, err = p.NextStep("survey")
	require.NoError(t, err)
	assert.Equal(t, "survey", next)
}

func TestNextStepRejectsUnknownAndFutureStages(t *testing.T) {
	exp := newTestExperiment(t, 1, threeStageTemplate())
	p := exp.Participants["u1"]

	_, _, err := p.NextStep("nope")
	assert.True(t, errors.Is(err, ErrStageNotFound))

	_, _, err = p.NextStep("survey")
	assert.True(t, errors.Is(err, ErrStageNotReached))
	assert.Equal(t, "accept-tos", p.WorkingOn)
}

func TestValidateDetectsBrokenPartition(t *testing.T) {
	exp := newTestExperiment(t, 1, threeStageTemplate())
	p := exp.Participants["u1"]

	dup := p.Clone()
	dup.Future = append(dup.Future, "accept-tos")
	assert.ErrorIs(t, dup.Validate(exp.StageNames), ErrInvalidProgress)

	missing := p.Clone()
	missing.Future = missing.Future[:1]
	assert.ErrorIs(t, missing.Validate(exp.StageNames), ErrInvalidProgress)

	stuck := p.Clone()
	stuck.WorkingOn = ""
	stuck.Completed = []string{"accept-tos"}
	assert.ErrorIs(t, stuck.Validate(exp.StageNames), ErrInvalidProgress)
}

func TestCloneIsIndependent(t *testing.T) {
	exp := newTestExperiment(t, 2, DefaultTemplate())
	p := exp.Participants["u1"]
	cp := p.Clone()

	chat, err := ConfigAs[ChatConfig](cp.StageMap["group-discussion"])
	require.NoError(t, err)
	chat.ReadyToEndChat = true
	cp.Advance()

	orig, err := ConfigAs[ChatConfig](p.StageMap["group-discussion"])
	require.NoError(t, err)
	assert.False(t, orig.ReadyToEndChat)
	assert.Equal(t, "tos-and-profile", p.WorkingOn)
}
