package experiment

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigAsMatchesKind(t *testing.T) {
	st := NewStage("vote", &VoteConfig{Votes: Votes{"u2": VotePositive}})

	cfg, err := ConfigAs[VoteConfig](st)
	require.NoError(t, err)
	assert.Equal(t, VotePositive, cfg.Votes["u2"])

	_, err = ConfigAs[SurveyConfig](st)
	assert.ErrorIs(t, err, ErrKindMismatch)

	_, err = ConfigAs[VoteConfig](nil)
	assert.ErrorIs(t, err, ErrStageNotFound)
}

func TestStageValidate(t *testing.T) {
	tests := []struct {
		name  string
		stage *Stage
		want  error
	}{
		{"ok", NewStage("s", &ProfileConfig{}), nil},
		{"no name", NewStage("", &ProfileConfig{}), ErrInvalidProgress},
		{"unknown kind", &Stage{Kind: "poll", Name: "s", Config: &ProfileConfig{}}, ErrUnknownKind},
		{"missing payload", &Stage{Kind: KindSurvey, Name: "s"}, ErrKindMismatch},
		{"wrong payload", &Stage{Kind: KindSurvey, Name: "s", Config: &VoteConfig{}}, ErrKindMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.stage.Validate()
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestStageJSONShape(t *testing.T) {
	st := NewStage("intro", &TOSConfig{TOSLines: []string{"line"}})
	b, err := json.Marshal(st)
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"accept-tos","name":"intro","config":{"tosLines":["line"]}}`, string(b))

	var got Stage
	require.NoError(t, json.Unmarshal(b, &got))
	if diff := cmp.Diff(st, &got); diff != "" {
		t.Fatalf("stage mismatch (-want +got):\n%s", diff)
	}
}

func TestStageUnmarshalUnknownKind(t *testing.T) {
	var st Stage
	err := json.Unmarshal([]byte(`{"kind":"poll","name":"x","config":{}}`), &st)
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestExperimentJSONRoundTrip(t *testing.T) {
	exp := newTestExperiment(t, 3, DefaultTemplate())
	p := exp.Participants["u1"]
	accepted := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	p.AcceptedTOSAt = &accepted
	p.Profile = Profile{Name: "Ada", Pronouns: "she/her", AvatarURL: "🐙"}

	survey, err := ConfigAs[SurveyConfig](p.StageMap["initial-ranking"])
	require.NoError(t, err)
	conf := 0.75
	require.NoError(t, survey.Question("rating-1").Apply(Answer{QuestionID: "rating-1", Choice: ChoiceItem2, Confidence: &conf}))

	chat, err := ConfigAs[ChatConfig](p.StageMap["group-discussion"])
	require.NoError(t, err)
	chat.Messages = append(chat.Messages, NewUserMessage("m1", p, "hello", accepted.Add(time.Minute)))
	chat.Messages = append(chat.Messages, NewDiscussItemsMessage("m2", ItemPair{Item1: "compass", Item2: "rope"}, "Discuss", accepted))

	p.Advance()

	b, err := json.Marshal(exp)
	require.NoError(t, err)
	var got Experiment
	require.NoError(t, json.Unmarshal(b, &got))

	if diff := cmp.Diff(exp, &got); diff != "" {
		t.Fatalf("experiment mismatch (-want +got):\n%s", diff)
	}
	require.NoError(t, got.Validate())
}

func TestCloneConfigsAreDeep(t *testing.T) {
	at := time.Unix(100, 0).UTC()
	tos := &TOSConfig{TOSLines: []string{"a"}, AcceptedAt: &at}
	cp := tos.cloneConfig().(*TOSConfig)
	cp.TOSLines[0] = "b"
	*cp.AcceptedAt = at.Add(time.Hour)
	assert.Equal(t, "a", tos.TOSLines[0])
	assert.Equal(t, at, *tos.AcceptedAt)

	reveal := &RevealConfig{Ranking: []Candidate{{UserID: "u1", Score: 1}}}
	rc := reveal.cloneConfig().(*RevealConfig)
	rc.Ranking[0].Score = 9
	assert.Equal(t, 1, reveal.Ranking[0].Score)
}
