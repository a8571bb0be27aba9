package services

import (
	"context"
	"testing"

	"github.com/deliblab/deliblab/internal/experiment"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExperimentServiceCreateListDelete(t *testing.T) {
	store := newStubExperimentStore()
	svc := NewExperimentService(store)
	ctx := context.Background()

	exp, err := svc.Create(ctx, "x1", CreateExperimentRequest{Name: " pilot ", Participants: 3})
	require.NoError(t, err)
	assert.Equal(t, "pilot", exp.Name)
	assert.Len(t, exp.Participants, 3)
	assert.Equal(t, "tos-and-profile", exp.StageNames[0])

	_, err = svc.Create(ctx, "x1", CreateExperimentRequest{Name: "pilot", Participants: 2})
	se, ok := AsServiceError(err)
	require.True(t, ok)
	assert.Equal(t, ErrorConflict, se.Code)

	_, err = svc.Create(ctx, "x1", CreateExperimentRequest{Name: "bad", Participants: 0})
	assert.Error(t, err)
	_, err = svc.Create(ctx, "x1", CreateExperimentRequest{Name: "dup-stages", Participants: 1, Template: []*experiment.Stage{
		experiment.NewStage("a", &experiment.ProfileConfig{}),
		experiment.NewStage("a", &experiment.ProfileConfig{}),
	}})
	assert.Error(t, err)

	list, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 3, list[0].NumberOfParticipants)
	assert.Equal(t, 0, list[0].Finished)

	got, err := svc.Get(ctx, "pilot")
	require.NoError(t, err)
	assert.Equal(t, exp.ParticipantIDs(), got.ParticipantIDs())

	require.NoError(t, svc.Delete(ctx, "x1", "pilot"))
	_, err = svc.Get(ctx, "pilot")
	assert.Error(t, err)
	assert.Error(t, svc.Delete(ctx, "x1", "pilot"))

	actions := []string{}
	for _, a := range store.audit {
		actions = append(actions, a.Action)
	}
	assert.Equal(t, []string{"create_experiment", "delete_experiment"}, actions)
}

func TestExperimentServiceRevealLeader(t *testing.T) {
	exp := newLabExperiment(t, "e1", labTemplate(), "a", "b", "c")
	for voter, ballot := range map[string]experiment.Votes{
		"a": {"b": experiment.VotePositive},
		"c": {"b": experiment.VotePositive, "a": experiment.VoteNegative},
	} {
		cfg, err := experiment.ConfigAs[experiment.VoteConfig](exp.Participants[voter].StageMap["vote"])
		require.NoError(t, err)
		cfg.Votes = ballot
	}
	store := newStubExperimentStore(exp)
	svc := NewExperimentService(store)

	ranking, err := svc.RevealLeader(context.Background(), "e1", "reveal")
	require.NoError(t, err)
	assert.Equal(t, []experiment.Candidate{{UserID: "b", Score: 2}, {UserID: "c", Score: 0}, {UserID: "a", Score: -1}}, ranking)
	for _, p := range store.experiments["e1"].Participants {
		cfg, err := experiment.ConfigAs[experiment.RevealConfig](p.StageMap["reveal"])
		require.NoError(t, err)
		assert.Equal(t, "b", cfg.WinnerID)
	}

	_, err = svc.RevealLeader(context.Background(), "e1", "chat")
	assert.ErrorIs(t, err, experiment.ErrKindMismatch)
	_, err = svc.RevealLeader(context.Background(), "e1", "nope")
	assert.Error(t, err)
}

func TestExperimentServiceDiscussItems(t *testing.T) {
	store := newStubExperimentStore(newLabExperiment(t, "e1", labTemplate(), "a", "b"))
	svc := NewExperimentService(store)
	pair := experiment.ItemPair{Item1: "compass", Item2: "rope"}

	msg, err := svc.DiscussItems(context.Background(), "e1", "chat", pair, "")
	require.NoError(t, err)
	assert.Contains(t, msg.Text, "Compass")
	for _, p := range store.experiments["e1"].Participants {
		chat, err := experiment.ConfigAs[experiment.ChatConfig](p.StageMap["chat"])
		require.NoError(t, err)
		require.Len(t, chat.Messages, 1)
		assert.Equal(t, experiment.MessageDiscussItems, chat.Messages[0].Kind)
		assert.Equal(t, pair, *chat.Messages[0].ItemPair)
	}

	_, err = svc.DiscussItems(context.Background(), "e1", "chat", experiment.ItemPair{Item1: "compass", Item2: "piano"}, "x")
	assert.Error(t, err)
	_, err = svc.DiscussItems(context.Background(), "e1", "vote", pair, "x")
	assert.ErrorIs(t, err, experiment.ErrKindMismatch)
}

type refreshingStore struct {
	*stubExperimentStore
	refreshed int
}

func (r *refreshingStore) Refresh(context.Context) error {
	r.refreshed++
	return nil
}

func TestExperimentServiceRefresh(t *testing.T) {
	assert.Error(t, NewExperimentService(newStubExperimentStore()).Refresh(context.Background()))

	rs := &refreshingStore{stubExperimentStore: newStubExperimentStore()}
	require.NoError(t, NewExperimentService(rs).Refresh(context.Background()))
	assert.Equal(t, 1, rs.refreshed)
}

func TestExperimentServiceJoin(t *testing.T) {
	store := newStubExperimentStore()
	svc := NewExperimentService(store)
	ctx := context.Background()
	exp, err := svc.Create(ctx, "x1", CreateExperimentRequest{Name: "pilot", Participants: 2})
	require.NoError(t, err)

	uid := exp.ParticipantIDs()[1]
	got, err := svc.Join(ctx, " "+exp.Participants[uid].AccessCode+" ")
	require.NoError(t, err)
	assert.Equal(t, &JoinResult{Experiment: "pilot", UserID: uid}, got)

	_, err = svc.Join(ctx, "nope")
	se, ok := AsServiceError(err)
	require.True(t, ok)
	assert.Equal(t, ErrorNotFound, se.Code)

	_, err = svc.Join(ctx, "")
	se, _ = AsServiceError(err)
	assert.Equal(t, ErrorInvalid, se.Code)
}
