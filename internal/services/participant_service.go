package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/deliblab/deliblab/internal/experiment"
)

// ParticipantController is the single mutation gateway for one participant's record.
// Every write goes through the store as one transaction over the whole experiment, so
// fan-out writes either reach every participant or none.
type ParticipantController struct {
	store      ExperimentStore
	experiment string
	userID     string
	now        func() time.Time
	idGen      func() string
}

func NewParticipantController(store ExperimentStore, experimentName, userID string) *ParticipantController {
	return &ParticipantController{
		store:      store,
		experiment: experimentName,
		userID:     userID,
		now:        func() time.Time { return time.Now().UTC() },
		idGen:      func() string { return shortID(12) },
	}
}

func (c *ParticipantController) UserID() string { return c.userID }

// Progress returns a copy of the participant's record.
func (c *ParticipantController) Progress(ctx context.Context) (*experiment.UserProgress, error) {
	exp, err := c.store.GetExperiment(ctx, c.experiment)
	if err != nil {
		return nil, err
	}
	if exp == nil {
		return nil, NewNotFoundError("experiment not found")
	}
	p, ok := exp.Participant(c.userID)
	if !ok {
		return nil, NewNotFoundError("participant not found")
	}
	return p, nil
}

func (c *ParticipantController) participant(exp *experiment.Experiment) (*experiment.UserProgress, error) {
	p, ok := exp.Participant(c.userID)
	if !ok {
		return nil, NewNotFoundError("participant not found")
	}
	return p, nil
}

// Edit applies fn to a copy of the participant's record and stores the result.
// Changing the user id is rejected.
func (c *ParticipantController) Edit(ctx context.Context, fn func(*experiment.UserProgress) error) error {
	return c.store.UpdateExperiment(ctx, c.experiment, func(exp *experiment.Experiment) error {
		p, err := c.participant(exp)
		if err != nil {
			return err
		}
		draft := p.Clone()
		if err := fn(draft); err != nil {
			return err
		}
		if draft.UserID != c.userID {
			return fmt.Errorf("%w: %q became %q", experiment.ErrIdentityChanged, c.userID, draft.UserID)
		}
		exp.Participants[c.userID] = draft
		return nil
	})
}

// EditStageData applies fn to the payload of the working stage after checking that the
// stage holds a *T.
func EditStageData[T any, PT interface {
	*T
	experiment.StageConfig
}](ctx context.Context, c *ParticipantController, fn func(PT) error) error {
	return c.Edit(ctx, func(p *experiment.UserProgress) error {
		st, err := p.CurrentStage()
		if err != nil {
			return err
		}
		cfg, err := experiment.ConfigAs[T, PT](st)
		if err != nil {
			return err
		}
		return fn(cfg)
	})
}

// SetProfile replaces the participant's profile. A profile form on the working stage
// receives the same values.
func (c *ParticipantController) SetProfile(ctx context.Context, profile experiment.Profile) error {
	profile.Name = strings.TrimSpace(profile.Name)
	if profile.Name == "" {
		return NewInvalidError("name required")
	}
	return c.Edit(ctx, func(p *experiment.UserProgress) error {
		p.Profile = profile
		st, err := p.CurrentStage()
		if err != nil {
			return nil
		}
		switch cfg := st.Config.(type) {
		case *experiment.ProfileConfig:
			cfg.Profile = profile
		case *experiment.TOSAndProfileConfig:
			cfg.Profile = profile
		}
		return nil
	})
}

// SendMessage appends a user message to every participant's copy of the sender's
// working chat stage.
func (c *ParticipantController) SendMessage(ctx context.Context, text string) (*experiment.Message, error) {
	var sent *experiment.Message
	err := c.store.UpdateExperiment(ctx, c.experiment, func(exp *experiment.Experiment) error {
		sender, err := c.participant(exp)
		if err != nil {
			return err
		}
		st, err := sender.CurrentStage()
		if err != nil {
			return err
		}
		if _, err := experiment.ConfigAs[experiment.ChatConfig](st); err != nil {
			return err
		}
		msg := experiment.NewUserMessage(c.idGen(), sender, strings.TrimSpace(text), c.now())
		if err := msg.Validate(); err != nil {
			return err
		}
		if err := broadcast(exp, st.Name, msg); err != nil {
			return err
		}
		sent = msg
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sent, nil
}

// broadcast appends a copy of msg to the named chat stage of every participant.
func broadcast(exp *experiment.Experiment, stageName string, msg *experiment.Message) error {
	for _, id := range exp.ParticipantIDs() {
		st, err := exp.Participants[id].Stage(stageName)
		if err != nil {
			return err
		}
		chat, err := experiment.ConfigAs[experiment.ChatConfig](st)
		if err != nil {
			return err
		}
		chat.Messages = append(chat.Messages, msg.Clone())
	}
	return nil
}

// NextStep applies "next" while the participant views the named stage and returns the
// stage to view afterwards. Entering a leader-vote stage normalizes the ballot; entering
// a leader-reveal stage publishes the current tally to every participant.
func (c *ParticipantController) NextStep(ctx context.Context, viewing string) (string, error) {
	var next string
	err := c.store.UpdateExperiment(ctx, c.experiment, func(exp *experiment.Experiment) error {
		p, err := c.participant(exp)
		if err != nil {
			return err
		}
		draft := p.Clone()
		n, advanced, err := draft.NextStep(viewing)
		if err != nil {
			return err
		}
		next = n
		exp.Participants[c.userID] = draft
		if !advanced || draft.Finished() {
			return nil
		}
		return enterStage(exp, draft, c.now())
	})
	if err != nil {
		return "", err
	}
	return next, nil
}

func enterStage(exp *experiment.Experiment, p *experiment.UserProgress, now time.Time) error {
	st, err := p.CurrentStage()
	if err != nil {
		return err
	}
	switch cfg := st.Config.(type) {
	case *experiment.VoteConfig:
		cfg.Votes = experiment.NormalizeVotes(cfg.Votes, p.UserID, exp.ParticipantIDs())
	case *experiment.RevealConfig:
		return publishReveal(exp, st.Name, cfg.PendingVoteStageName, now)
	}
	return nil
}

// publishReveal tallies voteStage and writes the ranking to every participant's copy of
// revealStage.
func publishReveal(exp *experiment.Experiment, revealStage, voteStage string, now time.Time) error {
	ranking, err := experiment.Tally(exp, voteStage)
	if err != nil {
		return err
	}
	winner, _ := experiment.Winner(ranking)
	for _, id := range exp.ParticipantIDs() {
		st, err := exp.Participants[id].Stage(revealStage)
		if err != nil {
			return err
		}
		cfg, err := experiment.ConfigAs[experiment.RevealConfig](st)
		if err != nil {
			return err
		}
		at := now
		cfg.RevealedAt = &at
		cfg.Ranking = append([]experiment.Candidate{}, ranking...)
		cfg.WinnerID = winner.UserID
	}
	return nil
}

// ToggleReadyToEndChat sets the participant's ready flag on the working chat stage.
func (c *ParticipantController) ToggleReadyToEndChat(ctx context.Context, ready bool) error {
	return EditStageData(ctx, c, func(cfg *experiment.ChatConfig) error {
		cfg.ReadyToEndChat = ready
		return nil
	})
}

// CastVotes stores the participant's ballot on the working leader-vote stage.
func (c *ParticipantController) CastVotes(ctx context.Context, votes experiment.Votes) error {
	for target, v := range votes {
		if !v.Valid() {
			return NewInvalidError(fmt.Sprintf("invalid vote %q for %s", v, target))
		}
	}
	exp, err := c.store.GetExperiment(ctx, c.experiment)
	if err != nil {
		return err
	}
	if exp == nil {
		return NewNotFoundError("experiment not found")
	}
	ids := exp.ParticipantIDs()
	for target := range votes {
		if target == c.userID {
			return NewInvalidError("cannot vote for yourself")
		}
		if _, ok := exp.Participant(target); !ok {
			return NewInvalidError("unknown participant " + target)
		}
	}
	return EditStageData(ctx, c, func(cfg *experiment.VoteConfig) error {
		merged := cfg.Votes.Clone()
		if merged == nil {
			merged = experiment.Votes{}
		}
		for target, v := range votes {
			merged[target] = v
		}
		cfg.Votes = experiment.NormalizeVotes(merged, c.userID, ids)
		return nil
	})
}

// AnswerSurvey writes answers onto the working survey stage. All answers are checked
// before any is stored.
func (c *ParticipantController) AnswerSurvey(ctx context.Context, answers []experiment.Answer) error {
	if len(answers) == 0 {
		return NewInvalidError("answers required")
	}
	return EditStageData(ctx, c, func(cfg *experiment.SurveyConfig) error {
		for _, a := range answers {
			q := cfg.Question(a.QuestionID)
			if q == nil {
				return NewInvalidError("unknown question " + a.QuestionID)
			}
			if err := q.Apply(a); err != nil {
				return err
			}
		}
		return nil
	})
}
