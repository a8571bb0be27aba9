package services

import (
	"context"
	"strings"
	"text/template"
	"time"

	"github.com/deliblab/deliblab/internal/experiment"
	"github.com/deliblab/deliblab/internal/llm"
)

type MediatorStore interface {
	ExperimentStore
	AIConfigStore
}

// MediatorService asks a language model for a short intervention in a group chat and
// posts it to every participant as a mediator message.
type MediatorService struct {
	store     MediatorStore
	completer llm.Completer
	now       func() time.Time
	idGen     func() string
}

func NewMediatorService(store MediatorStore, completer llm.Completer) *MediatorService {
	return &MediatorService{
		store:     store,
		completer: completer,
		now:       func() time.Time { return time.Now().UTC() },
		idGen:     func() string { return shortID(12) },
	}
}

var mediatorPrompt = template.Must(template.New("mediator").Parse(`The group is ranking survival items after a shipwreck.
{{- if .Pairs}}
Pairs under discussion:
{{- range .Pairs}}
- {{.}}
{{- end}}
{{- end}}

Transcript:
{{- range .Lines}}
{{.}}
{{- else}}
(no messages yet)
{{- end}}

Write one or two sentences that help the group reach a decision together.`))

const mediatorSystem = "You are a neutral discussion facilitator. Never take sides and never reveal you are a model."

type mediatorInput struct {
	Pairs []string
	Lines []string
}

func buildMediatorPrompt(chat *experiment.ChatConfig) (string, error) {
	in := mediatorInput{}
	for _, p := range chat.RatingsToDiscuss {
		in.Pairs = append(in.Pairs, experiment.Items[p.Item1].Name+" vs "+experiment.Items[p.Item2].Name)
	}
	for _, m := range chat.Messages {
		switch m.Kind {
		case experiment.MessageUser:
			name := m.FromUserID
			if m.FromProfile != nil && m.FromProfile.Name != "" {
				name = m.FromProfile.Name
			}
			in.Lines = append(in.Lines, name+": "+m.Text)
		case experiment.MessageMediator:
			in.Lines = append(in.Lines, "Facilitator: "+m.Text)
		case experiment.MessageDiscussItems:
			in.Lines = append(in.Lines, "Moderator: "+m.Text)
		}
	}
	var b strings.Builder
	if err := mediatorPrompt.Execute(&b, in); err != nil {
		return "", err
	}
	return b.String(), nil
}

// Mediate posts a model-written message into chatStage.
func (s *MediatorService) Mediate(ctx context.Context, name, chatStage string) (*experiment.Message, error) {
	settings, err := s.store.GetSettings(ctx)
	if err != nil {
		return nil, err
	}
	if !settings.LLM.AllowExternal || s.completer == nil {
		return nil, NewInvalidError("external AI disabled")
	}
	exp, err := s.store.GetExperiment(ctx, name)
	if err != nil {
		return nil, err
	}
	if exp == nil {
		return nil, NewNotFoundError("experiment not found")
	}
	ids := exp.ParticipantIDs()
	if len(ids) == 0 {
		return nil, NewInvalidError("experiment has no participants")
	}
	st, err := exp.Participants[ids[0]].Stage(chatStage)
	if err != nil {
		return nil, NewNotFoundError(err.Error())
	}
	chat, err := experiment.ConfigAs[experiment.ChatConfig](st)
	if err != nil {
		return nil, err
	}
	prompt, err := buildMediatorPrompt(chat)
	if err != nil {
		return nil, err
	}
	text, err := s.completer.Complete(ctx, prompt, llm.CompleteOptions{
		Model:       settings.LLM.Model,
		System:      mediatorSystem,
		Temperature: 0.4,
		MaxTokens:   256,
	})
	if err != nil {
		return nil, NewBadGatewayError(err.Error())
	}
	msg := experiment.NewMediatorMessage(s.idGen(), strings.TrimSpace(text), s.now())
	if err := msg.Validate(); err != nil {
		return nil, NewBadGatewayError("empty completion")
	}
	if err := s.store.UpdateExperiment(ctx, name, func(e *experiment.Experiment) error {
		return broadcast(e, chatStage, msg)
	}); err != nil {
		return nil, err
	}
	return msg, nil
}
