package services

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"strings"
	"time"

	"github.com/deliblab/deliblab/internal/experiment"
)

type ConsentStore interface {
	ExperimentStore
	AddAudit(entry AuditEntry)
}

type ConsentService struct {
	store ConsentStore
	now   func() time.Time
}

type ConsentResult struct {
	AcceptedAt time.Time `json:"acceptedAt"`
	Hash       string    `json:"hash"`
}

func NewConsentService(store ConsentStore) *ConsentService {
	return &ConsentService{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// AcceptTOS records that the participant accepted the terms shown on their working
// stage. The stage keeps a hash of the exact lines accepted.
func (s *ConsentService) AcceptTOS(ctx context.Context, experimentName, userID string) (*ConsentResult, error) {
	if experimentName == "" || userID == "" {
		return nil, NewInvalidError("experiment/user required")
	}
	at := s.now()
	var hash string
	c := NewParticipantController(s.store, experimentName, userID)
	err := c.Edit(ctx, func(p *experiment.UserProgress) error {
		st, err := p.CurrentStage()
		if err != nil {
			return err
		}
		var tos *experiment.TOSConfig
		switch cfg := st.Config.(type) {
		case *experiment.TOSConfig:
			tos = cfg
		case *experiment.TOSAndProfileConfig:
			tos = &cfg.TOS
		default:
			return NewInvalidError("current stage has no terms to accept")
		}
		hash = tosHash(tos.TOSLines)
		accepted := at
		tos.AcceptedAt = &accepted
		tos.Hash = hash
		p.AcceptedTOSAt = &accepted
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.store.AddAudit(AuditEntry{Time: at, Actor: userID, Action: "accept_tos", Target: experimentName, Note: hash})
	return &ConsentResult{AcceptedAt: at, Hash: hash}, nil
}

func tosHash(lines []string) string {
	sum := sha256.Sum256([]byte(strings.Join(lines, "\n")))
	return base64.StdEncoding.EncodeToString(sum[:])
}
