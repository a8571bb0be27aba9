package services

import (
	"context"
	"errors"
	"testing"
	"time"
)

type authStubStore struct {
	experimenters map[string]*Experimenter
}

func newAuthStubStore() *authStubStore {
	return &authStubStore{experimenters: map[string]*Experimenter{}}
}

func (s *authStubStore) FindExperimenterByEmail(_ context.Context, email string) (*Experimenter, error) {
	if e, ok := s.experimenters[email]; ok {
		copy := *e
		return &copy, nil
	}
	return nil, nil
}

func (s *authStubStore) AddExperimenter(_ context.Context, e *Experimenter) error {
	if _, ok := s.experimenters[e.Email]; ok {
		return errors.New("duplicate experimenter")
	}
	copy := *e
	s.experimenters[e.Email] = &copy
	return nil
}

func TestAuthRegisterAndLogin(t *testing.T) {
	store := newAuthStubStore()
	svc := NewAuthService(store, func(uid, email string, ttl time.Duration) (string, error) {
		return "token:" + uid + ":" + email, nil
	}, 0)
	svc.now = func() time.Time { return time.Unix(0, 0) }
	svc.idGen = func(prefix string, n int) string { return prefix + "1234567" }
	ctx := context.Background()

	res, err := svc.Register(ctx, " Lab@Example.com ", "Secret123")
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	if res.UserID != "x1234567" {
		t.Fatalf("unexpected id: %+v", res)
	}
	if res.Token != "token:x1234567:lab@example.com" {
		t.Fatalf("unexpected token %q", res.Token)
	}
	if svc.TokenTTL() != 30*24*time.Hour {
		t.Fatalf("default ttl not applied")
	}

	_, err = svc.Register(ctx, "lab@example.com", "Secret123")
	if se, ok := AsServiceError(err); !ok || se.Code != ErrorConflict {
		t.Fatalf("expected conflict, got %v", err)
	}

	login, err := svc.Login(ctx, "LAB@example.com", "Secret123")
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	if login.UserID != res.UserID {
		t.Fatalf("login returned %q, want %q", login.UserID, res.UserID)
	}

	if _, err := svc.Login(ctx, "lab@example.com", "wrong"); err == nil {
		t.Fatalf("expected invalid credentials")
	} else if se, ok := AsServiceError(err); !ok || se.Code != ErrorUnauthorized {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if _, err := svc.Login(ctx, "nobody@example.com", "Secret123"); err == nil {
		t.Fatalf("expected unknown user to fail")
	}
}

func TestAuthValidation(t *testing.T) {
	svc := NewAuthService(newAuthStubStore(), nil, time.Hour)
	if _, err := svc.Register(context.Background(), "", "x"); err == nil {
		t.Fatalf("expected missing email error")
	}
	if _, err := svc.Register(context.Background(), "a@b.c", "pw"); err == nil {
		t.Fatalf("expected signer error")
	}
}
