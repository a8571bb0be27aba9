package api

import (
	"context"

	"github.com/deliblab/deliblab/internal/services"
)

// Store is everything the router needs from the state store.
type Store interface {
	services.ExperimentAdminStore
	services.AIConfigStore
	services.AuthStore
	services.Refresher

	ListAudit(ctx context.Context, target string) ([]services.AuditEntry, error)
	Subscribe(name string) (<-chan struct{}, func())
}

var (
	_ Store                  = (*MemoryStore)(nil)
	_ services.ConsentStore  = (*MemoryStore)(nil)
	_ services.MediatorStore = (*MemoryStore)(nil)
)
