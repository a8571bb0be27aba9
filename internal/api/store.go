package api

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/deliblab/deliblab/internal/experiment"
	"github.com/deliblab/deliblab/internal/logger"
	"github.com/deliblab/deliblab/internal/services"
)

// StateKey names the single persisted application state blob.
const StateKey = "deliblab/app-state"

const auditCap = 1000

// Persister loads and saves the application state blob. Load returns nil when nothing
// has been saved yet.
type Persister interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, blob []byte) error
}

// AuditSink is implemented by persisters that keep a durable audit log.
type AuditSink interface {
	AppendAudit(ctx context.Context, e services.AuditEntry) error
}

// AuditLister is implemented by persisters that can read their audit log back.
type AuditLister interface {
	ListAudit(ctx context.Context, target string) ([]services.AuditEntry, error)
}

// AppState is the persisted layout.
type AppState struct {
	Settings      services.Settings                 `json:"settings"`
	Experiments   map[string]*experiment.Experiment `json:"experiments"`
	Experimenters map[string]*services.Experimenter `json:"experimenters"`
}

func emptyState() AppState {
	return AppState{
		Experiments:   map[string]*experiment.Experiment{},
		Experimenters: map[string]*services.Experimenter{},
	}
}

// MemoryStore holds the application state in memory and writes it through to a
// Persister on every change. Writers are serialized; readers get deep copies.
type MemoryStore struct {
	mu        sync.RWMutex
	state     AppState
	audit     []services.AuditEntry
	persister Persister
	log       logger.Logger

	subMu sync.Mutex
	subs  map[string]map[chan struct{}]struct{}
}

// NewMemoryStore loads the persisted state. A nil persister keeps state in memory only.
func NewMemoryStore(ctx context.Context, persister Persister, log logger.Logger) (*MemoryStore, error) {
	if log == nil {
		log = logger.Nop()
	}
	s := &MemoryStore{state: emptyState(), persister: persister, log: log, subs: map[string]map[chan struct{}]struct{}{}}
	if persister == nil {
		return s, nil
	}
	st, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	s.state = st
	return s, nil
}

func (s *MemoryStore) load(ctx context.Context) (AppState, error) {
	blob, err := s.persister.Load(ctx)
	if err != nil {
		return AppState{}, fmt.Errorf("load state: %w", err)
	}
	st := emptyState()
	if len(blob) == 0 {
		return st, nil
	}
	if err := json.Unmarshal(blob, &st); err != nil {
		return AppState{}, fmt.Errorf("decode state: %w", err)
	}
	if st.Experiments == nil {
		st.Experiments = map[string]*experiment.Experiment{}
	}
	if st.Experimenters == nil {
		st.Experimenters = map[string]*services.Experimenter{}
	}
	for name, e := range st.Experiments {
		if err := e.Validate(); err != nil {
			return AppState{}, fmt.Errorf("experiment %q: %w", name, err)
		}
	}
	return st, nil
}

// commit persists next and makes it current. Callers hold s.mu.
func (s *MemoryStore) commit(ctx context.Context, next AppState) error {
	if s.persister != nil {
		blob, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("encode state: %w", err)
		}
		if err := s.persister.Save(ctx, blob); err != nil {
			s.log.Error("store", "persist failed", map[string]any{"error": err})
			return fmt.Errorf("persist state: %w", err)
		}
	}
	s.state = next
	return nil
}

// withExperiments copies the state with a fresh experiments map.
func (st AppState) withExperiments() AppState {
	exps := make(map[string]*experiment.Experiment, len(st.Experiments))
	for k, v := range st.Experiments {
		exps[k] = v
	}
	st.Experiments = exps
	return st
}

func (s *MemoryStore) GetExperiment(_ context.Context, name string) (*experiment.Experiment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if e, ok := s.state.Experiments[name]; ok {
		return e.Clone(), nil
	}
	return nil, nil
}

// UpdateExperiment runs fn on a copy of the named experiment and swaps the copy in only
// when fn succeeds, the result validates and it was persisted.
func (s *MemoryStore) UpdateExperiment(ctx context.Context, name string, fn func(*experiment.Experiment) error) error {
	s.mu.Lock()
	cur, ok := s.state.Experiments[name]
	if !ok {
		s.mu.Unlock()
		return services.NewNotFoundError("experiment not found")
	}
	draft := cur.Clone()
	if err := fn(draft); err != nil {
		s.mu.Unlock()
		return err
	}
	if err := draft.Validate(); err != nil {
		s.mu.Unlock()
		return err
	}
	next := s.state.withExperiments()
	next.Experiments[name] = draft
	err := s.commit(ctx, next)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.notify(name)
	return nil
}

func (s *MemoryStore) InsertExperiment(ctx context.Context, e *experiment.Experiment) error {
	if err := e.Validate(); err != nil {
		return services.NewInvalidError(err.Error())
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.state.Experiments[e.Name]; ok {
		return services.NewConflictError("experiment exists")
	}
	next := s.state.withExperiments()
	next.Experiments[e.Name] = e.Clone()
	return s.commit(ctx, next)
}

func (s *MemoryStore) ListExperiments(_ context.Context) ([]*experiment.Experiment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*experiment.Experiment, 0, len(s.state.Experiments))
	for _, e := range s.state.Experiments {
		out = append(out, e.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemoryStore) DeleteExperiment(ctx context.Context, name string) (bool, error) {
	s.mu.Lock()
	if _, ok := s.state.Experiments[name]; !ok {
		s.mu.Unlock()
		return false, nil
	}
	next := s.state.withExperiments()
	delete(next.Experiments, name)
	err := s.commit(ctx, next)
	s.mu.Unlock()
	if err != nil {
		return false, err
	}
	s.notify(name)
	return true, nil
}

func (s *MemoryStore) GetSettings(_ context.Context) (services.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Settings, nil
}

func (s *MemoryStore) UpdateSettings(ctx context.Context, st services.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.state
	next.Settings = st
	return s.commit(ctx, next)
}

func (s *MemoryStore) FindExperimenterByEmail(_ context.Context, email string) (*services.Experimenter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.state.Experimenters[strings.ToLower(email)]
	if !ok {
		return nil, nil
	}
	cp := *e
	cp.PassHash = append([]byte(nil), e.PassHash...)
	return &cp, nil
}

func (s *MemoryStore) AddExperimenter(ctx context.Context, e *services.Experimenter) error {
	if e == nil || e.Email == "" {
		return services.NewInvalidError("experimenter required")
	}
	key := strings.ToLower(e.Email)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.state.Experimenters[key]; ok {
		return services.NewConflictError("email exists")
	}
	next := s.state
	next.Experimenters = make(map[string]*services.Experimenter, len(s.state.Experimenters)+1)
	for k, v := range s.state.Experimenters {
		next.Experimenters[k] = v
	}
	cp := *e
	next.Experimenters[key] = &cp
	return s.commit(ctx, next)
}

// AddAudit keeps the most recent entries in memory and forwards them to the persister
// when it keeps a durable log.
func (s *MemoryStore) AddAudit(e services.AuditEntry) {
	s.mu.Lock()
	s.audit = append(s.audit, e)
	if len(s.audit) > auditCap {
		s.audit = append([]services.AuditEntry(nil), s.audit[len(s.audit)-auditCap:]...)
	}
	s.mu.Unlock()
	if sink, ok := s.persister.(AuditSink); ok {
		if err := sink.AppendAudit(context.Background(), e); err != nil {
			s.log.Warn("store", "audit write failed", map[string]any{"error": err, "action": e.Action})
		}
	}
}

// ListAudit returns audit entries for target (all when empty), oldest first. A durable
// log is preferred so history survives restarts; otherwise the in-memory ring is used.
func (s *MemoryStore) ListAudit(ctx context.Context, target string) ([]services.AuditEntry, error) {
	if lister, ok := s.persister.(AuditLister); ok {
		out, err := lister.ListAudit(ctx, target)
		if err != nil {
			return nil, fmt.Errorf("list audit: %w", err)
		}
		return out, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]services.AuditEntry, 0, len(s.audit))
	for _, e := range s.audit {
		if target == "" || e.Target == target {
			out = append(out, e)
		}
	}
	return out, nil
}

// Refresh re-reads the persisted state. A blob that cannot be loaded is reported and the
// in-memory state is kept. Writers are held off from the read to the swap.
func (s *MemoryStore) Refresh(ctx context.Context) error {
	if s.persister == nil {
		return nil
	}
	s.mu.Lock()
	st, err := s.load(ctx)
	if err != nil {
		s.mu.Unlock()
		s.log.Error("store", "refresh failed, keeping current state", map[string]any{"error": err})
		return services.NewInvalidError(err.Error())
	}
	s.state = st
	s.mu.Unlock()
	s.notifyAll()
	return nil
}

// Subscribe returns a channel that receives a signal after every committed change to the
// named experiment. Signals coalesce; cancel releases the subscription.
func (s *MemoryStore) Subscribe(name string) (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	s.subMu.Lock()
	if s.subs[name] == nil {
		s.subs[name] = map[chan struct{}]struct{}{}
	}
	s.subs[name][ch] = struct{}{}
	s.subMu.Unlock()
	return ch, func() {
		s.subMu.Lock()
		delete(s.subs[name], ch)
		if len(s.subs[name]) == 0 {
			delete(s.subs, name)
		}
		s.subMu.Unlock()
	}
}

func (s *MemoryStore) notify(name string) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for ch := range s.subs[name] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (s *MemoryStore) notifyAll() {
	s.subMu.Lock()
	names := make([]string, 0, len(s.subs))
	for name := range s.subs {
		names = append(names, name)
	}
	s.subMu.Unlock()
	for _, name := range names {
		s.notify(name)
	}
}
