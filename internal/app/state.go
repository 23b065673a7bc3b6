package app

import (
	"sync"
	"sync/atomic"

	"deckd/internal/domain"
)

// StateStore holds the authoritative application snapshot. Mutation
// happens only through Commit on the coordinator worker; reads swap in
// lock-free through an atomic pointer. Observers get each committed
// snapshot on a dedicated dispatch goroutine, never on the worker.
type StateStore struct {
	current atomic.Pointer[domain.AppState]

	obsMu     sync.Mutex
	observers map[int]func(domain.AppState)
	nextObsID int

	updates   chan domain.AppState
	closeOnce sync.Once
	done      chan struct{}
}

func NewStateStore() *StateStore {
	s := &StateStore{
		observers: make(map[int]func(domain.AppState)),
		updates:   make(chan domain.AppState, 32),
		done:      make(chan struct{}),
	}
	initial := emptyState()
	s.current.Store(&initial)
	go s.dispatch()
	return s
}

func emptyState() domain.AppState {
	return domain.AppState{
		ConnectionStatus: domain.ConnDisconnected,
		Servers:          []domain.ServerConfig{},
		Threads:          []domain.ThreadState{},
		Models:           []domain.ModelInfo{},
		Accounts:         map[string]domain.AccountState{},
	}
}

// Snapshot returns a deep copy of the current state.
func (s *StateStore) Snapshot() domain.AppState {
	return cloneState(*s.current.Load())
}

// Commit applies a mutation to a copy of the current state, restores
// the thread ordering invariant, publishes the result, and hands it to
// observers. Must be called from a single goroutine.
func (s *StateStore) Commit(mutate func(*domain.AppState)) domain.AppState {
	next := cloneState(*s.current.Load())
	mutate(&next)
	domain.SortThreads(next.Threads)
	published := cloneState(next)
	s.current.Store(&published)
	select {
	case s.updates <- cloneState(published):
	case <-s.done:
	}
	return published
}

// Subscribe registers an observer and returns its unsubscribe func.
func (s *StateStore) Subscribe(observer func(domain.AppState)) func() {
	s.obsMu.Lock()
	id := s.nextObsID
	s.nextObsID++
	s.observers[id] = observer
	s.obsMu.Unlock()
	return func() {
		s.obsMu.Lock()
		delete(s.observers, id)
		s.obsMu.Unlock()
	}
}

func (s *StateStore) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
}

func (s *StateStore) dispatch() {
	for {
		select {
		case snapshot := <-s.updates:
			s.obsMu.Lock()
			observers := make([]func(domain.AppState), 0, len(s.observers))
			for _, obs := range s.observers {
				observers = append(observers, obs)
			}
			s.obsMu.Unlock()
			for _, obs := range observers {
				obs(cloneState(snapshot))
			}
		case <-s.done:
			return
		}
	}
}

func cloneState(state domain.AppState) domain.AppState {
	out := state
	out.Servers = append([]domain.ServerConfig(nil), state.Servers...)
	out.Threads = make([]domain.ThreadState, len(state.Threads))
	for i, thread := range state.Threads {
		out.Threads[i] = thread
		out.Threads[i].Messages = append([]domain.ChatMessage(nil), thread.Messages...)
	}
	out.Models = make([]domain.ModelInfo, len(state.Models))
	for i, model := range state.Models {
		out.Models[i] = model
		out.Models[i].ReasoningEfforts = append([]string(nil), model.ReasoningEfforts...)
	}
	out.Accounts = make(map[string]domain.AccountState, len(state.Accounts))
	for id, account := range state.Accounts {
		out.Accounts[id] = account
	}
	if state.ActiveThreadKey != nil {
		key := *state.ActiveThreadKey
		out.ActiveThreadKey = &key
	}
	if state.SelectedModel != nil {
		sel := *state.SelectedModel
		out.SelectedModel = &sel
	}
	return out
}
