package workflow

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iot-for-tillgenglighet/iot-sensor-service/internal/pkg/infrastructure/logging"
	"github.com/iot-for-tillgenglighet/iot-sensor-service/internal/pkg/registry"
)

//Sessions keeps the open workflows of all technicians
type Sessions struct {
	mu       sync.Mutex
	store    *registry.Store
	log      logging.Logger
	opts     []Option
	sessions map[uuid.UUID]*Workflow
}

//NewSessions creates a session table. opts are applied to every workflow it starts.
func NewSessions(store *registry.Store, log logging.Logger, opts ...Option) *Sessions {
	return &Sessions{
		store:    store,
		log:      log,
		opts:     opts,
		sessions: map[uuid.UUID]*Workflow{},
	}
}

//Start opens a new workflow for technician
func (s *Sessions) Start(technician string) *Workflow {
	w := New(s.store, technician, s.log, s.opts...)

	s.mu.Lock()
	s.sessions[w.ID()] = w
	s.mu.Unlock()

	s.log.Infof("Started service session %s for %s", w.ID(), technician)
	return w
}

//Get looks up an open session
func (s *Sessions) Get(id uuid.UUID) (*Workflow, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.sessions[id]
	return w, ok
}

//End closes a session. Unknown ids are ignored.
func (s *Sessions) End(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, id)
}

//Len returns the number of open sessions
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.sessions)
}

//Prune ends sessions that have been idle since before cutoff and returns how many were ended
func (s *Sessions) Prune(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	pruned := 0
	for id, w := range s.sessions {
		if w.LastUsed().Before(cutoff) {
			delete(s.sessions, id)
			pruned++
		}
	}

	if pruned > 0 {
		s.log.Infof("Pruned %d idle service sessions", pruned)
	}
	return pruned
}
