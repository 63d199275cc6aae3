package dealstage

import (
	"errors"
	"sync"
	"time"

	"github.com/zime-ai/nucleus/pkg/uuid"
)

// ErrWizardNotFound is returned for unknown, expired, or foreign wizards.
var ErrWizardNotFound = errors.New("wizard not found")

// DefaultWizardTTL applies when a store is built with a zero TTL.
const DefaultWizardTTL = 2 * time.Hour

// session guards one wizard. Callers hold mu for every read or write of wiz.
type session struct {
	mu  sync.Mutex
	wiz *Wizard
}

// WizardStore keeps wizards in memory, scoped to the staff member who
// started them. Idle wizards expire after the TTL.
type WizardStore struct {
	mu       sync.Mutex
	sessions map[string]*session
	ttl      time.Duration
	now      func() time.Time
}

func NewWizardStore(ttl time.Duration) *WizardStore {
	if ttl <= 0 {
		ttl = DefaultWizardTTL
	}
	return &WizardStore{sessions: make(map[string]*session), ttl: ttl, now: time.Now}
}

// create starts a wizard owned by owner.
func (s *WizardStore) create(owner string) *session {
	w := NewWizard(uuid.NewV7(), owner)
	w.UpdatedAt = s.now()
	sess := &session{wiz: w}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()
	s.sessions[w.ID] = sess
	return sess
}

// get returns the session for id when it belongs to owner and is live.
// Expiry is judged on the last recorded touch.
func (s *WizardStore) get(id, owner string) (*session, error) {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	s.mu.Unlock()
	if !ok {
		return nil, ErrWizardNotFound
	}

	sess.mu.Lock()
	expired := s.now().Sub(sess.wiz.UpdatedAt) > s.ttl
	foreign := sess.wiz.Owner != owner
	sess.mu.Unlock()

	if foreign {
		return nil, ErrWizardNotFound
	}
	if expired {
		s.remove(id)
		return nil, ErrWizardNotFound
	}
	return sess, nil
}

// Delete drops the wizard. Unknown or foreign ids are reported as not found.
func (s *WizardStore) Delete(id, owner string) error {
	if _, err := s.get(id, owner); err != nil {
		return err
	}
	s.remove(id)
	return nil
}

// Len reports the number of stored wizards, expired ones included.
func (s *WizardStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Sweep removes expired wizards and returns how many were dropped.
func (s *WizardStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweepLocked()
}

func (s *WizardStore) sweepLocked() int {
	dropped := 0
	now := s.now()
	for id, sess := range s.sessions {
		if !sess.mu.TryLock() {
			continue
		}
		stale := now.Sub(sess.wiz.UpdatedAt) > s.ttl
		sess.mu.Unlock()
		if stale {
			delete(s.sessions, id)
			dropped++
		}
	}
	return dropped
}

func (s *WizardStore) remove(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

func (s *WizardStore) touch(w *Wizard) {
	w.UpdatedAt = s.now()
}
