package handlers

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/buildhive/aws-connections/internal/form"
)

// formTTL bounds how long an abandoned editing session is kept.
const formTTL = 2 * time.Hour

type formEntry struct {
	form     *form.Form
	lastSeen time.Time
}

// FormRegistry holds the live editing sessions keyed by an opaque form key
// carried in a hidden field. Sessions expire after formTTL of inactivity.
type FormRegistry struct {
	mu    sync.Mutex
	forms map[string]*formEntry
	now   func() time.Time
}

// NewFormRegistry builds an empty registry.
func NewFormRegistry() *FormRegistry {
	return &FormRegistry{
		forms: make(map[string]*formEntry),
		now:   time.Now,
	}
}

// Put stores a session and returns its key.
func (r *FormRegistry) Put(f *form.Form) string {
	key := uuid.NewString()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prune()
	r.forms[key] = &formEntry{form: f, lastSeen: r.now()}
	return key
}

// Get returns the session for a key and refreshes its expiry.
func (r *FormRegistry) Get(key string) (*form.Form, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.forms[key]
	if !ok {
		return nil, false
	}
	if r.now().Sub(entry.lastSeen) > formTTL {
		delete(r.forms, key)
		return nil, false
	}
	entry.lastSeen = r.now()
	return entry.form, true
}

// Delete drops a finished session.
func (r *FormRegistry) Delete(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.forms, key)
}

func (r *FormRegistry) prune() {
	cutoff := r.now().Add(-formTTL)
	for key, entry := range r.forms {
		if entry.lastSeen.Before(cutoff) {
			delete(r.forms, key)
		}
	}
}
