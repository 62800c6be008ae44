// Package connection maps accounts to their single live connection and delivers notifications.
package connection

import (
	"context"
	"sync"
	"time"

	"github.com/life-stream-dev/twidder/internal/logger"
	"github.com/life-stream-dev/twidder/internal/protocol"
)

const (
	ReasonSuperseded = "You logged in at another location."
	ReasonResumed    = "Your session was resumed on another connection."

	trackerTimeout = 2 * time.Second
)

// Member is a live connection that can occupy an account slot.
type Member interface {
	ID() string
	SessionToken() string
	Closed() bool
	// Push queues a server-initiated frame without blocking.
	Push(action protocol.ServerAction, data any) bool
	// Evict pushes LOGOUT with reason and then closes the connection.
	Evict(reason string)
}

// Registry maps an account to its current connection.
type Registry struct {
	mu      sync.RWMutex
	members map[string]Member
	tracker Tracker
}

func NewRegistry(tracker Tracker) *Registry {
	if tracker == nil {
		tracker = NopTracker{}
	}
	return &Registry{
		members: make(map[string]Member),
		tracker: tracker,
	}
}

// Register installs member as the holder of accountID. A distinct previous
// holder is evicted after the swap. Returns false when member is already
// closed and was not installed.
func (r *Registry) Register(accountID string, member Member) bool {
	r.mu.Lock()
	if member.Closed() {
		r.mu.Unlock()
		return false
	}
	previous := r.members[accountID]
	r.members[accountID] = member
	r.mu.Unlock()

	logger.InfoF("[%s] Account %s online", member.ID(), accountID)

	if previous != nil && previous != member {
		reason := ReasonSuperseded
		if previous.SessionToken() == member.SessionToken() {
			reason = ReasonResumed
		}
		logger.InfoF("[%s] Evicted from account %s by %s", previous.ID(), accountID, member.ID())
		previous.Evict(reason)
	}

	r.track(func(ctx context.Context) error {
		return r.tracker.Online(ctx, accountID, member.ID())
	})
	return true
}

// Unregister removes accountID only while member still holds it.
func (r *Registry) Unregister(accountID string, member Member) bool {
	r.mu.Lock()
	current, ok := r.members[accountID]
	if !ok || current != member {
		r.mu.Unlock()
		return false
	}
	delete(r.members, accountID)
	r.mu.Unlock()

	logger.InfoF("[%s] Account %s offline", member.ID(), accountID)
	r.track(func(ctx context.Context) error {
		return r.tracker.Offline(ctx, accountID, member.ID())
	})
	return true
}

func (r *Registry) Lookup(accountID string) (Member, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	member, ok := r.members[accountID]
	return member, ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

// CloseAll evicts every member. Only used on shutdown.
func (r *Registry) CloseAll(reason string) {
	r.mu.RLock()
	members := make([]Member, 0, len(r.members))
	for _, m := range r.members {
		members = append(members, m)
	}
	r.mu.RUnlock()

	for _, m := range members {
		m.Evict(reason)
	}
}

func (r *Registry) track(fn func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), trackerTimeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		logger.WarnF("Presence tracker failed: %v", err)
	}
}
