package connection

import (
	"github.com/life-stream-dev/twidder/internal/logger"
	"github.com/life-stream-dev/twidder/internal/protocol"
)

// Notifier is what request handlers use to wake an account's socket.
type Notifier interface {
	Notify(accountID string, action protocol.ServerAction, data any) bool
}

// Dispatcher delivers notifications to online accounts.
type Dispatcher struct {
	registry *Registry
}

func NewDispatcher(registry *Registry) *Dispatcher {
	return &Dispatcher{registry: registry}
}

// Notify queues action for accountID's connection if one is registered.
// It never waits on socket I/O; a missing account is a silent no-op.
func (d *Dispatcher) Notify(accountID string, action protocol.ServerAction, data any) bool {
	member, ok := d.registry.Lookup(accountID)
	if !ok {
		return false
	}
	if !member.Push(action, data) {
		logger.DebugF("[%s] Dropped %s notification for %s", member.ID(), action, accountID)
		return false
	}
	logger.DebugF("[%s] Queued %s notification for %s", member.ID(), action, accountID)
	return true
}
