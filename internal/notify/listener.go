// Package notify delivers the components a disabled-component purge found
// with leftover data that the caller had not flagged.
package notify

import (
	"context"

	"github.com/dray-io/purger/internal/logging"
	"github.com/dray-io/purger/internal/purge"
)

// LogListener logs missed components at warn level.
type LogListener struct {
	logger *logging.Logger
}

// NewLogListener creates a LogListener. A nil logger uses the global one.
func NewLogListener(l *logging.Logger) *LogListener {
	return &LogListener{logger: l}
}

func (l *LogListener) OnComponentsDisabling(ctx context.Context, rootUUID string, componentUUIDs []string) {
	logging.FromCtx(ctx, l.logger).Warnf("components disabled outside the known set", logging.Fields{
		"root":       rootUUID,
		"components": componentUUIDs,
		"count":      len(componentUUIDs),
	})
}

// Multi fans a notification out to every listener in order.
type Multi []purge.Listener

func (m Multi) OnComponentsDisabling(ctx context.Context, rootUUID string, componentUUIDs []string) {
	for _, l := range m {
		if l != nil {
			l.OnComponentsDisabling(ctx, rootUUID, componentUUIDs)
		}
	}
}

var (
	_ purge.Listener = (*LogListener)(nil)
	_ purge.Listener = Multi(nil)
)
