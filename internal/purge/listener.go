package purge

import "context"

// Listener is told about disabled components that still had child data but
// were missing from the set the caller passed in. It is invoked at most once
// per reconciliation and only with a non-empty, sorted set.
//
// The data has already been committed when the listener runs, so a listener
// that cannot deliver must keep or log the set itself.
type Listener interface {
	OnComponentsDisabling(ctx context.Context, rootUUID string, componentUUIDs []string)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(ctx context.Context, rootUUID string, componentUUIDs []string)

// OnComponentsDisabling calls f.
func (f ListenerFunc) OnComponentsDisabling(ctx context.Context, rootUUID string, componentUUIDs []string) {
	f(ctx, rootUUID, componentUUIDs)
}
