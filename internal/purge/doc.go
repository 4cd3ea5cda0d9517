// Package purge deletes the history and derived data of a project, branch or
// application across every record family that hangs off it.
//
// # Ordering
//
// The store does not enforce the references between families, so every
// procedure in [Commands] deletes dependent rows before the rows they point
// at: duplication index, event component changes, events, measures and
// analysis properties go before the analyses themselves; application branch
// links go before application links and branches. An interrupted purge can
// therefore leave orphaned leaf rows but never a dangling reference.
//
// # Phases and commits
//
// Each procedure is a sequence of phases. A phase issues its gateway calls,
// one per batch of at most 1000 identifiers, then commits. Phases are
// bracketed by the profiler and named "<procedure> (<table>)". There is no
// transaction spanning a whole cascade; re-running a failed procedure is the
// recovery path and is safe because every delete is idempotent.
//
// # Disabled components
//
// [Commands.PurgeDisabledComponents] looks for disabled components that
// still carry file sources, unresolved issues or live measures, cleans that
// data up, and reports to a [Listener] the components the caller did not
// already know were disabled.
//
// # Usage
//
//	cmds := purge.NewCommands(session,
//	    purge.WithProfiler(prof),
//	    purge.WithLogger(logger),
//	)
//	if err := cmds.DeleteRoot(ctx, projectUUID); err != nil {
//	    return err
//	}
package purge
