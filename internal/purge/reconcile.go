package purge

import (
	"context"
	"time"

	"github.com/juju/collections/set"

	"github.com/dray-io/purger/internal/batch"
	"github.com/dray-io/purger/internal/logging"
)

const reconcileProcedure = "purgeDisabledComponents"

// PurgeDisabledComponents removes the child data still attached to disabled
// components of rootUUID: file sources and live measures are deleted and
// unresolved issues are resolved. The three probes share one commit.
//
// Components found with child data but absent from known are reported to
// listener once, sorted. A nil listener skips the notification.
func (c *Commands) PurgeDisabledComponents(ctx context.Context, rootUUID string, known []string, listener Listener) error {
	discovered := set.NewStrings()

	probes := []struct {
		table    string
		selectFn func(context.Context, string) ([]string, error)
		apply    func(context.Context, []string) error
	}{
		{"file_sources", c.gw.SelectDisabledComponentsWithFileSource, c.gw.DeleteFileSourcesByFileUUIDs},
		{"unresolved_issues", c.gw.SelectDisabledComponentsWithUnresolvedIssues, c.resolveIssues(c.clock.Now())},
		{"live_measures", c.gw.SelectDisabledComponentsWithLiveMeasures, c.gw.DeleteLiveMeasuresByComponentUUIDs},
	}
	for _, p := range probes {
		touched, err := c.probe(ctx, label(reconcileProcedure, p.table), rootUUID, p.selectFn, p.apply)
		if err != nil {
			return err
		}
		discovered = discovered.Union(set.NewStrings(touched...))
	}

	if err := c.gw.Commit(ctx); err != nil {
		return err
	}

	missed := discovered.Difference(set.NewStrings(known...))
	if missed.IsEmpty() || listener == nil {
		return nil
	}

	uuids := missed.SortedValues()
	logging.FromCtx(ctx, c.logger).Infof("disabled components with leftover data", logging.Fields{
		"root":   rootUUID,
		"missed": len(uuids),
	})
	listener.OnComponentsDisabling(ctx, rootUUID, uuids)
	return nil
}

// probe selects the affected components and applies fn to them in bounded
// batches, returning the identifiers it touched.
func (c *Commands) probe(
	ctx context.Context,
	name, rootUUID string,
	selectFn func(context.Context, string) ([]string, error),
	fn func(context.Context, []string) error,
) ([]string, error) {
	c.profiler.Start(name)
	defer c.profiler.Stop()

	uuids, err := selectFn(ctx, rootUUID)
	if err != nil {
		return nil, err
	}
	return batch.ExecuteLargeInputs(ctx, uuids, c.maxResources, func(ctx context.Context, chunk []string) ([]string, error) {
		if err := fn(ctx, chunk); err != nil {
			return nil, err
		}
		return chunk, nil
	})
}

func (c *Commands) resolveIssues(now time.Time) func(context.Context, []string) error {
	return func(ctx context.Context, uuids []string) error {
		return c.gw.ResolveComponentIssuesNotAlreadyResolved(ctx, uuids, now)
	}
}
