package purge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/juju/clock"

	"github.com/dray-io/purger/internal/batch"
	"github.com/dray-io/purger/internal/logging"
	"github.com/dray-io/purger/internal/profiler"
)

// Batch limits for statements taking identifier lists.
const (
	DefaultMaxAnalysesPerQuery  = 1000
	DefaultMaxResourcesPerQuery = 1000
)

// ErrUnboundedScope is returned when a compute-engine activity purge would
// match every row of the store.
var ErrUnboundedScope = errors.New("purge: activity scope has neither root nor cutoff")

var unprocessedStatuses = []string{StatusUnprocessed}

// Clock supplies the resolution time stamped on issues closed by a purge.
// clock.WallClock and testclock.Clock satisfy it.
type Clock interface {
	Now() time.Time
}

// Commands runs purge procedures against a Gateway. It holds no state
// between calls beyond its collaborators, and is not safe for concurrent use
// because the Gateway session is not.
type Commands struct {
	gw           Gateway
	profiler     profiler.Profiler
	clock        Clock
	logger       *logging.Logger
	maxAnalyses  int
	maxResources int
}

// Option configures Commands.
type Option func(*Commands)

// WithProfiler sets the profiler bracketing each phase.
func WithProfiler(p profiler.Profiler) Option {
	return func(c *Commands) { c.profiler = p }
}

// WithClock sets the clock used to stamp resolved issues.
func WithClock(clk Clock) Option {
	return func(c *Commands) { c.clock = clk }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(c *Commands) { c.logger = l }
}

// WithMaxAnalysesPerQuery sets the batch size for analysis UUID lists.
func WithMaxAnalysesPerQuery(n int) Option {
	return func(c *Commands) { c.maxAnalyses = n }
}

// WithMaxResourcesPerQuery sets the batch size for component UUID lists.
func WithMaxResourcesPerQuery(n int) Option {
	return func(c *Commands) { c.maxResources = n }
}

// NewCommands creates Commands over gw. It panics if a batch limit is not
// positive.
func NewCommands(gw Gateway, opts ...Option) *Commands {
	c := &Commands{
		gw:           gw,
		clock:        clock.WallClock,
		maxAnalyses:  DefaultMaxAnalysesPerQuery,
		maxResources: DefaultMaxResourcesPerQuery,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.maxAnalyses <= 0 || c.maxResources <= 0 {
		panic(fmt.Sprintf("purge: batch limits must be positive, got analyses=%d resources=%d",
			c.maxAnalyses, c.maxResources))
	}
	if c.logger == nil {
		c.logger = logging.Global()
	}
	c.profiler = profiler.Isolate(c.profiler, c.logger)
	return c
}

func label(procedure, table string) string {
	return procedure + " (" + table + ")"
}

// phase runs fn inside a profiler bracket and commits when fn succeeds. The
// bracket is closed exactly once whatever fn returns. Errors from fn and from
// the commit are returned unmodified.
func (c *Commands) phase(ctx context.Context, name string, fn func() error) error {
	c.profiler.Start(name)
	defer c.profiler.Stop()

	if err := fn(); err != nil {
		return err
	}
	return c.gw.Commit(ctx)
}

// forEach applies op to every batch in order.
func forEach(ctx context.Context, batches [][]string, op func(context.Context, []string) error) func() error {
	return func() error {
		for _, b := range batches {
			if err := op(ctx, b); err != nil {
				return err
			}
		}
		return nil
	}
}

// byRoot binds a root-scoped gateway call.
func byRoot(ctx context.Context, uuid string, op func(context.Context, string) error) func() error {
	return func() error { return op(ctx, uuid) }
}

// SelectSnapshotUUIDs returns the analyses matching q.
func (c *Commands) SelectSnapshotUUIDs(ctx context.Context, q AnalysisQuery) ([]string, error) {
	return c.gw.SelectAnalysisUUIDs(ctx, q)
}

// DeleteAnalyses deletes every analysis of rootUUID along with its
// dependent rows.
func (c *Commands) DeleteAnalyses(ctx context.Context, rootUUID string) error {
	uuids, err := c.gw.SelectAnalysisUUIDs(ctx, AnalysisQuery{RootUUID: rootUUID})
	if err != nil {
		return err
	}
	return c.DeleteAnalysesByUUIDs(ctx, uuids)
}

// DeleteAbortedAnalyses deletes analyses of rootUUID that are neither the
// last analysis nor processed.
func (c *Commands) DeleteAbortedAnalyses(ctx context.Context, rootUUID string) error {
	isLast := false
	uuids, err := c.gw.SelectAnalysisUUIDs(ctx, AnalysisQuery{
		RootUUID: rootUUID,
		IsLast:   &isLast,
		Statuses: unprocessedStatuses,
	})
	if err != nil {
		return err
	}
	return c.DeleteAnalysesByUUIDs(ctx, uuids)
}

// DeleteAnalysesByUUIDs deletes the given analyses and their dependent rows,
// leaves first. An empty list does nothing.
func (c *Commands) DeleteAnalysesByUUIDs(ctx context.Context, analysisUUIDs []string) error {
	if len(analysisUUIDs) == 0 {
		return nil
	}
	batches := batch.Partition(analysisUUIDs, c.maxAnalyses)

	if err := c.deleteAnalysisDuplications(ctx, batches); err != nil {
		return err
	}

	steps := []struct {
		table string
		op    func(context.Context, []string) error
	}{
		{"event_component_changes", c.gw.DeleteAnalysisEventComponentChanges},
		{"events", c.gw.DeleteAnalysisEvents},
		{"project_measures", c.gw.DeleteAnalysisMeasures},
		{"analysis_properties", c.gw.DeleteAnalysisProperties},
		{"snapshots", c.gw.DeleteAnalyses},
	}
	for _, s := range steps {
		if err := c.phase(ctx, label("deleteAnalyses", s.table), forEach(ctx, batches, s.op)); err != nil {
			return err
		}
	}
	return nil
}

// PurgeAnalyses soft-purges the given analyses: their duplication index rows
// are deleted and the snapshots are flagged as purged. Measures, events and
// properties are kept. An empty list does nothing.
func (c *Commands) PurgeAnalyses(ctx context.Context, analysisUUIDs []string) error {
	if len(analysisUUIDs) == 0 {
		return nil
	}
	batches := batch.Partition(analysisUUIDs, c.maxAnalyses)

	if err := c.deleteAnalysisDuplications(ctx, batches); err != nil {
		return err
	}
	return c.phase(ctx, label("updatePurgeStatusToOne", "snapshots"),
		forEach(ctx, batches, c.gw.UpdatePurgeStatusToOne))
}

func (c *Commands) deleteAnalysisDuplications(ctx context.Context, batches [][]string) error {
	return c.phase(ctx, label("deleteAnalysisDuplications", "duplications_index"),
		forEach(ctx, batches, c.gw.DeleteAnalysisDuplications))
}

// DeletePermissions deletes group then user permissions on rootUUID.
func (c *Commands) DeletePermissions(ctx context.Context, rootUUID string) error {
	if err := c.phase(ctx, label("deletePermissions", "group_roles"),
		byRoot(ctx, rootUUID, c.gw.DeleteGroupRolesByComponentUUID)); err != nil {
		return err
	}
	return c.phase(ctx, label("deletePermissions", "user_roles"),
		byRoot(ctx, rootUUID, c.gw.DeleteUserRolesByComponentUUID))
}

// DeleteIssues deletes issue changes then issues of rootUUID.
func (c *Commands) DeleteIssues(ctx context.Context, rootUUID string) error {
	if err := c.phase(ctx, label("deleteIssues", "issue_changes"),
		byRoot(ctx, rootUUID, c.gw.DeleteIssueChangesByProjectUUID)); err != nil {
		return err
	}
	return c.phase(ctx, label("deleteIssues", "issues"),
		byRoot(ctx, rootUUID, c.gw.DeleteIssuesByProjectUUID))
}

// DeleteEvents deletes event component changes and then events raised on
// rootUUID, whether or not their analysis still exists.
func (c *Commands) DeleteEvents(ctx context.Context, rootUUID string) error {
	if err := c.phase(ctx, label("deleteEvents", "event_component_changes"),
		byRoot(ctx, rootUUID, c.gw.DeleteEventComponentChangesByComponentUUID)); err != nil {
		return err
	}
	return c.phase(ctx, label("deleteEvents", "events"),
		byRoot(ctx, rootUUID, c.gw.DeleteEventsByComponentUUID))
}

// DeleteLinks deletes the project links of rootUUID.
func (c *Commands) DeleteLinks(ctx context.Context, rootUUID string) error {
	return c.phase(ctx, label("deleteLinks", "project_links"),
		byRoot(ctx, rootUUID, c.gw.DeleteProjectLinksByProjectUUID))
}

// DeleteByRootAndModulesOrSubviews deletes the properties set on the root
// and on its modules or subviews. An empty list does nothing.
func (c *Commands) DeleteByRootAndModulesOrSubviews(ctx context.Context, componentUUIDs []string) error {
	if len(componentUUIDs) == 0 {
		return nil
	}
	batches := batch.Partition(componentUUIDs, c.maxResources)
	return c.phase(ctx, label("deleteByRootAndModulesOrSubviews", "properties"),
		forEach(ctx, batches, c.gw.DeletePropertiesByComponentUUIDs))
}

// DeleteDisabledComponentsWithoutIssues deletes the properties and then the
// component rows of the given disabled components. An empty list does nothing.
func (c *Commands) DeleteDisabledComponentsWithoutIssues(ctx context.Context, componentUUIDs []string) error {
	if len(componentUUIDs) == 0 {
		return nil
	}
	batches := batch.Partition(componentUUIDs, c.maxResources)

	if err := c.phase(ctx, label("deleteDisabledComponentsWithoutIssues", "properties"),
		forEach(ctx, batches, c.gw.DeletePropertiesByComponentUUIDs)); err != nil {
		return err
	}
	return c.phase(ctx, label("deleteDisabledComponentsWithoutIssues", "projects"),
		forEach(ctx, batches, c.gw.DeleteComponentsByUUIDs))
}

// DeleteOutdatedProperties deletes the properties set on a single branch.
func (c *Commands) DeleteOutdatedProperties(ctx context.Context, branchUUID string) error {
	return c.phase(ctx, label("deleteOutdatedProperties", "properties"), func() error {
		return c.gw.DeletePropertiesByComponentUUIDs(ctx, []string{branchUUID})
	})
}

// DeleteComponents deletes the given component rows. An empty list does
// nothing.
func (c *Commands) DeleteComponents(ctx context.Context, componentUUIDs []string) error {
	if len(componentUUIDs) == 0 {
		return nil
	}
	batches := batch.Partition(componentUUIDs, c.maxResources)
	return c.phase(ctx, label("deleteComponents", "projects"),
		forEach(ctx, batches, c.gw.DeleteComponentsByUUIDs))
}

// DeleteComponentsByRoot deletes every component row under rootUUID.
func (c *Commands) DeleteComponentsByRoot(ctx context.Context, rootUUID string) error {
	return c.phase(ctx, label("deleteComponents", "projects"),
		byRoot(ctx, rootUUID, c.gw.DeleteComponentsByProjectUUID))
}

// DeleteComponentsByMainBranchProjectUUID deletes component rows of every
// branch of the project whose main branch is projectUUID.
func (c *Commands) DeleteComponentsByMainBranchProjectUUID(ctx context.Context, projectUUID string) error {
	return c.phase(ctx, label("deleteComponentsByMainBranchProjectUuid", "projects"),
		byRoot(ctx, projectUUID, c.gw.DeleteComponentsByMainBranchProjectUUID))
}

// DeleteProject deletes the project row itself.
func (c *Commands) DeleteProject(ctx context.Context, projectUUID string) error {
	return c.phase(ctx, label("deleteProject", "projects"),
		byRoot(ctx, projectUUID, c.gw.DeleteProjectsByProjectUUID))
}

// DeleteComponentMeasures deletes every measure of the given components. An
// empty list does nothing.
func (c *Commands) DeleteComponentMeasures(ctx context.Context, componentUUIDs []string) error {
	if len(componentUUIDs) == 0 {
		return nil
	}
	batches := batch.Partition(componentUUIDs, c.maxResources)
	return c.phase(ctx, label("deleteComponentMeasures", "project_measures"),
		forEach(ctx, batches, c.gw.FullDeleteComponentMeasures))
}

// DeleteFileSources deletes the file sources of rootUUID.
func (c *Commands) DeleteFileSources(ctx context.Context, rootUUID string) error {
	return c.phase(ctx, label("deleteFileSources", "file_sources"),
		byRoot(ctx, rootUUID, c.gw.DeleteFileSourcesByProjectUUID))
}

// DeleteCeActivity deletes every finished compute-engine task of rootUUID.
func (c *Commands) DeleteCeActivity(ctx context.Context, rootUUID string) error {
	return c.deleteCeActivity(ctx, "deleteCeActivity", ActivityScope{RootUUID: rootUUID})
}

// DeleteCeActivityBefore deletes finished compute-engine tasks created
// before cutoff. An empty rootUUID applies the cutoff store-wide.
func (c *Commands) DeleteCeActivityBefore(ctx context.Context, rootUUID string, cutoff time.Time) error {
	return c.deleteCeActivity(ctx, "deleteCeActivityBefore", ActivityScope{RootUUID: rootUUID, Before: cutoff})
}

func (c *Commands) deleteCeActivity(ctx context.Context, procedure string, scope ActivityScope) error {
	if scope.Unbounded() {
		return ErrUnboundedScope
	}
	steps := []struct {
		table string
		op    func(context.Context, ActivityScope) error
	}{
		{"ce_scanner_context", c.gw.DeleteCeScannerContextOfCeActivity},
		{"ce_task_characteristics", c.gw.DeleteCeTaskCharacteristicsOfCeActivity},
		{"ce_task_input", c.gw.DeleteCeTaskInputOfCeActivity},
		{"ce_task_message", c.gw.DeleteCeTaskMessageOfCeActivity},
		{"ce_activity", c.gw.DeleteCeActivity},
	}
	for _, s := range steps {
		op := s.op
		if err := c.phase(ctx, label(procedure, s.table), func() error { return op(ctx, scope) }); err != nil {
			return err
		}
	}
	return nil
}

// DeleteCeScannerContextBefore deletes only the scanner context of finished
// tasks created before cutoff. Queued tasks are assumed to be younger than
// any cutoff worth applying.
func (c *Commands) DeleteCeScannerContextBefore(ctx context.Context, rootUUID string, cutoff time.Time) error {
	scope := ActivityScope{RootUUID: rootUUID, Before: cutoff}
	if scope.Unbounded() {
		return ErrUnboundedScope
	}
	return c.phase(ctx, label("deleteCeScannerContextBefore", "ce_scanner_context"), func() error {
		return c.gw.DeleteCeScannerContextOfCeActivity(ctx, scope)
	})
}

// DeleteCeQueue deletes every queued compute-engine task of rootUUID.
func (c *Commands) DeleteCeQueue(ctx context.Context, rootUUID string) error {
	steps := []struct {
		table string
		op    func(context.Context, string) error
	}{
		{"ce_scanner_context", c.gw.DeleteCeScannerContextOfCeQueue},
		{"ce_task_characteristics", c.gw.DeleteCeTaskCharacteristicsOfCeQueue},
		{"ce_task_input", c.gw.DeleteCeTaskInputOfCeQueue},
		{"ce_task_message", c.gw.DeleteCeTaskMessageOfCeQueue},
		{"ce_queue", c.gw.DeleteCeQueue},
	}
	for _, s := range steps {
		if err := c.phase(ctx, label("deleteCeQueue", s.table), byRoot(ctx, rootUUID, s.op)); err != nil {
			return err
		}
	}
	return nil
}

// DeleteWebhooks deletes the webhooks of rootUUID.
func (c *Commands) DeleteWebhooks(ctx context.Context, rootUUID string) error {
	return c.phase(ctx, label("deleteWebhooks", "webhooks"),
		byRoot(ctx, rootUUID, c.gw.DeleteWebhooksByProjectUUID))
}

// DeleteWebhookDeliveries deletes the webhook deliveries of rootUUID.
func (c *Commands) DeleteWebhookDeliveries(ctx context.Context, rootUUID string) error {
	return c.phase(ctx, label("deleteWebhookDeliveries", "webhook_deliveries"),
		byRoot(ctx, rootUUID, c.gw.DeleteWebhookDeliveriesByProjectUUID))
}

// DeleteProjectMappings deletes the project mappings of rootUUID.
func (c *Commands) DeleteProjectMappings(ctx context.Context, rootUUID string) error {
	return c.phase(ctx, label("deleteProjectMappings", "project_mappings"),
		byRoot(ctx, rootUUID, c.gw.DeleteProjectMappingsByProjectUUID))
}

// DeleteApplicationProjects deletes the branch-level links of an application
// and then its project links.
func (c *Commands) DeleteApplicationProjects(ctx context.Context, applicationUUID string) error {
	return c.phase(ctx, label("deleteApplicationProjects", "app_projects"), func() error {
		if err := c.gw.DeleteApplicationBranchProjectBranchesByApplicationUUID(ctx, applicationUUID); err != nil {
			return err
		}
		return c.gw.DeleteApplicationProjectsByApplicationUUID(ctx, applicationUUID)
	})
}

// DeleteApplicationBranchProjects deletes the project branch links of an
// application branch.
func (c *Commands) DeleteApplicationBranchProjects(ctx context.Context, applicationBranchUUID string) error {
	return c.phase(ctx, label("deleteApplicationBranchProjects", "app_branch_project_branch"),
		byRoot(ctx, applicationBranchUUID, c.gw.DeleteApplicationBranchProjects))
}

// DeleteProjectAlmSettings deletes the ALM binding of rootUUID.
func (c *Commands) DeleteProjectAlmSettings(ctx context.Context, rootUUID string) error {
	return c.phase(ctx, label("deleteProjectAlmSettings", "project_alm_settings"),
		byRoot(ctx, rootUUID, c.gw.DeleteProjectAlmSettingsByProjectUUID))
}

// DeleteBranch removes application links pointing at the branch and then
// the branch row.
func (c *Commands) DeleteBranch(ctx context.Context, branchUUID string) error {
	return c.phase(ctx, label("deleteBranch", "project_branches"), func() error {
		if err := c.gw.DeleteApplicationBranchProjectBranchesByProjectBranchUUID(ctx, branchUUID); err != nil {
			return err
		}
		return c.gw.DeleteBranchByUUID(ctx, branchUUID)
	})
}

// DeleteLiveMeasures deletes the live measures of rootUUID.
func (c *Commands) DeleteLiveMeasures(ctx context.Context, rootUUID string) error {
	return c.phase(ctx, label("deleteLiveMeasures", "live_measures"),
		byRoot(ctx, rootUUID, c.gw.DeleteLiveMeasuresByProjectUUID))
}

// DeleteNewCodePeriods deletes the new code period settings of rootUUID.
func (c *Commands) DeleteNewCodePeriods(ctx context.Context, rootUUID string) error {
	return c.phase(ctx, label("deleteNewCodePeriods", "new_code_periods"),
		byRoot(ctx, rootUUID, c.gw.DeleteNewCodePeriodsByRootUUID))
}

// DeleteUserDismissedMessages deletes messages users dismissed on projectUUID.
func (c *Commands) DeleteUserDismissedMessages(ctx context.Context, projectUUID string) error {
	return c.phase(ctx, label("deleteUserDismissedMessages", "user_dismissed_messages"),
		byRoot(ctx, projectUUID, c.gw.DeleteUserDismissedMessagesByProjectUUID))
}

// DeleteProjectInPortfolios removes projectUUID from every portfolio.
func (c *Commands) DeleteProjectInPortfolios(ctx context.Context, projectUUID string) error {
	return c.phase(ctx, label("deleteProjectInPortfolios", "portfolio_projects"),
		byRoot(ctx, projectUUID, c.gw.DeletePortfolioProjectsByProjectUUID))
}
