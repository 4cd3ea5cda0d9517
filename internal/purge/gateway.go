package purge

import (
	"context"
	"time"
)

// Analysis status values stored on snapshot rows.
const (
	StatusProcessed   = "P"
	StatusUnprocessed = "U"
)

// AnalysisQuery selects analysis (snapshot) UUIDs belonging to a root.
type AnalysisQuery struct {
	RootUUID string
	// IsLast, when set, restricts to analyses whose islast flag matches.
	IsLast *bool
	// Statuses, when non-empty, restricts to analyses in one of these statuses.
	Statuses []string
	// NotPurged restricts to analyses not yet soft-purged.
	NotPurged bool
}

// ActivityScope bounds a compute-engine activity purge. An empty RootUUID
// matches tasks of every root; a zero Before matches tasks of any age.
type ActivityScope struct {
	RootUUID string
	Before   time.Time
}

// Unbounded reports whether the scope would match every activity row.
func (s ActivityScope) Unbounded() bool {
	return s.RootUUID == "" && s.Before.IsZero()
}

// Selector runs the read side of a purge.
type Selector interface {
	SelectAnalysisUUIDs(ctx context.Context, q AnalysisQuery) ([]string, error)
	SelectRootAndModulesOrSubviews(ctx context.Context, rootUUID string) ([]string, error)
	SelectDisabledComponentsWithFileSource(ctx context.Context, rootUUID string) ([]string, error)
	SelectDisabledComponentsWithUnresolvedIssues(ctx context.Context, rootUUID string) ([]string, error)
	SelectDisabledComponentsWithLiveMeasures(ctx context.Context, rootUUID string) ([]string, error)
}

// AnalysisDeleter removes analyses and the rows hanging off them. Every
// method takes one bounded batch of analysis UUIDs.
type AnalysisDeleter interface {
	DeleteAnalysisDuplications(ctx context.Context, analysisUUIDs []string) error
	DeleteAnalysisEventComponentChanges(ctx context.Context, analysisUUIDs []string) error
	DeleteAnalysisEvents(ctx context.Context, analysisUUIDs []string) error
	DeleteAnalysisMeasures(ctx context.Context, analysisUUIDs []string) error
	DeleteAnalysisProperties(ctx context.Context, analysisUUIDs []string) error
	DeleteAnalyses(ctx context.Context, analysisUUIDs []string) error
	UpdatePurgeStatusToOne(ctx context.Context, analysisUUIDs []string) error
}

// RootDeleter removes rows scoped by a single root, branch or application UUID.
type RootDeleter interface {
	DeleteGroupRolesByComponentUUID(ctx context.Context, rootUUID string) error
	DeleteUserRolesByComponentUUID(ctx context.Context, rootUUID string) error
	DeleteIssueChangesByProjectUUID(ctx context.Context, rootUUID string) error
	DeleteIssuesByProjectUUID(ctx context.Context, rootUUID string) error
	DeleteEventComponentChangesByComponentUUID(ctx context.Context, rootUUID string) error
	DeleteEventsByComponentUUID(ctx context.Context, rootUUID string) error
	DeleteProjectLinksByProjectUUID(ctx context.Context, rootUUID string) error
	DeleteFileSourcesByProjectUUID(ctx context.Context, rootUUID string) error
	DeleteWebhooksByProjectUUID(ctx context.Context, rootUUID string) error
	DeleteWebhookDeliveriesByProjectUUID(ctx context.Context, rootUUID string) error
	DeleteProjectMappingsByProjectUUID(ctx context.Context, rootUUID string) error
	DeleteApplicationBranchProjectBranchesByApplicationUUID(ctx context.Context, applicationUUID string) error
	DeleteApplicationProjectsByApplicationUUID(ctx context.Context, applicationUUID string) error
	DeleteApplicationBranchProjects(ctx context.Context, applicationBranchUUID string) error
	DeleteApplicationBranchProjectBranchesByProjectBranchUUID(ctx context.Context, projectBranchUUID string) error
	DeleteProjectAlmSettingsByProjectUUID(ctx context.Context, rootUUID string) error
	DeleteBranchByUUID(ctx context.Context, branchUUID string) error
	DeleteLiveMeasuresByProjectUUID(ctx context.Context, rootUUID string) error
	DeleteNewCodePeriodsByRootUUID(ctx context.Context, rootUUID string) error
	DeleteUserDismissedMessagesByProjectUUID(ctx context.Context, projectUUID string) error
	DeletePortfolioProjectsByProjectUUID(ctx context.Context, projectUUID string) error
	DeleteComponentsByProjectUUID(ctx context.Context, rootUUID string) error
	DeleteComponentsByMainBranchProjectUUID(ctx context.Context, projectUUID string) error
	DeleteProjectsByProjectUUID(ctx context.Context, projectUUID string) error
}

// ComponentDeleter removes rows for one bounded batch of component UUIDs.
type ComponentDeleter interface {
	DeletePropertiesByComponentUUIDs(ctx context.Context, componentUUIDs []string) error
	DeleteComponentsByUUIDs(ctx context.Context, componentUUIDs []string) error
	FullDeleteComponentMeasures(ctx context.Context, componentUUIDs []string) error
	DeleteFileSourcesByFileUUIDs(ctx context.Context, fileUUIDs []string) error
	DeleteLiveMeasuresByComponentUUIDs(ctx context.Context, componentUUIDs []string) error
	// ResolveComponentIssuesNotAlreadyResolved marks unresolved issues of the
	// components as resolved at now. Already resolved issues are untouched.
	ResolveComponentIssuesNotAlreadyResolved(ctx context.Context, componentUUIDs []string, now time.Time) error
}

// ComputeEngineDeleter removes compute-engine task bookkeeping. Activity rows
// are finished tasks; queue rows are tasks not yet picked up.
type ComputeEngineDeleter interface {
	DeleteCeScannerContextOfCeActivity(ctx context.Context, scope ActivityScope) error
	DeleteCeTaskCharacteristicsOfCeActivity(ctx context.Context, scope ActivityScope) error
	DeleteCeTaskInputOfCeActivity(ctx context.Context, scope ActivityScope) error
	DeleteCeTaskMessageOfCeActivity(ctx context.Context, scope ActivityScope) error
	DeleteCeActivity(ctx context.Context, scope ActivityScope) error

	DeleteCeScannerContextOfCeQueue(ctx context.Context, rootUUID string) error
	DeleteCeTaskCharacteristicsOfCeQueue(ctx context.Context, rootUUID string) error
	DeleteCeTaskInputOfCeQueue(ctx context.Context, rootUUID string) error
	DeleteCeTaskMessageOfCeQueue(ctx context.Context, rootUUID string) error
	DeleteCeQueue(ctx context.Context, rootUUID string) error
}

// Gateway is the storage the purge runs against. Every mutation must be a
// no-op, not an error, when the rows are already gone. Commit persists all
// mutations issued since the previous Commit.
//
// A Gateway is owned by one purge invocation at a time.
type Gateway interface {
	Selector
	AnalysisDeleter
	RootDeleter
	ComponentDeleter
	ComputeEngineDeleter

	Commit(ctx context.Context) error
}
