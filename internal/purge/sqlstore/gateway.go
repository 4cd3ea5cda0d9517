package sqlstore

import (
	"context"
	"strings"
	"time"

	"github.com/dray-io/purger/internal/purge"
)

var _ purge.Gateway = (*Session)(nil)

// Issue fields stamped when a disabled component's issues are closed.
const (
	resolutionRemoved = "REMOVED"
	statusClosed      = "CLOSED"
)

// execList runs a statement whose only argument is an identifier list. An
// empty list touches nothing.
func (s *Session) execList(ctx context.Context, name, query string, uuids []string) error {
	if len(uuids) == 0 {
		return nil
	}
	return s.exec(ctx, name, query, uuids)
}

func (s *Session) SelectAnalysisUUIDs(ctx context.Context, q purge.AnalysisQuery) ([]string, error) {
	var b strings.Builder
	args := []any{q.RootUUID}

	b.WriteString("SELECT uuid FROM snapshots WHERE root_component_uuid = ?")
	if q.IsLast != nil {
		b.WriteString(" AND islast = ?")
		args = append(args, *q.IsLast)
	}
	if len(q.Statuses) > 0 {
		b.WriteString(" AND status IN (?)")
		args = append(args, q.Statuses)
	}
	if q.NotPurged {
		b.WriteString(" AND (purge_status IS NULL OR purge_status <> 1)")
	}
	b.WriteString(" ORDER BY created_at, uuid")

	return s.selectUUIDs(ctx, "select_analyses", b.String(), args...)
}

func (s *Session) SelectRootAndModulesOrSubviews(ctx context.Context, rootUUID string) ([]string, error) {
	return s.selectUUIDs(ctx, "select_root_and_modules",
		`SELECT uuid FROM components
		 WHERE branch_uuid = ? AND scope = 'PRJ' AND qualifier IN ('TRK', 'BRC', 'VW', 'SVW', 'APP')
		 ORDER BY uuid`, rootUUID)
}

func (s *Session) SelectDisabledComponentsWithFileSource(ctx context.Context, rootUUID string) ([]string, error) {
	return s.selectUUIDs(ctx, "select_disabled_with_file_source",
		`SELECT DISTINCT fs.file_uuid FROM file_sources fs
		 JOIN components c ON c.uuid = fs.file_uuid
		 WHERE c.branch_uuid = ? AND c.enabled = 0
		 ORDER BY fs.file_uuid`, rootUUID)
}

func (s *Session) SelectDisabledComponentsWithUnresolvedIssues(ctx context.Context, rootUUID string) ([]string, error) {
	return s.selectUUIDs(ctx, "select_disabled_with_unresolved_issues",
		`SELECT DISTINCT i.component_uuid FROM issues i
		 JOIN components c ON c.uuid = i.component_uuid
		 WHERE c.branch_uuid = ? AND c.enabled = 0 AND i.resolution IS NULL
		 ORDER BY i.component_uuid`, rootUUID)
}

func (s *Session) SelectDisabledComponentsWithLiveMeasures(ctx context.Context, rootUUID string) ([]string, error) {
	return s.selectUUIDs(ctx, "select_disabled_with_live_measures",
		`SELECT DISTINCT lm.component_uuid FROM live_measures lm
		 JOIN components c ON c.uuid = lm.component_uuid
		 WHERE c.branch_uuid = ? AND c.enabled = 0
		 ORDER BY lm.component_uuid`, rootUUID)
}

// Analysis family.

func (s *Session) DeleteAnalysisDuplications(ctx context.Context, uuids []string) error {
	return s.execList(ctx, "delete_duplications_index",
		"DELETE FROM duplications_index WHERE analysis_uuid IN (?)", uuids)
}

func (s *Session) DeleteAnalysisEventComponentChanges(ctx context.Context, uuids []string) error {
	return s.execList(ctx, "delete_event_component_changes",
		"DELETE FROM event_component_changes WHERE event_analysis_uuid IN (?)", uuids)
}

func (s *Session) DeleteAnalysisEvents(ctx context.Context, uuids []string) error {
	return s.execList(ctx, "delete_events",
		"DELETE FROM events WHERE analysis_uuid IN (?)", uuids)
}

func (s *Session) DeleteAnalysisMeasures(ctx context.Context, uuids []string) error {
	return s.execList(ctx, "delete_project_measures",
		"DELETE FROM project_measures WHERE analysis_uuid IN (?)", uuids)
}

func (s *Session) DeleteAnalysisProperties(ctx context.Context, uuids []string) error {
	return s.execList(ctx, "delete_analysis_properties",
		"DELETE FROM analysis_properties WHERE analysis_uuid IN (?)", uuids)
}

func (s *Session) DeleteAnalyses(ctx context.Context, uuids []string) error {
	return s.execList(ctx, "delete_snapshots",
		"DELETE FROM snapshots WHERE uuid IN (?)", uuids)
}

func (s *Session) UpdatePurgeStatusToOne(ctx context.Context, uuids []string) error {
	return s.execList(ctx, "update_purge_status",
		"UPDATE snapshots SET purge_status = 1 WHERE uuid IN (?)", uuids)
}

// Root-scoped family.

func (s *Session) DeleteGroupRolesByComponentUUID(ctx context.Context, uuid string) error {
	return s.exec(ctx, "delete_group_roles", "DELETE FROM group_roles WHERE component_uuid = ?", uuid)
}

func (s *Session) DeleteUserRolesByComponentUUID(ctx context.Context, uuid string) error {
	return s.exec(ctx, "delete_user_roles", "DELETE FROM user_roles WHERE component_uuid = ?", uuid)
}

func (s *Session) DeleteIssueChangesByProjectUUID(ctx context.Context, uuid string) error {
	return s.exec(ctx, "delete_issue_changes",
		"DELETE FROM issue_changes WHERE issue_key IN (SELECT kee FROM issues WHERE project_uuid = ?)", uuid)
}

func (s *Session) DeleteIssuesByProjectUUID(ctx context.Context, uuid string) error {
	return s.exec(ctx, "delete_issues", "DELETE FROM issues WHERE project_uuid = ?", uuid)
}

// Events are also removed by the component they were raised on, which
// catches rows whose analysis is already gone.
func (s *Session) DeleteEventComponentChangesByComponentUUID(ctx context.Context, uuid string) error {
	return s.exec(ctx, "delete_event_component_changes_by_component",
		"DELETE FROM event_component_changes WHERE event_component_uuid = ?", uuid)
}

func (s *Session) DeleteEventsByComponentUUID(ctx context.Context, uuid string) error {
	return s.exec(ctx, "delete_events_by_component", "DELETE FROM events WHERE component_uuid = ?", uuid)
}

func (s *Session) DeleteProjectLinksByProjectUUID(ctx context.Context, uuid string) error {
	return s.exec(ctx, "delete_project_links", "DELETE FROM project_links WHERE project_uuid = ?", uuid)
}

func (s *Session) DeleteFileSourcesByProjectUUID(ctx context.Context, uuid string) error {
	return s.exec(ctx, "delete_file_sources", "DELETE FROM file_sources WHERE project_uuid = ?", uuid)
}

func (s *Session) DeleteWebhooksByProjectUUID(ctx context.Context, uuid string) error {
	return s.exec(ctx, "delete_webhooks", "DELETE FROM webhooks WHERE project_uuid = ?", uuid)
}

func (s *Session) DeleteWebhookDeliveriesByProjectUUID(ctx context.Context, uuid string) error {
	return s.exec(ctx, "delete_webhook_deliveries", "DELETE FROM webhook_deliveries WHERE project_uuid = ?", uuid)
}

func (s *Session) DeleteProjectMappingsByProjectUUID(ctx context.Context, uuid string) error {
	return s.exec(ctx, "delete_project_mappings", "DELETE FROM project_mappings WHERE project_uuid = ?", uuid)
}

func (s *Session) DeleteApplicationBranchProjectBranchesByApplicationUUID(ctx context.Context, uuid string) error {
	return s.exec(ctx, "delete_app_branch_project_branch_by_app",
		"DELETE FROM app_branch_project_branch WHERE application_uuid = ?", uuid)
}

func (s *Session) DeleteApplicationProjectsByApplicationUUID(ctx context.Context, uuid string) error {
	return s.exec(ctx, "delete_app_projects", "DELETE FROM app_projects WHERE application_uuid = ?", uuid)
}

func (s *Session) DeleteApplicationBranchProjects(ctx context.Context, uuid string) error {
	return s.exec(ctx, "delete_app_branch_project_branch_by_app_branch",
		"DELETE FROM app_branch_project_branch WHERE application_branch_uuid = ?", uuid)
}

func (s *Session) DeleteApplicationBranchProjectBranchesByProjectBranchUUID(ctx context.Context, uuid string) error {
	return s.exec(ctx, "delete_app_branch_project_branch_by_project_branch",
		"DELETE FROM app_branch_project_branch WHERE project_branch_uuid = ?", uuid)
}

func (s *Session) DeleteProjectAlmSettingsByProjectUUID(ctx context.Context, uuid string) error {
	return s.exec(ctx, "delete_project_alm_settings", "DELETE FROM project_alm_settings WHERE project_uuid = ?", uuid)
}

func (s *Session) DeleteBranchByUUID(ctx context.Context, uuid string) error {
	return s.exec(ctx, "delete_project_branches", "DELETE FROM project_branches WHERE uuid = ?", uuid)
}

func (s *Session) DeleteLiveMeasuresByProjectUUID(ctx context.Context, uuid string) error {
	return s.exec(ctx, "delete_live_measures", "DELETE FROM live_measures WHERE project_uuid = ?", uuid)
}

func (s *Session) DeleteNewCodePeriodsByRootUUID(ctx context.Context, uuid string) error {
	return s.exec(ctx, "delete_new_code_periods",
		"DELETE FROM new_code_periods WHERE branch_uuid = ? OR project_uuid = ?", uuid, uuid)
}

func (s *Session) DeleteUserDismissedMessagesByProjectUUID(ctx context.Context, uuid string) error {
	return s.exec(ctx, "delete_user_dismissed_messages",
		"DELETE FROM user_dismissed_messages WHERE project_uuid = ?", uuid)
}

func (s *Session) DeletePortfolioProjectsByProjectUUID(ctx context.Context, uuid string) error {
	return s.exec(ctx, "delete_portfolio_projects", "DELETE FROM portfolio_projects WHERE project_uuid = ?", uuid)
}

func (s *Session) DeleteComponentsByProjectUUID(ctx context.Context, uuid string) error {
	return s.exec(ctx, "delete_components_by_branch", "DELETE FROM components WHERE branch_uuid = ?", uuid)
}

func (s *Session) DeleteComponentsByMainBranchProjectUUID(ctx context.Context, uuid string) error {
	return s.exec(ctx, "delete_components_by_main_branch",
		"DELETE FROM components WHERE main_branch_project_uuid = ?", uuid)
}

func (s *Session) DeleteProjectsByProjectUUID(ctx context.Context, uuid string) error {
	return s.exec(ctx, "delete_projects", "DELETE FROM projects WHERE uuid = ?", uuid)
}

// Component list family.

func (s *Session) DeletePropertiesByComponentUUIDs(ctx context.Context, uuids []string) error {
	return s.execList(ctx, "delete_properties", "DELETE FROM properties WHERE component_uuid IN (?)", uuids)
}

func (s *Session) DeleteComponentsByUUIDs(ctx context.Context, uuids []string) error {
	return s.execList(ctx, "delete_components", "DELETE FROM components WHERE uuid IN (?)", uuids)
}

func (s *Session) FullDeleteComponentMeasures(ctx context.Context, uuids []string) error {
	return s.execList(ctx, "delete_component_measures",
		"DELETE FROM project_measures WHERE component_uuid IN (?)", uuids)
}

func (s *Session) DeleteFileSourcesByFileUUIDs(ctx context.Context, uuids []string) error {
	return s.execList(ctx, "delete_file_sources_by_file", "DELETE FROM file_sources WHERE file_uuid IN (?)", uuids)
}

func (s *Session) DeleteLiveMeasuresByComponentUUIDs(ctx context.Context, uuids []string) error {
	return s.execList(ctx, "delete_live_measures_by_component",
		"DELETE FROM live_measures WHERE component_uuid IN (?)", uuids)
}

func (s *Session) ResolveComponentIssuesNotAlreadyResolved(ctx context.Context, uuids []string, now time.Time) error {
	if len(uuids) == 0 {
		return nil
	}
	ms := now.UnixMilli()
	return s.exec(ctx, "resolve_component_issues",
		`UPDATE issues SET resolution = ?, status = ?, updated_at = ?, issue_close_date = ?
		 WHERE component_uuid IN (?) AND resolution IS NULL`,
		resolutionRemoved, statusClosed, ms, ms, uuids)
}

// Compute engine family. Child tables reference tasks by task_uuid.

// activityFilter renders the ce_activity predicate for scope.
func activityFilter(scope purge.ActivityScope) (string, []any) {
	var conds []string
	var args []any
	if scope.RootUUID != "" {
		conds = append(conds, "component_uuid = ?")
		args = append(args, scope.RootUUID)
	}
	if !scope.Before.IsZero() {
		conds = append(conds, "created_at < ?")
		args = append(args, scope.Before.UnixMilli())
	}
	return strings.Join(conds, " AND "), args
}

func (s *Session) deleteActivityChildren(ctx context.Context, name, table string, scope purge.ActivityScope) error {
	if scope.Unbounded() {
		return purge.ErrUnboundedScope
	}
	where, args := activityFilter(scope)
	return s.exec(ctx, name,
		"DELETE FROM "+table+" WHERE task_uuid IN (SELECT uuid FROM ce_activity WHERE "+where+")", args...)
}

func (s *Session) DeleteCeScannerContextOfCeActivity(ctx context.Context, scope purge.ActivityScope) error {
	return s.deleteActivityChildren(ctx, "delete_ce_scanner_context_of_activity", "ce_scanner_context", scope)
}

func (s *Session) DeleteCeTaskCharacteristicsOfCeActivity(ctx context.Context, scope purge.ActivityScope) error {
	return s.deleteActivityChildren(ctx, "delete_ce_task_characteristics_of_activity", "ce_task_characteristics", scope)
}

func (s *Session) DeleteCeTaskInputOfCeActivity(ctx context.Context, scope purge.ActivityScope) error {
	return s.deleteActivityChildren(ctx, "delete_ce_task_input_of_activity", "ce_task_input", scope)
}

func (s *Session) DeleteCeTaskMessageOfCeActivity(ctx context.Context, scope purge.ActivityScope) error {
	return s.deleteActivityChildren(ctx, "delete_ce_task_message_of_activity", "ce_task_message", scope)
}

func (s *Session) DeleteCeActivity(ctx context.Context, scope purge.ActivityScope) error {
	if scope.Unbounded() {
		return purge.ErrUnboundedScope
	}
	where, args := activityFilter(scope)
	return s.exec(ctx, "delete_ce_activity", "DELETE FROM ce_activity WHERE "+where, args...)
}

func (s *Session) deleteQueueChildren(ctx context.Context, name, table, rootUUID string) error {
	return s.exec(ctx, name,
		"DELETE FROM "+table+" WHERE task_uuid IN (SELECT uuid FROM ce_queue WHERE component_uuid = ?)", rootUUID)
}

func (s *Session) DeleteCeScannerContextOfCeQueue(ctx context.Context, uuid string) error {
	return s.deleteQueueChildren(ctx, "delete_ce_scanner_context_of_queue", "ce_scanner_context", uuid)
}

func (s *Session) DeleteCeTaskCharacteristicsOfCeQueue(ctx context.Context, uuid string) error {
	return s.deleteQueueChildren(ctx, "delete_ce_task_characteristics_of_queue", "ce_task_characteristics", uuid)
}

func (s *Session) DeleteCeTaskInputOfCeQueue(ctx context.Context, uuid string) error {
	return s.deleteQueueChildren(ctx, "delete_ce_task_input_of_queue", "ce_task_input", uuid)
}

func (s *Session) DeleteCeTaskMessageOfCeQueue(ctx context.Context, uuid string) error {
	return s.deleteQueueChildren(ctx, "delete_ce_task_message_of_queue", "ce_task_message", uuid)
}

func (s *Session) DeleteCeQueue(ctx context.Context, uuid string) error {
	return s.exec(ctx, "delete_ce_queue", "DELETE FROM ce_queue WHERE component_uuid = ?", uuid)
}
