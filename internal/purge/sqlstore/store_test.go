package sqlstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dray-io/purger/internal/logging"
	"github.com/dray-io/purger/internal/metrics"
	"github.com/dray-io/purger/internal/purge"
)

func openTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "purge.db"), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seed(t *testing.T, s *Store, stmts ...string) {
	t.Helper()
	for _, stmt := range stmts {
		s.DB().MustExec(stmt)
	}
}

func count(t *testing.T, s *Store, query string, args ...any) int {
	t.Helper()
	var n int
	require.NoError(t, s.DB().Get(&n, query, args...))
	return n
}

func newCommands(s *Session, opts ...purge.Option) *purge.Commands {
	return purge.NewCommands(s, append([]purge.Option{purge.WithLogger(logging.Discard())}, opts...)...)
}

// seedProject creates project P1 with analyses A1 and A2, each owning one row
// in every analysis-scoped table.
func seedProject(t *testing.T, s *Store) {
	seed(t, s,
		`INSERT INTO projects (uuid, kee) VALUES ('P1', 'org.acme:p1')`,
		`INSERT INTO components (uuid, branch_uuid, scope, qualifier) VALUES ('P1', 'P1', 'PRJ', 'TRK')`,
		`INSERT INTO components (uuid, branch_uuid) VALUES ('F1', 'P1')`,
		`INSERT INTO snapshots (uuid, root_component_uuid, status, islast, created_at) VALUES
			('A1', 'P1', 'P', 0, 1), ('A2', 'P1', 'P', 1, 2), ('B1', 'P2', 'P', 1, 3)`,
		`INSERT INTO project_measures (uuid, analysis_uuid, component_uuid, value) VALUES
			('m1', 'A1', 'P1', 1), ('m2', 'A2', 'P1', 2), ('m3', 'B1', 'P2', 3)`,
		`INSERT INTO duplications_index (uuid, analysis_uuid, component_uuid) VALUES ('d1', 'A1', 'F1')`,
		`INSERT INTO events (uuid, analysis_uuid, component_uuid) VALUES ('e1', 'A2', 'P1')`,
		`INSERT INTO event_component_changes (uuid, event_uuid, event_analysis_uuid, event_component_uuid, component_uuid)
			VALUES ('ecc1', 'e1', 'A2', 'P1', 'F1')`,
		`INSERT INTO analysis_properties (uuid, analysis_uuid, kee) VALUES ('ap1', 'A1', 'sonar.branch')`,
	)
}

func TestDeleteAnalyses_RemovesDependentRows(t *testing.T) {
	s := openTestStore(t)
	seedProject(t, s)
	sess := s.Session()
	defer sess.Close()

	require.NoError(t, newCommands(sess).DeleteAnalyses(context.Background(), "P1"))

	assert.Zero(t, count(t, s, `SELECT COUNT(*) FROM project_measures WHERE analysis_uuid IN ('A1', 'A2')`))
	assert.Zero(t, count(t, s, `SELECT COUNT(*) FROM snapshots WHERE root_component_uuid = 'P1'`))
	assert.Zero(t, count(t, s, `SELECT COUNT(*) FROM duplications_index`))
	assert.Zero(t, count(t, s, `SELECT COUNT(*) FROM events`))
	assert.Zero(t, count(t, s, `SELECT COUNT(*) FROM event_component_changes`))
	assert.Zero(t, count(t, s, `SELECT COUNT(*) FROM analysis_properties`))

	assert.Equal(t, 1, count(t, s, `SELECT COUNT(*) FROM snapshots WHERE uuid = 'B1'`), "other roots untouched")
	assert.Equal(t, 1, count(t, s, `SELECT COUNT(*) FROM project_measures WHERE uuid = 'm3'`))
}

func TestDeleteAnalyses_Idempotent(t *testing.T) {
	s := openTestStore(t)
	seedProject(t, s)
	sess := s.Session()
	defer sess.Close()
	c := newCommands(sess)

	require.NoError(t, c.DeleteAnalyses(context.Background(), "P1"))
	require.NoError(t, c.DeleteAnalysesByUUIDs(context.Background(), []string{"A1", "A2"}))
	require.NoError(t, c.DeleteRoot(context.Background(), "P1"))
	require.NoError(t, c.DeleteRoot(context.Background(), "P1"))
}

func TestSelectAnalysisUUIDs_Filters(t *testing.T) {
	s := openTestStore(t)
	seed(t, s,
		`INSERT INTO snapshots (uuid, root_component_uuid, status, islast, purge_status, created_at) VALUES
			('A1', 'P1', 'P', 0, 1, 1),
			('A2', 'P1', 'U', 0, NULL, 2),
			('A3', 'P1', 'U', 1, NULL, 3),
			('A4', 'P1', 'P', 1, NULL, 4)`,
	)
	sess := s.Session()
	defer sess.Close()
	ctx := context.Background()
	isLast := false

	all, err := sess.SelectAnalysisUUIDs(ctx, purge.AnalysisQuery{RootUUID: "P1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"A1", "A2", "A3", "A4"}, all)

	aborted, err := sess.SelectAnalysisUUIDs(ctx, purge.AnalysisQuery{
		RootUUID: "P1", IsLast: &isLast, Statuses: []string{purge.StatusUnprocessed},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"A2"}, aborted)

	notPurged, err := sess.SelectAnalysisUUIDs(ctx, purge.AnalysisQuery{RootUUID: "P1", NotPurged: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"A2", "A3", "A4"}, notPurged)
}

func TestPurgeAnalyses_KeepsMeasures(t *testing.T) {
	s := openTestStore(t)
	seedProject(t, s)
	sess := s.Session()
	defer sess.Close()

	require.NoError(t, newCommands(sess).PurgeAnalyses(context.Background(), []string{"A1"}))

	assert.Zero(t, count(t, s, `SELECT COUNT(*) FROM duplications_index WHERE analysis_uuid = 'A1'`))
	assert.Equal(t, 1, count(t, s, `SELECT COUNT(*) FROM snapshots WHERE uuid = 'A1' AND purge_status = 1`))
	assert.Equal(t, 1, count(t, s, `SELECT COUNT(*) FROM project_measures WHERE analysis_uuid = 'A1'`))
}

func TestPurgeDisabledComponents(t *testing.T) {
	s := openTestStore(t)
	seed(t, s,
		`INSERT INTO components (uuid, branch_uuid, enabled) VALUES
			('C1', 'P1', 0), ('C2', 'P1', 0), ('C3', 'P1', 1), ('X1', 'P2', 0)`,
		`INSERT INTO file_sources (uuid, project_uuid, file_uuid) VALUES ('fs1', 'P1', 'C1'), ('fs3', 'P1', 'C3')`,
		`INSERT INTO issues (kee, project_uuid, component_uuid, resolution) VALUES
			('i1', 'P1', 'C1', NULL), ('i2', 'P1', 'C1', 'FIXED'), ('i3', 'P2', 'X1', NULL)`,
		`INSERT INTO live_measures (uuid, project_uuid, component_uuid) VALUES ('lm1', 'P1', 'C2'), ('lm2', 'P2', 'X1')`,
	)
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	sess := s.Session()
	defer sess.Close()
	c := newCommands(sess, purge.WithClock(testclock.NewClock(now)))

	var missed []string
	listener := purge.ListenerFunc(func(_ context.Context, root string, uuids []string) {
		assert.Equal(t, "P1", root)
		missed = uuids
	})
	require.NoError(t, c.PurgeDisabledComponents(context.Background(), "P1", []string{"C1"}, listener))

	assert.Equal(t, []string{"C2"}, missed)
	assert.Zero(t, count(t, s, `SELECT COUNT(*) FROM file_sources WHERE file_uuid = 'C1'`))
	assert.Equal(t, 1, count(t, s, `SELECT COUNT(*) FROM file_sources WHERE file_uuid = 'C3'`), "enabled components keep sources")
	assert.Zero(t, count(t, s, `SELECT COUNT(*) FROM live_measures WHERE component_uuid = 'C2'`))
	assert.Equal(t, 1, count(t, s, `SELECT COUNT(*) FROM live_measures WHERE component_uuid = 'X1'`))

	assert.Equal(t, 1, count(t, s,
		`SELECT COUNT(*) FROM issues WHERE kee = 'i1' AND resolution = 'REMOVED' AND status = 'CLOSED' AND issue_close_date = ?`,
		now.UnixMilli()))
	assert.Equal(t, 1, count(t, s, `SELECT COUNT(*) FROM issues WHERE kee = 'i2' AND resolution = 'FIXED'`))
	assert.Equal(t, 1, count(t, s, `SELECT COUNT(*) FROM issues WHERE kee = 'i3' AND resolution IS NULL`))
}

func seedActivity(t *testing.T, s *Store) {
	seed(t, s,
		`INSERT INTO ce_activity (uuid, component_uuid, main_component_uuid, created_at) VALUES
			('T1', 'P1', 'P1', 100), ('T2', 'P2', 'P2', 100), ('T3', 'P1', 'P1', 900)`,
	)
	for _, table := range []string{"ce_scanner_context", "ce_task_input"} {
		seed(t, s, `INSERT INTO `+table+` (task_uuid) VALUES ('T1'), ('T2'), ('T3')`)
	}
	seed(t, s,
		`INSERT INTO ce_task_characteristics (uuid, task_uuid, kee) VALUES ('c1', 'T1', 'branch'), ('c2', 'T2', 'branch')`,
		`INSERT INTO ce_task_message (uuid, task_uuid) VALUES ('msg1', 'T1'), ('msg3', 'T3')`,
	)
}

func TestDeleteCeActivityBefore_StoreWide(t *testing.T) {
	s := openTestStore(t)
	seedActivity(t, s)
	sess := s.Session()
	defer sess.Close()

	cutoff := time.UnixMilli(500)
	require.NoError(t, newCommands(sess).DeleteCeActivityBefore(context.Background(), "", cutoff))

	assert.Equal(t, []string{"T3"}, remaining(t, s, "ce_activity", "uuid"))
	assert.Equal(t, []string{"T3"}, remaining(t, s, "ce_scanner_context", "task_uuid"))
	assert.Equal(t, []string{"T3"}, remaining(t, s, "ce_task_input", "task_uuid"))
	assert.Equal(t, []string{"T3"}, remaining(t, s, "ce_task_message", "task_uuid"))
	assert.Empty(t, remaining(t, s, "ce_task_characteristics", "task_uuid"))
}

func TestDeleteCeActivity_ScopedToRoot(t *testing.T) {
	s := openTestStore(t)
	seedActivity(t, s)
	sess := s.Session()
	defer sess.Close()

	require.NoError(t, newCommands(sess).DeleteCeActivity(context.Background(), "P1"))
	assert.Equal(t, []string{"T2"}, remaining(t, s, "ce_activity", "uuid"))
	assert.Equal(t, []string{"T2"}, remaining(t, s, "ce_scanner_context", "task_uuid"))
}

func TestDeleteCeActivity_UnboundedScopeRejectedByStore(t *testing.T) {
	s := openTestStore(t)
	sess := s.Session()
	defer sess.Close()

	err := sess.DeleteCeActivity(context.Background(), purge.ActivityScope{})
	assert.ErrorIs(t, err, purge.ErrUnboundedScope)
}

func remaining(t *testing.T, s *Store, table, column string) []string {
	t.Helper()
	var out []string
	require.NoError(t, s.DB().Select(&out, "SELECT "+column+" FROM "+table+" ORDER BY "+column))
	return out
}

func TestDeleteRoot_RemovesProject(t *testing.T) {
	s := openTestStore(t)
	seedProject(t, s)
	seed(t, s,
		`INSERT INTO components (uuid, branch_uuid, main_branch_project_uuid) VALUES ('F2', 'BR1', 'P1')`,
		`INSERT INTO project_branches (uuid, project_uuid, kee) VALUES ('P1', 'P1', 'main')`,
		`INSERT INTO issues (kee, project_uuid, component_uuid) VALUES ('i1', 'P1', 'F1')`,
		`INSERT INTO issue_changes (uuid, issue_key, project_uuid) VALUES ('ic1', 'i1', 'P1')`,
		`INSERT INTO properties (uuid, prop_key, component_uuid) VALUES ('pr1', 'sonar.x', 'P1'), ('pr2', 'sonar.x', 'Q1')`,
		`INSERT INTO group_roles (uuid, component_uuid, role) VALUES ('g1', 'P1', 'admin')`,
		`INSERT INTO user_roles (uuid, component_uuid, role) VALUES ('u1', 'P1', 'user')`,
		`INSERT INTO webhooks (uuid, project_uuid) VALUES ('w1', 'P1')`,
		`INSERT INTO webhook_deliveries (uuid, project_uuid) VALUES ('wd1', 'P1')`,
		`INSERT INTO new_code_periods (uuid, project_uuid, branch_uuid) VALUES ('n1', 'P1', NULL), ('n2', 'Q1', 'P1')`,
		`INSERT INTO portfolio_projects (uuid, portfolio_uuid, project_uuid) VALUES ('pp1', 'V1', 'P1')`,
		`INSERT INTO ce_queue (uuid, component_uuid, created_at) VALUES ('Q1T', 'P1', 1)`,
		`INSERT INTO ce_task_input (task_uuid) VALUES ('Q1T')`,
	)
	sess := s.Session()
	defer sess.Close()

	require.NoError(t, newCommands(sess).DeleteRoot(context.Background(), "P1"))

	for _, table := range []string{
		"projects", "project_branches", "components", "issues", "issue_changes",
		"group_roles", "user_roles", "webhooks", "webhook_deliveries", "new_code_periods",
		"portfolio_projects", "ce_queue", "ce_task_input", "duplications_index", "events",
	} {
		assert.Zero(t, count(t, s, "SELECT COUNT(*) FROM "+table), table)
	}
	assert.Equal(t, []string{"B1"}, remaining(t, s, "snapshots", "uuid"), "other roots untouched")
	assert.Equal(t, []string{"m3"}, remaining(t, s, "project_measures", "uuid"))
	assert.Equal(t, []string{"pr2"}, remaining(t, s, "properties", "uuid"))
}

func TestDeleteRoot_RemovesEventsOfVanishedAnalyses(t *testing.T) {
	s := openTestStore(t)
	seed(t, s,
		`INSERT INTO events (uuid, analysis_uuid, component_uuid) VALUES ('e1', 'GONE', 'P1'), ('e2', 'B1', 'P2')`,
		`INSERT INTO event_component_changes (uuid, event_uuid, event_analysis_uuid, event_component_uuid, component_uuid)
			VALUES ('ecc1', 'e1', 'GONE', 'P1', 'F1'), ('ecc2', 'e2', 'B1', 'P2', 'F9')`,
	)
	sess := s.Session()
	defer sess.Close()

	require.NoError(t, newCommands(sess).DeleteRoot(context.Background(), "P1"))

	assert.Equal(t, []string{"e2"}, remaining(t, s, "events", "uuid"))
	assert.Equal(t, []string{"ecc2"}, remaining(t, s, "event_component_changes", "uuid"))
}

func TestSession_CommitRecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewStoreMetricsWithRegistry(reg)
	s := openTestStore(t, WithRecorder(m))
	seedProject(t, s)
	sess := s.Session()
	defer sess.Close()

	require.NoError(t, newCommands(sess).DeleteLinks(context.Background(), "P1"))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["purger_store_commits_total"])
	assert.True(t, names["purger_store_statement_duration_seconds"])
}

func TestSession_RollbackDiscardsUncommitted(t *testing.T) {
	s := openTestStore(t)
	seedProject(t, s)
	sess := s.Session()

	require.NoError(t, sess.DeleteAnalyses(context.Background(), []string{"A1"}))
	require.NoError(t, sess.Close())

	assert.Equal(t, 1, count(t, s, `SELECT COUNT(*) FROM snapshots WHERE uuid = 'A1'`))
}

func TestSession_Closed(t *testing.T) {
	s := openTestStore(t)
	sess := s.Session()
	require.NoError(t, sess.Close())

	ctx := context.Background()
	assert.ErrorIs(t, sess.DeleteProjectLinksByProjectUUID(ctx, "P1"), ErrSessionClosed)
	assert.ErrorIs(t, sess.Commit(ctx), ErrSessionClosed)
}

func TestStore_Closed(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Close())

	err := s.Session().DeleteProjectLinksByProjectUUID(context.Background(), "P1")
	assert.True(t, errors.Is(err, ErrStoreClosed))
}
