package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dray-io/purger/internal/logging"
	"github.com/dray-io/purger/internal/purge"
	"github.com/dray-io/purger/internal/purge/sqlstore"
)

func seedDB(t *testing.T, stmts ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "purge.db")
	s, err := sqlstore.Open(path)
	require.NoError(t, err)
	for _, stmt := range stmts {
		s.DB().MustExec(stmt)
	}
	require.NoError(t, s.Close())
	return path
}

func countRows(t *testing.T, path, query string) int {
	t.Helper()
	s, err := sqlstore.Open(path)
	require.NoError(t, err)
	defer s.Close()
	var n int
	require.NoError(t, s.DB().Get(&n, query))
	return n
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	prev := logging.Global()
	t.Cleanup(func() { logging.SetGlobal(prev) })

	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append(args, "--log-level", "error"))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "purgerd version dev"))
}

func TestRootCommand_DeletesProject(t *testing.T) {
	db := seedDB(t,
		`INSERT INTO projects (uuid, kee) VALUES ('P1', 'p1'), ('P2', 'p2')`,
		`INSERT INTO components (uuid, branch_uuid, scope, qualifier) VALUES ('P1', 'P1', 'PRJ', 'TRK'), ('P2', 'P2', 'PRJ', 'TRK')`,
		`INSERT INTO snapshots (uuid, root_component_uuid) VALUES ('A1', 'P1'), ('B1', 'P2')`,
	)

	_, err := execute(t, "root", "P1", "--db", db)
	require.NoError(t, err)

	assert.Equal(t, 1, countRows(t, db, "SELECT COUNT(*) FROM projects"))
	assert.Equal(t, 1, countRows(t, db, "SELECT COUNT(*) FROM snapshots WHERE uuid = 'B1'"))
	assert.Zero(t, countRows(t, db, "SELECT COUNT(*) FROM components WHERE branch_uuid = 'P1'"))
}

func TestAnalysesCommand_Soft(t *testing.T) {
	db := seedDB(t,
		`INSERT INTO snapshots (uuid, root_component_uuid, islast) VALUES ('A1', 'P1', 0), ('A2', 'P1', 1)`,
	)

	_, err := execute(t, "analyses", "P1", "--soft", "--db", db)
	require.NoError(t, err)

	assert.Equal(t, 1, countRows(t, db, "SELECT COUNT(*) FROM snapshots WHERE uuid = 'A1' AND purge_status = 1"))
	assert.Equal(t, 1, countRows(t, db, "SELECT COUNT(*) FROM snapshots WHERE uuid = 'A2' AND purge_status IS NULL"))
}

func TestCeActivityCommand_RequiresScope(t *testing.T) {
	db := seedDB(t)

	_, err := execute(t, "ce-activity", "--db", db)
	assert.ErrorIs(t, err, purge.ErrUnboundedScope)
}

func TestCeActivityCommand_ScannerContextNeedsCutoff(t *testing.T) {
	db := seedDB(t,
		`INSERT INTO ce_scanner_context (task_uuid) VALUES ('T1')`,
	)

	_, err := execute(t, "ce-activity", "--root", "P1", "--scanner-context-only", "--db", db)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--scanner-context-only requires --older-than")
	assert.Equal(t, 1, countRows(t, db, "SELECT COUNT(*) FROM ce_scanner_context"))
}

func TestCeActivityCommand_OlderThan(t *testing.T) {
	db := seedDB(t,
		`INSERT INTO ce_activity (uuid, component_uuid, created_at) VALUES ('T1', 'P1', 1), ('T2', 'P2', 32503680000000)`,
	)

	_, err := execute(t, "ce-activity", "--older-than", "24h", "--db", db)
	require.NoError(t, err)
	assert.Equal(t, 1, countRows(t, db, "SELECT COUNT(*) FROM ce_activity WHERE uuid = 'T2'"))
	assert.Zero(t, countRows(t, db, "SELECT COUNT(*) FROM ce_activity WHERE uuid = 'T1'"))
}

func TestDisabledCommand(t *testing.T) {
	db := seedDB(t,
		`INSERT INTO components (uuid, branch_uuid, enabled) VALUES ('C1', 'P1', 0), ('C2', 'P1', 0)`,
		`INSERT INTO live_measures (uuid, project_uuid, component_uuid) VALUES ('lm1', 'P1', 'C1'), ('lm2', 'P1', 'C2')`,
	)

	_, err := execute(t, "disabled", "P1", "--known", "C1", "--db", db)
	require.NoError(t, err)
	assert.Zero(t, countRows(t, db, "SELECT COUNT(*) FROM live_measures"))
}

func TestMetricsTextfile(t *testing.T) {
	db := seedDB(t)
	prom := filepath.Join(t.TempDir(), "purger.prom")
	t.Setenv("PURGER_METRICS_TEXTFILE", prom)

	_, err := execute(t, "ce-queue", "P1", "--db", db)
	require.NoError(t, err)

	data, err := os.ReadFile(prom)
	require.NoError(t, err)
	assert.Contains(t, string(data), `purger_purge_phases_total{phase="deleteCeQueue (ce_queue)"} 1`)
}

func TestInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "purger.yaml")
	require.NoError(t, os.WriteFile(path, []byte("purge:\n  maxAnalysesPerQuery: 0\n"), 0o600))

	_, err := execute(t, "ce-queue", "P1", "--config", path)
	assert.Error(t, err)
}
