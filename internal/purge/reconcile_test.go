package purge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type notification struct {
	root    string
	missing []string
}

func capture(out *[]notification) Listener {
	return ListenerFunc(func(_ context.Context, root string, uuids []string) {
		*out = append(*out, notification{root, uuids})
	})
}

func TestPurgeDisabledComponents_ReportsMissed(t *testing.T) {
	gw := NewMockGateway()
	gw.DisabledWithFileSource["P1"] = []string{"C1"}
	gw.DisabledWithLiveMeasures["P1"] = []string{"C1", "C2"}
	c, rec := newTestCommands(t, gw)

	var got []notification
	require.NoError(t, c.PurgeDisabledComponents(context.Background(), "P1", []string{"C1"}, capture(&got)))

	require.Len(t, got, 1)
	assert.Equal(t, notification{"P1", []string{"C2"}}, got[0])

	assert.Equal(t, []string{
		"SelectDisabledComponentsWithFileSource",
		"DeleteFileSourcesByFileUUIDs",
		"SelectDisabledComponentsWithUnresolvedIssues",
		"SelectDisabledComponentsWithLiveMeasures",
		"DeleteLiveMeasuresByComponentUUIDs",
		"Commit",
	}, gw.Ops())
	assert.Equal(t, []string{
		"purgeDisabledComponents (file_sources)",
		"purgeDisabledComponents (unresolved_issues)",
		"purgeDisabledComponents (live_measures)",
	}, rec.Phases())
}

func TestPurgeDisabledComponents_NothingMissed(t *testing.T) {
	gw := NewMockGateway()
	gw.DisabledWithUnresolvedIssues["P1"] = []string{"C1"}
	c, _ := newTestCommands(t, gw)

	var got []notification
	require.NoError(t, c.PurgeDisabledComponents(context.Background(), "P1", []string{"C1", "C7"}, capture(&got)))
	assert.Empty(t, got)
	assert.Equal(t, 1, gw.Count("Commit"))
}

func TestPurgeDisabledComponents_NoResidualDataStillCommits(t *testing.T) {
	gw := NewMockGateway()
	c, rec := newTestCommands(t, gw)

	var got []notification
	require.NoError(t, c.PurgeDisabledComponents(context.Background(), "P1", nil, capture(&got)))
	assert.Empty(t, got)
	assert.Equal(t, 1, gw.Count("Commit"))
	assert.Len(t, rec.Phases(), 3)
}

func TestPurgeDisabledComponents_MissedIsSortedAndDeduplicated(t *testing.T) {
	gw := NewMockGateway()
	gw.DisabledWithFileSource["P1"] = []string{"C9", "C3"}
	gw.DisabledWithUnresolvedIssues["P1"] = []string{"C3", "C5"}
	gw.DisabledWithLiveMeasures["P1"] = []string{"C9"}
	c, _ := newTestCommands(t, gw)

	var got []notification
	require.NoError(t, c.PurgeDisabledComponents(context.Background(), "P1", nil, capture(&got)))
	require.Len(t, got, 1)
	assert.Equal(t, []string{"C3", "C5", "C9"}, got[0].missing)
}

func TestPurgeDisabledComponents_ResolvesWithClockTime(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	gw := NewMockGateway()
	gw.DisabledWithUnresolvedIssues["P1"] = []string{"C1", "C2", "C3"}
	c, _ := newTestCommands(t, gw, WithClock(testclock.NewClock(now)), WithMaxResourcesPerQuery(2))

	require.NoError(t, c.PurgeDisabledComponents(context.Background(), "P1", []string{"C1", "C2", "C3"}, nil))

	var batches [][]string
	for _, call := range gw.Calls() {
		if call.Op == "ResolveComponentIssuesNotAlreadyResolved" {
			assert.Equal(t, now, call.Time)
			batches = append(batches, call.UUIDs)
		}
	}
	assert.Equal(t, [][]string{{"C1", "C2"}, {"C3"}}, batches)
}

func TestPurgeDisabledComponents_NilListener(t *testing.T) {
	gw := NewMockGateway()
	gw.DisabledWithLiveMeasures["P1"] = []string{"C2"}
	c, _ := newTestCommands(t, gw)

	assert.NotPanics(t, func() {
		require.NoError(t, c.PurgeDisabledComponents(context.Background(), "P1", nil, nil))
	})
	assert.Equal(t, 1, gw.Count("DeleteLiveMeasuresByComponentUUIDs"))
}

func TestPurgeDisabledComponents_ProbeErrorSkipsCommitAndListener(t *testing.T) {
	boom := errors.New("select failed")
	gw := NewMockGateway()
	gw.DisabledWithFileSource["P1"] = []string{"C2"}
	gw.FailOn["SelectDisabledComponentsWithUnresolvedIssues"] = boom
	c, rec := newTestCommands(t, gw)

	var got []notification
	err := c.PurgeDisabledComponents(context.Background(), "P1", nil, capture(&got))

	assert.Same(t, boom, err)
	assert.Empty(t, got)
	assert.Zero(t, gw.Count("Commit"))
	assert.True(t, rec.Balanced())
}

func TestPurgeDisabledComponents_CommitErrorSkipsListener(t *testing.T) {
	boom := errors.New("commit failed")
	gw := NewMockGateway()
	gw.DisabledWithFileSource["P1"] = []string{"C2"}
	gw.FailOn["Commit"] = boom
	c, _ := newTestCommands(t, gw)

	var got []notification
	assert.Same(t, boom, c.PurgeDisabledComponents(context.Background(), "P1", nil, capture(&got)))
	assert.Empty(t, got)
}
