package purge

import (
	"context"
	"slices"
	"sync"
	"time"
)

// Call is one recorded MockGateway invocation.
type Call struct {
	Op    string
	Arg   string
	UUIDs []string
	Scope ActivityScope
	Time  time.Time
}

// MockGateway implements Gateway for testing by recording every call.
// It is exported so that tests in other packages can use it.
type MockGateway struct {
	mu    sync.Mutex
	calls []Call

	// Analyses answers SelectAnalysisUUIDs. Nil selects nothing.
	Analyses func(AnalysisQuery) []string
	// RootAndModules answers SelectRootAndModulesOrSubviews by root.
	RootAndModules map[string][]string

	DisabledWithFileSource       map[string][]string
	DisabledWithUnresolvedIssues map[string][]string
	DisabledWithLiveMeasures     map[string][]string

	// FailOn makes the named operation return the error.
	FailOn map[string]error
}

// NewMockGateway creates an empty MockGateway.
func NewMockGateway() *MockGateway {
	return &MockGateway{
		RootAndModules:               make(map[string][]string),
		DisabledWithFileSource:       make(map[string][]string),
		DisabledWithUnresolvedIssues: make(map[string][]string),
		DisabledWithLiveMeasures:     make(map[string][]string),
		FailOn:                       make(map[string]error),
	}
}

// Calls returns a copy of the recorded calls in order.
func (m *MockGateway) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.calls)
}

// Ops returns the recorded operation names in order.
func (m *MockGateway) Ops() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ops := make([]string, len(m.calls))
	for i, c := range m.calls {
		ops[i] = c.Op
	}
	return ops
}

// Count returns how many times op was called.
func (m *MockGateway) Count(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

// Reset forgets the recorded calls.
func (m *MockGateway) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

func (m *MockGateway) record(c Call) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.UUIDs != nil {
		c.UUIDs = slices.Clone(c.UUIDs)
	}
	m.calls = append(m.calls, c)
	return m.FailOn[c.Op]
}

func (m *MockGateway) byRoot(op, uuid string) error {
	return m.record(Call{Op: op, Arg: uuid})
}

func (m *MockGateway) byList(op string, uuids []string) error {
	return m.record(Call{Op: op, UUIDs: uuids})
}

func (m *MockGateway) byScope(op string, scope ActivityScope) error {
	return m.record(Call{Op: op, Arg: scope.RootUUID, Scope: scope})
}

func (m *MockGateway) selectFrom(op, rootUUID string, source map[string][]string) ([]string, error) {
	if err := m.byRoot(op, rootUUID); err != nil {
		return nil, err
	}
	return slices.Clone(source[rootUUID]), nil
}

func (m *MockGateway) SelectAnalysisUUIDs(_ context.Context, q AnalysisQuery) ([]string, error) {
	if err := m.byRoot("SelectAnalysisUUIDs", q.RootUUID); err != nil {
		return nil, err
	}
	if m.Analyses == nil {
		return nil, nil
	}
	return m.Analyses(q), nil
}

func (m *MockGateway) SelectRootAndModulesOrSubviews(_ context.Context, rootUUID string) ([]string, error) {
	return m.selectFrom("SelectRootAndModulesOrSubviews", rootUUID, m.RootAndModules)
}

func (m *MockGateway) SelectDisabledComponentsWithFileSource(_ context.Context, rootUUID string) ([]string, error) {
	return m.selectFrom("SelectDisabledComponentsWithFileSource", rootUUID, m.DisabledWithFileSource)
}

func (m *MockGateway) SelectDisabledComponentsWithUnresolvedIssues(_ context.Context, rootUUID string) ([]string, error) {
	return m.selectFrom("SelectDisabledComponentsWithUnresolvedIssues", rootUUID, m.DisabledWithUnresolvedIssues)
}

func (m *MockGateway) SelectDisabledComponentsWithLiveMeasures(_ context.Context, rootUUID string) ([]string, error) {
	return m.selectFrom("SelectDisabledComponentsWithLiveMeasures", rootUUID, m.DisabledWithLiveMeasures)
}

func (m *MockGateway) DeleteAnalysisDuplications(_ context.Context, uuids []string) error {
	return m.byList("DeleteAnalysisDuplications", uuids)
}

func (m *MockGateway) DeleteAnalysisEventComponentChanges(_ context.Context, uuids []string) error {
	return m.byList("DeleteAnalysisEventComponentChanges", uuids)
}

func (m *MockGateway) DeleteAnalysisEvents(_ context.Context, uuids []string) error {
	return m.byList("DeleteAnalysisEvents", uuids)
}

func (m *MockGateway) DeleteAnalysisMeasures(_ context.Context, uuids []string) error {
	return m.byList("DeleteAnalysisMeasures", uuids)
}

func (m *MockGateway) DeleteAnalysisProperties(_ context.Context, uuids []string) error {
	return m.byList("DeleteAnalysisProperties", uuids)
}

func (m *MockGateway) DeleteAnalyses(_ context.Context, uuids []string) error {
	return m.byList("DeleteAnalyses", uuids)
}

func (m *MockGateway) UpdatePurgeStatusToOne(_ context.Context, uuids []string) error {
	return m.byList("UpdatePurgeStatusToOne", uuids)
}

func (m *MockGateway) DeleteGroupRolesByComponentUUID(_ context.Context, uuid string) error {
	return m.byRoot("DeleteGroupRolesByComponentUUID", uuid)
}

func (m *MockGateway) DeleteUserRolesByComponentUUID(_ context.Context, uuid string) error {
	return m.byRoot("DeleteUserRolesByComponentUUID", uuid)
}

func (m *MockGateway) DeleteIssueChangesByProjectUUID(_ context.Context, uuid string) error {
	return m.byRoot("DeleteIssueChangesByProjectUUID", uuid)
}

func (m *MockGateway) DeleteIssuesByProjectUUID(_ context.Context, uuid string) error {
	return m.byRoot("DeleteIssuesByProjectUUID", uuid)
}

func (m *MockGateway) DeleteEventComponentChangesByComponentUUID(_ context.Context, uuid string) error {
	return m.byRoot("DeleteEventComponentChangesByComponentUUID", uuid)
}

func (m *MockGateway) DeleteEventsByComponentUUID(_ context.Context, uuid string) error {
	return m.byRoot("DeleteEventsByComponentUUID", uuid)
}

func (m *MockGateway) DeleteProjectLinksByProjectUUID(_ context.Context, uuid string) error {
	return m.byRoot("DeleteProjectLinksByProjectUUID", uuid)
}

func (m *MockGateway) DeleteFileSourcesByProjectUUID(_ context.Context, uuid string) error {
	return m.byRoot("DeleteFileSourcesByProjectUUID", uuid)
}

func (m *MockGateway) DeleteWebhooksByProjectUUID(_ context.Context, uuid string) error {
	return m.byRoot("DeleteWebhooksByProjectUUID", uuid)
}

func (m *MockGateway) DeleteWebhookDeliveriesByProjectUUID(_ context.Context, uuid string) error {
	return m.byRoot("DeleteWebhookDeliveriesByProjectUUID", uuid)
}

func (m *MockGateway) DeleteProjectMappingsByProjectUUID(_ context.Context, uuid string) error {
	return m.byRoot("DeleteProjectMappingsByProjectUUID", uuid)
}

func (m *MockGateway) DeleteApplicationBranchProjectBranchesByApplicationUUID(_ context.Context, uuid string) error {
	return m.byRoot("DeleteApplicationBranchProjectBranchesByApplicationUUID", uuid)
}

func (m *MockGateway) DeleteApplicationProjectsByApplicationUUID(_ context.Context, uuid string) error {
	return m.byRoot("DeleteApplicationProjectsByApplicationUUID", uuid)
}

func (m *MockGateway) DeleteApplicationBranchProjects(_ context.Context, uuid string) error {
	return m.byRoot("DeleteApplicationBranchProjects", uuid)
}

func (m *MockGateway) DeleteApplicationBranchProjectBranchesByProjectBranchUUID(_ context.Context, uuid string) error {
	return m.byRoot("DeleteApplicationBranchProjectBranchesByProjectBranchUUID", uuid)
}

func (m *MockGateway) DeleteProjectAlmSettingsByProjectUUID(_ context.Context, uuid string) error {
	return m.byRoot("DeleteProjectAlmSettingsByProjectUUID", uuid)
}

func (m *MockGateway) DeleteBranchByUUID(_ context.Context, uuid string) error {
	return m.byRoot("DeleteBranchByUUID", uuid)
}

func (m *MockGateway) DeleteLiveMeasuresByProjectUUID(_ context.Context, uuid string) error {
	return m.byRoot("DeleteLiveMeasuresByProjectUUID", uuid)
}

func (m *MockGateway) DeleteNewCodePeriodsByRootUUID(_ context.Context, uuid string) error {
	return m.byRoot("DeleteNewCodePeriodsByRootUUID", uuid)
}

func (m *MockGateway) DeleteUserDismissedMessagesByProjectUUID(_ context.Context, uuid string) error {
	return m.byRoot("DeleteUserDismissedMessagesByProjectUUID", uuid)
}

func (m *MockGateway) DeletePortfolioProjectsByProjectUUID(_ context.Context, uuid string) error {
	return m.byRoot("DeletePortfolioProjectsByProjectUUID", uuid)
}

func (m *MockGateway) DeleteComponentsByProjectUUID(_ context.Context, uuid string) error {
	return m.byRoot("DeleteComponentsByProjectUUID", uuid)
}

func (m *MockGateway) DeleteComponentsByMainBranchProjectUUID(_ context.Context, uuid string) error {
	return m.byRoot("DeleteComponentsByMainBranchProjectUUID", uuid)
}

func (m *MockGateway) DeleteProjectsByProjectUUID(_ context.Context, uuid string) error {
	return m.byRoot("DeleteProjectsByProjectUUID", uuid)
}

func (m *MockGateway) DeletePropertiesByComponentUUIDs(_ context.Context, uuids []string) error {
	return m.byList("DeletePropertiesByComponentUUIDs", uuids)
}

func (m *MockGateway) DeleteComponentsByUUIDs(_ context.Context, uuids []string) error {
	return m.byList("DeleteComponentsByUUIDs", uuids)
}

func (m *MockGateway) FullDeleteComponentMeasures(_ context.Context, uuids []string) error {
	return m.byList("FullDeleteComponentMeasures", uuids)
}

func (m *MockGateway) DeleteFileSourcesByFileUUIDs(_ context.Context, uuids []string) error {
	return m.byList("DeleteFileSourcesByFileUUIDs", uuids)
}

func (m *MockGateway) DeleteLiveMeasuresByComponentUUIDs(_ context.Context, uuids []string) error {
	return m.byList("DeleteLiveMeasuresByComponentUUIDs", uuids)
}

func (m *MockGateway) ResolveComponentIssuesNotAlreadyResolved(_ context.Context, uuids []string, now time.Time) error {
	return m.record(Call{Op: "ResolveComponentIssuesNotAlreadyResolved", UUIDs: uuids, Time: now})
}

func (m *MockGateway) DeleteCeScannerContextOfCeActivity(_ context.Context, scope ActivityScope) error {
	return m.byScope("DeleteCeScannerContextOfCeActivity", scope)
}

func (m *MockGateway) DeleteCeTaskCharacteristicsOfCeActivity(_ context.Context, scope ActivityScope) error {
	return m.byScope("DeleteCeTaskCharacteristicsOfCeActivity", scope)
}

func (m *MockGateway) DeleteCeTaskInputOfCeActivity(_ context.Context, scope ActivityScope) error {
	return m.byScope("DeleteCeTaskInputOfCeActivity", scope)
}

func (m *MockGateway) DeleteCeTaskMessageOfCeActivity(_ context.Context, scope ActivityScope) error {
	return m.byScope("DeleteCeTaskMessageOfCeActivity", scope)
}

func (m *MockGateway) DeleteCeActivity(_ context.Context, scope ActivityScope) error {
	return m.byScope("DeleteCeActivity", scope)
}

func (m *MockGateway) DeleteCeScannerContextOfCeQueue(_ context.Context, uuid string) error {
	return m.byRoot("DeleteCeScannerContextOfCeQueue", uuid)
}

func (m *MockGateway) DeleteCeTaskCharacteristicsOfCeQueue(_ context.Context, uuid string) error {
	return m.byRoot("DeleteCeTaskCharacteristicsOfCeQueue", uuid)
}

func (m *MockGateway) DeleteCeTaskInputOfCeQueue(_ context.Context, uuid string) error {
	return m.byRoot("DeleteCeTaskInputOfCeQueue", uuid)
}

func (m *MockGateway) DeleteCeTaskMessageOfCeQueue(_ context.Context, uuid string) error {
	return m.byRoot("DeleteCeTaskMessageOfCeQueue", uuid)
}

func (m *MockGateway) DeleteCeQueue(_ context.Context, uuid string) error {
	return m.byRoot("DeleteCeQueue", uuid)
}

func (m *MockGateway) Commit(_ context.Context) error {
	return m.record(Call{Op: "Commit"})
}

var _ Gateway = (*MockGateway)(nil)
