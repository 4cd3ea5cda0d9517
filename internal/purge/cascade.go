package purge

import (
	"context"

	"github.com/dray-io/purger/internal/logging"
)

// DeleteRoot removes a project, branch or application and everything hanging
// off it. Procedures run leaf data first so an interrupted cascade never
// leaves a row pointing at one already deleted; running it again resumes
// where it stopped. The first failing procedure aborts the cascade and its
// error is returned unmodified.
func (c *Commands) DeleteRoot(ctx context.Context, rootUUID string) error {
	log := logging.FromCtx(ctx, c.logger).With(logging.Fields{"root": rootUUID})
	log.Info("deleting root")

	modules, err := c.gw.SelectRootAndModulesOrSubviews(ctx, rootUUID)
	if err != nil {
		return err
	}

	steps := []struct {
		name string
		run  func(context.Context) error
	}{
		{"deleteLinks", func(ctx context.Context) error { return c.DeleteLinks(ctx, rootUUID) }},
		{"deleteEvents", func(ctx context.Context) error { return c.DeleteEvents(ctx, rootUUID) }},
		{"deleteAnalyses", func(ctx context.Context) error { return c.DeleteAnalyses(ctx, rootUUID) }},
		{"deleteByRootAndModulesOrSubviews", func(ctx context.Context) error {
			return c.DeleteByRootAndModulesOrSubviews(ctx, modules)
		}},
		{"deleteIssues", func(ctx context.Context) error { return c.DeleteIssues(ctx, rootUUID) }},
		{"deleteFileSources", func(ctx context.Context) error { return c.DeleteFileSources(ctx, rootUUID) }},
		{"deleteCeActivity", func(ctx context.Context) error { return c.DeleteCeActivity(ctx, rootUUID) }},
		{"deleteCeQueue", func(ctx context.Context) error { return c.DeleteCeQueue(ctx, rootUUID) }},
		{"deleteWebhooks", func(ctx context.Context) error { return c.DeleteWebhooks(ctx, rootUUID) }},
		{"deleteWebhookDeliveries", func(ctx context.Context) error { return c.DeleteWebhookDeliveries(ctx, rootUUID) }},
		{"deleteLiveMeasures", func(ctx context.Context) error { return c.DeleteLiveMeasures(ctx, rootUUID) }},
		{"deleteProjectMappings", func(ctx context.Context) error { return c.DeleteProjectMappings(ctx, rootUUID) }},
		{"deleteProjectAlmSettings", func(ctx context.Context) error { return c.DeleteProjectAlmSettings(ctx, rootUUID) }},
		{"deletePermissions", func(ctx context.Context) error { return c.DeletePermissions(ctx, rootUUID) }},
		{"deleteNewCodePeriods", func(ctx context.Context) error { return c.DeleteNewCodePeriods(ctx, rootUUID) }},
		{"deleteBranch", func(ctx context.Context) error { return c.DeleteBranch(ctx, rootUUID) }},
		{"deleteApplicationBranchProjects", func(ctx context.Context) error {
			return c.DeleteApplicationBranchProjects(ctx, rootUUID)
		}},
		{"deleteApplicationProjects", func(ctx context.Context) error { return c.DeleteApplicationProjects(ctx, rootUUID) }},
		{"deleteProjectInPortfolios", func(ctx context.Context) error { return c.DeleteProjectInPortfolios(ctx, rootUUID) }},
		{"deleteComponents", func(ctx context.Context) error { return c.DeleteComponentsByRoot(ctx, rootUUID) }},
		{"deleteComponentsByMainBranchProjectUuid", func(ctx context.Context) error {
			return c.DeleteComponentsByMainBranchProjectUUID(ctx, rootUUID)
		}},
		{"deleteProject", func(ctx context.Context) error { return c.DeleteProject(ctx, rootUUID) }},
		{"deleteUserDismissedMessages", func(ctx context.Context) error {
			return c.DeleteUserDismissedMessages(ctx, rootUUID)
		}},
		{"deleteOutdatedProperties", func(ctx context.Context) error { return c.DeleteOutdatedProperties(ctx, rootUUID) }},
	}

	for _, s := range steps {
		if err := s.run(ctx); err != nil {
			log.Errorf("delete root failed", logging.Fields{"procedure": s.name, "error": err})
			return err
		}
	}

	log.Infof("root deleted", logging.Fields{"procedures": len(steps)})
	return nil
}
