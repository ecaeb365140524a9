package workflow

import (
	"go.temporal.io/sdk/testsuite"

	"github.com/edvin/automation/internal/activity"
)

// registerActivities registers the activity struct so the test environment
// knows the parameter and result types of the mocked activities.
func registerActivities(env *testsuite.TestWorkflowEnvironment) {
	env.RegisterActivity(&activity.Automation{})
}
