package execflow

import (
	"fmt"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
)

// TaskQueue is the Temporal task queue the Executor's worker polls.
const TaskQueue = "cometlocal-executor"

// StartWorker connects to Temporal and runs the Executor's task queue
// worker (grounded on the teacher's internal/temporal.StartWorker,
// which wires one Activities bundle and registers its workflow/activity
// set against a single task queue the same way).
func StartWorker(hostPort string, session Session) error {
	c, err := client.Dial(client.Options{HostPort: hostPort})
	if err != nil {
		return fmt.Errorf("execflow: dial temporal: %w", err)
	}
	defer c.Close()

	w := worker.New(c, TaskQueue, worker.Options{})

	acts := &Activities{Session: session}

	w.RegisterWorkflow(ExecutePlanItemWorkflow)

	w.RegisterActivity(acts.OpenSessionActivity)
	w.RegisterActivity(acts.ScreenshotActivity)
	w.RegisterActivity(acts.RelocateActivity)
	w.RegisterActivity(acts.OpenDetailActivity)
	w.RegisterActivity(acts.UploadActivity)
	w.RegisterActivity(acts.VerifyActivity)
	w.RegisterActivity(acts.ForceRefreshActivity)
	w.RegisterActivity(acts.WriteExecutionMetaActivity)

	return w.Run(worker.InterruptCh())
}
