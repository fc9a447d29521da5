package workflows

import (
	"context"
	"fmt"
	"log/slog"

	"go.temporal.io/sdk/client"

	"github.com/samirrijal/tripgaps/internal/core/domain"
)

// WorkflowStarter is the part of client.Client that starts workflows.
type WorkflowStarter interface {
	ExecuteWorkflow(ctx context.Context, options client.StartWorkflowOptions, workflow interface{}, args ...interface{}) (client.WorkflowRun, error)
}

// RepairRequestHandler starts one ItineraryRepairWorkflow per repair request.
// Redelivered requests map to the same workflow ID and do not start a second run.
func RepairRequestHandler(starter WorkflowStarter, taskQueue string, logger *slog.Logger) func(ctx context.Context, event *domain.RepairRequested) error {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, event *domain.RepairRequested) error {
		if event.ItineraryID == "" {
			return fmt.Errorf("repair request %s has no itinerary", event.EventID)
		}
		input := RepairInput{RequestID: event.EventID, ItineraryID: event.ItineraryID}

		run, err := starter.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
			ID:        input.WorkflowID(),
			TaskQueue: taskQueue,
		}, ItineraryRepairWorkflow, input)
		if err != nil {
			return fmt.Errorf("start repair workflow: %w", err)
		}

		attrs := []any{slog.String("workflow_id", input.WorkflowID())}
		if run != nil {
			attrs = append(attrs, slog.String("run_id", run.GetRunID()))
		}
		logger.InfoContext(ctx, "repair workflow started", attrs...)
		return nil
	}
}
