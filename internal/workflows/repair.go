package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/samirrijal/tripgaps/internal/core/domain"
)

// RepairInput is the input for the itinerary repair workflow.
type RepairInput struct {
	RequestID   string
	ItineraryID string
}

// WorkflowID makes repeated requests for the same event start one run.
func (in RepairInput) WorkflowID() string {
	return "itinerary-repair-" + in.ItineraryID + "-" + in.RequestID
}

// ItineraryRepairWorkflow loads an itinerary, geocodes each day's unlocated
// activities, stores the coordinates it found and announces the result. A day that keeps failing is
// left as it was and the remaining days are still repaired.
func ItineraryRepairWorkflow(ctx workflow.Context, input RepairInput) (domain.RepairResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting itinerary repair", "itineraryID", input.ItineraryID)

	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval: time.Second,
			MaximumAttempts: 3,
		},
	})

	var acts *RepairActivities
	var total domain.RepairResult

	// Step 1: load
	var itinerary domain.Itinerary
	if err := workflow.ExecuteActivity(ctx, acts.LoadItinerary, input.ItineraryID).Get(ctx, &itinerary); err != nil {
		return total, err
	}

	// Step 2: repair day by day so one slow day does not replay the others
	var located []domain.Activity
	for _, day := range itinerary.Days {
		if !needsRepair(day) {
			continue
		}
		var out DayRepair
		if err := workflow.ExecuteActivity(ctx, acts.RepairDay, day).Get(ctx, &out); err != nil {
			logger.Warn("day repair failed, keeping original", "day", day.Number, "error", err)
			continue
		}
		total.Fixed += out.Result.Fixed
		total.Failed += out.Result.Failed
		located = append(located, out.Located...)
	}

	// Step 3: write back only the coordinates, so activities committed while
	// the repair ran survive it
	if len(located) > 0 {
		var saved int
		if err := workflow.ExecuteActivity(ctx, acts.SaveLocations, input.ItineraryID, located).Get(ctx, &saved); err != nil {
			return total, err
		}
		logger.Info("Locations saved", "saved", saved, "located", len(located))
	}

	// Step 4: announce; a lost notification does not undo the repair
	event := domain.ItineraryRepaired{
		EventID:     input.RequestID,
		ItineraryID: input.ItineraryID,
		Result:      total,
		Timestamp:   workflow.Now(ctx).UTC(),
	}
	if err := workflow.ExecuteActivity(ctx, acts.PublishRepaired, event).Get(ctx, nil); err != nil {
		logger.Warn("publish repair completion failed", "error", err)
	}

	logger.Info("Itinerary repaired", "fixed", total.Fixed, "failed", total.Failed)
	return total, nil
}

func needsRepair(day domain.Day) bool {
	for _, a := range day.Activities {
		if a.Coordinate == nil {
			return true
		}
	}
	return false
}
