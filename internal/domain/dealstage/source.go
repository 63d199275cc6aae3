package dealstage

import (
	"context"
	"time"
)

// StageSource fetches the deal stages configured in a company's CRM.
type StageSource interface {
	FetchStages(ctx context.Context, company Company) ([]CRMStage, error)
}

var sampleStages = []CRMStage{
	{ID: 1, Name: "New"},
	{ID: 2, Name: "Qualified"},
	{ID: 3, Name: "Meeting Scheduled"},
	{ID: 4, Name: "Proposal"},
	{ID: 5, Name: "Negotiation"},
	{ID: 6, Name: "Closed Won"},
	{ID: 7, Name: "Closed Lost"},
}

// SampleStageSource stands in for the CRM integrations. It returns the same
// stage list for every CRM type after Delay.
type SampleStageSource struct {
	Delay time.Duration
}

func (s SampleStageSource) FetchStages(ctx context.Context, _ Company) ([]CRMStage, error) {
	if err := sleepCtx(ctx, s.Delay); err != nil {
		return nil, err
	}
	out := make([]CRMStage, len(sampleStages))
	copy(out, sampleStages)
	return out, nil
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
