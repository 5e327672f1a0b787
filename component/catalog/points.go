package catalog

import (
	"context"
	"fmt"

	"github.com/dramaproject/drama/model"
	"github.com/dramaproject/drama/process"
)

// pointPublisher streams ten copies of a Point record downstream.
func pointPublisher(ctx context.Context, pcs *process.Process) (*model.TaskResult, error) {
	x, err := intParam(pcs.Params, "x")
	if err != nil {
		return nil, err
	}
	y, err := intParam(pcs.Params, "y")
	if err != nil {
		return nil, err
	}

	pcs.Info(fmt.Sprintf("Generating point (%d,%d,0)", x, y))
	record := Point.MustRecord(map[string]any{"x": x, "y": y})

	for i := 0; i < 10; i++ {
		if _, err := pcs.ToDownstream(ctx, record); err != nil {
			return nil, err
		}
	}

	return nil, nil
}

// pointReader collects every upstream point, then logs them.
func pointReader(ctx context.Context, pcs *process.Process) (*model.TaskResult, error) {
	inputs, err := pcs.GetFromUpstream(ctx)
	if err != nil {
		return nil, err
	}

	for _, payload := range inputs["Points"] {
		point, ok := payload.(map[string]any)
		if !ok {
			continue
		}
		pcs.Info(fmt.Sprintf("Got point (%v,%v,%v)", point["x"], point["y"], point["z"]))
	}

	return &model.TaskResult{Message: fmt.Sprintf("read %d points", len(inputs["Points"]))}, nil
}

// streamingPointReader logs points one by one as they arrive.
func streamingPointReader(ctx context.Context, pcs *process.Process) (*model.TaskResult, error) {
	up, err := pcs.PollFromUpstream(ctx, true)
	if err != nil {
		return nil, err
	}

	count := 0
	for up.Next(ctx) {
		_, payload := up.Record()
		point, ok := payload.(map[string]any)
		if !ok {
			continue
		}
		pcs.Info(fmt.Sprintf("Streaming point (%v,%v,%v)", point["x"], point["y"], point["z"]))
		count++
	}
	if err := up.Err(); err != nil {
		return nil, err
	}

	return &model.TaskResult{Message: fmt.Sprintf("streamed %d points", count)}, nil
}
