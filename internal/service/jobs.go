package service

import (
	"context"
	"fmt"

	"smartmart/internal/entity"
)

// enqueue publishes a background job keyed job.<type>.<id>.
func enqueue(ctx context.Context, jobs Publisher, job entity.Job) error {
	if jobs == nil {
		return fmt.Errorf("job queue unavailable for %s", job.Type)
	}
	return jobs.Publish(ctx, fmt.Sprintf("job.%s.%d", job.Type, job.ID), job)
}
