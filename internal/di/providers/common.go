package providers

import (
	"context"
	"time"
)

// shutdownTimeout bounds how long one service may take to stop.
const shutdownTimeout = 30 * time.Second

// shutdownWithin runs stop with a context that expires after shutdownTimeout.
func shutdownWithin(stop func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return stop(ctx)
}
