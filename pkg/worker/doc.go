// Package worker runs queued items through a processor on a fixed set of
// goroutines.
//
//	pool, err := worker.NewPool("bridge", 1, 1024,
//	    func(ctx context.Context, m outbound) error {
//	        return client.Publish(ctx, m.subject, m.data)
//	    },
//	    worker.WithMetrics[outbound](registry),
//	)
//	if err != nil {
//	    return err
//	}
//	if err := pool.Start(ctx); err != nil {
//	    return err
//	}
//	defer pool.Stop(5 * time.Second)
//
// Submit is non-blocking. When the queue is full the item is dropped,
// ErrQueueFull is returned and the drop is counted in Stats. With a single
// worker items are processed in submission order.
//
// Stop closes the queue, lets workers drain what was already accepted and
// returns ErrStopTimeout if they do not finish in time. Cancelling the
// context given to Start ends workers without draining.
package worker
