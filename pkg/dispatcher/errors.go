package dispatcher

import "errors"

// ErrQueueFull is returned when Dispatch could not enqueue a job because the
// dispatcher's job channel is saturated. The caller's trigger is dropped;
// ActionDispatcher never blocks the Observer to apply backpressure.
var ErrQueueFull = errors.New("dispatcher: job queue is full, trigger dropped")

// ErrDeliveryFailed wraps the last attempt's error once a trigger has
// exhausted its retry budget.
var ErrDeliveryFailed = errors.New("dispatcher: delivery failed after exhausting retry budget")
