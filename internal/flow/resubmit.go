package flow

import (
	"context"

	"github.com/clearfab/gateway/internal/queue"
)

// Resubmit pushes a parked payload back through the protection stack for its
// service. The payload was already transformed when the message was queued,
// so the drain path skips straight to dispatch.
func (e *Engine) Resubmit(ctx context.Context, m *queue.Message) error {
	executor, err := e.registry.Executor(m.ServiceName)
	if err != nil {
		return err
	}
	_, err = executor.Execute(ctx, func(ctx context.Context) (interface{}, error) {
		return e.dispatcher.Dispatch(ctx, m.ServiceName, m.Payload)
	}, nil)
	if err != nil {
		e.observeDispatch(m.ServiceName, "failure")
		return err
	}
	e.observeDispatch(m.ServiceName, "success")
	return nil
}
