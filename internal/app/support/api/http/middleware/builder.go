package middleware

import (
	"github.com/danielgtaylor/huma/v2"
)

// Container collects the middlewares of the handler registered next. Shared
// middlewares apply to every handler and are never cleared.
type Container struct {
	shared  huma.Middlewares
	pending huma.Middlewares
}

func NewContainer(shared ...func(huma.Context, func(huma.Context))) *Container {
	return &Container{shared: shared}
}

// Add queues middlewares for the next handler only.
func (mc *Container) Add(middlewares ...func(huma.Context, func(huma.Context))) {
	mc.pending = append(mc.pending, middlewares...)
}

// GetAllAndClear returns the shared middlewares followed by the queued ones and
// empties the queue.
func (mc *Container) GetAllAndClear() huma.Middlewares {
	result := make(huma.Middlewares, 0, len(mc.shared)+len(mc.pending))
	result = append(result, mc.shared...)
	result = append(result, mc.pending...)
	mc.pending = nil
	return result
}
