package runtime

import (
	"fmt"
	"sort"
	"sync"
)

type Handler interface {
	Type() string
	Run(ctx *Context) error
}

type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

func (r *Registry) Register(h Handler) error {
	if h == nil {
		return fmt.Errorf("nil handler")
	}
	t := h.Type()
	if t == "" {
		return fmt.Errorf("handler Type() is empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[t]; exists {
		return fmt.Errorf("handler already registered for job=%s", t)
	}
	r.handlers[t] = h
	return nil
}

func (r *Registry) Get(jobName string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[jobName]
	return h, ok
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

type missingHandlerError struct{ JobName string }

func (e *missingHandlerError) Error() string { return "no handler registered for job=" + e.JobName }

// Dispatch runs the registered handler for job and converts panics into
// errors. Both the worker pool and the Temporal activity go through it.
func (r *Registry) Dispatch(c *Context) (err error) {
	h, ok := r.Get(c.Job.Name)
	if !ok {
		return &missingHandlerError{JobName: c.Job.Name}
	}
	defer func() {
		if rec := recover(); rec != nil {
			err = &PanicError{Val: rec}
		}
	}()
	return h.Run(c)
}

// IsMissingHandler reports an error that no retry can fix.
func IsMissingHandler(err error) bool {
	_, ok := err.(*missingHandlerError)
	return ok
}

type PanicError struct{ Val any }

func (e *PanicError) Error() string { return fmt.Sprintf("panic: %v", e.Val) }
