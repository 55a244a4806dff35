package logging

import (
	"io"
	"sync"
)

// Redirect is an io.Writer whose destination can be swapped while loggers
// are writing to it.
type Redirect struct {
	mu sync.Mutex
	w  io.Writer
}

// NewRedirect returns a Redirect writing to w
func NewRedirect(w io.Writer) *Redirect {
	return &Redirect{w: w}
}

// Set changes the destination and returns the previous one
func (r *Redirect) Set(w io.Writer) io.Writer {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.w
	r.w = w
	return prev
}

func (r *Redirect) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.w.Write(p)
}
