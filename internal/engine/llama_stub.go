//go:build !llama

package engine

import "context"

// openLlama refuses to load without the 'llama' build tag, keeping default
// builds CGO-free.
func openLlama(ctx context.Context, opts Options) (Backend, error) {
	return nil, ErrDependencyUnavailable("llama support not built (missing 'llama' build tag)")
}
