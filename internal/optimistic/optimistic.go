// Package optimistic applies a speculative state change, waits for the
// server to confirm it and restores the exact prior state if it does not.
package optimistic

import "context"

// Op describes one speculative mutation. Snapshot must return a value that
// Revert can restore exactly; Apply runs before Confirm is called.
type Op[S any] struct {
	Snapshot func() S
	Apply    func()
	Confirm  func(ctx context.Context) error
	Revert   func(snapshot S)
}

// Do runs op. The returned error is Confirm's error after Revert ran.
func Do[S any](ctx context.Context, op Op[S]) error {
	snapshot := op.Snapshot()
	op.Apply()

	if err := op.Confirm(ctx); err != nil {
		op.Revert(snapshot)
		return err
	}
	return nil
}
