// Package pipeline composes context-passing steps that run strictly in order
// and stop at the first failure.
package pipeline

import "context"

// Step transforms an accumulated context into an extended one.
type Step[In, Out any] func(ctx context.Context, in In) (Out, error)

// Compose chains steps that share a context type. The error of the first
// failing step is returned unaltered and later steps do not run.
func Compose[C any](steps ...Step[C, C]) Step[C, C] {
	return func(ctx context.Context, in C) (C, error) {
		cur := in
		for _, step := range steps {
			if err := ctx.Err(); err != nil {
				var zero C
				return zero, err
			}
			next, err := step(ctx, cur)
			if err != nil {
				var zero C
				return zero, err
			}
			cur = next
		}
		return cur, nil
	}
}

// Then chains two steps whose context types differ, typically where next
// embeds the output of first.
func Then[A, B, C any](first Step[A, B], next Step[B, C]) Step[A, C] {
	return func(ctx context.Context, in A) (C, error) {
		var zero C
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		mid, err := first(ctx, in)
		if err != nil {
			return zero, err
		}
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		return next(ctx, mid)
	}
}
