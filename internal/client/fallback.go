package client

import "context"

// FirstSuccess tries call with each candidate in order and returns the first
// successful result. Later candidates are never tried once one succeeds. When
// every candidate fails the result is an *AttemptsError holding each failure;
// a cancelled context stops the chain and its error is recorded as the last
// attempt.
func FirstSuccess[T any](ctx context.Context, candidates []string, call func(ctx context.Context, candidate string) (T, error)) (T, error) {
	var zero T
	if len(candidates) == 0 {
		return zero, ErrNoCandidates
	}

	var errs []error
	for _, candidate := range candidates {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		v, err := call(ctx, candidate)
		if err == nil {
			return v, nil
		}
		errs = append(errs, err)
	}
	return zero, &AttemptsError{Errors: errs}
}
