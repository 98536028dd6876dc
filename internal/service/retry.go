package service

import (
	"context"
	"errors"

	"github.com/spec-kit/ticket-lifecycle/internal/repository"
	apperrors "github.com/spec-kit/ticket-lifecycle/pkg/util/errorutil"
)

// RetryOnConflict runs fn, re-running it while it fails with a CONFLICT
// caused by a concurrent writer, up to retries extra attempts. Each attempt
// re-reads the ticket so it decides on fresh state.
func RetryOnConflict(ctx context.Context, retries int, fn func() error) error {
	var err error
	for attempt := 0; attempt <= retries; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			if err != nil {
				return err
			}
			return ctxErr
		}
		err = fn()
		if !retryable(err) {
			return err
		}
	}
	return err
}

func retryable(err error) bool {
	return apperrors.IsCode(err, apperrors.CodeConflict) && errors.Is(err, repository.ErrStaleVersion)
}
