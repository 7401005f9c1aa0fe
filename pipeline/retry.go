package pipeline

import (
	"errors"
	"time"

	"github.com/lookatitude/docintel/core"
)

// backoffBase, backoffCap, and maxAttemptsPerTask implement spec §4.1's
// per-task retry policy: exponential backoff starting at 2s, capped at 8s,
// up to 3 attempts per task.
const (
	backoffBase        = 2 * time.Second
	backoffCap         = 8 * time.Second
	maxAttemptsPerTask = 3
)

// backoffFor returns the delay before retrying a task's (1-indexed)
// attempt number.
func backoffFor(attempt int) time.Duration {
	d := backoffBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= backoffCap {
			return backoffCap
		}
	}
	return d
}

// classify maps a task failure to spec §4.1's error-type taxonomy and
// whether the pipeline runtime should retry it. core's ErrorCode values
// already spell out this taxonomy (parse_error, retrieval_error,
// llm_error, validation_error, schema_error, template_error,
// storage_error), so classification is a direct passthrough when the
// error is a *core.Error; anything else is treated as a non-retryable
// storage_error, since an un-typed error leaving a stage almost always
// means a programming bug rather than a transient condition worth
// retrying.
func classify(err error) (errType string, retryable bool) {
	var ce *core.Error
	if errors.As(err, &ce) {
		return string(ce.Code), core.IsRetryable(err)
	}
	return string(core.ErrStorage), false
}
