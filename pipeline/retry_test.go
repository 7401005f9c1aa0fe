package pipeline

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/lookatitude/docintel/core"
)

func TestClassify_RetryableCode(t *testing.T) {
	errType, retryable := classify(core.NewError("op", core.ErrTimeout, "slow", nil))
	assert.Equal(t, string(core.ErrTimeout), errType)
	assert.True(t, retryable)
}

func TestClassify_NonRetryableCode(t *testing.T) {
	errType, retryable := classify(core.NewError("op", core.ErrParse, "bad pdf", nil))
	assert.Equal(t, string(core.ErrParse), errType)
	assert.False(t, retryable)
}

func TestClassify_UntypedErrorDefaultsToNonRetryableStorage(t *testing.T) {
	errType, retryable := classify(errors.New("boom"))
	assert.Equal(t, string(core.ErrStorage), errType)
	assert.False(t, retryable)
}

func TestBackoffFor_ExponentialWithCap(t *testing.T) {
	assert.Equal(t, 2*time.Second, backoffFor(1))
	assert.Equal(t, 4*time.Second, backoffFor(2))
	assert.Equal(t, 8*time.Second, backoffFor(3))
	assert.Equal(t, 8*time.Second, backoffFor(4))
}
