package wswriter

import (
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimitedWriter(t *testing.T) {
	t.Parallel()

	w := Limit(io.Discard, 5)

	n, err := w.Write([]byte("123"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = w.Write([]byte("45"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// the limit is reached, any further byte fails
	n, err = w.Write([]byte("6"))
	assert.Equal(t, ErrWriteLimitExceeded, err)
	assert.Equal(t, 0, n)

	// and it keeps failing
	_, err = w.Write([]byte("7"))
	assert.Equal(t, ErrWriteLimitExceeded, err)
}

func TestLimitedWriterSingleOversizedWrite(t *testing.T) {
	t.Parallel()

	w := Limit(io.Discard, 2)
	_, err := w.Write([]byte("123"))
	assert.Equal(t, ErrWriteLimitExceeded, err)
}

func TestExclusiveWriterLockTimeout(t *testing.T) {
	t.Parallel()

	// an empty lock channel means the lock is held by someone else
	lock := make(chan struct{}, 1)
	w := Exclusive(nil, lock, 10*time.Millisecond, 0)

	_, err := w.Write([]byte("x"))
	assert.Equal(t, ErrWriteLockTimeout, err)

	// Close without a successful Write is a no-op and must not
	// release a lock it never held
	assert.NoError(t, w.Close())
	select {
	case <-lock:
		t.Error("lock released by a no-op close")
	default:
	}
}
