package command

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRunner_Defaults(t *testing.T) {
	t.Parallel()

	r := NewRunner(Config{})

	assert.Equal(t, defaultTimeout, r.cfg.Timeout)
	assert.Equal(t, defaultMaxLines, r.cfg.MaxLines)
	assert.NotNil(t, r.cfg.Logger)
}

func TestRun_CollectsStdoutLines(t *testing.T) {
	t.Parallel()

	r := NewRunner(Config{})

	lines, err := r.Run(context.Background(), `printf 'alpha\nbeta\ngamma\n'`, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta", "gamma"}, lines)
}

func TestRun_BindsArgumentAsDollarOne(t *testing.T) {
	t.Parallel()

	r := NewRunner(Config{})

	lines, err := r.Run(context.Background(), `echo "hit:$1"`, "needle with spaces")
	require.NoError(t, err)
	assert.Equal(t, []string{"hit:needle with spaces"}, lines)
}

func TestRun_CapsLines(t *testing.T) {
	t.Parallel()

	r := NewRunner(Config{MaxLines: 3})

	lines, err := r.Run(context.Background(), `seq 1 10`, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2", "3"}, lines)
}

func TestRun_SkipsBlankLines(t *testing.T) {
	t.Parallel()

	r := NewRunner(Config{})

	lines, err := r.Run(context.Background(), `printf 'one\n\ntwo\n'`, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two"}, lines)
}

func TestRun_NonZeroExitStillReturnsOutput(t *testing.T) {
	t.Parallel()

	r := NewRunner(Config{})

	// Matchers exit 1 when nothing matched; whatever they printed still counts.
	lines, err := r.Run(context.Background(), `echo found; exit 1`, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"found"}, lines)
}

func TestRun_EmptyOutput(t *testing.T) {
	t.Parallel()

	r := NewRunner(Config{})

	lines, err := r.Run(context.Background(), `true`, "")
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestRun_Timeout(t *testing.T) {
	t.Parallel()

	r := NewRunner(Config{Timeout: 100 * time.Millisecond})

	start := time.Now()
	_, err := r.Run(context.Background(), `sleep 5`, "")
	require.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestRun_CanceledContext(t *testing.T) {
	t.Parallel()

	r := NewRunner(Config{})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := r.Run(ctx, `sleep 5`, "")
	require.ErrorIs(t, err, context.Canceled)
}

func TestRun_TruncatesHugeOutput(t *testing.T) {
	t.Parallel()

	r := NewRunner(Config{})

	lines, err := r.Run(context.Background(), `head -c 2097152 /dev/zero | tr '\0' x`, "")
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Len(t, lines[0], maxOutputBytes)
}
