package cli

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cachescope/internal/cachestore"
	"github.com/roach88/cachescope/internal/opener"
	"github.com/roach88/cachescope/internal/session"
	"github.com/roach88/cachescope/internal/testutil"
)

// gatedOpener hands out one handle per call. A call whose gate is non-nil
// blocks until the gate is closed.
type gatedOpener struct {
	mu      sync.Mutex
	calls   int
	handles []cachestore.Handle
	gates   []chan struct{}
}

func (o *gatedOpener) Open(_ context.Context, _ session.Selection) opener.Result {
	o.mu.Lock()
	i := o.calls
	o.calls++
	o.mu.Unlock()

	if gate := o.gates[i]; gate != nil {
		<-gate
	}
	return opener.Result{Handle: o.handles[i]}
}

func TestOpenSelection_SkipsOutcomeOfAbandonedAttempt(t *testing.T) {
	stale := testutil.NewFakeHandle("old")
	fresh := testutil.NewFakeHandle("new")
	release := make(chan struct{})
	op := &gatedOpener{
		handles: []cachestore.Handle{stale, fresh},
		gates:   []chan struct{}{release, nil},
	}

	d := runDialog(context.Background(), op,
		session.WithDebounce(time.Millisecond),
		session.WithSelection(session.Selection{Path: t.TempDir()}),
		session.WithIDGenerator(testutil.NewSequenceIDs("")),
	)
	t.Cleanup(func() { _ = d.Close() })

	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	short, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	_, err := d.openSelection(short, formatter)
	cancel()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, buf.String(), "open did not finish")

	// The abandoned attempt finishes and leaves its outcome behind.
	close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	outcome, err := d.openSelection(ctx, formatter)
	require.NoError(t, err)
	assert.True(t, outcome.Opened)
	assert.Equal(t, "attempt-2", outcome.Attempt.ID)

	cur, ok := d.state.Current()
	require.True(t, ok)
	assert.Same(t, fresh, cur.Handle)
	assert.Equal(t, "attempt-2", cur.Attempt.ID)
	assert.True(t, stale.Closed(), "replaced store is closed")

	select {
	case o := <-d.state.Outcomes():
		t.Fatalf("unexpected leftover outcome for %s", o.Attempt.ID)
	default:
	}
}

func TestWaitOutcome_SkipsOtherAttempts(t *testing.T) {
	d := runDialog(context.Background(), &gatedOpener{})
	t.Cleanup(func() { _ = d.Close() })

	d.state.Failed(session.OpenAttempt{ID: "a"}, opener.UserMessage, nil)
	d.state.Failed(session.OpenAttempt{ID: "b"}, opener.UserMessage, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	o, err := waitOutcome(ctx, d.state, "b")
	require.NoError(t, err)
	assert.Equal(t, "b", o.Attempt.ID)

	short, cancelShort := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancelShort()
	_, err = waitOutcome(short, d.state, "a")
	assert.ErrorIs(t, err, context.DeadlineExceeded, "a was consumed while waiting for b")
}
