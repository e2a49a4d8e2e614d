package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/cachescope/internal/appstate"
	"github.com/roach88/cachescope/internal/cachestore"
	"github.com/roach88/cachescope/internal/config"
	"github.com/roach88/cachescope/internal/opener"
	"github.com/roach88/cachescope/internal/session"
)

// pollInterval is how often waitSettled samples session status.
const pollInterval = 5 * time.Millisecond

var errSessionStopped = errors.New("session stopped")

// dialog is one running open session plus the state it hands off to.
type dialog struct {
	sess  *session.Session
	state *appstate.State
	pool  *session.Pool
	done  chan error
}

// startDialog builds the store pipeline from cfg and runs a session on
// its own goroutine until Close.
func startDialog(ctx context.Context, cfg config.Config, sel session.Selection, extra ...session.Option) *dialog {
	pipeline := opener.New(cachestore.NewConstructors(cfg.StoreOptions(slog.Default())))
	opts := append([]session.Option{
		session.WithDebounce(cfg.Debounce),
		session.WithSelection(sel),
	}, extra...)
	return runDialog(ctx, pipeline, opts...)
}

// runDialog runs a session over op on its own goroutine.
func runDialog(ctx context.Context, op session.Opener, opts ...session.Option) *dialog {
	state := appstate.New()
	pool := session.NewPool(session.DefaultPoolSize)

	d := &dialog{
		sess:  session.New(op, state, append([]session.Option{session.WithExecutor(pool)}, opts...)...),
		state: state,
		pool:  pool,
		done:  make(chan error, 1),
	}
	go func() { d.done <- d.sess.Run(ctx) }()
	return d
}

// Close stops the session, waits for background work and closes the open
// store, if any.
func (d *dialog) Close() error {
	d.sess.Stop()
	<-d.done
	d.pool.Wait()
	return d.state.Clear()
}

// waitSettled blocks until the published validity describes the current
// Selection and no attempt is in flight.
func waitSettled(ctx context.Context, sess *session.Session) (session.Status, error) {
	for {
		st, ok := sess.Status()
		if !ok {
			return session.Status{}, errSessionStopped
		}
		if st.Validity.Seq > 0 && st.Validity.Selection == st.Selection && st.Gate != session.GateInFlight {
			return st, nil
		}

		select {
		case <-ctx.Done():
			return st, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

// waitOutcome blocks until the attempt with the given ID resolves. Outcomes
// of earlier attempts, left behind by a caller that gave up waiting, are
// skipped.
func waitOutcome(ctx context.Context, state *appstate.State, attemptID string) (appstate.Outcome, error) {
	for {
		select {
		case <-ctx.Done():
			return appstate.Outcome{}, ctx.Err()
		case o := <-state.Outcomes():
			if o.Attempt.ID == attemptID {
				return o, nil
			}
			slog.Debug("skipping outcome of earlier attempt", "attempt", o.Attempt.ID, "want", attemptID, "opened", o.Opened)
		}
	}
}

// openSelection waits for the current Selection to settle and, if it is
// plausible, opens it. The returned error is an *ExitError already
// reported through f.
func (d *dialog) openSelection(ctx context.Context, f *OutputFormatter) (appstate.Outcome, error) {
	st, err := waitSettled(ctx, d.sess)
	if err != nil {
		return appstate.Outcome{}, f.fail(ExitFailure, ErrCodeGeneric, "selection did not settle", err)
	}
	if !st.Validity.Valid {
		return appstate.Outcome{}, f.fail(ExitCommandError, ErrCodeInvalidSelection, notPlausibleMessage(st.Selection), nil)
	}
	attempt, ok := d.sess.TriggerAttempt()
	if !ok {
		return appstate.Outcome{}, f.fail(ExitFailure, ErrCodeGeneric, "open was not accepted", nil)
	}

	outcome, err := waitOutcome(ctx, d.state, attempt.ID)
	if err != nil {
		return appstate.Outcome{}, f.fail(ExitFailure, ErrCodeGeneric, "open did not finish", err)
	}
	if !outcome.Opened {
		return outcome, f.fail(ExitFailure, ErrCodeOpenFailed, outcome.Message, outcome.Err)
	}
	return outcome, nil
}

func notPlausibleMessage(sel session.Selection) string {
	if sel.Path == "" {
		return "no cache path selected"
	}
	want := "directory"
	if sel.Indexed {
		want = "file"
	}
	return fmt.Sprintf("%s is not an existing %s", sel.Path, want)
}
