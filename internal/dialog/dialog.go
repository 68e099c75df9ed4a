// Package dialog holds the create/edit/delete/import state machines behind
// every modal form in the console.
package dialog

import (
	"context"
	"errors"
	"sync"
)

var (
	ErrInFlight     = errors.New("dialog: submission already in progress")
	ErrNotConfirmed = errors.New("dialog: deletion not confirmed")
	ErrClosed       = errors.New("dialog: not open")
)

// SubmitFunc performs the single network call for a dialog.
type SubmitFunc[D, R any] func(ctx context.Context, draft D) (R, error)

type Options[D, R any] struct {
	// Fallback is shown when the server gives no usable message.
	Fallback string
	// PreferFields orders field-level errors, e.g. "username", "email".
	PreferFields []string
	// Validate runs before any network call. Return a *ValidationError.
	Validate func(D) error
	// Confirm makes Submit refuse until Confirm has been called.
	Confirm bool
	// OnSuccess runs before the dialog closes, typically to refetch a list.
	OnSuccess func(R)
}

// Dialog edits a local draft and submits it exactly once per Submit call.
// The draft is a copy: editing it never touches the entity it was seeded
// from, and Close throws it away.
type Dialog[D, R any] struct {
	submit SubmitFunc[D, R]
	opts   Options[D, R]

	mu        sync.Mutex
	open      bool
	draft     D
	inFlight  bool
	confirmed bool
	err       error
}

func New[D, R any](submit SubmitFunc[D, R], opts Options[D, R]) *Dialog[D, R] {
	return &Dialog[D, R]{submit: submit, opts: opts}
}

// Open starts a fresh draft from seed.
func (d *Dialog[D, R]) Open(seed D) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.open = true
	d.draft = seed
	d.confirmed = false
	d.err = nil
}

func (d *Dialog[D, R]) IsOpen() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.open
}

func (d *Dialog[D, R]) Draft() D {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.draft
}

// Update edits the draft in place. It clears any previous error.
func (d *Dialog[D, R]) Update(fn func(*D)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fn(&d.draft)
	d.err = nil
}

func (d *Dialog[D, R]) Confirm() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.confirmed = true
}

// Submitting reports whether a call is in flight; the submit control is
// disabled meanwhile.
func (d *Dialog[D, R]) Submitting() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.inFlight
}

// Err is the message-bearing error from the last failed Submit.
func (d *Dialog[D, R]) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.err
}

// Close discards the draft.
func (d *Dialog[D, R]) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reset()
}

func (d *Dialog[D, R]) reset() {
	var zero D
	d.open = false
	d.draft = zero
	d.confirmed = false
	d.err = nil
}

// Submit validates locally, then makes one call. On success OnSuccess runs
// and the dialog closes. On failure the dialog stays open with the draft
// intact and the error is a *ValidationError or *ServerError, unless the
// session is gone, in which case the API error is returned unchanged.
func (d *Dialog[D, R]) Submit(ctx context.Context) (R, error) {
	var zero R

	d.mu.Lock()
	switch {
	case !d.open:
		d.mu.Unlock()
		return zero, ErrClosed
	case d.inFlight:
		d.mu.Unlock()
		return zero, ErrInFlight
	case d.opts.Confirm && !d.confirmed:
		d.mu.Unlock()
		return zero, ErrNotConfirmed
	}
	if d.opts.Validate != nil {
		if err := d.opts.Validate(d.draft); err != nil {
			d.err = err
			d.mu.Unlock()
			return zero, err
		}
	}
	d.inFlight = true
	d.err = nil
	draft := d.draft
	d.mu.Unlock()

	res, err := d.submit(ctx, draft)

	d.mu.Lock()
	d.inFlight = false
	if err != nil {
		err = Translate(err, d.opts.Fallback, d.opts.PreferFields...)
		d.err = err
		d.mu.Unlock()
		return zero, err
	}
	d.mu.Unlock()

	if d.opts.OnSuccess != nil {
		d.opts.OnSuccess(res)
	}
	d.Close()
	return res, nil
}
