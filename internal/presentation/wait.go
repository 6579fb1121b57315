package presentation

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/presfeed/internal/protocol"
)

// Wait pumps the connection until fb leaves Pending.
//
// Events for other feedback objects on the same connection are delivered
// along the way. A pump error ends the wait: violations raised by a
// listener are returned as is, anything else is wrapped as
// ErrCodeTransport. The protocol has no timeout; bound the wait with ctx.
func Wait(ctx context.Context, pump protocol.Pump, fb *Feedback) error {
	for fb.Pending() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := pump.Dispatch(ctx); err != nil {
			return dispatchError(fb, err)
		}
	}
	return nil
}

// WaitAll pumps the connection until every feedback in fbs is terminal.
// Terminal events may arrive in any order.
func WaitAll(ctx context.Context, pump protocol.Pump, fbs ...*Feedback) error {
	for _, fb := range fbs {
		if err := Wait(ctx, pump, fb); err != nil {
			return err
		}
	}
	return nil
}

func dispatchError(fb *Feedback, err error) error {
	if ViolationCodeOf(err) != "" {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &ViolationError{
		Code:     ErrCodeTransport,
		Message:  fmt.Sprintf("dispatch failed while waiting for feedback %d", fb.ID()),
		Feedback: uint32(fb.ID()),
		Err:      err,
	}
}
