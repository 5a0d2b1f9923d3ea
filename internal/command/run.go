package command

import (
	"context"
	"fmt"
)

// Precondition returns a non-empty reason when a command must not run.
type Precondition func(ctx context.Context) (reason string, ok bool)

// Action performs the capability operation for an accepted command.
type Action func(ctx context.Context) error

// Run drives an accepted command through its lifecycle. If check fails the
// command goes straight to Failed and action is never invoked. Otherwise the
// command is Started, action runs, and the command ends Finished or Failed.
// Errors and panics from action are converted to a Failed state.
func Run(ctx context.Context, cmd *Command, check Precondition, action Action) {
	if check != nil {
		if reason, ok := check(ctx); !ok {
			cmd.Fail(ErrPreconditionFailed, reason)
			return
		}
	}

	cmd.Start()

	if err := invoke(ctx, action); err != nil {
		cmd.FailWith(err)
		return
	}
	cmd.Finish()
}

// invoke calls action, converting a panic into an error.
func invoke(ctx context.Context, action Action) (err error) {
	if action == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return action(ctx)
}
