package usecase

import (
	"context"
	"errors"
	"fmt"
)

// Outcome tags the result of one step in a fallback chain.
type Outcome int

const (
	Success Outcome = iota
	TryNext
	Fatal
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case TryNext:
		return "try_next"
	case Fatal:
		return "fatal"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Attempt is a tagged result. Err is set for TryNext and Fatal.
type Attempt[T any] struct {
	Outcome Outcome
	Value   T
	Err     error
}

func Succeed[T any](v T) Attempt[T] { return Attempt[T]{Outcome: Success, Value: v} }

func Next[T any](err error) Attempt[T] { return Attempt[T]{Outcome: TryNext, Err: err} }

func Abort[T any](err error) Attempt[T] { return Attempt[T]{Outcome: Fatal, Err: err} }

// Step is one link of a chain.
type Step[T any] struct {
	Name string
	Run  func(ctx context.Context) Attempt[T]
}

// RunChain executes steps in order until one succeeds or aborts. When every
// step asks for the next one, exhausted is returned joined with the step
// errors. onSkip, when set, sees every TryNext.
func RunChain[T any](ctx context.Context, exhausted error, onSkip func(step string, err error), steps ...Step[T]) (T, string, error) {
	var (
		zero T
		errs []error
	)
	for _, s := range steps {
		if err := ctx.Err(); err != nil {
			return zero, "", err
		}
		a := s.Run(ctx)
		switch a.Outcome {
		case Success:
			return a.Value, s.Name, nil
		case Fatal:
			return zero, s.Name, a.Err
		default:
			if onSkip != nil {
				onSkip(s.Name, a.Err)
			}
			if a.Err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", s.Name, a.Err))
			}
		}
	}
	return zero, "", errors.Join(append([]error{exhausted}, errs...)...)
}
