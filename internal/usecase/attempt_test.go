package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errExhausted = errors.New("exhausted")

func step(name string, a Attempt[int]) Step[int] {
	return Step[int]{Name: name, Run: func(context.Context) Attempt[int] { return a }}
}

func TestRunChainStopsAtFirstSuccess(t *testing.T) {
	var skipped []string
	onSkip := func(name string, _ error) { skipped = append(skipped, name) }

	v, name, err := RunChain(context.Background(), errExhausted, onSkip,
		step("a", Next[int](errors.New("down"))),
		step("b", Succeed(7)),
		step("c", Succeed(9)),
	)
	require.NoError(t, err)
	assert.Equal(t, 7, v)
	assert.Equal(t, "b", name)
	assert.Equal(t, []string{"a"}, skipped)
}

func TestRunChainFatalAborts(t *testing.T) {
	boom := errors.New("boom")
	_, name, err := RunChain(context.Background(), errExhausted, nil,
		step("a", Abort[int](boom)),
		step("b", Succeed(1)),
	)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, errExhausted)
	assert.Equal(t, "a", name)
}

func TestRunChainExhaustedKeepsCauses(t *testing.T) {
	first := errors.New("first")
	_, _, err := RunChain(context.Background(), errExhausted, nil,
		step("a", Next[int](first)),
		step("b", Next[int](nil)),
	)
	assert.ErrorIs(t, err, errExhausted)
	assert.ErrorIs(t, err, first)
	assert.Contains(t, err.Error(), "a: first")
}

func TestRunChainHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := RunChain(ctx, errExhausted, nil, step("a", Succeed(1)))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "success", Success.String())
	assert.Equal(t, "try_next", TryNext.String())
	assert.Equal(t, "fatal", Fatal.String())
}
