package server

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	applogger "CryptoPulse/pkg/logger"
)

type fakeHTTP struct {
	events *[]string
}

func (f fakeHTTP) Start() error {
	*f.events = append(*f.events, "start http")
	return nil
}

func (f fakeHTTP) Stop(context.Context) error {
	*f.events = append(*f.events, "stop http")
	return nil
}

func component(name string, events *[]string, startErr error) Component {
	return Component{
		Name: name,
		Start: func() error {
			*events = append(*events, "start "+name)
			return startErr
		},
		Stop: func(context.Context) error {
			*events = append(*events, "stop "+name)
			return nil
		},
	}
}

func TestAppLifecycleOrder(t *testing.T) {
	var events []string
	app := &App{l: applogger.Nop(), httpServer: fakeHTTP{events: &events}}
	app.AddComponent(component("consumer", &events, nil))
	app.AddComponent(component("queue", &events, nil))
	app.AddCloser("cache", func() error {
		events = append(events, "close cache")
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.NoError(t, app.run(ctx))

	assert.Equal(t, []string{
		"start consumer", "start queue", "start http",
		"stop http", "stop queue", "stop consumer", "close cache",
	}, events)
}

func TestAppStartFailureUnwinds(t *testing.T) {
	var events []string
	boom := errors.New("redis down")
	app := &App{l: applogger.Nop(), httpServer: fakeHTTP{events: &events}}
	app.AddComponent(component("consumer", &events, nil))
	app.AddComponent(component("queue", &events, boom))

	err := app.run(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"start consumer", "start queue", "stop consumer"}, events)
}
