package main

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type recordingRunner struct {
	calls []string
	err   error
}

func (r *recordingRunner) record(call string) error {
	r.calls = append(r.calls, call)

	return r.err
}

func (r *recordingRunner) Up() error      { return r.record("up") }
func (r *recordingRunner) Down() error    { return r.record("down") }
func (r *recordingRunner) Status() error  { return r.record("status") }
func (r *recordingRunner) Version() error { return r.record("version") }
func (r *recordingRunner) Drop() error    { return r.record("drop") }
func (r *recordingRunner) Close() error   { return nil }

func TestExecuteCommand(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	for _, command := range []string{"up", "down", "status", "version"} {
		t.Run(command, func(t *testing.T) {
			runner := &recordingRunner{}

			assert.NoError(t, executeCommand(command, runner))
			assert.Equal(t, []string{command}, runner.calls)
		})
	}

	t.Run("propagates runner error", func(t *testing.T) {
		boom := errors.New("boom")
		runner := &recordingRunner{err: boom}

		assert.ErrorIs(t, executeCommand("up", runner), boom)
	})

	t.Run("unknown command", func(t *testing.T) {
		runner := &recordingRunner{}

		assert.ErrorContains(t, executeCommand("sideways", runner), "unknown command")
		assert.Empty(t, runner.calls)
	})
}
