package main

import (
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHandlePanic(t *testing.T) {
	origWrite, origExit := osWriteFile, osExit
	t.Cleanup(func() { osWriteFile, osExit = origWrite, origExit })

	t.Run("writes the panic log", func(t *testing.T) {
		var (
			written  string
			exitCode int
		)
		osWriteFile = func(name string, data []byte, perm os.FileMode) error {
			written = name + ":" + string(data)
			return nil
		}
		osExit = func(code int) { exitCode = code }

		func() {
			defer handlePanic()
			panic("boom")
		}()

		assert.Contains(t, written, panicLogFile+":panic: boom")
		assert.Equal(t, 2, exitCode)
	})

	t.Run("falls back when the log cannot be written", func(t *testing.T) {
		exitCode := 0
		osWriteFile = func(string, []byte, os.FileMode) error { return errors.New("read-only") }
		osExit = func(code int) { exitCode = code }

		func() {
			defer handlePanic()
			panic("boom")
		}()
		assert.Equal(t, 2, exitCode)
	})

	t.Run("no panic is a no-op", func(t *testing.T) {
		called := false
		osExit = func(int) { called = true }
		func() { defer handlePanic() }()
		assert.False(t, called)
	})
}
