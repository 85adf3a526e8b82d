package recovery

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapWithRecovery_PassesThrough(t *testing.T) {
	eh := NewErrorHandler(nil)
	want := errors.New("boom")

	assert.NoError(t, eh.WrapWithRecovery("ok", func() error { return nil }))
	assert.Same(t, want, eh.WrapWithRecovery("err", func() error { return want }))
}

func TestWrapWithRecovery_ConvertsPanic(t *testing.T) {
	eh := NewErrorHandler(nil)

	err := eh.WrapWithRecovery("category politics", func() error {
		var m map[string]int
		m["x"]++
		return nil
	})

	require.Error(t, err)
	var pe *PanicError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "category politics", pe.Context)
	assert.NotEmpty(t, pe.Stack)
	assert.Contains(t, err.Error(), "panic recovered in category politics")
}

func TestHandleError_RecordsEntries(t *testing.T) {
	eh := NewErrorHandler(nil)
	eh.HandleError(nil, "ignored", "noop")
	eh.HandleError(errors.New("first"), "main page", "check")
	eh.HandleError(&PanicError{Context: "search", Value: "nil deref", Stack: "trace"}, "search", "check")

	require.Equal(t, 2, eh.Count())
	recent := eh.GetRecentErrors(10)
	require.Len(t, recent, 2)
	assert.False(t, recent[0].Recovered)
	assert.True(t, recent[1].Recovered)
	assert.Equal(t, "trace", recent[1].StackTrace)

	last := eh.GetRecentErrors(1)
	require.Len(t, last, 1)
	assert.Equal(t, "search", last[0].Context)

	eh.ClearErrorLog()
	assert.Zero(t, eh.Count())
}

func TestHandleError_BoundedLog(t *testing.T) {
	eh := NewErrorHandler(nil)
	eh.maxLogSize = 3
	for i := 0; i < 5; i++ {
		eh.HandleError(fmt.Errorf("err %d", i), "ctx", "op")
	}

	recent := eh.GetRecentErrors(10)
	require.Len(t, recent, 3)
	assert.Equal(t, "err 2", recent[0].Error.Error())
}

func TestIsTransientError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("dial tcp: connection refused"), true},
		{errors.New("Timeout 5000ms exceeded"), true},
		{errors.New("HTTP 502 Bad Gateway"), true},
		{errors.New("no news found on initial page load"), false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsTransientError(tt.err), "%v", tt.err)
	}
}

func TestFormatErrorReport(t *testing.T) {
	eh := NewErrorHandler(nil)
	assert.Equal(t, "No errors recorded.", eh.FormatErrorReport(10))

	eh.HandleError(errors.New("connection refused"), "server web1", "probe")
	report := eh.FormatErrorReport(10)

	assert.True(t, strings.HasPrefix(report, "Errors this run: 1"))
	assert.Contains(t, report, "probe (transient)")
	assert.Contains(t, report, "Context: server web1")
}
