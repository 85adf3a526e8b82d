// Package recovery keeps one failing check from taking the whole run down.
package recovery

import (
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"NewsSmoke/pkg/logger"
)

// ErrorHandler records check errors and turns panics into errors.
type ErrorHandler struct {
	mu         sync.RWMutex
	errorLog   []ErrorEntry
	maxLogSize int
	log        *logger.Logger
}

// ErrorEntry represents a logged error
type ErrorEntry struct {
	Timestamp  time.Time
	Error      error
	Context    string
	Operation  string
	Recovered  bool
	StackTrace string
}

// PanicError is returned by WrapWithRecovery when fn panicked.
type PanicError struct {
	Context string
	Value   any
	Stack   string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic recovered in %s: %v", e.Context, e.Value)
}

// NewErrorHandler creates a new error handler
func NewErrorHandler(log *logger.Logger) *ErrorHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &ErrorHandler{
		errorLog:   make([]ErrorEntry, 0),
		maxLogSize: 1000,
		log:        log,
	}
}

// HandleError records err without stopping execution.
func (eh *ErrorHandler) HandleError(err error, context, operation string) {
	if err == nil {
		return
	}

	entry := ErrorEntry{
		Timestamp: time.Now(),
		Error:     err,
		Context:   context,
		Operation: operation,
	}
	var pe *PanicError
	if errors.As(err, &pe) {
		entry.Recovered = true
		entry.StackTrace = pe.Stack
	}
	eh.append(entry)

	eh.log.Error("%s in %s: %v", operation, context, err)
}

func (eh *ErrorHandler) append(entry ErrorEntry) {
	eh.mu.Lock()
	defer eh.mu.Unlock()
	eh.errorLog = append(eh.errorLog, entry)
	if len(eh.errorLog) > eh.maxLogSize {
		eh.errorLog = eh.errorLog[len(eh.errorLog)-eh.maxLogSize:]
	}
}

// WrapWithRecovery runs fn and converts a panic into a *PanicError.
func (eh *ErrorHandler) WrapWithRecovery(context string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			pe := &PanicError{Context: context, Value: r, Stack: string(debug.Stack())}
			eh.log.Error("[PANIC RECOVERED] %s: %v\n%s", context, r, pe.Stack)
			err = pe
		}
	}()
	return fn()
}

// GetRecentErrors returns recent errors
func (eh *ErrorHandler) GetRecentErrors(count int) []ErrorEntry {
	eh.mu.RLock()
	defer eh.mu.RUnlock()

	if count > len(eh.errorLog) {
		count = len(eh.errorLog)
	}
	if count < 0 {
		count = 0
	}

	result := make([]ErrorEntry, count)
	copy(result, eh.errorLog[len(eh.errorLog)-count:])
	return result
}

// Count returns the number of recorded errors.
func (eh *ErrorHandler) Count() int {
	eh.mu.RLock()
	defer eh.mu.RUnlock()
	return len(eh.errorLog)
}

// ClearErrorLog clears the error log
func (eh *ErrorHandler) ClearErrorLog() {
	eh.mu.Lock()
	defer eh.mu.Unlock()
	eh.errorLog = make([]ErrorEntry, 0)
}

// IsTransientError checks if an error is likely transient
func IsTransientError(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())
	transientPatterns := []string{
		"timeout",
		"connection refused",
		"connection reset",
		"temporary failure",
		"too many requests",
		"503",
		"502",
		"504",
		"network is unreachable",
		"no route to host",
	}

	for _, pattern := range transientPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}

// FormatErrorReport formats a human-readable error report
func (eh *ErrorHandler) FormatErrorReport(last int) string {
	recent := eh.GetRecentErrors(last)
	if len(recent) == 0 {
		return "No errors recorded."
	}

	var report strings.Builder
	report.WriteString(fmt.Sprintf("Errors this run: %d (showing last %d)\n", eh.Count(), len(recent)))
	report.WriteString(strings.Repeat("─", 60) + "\n")

	for i, entry := range recent {
		status := "❌"
		if entry.Recovered {
			status = "💥"
		}
		kind := "permanent"
		if IsTransientError(entry.Error) {
			kind = "transient"
		}

		report.WriteString(fmt.Sprintf("\n%d. %s [%s] %s (%s)\n",
			i+1, status, entry.Timestamp.Format("15:04:05"), entry.Operation, kind))
		report.WriteString(fmt.Sprintf("   Context: %s\n", entry.Context))
		report.WriteString(fmt.Sprintf("   Error: %v\n", entry.Error))
	}

	return report.String()
}
