package pagination

import (
	"errors"
	"fmt"
)

// Kind classifies why a paginated news check failed.
type Kind int

const (
	// KindEmptyContent means no news items were present before scrolling.
	KindEmptyContent Kind = iota + 1
	// KindNavigation means a target page was never reached.
	KindNavigation
	// KindNoAnalytics means a target page was reached but no beacon was tied to it.
	KindNoAnalytics
)

func (k Kind) String() string {
	switch k {
	case KindEmptyContent:
		return "empty_content"
	case KindNavigation:
		return "navigation"
	case KindNoAnalytics:
		return "no_analytics"
	default:
		return "unknown"
	}
}

// Navigation failure reasons.
const (
	ReasonTimeout = "timeout"
	ReasonStall   = "stall"
)

// Sentinels matched by errors.Is against a *Failure of the same kind.
var (
	ErrEmptyContent = errors.New("no news found on initial page load")
	ErrNavigation   = errors.New("target page not reached")
	ErrNoAnalytics  = errors.New("no analytics requests detected")
)

// Failure is the error returned by VerifyPaginatedNews.
type Failure struct {
	Kind Kind
	// Page is the target page for navigation and analytics failures.
	Page int
	// Reason is ReasonTimeout or ReasonStall for navigation failures.
	Reason string
	// Items is the item count observed when the failure was raised.
	Items int
}

func (f *Failure) Error() string {
	switch f.Kind {
	case KindEmptyContent:
		return ErrEmptyContent.Error()
	case KindNavigation:
		return fmt.Sprintf("failed to reach page %d (%s)", f.Page, f.Reason)
	case KindNoAnalytics:
		return fmt.Sprintf("no analytics requests detected for page %d", f.Page)
	default:
		return "paginated news check failed"
	}
}

// Is lets errors.Is(err, ErrNavigation) and friends work on wrapped failures.
func (f *Failure) Is(target error) bool {
	switch target {
	case ErrEmptyContent:
		return f.Kind == KindEmptyContent
	case ErrNavigation:
		return f.Kind == KindNavigation
	case ErrNoAnalytics:
		return f.Kind == KindNoAnalytics
	}
	return false
}

// KindOf returns the failure kind carried by err, or 0 when err is not a *Failure.
func KindOf(err error) Kind {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	return 0
}
