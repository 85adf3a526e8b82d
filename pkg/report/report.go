// Package report renders the Telegram messages of a smoke test run. All
// output is HTML parse-mode text; interpolated values are escaped.
package report

import (
	"fmt"
	"html"
	"strings"
	"time"

	"NewsSmoke/pkg/health"

	"github.com/muesli/reflow/truncate"
)

// MaxErrorWidth caps the error text in a single notification.
const MaxErrorWidth = 1000

// Summary is what the final report message shows.
type Summary struct {
	Site      string
	RunID     string
	Successes int
	Errors    int
	Duration  time.Duration
	// Failed lists the targets of failed checks, in run order.
	Failed []string
}

// StartMessage announces a run.
func StartMessage(site string, t time.Time) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("🔄 <b>Test start %s</b>\n\n", esc(site)))
	sb.WriteString(fmt.Sprintf("📅 Date: %s\n", t.Format("2006-01-02")))
	sb.WriteString(fmt.Sprintf("🕐 Time: %s", t.Format("15:04:05")))
	return sb.String()
}

// ErrorMessage reports one failed check. location and screenshot may be empty.
func ErrorMessage(site string, err error, location, screenshot string, t time.Time) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("❌ <b>Error during testing %s</b>\n\n", esc(site)))
	sb.WriteString(fmt.Sprintf("🕐 Time: %s\n", t.Format("2006-01-02 15:04:05")))
	if location != "" {
		sb.WriteString(fmt.Sprintf("📍 Location: %s\n", esc(location)))
	}
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	sb.WriteString(fmt.Sprintf("⚠️ Error: %s\n", esc(truncate.StringWithTail(msg, MaxErrorWidth, "…"))))
	if screenshot != "" {
		sb.WriteString(fmt.Sprintf("📷 Screenshot: <code>%s</code>\n", esc(screenshot)))
	}
	return sb.String()
}

// SummaryMessage is the final report, sent whatever the outcome.
func SummaryMessage(s Summary) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("📊 <b>Test Report for %s</b>\n\n", esc(s.Site)))
	sb.WriteString(fmt.Sprintf("✅ Successful checks: %d\n", s.Successes))
	sb.WriteString(fmt.Sprintf("❌ Errors: %d\n", s.Errors))
	sb.WriteString(fmt.Sprintf("⏱ Duration: %.1f sec\n", s.Duration.Seconds()))
	if len(s.Failed) > 0 {
		sb.WriteString("\nFailed:\n")
		for _, f := range s.Failed {
			sb.WriteString(fmt.Sprintf("• %s\n", esc(f)))
		}
	}
	if s.RunID != "" {
		sb.WriteString(fmt.Sprintf("\n🆔 <code>%s</code>\n", esc(s.RunID)))
	}
	return sb.String()
}

// ServerStatus renders the probe results.
func ServerStatus(results []health.Result) string {
	text := esc(health.FormatReport(results))
	return strings.Replace(text, "📊 Server Status:", "📊 <b>Server Status:</b>", 1)
}

func esc(s string) string {
	return html.EscapeString(s)
}
