// Package health probes the site's backend servers directly by IP.
package health

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"NewsSmoke/pkg/logger"

	"github.com/PuerkitoBio/goquery"
	"github.com/muesli/reflow/truncate"
	"golang.org/x/sync/errgroup"
)

// maxBodyBytes bounds how much of a response is read for the title.
const maxBodyBytes = 1 << 20

// Server is one backend to probe.
type Server struct {
	Name string `json:"name" yaml:"name"`
	IP   string `json:"ip" yaml:"ip"`
}

// Result is the outcome of probing one server.
type Result struct {
	Server        Server        `json:"server"`
	StatusCode    int           `json:"status_code"`
	StatusMessage string        `json:"status_message"`
	ServerHeader  string        `json:"server_header"`
	Title         string        `json:"title,omitempty"`
	OK            bool          `json:"ok"`
	Err           error         `json:"-"`
	Duration      time.Duration `json:"duration"`
}

// Options configures the checker.
type Options struct {
	// Host is sent as the Host header so the server picks the site's vhost.
	Host    string
	Port    int
	Timeout time.Duration
}

// Checker probes servers over plain HTTP.
type Checker struct {
	opts   Options
	client *http.Client
	log    *logger.Logger
}

// NewChecker creates a new checker. Redirects are reported, never followed.
func NewChecker(opts Options, log *logger.Logger) *Checker {
	if opts.Port == 0 {
		opts.Port = 80
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if log == nil {
		log = logger.Nop()
	}

	return &Checker{
		opts: opts,
		client: &http.Client{
			Timeout: opts.Timeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		log: log,
	}
}

// Probe issues GET / against the server's IP. Transport errors are folded
// into a non-OK result rather than returned.
func (c *Checker) Probe(ctx context.Context, server Server) Result {
	start := time.Now()
	res := Result{Server: server}

	c.log.Debug("Checking server %s (%s)...", server.Name, server.IP)

	target := "http://" + net.JoinHostPort(server.IP, strconv.Itoa(c.opts.Port)) + "/"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return c.failed(res, err, start)
	}
	if c.opts.Host != "" {
		req.Host = c.opts.Host
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return c.failed(res, err, start)
	}
	defer resp.Body.Close()

	res.StatusCode = resp.StatusCode
	res.StatusMessage = reasonPhrase(resp)
	res.ServerHeader = resp.Header.Get("Server")
	if res.ServerHeader == "" {
		res.ServerHeader = "Unknown"
	}
	res.OK = resp.StatusCode >= 200 && resp.StatusCode < 400

	if doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxBodyBytes)); err == nil {
		res.Title = strings.TrimSpace(doc.Find("title").First().Text())
	}
	// drain so the connection can be reused
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))

	res.Duration = time.Since(start)
	c.log.Debug("Server %s: status=%d %s server=%s ok=%v", server.Name, res.StatusCode, res.StatusMessage, res.ServerHeader, res.OK)
	return res
}

func (c *Checker) failed(res Result, err error, start time.Time) Result {
	res.Err = err
	res.StatusMessage = err.Error()
	res.OK = false
	res.Duration = time.Since(start)
	c.log.Warn("Error checking server %s: %v", res.Server.Name, err)
	return res
}

// CheckAll probes every server concurrently, one worker per server, and
// returns results in the order given.
func (c *Checker) CheckAll(ctx context.Context, servers []Server) []Result {
	results := make([]Result, len(servers))
	if len(servers) == 0 {
		return results
	}

	var g errgroup.Group
	g.SetLimit(len(servers))
	for i, s := range servers {
		i, s := i, s
		g.Go(func() error {
			results[i] = c.Probe(ctx, s)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Down returns the failed results.
func Down(results []Result) []Result {
	var down []Result
	for _, r := range results {
		if !r.OK {
			down = append(down, r)
		}
	}
	return down
}

// FormatReport renders a plain-text status block for every server.
func FormatReport(results []Result) string {
	var sb strings.Builder

	sb.WriteString("📊 Server Status:\n\n")
	for _, r := range results {
		sb.WriteString(fmt.Sprintf("%s %s:\n", statusEmoji(r.OK), r.Server.Name))
		code := "-"
		if r.StatusCode != 0 {
			code = strconv.Itoa(r.StatusCode)
		}
		sb.WriteString(fmt.Sprintf("  Status code: %s\n", code))
		sb.WriteString(fmt.Sprintf("  Status: %s\n", shorten(r.StatusMessage, 200)))
		server := r.ServerHeader
		if server == "" {
			server = "-"
		}
		sb.WriteString(fmt.Sprintf("  Server: %s\n", server))
		if r.Title != "" {
			sb.WriteString(fmt.Sprintf("  Title: %s\n", shorten(r.Title, 100)))
		}
		sb.WriteString("\n")
	}

	return strings.TrimRight(sb.String(), "\n") + "\n"
}

func statusEmoji(ok bool) string {
	if ok {
		return "✅"
	}
	return "❌"
}

// reasonPhrase strips the numeric code from resp.Status ("200 OK" -> "OK").
func reasonPhrase(resp *http.Response) string {
	prefix := strconv.Itoa(resp.StatusCode) + " "
	if msg := strings.TrimPrefix(resp.Status, prefix); msg != resp.Status {
		return msg
	}
	if resp.Status != "" {
		return resp.Status
	}
	return http.StatusText(resp.StatusCode)
}

// shorten cuts s to at most maxWidth cells including the "..." tail. It
// never splits a multi-byte character.
func shorten(s string, maxWidth int) string {
	return truncate.StringWithTail(s, uint(maxWidth), "...")
}
