package health

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestChecker points a checker at srv's port; servers use 127.0.0.1.
func newTestChecker(t *testing.T, srv *httptest.Server, host string) *Checker {
	t.Helper()
	_, portStr, err := net.SplitHostPort(srv.Listener.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return NewChecker(Options{Host: host, Port: port, Timeout: 2 * time.Second}, nil)
}

func TestProbe_OK(t *testing.T) {
	hosts := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hosts <- r.Host
		w.Header().Set("Server", "nginx/1.25")
		w.Write([]byte("<html><head><title> Oxu.az </title></head><body></body></html>"))
	}))
	defer srv.Close()

	c := newTestChecker(t, srv, "oxu.az")
	res := c.Probe(context.Background(), Server{Name: "web1", IP: "127.0.0.1"})

	require.NoError(t, res.Err)
	assert.True(t, res.OK)
	assert.Equal(t, 200, res.StatusCode)
	assert.Equal(t, "OK", res.StatusMessage)
	assert.Equal(t, "nginx/1.25", res.ServerHeader)
	assert.Equal(t, "Oxu.az", res.Title)
	assert.Equal(t, "oxu.az", <-hosts)
}

func TestProbe_StatusClassification(t *testing.T) {
	tests := []struct {
		code   int
		wantOK bool
	}{
		{200, true},
		{204, true},
		{301, true},
		{399, true},
		{400, false},
		{404, false},
		{502, false},
	}

	for _, tt := range tests {
		t.Run(strconv.Itoa(tt.code), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tt.code >= 300 && tt.code < 400 {
					w.Header().Set("Location", "https://oxu.az/")
				}
				w.WriteHeader(tt.code)
			}))
			defer srv.Close()

			res := newTestChecker(t, srv, "oxu.az").Probe(context.Background(), Server{Name: "s", IP: "127.0.0.1"})
			assert.Equal(t, tt.code, res.StatusCode, "redirects must not be followed")
			assert.Equal(t, tt.wantOK, res.OK)
		})
	}
}

func TestProbe_MissingServerHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	res := newTestChecker(t, srv, "").Probe(context.Background(), Server{Name: "s", IP: "127.0.0.1"})
	assert.Equal(t, "Unknown", res.ServerHeader)
	assert.Equal(t, "Service Unavailable", res.StatusMessage)
	assert.False(t, res.OK)
}

func TestProbe_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	c := newTestChecker(t, srv, "oxu.az")
	srv.Close()

	res := c.Probe(context.Background(), Server{Name: "dead", IP: "127.0.0.1"})

	assert.False(t, res.OK)
	assert.Error(t, res.Err)
	assert.Zero(t, res.StatusCode)
	assert.NotEmpty(t, res.StatusMessage)
}

func TestCheckAll_OrderAndIsolation(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestChecker(t, srv, "oxu.az")
	servers := []Server{
		{Name: "a", IP: "127.0.0.1"},
		{Name: "bad", IP: "bad host"},
		{Name: "c", IP: "127.0.0.1"},
	}

	results := c.CheckAll(context.Background(), servers)

	require.Len(t, results, 3)
	for i, r := range results {
		assert.Equal(t, servers[i], r.Server)
	}
	assert.True(t, results[0].OK)
	assert.False(t, results[1].OK)
	assert.True(t, results[2].OK)
	assert.Equal(t, int32(2), hits.Load())
	down := Down(results)
	require.Len(t, down, 1)
	assert.Equal(t, servers[1], down[0].Server)
}

func TestCheckAll_Empty(t *testing.T) {
	c := NewChecker(Options{}, nil)
	assert.Empty(t, c.CheckAll(context.Background(), nil))
	assert.Empty(t, Down(nil))
}

func TestFormatReport(t *testing.T) {
	results := []Result{
		{Server: Server{Name: "web1"}, StatusCode: 200, StatusMessage: "OK", ServerHeader: "nginx", OK: true},
		{Server: Server{Name: "web2"}, StatusMessage: "connection refused"},
	}

	report := FormatReport(results)

	assert.True(t, strings.HasPrefix(report, "📊 Server Status:"))
	assert.Contains(t, report, "✅ web1:\n  Status code: 200\n  Status: OK\n  Server: nginx\n")
	assert.Contains(t, report, "❌ web2:\n  Status code: -\n  Status: connection refused\n  Server: -\n")
}

func TestFormatReport_MultibyteTitleStaysValidUTF8(t *testing.T) {
	title := "A" + strings.Repeat("ə", 150)
	results := []Result{
		{Server: Server{Name: "web1"}, StatusCode: 503, StatusMessage: strings.Repeat("ş", 250), Title: title},
	}

	report := FormatReport(results)

	require.True(t, utf8.ValidString(report), "report: %q", report)
	assert.Contains(t, report, "  Title: Aəəə")
	assert.Contains(t, report, "...\n")
	for _, line := range strings.Split(report, "\n") {
		if strings.HasPrefix(line, "  Title: ") {
			assert.LessOrEqual(t, utf8.RuneCountInString(strings.TrimPrefix(line, "  Title: ")), 100)
		}
	}
}

func TestShorten(t *testing.T) {
	assert.Equal(t, "short", shorten("short", 10))
	assert.Equal(t, "abcdefg...", shorten("abcdefghijklmnop", 10))
	assert.Equal(t, "əəəəəəə...", shorten(strings.Repeat("ə", 20), 10))
}

func TestNewChecker_Defaults(t *testing.T) {
	c := NewChecker(Options{}, nil)
	assert.Equal(t, 80, c.opts.Port)
	assert.Equal(t, 10*time.Second, c.opts.Timeout)
	assert.Equal(t, 10*time.Second, c.client.Timeout)
}
