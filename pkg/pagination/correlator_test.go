package pagination

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const collectURL = "https://www.google-analytics.com/g/collect?v=2&tid=G-TEST"

func TestCorrelator_Window(t *testing.T) {
	tests := []struct {
		name     string
		offset   time.Duration
		wantPage int
		wantOK   bool
	}{
		{"same instant", 0, 2, true},
		{"inside window", 3 * time.Second, 2, true},
		{"window edge is inclusive", 5 * time.Second, 2, true},
		{"just past window", 5*time.Second + time.Millisecond, 0, false},
		{"before transition", -time.Millisecond, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCorrelator(DefaultAnalyticsMarker, DefaultBeaconWindow)
			c.OnTransition(2, epoch)

			page, ok := c.OnBeaconObserved(collectURL, epoch.Add(tt.offset))

			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantPage, page)
			if tt.wantOK {
				assert.Len(t, c.Beacons(2), 1)
				assert.Zero(t, c.Unmatched())
			} else {
				assert.Empty(t, c.Beacons(2))
				assert.Equal(t, 1, c.Unmatched())
			}
		})
	}
}

func TestCorrelator_IgnoresOtherRequests(t *testing.T) {
	c := NewCorrelator("", 0)
	c.OnTransition(2, epoch)

	page, ok := c.OnBeaconObserved("https://news.example/static/app.js", epoch)

	assert.False(t, ok)
	assert.Zero(t, page)
	assert.Zero(t, c.Unmatched(), "non-analytics requests are not counted")
	assert.Empty(t, c.BeaconCounts())
}

func TestCorrelator_MostRecentTransitionWins(t *testing.T) {
	c := NewCorrelator(DefaultAnalyticsMarker, DefaultBeaconWindow)
	c.OnTransition(2, epoch)
	c.OnTransition(3, epoch.Add(2*time.Second))

	page, ok := c.OnBeaconObserved(collectURL, epoch.Add(3*time.Second))

	require.True(t, ok)
	assert.Equal(t, 3, page)
	assert.Empty(t, c.Beacons(2), "a beacon is matched to one page only")
}

func TestCorrelator_TransitionAfterBeaconIsIgnored(t *testing.T) {
	c := NewCorrelator(DefaultAnalyticsMarker, DefaultBeaconWindow)
	c.OnTransition(2, epoch)
	c.OnTransition(3, epoch.Add(4*time.Second))

	page, ok := c.OnBeaconObserved(collectURL, epoch.Add(time.Second))

	require.True(t, ok)
	assert.Equal(t, 2, page)
}

func TestCorrelator_EqualTimestampsPickHigherPage(t *testing.T) {
	c := NewCorrelator(DefaultAnalyticsMarker, DefaultBeaconWindow)
	c.OnTransition(3, epoch)
	c.OnTransition(2, epoch)

	for i := 0; i < 20; i++ {
		page, ok := c.OnBeaconObserved(collectURL, epoch.Add(time.Second))
		require.True(t, ok)
		assert.Equal(t, 3, page)
	}
}

func TestCorrelator_LastTransitionPerPageWins(t *testing.T) {
	c := NewCorrelator(DefaultAnalyticsMarker, DefaultBeaconWindow)
	c.OnTransition(2, epoch)
	c.OnTransition(2, epoch.Add(10*time.Second))

	_, ok := c.OnBeaconObserved(collectURL, epoch.Add(time.Second))
	assert.False(t, ok, "the replaced transition no longer matches")

	page, ok := c.OnBeaconObserved(collectURL, epoch.Add(11*time.Second))
	assert.True(t, ok)
	assert.Equal(t, 2, page)

	transitions := c.Transitions()
	require.Len(t, transitions, 1)
	assert.Equal(t, epoch.Add(10*time.Second), transitions[0].ObservedAt)
}

func TestCorrelator_BeaconInvariant(t *testing.T) {
	c := NewCorrelator(DefaultAnalyticsMarker, DefaultBeaconWindow)
	for p := 2; p <= 6; p++ {
		c.OnTransition(p, epoch.Add(time.Duration(p)*3*time.Second))
	}
	for ms := 0; ms < 30000; ms += 250 {
		c.OnBeaconObserved(collectURL, epoch.Add(time.Duration(ms)*time.Millisecond))
	}

	byPage := map[int]time.Time{}
	for _, tr := range c.Transitions() {
		byPage[tr.Page] = tr.ObservedAt
	}
	for page := range c.BeaconCounts() {
		for _, b := range c.Beacons(page) {
			at, ok := byPage[b.Page]
			require.True(t, ok)
			assert.False(t, at.After(b.ObservedAt))
			assert.LessOrEqual(t, b.ObservedAt.Sub(at), DefaultBeaconWindow)
		}
	}
}

func TestCorrelator_ConcurrentBeacons(t *testing.T) {
	c := NewCorrelator(DefaultAnalyticsMarker, DefaultBeaconWindow)
	c.OnTransition(2, epoch)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.OnBeaconObserved(collectURL, epoch.Add(time.Second))
		}()
	}
	wg.Wait()

	assert.Equal(t, map[int]int{2: 50}, c.BeaconCounts())
}
