package crawler_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/tender-scanner/internal/crawler"
	"github.com/user/tender-scanner/internal/proxy"
)

const fetcherTestAgent = "TenderBot/1.0"

func newTestFetcher(timeout, delay time.Duration) *crawler.CollyFetcher {
	return crawler.NewCollyFetcher(
		crawler.FetcherConfig{Timeout: timeout, Delay: delay},
		proxy.NewManager(nil, []string{fetcherTestAgent}),
		nil,
	)
}

func TestCollyFetcher_Success(t *testing.T) {
	agents := make(chan string, 2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		agents <- r.UserAgent()
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><body><a href='/bandi'>Bandi</a></body></html>"))
	}))
	defer srv.Close()

	session, err := newTestFetcher(time.Second, 0).NewSession(context.Background())
	require.NoError(t, err)

	page, err := session.Fetch(srv.URL)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, page.StatusCode)
	assert.Contains(t, string(page.Body), "/bandi")
	assert.Equal(t, fetcherTestAgent, <-agents)

	// Same URL again in the same session is allowed.
	_, err = session.Fetch(srv.URL)
	assert.NoError(t, err)
}

func TestCollyFetcher_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	session, err := newTestFetcher(time.Second, 0).NewSession(context.Background())
	require.NoError(t, err)

	_, err = session.Fetch(srv.URL)
	assert.ErrorIs(t, err, crawler.ErrHTTPStatus)
}

func TestCollyFetcher_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	session, err := newTestFetcher(50*time.Millisecond, 0).NewSession(context.Background())
	require.NoError(t, err)

	_, err = session.Fetch(srv.URL)
	assert.Error(t, err)
}

func TestCollyFetcher_DelayBetweenRequests(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html></html>"))
	}))
	defer srv.Close()

	const delay = 100 * time.Millisecond
	session, err := newTestFetcher(time.Second, delay).NewSession(context.Background())
	require.NoError(t, err)

	start := time.Now()
	_, err = session.Fetch(srv.URL + "/a")
	require.NoError(t, err)
	_, err = session.Fetch(srv.URL + "/b")
	require.NoError(t, err)

	assert.GreaterOrEqual(t, time.Since(start), delay)
}

func TestCollyFetcher_UnreachableHost(t *testing.T) {
	session, err := newTestFetcher(200*time.Millisecond, 0).NewSession(context.Background())
	require.NoError(t, err)

	_, err = session.Fetch("http://127.0.0.1:1/bandi")
	assert.Error(t, err)
}
