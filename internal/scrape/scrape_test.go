package scrape

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mediaresolver/internal/resolver"
)

func TestClassifierOutcomes(t *testing.T) {
	t.Parallel()

	c := NewHeuristicClassifier(nil, nil)
	cases := []struct {
		err  error
		want resolver.Outcome
	}{
		{nil, resolver.OutcomeSuccess},
		{errors.New("redirected to login page"), resolver.OutcomeAuthFailure},
		{errors.New("checkpoint_required"), resolver.OutcomeAuthFailure},
		{errors.New("status 429: too many requests"), resolver.OutcomeRateLimited},
		{errors.New("connection reset by peer"), resolver.OutcomeGenericError},
		{fmt.Errorf("scrape: %w", context.DeadlineExceeded), resolver.OutcomeGenericError},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, c.Classify(tc.err), "error %v", tc.err)
	}
}

func TestClassifierExtraPhrases(t *testing.T) {
	t.Parallel()

	c := NewHeuristicClassifier([]string{"account flagged"}, []string{"slow down"})
	require.Equal(t, resolver.OutcomeAuthFailure, c.Classify(errors.New("account flagged for review")))
	require.Equal(t, resolver.OutcomeRateLimited, c.Classify(errors.New("please slow down")))
}

func TestRegistryRoundTrip(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	_, ok := r.Get(resolver.PlatformTikTok)
	require.False(t, ok)

	s := NewOpenGraph(OpenGraphConfig{}, zap.NewNop())
	r.Register(resolver.PlatformTikTok, s)
	got, ok := r.Get(resolver.PlatformTikTok)
	require.True(t, ok)
	require.Same(t, resolver.Scraper(s), got)
}

func TestParseOpenGraphExtractsFormats(t *testing.T) {
	t.Parallel()

	html := `<html><head>
		<title>fallback</title>
		<meta property="og:title" content="A great clip">
		<meta property="og:image" content="https://cdn.example.com/thumb.jpg">
		<meta property="og:video:secure_url" content="https://cdn.example.com/clip.mp4">
		<meta property="og:video:type" content="video/mp4">
		<meta property="og:site_name" content="TikTok">
	</head><body></body></html>`

	desc, err := parseOpenGraph([]byte(html))
	require.NoError(t, err)
	require.Equal(t, "A great clip", desc.Title)
	require.Equal(t, "https://cdn.example.com/thumb.jpg", desc.Thumbnail)
	require.Equal(t, "TikTok", desc.Author)
	require.Len(t, desc.Formats, 2)
	require.Equal(t, "https://cdn.example.com/clip.mp4", desc.Formats[0].URL)
	require.Equal(t, "video/mp4", desc.Formats[0].Type)
}

func TestParseOpenGraphLoginWall(t *testing.T) {
	t.Parallel()

	html := `<html><head><title>Log in to continue</title></head><body></body></html>`
	_, err := parseOpenGraph([]byte(html))
	require.Error(t, err)
	require.Equal(t, resolver.OutcomeAuthFailure, NewHeuristicClassifier(nil, nil).Classify(err))
}

func TestParseOpenGraphNoMedia(t *testing.T) {
	t.Parallel()

	html := `<html><head><meta property="og:title" content="Just text"></head><body></body></html>`
	_, err := parseOpenGraph([]byte(html))
	require.Error(t, err)
}

func TestOpenGraphScrapeSendsCookie(t *testing.T) {
	t.Parallel()

	var gotCookie string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCookie = r.Header.Get("Cookie")
		fmt.Fprint(w, `<html><head>
			<meta property="og:title" content="clip">
			<meta property="og:image" content="https://cdn.example.com/t.jpg">
		</head></html>`)
	}))
	defer srv.Close()

	s := NewOpenGraph(OpenGraphConfig{AcceptsCredentials: true}, zap.NewNop())
	cred := &resolver.Credential{ID: "c1", Secret: "sessionid=abc"}
	desc, err := s.Scrape(context.Background(), srv.URL, cred)
	require.NoError(t, err)
	require.True(t, desc.UsedCookie)
	require.Equal(t, "sessionid=abc", gotCookie)

	desc, err = s.Scrape(context.Background(), srv.URL, nil)
	require.NoError(t, err)
	require.False(t, desc.UsedCookie)
	require.Empty(t, gotCookie)
}

func TestOpenGraphScrapeErrorCarriesStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "too many requests", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	s := NewOpenGraph(OpenGraphConfig{}, zap.NewNop())
	_, err := s.Scrape(context.Background(), srv.URL, nil)
	require.Error(t, err)
	require.Equal(t, resolver.OutcomeRateLimited, NewHeuristicClassifier(nil, nil).Classify(err))
}
