package corpus

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"codeberg.org/readeck/go-readability/v2"
	"github.com/cockroachdb/errors"
	"golang.org/x/sync/singleflight"
)

const (
	defaultWikipediaURL = "https://en.wikipedia.org"
	userAgent           = "kgchat/1.0 (knowledge graph chatbot)"
)

// WikipediaFetcher reads article text from a MediaWiki site. HTML pages are
// reduced to their main content with readability.
type WikipediaFetcher struct {
	baseURL string
	client  *http.Client
	group   singleflight.Group
}

// NewWikipediaFetcher creates a fetcher for baseURL, defaulting to English
// Wikipedia.
func NewWikipediaFetcher(baseURL string, timeout time.Duration) *WikipediaFetcher {
	if baseURL == "" {
		baseURL = defaultWikipediaURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &WikipediaFetcher{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// articleURL maps a title to its /wiki/ URL, spaces becoming underscores.
func (w *WikipediaFetcher) articleURL(title string) string {
	return w.baseURL + "/wiki/" + url.PathEscape(strings.ReplaceAll(strings.TrimSpace(title), " ", "_"))
}

// Exists issues a HEAD request for the article.
func (w *WikipediaFetcher) Exists(ctx context.Context, title string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, w.articleURL(title), nil)
	if err != nil {
		return false, errors.Wrap(err, "creating request")
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := w.client.Do(req)
	if err != nil {
		return false, errors.Wrap(err, "checking article")
	}
	resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return true, nil
	default:
		return false, errors.Newf("unexpected status %d checking %q", resp.StatusCode, title)
	}
}

// Fetch downloads the article and returns its readable text. Concurrent
// fetches of one title share a single request.
func (w *WikipediaFetcher) Fetch(ctx context.Context, title string) (string, error) {
	u := w.articleURL(title)
	result, err, _ := w.group.Do(u, func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return "", errors.Wrap(err, "creating request")
		}
		req.Header.Set("User-Agent", userAgent)

		resp, err := w.client.Do(req)
		if err != nil {
			return "", errors.Wrap(err, "fetching article")
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return "", errors.Newf("fetching %q: status %d: %s", title, resp.StatusCode, body)
		}

		if !strings.Contains(resp.Header.Get("Content-Type"), "text/html") {
			data, err := io.ReadAll(resp.Body)
			if err != nil {
				return "", errors.Wrap(err, "reading article")
			}
			return string(data), nil
		}

		parsed, err := url.Parse(u)
		if err != nil {
			return "", errors.Wrap(err, "parsing url")
		}
		article, err := readability.FromReader(resp.Body, parsed)
		if err != nil {
			return "", errors.Wrap(err, "parsing html")
		}
		var sb strings.Builder
		if err := article.RenderText(&sb); err != nil {
			return "", errors.Wrap(err, "rendering article text")
		}
		return sb.String(), nil
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}
