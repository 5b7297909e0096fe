package scanner

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/rigger/core/internal/config"
	"github.com/rigger/core/internal/logging"
	"github.com/rigger/core/internal/types"
)

// CrawlError records a per-page failure that never aborts the crawl (spec
// §4.3 "CrawlFileError").
type CrawlError struct {
	URL string
	Err error
}

func (e CrawlError) Error() string { return e.URL + ": " + e.Err.Error() }

// CrawlResult is the outcome of one web crawl.
type CrawlResult struct {
	Pages  []types.CrawledPage
	Errors []CrawlError
}

// maxRetries bounds per-page retry attempts on transient failure (spec
// §4.3 "Retries are bounded").
const maxRetries = 2

// Crawl fetches seedURL and follows same-host links (unless
// limits.CrawlSameHostOnly is false) up to limits.CrawlMaxDepth and
// limits.CrawlMaxPages, stripping each page's HTML to text with goquery
// (spec §4.3).
func Crawl(ctx context.Context, seedURL string, limits config.ScanLimits) (CrawlResult, error) {
	seed, err := url.Parse(seedURL)
	if err != nil {
		return CrawlResult{}, types.Wrap(types.CodeInvalidArgument, "invalid seed URL", err)
	}

	var result CrawlResult
	visited := map[string]bool{}
	queue := []struct {
		url   string
		depth int
	}{{url: seedURL, depth: 0}}

	client := &http.Client{Timeout: 15 * time.Second}

	for len(queue) > 0 && len(result.Pages) < limits.CrawlMaxPages {
		item := queue[0]
		queue = queue[1:]
		if visited[item.url] {
			continue
		}
		visited[item.url] = true

		page, links, err := fetchPage(ctx, client, item.url, item.depth)
		if err != nil {
			logging.Scanner.Warn("crawl failed for %s: %v", item.url, err)
			result.Errors = append(result.Errors, CrawlError{URL: item.url, Err: err})
			continue
		}
		result.Pages = append(result.Pages, page)

		if item.depth >= limits.CrawlMaxDepth {
			continue
		}
		for _, link := range links {
			if limits.CrawlSameHostOnly && !sameHost(seed, link) {
				continue
			}
			if !visited[link] {
				queue = append(queue, struct {
					url   string
					depth int
				}{url: link, depth: item.depth + 1})
			}
		}
	}
	return result, nil
}

func fetchPage(ctx context.Context, client *http.Client, pageURL string, depth int) (types.CrawledPage, []string, error) {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
		if err != nil {
			return types.CrawledPage{}, nil, err
		}
		resp, err := client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			page := types.CrawledPage{URL: pageURL, Depth: depth, StatusCode: resp.StatusCode, ContentType: resp.Header.Get("Content-Type")}
			return page, nil, types.NewError(types.CodeInternal, "non-2xx response").WithData(map[string]any{"status": resp.StatusCode})
		}

		doc, err := goquery.NewDocumentFromReader(resp.Body)
		if err != nil {
			lastErr = err
			continue
		}

		title := strings.TrimSpace(doc.Find("title").First().Text())
		text := strings.TrimSpace(doc.Find("body").Text())
		var links []string
		doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
			href, ok := sel.Attr("href")
			if !ok {
				return
			}
			if abs := resolveLink(pageURL, href); abs != "" {
				links = append(links, abs)
			}
		})

		return types.CrawledPage{
			URL:         pageURL,
			Title:       title,
			Content:     text,
			Links:       links,
			Depth:       depth,
			StatusCode:  resp.StatusCode,
			ContentType: resp.Header.Get("Content-Type"),
		}, links, nil
	}
	return types.CrawledPage{}, nil, lastErr
}

func resolveLink(base, href string) string {
	baseURL, err := url.Parse(base)
	if err != nil {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	resolved := baseURL.ResolveReference(ref)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return ""
	}
	resolved.Fragment = ""
	return resolved.String()
}

func sameHost(seed *url.URL, link string) bool {
	u, err := url.Parse(link)
	if err != nil {
		return false
	}
	return u.Host == seed.Host
}
