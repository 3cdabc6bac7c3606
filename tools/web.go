package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/seekerworks/searchagent/action"
)

// OpenURLPrefix marks a tool output the orchestrator should surface as
// an open_url event instead of feeding back into the loop.
const OpenURLPrefix = "OPEN_URL:"

const (
	searchEndpoint  = "https://html.duckduckgo.com/html/"
	defaultResults  = 5
	maxFetchBytes   = 1 << 20
	fetchPreviewLen = 500
	userAgent       = "Mozilla/5.0 (compatible; searchagent/1.0)"
)

// Indexer receives fetched page text for document indexing.
type Indexer interface {
	IndexText(ctx context.Context, source, text string) (int, error)
}

// WebSearchTool queries the DuckDuckGo HTML endpoint and returns the
// top result titles, URLs, and snippets.
func WebSearchTool(client *http.Client) action.Tool {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return action.NewFunc("web_search", "Search the web and return top results",
		"query=string, max_results=int (optional)",
		func(ctx context.Context, args map[string]string) (string, error) {
			query, ok := args["query"]
			if !ok || strings.TrimSpace(query) == "" {
				return "", fmt.Errorf("missing argument %q", "query")
			}
			limit := defaultResults
			if raw, ok := args["max_results"]; ok {
				n, err := intArg(args, "max_results")
				if err != nil {
					return "", fmt.Errorf("invalid max_results %q", raw)
				}
				if n > 0 {
					limit = n
				}
			}

			form := url.Values{"q": {query}}
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, searchEndpoint,
				strings.NewReader(form.Encode()))
			if err != nil {
				return "", err
			}
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			req.Header.Set("User-Agent", userAgent)

			resp, err := client.Do(req)
			if err != nil {
				return "", fmt.Errorf("search request: %w", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return "", fmt.Errorf("search returned status %d", resp.StatusCode)
			}

			results, err := parseSearchResults(io.LimitReader(resp.Body, maxFetchBytes), limit)
			if err != nil {
				return "", fmt.Errorf("parse results: %w", err)
			}
			if len(results) == 0 {
				return "No results found.", nil
			}

			var sb strings.Builder
			for i, r := range results {
				fmt.Fprintf(&sb, "%d. %s\n   %s\n", i+1, r.title, r.url)
				if r.snippet != "" {
					fmt.Fprintf(&sb, "   %s\n", r.snippet)
				}
			}
			return sb.String(), nil
		})
}

// FetchURLTool downloads a page, extracts its text, indexes the text
// as document memories, and returns a short preview.
func FetchURLTool(client *http.Client, indexer Indexer) action.Tool {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return action.NewFunc("fetch_url", "Fetch a web page, index its text, and return a preview",
		"url=string",
		func(ctx context.Context, args map[string]string) (string, error) {
			target, ok := args["url"]
			if !ok || strings.TrimSpace(target) == "" {
				return "", fmt.Errorf("missing argument %q", "url")
			}
			parsed, err := url.Parse(target)
			if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
				return "", fmt.Errorf("invalid url %q", target)
			}

			req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
			if err != nil {
				return "", err
			}
			req.Header.Set("User-Agent", userAgent)

			resp, err := client.Do(req)
			if err != nil {
				return "", fmt.Errorf("fetch: %w", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return "", fmt.Errorf("fetch returned status %d", resp.StatusCode)
			}

			text, err := extractText(io.LimitReader(resp.Body, maxFetchBytes))
			if err != nil {
				return "", fmt.Errorf("extract text: %w", err)
			}
			if text == "" {
				return "", fmt.Errorf("page has no extractable text")
			}

			indexed := 0
			if indexer != nil {
				if indexed, err = indexer.IndexText(ctx, target, text); err != nil {
					return "", fmt.Errorf("index page: %w", err)
				}
			}

			preview := text
			if len(preview) > fetchPreviewLen {
				preview = preview[:fetchPreviewLen] + "..."
			}
			return fmt.Sprintf("Fetched %s (%d chunks indexed).\n%s", target, indexed, preview), nil
		})
}

// OpenURLTool emits the open-url marker; the orchestrator turns it
// into an open_url event for the client to act on.
func OpenURLTool() action.Tool {
	return action.NewFunc("open_url", "Ask the client to open a URL in the browser",
		"url=string",
		func(_ context.Context, args map[string]string) (string, error) {
			target, ok := args["url"]
			if !ok || strings.TrimSpace(target) == "" {
				return "", fmt.Errorf("missing argument %q", "url")
			}
			return OpenURLPrefix + " " + strings.TrimSpace(target), nil
		})
}

type searchResult struct {
	title   string
	url     string
	snippet string
}

// parseSearchResults walks the DuckDuckGo HTML result list. Result
// links carry class "result__a", snippets class "result__snippet".
func parseSearchResults(r io.Reader, limit int) ([]searchResult, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, err
	}

	var results []searchResult
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if len(results) > limit {
			return
		}
		if n.Type == html.ElementNode && n.Data == "a" && hasClass(n, "result__a") {
			href := resolveResultURL(attr(n, "href"))
			if href != "" {
				results = append(results, searchResult{title: nodeText(n), url: href})
			}
		}
		if n.Type == html.ElementNode && hasClass(n, "result__snippet") && len(results) > 0 {
			if last := &results[len(results)-1]; last.snippet == "" {
				last.snippet = nodeText(n)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// resolveResultURL unwraps DuckDuckGo's /l/?uddg= redirect links.
func resolveResultURL(href string) string {
	if href == "" {
		return ""
	}
	parsed, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := parsed.Query().Get("uddg"); target != "" {
		return target
	}
	return href
}

// extractText collects visible text, skipping script and style.
func extractText(r io.Reader) (string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "head":
				return
			}
		}
		if n.Type == html.TextNode {
			if text := strings.TrimSpace(n.Data); text != "" {
				sb.WriteString(text)
				sb.WriteByte(' ')
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return strings.Join(strings.Fields(sb.String()), " "), nil
}

func hasClass(n *html.Node, class string) bool {
	for _, field := range strings.Fields(attr(n, "class")) {
		if field == class {
			return true
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func nodeText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(sb.String()), " ")
}
