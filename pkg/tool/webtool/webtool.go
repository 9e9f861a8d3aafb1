// Package webtool gives the model internet access: DuckDuckGo search and
// readable-text page fetches. Failures degrade to result text so the
// model can react instead of the turn aborting.
package webtool

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/utenadev/familiar-ai/pkg/tool"
)

const (
	searchEndpoint = "https://html.duckduckgo.com/html/"
	userAgent      = "Mozilla/5.0 (compatible; familiar-ai/0.1)"

	defaultMaxResults = 5
	defaultFetchLimit = 2000

	// maxFetchBytes caps how much of a page is read before parsing.
	maxFetchBytes = 10 << 20
)

// WebTool serves search and fetch.
type WebTool struct {
	client     *http.Client
	searchURL  string
	maxResults int
	fetchLimit int
}

func NewWebTool() *WebTool {
	return &WebTool{
		client:     &http.Client{Timeout: 15 * time.Second},
		searchURL:  searchEndpoint,
		maxResults: defaultMaxResults,
		fetchLimit: defaultFetchLimit,
	}
}

func (w *WebTool) Definitions() []tool.Definition {
	return []tool.Definition{
		{
			Name:        "search",
			Description: "Search the web for real-time information, news, or facts.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{
						"type":        "string",
						"description": "The search query",
					},
				},
				"required": []any{"query"},
			},
		},
		{
			Name:        "fetch",
			Description: "Download and read the text content of a specific webpage.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"url": map[string]any{
						"type":        "string",
						"description": "URL to fetch",
					},
					"full": map[string]any{
						"type":        "boolean",
						"description": "If true, fetch the entire page. If false, fetch only the beginning (default).",
						"default":     false,
					},
				},
				"required": []any{"url"},
			},
		},
	}
}

func (w *WebTool) Call(ctx context.Context, name string, args map[string]any) (*tool.Result, error) {
	switch name {
	case "search":
		query := strings.TrimSpace(tool.StringArg(args, "query", ""))
		if query == "" {
			return &tool.Result{Text: "Nothing to search for: query is empty."}, nil
		}
		text, err := w.search(ctx, query)
		if err != nil {
			return &tool.Result{Text: "Error during web search: " + err.Error()}, nil
		}
		return &tool.Result{Text: text}, nil

	case "fetch":
		target := strings.TrimSpace(tool.StringArg(args, "url", ""))
		if target == "" {
			return &tool.Result{Text: "Nothing to fetch: url is empty."}, nil
		}
		text, err := w.fetch(ctx, target, tool.BoolArg(args, "full", false))
		if err != nil {
			return &tool.Result{Text: "Error fetching URL: " + err.Error()}, nil
		}
		return &tool.Result{Text: text}, nil
	}
	return &tool.Result{Text: fmt.Sprintf("Tool %s not available", name)}, nil
}

func (w *WebTool) search(ctx context.Context, query string) (string, error) {
	form := url.Values{}
	form.Set("q", query)
	form.Set("kl", "us-en")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.searchURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", userAgent)

	resp, err := w.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("search returned HTTP %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return "", fmt.Errorf("failed to parse results page: %w", err)
	}

	var lines []string
	count := 0
	doc.Find(".result").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		link := sel.Find(".result__a").First()
		href, ok := link.Attr("href")
		if !ok {
			return true
		}
		target := resolveResultURL(href)
		title := strings.TrimSpace(link.Text())
		if target == "" || title == "" {
			return true
		}
		count++
		lines = append(lines,
			fmt.Sprintf("%d. %s", count, title),
			"   URL: "+target,
			"   Summary: "+strings.TrimSpace(sel.Find(".result__snippet").First().Text()),
			"")
		return count < w.maxResults
	})
	if count == 0 {
		return "No search results found.", nil
	}
	return strings.Join(lines, "\n"), nil
}

// resolveResultURL unwraps DuckDuckGo's redirect links, which carry the
// real destination in the uddg query parameter.
func resolveResultURL(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	if strings.Contains(u.Host, "duckduckgo.com") || href == "" || strings.HasPrefix(href, "/") {
		return ""
	}
	return href
}

func (w *WebTool) fetch(ctx context.Context, target string, full bool) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := w.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Sprintf("Error: Received HTTP %d from %s", resp.StatusCode, target), nil
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return "", fmt.Errorf("failed to parse page: %w", err)
	}
	doc.Find("script, style, nav, footer, header").Remove()

	var lines []string
	for _, line := range strings.Split(doc.Find("body").Text(), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	text := strings.Join(lines, "\n")
	if text == "" {
		return "(No readable text found)", nil
	}

	if runes := []rune(text); !full && len(runes) > w.fetchLimit {
		return string(runes[:w.fetchLimit]) + fmt.Sprintf(
			"\n\n--- [Truncated: page is longer than %d characters. Use full=true if needed] ---", w.fetchLimit), nil
	}
	return text, nil
}
