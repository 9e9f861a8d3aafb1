package webtool

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const searchResultsPage = `<html><body>
<div class="result results_links web-result">
  <h2 class="result__title">
    <a rel="nofollow" class="result__a" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fexample.com%2Fcats&amp;rut=abc">Cats - Example</a>
  </h2>
  <a class="result__snippet" href="#">All about cats.</a>
</div>
<div class="result results_links web-result">
  <h2 class="result__title">
    <a rel="nofollow" class="result__a" href="https://other.example/dogs">Dogs</a>
  </h2>
  <a class="result__snippet" href="#">Dog facts.</a>
</div>
</body></html>`

func newTestWebTool(srvURL string) *WebTool {
	w := NewWebTool()
	w.searchURL = srvURL
	return w
}

func TestSearchFormatsNumberedResults(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		gotQuery = r.FormValue("q")
		io.WriteString(w, searchResultsPage)
	}))
	defer srv.Close()

	res, err := newTestWebTool(srv.URL).Call(context.Background(), "search", map[string]any{"query": "cats"})
	if err != nil {
		t.Fatal(err)
	}
	if gotQuery != "cats" {
		t.Errorf("query sent = %q", gotQuery)
	}
	for _, want := range []string{
		"1. Cats - Example",
		"   URL: https://example.com/cats",
		"   Summary: All about cats.",
		"2. Dogs",
		"   URL: https://other.example/dogs",
	} {
		if !strings.Contains(res.Text, want) {
			t.Errorf("missing %q in:\n%s", want, res.Text)
		}
	}
	// Redirect wrappers must not leak into the output.
	if strings.Contains(res.Text, "duckduckgo.com/l/") {
		t.Errorf("unresolved redirect link:\n%s", res.Text)
	}
}

func TestSearchCapsResultCount(t *testing.T) {
	var page strings.Builder
	page.WriteString("<html><body>")
	for i := 0; i < 10; i++ {
		fmt.Fprintf(&page, `<div class="result"><a class="result__a" href="https://example.com/%d">Result %d</a></div>`, i, i)
	}
	page.WriteString("</body></html>")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, page.String())
	}))
	defer srv.Close()

	w := newTestWebTool(srv.URL)
	w.maxResults = 3
	res, err := w.Call(context.Background(), "search", map[string]any{"query": "x"})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(res.Text, "4. ") {
		t.Errorf("more than 3 results:\n%s", res.Text)
	}
	if !strings.Contains(res.Text, "3. Result 2") {
		t.Errorf("third result missing:\n%s", res.Text)
	}
}

func TestSearchNoResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><body><div class='no-results'>nothing</div></body></html>")
	}))
	defer srv.Close()

	res, err := newTestWebTool(srv.URL).Call(context.Background(), "search", map[string]any{"query": "xyzzy"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Text != "No search results found." {
		t.Errorf("res = %q", res.Text)
	}
}

func TestSearchServerErrorDegradesToText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	res, err := newTestWebTool(srv.URL).Call(context.Background(), "search", map[string]any{"query": "x"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(res.Text, "Error during web search") || !strings.Contains(res.Text, "503") {
		t.Errorf("res = %q", res.Text)
	}
}

func TestFetchStripsNoiseAndTruncates(t *testing.T) {
	body := `<html><head><script>var x = "hidden";</script><style>.a{}</style></head>
<body><nav>menu menu</nav><header>site header</header>
<p>First paragraph.</p>
<p>` + strings.Repeat("words ", 100) + `</p>
<footer>footer text</footer></body></html>`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, body)
	}))
	defer srv.Close()

	w := NewWebTool()
	w.fetchLimit = 80
	res, err := w.Call(context.Background(), "fetch", map[string]any{"url": srv.URL})
	if err != nil {
		t.Fatal(err)
	}
	for _, noise := range []string{"hidden", "menu menu", "site header", "footer text"} {
		if strings.Contains(res.Text, noise) {
			t.Errorf("noise %q survived:\n%s", noise, res.Text)
		}
	}
	if !strings.Contains(res.Text, "First paragraph.") {
		t.Errorf("content missing:\n%s", res.Text)
	}
	if !strings.Contains(res.Text, "--- [Truncated: page is longer than 80 characters") {
		t.Errorf("no truncation marker:\n%s", res.Text)
	}

	// full=true returns everything.
	res, err = w.Call(context.Background(), "fetch", map[string]any{"url": srv.URL, "full": true})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(res.Text, "Truncated") {
		t.Errorf("full fetch still truncated:\n%s", res.Text)
	}
}

func TestFetchNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	res, err := NewWebTool().Call(context.Background(), "fetch", map[string]any{"url": srv.URL})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(res.Text, "Error: Received HTTP 500 from "+srv.URL) {
		t.Errorf("res = %q", res.Text)
	}
}

func TestFetchEmptyPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><body><script>only(noise)</script></body></html>")
	}))
	defer srv.Close()

	res, err := NewWebTool().Call(context.Background(), "fetch", map[string]any{"url": srv.URL})
	if err != nil {
		t.Fatal(err)
	}
	if res.Text != "(No readable text found)" {
		t.Errorf("res = %q", res.Text)
	}
}

func TestResolveResultURL(t *testing.T) {
	tests := []struct {
		href string
		want string
	}{
		{"//duckduckgo.com/l/?uddg=https%3A%2F%2Fexample.com%2Fa%20b&rut=x", "https://example.com/a b"},
		{"https://plain.example/page", "https://plain.example/page"},
		{"//duckduckgo.com/y.js", ""},
		{"/internal", ""},
	}
	for _, tt := range tests {
		if got := resolveResultURL(tt.href); got != tt.want {
			t.Errorf("resolveResultURL(%q) = %q, want %q", tt.href, got, tt.want)
		}
	}
}

func TestWebToolUnknownName(t *testing.T) {
	res, err := NewWebTool().Call(context.Background(), "browse", nil)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(res.Text, "not available") {
		t.Errorf("res = %q", res.Text)
	}
}
