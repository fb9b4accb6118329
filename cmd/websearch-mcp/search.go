// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/errgroup"

	"github.com/Nitish-Garikoti/databahn/pkg/httpclient"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

// webSearch scrapes DuckDuckGo's HTML endpoint and crawls result pages.
type webSearch struct {
	searchURL string
	client    *httpclient.Client
}

func newWebSearch(searchURL string, timeout time.Duration) *webSearch {
	return &webSearch{
		searchURL: searchURL,
		client: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{Timeout: timeout}),
			httpclient.WithMaxRetries(2),
			httpclient.WithBaseDelay(time.Second),
		),
	}
}

// Search returns result links in ranking order.
func (w *webSearch) Search(ctx context.Context, query string) ([]string, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}

	form := url.Values{"q": {query}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.searchURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", userAgent)

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search returned HTTP %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse search results: %w", err)
	}

	var links []string
	doc.Find("div.result a.result__a").Each(func(_ int, a *goquery.Selection) {
		if href, ok := a.Attr("href"); ok && href != "" {
			links = append(links, resolveLink(href))
		}
	})
	return links, nil
}

// resolveLink unwraps DuckDuckGo redirect links (/l/?uddg=<target>).
func resolveLink(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := u.Query().Get("uddg"); target != "" && strings.HasPrefix(u.Path, "/l/") {
		return target
	}
	if u.Scheme == "" && strings.HasPrefix(href, "//") {
		return "https:" + href
	}
	return href
}

// Crawl fetches link and renders its main content as Markdown. Failures are
// reported in the returned text.
func (w *webSearch) Crawl(ctx context.Context, link string) string {
	slog.Debug("Crawling", "url", link)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return fmt.Sprintf("Error: Could not retrieve content from %s.", link)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := w.client.Do(req)
	if err != nil {
		slog.Warn("Failed to crawl", "url", link, "error", err)
		return fmt.Sprintf("Error: Could not retrieve content from %s.", link)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		slog.Warn("Failed to crawl", "url", link, "status", resp.StatusCode)
		return fmt.Sprintf("Error: Could not retrieve content from %s.", link)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return fmt.Sprintf("Error: An unexpected error occurred while processing %s.", link)
	}

	content := mainContent(doc)
	if content == nil {
		return fmt.Sprintf("--- No main content found at %s ---", link)
	}
	html, err := goquery.OuterHtml(content)
	if err != nil {
		return fmt.Sprintf("Error: An unexpected error occurred while processing %s.", link)
	}

	var opts []converter.ConvertOptionFunc
	if u, err := url.Parse(link); err == nil && u.Host != "" {
		opts = append(opts, converter.WithDomain(u.Scheme+"://"+u.Host))
	}
	markdown, err := htmltomarkdown.ConvertString(html, opts...)
	if err != nil {
		return fmt.Sprintf("Error: An unexpected error occurred while processing %s.", link)
	}
	return fmt.Sprintf("--- Content from %s ---\n\n%s", link, markdown)
}

// mainContent picks the first article, else main, else body.
func mainContent(doc *goquery.Document) *goquery.Selection {
	doc.Find("script, style, noscript").Remove()
	for _, sel := range []string{"article", "main", "body"} {
		if s := doc.Find(sel).First(); s.Length() > 0 {
			return s
		}
	}
	return nil
}

// SearchAndCrawl crawls the top k results concurrently and joins their
// content in ranking order.
func (w *webSearch) SearchAndCrawl(ctx context.Context, query string, k int) (string, error) {
	links, err := w.Search(ctx, query)
	if err != nil {
		return "", err
	}
	if len(links) == 0 {
		return "No search results found.", nil
	}
	if k > 0 && k < len(links) {
		links = links[:k]
	}

	pages := make([]string, len(links))
	var g errgroup.Group
	for i, link := range links {
		g.Go(func() error {
			pages[i] = w.Crawl(ctx, link)
			return nil
		})
	}
	_ = g.Wait()
	return strings.Join(pages, "\n\n"), nil
}
