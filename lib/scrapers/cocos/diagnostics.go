package cocos

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"cocos-collector/lib/timezone"

	"github.com/PuerkitoBio/goquery"
)

// dumpDiagnostics captures what the browser was looking at when
// something went wrong: a screenshot, the raw html, and a summary of
// the interactive elements on the page. Best effort all the way down,
// diagnostics never turn a scrape failure into a different failure.
func (c *Client) dumpDiagnostics(ctx context.Context, reason string) {
	if c.opts.DiagnosticsDir == "" {
		return
	}
	err := os.MkdirAll(c.opts.DiagnosticsDir, 0o755)
	if err != nil {
		slog.WarnContext(ctx, "could not create diagnostics dir", "err", err)
		return
	}

	stamp := timezone.Now().Format("20060102_150405")
	prefix := filepath.Join(c.opts.DiagnosticsDir, fmt.Sprintf("diag_%s_%s", reason, stamp))

	err = c.driver.Screenshot(prefix + ".png")
	if err != nil {
		slog.WarnContext(ctx, "diagnostic screenshot failed", "err", err)
	}

	html, err := c.driver.HTML()
	if err != nil {
		slog.WarnContext(ctx, "diagnostic html read failed", "err", err)
		return
	}
	err = os.WriteFile(prefix+".html", []byte(html), 0o644)
	if err != nil {
		slog.WarnContext(ctx, "diagnostic html write failed", "err", err)
	}

	inventory, err := inventoryDOM(html)
	if err != nil {
		slog.WarnContext(ctx, "diagnostic dom inventory failed", "err", err)
		return
	}
	err = os.WriteFile(prefix+".txt", []byte(inventory), 0o644)
	if err != nil {
		slog.WarnContext(ctx, "diagnostic inventory write failed", "err", err)
	}

	slog.InfoContext(ctx, "diagnostics written", "prefix", prefix, "reason", reason)
}

// InspectDOM summarizes the interactive elements on the current page.
// Useful from a repl or one-off command when selectors stop matching
// after an app redesign.
func (c *Client) InspectDOM(ctx context.Context) (string, error) {
	_, span := tracer.Start(ctx, "InspectDOM")
	defer span.End()

	html, err := c.driver.HTML()
	if err != nil {
		return "", err
	}
	return inventoryDOM(html)
}

// inventoryDOM summarizes the elements the login and extraction logic
// cares about, with the attributes used to select them. Reading this is
// usually enough to adjust a selector after the app ships a redesign.
func inventoryDOM(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}

	var b strings.Builder
	if title := strings.TrimSpace(doc.Find("title").Text()); title != "" {
		fmt.Fprintf(&b, "title: %s\n", title)
	}

	describe := func(kind string, sel *goquery.Selection) {
		fmt.Fprintf(&b, "\n%s (%d):\n", kind, sel.Length())
		sel.Each(func(i int, el *goquery.Selection) {
			var attrs []string
			for _, name := range []string{"type", "name", "id", "inputmode", "autocomplete", "placeholder", "src"} {
				if v, ok := el.Attr(name); ok && v != "" {
					attrs = append(attrs, fmt.Sprintf("%s=%q", name, v))
				}
			}
			label := strings.Join(strings.Fields(el.Text()), " ")
			if len(label) > 40 {
				label = label[:40]
			}
			fmt.Fprintf(&b, "  [%d] %s %s\n", i, strings.Join(attrs, " "), label)
		})
	}

	describe("inputs", doc.Find("input"))
	describe("buttons", doc.Find("button"))
	describe("iframes", doc.Find("iframe"))
	return b.String(), nil
}
