package digest

import (
	"fmt"
	"html"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/joelkehle/brief/internal/config"
	"github.com/joelkehle/brief/internal/content"
)

const defaultTop3Header = "Top 3 — If You Only Have 2 Minutes"

// renderHTML builds the digest body as markdown, converts it with goldmark,
// and wraps it in a standalone HTML document.
func renderHTML(runDate string, top3 []TopItem, sections []Section, profile config.Profile) (string, error) {
	markdown := buildMarkdown(runDate, top3, sections, profile)

	var body strings.Builder
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	if err := md.Convert([]byte(markdown), &body); err != nil {
		return "", fmt.Errorf("markdown convert: %w", err)
	}

	title := fmt.Sprintf("%s — %s", profileName(profile), displayDate(runDate))
	return "<!DOCTYPE html>\n<html lang=\"en\">\n<head>\n<meta charset=\"UTF-8\">\n" +
		"<title>" + html.EscapeString(title) + "</title>\n" +
		"<style>" + digestCSS + "</style>\n</head>\n<body>\n<main>\n" +
		body.String() +
		"</main>\n</body>\n</html>\n", nil
}

// buildMarkdown is deterministic given its inputs: sections render in
// selection order, lanes in canonical order, items in selected order.
func buildMarkdown(runDate string, top3 []TopItem, sections []Section, profile config.Profile) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s — %s\n\n", profileName(profile), displayDate(runDate))

	if len(sections) == 0 {
		b.WriteString("No content made the cut today. Either the sources were quiet or the pipeline had nothing new to rank.\n")
		return b.String()
	}

	if len(top3) > 0 {
		fmt.Fprintf(&b, "## %s\n\n", defaultTop3Header)
		for i, item := range top3 {
			fmt.Fprintf(&b, "%d. **%s** — %s\n", i+1, item.Headline, item.Summary)
		}
		b.WriteString("\n")
	}

	for _, section := range sections {
		fmt.Fprintf(&b, "## %s\n\n", section.Headline)
		for _, lane := range content.Lanes {
			items := section.Cluster.LaneItems(lane)
			if len(items) == 0 {
				continue
			}
			fmt.Fprintf(&b, "### %s\n\n", laneName(profile, lane))
			if summary, ok := section.Summaries[lane]; ok {
				b.WriteString(summary + "\n\n")
			}
			for _, item := range items {
				fmt.Fprintf(&b, "- [%s](%s) — *%s*", item.Title, item.URL, item.SourceName)
				if item.Annotation.SummaryShort != "" {
					fmt.Fprintf(&b, "\n  %s", item.Annotation.SummaryShort)
				}
				b.WriteString("\n")
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}

func profileName(profile config.Profile) string {
	if profile.Name != "" {
		return profile.Name
	}
	return "Brief"
}

const digestCSS = `
body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", sans-serif;
       background: #0a0a0a; color: #e0e0e0; margin: 0; padding: 2rem; }
main { max-width: 760px; margin: 0 auto; }
h1 { color: #fff; border-bottom: 2px solid #333; padding-bottom: 0.5rem; }
h2 { color: #4ecdc4; margin-top: 2.5rem; }
h3 { color: #aaa; text-transform: uppercase; font-size: 0.85rem; letter-spacing: 0.08em; }
a { color: #6db3f2; text-decoration: none; }
a:hover { text-decoration: underline; }
ol li { margin-bottom: 0.6rem; }
ul li { margin-bottom: 0.8rem; }
em { color: #888; }
`
