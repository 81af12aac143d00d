package extract

import (
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/kvasirlabs/askpilot/api/schemas"
)

// collectSources pulls citation links from the answer region's HTML. The pass
// is independent of the answer cascade: a run can have an answer with no
// sources or, rarely, sources for an answer that resisted extraction.
func collectSources(snapHTML, citationXPath string) ([]schemas.Source, error) {
	if snapHTML == "" || citationXPath == "" {
		return nil, nil
	}
	doc, err := htmlquery.Parse(strings.NewReader(snapHTML))
	if err != nil {
		return nil, err
	}
	container, err := htmlquery.Query(doc, citationXPath)
	if err != nil {
		return nil, err
	}
	if container == nil {
		return nil, nil
	}

	anchors, err := htmlquery.QueryAll(container, ".//a[@href]")
	if err != nil {
		return nil, err
	}

	var (
		sources []schemas.Source
		seen    = map[string]bool{}
	)
	for _, anchor := range anchors {
		url := strings.TrimSpace(htmlquery.SelectAttr(anchor, "href"))
		if !isCitationURL(url) || seen[url] {
			continue
		}
		seen[url] = true
		sources = append(sources, schemas.Source{
			Title: anchorTitle(anchor, url),
			URL:   url,
		})
	}
	return sources, nil
}

// isCitationURL keeps only absolute links. Fragment jumps and relative
// app-internal navigation are not citations.
func isCitationURL(url string) bool {
	return strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://")
}

// anchorTitle prefers the anchor's visible text, then its title attribute,
// falling back to the URL itself.
func anchorTitle(anchor *html.Node, url string) string {
	if text := strings.TrimSpace(htmlquery.InnerText(anchor)); text != "" {
		return text
	}
	if title := strings.TrimSpace(htmlquery.SelectAttr(anchor, "title")); title != "" {
		return title
	}
	return url
}
