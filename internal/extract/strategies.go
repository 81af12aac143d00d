package extract

import (
	"fmt"
	"strings"

	"github.com/antchfx/htmlquery"

	"github.com/kvasirlabs/askpilot/api/schemas"
	"github.com/kvasirlabs/askpilot/internal/config"
)

// markerStrategy slices the text between a known start and end marker. It is
// the most precise strategy when the page renders its usual landmarks, and the
// first to decline when it does not.
type markerStrategy struct {
	start, end     string
	stripFragments []string
	minLength      int
}

func newMarkerStrategy(cfg config.ExtractionConfig) *markerStrategy {
	return &markerStrategy{
		start:          cfg.StartMarker,
		end:            cfg.EndMarker,
		stripFragments: cfg.StripFragments,
		minLength:      cfg.MinAnswerLength,
	}
}

func (s *markerStrategy) Name() string { return "marker" }

func (s *markerStrategy) Extract(snap *schemas.Snapshot) (string, error) {
	if s.start == "" || s.end == "" {
		return "", ErrStrategyDeclined
	}
	startIdx := strings.Index(snap.Text, s.start)
	if startIdx < 0 {
		return "", ErrStrategyDeclined
	}
	rest := snap.Text[startIdx+len(s.start):]
	endIdx := strings.Index(rest, s.end)
	if endIdx < 0 {
		return "", ErrStrategyDeclined
	}

	answer := rest[:endIdx]
	for _, fragment := range s.stripFragments {
		answer = strings.ReplaceAll(answer, fragment, "")
	}
	answer = strings.TrimSpace(answer)
	if len(answer) < s.minLength {
		return "", ErrStrategyDeclined
	}
	return answer, nil
}

// filteredStrategy takes the whole snapshot text and drops every line that
// matches a denylist of known chrome fragments. Coarser than the marker
// strategy but survives landmark changes.
type filteredStrategy struct {
	denylist  []string
	minLength int
}

func newFilteredStrategy(cfg config.ExtractionConfig) *filteredStrategy {
	return &filteredStrategy{denylist: cfg.Denylist, minLength: cfg.MinAnswerLength}
}

func (s *filteredStrategy) Name() string { return "filtered" }

func (s *filteredStrategy) Extract(snap *schemas.Snapshot) (string, error) {
	if snap.Text == "" {
		return "", ErrStrategyDeclined
	}

	var kept []string
	for _, line := range strings.Split(snap.Text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || s.denied(line) {
			continue
		}
		kept = append(kept, line)
	}

	answer := strings.Join(kept, "\n")
	if len(answer) < s.minLength {
		return "", ErrStrategyDeclined
	}
	return answer, nil
}

func (s *filteredStrategy) denied(line string) bool {
	for _, entry := range s.denylist {
		if strings.Contains(line, entry) {
			return true
		}
	}
	return false
}

// containerStrategy parses the HTML snapshot and selects the answer container
// directly by XPath. It is the only strategy that needs the HTML view, and it
// declines when no candidate path matches.
type containerStrategy struct {
	xpaths    []string
	minLength int
}

func newContainerStrategy(cfg config.ExtractionConfig) *containerStrategy {
	return &containerStrategy{xpaths: cfg.ContainerXPaths, minLength: cfg.MinAnswerLength}
}

func (s *containerStrategy) Name() string { return "container" }

func (s *containerStrategy) Extract(snap *schemas.Snapshot) (string, error) {
	if snap.HTML == "" || len(s.xpaths) == 0 {
		return "", ErrStrategyDeclined
	}
	doc, err := htmlquery.Parse(strings.NewReader(snap.HTML))
	if err != nil {
		return "", fmt.Errorf("failed to parse snapshot html: %w", err)
	}

	for _, xpath := range s.xpaths {
		node, err := htmlquery.Query(doc, xpath)
		if err != nil {
			return "", fmt.Errorf("bad container xpath %q: %w", xpath, err)
		}
		if node == nil {
			continue
		}
		answer := strings.TrimSpace(htmlquery.InnerText(node))
		if len(answer) >= s.minLength {
			return answer, nil
		}
	}
	return "", ErrStrategyDeclined
}
