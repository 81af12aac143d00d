package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/kvasirlabs/askpilot/api/schemas"
	"github.com/kvasirlabs/askpilot/internal/config"
)

const answerBody = "Gophers are small burrowing rodents native to North and Central America. " +
	"They spend most of their lives underground in extensive tunnel systems."

func testExtractionConfig() config.ExtractionConfig {
	return config.ExtractionConfig{
		StartMarker:     "Answer",
		EndMarker:       "Related questions",
		StripFragments:  []string{"Copy link", "Share"},
		Denylist:        []string{"Sign in", "Upgrade", "Related questions", "Answer"},
		ContainerXPaths: []string{"//div[@class='prose']", "//main//article"},
		CitationXPath:   "//div[@class='citations']",
		MinAnswerLength: 30,
	}
}

func newTestExtractor(t *testing.T, cfg config.ExtractionConfig) *Extractor {
	t.Helper()
	return NewExtractor(cfg, zaptest.NewLogger(t))
}

func markedSnapshot() *schemas.Snapshot {
	text := strings.Join([]string{
		"Sign in",
		"Answer",
		answerBody,
		"Copy link",
		"Related questions",
		"What do gophers eat?",
	}, "\n")
	return &schemas.Snapshot{Text: text, Length: len(text)}
}

func TestMarkerStrategy(t *testing.T) {
	cfg := testExtractionConfig()

	t.Run("slices between markers and strips fragments", func(t *testing.T) {
		text, err := newMarkerStrategy(cfg).Extract(markedSnapshot())
		require.NoError(t, err)
		assert.Equal(t, answerBody, text)
		assert.NotContains(t, text, "Copy link")
		assert.NotContains(t, text, "Related questions")
	})

	t.Run("declines when a marker is missing", func(t *testing.T) {
		snap := &schemas.Snapshot{Text: "Answer\n" + answerBody}
		_, err := newMarkerStrategy(cfg).Extract(snap)
		assert.ErrorIs(t, err, ErrStrategyDeclined)
	})

	t.Run("declines on too-short slices", func(t *testing.T) {
		snap := &schemas.Snapshot{Text: "Answer\nYes.\nRelated questions"}
		_, err := newMarkerStrategy(cfg).Extract(snap)
		assert.ErrorIs(t, err, ErrStrategyDeclined)
	})
}

func TestFilteredStrategy(t *testing.T) {
	cfg := testExtractionConfig()

	t.Run("drops denylisted lines", func(t *testing.T) {
		text, err := newFilteredStrategy(cfg).Extract(markedSnapshot())
		require.NoError(t, err)
		assert.Contains(t, text, answerBody)
		assert.NotContains(t, text, "Sign in")
		assert.NotContains(t, text, "Related questions")
	})

	t.Run("declines on empty snapshots", func(t *testing.T) {
		_, err := newFilteredStrategy(cfg).Extract(&schemas.Snapshot{})
		assert.ErrorIs(t, err, ErrStrategyDeclined)
	})
}

func TestContainerStrategy(t *testing.T) {
	cfg := testExtractionConfig()

	t.Run("selects the first matching container", func(t *testing.T) {
		snap := &schemas.Snapshot{
			HTML: `<div><div class="prose"><p>` + answerBody + `</p></div></div>`,
		}
		text, err := newContainerStrategy(cfg).Extract(snap)
		require.NoError(t, err)
		assert.Equal(t, answerBody, text)
	})

	t.Run("falls through candidate paths", func(t *testing.T) {
		snap := &schemas.Snapshot{
			HTML: `<main><article>` + answerBody + `</article></main>`,
		}
		text, err := newContainerStrategy(cfg).Extract(snap)
		require.NoError(t, err)
		assert.Equal(t, answerBody, text)
	})

	t.Run("declines without an HTML view", func(t *testing.T) {
		_, err := newContainerStrategy(cfg).Extract(&schemas.Snapshot{Text: answerBody})
		assert.ErrorIs(t, err, ErrStrategyDeclined)
	})
}

func TestCollectSources(t *testing.T) {
	html := `<div>
		<div class="citations">
			<a href="https://example.org/gophers">Gopher biology</a>
			<a href="https://example.org/gophers">Duplicate</a>
			<a href="#footnote-1">jump</a>
			<a href="/internal/nav">nav</a>
			<a href="https://example.com/tunnels" title="Tunnel systems"></a>
		</div>
		<a href="https://outside.example.net">outside the container</a>
	</div>`

	sources, err := collectSources(html, "//div[@class='citations']")
	require.NoError(t, err)
	require.Len(t, sources, 2)
	assert.Equal(t, schemas.Source{Title: "Gopher biology", URL: "https://example.org/gophers"}, sources[0])
	// Empty anchor text falls back to the title attribute.
	assert.Equal(t, schemas.Source{Title: "Tunnel systems", URL: "https://example.com/tunnels"}, sources[1])
}

func TestExtractorRun(t *testing.T) {
	t.Run("marker strategy wins when landmarks are present", func(t *testing.T) {
		extractor := newTestExtractor(t, testExtractionConfig())
		result, err := extractor.Run(markedSnapshot())
		require.NoError(t, err)
		assert.Equal(t, "marker", result.Strategy)
		assert.Equal(t, answerBody, result.Text)
		// The cascade stops at the first success.
		require.Len(t, result.Attempts, 1)
		assert.True(t, result.Attempts[0].Success)
	})

	t.Run("cascade falls back when markers are absent", func(t *testing.T) {
		extractor := newTestExtractor(t, testExtractionConfig())
		snap := &schemas.Snapshot{Text: "Sign in\n" + answerBody}

		result, err := extractor.Run(snap)
		require.NoError(t, err)
		assert.Equal(t, "filtered", result.Strategy)
		assert.Contains(t, result.Text, answerBody)
		require.Len(t, result.Attempts, 2)
		assert.False(t, result.Attempts[0].Success)
		assert.Equal(t, "marker", result.Attempts[0].Strategy)
	})

	t.Run("container strategy is the last resort", func(t *testing.T) {
		cfg := testExtractionConfig()
		// Deny everything from the text view so only the HTML path remains.
		cfg.Denylist = []string{""}
		extractor := newTestExtractor(t, cfg)
		snap := &schemas.Snapshot{
			Text: answerBody,
			HTML: `<main><article>` + answerBody + `</article></main>`,
		}

		result, err := extractor.Run(snap)
		require.NoError(t, err)
		assert.Equal(t, "container", result.Strategy)
		require.Len(t, result.Attempts, 3)
	})

	t.Run("exhausted cascade reports every attempt", func(t *testing.T) {
		extractor := newTestExtractor(t, testExtractionConfig())
		snap := &schemas.Snapshot{Text: "Sign in"}

		result, err := extractor.Run(snap)
		var exhausted *ExtractionError
		require.ErrorAs(t, err, &exhausted)
		assert.Equal(t, []string{"marker", "filtered", "container"}, exhausted.Tried)
		require.Len(t, result.Attempts, 3)
		for _, attempt := range result.Attempts {
			assert.False(t, attempt.Success)
			assert.NotEmpty(t, attempt.Reason)
		}
	})

	t.Run("citations survive an exhausted cascade", func(t *testing.T) {
		extractor := newTestExtractor(t, testExtractionConfig())
		snap := &schemas.Snapshot{
			Text: "Sign in",
			HTML: `<div class="citations"><a href="https://example.org/x">x</a></div>`,
		}

		result, err := extractor.Run(snap)
		require.Error(t, err)
		require.Len(t, result.Sources, 1)
		assert.Equal(t, "https://example.org/x", result.Sources[0].URL)
	})

	t.Run("extraction is idempotent over the same snapshot", func(t *testing.T) {
		extractor := newTestExtractor(t, testExtractionConfig())
		snap := markedSnapshot()

		first, err := extractor.Run(snap)
		require.NoError(t, err)
		second, err := extractor.Run(snap)
		require.NoError(t, err)
		assert.Equal(t, first.Text, second.Text)
		assert.Equal(t, first.Strategy, second.Strategy)
	})
}
