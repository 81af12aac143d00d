package extract

import (
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/kvasirlabs/askpilot/api/schemas"
	"github.com/kvasirlabs/askpilot/internal/config"
)

// ExtractionError reports that every strategy in the cascade was tried and
// none produced acceptable text.
type ExtractionError struct {
	Tried []string
}

func (e *ExtractionError) Error() string {
	return "no extraction strategy succeeded (tried " + strings.Join(e.Tried, ", ") + ")"
}

// Result is the outcome of one cascade run over a snapshot.
type Result struct {
	Text     string
	Strategy string
	Sources  []schemas.Source
	// Attempts records every strategy tried, in order, including the
	// successful one. Failed attempts carry the decline or error reason.
	Attempts []schemas.ExtractionAttempt
}

// Extractor runs the strategy cascade and the citation pass.
type Extractor struct {
	cfg        config.ExtractionConfig
	logger     *zap.Logger
	strategies []Strategy
}

// NewExtractor builds the cascade in precision order: exact markers first,
// then denylist filtering, then direct container selection.
func NewExtractor(cfg config.ExtractionConfig, logger *zap.Logger) *Extractor {
	return &Extractor{
		cfg:    cfg,
		logger: logger.Named("extract"),
		strategies: []Strategy{
			newMarkerStrategy(cfg),
			newFilteredStrategy(cfg),
			newContainerStrategy(cfg),
		},
	}
}

// Run tries each strategy in order and stops at the first success. The
// citation pass runs regardless of which strategy won, or whether any did;
// sources come from the HTML view, not from the extracted text.
func (e *Extractor) Run(snap *schemas.Snapshot) (*Result, error) {
	result := &Result{}

	for _, strategy := range e.strategies {
		text, err := strategy.Extract(snap)
		attempt := schemas.ExtractionAttempt{Strategy: strategy.Name()}

		switch {
		case errors.Is(err, ErrStrategyDeclined):
			attempt.Reason = ErrStrategyDeclined.Error()
			e.logger.Debug("Extraction strategy declined", zap.String("strategy", strategy.Name()))
		case err != nil:
			attempt.Reason = err.Error()
			e.logger.Warn("Extraction strategy failed",
				zap.String("strategy", strategy.Name()), zap.Error(err))
		default:
			attempt.Success = true
			attempt.Text = text
			result.Text = text
			result.Strategy = strategy.Name()
		}
		result.Attempts = append(result.Attempts, attempt)

		if attempt.Success {
			break
		}
	}

	sources, err := collectSources(snap.HTML, e.cfg.CitationXPath)
	if err != nil {
		// Citations are supplementary; a broken sidebar never voids the answer.
		e.logger.Warn("Citation pass failed", zap.Error(err))
	}
	result.Sources = sources

	if result.Strategy == "" {
		tried := make([]string, 0, len(e.strategies))
		for _, s := range e.strategies {
			tried = append(tried, s.Name())
		}
		return result, &ExtractionError{Tried: tried}
	}

	e.logger.Info("Answer extracted",
		zap.String("strategy", result.Strategy),
		zap.Int("length", len(result.Text)),
		zap.Int("sources", len(result.Sources)))
	return result, nil
}
