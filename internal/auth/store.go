package auth

import (
	"fmt"
	"os"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/kvasirlabs/askpilot/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// LoadCredentials reads an ordered credential list from a JSON file and
// applies the caller-supplied criticality classification. Expired non-critical
// credentials are dropped with a warning; a missing or expired credential
// whose name appears in criticalNames is an error, because injection could
// never satisfy it.
func LoadCredentials(path string, criticalNames []string, logger *zap.Logger) ([]schemas.Credential, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read credential file %s: %w", path, err)
	}

	var creds []schemas.Credential
	if err := json.Unmarshal(raw, &creds); err != nil {
		return nil, fmt.Errorf("failed to parse credential file %s: %w", path, err)
	}

	critical := make(map[string]bool, len(criticalNames))
	for _, name := range criticalNames {
		critical[name] = true
	}

	now := time.Now()
	usable := creds[:0]
	seen := make(map[string]bool, len(creds))
	for _, c := range creds {
		c.Critical = critical[c.Name]
		if c.Expired(now) {
			if c.Critical {
				return nil, fmt.Errorf("critical credential %q expired at %s", c.Name, c.ExpiresAt.Format(time.RFC3339))
			}
			logger.Warn("Dropping expired credential", zap.String("name", c.Name))
			continue
		}
		seen[c.Name] = true
		usable = append(usable, c)
	}

	for _, name := range criticalNames {
		if !seen[name] {
			return nil, fmt.Errorf("critical credential %q not present in %s", name, path)
		}
	}

	logger.Info("Credentials loaded",
		zap.String("path", path),
		zap.Int("count", len(usable)),
		zap.Int("critical", len(criticalNames)))
	return usable, nil
}
