package guardrail

import (
	"fmt"
	"regexp"
)

type detectorPattern struct {
	name string
	re   *regexp.Regexp
}

var (
	emailPattern = detectorPattern{
		name: "email",
		re:   regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`),
	}
	phonePattern = detectorPattern{
		name: "phone",
		re:   regexp.MustCompile(`\+?\d[\d\s().-]{7,}\d`),
	}
	ssnPattern = detectorPattern{
		name: "ssn",
		re:   regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
	}
	apiKeyPattern = detectorPattern{
		name: "api_key",
		re:   regexp.MustCompile(`(?i)\b(api[-_ ]?key|secret|token)\b[^\n\r]*`),
	}
)

// detectorPatterns resolves a named detector preset to its patterns.
func detectorPatterns(detector string) ([]detectorPattern, error) {
	switch detector {
	case "pii_basic":
		return []detectorPattern{emailPattern, phonePattern}, nil
	case "pii_strict":
		return []detectorPattern{emailPattern, phonePattern, ssnPattern}, nil
	case "secrets":
		return []detectorPattern{apiKeyPattern}, nil
	default:
		return nil, fmt.Errorf("unknown detector %q (available: pii_basic, pii_strict, secrets)", detector)
	}
}
