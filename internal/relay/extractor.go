package relay

import (
	"fmt"
	"regexp"
	"strings"

	"relaybot/internal/config"
)

// Extractor finds identifiers in free text.
type Extractor struct {
	re *regexp.Regexp
}

// NewExtractor compiles pattern; an empty pattern selects config.DefaultPattern.
func NewExtractor(pattern string) (*Extractor, error) {
	if strings.TrimSpace(pattern) == "" {
		pattern = config.DefaultPattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compile pattern %q: %w", pattern, err)
	}
	if re.MatchString("") {
		return nil, fmt.Errorf("pattern %q matches the empty string", pattern)
	}
	return &Extractor{re: re}, nil
}

func (x *Extractor) Pattern() string { return x.re.String() }

// Extract returns every non-overlapping match in order of occurrence.
// The whole match is returned even when the pattern has capture groups.
// Zero-length matches are never identifiers and are dropped.
func (x *Extractor) Extract(text string) []string {
	if text == "" {
		return nil
	}
	var out []string
	for _, m := range x.re.FindAllString(text, -1) {
		if m != "" {
			out = append(out, m)
		}
	}
	return out
}
