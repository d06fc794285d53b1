package intel

import (
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/trapline/trapline/pkg/patterns"
)

// lureKeywords are single terms whose presence marks a message as
// scam-engaged. Matching is substring-based over normalized text, so
// "verification" hits "verify"-adjacent terms the same way scammers write
// them.
var lureKeywords = []string{
	"urgent", "blocked", "verify", "otp", "upi", "kyc", "payment", "link",
	"suspend", "expire", "immediately", "click", "account", "bank", "transfer",
	"prize", "winner", "lottery", "refund", "update", "confirm", "credentials",
}

// Detector makes the binary scam/non-scam call for a single message.
// It is a pure function of the text: no remote calls, no hidden state.
// Detection gates the rest of the pipeline, so it must stay instant and
// available even when every remote service is down.
type Detector struct {
	registry *patterns.Registry
	keywords []string
}

// NewDetector returns a detector backed by the shared pattern registry.
func NewDetector() *Detector {
	return &Detector{
		registry: patterns.Get(),
		keywords: lureKeywords,
	}
}

// IsScam reports whether the text shows any scam-lure signal: a lure keyword
// or a lure pattern hit. Deterministic for a given text.
func (d *Detector) IsScam(text string) bool {
	normalized := NormalizeText(text)
	if normalized == "" {
		return false
	}

	for _, kw := range d.keywords {
		if strings.Contains(normalized, kw) {
			return true
		}
	}

	return d.registry.MatchAny(normalized, patterns.LureCategories()...) != nil
}

// MatchedCategories returns the lure categories that fired for the text.
// Logging only, never part of the detection decision itself.
func (d *Detector) MatchedCategories(text string) []patterns.Category {
	normalized := NormalizeText(text)
	seen := make(map[patterns.Category]struct{})
	var cats []patterns.Category
	for _, p := range d.registry.MatchAll(normalized, patterns.LureCategories()...) {
		if _, ok := seen[p.Category]; ok {
			continue
		}
		seen[p.Category] = struct{}{}
		cats = append(cats, p.Category)
	}
	return cats
}

// NormalizeText folds text for consistent matching: NFKC normalization
// (collapses full-width and compatibility characters scammers use to dodge
// keyword filters), lowercase, trimmed.
func NormalizeText(text string) string {
	return strings.ToLower(strings.TrimSpace(norm.NFKC.String(text)))
}
