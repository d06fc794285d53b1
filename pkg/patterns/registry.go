// Package patterns provides a centralized, high-performance pattern registry
// for scam detection and intelligence extraction. All regex patterns are
// compiled once at package init and shared across the detector and extractor.
//
// Design principles:
// - COMPILE ONCE: All patterns compiled at init, not per-request
// - DRY: Single source of truth for lure patterns and field recognizers
// - CATEGORIZED: Patterns organized by category for targeted scans
// - EXTENSIBLE: Easy to add new patterns without touching pipeline code
package patterns

import (
	"regexp"
	"sync"
)

// Category represents a pattern category
type Category string

const (
	// Lure categories (detection side)
	CategoryPaymentLure    Category = "payment_lure"
	CategoryUrgencyLure    Category = "urgency_lure"
	CategoryCredentialLure Category = "credential_lure"
	CategoryPhishingLure   Category = "phishing_lure"
	CategoryPrizeLure      Category = "prize_lure"

	// Intelligence field recognizers (extraction side)
	CategoryPhoneNumber Category = "phone_number"
	CategoryUPIID       Category = "upi_id"
	CategoryBankAccount Category = "bank_account"
	CategoryURL         Category = "url"
)

// LureCategories lists every detection-side category.
// The detector treats a hit in any of these as scam engagement.
func LureCategories() []Category {
	return []Category{
		CategoryPaymentLure,
		CategoryUrgencyLure,
		CategoryCredentialLure,
		CategoryPhishingLure,
		CategoryPrizeLure,
	}
}

// Pattern holds a compiled regex with metadata
type Pattern struct {
	Name        string         // Human-readable name for logging
	Regex       *regexp.Regexp // Compiled regex (never nil after init)
	Category    Category       // Pattern category
	Severity    int            // Risk score contribution (0-100)
	Description string         // What this pattern detects
}

// Registry holds all compiled patterns, organized by category
type Registry struct {
	mu         sync.RWMutex
	byCategory map[Category][]*Pattern
	all        []*Pattern
}

// global singleton - initialized once at package load
var (
	globalRegistry *Registry
	initOnce       sync.Once
)

// Get returns the global pattern registry (singleton)
// Thread-safe and guaranteed to be initialized
func Get() *Registry {
	initOnce.Do(func() {
		globalRegistry = newRegistry()
	})
	return globalRegistry
}

// newRegistry creates and populates the pattern registry
func newRegistry() *Registry {
	r := &Registry{
		byCategory: make(map[Category][]*Pattern),
		all:        make([]*Pattern, 0, 32),
	}

	r.registerLurePatterns()
	r.registerFieldRecognizers()

	return r
}

// register adds a pattern to the registry (internal use only)
func (r *Registry) register(name string, pattern string, category Category, severity int, description string) {
	compiled := regexp.MustCompile(pattern)
	p := &Pattern{
		Name:        name,
		Regex:       compiled,
		Category:    category,
		Severity:    severity,
		Description: description,
	}

	r.byCategory[category] = append(r.byCategory[category], p)
	r.all = append(r.all, p)
}

// GetByCategory returns all patterns for a specific category
// Returns empty slice if category not found (never nil)
func (r *Registry) GetByCategory(cat Category) []*Pattern {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if patterns, ok := r.byCategory[cat]; ok {
		return patterns
	}
	return []*Pattern{}
}

// GetMultipleCategories returns patterns from multiple categories
func (r *Registry) GetMultipleCategories(cats ...Category) []*Pattern {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*Pattern
	for _, cat := range cats {
		if patterns, ok := r.byCategory[cat]; ok {
			result = append(result, patterns...)
		}
	}
	return result
}

// MatchAny checks if text matches any pattern in the given categories
// Returns the first matching pattern or nil
// This is optimized for early exit on first match
func (r *Registry) MatchAny(text string, cats ...Category) *Pattern {
	patterns := r.GetMultipleCategories(cats...)
	for _, p := range patterns {
		if p.Regex.MatchString(text) {
			return p
		}
	}
	return nil
}

// MatchAll returns all patterns that match the text in given categories
func (r *Registry) MatchAll(text string, cats ...Category) []*Pattern {
	patterns := r.GetMultipleCategories(cats...)
	var matches []*Pattern
	for _, p := range patterns {
		if p.Regex.MatchString(text) {
			matches = append(matches, p)
		}
	}
	return matches
}

// FindAll returns every substring of text matched by any pattern in the
// given category, in match order. Callers own deduplication.
func (r *Registry) FindAll(text string, cat Category) []string {
	var values []string
	for _, p := range r.GetByCategory(cat) {
		values = append(values, p.Regex.FindAllString(text, -1)...)
	}
	return values
}

// TotalPatterns returns the total count of registered patterns
func (r *Registry) TotalPatterns() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.all)
}
