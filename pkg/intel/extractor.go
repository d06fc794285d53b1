package intel

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/trapline/trapline/pkg/patterns"
)

// Extractor pulls structured intelligence fields from raw text. Both
// implementations return the same record shape, deduplicated and sorted
// within a single call so repeated extraction is reproducible.
type Extractor interface {
	Extract(ctx context.Context, text string) (Record, error)
}

// ============================================================================
// Pattern-based extractor (always-available fallback)
// ============================================================================

// PatternExtractor recognizes intelligence fields with fixed regexes.
// Disambiguation precedence is fixed: phone-shaped digit runs are claimed by
// the phone recognizer first and blanked from the text before the bank
// account scan, so an ambiguous run lands in exactly one field. URLs work
// the same way: scheme-prefixed matches are blanked before the bare-domain
// scan so one link never yields two values.
type PatternExtractor struct {
	registry *patterns.Registry
}

// NewPatternExtractor returns the regex-backed extractor.
func NewPatternExtractor() *PatternExtractor {
	return &PatternExtractor{registry: patterns.Get()}
}

// Extract never returns an error; the error channel exists to satisfy the
// shared contract with the remote path.
func (pe *PatternExtractor) Extract(_ context.Context, text string) (Record, error) {
	if strings.TrimSpace(text) == "" {
		return Record{}.Normalize(), nil
	}

	phones, remainder := pe.claimMatches(text, patterns.CategoryPhoneNumber)
	accounts, _ := pe.claimMatches(remainder, patterns.CategoryBankAccount)
	urls, _ := pe.claimMatches(text, patterns.CategoryURL)

	rec := Record{
		PhoneNumbers: phones,
		UPIIDs:       pe.registry.FindAll(text, patterns.CategoryUPIID),
		BankAccounts: accounts,
		URLs:         trimURLPunct(urls),
	}
	return rec.Normalize(), nil
}

// claimMatches collects matches for each pattern of a category in
// registration order, blanking each pattern's matches from the working text
// before the next pattern runs. The returned remainder has every claimed
// token removed, which is what enforces the cross-category precedence.
func (pe *PatternExtractor) claimMatches(text string, cat patterns.Category) ([]string, string) {
	var values []string
	working := text
	for _, p := range pe.registry.GetByCategory(cat) {
		matches := p.Regex.FindAllString(working, -1)
		if len(matches) == 0 {
			continue
		}
		values = append(values, matches...)
		working = p.Regex.ReplaceAllString(working, " ")
	}
	return values, working
}

func trimURLPunct(urls []string) []string {
	out := urls[:0]
	for _, u := range urls {
		u = strings.TrimRight(u, ".,;:!?)'\"")
		if u != "" {
			out = append(out, u)
		}
	}
	return out
}

// ============================================================================
// Remote extractor (LLM-backed)
// ============================================================================

const extractorSystemPrompt = `You are an intelligence extraction assistant. Analyze the given text and extract any scam-related information.

Return ONLY a valid JSON object with this exact structure:
{
  "bankAccounts": [],
  "upiIds": [],
  "phishingLinks": [],
  "phoneNumbers": []
}

Rules:
- bankAccounts: Extract any bank account numbers (9-18 digits)
- upiIds: Extract UPI IDs (format: name@bank)
- phishingLinks: Extract any URLs or links
- phoneNumbers: Extract phone numbers (Indian format preferred)

Return ONLY the JSON object, no other text.`

// remoteIntel is the remote extraction response contract. Any shape outside
// it is treated as failure, not as a crash.
type remoteIntel struct {
	BankAccounts []string `json:"bankAccounts"`
	UPIIDs       []string `json:"upiIds"`
	PhishingURLs []string `json:"phishingLinks"`
	PhoneNumbers []string `json:"phoneNumbers"`
}

// LLMExtractor asks the remote inference service for structured fields.
type LLMExtractor struct {
	llm     *llmClient
	timeout time.Duration
}

// NewLLMExtractor creates a remote extractor over the shared inference
// transport with a bounded per-call timeout.
func NewLLMExtractor(opts LLMOptions, timeout time.Duration) *LLMExtractor {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &LLMExtractor{
		llm:     newLLMClient(opts),
		timeout: timeout,
	}
}

// Extract requests structured fields for the text. Returns an error when the
// service is unreachable, times out, or the response does not parse into the
// expected field shapes.
func (le *LLMExtractor) Extract(ctx context.Context, text string) (Record, error) {
	if strings.TrimSpace(text) == "" {
		return Record{}.Normalize(), nil
	}

	ctx, cancel := context.WithTimeout(ctx, le.timeout)
	defer cancel()

	raw, err := le.llm.complete(ctx, extractorSystemPrompt,
		fmt.Sprintf("Extract intelligence from this text:\n\n%s", text), 500)
	if err != nil {
		return Record{}, err
	}

	var parsed remoteIntel
	if err := json.Unmarshal([]byte(extractJSON(raw)), &parsed); err != nil {
		return Record{}, fmt.Errorf("malformed extraction response: %w", err)
	}

	rec := Record{
		PhoneNumbers: parsed.PhoneNumbers,
		UPIIDs:       parsed.UPIIDs,
		BankAccounts: parsed.BankAccounts,
		URLs:         parsed.PhishingURLs,
	}
	return rec.Normalize(), nil
}

// ============================================================================
// Hybrid strategy
// ============================================================================

// HybridExtractor tries the remote path first and falls back to pattern
// recognition on failure or when the remote path finds nothing (the regexes
// frequently catch identifiers a hedging model skips).
type HybridExtractor struct {
	remote Extractor // nil when no provider is configured
	local  Extractor
}

// NewHybridExtractor composes the strategy. remote may be nil.
func NewHybridExtractor(remote Extractor, local Extractor) *HybridExtractor {
	if local == nil {
		local = NewPatternExtractor()
	}
	return &HybridExtractor{remote: remote, local: local}
}

// Extract is total: it always returns a record and never an error.
func (he *HybridExtractor) Extract(ctx context.Context, text string) (Record, error) {
	if he.remote != nil {
		rec, err := he.remote.Extract(ctx, text)
		if err == nil && !rec.Empty() {
			return rec, nil
		}
		if err != nil {
			log.Printf("[EXTRACT] remote path failed, using patterns: %v", err)
		}
	}
	return he.local.Extract(ctx, text)
}
