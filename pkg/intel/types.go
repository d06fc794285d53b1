// Package intel implements the per-session scam-intelligence pipeline:
// detection, classification, extraction, persona replies, and
// threshold-triggered reporting.
package intel

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Sender roles for conversation messages.
const (
	RoleScammer = "scammer"
	RoleAgent   = "agent"
)

// Message is a single conversation turn. Timestamp is an opaque string
// supplied by the transport; ordering is arrival order, never timestamp order.
type Message struct {
	Sender    string `json:"sender"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
}

// ScamType is one label from the closed classification set.
// The values are case-sensitive and form an external contract with the
// reporting sink; UNKNOWN is internal and never sent when no scam is detected.
type ScamType string

const (
	ScamTypeUPIPayment ScamType = "UPI_PAYMENT_SCAM"
	ScamTypePhishing   ScamType = "PHISHING_LINK"
	ScamTypeOTPFraud   ScamType = "OTP_FRAUD"
	ScamTypeBankKYC    ScamType = "BANK_KYC_FRAUD"
	ScamTypeJob        ScamType = "JOB_SCAM"
	ScamTypeLottery    ScamType = "LOTTERY_SCAM"
	ScamTypeUnknown    ScamType = "UNKNOWN"
)

// CanonicalScamTypes lists the closed set in its canonical order. This order
// doubles as the rule-based tie-break: the first type whose keyword set
// matches a text wins.
func CanonicalScamTypes() []ScamType {
	return []ScamType{
		ScamTypeUPIPayment,
		ScamTypePhishing,
		ScamTypeOTPFraud,
		ScamTypeBankKYC,
		ScamTypeJob,
		ScamTypeLottery,
	}
}

// ParseScamType validates a raw label against the closed set. Labels that
// contain a valid label as a substring are salvaged (LLMs occasionally wrap
// the answer in prose despite instructions). Anything else maps to UNKNOWN
// with ok=false.
func ParseScamType(raw string) (ScamType, bool) {
	label := strings.ToUpper(strings.TrimSpace(raw))
	if label == string(ScamTypeUnknown) {
		return ScamTypeUnknown, true
	}
	for _, t := range CanonicalScamTypes() {
		if label == string(t) {
			return t, true
		}
	}
	for _, t := range CanonicalScamTypes() {
		if strings.Contains(label, string(t)) {
			return t, true
		}
	}
	return ScamTypeUnknown, false
}

// ClassificationSource tags where a label came from. Logging only; it never
// drives control flow beyond fallback selection.
type ClassificationSource string

const (
	SourceRemote ClassificationSource = "remote"
	SourceRules  ClassificationSource = "rules"
)

// Classification is one classifier verdict.
type Classification struct {
	Type   ScamType             `json:"type"`
	Source ClassificationSource `json:"source"`
}

// Record maps intelligence field kinds to the unique values observed so far.
// Field names and nesting are a compatibility contract with the reporting
// sink. Slices are kept sorted and deduplicated so repeated extraction of the
// same text is byte-for-byte reproducible.
type Record struct {
	PhoneNumbers []string `json:"phone_numbers"`
	UPIIDs       []string `json:"upi_ids"`
	BankAccounts []string `json:"bank_accounts"`
	URLs         []string `json:"urls"`
}

// Merge returns the per-field set union of r and other, sorted.
// Neither input is mutated.
func (r Record) Merge(other Record) Record {
	return Record{
		PhoneNumbers: mergeUnique(r.PhoneNumbers, other.PhoneNumbers),
		UPIIDs:       mergeUnique(r.UPIIDs, other.UPIIDs),
		BankAccounts: mergeUnique(r.BankAccounts, other.BankAccounts),
		URLs:         mergeUnique(r.URLs, other.URLs),
	}
}

// Empty reports whether no field holds any value.
func (r Record) Empty() bool {
	return len(r.PhoneNumbers) == 0 && len(r.UPIIDs) == 0 &&
		len(r.BankAccounts) == 0 && len(r.URLs) == 0
}

// HasSignificant reports whether a report-triggering field kind holds a
// value. Payment ids and bank accounts are the significant kinds; phones and
// URLs alone do not fire a report.
func (r Record) HasSignificant() bool {
	return len(r.UPIIDs) > 0 || len(r.BankAccounts) > 0
}

// Normalize returns a copy with every field deduplicated and sorted.
func (r Record) Normalize() Record {
	return Record{}.Merge(r)
}

// mergeUnique never returns nil: the sink contract wants empty arrays, not
// nulls, so merged records must marshal their fields as [].
func mergeUnique(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, v := range list {
			if v == "" {
				continue
			}
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}

// Session is a point-in-time snapshot of one conversation's state.
// Stores hand out copies; mutating a snapshot never touches stored state.
type Session struct {
	ID           string    `json:"sessionId"`
	Messages     []Message `json:"messages"`
	Intelligence Record    `json:"intelligence"`
	ScamDetected bool      `json:"scamDetected"`
	ScamType     ScamType  `json:"scamType,omitempty"` // empty until first classification
	Reported     bool      `json:"reported"`
}

// MessageCount returns the number of exchanged messages.
func (s *Session) MessageCount() int {
	return len(s.Messages)
}

// ScammerText concatenates the scammer-side message texts in arrival order.
// This is the classification input: the label should reflect the whole
// pitch, not only the latest fragment.
func (s *Session) ScammerText() string {
	var parts []string
	for _, m := range s.Messages {
		if m.Sender != RoleAgent {
			parts = append(parts, m.Text)
		}
	}
	return strings.Join(parts, " ")
}

// Report is the immutable intelligence snapshot handed to the reporting
// sink. The JSON field names are an exact compatibility contract.
type Report struct {
	SessionID              string   `json:"sessionId"`
	ScamDetected           bool     `json:"scamDetected"`
	ScamType               ScamType `json:"scamType"`
	TotalMessagesExchanged int      `json:"totalMessagesExchanged"`
	ExtractedIntelligence  Record   `json:"extractedIntelligence"`
	AgentNotes             string   `json:"agentNotes"`

	// Local bookkeeping, never serialized to the sink.
	ID        string    `json:"-"`
	CreatedAt time.Time `json:"-"`
}

// NewReportID returns a fresh report identifier for archival and logging.
func NewReportID() string {
	return uuid.NewString()
}
