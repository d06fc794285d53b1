package intel

import (
	"fmt"
	"strings"
	"time"
)

// Trigger decides when a session's accumulated evidence justifies a report.
type Trigger struct {
	// MessageThreshold is the exchanged-message count that fires a report
	// even without significant intelligence.
	MessageThreshold int
}

// NewTrigger returns a trigger with the given message threshold.
func NewTrigger(threshold int) Trigger {
	if threshold <= 0 {
		threshold = 10
	}
	return Trigger{MessageThreshold: threshold}
}

// ShouldReport evaluates the threshold condition against a session snapshot.
// The reported flag itself is flipped by the store CAS, not here; this is
// only the condition half of the check-and-set.
func (t Trigger) ShouldReport(s Session) bool {
	if s.Reported {
		return false
	}
	return s.MessageCount() >= t.MessageThreshold || s.Intelligence.HasSignificant()
}

// BuildReport assembles the immutable intelligence snapshot for a session.
func BuildReport(s Session) Report {
	scamType := s.ScamType
	if scamType == "" {
		scamType = ScamTypeUnknown
	}
	return Report{
		SessionID:              s.ID,
		ScamDetected:           s.ScamDetected,
		ScamType:               scamType,
		TotalMessagesExchanged: s.MessageCount(),
		ExtractedIntelligence:  s.Intelligence.Normalize(),
		AgentNotes:             buildNotes(s, scamType),
		ID:                     NewReportID(),
		CreatedAt:              time.Now().UTC(),
	}
}

// buildNotes renders the free-text summary for the reporting sink: scam-type
// headline with a tactic sentence, per-field value summaries, message total.
func buildNotes(s Session, scamType ScamType) string {
	var notes []string

	if s.ScamDetected {
		notes = append(notes, fmt.Sprintf("%s detected. %s", scamType, tacticSummary(scamType, s.Intelligence)))
	}

	intel := s.Intelligence
	if len(intel.PhoneNumbers) > 0 {
		notes = append(notes, "Phone numbers: "+strings.Join(intel.PhoneNumbers, ", "))
	}
	if len(intel.UPIIDs) > 0 {
		notes = append(notes, "UPI IDs: "+strings.Join(intel.UPIIDs, ", "))
	}
	if len(intel.BankAccounts) > 0 {
		notes = append(notes, "Bank accounts: "+strings.Join(intel.BankAccounts, ", "))
	}
	if len(intel.URLs) > 0 {
		notes = append(notes, "URLs: "+strings.Join(intel.URLs, ", "))
	}

	if len(notes) == 0 {
		notes = append(notes, "No significant activity detected.")
	}
	notes = append(notes, fmt.Sprintf("Total messages: %d", s.MessageCount()))
	return strings.Join(notes, " | ")
}

// tacticSummary describes the scam tactic, referencing the first extracted
// value where one exists for the type.
func tacticSummary(scamType ScamType, intel Record) string {
	switch {
	case scamType == ScamTypeUPIPayment && len(intel.UPIIDs) > 0:
		return "Scammer requested transfer to " + intel.UPIIDs[0]
	case scamType == ScamTypePhishing && len(intel.URLs) > 0:
		return "Scammer shared malicious link " + intel.URLs[0]
	case scamType == ScamTypeOTPFraud:
		return "Scammer attempted to steal OTP/verification code"
	case scamType == ScamTypeBankKYC:
		return "Scammer impersonated bank for KYC verification"
	case scamType == ScamTypeJob:
		return "Scammer offered fake job opportunity"
	case scamType == ScamTypeLottery:
		return "Scammer claimed victim won lottery/prize"
	default:
		return "Scammer used urgency and social engineering"
	}
}
