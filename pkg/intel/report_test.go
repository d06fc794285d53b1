package intel

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestTrigger_ShouldReport(t *testing.T) {
	trig := NewTrigger(10)

	tests := []struct {
		name    string
		session Session
		want    bool
	}{
		{
			name:    "below threshold, no intel",
			session: sessionWithMessages(5, true),
			want:    false,
		},
		{
			name:    "at threshold",
			session: sessionWithMessages(10, true),
			want:    true,
		},
		{
			name:    "above threshold",
			session: sessionWithMessages(14, true),
			want:    true,
		},
		{
			name: "significant intel below threshold",
			session: func() Session {
				s := sessionWithMessages(3, true)
				s.Intelligence.UPIIDs = []string{"rahul123@upi"}
				return s
			}(),
			want: true,
		},
		{
			name: "bank account counts as significant",
			session: func() Session {
				s := sessionWithMessages(2, true)
				s.Intelligence.BankAccounts = []string{"123456789012"}
				return s
			}(),
			want: true,
		},
		{
			name: "phone alone is not significant",
			session: func() Session {
				s := sessionWithMessages(2, true)
				s.Intelligence.PhoneNumbers = []string{"9876543210"}
				return s
			}(),
			want: false,
		},
		{
			name: "already reported",
			session: func() Session {
				s := sessionWithMessages(12, true)
				s.Reported = true
				return s
			}(),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := trig.ShouldReport(tt.session); got != tt.want {
				t.Errorf("ShouldReport = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewTrigger_DefaultThreshold(t *testing.T) {
	if got := NewTrigger(0).MessageThreshold; got != 10 {
		t.Errorf("default threshold = %d, want 10", got)
	}
	if got := NewTrigger(-3).MessageThreshold; got != 10 {
		t.Errorf("negative threshold should fall back to 10, got %d", got)
	}
	if got := NewTrigger(25).MessageThreshold; got != 25 {
		t.Errorf("explicit threshold = %d, want 25", got)
	}
}

func TestBuildReport_Fields(t *testing.T) {
	s := sessionWithMessages(11, true)
	s.ScamType = ScamTypeUPIPayment
	s.Intelligence.UPIIDs = []string{"rahul123@upi"}

	r := BuildReport(s)
	if r.SessionID != "s1" || !r.ScamDetected || r.ScamType != ScamTypeUPIPayment {
		t.Errorf("report header wrong: %+v", r)
	}
	if r.TotalMessagesExchanged != 11 {
		t.Errorf("message count = %d", r.TotalMessagesExchanged)
	}
	if r.ID == "" {
		t.Error("report must carry an id")
	}
	if r.CreatedAt.IsZero() {
		t.Error("report must carry a timestamp")
	}
	if !strings.Contains(r.AgentNotes, "UPI_PAYMENT_SCAM detected") {
		t.Errorf("notes missing headline: %q", r.AgentNotes)
	}
	if !strings.Contains(r.AgentNotes, "rahul123@upi") {
		t.Errorf("notes missing extracted value: %q", r.AgentNotes)
	}
	if !strings.Contains(r.AgentNotes, "Total messages: 11") {
		t.Errorf("notes missing message total: %q", r.AgentNotes)
	}
}

func TestBuildReport_EmptyTypeBecomesUnknown(t *testing.T) {
	s := sessionWithMessages(10, true)
	if got := BuildReport(s).ScamType; got != ScamTypeUnknown {
		t.Errorf("scam type = %s, want %s", got, ScamTypeUnknown)
	}
}

func TestBuildReport_NotesWithoutDetection(t *testing.T) {
	s := sessionWithMessages(10, false)
	notes := BuildReport(s).AgentNotes
	if !strings.Contains(notes, "No significant activity detected.") {
		t.Errorf("notes = %q", notes)
	}
	if !strings.Contains(notes, "Total messages: 10") {
		t.Errorf("notes = %q", notes)
	}
}

// The reporting sink's wire contract: exact field names, and the four
// intelligence arrays serialize as [] rather than null when empty.
func TestReport_WireContract(t *testing.T) {
	s := sessionWithMessages(10, true)
	s.ScamType = ScamTypeOTPFraud
	r := BuildReport(s)

	raw, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded map[string]json.RawMessage
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	for _, field := range []string{
		"sessionId", "scamDetected", "scamType",
		"totalMessagesExchanged", "extractedIntelligence", "agentNotes",
	} {
		if _, ok := decoded[field]; !ok {
			t.Errorf("field %q missing from wire payload", field)
		}
	}
	for _, internal := range []string{"id", "ID", "createdAt", "CreatedAt"} {
		if _, ok := decoded[internal]; ok {
			t.Errorf("internal field %q leaked onto the wire", internal)
		}
	}

	var intel map[string]json.RawMessage
	if err := json.Unmarshal(decoded["extractedIntelligence"], &intel); err != nil {
		t.Fatalf("unmarshal intelligence: %v", err)
	}
	for _, field := range []string{"phone_numbers", "upi_ids", "bank_accounts", "urls"} {
		got, ok := intel[field]
		if !ok {
			t.Errorf("intelligence field %q missing", field)
			continue
		}
		if string(got) != "[]" {
			t.Errorf("empty %s = %s, want []", field, got)
		}
	}
}

func TestTacticSummary(t *testing.T) {
	tests := []struct {
		scamType ScamType
		intel    Record
		want     string
	}{
		{ScamTypeUPIPayment, Record{UPIIDs: []string{"x@ybl"}}, "transfer to x@ybl"},
		{ScamTypePhishing, Record{URLs: []string{"http://bad.example"}}, "malicious link http://bad.example"},
		{ScamTypeOTPFraud, Record{}, "steal OTP"},
		{ScamTypeBankKYC, Record{}, "KYC verification"},
		{ScamTypeJob, Record{}, "fake job"},
		{ScamTypeLottery, Record{}, "won lottery"},
		{ScamTypeUnknown, Record{}, "social engineering"},
		// Without an extracted value the typed summaries degrade gracefully.
		{ScamTypeUPIPayment, Record{}, "social engineering"},
	}
	for _, tt := range tests {
		got := tacticSummary(tt.scamType, tt.intel)
		if !strings.Contains(got, tt.want) {
			t.Errorf("tacticSummary(%s) = %q, want substring %q", tt.scamType, got, tt.want)
		}
	}
}
