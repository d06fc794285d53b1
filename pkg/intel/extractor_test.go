package intel

import (
	"context"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"
)

func TestPatternExtractor_Fields(t *testing.T) {
	pe := NewPatternExtractor()

	tests := []struct {
		name string
		text string
		want Record
	}{
		{
			name: "upi id",
			text: "Send 5000 to rahul123@upi urgently, your KYC is blocked",
			want: Record{
				PhoneNumbers: []string{},
				UPIIDs:       []string{"rahul123@upi"},
				BankAccounts: []string{},
				URLs:         []string{},
			},
		},
		{
			name: "phone numbers",
			text: "Call me at 9876543210 or +91 9123456780 right now",
			want: Record{
				PhoneNumbers: []string{"+91 9123456780", "9876543210"},
				UPIIDs:       []string{},
				BankAccounts: []string{},
				URLs:         []string{},
			},
		},
		{
			name: "bank account",
			text: "Deposit to account 123456789012345 today",
			want: Record{
				PhoneNumbers: []string{},
				UPIIDs:       []string{},
				BankAccounts: []string{"123456789012345"},
				URLs:         []string{},
			},
		},
		{
			name: "scheme url",
			text: "Verify at https://secure-bank.example/kyc now.",
			want: Record{
				PhoneNumbers: []string{},
				UPIIDs:       []string{},
				BankAccounts: []string{},
				URLs:         []string{"https://secure-bank.example/kyc"},
			},
		},
		{
			name: "bare domain",
			text: "go to www.fake-rewards.com to claim",
			want: Record{
				PhoneNumbers: []string{},
				UPIIDs:       []string{},
				BankAccounts: []string{},
				URLs:         []string{"www.fake-rewards.com"},
			},
		},
		{
			name: "empty",
			text: "   ",
			want: Record{
				PhoneNumbers: []string{},
				UPIIDs:       []string{},
				BankAccounts: []string{},
				URLs:         []string{},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := pe.Extract(context.Background(), tt.text)
			if err != nil {
				t.Fatalf("pattern extractor must never error: %v", err)
			}
			if !reflect.DeepEqual(rec, tt.want) {
				t.Errorf("Extract(%q)\n got %+v\nwant %+v", tt.text, rec, tt.want)
			}
		})
	}
}

// A 10-digit run starting 6-9 is both phone-shaped and bank-account-shaped.
// The phone recognizer claims it first, so it must never appear in both
// fields.
func TestPatternExtractor_PhoneClaimsAmbiguousDigits(t *testing.T) {
	pe := NewPatternExtractor()

	rec, _ := pe.Extract(context.Background(), "reach me on 9876543210, account 123456789012")
	if !reflect.DeepEqual(rec.PhoneNumbers, []string{"9876543210"}) {
		t.Errorf("phones = %v", rec.PhoneNumbers)
	}
	if !reflect.DeepEqual(rec.BankAccounts, []string{"123456789012"}) {
		t.Errorf("accounts = %v", rec.BankAccounts)
	}
	for _, acct := range rec.BankAccounts {
		if acct == "9876543210" {
			t.Error("phone-shaped run leaked into bank accounts")
		}
	}
}

// A scheme-prefixed URL is blanked before the bare-domain scan so one link
// yields one value.
func TestPatternExtractor_SchemeURLNotDoubleCounted(t *testing.T) {
	pe := NewPatternExtractor()

	rec, _ := pe.Extract(context.Background(), "open http://evil.example.com/verify")
	if len(rec.URLs) != 1 {
		t.Fatalf("urls = %v, want exactly one", rec.URLs)
	}
}

func TestPatternExtractor_Deterministic(t *testing.T) {
	pe := NewPatternExtractor()
	text := "pay rahul123@upi or call 9876543210, else visit http://x.example/a"

	first, _ := pe.Extract(context.Background(), text)
	for i := 0; i < 20; i++ {
		rec, _ := pe.Extract(context.Background(), text)
		if !reflect.DeepEqual(rec, first) {
			t.Fatal("extraction must be deterministic for a given text")
		}
	}
}

func TestLLMExtractor_ParsesResponse(t *testing.T) {
	srv := chatCompletionStub(t, "```json\n{\"bankAccounts\":[\"123456789\"],\"upiIds\":[\"x@ybl\"],\"phishingLinks\":[],\"phoneNumbers\":[\"9876543210\"]}\n```")

	le := NewLLMExtractor(LLMOptions{Model: "test", BaseURL: srv.URL}, 2*time.Second)
	rec, err := le.Extract(context.Background(), "some text")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !reflect.DeepEqual(rec.BankAccounts, []string{"123456789"}) {
		t.Errorf("accounts = %v", rec.BankAccounts)
	}
	if !reflect.DeepEqual(rec.UPIIDs, []string{"x@ybl"}) {
		t.Errorf("upi ids = %v", rec.UPIIDs)
	}
	if len(rec.URLs) != 0 || rec.URLs == nil {
		t.Errorf("urls must be empty non-nil, got %#v", rec.URLs)
	}
}

func TestLLMExtractor_MalformedJSON(t *testing.T) {
	srv := chatCompletionStub(t, "sorry, I cannot help with that")

	le := NewLLMExtractor(LLMOptions{Model: "test", BaseURL: srv.URL}, 2*time.Second)
	if _, err := le.Extract(context.Background(), "some text"); err == nil {
		t.Fatal("non-JSON response must be an error")
	}
}

func TestHybridExtractor_FallsBackOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)
	remote := NewLLMExtractor(LLMOptions{Model: "test", BaseURL: srv.URL}, 2*time.Second)

	he := NewHybridExtractor(remote, nil)
	rec, err := he.Extract(context.Background(), "Send 5000 to rahul123@upi urgently, your KYC is blocked")
	if err != nil {
		t.Fatalf("hybrid must never error: %v", err)
	}
	if !reflect.DeepEqual(rec.UPIIDs, []string{"rahul123@upi"}) {
		t.Errorf("fallback upi ids = %v", rec.UPIIDs)
	}
}

func TestHybridExtractor_FallsBackOnEmptyRemote(t *testing.T) {
	srv := chatCompletionStub(t, `{"bankAccounts":[],"upiIds":[],"phishingLinks":[],"phoneNumbers":[]}`)
	remote := NewLLMExtractor(LLMOptions{Model: "test", BaseURL: srv.URL}, 2*time.Second)

	he := NewHybridExtractor(remote, nil)
	rec, _ := he.Extract(context.Background(), "call 9876543210 now")
	if !reflect.DeepEqual(rec.PhoneNumbers, []string{"9876543210"}) {
		t.Errorf("patterns should recover fields the model missed, got %v", rec.PhoneNumbers)
	}
}
