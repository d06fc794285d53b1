package intel

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync"
	"testing"
	"time"
)

// captureSink records dispatched reports for assertions. DispatchAsync runs
// inline, so by the time Process returns the report is visible.
type captureSink struct {
	mu      sync.Mutex
	reports []Report
}

func (c *captureSink) DispatchAsync(report Report) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reports = append(c.reports, report)
}

func (c *captureSink) captured() []Report {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Report, len(c.reports))
	copy(out, c.reports)
	return out
}

func TestPipeline_ScamMessageFullCycle(t *testing.T) {
	ctx := context.Background()
	sink := &captureSink{}
	p := NewPipeline(PipelineOptions{Sink: sink})

	reply, err := p.Process(ctx, "s1", Message{Text: "Send 5000 to rahul123@upi urgently, your KYC is blocked"})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if reply == "" {
		t.Fatal("a reply must always be produced")
	}

	s, _ := p.Store().Snapshot(ctx, "s1")
	if !s.ScamDetected {
		t.Error("scam flag not set")
	}
	if s.ScamType != ScamTypeUPIPayment {
		t.Errorf("scam type = %s, want %s", s.ScamType, ScamTypeUPIPayment)
	}
	if !reflect.DeepEqual(s.Intelligence.UPIIDs, []string{"rahul123@upi"}) {
		t.Errorf("upi ids = %v", s.Intelligence.UPIIDs)
	}
	if s.MessageCount() != 2 {
		t.Errorf("count = %d, want scammer message plus agent reply", s.MessageCount())
	}
	if s.Messages[0].Sender != RoleScammer || s.Messages[1].Sender != RoleAgent {
		t.Errorf("message roles wrong: %+v", s.Messages)
	}

	// A UPI id is significant intelligence, so the report fires without
	// waiting for the message threshold.
	reports := sink.captured()
	if len(reports) != 1 {
		t.Fatalf("reports = %d, want 1", len(reports))
	}
	r := reports[0]
	if r.ScamType != ScamTypeUPIPayment || !r.ScamDetected {
		t.Errorf("report header: %+v", r)
	}
	if !reflect.DeepEqual(r.ExtractedIntelligence.UPIIDs, []string{"rahul123@upi"}) {
		t.Errorf("report upi ids = %v", r.ExtractedIntelligence.UPIIDs)
	}
	if !s.Reported {
		t.Error("session must be marked reported")
	}
}

func TestPipeline_BenignMessageSkipsAnalysis(t *testing.T) {
	ctx := context.Background()
	sink := &captureSink{}
	p := NewPipeline(PipelineOptions{Sink: sink, Trigger: NewTrigger(2)})

	for i := 0; i < 4; i++ {
		reply, err := p.Process(ctx, "s1", Message{Text: "Hello, how is the weather there?"})
		if err != nil {
			t.Fatalf("Process: %v", err)
		}
		if reply == "" {
			t.Fatal("benign messages still get a reply")
		}
	}

	s, _ := p.Store().Snapshot(ctx, "s1")
	if s.ScamDetected || s.ScamType != "" || s.Reported {
		t.Errorf("benign session must stay unanalyzed: %+v", s)
	}
	if s.MessageCount() != 8 {
		t.Errorf("count = %d, want 8", s.MessageCount())
	}
	if len(sink.captured()) != 0 {
		t.Error("benign sessions never report, even past the threshold")
	}
}

func TestPipeline_ThresholdTrigger(t *testing.T) {
	ctx := context.Background()
	sink := &captureSink{}
	p := NewPipeline(PipelineOptions{Sink: sink, Trigger: NewTrigger(6)})

	// No extractable identifiers, so only the message count can fire.
	for i := 0; i < 5; i++ {
		p.Process(ctx, "s1", Message{Text: "your account is blocked, act now"})
	}

	reports := sink.captured()
	if len(reports) != 1 {
		t.Fatalf("reports = %d, want exactly 1", len(reports))
	}
	if reports[0].TotalMessagesExchanged < 6 {
		t.Errorf("report fired before threshold: %d", reports[0].TotalMessagesExchanged)
	}
	if reports[0].ScamType != ScamTypeBankKYC {
		t.Errorf("report type = %s, want %s", reports[0].ScamType, ScamTypeBankKYC)
	}
}

func TestPipeline_IntelligenceTriggerMidConversation(t *testing.T) {
	ctx := context.Background()
	sink := &captureSink{}
	// Threshold high enough that only significant intelligence can fire.
	p := NewPipeline(PipelineOptions{Sink: sink, Trigger: NewTrigger(50)})

	for i := 0; i < 4; i++ {
		p.Process(ctx, "s1", Message{Text: "your account is blocked, verify immediately"})
	}
	if len(sink.captured()) != 0 {
		t.Fatal("no significant intelligence yet, report must not fire")
	}

	p.Process(ctx, "s1", Message{Text: "deposit to account 123456789012 immediately"})

	reports := sink.captured()
	if len(reports) != 1 {
		t.Fatalf("reports = %d, want 1 after the account number lands", len(reports))
	}
	if !reflect.DeepEqual(reports[0].ExtractedIntelligence.BankAccounts, []string{"123456789012"}) {
		t.Errorf("report accounts = %v", reports[0].ExtractedIntelligence.BankAccounts)
	}

	// Conversation continues, but the session stays reported.
	p.Process(ctx, "s1", Message{Text: "did you deposit? your account is blocked"})
	if len(sink.captured()) != 1 {
		t.Error("a session reports at most once")
	}
}

func TestPipeline_RemoteOutageStillAnswers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	opts := LLMOptions{Model: "test", BaseURL: srv.URL}
	sink := &captureSink{}
	p := NewPipeline(PipelineOptions{
		Classifier: NewHybridClassifier(NewLLMClassifier(opts, time.Second), nil),
		Extractor:  NewHybridExtractor(NewLLMExtractor(opts, time.Second), nil),
		Sink:       sink,
	})

	reply, err := p.Process(context.Background(), "s1", Message{Text: "Send 5000 to rahul123@upi urgently, your KYC is blocked"})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if reply == "" {
		t.Fatal("reply must survive a full remote outage")
	}

	s, _ := p.Store().Snapshot(context.Background(), "s1")
	if s.ScamType != ScamTypeUPIPayment {
		t.Errorf("fallback classification = %s", s.ScamType)
	}
	if !reflect.DeepEqual(s.Intelligence.UPIIDs, []string{"rahul123@upi"}) {
		t.Errorf("fallback extraction = %v", s.Intelligence.UPIIDs)
	}
}

func TestPipeline_DefaultSenderIsScammer(t *testing.T) {
	ctx := context.Background()
	p := NewPipeline(PipelineOptions{Sink: &captureSink{}})

	p.Process(ctx, "s1", Message{Text: "hello there"})
	s, _ := p.Store().Snapshot(ctx, "s1")
	if s.Messages[0].Sender != RoleScammer {
		t.Errorf("sender = %s, want %s", s.Messages[0].Sender, RoleScammer)
	}
	if s.Messages[1].Timestamp == "" {
		t.Error("agent reply must carry a timestamp")
	}
}

func TestPipeline_SessionsIsolated(t *testing.T) {
	ctx := context.Background()
	sink := &captureSink{}
	p := NewPipeline(PipelineOptions{Sink: sink})

	p.Process(ctx, "scam", Message{Text: "share your otp now"})
	p.Process(ctx, "clean", Message{Text: "see you at dinner"})

	scam, _ := p.Store().Snapshot(ctx, "scam")
	clean, _ := p.Store().Snapshot(ctx, "clean")
	if !scam.ScamDetected {
		t.Error("scam session not flagged")
	}
	if clean.ScamDetected {
		t.Error("detection leaked across sessions")
	}
}

func TestPipeline_ConcurrentMessagesOneReport(t *testing.T) {
	ctx := context.Background()
	sink := &captureSink{}
	p := NewPipeline(PipelineOptions{Sink: sink, Trigger: NewTrigger(2)})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			p.Process(ctx, "s1", Message{Text: fmt.Sprintf("urgent, verify your account %d", n)})
		}(i)
	}
	wg.Wait()

	if got := len(sink.captured()); got != 1 {
		t.Errorf("concurrent requests produced %d reports, want 1", got)
	}
}
