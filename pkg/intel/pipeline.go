package intel

import (
	"context"
	"log"
	"time"
)

// ReportSink receives finished reports off the reply path.
type ReportSink interface {
	DispatchAsync(report Report)
}

// DispatchAsync for LogDispatcher runs inline; logging cannot block long
// enough to matter.
func (d LogDispatcher) DispatchAsync(report Report) {
	if err := d.Dispatch(context.Background(), report); err != nil {
		log.Printf("[REPORT] log dispatch failed: %v", err)
	}
}

// Pipeline composes the per-message processing cycle: update session →
// detect → classify → extract → merge → persona reply → report trigger.
// The session store is the only component with cross-request memory.
type Pipeline struct {
	store      SessionStore
	detector   *Detector
	classifier Classifier
	extractor  Extractor
	persona    *Persona
	trigger    Trigger
	sink       ReportSink
}

// PipelineOptions carries the pipeline's collaborators. Zero fields get
// local defaults: rule classifier, pattern extractor, built-in persona,
// memory store, log sink.
type PipelineOptions struct {
	Store      SessionStore
	Classifier Classifier
	Extractor  Extractor
	Persona    *Persona
	Trigger    Trigger
	Sink       ReportSink
}

// NewPipeline builds the orchestrator. The hybrid-vs-local strategy decision
// was made by whoever constructed the classifier and extractor; the pipeline
// only ever calls the contracts.
func NewPipeline(opts PipelineOptions) *Pipeline {
	if opts.Store == nil {
		opts.Store = NewMemoryStore()
	}
	if opts.Classifier == nil {
		opts.Classifier = NewHybridClassifier(nil, NewRuleClassifier())
	}
	if opts.Extractor == nil {
		opts.Extractor = NewHybridExtractor(nil, NewPatternExtractor())
	}
	if opts.Persona == nil {
		opts.Persona = NewPersona()
	}
	if opts.Trigger.MessageThreshold == 0 {
		opts.Trigger = NewTrigger(0)
	}
	if opts.Sink == nil {
		opts.Sink = LogDispatcher{}
	}
	return &Pipeline{
		store:      opts.Store,
		detector:   NewDetector(),
		classifier: opts.Classifier,
		extractor:  opts.Extractor,
		persona:    opts.Persona,
		trigger:    opts.Trigger,
		sink:       opts.Sink,
	}
}

// Store exposes the session store for the debug surface.
func (p *Pipeline) Store() SessionStore {
	return p.store
}

// Process runs one message through the full cycle and returns the persona
// reply. A reply is always produced: remote failures fall back inside the
// classifier/extractor strategies, store failures degrade to a
// single-message view, and the persona itself has no failure path.
func (p *Pipeline) Process(ctx context.Context, sessionID string, msg Message) (string, error) {
	if msg.Sender == "" {
		msg.Sender = RoleScammer
	}

	if _, err := p.store.Append(ctx, sessionID, msg); err != nil {
		log.Printf("[PIPELINE] append failed for session %s: %v", sessionID, err)
	}

	// Detection gates the expensive work. It is pure and local, so it runs
	// even when every remote collaborator is down.
	scam := p.detector.IsScam(msg.Text)
	if scam {
		log.Printf("[PIPELINE] session %s scam signal (categories: %v)",
			sessionID, p.detector.MatchedCategories(msg.Text))
		if err := p.store.MarkScamDetected(ctx, sessionID); err != nil {
			log.Printf("[PIPELINE] mark detected failed for session %s: %v", sessionID, err)
		}
	}

	session, err := p.store.Snapshot(ctx, sessionID)
	if err != nil {
		log.Printf("[PIPELINE] snapshot failed for session %s: %v", sessionID, err)
		// Degrade to a single-message view so the persona still answers.
		session = Session{ID: sessionID, Messages: []Message{msg}, ScamDetected: scam}
	}

	cls := Classification{Type: ScamTypeUnknown, Source: SourceRules}
	if session.ScamDetected {
		cls = p.classifyAndExtract(ctx, sessionID, session, msg.Text)
	}

	reply := p.persona.Reply(session, cls)

	if _, err := p.store.Append(ctx, sessionID, Message{
		Sender:    RoleAgent,
		Text:      reply,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}); err != nil {
		log.Printf("[PIPELINE] append reply failed for session %s: %v", sessionID, err)
	}

	if session.ScamDetected {
		p.evaluateReport(ctx, sessionID)
	}

	return reply, nil
}

// classifyAndExtract runs the remote-capable stages. Both strategies are
// total; errors here are store errors only. The merge is skipped when the
// request context is already cancelled so a partial cycle never lands
// half-extracted intelligence in the session.
func (p *Pipeline) classifyAndExtract(ctx context.Context, sessionID string, session Session, text string) Classification {
	cls, _ := p.classifier.Classify(ctx, session.ScammerText())
	if err := p.store.SetClassification(ctx, sessionID, cls.Type); err != nil {
		log.Printf("[PIPELINE] set classification failed for session %s: %v", sessionID, err)
	}
	log.Printf("[PIPELINE] session %s classified %s (source=%s)", sessionID, cls.Type, cls.Source)

	rec, _ := p.extractor.Extract(ctx, text)
	if ctx.Err() != nil {
		log.Printf("[PIPELINE] context done before merge for session %s, discarding extraction", sessionID)
		return cls
	}
	if !rec.Empty() {
		if err := p.store.MergeIntelligence(ctx, sessionID, rec); err != nil {
			log.Printf("[PIPELINE] merge failed for session %s: %v", sessionID, err)
		}
	}
	return cls
}

// evaluateReport fires the report exactly once per session. The condition is
// checked on a fresh snapshot and the flag flip is the store's atomic CAS,
// so duplicate deliveries racing on one session cannot both win.
func (p *Pipeline) evaluateReport(ctx context.Context, sessionID string) {
	session, err := p.store.Snapshot(ctx, sessionID)
	if err != nil {
		log.Printf("[PIPELINE] report snapshot failed for session %s: %v", sessionID, err)
		return
	}
	if !p.trigger.ShouldReport(session) {
		return
	}

	won, err := p.store.TryMarkReported(ctx, sessionID)
	if err != nil {
		log.Printf("[PIPELINE] mark reported failed for session %s: %v", sessionID, err)
		return
	}
	if !won {
		return
	}

	report := BuildReport(session)
	log.Printf("[PIPELINE] report triggered for session %s (msgs=%d significant=%v)",
		sessionID, session.MessageCount(), session.Intelligence.HasSignificant())
	p.sink.DispatchAsync(report)
}
