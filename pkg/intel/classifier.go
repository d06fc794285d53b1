package intel

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"
)

// Classifier assigns one scam-type label to a text. Implementations must be
// total over the error channel: a failed classification is an error return,
// never a panic, and callers recover by falling back.
type Classifier interface {
	Classify(ctx context.Context, text string) (Classification, error)
}

// ============================================================================
// Rule-based classifier (always-available fallback)
// ============================================================================

// scamRule pairs a scam type with the keywords that indicate it.
// Rules are checked in canonical label order and keywords in slice order, so
// classification of a given text is fully deterministic.
type scamRule struct {
	scamType ScamType
	keywords []string
}

var scamRules = []scamRule{
	{ScamTypeUPIPayment, []string{"@upi", "upi", "pay", "transfer"}},
	{ScamTypePhishing, []string{"http", "https", "link"}},
	{ScamTypeOTPFraud, []string{"otp", "code"}},
	{ScamTypeBankKYC, []string{"kyc", "verify account", "blocked"}},
	{ScamTypeJob, []string{"job", "salary", "hiring"}},
	{ScamTypeLottery, []string{"lottery", "prize", "winner"}},
}

// RuleClassifier is the deterministic keyword-set classifier. Pure function
// of the text; the first rule whose keyword set matches wins.
type RuleClassifier struct{}

// NewRuleClassifier returns the rule-based classifier.
func NewRuleClassifier() *RuleClassifier {
	return &RuleClassifier{}
}

// Classify scans the text against each type's keyword set in canonical
// order. Never returns an error.
func (rc *RuleClassifier) Classify(_ context.Context, text string) (Classification, error) {
	normalized := NormalizeText(text)
	if normalized == "" {
		return Classification{Type: ScamTypeUnknown, Source: SourceRules}, nil
	}

	for _, rule := range scamRules {
		for _, kw := range rule.keywords {
			if strings.Contains(normalized, kw) {
				return Classification{Type: rule.scamType, Source: SourceRules}, nil
			}
		}
	}
	return Classification{Type: ScamTypeUnknown, Source: SourceRules}, nil
}

// ============================================================================
// Remote classifier (LLM-backed)
// ============================================================================

const classifierSystemPrompt = `You are a scam classification assistant.
Classify the scam type based on the message content.

Return ONLY one of these labels exactly:
UPI_PAYMENT_SCAM, PHISHING_LINK, OTP_FRAUD, BANK_KYC_FRAUD, JOB_SCAM, LOTTERY_SCAM, UNKNOWN

Do not include any other text, explanation, or punctuation. Return only the label.`

// LLMClassifier asks the remote inference service for a label from the
// closed set. Any response outside the set is a failure, not a crash.
type LLMClassifier struct {
	llm     *llmClient
	timeout time.Duration
}

// NewLLMClassifier creates a remote classifier over the shared inference
// transport. The timeout bounds every call; the remote path must never be
// allowed to block the reply to the scammer.
func NewLLMClassifier(opts LLMOptions, timeout time.Duration) *LLMClassifier {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &LLMClassifier{
		llm:     newLLMClient(opts),
		timeout: timeout,
	}
}

// Classify requests a label for the text. Returns an error when the service
// is unreachable, times out, or answers outside the closed label set.
func (lc *LLMClassifier) Classify(ctx context.Context, text string) (Classification, error) {
	if strings.TrimSpace(text) == "" {
		return Classification{Type: ScamTypeUnknown, Source: SourceRemote}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, lc.timeout)
	defer cancel()

	raw, err := lc.llm.complete(ctx, classifierSystemPrompt,
		fmt.Sprintf("Classify this message:\n\n%s", text), 50)
	if err != nil {
		return Classification{}, err
	}

	label, ok := ParseScamType(raw)
	if !ok {
		return Classification{}, fmt.Errorf("unrecognized label %q", strings.TrimSpace(raw))
	}
	return Classification{Type: label, Source: SourceRemote}, nil
}

// ============================================================================
// Hybrid strategy
// ============================================================================

// HybridClassifier tries the remote path first and falls back to rules on
// any failure, or when the remote answer is UNKNOWN (the rules may still
// recognize a type the model hedged on). The orchestrator only ever sees
// this contract; whether a remote path exists is decided once at startup.
type HybridClassifier struct {
	remote Classifier // nil when no provider is configured
	rules  Classifier
}

// NewHybridClassifier composes the strategy. remote may be nil.
func NewHybridClassifier(remote Classifier, rules Classifier) *HybridClassifier {
	if rules == nil {
		rules = NewRuleClassifier()
	}
	return &HybridClassifier{remote: remote, rules: rules}
}

// Classify is total: it always returns a classification and never an error.
func (hc *HybridClassifier) Classify(ctx context.Context, text string) (Classification, error) {
	if hc.remote != nil {
		result, err := hc.remote.Classify(ctx, text)
		if err == nil && result.Type != ScamTypeUnknown {
			return result, nil
		}
		if err != nil {
			log.Printf("[CLASSIFY] remote path failed, using rules: %v", err)
		}
	}
	return hc.rules.Classify(ctx, text)
}
