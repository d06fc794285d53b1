package intel

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Conversation stages, keyed off message count. The persona shifts from
// greeting through confusion into detail-probing as the scammer invests more
// turns, which is what keeps them talking long enough to leak identifiers.
const (
	StageInitial  = "initial"
	StageConfused = "confused"
	StageCurious  = "curious"
	StageStalling = "stalling"
	StageDetails  = "details"
)

// Persona generates the outgoing reply for a session. It is purely a
// projection from session + classification state to one string: no remote
// calls, no extraction, no failure path. When everything else is down the
// persona still answers.
type Persona struct {
	Name    string
	generic []string
	stages  map[string][]string
	probes  map[ScamType][]string
}

// personaFile is the YAML override shape for custom reply banks.
type personaFile struct {
	Name    string              `yaml:"name"`
	Generic []string            `yaml:"generic"`
	Stages  map[string][]string `yaml:"stages"`
	Probes  map[string][]string `yaml:"probes"`
}

// NewPersona returns the built-in reply bank: a polite, confused,
// not-tech-savvy target who never quite completes what the scammer asks.
func NewPersona() *Persona {
	return &Persona{
		Name: "Rahul",
		generic: []string{
			"Hello! How can I help you?",
			"Thank you for reaching out.",
			"I understand, please go ahead.",
			"Okay, tell me more.",
			"Sure, I'm listening.",
		},
		stages: map[string][]string{
			StageInitial: {
				"Oh hello ji, who is this speaking?",
				"Yes yes, I am Rahul. What happened?",
				"Haan ji, I am here. What is the matter?",
			},
			StageConfused: {
				"Sorry, I didn't understand properly. Can you explain again?",
				"Arey, my phone network is weak. What did you say?",
				"Wait wait, I am not getting. What is this about?",
				"Haan? What is this OTP thing you are saying?",
				"I am not understanding technical things. Please explain simply.",
			},
			StageCurious: {
				"But why do you need this information?",
				"Who gave you my number?",
				"Which bank are you calling from exactly?",
				"What is your name and employee ID?",
				"Can you tell me your office address?",
			},
			StageStalling: {
				"One minute, let me find my glasses first.",
				"Wait, someone is at the door. Give me 2 minutes.",
				"Hold on, I need to check my phone properly.",
				"My son knows these things better. Should I call him?",
				"Let me write this down. Please speak slowly.",
			},
			StageDetails: {
				"What is the exact amount you are saying?",
				"From which branch are you calling?",
				"What is the reference number for this?",
				"Can you send me this in writing on WhatsApp?",
				"What is your supervisor's name?",
			},
		},
		probes: map[ScamType][]string{
			ScamTypeUPIPayment: {
				"Which UPI ID should I send to? Please spell it slowly, letter by letter.",
				"My UPI app is asking for the full ID again. Can you repeat it?",
			},
			ScamTypePhishing: {
				"The link is not opening on my phone. Can you send it once more?",
				"Which website is this exactly? Let me write down the address.",
			},
			ScamTypeOTPFraud: {
				"I am getting so many messages. Which OTP number are you meaning?",
				"The code is not coming. Which number will it come from?",
			},
			ScamTypeBankKYC: {
				"Which branch is my KYC pending at? I will go there myself.",
				"What is the account number you are seeing on your screen?",
			},
			ScamTypeJob: {
				"What is the company name again? And the salary per month?",
				"Where should I send my documents for this job?",
			},
			ScamTypeLottery: {
				"How much prize money did I win exactly? Which lottery was this?",
				"Where will the prize money come from? Which account?",
			},
		},
	}
}

// LoadPersona reads a YAML reply-bank override. Missing sections keep their
// built-in defaults, so a file can override just one stage.
func LoadPersona(path string) (*Persona, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read persona file: %w", err)
	}

	var pf personaFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("parse persona file: %w", err)
	}

	p := NewPersona()
	if pf.Name != "" {
		p.Name = pf.Name
	}
	if len(pf.Generic) > 0 {
		p.generic = pf.Generic
	}
	for stage, replies := range pf.Stages {
		if len(replies) > 0 {
			p.stages[stage] = replies
		}
	}
	for label, replies := range pf.Probes {
		t, ok := ParseScamType(label)
		if !ok {
			return nil, fmt.Errorf("persona file: unknown scam type %q", label)
		}
		if len(replies) > 0 {
			p.probes[t] = replies
		}
	}
	return p, nil
}

// StageFor maps a message count to a conversation stage.
func StageFor(messageCount int) string {
	switch {
	case messageCount <= 2:
		return StageInitial
	case messageCount <= 4:
		return StageConfused
	case messageCount <= 6:
		return StageCurious
	case messageCount <= 8:
		return StageStalling
	default:
		return StageDetails
	}
}

// Reply selects the outgoing text for the session's current state.
// Deterministic: the first bank entry not yet used in this session wins, and
// the bank wraps by message count once exhausted. Non-scam sessions get a
// generic courtesy reply to keep the conversation alive.
func (p *Persona) Reply(session Session, cls Classification) string {
	bank := p.generic
	if session.ScamDetected {
		stage := StageFor(session.MessageCount())
		bank = p.stages[stage]
		// Once the scammer is invested, probe with type-specific questions
		// that pull payment identifiers into the open.
		if stage == StageDetails {
			if probes, ok := p.probes[cls.Type]; ok && len(probes) > 0 {
				bank = append(append([]string{}, probes...), bank...)
			}
		}
		if len(bank) == 0 {
			bank = p.stages[StageConfused]
		}
	}

	used := make(map[string]struct{})
	for _, m := range session.Messages {
		if m.Sender == RoleAgent {
			used[m.Text] = struct{}{}
		}
	}
	for _, reply := range bank {
		if _, ok := used[reply]; !ok {
			return reply
		}
	}
	return bank[session.MessageCount()%len(bank)]
}
