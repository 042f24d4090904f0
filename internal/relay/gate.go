package relay

// Verdict records why the gate admitted a message.
type Verdict int

const (
	// VerdictExempt means the message kind bypasses the secret check.
	VerdictExempt Verdict = iota
	// VerdictSecretFixed means the message set the topic's secret.
	VerdictSecretFixed
	// VerdictMatched means the message carried the topic's secret.
	VerdictMatched
)

func (v Verdict) String() string {
	switch v {
	case VerdictExempt:
		return "exempt"
	case VerdictSecretFixed:
		return "secret-fixed"
	case VerdictMatched:
		return "matched"
	default:
		return "unknown"
	}
}

// DefaultGateExemptKinds lists kinds admitted without a secret check.
//
// This is an access-control decision, not an oversight: any client can send a
// form-data message to a topic without knowing its secret. Operators can narrow
// the list through configuration.
var DefaultGateExemptKinds = []string{KindFormData}

// Gate decides whether an inbound message may be relayed on a topic.
type Gate struct {
	exempt map[string]struct{}
}

// NewGate builds a gate that lets the given kinds through unconditionally.
func NewGate(exemptKinds ...string) *Gate {
	return &Gate{exempt: setOf(exemptKinds)}
}

// Admit evaluates m against t's secret. The caller must hold t.mu. The first
// admitted non-empty secret becomes the topic's secret; later evaluations never
// change it. An unset secret and an absent one compare equal.
func (g *Gate) Admit(t *Topic, m *Message) (Verdict, error) {
	if _, ok := g.exempt[m.Kind]; ok {
		return VerdictExempt, nil
	}
	if t.secret == "" && m.Secret != "" {
		t.secret = m.Secret
		return VerdictSecretFixed, nil
	}
	if m.Secret == t.secret {
		return VerdictMatched, nil
	}
	return 0, ErrWrongSecret
}

func setOf(items []string) map[string]struct{} {
	s := make(map[string]struct{}, len(items))
	for _, it := range items {
		if it != "" {
			s[it] = struct{}{}
		}
	}
	return s
}
