package relay

import "errors"

var (
	// ErrMalformed reports an envelope missing required fields.
	ErrMalformed = errors.New("malformed event envelope")

	// ErrUnsupported reports an envelope matching no classification rule.
	ErrUnsupported = errors.New("unsupported entity/event combination")

	// ErrNotFound reports a root or linked entity absent from the tracking
	// source. Nothing was delivered.
	ErrNotFound = errors.New("entity not found in tracking source")
)

// Outcome is the terminal disposition of one handled envelope. The transport
// layer maps it to a response status; per-recipient lookup and send failures
// never change the Outcome (best-effort fan-out).
type Outcome int

const (
	// OutcomeDelivered: recipients were resolved and sends were attempted.
	OutcomeDelivered Outcome = iota
	// OutcomeIgnored: valid event that this relay deliberately does not act
	// on (e.g. a Task change that isn't an assignment change).
	OutcomeIgnored
	// OutcomeNoRecipients: resolution succeeded but nobody is eligible
	// (e.g. a Version with no linked Shot). Distinct from OutcomeNotFound.
	OutcomeNoRecipients
	// OutcomeNotFound: the root or linked entity does not exist.
	OutcomeNotFound
	// OutcomeRejected: unsupported or malformed event.
	OutcomeRejected
	// OutcomeError: unexpected internal failure (tracking source down,
	// panic caught at the boundary). Nothing partial is persisted; the
	// relay is stateless across requests.
	OutcomeError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDelivered:
		return "delivered"
	case OutcomeIgnored:
		return "ignored"
	case OutcomeNoRecipients:
		return "no_recipients"
	case OutcomeNotFound:
		return "not_found"
	case OutcomeRejected:
		return "rejected"
	case OutcomeError:
		return "error"
	default:
		return "unknown"
	}
}
