package mediation

// Status is a case's position in the mediation workflow.
type Status string

const (
	StatusQueued              Status = "Queued"
	StatusAwaitingResponse    Status = "Awaiting Response"
	StatusAccepted            Status = "Accepted"
	StatusRejected            Status = "Rejected"
	StatusPanelCreated        Status = "Panel Created"
	StatusMediationInProgress Status = "Mediation in Progress"
	StatusResolved            Status = "Resolved"
	StatusUnresolved          Status = "Unresolved"
)

// Statuses lists every workflow status in lifecycle order.
var Statuses = []Status{
	StatusQueued,
	StatusAwaitingResponse,
	StatusAccepted,
	StatusRejected,
	StatusPanelCreated,
	StatusMediationInProgress,
	StatusResolved,
	StatusUnresolved,
}

// ParseStatus returns the Status named by s, or false if s is not a workflow status.
func ParseStatus(s string) (Status, bool) {
	for _, st := range Statuses {
		if string(st) == s {
			return st, true
		}
	}
	return "", false
}

// Terminal reports whether no further engine-driven transition is expected.
func (s Status) Terminal() bool {
	return s == StatusResolved || s == StatusUnresolved
}

// openFrom lists the states a panel may be formed in. Responses, scheduling
// and resolution accept any current status, as does the administrative override.
var openFrom = nonTerminal()

func nonTerminal() []Status {
	out := make([]Status, 0, len(Statuses))
	for _, s := range Statuses {
		if !s.Terminal() {
			out = append(out, s)
		}
	}
	return out
}

func statusStrings(set []Status) []string {
	if set == nil {
		return nil
	}
	out := make([]string, len(set))
	for i, s := range set {
		out[i] = string(s)
	}
	return out
}
