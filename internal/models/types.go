package models

// Corresponder is a person the current user has an existing message
// thread with. List order is whatever the backend returns (most recent
// activity first); the client never re-sorts it.
type Corresponder struct {
	ID        string
	Name      string
	AvatarURL string
}

// Message is one unit of conversation content. A pending message
// carries a locally generated placeholder ID until the backend assigns
// the real one.
type Message struct {
	ID      string
	Text    string
	IsSent  bool
	Pending bool
	Failed  bool
}

// Pane identifies which half of the messages screen is in front. On
// narrow viewports only one pane is shown at a time.
type Pane int

const (
	PaneContacts Pane = iota
	PaneThread
)

// Phase is the session controller's current state.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseLoadingContacts
	PhaseConversationActive
	PhaseSending
	PhaseDeleting
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseLoadingContacts:
		return "loading-contacts"
	case PhaseConversationActive:
		return "conversation-active"
	case PhaseSending:
		return "sending"
	case PhaseDeleting:
		return "deleting"
	default:
		return "unknown"
	}
}
