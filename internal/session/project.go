package session

import (
	"github.com/samber/lo"

	"github.com/DouaaHasan/placesharer-cli/internal/models"
)

// ViewModel is everything the rendering layer needs, derived from one
// snapshot. Building it has no side effects and touches no network.
type ViewModel struct {
	ShowContacts bool
	ShowThread   bool
	Header       string
	Contacts     []models.Corresponder
	Thread       []models.Message
	ActiveID     string
	NoContacts   bool
	EmptyThread  bool
	Revision     uint64
}

// Project derives the view model from a session snapshot. On a narrow
// viewport only the snapshot's front pane is visible; wide viewports
// show both panes side by side.
func Project(snap Snapshot, narrow bool) ViewModel {
	vm := ViewModel{
		Contacts:    snap.Contacts,
		Thread:      snap.Thread,
		ActiveID:    snap.ActiveID,
		NoContacts:  len(snap.Contacts) == 0,
		EmptyThread: len(snap.Thread) == 0,
		Revision:    snap.Revision,
	}

	if narrow {
		vm.ShowContacts = snap.Pane == models.PaneContacts
		vm.ShowThread = snap.Pane == models.PaneThread
	} else {
		vm.ShowContacts = true
		vm.ShowThread = true
	}

	if snap.ActiveID != "" {
		if active, ok := lo.Find(snap.Contacts, func(c models.Corresponder) bool {
			return c.ID == snap.ActiveID
		}); ok {
			vm.Header = "with " + active.Name
		}
	}
	return vm
}
