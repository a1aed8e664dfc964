package ui

import (
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/lipgloss"

	"github.com/DouaaHasan/placesharer-cli/internal/models"
)

type contactItem struct {
	contact models.Corresponder
	active  bool
}

func (i contactItem) Title() string {
	if i.active {
		return "● " + i.contact.Name
	}
	return i.contact.Name
}

func (i contactItem) Description() string {
	if i.active {
		return "open conversation"
	}
	return i.contact.ID
}

func (i contactItem) FilterValue() string {
	return i.contact.Name
}

func newContactsList() list.Model {
	delegate := list.NewDefaultDelegate()
	delegate.Styles.SelectedTitle = delegate.Styles.SelectedTitle.
		Foreground(lipgloss.Color("5")).
		Bold(true)
	delegate.Styles.SelectedDesc = delegate.Styles.SelectedDesc.
		Foreground(lipgloss.Color("8"))

	l := list.New([]list.Item{}, delegate, 32, 20)
	l.Title = "Recent"
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(true)
	l.SetShowHelp(false)

	return l
}
