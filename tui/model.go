package tui

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/samaelod/dronecmd/config"
	"github.com/samaelod/dronecmd/engine"
	"github.com/samaelod/dronecmd/types"
)

type screen int

const (
	screenConsole screen = iota
	screenFilePicker
)

type focus int

const (
	focusEditor focus = iota
	focusDrones
	focusLogs
	focusCount
)

type Model struct {
	screen screen
	engine *engine.Engine
	cfg    *config.Config

	editor      textarea.Model
	drones      list.Model
	logViewport viewport.Model
	files       picker
	focus       focus

	width      int
	height     int
	scriptPath string
	status     string
	err        error
	logContent string
	running    bool

	version string
}

const (
	minWindowWidth   = 80
	minWindowHeight  = 20
	defaultListWidth = 34
	minListWidth     = 24
	footerHeight     = 3
	refreshInterval  = 250 * time.Millisecond
)

func newEditor(src string) textarea.Model {
	ta := textarea.New()
	ta.Placeholder = "# one command per line: takeoff, 0 > cw 90, land@, await, delay 3"
	ta.ShowLineNumbers = true
	ta.CharLimit = 0
	ta.SetValue(src)
	ta.Focus()
	return ta
}

func newLogViewport() viewport.Model {
	return viewport.New(10, 10)
}

type droneItem engine.DroneView

func (d droneItem) Title() string {
	return fmt.Sprintf("[%d] %s", d.Index, d.ID)
}
func (d droneItem) Description() string { return d.Remote }
func (d droneItem) FilterValue() string { return d.ID }

func newDroneList(views []engine.DroneView) list.Model {
	l := list.New(droneItems(views), droneDelegate{}, defaultListWidth, 10)
	l.SetShowTitle(false)
	l.SetShowHelp(false)
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(false)
	return l
}

func droneItems(views []engine.DroneView) []list.Item {
	items := make([]list.Item, 0, len(views))
	for _, v := range views {
		items = append(items, droneItem(v))
	}
	return items
}

type droneDelegate struct{}

func (d droneDelegate) Height() int                               { return 2 }
func (d droneDelegate) Spacing() int                              { return 0 }
func (d droneDelegate) Update(msg tea.Msg, m *list.Model) tea.Cmd { return nil }
func (d droneDelegate) Render(w io.Writer, m list.Model, index int, listItem list.Item) {
	i, ok := listItem.(droneItem)
	if !ok {
		return
	}

	title := fmt.Sprintf("[%d] %s", i.Index, i.ID)
	detail := fmt.Sprintf("%s blk:%d q:%d %s", statusStyle(i.Status).Render(i.Status.String()), i.Blocks, i.Pending, i.Response)

	if index == m.Index() {
		title = styleSelected.Render("> " + title)
	} else {
		title = lipgloss.NewStyle().Foreground(colorText).Render("  " + title)
	}
	fmt.Fprint(w, title+"\n    "+styleSubtext.Render(detail))
}

func statusStyle(s types.DroneStatus) lipgloss.Style {
	switch s {
	case types.StatusBusy:
		return lipgloss.NewStyle().Foreground(colorSecondary)
	case types.StatusAcked:
		return lipgloss.NewStyle().Foreground(colorSuccess)
	case types.StatusError:
		return lipgloss.NewStyle().Foreground(colorError)
	}
	return lipgloss.NewStyle().Foreground(colorSubtext)
}
