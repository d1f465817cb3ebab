package tui

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/lipgloss"

	"github.com/samaelod/dronecmd/engine"
)

func renderScrollbar(vp viewport.Model, height int) string {
	total := vp.TotalLineCount()
	visible := vp.VisibleLineCount()

	if total <= visible {
		return ""
	}

	trackHeight := height
	if trackHeight < 1 {
		trackHeight = visible
	}

	thumbPos := int(float64(trackHeight-1) * vp.ScrollPercent())
	if thumbPos < 0 {
		thumbPos = 0
	}
	if thumbPos > trackHeight-1 {
		thumbPos = trackHeight - 1
	}

	var sb strings.Builder
	for i := 0; i < trackHeight; i++ {
		if i == thumbPos {
			sb.WriteString(scrollbarThumb.Render("█"))
		} else {
			sb.WriteString(scrollbarTrack.Render("│"))
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

func (m Model) View() string {
	windowWidth := m.width - 4
	windowHeight := m.height - 4

	if windowWidth < minWindowWidth || windowHeight < minWindowHeight {
		return styleTooSmall.
			Width(m.width).
			Height(m.height).
			Render("Terminal window is too small.\nPlease resize.")
	}

	appTitle := styleAppTitle.Width(windowWidth).Render("DRONECMD " + m.version)

	var content string
	switch m.screen {
	case screenFilePicker:
		content = lipgloss.JoinVertical(lipgloss.Top, appTitle, m.viewFilePicker(windowWidth, windowHeight-1))
	default:
		content = lipgloss.JoinVertical(lipgloss.Top, appTitle, m.viewConsole(windowWidth, windowHeight-1))
	}

	return styleWindow.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(content)
}

func (m Model) viewFilePicker(width, height int) string {
	listWidth := width / 3
	previewWidth := width - listWidth

	browserColor := colorSecondary
	if m.files.dirHasScripts() {
		browserColor = colorSuccess
	}

	previewColor := colorSecondary
	if fi, ok := m.files.current(); ok && !fi.isDir {
		if m.files.openable() {
			previewColor = colorSuccess
		} else {
			previewColor = colorError
		}
	}

	browserTitle := styleTitle.MarginBottom(1).Render("Open Script")
	browserView := stylePanel.
		BorderForeground(browserColor).
		Width(listWidth - 4).
		Height(height).
		Render(browserTitle + "\n" + m.files.View())

	contentHeight := height - 5
	previewLines := strings.Split(m.files.preview, "\n")
	if contentHeight > 1 && len(previewLines) > contentHeight {
		previewLines = append(previewLines[:contentHeight-1], "...")
	}
	previewTitle := styleTitle.MarginBottom(1).Render("Preview")
	previewView := stylePanel.
		BorderForeground(previewColor).
		Width(previewWidth).
		Height(height).
		Render(previewTitle + "\n" + strings.Join(previewLines, "\n"))

	hint := styleKey.Render("enter") + styleDesc.Render(" open") +
		styleDesc.Render(" • ") + styleKey.Render("esc") + styleDesc.Render(" back")

	return lipgloss.JoinVertical(lipgloss.Top,
		lipgloss.JoinHorizontal(lipgloss.Top, browserView, previewView),
		hint,
	)
}

func (m Model) viewConsole(width, height int) string {
	availHeight := height - footerHeight

	listWidth := listWidthFor(width)
	rightWidth := width - listWidth
	editorHeight, logsHeight := splitRight(availHeight, m.focus)

	// Left column: drones
	selected := "all"
	if idx := m.engine.Selected(); idx != engine.AllDrones {
		selected = fmt.Sprintf("%d", idx)
	}
	dronesTitle := styleTitle.MarginBottom(1).Render(fmt.Sprintf("Drones (%d, run: %s)", len(m.drones.Items()), selected))
	dronesView := stylePanel.
		BorderForeground(m.borderFor(focusDrones)).
		Width(listWidth - 4).
		Height(availHeight - 2).
		Render(dronesTitle + "\n" + m.drones.View())

	// Right top: script editor
	name := "untitled"
	if m.scriptPath != "" {
		name = filepath.Base(m.scriptPath)
	}
	editorTitle := styleTitle.Render("Script: " + name)
	if m.running {
		editorTitle += " " + styleSelected.Render("● RUNNING")
	}
	editorView := stylePanel.
		BorderForeground(m.borderFor(focusEditor)).
		Width(rightWidth).
		Height(editorHeight - 2).
		Render(editorTitle + "\n" + m.editor.View())

	// Right bottom: logs
	logsTitle := styleTitle.Render("Logs")
	scrollbar := scrollbarTrack.Width(1).Render(renderScrollbar(m.logViewport, m.logViewport.Height))
	logsView := stylePanel.
		BorderForeground(m.borderFor(focusLogs)).
		Width(rightWidth).
		Height(logsHeight - 2).
		Render(logsTitle + "\n" + lipgloss.JoinHorizontal(lipgloss.Top, m.logViewport.View(), scrollbar))

	top := lipgloss.JoinHorizontal(lipgloss.Top,
		dronesView,
		lipgloss.JoinVertical(lipgloss.Top, editorView, logsView),
	)

	return lipgloss.JoinVertical(lipgloss.Top, top, m.viewFooter(width))
}

func (m Model) borderFor(f focus) lipgloss.Color {
	if m.focus == f {
		return colorSecondary
	}
	return colorSubtext
}

func (m Model) viewFooter(width int) string {
	sep := styleDesc.Render(" • ")
	key := func(k, desc string) string {
		return styleKey.Render(k) + styleDesc.Render(" "+desc)
	}

	parts := []string{
		key("<tab>", "focus"),
		key("^r", "run all"),
		key("^t", "run selected"),
		key("^x", "stop"),
		key("^o", "open"),
		key("^s", "save"),
		key("^e", "logs"),
		key("^c", "quit"),
	}
	if m.focus == focusDrones {
		parts = append(parts[:1], append([]string{key("enter", "select")}, parts[1:]...)...)
	}
	footer := strings.Join(parts, sep)

	if m.status != "" {
		status := styleSubtext.Render(m.status)
		if m.err != nil && strings.HasPrefix(m.status, "error") {
			status = lipgloss.NewStyle().Foreground(colorError).Render(m.status)
		}
		footer += sep + status
	}

	return lipgloss.NewStyle().
		Border(lipgloss.ThickBorder()).
		BorderForeground(colorSubtext).
		Padding(0, 1).
		Width(width - 2).
		Render(footer)
}
