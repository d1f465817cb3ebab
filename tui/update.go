package tui

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/samaelod/dronecmd/engine"
	"github.com/samaelod/dronecmd/lua"
	"github.com/samaelod/dronecmd/pcapreader"
)

func openableTypes() []string {
	types := make([]string, 0, len(scriptTypes)+len(captureTypes))
	types = append(types, scriptTypes...)
	return append(types, captureTypes...)
}

func openLogsInEditor(logContent string) tea.Cmd {
	f, err := os.CreateTemp("", "dronecmd-logs-*.log")
	if err != nil {
		return func() tea.Msg { return errMsg{err} }
	}

	_, err = f.WriteString(logContent)
	f.Close()
	if err != nil {
		return func() tea.Msg { return errMsg{err} }
	}
	tempPath := f.Name()

	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = "nano"
	}
	c := exec.Command(editor, tempPath)
	return tea.ExecProcess(c, func(err error) tea.Msg {
		os.Remove(tempPath)
		return nil
	})
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}

	case tickMsg:
		m.refreshDrones()
		return m, tick()

	case logMsg:
		if m.engine.Log != nil {
			m.logContent = m.engine.Log.ReadAll()
			m.logViewport.SetContent(m.logContent)
			m.logViewport.GotoBottom()
			return m, waitForLog(m.engine.Log)
		}
		return m, nil

	case scriptLoadedMsg:
		m.editor.SetValue(msg.src)
		m.scriptPath = msg.path
		m.status = "opened " + filepath.Base(msg.path)
		m.screen = screenConsole
		m.setFocus(focusEditor)
		return m, nil

	case savedMsg:
		m.status = "saved " + msg.path
		return m, nil

	case errMsg:
		m.err = msg.err
		m.status = "error: " + msg.err.Error()
		return m, nil
	}

	switch m.screen {
	case screenFilePicker:
		return m.updateFilePicker(msg)
	default:
		return m.updateConsole(msg)
	}
}

func (m Model) updateFilePicker(msg tea.Msg) (tea.Model, tea.Cmd) {
	if k, ok := msg.(tea.KeyMsg); ok && k.String() == "esc" {
		m.screen = screenConsole
		return m, nil
	}

	if k, ok := msg.(tea.KeyMsg); ok && k.String() == "enter" {
		if fi, ok := m.files.current(); ok && !fi.isDir {
			if !m.files.openable() {
				return m, nil
			}
			return m, loadScriptCmd(fi.path, m.cfg.CapturePort)
		}
	}

	var cmd tea.Cmd
	m.files, cmd = m.files.Update(msg)
	return m, cmd
}

func (m Model) updateConsole(msg tea.Msg) (tea.Model, tea.Cmd) {
	if k, ok := msg.(tea.KeyMsg); ok {
		switch k.String() {
		case "tab":
			m.setFocus((m.focus + 1) % focusCount)
			return m, nil
		case "shift+tab":
			m.setFocus((m.focus + focusCount - 1) % focusCount)
			return m, nil

		case "ctrl+r":
			return m.run(engine.AllDrones)
		case "ctrl+t":
			return m.run(m.selectedDrone())
		case "ctrl+x":
			m.engine.Stop()
			m.status = "stopping..."
			return m, nil

		case "ctrl+o":
			m.files = newPicker(openableTypes())
			m.resize()
			m.screen = screenFilePicker
			return m, nil
		case "ctrl+s":
			return m, saveScriptCmd(m.editor.Value(), m.scriptPath, m.cfg.RecentDir)
		case "ctrl+e":
			return m, openLogsInEditor(m.logContent)
		}

		switch m.focus {
		case focusDrones:
			if k.String() == "enter" {
				idx := m.selectedDrone()
				m.engine.Select(idx)
				m.status = fmt.Sprintf("selected drone %d", idx)
				return m, nil
			}
		case focusLogs:
			switch k.String() {
			case "g":
				m.logViewport.GotoTop()
				return m, nil
			case "G":
				m.logViewport.GotoBottom()
				return m, nil
			}
		}
	}

	var cmd tea.Cmd
	switch m.focus {
	case focusEditor:
		m.editor, cmd = m.editor.Update(msg)
	case focusDrones:
		m.drones, cmd = m.drones.Update(msg)
	case focusLogs:
		m.logViewport, cmd = m.logViewport.Update(msg)
	}
	return m, cmd
}

// run snapshots the editor text and hands it to the engine.
func (m Model) run(target int) (tea.Model, tea.Cmd) {
	src := m.editor.Value()
	if err := m.engine.Start(src, target); err != nil {
		if errors.Is(err, engine.ErrBusy) {
			m.status = "a script is already running (ctrl+x to stop)"
		} else {
			m.status = "error: " + err.Error()
		}
		return m, nil
	}

	m.running = true
	if target == engine.AllDrones {
		m.status = "running on all drones"
	} else {
		m.status = fmt.Sprintf("running on drone %d", target)
	}
	return m, nil
}

func (m Model) selectedDrone() int {
	if d, ok := m.drones.SelectedItem().(droneItem); ok {
		return d.Index
	}
	return engine.AllDrones
}

func (m *Model) setFocus(f focus) {
	m.focus = f
	if f == focusEditor {
		m.editor.Focus()
	} else {
		m.editor.Blur()
	}
	m.resize()
}

func (m *Model) refreshDrones() {
	idx := m.drones.Index()
	m.drones.SetItems(droneItems(m.engine.Drones()))
	m.drones.Select(idx)

	running := m.engine.IsRunning()
	if m.running && !running {
		rep, err := m.engine.LastReport()
		switch {
		case err != nil:
			m.status = fmt.Sprintf("run aborted after %d lines: %v", rep.Lines, err)
		case len(rep.Errors) > 0:
			m.status = fmt.Sprintf("run finished: %d commands, %d errors", rep.Commands, len(rep.Errors))
		default:
			m.status = fmt.Sprintf("run finished: %d commands in %s", rep.Commands, rep.Elapsed.Round(time.Millisecond))
		}
	}
	m.running = running
}

// resize recomputes component sizes; the split must match View.
func (m *Model) resize() {
	if m.width-4 < minWindowWidth || m.height-4 < minWindowHeight {
		return
	}

	windowWidth := m.width - 4
	availHeight := m.height - 4 - 1 - footerHeight

	listWidth := listWidthFor(windowWidth)
	rightWidth := windowWidth - listWidth

	m.drones.SetSize(listWidth-4, availHeight-4)
	m.files.SetSize(windowWidth/3-4, m.height-7)

	editorHeight, logsHeight := splitRight(availHeight, m.focus)
	m.editor.SetWidth(rightWidth - 4)
	m.editor.SetHeight(max(editorHeight-4, 3))

	m.logViewport.Width = rightWidth - 7
	m.logViewport.Height = max(logsHeight-4, 2)
}

func listWidthFor(windowWidth int) int {
	w := defaultListWidth
	if w > windowWidth/3 {
		w = windowWidth / 3
	}
	if w < minListWidth {
		w = minListWidth
	}
	return w
}

// splitRight gives the focused panel of the right column more room.
func splitRight(avail int, f focus) (editor, logs int) {
	switch f {
	case focusLogs:
		logs = avail * 60 / 100
	default:
		logs = avail * 30 / 100
	}
	return avail - logs, logs
}

func loadScriptCmd(path string, port int) tea.Cmd {
	return func() tea.Msg {
		lower := strings.ToLower(path)
		if isCapture(lower) {
			c, err := pcapreader.ReadScript(path, port)
			if err != nil {
				return errMsg{fmt.Errorf("capture %s: %w", filepath.Base(path), err)}
			}
			return scriptLoadedMsg{path: path, src: c.Script}
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return errMsg{err}
		}
		return scriptLoadedMsg{path: path, src: string(data)}
	}
}

func saveScriptCmd(src, path, recentDir string) tea.Cmd {
	return func() tea.Msg {
		newPath, err := lua.SaveToRecent(src, path, recentDir)
		if err != nil {
			return errMsg{err}
		}
		return savedMsg{path: newPath}
	}
}

type scriptLoadedMsg struct {
	path string
	src  string
}

type savedMsg struct{ path string }
type errMsg struct{ err error }
type logMsg struct{}
type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func waitForLog(logger *engine.Logger) tea.Cmd {
	return func() tea.Msg {
		ch := logger.Updated()
		if ch == nil {
			return nil
		}
		if _, ok := <-ch; !ok {
			return nil
		}
		return logMsg{}
	}
}
