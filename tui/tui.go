package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/samaelod/dronecmd/config"
	"github.com/samaelod/dronecmd/engine"
)

const defaultScript = "command\ntakeoff\ndelay 5\nland"

func New(version string, eng *engine.Engine, cfg *config.Config, path, src string) Model {
	if cfg == nil {
		cfg = config.Default()
	}
	if src == "" && path == "" {
		src = defaultScript
	}

	m := Model{
		screen:      screenConsole,
		engine:      eng,
		cfg:         cfg,
		editor:      newEditor(src),
		drones:      newDroneList(eng.Drones()),
		files:       newPicker(openableTypes()),
		logViewport: newLogViewport(),
		focus:       focusEditor,
		scriptPath:  path,
		version:     version,
	}
	m.logViewport.SetContent("Ready. ctrl+r runs on all drones.")
	return m
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(tick(), waitForLog(m.engine.Log))
}

func Run(version string, eng *engine.Engine, cfg *config.Config, path, src string) error {
	p := tea.NewProgram(New(version, eng, cfg, path, src), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
