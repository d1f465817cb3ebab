package tui

import (
	"cmp"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	scriptTypes  = []string{".ds", ".txt"}
	captureTypes = []string{".pcap", ".pcapng", ".cap"}
)

const previewFallbackLines = 10

// picker walks the filesystem for scripts and captures to load into the
// editor.
type picker struct {
	list    list.Model
	dir     string
	preview string
	height  int
	exts    []string
}

type fileItem struct {
	name  string
	path  string
	isDir bool
	size  int64
}

func (i fileItem) Title() string {
	if i.isDir {
		return i.name + "/"
	}
	return i.name
}

func (i fileItem) Description() string {
	if i.isDir {
		return "directory"
	}
	return fmt.Sprintf("%d bytes", i.size)
}

func (i fileItem) FilterValue() string { return i.name }

type pickerDelegate struct{ accepts func(string) bool }

func (d pickerDelegate) Height() int                               { return 1 }
func (d pickerDelegate) Spacing() int                              { return 0 }
func (d pickerDelegate) Update(msg tea.Msg, m *list.Model) tea.Cmd { return nil }
func (d pickerDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	fi, ok := item.(fileItem)
	if !ok {
		return
	}

	label := fi.Title()
	style := lipgloss.NewStyle().Foreground(colorSubtext).Faint(true)
	switch {
	case index == m.Index():
		fmt.Fprint(w, styleSelected.Render("> "+label))
		return
	case fi.isDir:
		style = lipgloss.NewStyle().Foreground(colorText).Bold(true)
	case d.accepts(fi.name):
		style = lipgloss.NewStyle().Foreground(colorPrimary)
	}
	fmt.Fprint(w, style.Render("  "+label))
}

func newPicker(exts []string) picker {
	dir, _ := os.Getwd()
	p := picker{dir: dir, exts: exts}

	l := list.New(nil, pickerDelegate{accepts: p.accepts}, 0, 0)
	l.SetShowTitle(false)
	l.SetShowHelp(false)
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(true)
	p.list = l

	p.load()
	return p
}

func (p picker) accepts(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return slices.Contains(p.exts, ext)
}

// load lists p.dir: parent link first, then directories, then files.
func (p *picker) load() {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		p.preview = "cannot read " + p.dir + ": " + err.Error()
		return
	}

	slices.SortFunc(entries, func(a, b os.DirEntry) int {
		if a.IsDir() != b.IsDir() {
			if a.IsDir() {
				return -1
			}
			return 1
		}
		return cmp.Compare(a.Name(), b.Name())
	})

	var items []list.Item
	if parent := filepath.Dir(p.dir); parent != p.dir {
		items = append(items, fileItem{name: "..", path: parent, isDir: true})
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") {
			continue
		}
		fi := fileItem{name: e.Name(), path: filepath.Join(p.dir, e.Name()), isDir: e.IsDir()}
		if info, err := e.Info(); err == nil {
			fi.size = info.Size()
		}
		items = append(items, fi)
	}

	p.list.SetItems(items)
	p.list.ResetSelected()
	p.refreshPreview()
}

func (p *picker) chdir(dir string) {
	p.dir = dir
	p.load()
}

// current returns the highlighted entry.
func (p picker) current() (fileItem, bool) {
	fi, ok := p.list.SelectedItem().(fileItem)
	return fi, ok
}

// openable reports whether the highlighted entry can be loaded.
func (p picker) openable() bool {
	fi, ok := p.current()
	return ok && !fi.isDir && p.accepts(fi.name)
}

func (p picker) dirHasScripts() bool {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		return false
	}
	return slices.ContainsFunc(entries, func(e os.DirEntry) bool {
		return !e.IsDir() && !strings.HasPrefix(e.Name(), ".") && p.accepts(e.Name())
	})
}

func (p *picker) refreshPreview() {
	fi, ok := p.current()
	switch {
	case !ok:
		p.preview = ""
		return
	case fi.isDir:
		p.preview = "directory " + fi.name
		return
	case !p.accepts(fi.name):
		p.preview = "not a script or capture"
		return
	case isCapture(strings.ToLower(fi.name)):
		p.preview = fmt.Sprintf("capture, %d bytes\n\nSDK commands are recovered into a script on open.", fi.size)
		return
	}

	data, err := os.ReadFile(fi.path)
	if err != nil {
		p.preview = "cannot read file: " + err.Error()
		return
	}

	limit := p.height
	if limit <= 0 {
		limit = previewFallbackLines
	}
	lines := strings.Split(string(data), "\n")
	if len(lines) > limit {
		lines = append(lines[:limit], "...")
	}
	p.preview = strings.Join(lines, "\n")
}

func (p picker) Update(msg tea.Msg) (picker, tea.Cmd) {
	if k, ok := msg.(tea.KeyMsg); ok && p.list.FilterState() != list.Filtering {
		switch k.String() {
		case "enter":
			if fi, ok := p.current(); ok && fi.isDir {
				p.chdir(fi.path)
				return p, nil
			}
		case "backspace", "left":
			if parent := filepath.Dir(p.dir); parent != p.dir {
				p.chdir(parent)
			}
			return p, nil
		}
	}

	var cmd tea.Cmd
	p.list, cmd = p.list.Update(msg)
	p.refreshPreview()
	return p, cmd
}

func isCapture(name string) bool {
	return slices.ContainsFunc(captureTypes, func(ext string) bool {
		return strings.HasSuffix(name, ext)
	})
}

func (p *picker) SetSize(width, height int) {
	p.height = height
	p.list.SetSize(width, height)
}

func (p picker) View() string {
	return p.list.View()
}
