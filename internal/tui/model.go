// Package tui is a terminal transport controller for the player: keyboard
// transport, a live status panel and a low-resolution frame preview.
package tui

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fishannotator/reel/internal/decoder"
	"github.com/fishannotator/reel/internal/player"
)

const (
	opTimeout      = 10 * time.Second
	refreshEvery   = 250 * time.Millisecond
	defaultPreview = 48
)

// Controller is the transport surface the TUI drives.
type Controller interface {
	Load(ctx context.Context, path string) error
	Play(ctx context.Context) error
	PlayReverse(ctx context.Context) error
	Stop(ctx context.Context) error
	Seek(ctx context.Context, frame int64) error
	StepForward(ctx context.Context) error
	StepBackward(ctx context.Context) error
	SpeedUp(ctx context.Context) error
	SlowDown(ctx context.Context) error
	Snapshot() player.Snapshot
	Subscribe() (<-chan player.Event, func())
}

type (
	eventMsg  struct{ ev player.Event }
	closedMsg struct{}
	tickMsg   time.Time
	opDoneMsg struct {
		op  string
		err error
	}
)

// Model is the bubbletea model of the controller.
type Model struct {
	ctrl   Controller
	path   string
	events <-chan player.Event
	cancel func()

	snap     player.Snapshot
	frame    *decoder.Frame
	preview  string
	previewW int
	loadPct  int
	loading  bool
	status   string
	lastErr  string

	// gotoBuf collects digits after ':' for a frame jump.
	gotoMode bool
	gotoBuf  string

	width    int
	height   int
	quitting bool
}

// New subscribes to ctrl. path, when not empty, is loaded on start.
func New(ctrl Controller, path string) *Model {
	events, cancel := ctrl.Subscribe()
	return &Model{
		ctrl:     ctrl,
		path:     path,
		events:   events,
		cancel:   cancel,
		snap:     ctrl.Snapshot(),
		previewW: defaultPreview,
	}
}

func (m *Model) Init() tea.Cmd {
	cmds := []tea.Cmd{waitEvent(m.events), tickEvery(refreshEvery)}
	if m.path != "" {
		path := m.path
		m.loading = true
		cmds = append(cmds, m.run("load", func(ctx context.Context) error {
			return m.ctrl.Load(ctx, path)
		}))
	}
	return tea.Batch(cmds...)
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.previewW = min(max(16, msg.Width-4), 120)
		m.renderFrame()
		return m, nil

	case tea.KeyMsg:
		return m, m.handleKey(msg)

	case eventMsg:
		m.apply(msg.ev)
		return m, waitEvent(m.events)

	case closedMsg:
		m.status = "player closed"
		return m, nil

	case tickMsg:
		if m.quitting {
			return m, nil
		}
		m.snap = m.ctrl.Snapshot()
		return m, tickEvery(refreshEvery)

	case opDoneMsg:
		if msg.op == "load" {
			m.loading = false
		}
		if msg.err != nil {
			m.lastErr = fmt.Sprintf("%s: %v", msg.op, msg.err)
		}
		m.snap = m.ctrl.Snapshot()
		return m, nil
	}

	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	key := msg.String()

	if m.gotoMode {
		switch {
		case key == "enter":
			m.gotoMode = false
			n, err := strconv.ParseInt(m.gotoBuf, 10, 64)
			m.gotoBuf = ""
			if err != nil {
				return nil
			}
			return m.run("seek", func(ctx context.Context) error { return m.ctrl.Seek(ctx, n) })
		case key == "esc":
			m.gotoMode = false
			m.gotoBuf = ""
		case key == "backspace":
			if m.gotoBuf != "" {
				m.gotoBuf = m.gotoBuf[:len(m.gotoBuf)-1]
			}
		case len(key) == 1 && key[0] >= '0' && key[0] <= '9':
			m.gotoBuf += key
		}
		return nil
	}

	switch key {
	case "q", "ctrl+c":
		m.quitting = true
		m.cancel()
		return tea.Quit
	case " ":
		if m.snap.State == player.Playing {
			return m.run("stop", m.ctrl.Stop)
		}
		return m.run("play", m.ctrl.Play)
	case "r":
		return m.run("reverse", m.ctrl.PlayReverse)
	case "right", ".":
		return m.run("step forward", m.ctrl.StepForward)
	case "left", ",":
		return m.run("step backward", m.ctrl.StepBackward)
	case "up", "+", "=":
		return m.run("speed up", m.ctrl.SpeedUp)
	case "down", "-":
		return m.run("slow down", m.ctrl.SlowDown)
	case "home":
		return m.run("seek", func(ctx context.Context) error { return m.ctrl.Seek(ctx, 0) })
	case "end":
		last := m.snap.LastKnownFrame
		return m.run("seek", func(ctx context.Context) error { return m.ctrl.Seek(ctx, last) })
	case ":":
		m.gotoMode = true
		m.gotoBuf = ""
	}
	return nil
}

// apply folds one player event into the view.
func (m *Model) apply(ev player.Event) {
	switch e := ev.(type) {
	case player.FrameReady:
		m.frame = e.Frame
		m.snap = m.ctrl.Snapshot()
		m.renderFrame()
	case player.LoadStarted:
		m.loading = true
		m.loadPct = 0
		m.lastErr = ""
		m.status = "loading " + e.Path
	case player.LoadProgress:
		m.loadPct = e.Percent
	case player.LoadComplete:
		m.loading = false
		m.status = fmt.Sprintf("loaded %s at %.3g fps", e.Path, e.NativeRate)
	case player.DurationKnown:
		if e.Exact {
			m.status = fmt.Sprintf("end of stream at frame %d", e.TotalFrames-1)
		}
	case player.SpeedChanged:
		m.status = fmt.Sprintf("speed %d%%", e.Percent)
	case player.Error:
		m.loading = false
		m.lastErr = e.Message
		m.frame = nil
		m.preview = ""
	}
}

func (m *Model) renderFrame() {
	if m.frame == nil || m.frame.Image == nil {
		m.preview = ""
		return
	}
	m.preview = renderPreview(m.frame.Image, m.previewW)
}

func (m *Model) View() string {
	if m.quitting {
		return "Bye.\n"
	}

	sections := []string{HeaderStyle.Render("reel  ·  " + m.title())}
	if m.preview != "" {
		sections = append(sections, m.preview)
	}
	sections = append(sections, PanelStyle.Render(m.statusPanel()))
	if m.lastErr != "" {
		sections = append(sections, ErrorStyle.Render("error: "+m.lastErr))
	} else if m.status != "" {
		sections = append(sections, HelpStyle.Render(m.status))
	}
	if m.gotoMode {
		sections = append(sections, ValueStyle.Render("go to frame: "+m.gotoBuf+"▌"))
	}
	sections = append(sections, HelpStyle.Render(helpLine))

	return lipgloss.JoinVertical(lipgloss.Left, sections...) + "\n"
}

const helpLine = "space play/stop · r reverse · ←/→ step · ↑/↓ speed · home/end · : go to · q quit"

func (m *Model) title() string {
	if m.snap.Path == "" {
		return "no video"
	}
	return m.snap.Path
}

func (m *Model) statusPanel() string {
	s := m.snap
	row := func(label, value string) string {
		return LabelStyle.Render(label) + ValueStyle.Render(value)
	}

	rows := []string{row("state", stateLabel(s))}
	if m.loading {
		rows = append(rows, row("loading", fmt.Sprintf("%d%%", m.loadPct)))
	}
	if s.Loaded() {
		last := s.LastKnownFrame
		total := "?"
		if s.EndOfStreamKnown || s.TotalFrames > 0 {
			total = strconv.FormatInt(last, 10)
		}
		rows = append(rows,
			row("frame", fmt.Sprintf("%d / %s", s.Frame, total)),
			row("time", s.Timecode()),
			row("speed", fmt.Sprintf("%d%%", s.SpeedPercent())),
			row("size", fmt.Sprintf("%dx%d @ %.3g fps", s.Width, s.Height, s.NativeRate)),
			progressBar(s.Frame, last, 40),
		)
	}
	return strings.Join(rows, "\n")
}

func stateLabel(s player.Snapshot) string {
	switch s.State {
	case player.Playing:
		arrow := "▶"
		if s.Direction == player.Backward {
			arrow = "◀"
		}
		return PlayingStyle.Render(arrow + " playing")
	case player.Stopped:
		return StoppedStyle.Render("■ stopped")
	default:
		return IdleStyle.Render("idle")
	}
}

// run executes a transport operation off the UI goroutine.
func (m *Model) run(name string, op func(context.Context) error) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		return opDoneMsg{op: name, err: op(ctx)}
	}
}

func waitEvent(ch <-chan player.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return closedMsg{}
		}
		return eventMsg{ev: ev}
	}
}

func tickEvery(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Run drives ctrl from the terminal until the user quits or ctx ends.
func Run(ctx context.Context, ctrl Controller, path string, opts ...tea.ProgramOption) error {
	m := New(ctrl, path)
	defer m.cancel()

	opts = append([]tea.ProgramOption{tea.WithAltScreen(), tea.WithContext(ctx)}, opts...)
	_, err := tea.NewProgram(m, opts...).Run()
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}
