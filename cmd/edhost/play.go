package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/ededitor/edhost/driver"
	"github.com/ededitor/edhost/input"
	"github.com/ededitor/edhost/render"
	"github.com/ededitor/edhost/scene"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	funcStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))

	// backgroundStyle matches the light grey the screen is cleared to.
	backgroundStyle = lipgloss.NewStyle().Background(lipgloss.Color("#CCCCCC"))
)

// Rows taken by the title, the frame summary and the help line.
const chromeRows = 3

const (
	defaultCols = 80
	defaultRows = 24
)

func newPlayCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "play <scene>",
		Short: "Run a scene in the terminal",
		Long: "Run a scene in the terminal. The screen is scaled to the terminal; the\n" +
			"mouse and letter keys are forwarded to the scene. Press : to call an\n" +
			"export directly, esc or q to quit.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// Console logging would draw over the screen.
			s, err := a.loadScene(cmd, args[0], io.Discard)
			if err != nil {
				return err
			}

			m := newPlayModel(cmd.Context(), s)
			d, err := driver.New(cmd.Context(), s, driver.Options{
				Logger:    a.log,
				Stdout:    io.Discard,
				Presenter: render.PresenterFunc(m.present),
			})
			if err != nil {
				return err
			}
			defer d.Close(context.Background())
			m.d = d

			if err := d.Init(cmd.Context()); err != nil {
				return err
			}

			p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseAllMotion(), tea.WithContext(cmd.Context()))
			if _, err := p.Run(); err != nil && m.err == nil {
				return err
			}
			return m.err
		},
	}
}

type tickMsg time.Time

type playModel struct {
	ctx     context.Context
	d       *driver.Driver
	scene   *scene.Scene
	err     error
	shades  map[byte]lipgloss.Style
	result  string
	frame   render.Frame
	console textinput.Model
	cols    int
	rows    int
	calling bool
}

func newPlayModel(ctx context.Context, s *scene.Scene) *playModel {
	ti := textinput.New()
	ti.Prompt = "call> "
	ti.Placeholder = "unit.export args..."
	ti.Width = 40

	m := &playModel{
		ctx:     ctx,
		scene:   s,
		shades:  make(map[byte]lipgloss.Style),
		console: ti,
		cols:    defaultCols,
		rows:    defaultRows,
	}
	if w, h, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 && h > 0 {
		m.cols, m.rows = w, h
	}
	return m
}

func (m *playModel) present(f render.Frame) error {
	m.frame = f
	return nil
}

func (m *playModel) interval() time.Duration {
	return time.Second / time.Duration(m.scene.Tick)
}

func (m *playModel) Init() tea.Cmd {
	return m.tick()
}

func (m *playModel) tick() tea.Cmd {
	return tea.Tick(m.interval(), func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *playModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.cols, m.rows = msg.Width, msg.Height

	case tickMsg:
		if err := m.d.Tick(m.ctx); err != nil {
			m.err = err
			return m, tea.Quit
		}
		if limit := m.scene.Ticks; limit > 0 && m.d.Ticks() >= limit {
			return m, tea.Quit
		}
		return m, m.tick()

	case tea.MouseMsg:
		if e, ok := m.mouseEvent(msg); ok {
			m.d.Queue().Push(e)
		}

	case tea.KeyMsg:
		if m.calling {
			return m.updateConsole(msg)
		}
		switch msg.String() {
		case "ctrl+c", "esc", "q":
			return m, tea.Quit
		case ":":
			m.calling = true
			m.result = ""
			return m, m.console.Focus()
		}
		if msg.Type == tea.KeyRunes && len(msg.Runes) == 1 {
			m.d.Queue().Push(input.Key(msg.Runes[0]))
		}
	}
	return m, nil
}

func (m *playModel) updateConsole(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.calling = false
		m.console.Blur()
		return m, nil
	case "enter":
		line := m.console.Value()
		m.console.SetValue("")
		res, err := callExport(m.ctx, m.d, line)
		if err != nil {
			m.result = errorStyle.Render("Error: " + err.Error())
		} else {
			m.result = funcStyle.Render(line) + " = " + resultStyle.Render(res)
		}
		return m, nil
	}
	var cmd tea.Cmd
	m.console, cmd = m.console.Update(msg)
	return m, cmd
}

// area returns the number of terminal cells the screen is scaled into.
func (m *playModel) area() (cols, rows int) {
	return max(m.cols, 1), max(m.rows-chromeRows, 1)
}

// toScreen maps a cell to the screen pixel at its center.
func (m *playModel) toScreen(col, row int) (int32, int32) {
	cols, rows := m.area()
	sw, sh := int(m.scene.Screen.Width), int(m.scene.Screen.Height)
	return int32((2*col + 1) * sw / (2 * cols)), int32((2*row + 1) * sh / (2 * rows))
}

// mouseEvent converts a terminal mouse event into a canvas-space event.
func (m *playModel) mouseEvent(msg tea.MouseMsg) (input.Event, bool) {
	var kind input.Kind
	switch {
	case msg.Action == tea.MouseActionPress && msg.Button == tea.MouseButtonLeft:
		kind = input.MouseDown
	case msg.Action == tea.MouseActionRelease:
		kind = input.MouseUp
	case msg.Action == tea.MouseActionMotion:
		kind = input.MouseMove
	default:
		return input.Event{}, false
	}

	cols, rows := m.area()
	row := msg.Y - 1
	if msg.X < 0 || msg.X >= cols || row < 0 || row >= rows {
		return input.Event{}, false
	}
	sx, sy := m.toScreen(msg.X, row)
	x, y := m.d.Canvas().FromScreen(sx, sy, m.scene.Screen.Height)
	return input.Mouse(kind, x, y), true
}

func (m *playModel) shade(v byte) lipgloss.Style {
	s, ok := m.shades[v]
	if !ok {
		s = lipgloss.NewStyle().Background(lipgloss.Color(fmt.Sprintf("#%02X%02X%02X", v, v, v)))
		m.shades[v] = s
	}
	return s
}

// screen renders the canvas's first drawn image scaled into the terminal.
func (m *playModel) screen() string {
	var (
		tex    render.Texture
		hasTex bool
	)
	if images := m.frame.Images(); len(images) > 0 {
		tex, hasTex = images[0], images[0].Width > 0
	}
	canvas := m.d.Canvas()
	cols, rows := m.area()

	var b strings.Builder
	for row := range rows {
		var (
			run     strings.Builder
			current lipgloss.Style
			started bool
		)
		flush := func() {
			if run.Len() > 0 {
				b.WriteString(current.Render(run.String()))
				run.Reset()
			}
		}
		for col := range cols {
			style := backgroundStyle
			sx, sy := m.toScreen(col, row)
			x, y := canvas.FromScreen(sx, sy, m.scene.Screen.Height)
			if canvas.Contains(x, y) {
				if hasTex {
					style = m.shade(tex.At(int(x)*tex.Width/int(canvas.Width), int(y)*tex.Height/int(canvas.Height)))
				} else {
					style = m.shade(0)
				}
			}
			if !started || style.GetBackground() != current.GetBackground() {
				flush()
				current, started = style, true
			}
			run.WriteByte(' ')
		}
		flush()
		if row < rows-1 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// summary lists the frame's text and values.
func (m *playModel) summary() string {
	var parts []string
	for _, c := range m.frame.Commands {
		switch c.Kind {
		case render.DrawText:
			parts = append(parts, fmt.Sprintf("%q", c.Text))
		case render.DrawValue:
			parts = append(parts, valueStyle.Render(fmt.Sprint(c.Value)))
		}
	}
	return strings.Join(parts, " ")
}

func (m *playModel) View() string {
	if m.d == nil {
		return "Loading scene..."
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("edhost"))
	fmt.Fprintf(&b, " %s  tick %d\n", m.scene.Name, m.d.Ticks())
	b.WriteString(m.screen())
	b.WriteByte('\n')

	switch {
	case m.calling:
		b.WriteString(m.console.View())
		if m.result != "" {
			b.WriteString("  ")
			b.WriteString(m.result)
		}
	case m.result != "":
		b.WriteString(m.result)
	default:
		b.WriteString(m.summary())
	}
	b.WriteByte('\n')

	if m.calling {
		b.WriteString(helpStyle.Render("enter call • esc close"))
	} else {
		b.WriteString(helpStyle.Render("mouse draws • letters type • : call export • esc/q quit"))
	}
	return b.String()
}
