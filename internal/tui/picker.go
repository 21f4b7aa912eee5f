package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"arstate/internal/estimate"
)

const (
	pickerMin   = 1
	pickerMax   = 100
	pickerWidth = 40
)

// Picker lets the user choose a quality while a background estimate of the
// resulting size follows the slider.
type Picker struct {
	title     string
	loop      *estimate.Loop[int]
	original  int64
	quality   int
	status    estimate.Status
	chosen    bool
	cancelled bool
}

type statusMsg estimate.Status

type statusClosedMsg struct{}

func NewPicker(title string, loop *estimate.Loop[int], quality int, original int64) Picker {
	return Picker{title: title, loop: loop, original: original, quality: clampQuality(quality)}
}

func (p Picker) Init() tea.Cmd {
	p.loop.Update(p.quality)
	return listenForStatus(p.loop.Changes())
}

func (p Picker) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "left", "h":
			return p.setQuality(p.quality - 1), nil
		case "right", "l":
			return p.setQuality(p.quality + 1), nil
		case "down", "pgdown":
			return p.setQuality(p.quality - 10), nil
		case "up", "pgup":
			return p.setQuality(p.quality + 10), nil
		case "enter":
			p.chosen = true
			return p, tea.Quit
		case "esc", "q", "ctrl+c":
			p.cancelled = true
			return p, tea.Quit
		}
		return p, nil
	case statusMsg:
		st := estimate.Status(msg)
		if st.Generation >= p.status.Generation {
			p.status = st
		}
		return p, listenForStatus(p.loop.Changes())
	case statusClosedMsg:
		return p, nil
	default:
		return p, nil
	}
}

func (p Picker) setQuality(q int) Picker {
	q = clampQuality(q)
	if q == p.quality {
		return p
	}
	p.quality = q
	p.loop.Update(q)
	p.status = p.loop.Status()
	return p
}

func (p Picker) View() string {
	if p.chosen || p.cancelled {
		return ""
	}

	filled := (p.quality - pickerMin) * pickerWidth / (pickerMax - pickerMin)
	slider := "[" + strings.Repeat("=", filled) + "o" + strings.Repeat("-", pickerWidth-filled) + "]"

	lines := []string{
		titleStyle.Render(p.title),
		labelStyle.Render(fmt.Sprintf("Quality: %d", p.quality)),
		barStyle.Render(slider),
		labelStyle.Render("Original size: ") + pickerValueStyle.Render(FormatBytes(p.original)),
		labelStyle.Render("Estimated size: ") + p.estimateText(),
		dimStyle.Render("←/→ adjust  ↑/↓ ±10  enter compress  esc cancel"),
	}
	return strings.Join(lines, "\n")
}

func (p Picker) estimateText() string {
	switch {
	case p.status.Estimating():
		return dimStyle.Render("estimating…")
	case !p.status.Valid:
		return dimStyle.Render("unavailable")
	}
	size := p.status.Snapshot.Bytes
	text := pickerValueStyle.Render(FormatBytes(size))
	if p.original > 0 {
		change := 100 - float64(size)*100/float64(p.original)
		style := lipgloss.NewStyle().Foreground(ColorSuccess)
		if change < 0 {
			style = lipgloss.NewStyle().Foreground(ColorWarn)
		}
		text += " " + style.Render(fmt.Sprintf("(%.0f%% smaller)", change))
	}
	return text
}

// Result returns the chosen quality, or false when the user cancelled.
func (p Picker) Result() (int, bool) {
	return p.quality, p.chosen
}

func listenForStatus(changes <-chan estimate.Status) tea.Cmd {
	return func() tea.Msg {
		st, ok := <-changes
		if !ok {
			return statusClosedMsg{}
		}
		return statusMsg(st)
	}
}

func clampQuality(q int) int {
	if q < pickerMin {
		return pickerMin
	}
	if q > pickerMax {
		return pickerMax
	}
	return q
}

var pickerValueStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorInk)
