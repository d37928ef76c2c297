package main

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"speechtext/usage"
)

// TUI message types
type SessionStartMsg struct{ Info SessionInfo }
type InterimMsg struct{ Text string }
type FinalMsg struct {
	Text   string
	Output bool // sent to the focused application
}
type UsageMsg struct{ Usage usage.Stats }
type NoVoiceMsg struct{ Warn bool }
type tickMsg time.Time

const maxHistory = 5

type tuiModel struct {
	frame         int
	width, height int
	chunkSeconds  float64

	info       SessionInfo
	transcript string   // current interim or final text
	final      bool     // transcript is final
	output     bool     // transcript was typed
	history    []string // earlier finals, oldest first
	finals     int
	usage      usage.Stats
	haveUsage  bool
	noVoice    bool
}

var (
	titleStyle     = lipgloss.NewStyle().Bold(true)
	labelStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("6")).Bold(true)
	interimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
	finalStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("255"))
	historyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
	typedStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	helpStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	transcriptBox  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("6")).Padding(0, 1)
	usageBox       = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("3")).Padding(0, 1)
	usageHeadStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("3")).Bold(true)
)

func newTUIModel(chunkSeconds float64) tuiModel {
	return tuiModel{chunkSeconds: chunkSeconds}
}

func NewTUIProgram(chunkSeconds float64) *tea.Program {
	return tea.NewProgram(newTUIModel(chunkSeconds), tea.WithAltScreen())
}

func tuiTick() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m tuiModel) Init() tea.Cmd {
	return tuiTick()
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}

	case tickMsg:
		m.frame++
		return m, tuiTick()

	case SessionStartMsg:
		m.info = msg.Info
		m.transcript = ""
		m.final = false
		m.output = false
		m.history = nil
		m.finals = 0
		m.haveUsage = false
		m.noVoice = false

	case InterimMsg:
		m.pushFinal()
		m.transcript = msg.Text

	case FinalMsg:
		m.pushFinal()
		m.transcript = msg.Text
		m.final = true
		m.output = msg.Output
		m.finals++

	case UsageMsg:
		m.usage = msg.Usage
		m.haveUsage = true

	case NoVoiceMsg:
		m.noVoice = msg.Warn
	}
	return m, nil
}

// pushFinal moves a displayed final into the history before new text
// replaces it.
func (m *tuiModel) pushFinal() {
	if !m.final {
		return
	}
	m.history = append(m.history, m.transcript)
	if len(m.history) > maxHistory {
		m.history = m.history[len(m.history)-maxHistory:]
	}
	m.final = false
	m.output = false
}

func (m tuiModel) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	// Borders take two columns, padding another two.
	inner := max(m.width-4, 30)

	var b strings.Builder

	rec := "●"
	if m.frame%2 == 1 {
		rec = " "
	}
	status := helpStyle.Render(rec+" REC") + " " + dimStyle.Render(m.modeLine())
	b.WriteString(status + "\n")
	if m.noVoice {
		b.WriteString(warnStyle.Render("⚠ no voice detected") + "\n")
	}

	var t strings.Builder
	t.WriteString(titleStyle.Render("Transcript") + "\n")
	for _, h := range m.history {
		for _, line := range wrapText(h, inner) {
			t.WriteString(historyStyle.Render(line) + "\n")
		}
	}
	label := "Current Transcript: "
	style := interimStyle
	if m.final {
		style = finalStyle
	}
	lines := wrapText(label+m.transcript, inner)
	for i, line := range lines {
		if i == 0 {
			rest := strings.TrimPrefix(strings.TrimPrefix(line, strings.TrimSpace(label)), " ")
			t.WriteString(labelStyle.Render(label) + style.Render(rest))
		} else {
			t.WriteString(style.Render(line))
		}
		if i == len(lines)-1 && m.output {
			t.WriteString(" " + typedStyle.Render("[✓ typed]"))
		}
		if i < len(lines)-1 {
			t.WriteString("\n")
		}
	}
	b.WriteString(transcriptBox.Width(m.width-2).Render(t.String()) + "\n")

	if m.haveUsage {
		u := usageHeadStyle.Render("Usage & Cost") + "\n" + renderUsageTable(m.usage, m.chunkSeconds)
		b.WriteString(usageBox.Width(m.width-2).Render(u) + "\n")
	}

	b.WriteString(helpStyle.Render("Press Ctrl+C to stop"))
	return b.String()
}

func (m tuiModel) modeLine() string {
	if m.info.Backend == "" {
		return ""
	}
	return fmt.Sprintf("[%s | %s | %s]", m.info.Device, m.info.Backend, m.info.Language)
}

func renderUsageTable(u usage.Stats, chunkSeconds float64) string {
	rows := [][2]string{
		{"Audio Duration", fmt.Sprintf("%.2f seconds", u.TotalAudioSeconds)},
		{"Billable Units", fmt.Sprintf("%d (%g-second chunks)", u.BillableChunks, chunkSeconds)},
		{"Estimated Cost", fmt.Sprintf("$%.4f USD", u.EstimatedCostUSD)},
		{"Transcription Count", fmt.Sprintf("%d", u.TranscriptionCount)},
		{"Total Characters", fmt.Sprintf("%d", u.TotalCharacters)},
		{"Session Duration", fmt.Sprintf("%.1f seconds", u.ElapsedSeconds)},
	}
	lines := make([]string, 0, len(rows)+1)
	lines = append(lines, fmt.Sprintf("%-20s %24s", "Metric", "Value"))
	for _, r := range rows {
		lines = append(lines, fmt.Sprintf("%-20s %24s", r[0], r[1]))
	}
	return strings.Join(lines, "\n")
}

func wrapText(text string, width int) []string {
	if len(text) == 0 {
		return []string{""}
	}
	if width <= 0 {
		width = 1
	}

	var lines []string
	for len(text) > width {
		// Find last space within width
		splitAt := width
		for i := width; i > 0; i-- {
			if text[i] == ' ' {
				splitAt = i
				break
			}
		}
		lines = append(lines, text[:splitAt])
		text = strings.TrimLeft(text[splitAt:], " ")
	}
	if len(text) > 0 {
		lines = append(lines, text)
	}
	return lines
}

// tuiSink forwards session events to a running TUI program.
type tuiSink struct {
	p    *tea.Program
	done <-chan struct{} // closed when the program exits
}

func (s *tuiSink) SessionStart(info SessionInfo) { s.p.Send(SessionStartMsg{Info: info}) }

func (s *tuiSink) Interim(text string) { s.p.Send(InterimMsg{Text: text}) }

func (s *tuiSink) Final(text string, output bool) {
	s.p.Send(FinalMsg{Text: text, Output: output})
}

func (s *tuiSink) Usage(u usage.Stats) { s.p.Send(UsageMsg{Usage: u}) }

func (s *tuiSink) NoVoice(warn bool) { s.p.Send(NoVoiceMsg{Warn: warn}) }

// SessionEnd closes the TUI so the final summary prints to a normal screen.
func (s *tuiSink) SessionEnd(usage.Stats) {
	s.p.Quit()
	waitFor(s.done, stopWait)
}
