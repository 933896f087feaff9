// Package tui is an interactive terminal chat over one document.
package tui

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"pdfqa/internal/conversation"
	"pdfqa/internal/domain"
	"pdfqa/internal/service"
)

// Port is the subset of the question answering service the chat needs.
type Port interface {
	AskWithSources(ctx context.Context, req service.AskRequest) (string, []domain.SearchResult, error)
}

// Config fixes the document and request options for a chat session.
type Config struct {
	FilePath string
	APIKey   string
	TopK     int
	Summary  string
	Timeout  time.Duration
}

// answerMsg carries the result of one question back into Update.
type answerMsg struct {
	query   string
	answer  string
	sources []domain.SearchResult
	err     error
}

// Model is the Bubble Tea model for the chat screen.
type Model struct {
	port     Port
	cfg      Config
	history  *conversation.History
	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model
	sources  []domain.SearchResult
	cursor   int
	status   string
	pending  string
	asked    string
	busy     bool
	ready    bool
}

func New(port Port, cfg Config) Model {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Minute
	}
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask about the document and press Enter"
	ti.Focus()
	ti.CharLimit = 0

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return Model{
		port:     port,
		cfg:      cfg,
		history:  &conversation.History{},
		input:    ti,
		viewport: viewport.New(0, 0),
		spinner:  sp,
		status:   "Ready. Enter asks, up/down browses sources, ctrl+l clears, ctrl+c quits.",
	}
}

func (m Model) Init() tea.Cmd { return textinput.Blink }

// History returns the turns recorded so far.
func (m Model) History() []conversation.Message { return m.history.Messages() }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, th := transcriptStyle.GetFrameSize()
		_, qh := inputStyle.GetFrameSize()
		reserved := 2 + 1 + qh + 1 + 1 // header, summary, input, status, spacer
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, msg.Height-reserved-th)
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case answerMsg:
		m.busy = false
		m.pending = ""
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
			m.refresh()
			return m, nil
		}
		m.history.Append(conversation.RoleUser, msg.query)
		m.history.Append(conversation.RoleAssistant, msg.answer)
		m.sources = msg.sources
		m.asked = msg.query
		m.cursor = 0
		m.status = fmt.Sprintf("Answered from %d chunk(s).", len(msg.sources))
		m.refresh()
		m.viewport.GotoBottom()
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyCtrlD:
			return m, tea.Quit
		case tea.KeyCtrlL:
			m.history.Clear()
			m.sources = nil
			m.cursor = 0
			m.status = "Conversation cleared."
			m.refresh()
			return m, nil
		case tea.KeyEnter:
			q := strings.TrimSpace(m.input.Value())
			if q == "" || m.busy {
				return m, nil
			}
			m.input.SetValue("")
			m.busy = true
			m.pending = q
			m.status = "Thinking..."
			m.refresh()
			return m, tea.Batch(m.ask(q), m.spinner.Tick)
		case tea.KeyDown:
			if len(m.sources) > 0 {
				m.cursor = (m.cursor + 1) % len(m.sources)
				m.refresh()
				return m, nil
			}
		case tea.KeyUp:
			if len(m.sources) > 0 {
				m.cursor = (m.cursor - 1 + len(m.sources)) % len(m.sources)
				m.refresh()
				return m, nil
			}
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// ask runs retrieval and generation off the UI goroutine.
func (m Model) ask(query string) tea.Cmd {
	req := service.AskRequest{
		FilePath: m.cfg.FilePath,
		Query:    query,
		APIKey:   m.cfg.APIKey,
		TopK:     m.cfg.TopK,
		History:  m.history.Messages(),
	}
	port, timeout := m.port, m.cfg.Timeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		answer, sources, err := port.AskWithSources(ctx, req)
		return answerMsg{query: query, answer: answer, sources: sources, err: err}
	}
}

func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := headerStyle.Render("PDF Q&A  " + m.cfg.FilePath)
	summary := summaryStyle.Render(m.cfg.Summary)
	transcript := transcriptStyle.Render(m.viewport.View())
	input := inputStyle.Render(m.input.View())
	status := m.status
	if m.busy {
		status = m.spinner.View() + " " + status
	}
	return header + "\n" + summary + "\n" + transcript + "\n" + input + "\n" + statusStyle.Render(status)
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderTranscript())
}

func (m Model) renderTranscript() string {
	var b strings.Builder
	msgs := m.history.Messages()
	if len(msgs) == 0 && m.pending == "" {
		b.WriteString("No questions yet.")
	}
	for _, msg := range msgs {
		if msg.Role == conversation.RoleUser {
			b.WriteString(userStyle.Render("You: ") + msg.Content + "\n")
		} else {
			b.WriteString(assistantStyle.Render("AI: ") + msg.Content + "\n\n")
		}
	}
	if m.pending != "" {
		b.WriteString(userStyle.Render("You: ") + m.pending + "\n")
	}
	if len(m.sources) > 0 {
		r := m.sources[m.cursor]
		b.WriteString(sourceStyle.Render(fmt.Sprintf("Source %d/%d  page %d  score=%.3f",
			m.cursor+1, len(m.sources), r.Chunk.Page, r.Score)))
		b.WriteString("\n" + highlightBestSentence(r.Chunk.Text, m.asked))
	}
	return strings.TrimRight(b.String(), "\n")
}

var (
	headerStyle     = lipgloss.NewStyle().Bold(true)
	summaryStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	userStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	assistantStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("13")).Bold(true)
	sourceStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Italic(true)
	transcriptStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	inputStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	highlightStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	wordRe          = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*|\p{N}+`)
	sentenceRe      = regexp.MustCompile(`[^.!?。！？]+[.!?。！？]+`)
)

// highlightBestSentence marks the sentence of text sharing the most words with query.
func highlightBestSentence(text, query string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	sentences := sentenceRe.FindAllString(text, -1)
	if len(sentences) == 0 {
		sentences = []string{text}
	}
	qTokens := tokenSet(query)
	best, bestScore := -1, 0
	for i, s := range sentences {
		sentences[i] = strings.TrimSpace(s)
		if score := overlap(qTokens, s); score > bestScore {
			best, bestScore = i, score
		}
	}
	if best >= 0 {
		sentences[best] = highlightStyle.Render(sentences[best])
	}
	return strings.Join(sentences, " ")
}

func tokenSet(s string) map[string]struct{} {
	tokens := wordRe.FindAllString(strings.ToLower(s), -1)
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}

func overlap(query map[string]struct{}, sentence string) int {
	score := 0
	for t := range tokenSet(sentence) {
		if _, ok := query[t]; ok {
			score++
		}
	}
	return score
}
