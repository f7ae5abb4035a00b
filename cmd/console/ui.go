package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"github.com/jwebster45206/story-relay/pkg/chat"
	"github.com/jwebster45206/story-relay/pkg/relayclient"
	"github.com/jwebster45206/story-relay/pkg/scenario"
	"github.com/jwebster45206/story-relay/pkg/textfilter"
	"github.com/jwebster45206/story-relay/pkg/transcript"
)

const (
	AgentName       = "Narrator"
	PlaceHolderText = "What do you do? (Tab changes mode, /help for commands)"
)

// inputModes are the modes Tab cycles through. Erase is a command.
var inputModes = []chat.Mode{chat.ModeDo, chat.ModeSay, chat.ModeThink, chat.ModeStory, chat.ModeContinue}

// ConsoleUI is the BubbleTea model that runs the UI.
// https://github.com/charmbracelet/bubbletea
type ConsoleUI struct {
	config *ConsoleConfig
	client *relayclient.Client
	log    *slog.Logger

	session  *transcript.Session
	scenario *scenario.Scenario
	filter   *textfilter.Filter
	mode     chat.Mode

	chatViewport viewport.Model
	metaViewport viewport.Model
	textarea     textarea.Model
	spinner      spinner.Model
	ready        bool
	width        int
	height       int
	err          error
	notice       string

	// in-flight turn
	stream <-chan tea.Msg
	cancel context.CancelFunc

	// Scenario selection state
	showScenarioModal bool
	scenarios         []scenario.Summary
	selectedScenario  int
	loadingScenarios  bool

	// Quit confirmation state
	showQuitModal bool
}

var (
	chatPanelStyle = lipgloss.NewStyle().
			PaddingTop(2).
			PaddingBottom(1).
			PaddingLeft(3).
			PaddingRight(0)

	metaPanelStyle = lipgloss.NewStyle().
			PaddingTop(2).
			PaddingBottom(0).
			PaddingLeft(0).
			PaddingRight(2)

	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")). // pink
			Bold(true)

	narratorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("86")) // green

	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")) // teal

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")) // red

	loadingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")) // yellow

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")) // dark grey

	activeModeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color("86")).
			Bold(true)

	modalStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(1, 2).
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("255"))

	modalTitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true).
			Align(lipgloss.Center)

	modalItemStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("255"))

	modalSelectedItemStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("0")).
				Background(lipgloss.Color("205")).
				Bold(true)
)

var separatorStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("240")) // dark grey

func NewConsoleUI(cfg *ConsoleConfig, client *relayclient.Client, log *slog.Logger) ConsoleUI {
	ta := textarea.New()
	ta.Placeholder = PlaceHolderText
	ta.Focus()
	ta.Prompt = promptStyle.Render(":: ")
	ta.CharLimit = 1000
	ta.SetWidth(50)
	ta.SetHeight(3)
	ta.ShowLineNumbers = false

	chatVp := viewport.New(50, 20)
	chatVp.MouseWheelEnabled = true

	metaVp := viewport.New(20, 20)

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = loadingStyle

	return ConsoleUI{
		config:            cfg,
		client:            client,
		log:               log,
		mode:              chat.ModeDo,
		textarea:          ta,
		chatViewport:      chatVp,
		metaViewport:      metaVp,
		spinner:           sp,
		showScenarioModal: true,
		loadingScenarios:  cfg.ScenarioID == "",
	}
}

func (m ConsoleUI) Init() tea.Cmd {
	if m.config.ScenarioID != "" {
		return loadScenario(m.client, m.config.ScenarioID)
	}
	return loadScenarios(m.client)
}

func (m ConsoleUI) streaming() bool {
	return m.stream != nil
}

// startSession leaves the selection modal and opens a story.
func (m ConsoleUI) startSession(sc *scenario.Scenario) ConsoleUI {
	m.scenario = sc
	m.filter = textfilter.ForRating(sc.Rating)
	m.session = transcript.NewSession(transcript.Setup{
		World: sc.World(),
		Rules: sc.TurnRules(),
		Lore:  sc.Lore,
	})
	m.showScenarioModal = false
	m.err = nil
	m.notice = ""
	m.ready = true
	m.resize()
	m.textarea.Focus()
	m.writeChatContent()
	m.writeMetadata()
	return m
}

func (m *ConsoleUI) resize() {
	if m.width == 0 || m.height == 0 {
		return
	}
	chatWidth := int(float64(m.width)*0.75) - 4
	metaWidth := m.width - chatWidth - 6
	m.chatViewport.Width = chatWidth - 2
	m.chatViewport.Height = m.height - 7
	m.metaViewport.Width = metaWidth - 2
	m.metaViewport.Height = m.height - 4
	m.textarea.SetWidth(chatWidth - 4)
}

func (m ConsoleUI) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	// Handle scenario modal first
	if m.showScenarioModal && !m.showQuitModal {
		return m.updateScenarioModal(msg)
	}

	// Handle quit modal second
	if m.showQuitModal {
		return m.updateQuitModal(msg)
	}

	var (
		tiCmd tea.Cmd
		vpCmd tea.Cmd
		mvCmd tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.MouseMsg:
		m.chatViewport, vpCmd = m.chatViewport.Update(msg)
		m.metaViewport, mvCmd = m.metaViewport.Update(msg)
		return m, tea.Batch(vpCmd, mvCmd)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		m.writeChatContent()
		m.writeMetadata()

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			m.showQuitModal = true
			return m, nil
		case tea.KeyEsc:
			if m.streaming() {
				m.cancel()
				m.notice = "Stopping..."
				m.writeChatContent()
				return m, nil
			}
			m.showQuitModal = true
			return m, nil
		case tea.KeyTab:
			m.mode = nextMode(m.mode)
			m.writeMetadata()
			return m, nil
		case tea.KeyEnter:
			input := m.textarea.Value()
			if strings.HasPrefix(strings.TrimSpace(input), "/") {
				return m.handleCommand(input)
			}
			return m.submit(m.mode, input)
		}

	case fragmentMsg:
		m.session.ApplyFragment(msg.text)
		m.writeChatContent()
		return m, waitForStream(m.stream)

	case streamDoneMsg:
		m.session.Finish(msg.err)
		if m.cancel != nil {
			m.cancel()
		}
		m.stream = nil
		m.cancel = nil
		m.notice = ""
		if msg.err != nil {
			m.log.Warn("Turn ended with error", "error", msg.err)
		}
		m.writeChatContent()
		m.writeMetadata()
		return m, nil

	case spinner.TickMsg:
		if !m.streaming() {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		m.writeChatContent()
		return m, cmd
	}

	m.textarea, tiCmd = m.textarea.Update(msg)
	m.chatViewport, vpCmd = m.chatViewport.Update(msg)
	m.metaViewport, mvCmd = m.metaViewport.Update(msg)

	return m, tea.Batch(tiCmd, vpCmd, mvCmd)
}

// submit applies one user action and starts the relay call if it needs one.
func (m ConsoleUI) submit(mode chat.Mode, input string) (tea.Model, tea.Cmd) {
	req, err := m.session.Submit(mode, input)
	if err != nil {
		m.notice = err.Error()
		m.writeChatContent()
		return m, nil
	}
	m.notice = ""
	if req == nil {
		if mode == chat.ModeErase {
			m.textarea.Reset()
			m.writeChatContent()
			m.writeMetadata()
		}
		return m, nil
	}

	m.textarea.Reset()
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.stream = startStream(ctx, m.client, *req)
	m.log.Debug("Turn submitted", "mode", req.Mode)

	m.writeChatContent()
	m.writeMetadata()
	return m, tea.Batch(waitForStream(m.stream), m.spinner.Tick)
}

func nextMode(cur chat.Mode) chat.Mode {
	for i, mode := range inputModes {
		if mode == cur {
			return inputModes[(i+1)%len(inputModes)]
		}
	}
	return inputModes[0]
}

// parseCommand splits "/name arg..." into its lowercased name and the
// trimmed remainder.
func parseCommand(input string) (string, string) {
	input = strings.TrimPrefix(strings.TrimSpace(input), "/")
	name, arg, _ := strings.Cut(input, " ")
	return strings.ToLower(name), strings.TrimSpace(arg)
}

const helpText = `
Commands:
• /do, /say, /think, /story <text> - Act once in that mode
• /mode <name> - Switch input mode (or press Tab)
• /continue - Let the narrator go on
• /erase - Remove the last exchange
• /undo, /redo - Step back or forward one exchange
• /copy - Copy the last narration to the clipboard
• /quit - Leave the story

Setup (before your first turn):
• /title, /summary, /opening <text> - Set the story's world
• /rules <text> - Set the narrator's instructions
• /note <text> - Set the author's note
• /setup - Show the current setup

Keys:
• Enter - Send   • Tab - Next mode
• Esc - Stop the narrator while it is writing, otherwise quit
`

func (m ConsoleUI) handleCommand(input string) (tea.Model, tea.Cmd) {
	name, arg := parseCommand(input)
	m.textarea.Reset()
	m.notice = ""

	switch name {
	case "help":
		m.notice = helpText
	case "mode":
		mode := chat.Mode(strings.ToLower(arg))
		if mode == chat.ModeErase || !mode.Valid() {
			m.notice = fmt.Sprintf("Unknown mode %q", arg)
			break
		}
		m.mode = mode
		m.writeMetadata()
	case "do", "say", "think", "story":
		return m.submit(chat.Mode(name), arg)
	case "continue":
		return m.submit(chat.ModeContinue, "")
	case "erase":
		return m.submit(chat.ModeErase, "")
	case "undo":
		if err := m.session.Undo(); err != nil {
			m.notice = err.Error()
		}
	case "redo":
		if !m.session.CanRedo() {
			m.notice = "Nothing to redo."
		} else if err := m.session.Redo(); err != nil {
			m.notice = err.Error()
		}
	case "copy":
		m.notice = m.copyLastNarration()
	case "title", "summary", "opening", "rules", "note":
		m.notice = m.configure(name, arg)
	case "setup":
		m.notice = m.describeSetup()
	case "quit", "exit":
		m.showQuitModal = true
		return m, nil
	default:
		m.notice = fmt.Sprintf("Unknown command /%s (try /help)", name)
	}

	m.writeChatContent()
	m.writeMetadata()
	return m, nil
}

// configure changes one setup field and restarts the story from the new
// opening. The session refuses once the first turn has been sent.
func (m *ConsoleUI) configure(field, value string) string {
	value = strings.TrimSpace(value)
	sc := *m.scenario
	switch field {
	case "title":
		if value == "" {
			return "Usage: /title <text>"
		}
		sc.Title = value
	case "summary":
		sc.Summary = value
	case "opening":
		sc.Opening = value
	case "rules":
		sc.Rules.AIInstructions = value
	case "note":
		sc.Rules.AuthorsNote = value
	}

	err := m.session.Reconfigure(transcript.Setup{
		World: sc.World(),
		Rules: sc.TurnRules(),
		Lore:  sc.Lore,
	})
	if err != nil {
		return err.Error()
	}
	m.scenario = &sc
	if value == "" {
		return "Cleared the " + field + "."
	}
	return "Updated the " + field + "."
}

func (m ConsoleUI) describeSetup() string {
	show := func(v string) string {
		if strings.TrimSpace(v) == "" {
			return "(none)"
		}
		return v
	}
	var b strings.Builder
	b.WriteString("Setup:\n")
	fmt.Fprintf(&b, "• Title: %s\n", show(m.scenario.Title))
	fmt.Fprintf(&b, "• Summary: %s\n", show(m.scenario.Summary))
	fmt.Fprintf(&b, "• Opening: %s\n", show(m.scenario.Opening))
	fmt.Fprintf(&b, "• Rules: %s\n", show(m.scenario.Rules.AIInstructions))
	fmt.Fprintf(&b, "• Note: %s", show(m.scenario.Rules.AuthorsNote))
	return b.String()
}

func (m ConsoleUI) copyLastNarration() string {
	tr := m.session.Transcript()
	for i := len(tr) - 1; i >= 0; i-- {
		if tr[i].Role != transcript.RoleAssistant {
			continue
		}
		if err := clipboard.WriteAll(m.filter.Apply(tr[i].Text)); err != nil {
			m.log.Warn("Clipboard write failed", "error", err)
			return "Could not copy: " + err.Error()
		}
		return "Copied the last narration."
	}
	return "Nothing to copy yet."
}

// writeChatContent renders the transcript for the current viewport width.
func (m *ConsoleUI) writeChatContent() {
	if m.session == nil {
		return
	}
	chatWidth := m.chatViewport.Width - 6 // Account for left(3) + right(3) padding
	if chatWidth < 20 {
		chatWidth = 20
	}

	var content strings.Builder
	content.WriteString(titleStyle.Render(strings.ToUpper(m.scenario.Title)) + "\n\n")
	content.WriteString(separatorStyle.Render(strings.Repeat("─", chatWidth)) + "\n\n")

	for _, turn := range m.session.Transcript() {
		content.WriteString(renderTurn(turn, m.filter, chatWidth) + "\n\n")
	}

	if m.streaming() {
		content.WriteString(m.spinner.View() + loadingStyle.Render(" "+AgentName+" is writing... (Esc to stop)") + "\n")
	}
	if m.notice != "" {
		content.WriteString(promptStyle.Render(m.notice) + "\n")
	}

	m.chatViewport.SetContent(content.String())
	m.chatViewport.GotoBottom()
}

// renderTurn wraps one transcript turn. Narration goes through the rating
// filter and failure markers are highlighted.
func renderTurn(turn transcript.Turn, filter *textfilter.Filter, width int) string {
	if turn.Role == transcript.RoleUser {
		return userStyle.Render(wordwrap.String(turn.Text, width))
	}

	lines := strings.Split(wordwrap.String(filter.Apply(turn.Text), width), "\n")
	for i, line := range lines {
		if isMarker(line) {
			lines[i] = errorStyle.Render(line)
		} else {
			lines[i] = narratorStyle.Render(line)
		}
	}
	return strings.Join(lines, "\n")
}

func isMarker(line string) bool {
	return line == transcript.AbortedMarker ||
		strings.HasPrefix(line, transcript.ErrorMarker+" ") ||
		strings.HasPrefix(line, transcript.NetworkErrorMarker+" ")
}

func (m *ConsoleUI) writeMetadata() {
	if m.session == nil {
		return
	}
	var content strings.Builder
	content.WriteString(titleStyle.Render("STORY") + "\n\n")

	content.WriteString("Scenario:\n")
	content.WriteString(m.scenario.Title + "\n\n")

	if m.scenario.Rating != "" {
		content.WriteString("Rating:\n")
		content.WriteString(m.scenario.Rating + "\n\n")
	}

	content.WriteString("Mode:\n")
	for _, mode := range inputModes {
		label := " " + string(mode) + " "
		if mode == m.mode {
			content.WriteString(activeModeStyle.Render(label) + "\n")
		} else {
			content.WriteString(label + "\n")
		}
	}
	content.WriteString("\n")

	content.WriteString("Turns:\n")
	content.WriteString(fmt.Sprintf("%d\n", len(m.session.Transcript())))
	if m.session.CanRedo() {
		content.WriteString("(/redo available)\n")
	}
	content.WriteString("\n")

	content.WriteString("Commands:\n")
	content.WriteString("• Ctrl+C: Quit\n")
	content.WriteString("• Enter: Send\n")
	content.WriteString("• Tab: Mode\n")
	content.WriteString("• /help: Help\n")

	m.metaViewport.SetContent(content.String())
}

func (m ConsoleUI) updateScenarioModal(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case scenariosLoadedMsg:
		m.loadingScenarios = false
		if msg.err != nil {
			m.err = msg.err
		} else {
			m.scenarios = msg.scenarios
		}

	case scenarioLoadedMsg:
		m.loadingScenarios = false
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m = m.startSession(msg.scenario)
		return m, textarea.Blink

	case tea.KeyMsg:
		if m.loadingScenarios {
			if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyEsc {
				return m, tea.Quit
			}
			return m, nil
		}

		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.showQuitModal = true
			return m, nil
		case tea.KeyUp:
			if m.selectedScenario > 0 {
				m.selectedScenario--
			}
		case tea.KeyDown:
			if m.selectedScenario < len(m.scenarios)-1 {
				m.selectedScenario++
			}
		case tea.KeyEnter:
			if m.err == nil && len(m.scenarios) > 0 {
				m.loadingScenarios = true
				return m, loadScenario(m.client, m.scenarios[m.selectedScenario].ID)
			}
		}
	}

	return m, nil
}

func (m ConsoleUI) updateQuitModal(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case fragmentMsg, streamDoneMsg:
		// keep the turn moving behind the modal
		m.showQuitModal = false
		model, cmd := m.Update(msg)
		next := model.(ConsoleUI)
		next.showQuitModal = true
		return next, cmd

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc, tea.KeyEnter:
			return m.quit()
		default:
			switch msg.String() {
			case "y", "Y":
				return m.quit()
			case "n", "N":
				m.showQuitModal = false
				if m.showScenarioModal {
					return m, nil
				}
				m.textarea.Focus()
				return m, textarea.Blink
			}
		}
	}

	return m, nil
}

func (m ConsoleUI) quit() (tea.Model, tea.Cmd) {
	if m.cancel != nil {
		m.cancel()
	}
	return m, tea.Quit
}

func (m ConsoleUI) renderQuitModal() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	var content strings.Builder
	content.WriteString(modalTitleStyle.Render("Quit?"))
	content.WriteString("\n\n")
	content.WriteString("Are you sure you want to leave your story?")
	content.WriteString("\n\n")
	content.WriteString(promptStyle.Render("Press Y to quit, N to continue, or Ctrl+C to force quit"))

	modal := modalStyle.Width(50).Render(content.String())
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, modal, lipgloss.WithWhitespaceChars(" "))
}

func (m ConsoleUI) renderScenarioModal() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	var content strings.Builder

	switch {
	case m.err != nil:
		content.WriteString(modalTitleStyle.Render("Error"))
		content.WriteString("\n\n")
		content.WriteString(errorStyle.Render(describeError(m.err)))
		content.WriteString("\n\n")
		content.WriteString("Press Ctrl+C to exit")
	case m.loadingScenarios:
		content.WriteString(modalTitleStyle.Render("Loading..."))
		content.WriteString("\n\n")
		content.WriteString(loadingStyle.Render("Fetching scenarios from the relay..."))
	default:
		content.WriteString(modalTitleStyle.Render("Select a Scenario"))
		content.WriteString("\n\n")

		for i, s := range m.scenarios {
			line := s.Title
			if s.Description != "" {
				line += promptStyle.Render(" - " + s.Description)
			}
			if i == m.selectedScenario {
				content.WriteString(modalSelectedItemStyle.Render("▶ " + s.Title))
				if s.Description != "" {
					content.WriteString(promptStyle.Render(" - " + s.Description))
				}
			} else {
				content.WriteString(modalItemStyle.Render("  " + line))
			}
			content.WriteString("\n")
		}

		content.WriteString("\n")
		content.WriteString(promptStyle.Render("Use ↑/↓ to navigate, Enter to select, Ctrl+C to exit"))
	}

	modal := modalStyle.Width(70).Render(content.String())
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, modal, lipgloss.WithWhitespaceChars(" "))
}

func describeError(err error) string {
	var se *relayclient.StatusError
	if errors.As(err, &se) {
		return se.Error()
	}
	return err.Error()
}

func (m ConsoleUI) View() string {
	if m.showQuitModal {
		return m.renderQuitModal()
	}

	if m.showScenarioModal {
		return m.renderScenarioModal()
	}

	if !m.ready || m.width == 0 {
		return "\n  Initializing..."
	}

	chatWidth := int(float64(m.width)*0.75) - 4
	metaWidth := m.width - chatWidth - 6

	chatPanel := chatPanelStyle.Width(chatWidth).Height(m.height - 3).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			m.chatViewport.View(),
			"",
			separatorStyle.Render(strings.Repeat("─", chatWidth-4)),
			promptStyle.Render("mode: ")+activeModeStyle.Render(" "+string(m.mode)+" "),
			m.textarea.View(),
		),
	)

	metaPanel := metaPanelStyle.Width(metaWidth).Height(m.height - 2).Render(
		m.metaViewport.View(),
	)

	return lipgloss.JoinHorizontal(lipgloss.Top, chatPanel, metaPanel)
}
