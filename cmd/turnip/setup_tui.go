package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

const (
	txtUsernamePrompt      = "GitHub username"
	txtTokenPrompt         = "Personal access token (needs contents write access)"
	txtUsernamePlaceholder = "octocat"
	txtTokenPlaceholder    = "ghp_••••••••"
	txtMissingUsername     = "Username is required"
	txtMissingToken        = "Token is required"
	txtSetupHelp           = "Press 'Enter' to continue. 'Esc' to go back/quit. 'Ctrl+C' to quit."
)

var errSetupCancelled = errors.New("setup cancelled by user")

type SetupTUIOpts struct {
	Username   string
	Token      string
	ConfigPath string
}

type SetupResult struct {
	Username string
	Token    string
}

type setupField int

const (
	usernameField setupField = iota
	tokenField
)

type setupModel struct {
	opts *SetupTUIOpts

	usernameInput textinput.Model
	tokenInput    textinput.Model
	field         setupField

	errorMessage string
	done         bool
}

func newSetupModel(opts *SetupTUIOpts) setupModel {
	username := textinput.New()
	username.Placeholder = txtUsernamePlaceholder
	username.CharLimit = 39
	username.Width = 40
	username.PromptStyle = green
	username.TextStyle = green
	username.PlaceholderStyle = gray
	username.SetValue(opts.Username)

	token := textinput.New()
	token.Placeholder = txtTokenPlaceholder
	token.CharLimit = 255
	token.Width = 60
	token.EchoMode = textinput.EchoPassword
	token.EchoCharacter = '•'
	token.PromptStyle = green
	token.TextStyle = green
	token.PlaceholderStyle = gray
	token.SetValue(opts.Token)

	m := setupModel{
		opts:          opts,
		usernameInput: username,
		tokenInput:    token,
	}
	m.usernameInput.Focus()
	return m
}

func (m setupModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m setupModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m.updateFocused(msg)
	}

	switch key.Type {
	case tea.KeyCtrlC:
		return m, tea.Quit
	case tea.KeyEsc:
		if m.field == tokenField {
			m.field = usernameField
			m.tokenInput.Blur()
			m.usernameInput.Focus()
			m.errorMessage = ""
			return m, textinput.Blink
		}
		return m, tea.Quit
	case tea.KeyEnter:
		return m.submit()
	}

	m.errorMessage = ""
	return m.updateFocused(msg)
}

func (m setupModel) updateFocused(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	if m.field == usernameField {
		m.usernameInput, cmd = m.usernameInput.Update(msg)
	} else {
		m.tokenInput, cmd = m.tokenInput.Update(msg)
	}
	return m, cmd
}

func (m setupModel) submit() (tea.Model, tea.Cmd) {
	switch m.field {
	case usernameField:
		if strings.TrimSpace(m.usernameInput.Value()) == "" {
			m.errorMessage = txtMissingUsername
			return m, nil
		}
		m.field = tokenField
		m.usernameInput.Blur()
		m.tokenInput.Focus()
		m.errorMessage = ""
		return m, textinput.Blink
	default:
		if strings.TrimSpace(m.tokenInput.Value()) == "" {
			m.errorMessage = txtMissingToken
			return m, nil
		}
		m.done = true
		return m, tea.Quit
	}
}

func (m setupModel) result() SetupResult {
	return SetupResult{
		Username: strings.TrimSpace(m.usernameInput.Value()),
		Token:    strings.TrimSpace(m.tokenInput.Value()),
	}
}

func (m setupModel) View() string {
	var b strings.Builder
	b.WriteString(magenta.Bold(true).Render("Turnip setup"))
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("%s%s\n\n", gray.Render("Config  "), green.Render(m.opts.ConfigPath)))

	b.WriteString(txtUsernamePrompt)
	b.WriteString("\n")
	b.WriteString(m.usernameInput.View())
	if m.field == tokenField {
		b.WriteString("\n\n")
		b.WriteString(txtTokenPrompt)
		b.WriteString("\n")
		b.WriteString(m.tokenInput.View())
	}

	if m.errorMessage != "" {
		b.WriteString("\n\n")
		b.WriteString(red.Render(m.errorMessage))
	}
	b.WriteString("\n\n")
	b.WriteString(gray.Render(txtSetupHelp))
	b.WriteString("\n")
	return b.String()
}

// RunSetupTUI asks for the username and token interactively
func RunSetupTUI(opts SetupTUIOpts) (SetupResult, error) {
	model, err := tea.NewProgram(newSetupModel(&opts)).Run()
	if err != nil {
		return SetupResult{}, fmt.Errorf("setup prompt: %w", err)
	}

	fm, ok := model.(setupModel)
	if !ok || !fm.done {
		return SetupResult{}, errSetupCancelled
	}
	return fm.result(), nil
}
