// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tablewise Contributors

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/tablewise/aiwaiter/internal/config"
	"github.com/tablewise/aiwaiter/internal/provider"
	"github.com/tablewise/aiwaiter/internal/secrets"
	apperr "github.com/tablewise/aiwaiter/pkg/errors"
)

// initHTTPClient is used for key validation. Tests replace it.
var initHTTPClient = &http.Client{Timeout: 10 * time.Second}

var supportedProviders = []provider.ProviderName{
	provider.ProviderAnthropic,
	provider.ProviderOpenAI,
	provider.ProviderGoogle,
}

type initStep int

const (
	stepProvider initStep = iota
	stepAPIKey
	stepValidate
	stepDone
	stepError
)

type initResult struct {
	Provider provider.ProviderName
	APIKey   string
}

type (
	keyValidMsg   struct{}
	keyInvalidMsg struct{ err error }
	configWritten struct{ path string }
)

// initModel is the bubbletea model behind `aiwaiter init`.
type initModel struct {
	step        initStep
	providerIdx int
	keyInput    textinput.Model
	spinner     spinner.Model
	result      initResult
	keyErr      string
	configPath  string
	store       secrets.Store
	force       bool
	errFinal    error
}

func newInitModel(store secrets.Store, force bool) initModel {
	key := textinput.New()
	key.Placeholder = "paste API key here"
	key.EchoMode = textinput.EchoPassword
	key.EchoCharacter = '•'

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = spinnerStyle

	return initModel{
		step:     stepProvider,
		keyInput: key,
		spinner:  sp,
		store:    store,
		force:    force,
	}
}

func (m initModel) Init() tea.Cmd { return nil }

func (m initModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch m.step {
		case stepProvider:
			return m.handleProviderKey(msg)
		case stepAPIKey:
			return m.handleAPIKey(msg)
		}
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case keyValidMsg:
		return m, writeConfigCmd(m.result, m.store, m.force)

	case keyInvalidMsg:
		m.keyErr = msg.err.Error()
		m.step = stepAPIKey
		m.keyInput.Focus()
		return m, nil

	case configWritten:
		m.step = stepDone
		m.configPath = msg.path
		return m, tea.Quit

	case error:
		m.step = stepError
		m.errFinal = msg
		return m, tea.Quit
	}

	if m.step == stepAPIKey {
		var cmd tea.Cmd
		m.keyInput, cmd = m.keyInput.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m initModel) handleProviderKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		if m.providerIdx > 0 {
			m.providerIdx--
		}
	case "down", "j":
		if m.providerIdx < len(supportedProviders)-1 {
			m.providerIdx++
		}
	case "enter":
		m.result.Provider = supportedProviders[m.providerIdx]
		m.step = stepAPIKey
		m.keyErr = ""
		m.keyInput.SetValue("")
		m.keyInput.Focus()
		return m, textinput.Blink
	case "q", "ctrl+c":
		return m, tea.Quit
	}
	return m, nil
}

func (m initModel) handleAPIKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		key := strings.TrimSpace(m.keyInput.Value())
		if key == "" {
			m.keyErr = "API key must not be empty"
			return m, nil
		}
		m.result.APIKey = key
		m.keyErr = ""
		m.step = stepValidate
		return m, tea.Batch(m.spinner.Tick, validateKeyCmd(m.result.Provider, key))
	case "esc":
		m.step = stepProvider
		m.keyInput.Blur()
		return m, nil
	case "ctrl+c":
		return m, tea.Quit
	}
	var cmd tea.Cmd
	m.keyInput, cmd = m.keyInput.Update(msg)
	return m, cmd
}

func (m initModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("  aiwaiter setup  ") + "\n\n")

	switch m.step {
	case stepProvider:
		b.WriteString(promptStyle.Render("Choose the LLM provider for the waiter agents") + "\n\n")
		for i, p := range supportedProviders {
			if i == m.providerIdx {
				b.WriteString(selectedStyle.Render("  > "+string(p)) + "\n")
			} else {
				b.WriteString(dimStyle.Render("    "+string(p)) + "\n")
			}
		}
		b.WriteString("\n" + dimStyle.Render("↑/↓ to navigate  enter to select  q to quit"))

	case stepAPIKey:
		b.WriteString(promptStyle.Render(string(m.result.Provider)+" API key") + "\n\n")
		b.WriteString(m.keyInput.View() + "\n")
		if m.keyErr != "" {
			b.WriteString("\n" + errorStyle.Render("  "+m.keyErr) + "\n")
		}
		b.WriteString("\n" + dimStyle.Render("enter to continue  esc to go back  ctrl+c to quit"))

	case stepValidate:
		b.WriteString(m.spinner.View() + " Checking " + string(m.result.Provider) + " API key…\n")

	case stepDone:
		b.WriteString(successStyle.Render("  Setup complete  ") + "\n\n")
		b.WriteString(dimStyle.Render("Config written to: "+m.configPath) + "\n\n")
		b.WriteString("Run " + promptStyle.Render("aiwaiter seed") + " then " + promptStyle.Render("aiwaiter start") + ".\n")
		b.WriteString("Run " + promptStyle.Render("aiwaiter doctor") + " to verify setup.\n")

	case stepError:
		b.WriteString(errorStyle.Render("Setup failed: "+m.errFinal.Error()) + "\n")
	}

	return boxStyle.Render(b.String())
}

func validateKeyCmd(p provider.ProviderName, key string) tea.Cmd {
	return func() tea.Msg {
		if err := provider.ValidateKey(context.Background(), initHTTPClient, p, key); err != nil {
			return keyInvalidMsg{err: err}
		}
		return keyValidMsg{}
	}
}

func writeConfigCmd(result initResult, store secrets.Store, force bool) tea.Cmd {
	return func() tea.Msg {
		path, err := storeKeyAndWriteConfig(result, store, force)
		if err != nil {
			return err
		}
		return configWritten{path: path}
	}
}

// GenerateConfigYAML renders a starter config that references the provider
// key through the keyring.
func GenerateConfigYAML(result initResult) string {
	model := defaultModelForProvider(result.Provider)

	var b strings.Builder
	b.WriteString("# aiwaiter configuration, generated by aiwaiter init\n\n")
	b.WriteString("networking:\n")
	b.WriteString("  listen: \"127.0.0.1:8080\"\n\n")
	b.WriteString("storage:\n")
	b.WriteString("  backend: sqlite\n")
	b.WriteString("  path: aiwaiter.db\n\n")
	b.WriteString("providers:\n")
	fmt.Fprintf(&b, "  %s:\n", result.Provider)
	fmt.Fprintf(&b, "    api_key: %q\n\n", secrets.KeyringURI(secrets.DefaultService, string(result.Provider)))
	b.WriteString("models:\n")
	fmt.Fprintf(&b, "  default: %q\n\n", model)
	b.WriteString("agents:\n")
	b.WriteString("  guardian:\n")
	b.WriteString("    temperature: 0\n")
	b.WriteString("  waiter:\n")
	b.WriteString("    max_tool_iterations: 4\n")
	return b.String()
}

func defaultModelForProvider(p provider.ProviderName) string {
	switch p {
	case provider.ProviderOpenAI:
		return "openai/gpt-4o-mini"
	case provider.ProviderGoogle:
		return "google/gemini-2.0-flash"
	default:
		return "anthropic/claude-sonnet-4-5"
	}
}

// storeKeyAndWriteConfig saves the key to the keyring, then writes the config.
// An existing config is kept unless force is set.
func storeKeyAndWriteConfig(result initResult, store secrets.Store, force bool) (string, error) {
	path, err := configPathForWrite()
	if err != nil {
		return "", err
	}
	if !force {
		if _, statErr := os.Stat(path); statErr == nil {
			return "", apperr.Errorf(apperr.CodeConfigAlreadyExists,
				"config file already exists at %s; use --force to overwrite", path)
		}
	}

	if err := store.Store(secrets.DefaultService, string(result.Provider), result.APIKey); err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return "", apperr.Wrapf(err, apperr.CodeCLISetupFailure, "creating config directory for %s", path)
	}
	if err := os.WriteFile(path, []byte(GenerateConfigYAML(result)), 0o600); err != nil {
		return "", apperr.Wrapf(err, apperr.CodeCLISetupFailure, "writing config to %s", path)
	}
	return path, nil
}

// configPathForWrite is a variable so tests can redirect it.
var configPathForWrite = config.DefaultConfigPath

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Interactive setup wizard",
		Long: `Pick an LLM provider, paste its API key and write a starter config.

The key is checked against the provider, stored in the OS keyring and
referenced from the config as keyring://aiwaiter/<provider>.`,
		RunE: runInit,
	}
	cmd.Flags().Bool("force", false, "overwrite an existing config file")
	return cmd
}

func runInit(cmd *cobra.Command, _ []string) error {
	f, ok := cmd.InOrStdin().(*os.File)
	if !ok || !isTerminal(f) {
		_, _ = fmt.Fprintln(cmd.ErrOrStderr(),
			"aiwaiter init requires an interactive terminal.\n"+
				"Edit ~/.config/aiwaiter/aiwaiter.yaml directly and use `aiwaiter secret set` for keys.")
		return apperr.New(apperr.CodeCLISetupFailure, "init: not an interactive terminal")
	}

	force, _ := cmd.Flags().GetBool("force")
	final, err := tea.NewProgram(newInitModel(secretStoreFactory(), force), tea.WithAltScreen()).Run()
	if err != nil {
		return apperr.Wrap(err, apperr.CodeCLISetupFailure, "init wizard")
	}

	fm, ok := final.(initModel)
	if !ok {
		return apperr.New(apperr.CodeCLISetupFailure, "unexpected model type after wizard")
	}
	if fm.errFinal != nil {
		return fm.errFinal
	}
	if fm.step == stepDone {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Config written to %s\n", fm.configPath)
	}
	return nil
}

func isTerminal(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}
