// Package repl implements an interactive disassembly console for Quartz.
//
// Unlike a language REPL, the console never executes anything: each line
// (or balanced multiline block) of input is lexed, parsed, and compiled to
// an *irep.IREP, and the console prints that IREP's disassembly. It uses
// the Charm libraries (Bubbletea, Bubbles, and Lipgloss) for the terminal
// UI, input history, and syntax highlighting, the same stack and overall
// shape as a conventional language REPL.
//
// The main entry point is [Start].
package repl

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/quartzlang/quartz/codegen"
	"github.com/quartzlang/quartz/lexer"
	"github.com/quartzlang/quartz/parser"
	"github.com/quartzlang/quartz/token"
)

const (
	// Prompt is the default prompt for the console.
	Prompt = ">> "

	// ContPrompt is the continuation prompt used in multiline input mode.
	ContPrompt = ".. "
)

// Options contains configuration options for the console.
type Options struct {
	NoColor    bool // Disable syntax highlighting and colored output
	Debug      bool // Enable debug mode with more verbose output
	NoOptimize bool // Disable the peephole optimizer for compiled output
}

// Start initializes and runs the console against r/w with default options.
func Start(r io.Reader, w io.Writer) {
	StartWithOptions(r, w, Options{})
}

// StartWithOptions is [Start] with explicit [Options].
func StartWithOptions(r io.Reader, w io.Writer, options Options) {
	p := tea.NewProgram(initialModel(options), tea.WithInput(r), tea.WithOutput(w))
	if _, err := p.Run(); err != nil {
		fmt.Fprintln(w, "Error running program:", err)
	}
}

// Styling
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#7D56F4")).
			Bold(true)

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#04B575"))

	// Error styles
	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF5F87"))

	parseErrorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF5F87")).
			Bold(true)

	codegenErrorStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#FF8700")).
				Bold(true)

	errorTipStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFAF00"))

	historyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#767676"))

	// Syntax highlighting styles
	keywordStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF79C6")).
			Bold(true)

	identifierStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#F8F8F2"))

	literalStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F1FA8C"))

	operatorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF5555"))

	delimiterStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#BD93F9"))

	stringStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#50FA7B"))
)

// ErrorType represents the type of error that occurred.
type ErrorType int

const (
	// NoError indicates that no error occurred.
	NoError ErrorType = iota

	// ParseError indicates a syntax error.
	ParseError

	// CodegenError indicates a code-generation error (e.g. an unresolved
	// local variable, a register-file overflow).
	CodegenError
)

// Custom messages for async compilation
type compileResultMsg struct {
	output    string
	isError   bool
	errorType ErrorType
	elapsed   time.Duration
}

// The model represents the state of the application
type model struct {
	textInput       textinput.Model
	history         []historyEntry
	compiling       bool
	currentInput    string
	multilineBuffer string // Buffer for multiline input
	isMultiline     bool   // Flag to indicate if we're in multiline mode
	spinner         spinner.Model
	options         Options
	seq             int // source file index fed to lexer.New
}

// applyStyle applies a lipgloss style to a string, respecting the NoColor option
func (m model) applyStyle(style lipgloss.Style, text string) string {
	if m.options.NoColor {
		return text
	}
	return style.Render(text)
}

// historyEntry represents a single entry in the console history
type historyEntry struct {
	input          string
	output         string
	isError        bool
	errorType      ErrorType
	evaluationTime time.Duration
}

// initialModel creates a new model with default values
func initialModel(options Options) model {
	ti := textinput.New()
	ti.Placeholder = "Enter Quartz code"
	ti.Focus()
	ti.Width = 80
	ti.Prompt = promptStyle.Render(Prompt)

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF79C6"))

	return model{
		textInput:       ti,
		history:         []historyEntry{},
		compiling:       false,
		multilineBuffer: "",
		isMultiline:     false,
		spinner:         s,
		options:         options,
	}
}

// Init is the first function that will be called
func (m model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick)
}

// isBalanced checks if brackets, braces, and parentheses are balanced in the input
func isBalanced(input string) bool {
	var stack []rune

	for _, char := range input {
		switch char {
		case '(', '{', '[':
			stack = append(stack, char)
		case ')':
			if len(stack) == 0 || stack[len(stack)-1] != '(' {
				return false
			}
			stack = stack[:len(stack)-1]
		case '}':
			if len(stack) == 0 || stack[len(stack)-1] != '{' {
				return false
			}
			stack = stack[:len(stack)-1]
		case ']':
			if len(stack) == 0 || stack[len(stack)-1] != '[' {
				return false
			}
			stack = stack[:len(stack)-1]
		}
	}

	return len(stack) == 0
}

// compileCmd is a command that lexes, parses, and compiles Quartz code
// asynchronously, returning the resulting IREP's disassembly.
func compileCmd(input string, seq int, options Options) tea.Cmd {
	return func() tea.Msg {
		start := time.Now()

		l := lexer.New(input, seq)
		p := parser.New(l)
		program := p.ParseProgram()

		var output string
		isError := false
		errorType := NoError

		if errs := p.Errors(); len(errs) != 0 {
			isError = true
			errorType = ParseError
			output = formatParseErrors(errs)
			if options.Debug {
				fmt.Printf("DEBUG: parse errors: %v\n", errs)
			}
		} else {
			genStart := time.Now()
			ir, err := codegen.Generate(program, codegen.Options{Filename: "<console>", NoOptimize: options.NoOptimize})
			genTime := time.Since(genStart)
			if options.Debug {
				fmt.Printf("DEBUG: codegen time: %v\n", genTime)
			}
			if err != nil {
				isError = true
				errorType = CodegenError
				output = formatCodegenError(err.Error())
			} else {
				output = ir.Disassemble()
			}
		}

		elapsed := time.Since(start)
		if options.Debug {
			fmt.Printf("DEBUG: total time: %v\n", elapsed)
		}

		return compileResultMsg{
			output:    output,
			isError:   isError,
			errorType: errorType,
			elapsed:   elapsed,
		}
	}
}

// formatError formats error messages.
func (m model) formatError(errorStyle *lipgloss.Style, entry *historyEntry, s *strings.Builder) {
	// Split the output to separate the error message from the tips
	parts := strings.Split(entry.output, "\nTips:")
	if len(parts) > 1 {
		if m.options.NoColor {
			s.WriteString(parts[0])
			s.WriteString("\n")
			s.WriteString("Tips:" + parts[1])
		} else {
			s.WriteString(errorStyle.Render(parts[0]))
			s.WriteString("\n")
			s.WriteString(errorTipStyle.Render("Tips:" + parts[1]))
		}
	} else {
		if m.options.NoColor {
			s.WriteString(entry.output)
		} else {
			s.WriteString(errorStyle.Render(entry.output))
		}
	}
}

// Update handles all the updates to our model
func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case spinner.TickMsg:
		if m.compiling {
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}

	case compileResultMsg:
		m.compiling = false

		m.history = append(m.history, historyEntry{
			input:          m.currentInput,
			output:         msg.output,
			isError:        msg.isError,
			errorType:      msg.errorType,
			evaluationTime: msg.elapsed,
		})

		m.currentInput = ""
		m.seq++
		return m, nil

	case tea.KeyMsg:
		if m.compiling && msg.Type != tea.KeyCtrlC {
			return m, m.spinner.Tick
		}

		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc, tea.KeyCtrlD:
			return m, tea.Quit
		case tea.KeyEnter:
			input := m.textInput.Value()
			if input == "" {
				if m.isMultiline {
					if m.multilineBuffer == "" {
						m.isMultiline = false
						return m, nil
					}

					m.compiling = true
					m.currentInput = m.multilineBuffer
					m.textInput.SetValue("")
					m.isMultiline = false

					buffer := m.multilineBuffer
					m.multilineBuffer = ""

					return m, compileCmd(buffer, m.seq, m.options)
				}
				return m, nil
			}

			if m.isMultiline {
				m.multilineBuffer += "\n" + input
				m.textInput.SetValue("")

				if isBalanced(m.multilineBuffer) {
					m.compiling = true
					m.currentInput = m.multilineBuffer
					m.isMultiline = false

					buffer := m.multilineBuffer
					m.multilineBuffer = ""

					return m, compileCmd(buffer, m.seq, m.options)
				}

				return m, nil
			}

			if !isBalanced(input) {
				m.isMultiline = true
				m.multilineBuffer = input
				m.textInput.SetValue("")
				return m, nil
			}

			m.compiling = true
			m.currentInput = input
			m.textInput.SetValue("")

			return m, compileCmd(input, m.seq, m.options)
		}
	}

	if !m.compiling {
		m.textInput, cmd = m.textInput.Update(msg)
	}

	if m.compiling {
		return m, m.spinner.Tick
	}

	return m, cmd
}

// View renders the current UI
func (m model) View() string {
	var s strings.Builder

	s.WriteString(m.applyStyle(titleStyle, " Quartz Disassembly Console "))
	s.WriteString("\n\n")

	for _, entry := range m.history {
		lines := strings.Split(entry.input, "\n")
		for i, line := range lines {
			if i == 0 {
				s.WriteString(m.applyStyle(promptStyle, Prompt))
			} else {
				s.WriteString(m.applyStyle(promptStyle, ContPrompt))
			}
			s.WriteString(m.highlightCode(line))
			s.WriteString("\n")
		}

		if entry.isError {
			switch entry.errorType {
			case ParseError:
				m.formatError(&parseErrorStyle, &entry, &s)
			case CodegenError:
				m.formatError(&codegenErrorStyle, &entry, &s)
			default:
				if m.options.NoColor {
					s.WriteString(entry.output)
				} else {
					s.WriteString(errorStyle.Render(entry.output))
				}
			}
		} else {
			if m.options.NoColor {
				s.WriteString(entry.output)
			} else {
				s.WriteString(resultStyle.Render(entry.output))
			}
		}

		if entry.evaluationTime > 10*time.Millisecond {
			timeStr := fmt.Sprintf(" (%.2fs)", entry.evaluationTime.Seconds())
			if m.options.NoColor {
				s.WriteString(timeStr)
			} else {
				s.WriteString(historyStyle.Render(timeStr))
			}
		}

		s.WriteString("\n\n")
	}

	if m.compiling {
		if m.options.NoColor {
			s.WriteString(Prompt)
		} else {
			s.WriteString(promptStyle.Render(Prompt))
		}
		s.WriteString(m.highlightCode(m.currentInput))
		s.WriteString("\n")
		s.WriteString(m.spinner.View())
		s.WriteString(" Compiling...")
		s.WriteString("\n\n")
	}

	if m.isMultiline && !m.compiling {
		if m.options.NoColor {
			s.WriteString("Current multiline input:\n")
		} else {
			s.WriteString(historyStyle.Render("Current multiline input:\n"))
		}
		s.WriteString(m.highlightCode(m.multilineBuffer))
		s.WriteString("\n")
	}

	if !m.compiling {
		if m.isMultiline {
			if m.options.NoColor {
				m.textInput.Prompt = ContPrompt
			} else {
				m.textInput.Prompt = promptStyle.Render(ContPrompt)
			}
		} else {
			if m.options.NoColor {
				m.textInput.Prompt = Prompt
			} else {
				m.textInput.Prompt = promptStyle.Render(Prompt)
			}
		}
		s.WriteString(m.textInput.View())
		s.WriteString("\n")
	}

	helpText := "\nPress Esc or Ctrl+C/D to exit"
	if m.isMultiline {
		helpText += " | Multiline mode: Enter empty line to compile or continue typing"
	} else {
		helpText += " | Multiline input supported for unbalanced brackets"
	}
	if m.options.NoColor {
		s.WriteString(helpText)
	} else {
		s.WriteString(historyStyle.Render(helpText))
	}

	return s.String()
}

// formatParseErrors formats parser errors into a string with improved readability
func formatParseErrors(errors []string) string {
	var s strings.Builder
	s.WriteString("Parse Errors:\n")

	for i, msg := range errors {
		s.WriteString(fmt.Sprintf("  %d. %s\n", i+1, msg))
	}

	s.WriteString("\nTips:\n")
	s.WriteString("  • Check for missing `end`s, parentheses, or commas\n")
	s.WriteString("  • Verify that every `if`/`def`/`class`/`while`/`begin` is closed\n")
	s.WriteString("  • Ensure variable and method names are valid identifiers\n")

	return s.String()
}

// formatCodegenError formats a code-generation error into a string with
// improved readability.
func formatCodegenError(errMsg string) string {
	var s strings.Builder
	s.WriteString("Codegen Error:\n")
	s.WriteString("  " + errMsg + "\n")

	s.WriteString("\nTips:\n")

	//nolint:gocritic
	if strings.Contains(errMsg, "undefined local variable") {
		s.WriteString("  • The name must be assigned before it's read as a local\n")
		s.WriteString("  • An unassigned bare name compiles as an implicit-self call instead\n")
	} else if strings.Contains(errMsg, "too complex expression") {
		s.WriteString("  • The expression pushed more live values than the register file holds\n")
		s.WriteString("  • Try breaking a very deep expression into intermediate assignments\n")
	} else if strings.Contains(errMsg, "yield") {
		s.WriteString("  • `yield` is only valid inside a method body\n")
	} else if strings.Contains(errMsg, "super") {
		s.WriteString("  • `super` is only valid inside a method body\n")
	} else {
		s.WriteString("  • Review the construct around the reported line\n")
	}

	return s.String()
}

// highlightCode applies syntax highlighting and formatting to Quartz code.
//
//nolint:gocyclo
func (m model) highlightCode(code string) string {
	l := lexer.New(code, 0)
	var s strings.Builder

	var tokens []token.Token
	for {
		tok := l.NextToken()
		tokens = append(tokens, tok)
		if tok.Type == token.EOF {
			break
		}
	}

	isKeyword := func(t token.Token) bool {
		switch t.Type {
		case token.DEF, token.END, token.IF, token.ELSIF, token.ELSE, token.UNLESS,
			token.WHILE, token.UNTIL, token.FOR, token.IN, token.DO, token.THEN,
			token.CASE, token.WHEN, token.CLASS, token.MODULE, token.SELF, token.NIL,
			token.TRUE, token.FALSE, token.AND, token.OR, token.NOT, token.RETURN,
			token.BREAK, token.NEXT, token.REDO, token.RETRY, token.BEGIN, token.RESCUE,
			token.ENSURE, token.YIELD, token.SUPER, token.ALIAS, token.UNDEF:
			return true
		}
		return false
	}
	isOperator := func(t token.Token) bool {
		switch t.Type {
		case token.ASSIGN, token.PLUS, token.MINUS, token.BANG, token.STAR, token.SLASH,
			token.LT, token.GT, token.EQ, token.NOTEQ, token.LTE, token.GTE, token.CMP,
			token.CASEEQ, token.ANDAND, token.OROR, token.DOT, token.SCOPE:
			return true
		}
		return false
	}
	isOpenParen := func(t token.Token) bool { return t.Type == token.LPAREN }
	isCloseParen := func(t token.Token) bool { return t.Type == token.RPAREN }
	isDelimiter := func(t token.Token) bool {
		switch t.Type {
		case token.COMMA, token.COLON, token.SEMICOLON, token.LPAREN, token.RPAREN,
			token.LBRACE, token.RBRACE, token.LBRACKET, token.RBRACKET:
			return true
		}
		return false
	}

	for i := 0; i < len(tokens)-1; i++ {
		tok := tokens[i]
		if tok.Type == token.EOF {
			continue
		}
		var prev token.Token
		if i > 0 {
			prev = tokens[i-1]
		}
		next := tokens[i+1]

		if isKeyword(tok) {
			if m.options.NoColor {
				s.WriteString(tok.Literal)
			} else {
				s.WriteString(keywordStyle.Render(tok.Literal))
			}
			if !isDelimiter(next) {
				s.WriteString(" ")
			}
			continue
		}

		if isOperator(tok) {
			isPrefixOp := tok.Type == token.BANG || tok.Type == token.NOT ||
				(tok.Type == token.MINUS && (i == 0 || isOpenParen(prev) || isOperator(prev) || isDelimiter(prev)))

			if !isPrefixOp && i > 0 && (!isDelimiter(prev) || isCloseParen(prev)) {
				s.WriteString(" ")
			}
			if m.options.NoColor {
				s.WriteString(tok.Literal)
			} else {
				s.WriteString(operatorStyle.Render(tok.Literal))
			}
			if !isPrefixOp {
				s.WriteString(" ")
			}
			continue
		}

		switch tok.Type {
		case token.IDENT, token.CONST:
			if m.options.NoColor {
				s.WriteString(tok.Literal)
			} else {
				s.WriteString(identifierStyle.Render(tok.Literal))
			}
		case token.INT, token.FLOAT:
			if m.options.NoColor {
				s.WriteString(tok.Literal)
			} else {
				s.WriteString(literalStyle.Render(tok.Literal))
			}
		case token.STRING:
			if m.options.NoColor {
				s.WriteString("\"" + tok.Literal + "\"")
			} else {
				s.WriteString(stringStyle.Render("\"" + tok.Literal + "\""))
			}
		case token.SYMBOL:
			if m.options.NoColor {
				s.WriteString(":" + tok.Literal)
			} else {
				s.WriteString(literalStyle.Render(":" + tok.Literal))
			}
		case token.COMMA, token.COLON, token.SEMICOLON, token.LPAREN, token.RPAREN,
			token.LBRACE, token.RBRACE, token.LBRACKET, token.RBRACKET:
			if m.options.NoColor {
				s.WriteString(tok.Literal)
			} else {
				s.WriteString(delimiterStyle.Render(tok.Literal))
			}
		default:
			s.WriteString(tok.Literal)
		}

		if tok.Type == token.NEWLINE {
			continue
		}
		if next.Type != token.EOF && !isDelimiter(next) && tok.Type != token.LBRACKET && tok.Type != token.LPAREN {
			s.WriteString(" ")
		}
	}

	return s.String()
}
