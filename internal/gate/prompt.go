package gate

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/yangwenmai/casefill/internal/model"
)

// Prompter collects answers for a form from the operator.
type Prompter interface {
	Prompt(ctx context.Context, form Form) (map[string]string, error)
}

var (
	accent   = lipgloss.Color("#8BC34A")
	muted    = lipgloss.Color("#7a8699")
	danger   = lipgloss.Color("#e53935")
	titleSty = lipgloss.NewStyle().Bold(true).Foreground(accent).MarginBottom(1)
	groupSty = lipgloss.NewStyle().Bold(true).Underline(true)
	labelSty = lipgloss.NewStyle().Bold(true)
	hintSty  = lipgloss.NewStyle().Foreground(muted).Italic(true)
	errSty   = lipgloss.NewStyle().Foreground(danger)
	optSty   = lipgloss.NewStyle().Foreground(muted).PaddingLeft(4)
)

// TerminalPrompter asks for each field on a line-oriented terminal. Dropdown
// answers may be given as the option number or its text.
type TerminalPrompter struct {
	in  *bufio.Scanner
	out io.Writer
}

// NewTerminalPrompter creates a TerminalPrompter reading from in and writing to out.
func NewTerminalPrompter(in io.Reader, out io.Writer) *TerminalPrompter {
	return &TerminalPrompter{in: bufio.NewScanner(in), out: out}
}

// Prompt walks the form group by group. Required fields are asked again until
// answered; an empty answer skips an optional field.
func (p *TerminalPrompter) Prompt(ctx context.Context, form Form) (map[string]string, error) {
	answers := map[string]string{}
	if form.Empty() {
		return answers, nil
	}
	fmt.Fprintln(p.out, titleSty.Render(fmt.Sprintf("%d fields need your input (%d required)",
		len(form.Required)+len(form.Optional), len(form.Required))))

	for _, g := range form.Groups {
		fmt.Fprintln(p.out, groupSty.Render(g.Category))
		for _, d := range g.Fields {
			v, err := p.ask(ctx, d)
			if err != nil {
				return nil, err
			}
			if v != "" {
				answers[d.Key] = v
			}
		}
		fmt.Fprintln(p.out)
	}
	return answers, nil
}

func (p *TerminalPrompter) ask(ctx context.Context, d model.BlankFieldDescriptor) (string, error) {
	label := labelSty.Render(d.Label)
	if d.Required {
		label += errSty.Render(" *")
	} else {
		label += hintSty.Render(" (optional, Enter to skip)")
	}
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		fmt.Fprintln(p.out, label)
		if d.Type == model.FieldTypeDropdown {
			for i, o := range d.Options {
				fmt.Fprintln(p.out, optSty.Render(fmt.Sprintf("%d) %s", i+1, o)))
			}
		}
		fmt.Fprint(p.out, "> ")

		if !p.in.Scan() {
			if err := p.in.Err(); err != nil {
				return "", fmt.Errorf("read answer: %w", err)
			}
			return "", errors.New("input closed before all fields were answered")
		}
		v := strings.TrimSpace(p.in.Text())

		if v == "" {
			if !d.Required {
				return "", nil
			}
			fmt.Fprintln(p.out, errSty.Render("a value is required"))
			continue
		}
		if d.Type == model.FieldTypeDropdown && len(d.Options) > 0 {
			if n, err := strconv.Atoi(v); err == nil && n >= 1 && n <= len(d.Options) {
				return d.Options[n-1], nil
			}
			if !hasOption(d.Options, v) {
				fmt.Fprintln(p.out, errSty.Render("choose one of the listed options"))
				continue
			}
			return canonicalOption(d.Options, v), nil
		}
		return v, nil
	}
}

// StaticPrompter answers every form with fixed values.
type StaticPrompter map[string]string

// Prompt returns the values whose keys appear in the form.
func (s StaticPrompter) Prompt(_ context.Context, form Form) (map[string]string, error) {
	out := map[string]string{}
	for _, g := range form.Groups {
		for _, d := range g.Fields {
			if v, ok := s[d.Key]; ok {
				out[d.Key] = v
			}
		}
	}
	return out, nil
}
