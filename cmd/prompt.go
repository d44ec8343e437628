package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/clusterbed/clusterbed/testbed/delay"
	"github.com/clusterbed/clusterbed/testbed/selection"
)

// Interactive defaults.
const (
	defaultDelayMs     = 10
	defaultRandomMinMs = 10
	defaultRandomMaxMs = 100
	previewLinks       = 5
)

// errInterrupted ends an interactive session on signal or closed input.
var errInterrupted = errors.New("interrupted")

// prompter reads answers line by line. Reads are abandoned as soon as ctx is
// done so a signal never waits for the user to press enter.
type prompter struct {
	ctx   context.Context
	lines <-chan string
	out   io.Writer
}

func newPrompter(ctx context.Context, in io.Reader, out io.Writer) *prompter {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return &prompter{ctx: ctx, lines: lines, out: out}
}

func (p *prompter) printf(format string, args ...any) {
	fmt.Fprintf(p.out, format, args...)
}

// ask prints prompt and returns the trimmed answer.
func (p *prompter) ask(prompt string) (string, error) {
	p.printf("%s", prompt)
	select {
	case <-p.ctx.Done():
		return "", errInterrupted
	case line, ok := <-p.lines:
		if !ok {
			return "", errInterrupted
		}
		return strings.TrimSpace(line), nil
	}
}

func (p *prompter) confirm(prompt string) (bool, error) {
	answer, err := p.ask(prompt)
	if err != nil {
		return false, err
	}
	return strings.EqualFold(answer, "y") || strings.EqualFold(answer, "yes"), nil
}

// choice is the outcome of the interactive menu: either a planned assignment
// or a command without a plan (Remove, NoOp).
type choice struct {
	plan    delay.Assignment
	command selection.Command
}

// chooseInteractively walks the user through the delay menu.
func (p *prompter) chooseInteractively(s *delay.Session) (choice, error) {
	p.printf("\n=== Link Delay Configuration ===\n")
	p.printf("Select the target for delay configuration:\n")
	p.printf("  0. Set delay for all links\n")
	p.printf("  1. Manually set delay for some links\n")
	p.printf("  2. Remove existing delay settings\n")
	p.printf("  3. No delay (exit)\n")

	for {
		answer, err := p.ask("\nSelect (0-3): ")
		if err != nil {
			return choice{}, err
		}
		switch answer {
		case "0":
			return p.allLinks(s)
		case "1":
			return p.someLinks(s)
		case "2":
			return choice{command: selection.Remove{}}, nil
		case "3":
			p.printf("Skipping delay configuration.\n")
			return choice{command: selection.NoOp{}}, nil
		}
		p.printf("Error: Please enter one of 0, 1, 2, 3\n")
	}
}

func (p *prompter) allLinks(s *delay.Session) (choice, error) {
	links := s.Catalog().All()
	for {
		p.printf("\nSelect delay configuration method for all %d links:\n", len(links))
		p.printf("  0. Manually set the same delay\n")
		p.printf("  1. Assign random delays\n")

		answer, err := p.ask("\nSelect (0-1): ")
		if err != nil {
			return choice{}, err
		}
		switch answer {
		case "0":
			ms, err := p.askDelay()
			if err != nil {
				return choice{}, err
			}
			p.printf("\nSetting %dms delay for all %d links.\n", ms, len(links))
			return choice{plan: s.Planner().Evaluate(links, selection.Fixed(ms))}, nil
		case "1":
			spec, err := p.askRange()
			if err != nil {
				return choice{}, err
			}
			plan := s.Planner().Evaluate(links, spec)
			p.preview(plan)
			ok, err := p.confirm("\nIs this configuration okay? (y/n): ")
			if err != nil {
				return choice{}, err
			}
			if ok {
				return choice{plan: plan}, nil
			}
		default:
			p.printf("Error: Please enter 0 or 1\n")
		}
	}
}

func (p *prompter) someLinks(s *delay.Session) (choice, error) {
	p.printf("\nAvailable links:\n")
	for _, line := range s.DescribeLinks() {
		p.printf("  %s\n", line)
	}
	p.printf("\nSelection methods:\n")
	p.printf("  - Single: 1\n")
	p.printf("  - Multiple: 1,3,5\n")
	p.printf("  - Range: 1-5\n")
	p.printf("  - Mixed: 1,3-5,7\n")

	for {
		answer, err := p.ask("\nEnter link numbers: ")
		if err != nil {
			return choice{}, err
		}
		if answer == "" {
			p.printf("Error: Input is empty\n")
			continue
		}
		subset, err := selection.ParseLinkSubset(answer, s.Catalog().Len())
		if err != nil {
			p.printf("Error: %v\n", err)
			continue
		}
		links, err := selection.ResolveLinks(s.Catalog(), subset)
		if err != nil {
			p.printf("Error: %v\n", err)
			continue
		}

		p.printf("\nSelected links:\n")
		for _, l := range links {
			p.printf("  - %s\n", l)
		}
		ok, err := p.confirm("\nIs this okay? (y/n): ")
		if err != nil {
			return choice{}, err
		}
		if !ok {
			continue
		}

		ms, err := p.askDelay()
		if err != nil {
			return choice{}, err
		}
		p.printf("\nSetting %dms delay for %d selected links.\n", ms, len(links))
		return choice{plan: s.Planner().Evaluate(links, selection.Fixed(ms))}, nil
	}
}

func (p *prompter) askDelay() (int, error) {
	for {
		answer, err := p.ask(fmt.Sprintf("Delay time (ms) [default: %d]: ", defaultDelayMs))
		if err != nil {
			return 0, err
		}
		if answer == "" {
			return defaultDelayMs, nil
		}
		spec, err := selection.ParseDelaySpec(answer)
		if err != nil || spec.Random {
			p.printf("Error: Please enter a non-negative integer\n")
			continue
		}
		return spec.Min, nil
	}
}

func (p *prompter) askRange() (selection.DelaySpec, error) {
	p.printf("\nRandom delay configuration:\n")
	for {
		lo, err := p.askMillis(fmt.Sprintf("Minimum delay (ms) [default: %d]: ", defaultRandomMinMs), defaultRandomMinMs)
		if err != nil {
			return selection.DelaySpec{}, err
		}
		hi, err := p.askMillis(fmt.Sprintf("Maximum delay (ms) [default: %d]: ", defaultRandomMaxMs), defaultRandomMaxMs)
		if err != nil {
			return selection.DelaySpec{}, err
		}
		spec, err := selection.ParseDelaySpec(fmt.Sprintf("%d:%d", lo, hi))
		if err != nil {
			p.printf("Error: Minimum delay must be less than or equal to maximum delay\n")
			continue
		}
		return spec, nil
	}
}

// askMillis returns def on empty input and re-prompts until the answer is a
// non-negative integer.
func (p *prompter) askMillis(prompt string, def int) (int, error) {
	for {
		answer, err := p.ask(prompt)
		if err != nil {
			return 0, err
		}
		if answer == "" {
			return def, nil
		}
		spec, err := selection.ParseDelaySpec(answer)
		if err != nil || spec.Random {
			p.printf("Error: Please enter a non-negative integer\n")
			continue
		}
		return spec.Min, nil
	}
}

func (p *prompter) preview(plan delay.Assignment) {
	p.printf("\nRandomly assigned delays (sample, first %d links):\n", previewLinks)
	for i, ld := range plan {
		if i == previewLinks {
			break
		}
		p.printf("  %d. %s: %dms\n", i+1, ld.Link, ld.DelayMs)
	}
	if len(plan) > previewLinks {
		p.printf("  ... and %d more links\n", len(plan)-previewLinks)
	}
}
