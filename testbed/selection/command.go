package selection

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/clusterbed/clusterbed/testbed"
)

// Batch command modes, as typed on the command line.
const (
	ModeAllLinks = 0
	ModeSelected = 1
	ModeRemove   = 2
	ModeNoOp     = 3
)

// otherPrefix introduces the delay for every link outside a composite subset.
const otherPrefix = "other="

// Command is one delay-orchestration request. The concrete types are
// AllLinks, Selected, Composite, Remove and NoOp.
type Command interface {
	// Name is a short label for logs.
	Name() string
	command()
}

// AllLinks sets every catalog link from Spec.
type AllLinks struct {
	Spec DelaySpec
}

// Selected sets the links at 1-based positions Subset from Spec.
type Selected struct {
	Subset []int
	Spec   DelaySpec
}

// Composite sets Subset from Spec and every remaining link from Other.
type Composite struct {
	Subset []int
	Spec   DelaySpec
	Other  DelaySpec
}

// Remove clears all shaping state from every node.
type Remove struct{}

// NoOp leaves shaping state as it is.
type NoOp struct{}

func (AllLinks) Name() string  { return "all-links" }
func (Selected) Name() string  { return "selected" }
func (Composite) Name() string { return "composite" }
func (Remove) Name() string    { return "remove" }
func (NoOp) Name() string      { return "no-op" }

func (AllLinks) command()  {}
func (Selected) command()  {}
func (Composite) command() {}
func (Remove) command()    {}
func (NoOp) command()      {}

// ParseMode parses a mode argument ("0".."3").
func ParseMode(s string) (int, error) {
	mode, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || mode < ModeAllLinks || mode > ModeNoOp {
		return 0, &testbed.SelectionError{Input: s, Reason: "mode must be 0 (all links), 1 (selected links), 2 (remove) or 3 (no-op)"}
	}
	return mode, nil
}

// ParseBatch turns a mode and its trailing arguments into a Command.
//
//	0 <delay>
//	1 <subset> <delay>
//	1 <subset>=<delay> other=<delay>
//	2
//	3
func ParseBatch(mode int, args []string, linkCount int) (Command, error) {
	joined := strings.Join(args, " ")
	usage := func(reason string) error {
		return &testbed.SelectionError{Input: fmt.Sprintf("%d %s", mode, joined), Reason: reason}
	}

	switch mode {
	case ModeAllLinks:
		if len(args) != 1 {
			return nil, usage("mode 0 takes exactly one delay argument")
		}
		spec, err := ParseDelaySpec(args[0])
		if err != nil {
			return nil, err
		}
		return AllLinks{Spec: spec}, nil

	case ModeSelected:
		if len(args) != 2 {
			return nil, usage("mode 1 takes '<subset> <delay>' or '<subset>=<delay> other=<delay>'")
		}
		if strings.HasPrefix(args[1], otherPrefix) {
			return parseComposite(args, linkCount, usage)
		}
		if strings.Contains(args[0], "=") {
			return nil, usage("composite form needs a second argument starting with " + otherPrefix)
		}
		subset, err := ParseLinkSubset(args[0], linkCount)
		if err != nil {
			return nil, err
		}
		spec, err := ParseDelaySpec(args[1])
		if err != nil {
			return nil, err
		}
		return Selected{Subset: subset, Spec: spec}, nil

	case ModeRemove:
		if len(args) != 0 {
			return nil, usage("mode 2 takes no arguments")
		}
		return Remove{}, nil

	case ModeNoOp:
		if len(args) != 0 {
			return nil, usage("mode 3 takes no arguments")
		}
		return NoOp{}, nil
	}
	return nil, usage("unknown mode")
}

func parseComposite(args []string, linkCount int, usage func(string) error) (Command, error) {
	subsetPart, specPart, ok := strings.Cut(args[0], "=")
	if !ok {
		return nil, usage("first argument must be '<subset>=<delay>'")
	}
	subset, err := ParseLinkSubset(subsetPart, linkCount)
	if err != nil {
		return nil, err
	}
	spec, err := ParseDelaySpec(specPart)
	if err != nil {
		return nil, err
	}
	other, err := ParseDelaySpec(strings.TrimPrefix(args[1], otherPrefix))
	if err != nil {
		return nil, err
	}
	return Composite{Subset: subset, Spec: spec, Other: other}, nil
}
