package delay

import (
	"fmt"
	"math/rand"

	"github.com/clusterbed/clusterbed/testbed"
	"github.com/clusterbed/clusterbed/testbed/selection"
)

// Planner turns link selections and delay specs into Assignments. Random
// draws come from the delay subsystem of the run's PartitionedRNG, so a fixed
// seed reproduces the same plan.
type Planner struct {
	catalog *testbed.LinkCatalog
	rng     *rand.Rand
}

// NewPlanner creates a planner over catalog.
func NewPlanner(catalog *testbed.LinkCatalog, rng *testbed.PartitionedRNG) *Planner {
	return &Planner{
		catalog: catalog,
		rng:     rng.ForSubsystem(testbed.SubsystemDelay),
	}
}

// Plan evaluates an AllLinks, Selected or Composite command. Remove and NoOp
// carry no plan and are rejected.
func (p *Planner) Plan(cmd selection.Command) (Assignment, error) {
	switch c := cmd.(type) {
	case selection.AllLinks:
		return p.Evaluate(p.catalog.All(), c.Spec), nil

	case selection.Selected:
		links, err := selection.ResolveLinks(p.catalog, c.Subset)
		if err != nil {
			return nil, err
		}
		return p.Evaluate(links, c.Spec), nil

	case selection.Composite:
		links, err := selection.ResolveLinks(p.catalog, c.Subset)
		if err != nil {
			return nil, err
		}
		chosen := p.Evaluate(links, c.Spec)
		rest := p.Evaluate(p.catalog.LinksExcept(links), c.Other)
		return p.inCatalogOrder(append(chosen, rest...)), nil
	}
	return nil, fmt.Errorf("command %s has no delay plan", cmd.Name())
}

// Evaluate assigns spec to each link, drawing independently per link for
// random specs. Output follows catalog order.
func (p *Planner) Evaluate(links []testbed.Link, spec selection.DelaySpec) Assignment {
	ordered := testbed.SortLinks(append([]testbed.Link(nil), links...))
	out := make(Assignment, 0, len(ordered))
	for _, l := range ordered {
		out = append(out, LinkDelay{Link: l, DelayMs: spec.Draw(p.rng)})
	}
	return out
}

func (p *Planner) inCatalogOrder(a Assignment) Assignment {
	byLink := make(map[testbed.Link]int, len(a))
	for _, ld := range a {
		byLink[ld.Link] = ld.DelayMs
	}
	out := make(Assignment, 0, len(a))
	for _, l := range p.catalog.All() {
		if ms, ok := byLink[l]; ok {
			out = append(out, LinkDelay{Link: l, DelayMs: ms})
		}
	}
	return out
}
