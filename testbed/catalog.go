package testbed

import (
	"fmt"
	"sort"
)

// LinkCatalog is the deduplicated, canonically ordered set of undirected links
// of an adjacency relation. Users address links by their 1-based position in
// All(), so the order is part of the contract: ascending by source id, then by
// neighbor id within that source.
type LinkCatalog struct {
	ids       []ClusterID
	adjacency map[ClusterID]map[ClusterID]bool
	links     []Link
	index     map[Link]int // canonical link -> 1-based position
}

// NewLinkCatalog builds the catalog from an adjacency map. Clusters with no
// neighbors still count as clusters (they show up in ClusterIDs).
// Neighbor entries pointing at the cluster itself are ignored.
func NewLinkCatalog(adjacency map[ClusterID][]ClusterID) *LinkCatalog {
	c := &LinkCatalog{
		adjacency: make(map[ClusterID]map[ClusterID]bool, len(adjacency)),
		index:     make(map[Link]int),
	}
	for id, neighbors := range adjacency {
		c.ensure(id)
		for _, n := range neighbors {
			if n == id {
				continue
			}
			c.ensure(n)
			c.adjacency[id][n] = true
			c.adjacency[n][id] = true
		}
	}

	for id := range c.adjacency {
		c.ids = append(c.ids, id)
	}
	SortClusterIDs(c.ids)

	for _, src := range c.ids {
		neighbors := make([]ClusterID, 0, len(c.adjacency[src]))
		for n := range c.adjacency[src] {
			neighbors = append(neighbors, n)
		}
		SortClusterIDs(neighbors)
		for _, dst := range neighbors {
			link := NewLink(src, dst)
			if _, seen := c.index[link]; seen {
				continue
			}
			c.links = append(c.links, link)
			c.index[link] = len(c.links)
		}
	}
	return c
}

func (c *LinkCatalog) ensure(id ClusterID) {
	if _, ok := c.adjacency[id]; !ok {
		c.adjacency[id] = make(map[ClusterID]bool)
	}
}

// All returns every link in catalog order. The returned slice is a copy.
func (c *LinkCatalog) All() []Link {
	out := make([]Link, len(c.links))
	copy(out, c.links)
	return out
}

// Len returns the number of links.
func (c *LinkCatalog) Len() int {
	return len(c.links)
}

// At returns the link at 1-based position k.
func (c *LinkCatalog) At(k int) (Link, error) {
	if k < 1 || k > len(c.links) {
		return Link{}, fmt.Errorf("link number %d out of range 1-%d", k, len(c.links))
	}
	return c.links[k-1], nil
}

// Index returns the 1-based position of a link (in either orientation), or 0
// if the pair is not a link of the catalog.
func (c *LinkCatalog) Index(x, y ClusterID) int {
	if x == y {
		return 0
	}
	return c.index[NewLink(x, y)]
}

// Adjacent reports whether x and y share a link.
func (c *LinkCatalog) Adjacent(x, y ClusterID) bool {
	return c.adjacency[x][y]
}

// Neighbors returns the neighbors of id in ascending order.
func (c *LinkCatalog) Neighbors(id ClusterID) []ClusterID {
	out := make([]ClusterID, 0, len(c.adjacency[id]))
	for n := range c.adjacency[id] {
		out = append(out, n)
	}
	return SortClusterIDs(out)
}

// ClusterIDs returns every cluster id in ascending order.
func (c *LinkCatalog) ClusterIDs() []ClusterID {
	out := make([]ClusterID, len(c.ids))
	copy(out, c.ids)
	return out
}

// Describe returns one numbered line per link, e.g.
// "3. Cluster 0 - Cluster 4 (172.18.0.2 -> 172.18.0.6)". resolve maps a
// cluster to its gateway IP; unknown addresses are shown as "?".
func (c *LinkCatalog) Describe(resolve func(ClusterID) (string, bool)) []string {
	lines := make([]string, 0, len(c.links))
	for i, l := range c.links {
		line := fmt.Sprintf("%d. %s", i+1, l)
		if resolve != nil {
			line += fmt.Sprintf(" (%s -> %s)", addrOrUnknown(resolve, l.A), addrOrUnknown(resolve, l.B))
		}
		lines = append(lines, line)
	}
	return lines
}

func addrOrUnknown(resolve func(ClusterID) (string, bool), id ClusterID) string {
	if ip, ok := resolve(id); ok && ip != "" {
		return ip
	}
	return "?"
}

// LinksExcept returns the catalog links not contained in exclude, in catalog order.
func (c *LinkCatalog) LinksExcept(exclude []Link) []Link {
	skip := make(map[Link]bool, len(exclude))
	for _, l := range exclude {
		skip[l] = true
	}
	var out []Link
	for _, l := range c.links {
		if !skip[l] {
			out = append(out, l)
		}
	}
	return out
}

// SortLinks orders links by catalog convention (source, then destination).
func SortLinks(links []Link) []Link {
	sort.Slice(links, func(i, j int) bool {
		if links[i].A != links[j].A {
			return links[i].A < links[j].A
		}
		return links[i].B < links[j].B
	})
	return links
}
