// Package cluster resolves pairwise matches into disjoint groups of records
package cluster

import (
	"fmt"
	"sort"

	"github.com/intake-dedup/internal/patient"
)

// Edge is an undirected match between two patient ids
type Edge struct {
	Left  string
	Right string
}

// unionFind is a disjoint-set forest over dense integer nodes. Each root
// tracks the smallest patient id of its component so the representative
// falls out of the merge without a second pass.
type unionFind struct {
	parent []int
	rank   []int
	min    []string
}

func newUnionFind(ids []string) *unionFind {
	uf := &unionFind{
		parent: make([]int, len(ids)),
		rank:   make([]int, len(ids)),
		min:    make([]string, len(ids)),
	}
	for i, id := range ids {
		uf.parent[i] = i
		uf.min[i] = id
	}
	return uf
}

func (uf *unionFind) find(x int) int {
	for uf.parent[x] != x {
		uf.parent[x] = uf.parent[uf.parent[x]]
		x = uf.parent[x]
	}
	return x
}

func (uf *unionFind) union(a, b int) {
	ra, rb := uf.find(a), uf.find(b)
	if ra == rb {
		return
	}
	if uf.rank[ra] < uf.rank[rb] {
		ra, rb = rb, ra
	}
	uf.parent[rb] = ra
	if uf.rank[ra] == uf.rank[rb] {
		uf.rank[ra]++
	}
	if patient.LessID(uf.min[rb], uf.min[ra]) {
		uf.min[ra] = uf.min[rb]
	}
}

// Build computes the connected components of the match graph over ids and
// maps every id to the smallest id of its component, ordered by
// patient.LessID. Ids without edges map to themselves. Edges naming an id
// outside ids are an error: the caller matched records it did not cluster.
func Build(ids []string, edges []Edge) (map[string]string, error) {
	node := make(map[string]int, len(ids))
	for i, id := range ids {
		if _, dup := node[id]; dup {
			return nil, fmt.Errorf("duplicate id %q", id)
		}
		node[id] = i
	}

	uf := newUnionFind(ids)
	for _, e := range edges {
		l, ok := node[e.Left]
		if !ok {
			return nil, fmt.Errorf("edge %s-%s: unknown id %q", e.Left, e.Right, e.Left)
		}
		r, ok := node[e.Right]
		if !ok {
			return nil, fmt.Errorf("edge %s-%s: unknown id %q", e.Left, e.Right, e.Right)
		}
		uf.union(l, r)
	}

	out := make(map[string]string, len(ids))
	for i, id := range ids {
		out[id] = uf.min[uf.find(i)]
	}
	return out, nil
}

// Assign clusters set by edges and writes each record's DedupID. It returns
// the number of clusters, singletons included.
func Assign(set *patient.Set, edges []Edge) (int, error) {
	labels, err := Build(set.IDs(), edges)
	if err != nil {
		return 0, fmt.Errorf("cluster: %w", err)
	}

	clusters := make(map[string]struct{})
	for i := range set.Records {
		r := &set.Records[i]
		r.DedupID = labels[r.PatientID]
		clusters[r.DedupID] = struct{}{}
	}
	return len(clusters), nil
}

// Groups inverts a Build result into dedup id -> member ids, members in
// patient.LessID order
func Groups(labels map[string]string) map[string][]string {
	groups := make(map[string][]string)
	for id, rep := range labels {
		groups[rep] = append(groups[rep], id)
	}
	for _, members := range groups {
		sort.Slice(members, func(i, j int) bool {
			return patient.LessID(members[i], members[j])
		})
	}
	return groups
}
