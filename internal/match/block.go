package match

import "sort"

// Block is a group of records sharing the exact same blocking key
type Block struct {
	Key     string
	Members []int // record indexes, in set order
}

// Blocks groups the indexed records by the normalised value of key. Records
// with an empty key are left out. Blocks come back sorted by key, and blocks
// with a single member are dropped since they yield no pairs.
func Blocks(idx *Index, key Field) []Block {
	groups := make(map[string][]int)
	for i := 0; i < idx.Len(); i++ {
		k := idx.Value(i, key)
		if k == "" {
			continue
		}
		groups[k] = append(groups[k], i)
	}

	blocks := make([]Block, 0, len(groups))
	for k, members := range groups {
		if len(members) < 2 {
			continue
		}
		blocks = append(blocks, Block{Key: k, Members: members})
	}
	sort.Slice(blocks, func(i, j int) bool {
		return blocks[i].Key < blocks[j].Key
	})
	return blocks
}

// PairCount is the number of unordered pairs the block yields
func (b Block) PairCount() int {
	n := len(b.Members)
	return n * (n - 1) / 2
}

// EachPair calls fn for every unordered pair of distinct members, with
// left always earlier in set order than right
func (b Block) EachPair(fn func(left, right int)) {
	for i := 0; i < len(b.Members); i++ {
		for j := i + 1; j < len(b.Members); j++ {
			fn(b.Members[i], b.Members[j])
		}
	}
}
