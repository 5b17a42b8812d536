package cluster

// Community detection under the Constant Potts Model. The quality of a
// partition is sum_c [ w_internal(c) - resolution * n_c*(n_c-1)/2 ], so a
// node joins a community when its edge weight into it beats the resolution
// cost of the community's size. Local moving iterates to a fixed point.

const maxMovePasses = 32

// detectCommunities assigns each node a community id. adjacency[i] maps
// neighbor index to edge weight.
func detectCommunities(adjacency []map[int]float64, resolution float64) []int {
	n := len(adjacency)
	membership := make([]int, n)
	for i := range membership {
		membership[i] = i
	}
	size := make(map[int]int, n)
	for i := 0; i < n; i++ {
		size[i] = 1
	}

	nextComm := n
	for pass := 0; pass < maxMovePasses; pass++ {
		moved := false
		for v := 0; v < n; v++ {
			current := membership[v]

			// Edge weight from v into each adjacent community.
			weightTo := make(map[int]float64)
			for u, w := range adjacency[v] {
				weightTo[membership[u]] += w
			}

			// Gain of staying, with v removed from its own community.
			bestComm := current
			bestGain := weightTo[current] - resolution*float64(size[current]-1)

			for comm, w := range weightTo {
				if comm == current {
					continue
				}
				gain := w - resolution*float64(size[comm])
				if gain > bestGain {
					bestGain = gain
					bestComm = comm
				}
			}
			// Detaching into a singleton beats any move at a loss.
			if bestGain < 0 && size[current] > 1 {
				bestComm = nextComm
				nextComm++
			}

			if bestComm != current {
				size[current]--
				size[bestComm]++
				membership[v] = bestComm
				moved = true
			}
		}
		if !moved {
			break
		}
	}

	// Renumber communities densely in first-seen order.
	renumber := make(map[int]int)
	out := make([]int, n)
	for i, comm := range membership {
		id, ok := renumber[comm]
		if !ok {
			id = len(renumber)
			renumber[comm] = id
		}
		out[i] = id
	}
	return out
}
