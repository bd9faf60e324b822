package cluster

import "math/rand"

// selectPrimaryOrder shuffles nodes, then, if preferDC is set,
// stable-partitions so nodes in preferDC sort first.
func selectPrimaryOrder(nodes []*Node, preferDC string) []*Node {
	out := make([]*Node, len(nodes))
	copy(out, nodes)

	rand.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })

	if preferDC == "" {
		return out
	}
	preferred := make([]*Node, 0, len(out))
	rest := make([]*Node, 0, len(out))
	for _, n := range out {
		if n.DataCenter == preferDC {
			preferred = append(preferred, n)
		} else {
			rest = append(rest, n)
		}
	}
	return append(preferred, rest...)
}
