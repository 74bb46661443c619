package evolve

import "github.com/pw-Chen-km/Twin3-algo/internal/embedding"

// ClusterFunc groups vectors and returns clusters as index lists.
// Points assigned to no cluster are dropped.
type ClusterFunc func(vecs [][]float64) [][]int

const (
	labelUnvisited = 0
	labelNoise     = -1
)

// DBSCAN returns a density clusterer over cosine distance
// (1 - cosine similarity). Points without minSize neighbors within
// eps are noise and are discarded.
func DBSCAN(eps float64, minSize int) ClusterFunc {
	return func(vecs [][]float64) [][]int {
		labels := make([]int, len(vecs))
		next := 1

		for i := range vecs {
			if labels[i] != labelUnvisited {
				continue
			}
			neighbors := regionQuery(vecs, i, eps)
			if len(neighbors) < minSize {
				labels[i] = labelNoise
				continue
			}

			cluster := next
			next++
			labels[i] = cluster

			// Expand the cluster breadth-first. Noise points can be
			// claimed as border members; core points grow the frontier.
			queue := neighbors
			for len(queue) > 0 {
				j := queue[0]
				queue = queue[1:]
				if labels[j] == labelNoise {
					labels[j] = cluster
					continue
				}
				if labels[j] != labelUnvisited {
					continue
				}
				labels[j] = cluster
				more := regionQuery(vecs, j, eps)
				if len(more) >= minSize {
					queue = append(queue, more...)
				}
			}
		}

		clusters := make([][]int, next-1)
		for i, label := range labels {
			if label > 0 {
				clusters[label-1] = append(clusters[label-1], i)
			}
		}

		var out [][]int
		for _, c := range clusters {
			if len(c) >= minSize {
				out = append(out, c)
			}
		}
		return out
	}
}

// regionQuery lists points within eps cosine distance of vecs[i],
// including i itself.
func regionQuery(vecs [][]float64, i int, eps float64) []int {
	var neighbors []int
	for j := range vecs {
		if 1-embedding.CosineSimilarity(vecs[i], vecs[j]) <= eps {
			neighbors = append(neighbors, j)
		}
	}
	return neighbors
}
