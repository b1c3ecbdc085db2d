package search

// Clustering is a two-way partition of vectors with a separation score.
type Clustering struct {
	labels []int
	score  float64
}

// Labels returns the cluster label (0 or 1) per input vector.
func (c Clustering) Labels() []int {
	out := make([]int, len(c.labels))
	copy(out, c.labels)
	return out
}

// Score returns the mean silhouette score of the partition, in [-1, 1].
// Higher means better separated clusters.
func (c Clustering) Score() float64 { return c.score }

// ClusterSizes returns the number of vectors in each of the two clusters.
func (c Clustering) ClusterSizes() (int, int) {
	var a, b int
	for _, l := range c.labels {
		if l == 0 {
			a++
		} else {
			b++
		}
	}
	return a, b
}

// TwoMeans partitions the vectors into two clusters by iterative centroid
// refinement in cosine space and scores the partition with the mean
// silhouette coefficient. The ok result is false when fewer than two vectors
// are given or the iteration degenerates to a single cluster.
func TwoMeans(vectors [][]float64) (Clustering, bool) {
	n := len(vectors)
	if n < 2 {
		return Clustering{}, false
	}

	// Seed with the two least similar vectors.
	seedA, seedB := farthestPair(vectors)
	centroidA := vectors[seedA]
	centroidB := vectors[seedB]

	labels := make([]int, n)
	const maxIterations = 20
	for iter := 0; iter < maxIterations; iter++ {
		changed := false
		for i, v := range vectors {
			label := 0
			if CosineSimilarity(v, centroidB) > CosineSimilarity(v, centroidA) {
				label = 1
			}
			if labels[i] != label {
				labels[i] = label
				changed = true
			}
		}

		var groupA, groupB [][]float64
		for i, v := range vectors {
			if labels[i] == 0 {
				groupA = append(groupA, v)
			} else {
				groupB = append(groupB, v)
			}
		}
		if len(groupA) == 0 || len(groupB) == 0 {
			return Clustering{}, false
		}

		centroidA = Centroid(groupA)
		centroidB = Centroid(groupB)

		if !changed {
			break
		}
	}

	return Clustering{
		labels: labels,
		score:  silhouetteScore(vectors, labels),
	}, true
}

// farthestPair returns the indices of the two least cosine-similar vectors.
func farthestPair(vectors [][]float64) (int, int) {
	bestA, bestB := 0, 1
	lowest := 2.0
	for i := 0; i < len(vectors); i++ {
		for j := i + 1; j < len(vectors); j++ {
			sim := CosineSimilarity(vectors[i], vectors[j])
			if sim < lowest {
				lowest = sim
				bestA, bestB = i, j
			}
		}
	}
	return bestA, bestB
}

// silhouetteScore computes the mean silhouette coefficient over all vectors
// using cosine distance (1 - similarity).
func silhouetteScore(vectors [][]float64, labels []int) float64 {
	n := len(vectors)
	if n < 2 {
		return 0
	}

	var total float64
	counted := 0
	for i := range vectors {
		var intraSum, interSum float64
		var intraCount, interCount int
		for j := range vectors {
			if i == j {
				continue
			}
			dist := 1 - CosineSimilarity(vectors[i], vectors[j])
			if labels[i] == labels[j] {
				intraSum += dist
				intraCount++
			} else {
				interSum += dist
				interCount++
			}
		}
		if intraCount == 0 || interCount == 0 {
			continue
		}

		a := intraSum / float64(intraCount)
		b := interSum / float64(interCount)
		max := a
		if b > max {
			max = b
		}
		if max == 0 {
			continue
		}
		total += (b - a) / max
		counted++
	}

	if counted == 0 {
		return 0
	}
	return total / float64(counted)
}
