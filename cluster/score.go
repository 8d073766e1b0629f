package cluster

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// Scores summarizes cluster quality for one labeling.
type Scores struct {
	// Cohesion is the mean over rows of a/max(a, b), where a is the mean
	// distance to the row's own cluster and b the mean distance to the nearest
	// other cluster. 0 is best, 1 is worst. Rows in singleton clusters count 0.
	Cohesion float64 `json:"cohesion"`
	// Separation is the Davies-Bouldin index: mean over clusters of the worst
	// (scatter_i + scatter_j) / centroid distance ratio. Lower is better.
	Separation float64 `json:"separation"`
	// Silhouette is the mean silhouette coefficient in [-1, 1].
	Silhouette float64 `json:"silhouette"`
	Clusters   int     `json:"clusters"`
}

// Score computes cohesion, Davies-Bouldin separation and silhouette for the
// labeling of X. It returns ErrInsufficientClusters when labels has fewer
// than 2 distinct values.
func Score(X [][]float64, labels []int) (*Scores, error) {
	if len(X) != len(labels) {
		return nil, fmt.Errorf("scoring: %d rows but %d labels", len(X), len(labels))
	}

	members := groupByLabel(labels)
	if len(members) < 2 {
		return nil, ErrInsufficientClusters
	}

	ids := make([]int, 0, len(members))
	for id := range members {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	cohesion, silhouette := silhouetteParts(X, labels, members, ids)
	return &Scores{
		Cohesion:   cohesion,
		Separation: daviesBouldin(X, members, ids),
		Silhouette: silhouette,
		Clusters:   len(ids),
	}, nil
}

func groupByLabel(labels []int) map[int][]int {
	members := make(map[int][]int)
	for i, l := range labels {
		members[l] = append(members[l], i)
	}
	return members
}

// silhouetteParts returns the mean a/max(a,b) ratio and the mean silhouette.
func silhouetteParts(X [][]float64, labels []int, members map[int][]int, ids []int) (float64, float64) {
	n := len(X)
	ratioSum, silSum := 0.0, 0.0

	for i := 0; i < n; i++ {
		own := members[labels[i]]
		if len(own) < 2 {
			continue
		}

		a := 0.0
		for _, j := range own {
			if j != i {
				a += floats.Distance(X[i], X[j], 2)
			}
		}
		a /= float64(len(own) - 1)

		b := -1.0
		for _, id := range ids {
			if id == labels[i] {
				continue
			}
			d := 0.0
			for _, j := range members[id] {
				d += floats.Distance(X[i], X[j], 2)
			}
			d /= float64(len(members[id]))
			if b < 0 || d < b {
				b = d
			}
		}

		denom := a
		if b > denom {
			denom = b
		}
		if denom == 0 {
			continue
		}
		ratioSum += a / denom
		silSum += (b - a) / denom
	}

	return ratioSum / float64(n), silSum / float64(n)
}

// daviesBouldin computes the index from label-derived centroids. Coincident
// centroids contribute nothing rather than dividing by zero.
func daviesBouldin(X [][]float64, members map[int][]int, ids []int) float64 {
	p := len(X[0])
	centroids := make([][]float64, len(ids))
	scatter := make([]float64, len(ids))

	for c, id := range ids {
		centroid := make([]float64, p)
		for _, i := range members[id] {
			floats.Add(centroid, X[i])
		}
		floats.Scale(1/float64(len(members[id])), centroid)
		centroids[c] = centroid

		s := 0.0
		for _, i := range members[id] {
			s += floats.Distance(X[i], centroid, 2)
		}
		scatter[c] = s / float64(len(members[id]))
	}

	total := 0.0
	for a := range ids {
		worst := 0.0
		for b := range ids {
			if a == b {
				continue
			}
			d := floats.Distance(centroids[a], centroids[b], 2)
			if d == 0 {
				continue
			}
			if r := (scatter[a] + scatter[b]) / d; r > worst {
				worst = r
			}
		}
		total += worst
	}
	return total / float64(len(ids))
}
