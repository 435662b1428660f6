// Package validator decides whether a batch of recorded gesture samples
// represents one coherent gesture and whether that gesture collides with an
// already-known template. Both checks are pure functions over the input.
package validator

import (
	"fmt"

	"github.com/gestpipe/console/internal/models"
)

const (
	// RequiredSamples is the minimum batch size for quality validation.
	RequiredSamples = 5
	// MinConsistentSamples is the minimum size of an acceptable group.
	MinConsistentSamples = 3
	// SimilarityThreshold is the pairwise acceptance threshold. With 0.2 per
	// matching finger, 4/5 scores 0.8, so in practice all five right-hand
	// flags must agree for two samples to count as the same shape.
	SimilarityThreshold = 0.85
)

// Template is one known gesture's reference hand shape. Only the right-hand
// pattern is distinguishing; left hands are normalized away.
type Template struct {
	PoseLabel    string
	LeftFingers  [5]int
	RightFingers [5]int
}

// Result is the outcome of validating an upload batch.
type Result struct {
	Conflict          bool
	Valid             bool
	ConsistentSamples []models.Sample
	Message           string
}

// CheckConflict reports whether the sample's static hand shape collides with
// any known template. The left hand is normalized to all zeros before
// comparison and motion is ignored entirely: two gestures with the same
// right-hand finger pattern conflict even if their intended motion differs.
func CheckConflict(sample models.Sample, templates []Template) (bool, string) {
	var normalizedLeft [5]int
	for _, tpl := range templates {
		if tpl.LeftFingers == normalizedLeft && tpl.RightFingers == sample.RightFingers {
			return true, fmt.Sprintf("conflict with existing gesture %q (same finger pattern)", tpl.PoseLabel)
		}
	}
	return false, "no conflict"
}

// Similarity scores two samples in [0,1] from finger-state agreement alone:
// each matching right-hand finger flag contributes 0.2. Motion is excluded
// from similarity scoring; only hand shape must agree.
func Similarity(a, b models.Sample) float64 {
	score := 0.0
	for i := 0; i < 5; i++ {
		if a.RightFingers[i] == b.RightFingers[i] {
			score += 0.2
		}
	}
	return score
}

// ValidateQuality groups the batch into maximal sets of mutually similar
// samples and accepts the largest group of at least MinConsistentSamples.
// Every member of a group must clear the threshold against every other
// member, so a chain of gradually drifting samples cannot pass.
func ValidateQuality(samples []models.Sample) Result {
	if len(samples) < RequiredSamples {
		return Result{
			Valid:   false,
			Message: fmt.Sprintf("need %d more samples", RequiredSamples-len(samples)),
		}
	}

	n := len(samples)
	sim := make([][]float64, n)
	for i := range sim {
		sim[i] = make([]float64, n)
		for j := range sim[i] {
			if i == j {
				sim[i][j] = 1.0
			} else {
				sim[i][j] = Similarity(samples[i], samples[j])
			}
		}
	}

	used := make([]bool, n)
	var groups [][]int
	for i := 0; i < n; i++ {
		if used[i] {
			continue
		}
		group := []int{i}
		used[i] = true
		for added := true; added; {
			added = false
			for j := i + 1; j < n; j++ {
				if used[j] {
					continue
				}
				similarToAll := true
				for _, k := range group {
					if sim[k][j] < SimilarityThreshold {
						similarToAll = false
						break
					}
				}
				if similarToAll {
					group = append(group, j)
					used[j] = true
					added = true
				}
			}
		}
		if len(group) >= MinConsistentSamples {
			groups = append(groups, group)
		}
	}

	if len(groups) == 0 {
		return Result{
			Valid:   false,
			Message: "no consistent group of samples found (need 3 similar samples)",
		}
	}

	// Largest group wins; ties go to the first one found, which is
	// deterministic given stable input order.
	best := groups[0]
	for _, group := range groups[1:] {
		if len(group) > len(best) {
			best = group
		}
	}

	consistent := make([]models.Sample, 0, len(best))
	for _, idx := range best {
		consistent = append(consistent, samples[idx])
	}
	return Result{
		Valid:             true,
		ConsistentSamples: consistent,
		Message:           fmt.Sprintf("found %d consistent samples", len(consistent)),
	}
}

// Validate runs the conflict check on the first sample, then quality
// validation on the full batch. Conflict short-circuits quality.
func Validate(samples []models.Sample, templates []Template) Result {
	if len(samples) == 0 {
		return Result{Valid: false, Message: "missing sample data"}
	}
	if conflict, msg := CheckConflict(samples[0], templates); conflict {
		return Result{Conflict: true, Message: msg}
	}
	return ValidateQuality(samples)
}
