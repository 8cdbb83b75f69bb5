package metrics

import (
	"math"
	"testing"
)

func TestAdjustedRandIndex_RelabelIsPerfectAgreement(t *testing.T) {
	prod := Labeling{"A": "RING_001", "B": "RING_001", "C": "RING_002", "D": "RING_002"}
	shadow := Labeling{"A": "RING_007", "B": "RING_007", "C": "RING_003", "D": "RING_003"}

	ari := AdjustedRandIndex(prod, shadow)

	if math.Abs(ari-1.0) > 0.01 {
		t.Errorf("Expected ARI=1.0 for a pure relabel. Got: %f", ari)
	}
}

func TestAdjustedRandIndex_Regrouped(t *testing.T) {
	prod := Labeling{"A": "R1", "B": "R1", "C": "R1", "D": "R2", "E": "R2", "F": "R2"}
	shadow := Labeling{"A": "R1", "B": "R2", "C": "R1", "D": "R2", "E": "R1", "F": "R2"}

	ari := AdjustedRandIndex(prod, shadow)

	if ari > 0.5 {
		t.Errorf("Expected ARI near 0 for dissimilar groupings. Got: %f", ari)
	}
}

func TestVariationOfInformation(t *testing.T) {
	same := Labeling{"A": "R1", "B": "R1", "C": "R2", "D": "R2"}
	if vi := VariationOfInformation(same, same); vi > 0.01 {
		t.Errorf("Expected VI=0 for identical labelings. Got: %f", vi)
	}

	// Shadow drops C and D: each becomes its own singleton
	shadow := Labeling{"A": "R1", "B": "R1"}
	if vi := VariationOfInformation(same, shadow); vi < 0.1 {
		t.Errorf("Expected VI > 0 when accounts leave their ring. Got: %f", vi)
	}
}

func TestAdjustedRandIndex_UnflaggedRingIsNotAgreement(t *testing.T) {
	prod := Labeling{"A": "R1", "B": "R1", "C": "R2", "D": "R2"}
	shadow := Labeling{"A": "R1", "B": "R1"}

	ari := AdjustedRandIndex(prod, shadow)

	if ari > 0.99 {
		t.Errorf("Expected ARI < 1 when a whole ring is unflagged. Got: %f", ari)
	}
}

func TestAdjustedRandIndex_UnflaggedInBothAgrees(t *testing.T) {
	// E is flagged by neither run and must not affect agreement
	prod := Labeling{"A": "R1", "B": "R1", "C": "R2", "D": "R2", "E": ""}
	shadow := Labeling{"A": "R5", "B": "R5", "C": "R6", "D": "R6"}

	if ari := AdjustedRandIndex(prod, shadow); math.Abs(ari-1.0) > 0.01 {
		t.Errorf("Expected ARI=1.0. Got: %f", ari)
	}
	if vi := VariationOfInformation(prod, shadow); vi > 0.01 {
		t.Errorf("Expected VI=0. Got: %f", vi)
	}
}

func TestJaccardIndex(t *testing.T) {
	if j := JaccardIndex([]string{"A", "B", "C"}, []string{"B", "C", "D"}); math.Abs(j-0.5) > 1e-9 {
		t.Errorf("Expected 0.5. Got: %f", j)
	}
	if j := JaccardIndex(nil, nil); j != 1.0 {
		t.Errorf("Expected 1.0 for two empty sets. Got: %f", j)
	}
}

func TestDifference(t *testing.T) {
	got := Difference([]string{"C", "A", "B"}, []string{"B"})
	if len(got) != 2 || got[0] != "A" || got[1] != "C" {
		t.Errorf("Expected [A C]. Got: %v", got)
	}
}
