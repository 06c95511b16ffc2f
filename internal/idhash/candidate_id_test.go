package idhash

import (
	"testing"
)

func TestComputeCandidateID(t *testing.T) {
	tests := []struct {
		name     string
		mint     string
		eventKey string
		slot     int64
	}{
		{name: "basic", mint: "TokenMint123ABC", eventKey: "TxSig789GHI", slot: 12345678},
		{name: "empty event key", mint: "TokenMint123ABC", eventKey: "", slot: 12345678},
		{name: "zero slot", mint: "AnotherMint999", eventKey: "DifferentTx222", slot: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeCandidateID(tt.mint, tt.eventKey, tt.slot)

			if len(got) != 64 {
				t.Errorf("ComputeCandidateID() length = %d, want 64", len(got))
			}

			got2 := ComputeCandidateID(tt.mint, tt.eventKey, tt.slot)
			if got != got2 {
				t.Errorf("ComputeCandidateID() not deterministic: %s != %s", got, got2)
			}
		})
	}
}

func TestComputeCandidateID_DifferentInputs(t *testing.T) {
	base := ComputeCandidateID("Mint", "Sig", 100)

	variants := map[string]string{
		"mint": ComputeCandidateID("Mint2", "Sig", 100),
		"key":  ComputeCandidateID("Mint", "Sig2", 100),
		"slot": ComputeCandidateID("Mint", "Sig", 101),
	}
	for field, id := range variants {
		if id == base {
			t.Errorf("changing %s did not change the id", field)
		}
	}
}

func TestComputeCandidateID_KnownValue(t *testing.T) {
	// SHA256("Mint|Sig|100")
	want := "fdbc45c2f102d7b8ad935fd6977332f96a2b89d6cd260f84f3fce813232d27e4"
	if got := ComputeCandidateID("Mint", "Sig", 100); got != want {
		t.Errorf("ComputeCandidateID() = %s, want %s", got, want)
	}
}

func TestComputeOutcomeID(t *testing.T) {
	a := ComputeOutcomeID("run-1", "cand-1")
	if len(a) != 64 {
		t.Fatalf("length = %d, want 64", len(a))
	}
	if a != ComputeOutcomeID("run-1", "cand-1") {
		t.Error("ComputeOutcomeID() not deterministic")
	}
	if a == ComputeOutcomeID("run-2", "cand-1") {
		t.Error("run id does not affect outcome id")
	}
}
