package metrics

import (
	"testing"

	"github.com/rawblock/proofmesh/internal/hashtrie"
)

func TestCountOutcomeBuckets(t *testing.T) {
	c := &Counters{}

	c.CountOutcome(hashtrie.Admitted)
	c.CountOutcome(hashtrie.Admitted)
	c.CountOutcome(hashtrie.Replaced)
	c.CountOutcome(hashtrie.RejectedInvalid)
	c.CountOutcome(hashtrie.RejectedDuplicate)
	c.CountOutcome(hashtrie.RejectedWeaker)
	c.CountOutcome(hashtrie.RejectedFull)

	snap := c.Snapshot()
	if snap.Admitted != 2 {
		t.Errorf("Admitted = %d, want 2", snap.Admitted)
	}
	if snap.Replaced != 1 || snap.RejectedInvalid != 1 || snap.RejectedDuplicate != 1 ||
		snap.RejectedWeaker != 1 || snap.RejectedFull != 1 {
		t.Errorf("rejection buckets wrong: %+v", snap)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	c := &Counters{}
	c.ExpandIn.Add(3)
	c.KeyOut.Add(1)

	snap := c.Snapshot()
	c.ExpandIn.Add(10)

	if snap.ExpandIn != 3 {
		t.Errorf("snapshot mutated after the fact: ExpandIn = %d", snap.ExpandIn)
	}
	if snap.KeyOut != 1 {
		t.Errorf("KeyOut = %d, want 1", snap.KeyOut)
	}
}
