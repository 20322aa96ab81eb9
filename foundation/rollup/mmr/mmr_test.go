package mmr_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/quarrylabs/rollclient/foundation/rollup/digest"
	"github.com/quarrylabs/rollclient/foundation/rollup/mmr"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

// leafHash produces a deterministic leaf value for the specified block number.
func leafHash(num uint64) digest.Digest {
	return digest.Hash(fmt.Sprintf("header-%d", num))
}

// =============================================================================

func Test_AppendReproduciblePeaks(t *testing.T) {
	t.Log("Given the need to validate the accumulator grows deterministically.")
	{
		t.Logf("\tTest 0:\tWhen appending the same sequence of leaves twice.")
		{
			ma := mmr.New()
			mb := mmr.New()

			const leaves = 23
			for i := uint64(0); i < leaves; i++ {
				ma.Append(leafHash(i))
				mb.Append(leafHash(i))
			}

			if ma.Forest() != leaves {
				t.Fatalf("\t%s\tTest 0:\tShould have a forest of %d leaves: got %d", failed, leaves, ma.Forest())
			}
			t.Logf("\t%s\tTest 0:\tShould have a forest of %d leaves.", success, leaves)

			// 23 = 0b10111 so four subtrees remain unmerged.
			if len(ma.Peaks()) != 4 {
				t.Fatalf("\t%s\tTest 0:\tShould have 4 peaks: got %d", failed, len(ma.Peaks()))
			}
			t.Logf("\t%s\tTest 0:\tShould have 4 peaks.", success)

			pa, pb := ma.Peaks(), mb.Peaks()
			for i := range pa {
				if pa[i] != pb[i] {
					t.Fatalf("\t%s\tTest 0:\tShould produce identical peaks: peak %d differs", failed, i)
				}
			}
			t.Logf("\t%s\tTest 0:\tShould produce identical peaks.", success)
		}

		t.Logf("\tTest 1:\tWhen reconstructing the accumulator from persisted state.")
		{
			m := mmr.New()
			for i := uint64(0); i < 9; i++ {
				m.Append(leafHash(i))
			}

			rebuilt, err := mmr.NewFrom(m.Forest(), m.Peaks(), m.Nodes())
			if err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould be able to rebuild the accumulator: %v", failed, err)
			}
			t.Logf("\t%s\tTest 1:\tShould be able to rebuild the accumulator.", success)

			m.Append(leafHash(9))
			rebuilt.Append(leafHash(9))

			pa, pb := m.Peaks(), rebuilt.Peaks()
			if len(pa) != len(pb) {
				t.Fatalf("\t%s\tTest 1:\tShould append identically after rebuild: %d vs %d peaks", failed, len(pa), len(pb))
			}
			for i := range pa {
				if pa[i] != pb[i] {
					t.Fatalf("\t%s\tTest 1:\tShould append identically after rebuild: peak %d differs", failed, i)
				}
			}
			t.Logf("\t%s\tTest 1:\tShould append identically after rebuild.", success)
		}
	}
}

func Test_InclusionProof(t *testing.T) {
	t.Log("Given the need to verify a header against historical peaks.")
	{
		t.Logf("\tTest 0:\tWhen the chain advances past the proven block.")
		{
			m := mmr.New()

			// Append headers for blocks 0 through 10 and freeze the peaks
			// as of block 10.
			for i := uint64(0); i <= 10; i++ {
				m.Append(leafHash(i))
			}
			peaks10 := m.Peaks()
			forest10 := m.Forest()

			// Advance the tip to block 11.
			m.Append(leafHash(11))

			proof, err := m.Proof(10, forest10)
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to produce a proof for block 10: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to produce a proof for block 10.", success)

			if !mmr.VerifyInclusion(leafHash(10), 10, proof, peaks10) {
				t.Fatalf("\t%s\tTest 0:\tShould verify block 10 against the peaks frozen at block 10.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould verify block 10 against the peaks frozen at block 10.", success)

			if mmr.VerifyInclusion(leafHash(11), 10, proof, peaks10) {
				t.Fatalf("\t%s\tTest 0:\tShould reject a proof for the wrong leaf.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould reject a proof for the wrong leaf.", success)

			if mmr.VerifyInclusion(leafHash(10), 10, mmr.MerklePath{Forest: proof.Forest}, peaks10) {
				t.Fatalf("\t%s\tTest 0:\tShould reject a truncated proof without faulting.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould reject a truncated proof without faulting.", success)
		}

		t.Logf("\tTest 1:\tWhen verifying every leaf at the current forest.")
		{
			m := mmr.New()
			const leaves = 13
			for i := uint64(0); i < leaves; i++ {
				m.Append(leafHash(i))
			}
			peaks := m.Peaks()

			for i := uint64(0); i < leaves; i++ {
				proof, err := m.Proof(i, m.Forest())
				if err != nil {
					t.Fatalf("\t%s\tTest 1:\tShould be able to produce a proof for leaf %d: %v", failed, i, err)
				}
				if !mmr.VerifyInclusion(leafHash(i), i, proof, peaks) {
					t.Fatalf("\t%s\tTest 1:\tShould verify leaf %d against the current peaks.", failed, i)
				}
			}
			t.Logf("\t%s\tTest 1:\tShould verify all %d leaves against the current peaks.", success, leaves)
		}
	}
}

func Test_Pruning(t *testing.T) {
	t.Log("Given the need to drop nodes with no relevance to tracked headers.")
	{
		t.Logf("\tTest 0:\tWhen pruning all but one authentication path.")
		{
			m := mmr.New()
			for i := uint64(0); i < 8; i++ {
				m.Append(leafHash(i))
			}
			peaks := m.Peaks()

			removed := m.Prune([]uint64{5})
			if len(removed) == 0 {
				t.Fatalf("\t%s\tTest 0:\tShould remove unneeded nodes.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould remove unneeded nodes.", success)

			proof, err := m.Proof(5, m.Forest())
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould still prove the retained leaf: %v", failed, err)
			}
			if !mmr.VerifyInclusion(leafHash(5), 5, proof, peaks) {
				t.Fatalf("\t%s\tTest 0:\tShould still verify the retained leaf.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould still prove and verify the retained leaf.", success)

			if _, err := m.Proof(2, m.Forest()); !errors.Is(err, mmr.ErrPruned) {
				t.Fatalf("\t%s\tTest 0:\tShould report a pruned path for an untracked leaf: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould report a pruned path for an untracked leaf.", success)
		}
	}
}
