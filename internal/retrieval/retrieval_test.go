package retrieval

import "testing"

func TestFuseRanksHitsPresentInBothBranchesHighest(t *testing.T) {
	e := New(nil, nil, Config{RRFK: 60, DenseWeight: 1.0, LexicalWeight: 0.8}, nil)

	dense := []scoredChunk{
		{id: "a", content: "dense only, rank 1", denseRank: 1},
		{id: "b", content: "both branches, dense rank 2", denseRank: 2},
	}
	lexical := []scoredChunk{
		{id: "b", content: "both branches, lexical rank 1", lexicalRank: 1},
		{id: "c", content: "lexical only, rank 2", lexicalRank: 2},
	}

	fused := e.fuse(dense, lexical)
	if len(fused) != 3 {
		t.Fatalf("len(fused) = %d, want 3", len(fused))
	}
	if fused[0].Source != "b" {
		t.Fatalf("top hit = %q, want %q (present in both branches)", fused[0].Source, "b")
	}
	for i := 1; i < len(fused); i++ {
		if fused[i].Score > fused[i-1].Score {
			t.Fatalf("fused results not sorted descending by score: %+v", fused)
		}
	}
}

func TestFuseEmptyBranchesYieldsNoResults(t *testing.T) {
	e := New(nil, nil, Config{}, nil)
	if got := e.fuse(nil, nil); len(got) != 0 {
		t.Fatalf("len = %d, want 0", len(got))
	}
}

func TestFuseSingleBranchStillScoresByRank(t *testing.T) {
	e := New(nil, nil, Config{RRFK: 60, DenseWeight: 1.0, LexicalWeight: 0.8}, nil)
	dense := []scoredChunk{
		{id: "first", denseRank: 1},
		{id: "second", denseRank: 2},
	}
	fused := e.fuse(dense, nil)
	if len(fused) != 2 || fused[0].Source != "first" {
		t.Fatalf("fused = %+v", fused)
	}
}
