package bitstream

import "testing"

// canonicalEwah builds the scenario called out for testing: 10 ones, 20
// zeros, 40 ones, trimmed to canonical form.
func canonicalEwah() *Ewah {
	e := &Ewah{}
	e.Append(10, true)
	e.Append(20, false)
	e.Append(40, true)
	e.Trim()
	return e
}

func TestEwahCanonicalForm(t *testing.T) {
	e := canonicalEwah()
	if got, want := e.Size(), uint64(70); got != want {
		t.Fatalf("size = %d, want %d", got, want)
	}
	if got, want := e.Count(), uint64(50); got != want {
		t.Fatalf("count = %d, want %d", got, want)
	}
	if got, want := e.FindFirst(), uint64(0); got != want {
		t.Fatalf("find_first = %d, want %d", got, want)
	}
	if got, want := e.FindNext(9), uint64(30); got != want {
		t.Fatalf("find_next(9) = %d, want %d", got, want)
	}
	if got := e.FindNext(69); got != Npos {
		t.Fatalf("find_next(69) = %d, want Npos", got)
	}
}

func TestEwahMatchesNullOnRandomAppends(t *testing.T) {
	e := &Ewah{}
	n := &Null{}
	plan := []struct {
		n   uint64
		bit bool
	}{
		{3, true}, {5, false}, {64, true}, {1, false}, {128, false},
		{17, true}, {2, true}, {200, false}, {1, true}, {63, false},
	}
	for _, p := range plan {
		e.Append(p.n, p.bit)
		n.Append(p.n, p.bit)
	}
	if e.Size() != n.Size() {
		t.Fatalf("size mismatch: ewah=%d null=%d", e.Size(), n.Size())
	}
	if e.Count() != n.Count() {
		t.Fatalf("count mismatch: ewah=%d null=%d", e.Count(), n.Count())
	}
	for i := uint64(0); i < n.Size(); i++ {
		eb, _ := e.At(i)
		nb, _ := n.At(i)
		if eb != nb {
			t.Fatalf("bit %d mismatch: ewah=%v null=%v", i, eb, nb)
		}
	}
}

func TestEwahFindWalksForwardAndBackward(t *testing.T) {
	e := &Ewah{}
	e.Append(5, false)
	e.Append(1, true)
	e.Append(100, false)
	e.Append(1, true)
	e.Append(5, false)

	if got, want := e.FindFirst(), uint64(5); got != want {
		t.Fatalf("find_first = %d, want %d", got, want)
	}
	if got, want := e.FindNext(5), uint64(106); got != want {
		t.Fatalf("find_next(5) = %d, want %d", got, want)
	}
	if got := e.FindNext(106); got != Npos {
		t.Fatalf("find_next(106) = %d, want Npos", got)
	}
	if got, want := e.FindLast(), uint64(106); got != want {
		t.Fatalf("find_last = %d, want %d", got, want)
	}
	if got, want := e.FindPrev(106), uint64(5); got != want {
		t.Fatalf("find_prev(106) = %d, want %d", got, want)
	}
}

func TestBooleanIdentities(t *testing.T) {
	a := &Ewah{}
	a.Append(4, true)
	a.Append(4, false)
	a.Append(4, true)

	b := &Ewah{}
	b.Append(6, true)
	b.Append(6, false)

	and := a.Clone()
	and.And(b)
	or := a.Clone()
	or.Or(b)
	xor := a.Clone()
	xor.Xor(b)
	sub := a.Clone()
	sub.Subtract(b)

	size := maxOf(a.Size(), b.Size())
	for i := uint64(0); i < size; i++ {
		ab, _ := getBit(a, i)
		bb, _ := getBit(b, i)
		andB, _ := and.At(i)
		orB, _ := or.At(i)
		xorB, _ := xor.At(i)
		subB, _ := sub.At(i)
		if andB != (ab && bb) {
			t.Fatalf("and bit %d: got %v want %v", i, andB, ab && bb)
		}
		if orB != (ab || bb) {
			t.Fatalf("or bit %d: got %v want %v", i, orB, ab || bb)
		}
		if xorB != (ab != bb) {
			t.Fatalf("xor bit %d: got %v want %v", i, xorB, ab != bb)
		}
		if subB != (ab && !bb) {
			t.Fatalf("subtract bit %d: got %v want %v", i, subB, ab && !bb)
		}
	}
}

func getBit(e *Ewah, i uint64) (bool, error) {
	if i >= e.Size() {
		return false, nil
	}
	return e.At(i)
}

func TestNullTrimCanonicalizesSize(t *testing.T) {
	n := &Null{}
	n.Append(3, true)
	n.Append(10, false)
	n.Trim()
	if got, want := n.Size(), uint64(3); got != want {
		t.Fatalf("size = %d, want %d", got, want)
	}
	if got := n.FindLast(); got != 2 {
		t.Fatalf("find_last = %d, want 2", got)
	}
}

func TestSequencesDoNotExpandFills(t *testing.T) {
	e := &Ewah{}
	e.Append(1<<20, true)
	seqs := e.Sequences()
	var got []Seq
	for {
		seq, ok := seqs.Next()
		if !ok {
			break
		}
		got = append(got, seq)
	}
	// The last block of an EWAH stream is always kept as a literal, so a
	// uniform run comes back as one fill over every block but the last,
	// followed by that last block as an all-ones literal.
	if len(got) != 2 {
		t.Fatalf("expected a fill and a trailing literal for a uniform run, got %d sequences", len(got))
	}
	if !got[0].IsFill() || !got[0].IsOne() || got[0].Offset != 0 || got[0].Length != 1<<20-64 {
		t.Fatalf("expected a single one-fill sequence over the first %d bits, got %+v", 1<<20-64, got[0])
	}
	if got[1].IsFill() || got[1].Offset != 1<<20-64 || got[1].Length != 64 || got[1].Data != ^uint64(0) {
		t.Fatalf("expected a trailing all-ones literal block, got %+v", got[1])
	}
}
