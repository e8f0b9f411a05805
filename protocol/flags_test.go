package protocol

import "testing"

func TestFlagsSetCheckClearToggle(t *testing.T) {
	var f Flags

	if f.Check(RequiredFlag) {
		t.Fatal("fresh Flags should have no bits set")
	}

	f.Set(RequiredFlag)
	if !f.Check(RequiredFlag) {
		t.Fatal("expected RequiredFlag to be set")
	}
	if f.Check(CloneFlag) {
		t.Fatal("setting one flag must not set another")
	}

	f.Toggle(RequiredFlag)
	if f.Check(RequiredFlag) {
		t.Fatal("toggle should have cleared RequiredFlag")
	}

	f.Toggle(RequiredFlag)
	if !f.Check(RequiredFlag) {
		t.Fatal("toggle should have set RequiredFlag again")
	}

	f.Clear(RequiredFlag)
	if f.Check(RequiredFlag) {
		t.Fatal("clear should have unset RequiredFlag")
	}
}

func TestMakeFlagsCombines(t *testing.T) {
	f := MakeFlags(IterationRequestedFlag, ParentFlag, ErrorFlag)
	for _, bit := range []FlagBit{IterationRequestedFlag, ParentFlag, ErrorFlag} {
		if !f.Check(bit) {
			t.Fatalf("expected bit %d set in combined flags", bit)
		}
	}
	if f.Check(ChildFlag) {
		t.Fatal("unrelated bit must remain clear")
	}
}

func TestIterationRequestFlags(t *testing.T) {
	if IterationRequestFlags(NoIteration) != 0 {
		t.Fatal("NoIteration should set no flags")
	}
	iin := IterationRequestFlags(IterateIfNeeded)
	if !iin.Check(IterationRequestedFlag) {
		t.Fatal("IterateIfNeeded must set IterationRequestedFlag")
	}
	if iin.Check(IndicatorFlag) {
		t.Fatal("IterateIfNeeded must not set IndicatorFlag")
	}
	force := IterationRequestFlags(ForceIteration)
	if !force.Check(IterationRequestedFlag) || !force.Check(IndicatorFlag) {
		t.Fatal("ForceIteration must set both IterationRequestedFlag and IndicatorFlag")
	}
}

// Flag bit positions must match the reference wire layout exactly so a
// byte sequence produced by a real peer decodes to the same flags here.
func TestFlagBitPositionsMatchReference(t *testing.T) {
	want := map[FlagBit]uint16{
		IterationRequestedFlag: 0,
		ErrorFlag:              4,
		IndicatorFlag:          5,
		NonGrantingFlag:        7,
		InterruptedFlag:        8,
		DelayedTimingFlag:      10,
		ParentFlag:             13,
		ChildFlag:              14,
		CloneFlag:              9,
		SlowRespondingFlag:     14,
		NonCountingFlag:        15,
	}
	for bit, pos := range want {
		if uint16(bit) != pos {
			t.Fatalf("flag bit mismatch: got %d, want %d", bit, pos)
		}
	}
}
