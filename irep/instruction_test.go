package irep

import "testing"

func TestInstructionEncodeDecodeRoundTrip(t *testing.T) {
	tests := []Instruction{
		{Op: NOP},
		{Op: STOP},
		{Op: LOADNIL, A: 7},
		{Op: LOADSELF, A: 0},
		{Op: MOVE, A: 3, B: 1},
		{Op: RETURN, A: 1, B: RNormal},
		{Op: RETURN, A: 5, B: RBreak},
		{Op: LOADL, A: 2, B: 511},
		{Op: LOADI, A: 1, B: 42},
		{Op: LOADI, A: 1, B: -127},
		{Op: LOADI, A: 1, B: 127},
		{Op: JMP, B: 100},
		{Op: JMP, B: -100},
		{Op: JMPIF, A: 4, B: 12},
		{Op: SEND, A: 0, B: 3, C: 2},
		{Op: SENDB, A: 0, B: 3, C: CallMaxArgs},
		{Op: GETUPVAR, A: 1, B: 1, C: 0},
		{Op: ENTER, B: ArgSpec{Mandatory: 2, Optional: 1, Rest: true, Block: true}.Pack()},
		{Op: LAMBDA, A: 2, B: 1, C: 1},
	}

	for _, want := range tests {
		word := want.Encode()
		got, err := Decode(word)
		if err != nil {
			t.Fatalf("Decode(%#x) for %s: %v", word, want.String(), err)
		}
		got.Line = want.Line
		if got != want {
			t.Errorf("round-trip mismatch: want %+v, got %+v (word %#010x)", want, got, word)
		}
	}
}

func TestInstructionEncodeIsOpcodeInLowBits(t *testing.T) {
	ins := Instruction{Op: SEND, A: 1, B: 2, C: 3}
	word := ins.Encode()
	if Opcode(word&0x7F) != SEND {
		t.Fatalf("opcode not recoverable from low 7 bits of %#010x", word)
	}
}

func TestInstructionStringFormats(t *testing.T) {
	tests := []struct {
		ins  Instruction
		want string
	}{
		{Instruction{Op: STOP}, "STOP"},
		{Instruction{Op: LOADNIL, A: 3}, "LOADNIL 3"},
		{Instruction{Op: JMP, B: 5}, "JMP 5"},
		{Instruction{Op: MOVE, A: 1, B: 2}, "MOVE 1 2"},
		{Instruction{Op: SEND, A: 0, B: 1, C: 2}, "SEND 0 1 2"},
		{Instruction{Op: ENTER, B: 9}, "ENTER 9"},
	}
	for _, tt := range tests {
		if got := tt.ins.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestArgSpecPackUnpackRoundTrip(t *testing.T) {
	tests := []ArgSpec{
		{},
		{Mandatory: 1},
		{Mandatory: 2, Optional: 3, Rest: true, Post: 1, Keyword: 4, KeywordDict: true, Block: true},
		{Mandatory: 31, Optional: 31, Rest: true, Post: 31, Keyword: 31, KeywordDict: true, Block: true},
	}
	for _, want := range tests {
		got := Unpack(want.Pack())
		if got != want {
			t.Errorf("Unpack(Pack(%+v)) = %+v", want, got)
		}
	}
}

func TestLookupUnknownOpcode(t *testing.T) {
	if _, err := Lookup(Opcode(250)); err == nil {
		t.Fatal("expected an error for an undefined opcode")
	}
}

func TestIsJump(t *testing.T) {
	for _, op := range []Opcode{JMP, JMPIF, JMPNOT, ONERR} {
		if !IsJump(op) {
			t.Errorf("IsJump(%v) = false, want true", op)
		}
	}
	for _, op := range []Opcode{MOVE, SEND, RETURN, STOP} {
		if IsJump(op) {
			t.Errorf("IsJump(%v) = true, want false", op)
		}
	}
}
