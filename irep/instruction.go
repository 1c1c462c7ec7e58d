package irep

import "fmt"

// Instruction is a single decoded bytecode operation. Which of A, B, C
// carry meaning — and whether B/C hold a 9-bit register, a 16-bit pool
// index, or a signed jump offset — depends on Lookup(Op).Format; see
// opcode.go's Format documentation.
//
// While a forward jump is pending, B holds the pc of the previous pending
// jump in its chain (spec §4.1/§4.5), not a real offset; [Scope.dispatch]
// rewrites it to a signed relative offset exactly once.
type Instruction struct {
	Op   Opcode
	A, B, C int
	Line int
}

const (
	bxBias   = 0x7FFF
	bxMask16 = 0xFFFF
	axMask25 = 0x1FFFFFF
	aMask9   = 0x1FF
	cMask7   = 0x7F
	bMask14  = 0x3FFF
	cMask2   = 0x3
)

// Encode packs the instruction into the bit-exact 32-bit word spec §6
// describes: opcode in bits [0:7), then operand fields in the remaining
// 25 bits, laid out per the instruction's Format.
func (ins Instruction) Encode() uint32 {
	def, err := Lookup(ins.Op)
	if err != nil {
		panic(err)
	}
	word := uint32(ins.Op) & 0x7F
	switch def.Format {
	case FNone:
	case FA:
		word |= (uint32(ins.A) & aMask9) << 7
	case FAB:
		word |= (uint32(ins.A) & aMask9) << 7
		word |= (uint32(ins.B) & aMask9) << 16
	case FABC:
		word |= (uint32(ins.A) & aMask9) << 7
		word |= (uint32(ins.B) & aMask9) << 16
		word |= (uint32(ins.C) & cMask7) << 25
	case FABx:
		word |= (uint32(ins.A) & aMask9) << 7
		word |= (uint32(ins.B) & bxMask16) << 16
	case FAsBx:
		word |= (uint32(ins.A) & aMask9) << 7
		word |= (uint32(ins.B+bxBias) & bxMask16) << 16
	case FBx:
		word |= (uint32(ins.B) & bxMask16) << 16
	case FsBx:
		word |= (uint32(ins.B+bxBias) & bxMask16) << 16
	case FAx:
		word |= (uint32(ins.B) & axMask25) << 7
	case FAbc:
		word |= (uint32(ins.A) & aMask9) << 7
		word |= (uint32(ins.B) & bMask14) << 16
		word |= (uint32(ins.C) & cMask2) << 30
	}
	return word
}

// Decode unpacks a 32-bit instruction word into an [Instruction]. The
// returned value's Line is zero; callers restore it from the IREP's
// parallel line array.
func Decode(word uint32) (Instruction, error) {
	op := Opcode(word & 0x7F)
	def, err := Lookup(op)
	if err != nil {
		return Instruction{}, err
	}
	ins := Instruction{Op: op}
	switch def.Format {
	case FNone:
	case FA:
		ins.A = int((word >> 7) & aMask9)
	case FAB:
		ins.A = int((word >> 7) & aMask9)
		ins.B = int((word >> 16) & aMask9)
	case FABC:
		ins.A = int((word >> 7) & aMask9)
		ins.B = int((word >> 16) & aMask9)
		ins.C = int((word >> 25) & cMask7)
	case FABx:
		ins.A = int((word >> 7) & aMask9)
		ins.B = int((word >> 16) & bxMask16)
	case FAsBx:
		ins.A = int((word >> 7) & aMask9)
		ins.B = int((word>>16)&bxMask16) - bxBias
	case FBx:
		ins.B = int((word >> 16) & bxMask16)
	case FsBx:
		ins.B = int((word>>16)&bxMask16) - bxBias
	case FAx:
		ins.B = int((word >> 7) & axMask25)
	case FAbc:
		ins.A = int((word >> 7) & aMask9)
		ins.B = int((word >> 16) & bMask14)
		ins.C = int((word >> 30) & cMask2)
	}
	return ins, nil
}

// String renders a human-readable disassembly line, e.g. "LOADI 1 42".
func (ins Instruction) String() string {
	def, err := Lookup(ins.Op)
	if err != nil {
		return fmt.Sprintf("ERROR: %s", err)
	}
	switch def.Format {
	case FNone:
		return def.Name
	case FA, FBx, FsBx:
		v := ins.A
		if def.Format != FA {
			v = ins.B
		}
		return fmt.Sprintf("%s %d", def.Name, v)
	case FAB, FABx, FAsBx:
		return fmt.Sprintf("%s %d %d", def.Name, ins.A, ins.B)
	case FABC:
		return fmt.Sprintf("%s %d %d %d", def.Name, ins.A, ins.B, ins.C)
	case FAx:
		return fmt.Sprintf("%s %d", def.Name, ins.B)
	case FAbc:
		return fmt.Sprintf("%s %d %d %d", def.Name, ins.A, ins.B, ins.C)
	default:
		return def.Name
	}
}

// ArgSpec is the ENTER opcode's 25-bit argument-specification operand
// (mrb_aspec, spec §6): mandatory-pre, optional, rest, post-rest, and
// keyword parameter counts/flags.
type ArgSpec struct {
	Mandatory int  // ma: 5 bits
	Optional  int  // oa: 5 bits
	Rest      bool // ra: 1 bit
	Post      int  // pa: 5 bits (post-rest mandatory count)
	Keyword   int  // ka: 5 bits — present for ABI completeness; no node kind emits non-zero yet
	KeywordDict bool // kd: 1 bit
	Block     bool // ba: 1 bit
}

// Pack encodes the ArgSpec into its 25-bit representation:
// (ma<<18) | (oa<<13) | (ra<<12) | (pa<<7) | (ka<<2) | (kd<<1) | ba.
func (a ArgSpec) Pack() int {
	v := (a.Mandatory & 0x1F) << 18
	v |= (a.Optional & 0x1F) << 13
	v |= boolBit(a.Rest) << 12
	v |= (a.Post & 0x1F) << 7
	v |= (a.Keyword & 0x1F) << 2
	v |= boolBit(a.KeywordDict) << 1
	v |= boolBit(a.Block)
	return v
}

// Unpack decodes a 25-bit ArgSpec value.
func Unpack(v int) ArgSpec {
	return ArgSpec{
		Mandatory:   (v >> 18) & 0x1F,
		Optional:    (v >> 13) & 0x1F,
		Rest:        (v>>12)&1 == 1,
		Post:        (v >> 7) & 0x1F,
		Keyword:     (v >> 2) & 0x1F,
		KeywordDict: (v>>1)&1 == 1,
		Block:       v&1 == 1,
	}
}

func boolBit(b bool) int {
	if b {
		return 1
	}
	return 0
}
