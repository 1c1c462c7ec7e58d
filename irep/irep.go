package irep

import (
	"fmt"
	"strings"

	"github.com/quartzlang/quartz/object"
)

// IREP is a compiled unit of code: one per lexical scope (top level, method
// body, block/lambda body, class/module body, singleton body). See
// spec.md §3.
type IREP struct {
	Instructions []Instruction
	Locals       []string // local-variable names in declaration order, for debugging
	Constants    []object.Value
	Symbols      []object.Sym
	Children     []*IREP

	NLocals  int
	NRegs    int
	Filename string
	Filenames []string // full filename table; codegen.Generate sets it on the top-level IREP only
}

// ilen, plen, slen, rlen are spec.md §6's scalar metadata names for the
// instruction/pool/symbol/children lengths.
func (ir *IREP) ilen() int { return len(ir.Instructions) }
func (ir *IREP) plen() int { return len(ir.Constants) }
func (ir *IREP) slen() int { return len(ir.Symbols) }
func (ir *IREP) rlen() int { return len(ir.Children) }

// AddConst interns value into the constant pool by structural equality
// (new_lit, spec §4.3), returning its index.
func (ir *IREP) AddConst(v object.Value) int {
	for i, c := range ir.Constants {
		if c.Type() == v.Type() && c.Equal(v) {
			return i
		}
	}
	ir.Constants = append(ir.Constants, v)
	return len(ir.Constants) - 1
}

// MethodSymPrefixLen is the reserved method-symbol prefix size (spec §4.3).
const MethodSymPrefixLen = 256

// AddMethodSym interns sym into the first MethodSymPrefixLen symbol-table
// slots (new_msym). It errors if that prefix is full.
func (ir *IREP) AddMethodSym(name string) (int, error) {
	limit := len(ir.Symbols)
	if limit > MethodSymPrefixLen {
		limit = MethodSymPrefixLen
	}
	for i := 0; i < limit; i++ {
		if ir.Symbols[i].Name == name {
			return i, nil
		}
	}
	if len(ir.Symbols) >= MethodSymPrefixLen {
		return 0, fmt.Errorf("irep: too many method symbols (max %d)", MethodSymPrefixLen)
	}
	ir.Symbols = append(ir.Symbols, object.Sym{Name: name})
	return len(ir.Symbols) - 1, nil
}

// AddSym interns sym anywhere in the full symbol table (new_sym),
// deduplicating across the entire table including the method-symbol
// prefix.
func (ir *IREP) AddSym(name string) int {
	for i, s := range ir.Symbols {
		if s.Name == name {
			return i
		}
	}
	ir.Symbols = append(ir.Symbols, object.Sym{Name: name})
	return len(ir.Symbols) - 1
}

// AddChild appends a child IREP in source order and returns its index,
// which the LAMBDA/CLASS/MODULE/EXEC instructions reference.
func (ir *IREP) AddChild(child *IREP) int {
	ir.Children = append(ir.Children, child)
	return len(ir.Children) - 1
}

// Encode renders the full instruction sequence as 32-bit words, the
// wire format spec.md §6 defines.
func (ir *IREP) Encode() []uint32 {
	words := make([]uint32, len(ir.Instructions))
	for i, ins := range ir.Instructions {
		words[i] = ins.Encode()
	}
	return words
}

// Lines returns the parallel per-instruction source-line array.
func (ir *IREP) Lines() []int {
	lines := make([]int, len(ir.Instructions))
	for i, ins := range ir.Instructions {
		lines[i] = ins.Line
	}
	return lines
}

// Disassemble renders a human-readable listing of this IREP and, recursively,
// every child IREP — the format the repl console and cmd/quartzc print.
func (ir *IREP) Disassemble() string {
	var b strings.Builder
	ir.disassemble(&b, 0)
	return b.String()
}

func (ir *IREP) disassemble(b *strings.Builder, depth int) {
	indent := strings.Repeat("  ", depth)
	fmt.Fprintf(b, "%sirep %p: nlocals=%d nregs=%d ilen=%d plen=%d slen=%d rlen=%d\n",
		indent, ir, ir.NLocals, ir.NRegs, ir.ilen(), ir.plen(), ir.slen(), ir.rlen())
	for i, ins := range ir.Instructions {
		fmt.Fprintf(b, "%s%04d [line %d] %s\n", indent, i, ins.Line, ins.String())
	}
	for i, c := range ir.Constants {
		fmt.Fprintf(b, "%spool[%d] = %s\n", indent, i, c.Inspect())
	}
	for i, s := range ir.Symbols {
		fmt.Fprintf(b, "%ssym[%d] = %s\n", indent, i, s.Inspect())
	}
	for i, child := range ir.Children {
		fmt.Fprintf(b, "%schild[%d]:\n", indent, i)
		child.disassemble(b, depth+1)
	}
}
