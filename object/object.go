// Package object defines the constant-pool value shapes a compiled [irep.IREP]
// holds: the literal kinds codegen interns via new_lit (see irep.IREP.AddConst).
//
// This is deliberately not a runtime value system — Quartz's virtual
// machine and its garbage-collected object representation are external
// collaborators (out of scope for this repository). Only the handful of
// literal kinds codegen itself needs to deduplicate and encode survive
// here: integers, floats, and strings. Booleans and nil have dedicated
// opcodes (LOADT/LOADF/LOADNIL) and never occupy a pool slot.
package object

import (
	"fmt"
	"strconv"
)

// Type identifies the kind of a pooled constant.
type Type string

const (
	IntegerType Type = "INTEGER"
	FloatType   Type = "FLOAT"
	StringType  Type = "STRING"
)

// Value is a constant-pool entry. All pool values implement it so that
// irep.IREP.Constants can hold a single, structurally-comparable slice.
type Value interface {
	Type() Type
	Inspect() string
	// Equal reports structural equality with another Value of the same
	// Type, used by new_lit's linear-scan dedup (spec.md §4.3).
	Equal(other Value) bool
}

// Integer is a pooled fixnum-overflow integer constant. Most integer
// literals fit in an sBx immediate and are emitted via LOADI without ever
// touching the pool; Integer values only appear here for LOADL encodings
// codegen chooses not to take the sBx fast path for (see codegen.ParseInteger).
type Integer struct{ Value int64 }

func (i Integer) Type() Type      { return IntegerType }
func (i Integer) Inspect() string { return strconv.FormatInt(i.Value, 10) }
func (i Integer) Equal(o Value) bool {
	other, ok := o.(Integer)
	return ok && other.Value == i.Value
}

// Float is a pooled double-precision constant, used both for genuine float
// literals and for integer literals that overflowed during parsing.
type Float struct{ Value float64 }

func (f Float) Type() Type      { return FloatType }
func (f Float) Inspect() string { return strconv.FormatFloat(f.Value, 'g', -1, 64) }
func (f Float) Equal(o Value) bool {
	other, ok := o.(Float)
	return ok && other.Value == f.Value
}

// Str is a pooled string constant.
type Str struct{ Value string }

func (s Str) Type() Type      { return StringType }
func (s Str) Inspect() string { return fmt.Sprintf("%q", s.Value) }
func (s Str) Equal(o Value) bool {
	other, ok := o.(Str)
	return ok && other.Value == s.Value
}

// Sym is a symbol-table entry (method name or interned name), distinct
// from the literal constant pool (spec.md §4.3's new_sym/new_msym).
type Sym struct{ Name string }

func (s Sym) Inspect() string { return ":" + s.Name }
