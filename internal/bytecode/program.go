package bytecode

import (
	"fmt"
	"io"
)

// Instruction is one emitted VM instruction: an opcode plus an optional
// signed argument.
type Instruction struct {
	Op  OpCode
	Arg int64
	// Line is the source line this instruction was produced from, carried
	// purely for diagnostics — it plays no role in VM semantics.
	Line int
}

// Program is the ordered instruction sequence the generator builds up over
// a single pass. Indices into Instructions double as jump targets: forward
// jumps are patched once their block's extent is known (see Patch).
type Program struct {
	Instructions []Instruction
}

func NewProgram() *Program {
	return &Program{}
}

// Len is the index the next emitted instruction will occupy.
func (p *Program) Len() int {
	return len(p.Instructions)
}

// Emit appends a nullary instruction (HALF, HALT) and returns its index.
func (p *Program) Emit(op OpCode, line int) int {
	p.Instructions = append(p.Instructions, Instruction{Op: op, Line: line})
	return len(p.Instructions) - 1
}

// EmitArg appends an instruction carrying arg and returns its index.
func (p *Program) EmitArg(op OpCode, arg int64, line int) int {
	p.Instructions = append(p.Instructions, Instruction{Op: op, Arg: arg, Line: line})
	return len(p.Instructions) - 1
}

// Patch overwrites the argument of a previously emitted instruction — used
// to back-fill placeholder jump targets once a block's end PC is known.
func (p *Program) Patch(index int, arg int64) {
	p.Instructions[index].Arg = arg
}

// PatchToHere patches a forward jump at index to a PC-relative offset
// landing on the next instruction to be emitted.
func (p *Program) PatchToHere(index int) {
	p.Patch(index, int64(p.Len()-index))
}

// WriteTo renders the program in the target VM's assembly text format: one
// instruction per line, "OP" or "OP ARG".
func (p *Program) WriteTo(w io.Writer) (int64, error) {
	var written int64
	for _, ins := range p.Instructions {
		var (
			n   int
			err error
		)
		if ins.Op.HasArgument() {
			n, err = fmt.Fprintf(w, "%s %d\n", ins.Op, ins.Arg)
		} else {
			n, err = fmt.Fprintf(w, "%s\n", ins.Op)
		}
		written += int64(n)
		if err != nil {
			return written, err
		}
	}
	return written, nil
}
