package codegen

import (
	"testing"

	"tinyimp/internal/bytecode"
)

// runProgram is a minimal interpreter for the target register machine,
// just enough to exercise the generator's output end to end without a
// real VM dependency. It mirrors the opcode semantics in spec.md §6
// exactly (including GET/PUT only ever touching a named cell, never the
// accumulator directly).
func runProgram(t *testing.T, prog *bytecode.Program, input []int64) []int64 {
	t.Helper()
	mem := make(map[int]int64)
	var acc int64
	var output []int64
	inIdx := 0
	pc := 0
	steps := 0
	for pc < len(prog.Instructions) {
		steps++
		if steps > 1_000_000 {
			t.Fatalf("program did not halt within %d steps", steps)
		}
		ins := prog.Instructions[pc]
		next := pc + 1
		switch ins.Op {
		case bytecode.GET:
			if inIdx >= len(input) {
				t.Fatalf("program requested more input than provided (%d values)", len(input))
			}
			mem[int(ins.Arg)] = input[inIdx]
			inIdx++
		case bytecode.PUT:
			output = append(output, mem[int(ins.Arg)])
		case bytecode.LOAD:
			acc = mem[int(ins.Arg)]
		case bytecode.STORE:
			mem[int(ins.Arg)] = acc
		case bytecode.LOADI:
			acc = mem[int(mem[int(ins.Arg)])]
		case bytecode.STOREI:
			mem[int(mem[int(ins.Arg)])] = acc
		case bytecode.ADD:
			acc += mem[int(ins.Arg)]
		case bytecode.SUB:
			acc -= mem[int(ins.Arg)]
		case bytecode.ADDI:
			acc += mem[int(mem[int(ins.Arg)])]
		case bytecode.SUBI:
			acc -= mem[int(mem[int(ins.Arg)])]
		case bytecode.SET:
			acc = ins.Arg
		case bytecode.HALF:
			acc = floorDiv2(acc)
		case bytecode.JUMP:
			next = pc + int(ins.Arg)
		case bytecode.JPOS:
			if acc > 0 {
				next = pc + int(ins.Arg)
			}
		case bytecode.JNEG:
			if acc < 0 {
				next = pc + int(ins.Arg)
			}
		case bytecode.JZERO:
			if acc == 0 {
				next = pc + int(ins.Arg)
			}
		case bytecode.RTRN:
			next = int(mem[int(ins.Arg)])
		case bytecode.HALT:
			return output
		default:
			t.Fatalf("unknown opcode %v at pc=%d", ins.Op, pc)
		}
		pc = next
	}
	return output
}

func floorDiv2(v int64) int64 {
	if v >= 0 {
		return v / 2
	}
	// Go's / truncates toward zero; floor(v/2) for negative odd v needs -1.
	if v%2 == 0 {
		return v / 2
	}
	return v/2 - 1
}
