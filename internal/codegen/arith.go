package codegen

import (
	"tinyimp/internal/ast"
	"tinyimp/internal/bytecode"
)

// materialize lowers e and copies its value out of the accumulator into a
// freshly allocated cell, returning that cell's address.
func (g *Generator) materialize(e ast.Expr, line int) int {
	g.lowerExpr(e)
	addr := g.alloc.alloc()
	g.prog.EmitArg(bytecode.STORE, int64(addr), line)
	return addr
}

// absInto negates M[addr] in place if it is negative, toggling each cell
// in flags (0/1 valued) between 0 and 1 when it does. Shared by
// multiply/divide/modulo to record operand signs without duplicating the
// negate-and-flag dance per caller.
func (g *Generator) absInto(addr int, line int, flags ...int) {
	g.prog.EmitArg(bytecode.SET, 0, line)
	g.prog.EmitArg(bytecode.SUB, int64(addr), line)
	jpos := g.prog.EmitArg(bytecode.JPOS, 0, line)
	skip := g.prog.EmitArg(bytecode.JUMP, 0, line)
	g.prog.PatchToHere(jpos)
	g.prog.EmitArg(bytecode.STORE, int64(addr), line)
	for _, f := range flags {
		g.prog.EmitArg(bytecode.SET, 1, line)
		g.prog.EmitArg(bytecode.SUB, int64(f), line)
		g.prog.EmitArg(bytecode.STORE, int64(f), line)
	}
	g.prog.PatchToHere(skip)
}

// lowerMultiply implements the shift-and-add routine spec.md §4.3
// mandates: absolute values via absInto, a loop that adds the
// (doubling) right operand into the result whenever the (halving) left
// operand is odd, then a sign correction at the end.
func (g *Generator) lowerMultiply(n *ast.Binary) {
	line := n.Line
	aCell := g.materialize(n.Left, line)
	bCell := g.materialize(n.Right, line)
	signCell := g.alloc.alloc()
	g.prog.EmitArg(bytecode.SET, 0, line)
	g.prog.EmitArg(bytecode.STORE, int64(signCell), line)

	g.absInto(aCell, line, signCell)
	g.absInto(bCell, line, signCell)

	resultCell := g.alloc.alloc()
	g.prog.EmitArg(bytecode.SET, 0, line)
	g.prog.EmitArg(bytecode.STORE, int64(resultCell), line)
	halfCell := g.alloc.alloc()

	loopHead := g.prog.Len()
	g.prog.EmitArg(bytecode.LOAD, int64(aCell), line)
	jzExit := g.prog.EmitArg(bytecode.JZERO, 0, line)
	g.prog.Emit(bytecode.HALF, line)
	g.prog.EmitArg(bytecode.STORE, int64(halfCell), line)
	g.prog.EmitArg(bytecode.ADD, int64(halfCell), line)
	g.prog.EmitArg(bytecode.SUB, int64(aCell), line)
	jzEven := g.prog.EmitArg(bytecode.JZERO, 0, line)
	g.prog.EmitArg(bytecode.LOAD, int64(resultCell), line)
	g.prog.EmitArg(bytecode.ADD, int64(bCell), line)
	g.prog.EmitArg(bytecode.STORE, int64(resultCell), line)
	g.prog.PatchToHere(jzEven)
	g.prog.EmitArg(bytecode.LOAD, int64(halfCell), line)
	g.prog.EmitArg(bytecode.STORE, int64(aCell), line)
	g.prog.EmitArg(bytecode.LOAD, int64(bCell), line)
	g.prog.EmitArg(bytecode.ADD, int64(bCell), line)
	g.prog.EmitArg(bytecode.STORE, int64(bCell), line)
	back := g.prog.EmitArg(bytecode.JUMP, 0, line)
	g.prog.Patch(back, int64(loopHead-back))
	g.prog.PatchToHere(jzExit)

	g.prog.EmitArg(bytecode.LOAD, int64(signCell), line)
	jzPos := g.prog.EmitArg(bytecode.JZERO, 0, line)
	g.prog.EmitArg(bytecode.SET, 0, line)
	g.prog.EmitArg(bytecode.SUB, int64(resultCell), line)
	g.prog.EmitArg(bytecode.STORE, int64(resultCell), line)
	g.prog.PatchToHere(jzPos)
	g.prog.EmitArg(bytecode.LOAD, int64(resultCell), line)

	g.alloc.releaseTemp() // halfCell
	g.alloc.releaseTemp() // resultCell
	g.alloc.releaseTemp() // signCell
	g.alloc.releaseTemp() // bCell
	g.alloc.releaseTemp() // aCell
}

// unsignedDivMod lowers left and right, reduces both to absolute value,
// and performs unsigned shift-up/shift-down division: grow a scaled copy
// of the divisor (doubling alongside a step counter) until it exceeds the
// remaining dividend, then walk it back down, subtracting whenever it
// still fits. Returns the cells holding the truncated quotient, the
// non-negative remainder, the absolute divisor, and the two sign flags
// needed by the caller's floor-division correction.
func (g *Generator) unsignedDivMod(n *ast.Binary) (quotCell, remCell, bAbsCell, diffSign, bWasNeg int) {
	line := n.Line
	aCell := g.materialize(n.Left, line)
	bAbsCell = g.materialize(n.Right, line)
	diffSign = g.alloc.alloc()
	bWasNeg = g.alloc.alloc()
	g.prog.EmitArg(bytecode.SET, 0, line)
	g.prog.EmitArg(bytecode.STORE, int64(diffSign), line)
	g.prog.EmitArg(bytecode.SET, 0, line)
	g.prog.EmitArg(bytecode.STORE, int64(bWasNeg), line)

	g.absInto(aCell, line, diffSign)
	g.absInto(bAbsCell, line, diffSign, bWasNeg)

	// remCell is a dedicated cell seeded to 0, the same way quotCell is —
	// it is NOT an alias of aCell, so a zero divisor (which skips the copy
	// below entirely) leaves it at 0 rather than at aCell's absolute value.
	remCell = g.alloc.alloc()
	g.prog.EmitArg(bytecode.SET, 0, line)
	g.prog.EmitArg(bytecode.STORE, int64(remCell), line)
	quotCell = g.alloc.alloc()
	g.prog.EmitArg(bytecode.SET, 0, line)
	g.prog.EmitArg(bytecode.STORE, int64(quotCell), line)

	divCell := g.alloc.alloc()
	g.prog.EmitArg(bytecode.LOAD, int64(bAbsCell), line)
	g.prog.EmitArg(bytecode.STORE, int64(divCell), line)
	stepCell := g.alloc.alloc()
	g.prog.EmitArg(bytecode.SET, 1, line)
	g.prog.EmitArg(bytecode.STORE, int64(stepCell), line)

	// Division by zero: leave quotient/remainder at their initialized 0
	// values, matching spec.md §4.3's "routine is skipped" rule — for
	// both quotient and remainder, matching original_source's behavior
	// where the JZERO on the divisor skips straight past the final LOAD
	// of the dividend, so the accumulator (and thus the stored result)
	// never picks up the dividend's value.
	g.prog.EmitArg(bytecode.LOAD, int64(bAbsCell), line)
	skipAll := g.prog.EmitArg(bytecode.JZERO, 0, line)

	g.prog.EmitArg(bytecode.LOAD, int64(aCell), line)
	g.prog.EmitArg(bytecode.STORE, int64(remCell), line)

	growHead := g.prog.Len()
	g.prog.EmitArg(bytecode.LOAD, int64(divCell), line)
	g.prog.EmitArg(bytecode.SUB, int64(remCell), line)
	growExit := g.prog.EmitArg(bytecode.JPOS, 0, line)
	g.prog.EmitArg(bytecode.LOAD, int64(divCell), line)
	g.prog.EmitArg(bytecode.ADD, int64(divCell), line)
	g.prog.EmitArg(bytecode.STORE, int64(divCell), line)
	g.prog.EmitArg(bytecode.LOAD, int64(stepCell), line)
	g.prog.EmitArg(bytecode.ADD, int64(stepCell), line)
	g.prog.EmitArg(bytecode.STORE, int64(stepCell), line)
	growBack := g.prog.EmitArg(bytecode.JUMP, 0, line)
	g.prog.Patch(growBack, int64(growHead-growBack))
	g.prog.PatchToHere(growExit)

	shrinkHead := g.prog.Len()
	g.prog.EmitArg(bytecode.LOAD, int64(stepCell), line)
	shrinkExit := g.prog.EmitArg(bytecode.JZERO, 0, line)
	g.prog.EmitArg(bytecode.LOAD, int64(divCell), line)
	g.prog.EmitArg(bytecode.SUB, int64(remCell), line)
	skipSub := g.prog.EmitArg(bytecode.JPOS, 0, line)
	g.prog.EmitArg(bytecode.LOAD, int64(remCell), line)
	g.prog.EmitArg(bytecode.SUB, int64(divCell), line)
	g.prog.EmitArg(bytecode.STORE, int64(remCell), line)
	g.prog.EmitArg(bytecode.LOAD, int64(quotCell), line)
	g.prog.EmitArg(bytecode.ADD, int64(stepCell), line)
	g.prog.EmitArg(bytecode.STORE, int64(quotCell), line)
	g.prog.PatchToHere(skipSub)
	g.prog.EmitArg(bytecode.LOAD, int64(divCell), line)
	g.prog.Emit(bytecode.HALF, line)
	g.prog.EmitArg(bytecode.STORE, int64(divCell), line)
	g.prog.EmitArg(bytecode.LOAD, int64(stepCell), line)
	g.prog.Emit(bytecode.HALF, line)
	g.prog.EmitArg(bytecode.STORE, int64(stepCell), line)
	shrinkBack := g.prog.EmitArg(bytecode.JUMP, 0, line)
	g.prog.Patch(shrinkBack, int64(shrinkHead-shrinkBack))
	g.prog.PatchToHere(shrinkExit)
	g.prog.PatchToHere(skipAll)

	g.alloc.releaseTemp() // stepCell
	g.alloc.releaseTemp() // divCell
	return quotCell, remCell, bAbsCell, diffSign, bWasNeg
}

// lowerDivide computes floor(left/right): a truncated unsigned division
// corrected to floor semantics, so that it pairs with lowerModulo (whose
// result sign follows the divisor) under the "mathematical modulo" law in
// spec.md §8. The quotient is negative when the operand signs differ.
func (g *Generator) lowerDivide(n *ast.Binary) {
	line := n.Line
	quotCell, remCell, _, diffSign, _ := g.unsignedDivMod(n)

	g.prog.EmitArg(bytecode.LOAD, int64(diffSign), line)
	jzSame := g.prog.EmitArg(bytecode.JZERO, 0, line)
	// signs differed: quotient is negative; bump magnitude by one unless
	// the division was exact (remainder zero).
	g.prog.EmitArg(bytecode.LOAD, int64(remCell), line)
	jzExact := g.prog.EmitArg(bytecode.JZERO, 0, line)
	g.prog.EmitArg(bytecode.SET, 1, line)
	g.prog.EmitArg(bytecode.ADD, int64(quotCell), line)
	g.prog.EmitArg(bytecode.STORE, int64(quotCell), line)
	g.prog.PatchToHere(jzExact)
	g.prog.EmitArg(bytecode.SET, 0, line)
	g.prog.EmitArg(bytecode.SUB, int64(quotCell), line)
	g.prog.EmitArg(bytecode.STORE, int64(quotCell), line)
	jumpDone := g.prog.EmitArg(bytecode.JUMP, 0, line)
	g.prog.PatchToHere(jzSame)
	g.prog.PatchToHere(jumpDone)
	g.prog.EmitArg(bytecode.LOAD, int64(quotCell), line)

	g.alloc.releaseTemp() // quotCell
	g.alloc.releaseTemp() // remCell
	g.alloc.releaseTemp() // bWasNeg
	g.alloc.releaseTemp() // diffSign
	g.alloc.releaseTemp() // bAbsCell
	g.alloc.releaseTemp() // aCell
}

// lowerModulo computes left modulo right with the sign of right (or zero),
// per spec.md §4.3 and §8's mathematical-modulo law.
func (g *Generator) lowerModulo(n *ast.Binary) {
	line := n.Line
	_, remCell, bAbsCell, diffSign, bWasNeg := g.unsignedDivMod(n)

	g.prog.EmitArg(bytecode.LOAD, int64(diffSign), line)
	jzSame := g.prog.EmitArg(bytecode.JZERO, 0, line)
	g.prog.EmitArg(bytecode.LOAD, int64(remCell), line)
	jzExact := g.prog.EmitArg(bytecode.JZERO, 0, line)
	g.prog.EmitArg(bytecode.LOAD, int64(bAbsCell), line)
	g.prog.EmitArg(bytecode.SUB, int64(remCell), line)
	g.prog.EmitArg(bytecode.STORE, int64(remCell), line)
	g.prog.PatchToHere(jzExact)
	g.prog.PatchToHere(jzSame)

	g.prog.EmitArg(bytecode.LOAD, int64(bWasNeg), line)
	jzPos := g.prog.EmitArg(bytecode.JZERO, 0, line)
	g.prog.EmitArg(bytecode.LOAD, int64(remCell), line)
	jzZero := g.prog.EmitArg(bytecode.JZERO, 0, line)
	g.prog.EmitArg(bytecode.SET, 0, line)
	g.prog.EmitArg(bytecode.SUB, int64(remCell), line)
	g.prog.EmitArg(bytecode.STORE, int64(remCell), line)
	g.prog.PatchToHere(jzZero)
	g.prog.PatchToHere(jzPos)
	g.prog.EmitArg(bytecode.LOAD, int64(remCell), line)

	g.alloc.releaseTemp() // quotCell
	g.alloc.releaseTemp() // remCell
	g.alloc.releaseTemp() // bWasNeg
	g.alloc.releaseTemp() // diffSign
	g.alloc.releaseTemp() // bAbsCell
	g.alloc.releaseTemp() // aCell
}
