package codegen

import (
	"tinyimp/internal/ast"
	"tinyimp/internal/bytecode"
	generrors "tinyimp/internal/errors"
)

func (g *Generator) resolve(name string, line int) *symbol {
	sym, ok := g.activeScope().lookup(name)
	if !ok {
		g.fail(generrors.UndeclaredIdentifier, line, "undeclared identifier %q", name)
	}
	return sym
}

// checkRead validates that reading sym (as a bare scalar) is legal: it
// must have been written at least once, unless it is a formal (considered
// initialized on entry) or a loop counter (always initialized).
func (g *Generator) checkRead(sym *symbol, line int) {
	switch sym.kind {
	case kindGlobalScalar, kindLocalScalar:
		if !g.activeScope().isInitialized(sym.name) {
			g.fail(generrors.UseBeforeInit, line, "%q used before being initialized", sym.name)
		}
	}
}

// lowerExpr emits instructions that leave e's value in the accumulator.
func (g *Generator) lowerExpr(e ast.Expr) {
	switch n := e.(type) {
	case *ast.Literal:
		g.prog.EmitArg(bytecode.SET, n.Value, n.Line)
	case *ast.Ident:
		g.loadIdent(n)
	case *ast.Binary:
		g.lowerBinary(n)
	default:
		panic("codegen: unknown expression node")
	}
}

// loadIdent loads the value named by n — a scalar or, with Index set, one
// array element — into the accumulator.
func (g *Generator) loadIdent(n *ast.Ident) {
	sym := g.resolve(n.Name, n.Line)
	if n.Index == nil {
		if sym.kind.isArray() {
			g.fail(generrors.MisuseOfArray, n.Line, "array %q used without an index", n.Name)
		}
		g.checkRead(sym, n.Line)
		switch sym.kind {
		case kindParamScalar:
			g.prog.EmitArg(bytecode.LOADI, int64(sym.addr), n.Line)
		default:
			g.prog.EmitArg(bytecode.LOAD, int64(sym.addr), n.Line)
		}
		return
	}
	if !sym.kind.isArray() {
		g.fail(generrors.MisuseOfArray, n.Line, "%q is not an array", n.Name)
	}
	temp := g.computeElemAddr(sym, n)
	g.prog.EmitArg(bytecode.LOADI, int64(temp), n.Line)
	g.alloc.releaseTemp()
}

// storeScalar stores the accumulator's current value into the scalar sym.
// For an array element, the destination address is computed into a
// dedicated temp up front by the caller (see lowerAssign) so that lowering
// the right-hand side cannot clobber it; storeScalar here only ever has to
// worry about bare scalars.
func (g *Generator) storeScalar(sym *symbol, line int) {
	switch sym.kind {
	case kindParamScalar:
		g.prog.EmitArg(bytecode.STOREI, int64(sym.addr), line)
	default:
		g.prog.EmitArg(bytecode.STORE, int64(sym.addr), line)
		g.activeScope().markInitialized(sym.name)
	}
}

// computeElemAddr computes the address of array element n (sym must be an
// array kind) into a freshly allocated temp cell and returns that cell's
// address. The caller must releaseTemp() when done with it.
func (g *Generator) computeElemAddr(sym *symbol, n *ast.Ident) int {
	g.lowerExpr(n.Index)
	switch sym.kind {
	case kindParamArray:
		g.prog.EmitArg(bytecode.ADDI, int64(sym.biasAddr), n.Line)
	default:
		g.prog.EmitArg(bytecode.ADD, int64(sym.biasAddr), n.Line)
	}
	temp := g.alloc.alloc()
	g.prog.EmitArg(bytecode.STORE, int64(temp), n.Line)
	return temp
}

// lowerBinary lowers a +, -, *, / or % expression. Addition and
// subtraction share one temp+combine shape; the other three delegate to
// their own routines in internal/codegen/arith.go (shift-and-add for *,
// shift-and-subtract for / and %).
func (g *Generator) lowerBinary(n *ast.Binary) {
	switch n.Op {
	case "+", "-":
		g.lowerAddSub(n)
	case "*":
		g.lowerMultiply(n)
	case "/":
		g.checkStaticZeroDivisor(n)
		g.lowerDivide(n)
	case "%":
		g.checkStaticZeroDivisor(n)
		g.lowerModulo(n)
	default:
		panic("codegen: unknown binary operator " + n.Op)
	}
}

// checkStaticZeroDivisor catches only a literal 0 in the divisor position,
// per spec.md §7 — a variable that happens to always be zero is not
// analyzed; a runtime-zero divisor is silently neutralized instead (see
// unsignedDivMod).
func (g *Generator) checkStaticZeroDivisor(n *ast.Binary) {
	if lit, ok := n.Right.(*ast.Literal); ok && lit.Value == 0 {
		g.fail(generrors.DivisionByZero, n.Line, "division by literal zero")
	}
}

func (g *Generator) lowerAddSub(n *ast.Binary) {
	// Right is materialized into the temp first so that, after left is
	// loaded into the accumulator, SUB yields left-right rather than
	// right-left.
	g.lowerExpr(n.Right)
	temp := g.alloc.alloc()
	g.prog.EmitArg(bytecode.STORE, int64(temp), n.Line)
	g.lowerExpr(n.Left)
	if n.Op == "+" {
		g.prog.EmitArg(bytecode.ADD, int64(temp), n.Line)
	} else {
		g.prog.EmitArg(bytecode.SUB, int64(temp), n.Line)
	}
	g.alloc.releaseTemp()
}
