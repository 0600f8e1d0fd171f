package codegen

import (
	"tinyimp/internal/ast"
	"tinyimp/internal/bytecode"
	generrors "tinyimp/internal/errors"
)

// lowerStmt dispatches a single statement to its lowering routine.
func (g *Generator) lowerStmt(s ast.Stmt) {
	switch n := s.(type) {
	case *ast.Assign:
		g.lowerAssign(n)
	case *ast.Read:
		g.lowerRead(n)
	case *ast.Write:
		g.lowerWrite(n)
	case *ast.If:
		g.lowerIf(n)
	case *ast.While:
		g.lowerWhile(n)
	case *ast.RepeatUntil:
		g.lowerRepeatUntil(n)
	case *ast.ForTo:
		g.lowerForTo(n)
	case *ast.ForDownTo:
		g.lowerForDownTo(n)
	case *ast.Call:
		g.lowerCallStmt(n)
	default:
		panic("codegen: unknown statement node")
	}
}

func (g *Generator) lowerAssign(a *ast.Assign) {
	sym := g.resolve(a.Target.Name, a.Target.Line)
	if g.isActiveLoopCounter(a.Target.Name) {
		g.fail(generrors.AssignToLoopCounter, a.Target.Line, "%q is a for-loop counter and cannot be assigned to", a.Target.Name)
	}
	if a.Target.Index != nil {
		if !sym.kind.isArray() {
			g.fail(generrors.MisuseOfArray, a.Target.Line, "%q is not an array", a.Target.Name)
		}
		// The destination address is computed before the right-hand side is
		// lowered, so evaluating Value can't clobber the temp holding it.
		dest := g.computeElemAddr(sym, a.Target)
		g.lowerExpr(a.Value)
		g.prog.EmitArg(bytecode.STOREI, int64(dest), a.Line)
		g.alloc.releaseTemp()
		return
	}
	if sym.kind.isArray() {
		g.fail(generrors.MisuseOfArray, a.Target.Line, "array %q used without an index", a.Target.Name)
	}
	g.lowerExpr(a.Value)
	g.storeScalar(sym, a.Line)
}

func (g *Generator) lowerRead(r *ast.Read) {
	sym := g.resolve(r.Target.Name, r.Target.Line)
	if g.isActiveLoopCounter(r.Target.Name) {
		g.fail(generrors.AssignToLoopCounter, r.Target.Line, "%q is a for-loop counter and cannot be assigned to", r.Target.Name)
	}
	if r.Target.Index != nil {
		if !sym.kind.isArray() {
			g.fail(generrors.MisuseOfArray, r.Target.Line, "%q is not an array", r.Target.Name)
		}
		dest := g.computeElemAddr(sym, r.Target)
		// GET only ever lands a value in a direct cell, so the scratch cell
		// 0 is loaded into the accumulator before the indirect store.
		g.prog.EmitArg(bytecode.GET, 0, r.Line)
		g.prog.EmitArg(bytecode.LOAD, 0, r.Line)
		g.prog.EmitArg(bytecode.STOREI, int64(dest), r.Line)
		g.alloc.releaseTemp()
		return
	}
	if sym.kind.isArray() {
		g.fail(generrors.MisuseOfArray, r.Target.Line, "array %q used without an index", r.Target.Name)
	}
	switch sym.kind {
	case kindParamScalar:
		g.prog.EmitArg(bytecode.GET, 0, r.Line)
		g.prog.EmitArg(bytecode.LOAD, 0, r.Line)
		g.prog.EmitArg(bytecode.STOREI, int64(sym.addr), r.Line)
	default:
		g.prog.EmitArg(bytecode.GET, int64(sym.addr), r.Line)
		g.activeScope().markInitialized(sym.name)
	}
}

// lowerWrite emits PUT addr directly when Value is a bare, directly
// addressable scalar (global, local or loop-counter — never a by-reference
// formal, which only ever holds an address indirectly); otherwise it lowers
// Value into the accumulator, spills it through the scratch cell PUT reads
// from (PUT's operand names a cell, not the accumulator), and emits PUT 0.
func (g *Generator) lowerWrite(w *ast.Write) {
	if id, ok := w.Value.(*ast.Ident); ok && id.Index == nil {
		sym := g.resolve(id.Name, id.Line)
		if sym.kind.isArray() {
			g.fail(generrors.MisuseOfArray, id.Line, "array %q used without an index", id.Name)
		}
		if sym.kind != kindParamScalar {
			g.checkRead(sym, id.Line)
			g.prog.EmitArg(bytecode.PUT, int64(sym.addr), w.Line)
			return
		}
	}
	g.lowerExpr(w.Value)
	g.prog.EmitArg(bytecode.STORE, 0, w.Line)
	g.prog.EmitArg(bytecode.PUT, 0, w.Line)
}

// lowerCondition leaves left-right in the accumulator, matching the
// condition convention the branch table in emitBranch below assumes.
func (g *Generator) lowerCondition(c *ast.Condition) {
	g.lowerExpr(c.Right)
	temp := g.alloc.alloc()
	g.prog.EmitArg(bytecode.STORE, int64(temp), c.Line)
	g.lowerExpr(c.Left)
	g.prog.EmitArg(bytecode.SUB, int64(temp), c.Line)
	g.alloc.releaseTemp()
}

// emitBranch emits the instruction sequence that jumps when cond's test is
// FALSE, and returns the index of the one instruction whose argument still
// needs patching (the caller decides whether that target is forward, via
// PatchToHere, or backward, via Patch to a remembered loop head).
func (g *Generator) emitBranch(op string, line int) int {
	switch op {
	case "=":
		g.prog.EmitArg(bytecode.JZERO, 2, line)
		return g.prog.EmitArg(bytecode.JUMP, 0, line)
	case "!=":
		return g.prog.EmitArg(bytecode.JZERO, 0, line)
	case "<":
		g.prog.EmitArg(bytecode.JNEG, 2, line)
		return g.prog.EmitArg(bytecode.JUMP, 0, line)
	case ">":
		g.prog.EmitArg(bytecode.JPOS, 2, line)
		return g.prog.EmitArg(bytecode.JUMP, 0, line)
	case "<=":
		return g.prog.EmitArg(bytecode.JPOS, 0, line)
	case ">=":
		return g.prog.EmitArg(bytecode.JNEG, 0, line)
	default:
		panic("codegen: unknown condition operator " + op)
	}
}

func (g *Generator) lowerIf(n *ast.If) {
	g.lowerCondition(n.Cond)
	falseBranch := g.emitBranch(n.Cond.Op, n.Line)
	for _, s := range n.Then {
		g.lowerStmt(s)
	}
	if n.Else == nil {
		g.prog.PatchToHere(falseBranch)
		return
	}
	end := g.prog.EmitArg(bytecode.JUMP, 0, n.Line)
	g.prog.PatchToHere(falseBranch)
	for _, s := range n.Else {
		g.lowerStmt(s)
	}
	g.prog.PatchToHere(end)
}

func (g *Generator) lowerWhile(n *ast.While) {
	head := g.prog.Len()
	g.lowerCondition(n.Cond)
	exit := g.emitBranch(n.Cond.Op, n.Line)
	for _, s := range n.Body {
		g.lowerStmt(s)
	}
	back := g.prog.EmitArg(bytecode.JUMP, 0, n.Line)
	g.prog.Patch(back, int64(head-back))
	g.prog.PatchToHere(exit)
}

func (g *Generator) lowerRepeatUntil(n *ast.RepeatUntil) {
	head := g.prog.Len()
	for _, s := range n.Body {
		g.lowerStmt(s)
	}
	g.lowerCondition(n.Cond)
	// "until" exits as soon as the condition is true, so the branch that
	// fires when it's false is the one that repeats.
	again := g.emitBranch(n.Cond.Op, n.Line)
	g.prog.Patch(again, int64(head-again))
}

func (g *Generator) lowerForTo(n *ast.ForTo) {
	g.lowerForCommon(n.Var, n.From, n.To, n.Body, n.Line, false)
}

func (g *Generator) lowerForDownTo(n *ast.ForDownTo) {
	g.lowerForCommon(n.Var, n.From, n.To, n.Body, n.Line, true)
}

// isActiveLoopCounter reports whether name currently denotes the counter
// of a for-loop lexically enclosing the statement being lowered.
func (g *Generator) isActiveLoopCounter(name string) bool {
	for _, n := range g.loopCounters {
		if n == name {
			return true
		}
	}
	return false
}

// lowerForCommon implements both counted loop directions: the only
// difference is the exit test's polarity and the counter's step sign.
// The loop variable is resolved like any other identifier — the language
// has no dedicated loop-variable declaration syntax — and is merely
// pushed onto g.loopCounters for the duration of the loop so that
// lowerAssign/lowerRead can reject writes to it.
func (g *Generator) lowerForCommon(varName string, from, to ast.Expr, body []ast.Stmt, line int, descending bool) {
	sym := g.resolve(varName, line)
	if sym.kind.isArray() {
		g.fail(generrors.MisuseOfArray, line, "%q is not a scalar", varName)
	}
	counterRef := &ast.Ident{Name: varName, Line: line}

	g.lowerExpr(from)
	g.storeScalar(sym, line)
	g.loopCounters = append(g.loopCounters, varName)

	bound := g.alloc.alloc()
	g.lowerExpr(to)
	g.prog.EmitArg(bytecode.STORE, int64(bound), line)

	head := g.prog.Len()
	g.lowerExpr(counterRef)
	g.prog.EmitArg(bytecode.SUB, int64(bound), line)
	var exit int
	if descending {
		exit = g.prog.EmitArg(bytecode.JNEG, 0, line)
	} else {
		exit = g.prog.EmitArg(bytecode.JPOS, 0, line)
	}

	for _, s := range body {
		g.lowerStmt(s)
	}

	step := int64(1)
	if descending {
		step = -1
	}
	g.prog.EmitArg(bytecode.SET, step, line)
	if sym.kind.isByRef() {
		g.prog.EmitArg(bytecode.ADDI, int64(sym.addr), line)
	} else {
		g.prog.EmitArg(bytecode.ADD, int64(sym.addr), line)
	}
	g.storeScalar(sym, line)
	back := g.prog.EmitArg(bytecode.JUMP, 0, line)
	g.prog.Patch(back, int64(head-back))
	g.prog.PatchToHere(exit)

	g.loopCounters = g.loopCounters[:len(g.loopCounters)-1]
	g.alloc.releaseTemp() // bound
}

func (g *Generator) lowerCallStmt(c *ast.Call) {
	if g.current != nil && c.Name == g.current.name {
		g.fail(generrors.RecursiveCall, c.Line, "procedure %q cannot call itself", c.Name)
	}
	desc, ok := g.procs[c.Name]
	if !ok {
		g.fail(generrors.UnknownProcedure, c.Line, "unknown procedure %q", c.Name)
	}
	if desc.entry == 0 {
		g.fail(generrors.ForwardCall, c.Line, "procedure %q is called before it is fully declared", c.Name)
	}
	if len(c.Args) != len(desc.params) {
		g.fail(generrors.ArgCountMismatch, c.Line, "procedure %q expects %d argument(s), got %d", c.Name, len(desc.params), len(c.Args))
	}

	for i, argName := range c.Args {
		param := desc.params[i]
		actual := g.resolve(argName, c.Line)
		if param.IsArray != actual.kind.isArray() {
			g.fail(generrors.ArgKindMismatch, c.Line, "argument %d to %q: array/scalar mismatch", i+1, c.Name)
		}
		formal, _ := desc.scope.lookup(param.Name)
		if param.IsArray {
			if actual.kind == kindParamArray {
				g.prog.EmitArg(bytecode.LOAD, int64(actual.biasAddr), c.Line)
			} else {
				g.prog.EmitArg(bytecode.SET, int64(actual.biasAddr), c.Line)
			}
			g.prog.EmitArg(bytecode.STORE, int64(formal.biasAddr), c.Line)
		} else {
			if actual.kind == kindParamScalar {
				g.prog.EmitArg(bytecode.LOAD, int64(actual.addr), c.Line)
			} else {
				g.prog.EmitArg(bytecode.SET, int64(actual.addr), c.Line)
			}
			g.prog.EmitArg(bytecode.STORE, int64(formal.addr), c.Line)
		}
	}

	// The return address is the instruction right after this fixed
	// SET/STORE/JUMP triple, so it has to be computed before any of the
	// three are emitted.
	setIdx := g.prog.Len()
	g.prog.EmitArg(bytecode.SET, int64(setIdx+3), c.Line)
	g.prog.EmitArg(bytecode.STORE, int64(desc.returnAddr), c.Line)
	jumpIdx := g.prog.Len()
	g.prog.EmitArg(bytecode.JUMP, int64(desc.entry-jumpIdx), c.Line)
}
