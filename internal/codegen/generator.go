// Package codegen lowers a parsed program (internal/ast) into a flat
// instruction sequence (internal/bytecode) for the target register
// machine. It is one depth-first pass over the AST that simultaneously
// assigns memory cells, checks static semantics, and emits instructions;
// all mutable state lives on a single Generator so there is no hidden
// process-wide state a lowering routine could reach around.
package codegen

import (
	"tinyimp/internal/ast"
	"tinyimp/internal/bytecode"
	generrors "tinyimp/internal/errors"
)

// Generator owns every piece of mutable state the lowering pass touches:
// the instruction buffer, the memory cursor, the symbol tables, and the
// procedure registry. It is used for exactly one Generate call.
type Generator struct {
	prog  *bytecode.Program
	alloc *allocator

	global *scope
	procs  map[string]*procDescriptor

	// current is nil while lowering main, and the descriptor of the
	// procedure currently being lowered otherwise.
	current *procDescriptor

	// loopCounters is the stack of currently in-flight for-loop counter
	// names, innermost last. A for-loop's variable is an ordinary declared
	// identifier pushed here only for the loop's duration; assignment to
	// any name on this stack is rejected (AssignToLoopCounter).
	loopCounters []string
}

// Generate lowers prog into an assembly-ready Program, or returns the
// first GenError encountered. Generation
// is not recoverable: the first error aborts the pass and discards
// partial output, per spec.md §7.
func Generate(prog *ast.Program) (out *bytecode.Program, err error) {
	g := &Generator{
		prog:   bytecode.NewProgram(),
		alloc:  newAllocator(),
		global: newScope(),
		procs:  make(map[string]*procDescriptor),
	}
	defer func() {
		if r := recover(); r != nil {
			if ge, ok := r.(*generrors.GenError); ok {
				err = ge
				return
			}
			panic(r)
		}
	}()

	// Placeholder leading jump to main, patched once main's start PC is
	// known (spec.md §4.5).
	jumpToMain := g.prog.EmitArg(bytecode.JUMP, 0, 0)

	// Every procedure is registered (name + params, entry still the 0
	// sentinel) before any body is lowered, so a call site can always
	// tell a true forward reference (registered, entry still 0) apart
	// from a genuinely unknown name (not registered at all) — see
	// lowerCallStmt and DESIGN.md.
	for _, p := range prog.Procedures {
		if _, exists := g.procs[p.Name]; exists {
			g.fail(generrors.RedeclaredIdentifier, p.Line, "procedure %q already declared", p.Name)
		}
		g.registerProcedure(p)
	}

	for _, p := range prog.Procedures {
		g.lowerProcedure(p)
	}

	g.alloc.beginFrame()
	mainStart := g.prog.Len()
	g.declareBlock(g.global, prog.MainDecls)
	for _, s := range prog.MainBody {
		g.lowerStmt(s)
	}
	g.prog.Emit(bytecode.HALT, 0)

	g.prog.Patch(jumpToMain, int64(mainStart-jumpToMain))
	return g.prog, nil
}

func (g *Generator) fail(kind generrors.Kind, line int, format string, args ...interface{}) {
	panic(generrors.New(kind, line, format, args...))
}

// activeScope is the proc scope being lowered, or the global scope while
// lowering main.
func (g *Generator) activeScope() *scope {
	if g.current != nil {
		return g.current.scope
	}
	return g.global
}

// declareBlock allocates cells for a declarations list (VarDecl/ArrayDecl)
// into sc, emitting the SET/STORE pair that initializes each array's bias
// cell with its compile-time-constant value.
func (g *Generator) declareBlock(sc *scope, decls []ast.Declaration) {
	for _, d := range decls {
		switch dd := d.(type) {
		case *ast.VarDecl:
			if !sc.declare(&symbol{name: dd.Name, kind: scalarKindFor(sc, g), addr: g.alloc.alloc()}) {
				g.fail(generrors.RedeclaredIdentifier, dd.Line, "identifier %q already declared", dd.Name)
			}
		case *ast.ArrayDecl:
			if dd.Low > dd.High {
				g.fail(generrors.InvalidArrayRange, dd.Line, "array %q has low bound %d greater than high bound %d", dd.Name, dd.Low, dd.High)
			}
			n := int(dd.High - dd.Low + 1)
			base := g.alloc.allocRange(n)
			biasAddr := g.alloc.alloc()
			sym := &symbol{name: dd.Name, kind: arrayKindFor(sc, g), addr: base, biasAddr: biasAddr, low: dd.Low, high: dd.High}
			if !sc.declare(sym) {
				g.fail(generrors.RedeclaredIdentifier, dd.Line, "identifier %q already declared", dd.Name)
			}
			bias := int64(base) - dd.Low
			g.prog.EmitArg(bytecode.SET, bias, dd.Line)
			g.prog.EmitArg(bytecode.STORE, int64(biasAddr), dd.Line)
		}
	}
}

func scalarKindFor(sc *scope, g *Generator) kind {
	if sc == g.global {
		return kindGlobalScalar
	}
	return kindLocalScalar
}

func arrayKindFor(sc *scope, g *Generator) kind {
	if sc == g.global {
		return kindGlobalArray
	}
	return kindLocalArray
}

// lowerProcedure allocates a procedure's frame (formals, locals, return
// cell) and lowers its body. Its descriptor was already registered by the
// pre-registration pass in Generate, so every other procedure's forward or
// recursive calls to it can already see its params; only its entry index
// is filled in here, once the body has been fully emitted — see
// procDescriptor.entry.
func (g *Generator) lowerProcedure(p *ast.Procedure) {
	g.alloc.beginFrame()
	desc := g.procs[p.Name]

	for _, param := range p.Params {
		if param.IsArray {
			addr := g.alloc.alloc()
			if !desc.scope.declare(&symbol{name: param.Name, kind: kindParamArray, addr: 0, biasAddr: addr}) {
				g.fail(generrors.RedeclaredIdentifier, p.Line, "parameter %q already declared", param.Name)
			}
			desc.scope.markInitialized(param.Name)
		} else {
			addr := g.alloc.alloc()
			if !desc.scope.declare(&symbol{name: param.Name, kind: kindParamScalar, addr: addr}) {
				g.fail(generrors.RedeclaredIdentifier, p.Line, "parameter %q already declared", param.Name)
			}
			desc.scope.markInitialized(param.Name)
		}
	}

	g.current = desc
	// The entry point precedes declareBlock so that every call runs the
	// SET/STORE pairs initializing the local arrays' bias cells.
	entryPC := g.prog.Len()
	g.declareBlock(desc.scope, p.Decls)

	desc.returnAddr = g.alloc.alloc()

	for _, s := range p.Body {
		g.lowerStmt(s)
	}
	g.prog.EmitArg(bytecode.RTRN, int64(desc.returnAddr), p.Line)

	desc.entry = entryPC
	g.current = nil
}
