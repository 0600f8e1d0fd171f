package codegen

import "tinyimp/internal/ast"

// procDescriptor exists from the moment Generate's pre-registration pass
// scans a procedure's signature, well before its body is lowered, so that
// every call site — including ones lowered earlier in source order, i.e.
// forward references — can already look it up by name.
type procDescriptor struct {
	name   string
	params []ast.Param
	scope  *scope
	// entry is the instruction index of the procedure's first instruction.
	// It stays 0 — a sentinel meaning "body not yet lowered" — from
	// registration until lowerProcedure finishes emitting its body. A call
	// site that finds the descriptor (ok == true) with entry still 0 is
	// therefore either a forward reference to a procedure later in source
	// order, or the procedure calling itself (already intercepted earlier
	// as RecursiveCall before this check is reached). A call site that
	// finds no descriptor at all (ok == false) names a procedure that was
	// never declared anywhere in the program. See DESIGN.md.
	entry      int
	returnAddr int
}

// registerProcedure records a procedure's name and signature without
// lowering its body. Generate calls this for every procedure in one pass
// before lowerProcedure is called for any of them.
func (g *Generator) registerProcedure(p *ast.Procedure) *procDescriptor {
	desc := &procDescriptor{name: p.Name, params: p.Params, scope: newScope()}
	g.procs[p.Name] = desc
	return desc
}
