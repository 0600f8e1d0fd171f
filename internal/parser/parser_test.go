package parser

import (
	"testing"

	"tinyimp/internal/ast"
)

// parseOK is a test helper that fails the test if source doesn't parse.
func parseOK(t *testing.T, source string) *ast.Program {
	t.Helper()
	prog, err := Parse(source)
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	return prog
}

func TestWellFormedPrograms(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty main", `program {}`},
		{"scalar declaration and arithmetic", `program { int x; read x; write x+1; }`},
		{"array declaration", `program { int[1:10] A; read A[1]; write A[1]*2; }`},
		{"if-then", `program { int a; read a; if a = 0 then { write a; } }`},
		{"if-then-else", `program { int a; read a; if a < 1 then { write 1; } else { write 0; } }`},
		{"while loop", `program { int n; read n; while n > 0 do { n := n - 1; } }`},
		{"repeat-until", `program { int n; n := 0; repeat { n := n + 1; } until n = 5; }`},
		{"for-to", `program { int i; for i from 1 to 10 do { write i; } }`},
		{"for-downto", `program { int i; for i from 10 downto 1 do { write i; } }`},
		{"procedure with scalar param", `procedure inc(x) { x := x + 1; } program { int v; read v; inc(v); }`},
		{"procedure with array param", `procedure fill(T A) { int i; for i from 1 to 5 do A[i] := 0; } program { int[1:5] B; fill(B); }`},
		{"comment is ignored", "program { # nothing here\n int x; x := 1; }"},
		{"parenthesized expression", `program { int x; x := (1 + 2) * 3; }`},
		{"negative literal", `program { int x; x := -5; }`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parseOK(t, tt.input)
		})
	}
}

func TestMalformedPrograms(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"missing program keyword", `{ int x; }`},
		{"missing closing brace", `program { int x;`},
		{"missing semicolon after declaration", `program { int x write x; }`},
		{"assignment missing value", `program { int x; x := ; }`},
		{"condition missing operator", `program { int a; if a then {} }`},
		{"declaration inside if body is rejected", `program { int a; if a = 0 then { int b; } }`},
		{"declaration inside while body is rejected", `program { int a; while a = 0 do { int b; } }`},
		{"declaration inside for body is rejected", `program { int i; for i from 1 to 2 do { int b; } }`},
		{"unclosed array range", `program { int[1:5 A; }`},
		{"call missing parens", `procedure p() {} program { p; }`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse(tt.input); err == nil {
				t.Fatalf("expected a parse error, got none")
			}
		})
	}
}

func TestProcedureParamShapes(t *testing.T) {
	prog := parseOK(t, `procedure p(x, T A, y) {} program {}`)
	if len(prog.Procedures) != 1 {
		t.Fatalf("got %d procedures, want 1", len(prog.Procedures))
	}
	params := prog.Procedures[0].Params
	want := []ast.Param{{Name: "x", IsArray: false}, {Name: "A", IsArray: true}, {Name: "y", IsArray: false}}
	if len(params) != len(want) {
		t.Fatalf("got %d params, want %d", len(params), len(want))
	}
	for i, p := range want {
		if params[i].Name != p.Name || params[i].IsArray != p.IsArray {
			t.Fatalf("param %d: got %+v, want %+v", i, params[i], p)
		}
	}
}

func TestArrayDeclarationBounds(t *testing.T) {
	prog := parseOK(t, `program { int[3:7] A; }`)
	decl, ok := prog.MainDecls[0].(*ast.ArrayDecl)
	if !ok {
		t.Fatalf("got %T, want *ast.ArrayDecl", prog.MainDecls[0])
	}
	if decl.Low != 3 || decl.High != 7 {
		t.Fatalf("got bounds [%d:%d], want [3:7]", decl.Low, decl.High)
	}
}

func TestExpressionPrecedence(t *testing.T) {
	// 1 + 2 * 3 must parse as 1 + (2 * 3): the outer node is the '+'.
	prog := parseOK(t, `program { int x; x := 1 + 2 * 3; }`)
	assign, ok := prog.MainBody[0].(*ast.Assign)
	if !ok {
		t.Fatalf("got %T, want *ast.Assign", prog.MainBody[0])
	}
	bin, ok := assign.Value.(*ast.Binary)
	if !ok {
		t.Fatalf("got %T, want *ast.Binary", assign.Value)
	}
	if bin.Op != "+" {
		t.Fatalf("outer op: got %q, want %q", bin.Op, "+")
	}
	rhs, ok := bin.Right.(*ast.Binary)
	if !ok || rhs.Op != "*" {
		t.Fatalf("right operand: got %+v, want a '*' node", bin.Right)
	}
}

func TestSyntaxErrorReportsLine(t *testing.T) {
	_, err := Parse("program {\n int x;\n x := ;\n}")
	if err == nil {
		t.Fatalf("expected a parse error")
	}
	se, ok := err.(*SyntaxError)
	if !ok {
		t.Fatalf("got %T, want *SyntaxError", err)
	}
	if se.Line != 3 {
		t.Fatalf("got line %d, want 3", se.Line)
	}
}
