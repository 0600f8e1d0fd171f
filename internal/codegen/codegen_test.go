package codegen

import (
	"testing"

	"tinyimp/internal/parser"
)

func mustGenerate(t *testing.T, source string) func([]int64) []int64 {
	t.Helper()
	prog, err := parser.Parse(source)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	out, err := Generate(prog)
	if err != nil {
		t.Fatalf("generate error: %v", err)
	}
	return func(input []int64) []int64 {
		return runProgram(t, out, input)
	}
}

// The six end-to-end scenarios from spec.md §8.

func TestScenario1_ReadWriteArithmetic(t *testing.T) {
	run := mustGenerate(t, `program { int x; read x; write x+1; }`)
	got := run([]int64{5})
	want := []int64{6}
	assertEqual(t, got, want)
}

func TestScenario2_MultiplyWithNegative(t *testing.T) {
	run := mustGenerate(t, `program { int a; int b; read a; read b; write a*b; }`)
	got := run([]int64{-3, 7})
	want := []int64{-21}
	assertEqual(t, got, want)
}

func TestScenario3_FloorDivideAndModulo(t *testing.T) {
	run := mustGenerate(t, `program { int a; int b; read a; read b; write a/b; write a%b; }`)
	got := run([]int64{-17, 5})
	want := []int64{-4, 3}
	assertEqual(t, got, want)
}

func TestScenario4_ArrayFill(t *testing.T) {
	run := mustGenerate(t, `program {
		int[1:5] A; int i;
		for i from 1 to 5 do A[i] := i*i;
		for i from 1 to 5 do write A[i];
	}`)
	got := run(nil)
	want := []int64{1, 4, 9, 16, 25}
	assertEqual(t, got, want)
}

func TestScenario5_ByReferenceCall(t *testing.T) {
	run := mustGenerate(t, `
		procedure inc(x) { x := x + 1; }
		program { int v; read v; inc(v); write v; }
	`)
	got := run([]int64{10})
	want := []int64{11}
	assertEqual(t, got, want)
}

func TestScenario6_ForDownTo(t *testing.T) {
	run := mustGenerate(t, `program { int i; for i from 5 downto 1 do write i; }`)
	got := run(nil)
	want := []int64{5, 4, 3, 2, 1}
	assertEqual(t, got, want)
}

// Additional coverage beyond the six named scenarios.

func TestByReferenceArrayParam(t *testing.T) {
	run := mustGenerate(t, `
		procedure zeroOut(T A) {
			int i;
			for i from 1 to 3 do A[i] := 0;
		}
		program {
			int[1:3] B;
			int i;
			for i from 1 to 3 do B[i] := i;
			zeroOut(B);
			for i from 1 to 3 do write B[i];
		}
	`)
	got := run(nil)
	want := []int64{0, 0, 0}
	assertEqual(t, got, want)
}

func TestWhileLoop(t *testing.T) {
	run := mustGenerate(t, `program {
		int n; int acc;
		read n;
		acc := 0;
		while n > 0 do {
			acc := acc + n;
			n := n - 1;
		}
		write acc;
	}`)
	got := run([]int64{4})
	want := []int64{10}
	assertEqual(t, got, want)
}

func TestRepeatUntil(t *testing.T) {
	run := mustGenerate(t, `program {
		int n;
		n := 0;
		repeat { n := n + 2; } until n >= 6;
		write n;
	}`)
	got := run(nil)
	want := []int64{6}
	assertEqual(t, got, want)
}

func TestIfElse(t *testing.T) {
	run := mustGenerate(t, `program {
		int a; int b;
		read a; read b;
		if a < b then { write 1; } else { write 0; }
	}`)
	if got := run([]int64{2, 5}); got[0] != 1 {
		t.Fatalf("2<5: got %v, want [1]", got)
	}
	if got := run([]int64{5, 2}); got[0] != 0 {
		t.Fatalf("5<2: got %v, want [0]", got)
	}
}

func TestExactDivisionNoRemainder(t *testing.T) {
	run := mustGenerate(t, `program { int a; int b; read a; read b; write a/b; write a%b; }`)
	got := run([]int64{20, 5})
	want := []int64{4, 0}
	assertEqual(t, got, want)
}

func assertEqual(t *testing.T, got, want []int64) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range got {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}
