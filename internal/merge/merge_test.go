package merge_test

import (
	"reflect"
	"testing"

	"github.com/vendemais/vendas-hub-go/internal/merge"
)

func TestMerge_EmptySourceIsIdentity(t *testing.T) {
	target := map[string]any{
		"a": 1,
		"b": map[string]any{"c": "x", "d": []any{1, 2}},
	}

	got := merge.Merge(target, map[string]any{}, 5)

	if !reflect.DeepEqual(got, target) {
		t.Errorf("expected identity, got %v", got)
	}
}

func TestMerge_EmptyTargetReproducesSource(t *testing.T) {
	source := map[string]any{
		"a": map[string]any{"b": map[string]any{"c": 42}},
		"d": "hello",
	}

	got := merge.Merge(map[string]any{}, source, 5)

	if !reflect.DeepEqual(got, source) {
		t.Errorf("expected source reproduced, got %v", got)
	}
}

func TestMerge_NilClearsField(t *testing.T) {
	target := map[string]any{"a": map[string]any{"b": 1}}
	source := map[string]any{"a": nil}

	got := merge.Merge(target, source, 5)

	v, present := got["a"]
	if !present {
		t.Fatal("expected key 'a' to remain present")
	}
	if v != nil {
		t.Errorf("expected nil (explicit clear), got %v", v)
	}
}

func TestMerge_AbsentKeyLeavesTargetUntouched(t *testing.T) {
	target := map[string]any{"a": map[string]any{"b": 1}}

	got := merge.Merge(target, map[string]any{"x": 9}, 5)

	if !reflect.DeepEqual(got["a"], map[string]any{"b": 1}) {
		t.Errorf("expected 'a' untouched, got %v", got["a"])
	}
}

func TestMerge_ArraysReplaceNeverInterleave(t *testing.T) {
	target := map[string]any{"a": []any{1, 2, 3}}
	source := map[string]any{"a": []any{9}}

	got := merge.Merge(target, source, 5)

	if !reflect.DeepEqual(got["a"], []any{9}) {
		t.Errorf("expected [9], got %v", got["a"])
	}
}

func TestMerge_NestedObjectsCombine(t *testing.T) {
	target := map[string]any{
		"profile": map[string]any{"name": "Empresa X", "size": "small"},
	}
	source := map[string]any{
		"profile": map[string]any{"size": "mid", "segment": "retail"},
	}

	got := merge.Merge(target, source, 5)

	want := map[string]any{"name": "Empresa X", "size": "mid", "segment": "retail"}
	if !reflect.DeepEqual(got["profile"], want) {
		t.Errorf("expected %v, got %v", want, got["profile"])
	}
}

func TestMerge_ObjectOverNonObjectReplacesWholesale(t *testing.T) {
	target := map[string]any{"a": "scalar"}
	source := map[string]any{"a": map[string]any{"b": 1}}

	got := merge.Merge(target, source, 5)

	if !reflect.DeepEqual(got["a"], map[string]any{"b": 1}) {
		t.Errorf("expected wholesale replace, got %v", got["a"])
	}
}

func TestMerge_DepthCapDegradesToShallowSpread(t *testing.T) {
	// Com maxDepth 1, o nível "a" ainda recursa (depth 0 -> 1), mas o nível
	// "b" já está no teto e vira spread raso: "keep" some porque o spread
	// não combina sub-objetos.
	target := map[string]any{
		"a": map[string]any{
			"b": map[string]any{"keep": 1},
		},
	}
	source := map[string]any{
		"a": map[string]any{
			"b": map[string]any{"new": 2},
		},
	}

	got := merge.Merge(target, source, 1)

	b, _ := got["a"].(map[string]any)["b"].(map[string]any)
	if _, ok := b["new"]; !ok {
		t.Errorf("expected 'new' present after shallow spread, got %v", b)
	}
	if _, ok := b["keep"]; ok {
		t.Errorf("expected 'keep' dropped by shallow spread at depth cap, got %v", b)
	}
}

func TestMerge_DeepNestingNeverPanics(t *testing.T) {
	// 1000 níveis de aninhamento — o teto de profundidade precisa segurar.
	deep := map[string]any{}
	cur := deep
	for i := 0; i < 1000; i++ {
		next := map[string]any{}
		cur["n"] = next
		cur = next
	}
	cur["leaf"] = true

	got := merge.Merge(map[string]any{}, deep, 5)
	if got == nil {
		t.Fatal("expected a result")
	}
}

func TestMerge_SelfReferenceNeverHangs(t *testing.T) {
	source := map[string]any{"a": 1}
	source["self"] = source

	target := map[string]any{"b": 2}

	got := merge.Merge(target, source, 10)

	if got["a"] != 1 || got["b"] != 2 {
		t.Errorf("expected normal keys merged, got %v", got)
	}
	// O nó cíclico devolve o target intacto naquele ponto — aqui o target
	// não tinha nada em "self", então o que importa é não ter travado.
}

func TestMerge_IndirectCycleNeverHangs(t *testing.T) {
	a := map[string]any{}
	b := map[string]any{"a": a}
	a["b"] = b

	got := merge.Merge(map[string]any{}, a, 10)
	if got == nil {
		t.Fatal("expected a result")
	}
}

func TestMerge_DoesNotMutateInputs(t *testing.T) {
	target := map[string]any{"a": map[string]any{"b": 1}}
	source := map[string]any{"a": map[string]any{"c": 2}}

	_ = merge.Merge(target, source, 5)

	if !reflect.DeepEqual(target, map[string]any{"a": map[string]any{"b": 1}}) {
		t.Errorf("target was mutated: %v", target)
	}
	if !reflect.DeepEqual(source, map[string]any{"a": map[string]any{"c": 2}}) {
		t.Errorf("source was mutated: %v", source)
	}
}
