package watch

import "testing"

func TestAcyclicNoExistingEdges(t *testing.T) {
	if !acyclic(nil, Edge{Source: "a", Republish: "b"}) {
		t.Fatal("a->b with no prior edges should be acyclic")
	}
}

func TestAcyclicChain(t *testing.T) {
	edges := []Edge{{Source: "a", Republish: "b"}}
	if !acyclic(edges, Edge{Source: "b", Republish: "c"}) {
		t.Fatal("a->b, b->c should be acyclic")
	}
}

func TestAcyclicDirectCycle(t *testing.T) {
	edges := []Edge{{Source: "a", Republish: "b"}}
	if acyclic(edges, Edge{Source: "b", Republish: "a"}) {
		t.Fatal("a->b, b->a closes a cycle and must be rejected")
	}
}

func TestAcyclicSelfLoop(t *testing.T) {
	if acyclic(nil, Edge{Source: "a", Republish: "a"}) {
		t.Fatal("a->a is a self-loop and must be rejected")
	}
}

func TestAcyclicLongerCycle(t *testing.T) {
	edges := []Edge{
		{Source: "a", Republish: "b"},
		{Source: "b", Republish: "c"},
	}
	if acyclic(edges, Edge{Source: "c", Republish: "a"}) {
		t.Fatal("a->b->c->a closes a cycle and must be rejected")
	}
}
