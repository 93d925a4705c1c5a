package domain

import "testing"

func TestParseCallKind(t *testing.T) {
	if ParseCallKind("direct") != KindDirect {
		t.Error("direct not parsed")
	}
	if ParseCallKind("roulette") != KindRoulette {
		t.Error("roulette not parsed")
	}
	if ParseCallKind("") != KindRoulette {
		t.Error("empty string should default to roulette")
	}
}

func TestCallKindPolicies(t *testing.T) {
	if !KindRoulette.AutoAdvance() {
		t.Error("roulette should auto-advance")
	}
	if KindDirect.AutoAdvance() {
		t.Error("direct should not auto-advance")
	}
	if KindRoulette.String() != "roulette" || KindDirect.String() != "direct" {
		t.Error("kind strings wrong")
	}
}

func TestNewCallIDUnique(t *testing.T) {
	if NewCallID() == NewCallID() {
		t.Error("call ids collide")
	}
}
