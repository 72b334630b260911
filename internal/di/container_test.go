package di

import "testing"

type widget struct{ id int }

func TestRegisterTokenResolvesOnce(t *testing.T) {
	c := NewContainer()
	tok := NewToken[*widget]("test:widget")

	calls := 0
	RegisterToken(c, tok, func(ServiceRegistry) *widget {
		calls++
		return &widget{id: calls}
	})

	first := GetToken(c, tok)
	second := GetToken(c, tok)

	if first != second {
		t.Fatal("expected the same instance on every resolve")
	}
	if calls != 1 {
		t.Fatalf("factory called %d times, want 1", calls)
	}
}

func TestFactoriesResolveDependencies(t *testing.T) {
	c := NewContainer()
	c.Register("config", 42)

	tok := NewToken[*widget]("test:widget")
	RegisterToken(c, tok, func(sr ServiceRegistry) *widget {
		return &widget{id: sr.Get("config").(int)}
	})

	if got := GetToken(c, tok).id; got != 42 {
		t.Fatalf("id = %d, want 42", got)
	}
}

func TestGetUnknownPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for unregistered service")
		}
	}()
	NewContainer().Get("missing")
}
