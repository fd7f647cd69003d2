package pubsub

import (
	"errors"
	"testing"
)

func TestResolveTopics(t *testing.T) {
	got, err := resolveTopics("shop", []string{" orders ", "projects/other/topics/audit", ""})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	want := map[string]string{
		"orders":                      "projects/shop/topics/orders",
		"projects/shop/topics/orders": "projects/shop/topics/orders",
		"projects/other/topics/audit": "projects/other/topics/audit",
	}
	if len(got) != len(want) {
		t.Fatalf("unexpected topics %v", got)
	}
	for k, v := range want {
		if got[k] != v {
			t.Fatalf("topic %q resolved to %q, want %q", k, got[k], v)
		}
	}
}

func TestResolveTopicsRejectsEmptyAndMalformed(t *testing.T) {
	if _, err := resolveTopics("shop", []string{" "}); !errors.Is(err, ErrNoTopics) {
		t.Fatalf("expected ErrNoTopics, got %v", err)
	}
	if _, err := resolveTopics("shop", []string{"projects/shop/subscriptions/x"}); err == nil {
		t.Fatal("expected malformed resource to fail")
	}
}

func TestPublisherRejectsUndeclaredTopic(t *testing.T) {
	c := &Client{topics: map[string]string{"orders": "projects/shop/topics/orders"}}
	if _, err := c.Publisher("refunds"); !errors.Is(err, ErrUnknownTopic) {
		t.Fatalf("expected ErrUnknownTopic, got %v", err)
	}
}

func TestResourcesAreDeduplicated(t *testing.T) {
	c := &Client{topics: map[string]string{
		"orders":                      "projects/shop/topics/orders",
		"projects/shop/topics/orders": "projects/shop/topics/orders",
	}}
	if got := c.resources(); len(got) != 1 || got[0] != "projects/shop/topics/orders" {
		t.Fatalf("unexpected resources %v", got)
	}
}
