package store

import (
	"fmt"
	"testing"

	"github.com/gosuda/litechat/protocol"
)

func TestAppendAndLoadRecent(t *testing.T) {
	dir := t.TempDir()
	c, err := Open(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer c.Close()

	for i := 0; i < 10; i++ {
		m := protocol.Message{
			ID:     fmt.Sprintf("m%d", i),
			Sender: "bob",
			Body:   fmt.Sprintf("msg %d", i),
			Type:   protocol.KindText,
		}
		if err := c.Append(m); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	got, err := c.LoadRecent(3)
	if err != nil {
		t.Fatalf("load recent: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(got))
	}
	for i, want := range []string{"m7", "m8", "m9"} {
		if got[i].ID != want {
			t.Fatalf("wrong tail order at %d: got %s want %s", i, got[i].ID, want)
		}
	}

	all, err := c.LoadRecent(0)
	if err != nil {
		t.Fatalf("load all: %v", err)
	}
	if len(all) != 10 || all[0].ID != "m0" {
		t.Fatalf("load all broken: %d entries, first %s", len(all), all[0].ID)
	}
}

func TestSequencePersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	c, err := Open(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := c.Append(protocol.Message{ID: "a", Sender: "bob", Type: protocol.KindText}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	c2, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer c2.Close()
	if err := c2.Append(protocol.Message{ID: "b", Sender: "bob", Type: protocol.KindText}); err != nil {
		t.Fatalf("append after reopen: %v", err)
	}
	got, err := c2.LoadRecent(0)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "b" {
		t.Fatalf("sequence not continued: %+v", got)
	}
}

func TestNilCacheIsInert(t *testing.T) {
	var c *Cache
	if err := c.Append(protocol.Message{}); err != nil {
		t.Fatalf("nil append: %v", err)
	}
	msgs, err := c.LoadRecent(5)
	if err != nil || msgs != nil {
		t.Fatalf("nil load: %v %v", msgs, err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("nil close: %v", err)
	}
}

func TestOpenEmptyDirIsMemoryOnly(t *testing.T) {
	c, err := Open("")
	if err != nil {
		t.Fatalf("open empty: %v", err)
	}
	if c != nil {
		t.Fatalf("expected nil cache for empty dir")
	}
}
