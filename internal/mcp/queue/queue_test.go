package queue

import (
	"context"
	"testing"
	"time"

	"github.com/nulpointcorp/mcp-gateway/internal/mcp"
)

func TestPushRejectsAtCapacity(t *testing.T) {
	q := New(2)
	if err := q.Push(Item{}, mcp.PriorityNormal); err != nil {
		t.Fatalf("first push: %v", err)
	}
	if err := q.Push(Item{}, mcp.PriorityNormal); err != nil {
		t.Fatalf("second push: %v", err)
	}
	if err := q.Push(Item{}, mcp.PriorityNormal); err == nil {
		t.Fatal("expected queue-full error, got nil")
	}
}

func TestPopOrdersByPriorityThenFIFO(t *testing.T) {
	q := New(0)
	low := Item{Request: &mcp.Request{Model: "low"}}
	high := Item{Request: &mcp.Request{Model: "high"}}
	normal1 := Item{Request: &mcp.Request{Model: "normal1"}}
	normal2 := Item{Request: &mcp.Request{Model: "normal2"}}

	_ = q.Push(low, mcp.PriorityLow)
	_ = q.Push(normal1, mcp.PriorityNormal)
	_ = q.Push(high, mcp.PriorityHigh)
	_ = q.Push(normal2, mcp.PriorityNormal)

	ctx := context.Background()
	order := []string{}
	for i := 0; i < 4; i++ {
		item, ok := q.Pop(ctx)
		if !ok {
			t.Fatalf("pop %d: expected item", i)
		}
		order = append(order, item.Request.Model)
	}

	want := []string{"high", "normal1", "normal2", "low"}
	for i, m := range want {
		if order[i] != m {
			t.Fatalf("pop order = %v, want %v", order, want)
		}
	}
}

func TestPopBlocksUntilPush(t *testing.T) {
	q := New(0)
	ctx := context.Background()

	done := make(chan Item, 1)
	go func() {
		item, ok := q.Pop(ctx)
		if ok {
			done <- item
		}
	}()

	time.Sleep(20 * time.Millisecond)
	if err := q.Push(Item{Request: &mcp.Request{Model: "late"}}, mcp.PriorityNormal); err != nil {
		t.Fatalf("push: %v", err)
	}

	select {
	case item := <-done:
		if item.Request.Model != "late" {
			t.Fatalf("got %q, want late", item.Request.Model)
		}
	case <-time.After(time.Second):
		t.Fatal("Pop did not unblock after Push")
	}
}

func TestPopRespectsContextCancellation(t *testing.T) {
	q := New(0)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, ok := q.Pop(ctx)
	if ok {
		t.Fatal("expected Pop to return ok=false on context cancellation")
	}
}

func TestCloseUnblocksPop(t *testing.T) {
	q := New(0)
	ctx := context.Background()

	done := make(chan bool, 1)
	go func() {
		_, ok := q.Pop(ctx)
		done <- ok
	}()

	time.Sleep(20 * time.Millisecond)
	q.Close()

	select {
	case ok := <-done:
		if ok {
			t.Fatal("expected ok=false after Close")
		}
	case <-time.After(time.Second):
		t.Fatal("Pop did not unblock after Close")
	}

	if err := q.Push(Item{}, mcp.PriorityNormal); err == nil {
		t.Fatal("expected Push on closed queue to fail")
	}
}
