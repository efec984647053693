package id

import (
	"strings"
	"sync"
	"testing"
	"time"
)

func TestGenerate(t *testing.T) {
	gen := NewGenerator()

	id1 := gen.Generate()
	id2 := gen.Generate()

	if id1.String() == id2.String() {
		t.Error("Generated IDs should be unique")
	}
}

func TestGenerateString(t *testing.T) {
	gen := NewGenerator()

	id := gen.GenerateString()

	if len(id) != 26 {
		t.Errorf("ULID should be 26 characters, got %d", len(id))
	}
}

func TestTypedIDGeneration(t *testing.T) {
	ids := map[string]string{
		HandlePrefix: string(NewHandleID()),
		TracePrefix:  string(NewTraceID()),
	}

	for prefix, id := range ids {
		parts := strings.Split(id, "_")
		if len(parts) != 2 {
			t.Fatalf("ID should have format 'prefix_ulid', got: %s", id)
		}
		if parts[0] != prefix {
			t.Errorf("Expected prefix '%s', got '%s' in ID: %s", prefix, parts[0], id)
		}
		if !IsValid(parts[1]) {
			t.Errorf("ULID part should be valid: %s", parts[1])
		}
	}
}

func TestIsValid(t *testing.T) {
	gen := NewGenerator()

	if !IsValid(gen.GenerateString()) {
		t.Error("Generated ULID should be valid")
	}

	for _, id := range []string{"", "invalid", "1234567890", "zzzzzzzzzzzzzzzzzzzzzzzzzzz"} {
		if IsValid(id) {
			t.Errorf("ID should be invalid: %s", id)
		}
	}
}

func TestTimestamp(t *testing.T) {
	gen := NewGenerator()

	before := time.Now()
	id := gen.GenerateString()
	after := time.Now()

	ts, err := Timestamp(id)
	if err != nil {
		t.Fatalf("Failed to extract timestamp: %v", err)
	}

	if ts.UnixMilli() < before.UnixMilli() || ts.UnixMilli() > after.UnixMilli() {
		t.Errorf("Timestamp %v outside [%v, %v]", ts, before, after)
	}
}

func TestConcurrentHandleIDs(t *testing.T) {
	const goroutines = 50
	const perGoroutine = 100

	var wg sync.WaitGroup
	ch := make(chan HandleID, goroutines*perGoroutine)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				ch <- NewHandleID()
			}
		}()
	}

	wg.Wait()
	close(ch)

	seen := make(map[HandleID]bool)
	for h := range ch {
		if seen[h] {
			t.Errorf("Duplicate handle ID: %s", h)
		}
		seen[h] = true
	}
}

func BenchmarkNewHandleID(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_ = NewHandleID()
	}
}
