package queue

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Two workers pulling from the same queue must partition the draft lines
// disjointly: every line claimed exactly once, never by both.
func TestConcurrentClaimsArePartitioned(t *testing.T) {
	store := newMemStore()
	repo := &memLineRepo{store}
	ctx := context.Background()

	queueID := primitive.NewObjectID()
	tenant := primitive.NewObjectID()
	for i := 1; i <= 5; i++ {
		if _, err := repo.Upsert(ctx, &Line{
			QueueID:    queueID,
			TenantID:   tenant,
			ExternalID: fmt.Sprintf("E%d", i),
			Payload:    bson.M{"n": i},
		}); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
	}

	var mu sync.Mutex
	claimed := []primitive.ObjectID{}

	var wg sync.WaitGroup
	for w := 0; w < 2; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 3; i++ {
				line, err := repo.ClaimNext(ctx, queueID)
				if err != nil {
					t.Errorf("ClaimNext: %v", err)
					return
				}
				if line == nil {
					continue
				}
				mu.Lock()
				claimed = append(claimed, line.ID)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(claimed) != 5 {
		t.Fatalf("claimed %d lines, want 5", len(claimed))
	}
	seen := map[primitive.ObjectID]bool{}
	for _, id := range claimed {
		if seen[id] {
			t.Errorf("line %s was claimed twice", id.Hex())
		}
		seen[id] = true
	}

	store.mu.Lock()
	for _, l := range store.lines {
		if l.State != LineProcessing {
			t.Errorf("line %s state = %s, want processing", l.ExternalID, l.State)
		}
		if l.ProcessCount != 1 {
			t.Errorf("line %s process_count = %d, want 1", l.ExternalID, l.ProcessCount)
		}
	}
	store.mu.Unlock()

	// The queue is drained; further claims come back empty.
	line, err := repo.ClaimNext(ctx, queueID)
	if err != nil {
		t.Fatalf("ClaimNext on drained queue: %v", err)
	}
	if line != nil {
		t.Errorf("expected no claimable line, got %s", line.ExternalID)
	}
}
