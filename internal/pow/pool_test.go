package pow

import (
	"context"
	"testing"
	"time"
)

func TestPool_SubmitVerifiesOffCaller(t *testing.T) {
	pool := NewPool(2)
	defer pool.Shutdown()

	seed, visitorID, trace := "poolseed", "v1", "ip=9.9.9.9\n"
	nonce, hash := solveForTest(t, seed, visitorID, trace, 2)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	result, err := pool.Submit(ctx, Job{
		Nonce: nonce, Seed: seed, VisitorID: visitorID, TraceData: trace,
		ClaimedHash: hash, Difficulty: 2, Params: testParams,
	})
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	if !result.Valid {
		t.Fatalf("expected valid result, got reason=%q", result.Reason)
	}
}

func TestPool_SubmitRespectsContextCancellation(t *testing.T) {
	pool := NewPool(1)
	defer pool.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := pool.Submit(ctx, Job{Params: testParams})
	if err == nil {
		t.Fatalf("expected context cancellation error")
	}
}

func TestPool_ShutdownDrainsWorkers(t *testing.T) {
	pool := NewPool(3)
	pool.Shutdown()
}
