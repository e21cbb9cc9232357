package main

import (
	"context"
	"testing"
	"time"

	"github.com/MrEthical07/goSession/store"
	"github.com/MrEthical07/goSession/store/redisstore"
	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func TestContentionPhaseSingleWinner(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	st := redisstore.NewStore(client, "gsload", time.Hour)
	res, err := runContentionPhase(context.Background(), st, 5, 8)
	if err != nil {
		t.Fatalf("runContentionPhase: %v", err)
	}
	if res.winners != 5 || res.reused != 5*7 {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestRotatePhaseAdvancesTokens(t *testing.T) {
	st := store.NewMemoryStore()
	now := time.Now()
	states := make([]tokenState, 4)
	for i := range states {
		states[i].user = "u"
		states[i].raw = uuid.NewString()
		if _, err := st.Create(context.Background(), states[i].user, store.HashToken(states[i].raw), now, now.Add(time.Hour)); err != nil {
			t.Fatal(err)
		}
	}

	stats := runRotatePhase(context.Background(), st, states, 40, 4)
	if stats.ops != 40 || stats.failures != 0 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	lookup := runLookupPhase(context.Background(), st, states, 20, 2)
	if lookup.failures != 0 {
		t.Fatalf("lookups of current tokens failed: %+v", lookup)
	}
}

func TestPercentile(t *testing.T) {
	samples := []time.Duration{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	if got := percentile(samples, 50); got != 5 {
		t.Fatalf("p50 = %v", got)
	}
	if got := percentile(samples, 100); got != 10 {
		t.Fatalf("p100 = %v", got)
	}
	if got := percentile(nil, 50); got != 0 {
		t.Fatalf("empty = %v", got)
	}
}
