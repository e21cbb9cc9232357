// Command rotation-loadtest measures refresh-record lookups and rotations
// against Redis, and checks that concurrent rotations of one token produce
// exactly one winner.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/goSession/store"
	"github.com/MrEthical07/goSession/store/redisstore"
	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type tokenState struct {
	user string
	raw  string
	mu   sync.Mutex
}

func main() {
	var (
		sessions    = flag.Int("sessions", 10000, "number of refresh records to seed")
		concurrency = flag.Int("concurrency", 256, "number of concurrent workers")
		ops         = flag.Int("ops", 100000, "operations per phase (lookup + rotate)")
		racers      = flag.Int("racers", 16, "workers racing on one token in the contention phase")
		rounds      = flag.Int("rounds", 200, "tokens raced in the contention phase")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "gsload", "refresh key prefix")
	)
	flag.Parse()

	if *sessions <= 0 || *concurrency <= 0 || *ops <= 0 || *racers <= 1 || *rounds <= 0 {
		fmt.Fprintln(os.Stderr, "sessions, concurrency, ops and rounds must be > 0; racers must be > 1")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", mr.Addr())
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	st := redisstore.NewStore(client, *prefix, time.Hour)

	states := make([]tokenState, *sessions)
	fmt.Printf("seeding %d refresh records...\n", *sessions)
	startSeed := time.Now()
	now := time.Now()
	for i := 0; i < *sessions; i++ {
		raw := uuid.NewString()
		states[i].user = "u" + strconv.Itoa(i%1000)
		states[i].raw = raw
		if _, err := st.Create(ctx, states[i].user, store.HashToken(raw), now, now.Add(24*time.Hour)); err != nil {
			fmt.Fprintf(os.Stderr, "create failed: %v\n", err)
			os.Exit(1)
		}
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	lookupStats := runLookupPhase(ctx, st, states, *ops, *concurrency)
	rotateStats := runRotatePhase(ctx, st, states, *ops, *concurrency)
	contention, err := runContentionPhase(ctx, st, *rounds, *racers)

	fmt.Println("---- results ----")
	printStats("lookup", lookupStats)
	printStats("rotate", rotateStats)
	fmt.Printf("contention: rounds=%d racers=%d winners=%d reused=%d\n",
		*rounds, *racers, contention.winners, contention.reused)
	if err != nil {
		fmt.Fprintf(os.Stderr, "contention check failed: %v\n", err)
		os.Exit(1)
	}
}

func runLookupPhase(ctx context.Context, st store.Store, states []tokenState, ops, concurrency int) phaseStats {
	return runPhase(ops, concurrency, 7919, func(r *rand.Rand, _ int) error {
		state := &states[r.Intn(len(states))]
		state.mu.Lock()
		raw := state.raw
		state.mu.Unlock()
		_, err := st.FindActive(ctx, store.HashToken(raw), time.Now())
		return err
	})
}

func runRotatePhase(ctx context.Context, st store.Store, states []tokenState, ops, concurrency int) phaseStats {
	return runPhase(ops, concurrency, 6151, func(r *rand.Rand, _ int) error {
		state := &states[r.Intn(len(states))]
		state.mu.Lock()
		defer state.mu.Unlock()

		next := uuid.NewString()
		now := time.Now()
		_, err := st.Rotate(ctx, store.RotateRequest{
			UserID:    state.user,
			OldHash:   store.HashToken(state.raw),
			NewID:     uuid.NewString(),
			NewHash:   store.HashToken(next),
			IssuedAt:  now,
			ExpiresAt: now.Add(24 * time.Hour),
			Now:       now,
		})
		if err == nil {
			state.raw = next
		}
		return err
	})
}

func runPhase(ops, concurrency int, seed int64, op func(r *rand.Rand, i int) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*seed))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := op(r, i)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

type contentionResult struct {
	winners int64
	reused  int64
}

// runContentionPhase races racers rotations of the same token per round.
// Exactly one may win; every loser must see ErrReused.
func runContentionPhase(ctx context.Context, st store.Store, rounds, racers int) (contentionResult, error) {
	var res contentionResult
	for round := 0; round < rounds; round++ {
		raw := uuid.NewString()
		now := time.Now()
		if _, err := st.Create(ctx, "racer", store.HashToken(raw), now, now.Add(time.Hour)); err != nil {
			return res, err
		}

		var (
			wg      sync.WaitGroup
			winners int64
			reused  int64
			other   atomic.Value
			start   = make(chan struct{})
		)
		for i := 0; i < racers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				_, err := st.Rotate(ctx, store.RotateRequest{
					UserID:    "racer",
					OldHash:   store.HashToken(raw),
					NewID:     uuid.NewString(),
					NewHash:   store.HashToken(uuid.NewString()),
					IssuedAt:  now,
					ExpiresAt: now.Add(time.Hour),
					Now:       now,
				})
				switch {
				case err == nil:
					atomic.AddInt64(&winners, 1)
				case errors.Is(err, store.ErrReused):
					atomic.AddInt64(&reused, 1)
				default:
					other.Store(err)
				}
			}()
		}
		close(start)
		wg.Wait()

		res.winners += winners
		res.reused += reused
		if v := other.Load(); v != nil {
			return res, fmt.Errorf("round %d: %w", round, v.(error))
		}
		if winners != 1 {
			return res, fmt.Errorf("round %d: %d winners", round, winners)
		}
	}
	return res, nil
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
