package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	goVerify "github.com/MrEthical07/goVerify"
	"github.com/MrEthical07/goVerify/notify"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// codebook remembers the latest secret delivered to each destination.
type codebook struct {
	mu    sync.RWMutex
	codes map[string]string
}

func (c *codebook) Send(_ context.Context, msg notify.Message) error {
	c.mu.Lock()
	c.codes[msg.Destination] = msg.Secret
	c.mu.Unlock()
	return nil
}

func (c *codebook) get(dest string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.codes[dest]
}

func main() {
	var (
		subjects    = flag.Int("subjects", 2000, "number of subjects to issue codes for")
		concurrency = flag.Int("concurrency", 64, "number of concurrent workers")
		contenders  = flag.Int("contenders", 8, "simultaneous resends per subject")
		ops         = flag.Int("ops", 20000, "verify operations")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
	)
	flag.Parse()

	if *subjects <= 0 || *concurrency <= 0 || *contenders <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "subjects, concurrency, contenders, and ops must be > 0")
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
		addr = mr.Addr()
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	book := &codebook{codes: make(map[string]string, *subjects)}
	engine, err := buildEngine(client, book)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build engine: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	run := fmt.Sprintf("%x", time.Now().UnixNano())
	names := make([]string, *subjects)
	fmt.Printf("issuing %d verifications...\n", *subjects)
	startSeed := time.Now()
	for i := range names {
		names[i] = fmt.Sprintf("load-%s-%d@example.com", run, i)
		if _, err := engine.Issue(ctx, names[i], goVerify.PurposeEmailVerification, ""); err != nil {
			fmt.Fprintf(os.Stderr, "issue failed: %v\n", err)
			os.Exit(1)
		}
	}
	fmt.Printf("issued in %s\n", time.Since(startSeed).Round(time.Millisecond))

	resendStats, resendWins := runResendPhase(ctx, engine, names, *contenders, *concurrency)
	verifyStats, verifyWins := runVerifyPhase(ctx, engine, book, names, *ops, *concurrency)

	fmt.Println("---- results ----")
	printStats("resend", resendStats)
	printStats("verify", verifyStats)

	ok := true
	if resendWins != int64(len(names)) {
		fmt.Printf("VIOLATION: %d resends succeeded for %d subjects, want exactly one each\n", resendWins, len(names))
		ok = false
	}
	if verifyWins > int64(len(names)) {
		fmt.Printf("VIOLATION: %d verifications succeeded for %d subjects, want at most one each\n", verifyWins, len(names))
		ok = false
	}
	if !ok {
		os.Exit(1)
	}
	fmt.Println("invariants held")
}

func buildEngine(client redis.UniversalClient, n notify.Notifier) (*goVerify.Engine, error) {
	cfg := goVerify.DefaultConfig()
	cfg.Secret.Key = []byte(strings.Repeat("L", 32))
	cfg.RateLimit.Enabled = false
	cfg.Metrics.Enabled = true
	cfg.Backoff.Schedule = []time.Duration{0, time.Hour}
	cfg.Store.RedisPrefix = "gvload"

	return goVerify.New().
		WithConfig(cfg).
		WithRedis(client).
		WithNotifier(n).
		Build()
}

// runResendPhase fires contenders simultaneous resends per subject. With a
// zero first delay and a long second one, exactly one must win.
func runResendPhase(ctx context.Context, engine *goVerify.Engine, names []string, contenders, concurrency int) (phaseStats, int64) {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		wins      int64
		latencies = make([]time.Duration, 0, len(names)*contenders)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= len(names) {
					return
				}

				var inner sync.WaitGroup
				gate := make(chan struct{})
				for c := 0; c < contenders; c++ {
					inner.Add(1)
					go func() {
						defer inner.Done()
						<-gate
						t0 := time.Now()
						_, err := engine.Resend(ctx, names[i], goVerify.PurposeEmailVerification)
						d := time.Since(t0)
						switch {
						case err == nil:
							atomic.AddInt64(&wins, 1)
						case errors.Is(err, goVerify.ErrCooldownActive):
						default:
							atomic.AddInt64(&failures, 1)
						}
						mu.Lock()
						latencies = append(latencies, d)
						mu.Unlock()
					}()
				}
				close(gate)
				inner.Wait()
			}
		}()
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures), wins
}

// runVerifyPhase redeems the current code of random subjects. Only the first
// redemption per subject may succeed; the rest report AlreadyVerified.
func runVerifyPhase(ctx context.Context, engine *goVerify.Engine, book *codebook, names []string, ops, concurrency int) (phaseStats, int64) {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		wins      int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				name := names[r.Intn(len(names))]
				code := book.get(name)

				t0 := time.Now()
				res, err := engine.Verify(ctx, name, goVerify.PurposeEmailVerification, code)
				d := time.Since(t0)
				switch {
				case err != nil:
					atomic.AddInt64(&failures, 1)
				case res.Verified():
					atomic.AddInt64(&wins, 1)
				case res.Outcome != goVerify.OutcomeAlreadyVerified:
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures), wins
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
	return samples[(len(samples)-1)*p/100]
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
