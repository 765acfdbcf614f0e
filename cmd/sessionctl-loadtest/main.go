package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/edudashpro/sessionctl"
	"github.com/edudashpro/sessionctl/profilestore/memory"
	"github.com/edudashpro/sessionctl/session"
)

func main() {
	var (
		devices     = flag.Int("devices", 20000, "number of persisted device sessions to seed")
		identities  = flag.Int("identities", 2000, "number of identities with a profile row")
		concurrency = flag.Int("concurrency", 64, "number of concurrent workers")
		ops         = flag.Int("ops", 100000, "session restores to perform")
		signIns     = flag.Int("signins", 10000, "sign-in cycles to perform")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "sessionctl-load", "session key prefix")
	)
	flag.Parse()

	if *devices <= 0 || *identities <= 0 || *concurrency <= 0 || *ops <= 0 || *signIns <= 0 {
		fmt.Fprintln(os.Stderr, "devices, identities, concurrency, ops, and signins must be > 0")
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
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	store := session.NewStore(client, *prefix)

	fmt.Printf("seeding %d device sessions...\n", *devices)
	startSeed := time.Now()
	for i := 0; i < *devices; i++ {
		if err := store.Save(ctx, buildSession(i, *identities), 24*time.Hour); err != nil {
			fmt.Fprintf(os.Stderr, "save failed: %v\n", err)
			os.Exit(1)
		}
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	profiles := memory.New()
	for i := 0; i < *identities; i++ {
		profiles.Put(identityFor(i), buildProfile(i))
	}

	restoreStats := runRestorePhase(ctx, store, *devices, *ops, *concurrency)
	signInStats := runSignInPhase(ctx, profiles, *identities, *signIns, *concurrency)

	fmt.Println("---- results ----")
	printStats("restore", restoreStats)
	printStats("signin", signInStats)
}

func runRestorePhase(ctx context.Context, store *session.Store, devices, ops, concurrency int) phaseStats {
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
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				_, err := store.Load(ctx, deviceFor(r.Intn(devices)))
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
	total := time.Since(start)
	return computeStats(total, latencies, failures)
}

// runSignInPhase measures SignIn until the profile is loaded, one controller
// per worker, against an in-process provider.
func runSignInPhase(ctx context.Context, profiles *memory.Store, identities, ops, concurrency int) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	cfg := sessionctl.DefaultConfig()
	cfg.Navigation.Disabled = true
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()

			c, err := sessionctl.New().
				WithConfig(cfg).
				WithAuthProvider(newLocalProvider()).
				WithProfileStore(profiles).
				WithLogger(logger).
				Build()
			if err != nil {
				fmt.Fprintf(os.Stderr, "build controller: %v\n", err)
				os.Exit(1)
			}
			defer c.Close()
			if err := c.Start(ctx); err != nil {
				fmt.Fprintf(os.Stderr, "start controller: %v\n", err)
				os.Exit(1)
			}

			wctx, cancel := context.WithCancel(ctx)
			defer cancel()
			states := c.Watch(wctx)

			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*6151))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				idx := r.Intn(identities)

				t0 := time.Now()
				err := c.SignIn(ctx, emailFor(idx), "load-test-password")
				if err == nil {
					err = awaitProfile(states, identityFor(idx))
				}
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}

				_ = c.SignOut(ctx)
				awaitSignedOut(states)

				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	total := time.Since(start)
	return computeStats(total, latencies, failures)
}

func awaitProfile(states <-chan sessionctl.State, identityID string) error {
	timeout := time.NewTimer(5 * time.Second)
	defer timeout.Stop()
	for {
		select {
		case s := <-states:
			if s.Loading || s.User == nil || s.User.ID != identityID {
				continue
			}
			if s.Profile == nil {
				return fmt.Errorf("no profile for %s", identityID)
			}
			return nil
		case <-timeout.C:
			return fmt.Errorf("profile for %s did not load", identityID)
		}
	}
}

func awaitSignedOut(states <-chan sessionctl.State) {
	timeout := time.NewTimer(5 * time.Second)
	defer timeout.Stop()
	for {
		select {
		case s := <-states:
			if !s.Loading && !s.SignedIn() {
				return
			}
		case <-timeout.C:
			return
		}
	}
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

func deviceFor(i int) string   { return fmt.Sprintf("device-%d", i) }
func identityFor(i int) string { return fmt.Sprintf("uid-%d", i) }
func emailFor(i int) string    { return fmt.Sprintf("user%d@load.example", i) }

func buildSession(i, identities int) *session.Session {
	now := time.Now()
	owner := i % identities
	return &session.Session{
		DeviceID:     deviceFor(i),
		IdentityID:   identityFor(owner),
		Email:        emailFor(owner),
		AccessToken:  fmt.Sprintf("access-%d", i),
		RefreshToken: fmt.Sprintf("refresh-%d", i),
		TokenType:    "bearer",
		IssuedAt:     now.Unix(),
		ExpiresAt:    now.Add(time.Hour).Unix(),
	}
}

func buildProfile(i int) sessionctl.ProfileRow {
	role := "parent"
	if i%10 == 0 {
		role = "teacher"
	}
	return sessionctl.ProfileRow{
		ID:         fmt.Sprintf("profile-%d", i),
		AuthUserID: identityFor(i),
		Email:      emailFor(i),
		Role:       role,
	}
}
