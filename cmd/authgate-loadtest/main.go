// Command authgate-loadtest drives an in-process engine with concurrent
// authenticate and refresh traffic and checks that concurrent refreshes of one
// token produce exactly one winner.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/authgate"
	"github.com/MrEthical07/authgate/credentials"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type account struct {
	mu      sync.Mutex
	access  string
	refresh string
}

func main() {
	var (
		users       = flag.Int("users", 200, "number of accounts to seed")
		concurrency = flag.Int("concurrency", 64, "number of concurrent workers")
		ops         = flag.Int("ops", 20000, "operations per phase")
		racers      = flag.Int("racers", 32, "goroutines refreshing one token in the race phase")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
	)
	flag.Parse()

	if *users <= 0 || *concurrency <= 0 || *ops <= 0 || *racers <= 1 {
		fmt.Fprintln(os.Stderr, "users, concurrency and ops must be > 0, racers must be > 1")
		os.Exit(2)
	}
	if err := run(*users, *concurrency, *ops, *racers, *redisAddr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(users, concurrency, ops, racers int, addr string) error {
	ctx := context.Background()

	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return fmt.Errorf("start miniredis: %w", err)
		}
		defer mr.Close()
		addr = mr.Addr()
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		fmt.Printf("using redis at %s\n", addr)
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
	defer client.Close()

	engine, err := newEngine(client)
	if err != nil {
		return err
	}
	defer engine.Close()

	fmt.Printf("seeding %d accounts...\n", users)
	start := time.Now()
	accounts, err := seed(ctx, engine, users)
	if err != nil {
		return err
	}
	fmt.Printf("seeded in %s\n", time.Since(start).Round(time.Millisecond))

	authStats := runAuthenticatePhase(ctx, engine, accounts, ops, concurrency)
	refreshStats := runRefreshPhase(ctx, engine, accounts, ops, concurrency)
	winners, err := runRacePhase(ctx, engine, accounts[0], racers)
	if err != nil {
		return err
	}

	fmt.Println("---- results ----")
	fmt.Println("authenticate:", authStats)
	fmt.Println("refresh:     ", refreshStats)
	fmt.Printf("race: racers=%d winners=%d\n", racers, winners)
	if winners != 1 {
		return fmt.Errorf("refresh race produced %d winners, want exactly 1", winners)
	}
	return nil
}

func newEngine(client redis.UniversalClient) (*authgate.Engine, error) {
	cfg := authgate.DefaultConfig()
	cfg.Password.Algorithm = "bcrypt"
	cfg.Password.BcryptCost = 4

	return authgate.New().
		WithConfig(cfg).
		WithRedis(client).
		WithCredentialStore(credentials.NewMemoryStore()).
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))).
		Build()
}

func seed(ctx context.Context, engine *authgate.Engine, n int) ([]*account, error) {
	out := make([]*account, n)
	for i := 0; i < n; i++ {
		login := fmt.Sprintf("load_%d", i)
		_, err := engine.Register(ctx, authgate.RegisterRequest{
			Login:                login,
			Email:                login + "@example.com",
			Password:             "load-pass-1",
			PasswordConfirmation: "load-pass-1",
			Role:                 authgate.RoleUser,
		})
		if err != nil {
			return nil, fmt.Errorf("register %s: %w", login, err)
		}
		pair, err := engine.Login(ctx, login, "load-pass-1")
		if err != nil {
			return nil, fmt.Errorf("login %s: %w", login, err)
		}
		out[i] = &account{access: pair.AccessToken, refresh: pair.RefreshToken}
	}
	return out, nil
}

// phase runs op ops times across concurrency workers and collects latencies.
func phase(ops, concurrency int, op func(r *rand.Rand) error) phaseStats {
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
			for atomic.AddInt64(&cursor, 1) <= int64(ops) {
				t0 := time.Now()
				err := op(r)
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

func runAuthenticatePhase(ctx context.Context, engine *authgate.Engine, accounts []*account, ops, concurrency int) phaseStats {
	return phase(ops, concurrency, func(r *rand.Rand) error {
		a := accounts[r.Intn(len(accounts))]
		a.mu.Lock()
		token := a.access
		a.mu.Unlock()
		_, err := engine.Authenticate(ctx, token)
		return err
	})
}

func runRefreshPhase(ctx context.Context, engine *authgate.Engine, accounts []*account, ops, concurrency int) phaseStats {
	return phase(ops, concurrency, func(r *rand.Rand) error {
		a := accounts[r.Intn(len(accounts))]
		a.mu.Lock()
		defer a.mu.Unlock()
		pair, err := engine.Refresh(ctx, a.refresh)
		if err != nil {
			return err
		}
		a.access, a.refresh = pair.AccessToken, pair.RefreshToken
		return nil
	})
}

// runRacePhase refreshes one token from many goroutines at once.
func runRacePhase(ctx context.Context, engine *authgate.Engine, a *account, racers int) (int, error) {
	var (
		wg       sync.WaitGroup
		winners  atomic.Int64
		mu       sync.Mutex
		firstErr error
		gate     = make(chan struct{})
	)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-gate
			_, err := engine.Refresh(ctx, a.refresh)
			switch {
			case err == nil:
				winners.Add(1)
			case errors.Is(err, authgate.ErrRefreshInvalid):
			default:
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		}()
	}
	close(gate)
	wg.Wait()

	if firstErr != nil {
		return 0, fmt.Errorf("unexpected refresh error: %w", firstErr)
	}
	return int(winners.Load()), nil
}
