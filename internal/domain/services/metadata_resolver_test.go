package services

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ochairo/instrumentation-verifier/internal/domain/entities"
)

// mockRepositoryClient is a mock implementation for testing
type mockRepositoryClient struct {
	versions map[string][]string
	err      error
	delay    time.Duration
	calls    atomic.Int32
}

func (m *mockRepositoryClient) ListVersions(ctx context.Context, coord entities.ArtifactCoordinate) ([]string, error) {
	m.calls.Add(1)
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.err != nil {
		return nil, m.err
	}
	v, ok := m.versions[coord.String()]
	if !ok {
		return nil, entities.ErrNotFound
	}
	return v, nil
}

func (m *mockRepositoryClient) Fetch(_ context.Context, _ entities.ArtifactCoordinate, _, _ string) ([]byte, error) {
	return nil, errors.New("not implemented")
}

var testCoord = entities.ArtifactCoordinate{Group: "com.example", Name: "lib"}

func TestMetadataResolver_Resolve(t *testing.T) {
	client := &mockRepositoryClient{versions: map[string][]string{
		"com.example:lib": {"2.0.0", "1.0.0", "not a version", "1.2.0-beta", "1.2.0", "1.0"},
	}}
	resolver := NewMetadataResolver(client)

	set, err := resolver.Resolve(context.Background(), testCoord)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	want := []string{"1.0.0", "1.2.0-beta", "1.2.0", "2.0.0"}
	if got := set.Strings(); !reflect.DeepEqual(got, want) {
		t.Errorf("Resolve() = %v, want %v", got, want)
	}
	if set.Coordinate != testCoord {
		t.Errorf("Coordinate = %v, want %v", set.Coordinate, testCoord)
	}
}

func TestMetadataResolver_CachesPerCoordinate(t *testing.T) {
	client := &mockRepositoryClient{versions: map[string][]string{
		"com.example:lib":   {"1.0"},
		"com.example:other": {"2.0"},
	}}
	resolver := NewMetadataResolver(client)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := resolver.Resolve(ctx, testCoord); err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
	}
	if got := client.calls.Load(); got != 1 {
		t.Errorf("ListVersions called %d times, want 1", got)
	}

	if _, err := resolver.Resolve(ctx, entities.ArtifactCoordinate{Group: "com.example", Name: "other"}); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got := client.calls.Load(); got != 2 {
		t.Errorf("ListVersions called %d times, want 2", got)
	}
}

func TestMetadataResolver_ConcurrentCallsShareOneQuery(t *testing.T) {
	client := &mockRepositoryClient{
		versions: map[string][]string{"com.example:lib": {"1.0", "1.1"}},
		delay:    50 * time.Millisecond,
	}
	resolver := NewMetadataResolver(client)

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			set, err := resolver.Resolve(context.Background(), testCoord)
			if err == nil && set.Len() != 2 {
				err = errors.New("unexpected version count")
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("Resolve() error = %v", err)
		}
	}
	if got := client.calls.Load(); got != 1 {
		t.Errorf("ListVersions called %d times, want 1", got)
	}
}

func TestMetadataResolver_CancelledCallerDoesNotFailOthers(t *testing.T) {
	client := &mockRepositoryClient{
		versions: map[string][]string{"com.example:lib": {"1.0", "1.1"}},
		delay:    100 * time.Millisecond,
	}
	resolver := NewMetadataResolver(client)

	first, cancelFirst := context.WithCancel(context.Background())
	defer cancelFirst()
	firstErr := make(chan error, 1)
	go func() {
		_, err := resolver.Resolve(first, testCoord)
		firstErr <- err
	}()
	time.Sleep(10 * time.Millisecond)

	type result struct {
		set entities.VersionSet
		err error
	}
	second := make(chan result, 1)
	go func() {
		set, err := resolver.Resolve(context.Background(), testCoord)
		second <- result{set, err}
	}()
	time.Sleep(10 * time.Millisecond)
	cancelFirst()

	if err := <-firstErr; !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled caller error = %v, want context.Canceled", err)
	}
	got := <-second
	if got.err != nil {
		t.Fatalf("live caller error = %v", got.err)
	}
	if got.set.Len() != 2 {
		t.Errorf("live caller got %d versions, want 2", got.set.Len())
	}
	if calls := client.calls.Load(); calls != 1 {
		t.Errorf("ListVersions called %d times, want 1", calls)
	}
}

func TestMetadataResolver_FailureIsNotCached(t *testing.T) {
	client := &mockRepositoryClient{err: entities.ErrRepositoryUnavailable}
	resolver := NewMetadataResolver(client)
	ctx := context.Background()

	_, err := resolver.Resolve(ctx, testCoord)
	if !errors.Is(err, entities.ErrMetadataUnavailable) {
		t.Fatalf("error = %v, want ErrMetadataUnavailable", err)
	}
	if !errors.Is(err, entities.ErrRepositoryUnavailable) {
		t.Errorf("error = %v, should keep the repository cause", err)
	}

	client.err = nil
	client.versions = map[string][]string{"com.example:lib": {"1.0"}}
	if _, err := resolver.Resolve(ctx, testCoord); err != nil {
		t.Fatalf("Resolve() after recovery error = %v", err)
	}
	if got := client.calls.Load(); got != 2 {
		t.Errorf("ListVersions called %d times, want 2", got)
	}
}

func TestMetadataResolver_IsolatedCaches(t *testing.T) {
	client := &mockRepositoryClient{versions: map[string][]string{"com.example:lib": {"1.0"}}}
	ctx := context.Background()

	if _, err := NewMetadataResolver(client).Resolve(ctx, testCoord); err != nil {
		t.Fatal(err)
	}
	if _, err := NewMetadataResolver(client).Resolve(ctx, testCoord); err != nil {
		t.Fatal(err)
	}
	if got := client.calls.Load(); got != 2 {
		t.Errorf("separate resolvers should not share a cache, calls = %d", got)
	}

	shared := NewMemoryCache()
	NewMetadataResolver(client, WithCache(shared)).Resolve(ctx, testCoord) //nolint:errcheck // primes the cache
	NewMetadataResolver(client, WithCache(shared)).Resolve(ctx, testCoord) //nolint:errcheck // served from cache
	if got := client.calls.Load(); got != 3 {
		t.Errorf("injected cache should be shared, calls = %d", got)
	}
}
