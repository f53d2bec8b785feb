package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/example/damage-estimator/internal/estimate"
)

type stubCache struct {
	setErrs []error
	getErrs []error
	values  map[string]string
	setKeys []string
	getKeys []string
	delKeys []string
}

func (s *stubCache) Set(ctx context.Context, key string, value string, expiration time.Duration) error {
	s.setKeys = append(s.setKeys, key)
	if len(s.setErrs) > 0 {
		err := s.setErrs[0]
		s.setErrs = s.setErrs[1:]
		if err != nil {
			return err
		}
	}
	if s.values == nil {
		s.values = map[string]string{}
	}
	s.values[key] = value
	return nil
}

func (s *stubCache) Get(ctx context.Context, key string) (string, error) {
	s.getKeys = append(s.getKeys, key)
	if len(s.getErrs) > 0 {
		err := s.getErrs[0]
		s.getErrs = s.getErrs[1:]
		if err != nil {
			return "", err
		}
	}
	v, ok := s.values[key]
	if !ok {
		return "", ErrCacheMiss
	}
	return v, nil
}

func (s *stubCache) Delete(ctx context.Context, key string) error {
	s.delKeys = append(s.delKeys, key)
	delete(s.values, key)
	return nil
}

type transientCacheError struct{}

func (transientCacheError) Error() string   { return "cache transient" }
func (transientCacheError) Timeout() bool   { return true }
func (transientCacheError) Temporary() bool { return true }

func newTestCachedStore(store RecordStore, cache Cache) *CachedStore {
	s := NewCachedStore(store, cache, time.Minute, zap.NewNop())
	s.initialBackoff = time.Millisecond
	s.maxBackoff = 2 * time.Millisecond
	return s
}

func sampleRecord(id string) *estimate.Record {
	cost := 3850
	return &estimate.Record{
		ID:          id,
		Vehicle:     estimate.NewVehicle("toyota", "innova"),
		SourceImage: "a.png",
		Category:    estimate.CategoryDent,
		Confidence:  0.95,
		Estimate: estimate.CostEstimate{
			BaseCost:     3500,
			AdjustedCost: &cost,
			Severity:     estimate.SeverityMedium,
			CostRange:    estimate.RangeLabel(estimate.SeverityMedium),
		},
		CreatedAt: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestCachedStoreInsertWarmsCacheWithRetry(t *testing.T) {
	store := &stubStore{}
	cache := &stubCache{setErrs: []error{transientCacheError{}}}
	s := newTestCachedStore(store, cache)

	if err := s.Insert(context.Background(), sampleRecord("r1")); err != nil {
		t.Fatalf("expected insert to succeed, got %v", err)
	}
	if len(cache.setKeys) != 2 || cache.setKeys[0] != cache.setKeys[1] {
		t.Fatalf("expected one retried set on the same key, got %v", cache.setKeys)
	}

	record, err := s.FindByID(context.Background(), "r1")
	if err != nil {
		t.Fatalf("expected cached record, got %v", err)
	}
	if record.Cost() != 3850 {
		t.Fatalf("expected cached cost 3850, got %d", record.Cost())
	}
	if store.findCalls != 0 {
		t.Fatalf("expected cache hit, store called %d times", store.findCalls)
	}
}

func TestCachedStoreFallsBackToStore(t *testing.T) {
	store := &stubStore{}
	_ = store.Insert(context.Background(), sampleRecord("r1"))
	cache := &stubCache{getErrs: []error{errors.New("connection refused")}}
	s := newTestCachedStore(store, cache)

	record, err := s.FindByID(context.Background(), "r1")
	if err != nil {
		t.Fatalf("expected store fallback, got %v", err)
	}
	if record.ID != "r1" || store.findCalls != 1 {
		t.Fatalf("expected store lookup, got %+v after %d calls", record, store.findCalls)
	}
	if _, ok := cache.values[cacheKey("r1")]; !ok {
		t.Fatal("expected record to be cached after store read")
	}

	if _, err := s.FindByID(context.Background(), "missing"); !errors.Is(err, estimate.ErrRecordNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCachedStoreDeleteEvicts(t *testing.T) {
	store := &stubStore{}
	cache := NewMemoryCache(time.Minute)
	s := newTestCachedStore(store, cache)
	ctx := context.Background()

	if err := s.Insert(ctx, sampleRecord("r1")); err != nil {
		t.Fatalf("insert: %v", err)
	}
	deleted, err := s.Delete(ctx, "r1")
	if err != nil || !deleted {
		t.Fatalf("expected delete, got %v/%v", deleted, err)
	}
	if _, err := cache.Get(ctx, cacheKey("r1")); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected eviction, got %v", err)
	}
	if _, err := s.FindByID(ctx, "r1"); !errors.Is(err, estimate.ErrRecordNotFound) {
		t.Fatalf("expected deleted record to be gone, got %v", err)
	}

	deleted, err = s.Delete(ctx, "r1")
	if err != nil || deleted {
		t.Fatalf("expected second delete to report false, got %v/%v", deleted, err)
	}
}

func TestCachedStoreEvictsRegardlessOfIDCase(t *testing.T) {
	store := &stubStore{}
	cache := NewMemoryCache(time.Minute)
	s := newTestCachedStore(store, cache)
	ctx := context.Background()

	id := "6f9619ff-8b86-d011-b42d-00cf4fc964ff"
	if err := s.Insert(ctx, sampleRecord(id)); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := s.Delete(ctx, "6F9619FF-8B86-D011-B42D-00CF4FC964FF"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := cache.Get(ctx, cacheKey(id)); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected upper-case delete to evict cached record, got %v", err)
	}
}

func TestMemoryCacheExpiry(t *testing.T) {
	cache := NewMemoryCache(time.Minute)
	ctx := context.Background()

	if err := cache.Set(ctx, "k", "v", 5*time.Millisecond); err != nil {
		t.Fatalf("set: %v", err)
	}
	if v, err := cache.Get(ctx, "k"); err != nil || v != "v" {
		t.Fatalf("expected v, got %q/%v", v, err)
	}
	time.Sleep(20 * time.Millisecond)
	if _, err := cache.Get(ctx, "k"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected expiry, got %v", err)
	}
}
