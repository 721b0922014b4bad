package sdk

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newCacheSession returns a session that never talks to the network.
func newCacheSession(clock *fakeClock, opts ...Option) *Session {
	base := []Option{WithLogger(discardLogger()), WithClock(clock.Now)}
	return NewSession(Credential{AccountID: testAccount, Secret: testSecret}, append(base, opts...)...)
}

func TestCacheKey_String(t *testing.T) {
	a := NewCacheKey("12345678", "list_courses", IntParam("term", 20193))
	b := NewCacheKey("12345678", "list_courses", IntParam("term", 20193))
	assert.Equal(t, a.String(), b.String())

	distinct := []CacheKey{
		a,
		NewCacheKey("12345678", "list_courses", IntParam("term", 20192)),
		NewCacheKey("87654321", "list_courses", IntParam("term", 20193)),
		NewCacheKey("12345678", "list_terms"),
		NewCacheKey("12345678", "list_courses", StringParam("term", "20193")),
		NewCacheKey("12345678", "list_assignments", StringParam("page", "a|b")),
		NewCacheKey("12345678", "list_assignments", StringParam("page", "a"), StringParam("b", "")),
	}
	seen := map[string]int{}
	for i, k := range distinct {
		if j, ok := seen[k.String()]; ok {
			t.Fatalf("keys %d and %d render to %q", j, i, k.String())
		}
		seen[k.String()] = i
	}
}

func TestCached_HitDoesNotRecompute(t *testing.T) {
	clock := newFakeClock()
	s := newCacheSession(clock)
	ctx := context.Background()
	key := NewCacheKey(testAccount, "list_terms")

	calls := 0
	compute := func(context.Context) ([]Term, error) {
		calls++
		return []Term{{ID: 20193, Label: "spring"}, {ID: 20192, Label: "autumn"}}, nil
	}

	first, err := cached(ctx, s, key, time.Minute, false, compute)
	require.NoError(t, err)
	refreshed := s.LastRefreshedAt()
	assert.Equal(t, clock.Now(), refreshed)

	clock.Advance(59 * time.Second)
	second, err := cached(ctx, s, key, time.Minute, false, compute)
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
	assert.Equal(t, first, second)
	assert.Equal(t, refreshed, s.LastRefreshedAt(), "a hit is not a refresh")

	// returned values do not alias the cache
	second[0].Label = "mutated"
	third, err := cached(ctx, s, key, time.Minute, false, compute)
	require.NoError(t, err)
	assert.Equal(t, "spring", third[0].Label)
	assert.Equal(t, "spring", first[0].Label)
	assert.Equal(t, 1, calls)
}

func TestCached_ExpiredEntryIsRecomputed(t *testing.T) {
	clock := newFakeClock()
	s := newCacheSession(clock)
	ctx := context.Background()
	key := NewCacheKey(testAccount, "list_terms")

	calls := 0
	compute := func(context.Context) (int, error) {
		calls++
		return calls, nil
	}

	v, err := cached(ctx, s, key, time.Minute, false, compute)
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	clock.Advance(time.Minute)
	v, err = cached(ctx, s, key, time.Minute, false, compute)
	require.NoError(t, err)
	assert.Equal(t, 2, v)
	assert.Equal(t, clock.Now(), s.LastRefreshedAt())
}

func TestCached_FailureLeavesCacheUntouched(t *testing.T) {
	clock := newFakeClock()
	mem := NewMemoryCache()
	s := newCacheSession(clock, WithCacheStore(mem))
	ctx := context.Background()
	key := NewCacheKey(testAccount, "list_courses", IntParam("term", 0))

	_, err := cached(ctx, s, key, time.Minute, false, func(context.Context) ([]CourseInfo, error) {
		return []CourseInfo{{Name: "old"}}, nil
	})
	require.NoError(t, err)
	before := mem.export()
	refreshed := s.LastRefreshedAt()

	clock.Advance(2 * time.Minute)
	boom := errors.New("boom")
	_, err = cached(ctx, s, key, time.Minute, false, func(context.Context) ([]CourseInfo, error) {
		return nil, boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, before, mem.export())
	assert.Equal(t, refreshed, s.LastRefreshedAt())

	_, err = cached(ctx, s, NewCacheKey(testAccount, "list_terms"), time.Minute, true, func(context.Context) ([]Term, error) {
		return nil, boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, mem.Len(), "a failed bypass writes nothing")
}

func TestCached_BypassOverwritesFreshEntry(t *testing.T) {
	clock := newFakeClock()
	mem := NewMemoryCache()
	s := newCacheSession(clock, WithCacheStore(mem))
	ctx := context.Background()
	key := NewCacheKey(testAccount, "list_terms")

	_, err := cached(ctx, s, key, time.Hour, false, func(context.Context) (string, error) { return "old", nil })
	require.NoError(t, err)

	clock.Advance(time.Second)
	calls := 0
	v, err := cached(ctx, s, key, time.Hour, true, func(context.Context) (string, error) {
		calls++
		return "new", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "new", v)
	assert.Equal(t, 1, calls)

	entry, ok, err := mem.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `"new"`, string(entry.Value))
	assert.Equal(t, clock.Now(), entry.WrittenAt)
}

type failingStore struct {
	getErr error
	putErr error
	puts   int
}

func (f *failingStore) Get(context.Context, CacheKey) (CacheEntry, bool, error) {
	return CacheEntry{}, false, f.getErr
}

func (f *failingStore) Put(context.Context, CacheKey, CacheEntry) error {
	f.puts++
	return f.putErr
}

func TestCached_StoreErrorsDegradeToMiss(t *testing.T) {
	store := &failingStore{getErr: errors.New("db down"), putErr: errors.New("db down")}
	s := newCacheSession(newFakeClock(), WithCacheStore(store))

	v, err := cached(context.Background(), s, NewCacheKey(testAccount, "list_terms"), time.Hour, false,
		func(context.Context) (int, error) { return 7, nil })
	require.NoError(t, err)
	assert.Equal(t, 7, v)
	assert.Equal(t, 1, store.puts)
}

func TestCached_UndecodableEntryIsAMiss(t *testing.T) {
	clock := newFakeClock()
	mem := NewMemoryCache()
	s := newCacheSession(clock, WithCacheStore(mem))
	ctx := context.Background()
	key := NewCacheKey(testAccount, "list_terms")
	require.NoError(t, mem.Put(ctx, key, CacheEntry{Value: []byte("{not json"), WrittenAt: clock.Now()}))

	v, err := cached(ctx, s, key, time.Hour, false, func(context.Context) ([]Term, error) {
		return []Term{{ID: 1}}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []Term{{ID: 1}}, v)
}

func TestCached_WorkTimesKeepTheirZoneOnHit(t *testing.T) {
	// hosts in the portal's zone decode +08:00 offsets as time.Local
	local := time.Local
	time.Local = time.FixedZone("CST", 8*60*60)
	t.Cleanup(func() { time.Local = local })

	clock := newFakeClock()
	s := newCacheSession(clock)
	ctx := context.Background()
	key := NewCacheKey(testAccount, "list_assignments", StringParam("page", "course/1"))

	end, err := parseWorkTime("2020-03-08 23:59")
	require.NoError(t, err)
	compute := func(context.Context) ([]WorkInfo, error) {
		return []WorkInfo{{Name: "实验报告", End: end, Status: WorkStatusPending}, {Name: "课堂练习", Status: WorkStatusPending}}, nil
	}

	first, err := cached(ctx, s, key, time.Minute, false, compute)
	require.NoError(t, err)
	second, err := cached(ctx, s, key, time.Minute, false, compute)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Same(t, chinaTime, second[0].End.Location())
	assert.Nil(t, second[1].End)
}
