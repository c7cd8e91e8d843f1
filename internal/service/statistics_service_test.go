package service

import (
	"context"
	"encoding/json"
	"errors"
	"path"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/church-attendance-api/internal/dto"
	"github.com/noah-isme/church-attendance-api/internal/models"
	appErrors "github.com/noah-isme/church-attendance-api/pkg/errors"
)

type entityMemberStub struct {
	members []models.Member
	calls   int
}

func (s *entityMemberStub) ListByEntity(ctx context.Context, entity models.Entity, entityID string) ([]models.Member, error) {
	s.calls++
	return s.members, nil
}

type memberFactStub struct {
	facts  []models.AttendanceFact
	filter models.AttendanceFactFilter
	err    error
}

func (s *memberFactStub) ListByMembers(ctx context.Context, filter models.AttendanceFactFilter) ([]models.AttendanceFact, error) {
	s.filter = filter
	return s.facts, s.err
}

// memoryCacheRepo keeps JSON payloads in a map, matching keys with path.Match globs.
type memoryCacheRepo struct {
	mu      sync.Mutex
	entries map[string][]byte
}

func newMemoryCacheRepo() *memoryCacheRepo {
	return &memoryCacheRepo{entries: make(map[string][]byte)}
}

func (m *memoryCacheRepo) Get(ctx context.Context, key string, dest interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memoryCacheRepo) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = raw
	return nil
}

func (m *memoryCacheRepo) DeleteByPattern(ctx context.Context, pattern string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key := range m.entries {
		if ok, _ := path.Match(pattern, key); ok {
			delete(m.entries, key)
		}
	}
	return nil
}

func (m *memoryCacheRepo) keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.entries))
	for key := range m.entries {
		out = append(out, key)
	}
	return out
}

func newStatisticsServiceForTest(members *entityMemberStub, facts *memberFactStub, repo CacheRepository) *StatisticsService {
	var cache statisticsCache
	if repo != nil {
		cache = NewCacheService(repo, nil, CacheConfig{Enabled: true, Namespace: "church"}, nil)
	}
	svc := NewStatisticsService(members, facts, cache, nil, time.Minute, nil)
	svc.now = func() time.Time { return time.Date(2024, 4, 1, 8, 0, 0, 0, time.UTC) }
	return svc
}

func TestStatisticsServiceAggregatesEntityMonth(t *testing.T) {
	old := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	members := &entityMemberStub{members: []models.Member{testMember("a", old), testMember("b", old)}}
	present := models.BoolPtr(true)
	facts := &memberFactStub{facts: []models.AttendanceFact{
		churchFact("a", models.EntityTribe, "t1", sunday(3), present),
		churchFact("a", models.EntityTribe, "t1", sunday(10), present),
		churchFact("a", models.EntityTribe, "t1", sunday(17), present),
		churchFact("a", models.EntityTribe, "t1", sunday(24), present),
		churchFact("a", models.EntityTribe, "t1", sunday(31), present),
	}}
	svc := newStatisticsServiceForTest(members, facts, nil)

	report, hit, err := svc.Statistics(context.Background(), dto.StatisticsRequest{Entity: "tribe", EntityID: "t1", Month: "2024-03"})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, models.EntityTribe, report.Entity)
	assert.Equal(t, models.AttendanceKindChurch, report.Kind)
	assert.Equal(t, 2, report.Overall.Total)
	assert.Equal(t, 1, report.Overall.Count(models.RegularityVeryRegular))
	assert.Equal(t, 1, report.Overall.Count(models.RegularityAbsent))
	assert.Equal(t, []string{"a", "b"}, facts.filter.MemberIDs)
	assert.Equal(t, "2024-03-31", models.DayKey(facts.filter.To))

	resp := ToStatisticsResponse(report)
	assert.Equal(t, "2024-03", resp.Month)
	assert.Len(t, resp.Overall, 2, "zero-count buckets are hidden")
	assert.Nil(t, resp.New)
}

func TestStatisticsServiceRejectsInvalidFilters(t *testing.T) {
	svc := newStatisticsServiceForTest(&entityMemberStub{}, &memberFactStub{}, nil)
	cases := []dto.StatisticsRequest{
		{Entity: "CLASS", EntityID: "t1", Month: "2024-03"},
		{Entity: "TRIBE", Month: "2024-03"},
		{Entity: "TRIBE", EntityID: "t1", Month: "March"},
		{Entity: "TRIBE", EntityID: "t1", Month: "2024-03", Kind: "PRAYER"},
	}
	for _, req := range cases {
		_, _, err := svc.Statistics(context.Background(), req)
		assert.True(t, errors.Is(err, appErrors.ErrValidation), "%+v", req)
	}
}

func TestStatisticsServiceEmptyEntity(t *testing.T) {
	facts := &memberFactStub{err: errors.New("must not be called")}
	svc := newStatisticsServiceForTest(&entityMemberStub{}, facts, nil)

	report, _, err := svc.Statistics(context.Background(), dto.StatisticsRequest{Entity: "DEPARTMENT", EntityID: "d1", Month: "2024-03", Breakdown: true})
	require.NoError(t, err)
	assert.Zero(t, report.Overall.Total)
	require.NotNil(t, report.New)
	assert.Zero(t, report.New.Total)
}

func TestStatisticsServiceCachesAndInvalidates(t *testing.T) {
	members := &entityMemberStub{members: []models.Member{testMember("a", time.Time{})}}
	repo := newMemoryCacheRepo()
	svc := newStatisticsServiceForTest(members, &memberFactStub{}, repo)
	req := dto.StatisticsRequest{Entity: "TRIBE", EntityID: "t1", Month: "2024-03", Kind: "service"}

	_, hit, err := svc.Statistics(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, []string{"church:stats:TRIBE:t1:2024-03:SERVICE:false"}, repo.keys())

	report, hit, err := svc.Statistics(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 1, report.Overall.Total)
	assert.Equal(t, 1, members.calls)

	require.NoError(t, svc.Invalidate(context.Background(), models.EntityTribe, "t1"))
	assert.Empty(t, repo.keys())
}

type failingCacheRepo struct{}

func (failingCacheRepo) Get(ctx context.Context, key string, dest interface{}) error {
	return errors.New("redis unavailable")
}

func (failingCacheRepo) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return errors.New("redis unavailable")
}

func (failingCacheRepo) DeleteByPattern(ctx context.Context, pattern string) error {
	return errors.New("redis unavailable")
}

func TestStatisticsServiceSurvivesCacheOutage(t *testing.T) {
	members := &entityMemberStub{members: []models.Member{testMember("a", time.Time{})}}
	svc := newStatisticsServiceForTest(members, &memberFactStub{}, failingCacheRepo{})

	report, hit, err := svc.Statistics(context.Background(), dto.StatisticsRequest{Entity: "TRIBE", EntityID: "t1", Month: "2024-03"})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 1, report.Overall.Total)
}

func TestCacheServiceDisabledIsNoop(t *testing.T) {
	repo := newMemoryCacheRepo()
	cache := NewCacheService(repo, NewMetricsService(), CacheConfig{Enabled: false}, nil)
	require.NoError(t, cache.Set(context.Background(), "k", 1, 0))
	hit, err := cache.Get(context.Background(), "k", new(int))
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Empty(t, repo.keys())
}
