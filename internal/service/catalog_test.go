package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/song-catalog/server/internal/cache"
	"github.com/song-catalog/server/internal/domain"
	"github.com/song-catalog/server/pkg/logger"
)

type mockSongRepository struct {
	mock.Mock
}

func (m *mockSongRepository) Create(ctx context.Context, song *domain.Song) error {
	args := m.Called(ctx, song)
	return args.Error(0)
}

func (m *mockSongRepository) GetByID(ctx context.Context, id int64) (*domain.Song, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Song), args.Error(1)
}

func (m *mockSongRepository) List(ctx context.Context, q *domain.ListQuery) ([]*domain.Song, int64, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]*domain.Song), args.Get(1).(int64), args.Error(2)
}

func (m *mockSongRepository) Search(ctx context.Context, query string, limit int) ([]*domain.Song, error) {
	args := m.Called(ctx, query, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Song), args.Error(1)
}

func (m *mockSongRepository) TopRated(ctx context.Context, limit int) ([]*domain.Song, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Song), args.Error(1)
}

func (m *mockSongRepository) MostPlayed(ctx context.Context, limit int) ([]*domain.Song, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Song), args.Error(1)
}

func (m *mockSongRepository) Stats(ctx context.Context) (*domain.Stats, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Stats), args.Error(1)
}

func (m *mockSongRepository) Update(ctx context.Context, id int64, in *domain.SongInput) (*domain.Song, error) {
	args := m.Called(ctx, id, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Song), args.Error(1)
}

func (m *mockSongRepository) UpdateRating(ctx context.Context, id int64, rating float64) (*domain.Song, error) {
	args := m.Called(ctx, id, rating)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Song), args.Error(1)
}

func (m *mockSongRepository) Delete(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockSongRepository) IncrementPlayCount(ctx context.Context, id int64) (*domain.Song, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Song), args.Error(1)
}

func (m *mockSongRepository) Count(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockSongRepository) CreateBatch(ctx context.Context, songs []*domain.Song) (int, error) {
	args := m.Called(ctx, songs)
	return args.Int(0), args.Error(1)
}

func newTestService(t *testing.T) (*CatalogService, *mockSongRepository, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	repo := new(mockSongRepository)
	store := cache.NewRedisStore(client, "sc")
	log := logger.New(&logger.Config{Level: logger.ErrorLevel, Output: io.Discard})

	return NewCatalogService(repo, store, DefaultTTLConfig(), log), repo, mr
}

func floatPtr(v float64) *float64 { return &v }
func strPtr(v string) *string     { return &v }

func testSong(id int64, title string, rating float64, plays int64) *domain.Song {
	return &domain.Song{
		ID:        id,
		Title:     title,
		Artist:    "Test Artist",
		Rating:    floatPtr(rating),
		PlayCount: plays,
	}
}

func TestList_CachesSecondRead(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	songs := []*domain.Song{testSong(1, "First", 4.5, 10)}
	repo.On("List", mock.Anything, mock.Anything).Return(songs, int64(1), nil).Once()

	q1 := &domain.ListQuery{}
	page1, err := svc.List(ctx, q1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), page1.Total)

	// Same logical query again: must be served from cache, not the store.
	q2 := &domain.ListQuery{}
	page2, err := svc.List(ctx, q2)
	require.NoError(t, err)
	assert.Equal(t, page1.Total, page2.Total)
	require.Len(t, page2.Songs, 1)
	assert.Equal(t, "First", page2.Songs[0].Title)

	repo.AssertNumberOfCalls(t, "List", 1)
}

func TestList_DistinctQueriesDistinctEntries(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	repo.On("List", mock.Anything, mock.Anything).Return([]*domain.Song{}, int64(0), nil)

	_, err := svc.List(ctx, &domain.ListQuery{Page: 1})
	require.NoError(t, err)
	_, err = svc.List(ctx, &domain.ListQuery{Page: 2})
	require.NoError(t, err)

	repo.AssertNumberOfCalls(t, "List", 2)
}

func TestList_InvalidSortField(t *testing.T) {
	svc, repo, _ := newTestService(t)

	_, err := svc.List(context.Background(), &domain.ListQuery{SortBy: "lyrics"})
	require.Error(t, err)
	assert.True(t, domain.IsValidation(err))
	repo.AssertNotCalled(t, "List")
}

func TestList_CacheDownFallsBackToStore(t *testing.T) {
	svc, repo, mr := newTestService(t)
	ctx := context.Background()

	mr.Close()

	songs := []*domain.Song{testSong(1, "Resilient", 3.0, 5)}
	repo.On("List", mock.Anything, mock.Anything).Return(songs, int64(1), nil)

	page, err := svc.List(ctx, &domain.ListQuery{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total)
}

func TestSearch_EmptyQueryReturnsEmpty(t *testing.T) {
	svc, repo, _ := newTestService(t)

	for _, q := range []string{"", "   ", "\t"} {
		songs, err := svc.Search(context.Background(), q)
		require.NoError(t, err)
		assert.Empty(t, songs)
	}
	repo.AssertNotCalled(t, "Search")
}

func TestSearch_DelegatesToStore(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	want := []*domain.Song{testSong(1, "Bohemian Rhapsody", 5.0, 100)}
	repo.On("Search", mock.Anything, "bohemian", searchLimit).Return(want, nil).Twice()

	// Search bypasses the cache entirely.
	for i := 0; i < 2; i++ {
		songs, err := svc.Search(ctx, "  bohemian  ")
		require.NoError(t, err)
		require.Len(t, songs, 1)
	}
	repo.AssertNumberOfCalls(t, "Search", 2)
}

func TestGet_NotFoundLeavesNoCacheEntry(t *testing.T) {
	svc, repo, mr := newTestService(t)

	repo.On("GetByID", mock.Anything, int64(404)).Return(nil, domain.ErrSongNotFound)

	_, err := svc.Get(context.Background(), int64(404))
	assert.ErrorIs(t, err, domain.ErrSongNotFound)
	assert.Empty(t, mr.Keys())
}

func TestTopRated_CachedPerLimit(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	repo.On("TopRated", mock.Anything, 5).Return([]*domain.Song{testSong(1, "A", 5.0, 1)}, nil).Once()
	repo.On("TopRated", mock.Anything, 10).Return([]*domain.Song{testSong(1, "A", 5.0, 1), testSong(2, "B", 4.0, 2)}, nil).Once()

	for i := 0; i < 3; i++ {
		songs, err := svc.TopRated(ctx, 5)
		require.NoError(t, err)
		assert.Len(t, songs, 1)
	}
	songs, err := svc.TopRated(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, songs, 2)

	repo.AssertNumberOfCalls(t, "TopRated", 2)
}

func TestTopRated_RejectsNonPositiveLimit(t *testing.T) {
	svc, repo, _ := newTestService(t)

	for _, limit := range []int{0, -1} {
		_, err := svc.TopRated(context.Background(), limit)
		require.Error(t, err)
		assert.True(t, domain.IsValidation(err))
	}
	repo.AssertNotCalled(t, "TopRated")
}

func TestMostPlayed_RejectsNonPositiveLimit(t *testing.T) {
	svc, repo, _ := newTestService(t)

	_, err := svc.MostPlayed(context.Background(), 0)
	require.Error(t, err)
	assert.True(t, domain.IsValidation(err))
	repo.AssertNotCalled(t, "MostPlayed")
}

func TestStats_Cached(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	repo.On("Stats", mock.Anything).Return(&domain.Stats{
		TotalSongs:       3,
		TotalPlays:       42,
		AverageRating:    4.2,
		MostPopularGenre: "Rock",
	}, nil).Once()

	for i := 0; i < 2; i++ {
		stats, err := svc.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(3), stats.TotalSongs)
		assert.Equal(t, int64(42), stats.TotalPlays)
		assert.Equal(t, "Rock", stats.MostPopularGenre)
	}
	repo.AssertNumberOfCalls(t, "Stats", 1)
}

func TestCreate_InvalidInputNeverReachesStore(t *testing.T) {
	svc, repo, _ := newTestService(t)

	_, err := svc.Create(context.Background(), &domain.SongInput{Artist: strPtr("No Title")})
	require.Error(t, err)
	assert.True(t, domain.IsValidation(err))
	repo.AssertNotCalled(t, "Create")
}

func TestCreate_InvalidatesCachedViews(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	repo.On("TopRated", mock.Anything, 10).Return([]*domain.Song{testSong(1, "Old Top", 4.0, 1)}, nil).Once()
	_, err := svc.TopRated(ctx, 10)
	require.NoError(t, err)

	repo.On("Create", mock.Anything, mock.Anything).Return(nil)
	_, err = svc.Create(ctx, &domain.SongInput{
		Title:  strPtr("New Top"),
		Artist: strPtr("Someone"),
		Rating: floatPtr(5.0),
	})
	require.NoError(t, err)

	// The ranked view must be recomputed after the write.
	repo.On("TopRated", mock.Anything, 10).Return([]*domain.Song{testSong(2, "New Top", 5.0, 0)}, nil).Once()
	songs, err := svc.TopRated(ctx, 10)
	require.NoError(t, err)
	require.NotEmpty(t, songs)
	assert.Equal(t, "New Top", songs[0].Title)
}

func TestUpdate_NotFound(t *testing.T) {
	svc, repo, _ := newTestService(t)

	repo.On("Update", mock.Anything, int64(99), mock.Anything).Return(nil, domain.ErrSongNotFound)

	_, err := svc.Update(context.Background(), 99, &domain.SongInput{Title: strPtr("Renamed")})
	assert.ErrorIs(t, err, domain.ErrSongNotFound)
}

func TestDelete_InvalidatesListCache(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	repo.On("List", mock.Anything, mock.Anything).Return([]*domain.Song{testSong(1, "Doomed", 1.0, 0)}, int64(1), nil).Once()
	_, err := svc.List(ctx, &domain.ListQuery{})
	require.NoError(t, err)

	repo.On("Delete", mock.Anything, int64(1)).Return(nil)
	require.NoError(t, svc.Delete(ctx, 1))

	repo.On("List", mock.Anything, mock.Anything).Return([]*domain.Song{}, int64(0), nil).Once()
	page, err := svc.List(ctx, &domain.ListQuery{})
	require.NoError(t, err)
	assert.Equal(t, int64(0), page.Total)
	repo.AssertNumberOfCalls(t, "List", 2)
}

func TestRate_BoundaryValues(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	for _, rating := range []float64{0, 5} {
		song := testSong(1, "Edge Case", rating, 0)
		repo.On("UpdateRating", mock.Anything, int64(1), rating).Return(song, nil).Once()

		res, err := svc.Rate(ctx, 1, rating)
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("%.2f", rating), res.Rating)
		assert.Equal(t, "Rating updated for Edge Case", res.Message)
	}
}

func TestRate_OutOfRangeRejectedBeforeStore(t *testing.T) {
	svc, repo, _ := newTestService(t)

	for _, rating := range []float64{-0.0001, 5.0001, -1, 6} {
		_, err := svc.Rate(context.Background(), 1, rating)
		require.Error(t, err, "rating %v must be rejected", rating)
		assert.True(t, domain.IsValidation(err))
	}
	repo.AssertNotCalled(t, "UpdateRating")
}

func TestRate_NewTopVisibleImmediately(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	repo.On("TopRated", mock.Anything, 1).Return([]*domain.Song{testSong(1, "Former Champion", 4.8, 50)}, nil).Once()
	songs, err := svc.TopRated(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Former Champion", songs[0].Title)

	rated := testSong(2, "Dark Horse", 5.0, 3)
	repo.On("UpdateRating", mock.Anything, int64(2), 5.0).Return(rated, nil)
	_, err = svc.Rate(ctx, 2, 5.0)
	require.NoError(t, err)

	// The cached top-1 entry was cleared by the mutation.
	repo.On("TopRated", mock.Anything, 1).Return([]*domain.Song{rated}, nil).Once()
	songs, err = svc.TopRated(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Dark Horse", songs[0].Title)
}

func TestRate_NotFound(t *testing.T) {
	svc, repo, _ := newTestService(t)

	repo.On("UpdateRating", mock.Anything, int64(404), 3.0).Return(nil, domain.ErrSongNotFound)

	_, err := svc.Rate(context.Background(), 404, 3.0)
	assert.ErrorIs(t, err, domain.ErrSongNotFound)
}

func TestPlay_ReturnsCountAndMessage(t *testing.T) {
	svc, repo, _ := newTestService(t)

	repo.On("IncrementPlayCount", mock.Anything, int64(7)).Return(testSong(7, "Hit Single", 4.0, 101), nil)

	res, err := svc.Play(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, int64(101), res.PlayCount)
	assert.Equal(t, "Play count incremented for Hit Single", res.Message)
}

func TestPlay_ConcurrentIncrementsAllLand(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	const workers = 20
	repo.On("IncrementPlayCount", mock.Anything, int64(1)).Return(testSong(1, "Popular", 4.0, 1), nil)

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Play(ctx, 1)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	// Every play must reach the store's atomic increment.
	repo.AssertNumberOfCalls(t, "IncrementPlayCount", workers)
}

func TestPlay_NotFound(t *testing.T) {
	svc, repo, _ := newTestService(t)

	repo.On("IncrementPlayCount", mock.Anything, int64(404)).Return(nil, domain.ErrSongNotFound)

	_, err := svc.Play(context.Background(), 404)
	assert.ErrorIs(t, err, domain.ErrSongNotFound)
}

func TestPlay_InvalidationFailureDoesNotFailMutation(t *testing.T) {
	svc, repo, mr := newTestService(t)

	repo.On("IncrementPlayCount", mock.Anything, int64(1)).Return(testSong(1, "Survivor", 4.0, 2), nil)

	mr.Close()

	res, err := svc.Play(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.PlayCount)
}

func TestReadThrough_StoreErrorPropagates(t *testing.T) {
	svc, repo, _ := newTestService(t)

	storeErr := errors.New("connection refused")
	repo.On("Stats", mock.Anything).Return(nil, storeErr)

	_, err := svc.Stats(context.Background())
	assert.ErrorIs(t, err, storeErr)
}

func TestReadThrough_CachedEntryExpires(t *testing.T) {
	svc, repo, mr := newTestService(t)
	ctx := context.Background()

	repo.On("Stats", mock.Anything).Return(&domain.Stats{TotalSongs: 1}, nil).Twice()

	_, err := svc.Stats(ctx)
	require.NoError(t, err)

	mr.FastForward(10 * time.Minute)

	_, err = svc.Stats(ctx)
	require.NoError(t, err)
	repo.AssertNumberOfCalls(t, "Stats", 2)
}

func TestWarmUp_PopulatesAggregateViews(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	repo.On("TopRated", mock.Anything, 10).Return([]*domain.Song{testSong(1, "A", 5.0, 1)}, nil).Once()
	repo.On("MostPlayed", mock.Anything, 10).Return([]*domain.Song{testSong(1, "A", 5.0, 1)}, nil).Once()
	repo.On("Stats", mock.Anything).Return(&domain.Stats{TotalSongs: 1}, nil).Once()

	require.NoError(t, svc.WarmUp(ctx, 10))

	// Subsequent reads hit the warmed cache.
	_, err := svc.TopRated(ctx, 10)
	require.NoError(t, err)
	_, err = svc.MostPlayed(ctx, 10)
	require.NoError(t, err)
	_, err = svc.Stats(ctx)
	require.NoError(t, err)

	repo.AssertExpectations(t)
}
