package services

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hossamSharif/TafawoqWeb-sub004/internal/models"
	"github.com/hossamSharif/TafawoqWeb-sub004/internal/repository/sqlite"
)

const testExamDuration = 7200

type recordedEvents struct {
	events []models.SessionCompletedEvent
}

func (r *recordedEvents) PublishSessionCompleted(ctx context.Context, evt models.SessionCompletedEvent) error {
	r.events = append(r.events, evt)
	return nil
}

type testEnv struct {
	ctx         context.Context
	now         time.Time
	store       *sqlite.Store
	mr          *miniredis.Miniredis
	redis       *redis.Client
	tiers       *TierResolver
	eligibility *EligibilityEvaluator
	sessions    *SessionService
	events      *recordedEvents
	credits     *CreditService
	trigger     *RewardTrigger
	completions *CompletionService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store, err := sqlite.Open(filepath.Join(t.TempDir(), "services.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	logger := zap.NewNop()
	env := &testEnv{
		ctx:    context.Background(),
		now:    time.Date(2026, 3, 18, 10, 0, 0, 0, time.UTC),
		store:  store,
		mr:     mr,
		redis:  rdb,
		events: &recordedEvents{},
	}
	clock := func() time.Time { return env.now }

	env.tiers = NewTierResolver(store, rdb, time.Minute, logger)

	env.eligibility = NewEligibilityEvaluator(store, env.tiers, 3, logger)
	env.eligibility.now = clock

	env.sessions = NewSessionService(store, env.eligibility, NewPauseLimiter(store), env.events, SessionConfig{
		ExamDurationSeconds:  testExamDuration,
		MaxPracticeQuestions: 50,
		ExpiryGrace:          5 * time.Minute,
	}, logger)
	env.sessions.now = clock

	env.credits = NewCreditService(store, env.tiers, logger)
	env.credits.now = clock

	env.trigger = NewRewardTrigger(store, store, NewRedisNotifier(rdb), 1, logger)
	env.trigger.now = clock
	env.trigger.newBackOff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }

	env.completions = NewCompletionService(store, env.trigger, logger)
	env.completions.now = clock
	return env
}

func (e *testEnv) advance(d time.Duration) {
	e.now = e.now.Add(d)
}

func (e *testEnv) user(t *testing.T, tier models.Tier) uuid.UUID {
	t.Helper()
	id := uuid.New()
	require.NoError(t, e.store.UpsertUser(e.ctx, &models.User{ID: id, Email: id.String() + "@example.com", Plan: tier}))
	return id
}

func (e *testEnv) setWeek(t *testing.T, userID uuid.UUID, count int, start time.Time) {
	t.Helper()
	require.NoError(t, e.store.SetPerformance(e.ctx, &models.PerformanceRecord{
		UserID: userID, WeeklyExamCount: count, WeekStartDate: start,
	}))
}

func (e *testEnv) post(t *testing.T, owner uuid.UUID, kind models.SessionKind) *models.SharedPost {
	t.Helper()
	content := uuid.New()
	p := &models.SharedPost{ID: uuid.New(), UserID: owner, Title: "Shared set"}
	if kind == models.SessionKindExam {
		p.SharedExamID = &content
	} else {
		p.SharedPracticeID = &content
	}
	require.NoError(t, e.store.CreateSharedPost(e.ctx, p))
	return p
}

func intPtr(v int) *int { return &v }
