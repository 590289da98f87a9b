package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"

	"github.com/hossamSharif/TafawoqWeb-sub004/internal/database"
	"github.com/hossamSharif/TafawoqWeb-sub004/internal/models"
)

// PostgresRepoSuite runs the pgx stores against a real server. It is skipped
// unless TEST_DATABASE_URL points at a disposable database.
type PostgresRepoSuite struct {
	suite.Suite
	ctx   context.Context
	pool  *pgxpool.Pool
	now   time.Time
	users []uuid.UUID

	sessions      *SessionRepo
	performance   *PerformanceRepo
	credits       *CreditRepo
	posts         *PostRepo
	notifications *NotificationRepo
	userRepo      *UserRepo
}

func TestPostgresRepoSuite(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer pool.Close()
	if err := database.RunMigrations(ctx, pool, "../../migrations", zap.NewNop()); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	suite.Run(t, &PostgresRepoSuite{ctx: ctx, pool: pool})
}

func (s *PostgresRepoSuite) SetupTest() {
	s.now = time.Date(2026, 3, 18, 10, 0, 0, 0, time.UTC)
	s.users = nil
	s.sessions = NewSessionRepo(s.pool)
	s.performance = NewPerformanceRepo(s.pool)
	s.credits = NewCreditRepo(s.pool)
	s.posts = NewPostRepo(s.pool)
	s.notifications = NewNotificationRepo(s.pool)
	s.userRepo = NewUserRepo(s.pool)
}

func (s *PostgresRepoSuite) TearDownTest() {
	for _, id := range s.users {
		_, err := s.pool.Exec(s.ctx, "DELETE FROM users WHERE id = $1", id)
		s.NoError(err)
	}
}

func (s *PostgresRepoSuite) seedUser(plan models.Tier) uuid.UUID {
	id := uuid.New()
	_, err := s.pool.Exec(s.ctx, "INSERT INTO users (id, email, plan) VALUES ($1, $2, $3)", id, id.String()+"@example.com", string(plan))
	s.Require().NoError(err)
	s.users = append(s.users, id)
	return id
}

func (s *PostgresRepoSuite) seedSession(userID uuid.UUID, kind models.SessionKind) *models.Session {
	sess := &models.Session{
		ID:             uuid.New(),
		UserID:         userID,
		Kind:           kind,
		Status:         models.SessionStatusInProgress,
		QuestionIDs:    []string{"q1", "q2"},
		TotalQuestions: 2,
		StartTime:      s.now,
	}
	if kind == models.SessionKindExam {
		total := 7200
		sess.TotalDurationSeconds = &total
		sess.RemainingTimeSeconds = &total
	}
	s.Require().NoError(s.sessions.CreateSession(s.ctx, sess))
	return sess
}

func (s *PostgresRepoSuite) seedPost(owner uuid.UUID) uuid.UUID {
	id := uuid.New()
	_, err := s.pool.Exec(s.ctx, "INSERT INTO shared_posts (id, user_id, title, shared_practice_id) VALUES ($1, $2, 'shared', $3)", id, owner, uuid.New())
	s.Require().NoError(err)
	return id
}

func (s *PostgresRepoSuite) setWeek(userID uuid.UUID, count int, start time.Time) {
	_, err := s.pool.Exec(s.ctx, `INSERT INTO performance_records (user_id, weekly_exam_count, week_start_date)
		VALUES ($1, $2, $3::DATE)`, userID, count, dateOnly(start))
	s.Require().NoError(err)
}

func (s *PostgresRepoSuite) TestPauseKeepsRemainingWhenOmitted() {
	user := s.seedUser(models.TierFree)
	first := s.seedSession(user, models.SessionKindExam)
	second := s.seedSession(user, models.SessionKindExam)

	paused, err := s.sessions.PauseSession(s.ctx, first.ID, user, nil, 300, s.now)
	s.Require().NoError(err)
	s.Equal(models.SessionStatusPaused, paused.Status)
	s.Equal(7200, *paused.RemainingTimeSeconds)
	s.Equal(300, paused.TimeSpentSeconds)

	_, err = s.sessions.PauseSession(s.ctx, second.ID, user, nil, 10, s.now)
	s.ErrorIs(err, ErrPauseConflict)

	_, err = s.sessions.PauseSession(s.ctx, first.ID, user, nil, 10, s.now)
	s.ErrorIs(err, ErrStateMismatch)

	found, err := s.sessions.FindPausedSession(s.ctx, user, models.SessionKindExam)
	s.Require().NoError(err)
	s.Equal(first.ID, found.ID)
}

func (s *PostgresRepoSuite) TestCompleteExamRollsWeeklyWindow() {
	current := s.seedUser(models.TierFree)
	s.setWeek(current, 2, s.now.AddDate(0, 0, -3))
	stale := s.seedUser(models.TierFree)
	s.setWeek(stale, 3, s.now.AddDate(0, 0, -7))

	for _, user := range []uuid.UUID{current, stale} {
		exam := s.seedSession(user, models.SessionKindExam)
		_, err := s.sessions.CompleteSession(s.ctx, exam.ID, user, models.SessionStatusInProgress, 0, s.now)
		s.Require().NoError(err)
	}

	perf, err := s.performance.GetPerformance(s.ctx, current)
	s.Require().NoError(err)
	s.Equal(3, perf.WeeklyExamCount)
	s.Equal("2026-03-15", perf.WeekStartDate.Format("2006-01-02"))

	perf, err = s.performance.GetPerformance(s.ctx, stale)
	s.Require().NoError(err)
	s.Equal(1, perf.WeeklyExamCount)
	s.Equal("2026-03-18", perf.WeekStartDate.Format("2006-01-02"))
}

func (s *PostgresRepoSuite) TestResetWeekOnlyRollsStaleWindow() {
	stale := s.seedUser(models.TierFree)
	s.setWeek(stale, 3, s.now.AddDate(0, 0, -10))
	fresh := s.seedUser(models.TierFree)
	s.setWeek(fresh, 2, s.now.AddDate(0, 0, -2))

	s.Require().NoError(s.performance.ResetWeek(s.ctx, stale, s.now))
	s.Require().NoError(s.performance.ResetWeek(s.ctx, fresh, s.now))

	perf, err := s.performance.GetPerformance(s.ctx, stale)
	s.Require().NoError(err)
	s.Equal(0, perf.WeeklyExamCount)
	perf, err = s.performance.GetPerformance(s.ctx, fresh)
	s.Require().NoError(err)
	s.Equal(2, perf.WeeklyExamCount)
}

func (s *PostgresRepoSuite) TestListOverdueExamIDsCountsPausesAndGrace() {
	user := s.seedUser(models.TierFree)
	exam := s.seedSession(user, models.SessionKindExam)
	practice := s.seedSession(user, models.SessionKindPractice)
	_, err := s.sessions.PauseSession(s.ctx, exam.ID, user, nil, 60, s.now)
	s.Require().NoError(err)
	_, err = s.sessions.ResumeSession(s.ctx, exam.ID, user, 600, s.now.Add(10*time.Minute))
	s.Require().NoError(err)

	ids, err := s.sessions.ListOverdueExamIDs(s.ctx, s.now.Add(2*time.Hour+14*time.Minute), 5*time.Minute, 10000)
	s.Require().NoError(err)
	s.NotContains(ids, exam.ID, "paused time extends the budget")

	ids, err = s.sessions.ListOverdueExamIDs(s.ctx, s.now.Add(2*time.Hour+16*time.Minute), 5*time.Minute, 10000)
	s.Require().NoError(err)
	s.Contains(ids, exam.ID)
	s.NotContains(ids, practice.ID)
}

func (s *PostgresRepoSuite) TestShareLimitOverrideCapsBalance() {
	user := s.seedUser(models.TierFree)
	s.Require().NoError(s.credits.EnsureLedger(s.ctx, user))
	_, err := s.credits.ResetShareCreditsForUser(s.ctx, user, models.ShareLimits{Exam: 10, Practice: 15}, s.now, s.now)
	s.Require().NoError(err)

	s.Require().NoError(s.credits.SetShareLimitOverride(s.ctx, user, models.ShareLimits{Exam: 4, Practice: 20}))

	l, err := s.credits.GetLedger(s.ctx, user)
	s.Require().NoError(err)
	s.Equal(models.ShareLimitSourceOverride, l.ShareLimitSource)
	s.Equal(4, l.ShareCreditsExam)
	s.Equal(15, l.ShareCreditsPractice)
	s.Equal(20, l.ShareCreditsPracticeMonthlyLimit)

	monthStart := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	reset, err := s.credits.ResetShareCreditsForUser(s.ctx, user, models.ShareLimits{Exam: 2, Practice: 3}, monthStart, monthStart)
	s.Require().NoError(err)
	s.True(reset)
	l, err = s.credits.GetLedger(s.ctx, user)
	s.Require().NoError(err)
	s.Equal(4, l.ShareCreditsExam, "override survives the monthly reset")
	s.Equal(20, l.ShareCreditsPractice)

	_, err = s.credits.SpendCredits(s.ctx, user, models.CreditTypeShareExam, 5)
	s.ErrorIs(err, ErrInsufficientCredits)

	s.ErrorIs(s.credits.SetShareLimitOverride(s.ctx, uuid.New(), models.ShareLimits{}), ErrNotFound)
}

func (s *PostgresRepoSuite) grant(completion *models.ShareCompletion, owner uuid.UUID, target models.NotificationTargetType) *models.RewardGrant {
	postID := completion.PostID
	return &models.RewardGrant{
		CompletionID: completion.ID,
		OwnerID:      owner,
		CreditType:   models.CreditTypePractice,
		Units:        1,
		GrantedAt:    s.now,
		Notification: &models.Notification{
			ID:         uuid.New(),
			UserID:     owner,
			Category:   models.NotificationCategoryRewardEarned,
			Title:      "Reward earned",
			Message:    "Someone completed your practice",
			TargetType: target,
			TargetID:   &postID,
		},
	}
}

func (s *PostgresRepoSuite) TestGrantRewardIsAtomic() {
	owner := s.seedUser(models.TierFree)
	completer := s.seedUser(models.TierFree)
	post := s.seedPost(owner)

	c, inserted, err := s.posts.RecordCompletion(s.ctx, post, completer, s.now)
	s.Require().NoError(err)
	s.True(inserted)

	err = s.credits.GrantReward(s.ctx, s.grant(c, owner, models.NotificationTargetType("practice")))
	s.Require().Error(err, "target_type check constraint rejects content kinds")
	_, err = s.credits.GetLedger(s.ctx, owner)
	s.ErrorIs(err, ErrNotFound, "the increment rolls back with the notification")

	s.Require().NoError(s.credits.GrantReward(s.ctx, s.grant(c, owner, models.NotificationTargetPost)))
	s.ErrorIs(s.credits.GrantReward(s.ctx, s.grant(c, owner, models.NotificationTargetPost)), ErrAlreadyClaimed)

	l, err := s.credits.GetLedger(s.ctx, owner)
	s.Require().NoError(err)
	s.Equal(1, l.PracticeCredits)

	notes, err := s.notifications.ListNotifications(s.ctx, owner, 10)
	s.Require().NoError(err)
	s.Require().Len(notes, 1)
	s.Equal(models.NotificationTargetPost, notes[0].TargetType)

	again, inserted, err := s.posts.RecordCompletion(s.ctx, post, completer, s.now)
	s.Require().NoError(err)
	s.False(inserted)
	s.Equal(models.RewardStatusGranted, again.RewardStatus)

	_, _, err = s.posts.RecordCompletion(s.ctx, uuid.New(), completer, s.now)
	s.ErrorIs(err, ErrNotFound)
}

func (s *PostgresRepoSuite) TestGetUserTier() {
	premium := s.seedUser(models.TierPremium)

	tier, err := s.userRepo.GetUserTier(s.ctx, premium)
	s.Require().NoError(err)
	s.Equal(models.TierPremium, tier)

	_, err = s.userRepo.GetUserTier(s.ctx, uuid.New())
	s.ErrorIs(err, ErrNotFound)
}
