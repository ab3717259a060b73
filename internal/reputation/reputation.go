// Package reputation runs the voting and daily-streak workflows: vote ledger
// mutations, reputation deltas and badge awards.
package reputation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/TobiSchelling/BiasLens/internal/apperr"
	"github.com/TobiSchelling/BiasLens/internal/database"
	"github.com/TobiSchelling/BiasLens/internal/metrics"
)

// Operation is the effect a vote had on the ledger.
type Operation string

const (
	OpNew     Operation = "new"
	OpChanged Operation = "changed"
	OpRemoved Operation = "removed"
)

// Reputation deltas applied when a new vote is cast.
const (
	UpvoteReputation   = 5
	DownvoteReputation = -2
)

type milestone struct {
	votes int
	badge string
}

// voteMilestones maps total live votes to the badge they earn.
var voteMilestones = []milestone{
	{1, "First Vote"},
	{10, "Active Voter"},
	{50, "Vote Champion"},
	{100, "Vote Legend"},
}

// streakBadges are checked only on the exact streak value.
var streakBadges = map[int]string{
	3: "Daily Reader",
	7: "Week Warrior",
}

// VoteResult is the post-operation state returned to the voter.
type VoteResult struct {
	Operation     Operation
	Upvotes       int
	Downvotes     int
	UserVote      *database.VoteType
	AwardedBadges []string
}

// StreakResult describes what a sign-in did to the streak.
type StreakResult struct {
	Streak       int
	Counted      bool
	AwardedBadge string
}

// ProfileStats is the profile summary shown next to a user's badges.
type ProfileStats struct {
	ReputationScore int
	TotalBadges     int
	DailyStreak     int
}

// BadgeSummary is a user's earned badges plus profile stats.
type BadgeSummary struct {
	Badges  []database.UserBadge
	Profile ProfileStats
}

// Service runs the workflows against the store.
type Service struct {
	db     *database.DB
	now    func() time.Time
	loc    *time.Location
	logger *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source used for streak dates.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLocation sets the timezone that decides what "today" is for streaks.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithLogger sets the logger for swallowed bookkeeping failures.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewService creates a Service.
func NewService(db *database.DB, opts ...Option) *Service {
	s := &Service{
		db:     db,
		now:    time.Now,
		loc:    time.UTC,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CastVote applies a vote under toggle semantics: a first vote is inserted, a
// repeat of the same direction removes it and the opposite direction changes
// it in place. New votes adjust the voter's reputation, and vote-count
// milestones are evaluated after every operation.
//
// The ledger change and the returned counts share one transaction. Reputation
// and badge bookkeeping run in a savepoint inside it; if they fail they are
// undone and logged while the vote itself still commits.
func (s *Service) CastVote(ctx context.Context, userID, articleID string, voteType database.VoteType) (*VoteResult, error) {
	if userID == "" {
		return nil, apperr.Unauthorized("authentication required")
	}
	if articleID == "" {
		return nil, apperr.Validation("articleId is required")
	}
	if !voteType.Valid() {
		return nil, apperr.Validation("voteType must be upvote or downvote")
	}

	result := &VoteResult{}
	err := s.db.WithTx(ctx, func(tx *database.Tx) error {
		exists, err := tx.ArticleExists(ctx, articleID)
		if err != nil {
			return apperr.Persistence("failed to load article", err)
		}
		if !exists {
			return apperr.NotFound("article not found")
		}

		existing, err := tx.GetVote(ctx, articleID, userID)
		if err != nil {
			return apperr.Persistence("failed to load vote", err)
		}

		switch {
		case existing == nil:
			if _, err := tx.InsertVote(ctx, articleID, userID, voteType); err != nil {
				return apperr.Persistence("failed to record vote", err)
			}
			result.Operation = OpNew
			result.UserVote = &voteType
		case existing.VoteType == voteType:
			if err := tx.DeleteVote(ctx, existing.ID); err != nil {
				return apperr.Persistence("failed to remove vote", err)
			}
			result.Operation = OpRemoved
		default:
			if err := tx.UpdateVoteType(ctx, existing.ID, voteType); err != nil {
				return apperr.Persistence("failed to change vote", err)
			}
			result.Operation = OpChanged
			result.UserVote = &voteType
		}

		var awarded []string
		err = tx.Savepoint(ctx, "vote_bookkeeping", func() error {
			var err error
			awarded, err = s.voteBookkeeping(ctx, tx, userID, voteType, result.Operation)
			return err
		})
		if err != nil {
			s.logger.Warn("vote bookkeeping failed",
				"user", userID, "article", articleID, "operation", result.Operation, "error", err)
		} else {
			result.AwardedBadges = awarded
		}

		counts, err := tx.GetVoteCounts(ctx, articleID)
		if err != nil {
			return apperr.Persistence("failed to count votes", err)
		}
		result.Upvotes = counts.Upvotes
		result.Downvotes = counts.Downvotes
		return nil
	})
	if err != nil {
		if apperr.KindOf(err) == apperr.KindInternal {
			err = apperr.Persistence("failed to record vote", err)
		}
		return nil, err
	}

	metrics.Votes.WithLabelValues(string(result.Operation)).Inc()
	for _, name := range result.AwardedBadges {
		metrics.BadgesAwarded.WithLabelValues(name).Inc()
	}
	return result, nil
}

func (s *Service) voteBookkeeping(ctx context.Context, tx *database.Tx, userID string, voteType database.VoteType, op Operation) ([]string, error) {
	if op == OpNew {
		delta := UpvoteReputation
		if voteType == database.Downvote {
			delta = DownvoteReputation
		}
		if err := tx.AddReputation(ctx, userID, delta); err != nil {
			return nil, fmt.Errorf("adding reputation: %w", err)
		}
	}

	total, err := tx.CountVotesByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("counting votes: %w", err)
	}

	var awarded []string
	for _, m := range voteMilestones {
		if total < m.votes {
			continue
		}
		granted, err := grantBadge(ctx, tx, userID, m.badge)
		if err != nil {
			return nil, err
		}
		if granted {
			awarded = append(awarded, m.badge)
		}
	}
	return awarded, nil
}

// grantBadge awards a catalog badge by name. Holding it already is a no-op.
func grantBadge(ctx context.Context, tx *database.Tx, userID, name string) (bool, error) {
	badge, err := tx.GetBadgeByName(ctx, name)
	if err != nil {
		return false, fmt.Errorf("loading badge %q: %w", name, err)
	}
	if badge == nil {
		return false, apperr.NotFound(fmt.Sprintf("badge %q not in catalog", name))
	}
	granted, err := tx.GrantBadge(ctx, userID, badge.ID)
	if err != nil {
		return false, fmt.Errorf("granting badge %q: %w", name, err)
	}
	return granted, nil
}

// RecordLogin counts a sign-in toward the user's daily streak. A second
// sign-in on the same day changes nothing. A sign-in the day after the last
// counted one extends the streak; any longer gap restarts it at 1. Landing
// exactly on 3 or 7 awards the matching streak badge.
func (s *Service) RecordLogin(ctx context.Context, userID string) (*StreakResult, error) {
	if userID == "" {
		return nil, apperr.Unauthorized("authentication required")
	}

	today := s.now().In(s.loc)
	todayStr := today.Format(database.DateLayout)

	result := &StreakResult{}
	err := s.db.WithTx(ctx, func(tx *database.Tx) error {
		if err := tx.EnsureProfile(ctx, userID); err != nil {
			return apperr.Persistence("failed to create profile", err)
		}
		p, err := tx.GetProfile(ctx, userID)
		if err != nil || p == nil {
			return apperr.Persistence("failed to load profile", err)
		}

		streak, counted := nextStreak(p.LastLoginDate, p.DailyStreak, today)
		result.Streak = streak
		result.Counted = counted
		if !counted {
			return nil
		}

		if err := tx.UpdateStreak(ctx, userID, streak, todayStr); err != nil {
			return apperr.Persistence("failed to update streak", err)
		}

		name, ok := streakBadges[streak]
		if !ok {
			return nil
		}
		var granted bool
		err = tx.Savepoint(ctx, "streak_badge", func() error {
			var err error
			granted, err = grantBadge(ctx, tx, userID, name)
			return err
		})
		if err != nil {
			s.logger.Warn("streak badge grant failed", "user", userID, "badge", name, "error", err)
		} else if granted {
			result.AwardedBadge = name
		}
		return nil
	})
	if err != nil {
		metrics.Logins.WithLabelValues("error").Inc()
		if apperr.KindOf(err) == apperr.KindInternal {
			err = apperr.Persistence("failed to record login", err)
		}
		return nil, err
	}

	if result.Counted {
		metrics.Logins.WithLabelValues("counted").Inc()
	} else {
		metrics.Logins.WithLabelValues("repeat").Inc()
	}
	if result.AwardedBadge != "" {
		metrics.BadgesAwarded.WithLabelValues(result.AwardedBadge).Inc()
	}
	return result, nil
}

// nextStreak returns the streak after a sign-in on today and whether the
// sign-in counted.
func nextStreak(lastLogin *string, streak int, today time.Time) (int, bool) {
	todayStr := today.Format(database.DateLayout)
	if lastLogin == nil {
		return 1, true
	}
	if *lastLogin == todayStr {
		return streak, false
	}
	yesterday := today.AddDate(0, 0, -1).Format(database.DateLayout)
	if *lastLogin == yesterday {
		return streak + 1, true
	}
	return 1, true
}

// Badges returns a user's earned badges, newest first, with profile stats.
// A user without a profile gets zero stats.
func (s *Service) Badges(ctx context.Context, userID string) (*BadgeSummary, error) {
	if userID == "" {
		return nil, apperr.Unauthorized("authentication required")
	}

	badges, err := s.db.ListUserBadges(ctx, userID)
	if err != nil {
		return nil, apperr.Persistence("failed to load badges", err)
	}
	p, err := s.db.GetProfile(ctx, userID)
	if err != nil {
		return nil, apperr.Persistence("failed to load profile", err)
	}

	summary := &BadgeSummary{Badges: badges}
	if p != nil {
		summary.Profile = ProfileStats{
			ReputationScore: p.ReputationScore,
			TotalBadges:     p.TotalBadges,
			DailyStreak:     p.DailyStreak,
		}
	}
	return summary, nil
}
