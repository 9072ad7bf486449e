package tourney

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Standing is one ranked row: a player or a province and its score.
type Standing struct {
	BeneficiaryID string `json:"id"`
	Score         int64  `json:"score"`
}

// StandingsResult is delivered by RankAsync once the ranking is ready.
type StandingsResult struct {
	Standings []Standing
	Err       error
}

// RetryPolicy bounds how long membership lookups are retried before a ranking gives up.
type RetryPolicy struct {
	Interval time.Duration
	MaxTries uint
}

var DefaultMembershipRetry = RetryPolicy{Interval: 2 * time.Second, MaxTries: 3}

type StandingsEngine struct {
	progress   ProgressStore
	membership MembershipResolver
	retry      RetryPolicy
}

func NewStandingsEngine(progress ProgressStore, membership MembershipResolver, retry RetryPolicy) *StandingsEngine {
	if retry.MaxTries == 0 {
		retry.MaxTries = 1
	}
	return &StandingsEngine{progress: progress, membership: membership, retry: retry}
}

// Rank orders beneficiaries by score, highest first, breaking ties by id.
// In province mode players without a province do not count towards any score.
func (s *StandingsEngine) Rank(ctx context.Context, tournament string, mode TargetMode) ([]Standing, error) {
	scores := s.progress.GetAllProgress(tournament)
	if mode != TargetProvince {
		return sortStandings(scores), nil
	}
	if len(scores) == 0 {
		return []Standing{}, nil
	}

	groupOf, err := s.playerGroups(ctx)
	if err != nil {
		return nil, err
	}
	totals := make(map[string]int64)
	for playerID, score := range scores {
		groupID, ok := groupOf[playerID]
		if !ok {
			continue
		}
		totals[groupID] += score
	}
	return sortStandings(totals), nil
}

// RankAsync computes the ranking on its own goroutine. The channel receives exactly one result.
func (s *StandingsEngine) RankAsync(ctx context.Context, tournament string, mode TargetMode) <-chan StandingsResult {
	out := make(chan StandingsResult, 1)
	go func() {
		standings, err := s.Rank(ctx, tournament, mode)
		out <- StandingsResult{Standings: standings, Err: err}
	}()
	return out
}

// Top returns at most n leading standings.
func (s *StandingsEngine) Top(ctx context.Context, tournament string, mode TargetMode, n int) ([]Standing, error) {
	standings, err := s.Rank(ctx, tournament, mode)
	if err != nil {
		return nil, err
	}
	if n >= 0 && len(standings) > n {
		standings = standings[:n]
	}
	return standings, nil
}

func (s *StandingsEngine) playerGroups(ctx context.Context) (map[string]string, error) {
	groups, err := retryMembership(ctx, s.retry, func() ([]string, error) {
		return s.membership.ListGroups(ctx)
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(groups)

	groupOf := make(map[string]string)
	for _, groupID := range groups {
		members, err := retryMembership(ctx, s.retry, func() ([]string, error) {
			return s.membership.MembersOf(ctx, groupID)
		})
		if err != nil {
			return nil, err
		}
		for _, playerID := range members {
			if _, ok := groupOf[playerID]; !ok {
				groupOf[playerID] = groupID
			}
		}
	}
	return groupOf, nil
}

func retryMembership[T any](ctx context.Context, policy RetryPolicy, op func() (T, error)) (T, error) {
	result, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewConstantBackOff(policy.Interval)),
		backoff.WithMaxTries(policy.MaxTries),
	)
	if err != nil && !errors.Is(err, ErrMembershipNotReady) {
		err = fmt.Errorf("%w: %v", ErrMembershipNotReady, err)
	}
	return result, err
}

func sortStandings(scores map[string]int64) []Standing {
	standings := make([]Standing, 0, len(scores))
	for id, score := range scores {
		if score <= 0 {
			continue
		}
		standings = append(standings, Standing{BeneficiaryID: id, Score: score})
	}
	sort.Slice(standings, func(i, j int) bool {
		if standings[i].Score != standings[j].Score {
			return standings[i].Score > standings[j].Score
		}
		return standings[i].BeneficiaryID < standings[j].BeneficiaryID
	})
	return standings
}
