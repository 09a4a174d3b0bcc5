package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/opensource-finance/creditguard/internal/domain"
)

func newResult(id, userID string, level domain.RiskLevel, score int) *domain.FraudResult {
	return &domain.FraudResult{
		EvaluationID: id,
		UserID:       userID,
		RiskLevel:    level,
		TotalScore:   score,
		TriggeredRules: []domain.RuleTrigger{
			{RuleName: domain.RuleCountryRisk, Reason: "Transaction originated from high-risk country: AF", ScoreContribution: 40},
		},
		Timestamp:  time.Date(2024, 1, 15, 2, 0, 0, 123, time.UTC),
		DurationMs: 1,
	}
}

func TestSQLiteRepository(t *testing.T) {
	repo, err := New(domain.HistoryConfig{Enabled: true, MaxRows: 100})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	defer repo.Close()

	ctx := context.Background()

	t.Run("Ping", func(t *testing.T) {
		if err := repo.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	t.Run("SaveAndGetEvaluation", func(t *testing.T) {
		in := newResult("eval-001", "user-001", domain.RiskMedium, 40)
		in.Faults = []domain.RuleFault{{RuleName: domain.RuleVelocity, Error: "store closed"}}

		if err := repo.SaveEvaluation(ctx, in); err != nil {
			t.Fatalf("SaveEvaluation failed: %v", err)
		}

		got, err := repo.GetEvaluation(ctx, "eval-001")
		if err != nil {
			t.Fatalf("GetEvaluation failed: %v", err)
		}

		if got.UserID != in.UserID || got.RiskLevel != in.RiskLevel || got.TotalScore != in.TotalScore {
			t.Errorf("mismatched result: %+v", got)
		}
		if !got.Timestamp.Equal(in.Timestamp) {
			t.Errorf("expected timestamp %v, got %v", in.Timestamp, got.Timestamp)
		}
		if len(got.TriggeredRules) != 1 || got.TriggeredRules[0] != in.TriggeredRules[0] {
			t.Errorf("triggered rules not preserved: %+v", got.TriggeredRules)
		}
		if len(got.Faults) != 1 || got.Faults[0].RuleName != domain.RuleVelocity {
			t.Errorf("faults not preserved: %+v", got.Faults)
		}
	})

	t.Run("GetNotFound", func(t *testing.T) {
		_, err := repo.GetEvaluation(ctx, "missing")
		if !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("DuplicateID", func(t *testing.T) {
		if err := repo.SaveEvaluation(ctx, newResult("eval-001", "user-001", domain.RiskLow, 0)); err == nil {
			t.Error("expected error for duplicate evaluation id")
		}
	})

	t.Run("ListNewestFirst", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			repo.SaveEvaluation(ctx, newResult(fmt.Sprintf("list-%d", i), "user-list", domain.RiskLow, i))
		}
		repo.SaveEvaluation(ctx, newResult("other", "user-other", domain.RiskHigh, 100))

		results, err := repo.ListEvaluations(ctx, "user-list", 10)
		if err != nil {
			t.Fatalf("ListEvaluations failed: %v", err)
		}
		if len(results) != 3 {
			t.Fatalf("expected 3 results, got %d", len(results))
		}
		if results[0].EvaluationID != "list-2" || results[2].EvaluationID != "list-0" {
			t.Errorf("expected newest first, got %s..%s", results[0].EvaluationID, results[2].EvaluationID)
		}

		all, _ := repo.ListEvaluations(ctx, "", 2)
		if len(all) != 2 || all[0].EvaluationID != "other" {
			t.Errorf("unexpected unfiltered list: %+v", all)
		}
	})

	t.Run("ListUnknownUser", func(t *testing.T) {
		results, err := repo.ListEvaluations(ctx, "nobody", 10)
		if err != nil {
			t.Fatalf("ListEvaluations failed: %v", err)
		}
		if results == nil || len(results) != 0 {
			t.Errorf("expected empty non-nil list, got %v", results)
		}
	})
}

func TestRetention(t *testing.T) {
	repo, err := New(domain.HistoryConfig{Enabled: true, MaxRows: 5})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	defer repo.Close()

	ctx := context.Background()
	for i := 0; i < 12; i++ {
		if err := repo.SaveEvaluation(ctx, newResult(fmt.Sprintf("eval-%02d", i), "user-001", domain.RiskLow, 0)); err != nil {
			t.Fatalf("SaveEvaluation failed: %v", err)
		}
	}

	n, _ := repo.Count(ctx)
	if n != 5 {
		t.Errorf("expected 5 retained rows, got %d", n)
	}

	if _, err := repo.GetEvaluation(ctx, "eval-06"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected oldest rows pruned, got %v", err)
	}
	if _, err := repo.GetEvaluation(ctx, "eval-07"); err != nil {
		t.Errorf("expected eval-07 retained, got %v", err)
	}
}

func TestRepositoriesAreIsolated(t *testing.T) {
	a, _ := New(domain.HistoryConfig{Enabled: true})
	defer a.Close()
	b, _ := New(domain.HistoryConfig{Enabled: true})
	defer b.Close()

	ctx := context.Background()
	a.SaveEvaluation(ctx, newResult("only-in-a", "user-001", domain.RiskLow, 0))

	if _, err := b.GetEvaluation(ctx, "only-in-a"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected separate in-memory databases, got %v", err)
	}
}
