package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/craftline/api/internal/domain"
)

type stubHealthRepo struct {
	collectFn func(context.Context) (domain.SystemHealthReport, error)
}

func (s *stubHealthRepo) Collect(ctx context.Context) (domain.SystemHealthReport, error) {
	if s.collectFn != nil {
		return s.collectFn(ctx)
	}
	return domain.SystemHealthReport{}, nil
}

func newTestSystemService(t *testing.T, health *stubHealthRepo, build BuildInfo) SystemService {
	t.Helper()
	svc, err := NewSystemService(SystemServiceDeps{
		HealthRepository: health,
		Clock: func() time.Time {
			return time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
		},
		Build: build,
	})
	if err != nil {
		t.Fatalf("NewSystemService: %v", err)
	}
	return svc
}

func TestSystemServiceHealthReportMergesBuildMetadata(t *testing.T) {
	health := &stubHealthRepo{
		collectFn: func(context.Context) (domain.SystemHealthReport, error) {
			return domain.SystemHealthReport{
				Checks: map[string]domain.SystemHealthCheck{
					"firestore": {Status: domain.HealthStatusOK},
				},
			}, nil
		},
	}
	build := BuildInfo{
		Version:     "1.4.0",
		CommitSHA:   "abc1234",
		Environment: "staging",
		StartedAt:   time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC),
	}
	svc := newTestSystemService(t, health, build)

	report, err := svc.HealthReport(context.Background())
	if err != nil {
		t.Fatalf("HealthReport: %v", err)
	}
	if report.Status != domain.HealthStatusOK {
		t.Fatalf("expected ok status, got %q", report.Status)
	}
	if report.Version != "1.4.0" || report.CommitSHA != "abc1234" || report.Environment != "staging" {
		t.Fatalf("expected build metadata merged, got %+v", report)
	}
	if report.Uptime != time.Hour {
		t.Fatalf("expected 1h uptime, got %v", report.Uptime)
	}
	if report.GeneratedAt.IsZero() {
		t.Fatalf("expected GeneratedAt stamped")
	}
}

func TestSystemServiceHealthReportDerivesStatus(t *testing.T) {
	cases := []struct {
		name   string
		checks map[string]domain.SystemHealthCheck
		want   string
	}{
		{"all ok", map[string]domain.SystemHealthCheck{
			"firestore": {Status: domain.HealthStatusOK},
			"pubsub":    {Status: domain.HealthStatusOK},
		}, domain.HealthStatusOK},
		{"one degraded", map[string]domain.SystemHealthCheck{
			"firestore": {Status: domain.HealthStatusOK},
			"pubsub":    {Status: domain.HealthStatusDegraded},
		}, domain.HealthStatusDegraded},
		{"error wins", map[string]domain.SystemHealthCheck{
			"firestore": {Status: domain.HealthStatusError},
			"pubsub":    {Status: domain.HealthStatusDegraded},
		}, domain.HealthStatusError},
		{"no checks", nil, domain.HealthStatusOK},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			health := &stubHealthRepo{
				collectFn: func(context.Context) (domain.SystemHealthReport, error) {
					return domain.SystemHealthReport{Checks: tc.checks}, nil
				},
			}
			svc := newTestSystemService(t, health, BuildInfo{})

			report, err := svc.HealthReport(context.Background())
			if err != nil {
				t.Fatalf("HealthReport: %v", err)
			}
			if report.Status != tc.want {
				t.Fatalf("expected status %q, got %q", tc.want, report.Status)
			}
		})
	}
}

func TestSystemServiceHealthReportPropagatesCollectFailure(t *testing.T) {
	wantErr := errors.New("firestore unreachable")
	health := &stubHealthRepo{
		collectFn: func(context.Context) (domain.SystemHealthReport, error) {
			return domain.SystemHealthReport{}, wantErr
		},
	}
	svc := newTestSystemService(t, health, BuildInfo{})

	if _, err := svc.HealthReport(context.Background()); !errors.Is(err, wantErr) {
		t.Fatalf("expected collect failure surfaced, got %v", err)
	}
}

func TestSystemServiceHealthReportKeepsRepoStatus(t *testing.T) {
	health := &stubHealthRepo{
		collectFn: func(context.Context) (domain.SystemHealthReport, error) {
			return domain.SystemHealthReport{
				Status: domain.HealthStatusDegraded,
				Checks: map[string]domain.SystemHealthCheck{
					"firestore": {Status: domain.HealthStatusOK},
				},
			}, nil
		},
	}
	svc := newTestSystemService(t, health, BuildInfo{})

	report, err := svc.HealthReport(context.Background())
	if err != nil {
		t.Fatalf("HealthReport: %v", err)
	}
	if report.Status != domain.HealthStatusDegraded {
		t.Fatalf("expected repo-provided status preserved, got %q", report.Status)
	}
}
