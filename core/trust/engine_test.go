package trust

import (
	"context"
	"errors"
	"testing"
	"time"

	"billing-trust/core/billing"
	apperrors "billing-trust/internal/errors"
)

type stubStore struct {
	rows       []billing.RawRow
	accounts   []string
	fetchErr   error
	fetchCalls int
}

func (s *stubStore) FetchBillingRows(_ context.Context, _ Scope) ([]billing.RawRow, error) {
	s.fetchCalls++
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	return s.rows, nil
}

func (s *stubStore) FetchExpectedAccountIDs(_ context.Context, _ []string, _ string) ([]string, error) {
	return s.accounts, nil
}

func cleanRow() billing.RawRow {
	return billing.RawRow{
		"BilledCost":        100.0,
		"ChargePeriodStart": "2025-06-01T00:00:00Z",
		"createdAt":         "2025-06-01T02:00:00Z",
		"ServiceName":       "compute",
		"SubAccountId":      "acct-1",
		"UploadId":          "u1",
		"ConsumedQuantity":  4.0,
		"ConsumedUnit":      "hours",
		"Tags": map[string]any{
			"owner":       "team-platform",
			"costcenter":  "cc-100",
			"environment": "prod",
			"project":     "atlas",
		},
	}
}

func TestAnalyzeEmptyUploadsSkipsStore(t *testing.T) {
	store := &stubStore{fetchErr: errors.New("must not be called")}
	e := NewEngine(store, nil, time.Minute, nil)

	a, err := e.Analyze(context.Background(), Scope{})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if store.fetchCalls != 0 {
		t.Error("store queried for an empty upload scope")
	}
	if a.Score != 0 || a.TotalRows != 0 || len(a.Buckets) != 0 {
		t.Errorf("zero analysis = score %v, rows %d, buckets %d", a.Score, a.TotalRows, len(a.Buckets))
	}
	if a.Buckets == nil {
		t.Error("buckets is nil, want empty slice")
	}
	if a.ConfidenceLevel != "low" {
		t.Errorf("confidence = %q, want low", a.ConfidenceLevel)
	}
}

func TestAnalyzeZeroRows(t *testing.T) {
	store := &stubStore{}
	e := NewEngine(store, nil, time.Minute, nil)

	a, err := e.Analyze(context.Background(), Scope{UploadIDs: []string{"u1"}})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if a.Score != 0 || a.TotalRows != 0 {
		t.Errorf("zero-row analysis = score %v, rows %d", a.Score, a.TotalRows)
	}
}

func TestAnalyzePropagatesStoreError(t *testing.T) {
	store := &stubStore{fetchErr: errors.New("connection refused")}
	e := NewEngine(store, nil, time.Minute, nil)

	_, err := e.Analyze(context.Background(), Scope{UploadIDs: []string{"u1"}})
	if err == nil {
		t.Fatal("store failure swallowed")
	}
	if !apperrors.IsType(err, apperrors.TypeStore) {
		t.Errorf("error type = %v, want store error", err)
	}
}

func TestAnalyzeSingleCleanRow(t *testing.T) {
	now := time.Date(2025, 6, 1, 6, 0, 0, 0, time.UTC)
	store := &stubStore{rows: []billing.RawRow{cleanRow()}, accounts: []string{"acct-1"}}
	e := NewEngine(store, nil, time.Minute, nil, WithClock(func() time.Time { return now }))

	a, err := e.Analyze(context.Background(), Scope{UploadIDs: []string{"u1"}})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if a.TotalRows != 1 {
		t.Fatalf("rows = %d, want 1", a.TotalRows)
	}
	if a.Score <= 90 {
		t.Errorf("trust score = %v, want > 90", a.Score)
	}
	if len(a.Buckets) != 1 || a.Buckets[0].Date != "2025-06-01" {
		t.Errorf("buckets = %+v, want single 2025-06-01 bucket", a.Buckets)
	}
	if a.Governance.Ingestion.ExpectedAccounts != 1 {
		t.Errorf("expected accounts = %d, want 1", a.Governance.Ingestion.ExpectedAccounts)
	}
}

func TestAnalyzeCachesWithinTTL(t *testing.T) {
	now := time.Date(2025, 6, 1, 6, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	store := &stubStore{rows: []billing.RawRow{cleanRow()}, accounts: []string{"acct-1"}}
	e := NewEngine(store, nil, 5*time.Minute, nil, WithClock(clock))

	scope := Scope{UploadIDs: []string{"u1"}}
	first, err := e.Analyze(context.Background(), scope)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	now = now.Add(time.Minute)
	second, err := e.Analyze(context.Background(), scope)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if first != second {
		t.Error("second call within TTL recomputed instead of returning the cached analysis")
	}
	if store.fetchCalls != 1 {
		t.Errorf("store fetched %d times, want 1", store.fetchCalls)
	}

	now = now.Add(10 * time.Minute)
	third, err := e.Analyze(context.Background(), scope)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if first == third {
		t.Error("stale snapshot served after TTL expiry")
	}
	if store.fetchCalls != 2 {
		t.Errorf("store fetched %d times after expiry, want 2", store.fetchCalls)
	}
}

func TestScopeFingerprintIgnoresUploadOrder(t *testing.T) {
	a := Scope{Provider: "aws", UploadIDs: []string{"u1", "u2"}}
	b := Scope{Provider: "aws", UploadIDs: []string{"u2", "u1"}}
	if a.Fingerprint() != b.Fingerprint() {
		t.Error("upload order changed the scope fingerprint")
	}
	c := Scope{Provider: "gcp", UploadIDs: []string{"u1", "u2"}}
	if a.Fingerprint() == c.Fingerprint() {
		t.Error("different providers share a fingerprint")
	}
}
