package billing

import (
	"context"
	"fmt"
	"testing"
	"time"

	"educhain/internal/storage/record"
	"educhain/pkg/errors"
)

func addCerts(t *testing.T, stores *record.Stores, instID string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		cert := &record.Certificate{
			ID:             fmt.Sprintf("%s-cert-%d", instID, i),
			StudentAddress: "0x01",
			StudentName:    "Student",
			CourseName:     "Course",
			CompletionDate: time.Now().UTC(),
			InstitutionID:  instID,
			IsValid:        true,
		}
		if err := stores.Certificates.Create(context.Background(), cert); err != nil {
			t.Fatalf("seed certificate failed: %v", err)
		}
	}
}

func TestCurrentPlanDefaultsToFreeTrial(t *testing.T) {
	ctx := context.Background()
	svc := NewService(record.NewMemoryStores())

	plan, sub, err := svc.CurrentPlan(ctx, "inst-1")
	if err != nil {
		t.Fatalf("CurrentPlan failed: %v", err)
	}
	if plan.ID != FreeTrialID || sub != nil {
		t.Errorf("got plan=%s sub=%v, want free trial without subscription", plan.ID, sub)
	}
}

func TestSubscribeAndCheckUsage(t *testing.T) {
	ctx := context.Background()
	stores := record.NewMemoryStores()
	svc := NewService(stores)

	sub, err := svc.Subscribe(ctx, "inst-1", "basic", "card")
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	if sub.PlanID != "basic" || sub.Status != record.SubscriptionActive {
		t.Errorf("subscription = %+v", sub)
	}

	payments, err := svc.Payments(ctx, "inst-1")
	if err != nil || len(payments) != 1 {
		t.Fatalf("payments = %d, %v; want 1", len(payments), err)
	}
	if payments[0].Amount != 29.99 {
		t.Errorf("payment amount = %v, want 29.99", payments[0].Amount)
	}

	addCerts(t, stores, "inst-1", 3)
	u, err := svc.CheckUsage(ctx, "inst-1")
	if err != nil {
		t.Fatalf("CheckUsage failed: %v", err)
	}
	if u.Used != 3 || u.Limit != 100 || u.Remaining != 97 || !u.Allowed {
		t.Errorf("usage = %+v", u)
	}
}

func TestCheckUsageBlocksAtLimit(t *testing.T) {
	ctx := context.Background()
	stores := record.NewMemoryStores()
	svc := NewService(stores)

	// 试用额度 10 张
	addCerts(t, stores, "inst-1", 10)
	u, err := svc.CheckUsage(ctx, "inst-1")
	if err != nil {
		t.Fatalf("CheckUsage failed: %v", err)
	}
	if u.Allowed || u.Remaining != 0 {
		t.Errorf("usage at limit = %+v, want blocked", u)
	}
}

func TestCheckUsageUnlimitedPlan(t *testing.T) {
	ctx := context.Background()
	stores := record.NewMemoryStores()
	svc := NewService(stores)

	if _, err := svc.Subscribe(ctx, "inst-1", "enterprise", "card"); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	addCerts(t, stores, "inst-1", 15)

	u, err := svc.CheckUsage(ctx, "inst-1")
	if err != nil {
		t.Fatalf("CheckUsage failed: %v", err)
	}
	if !u.Allowed || u.Limit != -1 || u.Remaining != -1 {
		t.Errorf("unlimited usage = %+v", u)
	}
}

func TestSubscribeSwitchesPlan(t *testing.T) {
	ctx := context.Background()
	stores := record.NewMemoryStores()
	svc := NewService(stores)

	if _, err := svc.Subscribe(ctx, "inst-1", "basic", "card"); err != nil {
		t.Fatalf("first Subscribe failed: %v", err)
	}
	if _, err := svc.Subscribe(ctx, "inst-1", "professional", "card"); err != nil {
		t.Fatalf("second Subscribe failed: %v", err)
	}

	plan, _, err := svc.CurrentPlan(ctx, "inst-1")
	if err != nil {
		t.Fatalf("CurrentPlan failed: %v", err)
	}
	if plan.ID != "professional" {
		t.Errorf("plan = %s, want professional", plan.ID)
	}
}

func TestSubscribeRejectsUnknownPlan(t *testing.T) {
	ctx := context.Background()
	svc := NewService(record.NewMemoryStores())

	if _, err := svc.Subscribe(ctx, "inst-1", "platinum", "card"); !errors.Is(err, errors.ErrInvalidArg) {
		t.Fatalf("expected ErrInvalidArg, got %v", err)
	}
	if _, err := svc.Subscribe(ctx, "inst-1", FreeTrialID, "card"); !errors.Is(err, errors.ErrInvalidArg) {
		t.Fatalf("free trial must not be purchasable, got %v", err)
	}
}

func TestCancelSubscription(t *testing.T) {
	ctx := context.Background()
	stores := record.NewMemoryStores()
	svc := NewService(stores)

	if _, err := svc.Subscribe(ctx, "inst-1", "basic", "card"); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	if err := svc.Cancel(ctx, "inst-1"); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}

	plan, _, err := svc.CurrentPlan(ctx, "inst-1")
	if err != nil {
		t.Fatalf("CurrentPlan failed: %v", err)
	}
	if plan.ID != FreeTrialID {
		t.Errorf("plan after cancel = %s, want free trial", plan.ID)
	}
	if err := svc.Cancel(ctx, "inst-1"); !errors.IsNotFound(err) {
		t.Errorf("second cancel should be ErrNotFound, got %v", err)
	}
}
