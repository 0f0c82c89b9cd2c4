package record

import (
	"context"
	"testing"
	"time"

	"educhain/pkg/errors"
)

func TestMemoryInstitutionStore(t *testing.T) {
	ctx := context.Background()
	stores := NewMemoryStores()

	inst := &Institution{
		ID:            "inst-1",
		Name:          "MIT",
		Email:         "Admin@MIT.edu",
		WalletAddress: "0xAbC0000000000000000000000000000000000001",
	}
	if err := stores.Institutions.Create(ctx, inst); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if inst.CreatedAt.IsZero() || inst.UpdatedAt.IsZero() {
		t.Error("expected timestamps to be set on create")
	}

	// 邮箱与钱包地址都唯一，大小写不敏感
	dup := &Institution{ID: "inst-2", Email: "admin@mit.edu", WalletAddress: "0x02"}
	if err := stores.Institutions.Create(ctx, dup); !errors.Is(err, errors.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate on email, got %v", err)
	}
	dup = &Institution{ID: "inst-2", Email: "other@mit.edu", WalletAddress: "0xabc0000000000000000000000000000000000001"}
	if err := stores.Institutions.Create(ctx, dup); !errors.Is(err, errors.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate on wallet, got %v", err)
	}

	got, err := stores.Institutions.GetByWallet(ctx, "0xABC0000000000000000000000000000000000001")
	if err != nil {
		t.Fatalf("GetByWallet failed: %v", err)
	}
	if got.ID != "inst-1" {
		t.Errorf("GetByWallet returned %s, want inst-1", got.ID)
	}
	if _, err := stores.Institutions.GetByEmail(ctx, "admin@mit.edu"); err != nil {
		t.Errorf("GetByEmail failed: %v", err)
	}
	if _, err := stores.Institutions.Get(ctx, "missing"); !errors.IsNotFound(err) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	got.Ledger.Registered = true
	if err := stores.Institutions.Update(ctx, got); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	reg := true
	list, err := stores.Institutions.List(ctx, &InstitutionFilter{LedgerRegistered: &reg})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("filtered list returned %d institutions, want 1", len(list))
	}
}

func TestMemoryCertificateStore(t *testing.T) {
	ctx := context.Background()
	stores := NewMemoryStores()

	token := int64(42)
	now := time.Now().UTC()
	cert := &Certificate{
		ID:             "cert-1",
		StudentAddress: "0xDeF0000000000000000000000000000000000002",
		StudentName:    "Alice Zhang",
		StudentID:      "s-100",
		CourseName:     "Distributed Systems",
		CompletionDate: now,
		InstitutionID:  "inst-1",
		ContentHash:    "QmHash1",
		IsValid:        true,
		Ledger: CertificateLedgerState{
			IsMinted: true,
			TokenID:  &token,
			MintedAt: &now,
		},
	}
	if err := stores.Certificates.Create(ctx, cert); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err := stores.Certificates.GetByTokenID(ctx, 42)
	if err != nil {
		t.Fatalf("GetByTokenID failed: %v", err)
	}
	if got.ID != "cert-1" {
		t.Errorf("GetByTokenID returned %s, want cert-1", got.ID)
	}
	if _, err := stores.Certificates.GetByTokenID(ctx, 43); !errors.IsNotFound(err) {
		t.Errorf("expected ErrNotFound for unknown token, got %v", err)
	}
	if _, err := stores.Certificates.GetByContentHash(ctx, "QmHash1"); err != nil {
		t.Errorf("GetByContentHash failed: %v", err)
	}

	// 学生地址查询大小写不敏感
	list, err := stores.Certificates.ListByStudent(ctx, "0xdef0000000000000000000000000000000000002")
	if err != nil {
		t.Fatalf("ListByStudent failed: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("ListByStudent returned %d certs, want 1", len(list))
	}

	exists, err := stores.Certificates.ExistsIssuance(ctx, "inst-1", "s-100", "distributed systems")
	if err != nil || !exists {
		t.Errorf("ExistsIssuance = %v, %v; want true", exists, err)
	}
	exists, _ = stores.Certificates.ExistsIssuance(ctx, "inst-1", "s-100", "Other Course")
	if exists {
		t.Error("ExistsIssuance should be false for other course")
	}

	// 吊销后不再计入重复签发检查
	got.IsValid = false
	if err := stores.Certificates.Update(ctx, got); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	exists, _ = stores.Certificates.ExistsIssuance(ctx, "inst-1", "s-100", "Distributed Systems")
	if exists {
		t.Error("ExistsIssuance should ignore revoked certificates")
	}

	n, err := stores.Certificates.CountByInstitution(ctx, "inst-1")
	if err != nil || n != 1 {
		t.Errorf("CountByInstitution = %d, %v; want 1", n, err)
	}
}

func TestMemoryVerificationStore(t *testing.T) {
	ctx := context.Background()
	stores := NewMemoryStores()

	first := &VerificationRequest{
		ID:            "vr-1",
		InstitutionID: "inst-1",
		Status:        VerificationPending,
		SubmittedAt:   time.Now().UTC().Add(-time.Hour),
	}
	second := &VerificationRequest{
		ID:            "vr-2",
		InstitutionID: "inst-1",
		Status:        VerificationPending,
		SubmittedAt:   time.Now().UTC(),
	}
	if err := stores.Verifications.Create(ctx, first); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := stores.Verifications.Create(ctx, second); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// GetByInstitution 返回最新一次提交
	got, err := stores.Verifications.GetByInstitution(ctx, "inst-1")
	if err != nil {
		t.Fatalf("GetByInstitution failed: %v", err)
	}
	if got.ID != "vr-2" {
		t.Errorf("GetByInstitution returned %s, want vr-2", got.ID)
	}

	now := time.Now().UTC()
	got.Status = VerificationApproved
	got.ReviewedAt = &now
	got.ReviewedBy = "admin@educhain.com"
	if err := stores.Verifications.Update(ctx, got); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	pending, err := stores.Verifications.ListByStatus(ctx, VerificationPending)
	if err != nil {
		t.Fatalf("ListByStatus failed: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != "vr-1" {
		t.Errorf("pending list = %+v, want only vr-1", pending)
	}
}

func TestMemorySubscriptionAndPaymentStores(t *testing.T) {
	ctx := context.Background()
	stores := NewMemoryStores()

	if _, err := stores.Subscriptions.GetActiveByInstitution(ctx, "inst-1"); !errors.IsNotFound(err) {
		t.Fatalf("expected ErrNotFound without subscription, got %v", err)
	}

	sub := &Subscription{
		ID:               "sub-1",
		InstitutionID:    "inst-1",
		PlanID:           "professional",
		Status:           SubscriptionActive,
		CurrentPeriodEnd: time.Now().UTC().AddDate(0, 1, 0),
	}
	if err := stores.Subscriptions.Create(ctx, sub); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	got, err := stores.Subscriptions.GetActiveByInstitution(ctx, "inst-1")
	if err != nil {
		t.Fatalf("GetActiveByInstitution failed: %v", err)
	}
	if got.PlanID != "professional" {
		t.Errorf("active plan = %s, want professional", got.PlanID)
	}

	now := time.Now().UTC()
	got.Status = SubscriptionCancelled
	got.CancelledAt = &now
	if err := stores.Subscriptions.Update(ctx, got); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if _, err := stores.Subscriptions.GetActiveByInstitution(ctx, "inst-1"); !errors.IsNotFound(err) {
		t.Errorf("expected ErrNotFound after cancel, got %v", err)
	}

	if err := stores.Payments.Create(ctx, &Payment{
		ID: "pay-1", InstitutionID: "inst-1", PlanID: "professional",
		Amount: 99.99, Currency: "USD", Status: "succeeded",
	}); err != nil {
		t.Fatalf("Payment create failed: %v", err)
	}
	payments, err := stores.Payments.ListByInstitution(ctx, "inst-1")
	if err != nil || len(payments) != 1 {
		t.Errorf("payments = %d, %v; want 1", len(payments), err)
	}
}
