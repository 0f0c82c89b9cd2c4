package reconcile

import (
	"context"
	"testing"
	"time"

	"educhain/internal/ledger"
	"educhain/internal/storage/record"
	"educhain/pkg/errors"
	"educhain/pkg/log"
)

func testLogger(t *testing.T) *log.Logger {
	t.Helper()
	logger, err := log.NewLogger(&log.Config{Level: "error", Format: "text"})
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	return logger
}

func testEngine(t *testing.T, client ledger.Client) (*Engine, *record.Stores) {
	t.Helper()
	stores := record.NewMemoryStores()
	e := NewEngine(stores, client, 2*time.Second, testLogger(t))
	// 测试不真等落块
	e.sleep = func(ctx context.Context, d time.Duration) {}
	return e, stores
}

func seedInstitution(t *testing.T, stores *record.Stores, wallet string) *record.Institution {
	t.Helper()
	inst := &record.Institution{
		ID:            "inst-1",
		Name:          "MIT",
		Email:         "admin@mit.edu",
		WalletAddress: wallet,
		IsVerified:    true,
	}
	if err := stores.Institutions.Create(context.Background(), inst); err != nil {
		t.Fatalf("seed institution failed: %v", err)
	}
	return inst
}

func seedCertificate(t *testing.T, stores *record.Stores, hash string) *record.Certificate {
	t.Helper()
	cert := &record.Certificate{
		ID:             "cert-1",
		StudentAddress: "0xDeF0000000000000000000000000000000000002",
		StudentName:    "Alice Zhang",
		StudentID:      "s-100",
		CourseName:     "Distributed Systems",
		Grade:          "A",
		CompletionDate: time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
		InstitutionID:  "inst-1",
		ContentHash:    hash,
		IsValid:        true,
	}
	if err := stores.Certificates.Create(context.Background(), cert); err != nil {
		t.Fatalf("seed certificate failed: %v", err)
	}
	return cert
}

const wallet = "0xAbC0000000000000000000000000000000000001"

func TestReconcileInstitutionRegistersWhenAbsent(t *testing.T) {
	ctx := context.Background()
	fake := ledger.NewFakeClient("0x01")
	fake.Connect(ctx)
	e, stores := testEngine(t, fake)
	inst := seedInstitution(t, stores, wallet)

	res, err := e.ReconcileInstitution(ctx, inst)
	if err != nil {
		t.Fatalf("ReconcileInstitution failed: %v", err)
	}
	if res.Outcome != OutcomeNewlySynced || res.Status != StatusRegistered {
		t.Errorf("got %+v, want newly_synced/registered", res)
	}
	if res.TxHash == "" {
		t.Error("expected tx hash on newly_synced")
	}

	got, _ := stores.Institutions.Get(ctx, inst.ID)
	if !got.Ledger.Registered || got.Ledger.TxHash == "" || got.Ledger.RegistrationDate == nil {
		t.Errorf("ledger state not persisted: %+v", got.Ledger)
	}
}

func TestReconcileInstitutionIdempotent(t *testing.T) {
	ctx := context.Background()
	fake := ledger.NewFakeClient("0x01")
	fake.Connect(ctx)
	e, stores := testEngine(t, fake)
	inst := seedInstitution(t, stores, wallet)

	if _, err := e.ReconcileInstitution(ctx, inst); err != nil {
		t.Fatalf("first reconcile failed: %v", err)
	}
	res, err := e.ReconcileInstitution(ctx, inst)
	if err != nil {
		t.Fatalf("second reconcile failed: %v", err)
	}
	if res.Outcome != OutcomeAlreadySynced {
		t.Errorf("second reconcile outcome = %s, want already_synced", res.Outcome)
	}
}

func TestReconcileInstitutionAdoptsLedgerState(t *testing.T) {
	ctx := context.Background()
	fake := ledger.NewFakeClient("0x01")
	fake.Connect(ctx)
	// 链上已注册已授权，链下一无所知
	fake.SeedInstitution(wallet, "MIT", true)
	e, stores := testEngine(t, fake)
	inst := seedInstitution(t, stores, wallet)

	res, err := e.ReconcileInstitution(ctx, inst)
	if err != nil {
		t.Fatalf("ReconcileInstitution failed: %v", err)
	}
	if res.Outcome != OutcomeAlreadySynced || res.Status != StatusAlreadyAuthorized {
		t.Errorf("got %+v, want already_synced/already_authorized", res)
	}
	got, _ := stores.Institutions.Get(ctx, inst.ID)
	if !got.Ledger.Registered || !got.Ledger.Authorized {
		t.Errorf("local state not converged: %+v", got.Ledger)
	}
}

func TestReconcileInstitutionDegradedWithoutLedger(t *testing.T) {
	ctx := context.Background()
	e, stores := testEngine(t, nil)
	inst := seedInstitution(t, stores, wallet)

	res, err := e.ReconcileInstitution(ctx, inst)
	if err != nil {
		t.Fatalf("ReconcileInstitution failed: %v", err)
	}
	if res.Outcome != OutcomeDegraded {
		t.Errorf("outcome = %s, want degraded_no_ledger", res.Outcome)
	}
	got, _ := stores.Institutions.Get(ctx, inst.ID)
	if got.Ledger.Registered {
		t.Error("degraded reconcile must not mark registered")
	}
	if got.Ledger.LastError == "" {
		t.Error("expected last error recorded in degraded mode")
	}
}

func TestReconcileInstitutionQueryFailureDoesNotRegister(t *testing.T) {
	ctx := context.Background()
	fake := ledger.NewFakeClient("0x01")
	fake.Connect(ctx)
	fake.FailNext["query_institution"] = errors.ErrLedgerUnavailable
	e, stores := testEngine(t, fake)
	inst := seedInstitution(t, stores, wallet)

	res, err := e.ReconcileInstitution(ctx, inst)
	if err == nil {
		t.Fatal("expected error when ledger query fails")
	}
	if res.Outcome != OutcomeFailed {
		t.Errorf("outcome = %s, want failed", res.Outcome)
	}
	// 查询失败不能触发盲注册
	if _, qerr := fake.QueryInstitution(ctx, wallet); !errors.IsNotFound(qerr) {
		t.Error("query failure must not blind-register the institution")
	}
}

func TestReconcileInstitutionRegisterRaceLost(t *testing.T) {
	ctx := context.Background()
	fake := ledger.NewFakeClient("0x01")
	fake.Connect(ctx)
	fake.FailNext["query_institution"] = errors.ErrNotFound
	// 查询说不存在，注册时别人已抢先
	fake.SeedInstitution(wallet, "MIT", false)
	e, stores := testEngine(t, fake)
	inst := seedInstitution(t, stores, wallet)

	res, err := e.ReconcileInstitution(ctx, inst)
	if err != nil {
		t.Fatalf("ReconcileInstitution failed: %v", err)
	}
	if res.Outcome != OutcomeAlreadySynced {
		t.Errorf("lost race should settle as already_synced, got %s", res.Outcome)
	}
	got, _ := stores.Institutions.Get(ctx, inst.ID)
	if !got.Ledger.Registered {
		t.Error("expected registered after losing race")
	}
}

func TestAuthorizeInstitutionRequiresRegistration(t *testing.T) {
	ctx := context.Background()
	fake := ledger.NewFakeClient("0x01")
	fake.Connect(ctx)
	e, stores := testEngine(t, fake)
	inst := seedInstitution(t, stores, wallet)

	// 未注册的机构不能直接授权，也不该被顺手注册
	res, err := e.AuthorizeInstitution(ctx, inst)
	if !errors.Is(err, errors.ErrLedgerRejected) {
		t.Fatalf("err = %v, want ErrLedgerRejected", err)
	}
	if res.Outcome != OutcomeFailed {
		t.Errorf("outcome = %s, want failed", res.Outcome)
	}
	if _, qerr := fake.QueryInstitution(ctx, wallet); !errors.IsNotFound(qerr) {
		t.Error("authorize must not register the institution as a side effect")
	}
}

func TestEnsureAuthorizedFullChain(t *testing.T) {
	ctx := context.Background()
	fake := ledger.NewFakeClient("0x01")
	fake.Connect(ctx)
	e, stores := testEngine(t, fake)
	inst := seedInstitution(t, stores, wallet)

	// 未注册：注册 + 授权一次完成
	res, err := e.EnsureAuthorized(ctx, inst)
	if err != nil {
		t.Fatalf("EnsureAuthorized failed: %v", err)
	}
	if res.Outcome != OutcomeNewlySynced || res.Status != StatusRegistered {
		t.Errorf("got %+v, want newly_synced/registered", res)
	}

	got, _ := stores.Institutions.Get(ctx, inst.ID)
	if !got.Ledger.Registered || !got.Ledger.Authorized {
		t.Errorf("expected registered and authorized: %+v", got.Ledger)
	}
	if got.Ledger.AuthTxHash == "" || got.Ledger.AuthorizationDate == nil {
		t.Errorf("authorization evidence missing: %+v", got.Ledger)
	}

	// 再收敛幂等
	res, err = e.EnsureAuthorized(ctx, got)
	if err != nil {
		t.Fatalf("second EnsureAuthorized failed: %v", err)
	}
	if res.Outcome != OutcomeAlreadySynced || res.Status != StatusAlreadyAuthorized {
		t.Errorf("got %+v, want already_synced/already_authorized", res)
	}
}

func TestAuthorizeInstitutionRegisteredNotAuthorized(t *testing.T) {
	ctx := context.Background()
	fake := ledger.NewFakeClient("0x01")
	fake.Connect(ctx)
	fake.SeedInstitution(wallet, "MIT", false)
	e, stores := testEngine(t, fake)
	inst := seedInstitution(t, stores, wallet)

	res, err := e.AuthorizeInstitution(ctx, inst)
	if err != nil {
		t.Fatalf("AuthorizeInstitution failed: %v", err)
	}
	if res.Outcome != OutcomeNewlySynced || res.Status != StatusAuthorized {
		t.Errorf("got %+v, want newly_synced/authorized", res)
	}
}

func TestReconcileCertificateMints(t *testing.T) {
	ctx := context.Background()
	fake := ledger.NewFakeClient("0x01")
	fake.Connect(ctx)
	fake.SeedInstitution(wallet, "MIT", true)
	e, stores := testEngine(t, fake)
	inst := seedInstitution(t, stores, wallet)
	inst.Ledger.Registered = true
	inst.Ledger.Authorized = true
	stores.Institutions.Update(ctx, inst)
	cert := seedCertificate(t, stores, "QmHash1")

	res, err := e.ReconcileCertificate(ctx, cert)
	if err != nil {
		t.Fatalf("ReconcileCertificate failed: %v", err)
	}
	if res.Outcome != OutcomeNewlySynced || res.TokenID == nil {
		t.Fatalf("got %+v, want newly_synced with token", res)
	}

	got, _ := stores.Certificates.Get(ctx, cert.ID)
	if !got.Ledger.IsMinted || got.Ledger.TokenID == nil {
		t.Fatalf("mint state not persisted: %+v", got.Ledger)
	}
	if *got.Ledger.TokenID != *res.TokenID {
		t.Errorf("persisted token %d != result token %d", *got.Ledger.TokenID, *res.TokenID)
	}
	if got.Ledger.MintedTo != cert.StudentAddress || got.Ledger.MintedAt == nil {
		t.Errorf("mint evidence missing: %+v", got.Ledger)
	}
}

func TestReconcileCertificateAuthorizesIssuerFirst(t *testing.T) {
	ctx := context.Background()
	fake := ledger.NewFakeClient("0x01")
	fake.Connect(ctx)
	e, stores := testEngine(t, fake)
	seedInstitution(t, stores, wallet) // 链上没有任何状态
	cert := seedCertificate(t, stores, "QmHash1")

	res, err := e.ReconcileCertificate(ctx, cert)
	if err != nil {
		t.Fatalf("ReconcileCertificate failed: %v", err)
	}
	if res.Outcome != OutcomeNewlySynced {
		t.Errorf("outcome = %s, want newly_synced", res.Outcome)
	}
	st, err := fake.QueryInstitution(ctx, wallet)
	if err != nil || !st.Authorized {
		t.Errorf("issuer should be registered and authorized on the way, got %+v, %v", st, err)
	}
}

func TestReconcileCertificateSkipsWithoutStudentAddress(t *testing.T) {
	ctx := context.Background()
	fake := ledger.NewFakeClient("0x01")
	fake.Connect(ctx)
	fake.SeedInstitution(wallet, "MIT", true)
	e, stores := testEngine(t, fake)
	seedInstitution(t, stores, wallet)
	cert := seedCertificate(t, stores, "QmHash1")
	cert.StudentAddress = ""
	stores.Certificates.Update(ctx, cert)

	res, err := e.ReconcileCertificate(ctx, cert)
	if err != nil {
		t.Fatalf("ReconcileCertificate failed: %v", err)
	}
	if res.Outcome != OutcomeDegraded || res.Status != StatusSkippedNoWallet {
		t.Errorf("got %+v, want degraded/%s", res, StatusSkippedNoWallet)
	}
	got, _ := stores.Certificates.Get(ctx, cert.ID)
	if got.Ledger.IsMinted {
		t.Error("certificate without student address must stay off ledger")
	}
	if _, lerr := fake.VerifyCertificateByContentHash(ctx, "QmHash1"); !errors.IsNotFound(lerr) {
		t.Error("no mint expected for an addressless certificate")
	}
}

func TestReconcileCertificateIdempotent(t *testing.T) {
	ctx := context.Background()
	fake := ledger.NewFakeClient("0x01")
	fake.Connect(ctx)
	fake.SeedInstitution(wallet, "MIT", true)
	e, stores := testEngine(t, fake)
	seedInstitution(t, stores, wallet)
	cert := seedCertificate(t, stores, "QmHash1")

	first, err := e.ReconcileCertificate(ctx, cert)
	if err != nil {
		t.Fatalf("first reconcile failed: %v", err)
	}
	second, err := e.ReconcileCertificate(ctx, cert)
	if err != nil {
		t.Fatalf("second reconcile failed: %v", err)
	}
	if second.Outcome != OutcomeAlreadySynced {
		t.Errorf("second outcome = %s, want already_synced", second.Outcome)
	}
	if *second.TokenID != *first.TokenID {
		t.Errorf("token changed across reconciles: %d vs %d", *first.TokenID, *second.TokenID)
	}
}

func TestReconcileCertificateAdoptsExistingMint(t *testing.T) {
	ctx := context.Background()
	fake := ledger.NewFakeClient("0x01")
	fake.Connect(ctx)
	fake.SeedInstitution(wallet, "MIT", true)
	// 同一内容哈希已被别的流程铸过
	pre, err := fake.IssueCertificate(ctx, wallet, ledger.IssueRequest{
		StudentAddress: "0xDeF0000000000000000000000000000000000002",
		CourseName:     "Distributed Systems",
		ContentHash:    "QmHash1",
	})
	if err != nil {
		t.Fatalf("pre-mint failed: %v", err)
	}

	e, stores := testEngine(t, fake)
	seedInstitution(t, stores, wallet)
	cert := seedCertificate(t, stores, "QmHash1")

	res, err := e.ReconcileCertificate(ctx, cert)
	if err != nil {
		t.Fatalf("ReconcileCertificate failed: %v", err)
	}
	if res.Outcome != OutcomeAlreadySynced {
		t.Errorf("outcome = %s, want already_synced", res.Outcome)
	}
	if res.TokenID == nil || *res.TokenID != pre.TokenID {
		t.Errorf("expected adopted token %d, got %+v", pre.TokenID, res.TokenID)
	}
	got, _ := stores.Certificates.Get(ctx, cert.ID)
	if !got.Ledger.IsMinted || got.Ledger.TokenID == nil || *got.Ledger.TokenID != pre.TokenID {
		t.Errorf("adoption not persisted: %+v", got.Ledger)
	}
}

func TestReconcileCertificateDegradedWithoutLedger(t *testing.T) {
	ctx := context.Background()
	e, stores := testEngine(t, nil)
	seedInstitution(t, stores, wallet)
	cert := seedCertificate(t, stores, "QmHash1")

	res, err := e.ReconcileCertificate(ctx, cert)
	if err != nil {
		t.Fatalf("ReconcileCertificate failed: %v", err)
	}
	if res.Outcome != OutcomeDegraded {
		t.Errorf("outcome = %s, want degraded_no_ledger", res.Outcome)
	}
	got, _ := stores.Certificates.Get(ctx, cert.ID)
	if got.Ledger.IsMinted || got.Ledger.TokenID != nil {
		t.Error("degraded reconcile must not fabricate mint state")
	}
}

func TestReconcileCertificateRepairsBrokenInvariant(t *testing.T) {
	ctx := context.Background()
	fake := ledger.NewFakeClient("0x01")
	fake.Connect(ctx)
	fake.SeedInstitution(wallet, "MIT", true)
	e, stores := testEngine(t, fake)
	seedInstitution(t, stores, wallet)
	cert := seedCertificate(t, stores, "QmHash1")

	// IsMinted 真但 TokenID 空：破坏不变式
	cert.Ledger.IsMinted = true
	cert.Ledger.TokenID = nil
	stores.Certificates.Update(ctx, cert)

	res, err := e.ReconcileCertificate(ctx, cert)
	if err != nil {
		t.Fatalf("ReconcileCertificate failed: %v", err)
	}
	if res.Outcome != OutcomeNewlySynced {
		t.Errorf("outcome = %s, want newly_synced after repair", res.Outcome)
	}
	got, _ := stores.Certificates.Get(ctx, cert.ID)
	if got.Ledger.IsMinted != (got.Ledger.TokenID != nil) {
		t.Errorf("invariant still broken: %+v", got.Ledger)
	}
}

func TestReconcileCertificateSyncsLedgerRevocation(t *testing.T) {
	ctx := context.Background()
	fake := ledger.NewFakeClient("0x01")
	fake.Connect(ctx)
	fake.SeedInstitution(wallet, "MIT", true)
	e, stores := testEngine(t, fake)
	seedInstitution(t, stores, wallet)
	cert := seedCertificate(t, stores, "QmHash1")

	if _, err := e.ReconcileCertificate(ctx, cert); err != nil {
		t.Fatalf("mint failed: %v", err)
	}
	// 链上被吊销，链下还认为有效
	if _, err := fake.RevokeCertificate(ctx, *cert.Ledger.TokenID); err != nil {
		t.Fatalf("ledger revoke failed: %v", err)
	}

	res, err := e.ReconcileCertificate(ctx, cert)
	if err != nil {
		t.Fatalf("ReconcileCertificate failed: %v", err)
	}
	if res.Outcome != OutcomeAlreadySynced {
		t.Errorf("outcome = %s, want already_synced", res.Outcome)
	}
	got, _ := stores.Certificates.Get(ctx, cert.ID)
	if got.IsValid {
		t.Error("local record should converge to revoked")
	}
}

func TestRevokeCertificate(t *testing.T) {
	ctx := context.Background()
	fake := ledger.NewFakeClient("0x01")
	fake.Connect(ctx)
	fake.SeedInstitution(wallet, "MIT", true)
	e, stores := testEngine(t, fake)
	seedInstitution(t, stores, wallet)
	cert := seedCertificate(t, stores, "QmHash1")

	if _, err := e.ReconcileCertificate(ctx, cert); err != nil {
		t.Fatalf("mint failed: %v", err)
	}

	res, err := e.RevokeCertificate(ctx, cert, "issued in error")
	if err != nil {
		t.Fatalf("RevokeCertificate failed: %v", err)
	}
	if res.Outcome != OutcomeNewlySynced || res.TxHash == "" {
		t.Errorf("got %+v, want newly_synced with tx", res)
	}

	got, _ := stores.Certificates.Get(ctx, cert.ID)
	if got.IsValid || got.RevokedAt == nil || got.RevokeReason != "issued in error" {
		t.Errorf("revocation not persisted: valid=%v revokedAt=%v reason=%q",
			got.IsValid, got.RevokedAt, got.RevokeReason)
	}
	if got.Ledger.RevokeTxHash != res.TxHash {
		t.Errorf("revoke tx hash = %q, want %q persisted", got.Ledger.RevokeTxHash, res.TxHash)
	}
	rec, _ := fake.VerifyCertificate(ctx, *got.Ledger.TokenID)
	if rec.Valid {
		t.Error("ledger record should be revoked")
	}

	// 重复吊销幂等
	res, err = e.RevokeCertificate(ctx, got, "again")
	if err != nil {
		t.Fatalf("second revoke failed: %v", err)
	}
	if res.Outcome != OutcomeAlreadySynced {
		t.Errorf("second revoke outcome = %s, want already_synced", res.Outcome)
	}
}

func TestRevokeCertificateKeepsLocalOnLedgerFailure(t *testing.T) {
	ctx := context.Background()
	fake := ledger.NewFakeClient("0x01")
	fake.Connect(ctx)
	fake.SeedInstitution(wallet, "MIT", true)
	e, stores := testEngine(t, fake)
	seedInstitution(t, stores, wallet)
	cert := seedCertificate(t, stores, "QmHash1")
	if _, err := e.ReconcileCertificate(ctx, cert); err != nil {
		t.Fatalf("mint failed: %v", err)
	}

	fake.FailNext["revoke_certificate"] = errors.Wrap(errors.ErrLedgerUnavailable, "gateway timeout")
	res, err := e.RevokeCertificate(ctx, cert, "fraud")
	if err == nil {
		t.Fatal("expected ledger revocation error")
	}
	if res.Outcome != OutcomeFailed {
		t.Errorf("outcome = %s, want failed", res.Outcome)
	}

	// 链上失败不回滚链下吊销
	got, _ := stores.Certificates.Get(ctx, cert.ID)
	if got.IsValid {
		t.Error("local invalidation must survive a ledger failure")
	}
	if got.RevokedAt == nil || got.RevokeReason != "fraud" {
		t.Errorf("revocation evidence missing: revokedAt=%v reason=%q", got.RevokedAt, got.RevokeReason)
	}
	if got.Ledger.LastError == "" {
		t.Error("ledger failure should be recorded in lastError")
	}
	if got.Ledger.RevokeTxHash != "" {
		t.Errorf("revoke tx hash = %q, want empty after failed ledger call", got.Ledger.RevokeTxHash)
	}
}

func TestRevokeCertificateDegradedWithoutLedger(t *testing.T) {
	ctx := context.Background()
	e, stores := testEngine(t, nil)
	seedInstitution(t, stores, wallet)
	cert := seedCertificate(t, stores, "QmHash1")
	token := int64(7)
	now := time.Now().UTC()
	cert.Ledger = record.CertificateLedgerState{IsMinted: true, TokenID: &token, MintedAt: &now}
	stores.Certificates.Update(ctx, cert)

	res, err := e.RevokeCertificate(ctx, cert, "fraud")
	if err != nil {
		t.Fatalf("RevokeCertificate failed: %v", err)
	}
	if res.Outcome != OutcomeDegraded {
		t.Errorf("outcome = %s, want degraded_no_ledger", res.Outcome)
	}
	got, _ := stores.Certificates.Get(ctx, cert.ID)
	if got.IsValid {
		t.Error("local revocation should still apply in degraded mode")
	}
	if got.Ledger.LastError == "" {
		t.Error("pending ledger revocation should be recorded")
	}
}
