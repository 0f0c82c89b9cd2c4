// Copyright 2026 educhain-devs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package record

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"educhain/pkg/errors"
)

// NewPgStores 创建基于 PostgreSQL 的记录存储；各 store 共享连接池。
// 表结构由部署侧迁移管理。
func NewPgStores(ctx context.Context, dsn string) (*Stores, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Stores{
		Institutions:  &pgInstitutionStore{pool: pool},
		Certificates:  &pgCertificateStore{pool: pool},
		Verifications: &pgVerificationStore{pool: pool},
		Subscriptions: &pgSubscriptionStore{pool: pool},
		Payments:      &pgPaymentStore{pool: pool},
		closer:        pool.Close,
	}, nil
}

func nullStr(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func strOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func jsonOrNull(v interface{}) interface{} {
	b, err := json.Marshal(v)
	if err != nil || string(b) == "null" || string(b) == "[]" {
		return nil
	}
	return b
}

// pgInstitutionStore PostgreSQL 机构存储：institutions 表
type pgInstitutionStore struct {
	pool *pgxpool.Pool
}

const institutionColumns = `id, name, email, password_hash, wallet_address, registration_number,
	contact_info, documents, verification_status, is_verified,
	ledger_registered, ledger_authorized, ledger_tx_hash, ledger_auth_tx_hash,
	ledger_registration_date, ledger_authorization_date, ledger_last_error,
	created_at, updated_at`

func (s *pgInstitutionStore) Create(ctx context.Context, inst *Institution) error {
	now := time.Now().UTC()
	inst.CreatedAt = now
	inst.UpdatedAt = now

	_, err := s.pool.Exec(ctx, `
		INSERT INTO institutions (`+institutionColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`,
		inst.ID, inst.Name, strings.ToLower(inst.Email), inst.PasswordHash,
		inst.WalletAddress, nullStr(inst.RegistrationNumber),
		jsonOrNull(inst.ContactInfo), jsonOrNull(inst.Documents),
		string(inst.VerificationStatus), inst.IsVerified,
		inst.Ledger.Registered, inst.Ledger.Authorized,
		nullStr(inst.Ledger.TxHash), nullStr(inst.Ledger.AuthTxHash),
		inst.Ledger.RegistrationDate, inst.Ledger.AuthorizationDate,
		nullStr(inst.Ledger.LastError),
		inst.CreatedAt, inst.UpdatedAt,
	)
	if err != nil && strings.Contains(err.Error(), "duplicate key") {
		return errors.Wrapf(errors.ErrDuplicate, "institution %s already exists", inst.ID)
	}
	return err
}

func (s *pgInstitutionStore) Get(ctx context.Context, id string) (*Institution, error) {
	return s.getBy(ctx, "id = $1", id)
}

func (s *pgInstitutionStore) GetByEmail(ctx context.Context, email string) (*Institution, error) {
	return s.getBy(ctx, "email = $1", strings.ToLower(email))
}

func (s *pgInstitutionStore) GetByWallet(ctx context.Context, wallet string) (*Institution, error) {
	return s.getBy(ctx, "LOWER(wallet_address) = LOWER($1)", wallet)
}

func (s *pgInstitutionStore) getBy(ctx context.Context, where string, arg interface{}) (*Institution, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+institutionColumns+` FROM institutions WHERE `+where, arg)
	inst, err := scanInstitution(row)
	if err == pgx.ErrNoRows {
		return nil, errors.Wrap(errors.ErrNotFound, "institution not found")
	}
	return inst, err
}

func (s *pgInstitutionStore) Update(ctx context.Context, inst *Institution) error {
	inst.UpdatedAt = time.Now().UTC()
	tag, err := s.pool.Exec(ctx, `
		UPDATE institutions SET
			name = $2, email = $3, password_hash = $4, wallet_address = $5,
			registration_number = $6, contact_info = $7, documents = $8,
			verification_status = $9, is_verified = $10,
			ledger_registered = $11, ledger_authorized = $12,
			ledger_tx_hash = $13, ledger_auth_tx_hash = $14,
			ledger_registration_date = $15, ledger_authorization_date = $16,
			ledger_last_error = $17, updated_at = $18
		WHERE id = $1`,
		inst.ID, inst.Name, strings.ToLower(inst.Email), inst.PasswordHash,
		inst.WalletAddress, nullStr(inst.RegistrationNumber),
		jsonOrNull(inst.ContactInfo), jsonOrNull(inst.Documents),
		string(inst.VerificationStatus), inst.IsVerified,
		inst.Ledger.Registered, inst.Ledger.Authorized,
		nullStr(inst.Ledger.TxHash), nullStr(inst.Ledger.AuthTxHash),
		inst.Ledger.RegistrationDate, inst.Ledger.AuthorizationDate,
		nullStr(inst.Ledger.LastError), inst.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(errors.ErrNotFound, "institution %s not found", inst.ID)
	}
	return nil
}

func (s *pgInstitutionStore) List(ctx context.Context, filter *InstitutionFilter) ([]*Institution, error) {
	query := `SELECT ` + institutionColumns + ` FROM institutions`
	var conds []string
	var args []interface{}
	if filter != nil {
		if filter.IsVerified != nil {
			args = append(args, *filter.IsVerified)
			conds = append(conds, "is_verified = $"+strconv.Itoa(len(args)))
		}
		if filter.LedgerRegistered != nil {
			args = append(args, *filter.LedgerRegistered)
			conds = append(conds, "ledger_registered = $"+strconv.Itoa(len(args)))
		}
		if filter.LedgerAuthorized != nil {
			args = append(args, *filter.LedgerAuthorized)
			conds = append(conds, "ledger_authorized = $"+strconv.Itoa(len(args)))
		}
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Institution
	for rows.Next() {
		inst, err := scanInstitution(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, rows.Err()
}

func scanInstitution(row pgx.Row) (*Institution, error) {
	var inst Institution
	var regNo, txHash, authTxHash, lastErr *string
	var contactInfo, documents []byte
	var status string
	err := row.Scan(
		&inst.ID, &inst.Name, &inst.Email, &inst.PasswordHash,
		&inst.WalletAddress, &regNo,
		&contactInfo, &documents, &status, &inst.IsVerified,
		&inst.Ledger.Registered, &inst.Ledger.Authorized,
		&txHash, &authTxHash,
		&inst.Ledger.RegistrationDate, &inst.Ledger.AuthorizationDate,
		&lastErr,
		&inst.CreatedAt, &inst.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	inst.RegistrationNumber = strOrEmpty(regNo)
	inst.VerificationStatus = VerificationStatus(status)
	inst.Ledger.TxHash = strOrEmpty(txHash)
	inst.Ledger.AuthTxHash = strOrEmpty(authTxHash)
	inst.Ledger.LastError = strOrEmpty(lastErr)
	if len(contactInfo) > 0 {
		_ = json.Unmarshal(contactInfo, &inst.ContactInfo)
	}
	if len(documents) > 0 {
		_ = json.Unmarshal(documents, &inst.Documents)
	}
	return &inst, nil
}

// pgCertificateStore PostgreSQL 证书存储：certificates 表
type pgCertificateStore struct {
	pool *pgxpool.Pool
}

const certificateColumns = `id, student_address, student_name, student_id, student_email,
	course_name, grade, certificate_type, completion_date,
	institution_id, institution_name, content_hash, is_valid,
	is_minted, token_id, minted_to, minted_at, tx_hash, block_number, revoke_tx_hash, ledger_last_error,
	revoked_at, revoke_reason, created_at, updated_at`

func (s *pgCertificateStore) Create(ctx context.Context, cert *Certificate) error {
	now := time.Now().UTC()
	cert.CreatedAt = now
	cert.UpdatedAt = now

	_, err := s.pool.Exec(ctx, `
		INSERT INTO certificates (`+certificateColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25)`,
		cert.ID, cert.StudentAddress, cert.StudentName,
		nullStr(cert.StudentID), nullStr(cert.StudentEmail),
		cert.CourseName, nullStr(cert.Grade), nullStr(cert.CertificateType),
		cert.CompletionDate, cert.InstitutionID, cert.InstitutionName,
		nullStr(cert.ContentHash), cert.IsValid,
		cert.Ledger.IsMinted, cert.Ledger.TokenID, nullStr(cert.Ledger.MintedTo),
		cert.Ledger.MintedAt, nullStr(cert.Ledger.TxHash), cert.Ledger.BlockNumber,
		nullStr(cert.Ledger.RevokeTxHash), nullStr(cert.Ledger.LastError),
		cert.RevokedAt, nullStr(cert.RevokeReason),
		cert.CreatedAt, cert.UpdatedAt,
	)
	if err != nil && strings.Contains(err.Error(), "duplicate key") {
		return errors.Wrapf(errors.ErrDuplicate, "certificate %s already exists", cert.ID)
	}
	return err
}

func (s *pgCertificateStore) Get(ctx context.Context, id string) (*Certificate, error) {
	return s.getBy(ctx, "id = $1", id)
}

func (s *pgCertificateStore) GetByTokenID(ctx context.Context, tokenID int64) (*Certificate, error) {
	return s.getBy(ctx, "token_id = $1", tokenID)
}

func (s *pgCertificateStore) GetByContentHash(ctx context.Context, hash string) (*Certificate, error) {
	return s.getBy(ctx, "content_hash = $1", hash)
}

func (s *pgCertificateStore) getBy(ctx context.Context, where string, arg interface{}) (*Certificate, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+certificateColumns+` FROM certificates WHERE `+where, arg)
	cert, err := scanCertificate(row)
	if err == pgx.ErrNoRows {
		return nil, errors.Wrap(errors.ErrNotFound, "certificate not found")
	}
	return cert, err
}

func (s *pgCertificateStore) Update(ctx context.Context, cert *Certificate) error {
	cert.UpdatedAt = time.Now().UTC()
	tag, err := s.pool.Exec(ctx, `
		UPDATE certificates SET
			student_address = $2, student_name = $3, student_id = $4, student_email = $5,
			course_name = $6, grade = $7, certificate_type = $8, completion_date = $9,
			institution_id = $10, institution_name = $11, content_hash = $12, is_valid = $13,
			is_minted = $14, token_id = $15, minted_to = $16, minted_at = $17,
			tx_hash = $18, block_number = $19, revoke_tx_hash = $20, ledger_last_error = $21,
			revoked_at = $22, revoke_reason = $23, updated_at = $24
		WHERE id = $1`,
		cert.ID, cert.StudentAddress, cert.StudentName,
		nullStr(cert.StudentID), nullStr(cert.StudentEmail),
		cert.CourseName, nullStr(cert.Grade), nullStr(cert.CertificateType),
		cert.CompletionDate, cert.InstitutionID, cert.InstitutionName,
		nullStr(cert.ContentHash), cert.IsValid,
		cert.Ledger.IsMinted, cert.Ledger.TokenID, nullStr(cert.Ledger.MintedTo),
		cert.Ledger.MintedAt, nullStr(cert.Ledger.TxHash), cert.Ledger.BlockNumber,
		nullStr(cert.Ledger.RevokeTxHash), nullStr(cert.Ledger.LastError),
		cert.RevokedAt, nullStr(cert.RevokeReason), cert.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(errors.ErrNotFound, "certificate %s not found", cert.ID)
	}
	return nil
}

func (s *pgCertificateStore) ListByStudent(ctx context.Context, studentAddress string) ([]*Certificate, error) {
	return s.listBy(ctx, "LOWER(student_address) = LOWER($1)", studentAddress)
}

func (s *pgCertificateStore) ListByInstitution(ctx context.Context, institutionID string) ([]*Certificate, error) {
	return s.listBy(ctx, "institution_id = $1", institutionID)
}

func (s *pgCertificateStore) listBy(ctx context.Context, where string, arg interface{}) ([]*Certificate, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+certificateColumns+` FROM certificates WHERE `+where+` ORDER BY created_at`, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Certificate
	for rows.Next() {
		cert, err := scanCertificate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cert)
	}
	return out, rows.Err()
}

func (s *pgCertificateStore) ExistsIssuance(ctx context.Context, institutionID, studentID, courseName string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM certificates
			WHERE institution_id = $1 AND student_id = $2
			  AND LOWER(course_name) = LOWER($3) AND is_valid
		)`, institutionID, studentID, courseName).Scan(&exists)
	return exists, err
}

func (s *pgCertificateStore) CountByInstitution(ctx context.Context, institutionID string) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM certificates WHERE institution_id = $1`, institutionID).Scan(&n)
	return n, err
}

func scanCertificate(row pgx.Row) (*Certificate, error) {
	var cert Certificate
	var studentID, studentEmail, grade, certType, contentHash *string
	var mintedTo, txHash, revokeTxHash, lastErr, revokeReason *string
	var blockNumber *int64
	err := row.Scan(
		&cert.ID, &cert.StudentAddress, &cert.StudentName, &studentID, &studentEmail,
		&cert.CourseName, &grade, &certType, &cert.CompletionDate,
		&cert.InstitutionID, &cert.InstitutionName, &contentHash, &cert.IsValid,
		&cert.Ledger.IsMinted, &cert.Ledger.TokenID, &mintedTo, &cert.Ledger.MintedAt,
		&txHash, &blockNumber, &revokeTxHash, &lastErr,
		&cert.RevokedAt, &revokeReason, &cert.CreatedAt, &cert.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	cert.StudentID = strOrEmpty(studentID)
	cert.StudentEmail = strOrEmpty(studentEmail)
	cert.Grade = strOrEmpty(grade)
	cert.CertificateType = strOrEmpty(certType)
	cert.ContentHash = strOrEmpty(contentHash)
	cert.Ledger.MintedTo = strOrEmpty(mintedTo)
	cert.Ledger.TxHash = strOrEmpty(txHash)
	cert.Ledger.RevokeTxHash = strOrEmpty(revokeTxHash)
	if blockNumber != nil {
		cert.Ledger.BlockNumber = *blockNumber
	}
	cert.Ledger.LastError = strOrEmpty(lastErr)
	cert.RevokeReason = strOrEmpty(revokeReason)
	return &cert, nil
}

// pgVerificationStore PostgreSQL 审核工单存储：verification_requests 表
type pgVerificationStore struct {
	pool *pgxpool.Pool
}

const verificationColumns = `id, institution_id, documents, status, submitted_at, reviewed_at, reviewed_by, comments`

func (s *pgVerificationStore) Create(ctx context.Context, req *VerificationRequest) error {
	if req.SubmittedAt.IsZero() {
		req.SubmittedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO verification_requests (`+verificationColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		req.ID, req.InstitutionID, jsonOrNull(req.Documents), string(req.Status),
		req.SubmittedAt, req.ReviewedAt, nullStr(req.ReviewedBy), nullStr(req.Comments),
	)
	if err != nil && strings.Contains(err.Error(), "duplicate key") {
		return errors.Wrapf(errors.ErrDuplicate, "verification request %s already exists", req.ID)
	}
	return err
}

func (s *pgVerificationStore) Get(ctx context.Context, id string) (*VerificationRequest, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+verificationColumns+` FROM verification_requests WHERE id = $1`, id)
	req, err := scanVerification(row)
	if err == pgx.ErrNoRows {
		return nil, errors.Wrap(errors.ErrNotFound, "verification request not found")
	}
	return req, err
}

func (s *pgVerificationStore) GetByInstitution(ctx context.Context, institutionID string) (*VerificationRequest, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+verificationColumns+` FROM verification_requests
		WHERE institution_id = $1 ORDER BY submitted_at DESC LIMIT 1`, institutionID)
	req, err := scanVerification(row)
	if err == pgx.ErrNoRows {
		return nil, errors.Wrap(errors.ErrNotFound, "verification request not found")
	}
	return req, err
}

func (s *pgVerificationStore) Update(ctx context.Context, req *VerificationRequest) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE verification_requests SET
			documents = $2, status = $3, reviewed_at = $4, reviewed_by = $5, comments = $6
		WHERE id = $1`,
		req.ID, jsonOrNull(req.Documents), string(req.Status),
		req.ReviewedAt, nullStr(req.ReviewedBy), nullStr(req.Comments),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(errors.ErrNotFound, "verification request %s not found", req.ID)
	}
	return nil
}

func (s *pgVerificationStore) ListByStatus(ctx context.Context, status VerificationStatus) ([]*VerificationRequest, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+verificationColumns+` FROM verification_requests
		WHERE status = $1 ORDER BY submitted_at`, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*VerificationRequest
	for rows.Next() {
		req, err := scanVerification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

func scanVerification(row pgx.Row) (*VerificationRequest, error) {
	var req VerificationRequest
	var documents []byte
	var status string
	var reviewedBy, comments *string
	err := row.Scan(&req.ID, &req.InstitutionID, &documents, &status,
		&req.SubmittedAt, &req.ReviewedAt, &reviewedBy, &comments)
	if err != nil {
		return nil, err
	}
	req.Status = VerificationStatus(status)
	req.ReviewedBy = strOrEmpty(reviewedBy)
	req.Comments = strOrEmpty(comments)
	if len(documents) > 0 {
		_ = json.Unmarshal(documents, &req.Documents)
	}
	return &req, nil
}

// pgSubscriptionStore PostgreSQL 订阅存储：subscriptions 表
type pgSubscriptionStore struct {
	pool *pgxpool.Pool
}

func (s *pgSubscriptionStore) Create(ctx context.Context, sub *Subscription) error {
	now := time.Now().UTC()
	sub.CreatedAt = now
	sub.UpdatedAt = now
	_, err := s.pool.Exec(ctx, `
		INSERT INTO subscriptions (id, institution_id, plan_id, status, current_period_end, cancelled_at, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		sub.ID, sub.InstitutionID, sub.PlanID, string(sub.Status),
		sub.CurrentPeriodEnd, sub.CancelledAt, sub.CreatedAt, sub.UpdatedAt,
	)
	return err
}

func (s *pgSubscriptionStore) GetActiveByInstitution(ctx context.Context, institutionID string) (*Subscription, error) {
	var sub Subscription
	var status string
	err := s.pool.QueryRow(ctx, `
		SELECT id, institution_id, plan_id, status, current_period_end, cancelled_at, created_at, updated_at
		FROM subscriptions
		WHERE institution_id = $1 AND status = 'active'
		ORDER BY created_at DESC LIMIT 1`, institutionID).
		Scan(&sub.ID, &sub.InstitutionID, &sub.PlanID, &status,
			&sub.CurrentPeriodEnd, &sub.CancelledAt, &sub.CreatedAt, &sub.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, errors.Wrap(errors.ErrNotFound, "no active subscription")
	}
	if err != nil {
		return nil, err
	}
	sub.Status = SubscriptionStatus(status)
	return &sub, nil
}

func (s *pgSubscriptionStore) Update(ctx context.Context, sub *Subscription) error {
	sub.UpdatedAt = time.Now().UTC()
	tag, err := s.pool.Exec(ctx, `
		UPDATE subscriptions SET
			plan_id = $2, status = $3, current_period_end = $4, cancelled_at = $5, updated_at = $6
		WHERE id = $1`,
		sub.ID, sub.PlanID, string(sub.Status), sub.CurrentPeriodEnd, sub.CancelledAt, sub.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(errors.ErrNotFound, "subscription %s not found", sub.ID)
	}
	return nil
}

// pgPaymentStore PostgreSQL 支付流水存储：payments 表
type pgPaymentStore struct {
	pool *pgxpool.Pool
}

func (s *pgPaymentStore) Create(ctx context.Context, p *Payment) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO payments (id, institution_id, plan_id, amount, currency, status, method, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		p.ID, p.InstitutionID, p.PlanID, p.Amount, p.Currency, p.Status, nullStr(p.Method), p.CreatedAt,
	)
	return err
}

func (s *pgPaymentStore) ListByInstitution(ctx context.Context, institutionID string) ([]*Payment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, institution_id, plan_id, amount, currency, status, method, created_at
		FROM payments WHERE institution_id = $1 ORDER BY created_at`, institutionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Payment
	for rows.Next() {
		var p Payment
		var method *string
		if err := rows.Scan(&p.ID, &p.InstitutionID, &p.PlanID, &p.Amount,
			&p.Currency, &p.Status, &method, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.Method = strOrEmpty(method)
		out = append(out, &p)
	}
	return out, rows.Err()
}
