package record

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"educhain/pkg/errors"
)

// NewMemoryStores 创建内存记录存储；开发与测试用
func NewMemoryStores() *Stores {
	return &Stores{
		Institutions:  newMemoryInstitutionStore(),
		Certificates:  newMemoryCertificateStore(),
		Verifications: newMemoryVerificationStore(),
		Subscriptions: newMemorySubscriptionStore(),
		Payments:      newMemoryPaymentStore(),
	}
}

// memoryInstitutionStore 内存机构存储
type memoryInstitutionStore struct {
	mu    sync.RWMutex
	insts map[string]*Institution
}

func newMemoryInstitutionStore() *memoryInstitutionStore {
	return &memoryInstitutionStore{insts: make(map[string]*Institution)}
}

func (s *memoryInstitutionStore) Create(ctx context.Context, inst *Institution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.insts[inst.ID]; exists {
		return errors.Wrapf(errors.ErrDuplicate, "institution %s already exists", inst.ID)
	}
	for _, other := range s.insts {
		if strings.EqualFold(other.Email, inst.Email) {
			return errors.Wrapf(errors.ErrDuplicate, "email %s already registered", inst.Email)
		}
		if inst.WalletAddress != "" && strings.EqualFold(other.WalletAddress, inst.WalletAddress) {
			return errors.Wrapf(errors.ErrDuplicate, "wallet %s already registered", inst.WalletAddress)
		}
	}

	now := time.Now().UTC()
	inst.CreatedAt = now
	inst.UpdatedAt = now
	s.insts[inst.ID] = inst
	return nil
}

func (s *memoryInstitutionStore) Get(ctx context.Context, id string) (*Institution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inst, exists := s.insts[id]
	if !exists {
		return nil, errors.Wrapf(errors.ErrNotFound, "institution %s not found", id)
	}
	return inst, nil
}

func (s *memoryInstitutionStore) GetByEmail(ctx context.Context, email string) (*Institution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, inst := range s.insts {
		if strings.EqualFold(inst.Email, email) {
			return inst, nil
		}
	}
	return nil, errors.Wrapf(errors.ErrNotFound, "institution with email %s not found", email)
}

func (s *memoryInstitutionStore) GetByWallet(ctx context.Context, wallet string) (*Institution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, inst := range s.insts {
		if strings.EqualFold(inst.WalletAddress, wallet) {
			return inst, nil
		}
	}
	return nil, errors.Wrapf(errors.ErrNotFound, "institution with wallet %s not found", wallet)
}

func (s *memoryInstitutionStore) Update(ctx context.Context, inst *Institution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.insts[inst.ID]; !exists {
		return errors.Wrapf(errors.ErrNotFound, "institution %s not found", inst.ID)
	}
	inst.UpdatedAt = time.Now().UTC()
	s.insts[inst.ID] = inst
	return nil
}

func (s *memoryInstitutionStore) List(ctx context.Context, filter *InstitutionFilter) ([]*Institution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Institution, 0, len(s.insts))
	for _, inst := range s.insts {
		if filter != nil {
			if filter.IsVerified != nil && inst.IsVerified != *filter.IsVerified {
				continue
			}
			if filter.LedgerRegistered != nil && inst.Ledger.Registered != *filter.LedgerRegistered {
				continue
			}
			if filter.LedgerAuthorized != nil && inst.Ledger.Authorized != *filter.LedgerAuthorized {
				continue
			}
		}
		out = append(out, inst)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// memoryCertificateStore 内存证书存储
type memoryCertificateStore struct {
	mu    sync.RWMutex
	certs map[string]*Certificate
}

func newMemoryCertificateStore() *memoryCertificateStore {
	return &memoryCertificateStore{certs: make(map[string]*Certificate)}
}

func (s *memoryCertificateStore) Create(ctx context.Context, cert *Certificate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.certs[cert.ID]; exists {
		return errors.Wrapf(errors.ErrDuplicate, "certificate %s already exists", cert.ID)
	}
	now := time.Now().UTC()
	cert.CreatedAt = now
	cert.UpdatedAt = now
	s.certs[cert.ID] = cert
	return nil
}

func (s *memoryCertificateStore) Get(ctx context.Context, id string) (*Certificate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cert, exists := s.certs[id]
	if !exists {
		return nil, errors.Wrapf(errors.ErrNotFound, "certificate %s not found", id)
	}
	return cert, nil
}

func (s *memoryCertificateStore) GetByTokenID(ctx context.Context, tokenID int64) (*Certificate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, cert := range s.certs {
		if cert.Ledger.TokenID != nil && *cert.Ledger.TokenID == tokenID {
			return cert, nil
		}
	}
	return nil, errors.Wrapf(errors.ErrNotFound, "certificate with token %d not found", tokenID)
}

func (s *memoryCertificateStore) GetByContentHash(ctx context.Context, hash string) (*Certificate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, cert := range s.certs {
		if cert.ContentHash != "" && cert.ContentHash == hash {
			return cert, nil
		}
	}
	return nil, errors.Wrapf(errors.ErrNotFound, "certificate with content hash %s not found", hash)
}

func (s *memoryCertificateStore) Update(ctx context.Context, cert *Certificate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.certs[cert.ID]; !exists {
		return errors.Wrapf(errors.ErrNotFound, "certificate %s not found", cert.ID)
	}
	cert.UpdatedAt = time.Now().UTC()
	s.certs[cert.ID] = cert
	return nil
}

func (s *memoryCertificateStore) ListByStudent(ctx context.Context, studentAddress string) ([]*Certificate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Certificate
	for _, cert := range s.certs {
		if strings.EqualFold(cert.StudentAddress, studentAddress) {
			out = append(out, cert)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *memoryCertificateStore) ListByInstitution(ctx context.Context, institutionID string) ([]*Certificate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Certificate
	for _, cert := range s.certs {
		if cert.InstitutionID == institutionID {
			out = append(out, cert)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *memoryCertificateStore) ExistsIssuance(ctx context.Context, institutionID, studentID, courseName string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, cert := range s.certs {
		if cert.InstitutionID == institutionID &&
			cert.StudentID == studentID &&
			strings.EqualFold(cert.CourseName, courseName) &&
			cert.IsValid {
			return true, nil
		}
	}
	return false, nil
}

func (s *memoryCertificateStore) CountByInstitution(ctx context.Context, institutionID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, cert := range s.certs {
		if cert.InstitutionID == institutionID {
			n++
		}
	}
	return n, nil
}

// memoryVerificationStore 内存审核工单存储
type memoryVerificationStore struct {
	mu   sync.RWMutex
	reqs map[string]*VerificationRequest
}

func newMemoryVerificationStore() *memoryVerificationStore {
	return &memoryVerificationStore{reqs: make(map[string]*VerificationRequest)}
}

func (s *memoryVerificationStore) Create(ctx context.Context, req *VerificationRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.reqs[req.ID]; exists {
		return errors.Wrapf(errors.ErrDuplicate, "verification request %s already exists", req.ID)
	}
	if req.SubmittedAt.IsZero() {
		req.SubmittedAt = time.Now().UTC()
	}
	s.reqs[req.ID] = req
	return nil
}

func (s *memoryVerificationStore) Get(ctx context.Context, id string) (*VerificationRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	req, exists := s.reqs[id]
	if !exists {
		return nil, errors.Wrapf(errors.ErrNotFound, "verification request %s not found", id)
	}
	return req, nil
}

func (s *memoryVerificationStore) GetByInstitution(ctx context.Context, institutionID string) (*VerificationRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *VerificationRequest
	for _, req := range s.reqs {
		if req.InstitutionID != institutionID {
			continue
		}
		if latest == nil || req.SubmittedAt.After(latest.SubmittedAt) {
			latest = req
		}
	}
	if latest == nil {
		return nil, errors.Wrapf(errors.ErrNotFound, "no verification request for institution %s", institutionID)
	}
	return latest, nil
}

func (s *memoryVerificationStore) Update(ctx context.Context, req *VerificationRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.reqs[req.ID]; !exists {
		return errors.Wrapf(errors.ErrNotFound, "verification request %s not found", req.ID)
	}
	s.reqs[req.ID] = req
	return nil
}

func (s *memoryVerificationStore) ListByStatus(ctx context.Context, status VerificationStatus) ([]*VerificationRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*VerificationRequest
	for _, req := range s.reqs {
		if req.Status == status {
			out = append(out, req)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.Before(out[j].SubmittedAt) })
	return out, nil
}

// memorySubscriptionStore 内存订阅存储
type memorySubscriptionStore struct {
	mu   sync.RWMutex
	subs map[string]*Subscription
}

func newMemorySubscriptionStore() *memorySubscriptionStore {
	return &memorySubscriptionStore{subs: make(map[string]*Subscription)}
}

func (s *memorySubscriptionStore) Create(ctx context.Context, sub *Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.subs[sub.ID]; exists {
		return errors.Wrapf(errors.ErrDuplicate, "subscription %s already exists", sub.ID)
	}
	now := time.Now().UTC()
	sub.CreatedAt = now
	sub.UpdatedAt = now
	s.subs[sub.ID] = sub
	return nil
}

func (s *memorySubscriptionStore) GetActiveByInstitution(ctx context.Context, institutionID string) (*Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *Subscription
	for _, sub := range s.subs {
		if sub.InstitutionID != institutionID || sub.Status != SubscriptionActive {
			continue
		}
		if latest == nil || sub.CreatedAt.After(latest.CreatedAt) {
			latest = sub
		}
	}
	if latest == nil {
		return nil, errors.Wrapf(errors.ErrNotFound, "no active subscription for institution %s", institutionID)
	}
	return latest, nil
}

func (s *memorySubscriptionStore) Update(ctx context.Context, sub *Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.subs[sub.ID]; !exists {
		return errors.Wrapf(errors.ErrNotFound, "subscription %s not found", sub.ID)
	}
	sub.UpdatedAt = time.Now().UTC()
	s.subs[sub.ID] = sub
	return nil
}

// memoryPaymentStore 内存支付流水存储
type memoryPaymentStore struct {
	mu       sync.RWMutex
	payments []*Payment
}

func newMemoryPaymentStore() *memoryPaymentStore {
	return &memoryPaymentStore{}
}

func (s *memoryPaymentStore) Create(ctx context.Context, p *Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	s.payments = append(s.payments, p)
	return nil
}

func (s *memoryPaymentStore) ListByInstitution(ctx context.Context, institutionID string) ([]*Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Payment
	for _, p := range s.payments {
		if p.InstitutionID == institutionID {
			out = append(out, p)
		}
	}
	return out, nil
}
