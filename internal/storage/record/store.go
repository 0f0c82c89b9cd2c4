package record

import (
	"context"
	"fmt"

	"educhain/pkg/config"
)

// InstitutionFilter 机构查询条件；nil 字段表示不过滤
type InstitutionFilter struct {
	IsVerified       *bool
	LedgerRegistered *bool
	LedgerAuthorized *bool
}

// InstitutionStore 机构记录存储
type InstitutionStore interface {
	Create(ctx context.Context, inst *Institution) error
	Get(ctx context.Context, id string) (*Institution, error)
	GetByEmail(ctx context.Context, email string) (*Institution, error)
	// GetByWallet 按钱包地址查询，不区分大小写
	GetByWallet(ctx context.Context, wallet string) (*Institution, error)
	Update(ctx context.Context, inst *Institution) error
	List(ctx context.Context, filter *InstitutionFilter) ([]*Institution, error)
}

// CertificateStore 证书记录存储
type CertificateStore interface {
	Create(ctx context.Context, cert *Certificate) error
	Get(ctx context.Context, id string) (*Certificate, error)
	GetByTokenID(ctx context.Context, tokenID int64) (*Certificate, error)
	GetByContentHash(ctx context.Context, hash string) (*Certificate, error)
	Update(ctx context.Context, cert *Certificate) error
	// ListByStudent 按学生钱包地址查询，不区分大小写
	ListByStudent(ctx context.Context, studentAddress string) ([]*Certificate, error)
	ListByInstitution(ctx context.Context, institutionID string) ([]*Certificate, error)
	// ExistsIssuance 同一机构是否已为同一学生签发过同名课程的有效证书
	ExistsIssuance(ctx context.Context, institutionID, studentID, courseName string) (bool, error)
	// CountByInstitution 机构签发的证书总数（含已吊销），用于用量限额
	CountByInstitution(ctx context.Context, institutionID string) (int64, error)
}

// VerificationRequestStore 资质审核工单存储
type VerificationRequestStore interface {
	Create(ctx context.Context, req *VerificationRequest) error
	Get(ctx context.Context, id string) (*VerificationRequest, error)
	GetByInstitution(ctx context.Context, institutionID string) (*VerificationRequest, error)
	Update(ctx context.Context, req *VerificationRequest) error
	ListByStatus(ctx context.Context, status VerificationStatus) ([]*VerificationRequest, error)
}

// SubscriptionStore 订阅存储
type SubscriptionStore interface {
	Create(ctx context.Context, sub *Subscription) error
	GetActiveByInstitution(ctx context.Context, institutionID string) (*Subscription, error)
	Update(ctx context.Context, sub *Subscription) error
}

// PaymentStore 支付流水存储
type PaymentStore interface {
	Create(ctx context.Context, p *Payment) error
	ListByInstitution(ctx context.Context, institutionID string) ([]*Payment, error)
}

// Stores 记录存储集合，按配置整体创建
type Stores struct {
	Institutions  InstitutionStore
	Certificates  CertificateStore
	Verifications VerificationRequestStore
	Subscriptions SubscriptionStore
	Payments      PaymentStore

	closer func()
}

// Close 释放底层连接
func (s *Stores) Close() {
	if s.closer != nil {
		s.closer()
	}
}

// NewStores 根据配置创建记录存储
func NewStores(ctx context.Context, cfg config.RecordConfig) (*Stores, error) {
	switch cfg.Type {
	case "", "memory":
		return NewMemoryStores(), nil
	case "postgres":
		return NewPgStores(ctx, cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported record store type: %s", cfg.Type)
	}
}
