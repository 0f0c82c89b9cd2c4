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

import "time"

// VerificationStatus 机构资质审核状态
type VerificationStatus string

const (
	VerificationNotSubmitted VerificationStatus = "not_submitted"
	VerificationPending      VerificationStatus = "pending"
	VerificationApproved     VerificationStatus = "approved"
	VerificationRejected     VerificationStatus = "rejected"
)

// ContactInfo 机构联系方式
type ContactInfo struct {
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
	Website string `json:"website,omitempty"`
}

// VerificationDocument 机构提交的资质文件；内容存内容寻址存储，这里只存哈希
type VerificationDocument struct {
	Name        string    `json:"name"`
	ContentHash string    `json:"contentHash"`
	UploadedAt  time.Time `json:"uploadedAt"`
}

// InstitutionLedgerState 机构的链上同步子记录。
// Registered/Authorized 反映链下视角的链上状态，对账时与账本收敛。
type InstitutionLedgerState struct {
	Registered        bool       `json:"registered"`
	Authorized        bool       `json:"authorized"`
	TxHash            string     `json:"txHash,omitempty"`
	AuthTxHash        string     `json:"authTxHash,omitempty"`
	RegistrationDate  *time.Time `json:"registrationDate,omitempty"`
	AuthorizationDate *time.Time `json:"authorizationDate,omitempty"`
	LastError         string     `json:"lastError,omitempty"`
}

// Institution 机构记录
type Institution struct {
	ID                 string                 `json:"id"`
	Name               string                 `json:"name"`
	Email              string                 `json:"email"`
	PasswordHash       string                 `json:"-"`
	WalletAddress      string                 `json:"walletAddress"`
	RegistrationNumber string                 `json:"registrationNumber,omitempty"`
	ContactInfo        ContactInfo            `json:"contactInfo"`
	Documents          []VerificationDocument `json:"documents,omitempty"`
	VerificationStatus VerificationStatus     `json:"verificationStatus"`
	IsVerified         bool                   `json:"isVerified"`
	Ledger             InstitutionLedgerState `json:"ledger"`
	CreatedAt          time.Time              `json:"createdAt"`
	UpdatedAt          time.Time              `json:"updatedAt"`
}

// CertificateLedgerState 证书的链上同步子记录。
// 不变式：IsMinted ⟺ TokenID != nil。
type CertificateLedgerState struct {
	IsMinted    bool       `json:"isMinted"`
	TokenID     *int64     `json:"tokenId,omitempty"`
	MintedTo    string     `json:"mintedTo,omitempty"`
	MintedAt    *time.Time `json:"mintedAt,omitempty"`
	TxHash      string     `json:"txHash,omitempty"`
	BlockNumber int64      `json:"blockNumber,omitempty"`
	// RevokeTxHash 链上吊销交易的哈希
	RevokeTxHash string `json:"revokeTxHash,omitempty"`
	LastError    string `json:"lastError,omitempty"`
}

// Certificate 证书记录
type Certificate struct {
	ID              string                 `json:"id"`
	StudentAddress  string                 `json:"studentAddress"`
	StudentName     string                 `json:"studentName"`
	StudentID       string                 `json:"studentId,omitempty"`
	StudentEmail    string                 `json:"studentEmail,omitempty"`
	CourseName      string                 `json:"courseName"`
	Grade           string                 `json:"grade,omitempty"`
	CertificateType string                 `json:"certificateType,omitempty"`
	CompletionDate  time.Time              `json:"completionDate"`
	InstitutionID   string                 `json:"institutionId"`
	InstitutionName string                 `json:"institutionName"`
	ContentHash     string                 `json:"contentHash,omitempty"`
	IsValid         bool                   `json:"isValid"`
	Ledger          CertificateLedgerState `json:"ledger"`
	RevokedAt       *time.Time             `json:"revokedAt,omitempty"`
	RevokeReason    string                 `json:"revokeReason,omitempty"`
	CreatedAt       time.Time              `json:"createdAt"`
	UpdatedAt       time.Time              `json:"updatedAt"`
}

// VerificationRequest 机构资质审核工单
type VerificationRequest struct {
	ID            string                 `json:"id"`
	InstitutionID string                 `json:"institutionId"`
	Documents     []VerificationDocument `json:"documents"`
	Status        VerificationStatus     `json:"status"`
	SubmittedAt   time.Time              `json:"submittedAt"`
	ReviewedAt    *time.Time             `json:"reviewedAt,omitempty"`
	ReviewedBy    string                 `json:"reviewedBy,omitempty"`
	Comments      string                 `json:"comments,omitempty"`
}

// SubscriptionStatus 订阅状态
type SubscriptionStatus string

const (
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
	SubscriptionExpired   SubscriptionStatus = "expired"
)

// Subscription 机构订阅
type Subscription struct {
	ID               string             `json:"id"`
	InstitutionID    string             `json:"institutionId"`
	PlanID           string             `json:"planId"`
	Status           SubscriptionStatus `json:"status"`
	CurrentPeriodEnd time.Time          `json:"currentPeriodEnd"`
	CancelledAt      *time.Time         `json:"cancelledAt,omitempty"`
	CreatedAt        time.Time          `json:"createdAt"`
	UpdatedAt        time.Time          `json:"updatedAt"`
}

// Payment 支付流水
type Payment struct {
	ID            string    `json:"id"`
	InstitutionID string    `json:"institutionId"`
	PlanID        string    `json:"planId"`
	Amount        float64   `json:"amount"`
	Currency      string    `json:"currency"`
	Status        string    `json:"status"` // succeeded | failed | pending
	Method        string    `json:"method,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}
