package billing

// Plan 订阅套餐
type Plan struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Currency string  `json:"currency"`
	// CertificateLimit 计费周期内可签发的证书数；-1 不限
	CertificateLimit int64 `json:"certificateLimit"`
	// PeriodDays 计费周期天数
	PeriodDays int      `json:"periodDays"`
	Features   []string `json:"features"`
}

// Unlimited 套餐是否不限量
func (p Plan) Unlimited() bool {
	return p.CertificateLimit < 0
}

// FreeTrialID 新机构的默认套餐
const FreeTrialID = "free_trial"

// plans 内置套餐表
var plans = map[string]Plan{
	FreeTrialID: {
		ID:               FreeTrialID,
		Name:             "Free Trial",
		Price:            0,
		Currency:         "USD",
		CertificateLimit: 10,
		PeriodDays:       14,
		Features:         []string{"10 certificates", "basic verification"},
	},
	"basic": {
		ID:               "basic",
		Name:             "Basic",
		Price:            29.99,
		Currency:         "USD",
		CertificateLimit: 100,
		PeriodDays:       30,
		Features:         []string{"100 certificates/month", "on-chain anchoring", "email support"},
	},
	"professional": {
		ID:               "professional",
		Name:             "Professional",
		Price:            99.99,
		Currency:         "USD",
		CertificateLimit: 500,
		PeriodDays:       30,
		Features:         []string{"500 certificates/month", "on-chain anchoring", "priority support", "bulk sync"},
	},
	"enterprise": {
		ID:               "enterprise",
		Name:             "Enterprise",
		Price:            299.99,
		Currency:         "USD",
		CertificateLimit: -1,
		PeriodDays:       30,
		Features:         []string{"unlimited certificates", "on-chain anchoring", "dedicated support", "bulk sync"},
	},
}

// GetPlan 按 ID 查套餐
func GetPlan(id string) (Plan, bool) {
	p, ok := plans[id]
	return p, ok
}

// ListPlans 所有可订阅套餐（不含试用）
func ListPlans() []Plan {
	out := make([]Plan, 0, len(plans)-1)
	for _, id := range []string{"basic", "professional", "enterprise"} {
		out = append(out, plans[id])
	}
	return out
}
