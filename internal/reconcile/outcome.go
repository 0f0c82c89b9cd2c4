package reconcile

// Outcome 一次对账的结果分类
type Outcome string

const (
	// OutcomeAlreadySynced 链上已有记录，链下状态向链上收敛
	OutcomeAlreadySynced Outcome = "already_synced"
	// OutcomeNewlySynced 本次对账把记录写上链
	OutcomeNewlySynced Outcome = "newly_synced"
	// OutcomeDegraded 账本步骤没有执行（未配置、未连接或缺学生钱包），只有链下记录
	OutcomeDegraded Outcome = "degraded_no_ledger"
	// OutcomeFailed 账本调用失败，记录保持未同步并携带错误
	OutcomeFailed Outcome = "failed"
)

// 机构对账的细分状态，沿用链上注册表的语义
const (
	StatusAlreadyAuthorized       = "already_authorized"
	StatusRegisteredNotAuthorized = "registered_not_authorized"
	StatusAlreadyRegistered       = "already_registered"
	StatusRegistered              = "registered"
	StatusAuthorized              = "authorized"
)

// StatusSkippedNoWallet 证书没有学生钱包地址，账本步骤整体跳过
const StatusSkippedNoWallet = "skipped_no_student_address"

// Result 一次对账的结果
type Result struct {
	Outcome Outcome `json:"outcome"`
	// Status 细分状态（机构对账时填写）
	Status string `json:"status,omitempty"`
	// TxHash 本次对账产生的交易哈希（newly_synced 时填写）
	TxHash string `json:"txHash,omitempty"`
	// TokenID 证书对账后的链上 token（证书对账时填写）
	TokenID *int64 `json:"tokenId,omitempty"`
	// Err 失败原因（failed 时填写）
	Err string `json:"error,omitempty"`
}

func (r *Result) failed(err error) *Result {
	r.Outcome = OutcomeFailed
	if err != nil {
		r.Err = err.Error()
	}
	return r
}
