package metrics

import (
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// 全局 Registry，由 API 注册与暴露
var DefaultRegistry = prometheus.NewRegistry()

func init() {
	DefaultRegistry.MustRegister(
		LedgerCallDuration, LedgerCallTotal,
		SyncOutcomeTotal, VerificationTotal,
		CertificateIssuedTotal,
	)
}

// LedgerCallDuration 账本调用耗时（秒）
var LedgerCallDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "educhain_ledger_call_duration_seconds",
		Help:    "账本调用耗时（秒）",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"op"},
)

// LedgerCallTotal 账本调用总数（按操作与结果）
var LedgerCallTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "educhain_ledger_call_total",
		Help: "账本调用总数（按操作与结果）",
	},
	[]string{"op", "result"}, // ok | conflict | not_found | rejected | unavailable | error
)

// SyncOutcomeTotal 对账结果总数（按实体与结果分类）
var SyncOutcomeTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "educhain_sync_outcome_total",
		Help: "对账结果总数",
	},
	[]string{"entity", "outcome"}, // already_synced | newly_synced | degraded_no_ledger | failed
)

// VerificationTotal 证书验证请求总数（按解析路径）
var VerificationTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "educhain_verification_total",
		Help: "证书验证请求总数（按解析路径）",
	},
	[]string{"method"},
)

// CertificateIssuedTotal 证书签发总数（按账本侧结果）
var CertificateIssuedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "educhain_certificate_issued_total",
		Help: "证书签发总数（按账本侧结果）",
	},
	[]string{"ledger"}, // minted | skipped | failed
)

// WritePrometheus 将 Prometheus 文本格式写入 w（供 Hertz 暴露 /metrics 复用）
func WritePrometheus(w io.Writer) error {
	metrics, err := DefaultRegistry.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.FmtText)
	for _, mf := range metrics {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}
