package metrics

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

type paymentMetrics struct {
	mu          sync.Mutex
	issued      uint64
	settlements map[string]uint64
	handshakes  map[string]uint64
}

var paymentCollector = &paymentMetrics{
	settlements: make(map[string]uint64),
	handshakes:  make(map[string]uint64),
}

// ObserveTokenIssued 记录一次支付令牌签发。
func ObserveTokenIssued() {
	paymentCollector.mu.Lock()
	paymentCollector.issued++
	paymentCollector.mu.Unlock()
}

// ObserveSettlement 记录一次结算请求的结论。
func ObserveSettlement(accepted bool) {
	result := "rejected"
	if accepted {
		result = "accepted"
	}
	paymentCollector.mu.Lock()
	paymentCollector.settlements[result]++
	paymentCollector.mu.Unlock()
}

// ObserveHandshake 记录一次付费抓取握手的终态。
func ObserveHandshake(state string) {
	paymentCollector.mu.Lock()
	paymentCollector.handshakes[state]++
	paymentCollector.mu.Unlock()
}

func (p *paymentMetrics) render() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	var builder strings.Builder
	builder.Grow(512)

	builder.WriteString("# HELP agentpay_tokens_issued_total Total number of payment tokens issued.\n")
	builder.WriteString("# TYPE agentpay_tokens_issued_total counter\n")
	builder.WriteString(fmt.Sprintf("agentpay_tokens_issued_total %d\n", p.issued))

	builder.WriteString("# HELP agentpay_settlements_total Total number of settlement requests by result.\n")
	builder.WriteString("# TYPE agentpay_settlements_total counter\n")
	for _, result := range sortedKeys(p.settlements) {
		builder.WriteString(fmt.Sprintf("agentpay_settlements_total{result=\"%s\"} %d\n",
			escape(result), p.settlements[result]))
	}

	builder.WriteString("# HELP agentpay_handshakes_total Total number of paid fetch handshakes by terminal state.\n")
	builder.WriteString("# TYPE agentpay_handshakes_total counter\n")
	for _, state := range sortedKeys(p.handshakes) {
		builder.WriteString(fmt.Sprintf("agentpay_handshakes_total{state=\"%s\"} %d\n",
			escape(state), p.handshakes[state]))
	}

	return builder.String()
}

func sortedKeys(m map[string]uint64) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
