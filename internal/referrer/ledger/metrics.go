package ledger

import "github.com/SakuraBurst/rewardbot/internal/referrer/metrics"

func observe(transition string) {
	metrics.LedgerTransitionsTotal.WithLabelValues(transition).Inc()
}
