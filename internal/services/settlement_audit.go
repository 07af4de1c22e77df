package services

import (
	"context"
	"fmt"

	"settleflow/internal/core"
	"settleflow/internal/log"
	"settleflow/internal/metrics"
	"settleflow/internal/ports"
)

// SettlementAudit checks that settlement periods follow each other without holes.
type SettlementAudit struct {
	lister ports.SettlementLister
	logger *log.Logger
}

func NewSettlementAudit(lister ports.SettlementLister, logger *log.Logger) *SettlementAudit {
	return &SettlementAudit{lister: lister, logger: log.OrDefault(logger, log.ComponentAudit)}
}

// MissingSettlements returns every place where a settlement does not start at
// the instant the previous one ended. Overlaps are reported too.
func (a *SettlementAudit) MissingSettlements(ctx context.Context) ([]core.SettlementGap, error) {
	list, err := a.lister.ListSettlements(ctx)
	if err != nil {
		return nil, fmt.Errorf("list settlements: %w", err)
	}
	var gaps []core.SettlementGap
	for i := 1; i < len(list); i++ {
		prev, cur := list[i-1], list[i]
		if cur.Start.Equal(prev.End) {
			continue
		}
		gaps = append(gaps, core.SettlementGap{
			AfterID:  prev.ID,
			BeforeID: cur.ID,
			From:     prev.End,
			To:       cur.Start,
		})
	}
	metrics.SetSettlementGaps(len(gaps))
	if len(gaps) > 0 {
		a.logger.WarnContext(ctx, "Settlement periods are not contiguous",
			"settlements", len(list), "gaps", len(gaps))
	}
	return gaps, nil
}
