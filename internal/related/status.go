package related

import "solana-wallet-analytics/internal/domain"

// BlockRelation places a neighbor's block relative to the target's block.
func BlockRelation(block, reference int64) domain.TradeStatus {
	switch {
	case block < reference:
		return domain.TradeBefore
	case block > reference:
		return domain.TradeAfter
	}
	return domain.TradeSame
}

// CombineStatus merges the buy-side and sell-side relations of one token.
// A neighbor that is ahead on one side and behind on the other is mixed.
func CombineStatus(buy, sell domain.TradeStatus) domain.TradeStatus {
	switch {
	case buy == domain.TradeSame && sell == domain.TradeSame:
		return domain.TradeSame
	case buy != domain.TradeBefore && sell != domain.TradeBefore:
		return domain.TradeAfter
	case buy != domain.TradeAfter && sell != domain.TradeAfter:
		return domain.TradeBefore
	}
	return domain.TradeMixed
}

// ClassifyRelation maps the set of per-token statuses to a relation. Neighbors that
// always trade after the target copy it; neighbors that always trade before are copied.
func ClassifyRelation(statuses map[domain.TradeStatus]bool) domain.Relation {
	only := func(allowed ...domain.TradeStatus) bool {
		for st := range statuses {
			ok := false
			for _, a := range allowed {
				if st == a {
					ok = true
					break
				}
			}
			if !ok {
				return false
			}
		}
		return true
	}

	switch {
	case len(statuses) == 1 && statuses[domain.TradeSame]:
		return domain.RelationSimilar
	case only(domain.TradeAfter, domain.TradeSame):
		return domain.RelationCopiedBy
	case only(domain.TradeBefore, domain.TradeSame):
		return domain.RelationCopying
	}
	return domain.RelationSimilar
}
