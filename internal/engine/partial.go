package engine

import (
	"github.com/alanyoungcy/copybot/internal/config"
	"github.com/alanyoungcy/copybot/internal/domain"
)

// NextPartial returns the next unfired partial take-profit level that current
// PnL has reached, with its stage index. Levels fire in order, at most one
// per evaluation cycle, so a price that gaps over several rungs still sells
// them one cycle at a time.
func NextPartial(pos domain.Position, pnlPct float64, levels []config.PartialLevel) (config.PartialLevel, int, bool) {
	if pos.PartialStage >= len(levels) {
		return config.PartialLevel{}, 0, false
	}
	lvl := levels[pos.PartialStage]
	if pnlPct < lvl.PnLPercent {
		return config.PartialLevel{}, 0, false
	}
	return lvl, pos.PartialStage, true
}
