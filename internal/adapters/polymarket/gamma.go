package polymarket

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

const (
	gammaMarketsPath  = "/markets"
	gammaConditionMax = 20
)

// FetchMarketInfo obtiene tokens, liquidez y estado de resolución de Gamma
// para los condition_ids dados. Los que Gamma no devuelve no aparecen en el map.
func (c *Client) FetchMarketInfo(ctx context.Context, conditionIDs []string) (map[string]MarketInfo, error) {
	raw, err := c.fetchGammaMarkets(ctx, conditionIDs)
	if err != nil {
		return nil, fmt.Errorf("gamma.FetchMarketInfo: %w", err)
	}

	out := make(map[string]MarketInfo, len(raw))
	for cid, gm := range raw {
		info, err := mapMarketInfo(gm)
		if err != nil {
			slog.Warn("polymarket: skipping market with unusable gamma data",
				"condition_id", cid, "err", err)
			continue
		}
		out[cid] = info
	}

	slog.Debug("gamma lookup complete",
		"requested", len(conditionIDs),
		"found", len(out),
	)
	return out, nil
}

// fetchGammaMarkets consulta Gamma en lotes de gammaConditionMax.
// Un lote fallido se omite; solo el contexto cancelado aborta.
func (c *Client) fetchGammaMarkets(ctx context.Context, conditionIDs []string) (map[string]gammaMarket, error) {
	result := make(map[string]gammaMarket, len(conditionIDs))

	for i := 0; i < len(conditionIDs); i += gammaConditionMax {
		end := min(i+gammaConditionMax, len(conditionIDs))
		batch := conditionIDs[i:end]

		endpoint := fmt.Sprintf("%s%s?condition_ids=%s&limit=%d",
			c.gammaBase,
			gammaMarketsPath,
			strings.Join(batch, ","),
			gammaConditionMax,
		)

		var resp gammaMarketsResponse
		if err := c.get(ctx, c.gammaLimiter, endpoint, &resp); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			slog.Debug("gamma batch failed, skipping",
				"batch", fmt.Sprintf("%d-%d", i, end),
				"err", err,
			)
			continue
		}

		for _, gm := range resp {
			result[gm.ConditionID] = gm
		}
	}

	return result, nil
}
