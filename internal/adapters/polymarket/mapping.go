package polymarket

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/alejandrodnm/polybacktest/internal/domain"
)

// decisivePrice es el precio de outcome a partir del cual un mercado cerrado
// se considera resuelto a ese lado. Por debajo se trata como void.
const decisivePrice = 0.99

// MarketInfo es lo que el histórico necesita saber de un mercado.
type MarketInfo struct {
	ConditionID string
	Question    string
	YesTokenID  string
	NoTokenID   string
	Liquidity   float64
	EndDate     time.Time // cero si Gamma no la trae
	Closed      bool
	Resolution  domain.Resolution // solo si Closed
}

// mapMarketInfo decodifica los arrays serializados de Gamma y deduce la resolución.
func mapMarketInfo(gm gammaMarket) (MarketInfo, error) {
	var tokens, outcomes []string
	if err := json.Unmarshal([]byte(gm.ClobTokenIDs), &tokens); err != nil {
		return MarketInfo{}, fmt.Errorf("decode clobTokenIds: %w", err)
	}
	if len(tokens) != 2 {
		return MarketInfo{}, fmt.Errorf("expected 2 tokens, got %d", len(tokens))
	}
	if gm.Outcomes != "" {
		if err := json.Unmarshal([]byte(gm.Outcomes), &outcomes); err != nil {
			return MarketInfo{}, fmt.Errorf("decode outcomes: %w", err)
		}
	}

	// Gamma suele listar Yes primero, pero si trae outcomes los respetamos.
	yesIdx := 0
	if len(outcomes) == 2 && strings.EqualFold(outcomes[1], "yes") {
		yesIdx = 1
	}

	info := MarketInfo{
		ConditionID: gm.ConditionID,
		Question:    gm.Question,
		YesTokenID:  tokens[yesIdx],
		NoTokenID:   tokens[1-yesIdx],
		Closed:      gm.Closed,
	}
	if v, err := gm.Liquidity.Float64(); err == nil {
		info.Liquidity = v
	}
	info.EndDate = parseEndDate(gm.EndDate)
	if gm.Closed {
		info.Resolution = resolutionFromPrices(gm.OutcomePrices, yesIdx)
	}
	return info, nil
}

// resolutionFromPrices devuelve yes/no si algún outcome cerró en precio
// decisivo, void en cualquier otro caso.
func resolutionFromPrices(raw string, yesIdx int) domain.Resolution {
	prices, err := parseOutcomePrices(raw)
	if err != nil || len(prices) != 2 {
		return domain.ResolutionVoid
	}
	switch {
	case prices[yesIdx] >= decisivePrice:
		return domain.ResolutionYes
	case prices[1-yesIdx] >= decisivePrice:
		return domain.ResolutionNo
	}
	return domain.ResolutionVoid
}

// parseOutcomePrices acepta `["1","0"]` o `[1,0]`.
func parseOutcomePrices(raw string) ([]float64, error) {
	if raw == "" {
		return nil, errors.New("empty outcomePrices")
	}
	var nums []json.Number
	if err := json.Unmarshal([]byte(raw), &nums); err != nil {
		return nil, fmt.Errorf("decode outcomePrices: %w", err)
	}
	out := make([]float64, 0, len(nums))
	for _, n := range nums {
		v, err := n.Float64()
		if err != nil {
			return nil, fmt.Errorf("outcome price %q: %w", n, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// parseEndDate prueba los formatos que usa Gamma; cero si ninguno encaja.
func parseEndDate(s string) time.Time {
	for _, layout := range []string{
		time.RFC3339,
		"2006-01-02T15:04:05.000Z",
		"2006-01-02 15:04:05-07",
		"2006-01-02",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// mergeSeries combina las series YES y NO en filas por timestamp.
// Si un lado no tiene punto en ese instante se completa con el complemento
// del otro. La última fila de un mercado cerrado lleva la resolución.
func mergeSeries(info MarketInfo, yes, no []pricePoint) []domain.MarketRow {
	yesAt := make(map[int64]float64, len(yes))
	noAt := make(map[int64]float64, len(no))
	var stamps []int64
	for _, p := range yes {
		if _, seen := yesAt[p.T]; !seen {
			stamps = append(stamps, p.T)
		}
		yesAt[p.T] = p.P
	}
	for _, p := range no {
		_, inYes := yesAt[p.T]
		_, seen := noAt[p.T]
		if !inYes && !seen {
			stamps = append(stamps, p.T)
		}
		noAt[p.T] = p.P
	}
	slices.Sort(stamps)

	rows := make([]domain.MarketRow, 0, len(stamps))
	for _, ts := range stamps {
		y, hasYes := yesAt[ts]
		n, hasNo := noAt[ts]
		switch {
		case !hasNo:
			n = 1 - y
		case !hasYes:
			y = 1 - n
		}
		rows = append(rows, domain.MarketRow{
			Timestamp: time.Unix(ts, 0).UTC(),
			MarketID:  info.ConditionID,
			YesPrice:  y,
			NoPrice:   n,
			Liquidity: info.Liquidity,
		})
	}

	if info.Closed && len(rows) > 0 {
		rows[len(rows)-1].Resolution = info.Resolution
	}
	return rows
}
