package polymarket

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"strconv"
	"time"

	"github.com/alejandrodnm/polybacktest/internal/domain"
	"golang.org/x/sync/errgroup"
)

const (
	pricesHistoryPath = "/prices-history"

	// DefaultFidelity es la resolución de la serie en minutos.
	DefaultFidelity = 60

	historyWorkers = 4
)

// fetchPriceHistory descarga la serie de precios de un token.
// Sin ventana pide el histórico completo (interval=max).
func (c *Client) fetchPriceHistory(ctx context.Context, tokenID string, from, to time.Time, fidelity int) ([]pricePoint, error) {
	q := url.Values{}
	q.Set("market", tokenID)
	q.Set("fidelity", strconv.Itoa(fidelity))
	if from.IsZero() && to.IsZero() {
		q.Set("interval", "max")
	}
	if !from.IsZero() {
		q.Set("startTs", strconv.FormatInt(from.Unix(), 10))
	}
	if !to.IsZero() {
		q.Set("endTs", strconv.FormatInt(to.Unix(), 10))
	}

	var resp pricesHistoryResponse
	if err := c.get(ctx, c.historyLimiter, c.clobBase+pricesHistoryPath+"?"+q.Encode(), &resp); err != nil {
		return nil, fmt.Errorf("polymarket.fetchPriceHistory %s: %w", tokenID, err)
	}
	return resp.History, nil
}

// HistoryProvider implementa ports.MarketDataProvider sobre la API pública de
// Polymarket para un conjunto fijo de condition_ids.
type HistoryProvider struct {
	client       *Client
	conditionIDs []string
	fidelity     int
}

// NewHistoryProvider crea el provider. fidelity <= 0 usa DefaultFidelity.
func NewHistoryProvider(client *Client, conditionIDs []string, fidelity int) *HistoryProvider {
	if fidelity <= 0 {
		fidelity = DefaultFidelity
	}
	return &HistoryProvider{client: client, conditionIDs: conditionIDs, fidelity: fidelity}
}

// LoadMarkets descarga y combina las series YES/NO de cada mercado.
// Un mercado cerrado solo lleva resolución si la ventana cubre su fecha de fin.
func (p *HistoryProvider) LoadMarkets(ctx context.Context, from, to time.Time) ([]domain.MarketRow, error) {
	infos, err := p.client.FetchMarketInfo(ctx, p.conditionIDs)
	if err != nil {
		return nil, fmt.Errorf("polymarket.LoadMarkets: %w", err)
	}

	perMarket := make([][]domain.MarketRow, len(p.conditionIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(historyWorkers)

	for i, cid := range p.conditionIDs {
		i, cid := i, cid
		info, ok := infos[cid]
		if !ok {
			slog.Warn("polymarket: market not found in gamma", "condition_id", cid)
			continue
		}
		if info.Closed && !to.IsZero() && !info.EndDate.IsZero() && to.Before(info.EndDate) {
			info.Closed = false
		}

		g.Go(func() error {
			yes, err := p.client.fetchPriceHistory(gctx, info.YesTokenID, from, to, p.fidelity)
			if err != nil {
				return err
			}
			no, err := p.client.fetchPriceHistory(gctx, info.NoTokenID, from, to, p.fidelity)
			if err != nil {
				return err
			}
			perMarket[i] = mergeSeries(info, yes, no)
			slog.Debug("polymarket: history fetched",
				"condition_id", cid,
				"rows", len(perMarket[i]),
				"closed", info.Closed,
			)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("polymarket.LoadMarkets: %w", err)
	}

	var rows []domain.MarketRow
	for _, mr := range perMarket {
		rows = append(rows, mr...)
	}
	slices.SortStableFunc(rows, func(a, b domain.MarketRow) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
	return rows, nil
}
