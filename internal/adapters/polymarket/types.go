package polymarket

import "encoding/json"

// DTOs raw de la API de Polymarket. Solo se usan dentro de este paquete.
// La conversión a domain entities se hace en mapping.go.

// --- CLOB API ---

// pricesHistoryResponse es la respuesta de GET /prices-history.
type pricesHistoryResponse struct {
	History []pricePoint `json:"history"`
}

// pricePoint es un punto de la serie: t en unix segundos, p precio del token.
type pricePoint struct {
	T int64   `json:"t"`
	P float64 `json:"p"`
}

// --- Gamma API ---

// gammaMarketsResponse es la respuesta de GET /markets de Gamma.
type gammaMarketsResponse []gammaMarket

// gammaMarket contiene la metadata de un mercado.
// Gamma devuelve algunos campos numéricos como strings JSON, usamos json.Number.
// Outcomes, OutcomePrices y ClobTokenIDs son arrays JSON serializados como string.
type gammaMarket struct {
	ConditionID   string      `json:"conditionId"`
	Question      string      `json:"question"`
	Slug          string      `json:"slug"`
	Outcomes      string      `json:"outcomes"`
	OutcomePrices string      `json:"outcomePrices"`
	ClobTokenIDs  string      `json:"clobTokenIds"`
	EndDate       string      `json:"endDate"`
	Liquidity     json.Number `json:"liquidity"`
	Active        bool        `json:"active"`
	Closed        bool        `json:"closed"`
}
