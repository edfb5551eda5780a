package domain

import "time"

// Side es el lado de un mercado binario.
type Side string

const (
	SideYes Side = "yes"
	SideNo  Side = "no"
)

// Valid devuelve true si el lado es "yes" o "no".
func (s Side) Valid() bool {
	return s == SideYes || s == SideNo
}

// Resolution es el resultado final de un mercado. Vacío = sin resolver.
type Resolution string

const (
	ResolutionNone Resolution = ""
	ResolutionYes  Resolution = "yes"
	ResolutionNo   Resolution = "no"
	ResolutionVoid Resolution = "void" // cualquier otro valor se trata igual
)

// Resolved devuelve true si la fila trae un valor de resolución.
func (r Resolution) Resolved() bool {
	return r != ResolutionNone
}

// MarketRow es una fila del histórico de mercados.
type MarketRow struct {
	Timestamp  time.Time
	MarketID   string
	YesPrice   float64
	NoPrice    float64
	Liquidity  float64    // 0 si la fuente no la trae
	Resolution Resolution // vacío = mercado abierto en ese instante
}

// Signal es una señal de trading producida aguas arriba.
// FairValue se trata como probabilidad opaca; el engine no sabe cómo se calculó.
type Signal struct {
	Timestamp  time.Time
	MarketID   string
	SignalType Side
	Confidence float64
	EdgeSize   float64
	EntryPrice float64
	FairValue  float64
	Strategy   string
}
