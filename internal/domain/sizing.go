package domain

import "math"

// KellyFraction calcula la fracción de Kelly para una apuesta binaria.
//
// Fórmula: f* = (b·p - q) / b, con q = 1 - p
//   - p: probabilidad de ganar (fair value)
//   - b: odds decimales netas (ganancia por $1 apostado)
//
// Devuelve 0 si p ∉ (0,1), b <= 0 o algún input es NaN.
// El resultado queda en [0, MaxKellyFraction].
func KellyFraction(winProb, odds float64) float64 {
	if math.IsNaN(winProb) || math.IsNaN(odds) || math.IsInf(odds, 0) {
		return 0
	}
	if winProb <= 0 || winProb >= 1 {
		return 0
	}
	if odds <= 0 {
		return 0
	}
	f := (odds*winProb - (1 - winProb)) / odds
	if f < 0 {
		return 0
	}
	if f > MaxKellyFraction {
		return MaxKellyFraction
	}
	return f
}

// ImpliedOdds convierte un precio (o probabilidad) en odds netas: b = 1/price - 1.
// Devuelve 0 para precios fuera de (0,1).
func ImpliedOdds(price float64) float64 {
	if price <= 0 || price >= 1 {
		return 0
	}
	return 1/price - 1
}

// ExitReference devuelve el precio de referencia de salida antes de slippage.
//
//	yes  → 1.0
//	no   → 0.0
//	otro → entryPrice (break-even)
func ExitReference(res Resolution, entryPrice float64) float64 {
	switch res {
	case ResolutionYes:
		return 1.0
	case ResolutionNo:
		return 0.0
	default:
		return entryPrice
	}
}

// ApplyEntrySlippage devuelve el precio de fill y el slippage por unidad.
// El slippage siempre es adverso: se paga más caro.
func ApplyEntrySlippage(price, slippagePct float64) (fill, slippage float64) {
	slippage = price * slippagePct
	return price + slippage, slippage
}

// ApplyExitSlippage devuelve el precio de salida real y el slippage por unidad.
// Se cobra menos, nunca por debajo de 0.
func ApplyExitSlippage(price, slippagePct float64) (exit, slippage float64) {
	slippage = price * slippagePct
	exit = price - slippage
	if exit < 0 {
		exit = 0
	}
	return exit, slippage
}
