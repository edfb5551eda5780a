package csvdata

// csv.go — carga las tablas de mercados y señales desde CSV.
//
// Las columnas se resuelven por nombre de cabecera (sin importar orden ni
// mayúsculas). Campos opcionales vacíos caen a defaults conservadores:
// liquidez vacía → 0, resolución vacía → mercado abierto.

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/alejandrodnm/polybacktest/internal/domain"
)

var (
	marketColumns = []string{"timestamp", "market_id", "yes_price", "no_price"}
	signalColumns = []string{"timestamp", "market_id", "signal_type", "entry_price", "fair_value"}
)

// Loader lee markets.csv y signals.csv desde disco.
type Loader struct {
	marketsPath string
	signalsPath string
}

// NewLoader crea un Loader. Cualquiera de las rutas puede quedar vacía si
// solo se usa uno de los dos providers.
func NewLoader(marketsPath, signalsPath string) *Loader {
	return &Loader{marketsPath: marketsPath, signalsPath: signalsPath}
}

// LoadMarkets implementa ports.MarketDataProvider.
func (l *Loader) LoadMarkets(_ context.Context, from, to time.Time) ([]domain.MarketRow, error) {
	f, err := os.Open(l.marketsPath)
	if err != nil {
		return nil, fmt.Errorf("csvdata.LoadMarkets: open %q: %w", l.marketsPath, err)
	}
	defer f.Close()

	rows, err := ReadMarkets(f)
	if err != nil {
		return nil, fmt.Errorf("csvdata.LoadMarkets: %q: %w", l.marketsPath, err)
	}
	return slices.DeleteFunc(rows, func(r domain.MarketRow) bool {
		return !inRange(r.Timestamp, from, to)
	}), nil
}

// LoadSignals implementa ports.SignalProvider.
func (l *Loader) LoadSignals(_ context.Context, from, to time.Time) ([]domain.Signal, error) {
	f, err := os.Open(l.signalsPath)
	if err != nil {
		return nil, fmt.Errorf("csvdata.LoadSignals: open %q: %w", l.signalsPath, err)
	}
	defer f.Close()

	signals, err := ReadSignals(f)
	if err != nil {
		return nil, fmt.Errorf("csvdata.LoadSignals: %q: %w", l.signalsPath, err)
	}
	return slices.DeleteFunc(signals, func(s domain.Signal) bool {
		return !inRange(s.Timestamp, from, to)
	}), nil
}

// ReadMarkets parsea la tabla de mercados y la devuelve ordenada por timestamp.
func ReadMarkets(r io.Reader) ([]domain.MarketRow, error) {
	records, idx, err := readTable(r, marketColumns)
	if err != nil {
		return nil, err
	}

	rows := make([]domain.MarketRow, 0, len(records))
	for i, rec := range records {
		line := i + 2
		ts, err := ParseTimestamp(field(rec, idx, "timestamp"))
		if err != nil {
			return nil, fmt.Errorf("line %d: timestamp: %w", line, err)
		}
		yes, err := parseFloat(field(rec, idx, "yes_price"))
		if err != nil {
			return nil, fmt.Errorf("line %d: yes_price: %w", line, err)
		}
		no, err := parseFloat(field(rec, idx, "no_price"))
		if err != nil {
			return nil, fmt.Errorf("line %d: no_price: %w", line, err)
		}
		liq, err := parseFloat(field(rec, idx, "liquidity"))
		if err != nil {
			return nil, fmt.Errorf("line %d: liquidity: %w", line, err)
		}

		rows = append(rows, domain.MarketRow{
			Timestamp:  ts,
			MarketID:   field(rec, idx, "market_id"),
			YesPrice:   yes,
			NoPrice:    no,
			Liquidity:  liq,
			Resolution: ParseResolution(field(rec, idx, "resolution")),
		})
	}

	slices.SortStableFunc(rows, func(a, b domain.MarketRow) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
	return rows, nil
}

// ReadSignals parsea la tabla de señales y la devuelve ordenada por timestamp.
func ReadSignals(r io.Reader) ([]domain.Signal, error) {
	records, idx, err := readTable(r, signalColumns)
	if err != nil {
		return nil, err
	}

	signals := make([]domain.Signal, 0, len(records))
	for i, rec := range records {
		line := i + 2
		ts, err := ParseTimestamp(field(rec, idx, "timestamp"))
		if err != nil {
			return nil, fmt.Errorf("line %d: timestamp: %w", line, err)
		}

		var nums [4]float64
		for j, col := range []string{"confidence", "edge_size", "entry_price", "fair_value"} {
			v, err := parseFloat(field(rec, idx, col))
			if err != nil {
				return nil, fmt.Errorf("line %d: %s: %w", line, col, err)
			}
			nums[j] = v
		}

		signals = append(signals, domain.Signal{
			Timestamp:  ts,
			MarketID:   field(rec, idx, "market_id"),
			SignalType: domain.Side(strings.ToLower(field(rec, idx, "signal_type"))),
			Confidence: nums[0],
			EdgeSize:   nums[1],
			EntryPrice: nums[2],
			FairValue:  nums[3],
			Strategy:   field(rec, idx, "strategy"),
		})
	}

	slices.SortStableFunc(signals, func(a, b domain.Signal) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
	return signals, nil
}

// ParseResolution normaliza el valor de resolución. Vacío o "nan" = sin resolver;
// cualquier valor distinto de yes/no se conserva y se trata como void.
func ParseResolution(s string) domain.Resolution {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "", "nan", "null", "none":
		return domain.ResolutionNone
	}
	return domain.Resolution(s)
}

// ParseTimestamp acepta RFC3339, "2006-01-02 15:04:05", "2006-01-02"
// o unix en segundos/milisegundos. Siempre devuelve UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.New("empty timestamp")
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n > 1e12 {
			return time.UnixMilli(n).UTC(), nil
		}
		return time.Unix(n, 0).UTC(), nil
	}
	for _, layout := range []string{
		time.RFC3339Nano, time.RFC3339,
		"2006-01-02 15:04:05", "2006-01-02T15:04:05", "2006-01-02",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// readTable lee todo el CSV y devuelve los registros sin cabecera y el índice
// columna → posición. Falla si falta alguna columna requerida.
func readTable(r io.Reader, required []string) ([][]string, map[string]int, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("read header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, col := range required {
		if _, ok := idx[col]; !ok {
			return nil, nil, fmt.Errorf("missing column %q", col)
		}
	}

	records, err := cr.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("read records: %w", err)
	}
	return records, idx, nil
}

func field(rec []string, idx map[string]int, col string) string {
	i, ok := idx[col]
	if !ok || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

// parseFloat trata el campo vacío como 0.
func parseFloat(s string) (float64, error) {
	if s == "" || strings.EqualFold(s, "nan") {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}

func inRange(t, from, to time.Time) bool {
	return (from.IsZero() || !t.Before(from)) && (to.IsZero() || !t.After(to))
}
