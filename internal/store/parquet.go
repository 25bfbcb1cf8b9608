package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/shopspring/decimal"

	"quantdinger/internal/domain"
)

// TradeArchive exports the trade audit trail to Parquet files on disk,
// one file per UTC trading date:
//
//	<DataDir>/trades/<YYYY-MM-DD>.parquet
type TradeArchive struct {
	DataDir string
}

// NewTradeArchive creates a TradeArchive rooted at the given directory.
func NewTradeArchive(dataDir string) *TradeArchive {
	return &TradeArchive{DataDir: dataDir}
}

// ArchiveRecord is the Parquet schema for archived trades. Prices are
// stored as strings to keep the decimal representation exact.
type ArchiveRecord struct {
	OrderID    string `parquet:"order_id"`
	StrategyID string `parquet:"strategy_id"`
	Symbol     string `parquet:"symbol"`
	Side       string `parquet:"side"`
	Qty        int64  `parquet:"qty"`
	Price      string `parquet:"price"`
	Value      string `parquet:"value"`
	Profit     string `parquet:"profit"`
	Timestamp  int64  `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
}

func (a *TradeArchive) path(date string) string {
	return filepath.Join(a.DataDir, "trades", date+".parquet")
}

// Archive writes the trades for one date to its Parquet file, replacing
// any previous archive for that date. Returns the file path.
func (a *TradeArchive) Archive(_ context.Context, date string, trades []domain.Trade) (string, error) {
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return "", fmt.Errorf("%w: bad date %q", domain.ErrValidation, date)
	}

	records := make([]ArchiveRecord, 0, len(trades))
	for _, tr := range trades {
		rec := ArchiveRecord{
			OrderID:    tr.OrderID,
			StrategyID: tr.StrategyID,
			Symbol:     tr.Symbol,
			Side:       string(tr.Side),
			Qty:        tr.Qty,
			Price:      tr.Price.String(),
			Value:      tr.Value.String(),
			Timestamp:  tr.CreatedAt.UnixMilli(),
		}
		if tr.Profit.Valid {
			rec.Profit = tr.Profit.Decimal.String()
		}
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Timestamp < records[j].Timestamp })

	path := a.path(date)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}

	// Write to a temp file and rename for atomic replacement.
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return "", err
	}
	w := parquet.NewGenericWriter[ArchiveRecord](f)
	if _, err := w.Write(records); err != nil {
		f.Close()
		os.Remove(tmp)
		return "", fmt.Errorf("writing parquet: %w", err)
	}
	if err := w.Close(); err != nil {
		f.Close()
		os.Remove(tmp)
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return "", err
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", err
	}
	return path, nil
}

// Read loads the archived trades for one date.
func (a *TradeArchive) Read(_ context.Context, date string) ([]domain.Trade, error) {
	records, err := parquet.ReadFile[ArchiveRecord](a.path(date))
	if err != nil {
		return nil, err
	}

	trades := make([]domain.Trade, 0, len(records))
	for _, rec := range records {
		tr := domain.Trade{
			OrderID:    rec.OrderID,
			StrategyID: rec.StrategyID,
			Symbol:     rec.Symbol,
			Side:       domain.OrderSide(rec.Side),
			Qty:        rec.Qty,
			CreatedAt:  time.UnixMilli(rec.Timestamp).UTC(),
		}
		if tr.Price, err = decimal.NewFromString(rec.Price); err != nil {
			return nil, fmt.Errorf("parsing price in %s: %w", date, err)
		}
		if tr.Value, err = decimal.NewFromString(rec.Value); err != nil {
			return nil, fmt.Errorf("parsing value in %s: %w", date, err)
		}
		if rec.Profit != "" {
			d, err := decimal.NewFromString(rec.Profit)
			if err != nil {
				return nil, fmt.Errorf("parsing profit in %s: %w", date, err)
			}
			tr.Profit = decimal.NullDecimal{Decimal: d, Valid: true}
		}
		trades = append(trades, tr)
	}
	return trades, nil
}

// Dates lists the archive dates present on disk, ascending.
func (a *TradeArchive) Dates() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(a.DataDir, "trades"))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var dates []string
	for _, e := range entries {
		name := e.Name()
		if filepath.Ext(name) != ".parquet" {
			continue
		}
		dates = append(dates, name[:len(name)-len(".parquet")])
	}
	sort.Strings(dates)
	return dates, nil
}
