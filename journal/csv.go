package journal

import (
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

var (
	fillHeader     = []string{"order_id", "symbol", "side", "type", "role", "quantity", "price", "fee", "maker", "realized", "time"}
	positionHeader = []string{"symbol", "side", "quantity", "entry_price", "close_price", "leverage", "realized_profit", "fees", "adjustments", "liquidated", "opened_at", "closed_at"}
	balanceHeader  = []string{"time", "asset", "total", "available"}
)

// CSVJournal writes fills.csv, positions.csv and balances.csv into a
// directory.
type CSVJournal struct {
	fills     *csv.Writer
	positions *csv.Writer
	balances  *csv.Writer
	files     []*os.File
}

func NewCSV(dir string) (*CSVJournal, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	j := &CSVJournal{}
	open := func(name string, header []string) (*csv.Writer, error) {
		f, err := os.Create(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		j.files = append(j.files, f)
		w := csv.NewWriter(f)
		if err := w.Write(header); err != nil {
			return nil, err
		}
		w.Flush()
		return w, w.Error()
	}

	var err error
	if j.fills, err = open("fills.csv", fillHeader); err != nil {
		j.closeFiles()
		return nil, err
	}
	if j.positions, err = open("positions.csv", positionHeader); err != nil {
		j.closeFiles()
		return nil, err
	}
	if j.balances, err = open("balances.csv", balanceHeader); err != nil {
		j.closeFiles()
		return nil, err
	}
	return j, nil
}

func (j *CSVJournal) RecordFill(r FillRecord) error {
	return write(j.fills, []string{
		r.OrderID,
		r.Symbol,
		r.Side,
		r.Type,
		r.Role,
		f(r.Quantity),
		f(r.Price),
		f(r.Fee),
		strconv.FormatBool(r.Maker),
		f(r.Realized),
		ts(r.Time),
	})
}

func (j *CSVJournal) RecordPosition(r PositionRecord) error {
	return write(j.positions, []string{
		r.Symbol,
		r.Side,
		f(r.Quantity),
		f(r.EntryPrice),
		f(r.ClosePrice),
		strconv.Itoa(r.Leverage),
		f(r.RealizedProfit),
		f(r.Fees),
		strconv.Itoa(r.Adjustments),
		strconv.FormatBool(r.Liquidated),
		ts(r.OpenedAt),
		ts(r.ClosedAt),
	})
}

func (j *CSVJournal) RecordBalance(r BalanceSnapshot) error {
	return write(j.balances, []string{
		ts(r.Time),
		r.Asset,
		f(r.Total),
		f(r.Available),
	})
}

func (j *CSVJournal) Close() error {
	var errs []error
	for _, w := range []*csv.Writer{j.fills, j.positions, j.balances} {
		w.Flush()
		errs = append(errs, w.Error())
	}
	errs = append(errs, j.closeFiles())
	return errors.Join(errs...)
}

func (j *CSVJournal) closeFiles() error {
	var errs []error
	for _, f := range j.files {
		errs = append(errs, f.Close())
	}
	j.files = nil
	return errors.Join(errs...)
}

func write(w *csv.Writer, rec []string) error {
	if err := w.Write(rec); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

// f prints the shortest decimal that round-trips, so prices keep the
// precision of the instrument without a fixed scale.
func f(x float64) string {
	return decimal.NewFromFloat(x).String()
}

func ts(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
