package journal

import (
	"bytes"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"text/template"
	"time"
)

// BacktestRun mirrors the runs table.
type BacktestRun struct {
	RunID    string
	Created  time.Time
	Symbol   string
	Strategy string
	Dataset  string

	Start time.Time
	End   time.Time

	Trades       int
	Wins         int
	Losses       int
	Liquidations int
	Fees         float64

	StartBalance float64
	EndBalance   float64

	NetPL     float64
	ReturnPct float64
	WinRate   float64
	MaxDDPct  float64

	Notes []string
}

var backtestOrgFuncs = template.FuncMap{
	"mul100": func(x float64) float64 { return x * 100.0 },
	"orTime": func(t time.Time) time.Time {
		if t.IsZero() {
			return time.Now()
		}
		return t
	},
}

// RenderOrg renders the run as an org-mode entry.
func (v BacktestRun) RenderOrg() ([]byte, error) {
	t, err := template.New("backtest").Funcs(backtestOrgFuncs).Parse(BacktestOrgTemplate)
	if err != nil {
		return nil, err
	}
	buf := new(bytes.Buffer)
	if err := t.Execute(buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteOrg renders the run to path.
func (v BacktestRun) WriteOrg(path string) error {
	b, err := v.RenderOrg()
	if err != nil {
		return fmt.Errorf("render backtest %s: %w", v.RunID, err)
	}
	return os.WriteFile(path, b, 0644)
}

func (j *SQLiteJournal) RecordRun(r BacktestRun) error {
	_, err := j.db.Exec(`
		INSERT INTO runs
		(run_id, created, symbol, strategy, dataset, start_time, end_time, trades, wins, losses,
		 liquidations, fees, start_balance, end_balance, net_pl, return_pct, win_rate, max_dd_pct)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.Created.UTC(), r.Symbol, r.Strategy, r.Dataset, r.Start.UTC(), r.End.UTC(),
		r.Trades, r.Wins, r.Losses, r.Liquidations, r.Fees, r.StartBalance, r.EndBalance,
		r.NetPL, r.ReturnPct, r.WinRate, r.MaxDDPct,
	)
	return err
}

func (j *SQLiteJournal) GetRun(runID string) (BacktestRun, error) {
	var r BacktestRun
	row := j.db.QueryRow(`
		SELECT run_id, created, symbol, strategy, dataset, start_time, end_time, trades, wins, losses,
		       liquidations, fees, start_balance, end_balance, net_pl, return_pct, win_rate, max_dd_pct
		FROM runs
		WHERE run_id = ?`, runID)
	err := row.Scan(
		&r.RunID, &r.Created, &r.Symbol, &r.Strategy, &r.Dataset, &r.Start, &r.End,
		&r.Trades, &r.Wins, &r.Losses, &r.Liquidations, &r.Fees, &r.StartBalance, &r.EndBalance,
		&r.NetPL, &r.ReturnPct, &r.WinRate, &r.MaxDDPct,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return BacktestRun{}, fmt.Errorf("run %q not found", runID)
		}
		return BacktestRun{}, err
	}
	return r, nil
}

const BacktestOrgTemplate = `
* BACKTEST: {{.Strategy}} {{.Symbol}}
:PROPERTIES:
:RUN_ID:       {{if .RunID}}{{.RunID}}{{else}}(run-id?){{end}}
:STRATEGY:     {{.Strategy}}
:SYMBOL:       {{.Symbol}}
:DATASET:      {{if .Dataset}}{{.Dataset}}{{else}}(dataset?){{end}}
:START_DATE:   {{.Start.Format "2006-01-02"}}
:END_DATE:     {{.End.Format "2006-01-02"}}
:START_BAL:    {{printf "%.2f" .StartBalance}}
:END_BAL:      {{printf "%.2f" .EndBalance}}
:NET_PL:       {{printf "%.2f" .NetPL}}
:RETURN_PCT:   {{printf "%.2f" .ReturnPct}}
:MAX_DD_PCT:   {{printf "%.2f" .MaxDDPct}}
:TRADES:       {{.Trades}}
:WINS:         {{.Wins}}
:LOSSES:       {{.Losses}}
:LIQUIDATIONS: {{.Liquidations}}
:FEES:         {{printf "%.4f" .Fees}}
:WIN_RATE:     {{printf "%.2f" (mul100 .WinRate)}}
:CREATED:      [{{(orTime .Created).Format "2006-01-02 Mon 15:04"}}]
:END:

** Performance Summary
- Net P/L:       *{{printf "%.2f" .NetPL}}*
- Return:        *{{printf "%.2f" .ReturnPct}}%*
- Max Drawdown:  *{{printf "%.2f" .MaxDDPct}}%*
- Win Rate:      *{{printf "%.2f" (mul100 .WinRate)}}%*
- Fees:          *{{printf "%.4f" .Fees}}*

** Trade Distribution
| Outcome      | Count |
|--------------+-------|
| Wins         | {{.Wins}} |
| Losses       | {{.Losses}} |
| Liquidations | {{.Liquidations}} |
| Total        | {{.Trades}} |

{{- if .Notes }}
** Observations
{{- range .Notes }}
- {{.}}
{{- end }}
{{- end }}
`
