package journal

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBacktestRunWriteOrg(t *testing.T) {
	t.Parallel()

	run := BacktestRun{
		RunID:        "run-42",
		Created:      time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		Symbol:       "BTCUSDT",
		Strategy:     "bracket",
		Start:        time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:          time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		Trades:       2,
		Wins:         1,
		Losses:       1,
		Liquidations: 1,
		StartBalance: 1000,
		EndBalance:   1050,
		NetPL:        50,
		ReturnPct:    5,
		WinRate:      0.5,
		Notes:        []string{"liquidated once in the January drawdown"},
	}

	path := filepath.Join(t.TempDir(), "run.org")
	require.NoError(t, run.WriteOrg(path))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(b)

	assert.Contains(t, out, "* BACKTEST: bracket BTCUSDT")
	assert.Contains(t, out, ":RUN_ID:       run-42")
	assert.Contains(t, out, ":START_DATE:   2024-01-01")
	assert.Contains(t, out, ":LIQUIDATIONS: 1")
	assert.Contains(t, out, ":WIN_RATE:     50.00")
	assert.Contains(t, out, "** Observations")
	assert.Contains(t, out, "- liquidated once in the January drawdown")
}

func TestBacktestRunRenderOrgNoNotes(t *testing.T) {
	t.Parallel()

	out, err := BacktestRun{Symbol: "ETHUSDT", Strategy: "noop"}.RenderOrg()
	require.NoError(t, err)
	assert.Contains(t, string(out), "(run-id?)")
	assert.NotContains(t, string(out), "** Observations")
}
