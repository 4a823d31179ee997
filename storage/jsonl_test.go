package storage

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaperTradeLogger_AppendsOneLinePerRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "paper_trades.jsonl")
	logger, err := NewPaperTradeLogger(path)
	require.NoError(t, err)

	logger.Append(map[string]any{"type": "paper_trade_opened", "id": "t1"})
	logger.Append(map[string]any{"type": "paper_trade_closed", "id": "t1", "pnl_usd": 12.5})

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var lines []map[string]any
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var entry map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &entry))
		lines = append(lines, entry)
	}
	require.NoError(t, scanner.Err())

	require.Len(t, lines, 2)
	assert.Equal(t, "paper_trade_opened", lines[0]["type"])
	assert.Equal(t, "paper_trade_closed", lines[1]["type"])
	assert.Equal(t, 12.5, lines[1]["pnl_usd"])

	for _, entry := range lines {
		loggedAt, ok := entry["logged_at"].(string)
		require.True(t, ok)
		_, err := time.Parse(time.RFC3339, loggedAt)
		assert.NoError(t, err)
	}
}

func TestPaperTradeLogger_CreatesLogDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "paper_trades.jsonl")
	logger, err := NewPaperTradeLogger(path)
	require.NoError(t, err)
	assert.Equal(t, path, logger.Path())

	info, err := os.Stat(filepath.Dir(path))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
