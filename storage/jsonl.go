package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/0xferal/roundbot/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// PAPER TRADE LOG - Append-only JSONL record stream
// ═══════════════════════════════════════════════════════════════════════════════
//
// One JSON object per line. Records are self-describing via their "type"
// field; the file is the durable audit trail for the paper ledger.
//
// ═══════════════════════════════════════════════════════════════════════════════

// PaperTradeLogger appends records to a JSONL file
type PaperTradeLogger struct {
	mu   sync.Mutex
	path string
}

// NewPaperTradeLogger creates the log directory and returns a logger
func NewPaperTradeLogger(path string) (*PaperTradeLogger, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return &PaperTradeLogger{path: path}, nil
}

// Append writes one record as a single JSON line, stamped with the write
// time. Errors are logged and swallowed so a bad disk never stalls the
// trading loop.
func (l *PaperTradeLogger) Append(entry map[string]any) {
	l.mu.Lock()
	defer l.mu.Unlock()

	stamped := make(map[string]any, len(entry)+1)
	stamped["logged_at"] = types.IsoUTC(float64(time.Now().UnixNano()) / 1e9)
	for k, v := range entry {
		stamped[k] = v
	}

	line, err := json.Marshal(stamped)
	if err != nil {
		log.Error().Err(err).Msg("Paper log marshal failed")
		return
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		log.Error().Err(err).Str("path", l.path).Msg("Paper log open failed")
		return
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		log.Error().Err(err).Str("path", l.path).Msg("Paper log write failed")
	}
}

// Path returns the log file location
func (l *PaperTradeLogger) Path() string {
	return l.path
}
