package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/rotisserie/eris"
)

// JSONLZstdWriter appends JSON lines to hourly zstd files under baseDir.
type JSONLZstdWriter struct {
	baseDir string
	prefix  string
	now     func() time.Time

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

func NewJSONLZstdWriter(baseDir, prefix string) *JSONLZstdWriter {
	return &JSONLZstdWriter{
		baseDir: baseDir,
		prefix:  prefix,
		now:     time.Now,
	}
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *JSONLZstdWriter) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	hour := w.now().UTC().Format("2006-01-02-15")
	if hour != w.curHour {
		if err := w.rotateLocked(hour); err != nil {
			return err
		}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return eris.Wrap(err, "encode log entry")
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	return w.w.Flush()
}

func (w *JSONLZstdWriter) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	if err := os.MkdirAll(w.baseDir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(w.pathForHour(hour), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 128*1024)
	w.curHour = hour
	return nil
}

func (w *JSONLZstdWriter) closeLocked() error {
	var err1 error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err1 = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	w.curHour = ""
	return err1
}

func (w *JSONLZstdWriter) pathForHour(hour string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, hour))
}

// ReadAll decodes every line of every prefix file in dir, oldest hour first.
// Files appended across restarts hold several zstd frames; the decoder
// reads them back to back.
func ReadAll[T any](dir, prefix string) ([]T, error) {
	paths, err := filepath.Glob(filepath.Join(dir, prefix+"-*.jsonl.zst"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	var out []T
	for _, p := range paths {
		if err := readFile(p, func(line []byte) error {
			var v T
			if err := json.Unmarshal(line, &v); err != nil {
				return eris.Wrapf(err, "%s", filepath.Base(p))
			}
			out = append(out, v)
			return nil
		}); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func readFile(path string, fn func([]byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()
	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		if len(sc.Bytes()) == 0 {
			continue
		}
		if err := fn(sc.Bytes()); err != nil {
			return err
		}
	}
	return sc.Err()
}

// TurnEntry is one resolved battle turn.
type TurnEntry struct {
	Chain           string   `json:"chain"`
	BattleID        uint64   `json:"battle_id"`
	Turn            uint32   `json:"turn"`
	Actions         []string `json:"actions"`
	AttackerDamage  uint64   `json:"attacker_damage"`
	DefenderDamage  uint64   `json:"defender_damage"`
	AttackerLosses  []uint32 `json:"attacker_losses"`
	DefenderLosses  []uint32 `json:"defender_losses"`
	TimestampMicros uint64   `json:"ts"`
	Reason          string   `json:"reason,omitempty"`
}

// AuditEntry records an accepted state change on a chain.
type AuditEntry struct {
	Chain  string          `json:"chain"`
	Kind   string          `json:"kind"`
	Op     string          `json:"op"`
	Micros uint64          `json:"ts"`
	Body   json.RawMessage `json:"body,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
}

// TurnLogger writes one JSONL entry per resolved battle turn (compressed).
type TurnLogger struct{ w *JSONLZstdWriter }

func NewTurnLogger(dataDir string) *TurnLogger {
	return &TurnLogger{w: NewJSONLZstdWriter(filepath.Join(dataDir, "turns"), "turns")}
}

func (l *TurnLogger) WriteTurn(v TurnEntry) error { return l.w.Write(v) }
func (l *TurnLogger) Close() error                { return l.w.Close() }

// AuditLogger writes audit JSONL entries (compressed).
type AuditLogger struct{ w *JSONLZstdWriter }

func NewAuditLogger(dataDir string) *AuditLogger {
	return &AuditLogger{w: NewJSONLZstdWriter(filepath.Join(dataDir, "audit"), "audit")}
}

func (l *AuditLogger) WriteAudit(v AuditEntry) error { return l.w.Write(v) }
func (l *AuditLogger) Close() error                  { return l.w.Close() }

func ReadTurns(dataDir string) ([]TurnEntry, error) {
	return ReadAll[TurnEntry](filepath.Join(dataDir, "turns"), "turns")
}

func ReadAudit(dataDir string) ([]AuditEntry, error) {
	return ReadAll[AuditEntry](filepath.Join(dataDir, "audit"), "audit")
}
