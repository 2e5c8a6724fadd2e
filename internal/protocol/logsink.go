package protocol

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// LogSink appends input lines to a per-process-start log file under
// logs/<YYYY>/<MM>/<DD>/<HH-MM-SS>.log, mirroring the directory layout
// the extension this is adapted from builds for its own rolling logger.
// This handler only needs an append sink, not a full rotating logger —
// that concern is explicitly out of scope for the core itself.
type LogSink struct {
	mu   sync.Mutex
	file *os.File
}

func (h *LogSink) Init(core Core, initStr string) bool {
	now := time.Now()
	dir := filepath.Join("logs",
		fmt.Sprintf("%04d", now.Year()),
		fmt.Sprintf("%02d", now.Month()),
		fmt.Sprintf("%02d", now.Day()))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false
	}

	name := now.Format("15-04-05") + ".log"
	f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return false
	}
	h.file = f
	return true
}

func (h *LogSink) Call(core Core, input string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	line := time.Now().Format(time.RFC3339) + " " + input + "\n"
	if _, err := h.file.WriteString(line); err != nil {
		return "", errWrap(err, "Exception")
	}
	return "", nil
}
