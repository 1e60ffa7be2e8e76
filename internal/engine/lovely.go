package engine

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unsafe"

	"github.com/panjf2000/ants"
	"github.com/pkg/errors"

	"github.com/lovely-injector/lovely/internal/log"
)

// Lovely is the default runtime. A chunk whose name matches a file in the mod
// directory is replaced by that file; every other chunk passes through.
type Lovely struct {
	callOriginal LoadBufferX
	dumpAll      bool
	modDir       string
	dumpDir      string
	workers      int
	logger       *log.Logger

	pool    *ants.Pool
	pending sync.WaitGroup
}

type Option func(*Lovely)

// WithModDir sets where replacement chunks are looked up.
func WithModDir(dir string) Option {
	return func(l *Lovely) { l.modDir = dir }
}

// WithDumpDir sets where chunks are written with dump-all.
func WithDumpDir(dir string) Option {
	return func(l *Lovely) { l.dumpDir = dir }
}

func WithLogger(logger *log.Logger) Option {
	return func(l *Lovely) { l.logger = logger }
}

func WithDumpWorkers(n int) Option {
	return func(l *Lovely) { l.workers = n }
}

// New returns a runtime that calls callOriginal to load chunks. With dumpAll
// every loaded chunk is also written to the dump directory.
func New(callOriginal LoadBufferX, dumpAll bool, opts ...Option) (*Lovely, error) {
	if callOriginal == nil {
		return nil, errors.New("nil original loader")
	}
	l := &Lovely{
		callOriginal: callOriginal,
		dumpAll:      dumpAll,
		workers:      4,
		logger:       log.Nop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	if dumpAll {
		if l.dumpDir == "" {
			return nil, errors.New("dump-all needs a dump directory")
		}
		if err := os.MkdirAll(l.dumpDir, 0o755); err != nil {
			return nil, errors.Wrap(err, "create dump dir")
		}
		pool, err := ants.NewPool(l.workers)
		if err != nil {
			return nil, errors.Wrap(err, "dump pool")
		}
		l.pool = pool
	}
	return l, nil
}

// ApplyBufferPatches loads the chunk the host asked for, or its replacement.
func (l *Lovely) ApplyBufferPatches(state unsafe.Pointer, buf *byte, size int, name, mode *byte) uint32 {
	chunk := ChunkName(GoString(name))

	if replacement, ok := l.replacement(chunk); ok {
		l.logger.Info("replacing chunk", log.String("chunk", chunk), log.Int("size", len(replacement)))
		l.dump(chunk, replacement)
		if len(replacement) == 0 {
			// a zero-length buffer still needs a valid pointer
			replacement = []byte{0}
			return l.callOriginal(state, &replacement[0], 0, name, mode)
		}
		return l.callOriginal(state, &replacement[0], len(replacement), name, mode)
	}

	if l.dumpAll && buf != nil && size > 0 {
		l.dump(chunk, unsafe.Slice(buf, size))
	}
	return l.callOriginal(state, buf, size, name, mode)
}

// replacement reads the mod file for chunk, if there is one.
func (l *Lovely) replacement(chunk string) ([]byte, bool) {
	if l.modDir == "" || chunk == "" {
		return nil, false
	}
	rel, ok := safeRel(chunk)
	if !ok {
		return nil, false
	}
	data, err := os.ReadFile(filepath.Join(l.modDir, rel))
	if err != nil {
		if !os.IsNotExist(err) {
			l.logger.Warn("reading replacement", log.String("chunk", chunk), log.Err(err))
		}
		return nil, false
	}
	return data, true
}

// dump copies data and writes it on the pool. The host owns data only for
// the duration of the call.
func (l *Lovely) dump(chunk string, data []byte) {
	if !l.dumpAll {
		return
	}
	rel, ok := safeRel(chunk)
	if !ok {
		return
	}
	buf := append([]byte(nil), data...)
	path := filepath.Join(l.dumpDir, rel)
	l.pending.Add(1)
	err := l.pool.Submit(func() {
		defer l.pending.Done()
		if err := writeDump(path, buf); err != nil {
			l.logger.Warn("dumping chunk", log.String("chunk", chunk), log.Err(err))
		}
	})
	if err != nil {
		l.pending.Done()
		l.logger.Warn("dump pool", log.String("chunk", chunk), log.Err(err))
	}
}

func writeDump(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Flush waits for queued dumps.
func (l *Lovely) Flush() {
	l.pending.Wait()
}

// Close waits for queued dumps and stops the pool.
func (l *Lovely) Close() {
	l.Flush()
	if l.pool != nil {
		l.pool.Release()
	}
}

// ChunkName strips the "@" the host prefixes to file-backed chunk names.
func ChunkName(name string) string {
	return strings.TrimPrefix(name, "@")
}

// safeRel maps a chunk name to a relative path that stays inside its root.
func safeRel(chunk string) (string, bool) {
	rel := filepath.Clean(filepath.FromSlash(chunk))
	if rel == "." || filepath.IsAbs(rel) || filepath.VolumeName(rel) != "" ||
		strings.HasPrefix(rel, string(filepath.Separator)) {
		return "", false
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return rel, true
}
