package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	logx "framesched/pkg/logx"
)

// fileStore appends JSON Lines.
//
// Files:
//   - <prefix>.faults.jsonl
//   - <prefix>.frames.jsonl
type fileStore struct {
	log logx.Logger

	mu         sync.Mutex
	faultsPath string
	faults     *os.File
	frames     *os.File
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	faultsPath := prefix + ".faults.jsonl"
	ff, err := os.OpenFile(faultsPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	fr, err := os.OpenFile(prefix+".frames.jsonl", os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		_ = ff.Close()
		return nil, err
	}
	log.Debug("file store opened", logx.String("prefix", prefix))
	return &fileStore{log: log, faultsPath: faultsPath, faults: ff, frames: fr}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	if s.faults != nil {
		errs = append(errs, s.faults.Close())
		s.faults = nil
	}
	if s.frames != nil {
		errs = append(errs, s.frames.Close())
		s.frames = nil
	}
	return errors.Join(errs...)
}

func (s *fileStore) AppendFaults(ctx context.Context, recs []FaultRecord) error {
	if len(recs) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.faults == nil {
		return ErrDisabled
	}
	// One write per batch keeps lines whole if the process dies mid-flush.
	var b strings.Builder
	enc := json.NewEncoder(&b)
	for _, r := range recs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	_, err := s.faults.WriteString(b.String())
	return err
}

func (s *fileStore) AppendFrameStats(ctx context.Context, st FrameStats) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frames == nil {
		return ErrDisabled
	}
	return json.NewEncoder(s.frames).Encode(st)
}

func (s *fileStore) RecentFaults(ctx context.Context, limit int) ([]FaultRecord, error) {
	if limit <= 0 {
		return nil, nil
	}
	s.mu.Lock()
	path := s.faultsPath
	closed := s.faults == nil
	s.mu.Unlock()
	if closed {
		return nil, ErrDisabled
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	// Keep the last limit records in a ring while scanning forward.
	ring := make([]FaultRecord, limit)
	n := 0
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var r FaultRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			continue
		}
		ring[n%limit] = r
		n++
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	if n <= limit {
		return ring[:n], nil
	}
	out := make([]FaultRecord, 0, limit)
	start := n % limit
	out = append(out, ring[start:]...)
	out = append(out, ring[:start]...)
	return out, nil
}
