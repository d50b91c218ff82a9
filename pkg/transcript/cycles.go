// Copyright 2026 © The AIXI Authors
// SPDX-License-Identifier: Apache-2.0

package transcript

import (
	"bufio"
	"context"
	"encoding/json"
	stderrors "errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/jllopis/aixi/pkg/errors"
	"github.com/jllopis/aixi/pkg/history"
)

// CycleRecord is one line of the cycles file.
type CycleRecord struct {
	RunID   string          `json:"run_id"`
	Cycle   int             `json:"cycle"`
	Action  history.Action  `json:"action"`
	Percept history.Percept `json:"percept"`
}

// CycleLog appends committed cycles to a JSON-lines file so an aborted run
// still leaves a record of what happened.
type CycleLog struct {
	mu    sync.Mutex
	path  string
	runID string
}

// NewCycleLog returns a log writing to path. The file is created lazily.
func NewCycleLog(path, runID string) *CycleLog {
	return &CycleLog{path: path, runID: runID}
}

// Path returns the file location.
func (l *CycleLog) Path() string {
	return l.path
}

// RecordCycle appends one record.
func (l *CycleLog) RecordCycle(_ context.Context, cycle int, action history.Action, percept history.Percept) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return errors.New(errors.CodeInternal, "create cycles directory", err)
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return errors.New(errors.CodeInternal, "open cycles file", err).WithContext("path", l.path)
	}
	defer f.Close()

	rec := CycleRecord{RunID: l.runID, Cycle: cycle, Action: action, Percept: percept}
	if err := json.NewEncoder(f).Encode(rec); err != nil {
		return errors.New(errors.CodeInternal, "encode cycle record", err).WithContext("cycle", cycle)
	}
	return nil
}

// ReadCycles loads every record from a cycles file in order.
func ReadCycles(path string) ([]CycleRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		if stderrors.Is(err, os.ErrNotExist) {
			return nil, errors.New(errors.CodeNotFound, "cycles file not found", err).WithContext("path", path)
		}
		return nil, errors.New(errors.CodeInternal, "open cycles file", err)
	}
	defer f.Close()

	var out []CycleRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		var rec CycleRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			return nil, errors.New(errors.CodeInternal, "decode cycle record", err).WithContext("line", len(out)+1)
		}
		out = append(out, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.New(errors.CodeInternal, "read cycles file", err)
	}
	return out, nil
}
