// Copyright 2025 Supabase, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package topo

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// LogStore reads and writes log metadata through a Conn.
type LogStore struct {
	conn   Conn
	logger *slog.Logger
}

// NewLogStore wraps conn. A nil logger uses slog.Default().
func NewLogStore(conn Conn, logger *slog.Logger) *LogStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogStore{conn: conn, logger: logger}
}

// Close closes the underlying Conn.
func (s *LogStore) Close() error {
	return s.conn.Close()
}

func pathForLog(id LogID, file string) string {
	return path.Join(LogsPath, id.String(), file)
}

// observe records the duration and outcome of one store operation. It is
// deferred with a pointer to the named error result.
func observe(ctx context.Context, op StoreOperation, start time.Time, err *error) {
	RecordStoreOperation(ctx, op, resultOf(*err), time.Since(start))
}

// ListLogIDs returns the IDs of every log in the catalog, sorted.
func (s *LogStore) ListLogIDs(ctx context.Context) (ids []LogID, err error) {
	defer observe(ctx, OpListLogs, time.Now(), &err)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := s.conn.List(ctx, LogsPath+"/")
	switch {
	case IsErrType(err, NoNode):
		return nil, nil
	case err != nil:
		return nil, err
	}
	for _, e := range entries {
		key := string(e.Key)
		if path.Base(key) != LogFile {
			continue
		}
		id, perr := ParseLogID(path.Base(path.Dir(key)))
		if perr != nil {
			s.logger.Warn("skipping malformed log key", "key", key, "error", perr)
			continue
		}
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return slices.Compact(ids), nil
}

// GetLog reads a log's catalog entry. Unknown logs fail with NoNode.
func (s *LogStore) GetLog(ctx context.Context, id LogID) (cfg *LogConfig, version Version, err error) {
	defer observe(ctx, OpGetLog, time.Now(), &err)
	contents, version, err := s.conn.Get(ctx, pathForLog(id, LogFile))
	if err != nil {
		return nil, nil, err
	}
	cfg = &LogConfig{}
	if err := yaml.Unmarshal(contents, cfg); err != nil {
		return nil, nil, &DecodeError{Path: pathForLog(id, LogFile), Err: err}
	}
	return cfg, version, nil
}

// PutLog creates or replaces a log's catalog entry.
func (s *LogStore) PutLog(ctx context.Context, cfg *LogConfig) (err error) {
	defer observe(ctx, OpPutLog, time.Now(), &err)
	if err := cfg.Replication.Validate(); err != nil {
		return NewError(BadInput, fmt.Sprintf("log %v: %v", cfg.ID, err))
	}
	contents, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	_, err = s.conn.Update(ctx, pathForLog(cfg.ID, LogFile), contents, nil)
	return err
}

// GetEpochs reads a log's epoch history. A log without history returns an
// empty slice.
func (s *LogStore) GetEpochs(ctx context.Context, id LogID) (records []EpochRecord, err error) {
	defer observe(ctx, OpGetEpochs, time.Now(), &err)
	records, _, err = s.getEpochs(ctx, id)
	return records, err
}

func (s *LogStore) getEpochs(ctx context.Context, id LogID) ([]EpochRecord, Version, error) {
	contents, version, err := s.conn.Get(ctx, pathForLog(id, EpochsFile))
	switch {
	case IsErrType(err, NoNode):
		return nil, nil, nil
	case err != nil:
		return nil, nil, err
	}
	var records []EpochRecord
	if err := yaml.Unmarshal(contents, &records); err != nil {
		return nil, nil, &DecodeError{Path: pathForLog(id, EpochsFile), Err: err}
	}
	return records, version, nil
}

// AppendEpoch adds a record to the end of a log's history. The record must
// be valid and start after every existing record; otherwise it fails with
// BadInput. Concurrent appends are serialized through version checks.
func (s *LogStore) AppendEpoch(ctx context.Context, id LogID, rec EpochRecord) (err error) {
	defer observe(ctx, OpAppendEpoch, time.Now(), &err)
	if err := rec.Validate(); err != nil {
		return NewError(BadInput, fmt.Sprintf("log %v: %v", id, err))
	}
	if _, _, err := s.GetLog(ctx, id); err != nil {
		return err
	}

	filePath := pathForLog(id, EpochsFile)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		records, version, err := s.getEpochs(ctx, id)
		if err != nil {
			return err
		}
		for i := range records {
			if records[i].Overlaps(&rec) || records[i].Since > rec.Since {
				return NewError(BadInput, fmt.Sprintf("log %v: epochs [%d, %d] overlap or precede existing epochs [%d, %d]",
					id, rec.Since, rec.Until, records[i].Since, records[i].Until))
			}
		}
		records = append(records, rec)
		contents, err := yaml.Marshal(records)
		if err != nil {
			return err
		}

		if version == nil {
			_, err = s.conn.Create(ctx, filePath, contents)
			if !IsErrType(err, NodeExists) {
				return err
			}
		} else {
			_, err = s.conn.Update(ctx, filePath, contents, version)
			if !IsErrType(err, BadVersion) {
				return err
			}
		}
		s.logger.Debug("epoch history changed concurrently, retrying append", "log", id)
	}
}

// GetTrimPoint returns the first epoch still holding data. Logs that were
// never trimmed return 0.
func (s *LogStore) GetTrimPoint(ctx context.Context, id LogID) (epoch Epoch, err error) {
	defer observe(ctx, OpGetTrimPoint, time.Now(), &err)
	contents, _, err := s.conn.Get(ctx, pathForLog(id, TrimFile))
	switch {
	case IsErrType(err, NoNode):
		return 0, nil
	case err != nil:
		return 0, err
	}
	var tp TrimPoint
	if err := yaml.Unmarshal(contents, &tp); err != nil {
		return 0, &DecodeError{Path: pathForLog(id, TrimFile), Err: err}
	}
	return tp.Epoch, nil
}

// SetTrimPoint records the first epoch still holding data. Trim points only
// move forward; an earlier epoch fails with BadInput.
func (s *LogStore) SetTrimPoint(ctx context.Context, id LogID, epoch Epoch) (err error) {
	defer observe(ctx, OpSetTrimPoint, time.Now(), &err)
	current, err := s.GetTrimPoint(ctx, id)
	if err != nil {
		return err
	}
	if epoch < current {
		return NewError(BadInput, fmt.Sprintf("log %v: trim point cannot move back from %d to %d", id, current, epoch))
	}
	contents, err := yaml.Marshal(&TrimPoint{Epoch: epoch})
	if err != nil {
		return err
	}
	_, err = s.conn.Update(ctx, pathForLog(id, TrimFile), contents, nil)
	return err
}

// DeleteLog removes a log and all its metadata. Unknown logs fail with
// NoNode.
func (s *LogStore) DeleteLog(ctx context.Context, id LogID) (err error) {
	defer observe(ctx, OpDeleteLog, time.Now(), &err)
	for _, file := range []string{EpochsFile, TrimFile} {
		if err := s.conn.Delete(ctx, pathForLog(id, file), nil); err != nil && !IsErrType(err, NoNode) {
			return err
		}
	}
	if err := s.conn.Delete(ctx, pathForLog(id, LogFile), nil); err != nil {
		return err
	}
	s.logger.Info("deleted log metadata", "log", id)
	return nil
}
