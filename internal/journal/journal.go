// Package journal is an append-only settlement audit log on Pebble.
//
// Committed trades, mints and deposits are appended after their unit of
// work commits. Keys are {kind}/{seq} with seq big-endian, so iteration
// order per kind is append order. The sequence is shared by all kinds and
// recovered from disk on Open.
package journal

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"

	"github.com/RutamBhagat/project-1-probo-v0/internal/model"
)

// Entry kinds.
const (
	KindTrade   = "trade"
	KindMint    = "mint"
	KindDeposit = "deposit"
)

var kinds = []string{KindTrade, KindMint, KindDeposit}

var ErrClosed = errors.New("journal: closed")

// Entry is one journal record.
type Entry struct {
	Seq        uint64          `json:"seq"`
	Kind       string          `json:"kind"`
	RecordedAt time.Time       `json:"recorded_at"`
	Data       json.RawMessage `json:"data"`
}

// Journal appends settlement records to a Pebble database.
type Journal struct {
	mu     sync.Mutex
	db     *pebble.DB
	seq    uint64
	closed bool
}

// Open opens (or creates) the journal at dir and recovers its sequence.
func Open(dir string) (*Journal, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", dir, err)
	}

	j := &Journal{db: db}
	for _, kind := range kinds {
		last, err := j.lastSeq(kind)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		j.seq = max(j.seq, last)
	}
	return j, nil
}

// Close flushes and closes the database.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return nil
	}
	j.closed = true
	return j.db.Close()
}

// Seq returns the last assigned sequence number.
func (j *Journal) Seq() uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.seq
}

// RecordTrades appends every trade of one placement in one batch.
func (j *Journal) RecordTrades(trades []model.Trade) error {
	if len(trades) == 0 {
		return nil
	}
	items := make([]any, len(trades))
	for i := range trades {
		items[i] = trades[i]
	}
	return j.append(KindTrade, items...)
}

func (j *Journal) RecordMint(m model.Mint) error {
	return j.append(KindMint, m)
}

func (j *Journal) RecordDeposit(d model.Deposit) error {
	return j.append(KindDeposit, d)
}

func (j *Journal) append(kind string, items ...any) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return ErrClosed
	}

	batch := j.db.NewBatch()
	defer batch.Close()

	now := time.Now().UTC()
	seq := j.seq
	for _, item := range items {
		data, err := json.Marshal(item)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", kind, err)
		}
		seq++
		val, err := json.Marshal(Entry{Seq: seq, Kind: kind, RecordedAt: now, Data: data})
		if err != nil {
			return fmt.Errorf("marshal %s entry: %w", kind, err)
		}
		if err := batch.Set(entryKey(kind, seq), val, nil); err != nil {
			return err
		}
	}

	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("commit %s batch: %w", kind, err)
	}
	j.seq = seq
	return nil
}

// Entries returns every entry of kind in append order.
func (j *Journal) Entries(kind string) ([]Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return nil, ErrClosed
	}

	iter, err := j.db.NewIter(kindBounds(kind))
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var entries []Entry
	for iter.First(); iter.Valid(); iter.Next() {
		var e Entry
		if err := json.Unmarshal(iter.Value(), &e); err != nil {
			return nil, fmt.Errorf("decode %s entry: %w", kind, err)
		}
		entries = append(entries, e)
	}
	return entries, iter.Error()
}

func (j *Journal) lastSeq(kind string) (uint64, error) {
	iter, err := j.db.NewIter(kindBounds(kind))
	if err != nil {
		return 0, err
	}
	defer iter.Close()

	if !iter.Last() {
		return 0, iter.Error()
	}
	key := iter.Key()
	return binary.BigEndian.Uint64(key[len(key)-8:]), nil
}

func entryKey(kind string, seq uint64) []byte {
	key := make([]byte, 0, len(kind)+9)
	key = append(key, kind...)
	key = append(key, '/')
	return binary.BigEndian.AppendUint64(key, seq)
}

func kindBounds(kind string) *pebble.IterOptions {
	return &pebble.IterOptions{
		LowerBound: []byte(kind + "/"),
		UpperBound: []byte(kind + "0"), // '0' sorts right after '/'
	}
}
