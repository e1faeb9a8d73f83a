package liquidity

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/rlp"

	"liquidityhub/core/events"
	"liquidityhub/storage"
)

var (
	poolPrefix        = []byte("liquidity/pool/")
	participantPrefix = []byte("liquidity/participant/")
	journalPrefix     = []byte("liquidity/journal/")
	journalHeadKey    = []byte("liquidity/journal-head")
)

// KVState persists ledger records in a storage.Database. Records are RLP
// encoded; journal entries are JSON so they stay readable by external tools.
type KVState struct {
	db storage.Database
	mu sync.Mutex
}

var _ State = (*KVState)(nil)

// NewKVState wraps db.
func NewKVState(db storage.Database) *KVState {
	return &KVState{db: db}
}

func poolKey(assetID string) []byte {
	return append(append([]byte(nil), poolPrefix...), hex.EncodeToString([]byte(assetID))...)
}

func participantAssetPrefix(assetID string) []byte {
	key := append([]byte(nil), participantPrefix...)
	key = append(key, hex.EncodeToString([]byte(assetID))...)
	return append(key, '/')
}

func participantKey(assetID, participant string) []byte {
	return append(participantAssetPrefix(assetID), hex.EncodeToString([]byte(participant))...)
}

func journalKey(sequence uint64) []byte {
	key := append([]byte(nil), journalPrefix...)
	var seq [8]byte
	binary.BigEndian.PutUint64(seq[:], sequence)
	return append(key, seq[:]...)
}

func (s *KVState) GetPool(_ context.Context, assetID string) (*AssetPool, error) {
	if s == nil || s.db == nil {
		return nil, errNilState
	}
	data, err := s.db.Get(poolKey(assetID))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodePool(data)
}

func (s *KVState) GetParticipant(_ context.Context, assetID, participant string) (*ParticipantRecord, error) {
	if s == nil || s.db == nil {
		return nil, errNilState
	}
	data, err := s.db.Get(participantKey(assetID, participant))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeParticipant(data)
}

func (s *KVState) ListParticipants(_ context.Context, assetID string) ([]*ParticipantRecord, error) {
	if s == nil || s.db == nil {
		return nil, errNilState
	}
	var out []*ParticipantRecord
	err := s.db.Iterate(participantAssetPrefix(assetID), func(_, value []byte) error {
		record, err := decodeParticipant(value)
		if err != nil {
			return err
		}
		out = append(out, record)
		return nil
	})
	return out, err
}

func (s *KVState) ListPools(_ context.Context) ([]*AssetPool, error) {
	if s == nil || s.db == nil {
		return nil, errNilState
	}
	var out []*AssetPool
	err := s.db.Iterate(poolPrefix, func(_, value []byte) error {
		pool, err := decodePool(value)
		if err != nil {
			return err
		}
		out = append(out, pool)
		return nil
	})
	return out, err
}

// Commit writes the batch and its journal entries in one atomic write.
func (s *KVState) Commit(_ context.Context, batch *Batch) error {
	if s == nil || s.db == nil {
		return errNilState
	}
	if batch == nil || batch.Pool == nil {
		return fmt.Errorf("liquidity: empty batch")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	encoded, err := rlp.EncodeToBytes(batch.Pool)
	if err != nil {
		return fmt.Errorf("liquidity: encode pool: %w", err)
	}
	writes := []storage.Entry{{Key: poolKey(batch.Pool.AssetID), Value: encoded}}
	for _, record := range batch.Participants {
		encoded, err := rlp.EncodeToBytes(record)
		if err != nil {
			return fmt.Errorf("liquidity: encode participant: %w", err)
		}
		writes = append(writes, storage.Entry{Key: participantKey(record.AssetID, record.Participant), Value: encoded})
	}

	if len(batch.Events) > 0 {
		head, err := s.head()
		if err != nil {
			return err
		}
		for _, evt := range batch.Events {
			entry := events.NextEntry(head, evt.Event(), batch.Timestamp.Unix())
			data, err := json.Marshal(entry)
			if err != nil {
				return err
			}
			writes = append(writes, storage.Entry{Key: journalKey(entry.Sequence), Value: data})
			head = &entry
		}
		data, err := json.Marshal(head)
		if err != nil {
			return err
		}
		writes = append(writes, storage.Entry{Key: journalHeadKey, Value: data})
	}
	return s.db.Write(writes)
}

func (s *KVState) head() (*events.JournalEntry, error) {
	data, err := s.db.Get(journalHeadKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var entry events.JournalEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// Journal returns up to limit entries with a sequence of at least from.
func (s *KVState) Journal(_ context.Context, from uint64, limit int) ([]events.JournalEntry, error) {
	if s == nil || s.db == nil {
		return nil, errNilState
	}
	errLimit := errors.New("limit reached")
	var out []events.JournalEntry
	err := s.db.Iterate(journalPrefix, func(key, value []byte) error {
		if len(key) != len(journalPrefix)+8 || binary.BigEndian.Uint64(key[len(journalPrefix):]) < from {
			return nil
		}
		if limit > 0 && len(out) >= limit {
			return errLimit
		}
		var entry events.JournalEntry
		if err := json.Unmarshal(value, &entry); err != nil {
			return err
		}
		out = append(out, entry)
		return nil
	})
	if err != nil && !errors.Is(err, errLimit) {
		return nil, err
	}
	return out, nil
}

func decodePool(data []byte) (*AssetPool, error) {
	pool := new(AssetPool)
	if err := rlp.DecodeBytes(data, pool); err != nil {
		return nil, fmt.Errorf("liquidity: decode pool: %w", err)
	}
	pool.ensureDefaults()
	return pool, nil
}

func decodeParticipant(data []byte) (*ParticipantRecord, error) {
	record := new(ParticipantRecord)
	if err := rlp.DecodeBytes(data, record); err != nil {
		return nil, fmt.Errorf("liquidity: decode participant: %w", err)
	}
	record.ensureDefaults()
	return record, nil
}
