package events

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"

	"lukechampine.com/blake3"

	"liquidityhub/core/types"
)

// ErrJournalBroken is returned when a journal entry does not chain to its
// predecessor.
var ErrJournalBroken = errors.New("events: journal chain broken")

// JournalEntry is a sequence-numbered event whose hash commits to every entry
// before it.
type JournalEntry struct {
	Sequence   uint64            `json:"sequence"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
	Timestamp  int64             `json:"timestamp"`
	PrevHash   string            `json:"prevHash"`
	Hash       string            `json:"hash"`
}

// NextEntry chains evt onto prev. A nil prev starts a new journal at
// sequence 1.
func NextEntry(prev *JournalEntry, evt *types.Event, timestamp int64) JournalEntry {
	entry := JournalEntry{Sequence: 1, Timestamp: timestamp}
	if prev != nil {
		entry.Sequence = prev.Sequence + 1
		entry.PrevHash = prev.Hash
	}
	if evt != nil {
		entry.Type = evt.Type
		entry.Attributes = make(map[string]string, len(evt.Attributes))
		for k, v := range evt.Attributes {
			entry.Attributes[k] = v
		}
	}
	digest := entry.digest()
	entry.Hash = hex.EncodeToString(digest[:])
	return entry
}

// Verify recomputes the entry hash and checks it links to prev.
func (e JournalEntry) Verify(prev *JournalEntry) error {
	expectedSeq := uint64(1)
	expectedPrev := ""
	if prev != nil {
		expectedSeq = prev.Sequence + 1
		expectedPrev = prev.Hash
	}
	if e.Sequence != expectedSeq {
		return fmt.Errorf("%w: sequence %d follows %d", ErrJournalBroken, e.Sequence, expectedSeq-1)
	}
	if e.PrevHash != expectedPrev {
		return fmt.Errorf("%w: entry %d prev hash mismatch", ErrJournalBroken, e.Sequence)
	}
	digest := e.digest()
	if e.Hash != hex.EncodeToString(digest[:]) {
		return fmt.Errorf("%w: entry %d hash mismatch", ErrJournalBroken, e.Sequence)
	}
	return nil
}

// VerifyJournal checks a contiguous run of entries. The first entry is
// trusted as the anchor unless it is sequence 1.
func VerifyJournal(entries []JournalEntry) error {
	for i := range entries {
		var prev *JournalEntry
		if i > 0 {
			prev = &entries[i-1]
		} else if entries[i].Sequence != 1 {
			continue
		}
		if err := entries[i].Verify(prev); err != nil {
			return err
		}
	}
	return nil
}

func (e JournalEntry) digest() [32]byte {
	buf := bytes.NewBuffer(nil)
	var scratch [8]byte
	binary.BigEndian.PutUint64(scratch[:], e.Sequence)
	buf.Write(scratch[:])
	binary.BigEndian.PutUint64(scratch[:], uint64(e.Timestamp))
	buf.Write(scratch[:])
	writeField(buf, e.PrevHash)
	writeField(buf, e.Type)
	keys := make([]string, 0, len(e.Attributes))
	for k := range e.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		writeField(buf, k)
		writeField(buf, e.Attributes[k])
	}
	return blake3.Sum256(buf.Bytes())
}

func writeField(buf *bytes.Buffer, value string) {
	var length [4]byte
	binary.BigEndian.PutUint32(length[:], uint32(len(value)))
	buf.Write(length[:])
	buf.WriteString(value)
}
