package export

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"liquidityhub/core/events"
)

const defaultPageSize = 500

// JournalReader pages through the hash-chained event journal.
type JournalReader interface {
	Journal(ctx context.Context, from uint64, limit int) ([]events.JournalEntry, error)
}

// Result summarises a completed export.
type Result struct {
	Path     string
	Rows     int
	LastSeq  uint64
	LastHash string
}

type journalRow struct {
	Sequence    int64  `parquet:"name=sequence, type=INT64"`
	Type        string `parquet:"name=type, type=BYTE_ARRAY, convertedtype=UTF8"`
	Asset       string `parquet:"name=asset, type=BYTE_ARRAY, convertedtype=UTF8"`
	Participant string `parquet:"name=participant, type=BYTE_ARRAY, convertedtype=UTF8"`
	Attributes  string `parquet:"name=attributes, type=BYTE_ARRAY, convertedtype=UTF8"`
	Timestamp   int64  `parquet:"name=timestamp, type=INT64"`
	PrevHash    string `parquet:"name=prev_hash, type=BYTE_ARRAY, convertedtype=UTF8"`
	Hash        string `parquet:"name=hash, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// Exporter writes the journal to parquet files for offline reconciliation.
type Exporter struct {
	journal  JournalReader
	pageSize int
	logger   *slog.Logger
	now      func() time.Time
}

func New(journal JournalReader, pageSize int, logger *slog.Logger) *Exporter {
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{journal: journal, pageSize: pageSize, logger: logger, now: time.Now}
}

// Export writes every journal entry with a sequence of at least from into a
// new parquet file under dir. Each page is checked against the previous one
// so a broken hash chain aborts the export.
func (e *Exporter) Export(ctx context.Context, dir string, from uint64) (Result, error) {
	if e == nil || e.journal == nil {
		return Result{}, fmt.Errorf("export: journal not configured")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Result{}, fmt.Errorf("export: create directory: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("journal_%s.parquet", e.now().UTC().Format("20060102T150405Z")))
	file, err := os.Create(path)
	if err != nil {
		return Result{}, fmt.Errorf("export: create parquet: %w", err)
	}
	fw := writerfile.NewWriterFile(file)
	pw, err := writer.NewParquetWriter(fw, new(journalRow), 1)
	if err != nil {
		file.Close()
		return Result{}, fmt.Errorf("export: parquet schema: %w", err)
	}
	pw.RowGroupSize = 128 * 1024 * 1024
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	result := Result{Path: path}
	var prev *events.JournalEntry
	cursor := from
	for {
		if err := ctx.Err(); err != nil {
			file.Close()
			return Result{}, err
		}
		page, err := e.journal.Journal(ctx, cursor, e.pageSize)
		if err != nil {
			file.Close()
			return Result{}, fmt.Errorf("export: read journal: %w", err)
		}
		if len(page) == 0 {
			break
		}
		check := page
		if prev != nil {
			check = append([]events.JournalEntry{*prev}, page...)
		}
		if err := events.VerifyJournal(check); err != nil {
			file.Close()
			return Result{}, fmt.Errorf("export: journal at sequence %d: %w", page[0].Sequence, err)
		}
		for i := range page {
			row, err := toRow(page[i])
			if err != nil {
				file.Close()
				return Result{}, err
			}
			if err := pw.Write(row); err != nil {
				file.Close()
				return Result{}, fmt.Errorf("export: write row: %w", err)
			}
		}
		last := page[len(page)-1]
		prev = &last
		result.Rows += len(page)
		result.LastSeq = last.Sequence
		result.LastHash = last.Hash
		cursor = last.Sequence + 1
		if len(page) < e.pageSize {
			break
		}
	}
	if err := pw.WriteStop(); err != nil {
		file.Close()
		return Result{}, fmt.Errorf("export: finalise parquet: %w", err)
	}
	if err := file.Close(); err != nil {
		return Result{}, fmt.Errorf("export: close parquet: %w", err)
	}
	e.logger.Info("journal exported", "path", path, "rows", result.Rows, "last_sequence", result.LastSeq)
	return result, nil
}

func toRow(entry events.JournalEntry) (*journalRow, error) {
	attrs, err := json.Marshal(entry.Attributes)
	if err != nil {
		return nil, fmt.Errorf("export: encode attributes: %w", err)
	}
	return &journalRow{
		Sequence:    int64(entry.Sequence),
		Type:        entry.Type,
		Asset:       entry.Attributes["asset"],
		Participant: entry.Attributes["participant"],
		Attributes:  string(attrs),
		Timestamp:   entry.Timestamp,
		PrevHash:    entry.PrevHash,
		Hash:        entry.Hash,
	}, nil
}
