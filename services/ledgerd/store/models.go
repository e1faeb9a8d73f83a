package store

import (
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"liquidityhub/native/liquidity"
)

// Pool is the SQL row for one listed asset. Amounts are stored as base-10
// strings because they exceed every native integer column type.
type Pool struct {
	AssetID                string `gorm:"primaryKey;size:128"`
	Liquidity              string `gorm:"size:80;not null"`
	AddedShares            string `gorm:"size:80;not null"`
	DrawnShares            string `gorm:"size:80;not null"`
	DrawnIndex             string `gorm:"size:80;not null"`
	DrawnRate              string `gorm:"size:80;not null"`
	PremiumShares          string `gorm:"size:80;not null"`
	PremiumOffsetRay       string `gorm:"size:80;not null"`
	RealizedPremium        string `gorm:"size:80;not null"`
	Deficit                string `gorm:"size:80;not null"`
	Swept                  string `gorm:"size:80;not null"`
	LastUpdateTimestamp    uint64
	LiquidityFeeBps        uint64
	Strategy               string `gorm:"size:64"`
	FeeReceiver            string `gorm:"size:128"`
	ReinvestmentController string `gorm:"size:128"`
	UpdatedAt              time.Time
}

// TableName pins the table name independent of the naming strategy.
func (Pool) TableName() string { return "liquidity_pools" }

// Participant is the SQL row for one (asset, participant) record.
type Participant struct {
	AssetID          string `gorm:"primaryKey;size:128"`
	Participant      string `gorm:"primaryKey;size:128"`
	AddedShares      string `gorm:"size:80;not null"`
	DrawnShares      string `gorm:"size:80;not null"`
	PremiumShares    string `gorm:"size:80;not null"`
	PremiumOffsetRay string `gorm:"size:80;not null"`
	RealizedPremium  string `gorm:"size:80;not null"`
	AddCap           string `gorm:"size:80;not null"`
	DrawCap          string `gorm:"size:80;not null"`
	Active           bool
	UpdatedAt        time.Time
}

func (Participant) TableName() string { return "liquidity_participants" }

// JournalEntry is one hash-chained ledger event.
type JournalEntry struct {
	Sequence   uint64    `gorm:"primaryKey;autoIncrement:false"`
	EventID    uuid.UUID `gorm:"type:uuid;uniqueIndex"`
	Type       string    `gorm:"size:64;index"`
	AssetID    string    `gorm:"size:128;index"`
	Attributes string    `gorm:"type:text"`
	Timestamp  int64     `gorm:"index"`
	PrevHash   string    `gorm:"size:64"`
	Hash       string    `gorm:"size:64;uniqueIndex"`
}

func (JournalEntry) TableName() string { return "liquidity_journal" }

// AutoMigrate performs all schema migrations for the ledger store.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&Pool{},
		&Participant{},
		&JournalEntry{},
	)
}

func decimal(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func parseDecimal(field, value string) (*big.Int, error) {
	if value == "" {
		return new(big.Int), nil
	}
	out, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("store: invalid %s %q", field, value)
	}
	return out, nil
}

func poolRow(pool *liquidity.AssetPool) *Pool {
	return &Pool{
		AssetID:                pool.AssetID,
		Liquidity:              decimal(pool.Liquidity),
		AddedShares:            decimal(pool.AddedShares),
		DrawnShares:            decimal(pool.DrawnShares),
		DrawnIndex:             decimal(pool.DrawnIndex),
		DrawnRate:              decimal(pool.DrawnRate),
		PremiumShares:          decimal(pool.PremiumShares),
		PremiumOffsetRay:       decimal(pool.PremiumOffsetRay),
		RealizedPremium:        decimal(pool.RealizedPremium),
		Deficit:                decimal(pool.Deficit),
		Swept:                  decimal(pool.Swept),
		LastUpdateTimestamp:    pool.LastUpdateTimestamp,
		LiquidityFeeBps:        pool.LiquidityFeeBps,
		Strategy:               pool.Strategy,
		FeeReceiver:            pool.FeeReceiver,
		ReinvestmentController: pool.ReinvestmentController,
	}
}

func (row *Pool) record() (*liquidity.AssetPool, error) {
	pool := &liquidity.AssetPool{
		AssetID:                row.AssetID,
		LastUpdateTimestamp:    row.LastUpdateTimestamp,
		LiquidityFeeBps:        row.LiquidityFeeBps,
		Strategy:               row.Strategy,
		FeeReceiver:            row.FeeReceiver,
		ReinvestmentController: row.ReinvestmentController,
	}
	fields := []struct {
		name  string
		value string
		dst   **big.Int
	}{
		{"liquidity", row.Liquidity, &pool.Liquidity},
		{"added_shares", row.AddedShares, &pool.AddedShares},
		{"drawn_shares", row.DrawnShares, &pool.DrawnShares},
		{"drawn_index", row.DrawnIndex, &pool.DrawnIndex},
		{"drawn_rate", row.DrawnRate, &pool.DrawnRate},
		{"premium_shares", row.PremiumShares, &pool.PremiumShares},
		{"premium_offset_ray", row.PremiumOffsetRay, &pool.PremiumOffsetRay},
		{"realized_premium", row.RealizedPremium, &pool.RealizedPremium},
		{"deficit", row.Deficit, &pool.Deficit},
		{"swept", row.Swept, &pool.Swept},
	}
	for _, field := range fields {
		parsed, err := parseDecimal(field.name, field.value)
		if err != nil {
			return nil, err
		}
		*field.dst = parsed
	}
	return pool, nil
}

func participantRow(record *liquidity.ParticipantRecord) *Participant {
	return &Participant{
		AssetID:          record.AssetID,
		Participant:      record.Participant,
		AddedShares:      decimal(record.AddedShares),
		DrawnShares:      decimal(record.DrawnShares),
		PremiumShares:    decimal(record.PremiumShares),
		PremiumOffsetRay: decimal(record.PremiumOffsetRay),
		RealizedPremium:  decimal(record.RealizedPremium),
		AddCap:           decimal(record.AddCap),
		DrawCap:          decimal(record.DrawCap),
		Active:           record.Active,
	}
}

func (row *Participant) record() (*liquidity.ParticipantRecord, error) {
	record := &liquidity.ParticipantRecord{
		AssetID:     row.AssetID,
		Participant: row.Participant,
		Active:      row.Active,
	}
	fields := []struct {
		name  string
		value string
		dst   **big.Int
	}{
		{"added_shares", row.AddedShares, &record.AddedShares},
		{"drawn_shares", row.DrawnShares, &record.DrawnShares},
		{"premium_shares", row.PremiumShares, &record.PremiumShares},
		{"premium_offset_ray", row.PremiumOffsetRay, &record.PremiumOffsetRay},
		{"realized_premium", row.RealizedPremium, &record.RealizedPremium},
		{"add_cap", row.AddCap, &record.AddCap},
		{"draw_cap", row.DrawCap, &record.DrawCap},
	}
	for _, field := range fields {
		parsed, err := parseDecimal(field.name, field.value)
		if err != nil {
			return nil, err
		}
		*field.dst = parsed
	}
	return record, nil
}
