package domain

import (
	"math/big"
	"time"
)

// CycleStatus is the terminal state of one pipeline cycle.
type CycleStatus string

const (
	CycleDone       CycleStatus = "done"
	CycleTransacted CycleStatus = "transacted"
	CycleFailed     CycleStatus = "failed"
)

// CycleRecord captures one full pass of the quote/decide/prepare/commit
// pipeline for persistence and later inspection.
type CycleRecord struct {
	ID          string
	Cycle       uint64
	FirstRound  uint64
	Path        string
	Prices      []float64
	Amounts     []*big.Int
	Ratio       float64
	RefPriceUSD float64
	Event       Event
	TxHash      string
	Status      CycleStatus
	StartedAt   time.Time
	CompletedAt *time.Time
}

// CycleStats aggregates stored cycles for reporting.
type CycleStats struct {
	TotalCycles    int64
	TransactCycles int64
	DoneCycles     int64
	FailedCycles   int64
	LastCycleAt    *time.Time
	LastTransactTx string
	BestRatioSeen  float64
	WorstRatioSeen float64
}
