// Package ledger is the authoritative, transactional record of stockroom
// quantities and their history. The spreadsheet is the human-editable source
// of truth for descriptive fields and for wholesale recounts at import time;
// between imports every quantity change flows through this ledger.
package ledger

import (
	"errors"
	"time"
)

// TransactionType enumerates supported stock movements.
type TransactionType string

const (
	// TransactionTypeRestock represents replenishment.
	TransactionTypeRestock TransactionType = "restock"
	// TransactionTypeAdjust indicates a manual correction.
	TransactionTypeAdjust TransactionType = "adjust"
	// TransactionTypeUse represents consumption against a task.
	TransactionTypeUse TransactionType = "use"
)

// Item is the aggregate root for current stock state, keyed by its code in
// both the ledger and the spreadsheet.
type Item struct {
	ID          int64
	Code        string
	Section     string
	Description string
	PartType    string
	MinLevel    int
	ActualQty   int
	UpdatedAt   time.Time
}

// Transaction is one immutable audit record of a quantity change.
type Transaction struct {
	ID        int64
	ItemID    int64
	Type      TransactionType
	QtyChange int
	TaskID    string
	SlipID    int64
	Note      string
	CreatedBy string
	CreatedAt time.Time
}

// Slip groups one multi-line withdrawal tied to a task.
type Slip struct {
	ID        int64
	SlipNo    string
	TaskID    string
	CreatedBy string
	CreatedAt time.Time
	Lines     []SlipLine
}

// SlipLine snapshots code and description at the time of use so historical
// slips stay readable after an item is renamed.
type SlipLine struct {
	ID          int64
	SlipID      int64
	ItemCode    string
	Description string
	QtyUsed     int
}

// AdjustInput describes a restock or manual correction.
type AdjustInput struct {
	Code      string
	QtyChange int
	Note      string
	Type      TransactionType
	ActorID   string
}

// ConsumeLine is one withdrawal line.
type ConsumeLine struct {
	Code string
	Qty  int
}

// ConsumeInput describes a multi-line withdrawal for a task.
type ConsumeInput struct {
	TaskID  string
	Lines   []ConsumeLine
	ActorID string
}

// ListFilter narrows item listings.
type ListFilter struct {
	Search       string
	LowStockOnly bool
}

// UsageFilter bounds the usage report period.
type UsageFilter struct {
	From time.Time
	To   time.Time
}

// UsageRow aggregates consumption per item over a period.
type UsageRow struct {
	ItemCode    string `json:"item_code"`
	Description string `json:"description"`
	TotalUsed   int    `json:"total_used"`
	TxCount     int    `json:"tx_count"`
}

// ImportRecord is one spreadsheet item applied to the ledger during import.
// Import is a wholesale upsert: descriptive fields AND quantity.
type ImportRecord struct {
	Code        string
	Section     string
	Description string
	PartType    string
	MinLevel    int
	ActualQty   int
}

// ErrItemNotFound indicates an unknown item code.
var ErrItemNotFound = errors.New("ledger: item not found")

// ErrInsufficientStock triggered when a movement would leave negative stock.
var ErrInsufficientStock = errors.New("ledger: insufficient stock")

// ErrInvalidQuantity indicates an invalid quantity.
var ErrInvalidQuantity = errors.New("ledger: quantity must be non zero")

// ErrEmptyConsume indicates a consume request with no lines.
var ErrEmptyConsume = errors.New("ledger: at least one line is required")

// ErrInvalidTaskID indicates an unparsable task reference.
var ErrInvalidTaskID = errors.New("ledger: invalid task id")
