// Package reconcile drives one-directional import of the stockroom
// spreadsheet into the ledger. The spreadsheet wins wholesale at import
// time; the coordinator only decides when an import is due and makes sure
// at most one runs per process.
package reconcile

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/mainstay-ops/mainstay/internal/ledger"
	"github.com/mainstay-ops/mainstay/internal/sheet"
)

// ParserPort extracts item records from the spreadsheet.
type ParserPort interface {
	ParseFile(path string) (sheet.Document, error)
}

// StorePort applies parsed records to the ledger.
type StorePort interface {
	ImportItems(ctx context.Context, records []ledger.ImportRecord) error
}

// Observer counts sync outcomes. Optional.
type Observer interface {
	ObserveSheetSync(outcome string)
}

// Invalidator drops caches derived from ledger state after an import
// rewrote it wholesale. Optional.
type Invalidator interface {
	Bump(ctx context.Context) error
}

// Coordinator tracks the spreadsheet's modification time and imports it
// when it changed. Concurrent callers share one in-flight import via
// singleflight instead of starting their own.
type Coordinator struct {
	logger      *slog.Logger
	parser      ParserPort
	store       StorePort
	path        string
	enabled     bool
	observer    Observer
	invalidator Invalidator

	group singleflight.Group

	mu         sync.Mutex
	lastSynced time.Time
}

// New constructs a Coordinator. enabled=false turns Ensure into a no-op so
// deployments can pin the ledger and import manually.
func New(logger *slog.Logger, parser ParserPort, store StorePort, path string, enabled bool, observer Observer, invalidator Invalidator) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{logger: logger, parser: parser, store: store, path: path, enabled: enabled, observer: observer, invalidator: invalidator}
}

// Ensure reconciles the spreadsheet into the ledger when its modification
// time advanced past the last successful import. An unreadable file is not
// an error: reads fall back to whatever the ledger already holds. A failed
// import keeps the old timestamp so the next call retries, and its error is
// returned to every caller awaiting this import.
func (c *Coordinator) Ensure(ctx context.Context) error {
	if !c.enabled {
		return nil
	}
	info, err := os.Stat(c.path)
	if err != nil {
		c.logger.Debug("spreadsheet unavailable, skipping sync",
			slog.String("path", c.path),
			slog.Any("error", err))
		return nil
	}
	modTime := info.ModTime()
	if !modTime.After(c.last()) {
		return nil
	}

	// The import must not die with the first caller that gave up waiting;
	// late joiners share its result.
	resultCh := c.group.DoChan("import", func() (interface{}, error) {
		return nil, c.runImport(context.WithoutCancel(ctx), modTime)
	})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-resultCh:
		return res.Err
	}
}

func (c *Coordinator) runImport(ctx context.Context, modTime time.Time) error {
	started := time.Now()
	doc, err := c.parser.ParseFile(c.path)
	if err != nil {
		c.observe("parse_error")
		return err
	}
	records := make([]ledger.ImportRecord, 0, len(doc.Items))
	for _, item := range doc.Items {
		records = append(records, ledger.ImportRecord{
			Code:        item.Code,
			Section:     item.Section,
			Description: item.Description,
			PartType:    item.PartType,
			MinLevel:    item.MinLevel,
			ActualQty:   item.ActualQty,
		})
	}
	if err := c.store.ImportItems(ctx, records); err != nil {
		c.observe("store_error")
		return err
	}
	c.setLast(modTime)
	c.observe("ok")
	if c.invalidator != nil {
		if err := c.invalidator.Bump(ctx); err != nil {
			c.logger.Warn("bump derived caches", slog.Any("error", err))
		}
	}
	c.logger.Info("spreadsheet reconciled into ledger",
		slog.Int("items", len(records)),
		slog.Duration("took", time.Since(started)),
		slog.Time("sheet_mtime", modTime))
	return nil
}

func (c *Coordinator) last() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSynced
}

func (c *Coordinator) setLast(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t.After(c.lastSynced) {
		c.lastSynced = t
	}
}

func (c *Coordinator) observe(outcome string) {
	if c.observer != nil {
		c.observer.ObserveSheetSync(outcome)
	}
}
