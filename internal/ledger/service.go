package ledger

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/mainstay-ops/mainstay/internal/sheet"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListItems(ctx context.Context, filter ListFilter) ([]Item, error)
	Usage(ctx context.Context, filter UsageFilter) ([]UsageRow, error)
}

// Syncer reconciles the spreadsheet into the ledger before reads.
type Syncer interface {
	Ensure(ctx context.Context) error
}

// QuantityPusher receives post-commit quantity maps for write-back into the
// spreadsheet. Implementations are best-effort and retryable; a failure
// never affects the committed ledger state.
type QuantityPusher interface {
	PushQuantities(ctx context.Context, quantities map[string]int) error
}

// SnapshotExporter fills the spreadsheet template from ledger items.
type SnapshotExporter interface {
	ExportSnapshot(ctx context.Context, items []sheet.Item) ([]byte, error)
}

// Service coordinates stock operations over the ledger.
type Service struct {
	logger   *slog.Logger
	repo     RepositoryPort
	syncer   Syncer
	pusher   QuantityPusher
	exporter SnapshotExporter
	cache    *UsageCache
}

// NewService builds Service. syncer, pusher, exporter and cache are
// optional collaborators; a nil value disables that concern.
func NewService(logger *slog.Logger, repo RepositoryPort, syncer Syncer, pusher QuantityPusher, exporter SnapshotExporter, cache *UsageCache) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{logger: logger, repo: repo, syncer: syncer, pusher: pusher, exporter: exporter, cache: cache}
}

// ListItems returns ledger items after giving the coordinator a chance to
// reconcile spreadsheet changes. A failed sync degrades to last known good
// ledger state instead of failing the read.
func (s *Service) ListItems(ctx context.Context, filter ListFilter) ([]Item, error) {
	s.ensureSynced(ctx)
	return s.repo.ListItems(ctx, filter)
}

// Adjust applies a restock or manual correction to one item under its row
// lock. The quantity may move in either direction but never below zero.
func (s *Service) Adjust(ctx context.Context, input AdjustInput) (Item, error) {
	if input.QtyChange == 0 {
		return Item{}, ErrInvalidQuantity
	}
	txType := input.Type
	if txType == "" {
		txType = TransactionTypeAdjust
	}
	if txType != TransactionTypeRestock && txType != TransactionTypeAdjust {
		return Item{}, fmt.Errorf("ledger: unsupported transaction type %q", txType)
	}

	var updated Item
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		item, err := tx.GetItemForUpdate(ctx, input.Code)
		if err != nil {
			return err
		}
		newQty := item.ActualQty + input.QtyChange
		if newQty < 0 {
			return fmt.Errorf("%w: %s has %d, change %+d", ErrInsufficientStock, item.Code, item.ActualQty, input.QtyChange)
		}
		if err := tx.UpdateItemQty(ctx, item.ID, newQty); err != nil {
			return err
		}
		if _, err := tx.InsertTransaction(ctx, Transaction{
			ItemID:    item.ID,
			Type:      txType,
			QtyChange: input.QtyChange,
			Note:      input.Note,
			CreatedBy: input.ActorID,
		}); err != nil {
			return err
		}
		updated = item
		updated.ActualQty = newQty
		return nil
	})
	if err != nil {
		return Item{}, err
	}

	s.pushQuantities(ctx, map[string]int{updated.Code: updated.ActualQty})
	s.bumpUsageCache(ctx)
	return updated, nil
}

// Consume withdraws stock for a task as one all-or-nothing batch. A slip
// groups the lines; every line locks its item row, verifies stock, and
// records a use transaction referencing both slip and task. Any failing
// line rolls back the whole batch.
func (s *Service) Consume(ctx context.Context, input ConsumeInput) (Slip, map[string]int, error) {
	if len(input.Lines) == 0 {
		return Slip{}, nil, ErrEmptyConsume
	}
	for _, line := range input.Lines {
		if line.Qty <= 0 {
			return Slip{}, nil, fmt.Errorf("%w: %s", ErrInvalidQuantity, line.Code)
		}
	}
	if _, err := uuid.Parse(input.TaskID); err != nil {
		return Slip{}, nil, fmt.Errorf("%w: %q", ErrInvalidTaskID, input.TaskID)
	}

	var slip Slip
	updated := make(map[string]int, len(input.Lines))
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		slipNo, err := tx.NextSlipNo(ctx)
		if err != nil {
			return err
		}
		slip = Slip{SlipNo: slipNo, TaskID: input.TaskID, CreatedBy: input.ActorID}
		slipID, err := tx.InsertSlip(ctx, slip)
		if err != nil {
			return err
		}
		slip.ID = slipID

		for _, line := range input.Lines {
			item, err := tx.GetItemForUpdate(ctx, line.Code)
			if err != nil {
				return err
			}
			newQty := item.ActualQty - line.Qty
			if newQty < 0 {
				return fmt.Errorf("%w: %s has %d, requested %d", ErrInsufficientStock, item.Code, item.ActualQty, line.Qty)
			}
			if err := tx.UpdateItemQty(ctx, item.ID, newQty); err != nil {
				return err
			}
			slipLine := SlipLine{
				SlipID:      slipID,
				ItemCode:    item.Code,
				Description: item.Description,
				QtyUsed:     line.Qty,
			}
			if err := tx.InsertSlipLine(ctx, slipLine); err != nil {
				return err
			}
			if _, err := tx.InsertTransaction(ctx, Transaction{
				ItemID:    item.ID,
				Type:      TransactionTypeUse,
				QtyChange: -line.Qty,
				TaskID:    input.TaskID,
				SlipID:    slipID,
				CreatedBy: input.ActorID,
			}); err != nil {
				return err
			}
			slip.Lines = append(slip.Lines, slipLine)
			updated[item.Code] = newQty
		}
		return nil
	})
	if err != nil {
		return Slip{}, nil, err
	}

	s.pushQuantities(ctx, updated)
	s.bumpUsageCache(ctx)
	return slip, updated, nil
}

// Usage reports aggregated consumption for the period, served from cache
// when available.
func (s *Service) Usage(ctx context.Context, filter UsageFilter) ([]UsageRow, error) {
	if s.cache == nil {
		return s.repo.Usage(ctx, filter)
	}
	key, err := s.cache.BuildKey(ctx, usageKey(filter)...)
	if err != nil {
		s.logger.Warn("usage cache key", slog.Any("error", err))
		return s.repo.Usage(ctx, filter)
	}
	var rows []UsageRow
	err = s.cache.FetchJSON(ctx, key, &rows, func(ctx context.Context) (interface{}, error) {
		return s.repo.Usage(ctx, filter)
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// ExportSnapshot fills the spreadsheet template with current ledger state
// and returns it as xlsx bytes for administrative download.
func (s *Service) ExportSnapshot(ctx context.Context) ([]byte, error) {
	if s.exporter == nil {
		return nil, fmt.Errorf("ledger: snapshot exporter not configured")
	}
	s.ensureSynced(ctx)
	items, err := s.repo.ListItems(ctx, ListFilter{})
	if err != nil {
		return nil, err
	}
	converted := make([]sheet.Item, 0, len(items))
	for _, item := range items {
		converted = append(converted, sheet.Item{
			Section:     item.Section,
			Code:        item.Code,
			Description: item.Description,
			PartType:    item.PartType,
			MinLevel:    item.MinLevel,
			ActualQty:   item.ActualQty,
		})
	}
	return s.exporter.ExportSnapshot(ctx, converted)
}

func (s *Service) ensureSynced(ctx context.Context) {
	if s.syncer == nil {
		return
	}
	if err := s.syncer.Ensure(ctx); err != nil {
		s.logger.Warn("spreadsheet sync failed, serving ledger state", slog.Any("error", err))
	}
}

// bumpUsageCache invalidates cached usage reports after a committed mutation.
func (s *Service) bumpUsageCache(ctx context.Context) {
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("bump usage cache", slog.Any("error", err))
	}
}

// pushQuantities hands the committed quantities to the write-back sink.
// Failures are logged: the ledger is the durable source of truth and the
// spreadsheet converges on the next successful push or full export.
func (s *Service) pushQuantities(ctx context.Context, quantities map[string]int) {
	if s.pusher == nil || len(quantities) == 0 {
		return
	}
	if err := s.pusher.PushQuantities(ctx, quantities); err != nil {
		s.logger.Error("quantity push-back failed",
			slog.Int("items", len(quantities)),
			slog.Any("error", err))
	}
}
