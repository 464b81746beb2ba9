package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mainstay-ops/mainstay/internal/ledger"
	"github.com/mainstay-ops/mainstay/internal/sheet"
)

type stubParser struct {
	calls  int32
	block  chan struct{}
	doc    sheet.Document
	err    error
	errFor int32 // fail the first N calls
}

func (p *stubParser) ParseFile(path string) (sheet.Document, error) {
	n := atomic.AddInt32(&p.calls, 1)
	if p.block != nil {
		<-p.block
	}
	if p.err != nil && n <= p.errFor {
		return sheet.Document{}, p.err
	}
	return p.doc, nil
}

type stubStore struct {
	mu      sync.Mutex
	imports [][]ledger.ImportRecord
	err     error
}

func (s *stubStore) ImportItems(ctx context.Context, records []ledger.ImportRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.imports = append(s.imports, records)
	return nil
}

func (s *stubStore) importCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.imports)
}

func writeSheetFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stockroom.xlsx")
	require.NoError(t, os.WriteFile(path, []byte("workbook"), 0o644))
	return path
}

func touch(t *testing.T, path string, at time.Time) {
	t.Helper()
	require.NoError(t, os.Chtimes(path, at, at))
}

func testDoc() sheet.Document {
	return sheet.Document{Items: []sheet.Item{
		{Section: "Earthwire", Code: "EW-001", Description: "Earthwire clamp", MinLevel: 5, ActualQty: 12},
	}}
}

type stubInvalidator struct {
	bumps int32
}

func (s *stubInvalidator) Bump(ctx context.Context) error {
	atomic.AddInt32(&s.bumps, 1)
	return nil
}

func newCoordinator(parser ParserPort, store StorePort, path string) *Coordinator {
	return New(slog.New(slog.DiscardHandler), parser, store, path, true, nil, nil)
}

func TestEnsureImportsOncePerModification(t *testing.T) {
	path := writeSheetFile(t)
	parser := &stubParser{doc: testDoc()}
	store := &stubStore{}
	c := newCoordinator(parser, store, path)

	require.NoError(t, c.Ensure(context.Background()))
	require.Equal(t, 1, store.importCount())
	require.Equal(t, "EW-001", store.imports[0][0].Code)

	// Unchanged file: no further import.
	require.NoError(t, c.Ensure(context.Background()))
	require.Equal(t, 1, store.importCount())

	// Touching the file forward triggers a fresh import.
	touch(t, path, time.Now().Add(time.Hour))
	require.NoError(t, c.Ensure(context.Background()))
	require.Equal(t, 2, store.importCount())
}

func TestEnsureSharesOneInFlightImport(t *testing.T) {
	path := writeSheetFile(t)
	parser := &stubParser{doc: testDoc(), block: make(chan struct{})}
	store := &stubStore{}
	c := newCoordinator(parser, store, path)

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = c.Ensure(context.Background())
		}(i)
	}

	// Let every caller pile up on the same in-flight parse.
	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&parser.calls) == 1
	}, time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(parser.block)
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	require.Equal(t, int32(1), atomic.LoadInt32(&parser.calls))
	require.Equal(t, 1, store.importCount())
}

func TestEnsureFailureKeepsTimestampForRetry(t *testing.T) {
	path := writeSheetFile(t)
	parser := &stubParser{doc: testDoc(), err: errors.New("corrupt workbook"), errFor: 1}
	store := &stubStore{}
	c := newCoordinator(parser, store, path)

	require.Error(t, c.Ensure(context.Background()))
	require.Equal(t, 0, store.importCount())

	// Same mtime, but the failed attempt did not advance the watermark.
	require.NoError(t, c.Ensure(context.Background()))
	require.Equal(t, 1, store.importCount())
}

func TestEnsureStoreFailureSurfacesAndRetries(t *testing.T) {
	path := writeSheetFile(t)
	parser := &stubParser{doc: testDoc()}
	store := &stubStore{err: errors.New("db down")}
	c := newCoordinator(parser, store, path)

	require.Error(t, c.Ensure(context.Background()))

	store.mu.Lock()
	store.err = nil
	store.mu.Unlock()
	require.NoError(t, c.Ensure(context.Background()))
	require.Equal(t, 1, store.importCount())
}

func TestEnsureMissingFileIsNotAnError(t *testing.T) {
	parser := &stubParser{doc: testDoc()}
	store := &stubStore{}
	c := newCoordinator(parser, store, filepath.Join(t.TempDir(), "absent.xlsx"))

	require.NoError(t, c.Ensure(context.Background()))
	require.Equal(t, 0, store.importCount())
}

func TestEnsureDisabled(t *testing.T) {
	path := writeSheetFile(t)
	parser := &stubParser{doc: testDoc()}
	store := &stubStore{}
	c := New(slog.New(slog.DiscardHandler), parser, store, path, false, nil, nil)

	require.NoError(t, c.Ensure(context.Background()))
	require.Equal(t, 0, store.importCount())
}

func TestEnsureInvalidatesDerivedCachesAfterImport(t *testing.T) {
	path := writeSheetFile(t)
	parser := &stubParser{doc: testDoc(), err: errors.New("corrupt workbook"), errFor: 1}
	store := &stubStore{}
	invalidator := &stubInvalidator{}
	c := New(slog.New(slog.DiscardHandler), parser, store, path, true, nil, invalidator)

	// A failed import rewrites nothing, so caches stay valid.
	require.Error(t, c.Ensure(context.Background()))
	require.Equal(t, int32(0), atomic.LoadInt32(&invalidator.bumps))

	require.NoError(t, c.Ensure(context.Background()))
	require.Equal(t, int32(1), atomic.LoadInt32(&invalidator.bumps))

	// Unchanged file: no import, no invalidation.
	require.NoError(t, c.Ensure(context.Background()))
	require.Equal(t, int32(1), atomic.LoadInt32(&invalidator.bumps))
}

func TestEnsureCancelledCallerDetachesFromImport(t *testing.T) {
	path := writeSheetFile(t)
	parser := &stubParser{doc: testDoc(), block: make(chan struct{})}
	store := &stubStore{}
	c := newCoordinator(parser, store, path)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Ensure(ctx) }()

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&parser.calls) == 1
	}, time.Second, 10*time.Millisecond)
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	// The import itself keeps running and lands in the store.
	close(parser.block)
	require.Eventually(t, func() bool {
		return store.importCount() == 1
	}, time.Second, 10*time.Millisecond)
}
