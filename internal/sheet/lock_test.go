package sheet

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPathLockIsSharedPerPath(t *testing.T) {
	a := pathLock("/srv/stockroom/stockroom.xlsx")
	b := pathLock("/srv/stockroom/../stockroom/stockroom.xlsx")
	require.Same(t, a, b)
	require.NotSame(t, a, pathLock("/srv/stockroom/other.xlsx"))
}

func TestParseWaitsForWriterOnSamePath(t *testing.T) {
	path := writeTemplate(t, templateRows())
	lock := pathLock(path)
	lock.Lock()

	done := make(chan error, 1)
	go func() {
		_, err := NewParser(newTestLogger(), "").ParseFile(path)
		done <- err
	}()

	select {
	case <-done:
		t.Fatal("parse completed while the file lock was held")
	case <-time.After(50 * time.Millisecond):
	}

	lock.Unlock()
	require.NoError(t, <-done)
}
