package sheet

import (
	"path/filepath"
	"sync"
)

// fileLocks holds one mutex per workbook path. The spreadsheet is a shared
// mutable file: the importer's read and the exporter's two write paths must
// not interleave within the process, or a save in progress tears a
// concurrent read. External editors are still unguarded (last-writer-wins).
var fileLocks sync.Map

// pathLock returns the process-wide mutex for a workbook path.
func pathLock(path string) *sync.Mutex {
	lock, _ := fileLocks.LoadOrStore(filepath.Clean(path), &sync.Mutex{})
	return lock.(*sync.Mutex)
}
