package statcache

import (
	"context"

	"github.com/fractyl/fractyl/storage"
	jsonstore "github.com/fractyl/fractyl/storage/json"
)

// DirState records one directory's shape at the last scan: its mtime and
// how many direct (non-directory) children it held.
type DirState struct {
	MtimeSec  int64 `json:"mtime_sec"`
	FileCount int   `json:"file_count"`
}

// DirTable is the persisted map of directory states for one branch.
type DirTable struct {
	Dirs map[string]DirState `json:"dirs"`
}

// Init implements storage.Initer.
func (t *DirTable) Init() {
	if t.Dirs == nil {
		t.Dirs = make(map[string]DirState)
	}
}

// DirCache lets a scan skip the per-file checks of directories whose
// mtime and direct-file count are unchanged; the scan still descends into
// them. It is a hint only: change detection still verifies via the stat
// cache or prior index.
type DirCache struct {
	store storage.Store[DirTable]
	table DirTable
}

// LoadDirCache reads the directory table persisted alongside the stat cache.
func LoadDirCache(ctx context.Context, lockPath, filePath string) (*DirCache, error) {
	return NewDirCache(ctx, jsonstore.New[DirTable](lockPath, filePath))
}

// NewDirCache builds a DirCache over any backing store; tests substitute
// an in-memory one.
func NewDirCache(ctx context.Context, store storage.Store[DirTable]) (*DirCache, error) {
	dc := &DirCache{store: store}
	err := dc.store.With(ctx, func(t *DirTable) error {
		dc.table = *t
		return nil
	})
	if err != nil {
		return nil, err
	}
	dc.table.Init()
	return dc, nil
}

// Unchanged reports whether dir still matches its recorded state.
func (dc *DirCache) Unchanged(dir string, mtimeSec int64, fileCount int) bool {
	st, ok := dc.table.Dirs[dir]
	return ok && st.MtimeSec == mtimeSec && st.FileCount == fileCount
}

// Record updates the in-memory state for dir.
func (dc *DirCache) Record(dir string, mtimeSec int64, fileCount int) {
	dc.table.Dirs[dir] = DirState{MtimeSec: mtimeSec, FileCount: fileCount}
}

// Forget drops the state for dir.
func (dc *DirCache) Forget(dir string) {
	delete(dc.table.Dirs, dir)
}

// Save persists the table.
func (dc *DirCache) Save(ctx context.Context) error {
	return dc.store.Update(ctx, func(t *DirTable) error {
		t.Dirs = dc.table.Dirs
		return nil
	})
}
