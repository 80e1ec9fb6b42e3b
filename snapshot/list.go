package snapshot

import (
	"os"
	"sort"
	"strings"

	"github.com/fractyl/fractyl/repo"
	"github.com/fractyl/fractyl/types"
)

// List returns every snapshot record on branch, newest first. Records
// that fail to parse are skipped; an absent branch yields an empty list.
// Enumeration is authoritative for existence; CURRENT is only a hint for
// "latest".
func List(r *repo.Repo, branch string) ([]*types.Snapshot, error) {
	entries, err := os.ReadDir(r.SnapshotsDir(branch))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var snaps []*types.Snapshot
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		snap, err := LoadRecord(r, branch, strings.TrimSuffix(name, ".json"))
		if err != nil {
			continue
		}
		snaps = append(snaps, snap)
	}
	sort.SliceStable(snaps, func(i, j int) bool {
		return snaps[i].Timestamp.After(snaps[j].Timestamp.Time)
	})
	return snaps, nil
}
