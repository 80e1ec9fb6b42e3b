// Package diff renders the difference between two snapshots (or a
// snapshot and the tree's current one) as unified text hunks. It is a
// consumer of the core: records and index objects in, formatted text out.
package diff

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/fractyl/fractyl/hash"
	"github.com/fractyl/fractyl/index"
	"github.com/fractyl/fractyl/objects"
	"github.com/fractyl/fractyl/repo"
	"github.com/fractyl/fractyl/snapshot"
	"github.com/fractyl/fractyl/types"
	"github.com/fractyl/fractyl/vcs"
)

const (
	contextLines = 3
	sniffLen     = 8192
)

// binaryExtensions short-circuits content sniffing for well-known formats.
var binaryExtensions = map[string]struct{}{
	".png": {}, ".jpg": {}, ".jpeg": {}, ".gif": {}, ".bmp": {}, ".ico": {},
	".pdf": {}, ".zip": {}, ".gz": {}, ".tar": {}, ".bz2": {}, ".xz": {}, ".zst": {},
	".so": {}, ".a": {}, ".o": {}, ".dylib": {}, ".dll": {}, ".exe": {}, ".bin": {},
	".wasm": {}, ".class": {}, ".jar": {}, ".sqlite": {}, ".db": {},
	".woff": {}, ".woff2": {}, ".ttf": {}, ".otf": {}, ".mp3": {}, ".mp4": {}, ".ogg": {},
}

// Options configures rendering.
type Options struct {
	// Color wraps added/removed lines in ANSI green/red.
	Color bool
}

// Run diffs refA against refB on the current branch and writes the result
// to w. An empty refB means "the snapshot CURRENT points at".
func Run(ctx context.Context, r *repo.Repo, refA, refB string, w io.Writer, opts Options) error {
	branch := vcs.Detect(ctx, r.Root).Branch
	if branch == "" {
		branch = repo.DefaultBranch
	}

	store, err := objects.New(r.ObjectsDir())
	if err != nil {
		return err
	}

	ixA, snapA, err := loadSide(r, store, branch, refA)
	if err != nil {
		return err
	}
	if refB == "" {
		refB, err = r.ReadCurrent(branch)
		if err != nil {
			return err
		}
		if refB == "" {
			return fmt.Errorf("no CURRENT snapshot on %s to diff against: %w", branch, types.ErrNotFound)
		}
	}
	ixB, snapB, err := loadSide(r, store, branch, refB)
	if err != nil {
		return err
	}

	for _, p := range unionPaths(ixA, ixB) {
		ea, inA := ixA.Find(p)
		eb, inB := ixB.Find(p)
		switch {
		case inA && !inB:
			fmt.Fprintf(w, "Only in %s: %s\n", snapA.ShortID(), p)
		case !inA && inB:
			fmt.Fprintf(w, "Only in %s: %s\n", snapB.ShortID(), p)
		case ea.Digest != eb.Digest:
			if err := renderFile(store, w, p, ea.Digest, eb.Digest, opts); err != nil {
				return err
			}
		}
	}
	return nil
}

func loadSide(r *repo.Repo, store *objects.Store, branch, ref string) (*index.Index, *types.Snapshot, error) {
	id, err := snapshot.Resolve(r, branch, ref)
	if err != nil {
		return nil, nil, err
	}
	snap, err := snapshot.LoadRecord(r, branch, id)
	if err != nil {
		return nil, nil, err
	}
	d, err := hash.Parse(snap.IndexHash)
	if err != nil {
		return nil, nil, err
	}
	data, err := store.Get(d)
	if err != nil {
		return nil, nil, err
	}
	ix, err := index.Decode(data)
	if err != nil {
		return nil, nil, err
	}
	return ix, snap, nil
}

func unionPaths(a, b *index.Index) []string {
	seen := make(map[string]struct{}, a.Len()+b.Len())
	for _, e := range a.Entries() {
		seen[e.Path] = struct{}{}
	}
	for _, e := range b.Entries() {
		seen[e.Path] = struct{}{}
	}
	paths := make([]string, 0, len(seen))
	for p := range seen {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

func renderFile(store *objects.Store, w io.Writer, p string, da, db hash.Digest, opts Options) error {
	bodyA, err := store.Get(da)
	if err != nil {
		return err
	}
	bodyB, err := store.Get(db)
	if err != nil {
		return err
	}

	if isBinary(p, bodyA) || isBinary(p, bodyB) {
		fmt.Fprintf(w, "Binary files a/%s and b/%s differ\n", p, p)
		return nil
	}

	ud := difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(bodyA)),
		B:        difflib.SplitLines(string(bodyB)),
		FromFile: "a/" + p,
		ToFile:   "b/" + p,
		Context:  contextLines,
	}
	text, err := difflib.GetUnifiedDiffString(ud)
	if err != nil {
		return fmt.Errorf("diff %s: %w", p, err)
	}
	if text == "" {
		return nil
	}
	if opts.Color {
		text = colorize(text)
	}
	_, err = io.WriteString(w, text)
	return err
}

// isBinary detects non-text bodies by extension, then by a NUL byte in
// the leading window.
func isBinary(p string, body []byte) bool {
	if _, ok := binaryExtensions[strings.ToLower(path.Ext(p))]; ok {
		return true
	}
	window := body
	if len(window) > sniffLen {
		window = window[:sniffLen]
	}
	return bytes.IndexByte(window, 0) >= 0
}

func colorize(text string) string {
	var b strings.Builder
	for _, line := range strings.SplitAfter(text, "\n") {
		switch {
		case strings.HasPrefix(line, "+") && !strings.HasPrefix(line, "+++"):
			b.WriteString("\x1b[32m" + strings.TrimSuffix(line, "\n") + "\x1b[0m\n")
		case strings.HasPrefix(line, "-") && !strings.HasPrefix(line, "---"):
			b.WriteString("\x1b[31m" + strings.TrimSuffix(line, "\n") + "\x1b[0m\n")
		default:
			b.WriteString(line)
		}
	}
	return b.String()
}
