package merge

import (
	"io/fs"
	"os"
	"path/filepath"

	"github.com/xyproto/fatelf/internal/ferr"
)

// MergeTrees recursively merges a set of directory trees: it walks each
// root physically (never following symlinks) in pre-order, builds the peer list
// for every encountered relative path, and delegates each tuple to
// MergeSet, skipping paths a previous pass already merged (idempotence).
func MergeTrees(diag Diagnostics, outRoot string, roots []string) error {
	if len(roots) == 0 {
		return ferr.New(ferr.KindIO, outRoot, "recursive merge requires at least one source tree")
	}
	for _, root := range roots {
		fi, err := os.Stat(root)
		if err != nil {
			return ferr.Wrap(ferr.KindIO, root, "stat root", err)
		}
		if !fi.IsDir() {
			return ferr.New(ferr.KindNotADirectory, root, "merge root must be a directory")
		}
	}

	for i, root := range roots {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return ferr.Wrap(ferr.KindIO, path, "walk", err)
			}
			// The root itself maps to rel "." and so to outRoot, which is
			// how the output root gets created on the first pass.
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return ferr.Wrap(ferr.KindIO, path, "compute relative path", err)
			}
			target := filepath.Join(outRoot, rel)

			peers, err := peerList(rel, roots)
			if err != nil {
				return err
			}

			if i > 0 {
				if _, statErr := os.Lstat(target); statErr == nil {
					for j := 0; j < i; j++ {
						if _, jErr := os.Lstat(filepath.Join(roots[j], rel)); jErr == nil {
							// A prior pass already merged this path; for
							// directories we still need to recurse into it
							// to reach any entries that are new in this
							// root, but the directory itself is not
							// re-merged.
							return nil
						}
					}
				}
			}

			return MergeSet(diag, target, peers)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// peerList builds the files tuple for a relative path: for each root that
// has an entry at rel, lstat it and verify it shares the first peer's file
// type.
func peerList(rel string, roots []string) ([]string, error) {
	var peers []string
	var firstMode os.FileMode
	for _, root := range roots {
		p := filepath.Join(root, rel)
		fi, err := os.Lstat(p)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, ferr.Wrap(ferr.KindIO, p, "lstat peer", err)
		}
		typeBits := fi.Mode() & os.ModeType
		if len(peers) == 0 {
			firstMode = typeBits
		} else if typeBits != firstMode {
			return nil, ferr.New(ferr.KindTypeMismatch, p, "peer disagrees on file type")
		}
		peers = append(peers, p)
	}
	return peers, nil
}
