package database

import (
	"github.com/quarrylabs/rollclient/foundation/rollup/digest"
)

// NoteTree computes the note root for the ordered set of notes sealed into
// one block, along with the authentication path for each note. The last
// leaf is duplicated when the count is odd at any level so the tree stays
// perfect without committing to extra data.
func NoteTree(ids []NoteID) (digest.Digest, [][]digest.Digest) {
	if len(ids) == 0 {
		return digest.Zero, nil
	}

	level := make([]digest.Digest, len(ids))
	for i, id := range ids {
		level[i] = digest.Digest(id)
	}

	paths := make([][]digest.Digest, len(ids))

	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}

		// Record the sibling for every original note still covered by
		// this level.
		width := len(level)
		for i := range paths {
			idx := indexAtLevel(uint64(i), len(paths[i]))
			if int(idx) < width {
				paths[i] = append(paths[i], level[idx^1])
			}
		}

		next := make([]digest.Digest, 0, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			next = append(next, digest.Join(level[i], level[i+1]))
		}
		level = next
	}

	return level[0], paths
}

// VerifyNotePath folds the note id up its authentication path and compares
// the result to the block's note root.
func VerifyNotePath(id NoteID, index uint64, path []digest.Digest, root digest.Digest) bool {
	node := digest.Digest(id)

	for d, sibling := range path {
		if (index>>uint(d))&1 == 0 {
			node = digest.Join(node, sibling)
		} else {
			node = digest.Join(sibling, node)
		}
	}

	return node == root
}

// indexAtLevel returns the position of the leaf's ancestor at the
// specified level.
func indexAtLevel(leaf uint64, level int) uint64 {
	return leaf >> uint(level)
}
