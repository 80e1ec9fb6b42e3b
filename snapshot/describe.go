package snapshot

import (
	"regexp"
	"strconv"

	"github.com/fractyl/fractyl/types"
)

// initialDescription seeds the chain for a branch's first snapshot.
const initialDescription = "working"

var incrementSuffix = regexp.MustCompile(`^(.*) \+(\d+)$`)

// DefaultDescription derives an automatic description from the prior
// snapshot. The common case increments a " +N" suffix; when the commit is
// branching off an older snapshot (CURRENT is not the newest record by
// timestamp), the divergence is marked with a 6-char id suffix instead.
func DefaultDescription(prior, latest *types.Snapshot) string {
	if prior == nil {
		return initialDescription
	}
	base, n := splitIncrement(prior.Description)
	if latest != nil && prior.ID != latest.ID {
		return base + "-" + shortID(prior.ID, 6)
	}
	return base + " +" + strconv.Itoa(n+1)
}

// splitIncrement splits "foo +3" into ("foo", 3); a description without
// the suffix is its own base with count 0.
func splitIncrement(desc string) (string, int) {
	m := incrementSuffix.FindStringSubmatch(desc)
	if m == nil {
		return desc, 0
	}
	n, err := strconv.Atoi(m[2])
	if err != nil {
		return desc, 0
	}
	return m[1], n
}

func shortID(id string, n int) string {
	if len(id) <= n {
		return id
	}
	return id[:n]
}
