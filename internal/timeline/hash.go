package timeline

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// WindowHash computes the canonical content hash for a render window: a
// SHA-256 over the serialized fields of every enabled clip whose visible
// interval intersects the window, in position order. The same hash input is
// used everywhere a chunk's freshness is decided, so a chunk is never
// reported valid while an intersecting clip differs from what was rendered.
func (tl *Timeline) WindowHash(w Window) string {
	clips := tl.ClipsIntersecting(w)

	var b strings.Builder
	for _, c := range clips {
		fmt.Fprintf(&b, "%s|%.6f|%.6f|%.6f|%.6f|%t\n",
			c.ID, c.TimelineStart, c.Duration, c.MediaIn, c.MediaOut, c.Enabled)
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
