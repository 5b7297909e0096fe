package scanner

import (
	"os"
	"strings"

	"github.com/rigger/core/internal/types"
)

// RescanAction classifies what an incremental rescan must do for a
// previously scanned path (spec §4.3).
type RescanAction string

const (
	ActionDeleted RescanAction = "deleted" // file missing: delete its artifacts
	ActionReread  RescanAction = "reread"  // size differs: re-read and re-chunk
	ActionSkip    RescanAction = "skip"    // mtime-only change or fully clean
)

// RescanPlan is the action to take for one previously-scanned file.
type RescanPlan struct {
	RelPath string
	Action  RescanAction
}

// PlanRescan classifies prev (keyed by relative path) against the current
// filesystem state rooted at root, following spec §4.3's decision order
// exactly: missing → deleted; size differs → reread; mtime differs but
// content hash matches → skip (mtime-only); else → skip (clean).
func PlanRescan(root string, prev map[string]types.FileFingerprint) ([]RescanPlan, error) {
	var plans []RescanPlan
	for rel, prevFP := range prev {
		full := joinRoot(root, rel)
		info, err := os.Stat(full)
		if err != nil {
			if os.IsNotExist(err) {
				plans = append(plans, RescanPlan{RelPath: rel, Action: ActionDeleted})
				continue
			}
			return plans, err
		}

		if info.Size() != prevFP.SizeBytes {
			plans = append(plans, RescanPlan{RelPath: rel, Action: ActionReread})
			continue
		}
		if !info.ModTime().Equal(prevFP.ModifiedAt) {
			fp, err := Fingerprint(full)
			if err != nil {
				return plans, err
			}
			if fp.ContentHash == prevFP.ContentHash {
				plans = append(plans, RescanPlan{RelPath: rel, Action: ActionSkip})
			} else {
				plans = append(plans, RescanPlan{RelPath: rel, Action: ActionReread})
			}
			continue
		}
		plans = append(plans, RescanPlan{RelPath: rel, Action: ActionSkip})
	}
	return plans, nil
}

func joinRoot(root, rel string) string {
	if strings.HasSuffix(root, "/") {
		return root + rel
	}
	return root + "/" + rel
}

// ArtifactSourceIDPrefix is the prefix used to identify every artifact
// derived from a given file path, so deletions can target them (spec §4.3,
// §6's source_id grammar: "file:{relpath}...").
func ArtifactSourceIDPrefix(relPath string) string {
	return "file:" + relPath
}
