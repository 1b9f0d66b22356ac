// Package archive preserves milestone snapshots outside the rolling
// snapshot directory so a long run keeps a sparse, durable history even
// when older periodic snapshots are pruned.
package archive

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"blocklife.gg/internal/persistence/snapshot"
)

type MilestoneMeta struct {
	Milestone int    `json:"milestone"`
	Tick      uint64 `json:"tick"`
	GameID    string `json:"game_id"`
	Snapshot  string `json:"snapshot"`
	Blocks    int    `json:"blocks"`
	CreatedAt string `json:"created_at"`
}

// ArchiveMilestoneSnapshot copies a snapshot into
// gameDir/archives/milestone_<NNN>/ when its tick falls on a multiple of
// everyTicks. Returns archived=false for off-milestone snapshots.
func ArchiveMilestoneSnapshot(gameDir, snapshotPath string, snap snapshot.SnapshotV1, everyTicks uint64) (milestone int, archivedPath string, archived bool, err error) {
	if everyTicks == 0 {
		return 0, "", false, nil
	}
	tick := snap.Header.Tick
	if tick == 0 || tick%everyTicks != 0 {
		return 0, "", false, nil
	}
	milestone = int(tick / everyTicks)

	archiveDir := filepath.Join(gameDir, "archives", fmt.Sprintf("milestone_%03d", milestone))
	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		return 0, "", false, err
	}

	dst := filepath.Join(archiveDir, filepath.Base(snapshotPath))
	if err := copyFile(snapshotPath, dst); err != nil {
		return 0, "", false, err
	}

	meta := MilestoneMeta{
		Milestone: milestone,
		Tick:      tick,
		GameID:    snap.Header.GameID,
		Snapshot:  filepath.Base(dst),
		Blocks:    len(snap.Blocks),
		CreatedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	if b, err := json.MarshalIndent(meta, "", "  "); err == nil {
		_ = os.WriteFile(filepath.Join(archiveDir, "meta.json"), b, 0o644)
	}

	return milestone, dst, true, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
