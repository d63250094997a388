package security

import (
	"encoding/json"
	"fmt"

	"github.com/holiman/uint256"
)

// SnapshotName is the state record under which the security state is saved
// next to the pools.
const SnapshotName = "security"

const snapshotVersion = 1

type storedSnapshot struct {
	Version  int      `json:"version"`
	Snapshot Snapshot `json:"snapshot"`
}

// EncodeSnapshot serializes snap for storage. Amounts are written as decimal strings.
func EncodeSnapshot(snap Snapshot) ([]byte, error) {
	data, err := json.Marshal(storedSnapshot{Version: snapshotVersion, Snapshot: snap})
	if err != nil {
		return nil, fmt.Errorf("failed to encode security snapshot: %w", err)
	}
	return data, nil
}

// DecodeSnapshot is the inverse of EncodeSnapshot.
func DecodeSnapshot(data []byte) (Snapshot, error) {
	var stored storedSnapshot
	if err := json.Unmarshal(data, &stored); err != nil {
		return Snapshot{}, fmt.Errorf("failed to decode security snapshot: %w", err)
	}
	if stored.Version != snapshotVersion {
		return Snapshot{}, fmt.Errorf("unsupported security snapshot version %d", stored.Version)
	}
	return stored.Snapshot, nil
}

// Snapshot returns the state as it will be once the Tx commits.
func (tx *Tx) Snapshot() Snapshot {
	snap := tx.s.Snapshot()
	snap.UserNonces[tx.user] = tx.nextNonce
	snap.DailyVolume[tx.user] = UserVolume{EpochStart: tx.userVolume.EpochStart, Volume: tx.userVolume.Volume.Clone()}
	snap.TotalVolume24h, snap.LastVolumeReset = tx.totalAfter()
	return snap
}

// totalAfter returns the 24h total and its reset time after the Tx commits.
func (tx *Tx) totalAfter() (*uint256.Int, uint64) {
	s := tx.s
	total, reset := s.totalVolume24h, s.lastVolumeReset
	if tx.resetGlobal {
		total, reset = new(uint256.Int), tx.now
	}
	// cannot overflow, checked against the threshold in Validate
	return new(uint256.Int).Add(total, tx.amount), reset
}
