package xlate

import (
	"encoding/gob"
	"os"
)

// Checkpoint holds enough state to resume a multi-block lowering run
// without re-walking already-emitted addresses.
type Checkpoint struct {
	Emitted []uint32
}

// SaveCheckpoint writes t's current address set to path.
func SaveCheckpoint(path string, t *BlockTable) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	ckpt := Checkpoint{Emitted: t.Addresses()}
	return gob.NewEncoder(f).Encode(&ckpt)
}

// LoadCheckpoint reads a previously saved address set back into a fresh
// BlockTable.
func LoadCheckpoint(path string) (*BlockTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var ckpt Checkpoint
	if err := gob.NewDecoder(f).Decode(&ckpt); err != nil {
		return nil, err
	}

	t := NewBlockTable()
	for _, addr := range ckpt.Emitted {
		t.Claim(addr)
	}
	return t, nil
}
