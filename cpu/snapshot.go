package cpu

import (
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

// SNAPSHOT_VERSION is bumped whenever cpuState changes shape.
const SNAPSHOT_VERSION = 1

// cpuState is the serialized register state of a Cpu.
type cpuState struct {
	Version int        `cbor:"1,keyasint"`
	Pc      uint64     `cbor:"2,keyasint"`
	X       [32]uint64 `cbor:"3,keyasint"`
	Ticks   int        `cbor:"4,keyasint"`
}

var snapshotEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("cpu: failed to create CBOR enc mode: %v", err))
	}
	snapshotEncMode = em
}

// Snapshot writes the register state as canonical CBOR. Memory is not
// included.
func (cpu *Cpu) Snapshot(w io.Writer) (err error) {
	state := cpuState{
		Version: SNAPSHOT_VERSION,
		Pc:      uint64(cpu.Pc),
		X:       cpu.X,
		Ticks:   cpu.Ticks,
	}

	data, err := snapshotEncMode.Marshal(&state)
	if err != nil {
		return
	}

	_, err = w.Write(data)
	return
}

// Restore loads register state written by Snapshot.
func (cpu *Cpu) Restore(r io.Reader) (err error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return
	}

	var state cpuState
	err = cbor.Unmarshal(data, &state)
	if err != nil {
		return
	}

	if state.Version != SNAPSHOT_VERSION || state.X[0] != 0 {
		err = ErrSnapshotState
		return
	}

	cpu.Pc = Address(state.Pc)
	cpu.X = state.X
	cpu.Ticks = state.Ticks

	return
}
