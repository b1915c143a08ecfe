package transport

import (
	"golang.org/x/net/bpf"
)

// avtpProgram accepts 802.1Q tagged AVTP frames, and untagged AVTP frames whose
// tag was stripped by VLAN offload before the filter ran.
var avtpProgram = []bpf.Instruction{
	bpf.LoadAbsolute{Off: 12, Size: 2},
	bpf.JumpIf{Cond: bpf.JumpEqual, Val: 0x22f0, SkipTrue: 3},
	bpf.JumpIf{Cond: bpf.JumpEqual, Val: 0x8100, SkipFalse: 3},
	bpf.LoadAbsolute{Off: 16, Size: 2},
	bpf.JumpIf{Cond: bpf.JumpEqual, Val: 0x22f0, SkipFalse: 1},
	bpf.RetConstant{Val: MTU + 18},
	bpf.RetConstant{Val: 0},
}

var dropAllProgram = []bpf.Instruction{
	bpf.RetConstant{Val: 0},
}

// AVTPFilter is the listener socket filter.
func AVTPFilter() ([]bpf.RawInstruction, error) {
	return bpf.Assemble(avtpProgram)
}

// DropAllFilter keeps a send-only socket from buffering inbound traffic.
func DropAllFilter() ([]bpf.RawInstruction, error) {
	return bpf.Assemble(dropAllProgram)
}
