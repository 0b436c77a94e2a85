// Package ptbfilter compiles and runs the ptb_filter matcher from §3/§4.4:
// `icmp[0] == 3 && icmp[1] == 4` over an Ethernet-stripped IPv4 payload.
// It is hand-assembled with golang.org/x/net/bpf the same way
// otus-packet/internal/utils/bpf.go assembles its capture filters
// (LoadAbsolute + JumpIf + RetConstant), rather than compiled from a
// tcpdump-style filter string, since the match only needs two byte
// comparisons and the input is already IPv4 (no link-layer offset to
// account for).
package ptbfilter

import "golang.org/x/net/bpf"

// Filter matches ICMP Type 3 Code 4 (Destination Unreachable,
// Fragmentation Needed) over a raw IPv4 datagram.
type Filter struct {
	vm *bpf.VM
}

// Compile builds the BPF program. It assumes the input to Match is the
// IPv4 datagram bytes (Ethernet header already stripped): protocol at
// byte 9, ICMP type/code at header-length+0 and header-length+1. Since
// IHL is variable, the program loads IHL first and computes the ICMP
// offset with an indirect load.
func Compile() (*Filter, error) {
	insns := []bpf.Instruction{
		// A = protocol byte (offset 9)
		bpf.LoadAbsolute{Off: 9, Size: 1},
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: 1, SkipFalse: 6}, // proto != ICMP(1) -> reject
		// X = (IHL low nibble) * 4, via indirect-load-aware instruction
		bpf.LoadMemShift{Off: 0},
		// A = icmp type, at X+0
		bpf.LoadIndirect{Off: 0, Size: 1},
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: 3, SkipFalse: 3}, // type != 3 -> reject
		// A = icmp code, at X+1
		bpf.LoadIndirect{Off: 1, Size: 1},
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: 4, SkipFalse: 1}, // code != 4 -> reject
		bpf.RetConstant{Val: 1},
		bpf.RetConstant{Val: 0},
	}

	raw, err := bpf.Assemble(insns)
	if err != nil {
		return nil, err
	}
	vm, err := bpf.NewVM(rawToInstructions(raw))
	if err != nil {
		return nil, err
	}
	return &Filter{vm: vm}, nil
}

// rawToInstructions decodes the assembled program back into typed
// instructions (the same bpf.RawInstruction form the afpacket adapter
// hands to the kernel), which is the form bpf.NewVM checks and runs.
func rawToInstructions(raw []bpf.RawInstruction) []bpf.Instruction {
	out := make([]bpf.Instruction, len(raw))
	for i, r := range raw {
		out[i] = r.Disassemble()
	}
	return out
}

// Match runs the compiled program against an IPv4 datagram (no
// Ethernet header) and reports whether it is an ICMP Type 3 Code 4
// message.
func (f *Filter) Match(ipv4Datagram []byte) bool {
	n, err := f.vm.Run(ipv4Datagram)
	return err == nil && n > 0
}
