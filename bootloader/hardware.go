// SPDX-License-Identifier: Apache-2.0

package bootloader

// Hardware abstracts the MBR vector-table relocation and final handoff to
// the application. Go has no inline-asm no-return branch primitive, so the
// real jump (set stack pointer, load reset vector, branch with LR set to
// 0xffffffff) is modeled as an interface method; a bare-metal target
// implementation backs it with the real MBR calls and an asm jump, the way
// TamaGo targets do for their SoC.
type Hardware interface {
	// SetVectorTableBase relocates the application's vector table via the
	// SoftDevice MBR's SD_MBR_COMMAND_VECTOR_TABLE_BASE_SET command.
	SetVectorTableBase(addr uint32) error
	// SetIRQForwardAddress configures IRQ forwarding via the MBR's
	// SD_MBR_COMMAND_IRQ_FORWARD_ADDRESS_SET command.
	SetIRQForwardAddress(addr uint32) error
	// ProtectBootloaderRegion write-protects the bootloader's own flash
	// region against further writes for the remainder of this boot.
	ProtectBootloaderRegion() error
	// Jump transfers control to the application: set the main stack
	// pointer to msp, set LR to 0xffffffff, and branch to resetVector. Does
	// not return.
	Jump(msp, resetVector uint32)
}

// SimHardware is a Hardware for tests: it records calls instead of
// touching real registers, and Jump sets Jumped instead of branching.
type SimHardware struct {
	VectorTableBase      uint32
	IRQForwardAddress    uint32
	BootloaderProtected  bool
	Jumped               bool
	JumpedMSP            uint32
	JumpedResetVector    uint32
}

func (h *SimHardware) SetVectorTableBase(addr uint32) error {
	h.VectorTableBase = addr
	return nil
}

func (h *SimHardware) SetIRQForwardAddress(addr uint32) error {
	h.IRQForwardAddress = addr
	return nil
}

func (h *SimHardware) ProtectBootloaderRegion() error {
	h.BootloaderProtected = true
	return nil
}

func (h *SimHardware) Jump(msp, resetVector uint32) {
	h.Jumped = true
	h.JumpedMSP = msp
	h.JumpedResetVector = resetVector
}
