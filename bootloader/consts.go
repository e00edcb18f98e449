// SPDX-License-Identifier: Apache-2.0

// Package bootloader implements the on-device firmware-update and
// handoff-to-application loop: COBS-framed command dispatch, flash
// erase/write, glitch-resistant signature verification, UICR-backed
// challenge-response, and the controlled jump into the application.
package bootloader

// FlashPage is the erase granularity of the target flash.
const FlashPage = 4096

// SealIdx is the UICR word index gating further secret writes.
const SealIdx = 8

// SealedSecret is the sentinel value written to the seal word once the
// challenge-response secret has been provisioned; further ChallengeSet
// calls are rejected once this is present.
const SealedSecret uint32 = 0x5a5a5a5a

// BaseAppAddr is the start of the application flash region.
const BaseAppAddr = 0x1000

// BaseBootloaderAddr is the start of the bootloader's own flash region,
// immediately following the application region.
const BaseBootloaderAddr = 0x6d000

// AppSize is the size of the application flash region.
const AppSize = BaseBootloaderAddr - BaseAppAddr

// MaxAppOffset is the last writable offset before the bootloader region.
// spec.md's BASE_BOOTLOADER_APP is undefined; resolved in DESIGN.md as
// BaseBootloaderAddr - FlashPage, the last full page reserved for the
// application image.
const MaxAppOffset = BaseBootloaderAddr - FlashPage

// SignatureHeaderSize is the size of the cosign2 header prefixing a signed
// application image.
const SignatureHeaderSize = 2048

// CFI prime constants. Each verification branch increments the
// control-flow-integrity counter by a distinct prime; the final gate
// checks the accumulated sum exactly, so skipping any branch (by fault
// injection) produces a sum that does not match.
const (
	cf1 = 3
	cf2 = 5
	cf3 = 7
	cf4 = 11
	cf5 = 13
	cf6 = 17

	cfiExpectedSum = cf1 + cf2 + cf3 + cf4 + cf5 + cf6

	// eccCF1/eccCF2 gate EccVerify alone, a narrower check used inside the
	// signature primitive itself rather than the whole-image verification.
	eccCF1 = 13
	eccCF2 = 7
	eccExpectedSum = eccCF1 + eccCF2
)
