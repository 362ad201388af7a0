package gpt

import (
	"fmt"
)

// ChromeOS kernel partitions keep their boot selection state in the
// type-specific GPT attribute bits 48-56.
const (
	priorityShift   = 48
	triesShift      = 52
	successfulShift = 56

	// LegacyBootAttribute is the "legacy BIOS bootable" attribute bit.
	LegacyBootAttribute uint64 = 1 << 2

	kernelAttributeMask uint64 = 0x1ff << priorityShift
)

type KernelAttributes struct {
	Successful bool
	Tries      int
	Priority   int
}

func (a KernelAttributes) validate() error {
	if a.Tries < 0 || a.Tries > 15 {
		return fmt.Errorf("tries %d out of range 0..15", a.Tries)
	}
	if a.Priority < 0 || a.Priority > 15 {
		return fmt.Errorf("priority %d out of range 0..15", a.Priority)
	}
	return nil
}

// Apply returns attrs with the kernel attribute bits replaced by a.
func (a KernelAttributes) Apply(attrs uint64) (uint64, error) {
	if err := a.validate(); err != nil {
		return 0, err
	}
	attrs &^= kernelAttributeMask
	attrs |= uint64(a.Priority) << priorityShift
	attrs |= uint64(a.Tries) << triesShift
	if a.Successful {
		attrs |= 1 << successfulShift
	}
	return attrs, nil
}

// KernelAttributesFromBits decodes the kernel attribute bits of a GPT
// entry.
func KernelAttributesFromBits(attrs uint64) KernelAttributes {
	return KernelAttributes{
		Priority:   int(attrs>>priorityShift) & 0xf,
		Tries:      int(attrs>>triesShift) & 0xf,
		Successful: attrs&(1<<successfulShift) != 0,
	}
}
