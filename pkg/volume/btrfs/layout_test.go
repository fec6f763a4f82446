package btrfs

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/snapsink/snapsink/pkg/binstruct"
)

// ============================================================================
// Layout Tests
// ============================================================================

// The kernel ABI fixes every size below; a drift here corrupts ioctl
// arguments or misreads tree items.
func TestLayoutSizes(t *testing.T) {
	tests := []struct {
		name string
		d    *binstruct.Descriptor
		size int
	}{
		{"Timespec", timespec, 12},
		{"DiskKey", diskKey, 17},
		{"InodeItem", inodeItem, 160},
		{"RootItem", rootItem, 439},
		{"RootRef", rootRef, 18},
		{"SearchKey", searchKey, 104},
		{"SearchArgs", searchArgs, 4096},
		{"SearchHeader", searchHeader, 32},
		{"InoLookupArgs", inoLookupArgs, 4096},
		{"SendArgs", sendArgs, 72},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.size, tt.d.Size())
		})
	}
}

// Operation codes as the kernel headers define them.
func TestOperationCodes(t *testing.T) {
	assert.Equal(t, uint32(0xd0009411), iocTreeSearch.Code())
	assert.Equal(t, uint32(0xd0009412), iocInoLookup.Code())
	assert.Equal(t, uint32(0x40489426), iocSend.Code())
}
