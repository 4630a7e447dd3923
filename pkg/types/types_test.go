package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFileEntryClone(t *testing.T) {
	orig := &FileEntry{
		ID:            "h1",
		MimeType:      MimeHTML,
		Payload:       []byte("abc"),
		AssociatedIDs: []string{"j1"},
	}

	c := orig.Clone()
	assert.Equal(t, orig, c)

	c.Payload[0] = 'x'
	c.AssociatedIDs[0] = "j2"
	assert.Equal(t, []byte("abc"), orig.Payload)
	assert.Equal(t, []string{"j1"}, orig.AssociatedIDs)
}

func TestFileEntryKinds(t *testing.T) {
	tests := []struct {
		mime      string
		container bool
		image     bool
	}{
		{MimeHTML, true, false},
		{"text/html; charset=utf-8", true, false},
		{MimeJSON, false, false},
		{MimeCSV, false, false},
		{"image/png", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.mime, func(t *testing.T) {
			e := &FileEntry{MimeType: tt.mime}
			assert.Equal(t, tt.container, e.IsContainer())
			assert.Equal(t, tt.image, e.IsImage())
		})
	}
}

func TestStorageUsage(t *testing.T) {
	var u StorageUsage
	assert.Equal(t, 0.0, u.Ratio())

	u.Add(&FileEntry{OriginalSize: 100, CompressedSize: 40})
	u.Add(&FileEntry{OriginalSize: 100, CompressedSize: 60})

	assert.Equal(t, 2, u.Files)
	assert.Equal(t, int64(200), u.TotalOriginalBytes)
	assert.Equal(t, int64(100), u.TotalCompressedBytes)
	assert.InDelta(t, 0.5, u.Ratio(), 1e-9)
}
