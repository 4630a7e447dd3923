package types

import (
	"slices"
	"strings"
	"time"
)

// FileEntry is one stored user file: metadata plus its compressed payload
type FileEntry struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	MimeType       string    `json:"mimeType"`
	OriginalSize   int64     `json:"originalSize"`
	CompressedSize int64     `json:"compressedSize"`
	Encoding       Encoding  `json:"encoding,omitempty"`
	Payload        []byte    `json:"payload"`
	CreatedAt      time.Time `json:"createdAt"`
	ModifiedAt     time.Time `json:"modifiedAt"`
	AssociatedIDs  []string  `json:"associatedIds"`
}

// Encoding identifies how Payload was produced from the original bytes
type Encoding string

const (
	EncodingZstd     Encoding = "zstd"
	EncodingIdentity Encoding = "identity" // Stored as-is, compression did not help
)

// Content kinds the file manager knows how to preview
const (
	MimeCSV  = "text/csv"
	MimeTSV  = "text/tab-separated-values"
	MimeJSON = "application/json"
	MimeHTML = "text/html"
)

// IsContainer reports whether the entry may reference other entries
func (e *FileEntry) IsContainer() bool {
	return strings.HasPrefix(e.MimeType, MimeHTML)
}

// IsImage reports whether the entry holds an image
func (e *FileEntry) IsImage() bool {
	return strings.HasPrefix(e.MimeType, "image/")
}

// HasAssociation reports whether id is in AssociatedIDs
func (e *FileEntry) HasAssociation(id string) bool {
	return slices.Contains(e.AssociatedIDs, id)
}

// Clone returns a deep copy of the entry
func (e *FileEntry) Clone() *FileEntry {
	c := *e
	if e.Payload != nil {
		c.Payload = slices.Clone(e.Payload)
	}
	if e.AssociatedIDs != nil {
		c.AssociatedIDs = slices.Clone(e.AssociatedIDs)
	}
	return &c
}

// StorageUsage aggregates sizes over every stored entry
type StorageUsage struct {
	Files                int   `json:"files"`
	TotalOriginalBytes   int64 `json:"totalOriginalBytes"`
	TotalCompressedBytes int64 `json:"totalCompressedBytes"`
}

// Add accounts one entry into the usage totals
func (u *StorageUsage) Add(e *FileEntry) {
	u.Files++
	u.TotalOriginalBytes += e.OriginalSize
	u.TotalCompressedBytes += e.CompressedSize
}

// Ratio returns compressed/original, or 0 for an empty store
func (u StorageUsage) Ratio() float64 {
	if u.TotalOriginalBytes == 0 {
		return 0
	}
	return float64(u.TotalCompressedBytes) / float64(u.TotalOriginalBytes)
}
