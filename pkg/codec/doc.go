// Package codec turns uploaded bytes into file entries and back. Payloads
// are zstd compressed unless that would not make them smaller.
package codec
