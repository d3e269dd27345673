// Package barcode reads the payload of 2D codes (QR, Data Matrix), Code 128
// and, on request, EAN-13 symbols printed on labels. Symbol decoding is a
// pluggable backend; the default build links none and reports ErrNoBackend.
// Enable the gozxing decoder with the build tag `barcode_gozxing`:
//
//	go build -tags=barcode_gozxing ./...
package barcode
