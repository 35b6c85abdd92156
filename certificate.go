// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package certify

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/luxfi/certify/utils"
	"github.com/luxfi/geth/common/hexutil"
)

const (
	// CertificateSize is the width of the slot a certificate is packed into.
	CertificateSize = 32
	// MaxCertificateLen is the longest certificate, in UTF-8 bytes, that fits
	// the slot together with its NUL terminator.
	MaxCertificateLen = CertificateSize - 1
)

var (
	ErrCertificateTooLong = errors.New("certificate data must be less than 32 bytes")
	ErrMissingTerminator  = errors.New("invalid bytes32 string: no null terminator")
	ErrInvalidUTF8        = errors.New("invalid bytes32 string: not UTF-8")
	ErrEmbeddedNUL        = errors.New("certificate data must not contain NUL bytes")
	ErrInvalidLength      = errors.New("invalid bytes32 length")
)

// EncodedCertificate is the fixed-width value sent to the registry: the UTF-8
// bytes of the certificate followed by zero padding.
type EncodedCertificate [CertificateSize]byte

// EncodeCertificate packs [data] into a 32 byte slot. Inputs longer than
// MaxCertificateLen bytes are rejected rather than truncated. [data] must be
// valid UTF-8 without NUL bytes so that DecodeCertificate returns it intact.
func EncodeCertificate(data string) (EncodedCertificate, error) {
	var enc EncodedCertificate
	if len(data) > MaxCertificateLen {
		return enc, fmt.Errorf("%w: got %d bytes", ErrCertificateTooLong, len(data))
	}
	if !utf8.ValidString(data) {
		return enc, ErrInvalidUTF8
	}
	if strings.IndexByte(data, 0) >= 0 {
		return enc, ErrEmbeddedNUL
	}
	copy(enc[:], data)
	return enc, nil
}

// DecodeCertificate reverses EncodeCertificate. The value must contain a NUL
// terminator and everything before it must be valid UTF-8.
func DecodeCertificate(enc EncodedCertificate) (string, error) {
	n := bytes.IndexByte(enc[:], 0)
	if n < 0 {
		return "", ErrMissingTerminator
	}
	if !utf8.Valid(enc[:n]) {
		return "", ErrInvalidUTF8
	}
	return string(enc[:n]), nil
}

// ParseEncodedCertificate parses a hex encoded 32 byte value, optionally
// prefixed with "0x".
func ParseEncodedCertificate(s string) (EncodedCertificate, error) {
	var enc EncodedCertificate
	b, err := hexutil.Decode("0x" + utils.SanitizeHexString(s))
	if err != nil {
		return enc, err
	}
	if len(b) != CertificateSize {
		return enc, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidLength, CertificateSize, len(b))
	}
	copy(enc[:], b)
	return enc, nil
}

// Hex returns the 0x-prefixed hex encoding.
func (e EncodedCertificate) Hex() string {
	return hexutil.Encode(e[:])
}

func (e EncodedCertificate) String() string {
	return e.Hex()
}
