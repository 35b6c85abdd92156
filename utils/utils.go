// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package utils

import (
	"strings"
	"time"
)

const (
	DefaultRPCTimeout = 10 * time.Second

	initialRetryInterval = 100 * time.Millisecond
)

// SanitizeHexString removes the "0x" prefix from a hex string if it exists.
// Otherwise, returns the original string.
func SanitizeHexString(hex string) string {
	hex = strings.TrimSpace(hex)
	if len(hex) >= 2 && (hex[:2] == "0x" || hex[:2] == "0X") {
		return hex[2:]
	}
	return hex
}
