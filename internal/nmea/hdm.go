// Package nmea formats the NMEA 0183 sentences the compass emits.
package nmea

import (
	"fmt"
	"math"
	"strings"
)

// DefaultTalker identifies a magnetic compass.
const DefaultTalker = "HC"

// Sentence wraps a body such as "HCHDM,090.0,M" with the leading '$',
// checksum and CRLF terminator.
func Sentence(body string) string {
	return fmt.Sprintf("$%s*%02X\r\n", body, Checksum(body))
}

// Checksum is the XOR of every byte between '$' and '*'.
func Checksum(body string) byte {
	var c byte
	for i := 0; i < len(body); i++ {
		c ^= body[i]
	}
	return c
}

// HDM builds a magnetic heading sentence. deg is wrapped into [0, 360).
func HDM(talker string, deg float64) string {
	if talker == "" {
		talker = DefaultTalker
	}
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	// 359.96 would otherwise print as 360.0.
	if deg >= 359.95 {
		deg = 0
	}
	return Sentence(fmt.Sprintf("%sHDM,%05.1f,M", strings.ToUpper(talker), deg))
}
