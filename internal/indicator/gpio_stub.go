//go:build !linux

package indicator

import "fmt"

func openLine(chip string, pin int) (driver, error) {
	return nil, fmt.Errorf("indicator: gpio unsupported on this platform")
}

var openLineFn = openLine
