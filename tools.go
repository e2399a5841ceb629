//go:build tools

package gzblock

import (
	_ "github.com/dmarkham/enumer"
)
