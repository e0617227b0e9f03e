package patharchive

import (
	"fmt"
	"strings"
)

// Format selects the archive container and compression codec.
type Format int

const (
	TarGz Format = iota
	TarZst
)

// ParseFormat converts a configuration string into a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "tar.gz", "targz":
		return TarGz, nil
	case "tar.zst", "tarzst":
		return TarZst, nil
	default:
		return TarGz, fmt.Errorf("unsupported archive format %q (expected 'tar.gz' or 'tar.zst')", s)
	}
}

// Ext returns the filename extension for the format.
func (f Format) Ext() string {
	if f == TarZst {
		return "tar.zst"
	}
	return "tar.gz"
}

func (f Format) String() string {
	return f.Ext()
}

// Level selects the compression effort.
type Level int

const (
	Default Level = iota
	Fastest
	Better
	Best
)

// ParseLevel converts a configuration string into a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "default":
		return Default, nil
	case "fastest":
		return Fastest, nil
	case "better":
		return Better, nil
	case "best":
		return Best, nil
	default:
		return Default, fmt.Errorf("unsupported compression level %q (expected 'default', 'fastest', 'better' or 'best')", s)
	}
}

func (l Level) String() string {
	switch l {
	case Fastest:
		return "fastest"
	case Better:
		return "better"
	case Best:
		return "best"
	default:
		return "default"
	}
}
