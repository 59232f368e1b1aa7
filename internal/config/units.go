package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ByteSize is a byte count that reads "300B", "512KB", "20MB", "1GB" or a plain number.
type ByteSize int64

const (
	Byte     ByteSize = 1
	Kilobyte          = 1024 * Byte
	Megabyte          = 1024 * Kilobyte
	Gigabyte          = 1024 * Megabyte
)

// ParseByteSize parses a size with an optional B, KB, MB or GB suffix.
func ParseByteSize(s string) (ByteSize, error) {
	t := strings.ToUpper(strings.TrimSpace(s))
	if t == "" {
		return 0, fmt.Errorf("invalid size %q", s)
	}

	unit := Byte
	switch {
	case strings.HasSuffix(t, "GB"):
		unit, t = Gigabyte, t[:len(t)-2]
	case strings.HasSuffix(t, "MB"):
		unit, t = Megabyte, t[:len(t)-2]
	case strings.HasSuffix(t, "KB"):
		unit, t = Kilobyte, t[:len(t)-2]
	case strings.HasSuffix(t, "B"):
		t = t[:len(t)-1]
	}

	n, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid size %q, it should end with B | KB | MB | GB", s)
	}
	return ByteSize(n * float64(unit)), nil
}

func (b ByteSize) Int64() int64 {
	return int64(b)
}

func (b ByteSize) String() string {
	switch {
	case b >= Gigabyte && b%Gigabyte == 0:
		return fmt.Sprintf("%dGB", b/Gigabyte)
	case b >= Megabyte && b%Megabyte == 0:
		return fmt.Sprintf("%dMB", b/Megabyte)
	case b >= Kilobyte && b%Kilobyte == 0:
		return fmt.Sprintf("%dKB", b/Kilobyte)
	default:
		return fmt.Sprintf("%dB", int64(b))
	}
}

func (b ByteSize) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.String())
}

func (b *ByteSize) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] != '"' {
		var n int64
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("invalid size %s: %w", data, err)
		}
		*b = ByteSize(n)
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	v, err := ParseByteSize(s)
	if err != nil {
		return err
	}
	*b = v
	return nil
}

// Duration reads "5s", "30m", "1h", "1d", any Go duration string, or a number
// of milliseconds.
type Duration time.Duration

// ParseDuration accepts Go durations plus a "d" (day) suffix.
func ParseDuration(s string) (Duration, error) {
	t := strings.TrimSpace(s)
	if t == "" {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	if days, ok := strings.CutSuffix(t, "d"); ok {
		n, err := strconv.ParseFloat(days, 64)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid duration %q", s)
		}
		return Duration(n * float64(24*time.Hour)), nil
	}
	d, err := time.ParseDuration(t)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q, it should end with s | m | h | d", s)
	}
	return Duration(d), nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] != '"' {
		var ms int64
		if err := json.Unmarshal(data, &ms); err != nil {
			return fmt.Errorf("invalid duration %s: %w", data, err)
		}
		*d = Duration(time.Duration(ms) * time.Millisecond)
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	v, err := ParseDuration(s)
	if err != nil {
		return err
	}
	*d = v
	return nil
}
