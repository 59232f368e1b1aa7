// Package types provides shared types for the imgcache library.
// This package breaks import cycles between pkg/imgcache and the internal packages.
package types

import (
	"fmt"
	"strings"
)

// Format is an output image encoding.
type Format string

const (
	FormatWebP Format = "webp"
	FormatAVIF Format = "avif"
	FormatJPEG Format = "jpeg"
	FormatPNG  Format = "png"
)

// ParseFormat accepts the canonical names plus "jpg".
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatWebP, FormatAVIF, FormatJPEG, FormatPNG:
		return f, nil
	case "jpg":
		return FormatJPEG, nil
	default:
		return "", fmt.Errorf("%w: format %q", ErrUnsupportedFormat, s)
	}
}

func (f Format) String() string {
	return string(f)
}

// ContentType returns the MIME type for the format.
func (f Format) ContentType() string {
	switch f {
	case FormatJPEG:
		return "image/jpeg"
	case FormatPNG:
		return "image/png"
	case FormatWebP:
		return "image/webp"
	case FormatAVIF:
		return "image/avif"
	default:
		return "application/octet-stream"
	}
}

// Settings describes the requested output of a transform.
// Width and Height bound the result; the image is never enlarged.
type Settings struct {
	Format  Format `json:"format"`
	Quality int    `json:"quality"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
}

// Dimensions is a pixel width and height.
type Dimensions struct {
	Width  int `json:"w"`
	Height int `json:"h"`
}

// SourceImage is the original image as retrieved by a SourceProvider.
// Hash is a content digest; two fetches with the same Hash carry the same bytes.
type SourceImage struct {
	Data []byte
	Size Dimensions
	Hash string
}

// Transformed is the output of a Transformer.
type Transformed struct {
	Data   []byte
	Format Format
}

// Priority selects where a task enters a queue.
type Priority int

const (
	PriorityLow Priority = iota + 1
	PriorityHigh
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityHigh:
		return "high"
	default:
		return "unknown"
	}
}

// Admission is the outcome of offering a task to a queue.
type Admission int

const (
	Admitted Admission = iota
	RejectedFull
	RejectedDuplicate
	RejectedClosed
)

func (a Admission) String() string {
	switch a {
	case Admitted:
		return "admitted"
	case RejectedFull:
		return "rejected-full"
	case RejectedDuplicate:
		return "rejected-duplicate"
	case RejectedClosed:
		return "rejected-closed"
	default:
		return "unknown"
	}
}

// Err returns nil for Admitted and the matching sentinel otherwise.
func (a Admission) Err() error {
	switch a {
	case Admitted:
		return nil
	case RejectedFull:
		return ErrQueueFull
	case RejectedDuplicate:
		return ErrDuplicateTask
	case RejectedClosed:
		return ErrClosed
	default:
		return fmt.Errorf("imgcache: unknown admission %d", int(a))
	}
}
