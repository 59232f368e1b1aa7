package fetch

import (
	"encoding/binary"
	"errors"
	"time"

	"github.com/LavishGent/imgcache/internal/types"
)

// Entry layout, big endian:
//
//	[0:8]   expiry, unix nanoseconds
//	[8:12]  width
//	[12:16] height
//	[16:18] hash length n
//	[18:18+n] hash
//	[18+n:] image bytes
const headerLen = 18

var errCorruptEntry = errors.New("fetch cache: corrupt entry")

func encodeEntry(img *types.SourceImage, expires time.Time) []byte {
	buf := make([]byte, headerLen+len(img.Hash)+len(img.Data))
	binary.BigEndian.PutUint64(buf[0:8], uint64(expires.UnixNano()))
	binary.BigEndian.PutUint32(buf[8:12], uint32(img.Size.Width))
	binary.BigEndian.PutUint32(buf[12:16], uint32(img.Size.Height))
	binary.BigEndian.PutUint16(buf[16:18], uint16(len(img.Hash)))
	n := copy(buf[headerLen:], img.Hash)
	copy(buf[headerLen+n:], img.Data)
	return buf
}

// decodeEntry returns the image and its expiry. The image data aliases buf.
func decodeEntry(buf []byte) (*types.SourceImage, time.Time, error) {
	if len(buf) < headerLen {
		return nil, time.Time{}, errCorruptEntry
	}
	expires := time.Unix(0, int64(binary.BigEndian.Uint64(buf[0:8])))
	width := int(binary.BigEndian.Uint32(buf[8:12]))
	height := int(binary.BigEndian.Uint32(buf[12:16]))
	hashLen := int(binary.BigEndian.Uint16(buf[16:18]))
	if len(buf) < headerLen+hashLen {
		return nil, time.Time{}, errCorruptEntry
	}

	return &types.SourceImage{
		Data: buf[headerLen+hashLen:],
		Size: types.Dimensions{Width: width, Height: height},
		Hash: string(buf[headerLen : headerLen+hashLen]),
	}, expires, nil
}
