// Package record implements the length-prefixed framing shared by the
// write-ahead log and immutable table files.
//
// A WAL record is
//
//	PUT\n<keyLen>\n<key bytes>\n<valueLen>\n<value bytes>\n
//
// and a table record is the same without the PUT line. Lengths are decimal
// ASCII; payloads are raw bytes and may themselves contain newlines.
package record

import (
	"bytes"
	"fmt"
	"strconv"

	kvErr "github.com/sajjad-MoBe/lsmstore/internal/errors"
)

// PutTag is the tag line that opens every WAL record.
const PutTag = "PUT"

const newline = '\n'

// Record is a single key/value write.
type Record struct {
	Key   []byte
	Value []byte
}

// Encode frames r as a WAL record.
func Encode(r Record) []byte {
	buf := make([]byte, 0, encodedLen(r)+len(PutTag)+1)
	buf = append(buf, PutTag...)
	buf = append(buf, newline)
	return appendBody(buf, r)
}

// EncodeTable frames records back to back as table records, in the order
// given.
func EncodeTable(records []Record) []byte {
	size := 0
	for _, r := range records {
		size += encodedLen(r)
	}
	buf := make([]byte, 0, size)
	for _, r := range records {
		buf = AppendTable(buf, r)
	}
	return buf
}

// AppendTable appends r to dst as a table record.
func AppendTable(dst []byte, r Record) []byte {
	return appendBody(dst, r)
}

// Decode reads one WAL record starting at off and returns it together with
// the offset of the next record.
func Decode(buf []byte, off int) (Record, int, error) {
	tag, pos, err := readLine(buf, off)
	if err != nil {
		return Record{}, off, err
	}
	if !bytes.Equal(tag, []byte(PutTag)) {
		return Record{}, off, corruption("unexpected record tag %q", tag)
	}
	return decodeBody(buf, pos)
}

// DecodeTable reads one table record starting at off.
func DecodeTable(buf []byte, off int) (Record, int, error) {
	return decodeBody(buf, off)
}

func encodedLen(r Record) int {
	// two length lines (at most 20 digits each) plus four newlines
	return len(r.Key) + len(r.Value) + 44
}

func appendBody(buf []byte, r Record) []byte {
	buf = strconv.AppendInt(buf, int64(len(r.Key)), 10)
	buf = append(buf, newline)
	buf = append(buf, r.Key...)
	buf = append(buf, newline)
	buf = strconv.AppendInt(buf, int64(len(r.Value)), 10)
	buf = append(buf, newline)
	buf = append(buf, r.Value...)
	buf = append(buf, newline)
	return buf
}

func decodeBody(buf []byte, off int) (Record, int, error) {
	key, pos, err := readPayload(buf, off, "key")
	if err != nil {
		return Record{}, off, err
	}
	value, pos, err := readPayload(buf, pos, "value")
	if err != nil {
		return Record{}, off, err
	}
	return Record{Key: key, Value: value}, pos, nil
}

// readPayload reads a length line followed by that many bytes and a newline.
func readPayload(buf []byte, off int, field string) ([]byte, int, error) {
	line, pos, err := readLine(buf, off)
	if err != nil {
		return nil, off, err
	}
	n, err := parseLength(line)
	if err != nil {
		return nil, off, corruption("invalid %s length %q", field, line)
	}
	if n > len(buf)-pos {
		return nil, off, corruption("unexpected end of data (%s truncated)", field)
	}
	end := pos + n
	if end >= len(buf) || buf[end] != newline {
		return nil, off, corruption("expected newline after %s", field)
	}

	payload := make([]byte, n)
	copy(payload, buf[pos:end])
	return payload, end + 1, nil
}

// readLine returns the bytes up to the next newline and the offset just past
// it.
func readLine(buf []byte, off int) ([]byte, int, error) {
	if off < 0 || off > len(buf) {
		return nil, off, corruption("offset %d out of range", off)
	}
	idx := bytes.IndexByte(buf[off:], newline)
	if idx < 0 {
		return nil, off, corruption("expected newline not found")
	}
	return buf[off : off+idx], off + idx + 1, nil
}

func parseLength(line []byte) (int, error) {
	n, err := strconv.ParseUint(string(line), 10, 0)
	if err != nil {
		return 0, err
	}
	if n > uint64(maxInt) {
		return 0, strconv.ErrRange
	}
	return int(n), nil
}

const maxInt = int(^uint(0) >> 1)

func corruption(format string, args ...interface{}) error {
	return kvErr.New(kvErr.ErrorTypeCorruption, fmt.Sprintf(format, args...), nil)
}
