// Package record defines the log event carried in archive files and its
// TSV and CSV encodings.
package record

import (
	"errors"
	"fmt"
	"math/big"
	"math/bits"
	"net/netip"
	"strconv"
)

// NumFields is the number of columns in an archive record.
const NumFields = 10

// Header lists the event columns in schema order.
var Header = []string{
	"id",
	"generated_at",
	"received_at",
	"source_id",
	"source_name",
	"source_ip",
	"facility_name",
	"severity_name",
	"program",
	"message",
}

// Event is one archived log line.
type Event struct {
	ID           ID
	GeneratedAt  string
	ReceivedAt   string
	SourceID     uint32
	SourceName   string
	SourceIP     netip.Addr
	FacilityName string
	SeverityName string
	Program      string
	Message      string
}

// FieldError reports a column that does not match the schema.
type FieldError struct {
	Field string
	Value string
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("field %s: invalid value %q: %v", e.Field, e.Value, e.Err)
}

func (e *FieldError) Unwrap() error { return e.Err }

// ErrFieldCount is returned when a record has the wrong number of columns.
var ErrFieldCount = errors.New("wrong number of fields")

// Parse builds an Event from the columns of one record.
func Parse(fields []string) (Event, error) {
	if len(fields) != NumFields {
		return Event{}, fmt.Errorf("%w: got %d, want %d", ErrFieldCount, len(fields), NumFields)
	}

	id, err := ParseID(fields[0])
	if err != nil {
		return Event{}, &FieldError{Field: Header[0], Value: fields[0], Err: err}
	}

	sourceID, err := strconv.ParseUint(fields[3], 10, 32)
	if err != nil {
		return Event{}, &FieldError{Field: Header[3], Value: fields[3], Err: err}
	}

	ip, err := netip.ParseAddr(fields[5])
	if err == nil && !ip.Is4() {
		err = errors.New("not an IPv4 address")
	}
	if err != nil {
		return Event{}, &FieldError{Field: Header[5], Value: fields[5], Err: err}
	}

	return Event{
		ID:           id,
		GeneratedAt:  fields[1],
		ReceivedAt:   fields[2],
		SourceID:     uint32(sourceID),
		SourceName:   fields[4],
		SourceIP:     ip,
		FacilityName: fields[6],
		SeverityName: fields[7],
		Program:      fields[8],
		Message:      fields[9],
	}, nil
}

// Fields returns the event columns in schema order.
func (e Event) Fields() []string {
	return []string{
		e.ID.String(),
		e.GeneratedAt,
		e.ReceivedAt,
		strconv.FormatUint(uint64(e.SourceID), 10),
		e.SourceName,
		e.SourceIP.String(),
		e.FacilityName,
		e.SeverityName,
		e.Program,
		e.Message,
	}
}

// ID is an unsigned 128-bit event identifier.
type ID struct {
	Hi, Lo uint64
}

var (
	errEmptyID    = errors.New("empty id")
	errIDOverflow = errors.New("id exceeds 128 bits")
)

// ParseID parses a base-10 unsigned 128-bit integer.
func ParseID(s string) (ID, error) {
	if s == "" {
		return ID{}, errEmptyID
	}
	var id ID
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return ID{}, fmt.Errorf("non-digit %q at offset %d", c, i)
		}
		// id = id*10 + digit, tracking carry out of the high word.
		loHi, lo := bits.Mul64(id.Lo, 10)
		hiOver, hi := bits.Mul64(id.Hi, 10)
		if hiOver != 0 {
			return ID{}, errIDOverflow
		}
		hi, carry := bits.Add64(hi, loHi, 0)
		if carry != 0 {
			return ID{}, errIDOverflow
		}
		lo, carry = bits.Add64(lo, uint64(c-'0'), 0)
		hi, carry = bits.Add64(hi, 0, carry)
		if carry != 0 {
			return ID{}, errIDOverflow
		}
		id = ID{Hi: hi, Lo: lo}
	}
	return id, nil
}

// String returns the decimal form of the id.
func (id ID) String() string {
	if id.Hi == 0 {
		return strconv.FormatUint(id.Lo, 10)
	}
	n := new(big.Int).SetUint64(id.Hi)
	n.Lsh(n, 64)
	n.Or(n, new(big.Int).SetUint64(id.Lo))
	return n.String()
}
