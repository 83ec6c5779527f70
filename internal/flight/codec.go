package flight

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

// BasicFlight record versions
const (
	VersionOne = 1
	// VersionTwo adds IFR time, augmented crew, deadhead and signature
	VersionTwo = 2

	CurrentVersion = VersionTwo
)

const maxStringLen = 1 << 20

var (
	// ErrUnsupportedVersion is returned for records written by a newer client
	ErrUnsupportedVersion = errors.New("unsupported flight record version")
	// ErrTruncated is returned when a record ends before all fields are read
	ErrTruncated = errors.New("truncated flight record")
)

// Marshal encodes a flight in the current record version
func Marshal(f Flight) []byte {
	b, _ := MarshalVersion(f, CurrentVersion)
	return b
}

// MarshalVersion encodes a flight as the given record version. Older versions
// drop the fields they do not know.
func MarshalVersion(f Flight, version int) ([]byte, error) {
	if version < VersionOne || version > CurrentVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
	}

	w := &recordWriter{}
	w.uint16(uint16(version))
	w.int64(f.ID)
	w.string(f.Orig)
	w.string(f.Dest)
	w.int64(unixOrZero(f.TimeOut))
	w.int64(unixOrZero(f.TimeIn))
	w.int32(f.CorrectedTotalTime)
	w.int32(f.MultiPilotTime)
	w.int32(f.NightTime)
	w.int32(f.SimTime)
	w.string(f.AircraftType)
	w.string(f.Registration)
	w.string(f.Name)
	w.string(f.Name2)
	w.int32(f.TakeoffDay)
	w.int32(f.TakeoffNight)
	w.int32(f.LandingDay)
	w.int32(f.LandingNight)
	w.int32(f.AutoLand)
	w.string(f.FlightNumber)
	w.string(f.Remarks)
	for _, flag := range []bool{f.IsPIC, f.IsPICUS, f.IsCoPilot, f.IsDual, f.IsInstructor,
		f.IsSim, f.IsPF, f.IsPlanned, f.UnknownToServer, f.AutoFill, f.IsDeleted} {
		w.bool(flag)
	}
	w.int64(f.Timestamp)

	if version >= VersionTwo {
		w.int32(f.IFRTime)
		w.int32(f.AugmentedCrew)
		w.bool(f.IsDeadhead)
		w.string(f.Signature)
	}

	return w.buf.Bytes(), nil
}

// Unmarshal decodes a flight record of any supported version
func Unmarshal(data []byte) (Flight, error) {
	r := &recordReader{data: data}
	var f Flight

	version := int(r.uint16())
	if r.err != nil {
		return f, r.err
	}
	if version < VersionOne || version > CurrentVersion {
		return f, fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
	}

	f.ID = r.int64()
	f.Orig = r.string()
	f.Dest = r.string()
	f.TimeOut = timeOrZero(r.int64())
	f.TimeIn = timeOrZero(r.int64())
	f.CorrectedTotalTime = r.int32()
	f.MultiPilotTime = r.int32()
	f.NightTime = r.int32()
	f.SimTime = r.int32()
	f.AircraftType = r.string()
	f.Registration = r.string()
	f.Name = r.string()
	f.Name2 = r.string()
	f.TakeoffDay = r.int32()
	f.TakeoffNight = r.int32()
	f.LandingDay = r.int32()
	f.LandingNight = r.int32()
	f.AutoLand = r.int32()
	f.FlightNumber = r.string()
	f.Remarks = r.string()
	for _, flag := range []*bool{&f.IsPIC, &f.IsPICUS, &f.IsCoPilot, &f.IsDual, &f.IsInstructor,
		&f.IsSim, &f.IsPF, &f.IsPlanned, &f.UnknownToServer, &f.AutoFill, &f.IsDeleted} {
		*flag = r.bool()
	}
	f.Timestamp = r.int64()

	if version >= VersionTwo {
		f.IFRTime = r.int32()
		f.AugmentedCrew = r.int32()
		f.IsDeadhead = r.bool()
		f.Signature = r.string()
	}

	if r.err != nil {
		return Flight{}, r.err
	}
	return f, nil
}

// MarshalList encodes a list of flights, each record prefixed by its length
func MarshalList(flights []Flight) []byte {
	w := &recordWriter{}
	w.uint32(uint32(len(flights)))
	for _, f := range flights {
		rec := Marshal(f)
		w.uint32(uint32(len(rec)))
		w.buf.Write(rec)
	}
	return w.buf.Bytes()
}

// UnmarshalList decodes a list written by MarshalList
func UnmarshalList(data []byte) ([]Flight, error) {
	r := &recordReader{data: data}
	count := r.uint32()
	if r.err != nil {
		return nil, r.err
	}
	// every record needs at least its own length prefix
	if int(count) > len(data)/4 {
		return nil, fmt.Errorf("%w: list claims %d records in %d bytes", ErrTruncated, count, len(data))
	}

	flights := make([]Flight, 0, count)
	for i := 0; i < int(count); i++ {
		rec := r.bytes(int(r.uint32()))
		if r.err != nil {
			return nil, fmt.Errorf("record %d: %w", i, r.err)
		}
		f, err := Unmarshal(rec)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		flights = append(flights, f)
	}
	return flights, nil
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func timeOrZero(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}

type recordWriter struct {
	buf bytes.Buffer
}

func (w *recordWriter) uint16(v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	w.buf.Write(b[:])
}

func (w *recordWriter) uint32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	w.buf.Write(b[:])
}

func (w *recordWriter) int32(v int) {
	w.uint32(uint32(int32(v)))
}

func (w *recordWriter) int64(v int64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v))
	w.buf.Write(b[:])
}

func (w *recordWriter) bool(v bool) {
	if v {
		w.buf.WriteByte(1)
		return
	}
	w.buf.WriteByte(0)
}

func (w *recordWriter) string(s string) {
	w.uint32(uint32(len(s)))
	w.buf.WriteString(s)
}

// recordReader remembers the first error so decoding code stays linear
type recordReader struct {
	data []byte
	pos  int
	err  error
}

func (r *recordReader) bytes(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.pos+n > len(r.data) {
		r.err = ErrTruncated
		return nil
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b
}

func (r *recordReader) uint16() uint16 {
	b := r.bytes(2)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint16(b)
}

func (r *recordReader) uint32() uint32 {
	b := r.bytes(4)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

func (r *recordReader) int32() int {
	return int(int32(r.uint32()))
}

func (r *recordReader) int64() int64 {
	b := r.bytes(8)
	if b == nil {
		return 0
	}
	return int64(binary.BigEndian.Uint64(b))
}

func (r *recordReader) bool() bool {
	b := r.bytes(1)
	return b != nil && b[0] != 0
}

func (r *recordReader) string() string {
	n := r.uint32()
	if r.err == nil && n > maxStringLen {
		r.err = fmt.Errorf("%w: string of %d bytes", ErrTruncated, n)
		return ""
	}
	return string(r.bytes(int(n)))
}
