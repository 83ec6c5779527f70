package flight

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleFlight() Flight {
	return Flight{
		ID:            42,
		Orig:          "EHAM",
		Dest:          "EGGD",
		TimeOut:       time.Date(2021, 3, 1, 6, 58, 0, 0, time.UTC),
		TimeIn:        time.Date(2021, 3, 1, 8, 17, 0, 0, time.UTC),
		NightTime:     12,
		IFRTime:       79,
		AircraftType:  "E75",
		Registration:  "PH-EXA",
		Name:          "SELF",
		Name2:         "DOE",
		TakeoffDay:    1,
		LandingDay:    1,
		FlightNumber:  "KL1234",
		Remarks:       "gusty; crosswind",
		IsCoPilot:     true,
		IsPF:          true,
		AutoFill:      true,
		AugmentedCrew: 3,
		Signature:     "sig",
		Timestamp:     1614585600,
	}
}

func TestDurationAndTotalTime(t *testing.T) {
	f := sampleFlight()
	assert.Equal(t, 79, f.Duration())
	assert.Equal(t, 79, f.TotalTime())

	f.CorrectedTotalTime = 60
	assert.Equal(t, 60, f.TotalTime())

	f.TimeIn = f.TimeOut.Add(-time.Hour)
	assert.Equal(t, 0, f.Duration())
}

func TestOverlapsAndSameRoute(t *testing.T) {
	a := sampleFlight()
	b := a
	b.TimeOut = a.TimeIn.Add(-time.Minute)
	b.TimeIn = b.TimeOut.Add(time.Hour)
	assert.True(t, a.Overlaps(b))

	b.TimeOut = a.TimeIn
	assert.False(t, a.Overlaps(b), "touching flights do not overlap")

	b.Orig = "eham"
	b.Dest = "eggd"
	assert.True(t, a.SameRoute(b))
}

func TestValidate(t *testing.T) {
	f := sampleFlight()
	require.NoError(t, f.Validate())

	f.Dest = " "
	assert.True(t, errors.Is(f.Validate(), ErrInvalidFlight))

	f = sampleFlight()
	f.TimeIn = f.TimeOut
	assert.Error(t, f.Validate())

	f.IsSim = true
	assert.NoError(t, f.Validate())
}

func TestMarshalRoundTrip(t *testing.T) {
	f := sampleFlight()
	got, err := Unmarshal(Marshal(f))
	require.NoError(t, err)
	if diff := cmp.Diff(f, got); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestUnmarshalVersionOneDropsNewFields(t *testing.T) {
	f := sampleFlight()
	rec, err := MarshalVersion(f, VersionOne)
	require.NoError(t, err)

	got, err := Unmarshal(rec)
	require.NoError(t, err)

	want := f
	want.IFRTime = 0
	want.AugmentedCrew = 0
	want.IsDeadhead = false
	want.Signature = ""
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("v1 decode mismatch (-want +got):\n%s", diff)
	}
}

func TestUnmarshalRejectsFutureVersionAndTruncation(t *testing.T) {
	rec := Marshal(sampleFlight())

	future := append([]byte{}, rec...)
	future[0], future[1] = 0, 9
	_, err := Unmarshal(future)
	assert.ErrorIs(t, err, ErrUnsupportedVersion)

	_, err = Unmarshal(rec[:len(rec)-3])
	assert.ErrorIs(t, err, ErrTruncated)

	_, err = MarshalVersion(sampleFlight(), 7)
	assert.ErrorIs(t, err, ErrUnsupportedVersion)
}

func TestMarshalList(t *testing.T) {
	a := sampleFlight()
	b := sampleFlight()
	b.ID = 43
	b.IsSim = true
	b.SimTime = 240

	got, err := UnmarshalList(MarshalList([]Flight{a, b}))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(43), got[1].ID)
	assert.Equal(t, 240, got[1].SimTime)

	empty, err := UnmarshalList(MarshalList(nil))
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = UnmarshalList([]byte{0, 0, 1, 0})
	assert.ErrorIs(t, err, ErrTruncated)
}
