package roster

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yegors/flightlog/internal/airports"
	"github.com/yegors/flightlog/internal/crew"
	"github.com/yegors/flightlog/internal/flight"
)

const klcRoster = `KLM Cityhopper B.V.
Crew Roster
Name: DOE, J   Crew ID: 12345
Period: 01MAR21 - 31MAR21 (all times UTC)

MON 01MAR21
  C/I AMS 0610
  KL1234 AMS 0655 BLL 0820 E75 PH-EXA
  KL1235 BLL 0900 AMS 1025 E75 PH-EXA
  C/O AMS 1055
TUE 02MAR21
  OFF
WED 03MAR21
  DH KL1571 AMS 2310 BRS 0015
  KL1572 BRS 0105 AMS 0210
  KL99 AMS 25:00 BLL
  SIM AMS 1000 1400 E75
`

const klcMonthly = `KLM CITYHOPPER     MONTHLY OVERVIEW
Crew member: DOE J 12345
Period: 01-03-2021 - 31-03-2021
DATE       FLIGHT  FROM TO   OFF   ON    REG     TYPE BLOCK
01-03-2021 KL1234  AMS  BLL  06:58 08:17 PH-EXA  E75  01:19
01-03-2021 KL1235  BLL  AMS  08:58 10:21 PH-EXA  E75  01:23
02-03-2021 KL1401  AMS  CDG  23:30 00:45 -       -    01:15
02-03-2021 KL1402  CDG  AMS  01:30 02:40 PH-EXB  E90  01:00
03-03-2021 KL1403  AMS  CDG  6:30
`

const klmIcaMonthly = `KLM ICA FLIGHT CREW MONTHLY FILE
Name: DOE J  Staff nr: 12345
Month: DEC 2021
DATE  FLIGHT DEP ARR BLOCK-OFF BLOCK-ON A/C  REG    CREW
30DEC KL0641 AMS JFK 1012      1803     B772 PH-BQA 3 L
31DEC KL0642 JFK AMS 2230      0545     B772 PH-BQA 4 T
01JAN KL0601 AMS LAX 0945      2055     B77W PH-BVA 2
02JAN KL0602 LAX AMS 1230      2315     B77W PH-BVA 17
`

const klmIcal = `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//KLM//Crew Roster//EN
BEGIN:VEVENT
UID:1@klm
DTSTAMP:20210201T000000Z
SUMMARY:KL 1234 AMS-JFK
DTSTART:20210301T101200Z
DTEND:20210301T180300Z
END:VEVENT
BEGIN:VEVENT
UID:2@klm
DTSTAMP:20210201T000000Z
SUMMARY:Standby
DTSTART:20210302T060000Z
DTEND:20210302T140000Z
END:VEVENT
BEGIN:VEVENT
UID:3@klm
DTSTAMP:20210201T000000Z
SUMMARY:DH KL 642 JFK-AMS
DTSTART:20210303T223000Z
DTEND:20210304T054500Z
END:VEVENT
END:VCALENDAR
`

func testOptions() Options {
	return Options{Airports: airports.Builtin()}
}

func utc(year int, month time.Month, day, hour, minute int) time.Time {
	return time.Date(year, month, day, hour, minute, 0, 0, time.UTC)
}

func TestDetect(t *testing.T) {
	tests := []struct {
		name string
		text string
		want DocumentType
	}{
		{"klc roster", klcRoster, DocumentType{Kind: Planned, Format: FormatKlcRoster}},
		{"klc monthly", klcMonthly, DocumentType{Kind: Completed, Format: FormatKlcMonthly}},
		{"ica monthly", klmIcaMonthly, DocumentType{Kind: Completed, Format: FormatKlmIcaMonthly}},
		{"ical", klmIcal, DocumentType{Kind: Planned, Format: FormatKlmIcal}},
		{"logbook csv", "flightID;orig;dest\n1;EHAM;EGGD\n", DocumentType{Kind: CompleteLogbook, Format: FormatLogbookCSV}},
		{"other calendar", "BEGIN:VCALENDAR\nPRODID:-//Google//EN\n", DocumentType{Kind: Unsupported}},
		{"unknown", "Dear pilot,\nplease find attached\n", DocumentType{Kind: Unsupported}},
		{"empty", "\n\n", DocumentType{Kind: Unsupported}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Detect(SplitLines(tt.text)))
		})
	}
}

func TestParse_Unsupported(t *testing.T) {
	_, err := Parse([]string{"hello"}, testOptions())
	assert.ErrorIs(t, err, ErrUnsupportedDocument)

	_, err = ParseDocument([]byte{0xff, 0xfe, 0x00}, testOptions())
	assert.ErrorIs(t, err, ErrUnsupportedDocument)
}

func TestKlcRoster(t *testing.T) {
	result, err := ParseDocument([]byte(klcRoster), testOptions())
	require.NoError(t, err)

	assert.Equal(t, FormatKlcRoster, result.Type.Format)
	assert.Equal(t, Period{Start: utc(2021, 3, 1, 0, 0), End: utc(2021, 4, 1, 0, 0)}, result.Period)

	want := []flight.Flight{
		{Orig: "EHAM", Dest: "EKBI", TimeOut: utc(2021, 3, 1, 6, 55), TimeIn: utc(2021, 3, 1, 8, 20),
			FlightNumber: "KL1234", AircraftType: "E75", Registration: "PH-EXA"},
		{Orig: "EKBI", Dest: "EHAM", TimeOut: utc(2021, 3, 1, 9, 0), TimeIn: utc(2021, 3, 1, 10, 25),
			FlightNumber: "KL1235", AircraftType: "E75", Registration: "PH-EXA"},
		{Orig: "EHAM", Dest: "EGGD", TimeOut: utc(2021, 3, 3, 23, 10), TimeIn: utc(2021, 3, 4, 0, 15),
			FlightNumber: "KL1571", IsDeadhead: true},
		{Orig: "EGGD", Dest: "EHAM", TimeOut: utc(2021, 3, 3, 1, 5), TimeIn: utc(2021, 3, 3, 2, 10),
			FlightNumber: "KL1572"},
		{Orig: "EHAM", Dest: "EHAM", TimeOut: utc(2021, 3, 3, 10, 0), TimeIn: utc(2021, 3, 3, 14, 0),
			AircraftType: "E75", IsSim: true, SimTime: 240},
	}
	for i := range want {
		want[i].IsPlanned = true
		want[i].AutoFill = true
		want[i].UnknownToServer = true
	}
	if diff := cmp.Diff(want, result.Flights); diff != "" {
		t.Fatalf("flights mismatch (-want +got):\n%s", diff)
	}

	require.Len(t, result.Skipped, 1)
	assert.Equal(t, 16, result.Skipped[0].Line)
	assert.Contains(t, result.Skipped[0].Text, "KL99")
}

func TestKlcMonthly(t *testing.T) {
	result, err := ParseDocument([]byte(klcMonthly), testOptions())
	require.NoError(t, err)
	assert.Equal(t, Completed, result.Type.Kind)
	assert.Equal(t, utc(2021, 4, 1, 0, 0), result.Period.End)

	require.Len(t, result.Flights, 3)
	first := result.Flights[0]
	assert.Equal(t, "EHAM", first.Orig)
	assert.Equal(t, "EKBI", first.Dest)
	assert.Equal(t, utc(2021, 3, 1, 6, 58), first.TimeOut)
	assert.Equal(t, 79, first.Duration())
	assert.False(t, first.IsPlanned)

	overnight := result.Flights[2]
	assert.Equal(t, "KL1401", overnight.FlightNumber)
	assert.Equal(t, utc(2021, 3, 3, 0, 45), overnight.TimeIn)
	assert.Empty(t, overnight.Registration)
	assert.Empty(t, overnight.AircraftType)

	// KL1402 prints a block time that does not match off/on, KL1403 is cut short
	require.Len(t, result.Skipped, 2)
	assert.Contains(t, result.Skipped[0].Reason, "block time")
	assert.Equal(t, "unrecognised flight line", result.Skipped[1].Reason)
}

func TestKlmIcaMonthly(t *testing.T) {
	result, err := ParseDocument([]byte(klmIcaMonthly), testOptions())
	require.NoError(t, err)
	assert.Equal(t, Period{Start: utc(2021, 12, 1, 0, 0), End: utc(2022, 1, 1, 0, 0)}, result.Period)

	require.Len(t, result.Flights, 3)

	out := result.Flights[0]
	assert.Equal(t, "KJFK", out.Dest)
	assert.Equal(t, crew.Augmented(3, false, true), crew.Decode(out.AugmentedCrew))
	assert.True(t, out.IsPF)

	back := result.Flights[1]
	assert.Equal(t, utc(2022, 1, 1, 5, 45), back.TimeIn)
	assert.Equal(t, crew.Augmented(4, true, false), crew.Decode(back.AugmentedCrew))

	newYear := result.Flights[2]
	assert.Equal(t, utc(2022, 1, 1, 9, 45), newYear.TimeOut)
	assert.Equal(t, 0, newYear.AugmentedCrew)
	assert.False(t, newYear.IsPF)

	require.Len(t, result.Skipped, 1)
	assert.Contains(t, result.Skipped[0].Reason, "invalid augmented crew")
}

func TestKlmIcaMonthly_MissingMonth(t *testing.T) {
	_, err := NewKlmIcaMonthlyParser(testOptions()).Parse([]string{"KLM ICA MONTHLY FILE"})
	assert.Error(t, err)
}

func TestKlmIcal(t *testing.T) {
	result, err := ParseDocument([]byte(klmIcal), testOptions())
	require.NoError(t, err)
	assert.Equal(t, Planned, result.Type.Kind)

	require.Len(t, result.Flights, 2)
	assert.Equal(t, "KL1234", result.Flights[0].FlightNumber)
	assert.Equal(t, utc(2021, 3, 1, 10, 12), result.Flights[0].TimeOut)
	assert.Equal(t, "KJFK", result.Flights[0].Dest)
	assert.True(t, result.Flights[1].IsDeadhead)
	assert.Equal(t, "KL642", result.Flights[1].FlightNumber)

	assert.Equal(t, Period{Start: utc(2021, 3, 1, 0, 0), End: utc(2021, 3, 5, 0, 0)}, result.Period)
}

func TestLogbookCSVRoundTrip(t *testing.T) {
	flights := []flight.Flight{
		{ID: 7, Orig: "EHAM", Dest: "EGGD", TimeOut: utc(2021, 3, 1, 6, 58), TimeIn: utc(2021, 3, 1, 8, 17),
			FlightNumber: "KL1234", Registration: "PH-EXA", AircraftType: "E75", Remarks: `said "hi"; waved`,
			Name: "SELF", IsPIC: true, IsPF: true, TakeoffDay: 1, LandingDay: 1, IFRTime: 79, NightTime: 3,
			AugmentedCrew: crew.Augmented(3, true, false).Encode()},
		{ID: 8, Orig: "EHAM", Dest: "EHAM", TimeOut: utc(2021, 3, 2, 10, 0), TimeIn: utc(2021, 3, 2, 14, 0),
			IsSim: true, SimTime: 240},
		{ID: 9, Orig: "EHAM", Dest: "EKBI", TimeOut: utc(2021, 3, 3, 10, 0), TimeIn: utc(2021, 3, 3, 11, 0),
			IsDeleted: true},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteLogbookCSV(&buf, flights))

	result, err := ParseDocument(buf.Bytes(), testOptions())
	require.NoError(t, err)
	assert.Equal(t, CompleteLogbook, result.Type.Kind)
	assert.Empty(t, result.Skipped)

	want := flights[:2]
	if diff := cmp.Diff(want, result.Flights, cmpopts.IgnoreFields(flight.Flight{}, "ID", "UnknownToServer")); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
	for _, f := range result.Flights {
		assert.Zero(t, f.ID)
		assert.True(t, f.UnknownToServer)
	}
}

func TestLogbookCSV_OlderLayoutAndBadRows(t *testing.T) {
	text := strings.Join([]string{
		"flightID;orig;dest;timeOut;timeIn;isPF",
		"1;AMS;BRS;2021-03-01T06:58:00Z;2021-03-01T08:17:00Z;true",
		"2;AMS;BRS;yesterday;2021-03-01T08:17:00Z;true",
		"3;AMS;BRS;2021-03-01T06:58:00Z;2021-03-01T08:17:00Z;maybe",
	}, "\n")

	result, err := ParseDocument([]byte(text), testOptions())
	require.NoError(t, err)
	require.Len(t, result.Flights, 1)
	assert.Equal(t, "EGGD", result.Flights[0].Dest)
	assert.True(t, result.Flights[0].IsPF)

	require.Len(t, result.Skipped, 2)
	assert.Equal(t, 3, result.Skipped[0].Line)
	assert.Contains(t, result.Skipped[1].Reason, "isPF")
}

func TestPatterns(t *testing.T) {
	assert.True(t, IsRegistration("PH-EXA"))
	assert.True(t, IsRegistration("G-ABCD"))
	assert.False(t, IsRegistration("PHEXA"))

	_, err := parseClock("2460")
	assert.Error(t, err)
	minutes, err := parseClock("06:55")
	require.NoError(t, err)
	assert.Equal(t, 415, minutes)
}

func TestWriteICal(t *testing.T) {
	flights := []flight.Flight{
		{ID: 3, Orig: "EHAM", Dest: "KJFK", TimeOut: utc(2021, 3, 1, 10, 12), TimeIn: utc(2021, 3, 1, 18, 3),
			FlightNumber: "KL641", AircraftType: "B772", Registration: "PH-BQA", Timestamp: 1614556800},
		{ID: 4, Orig: "KJFK", Dest: "EHAM", TimeOut: utc(2021, 3, 3, 22, 30), TimeIn: utc(2021, 3, 4, 5, 45),
			FlightNumber: "KL642", IsDeadhead: true, IsPlanned: true},
		{ID: 5, Orig: "EHAM", Dest: "EGGD", TimeOut: utc(2021, 3, 5, 7, 0), TimeIn: utc(2021, 3, 5, 8, 0), IsDeleted: true},
	}

	var out bytes.Buffer
	require.NoError(t, WriteICal(&out, flights))
	text := out.String()
	assert.Contains(t, text, "UID:flight-3@flightlog")
	assert.Contains(t, text, "SUMMARY:KL641 EHAM-KJFK")
	assert.Contains(t, text, "SUMMARY:DH KL642 KJFK-EHAM")
	assert.NotContains(t, text, "EGGD")

	// the export reads back through the calendar parser
	result, err := NewKlmIcalParser(testOptions()).Parse(SplitLines(text))
	require.NoError(t, err)
	require.Len(t, result.Flights, 2)
	assert.Equal(t, "KL641", result.Flights[0].FlightNumber)
	assert.Equal(t, utc(2021, 3, 1, 18, 3), result.Flights[0].TimeIn)
	assert.True(t, result.Flights[1].IsDeadhead)
}
