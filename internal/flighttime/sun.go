package flighttime

import (
	"math"
	"time"
)

// CivilTwilight is the solar elevation below which a minute counts as night
const CivilTwilight = -6.0

const deg = math.Pi / 180.0

// SolarElevation returns the sun's elevation in degrees above the horizon at
// the given position and moment, using the low precision almanac formulas
// (good to about a hundredth of a degree, plenty for logging).
func SolarElevation(lat, lon float64, at time.Time) float64 {
	// days since J2000.0
	n := float64(at.UTC().Unix())/86400.0 + 2440587.5 - 2451545.0

	meanLon := math.Mod(280.460+0.9856474*n, 360)
	meanAnomaly := math.Mod(357.528+0.9856003*n, 360) * deg
	eclipticLon := (meanLon + 1.915*math.Sin(meanAnomaly) + 0.020*math.Sin(2*meanAnomaly)) * deg
	obliquity := (23.439 - 0.0000004*n) * deg

	rightAscension := math.Atan2(math.Cos(obliquity)*math.Sin(eclipticLon), math.Cos(eclipticLon))
	declination := math.Asin(math.Sin(obliquity) * math.Sin(eclipticLon))

	gmstHours := math.Mod(18.697374558+24.06570982441908*n, 24)
	hourAngle := (gmstHours*15+lon)*deg - rightAscension

	latRad := lat * deg
	sinElevation := math.Sin(latRad)*math.Sin(declination) + math.Cos(latRad)*math.Cos(declination)*math.Cos(hourAngle)
	return math.Asin(sinElevation) / deg
}

// IsNight reports whether the sun is below civil twilight
func IsNight(lat, lon float64, at time.Time) bool {
	return SolarElevation(lat, lon, at) < CivilTwilight
}
