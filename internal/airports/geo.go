package airports

import "math"

// Conversion factors
const (
	EarthRadiusM = 6371000.0
	MetersPerNM  = 1852.0
	degreesToRad = math.Pi / 180.0
	radiansToDeg = 180.0 / math.Pi
)

// Haversine calculates the distance in meters between two lat/lon points.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	return EarthRadiusM * centralAngle(lat1, lon1, lat2, lon2)
}

// centralAngle is the angular distance in radians between two points
func centralAngle(lat1, lon1, lat2, lon2 float64) float64 {
	lat1Rad := lat1 * degreesToRad
	lat2Rad := lat2 * degreesToRad
	dlat := (lat2 - lat1) * degreesToRad
	dlon := (lon2 - lon1) * degreesToRad

	a := math.Pow(math.Sin(dlat/2), 2) + math.Cos(lat1Rad)*math.Cos(lat2Rad)*math.Pow(math.Sin(dlon/2), 2)
	return 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// Intermediate returns the point at fraction (0..1) of the great circle from
// point 1 to point 2.
func Intermediate(lat1, lon1, lat2, lon2, fraction float64) (float64, float64) {
	delta := centralAngle(lat1, lon1, lat2, lon2)
	if delta == 0 {
		return lat1, lon1
	}

	phi1, lambda1 := lat1*degreesToRad, lon1*degreesToRad
	phi2, lambda2 := lat2*degreesToRad, lon2*degreesToRad

	a := math.Sin((1-fraction)*delta) / math.Sin(delta)
	b := math.Sin(fraction*delta) / math.Sin(delta)

	x := a*math.Cos(phi1)*math.Cos(lambda1) + b*math.Cos(phi2)*math.Cos(lambda2)
	y := a*math.Cos(phi1)*math.Sin(lambda1) + b*math.Cos(phi2)*math.Sin(lambda2)
	z := a*math.Sin(phi1) + b*math.Sin(phi2)

	lat := math.Atan2(z, math.Sqrt(x*x+y*y))
	lon := math.Atan2(y, x)
	return lat * radiansToDeg, lon * radiansToDeg
}

// MetersToNM converts meters to nautical miles
func MetersToNM(meters float64) float64 {
	return meters / MetersPerNM
}

// DistanceNM is the great circle distance between two airports
func DistanceNM(a, b Airport) float64 {
	return MetersToNM(Haversine(a.Lat, a.Lon, b.Lat, b.Lon))
}
