package model

import "fmt"

// Coordinate is a geodetic position: latitude and longitude in decimal
// degrees, altitude in metres. Altitude is not validated and may be negative.
type Coordinate struct {
	Lat float64 `json:"lat" msgpack:"lat"`
	Lon float64 `json:"lon" msgpack:"lon"`
	Alt float64 `json:"alt" msgpack:"alt"`
}

// WithAlt returns a copy of c at the given altitude.
func (c Coordinate) WithAlt(alt float64) Coordinate {
	c.Alt = alt
	return c
}

func (c Coordinate) String() string {
	return fmt.Sprintf("lat: %f lon: %f alt: %f", c.Lat, c.Lon, c.Alt)
}
