package timezone

import "time"

var Location *time.Location

func init() {
	var err error
	Location, err = time.LoadLocation("America/Argentina/Buenos_Aires")
	if err != nil {
		panic(err)
	}
}

// force timezone to be Buenos Aires because the broker's market hours
// and the snapshot date paths are all defined in local market time,
// regardless of where the collector host happens to run
func Now() time.Time {
	return time.Now().In(Location)
}
