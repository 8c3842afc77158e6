package timezone

import "time"

var Location *time.Location

func init() {
	var err error
	Location, err = time.LoadLocation("Europe/Paris")
	if err != nil {
		panic(err)
	}
}

// force the timezone to Paris because the scrapers run on machines in
// arbitrary regions and every published date is a French calendar date
// derived from <time.Time>.Year()/Month()/Day()
func Now() time.Time {
	return time.Now().In(Location)
}

// Today returns midnight of the current day in Paris.
func Today() time.Time {
	return Day(Now())
}

// Day truncates t to midnight of its Paris calendar day.
func Day(t time.Time) time.Time {
	t = t.In(Location)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, Location)
}
