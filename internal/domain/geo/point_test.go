package geo

import "testing"

func TestHaversineKM_SamePoint(t *testing.T) {
	p := Point{Lon: 44.366, Lat: 33.315}
	if got := HaversineKM(p, p); got != 0 {
		t.Errorf("HaversineKM(same point) = %v, want 0", got)
	}
}

func TestHaversineKM_KnownDistance(t *testing.T) {
	// central Baghdad to the airport area, roughly 15 km
	a := Point{Lon: 44.366, Lat: 33.315}
	b := Point{Lon: 44.228, Lat: 33.262}
	got := HaversineKM(a, b)
	if got < 12 || got > 18 {
		t.Errorf("HaversineKM = %.2f km, want roughly 12..18", got)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		p       Point
		wantErr bool
	}{
		{Point{Lon: 44.366, Lat: 33.315}, false},
		{Point{Lon: -180, Lat: 90}, false},
		{Point{Lon: 180.1, Lat: 0}, true},
		{Point{Lon: 0, Lat: -90.5}, true},
	}
	for _, tc := range cases {
		err := tc.p.Validate()
		if (err != nil) != tc.wantErr {
			t.Errorf("Validate(%+v) err = %v, wantErr %v", tc.p, err, tc.wantErr)
		}
	}
}

func TestEstimateDurationMinutes(t *testing.T) {
	// 5.2 km at city speed comes out near 15 minutes
	got := EstimateDurationMinutes(5.2)
	if got < 13 || got > 17 {
		t.Errorf("EstimateDurationMinutes(5.2) = %d, want ~15", got)
	}

	// never below one minute
	if got := EstimateDurationMinutes(0.01); got != 1 {
		t.Errorf("EstimateDurationMinutes(0.01) = %d, want 1", got)
	}
}
