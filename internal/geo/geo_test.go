package geo

import (
	"math"
	"testing"
)

func TestHaversine(t *testing.T) {
	tests := []struct {
		name                   string
		lat1, lon1, lat2, lon2 float64
		want                   float64
		tolerance              float64
	}{
		{
			name: "same point",
			lat1: 51.5, lon1: -0.12, lat2: 51.5, lon2: -0.12,
			want: 0, tolerance: 0.001,
		},
		{
			name: "london to new york",
			lat1: 51.5, lon1: -0.12, lat2: 40.7, lon2: -74.0,
			want: 5570, tolerance: 10,
		},
		{
			name: "equator quarter circumference",
			lat1: 0, lon1: 0, lat2: 0, lon2: 90,
			want: 2 * math.Pi * 6371 / 4, tolerance: 1,
		},
		{
			name: "short hop",
			lat1: 48.8566, lon1: 2.3522, lat2: 48.8606, lon2: 2.3376,
			want: 1.15, tolerance: 0.1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Haversine(tt.lat1, tt.lon1, tt.lat2, tt.lon2)
			if math.Abs(got-tt.want) > tt.tolerance {
				t.Errorf("Haversine() = %.3f, want %.3f ± %.3f", got, tt.want, tt.tolerance)
			}
		})
	}
}

func TestHaversineSymmetry(t *testing.T) {
	a := Haversine(51.5, -0.12, 40.7, -74.0)
	b := Haversine(40.7, -74.0, 51.5, -0.12)
	if math.Abs(a-b) > 1e-9 {
		t.Errorf("distance not symmetric: %.9f vs %.9f", a, b)
	}
}
