package geo

import (
	"math"
	"testing"
)

func TestParsePoint(t *testing.T) {
	tests := []struct {
		in      string
		want    Point
		wantErr bool
	}{
		{in: "-95.0,39.0", want: Point{-95, 39}},
		{in: " -78.64 , 35.77 ", want: Point{-78.64, 35.77}},
		{in: "-95.0", wantErr: true},
		{in: "a,b", wantErr: true},
		{in: "-95,39,1", wantErr: true},
		{in: "-200,39", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParsePoint(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParsePoint(%q) error = nil, want error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParsePoint(%q) error = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParsePoint(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewExtentNormalisesCorners(t *testing.T) {
	e, err := NewExtent([4]float64{-94, 40, -96, 38})
	if err != nil {
		t.Fatal(err)
	}
	want := Extent{MinLon: -96, MinLat: 38, MaxLon: -94, MaxLat: 40}
	if e != want {
		t.Fatalf("NewExtent() = %+v, want %+v", e, want)
	}
	if !e.Contains(Point{-95, 39}) {
		t.Fatal("extent should contain (-95, 39)")
	}
	if e.Contains(Point{-93, 39}) {
		t.Fatal("extent should not contain (-93, 39)")
	}
}

func TestExtentToConusCoversProjectedPoint(t *testing.T) {
	e, _ := NewExtent([4]float64{-96, 38, -94, 40})
	b, err := ExtentToConus(e)
	if err != nil {
		t.Fatal(err)
	}
	p, err := ToConus(Point{-95, 39})
	if err != nil {
		t.Fatal(err)
	}
	if p.X < b.MinX || p.X > b.MaxX || p.Y < b.MinY || p.Y > b.MaxY {
		t.Fatalf("projected point %v outside bounds %+v", p, b)
	}
	if math.IsInf(b.MinX, 0) || b.MinX >= b.MaxX || b.MinY >= b.MaxY {
		t.Fatalf("degenerate bounds %+v", b)
	}
}

func TestProjectedString(t *testing.T) {
	got := Projected{X: 85800.29298, Y: 1775361.5}.String()
	if got != "85800.292980,1775361.500000" {
		t.Fatalf("String() = %q", got)
	}
}
