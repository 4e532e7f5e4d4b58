package visualization

import (
	"image/color"
	"math"
	"testing"

	"github.com/pkg/errors"
	"gonum.org/v1/plot/palette"
)

func nrgba(c color.Color) color.NRGBA {
	return color.NRGBAModel.Convert(c).(color.NRGBA)
}

// TestJetEndpoints verifies the segmented jet map at known positions
func TestJetEndpoints(t *testing.T) {
	jet, err := Colormap("jet")
	if err != nil {
		t.Fatalf("Colormap failed: %v", err)
	}

	tests := []struct {
		v        float64
		expected color.NRGBA
	}{
		{0, color.NRGBA{0, 0, 128, 255}},
		{0.5, color.NRGBA{123, 255, 123, 255}},
		{1, color.NRGBA{128, 0, 0, 255}},
	}
	for _, tt := range tests {
		c, err := jet.At(tt.v)
		if err != nil {
			t.Fatalf("At(%v) failed: %v", tt.v, err)
		}
		if got := nrgba(c); got != tt.expected {
			t.Errorf("At(%v) = %v, expected %v", tt.v, got, tt.expected)
		}
	}

	if _, err := jet.At(1.5); err != palette.ErrOverflow {
		t.Errorf("Expected ErrOverflow, got %v", err)
	}
	if _, err := jet.At(-0.1); err != palette.ErrUnderflow {
		t.Errorf("Expected ErrUnderflow, got %v", err)
	}
	if _, err := jet.At(math.NaN()); err != palette.ErrNaN {
		t.Errorf("Expected ErrNaN, got %v", err)
	}
}

// TestDiscretize verifies band k carries the source colour at k/(n-1)
func TestDiscretize(t *testing.T) {
	for _, name := range []string{"jet", "gray", "kindlmann", "blackbody", "bluered"} {
		for _, n := range []int{1, 2, 3, 7} {
			src, err := Colormap(name)
			if err != nil {
				t.Fatalf("Colormap(%s) failed: %v", name, err)
			}
			d, err := Discretize(src, n)
			if err != nil {
				t.Fatalf("Discretize(%s, %d) failed: %v", name, n, err)
			}

			bands, err := BandColors(d, n)
			if err != nil {
				t.Fatalf("BandColors failed: %v", err)
			}
			if len(bands) != n {
				t.Fatalf("Expected %d bands, got %d", n, len(bands))
			}
			fracs := linspace(0, 1, n)
			for k, band := range bands {
				want, _ := src.At(fracs[k])
				if nrgba(band) != nrgba(want) {
					t.Errorf("%s_%d band %d = %v, expected %v", name, n, k, nrgba(band), nrgba(want))
				}
			}
		}
	}
}

// TestDiscretizeRoundingBoundary verifies band colours come from the evenly
// spaced sample points, not from k/(n-1) recomputed per band
func TestDiscretizeRoundingBoundary(t *testing.T) {
	gray, err := Colormap("gray")
	if err != nil {
		t.Fatalf("Colormap failed: %v", err)
	}
	d, err := Discretize(gray, 7)
	if err != nil {
		t.Fatalf("Discretize failed: %v", err)
	}
	bands, err := BandColors(d, 7)
	if err != nil {
		t.Fatalf("BandColors failed: %v", err)
	}

	// 5/6 of the ramp sits just below 212.5 on the sample grid
	want := color.NRGBA{212, 212, 212, 255}
	if got := nrgba(bands[5]); got != want {
		t.Errorf("gray_7 band 5 = %v, expected %v", got, want)
	}
}

// TestDiscretizeBandsAreConstant verifies colours do not vary inside a band
func TestDiscretizeBandsAreConstant(t *testing.T) {
	d, err := DiscretizeNamed("jet", 4)
	if err != nil {
		t.Fatalf("DiscretizeNamed failed: %v", err)
	}
	for k := 0; k < 4; k++ {
		lo, _ := d.At(float64(k)/4 + 0.01)
		hi, _ := d.At(float64(k+1)/4 - 0.01)
		if nrgba(lo) != nrgba(hi) {
			t.Errorf("Band %d varies: %v vs %v", k, nrgba(lo), nrgba(hi))
		}
	}

	last, _ := d.At(1)
	top, _ := d.At(0.99)
	if nrgba(last) != nrgba(top) {
		t.Errorf("Top of range %v does not match last band %v", nrgba(last), nrgba(top))
	}
}

// TestDiscretizeNames verifies the "<name>_<n>" naming
func TestDiscretizeNames(t *testing.T) {
	d, err := DiscretizeNamed("bluered", 5)
	if err != nil {
		t.Fatalf("DiscretizeNamed failed: %v", err)
	}
	if d.Name() != "bluered_5" {
		t.Errorf("Expected bluered_5, got %s", d.Name())
	}

	jet, _ := Colormap("jet")
	d, err = Discretize(jet, 12)
	if err != nil {
		t.Fatalf("Discretize failed: %v", err)
	}
	if d.Name() != "jet_12" {
		t.Errorf("Expected jet_12, got %s", d.Name())
	}
}

// TestColormapErrors verifies unknown names and band counts are rejected
func TestColormapErrors(t *testing.T) {
	if _, err := Colormap("viridis2"); !errors.Is(err, ErrUnknownColormap) {
		t.Errorf("Expected ErrUnknownColormap, got %v", err)
	}
	if _, err := DiscretizeNamed("jet", 0); err == nil {
		t.Error("Expected error for zero bands")
	}
	if _, err := NewSegmented("bad", ramp, ramp, []Segment{{0.2, 0, 0}, {1, 1, 1}}); err == nil {
		t.Error("Expected error for breakpoints not starting at 0")
	}
	if _, err := NewSegmented("bad", ramp, ramp, []Segment{{0, 0, 0}}); err == nil {
		t.Error("Expected error for a single breakpoint")
	}
}

// TestMinSeparation verifies neighbouring bands are distinguishable
func TestMinSeparation(t *testing.T) {
	d, err := DiscretizeNamed("jet", 6)
	if err != nil {
		t.Fatalf("DiscretizeNamed failed: %v", err)
	}
	bands, err := BandColors(d, 6)
	if err != nil {
		t.Fatalf("BandColors failed: %v", err)
	}
	if sep := MinSeparation(bands); sep <= 0.05 {
		t.Errorf("Expected distinct neighbouring bands, got separation %v", sep)
	}

	same := []color.Color{color.White, color.White}
	if sep := MinSeparation(same); sep != 0 {
		t.Errorf("Expected 0 for identical colours, got %v", sep)
	}
	if sep := MinSeparation(same[:1]); !math.IsInf(sep, 1) {
		t.Errorf("Expected +Inf for one colour, got %v", sep)
	}
}
