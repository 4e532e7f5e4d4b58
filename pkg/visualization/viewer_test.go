package visualization

import (
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"miriwcs/internal/models"
	"miriwcs/pkg/reference"
)

// createTestMask builds a 20x30 mask with labels 1 and 2 and one out-of-range label
func createTestMask() *reference.Plane {
	mask := reference.NewPlane(20, 30)
	for r := 2; r < 8; r++ {
		for c := 3; c < 12; c++ {
			mask.Set(r, c, 1)
		}
	}
	for r := 10; r < 18; r++ {
		for c := 15; c < 25; c++ {
			mask.Set(r, c, 2)
		}
	}
	mask.Set(19, 29, 7)
	return mask
}

// TestNewViewer verifies defaults
func TestNewViewer(t *testing.T) {
	mask := createTestMask()
	viewer := NewViewer(mask)

	if viewer.mask != mask {
		t.Error("Viewer must keep the given mask")
	}
	if viewer.Colormap != "jet" {
		t.Errorf("Expected jet, got %s", viewer.Colormap)
	}
	if viewer.BarWidth >= viewer.Width {
		t.Errorf("Colour bar %v wider than figure %v", viewer.BarWidth, viewer.Width)
	}
}

// TestShow verifies a PNG figure is written
func TestShow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mask.png")
	if err := Show(createTestMask(), DefaultRegions, path); err != nil {
		t.Fatalf("Show failed: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Failed to open figure: %v", err)
	}
	defer f.Close()

	cfg, err := png.DecodeConfig(f)
	if err != nil {
		t.Fatalf("Figure is not a PNG: %v", err)
	}
	if cfg.Width == 0 || cfg.Height == 0 {
		t.Errorf("Unexpected figure size %dx%d", cfg.Width, cfg.Height)
	}
}

// TestShowErrors verifies bad band counts, colormaps and masks are rejected
func TestShowErrors(t *testing.T) {
	dir := t.TempDir()
	if err := Show(createTestMask(), 0, filepath.Join(dir, "a.png")); err == nil {
		t.Error("Expected error for zero regions")
	}

	viewer := NewViewer(createTestMask())
	viewer.Colormap = "unknown"
	if err := viewer.Show(3, filepath.Join(dir, "b.png")); err == nil {
		t.Error("Expected error for unknown colormap")
	}

	if err := Show(reference.NewPlane(0, 0), 3, filepath.Join(dir, "c.png")); err == nil {
		t.Error("Expected error for empty mask")
	}
}

// TestFigureSingleRegion verifies one colour still renders
func TestFigureSingleRegion(t *testing.T) {
	img, err := NewViewer(createTestMask()).Figure(1)
	if err != nil {
		t.Fatalf("Figure failed: %v", err)
	}
	if b := img.Image().Bounds(); b.Dx() == 0 || b.Dy() == 0 {
		t.Errorf("Unexpected image bounds %v", b)
	}
}

// TestExtractRegion verifies pixel colours follow the band of each label
func TestExtractRegion(t *testing.T) {
	viewer := NewViewer(createTestMask())
	cmap, err := DiscretizeNamed("jet", 3)
	if err != nil {
		t.Fatalf("DiscretizeNamed failed: %v", err)
	}
	bands, _ := BandColors(cmap, 3)

	img, err := viewer.ExtractRegion(models.Bounds{RowMin: 0, RowMax: 20, ColMin: 0, ColMax: 30}, 3)
	if err != nil {
		t.Fatalf("ExtractRegion failed: %v", err)
	}

	tests := []struct {
		x, y int
		band int
	}{
		{0, 0, 0},
		{5, 4, 1},
		{20, 12, 2},
		{29, 19, 2}, // label 7 clipped to the last band
	}
	for _, tt := range tests {
		got := color.NRGBAModel.Convert(img.At(tt.x, tt.y))
		want := color.NRGBAModel.Convert(bands[tt.band])
		if got != want {
			t.Errorf("Pixel (%d,%d) = %v, expected band %d %v", tt.x, tt.y, got, tt.band, want)
		}
	}

	sub, err := viewer.ExtractRegion(models.Bounds{RowMin: 2, RowMax: 8, ColMin: 3, ColMax: 12}, 3)
	if err != nil {
		t.Fatalf("ExtractRegion failed: %v", err)
	}
	if b := sub.Bounds(); b.Dx() != 9 || b.Dy() != 6 {
		t.Errorf("Expected 9x6 region, got %dx%d", b.Dx(), b.Dy())
	}

	if _, err := viewer.ExtractRegion(models.Bounds{RowMin: 0, RowMax: 21, ColMin: 0, ColMax: 5}, 3); err == nil {
		t.Error("Expected error for region outside the mask")
	}
}

// TestSaveMask verifies the one-pixel-per-sample image
func TestSaveMask(t *testing.T) {
	path := filepath.Join(t.TempDir(), "raw.png")
	if err := NewViewer(createTestMask()).SaveMask(3, path); err != nil {
		t.Fatalf("SaveMask failed: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Failed to open image: %v", err)
	}
	defer f.Close()

	img, err := png.Decode(f)
	if err != nil {
		t.Fatalf("Failed to decode image: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 30 || b.Dy() != 20 {
		t.Errorf("Expected 30x20 image, got %dx%d", b.Dx(), b.Dy())
	}
}
