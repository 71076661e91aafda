package processing

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/menta2k/image-placer/pkg/types"
)

func createTestImage(width, height int) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetNRGBA(x, y, color.NRGBA{uint8(x), uint8(y), 64, 255})
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png encode: %v", err)
	}
	return buf.Bytes()
}

func TestLoadImageFromFile(t *testing.T) {
	p := NewProcessor()
	path := filepath.Join(t.TempDir(), "pic.png")
	if err := os.WriteFile(path, encodePNG(t, createTestImage(40, 30)), 0o644); err != nil {
		t.Fatal(err)
	}

	img, err := p.LoadImage(context.Background(), path)
	if err != nil {
		t.Fatalf("LoadImage failed: %v", err)
	}
	if img.Bounds().Dx() != 40 || img.Bounds().Dy() != 30 {
		t.Errorf("Expected 40x30, got %v", img.Bounds())
	}

	w, h, err := p.ProbeSize(context.Background(), path)
	if err != nil {
		t.Fatalf("ProbeSize failed: %v", err)
	}
	if w != 40 || h != 30 {
		t.Errorf("Expected probed 40x30, got %dx%d", w, h)
	}
}

func TestFetchRejectsNonImage(t *testing.T) {
	p := NewProcessor()
	path := filepath.Join(t.TempDir(), "notes.png")
	if err := os.WriteFile(path, []byte("just some text"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := p.Fetch(context.Background(), path); err == nil {
		t.Error("Expected error for non-image content")
	}
}

func TestLoadImageFromURL(t *testing.T) {
	data := encodePNG(t, createTestImage(20, 10))
	var gotAgent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAgent = r.Header.Get("User-Agent")
		if r.URL.Path == "/missing.png" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write(data)
	}))
	defer srv.Close()

	p := NewProcessorWithClient(srv.Client())
	img, err := p.LoadImage(context.Background(), srv.URL+"/pic.png")
	if err != nil {
		t.Fatalf("LoadImage failed: %v", err)
	}
	if img.Bounds().Dx() != 20 {
		t.Errorf("Expected width 20, got %d", img.Bounds().Dx())
	}
	if gotAgent == "" {
		t.Error("Expected a User-Agent header")
	}

	if _, err := p.LoadImage(context.Background(), srv.URL+"/missing.png"); err == nil {
		t.Error("Expected error for HTTP 404")
	}
}

func TestDownloadRejectsOversizedPicture(t *testing.T) {
	data := encodePNG(t, createTestImage(20, 10))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(data)
	}))
	defer srv.Close()

	p := NewProcessorWithClient(srv.Client())
	p.maxSize = int64(len(data))
	if _, err := p.LoadImage(context.Background(), srv.URL+"/pic.png"); err != nil {
		t.Fatalf("Picture at the cap must load: %v", err)
	}

	p.maxSize = int64(len(data)) - 1
	_, err := p.LoadImage(context.Background(), srv.URL+"/pic.png")
	if !errors.Is(err, ErrTooLarge) {
		t.Errorf("Expected ErrTooLarge, got %v", err)
	}
}

func TestSaveImageFormats(t *testing.T) {
	p := NewProcessor()
	img := createTestImage(16, 16)
	dir := t.TempDir()

	for _, format := range []string{"png", "jpg", "webp"} {
		path := filepath.Join(dir, "out."+format)
		if err := p.SaveImage(img, path, format, 90, false); err != nil {
			t.Fatalf("SaveImage %s failed: %v", format, err)
		}
		loaded, err := p.LoadImage(context.Background(), path)
		if err != nil {
			t.Fatalf("reload %s failed: %v", format, err)
		}
		if loaded.Bounds().Dx() != 16 {
			t.Errorf("%s: expected width 16, got %d", format, loaded.Bounds().Dx())
		}
	}

	if err := p.SaveImage(img, filepath.Join(dir, "out.tga"), "tga", 90, false); err == nil {
		t.Error("Expected error for unsupported format")
	}
}

func TestPrepareImageForModel(t *testing.T) {
	p := NewProcessor()
	b64, err := p.PrepareImageForModel(createTestImage(200, 100), "jpg", 50, 80)
	if err != nil {
		t.Fatalf("PrepareImageForModel failed: %v", err)
	}
	if b64 == "" {
		t.Error("Expected non-empty base64 payload")
	}
}

func TestCreateDebugOverlay(t *testing.T) {
	p := NewProcessor()
	img := createTestImage(100, 100)

	overlay := p.CreateDebugOverlay(img, types.Margins{Left: 10, Right: 10, Top: 20, Bottom: 20}, image.Rect(30, 0, 70, 100))
	nrgba, ok := overlay.(*image.NRGBA)
	if !ok {
		t.Fatalf("Expected *image.NRGBA, got %T", overlay)
	}

	if got := nrgba.NRGBAAt(50, 20); got != (color.NRGBA{0, 255, 0, 255}) {
		t.Errorf("Expected crop limit line at y=20, got %v", got)
	}
	if got := nrgba.NRGBAAt(30, 50); got != (color.NRGBA{255, 204, 0, 255}) {
		t.Errorf("Expected visible window line at x=30, got %v", got)
	}
}
