package imageio

import "testing"

func TestFormatFromPath(t *testing.T) {
	tests := []struct {
		path string
		want ImageFormat
	}{
		{"out.png", FormatPNG},
		{"OUT.PNG", FormatPNG},
		{"a/b/out.jpg", FormatJPEG},
		{"out.jpeg", FormatJPEG},
		{"out.bmp", FormatBMP},
		{"out.tif", FormatTIFF},
		{"out.tiff", FormatTIFF},
		{"out.webp", FormatUnknown},
		{"out", FormatUnknown},
	}
	for _, tt := range tests {
		if got := FormatFromPath(tt.path); got != tt.want {
			t.Errorf("FormatFromPath(%q) = %v, erwartet %v", tt.path, got, tt.want)
		}
	}
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want ImageFormat
	}{
		{"png", []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A}, FormatPNG},
		{"jpeg", []byte{0xFF, 0xD8, 0xFF, 0xE0}, FormatJPEG},
		{"bmp", []byte{'B', 'M', 0, 0}, FormatBMP},
		{"tiff le", []byte{'I', 'I', 0x2A, 0x00}, FormatTIFF},
		{"tiff be", []byte{'M', 'M', 0x00, 0x2A}, FormatTIFF},
		{"leer", nil, FormatUnknown},
		{"text", []byte("hello"), FormatUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectFormat(tt.data); got != tt.want {
				t.Errorf("DetectFormat = %v, erwartet %v", got, tt.want)
			}
		})
	}
}

func TestFormatMetadata(t *testing.T) {
	if FormatPNG.MimeType() != "image/png" || FormatPNG.Extension() != ".png" {
		t.Error("PNG Metadaten falsch")
	}
	if FormatJPEG.MimeType() != "image/jpeg" || FormatJPEG.Extension() != ".jpg" {
		t.Error("JPEG Metadaten falsch")
	}
	if FormatUnknown.MimeType() != "application/octet-stream" {
		t.Error("unbekanntes Format sollte octet-stream liefern")
	}
	if ParseFormat(FormatTIFF.Extension()) != FormatTIFF {
		t.Error("Extension sollte zurueck geparst werden koennen")
	}
}
