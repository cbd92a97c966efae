package handlers

import (
	"encoding/base64"
	"testing"
)

// tinyPNG returns a valid 1x1 PNG.
func tinyPNG() []byte {
	const b64 = "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mP8z8BQDwAEhQGAhKmMIQAAAABJRU5ErkJggg=="
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		panic(err)
	}
	return data
}

// utf16le encodes ASCII text as UTF-16LE with a byte order mark.
func utf16le(text string) []byte {
	out := []byte{0xFF, 0xFE}
	for _, r := range text {
		out = append(out, byte(r), 0x00)
	}
	return out
}

func TestSniffImageSize(t *testing.T) {
	width, height := sniffImageSize(tinyPNG())
	if width == nil || height == nil {
		t.Fatal("expected dimensions for a valid png")
	}
	if *width != 1 || *height != 1 {
		t.Fatalf("expected 1x1, got %dx%d", *width, *height)
	}
}

func TestSniffImageSizeNonImage(t *testing.T) {
	width, height := sniffImageSize([]byte("definitely not an image"))
	if width != nil || height != nil {
		t.Fatalf("expected no dimensions, got %v %v", width, height)
	}
}

func TestSniffSerialNumber(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"comma delimited", []byte("Device Serial Number,Model\nSN-001,X\n"), "SN-001"},
		{"semicolon delimited", []byte("Device Serial Number;Model\nSN-002;X\n"), "SN-002"},
		{"tab delimited", []byte("Device Serial Number\tModel\nSN-003\tX\n"), "SN-003"},
		{"quoted cells", []byte("\"Device Serial Number\",\"Model\"\n\"SN-004\",\"X\"\n"), "SN-004"},
		{"crlf line endings", []byte("Device Serial Number,Model\r\nSN-005,X\r\n"), "SN-005"},
		{"utf-8 bom", append([]byte{0xEF, 0xBB, 0xBF}, []byte("Device Serial Number,Model\nSN-006,X\n")...), "SN-006"},
		{"utf-16le with bom", utf16le("Device Serial Number,Model\nSN-007,X\n"), "SN-007"},
		{"lowercase header", []byte("device serial number,model\nSN-008,x\n"), "SN-008"},
		{"single column", []byte("Device Serial Number\nSN-009\n"), "SN-009"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := sniffSerialNumber(tc.data)
			if got == nil {
				t.Fatal("expected a serial number")
			}
			if *got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, *got)
			}
		})
	}
}

func TestSniffSerialNumberRejects(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"different header", []byte("Name,Serial\nfoo,SN-1\n")},
		{"header only", []byte("Device Serial Number,Model\n")},
		{"empty file", nil},
		{"empty serial cell", []byte("Device Serial Number,Model\n,X\n")},
		{"not csv at all", []byte("just some plain text")},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := sniffSerialNumber(tc.data); got != nil {
				t.Fatalf("expected nil, got %q", *got)
			}
		})
	}
}

func TestDecodeBase64Variants(t *testing.T) {
	want := "hello?>"
	for _, encoded := range []string{
		"aGVsbG8/Pg==", // standard, padded
		"aGVsbG8/Pg",   // standard, unpadded
		"aGVsbG8_Pg",   // url-safe
		"aGVsbG8_Pg==", // url-safe, padded
	} {
		got, err := decodeBase64(encoded)
		if err != nil {
			t.Fatalf("decode %q: %v", encoded, err)
		}
		if string(got) != want {
			t.Fatalf("decode %q: expected %q, got %q", encoded, want, got)
		}
	}

	if _, err := decodeBase64(""); err == nil {
		t.Fatal("empty input must fail")
	}
	if _, err := decodeBase64("!!!"); err == nil {
		t.Fatal("invalid input must fail")
	}
}
