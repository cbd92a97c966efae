package handlers

import (
	"bufio"
	"bytes"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"golang.org/x/text/encoding/unicode"

	_ "golang.org/x/image/webp"
)

// sniffImageSize returns the pixel dimensions of an uploaded image, or nils
// when the bytes are not a decodable png/jpeg/gif/webp.
func sniffImageSize(data []byte) (width, height *int) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, nil
	}
	return &cfg.Width, &cfg.Height
}

// sniffSerialNumber extracts the first data cell of a CSV export whose header
// row starts with "Device Serial Number". Exports come from tools that write
// UTF-16LE with a BOM and use comma, semicolon or tab delimiters, so all of
// those are tolerated.
func sniffSerialNumber(data []byte) *string {
	text := decodeCSVText(data)
	scanner := bufio.NewScanner(strings.NewReader(text))

	if !scanner.Scan() {
		return nil
	}
	header := firstCell(scanner.Text())
	if !strings.EqualFold(header, "Device Serial Number") {
		return nil
	}

	if !scanner.Scan() {
		return nil
	}
	serial := firstCell(scanner.Text())
	if serial == "" {
		return nil
	}
	return &serial
}

func decodeCSVText(data []byte) string {
	if isUTF16LE(data) {
		decoder := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewDecoder()
		if decoded, err := decoder.Bytes(data); err == nil {
			data = decoded
		}
	}
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})
	return string(data)
}

func isUTF16LE(data []byte) bool {
	if len(data) >= 2 && data[0] == 0xFF && data[1] == 0xFE {
		return true
	}
	// No BOM: ASCII-heavy UTF-16LE shows as null bytes in odd positions.
	if len(data) >= 4 && data[1] == 0x00 && data[3] == 0x00 {
		return true
	}
	return false
}

func firstCell(line string) string {
	cell := line
	for _, delim := range []string{",", ";", "\t"} {
		if idx := strings.Index(cell, delim); idx >= 0 {
			cell = cell[:idx]
		}
	}
	cell = strings.Trim(cell, "\" \r")
	return strings.TrimSpace(cell)
}
