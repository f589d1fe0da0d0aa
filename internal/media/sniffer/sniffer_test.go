package sniffer

import (
	"errors"
	"net/textproto"
	"testing"
)

var (
	jpegHead = []byte{0xff, 0xd8, 0xff, 0xe0, 0x00, 0x10, 'J', 'F', 'I', 'F'}
	pngHead  = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d}
)

func TestDetectHead(t *testing.T) {
	tests := []struct {
		name     string
		head     []byte
		expected MediaType
	}{
		{"jpeg", jpegHead, TypeJPEG},
		{"png", pngHead, TypePNG},
		{"gif", []byte("GIF89a\x01\x00"), TypeGIF},
		{"webp", []byte("RIFF\x00\x00\x00\x00WEBPVP8 "), TypeWEBP},
		{"avif", []byte("\x00\x00\x00\x1cftypavif\x00\x00\x00\x00"), TypeAVIF},
		{"bmp", []byte("BM\x00\x00\x00\x00"), TypeBMP},
	}

	for _, tt := range tests {
		result, err := DetectHead(tt.head)
		if err != nil {
			t.Errorf("%s: unexpected error %v", tt.name, err)
			continue
		}
		if result.Type != tt.expected {
			t.Errorf("%s: expected %s, got %s", tt.name, tt.expected, result.Type)
		}
	}
}

func TestDetectHead_Unknown(t *testing.T) {
	for _, head := range [][]byte{nil, []byte("plain text")} {
		if _, err := DetectHead(head); !errors.Is(err, ErrUnknownType) {
			t.Errorf("DetectHead(%q) error = %v, expected ErrUnknownType", head, err)
		}
	}
}

func TestResolveMIME(t *testing.T) {
	tests := []struct {
		name     string
		declared string
		data     []byte
		expected string
	}{
		{"declared wins", "image/png; charset=binary", jpegHead, "image/png"},
		{"missing header sniffs", "", jpegHead, "image/jpeg"},
		{"octet stream sniffs", "application/octet-stream", pngHead, "image/png"},
		{"unknown bytes keep declared", "application/octet-stream", []byte("???"), "application/octet-stream"},
		{"nothing known", "", []byte("???"), "application/octet-stream"},
	}

	for _, tt := range tests {
		header := textproto.MIMEHeader{}
		if tt.declared != "" {
			header.Set("Content-Type", tt.declared)
		}
		if got := ResolveMIME(header, tt.data); got != tt.expected {
			t.Errorf("%s: expected %q, got %q", tt.name, tt.expected, got)
		}
	}
}
