package cache

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"
)

func TestCodec_EncodeDecode(t *testing.T) {
	large := bytes.Repeat([]byte("wallet card "), 200)

	tests := []struct {
		name         string
		compress     bool
		data         []byte
		wantEncoding string
	}{
		{"small body stays raw", true, []byte("tiny"), ""},
		{"large body compressed", true, large, encodingZstd},
		{"compression disabled", false, large, ""},
		{"empty body", true, nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			codec, err := NewCodec(tt.compress)
			if err != nil {
				t.Fatalf("NewCodec: %v", err)
			}
			defer codec.Close()

			entry := &CacheEntry{
				URL:        "https://wallet.example.com/app.js",
				StatusCode: 200,
				Headers:    http.Header{"Content-Type": []string{"text/javascript"}},
				Data:       tt.data,
				CachedAt:   time.Now().UTC().Truncate(time.Second),
			}

			encoded, err := codec.Encode(entry)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}

			var rec record
			if err := json.Unmarshal(encoded, &rec); err != nil {
				t.Fatalf("stored form is not JSON: %v", err)
			}
			if rec.Encoding != tt.wantEncoding {
				t.Errorf("encoding = %q, want %q", rec.Encoding, tt.wantEncoding)
			}

			decoded, err := codec.Decode(encoded)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if !bytes.Equal(decoded.Data, entry.Data) {
				t.Errorf("decoded body differs (len %d vs %d)", len(decoded.Data), len(entry.Data))
			}
			if decoded.StatusCode != entry.StatusCode || decoded.URL != entry.URL {
				t.Errorf("decoded = %+v", decoded)
			}
		})
	}
}

func TestCodec_DecodeCompressedWithoutEncoder(t *testing.T) {
	writer := DefaultCodec()
	defer writer.Close()
	reader, err := NewCodec(false)
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	defer reader.Close()

	entry := &CacheEntry{StatusCode: 200, Data: bytes.Repeat([]byte("a"), 4096)}
	encoded, err := writer.Encode(entry)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	decoded, err := reader.Decode(encoded)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(decoded.Data) != 4096 {
		t.Errorf("decoded %d bytes, want 4096", len(decoded.Data))
	}
}

func TestCodec_DecodeInvalid(t *testing.T) {
	codec := DefaultCodec()
	defer codec.Close()

	tests := []struct {
		name string
		data []byte
	}{
		{"not json", []byte("{")},
		{"unknown encoding", []byte(`{"status_code":200,"encoding":"brotli"}`)},
		{"corrupt zstd", []byte(`{"status_code":200,"data":"AAAA","encoding":"zstd"}`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := codec.Decode(tt.data)
			if !errors.Is(err, ErrInvalidEntry) {
				t.Errorf("Decode() error = %v, want ErrInvalidEntry", err)
			}
		})
	}
}

func TestCodec_EncodeNil(t *testing.T) {
	codec := DefaultCodec()
	defer codec.Close()

	if _, err := codec.Encode(nil); err == nil {
		t.Error("Encode(nil) should return error")
	}
}
