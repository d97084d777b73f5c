package dup

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func writeTempFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func TestBlockGeometry(t *testing.T) {
	cases := []struct {
		size      int64
		wantBS    int64
		wantCount int64
	}{
		{512, 512, 1},
		{10 * 1024 * 1024, 512, 20480},
		{513, 1, 513},
		{511, 1, 511},
		{1, 1, 1},
		{0, 1, 0},
	}

	for _, tc := range cases {
		bs, count := blockGeometry(tc.size)
		if bs != tc.wantBS || count != tc.wantCount {
			t.Fatalf("blockGeometry(%d) = (%d, %d), want (%d, %d)", tc.size, bs, count, tc.wantBS, tc.wantCount)
		}
	}
}

func TestOpenSource_GeometryFromFileSize(t *testing.T) {
	path := writeTempFile(t, "image.img", bytes.Repeat([]byte{0xAB}, 1024))

	src, err := OpenSource(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if src.IsDir {
		t.Fatalf("regular file reported as directory")
	}
	if src.BlockSize != 512 || src.Blocks != 2 {
		t.Fatalf("expected geometry (512, 2), got (%d, %d)", src.BlockSize, src.Blocks)
	}
}

func TestOpenSource_Directory(t *testing.T) {
	src, err := OpenSource(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !src.IsDir {
		t.Fatalf("directory source not detected")
	}
}

func TestOpenSource_MissingPath(t *testing.T) {
	if _, err := OpenSource(filepath.Join(t.TempDir(), "nope.img")); err == nil {
		t.Fatalf("expected configuration error for missing source")
	}
	if _, err := OpenSource(""); err == nil {
		t.Fatalf("expected configuration error for empty source")
	}
}

func TestDigest_DeterministicAndKnown(t *testing.T) {
	path := writeTempFile(t, "hello", []byte("hello"))

	src, err := OpenSource(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	first, err := src.Digest(false)
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	if first != "5d41402abc4b2a76b9719d911017c592" {
		t.Fatalf("unexpected md5 for \"hello\": %s", first)
	}

	again, err := OpenSource(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := again.Digest(false)
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	if first != second {
		t.Fatalf("digest not deterministic: %s vs %s", first, second)
	}
}

func TestDigest_RejectsDirectorySource(t *testing.T) {
	src, err := OpenSource(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := src.Digest(false); err == nil {
		t.Fatalf("expected error digesting a directory source")
	}
}

func TestVerifyDevice(t *testing.T) {
	content := bytes.Repeat([]byte{0x5A}, 4096)
	srcPath := writeTempFile(t, "image.img", content)

	src, err := OpenSource(srcPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	t.Run("exact copy passes", func(t *testing.T) {
		dev := writeTempFile(t, "dev", content)
		ok, err := src.VerifyDevice(dev, false)
		if err != nil {
			t.Fatalf("verify: %v", err)
		}
		if !ok {
			t.Fatalf("byte-identical copy failed verification")
		}
	})

	t.Run("larger device with identical prefix passes", func(t *testing.T) {
		// A real device is bigger than the image; only the source byte
		// range is read back.
		dev := writeTempFile(t, "dev", append(append([]byte{}, content...), 0xFF, 0xFF))
		ok, err := src.VerifyDevice(dev, false)
		if err != nil {
			t.Fatalf("verify: %v", err)
		}
		if !ok {
			t.Fatalf("copy with trailing device bytes failed verification")
		}
	})

	t.Run("corrupted copy fails", func(t *testing.T) {
		bad := append([]byte{}, content...)
		bad[100] ^= 0xFF
		dev := writeTempFile(t, "dev", bad)
		ok, err := src.VerifyDevice(dev, false)
		if err != nil {
			t.Fatalf("verify: %v", err)
		}
		if ok {
			t.Fatalf("corrupted copy passed verification")
		}
	})

	t.Run("short device errors", func(t *testing.T) {
		dev := writeTempFile(t, "dev", content[:1000])
		if _, err := src.VerifyDevice(dev, false); err == nil {
			t.Fatalf("expected short-read error")
		}
	})
}
