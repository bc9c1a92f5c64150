/*
File Name:  Test_test.go
Copyright:  2021 Peernet s.r.o.
Author:     Peter Kleissner
*/

package transfer

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/hsha/lanshare/protocol"
)

func TestSanitizeRelativeNameRejectsEscapes(t *testing.T) {
	cases := []string{"../etc/passwd", "a/../../b", "/etc/passwd", `C:\Windows`, ""}
	for _, name := range cases {
		if err := sanitizeRelativeName(name); err != ErrUnsafeName {
			t.Fatalf("name %q: expected ErrUnsafeName, got %v", name, err)
		}
	}
}

func TestSanitizeRelativeNameAcceptsOrdinary(t *testing.T) {
	cases := []string{"a.bin", "dir/a.bin", "nested/dir/file.txt"}
	for _, name := range cases {
		if err := sanitizeRelativeName(name); err != nil {
			t.Fatalf("name %q: expected no error, got %v", name, err)
		}
	}
}

func TestCreatePartFileRetriesOnCollision(t *testing.T) {
	dir := t.TempDir()
	final := filepath.Join(dir, "a.bin")

	f1, part1, err := createPartFile(final)
	if err != nil {
		t.Fatalf("first create failed: %v", err)
	}
	f1.Close()

	f2, part2, err := createPartFile(final)
	if err != nil {
		t.Fatalf("second create failed: %v", err)
	}
	f2.Close()

	if part1 == part2 {
		t.Fatalf("expected distinct part paths on collision, got %q twice", part1)
	}
}

func TestFinishReceiveDoesNotOverwrite(t *testing.T) {
	dir := t.TempDir()
	final := filepath.Join(dir, "a.bin")
	if err := os.WriteFile(final, []byte("original"), 0o644); err != nil {
		t.Fatal(err)
	}

	part := final + ".part"
	if err := os.WriteFile(part, []byte("incoming"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := finishReceive(part); err != nil {
		t.Fatalf("finishReceive returned error: %v", err)
	}

	got, err := os.ReadFile(final)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "original" {
		t.Fatalf("existing file was overwritten: got %q", got)
	}
	if _, err := os.Stat(part); err != nil {
		t.Fatalf("expected .part to remain in place: %v", err)
	}
}

func TestCreateBatchDirRetriesOnCollision(t *testing.T) {
	root := t.TempDir()
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	dir1, err := createBatchDir(root, now)
	if err != nil {
		t.Fatalf("first batch dir failed: %v", err)
	}
	dir2, err := createBatchDir(root, now)
	if err != nil {
		t.Fatalf("second batch dir failed: %v", err)
	}
	if dir1 == dir2 {
		t.Fatalf("expected distinct batch directories on collision, got %q twice", dir1)
	}
}

func TestRecvStateSingleFileRoundTrip(t *testing.T) {
	root := t.TempDir()
	progress := newProgressTracker(nil)
	r := newRecvState(root, progress, nil)

	content := []byte("the quick brown fox jumps over the lazy dog")
	sum := blake2b.Sum256(content)

	header := protocol.SendFileHeader{Name: "fox.txt", Size: uint64(len(content))}
	headerRecord := append(protocol.EncodeHeader(protocol.Header{StreamID: protocol.FileStreamID, Type: protocol.StreamTypeHeader}), header.Encode()...)
	if err := r.handleRecord(headerRecord); err != nil {
		t.Fatalf("header record failed: %v", err)
	}

	dataRecord := append(protocol.EncodeHeader(protocol.Header{StreamID: protocol.FileStreamID, Type: protocol.StreamTypeData}), content...)
	if err := r.handleRecord(dataRecord); err != nil {
		t.Fatalf("data record failed: %v", err)
	}

	trailer := protocol.SendFileTrailer{Checksum: sum}
	trailerRecord := append(protocol.EncodeHeader(protocol.Header{StreamID: protocol.FileStreamID, Type: protocol.StreamTypeTrailer}), trailer.Encode()...)
	if err := r.handleRecord(trailerRecord); err != nil {
		t.Fatalf("trailer record failed: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(root, "fox.txt"))
	if err != nil {
		t.Fatalf("final file missing: %v", err)
	}
	if string(got) != string(content) {
		t.Fatalf("content mismatch: got %q", got)
	}
	if _, err := os.Stat(filepath.Join(root, "fox.txt.part")); !os.IsNotExist(err) {
		t.Fatalf("expected .part file to be gone after successful rename")
	}
}

func TestRecvStateCorruptedTrailerLeavesPartFile(t *testing.T) {
	root := t.TempDir()
	progress := newProgressTracker(nil)
	r := newRecvState(root, progress, nil)

	content := []byte("data that will not match the trailer checksum")
	header := protocol.SendFileHeader{Name: "bad.bin", Size: uint64(len(content))}
	headerRecord := append(protocol.EncodeHeader(protocol.Header{StreamID: protocol.FileStreamID, Type: protocol.StreamTypeHeader}), header.Encode()...)
	r.handleRecord(headerRecord)

	dataRecord := append(protocol.EncodeHeader(protocol.Header{StreamID: protocol.FileStreamID, Type: protocol.StreamTypeData}), content...)
	r.handleRecord(dataRecord)

	var wrongChecksum [32]byte
	wrongChecksum[0] = 0xFF
	trailer := protocol.SendFileTrailer{Checksum: wrongChecksum}
	trailerRecord := append(protocol.EncodeHeader(protocol.Header{StreamID: protocol.FileStreamID, Type: protocol.StreamTypeTrailer}), trailer.Encode()...)
	if err := r.handleRecord(trailerRecord); err != nil {
		t.Fatalf("unexpected error on mismatched checksum: %v", err)
	}

	if _, err := os.Stat(filepath.Join(root, "bad.bin")); !os.IsNotExist(err) {
		t.Fatalf("final file must not be created on checksum mismatch")
	}
	if _, err := os.Stat(filepath.Join(root, "bad.bin.part")); err != nil {
		t.Fatalf("expected .part file to remain for diagnosis: %v", err)
	}
}
