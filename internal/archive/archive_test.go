package archive

import (
	"archive/tar"
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/ulikunitz/xz"
)

var defaultOptions = Options{
	AlternatePrefixes: []string{"gcc-arm-none-eabi-", "arm_none_eabi_gcc_"},
}

type tarEntry struct {
	name     string
	body     string
	mode     int64
	typeflag byte
	linkname string
}

func writeTarXz(t *testing.T, path string, entries []tarEntry) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("creating %s: %v", path, err)
	}
	defer f.Close()

	xw, err := xz.NewWriter(f)
	if err != nil {
		t.Fatalf("xz writer: %v", err)
	}
	tw := tar.NewWriter(xw)
	for _, e := range entries {
		hdr := &tar.Header{Name: e.name, Mode: e.mode, Typeflag: e.typeflag, Linkname: e.linkname}
		if e.typeflag == tar.TypeReg {
			hdr.Size = int64(len(e.body))
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("writing header %s: %v", e.name, err)
		}
		if e.body != "" {
			if _, err := tw.Write([]byte(e.body)); err != nil {
				t.Fatalf("writing %s: %v", e.name, err)
			}
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := xw.Close(); err != nil {
		t.Fatal(err)
	}
}

func writeZip(t *testing.T, path string, files map[string]string, perm os.FileMode) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("creating %s: %v", path, err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	for name, body := range files {
		hdr := &zip.FileHeader{Name: name, Method: zip.Deflate}
		hdr.SetMode(perm)
		w, err := zw.CreateHeader(hdr)
		if err != nil {
			t.Fatalf("adding %s: %v", name, err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
}

func toolchainTar(top string) []tarEntry {
	return []tarEntry{
		{name: top + "/", mode: 0o755, typeflag: tar.TypeDir},
		{name: top + "/bin/", mode: 0o755, typeflag: tar.TypeDir},
		{name: top + "/bin/arm-none-eabi-gcc", body: "#!/bin/sh\n", mode: 0o755, typeflag: tar.TypeReg},
		{name: top + "/bin/arm-none-eabi-cc", typeflag: tar.TypeSymlink, linkname: "arm-none-eabi-gcc"},
		{name: top + "/share/readme.txt", body: "docs", mode: 0o644, typeflag: tar.TypeReg},
	}
}

func TestUnpackTarXz(t *testing.T) {
	downloads, dest := t.TempDir(), t.TempDir()
	top := "arm-gnu-toolchain-14.2.rel1-x86_64-arm-none-eabi"
	archivePath := filepath.Join(downloads, top+".tar.xz")
	writeTarXz(t, archivePath, toolchainTar(top))

	dir, err := Unpack(archivePath, dest, defaultOptions)
	if err != nil {
		t.Fatalf("Unpack failed: %v", err)
	}
	if filepath.Base(dir) != top {
		t.Errorf("expected folder %s, got %s", top, dir)
	}

	info, err := os.Stat(filepath.Join(dir, "bin", "arm-none-eabi-gcc"))
	if err != nil {
		t.Fatalf("missing extracted binary: %v", err)
	}
	if info.Mode().Perm() != 0o755 {
		t.Errorf("expected mode 0755, got %v", info.Mode().Perm())
	}
	link, err := os.Readlink(filepath.Join(dir, "bin", "arm-none-eabi-cc"))
	if err != nil || link != "arm-none-eabi-gcc" {
		t.Errorf("expected symlink to arm-none-eabi-gcc, got %q (%v)", link, err)
	}

	// unpacking again must not merge into the existing folder
	_, err = Unpack(archivePath, dest, defaultOptions)
	if !errors.Is(err, ErrExtractedFolderExists) {
		t.Errorf("expected ErrExtractedFolderExists, got %v", err)
	}
}

func TestUnpackTarBz2(t *testing.T) {
	dest := t.TempDir()
	archivePath := filepath.Join("testdata", "gcc-arm-none-eabi-9-2019-q4-major-x86_64-linux.tar.bz2")

	dir, err := Unpack(archivePath, dest, defaultOptions)
	if err != nil {
		t.Fatalf("Unpack failed: %v", err)
	}
	if filepath.Base(dir) != "gcc-arm-none-eabi-9-2019-q4-major" {
		t.Errorf("unexpected folder %s", dir)
	}
	if _, err := os.Stat(filepath.Join(dir, "bin", "arm-none-eabi-gcc")); err != nil {
		t.Errorf("missing extracted binary: %v", err)
	}
	if _, err := os.Lstat(filepath.Join(dir, "bin", "arm-none-eabi-cc")); err != nil {
		t.Errorf("missing extracted symlink: %v", err)
	}
}

func TestUnpackZip(t *testing.T) {
	downloads, dest := t.TempDir(), t.TempDir()
	top := "gcc-arm-none-eabi-10.3-2021.10"
	archivePath := filepath.Join(downloads, top+"-win32.zip")
	writeZip(t, archivePath, map[string]string{
		top + "/bin/arm-none-eabi-gcc.exe": "MZ",
		top + "/bin/arm-none-eabi-gdb.exe": "MZ",
	}, 0o755)

	dir, err := Unpack(archivePath, dest, defaultOptions)
	if err != nil {
		t.Fatalf("Unpack failed: %v", err)
	}
	if filepath.Base(dir) != top {
		t.Errorf("expected folder %s, got %s", top, dir)
	}
	if _, err := os.Stat(filepath.Join(dir, "bin", "arm-none-eabi-gdb.exe")); err != nil {
		t.Errorf("missing extracted binary: %v", err)
	}
}

func TestUnpackHeaderlessZip(t *testing.T) {
	downloads, dest := t.TempDir(), t.TempDir()
	name := "gcc-arm-none-eabi-9-2020-q2-update-win32.zip"
	archivePath := filepath.Join(downloads, name)
	writeZip(t, archivePath, map[string]string{
		"bin/arm-none-eabi-gcc.exe": "MZ",
		"lib/libc.a":                "!<arch>",
	}, 0o755)

	opts := defaultOptions
	opts.Headerless = []string{name}
	dir, err := Unpack(archivePath, dest, opts)
	if err != nil {
		t.Fatalf("Unpack failed: %v", err)
	}
	if want := strings.TrimSuffix(name, ".zip"); filepath.Base(dir) != want {
		t.Errorf("expected synthesized folder %s, got %s", want, dir)
	}
	if _, err := os.Stat(filepath.Join(dir, "bin", "arm-none-eabi-gcc.exe")); err != nil {
		t.Errorf("missing extracted binary: %v", err)
	}
}

func TestUnpackFolderNotFound(t *testing.T) {
	downloads, dest := t.TempDir(), t.TempDir()
	archivePath := filepath.Join(downloads, "toolchain-1.0.zip")
	writeZip(t, archivePath, map[string]string{"bin/tool": "x"}, 0o755)

	_, err := Unpack(archivePath, dest, defaultOptions)
	if !errors.Is(err, ErrExtractedFolderNotFound) {
		t.Errorf("expected ErrExtractedFolderNotFound, got %v", err)
	}
}

func TestUnpackPreconditions(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "arm-toolchain.tar.gz")
	if err := os.WriteFile(archivePath, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		archive string
		dest    string
		want    error
	}{
		{"missing destination", archivePath, filepath.Join(dir, "nope"), ErrDestinationNotFound},
		{"missing archive", filepath.Join(dir, "missing.zip"), dir, ErrArchiveNotFound},
		{"unsupported format", archivePath, t.TempDir(), ErrUnsupportedArchiveFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Unpack(tt.archive, tt.dest, defaultOptions)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestUnpackAlternatePrefixExists(t *testing.T) {
	downloads, dest := t.TempDir(), t.TempDir()
	if err := os.Mkdir(filepath.Join(dest, "arm_none_eabi_gcc_old"), 0o755); err != nil {
		t.Fatal(err)
	}
	archivePath := filepath.Join(downloads, "xpack-toolchain.tar.xz")
	writeTarXz(t, archivePath, toolchainTar("xpack-toolchain"))

	_, err := Unpack(archivePath, dest, defaultOptions)
	if !errors.Is(err, ErrExtractedFolderExists) {
		t.Errorf("expected ErrExtractedFolderExists, got %v", err)
	}
}

func TestUnpackRejectsTraversal(t *testing.T) {
	tests := map[string][]tarEntry{
		"dotdot": {
			{name: "arm-evil/", mode: 0o755, typeflag: tar.TypeDir},
			{name: "arm-evil/../../escape.txt", body: "x", mode: 0o644, typeflag: tar.TypeReg},
		},
		"absolute symlink": {
			{name: "arm-evil/", mode: 0o755, typeflag: tar.TypeDir},
			{name: "arm-evil/passwd", typeflag: tar.TypeSymlink, linkname: "/etc/passwd"},
		},
		"escaping symlink": {
			{name: "arm-evil/", mode: 0o755, typeflag: tar.TypeDir},
			{name: "arm-evil/up", typeflag: tar.TypeSymlink, linkname: "../../.."},
		},
	}
	for name, entries := range tests {
		t.Run(name, func(t *testing.T) {
			downloads, dest := t.TempDir(), t.TempDir()
			archivePath := filepath.Join(downloads, "arm-evil.tar.xz")
			writeTarXz(t, archivePath, entries)

			_, err := Unpack(archivePath, dest, defaultOptions)
			if !errors.Is(err, ErrUnsafeArchivePath) {
				t.Errorf("expected ErrUnsafeArchivePath, got %v", err)
			}
		})
	}
}

func TestUnpackRejectsSymlinkChain(t *testing.T) {
	base := t.TempDir()
	downloads, dest := filepath.Join(base, "downloads"), filepath.Join(base, "dest")
	for _, dir := range []string{downloads, dest} {
		if err := os.Mkdir(dir, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	archivePath := filepath.Join(downloads, "arm-evil.tar.xz")
	writeTarXz(t, archivePath, []tarEntry{
		{name: "arm-evil/", mode: 0o755, typeflag: tar.TypeDir},
		{name: "arm-evil/sub/", mode: 0o755, typeflag: tar.TypeDir},
		// each link stays inside the folder when read as text
		{name: "arm-evil/sub/s", typeflag: tar.TypeSymlink, linkname: ".."},
		{name: "arm-evil/t", typeflag: tar.TypeSymlink, linkname: "sub/s/../.."},
		{name: "arm-evil/t/escaped.txt", body: "x", mode: 0o644, typeflag: tar.TypeReg},
	})

	_, err := Unpack(archivePath, dest, defaultOptions)
	if !errors.Is(err, ErrUnsafeArchivePath) {
		t.Errorf("expected ErrUnsafeArchivePath, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(base, "escaped.txt")); !os.IsNotExist(err) {
		t.Errorf("file written outside the destination, stat err = %v", err)
	}
}

func TestUntarRejectsWriteThroughEscapingSymlink(t *testing.T) {
	base := t.TempDir()
	dest := filepath.Join(base, "dest")
	if err := os.Mkdir(dest, 0o755); err != nil {
		t.Fatal(err)
	}
	// a symlink already on disk that points out of the destination
	if err := os.Symlink(base, filepath.Join(dest, "out")); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	body := "x"
	if err := tw.WriteHeader(&tar.Header{Name: "out/escaped.txt", Mode: 0o644, Size: int64(len(body)), Typeflag: tar.TypeReg}); err != nil {
		t.Fatal(err)
	}
	if _, err := tw.Write([]byte(body)); err != nil {
		t.Fatal(err)
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}

	if err := untarStream(&buf, dest); !errors.Is(err, ErrUnsafeArchivePath) {
		t.Errorf("expected ErrUnsafeArchivePath, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(base, "escaped.txt")); !os.IsNotExist(err) {
		t.Errorf("file written outside the destination, stat err = %v", err)
	}
}

func TestUnpackFollowsInternalSymlinkFolder(t *testing.T) {
	downloads, dest := t.TempDir(), t.TempDir()
	top := "arm-gnu-toolchain-13.2.rel1-x86_64-arm-none-eabi"
	archivePath := filepath.Join(downloads, top+".tar.xz")
	writeTarXz(t, archivePath, []tarEntry{
		{name: top + "/", mode: 0o755, typeflag: tar.TypeDir},
		{name: top + "/lib/", mode: 0o755, typeflag: tar.TypeDir},
		{name: top + "/lib64", typeflag: tar.TypeSymlink, linkname: "lib"},
		{name: top + "/lib64/libfoo.a", body: "!<arch>", mode: 0o644, typeflag: tar.TypeReg},
		{name: top + "/bin/arm-none-eabi-gcc", body: "#!/bin/sh\n", mode: 0o755, typeflag: tar.TypeReg},
	})

	dir, err := Unpack(archivePath, dest, defaultOptions)
	if err != nil {
		t.Fatalf("Unpack failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "lib", "libfoo.a")); err != nil {
		t.Errorf("file behind an internal symlink not extracted: %v", err)
	}
}

func TestUnpackDropsGroupAndOtherWrite(t *testing.T) {
	downloads, dest := t.TempDir(), t.TempDir()
	top := "gcc-arm-none-eabi-10.3-2021.10"
	archivePath := filepath.Join(downloads, top+"-win32.zip")
	writeZip(t, archivePath, map[string]string{
		top + "/bin/arm-none-eabi-gcc.exe": "MZ",
	}, 0o666)

	dir, err := Unpack(archivePath, dest, defaultOptions)
	if err != nil {
		t.Fatalf("Unpack failed: %v", err)
	}
	info, err := os.Stat(filepath.Join(dir, "bin", "arm-none-eabi-gcc.exe"))
	if err != nil {
		t.Fatalf("missing extracted binary: %v", err)
	}
	if info.Mode().Perm() != 0o644 {
		t.Errorf("expected mode 0644, got %v", info.Mode().Perm())
	}
}
