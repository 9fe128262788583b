// Command download fetches the Python interpreter module once and verifies
// its digest.
package main

import (
	"crypto/sha256"
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

func main() {
	digest := flag.String("sha256", "", "Expected hex SHA-256 of the downloaded file")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: download [-sha256 digest] <url> <output>")
	}
	flag.Parse()

	if flag.NArg() != 2 {
		flag.Usage()
		os.Exit(1)
	}
	url, output := flag.Arg(0), flag.Arg(1)

	if _, err := os.Stat(output); err == nil {
		if err := verify(output, *digest); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	if err := fetch(url, output, *digest); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// fetch downloads url into a temporary file next to output and renames it
// into place only once the digest matches.
func fetch(url, output, digest string) error {
	resp, err := http.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed: %s", resp.Status)
	}

	tmp, err := os.CreateTemp(filepath.Dir(output), ".download-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	h := sha256.New()
	if _, err := io.Copy(io.MultiWriter(tmp, h), resp.Body); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := match(h.Sum(nil), digest); err != nil {
		return fmt.Errorf("%s: %w", url, err)
	}
	return os.Rename(tmp.Name(), output)
}

func verify(path, digest string) error {
	if digest == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return err
	}
	if err := match(h.Sum(nil), digest); err != nil {
		return fmt.Errorf("%s: %w (delete it to download again)", path, err)
	}
	return nil
}

func match(sum []byte, digest string) error {
	if digest == "" {
		return nil
	}
	got := hex.EncodeToString(sum)
	if !strings.EqualFold(got, digest) {
		return fmt.Errorf("sha256 mismatch: got %s, want %s", got, digest)
	}
	return nil
}

