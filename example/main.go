package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"log"

	"github.com/spf13/afero"

	slicescan "github.com/ahrav/go-slicescan"
)

const blockSize = 4096

func main() {
	fmt.Println("=== Slice Scan Example ===")
	fmt.Println()

	// Demonstrate ParseDigest with various digest strings.
	demonstrateParseDigest()
	fmt.Println()

	fsys := afero.NewMemMapFs()
	rs, err := createExampleSet(fsys)
	if err != nil {
		log.Fatal("Failed to describe example files:", err)
	}
	fmt.Printf("Recovery set: %d files, %d blocks of %d bytes\n", len(rs.Files), len(rs.Blocks), rs.BlockSize)
	fmt.Println()

	if err := damageCopies(fsys); err != nil {
		log.Fatal("Failed to prepare damaged copies:", err)
	}

	demonstrateSession(fsys, rs)
}

// demonstrateParseDigest shows how to use ParseDigest with different inputs.
func demonstrateParseDigest() {
	fmt.Println("--- ParseDigest Examples ---")

	examples := []struct {
		name  string
		input string
		valid bool
	}{
		{name: "MD5 of an empty block", input: "d41d8cd98f00b204e9800998ecf8427e", valid: true},
		{name: "Upper-case hex", input: "D41D8CD98F00B204E9800998ECF8427E", valid: true},
		{name: "Invalid - too short", input: "d41d8cd98f00", valid: false},
		{name: "Invalid - non-hex characters", input: "z41d8cd98f00b204e9800998ecf8427e", valid: false},
	}

	for _, example := range examples {
		d, err := slicescan.ParseDigest(example.input)
		switch {
		case example.valid && err == nil:
			fmt.Printf("  ok       %-30s %s\n", example.name, d)
		case !example.valid && err != nil:
			fmt.Printf("  rejected %-30s %v\n", example.name, err)
		default:
			fmt.Printf("  UNEXPECTED %-28s err=%v\n", example.name, err)
		}
	}
}

// createExampleSet writes two random files and describes them.
func createExampleSet(fsys afero.Fs) (*slicescan.RecoverySet, error) {
	sizes := map[string]int{
		"data/alpha.bin": 10*blockSize + 123,
		"data/beta.bin":  3 * blockSize,
	}
	names := []string{"data/alpha.bin", "data/beta.bin"}
	for _, name := range names {
		buf := make([]byte, sizes[name])
		if _, err := rand.Read(buf); err != nil {
			return nil, err
		}
		if err := afero.WriteFile(fsys, name, buf, 0o644); err != nil {
			return nil, err
		}
	}
	return slicescan.Describe(context.Background(), fsys, names, blockSize)
}

// damageCopies produces the candidates: alpha with 17 bytes inserted at
// the front and one flipped byte, beta renamed and truncated.
func damageCopies(fsys afero.Fs) error {
	alpha, err := afero.ReadFile(fsys, "data/alpha.bin")
	if err != nil {
		return err
	}
	shifted := append(make([]byte, 17), alpha...)
	shifted[17+5*blockSize+99] ^= 0x40
	if err := afero.WriteFile(fsys, "incoming/alpha.bin", shifted, 0o644); err != nil {
		return err
	}

	beta, err := afero.ReadFile(fsys, "data/beta.bin")
	if err != nil {
		return err
	}
	return afero.WriteFile(fsys, "incoming/renamed.dat", beta[:2*blockSize+10], 0o644)
}

// demonstrateSession verifies the damaged copies.
func demonstrateSession(fsys afero.Fs, rs *slicescan.RecoverySet) {
	fmt.Println("--- Verification ---")

	s, err := slicescan.NewSession(rs, slicescan.WithOpener(slicescan.AferoOpener{Fs: fsys}))
	if err != nil {
		log.Fatal("Failed to create session:", err)
	}
	defer s.Close()

	cands := []slicescan.Candidate{
		{Path: "incoming/alpha.bin", Identity: 0},
		{Path: "incoming/renamed.dat", Identity: slicescan.NoFile},
	}
	for _, c := range cands {
		rep, err := s.VerifyFile(context.Background(), c)
		if err != nil {
			log.Fatalf("Failed to verify %s: %v", c.Path, err)
		}
		fmt.Printf("%s (modes %v)\n", c.Path, rep.Modes)
		for _, h := range rep.Hits {
			line := fmt.Sprintf("  block %2d at %6d by %s", h.Block, h.Offset, h.Method)
			if h.Correction != nil {
				line += " (" + h.Correction.String() + ")"
			}
			fmt.Println(line)
		}
	}

	t := s.Table()
	fmt.Printf("\nAvailable: %d of %d blocks\n", t.Available(), t.Len())
	for _, i := range t.Missing() {
		fmt.Printf("  missing block %d\n", i)
	}
}
