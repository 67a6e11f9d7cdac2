package main

import (
	"context"
	"testing"

	"github.com/spf13/afero"

	slicescan "github.com/ahrav/go-slicescan"
)

func TestParseDigestExamples(t *testing.T) {
	valid := []string{
		"d41d8cd98f00b204e9800998ecf8427e",
		"0123456789abcdef0123456789abcdef",
		"ffffffffffffffffffffffffffffffff",
	}
	for _, s := range valid {
		t.Run("valid_"+s[:8], func(t *testing.T) {
			d, err := slicescan.ParseDigest(s)
			if err != nil {
				t.Fatalf("Expected %s to parse, got error: %v", s, err)
			}
			if d.String() != s {
				t.Errorf("Round-trip failed: %s -> %s", s, d)
			}
		})
	}

	invalid := []struct {
		digest string
		reason string
	}{
		{"d41d8cd9", "too short"},
		{"d41d8cd98f00b204e9800998ecf8427e00", "too long"},
		{"g41d8cd98f00b204e9800998ecf8427e", "not hex"},
	}
	for _, tc := range invalid {
		t.Run("invalid_"+tc.reason, func(t *testing.T) {
			if _, err := slicescan.ParseDigest(tc.digest); err == nil {
				t.Errorf("Expected %q to be rejected (%s)", tc.digest, tc.reason)
			}
		})
	}
}

func TestExampleRecoversDamagedCopies(t *testing.T) {
	fsys := afero.NewMemMapFs()
	rs, err := createExampleSet(fsys)
	if err != nil {
		t.Fatalf("createExampleSet: %v", err)
	}
	if err := damageCopies(fsys); err != nil {
		t.Fatalf("damageCopies: %v", err)
	}

	s, err := slicescan.NewSession(rs, slicescan.WithOpener(slicescan.AferoOpener{Fs: fsys}))
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	defer s.Close()

	if _, err := s.VerifyFile(context.Background(), slicescan.Candidate{Path: "incoming/alpha.bin", Identity: 0}); err != nil {
		t.Fatalf("verify alpha: %v", err)
	}
	if _, err := s.VerifyFile(context.Background(), slicescan.Candidate{Path: "incoming/renamed.dat", Identity: slicescan.NoFile}); err != nil {
		t.Fatalf("verify renamed: %v", err)
	}

	// Every alpha block is present, one of them after repair. Beta lost
	// its last block to the truncation.
	alpha := rs.Files[0]
	for i := alpha.FirstBlock; i <= alpha.LastBlock(); i++ {
		if !s.Table().Get(i).State.Available() {
			t.Errorf("alpha block %d not found", i)
		}
	}
	beta := rs.Files[1]
	if got := s.Table().Get(beta.LastBlock()).State; got != slicescan.NotFound {
		t.Errorf("truncated beta block reported as %s", got)
	}
	if got := s.Table().Get(beta.FirstBlock).State; got != slicescan.FoundIntact {
		t.Errorf("beta first block state = %s, want found", got)
	}
}
