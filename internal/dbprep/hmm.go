package dbprep

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/trobanga/enzflow/internal/services"
)

// ensureProfileSubset returns the profile file hmmsearch should use and
// whether it is the gut subset. Any failure falls back to the full set.
func (p *Preparer) ensureProfileSubset(ctx context.Context, kos []string) (string, bool) {
	full := p.cfg.References.ProfilesPath()
	subset := filepath.Join(p.cfg.References.KofamDir, profileSubset)

	if isHMMFile(subset) {
		p.logger.Info("HMM profile subset found", "path", subset)
		return subset, true
	}
	if len(kos) == 0 {
		return full, false
	}
	if !services.FileHasData(full) {
		p.logger.Warn("Full HMM profile set not found", "path", full)
		return full, false
	}

	p.ensureHMMPress(ctx, full)

	if err := p.buildProfileSubset(ctx, full, subset); err != nil {
		p.logger.Warn("HMM subset build failed, using full profiles", "error", err)
		p.removeSubset(subset)
		return full, false
	}
	p.logger.Info("HMM profile subset created", "path", subset, "kos", len(kos))
	return subset, true
}

func (p *Preparer) buildProfileSubset(ctx context.Context, full, subset string) error {
	cmd := p.builder.HMMFetch(full, p.keyFilePath(), subset)
	if err := p.run(ctx, "hmmfetch", cmd, hmmFetchTimeout); err != nil {
		return err
	}
	if !isHMMFile(subset) {
		return fmt.Errorf("%s is not an HMMER3 profile file", subset)
	}
	return p.run(ctx, "hmmpress_subset", p.builder.HMMPress(subset), hmmPressTimeout)
}

// removeSubset deletes the subset and any index files hmmpress left behind
func (p *Preparer) removeSubset(subset string) {
	matches, err := doublestar.FilepathGlob(subset + "*")
	if err != nil {
		p.logger.Warn("Failed to list subset files", "error", err)
		return
	}
	for _, m := range matches {
		if err := os.Remove(m); err != nil && !os.IsNotExist(err) {
			p.logger.Warn("Failed to remove subset file", "path", m, "error", err)
		}
	}
}

// ensureHMMPress indexes profiles unless the .h3i index already exists
func (p *Preparer) ensureHMMPress(ctx context.Context, profiles string) {
	if !services.FileHasData(profiles) || services.FileHasData(profiles+".h3i") {
		return
	}
	if err := p.run(ctx, "hmmpress", p.builder.HMMPress(profiles), hmmPressTimeout); err != nil {
		p.logger.Warn("hmmpress failed", "profiles", profiles, "error", err)
	}
}

// isHMMFile reports whether path is non-empty and starts with an HMMER3 header
func isHMMFile(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		return false
	}
	return strings.Contains(scanner.Text(), "HMMER3")
}
