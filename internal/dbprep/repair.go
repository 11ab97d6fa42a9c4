package dbprep

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/trobanga/enzflow/internal/lib"
	"github.com/trobanga/enzflow/internal/services"
)

var corruptionMarkers = []string{
	"Unexpected end of input",
	"No such file",
}

// NeedsRepair reports whether tool output points at a damaged full database
func NeedsRepair(output string) bool {
	for _, m := range corruptionMarkers {
		if strings.Contains(output, m) {
			return true
		}
	}
	return false
}

// Repair restores the full reference database. It runs at most once per
// process; later calls return the first attempt's result.
func (p *Preparer) Repair(ctx context.Context) error {
	p.repairMu.Lock()
	defer p.repairMu.Unlock()

	if p.repairDone {
		return p.repairErr
	}
	p.repairDone = true
	p.repairErr = p.repair(ctx)
	if p.repairErr == nil {
		p.mu.Lock()
		if p.paths != nil {
			p.paths.FullDBPresent = true
		}
		p.mu.Unlock()
	}
	return p.repairErr
}

func (p *Preparer) repair(ctx context.Context) error {
	db := p.cfg.References.FullDiamondDB()
	manual := p.ManualRepairCommand()

	gz := db + ".gz"
	if services.FileHasData(gz) {
		p.logger.Warn("Decompressing reference database", "archive", gz)
		if err := p.run(ctx, "gunzip", p.builder.Gunzip(gz), gunzipTimeout); err != nil {
			return lib.ErrReferenceCorrupted(db, manual, err)
		}
		if !services.FileHasData(db) {
			return lib.ErrReferenceCorrupted(db, manual, fmt.Errorf("%s did not produce %s", gz, db))
		}
		return nil
	}

	if _, err := os.Stat(db); err == nil {
		if err := os.Rename(db, db+".corrupted"); err != nil {
			p.logger.Warn("Failed to move damaged database aside", "path", db, "error", err)
		}
	}

	p.logger.Warn("Downloading reference database", "dir", p.cfg.References.EggnogDir)
	cmd := p.builder.DownloadEggnog(p.cfg.References.EggnogDir)
	if err := p.run(ctx, "download_eggnog", cmd, downloadTimeout); err != nil {
		return lib.ErrReferenceCorrupted(db, manual, err)
	}
	if !services.FileHasData(db) {
		return lib.ErrReferenceCorrupted(db, manual, fmt.Errorf("download finished without %s", db))
	}
	return nil
}
