package dbprep

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/trobanga/enzflow/internal/services"
)

// copyToRamdisk places the tier-1 index on the operator-mounted fast storage.
// Only gut_db.dmnd is accepted, and only when it fits within ramdisk.size_mb.
func (p *Preparer) copyToRamdisk(src string) (string, error) {
	rd := p.cfg.Ramdisk
	if filepath.Base(src) != gutDBPrefix+".dmnd" {
		return "", fmt.Errorf("refusing to copy %s: only the tier-1 database is allowed", src)
	}

	info, err := os.Stat(src)
	if err != nil {
		return "", err
	}
	if info.Size() == 0 {
		return "", fmt.Errorf("refusing to copy empty file %s", src)
	}
	limit := int64(rd.SizeMB) * 1024 * 1024
	if info.Size() > limit {
		return "", fmt.Errorf("%s is %d bytes, ramdisk allows %d MB", src, info.Size(), rd.SizeMB)
	}

	if err := checkWritableDir(rd.Path); err != nil {
		return "", err
	}

	dst := filepath.Join(rd.Path, filepath.Base(src))
	if services.FileHasData(dst) {
		p.logger.Info("Database already in ramdisk", "path", dst)
		return dst, nil
	}

	p.logger.Info("Copying database to ramdisk", "src", src, "dst", dst, "bytes", info.Size())
	in, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer func() { _ = in.Close() }()

	err = services.WriteAtomic(dst, func(w io.Writer) error {
		_, err := io.Copy(w, in)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("ramdisk copy failed: %w", err)
	}
	return dst, nil
}

func checkWritableDir(path string) error {
	if err := os.MkdirAll(path, 0755); err != nil {
		return fmt.Errorf("ramdisk path unavailable: %w", err)
	}
	probe := filepath.Join(path, ".write_test_"+uuid.New().String())
	f, err := os.Create(probe)
	if err != nil {
		return fmt.Errorf("ramdisk path is not writable: %w", err)
	}
	_ = f.Close()
	_ = os.Remove(probe)
	return nil
}
