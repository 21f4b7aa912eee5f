package processor

import (
	"fmt"
	"os"
	"path/filepath"

	"arstate/internal/media"
)

// WriteAssembly stores asm in dir under its suggested name and returns the
// final path. The file is written to a temporary name first and renamed into
// place, so a failed write never leaves a partial output behind.
func WriteAssembly(dir string, asm media.Assembly) (string, error) {
	if asm.Name == "" {
		return "", fmt.Errorf("assembly has no name")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	destPath := filepath.Join(dir, filepath.Base(asm.Name))

	tmpFile, err := os.CreateTemp(dir, "arstate-*.tmp")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmpFile.Name())

	if _, err := tmpFile.Write(asm.Data); err != nil {
		_ = tmpFile.Close()
		return "", err
	}
	if err := tmpFile.Sync(); err != nil {
		_ = tmpFile.Close()
		return "", err
	}
	if err := tmpFile.Close(); err != nil {
		return "", err
	}
	if err := os.Chmod(tmpFile.Name(), 0o644); err != nil {
		return "", err
	}

	if err := replaceFile(tmpFile.Name(), destPath); err != nil {
		return "", err
	}
	return destPath, nil
}

func replaceFile(tmpPath, destPath string) error {
	if err := os.Rename(tmpPath, destPath); err == nil {
		return nil
	}
	if err := os.Remove(destPath); err != nil && !os.IsNotExist(err) {
		return err
	}
	return os.Rename(tmpPath, destPath)
}
