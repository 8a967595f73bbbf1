package transfer

import (
	"context"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// LocalFileHandler exchanges files with a local directory tree standing in
// for the transfer endpoint. This handler should only be used for local
// dev/testing now.
type LocalFileHandler struct {
	Logger  logrus.FieldLogger
	Root    string
	TempDir string
}

func (handler *LocalFileHandler) Upload(_ context.Context, folder, name string, data []byte) error {
	dir := filepath.Join(handler.Root, folder)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return errors.Wrapf(err, "could not create folder %s", dir)
	}

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0640); err != nil {
		return errors.Wrapf(err, "could not write file %s", path)
	}

	handler.Logger.Infof("Uploaded %s (%d bytes)", path, len(data))
	return nil
}

func (handler *LocalFileHandler) Download(_ context.Context, folder, name string) (string, error) {
	src := filepath.Join(handler.Root, folder, name)
	data, err := os.ReadFile(filepath.Clean(src))
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrFileNotFound
		}
		return "", errors.Wrapf(err, "could not read file %s", src)
	}

	dst := filepath.Join(handler.TempDir, name)
	if err := os.WriteFile(dst, data, 0640); err != nil {
		return "", errors.Wrapf(err, "could not write temp file %s", dst)
	}

	handler.Logger.Infof("Downloaded %s to %s (%d bytes)", src, dst, len(data))
	return dst, nil
}
