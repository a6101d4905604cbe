// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package fabric

import (
	"io"
	"os"
	"strings"

	"github.com/juju/errors"
	"github.com/pkg/sftp"
)

// Exists reports whether path exists on the remote host.
func Exists(files *sftp.Client, path string) (bool, error) {
	_, err := files.Stat(path)
	if err == nil {
		return true, nil
	} else if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, errors.Annotatef(err, "checking %s", path)
}

// AppendFile adds content to the end of a remote file, creating it with
// mode if needed. Nothing is written when the file already holds
// content. It reports whether the file was changed.
func AppendFile(files *sftp.Client, path, content string, mode os.FileMode) (bool, error) {
	existing, err := readFile(files, path)
	if err != nil {
		return false, errors.Trace(err)
	}
	if content == "" || strings.Contains(existing, strings.TrimRight(content, "\n")) {
		return false, nil
	}

	updated := existing
	if updated != "" && !strings.HasSuffix(updated, "\n") {
		updated += "\n"
	}
	updated += content
	if !strings.HasSuffix(updated, "\n") {
		updated += "\n"
	}

	f, err := files.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
	if err != nil {
		return false, errors.Annotatef(err, "opening %s", path)
	}
	if _, err := f.Write([]byte(updated)); err != nil {
		_ = f.Close()
		return false, errors.Annotatef(err, "writing %s", path)
	}
	if err := f.Close(); err != nil {
		return false, errors.Annotatef(err, "writing %s", path)
	}
	if existing == "" {
		if err := files.Chmod(path, mode); err != nil {
			return false, errors.Annotatef(err, "setting mode of %s", path)
		}
	}
	return true, nil
}

func readFile(files *sftp.Client, path string) (string, error) {
	f, err := files.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	} else if err != nil {
		return "", errors.Annotatef(err, "opening %s", path)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return "", errors.Annotatef(err, "reading %s", path)
	}
	return string(data), nil
}
