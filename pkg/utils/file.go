package utils

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/samber/oops"
)

func Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return true, err
}

func UnmarshalJSONFile(v any, fileName string) error {
	eb := oops.With("file_name", fileName)

	f, err := os.Open(fileName)
	if err != nil {
		return eb.Wrapf(err, "file open error")
	}
	defer f.Close()

	if err = json.NewDecoder(f).Decode(v); err != nil {
		return eb.Code("json_decode_error").Wrapf(err, "json decode error")
	}
	return nil
}

// WriteJSONFile writes v to a temporary file next to fileName and renames it into place,
// so readers never observe a partially written file.
func WriteJSONFile(v any, fileName string) error {
	eb := oops.With("file_name", fileName)

	dir := filepath.Dir(fileName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eb.Wrapf(err, "mkdir error")
	}

	f, err := os.CreateTemp(dir, "."+filepath.Base(fileName)+".*")
	if err != nil {
		return eb.Wrapf(err, "temp file create error")
	}
	tmp := f.Name()
	defer os.Remove(tmp) // no-op after a successful rename

	e := json.NewEncoder(f)
	e.SetIndent("", "  ")
	if err = e.Encode(v); err != nil {
		f.Close()
		return eb.Wrapf(err, "json encode error")
	}
	if err = f.Sync(); err != nil {
		f.Close()
		return eb.Wrapf(err, "file sync error")
	}
	if err = f.Close(); err != nil {
		return eb.Wrapf(err, "file close error")
	}
	if err = os.Rename(tmp, fileName); err != nil {
		return eb.Wrapf(err, "rename error")
	}
	return nil
}
