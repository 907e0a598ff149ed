package metadata

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/samber/oops"

	"github.com/vulnkit/vulnkit/pkg/utils"
)

const (
	metadataFile = "metadata.json"

	// SchemaVersion is bumped when the layout of normalized records changes.
	SchemaVersion = 1
)

// Metadata describes the last successful update of the normalized corpus.
type Metadata struct {
	Version    int `json:",omitempty"`
	Source     string
	Store      string
	Platforms  []string
	Advisories int
	NextUpdate time.Time
	UpdatedAt  time.Time
}

// Stale reports whether an update is due at now.
func (m Metadata) Stale(now time.Time) bool {
	return m.Version != SchemaVersion || !now.Before(m.NextUpdate)
}

// Client reads and writes the metadata file
type Client struct {
	filePath string
}

// NewClient is the factory method for the metadata Client
func NewClient(dataDir string) Client {
	return Client{
		filePath: Path(dataDir),
	}
}

func Path(dataDir string) string {
	return filepath.Join(dataDir, metadataFile)
}

// Get returns the file metadata
func (c Client) Get() (Metadata, error) {
	eb := oops.With("file_path", c.filePath)

	f, err := os.Open(c.filePath)
	if err != nil {
		return Metadata{}, eb.Wrapf(err, "file open error")
	}
	defer f.Close()

	var metadata Metadata
	if err = json.NewDecoder(f).Decode(&metadata); err != nil {
		return Metadata{}, eb.Wrapf(err, "json decode error")
	}
	return metadata, nil
}

func (c Client) Update(meta Metadata) error {
	if err := utils.WriteJSONFile(meta, c.filePath); err != nil {
		return oops.Wrapf(err, "metadata update error")
	}
	return nil
}

// Delete deletes the metadata file
func (c Client) Delete() error {
	if err := os.Remove(c.filePath); err != nil {
		return oops.With("file_path", c.filePath).Wrapf(err, "file remove error")
	}
	return nil
}
