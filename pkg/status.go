package pkg

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli"

	"github.com/vulnkit/vulnkit/pkg/normindex"
)

func status(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	meta, err := metadataClient(cfg).Get()
	if errors.Is(err, os.ErrNotExist) {
		fmt.Println("Never updated, run the update command first")
		return nil
	} else if err != nil {
		return err
	}

	s, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	idx, err := normindex.Open(s)
	if err != nil {
		return err
	}

	fmt.Printf("Source:      %s\n", meta.Source)
	fmt.Printf("Store:       %s (%s)\n", meta.Store, s.Location())
	fmt.Printf("Platforms:   %s\n", strings.Join(meta.Platforms, ", "))
	fmt.Printf("Advisories:  %d\n", idx.Len())
	fmt.Printf("Updated at:  %s\n", meta.UpdatedAt.Format(time.RFC3339))
	fmt.Printf("Next update: %s\n", meta.NextUpdate.Format(time.RFC3339))
	if meta.Stale(time.Now()) {
		fmt.Println("An update is due")
	}
	return nil
}
