package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"github.com/vjranagit/histextract/internal/config"
	"github.com/vjranagit/histextract/pkg/storage"
	"github.com/vjranagit/histextract/pkg/types"
)

func importExport(ctx context.Context, cfg *config.Config, exportPath, storeDir string, log *logrus.Entry) error {
	var req types.ImportRequest
	if err := storage.ReadExport(exportPath, req.Add); err != nil {
		return err
	}
	log.Infof("Read %d steps, %d node sets, %d history outputs from %s",
		len(req.Steps), len(req.NodeSets), len(req.History), filepath.Base(exportPath))

	store, err := storage.NewStore(cfg.ToStorageConfig(storeDir))
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Import(ctx, &req); err != nil {
		return err
	}

	log.WithField("regions", store.RegionCount()).Infof("Imported into %s", storeDir)
	return nil
}

func exportStore(ctx context.Context, cfg *config.Config, storeDir, exportPath string, log *logrus.Entry) error {
	store, err := openExisting(cfg, storeDir)
	if err != nil {
		return err
	}
	defer store.Close()

	w, err := storage.NewExportWriter(exportPath)
	if err != nil {
		return err
	}
	if err := store.Export(ctx, w); err != nil {
		w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close export: %w", err)
	}

	fields := logrus.Fields{"regions": store.RegionCount()}
	if info, err := os.Stat(exportPath); err == nil {
		fields["size"] = humanize.Bytes(uint64(info.Size()))
	}
	log.WithFields(fields).Infof("Exported %s to %s", storeDir, exportPath)
	return nil
}

func storeInfo(cfg *config.Config, storeDir string, out io.Writer) error {
	store, err := openExisting(cfg, storeDir)
	if err != nil {
		return err
	}
	defer store.Close()

	steps := store.StepNames()
	fmt.Fprintf(out, "Store:   %s\n", storeDir)
	fmt.Fprintf(out, "Regions: %s\n", humanize.Comma(int64(store.RegionCount())))
	fmt.Fprintf(out, "Steps:   %d\n", len(steps))
	for _, step := range steps {
		fmt.Fprintf(out, "  %s\n", step)
	}

	fmt.Fprintln(out, "Node sets:")
	for _, inst := range store.InstanceNames() {
		names, err := store.NodeSetNames(inst)
		if err != nil {
			return err
		}
		for _, name := range names {
			ns, err := store.NodeSet(inst, name)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "  %s.%s (%d nodes)\n", inst, name, len(ns.Nodes))
		}
	}
	return nil
}

// openExisting opens a store without creating one at a mistyped path
func openExisting(cfg *config.Config, storeDir string) (*storage.Store, error) {
	if err := storage.CheckStoreDir(storeDir); err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	return storage.NewStore(cfg.ToStorageConfig(storeDir))
}
