// Command seedhook is the post-action hook invoked by a Transmission-style
// JSON-RPC torrent daemon: as "script-torrent-added" when a torrent starts
// downloading, as "script-torrent-done" when one finishes, or bare (no
// TR_TORRENT_ID) for a periodic maintenance sweep.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/seedhook/seedhook/internal/apperr"
	"github.com/seedhook/seedhook/internal/classify"
	"github.com/seedhook/seedhook/internal/config"
	"github.com/seedhook/seedhook/internal/lock"
	"github.com/seedhook/seedhook/internal/logging"
	"github.com/seedhook/seedhook/internal/orchestrator"
	"github.com/seedhook/seedhook/internal/patterns"
	"github.com/seedhook/seedhook/internal/rpcclient"
	"github.com/seedhook/seedhook/internal/storage"
)

const pkgName = "seedhook"

func main() {
	os.Exit(run())
}

func run() int {
	configDir := flag.String("config-dir", defaultConfigDir(), "directory holding config.json and patterns.json")
	added := flag.Bool("added", false, "run in script-torrent-added mode instead of script-torrent-done")
	flag.Parse()

	cfg, err := config.Load(filepath.Join(*configDir, "config.json"))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	log, cleanup, err := logging.New(filepath.Join(*configDir, "logfile.log"), cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer cleanup()

	flk := lock.New(filepath.Join(os.TempDir(), pkgName+".lock"))
	ctx := context.Background()
	if err := flk.Acquire(ctx); err != nil {
		log.Error("cannot acquire process lock", zap.Error(err))
		return 1
	}
	defer flk.Release()

	start := time.Now()
	if err := dispatch(ctx, *configDir, *added, cfg, log); err != nil {
		log.Error("error processing torrent",
			zap.String("name", os.Getenv("TR_TORRENT_NAME")),
			zap.Error(err))
		return 1
	}
	log.Debug("execution completed", zap.Duration("elapsed", time.Since(start)))
	return 0
}

func dispatch(ctx context.Context, configDir string, added bool, cfg *config.Config, log *zap.Logger) error {
	client := rpcclient.New(rpcclient.Config{
		Port:     cfg.RPCPort,
		Path:     cfg.RPCPath,
		Username: cfg.RPCUsername,
		Password: cfg.RPCPassword,
		SeedDir:  cfg.SeedDir,
		Logger:   log,
	})
	mgr := storage.New(client, cfg.SeedDirPurge, cfg.SeedDirQuotaBytes(), cfg.SeedDirReserveBytes(), cfg.WatchDir, log)

	tidEnv, ok := os.LookupEnv("TR_TORRENT_ID")
	if !ok {
		log.Debug("invoked without a torrent id, performing maintenance")
		orch := orchestrator.New(client, mgr, nil, orchestrator.Config{}, log)
		return orch.Maintenance(ctx)
	}

	tid, err := strconv.ParseInt(tidEnv, 10, 64)
	if err != nil {
		return apperr.Wrapf(apperr.ErrConfig, "invalid TR_TORRENT_ID %q", tidEnv)
	}

	table, err := patterns.Load(filepath.Join(configDir, "patterns.json"))
	if err != nil {
		return err
	}
	classifier := classify.New(table)

	orch := orchestrator.New(client, mgr, classifier, orchestrator.Config{
		Dests: orchestrator.Dests{
			rpcclient.CategoryDefault: cfg.DestDirDefault,
			rpcclient.CategoryMovies:  cfg.DestDirMovies,
			rpcclient.CategoryTVShows: cfg.DestDirTVShows,
			rpcclient.CategoryMusic:   cfg.DestDirMusic,
			rpcclient.CategoryAV:      cfg.DestDirAV,
		},
		RemovePublicOnComplete: cfg.RemovePublicOnComplete,
		PublicUploadLimited:    cfg.PublicUploadLimited,
		PublicUploadLimitKbps:  cfg.PublicUploadLimitKbps,
	}, log)

	log.Debug("triggered", zap.Bool("added", added), zap.Int64("torrentID", tid))
	if added {
		return orch.TorrentAdded(ctx, tid)
	}
	return orch.TorrentDone(ctx, tid)
}

// defaultConfigDir resolves to the directory holding the running binary,
// matching spec.md's "colocated with the binary" default for patterns.json
// and config.json alike.
func defaultConfigDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}
