// Package orchestrator wires the classifier, storage manager, and RPC client
// together into the three event flows an invocation can take: maintenance,
// torrent-added, and torrent-done.
package orchestrator

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/seedhook/seedhook/internal/apperr"
	"github.com/seedhook/seedhook/internal/classify"
	"github.com/seedhook/seedhook/internal/copyutil"
	"github.com/seedhook/seedhook/internal/fsutil"
	"github.com/seedhook/seedhook/internal/rpcclient"
	"github.com/seedhook/seedhook/internal/storage"
)

// Dests maps each category to its destination directory. DEFAULT must be
// set; callers normally fill empty entries with DEFAULT before constructing
// an Orchestrator, per spec.md §6's "others fall back to it when empty".
type Dests map[rpcclient.Category]string

// Config holds the policy knobs spec.md §6 assigns to the orchestrator.
type Config struct {
	Dests                 Dests
	RemovePublicOnComplete bool
	PublicUploadLimited    bool
	PublicUploadLimitKbps  int
	EnsureDoneRetries      int // default 20
}

// Orchestrator implements spec.md §4.H's three event flows.
type Orchestrator struct {
	client     *rpcclient.Client
	storage    *storage.Manager
	classifier *classify.Classifier
	cfg        Config
	log        *zap.Logger

	sleep func(time.Duration) // overridable in tests
}

// New builds an Orchestrator.
func New(client *rpcclient.Client, mgr *storage.Manager, classifier *classify.Classifier, cfg Config, log *zap.Logger) *Orchestrator {
	if cfg.EnsureDoneRetries <= 0 {
		cfg.EnsureDoneRetries = 20
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{
		client:     client,
		storage:    mgr,
		classifier: classifier,
		cfg:        cfg,
		log:        log,
		sleep:      time.Sleep,
	}
}

// Maintenance runs the no-event flow: cleanup, then a quota check with no
// torrent-specific adjustment.
func (o *Orchestrator) Maintenance(ctx context.Context) error {
	o.storage.Cleanup(ctx)
	return o.storage.ApplyQuotas(ctx, nil, nil)
}

// TorrentAdded runs the flow triggered right after a torrent starts
// downloading: optionally throttle public torrents, clean up, then apply
// quotas if the torrent landed inside seedDir (spec.md §4.H case 1).
func (o *Orchestrator) TorrentAdded(ctx context.Context, tid int64) error {
	list, err := o.client.TorrentGet(ctx, []string{"id", "isPrivate", "downloadDir", "name"}, rpcclient.ID(tid))
	if err != nil {
		return err
	}
	if len(list) == 0 {
		return apperr.Wrapf(apperr.ErrNotFound, "torrent %d", tid)
	}
	t := list[0]

	if o.cfg.PublicUploadLimited && !t.IsPrivate {
		fields := map[string]interface{}{
			"uploadLimit":   o.cfg.PublicUploadLimitKbps,
			"uploadLimited": true,
		}
		if err := o.client.TorrentSet(ctx, rpcclient.ID(tid), fields); err != nil {
			return err
		}
	}

	o.storage.Cleanup(ctx)

	seedDirTorrents, err := o.client.SeedDirTorrents(ctx)
	if err != nil {
		return err
	}
	if _, ok := seedDirTorrents[tid]; ok {
		added := true
		return o.storage.ApplyQuotas(ctx, &tid, &added)
	}
	return nil
}

// doneFields are requested for the torrent-done flow's initial fetch.
var doneFields = []string{"downloadDir", "files", "isPrivate", "name", "percentDone", "sizeWhenDone"}

// TorrentDone runs the completion flow: wait for the download to finish,
// categorize and copy (or relocate, or remove) per spec.md §4.H's four-case
// table.
func (o *Orchestrator) TorrentDone(ctx context.Context, tid int64) error {
	t, err := o.ensureTorrentDone(ctx, tid)
	if err != nil {
		return err
	}

	removeTorrent := o.cfg.RemovePublicOnComplete && !t.IsPrivate

	seedDir, err := o.client.SeedDir(ctx)
	if err != nil {
		return err
	}
	srcDir := t.DownloadDir
	srcInSeedDir := srcDir == seedDir
	if !srcInSeedDir {
		if real, err := fsutil.RealPath(srcDir); err == nil {
			srcDir = real
		}
		srcInSeedDir = fsutil.IsSubpath(srcDir, seedDir)
	}
	src := filepath.Join(srcDir, t.Name)

	var destDir string
	if srcInSeedDir {
		cat, err := o.classifier.Categorize(t.Files)
		if err != nil {
			return err
		}
		o.log.Info("categorized torrent", zap.String("name", t.Name), zap.String("category", string(cat)))
		destDir = o.cfg.Dests[cat]
		if destDir == "" {
			destDir = o.cfg.Dests[rpcclient.CategoryDefault]
		}
		if info, err := os.Stat(src); err != nil || !info.IsDir() {
			destDir = filepath.Join(destDir, stemOf(t.Name))
		}
	} else {
		destDir = seedDir
		if !removeTorrent {
			added := false
			if err := o.storage.ApplyQuotas(ctx, &tid, &added); err != nil {
				return err
			}
		}
	}

	if srcInSeedDir || !removeTorrent {
		dst := filepath.Join(destDir, t.Name)
		if err := os.MkdirAll(destDir, 0o755); err != nil {
			return apperr.Wrapf(err, "mkdir %q", destDir)
		}
		start := time.Now()
		if err := copyutil.Copy(src, dst); err != nil {
			return apperr.Wrapf(err, "copy %q -> %q", src, dst)
		}
		elapsed := time.Since(start)
		o.log.Info("copied torrent payload",
			zap.String("src", src), zap.String("dst", dst),
			zap.String("size", fsutil.HumanSize(t.SizeWhenDone)),
			zap.Duration("elapsed", elapsed))
	}

	switch {
	case removeTorrent:
		return o.client.TorrentRemove(ctx, rpcclient.ID(tid), srcInSeedDir)
	case !srcInSeedDir:
		return o.client.TorrentSetLocation(ctx, rpcclient.ID(tid), destDir, false)
	default:
		return nil
	}
}

func stemOf(name string) string {
	return name[:len(name)-len(path.Ext(name))]
}

// ensureTorrentDone polls percentDone until it reaches 1, per spec.md §4.H
// step 2; it fails with apperr.ErrTimeout after cfg.EnsureDoneRetries
// iterations.
func (o *Orchestrator) ensureTorrentDone(ctx context.Context, tid int64) (rpcclient.Torrent, error) {
	list, err := o.client.TorrentGet(ctx, doneFields, rpcclient.ID(tid))
	if err != nil {
		return rpcclient.Torrent{}, err
	}
	if len(list) == 0 {
		return rpcclient.Torrent{}, apperr.Wrapf(apperr.ErrNotFound, "torrent %d", tid)
	}
	t := list[0]

	retries := o.cfg.EnsureDoneRetries
	for t.PercentDone < 1 {
		if retries <= 0 {
			return rpcclient.Torrent{}, apperr.Wrapf(apperr.ErrTimeout, "torrent %d did not finish downloading", tid)
		}
		retries--
		o.sleep(3 * time.Second)
		refreshed, err := o.client.TorrentGet(ctx, []string{"percentDone"}, rpcclient.ID(tid))
		if err != nil {
			return rpcclient.Torrent{}, err
		}
		if len(refreshed) == 0 {
			return rpcclient.Torrent{}, apperr.Wrapf(apperr.ErrNotFound, "torrent %d", tid)
		}
		t.PercentDone = refreshed[0].PercentDone
	}
	return t, nil
}
