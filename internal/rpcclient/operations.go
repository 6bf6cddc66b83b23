package rpcclient

import (
	"context"
	"encoding/json"

	"github.com/seedhook/seedhook/internal/apperr"
	"github.com/seedhook/seedhook/internal/fsutil"
)

// TorrentGet requests fields for the torrents selected by ids.
func (c *Client) TorrentGet(ctx context.Context, fields []string, ids IDs) ([]Torrent, error) {
	raw, err := c.call(ctx, "torrent-get", map[string]interface{}{"fields": fields}, &ids)
	if err != nil {
		return nil, err
	}
	var body struct {
		Torrents []Torrent `json:"torrents"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, apperr.Wrap(err, "decode torrent-get response")
	}
	return body.Torrents, nil
}

// TorrentRemove removes the given torrents, invalidating the snapshot cache.
func (c *Client) TorrentRemove(ctx context.Context, ids IDs, deleteLocalData bool) error {
	_, err := c.call(ctx, "torrent-remove", map[string]interface{}{"delete-local-data": deleteLocalData}, &ids)
	if err != nil {
		return err
	}
	c.invalidateSnapshot()
	return nil
}

// TorrentSetLocation rebinds ids to location, invalidating the snapshot
// cache.
func (c *Client) TorrentSetLocation(ctx context.Context, ids IDs, location string, move bool) error {
	_, err := c.call(ctx, "torrent-set-location", map[string]interface{}{"location": location, "move": move}, &ids)
	if err != nil {
		return err
	}
	c.invalidateSnapshot()
	return nil
}

// TorrentSet applies mutable fields (in particular uploadLimit/uploadLimited)
// to the given torrents.
func (c *Client) TorrentSet(ctx context.Context, ids IDs, fields map[string]interface{}) error {
	_, err := c.call(ctx, "torrent-set", fields, &ids)
	return err
}

// TorrentReannounce asks the tracker for a fresh peer list.
func (c *Client) TorrentReannounce(ctx context.Context, ids IDs) error {
	_, err := c.call(ctx, "torrent-reannounce", nil, &ids)
	return err
}

// TorrentStart starts the given torrents (or all, if ids is AllIDs()).
func (c *Client) TorrentStart(ctx context.Context, ids IDs) error {
	_, err := c.call(ctx, "torrent-start", nil, &ids)
	return err
}

// TorrentStartNow starts the given torrents immediately, bypassing the
// queue.
func (c *Client) TorrentStartNow(ctx context.Context, ids IDs) error {
	_, err := c.call(ctx, "torrent-start-now", nil, &ids)
	return err
}

// TorrentStop stops the given torrents.
func (c *Client) TorrentStop(ctx context.Context, ids IDs) error {
	_, err := c.call(ctx, "torrent-stop", nil, &ids)
	return err
}

// TorrentVerify re-checks the given torrents' data on disk.
func (c *Client) TorrentVerify(ctx context.Context, ids IDs) error {
	_, err := c.call(ctx, "torrent-verify", nil, &ids)
	return err
}

// SessionGet returns the subset of session settings fields requested, or
// every field if fields is nil.
func (c *Client) SessionGet(ctx context.Context, fields []string) (map[string]interface{}, error) {
	var args map[string]interface{}
	if len(fields) > 0 {
		args = map[string]interface{}{"fields": fields}
	}
	raw, err := c.call(ctx, "session-get", args, nil)
	if err != nil {
		return nil, err
	}
	var out map[string]interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, apperr.Wrap(err, "decode session-get response")
	}
	return out, nil
}

// FreeSpace returns (total, free) bytes for path. Callers that can inspect
// the filesystem locally (the common case, since seedhook and the daemon
// share a filesystem view per spec.md §1's Non-goals) should prefer
// fsutil-based disk usage and fall back to this RPC only on error, per
// spec.md §4.E.
func (c *Client) FreeSpace(ctx context.Context, path string) (total, free int64, err error) {
	raw, err := c.call(ctx, "free-space", map[string]interface{}{"path": path}, nil)
	if err != nil {
		return 0, 0, err
	}
	var body struct {
		TotalSize int64 `json:"total_size"`
		SizeBytes int64 `json:"size-bytes"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return 0, 0, apperr.Wrap(err, "decode free-space response")
	}
	return body.TotalSize, body.SizeBytes, nil
}

// SeedDir returns the cached canonical seed directory: the constructor
// override if one was given, else session-get's "download-dir".
func (c *Client) SeedDir(ctx context.Context) (string, error) {
	c.cacheMu.Lock()
	if c.cachedSeedDir != "" {
		dir := c.cachedSeedDir
		c.cacheMu.Unlock()
		return dir, nil
	}
	c.cacheMu.Unlock()

	dir := c.seedDirOverride
	if dir == "" {
		settings, err := c.SessionGet(ctx, []string{"download-dir"})
		if err != nil {
			return "", err
		}
		v, _ := settings["download-dir"].(string)
		if v == "" {
			return "", apperr.Wrapf(apperr.ErrConfig, "cannot determine seed_dir")
		}
		dir = v
	}
	real, err := fsutil.RealPath(dir)
	if err == nil {
		dir = real
	}
	c.cacheMu.Lock()
	c.cachedSeedDir = dir
	c.cacheMu.Unlock()
	return dir, nil
}

// torrentSnapshotFields are the basic fields cached by Torrents/SeedDirTorrents.
var torrentSnapshotFields = []string{"id", "name", "downloadDir", "isPrivate", "sizeWhenDone"}

// Torrents returns the cached snapshot of all torrents' basic fields,
// fetching it at most once per run (until invalidated by a mutating call).
// downloadDir is canonicalized to its real path.
func (c *Client) Torrents(ctx context.Context) (map[int64]Torrent, error) {
	c.cacheMu.Lock()
	if c.cachedTorrentsOK {
		snap := c.cachedTorrents
		c.cacheMu.Unlock()
		return snap, nil
	}
	c.cacheMu.Unlock()

	list, err := c.TorrentGet(ctx, torrentSnapshotFields, AllIDs())
	if err != nil {
		return nil, err
	}
	snap := make(map[int64]Torrent, len(list))
	for _, t := range list {
		if real, err := fsutil.RealPath(t.DownloadDir); err == nil {
			t.DownloadDir = real
		}
		snap[t.ID] = t
	}

	c.cacheMu.Lock()
	c.cachedTorrents = snap
	c.cachedTorrentsOK = true
	c.cacheMu.Unlock()
	return snap, nil
}

// SeedDirTorrents returns the subset of Torrents whose downloadDir lies
// within seedDir.
func (c *Client) SeedDirTorrents(ctx context.Context) (map[int64]Torrent, error) {
	all, err := c.Torrents(ctx)
	if err != nil {
		return nil, err
	}
	seedDir, err := c.SeedDir(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[int64]Torrent, len(all))
	for id, t := range all {
		if fsutil.IsSubpath(t.DownloadDir, seedDir) {
			out[id] = t
		}
	}
	return out, nil
}
