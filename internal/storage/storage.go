// Package storage implements seed-directory hygiene: purging orphan entries,
// and enforcing size/free-space quota by removing the least valuable seeded
// torrents via the knapsack solver.
package storage

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/seedhook/seedhook/internal/apperr"
	"github.com/seedhook/seedhook/internal/fsutil"
	"github.com/seedhook/seedhook/internal/knapsack"
	"github.com/seedhook/seedhook/internal/rpcclient"
)

const (
	graceWindow          = 12 * time.Hour
	staleLeecherWindow   = 5 * time.Minute
	reannouncePollPeriod = 3 * time.Second
	reannouncePollCeil   = 20 * time.Second
	knapsackMaxCells     = 1 << 20
)

// candidateFields are requested when re-checking removal candidates.
var candidateFields = []string{
	"id", "percentDone", "status", "doneDate", "activityDate",
	"sizeWhenDone", "trackerStats", "peers",
}

// Manager owns seed-dir cleanup and quota enforcement.
type Manager struct {
	client       *rpcclient.Client
	seedDirPurge bool
	quotaBytes   int64
	reserveBytes int64
	watchDir     string
	log          *zap.Logger

	now func() time.Time // overridable in tests
}

// New builds a Manager. quotaBytes == 0 disables the size cap.
func New(client *rpcclient.Client, seedDirPurge bool, quotaBytes, reserveBytes int64, watchDir string, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		client:       client,
		seedDirPurge: seedDirPurge,
		quotaBytes:   quotaBytes,
		reserveBytes: reserveBytes,
		watchDir:     watchDir,
		log:          log,
		now:          time.Now,
	}
}

// Cleanup sweeps the watch directory and (if enabled) the seed directory.
// Per-entry errors are logged and skipped; Cleanup never aborts.
func (m *Manager) Cleanup(ctx context.Context) {
	m.cleanupWatchDir()
	m.cleanupSeedDir(ctx)
}

func (m *Manager) cleanupWatchDir() {
	if m.watchDir == "" {
		return
	}
	entries, err := os.ReadDir(m.watchDir)
	if err != nil {
		m.log.Error("watch-dir scan failed", zap.String("dir", m.watchDir), zap.Error(err))
		return
	}
	cutoff := m.now().Add(-1 * time.Hour)
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".torrent") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			m.log.Error("watch-dir stat failed", zap.String("name", e.Name()), zap.Error(err))
			continue
		}
		if info.Size() != 0 && info.ModTime().After(cutoff) {
			continue
		}
		full := filepath.Join(m.watchDir, e.Name())
		if err := os.Remove(full); err != nil {
			m.log.Error("watch-dir remove failed", zap.String("path", full), zap.Error(err))
		}
	}
}

func (m *Manager) cleanupSeedDir(ctx context.Context) {
	if !m.seedDirPurge {
		return
	}
	seedDir, err := m.client.SeedDir(ctx)
	if err != nil {
		m.log.Error("seed-dir purge: cannot resolve seed dir", zap.Error(err))
		return
	}
	torrents, err := m.client.SeedDirTorrents(ctx)
	if err != nil {
		m.log.Error("seed-dir purge: cannot load snapshot", zap.Error(err))
		return
	}

	allowed := make(map[string]struct{}, len(torrents))
	for _, t := range torrents {
		if t.DownloadDir == seedDir {
			allowed[t.Name] = struct{}{}
			continue
		}
		rel, err := filepath.Rel(seedDir, t.DownloadDir)
		if err != nil || strings.HasPrefix(rel, "..") {
			continue
		}
		first, _, _ := strings.Cut(filepath.ToSlash(rel), "/")
		allowed[first] = struct{}{}
	}

	entries, err := os.ReadDir(seedDir)
	if err != nil {
		m.log.Error("seed-dir purge: scan failed", zap.String("dir", seedDir), zap.Error(err))
		return
	}
	if len(entries) > 0 && allUnallowed(entries, allowed) {
		m.log.Warn("seed-dir purge: refusing, every top-level entry is unallowed", zap.String("dir", seedDir))
		return
	}

	for _, e := range entries {
		if isAllowed(e.Name(), allowed) {
			continue
		}
		full := filepath.Join(seedDir, e.Name())
		var rmErr error
		if e.IsDir() {
			rmErr = os.RemoveAll(full)
		} else {
			rmErr = os.Remove(full)
		}
		if rmErr != nil {
			m.log.Error("seed-dir purge entry failed", zap.String("path", full), zap.Error(rmErr))
		}
	}
}

func isAllowed(name string, allowed map[string]struct{}) bool {
	if _, ok := allowed[name]; ok {
		return true
	}
	if base, ok := strings.CutSuffix(name, ".part"); ok {
		if _, ok := allowed[base]; ok {
			return true
		}
	}
	return false
}

func allUnallowed(entries []os.DirEntry, allowed map[string]struct{}) bool {
	for _, e := range entries {
		if isAllowed(e.Name(), allowed) {
			return false
		}
	}
	return true
}

// ApplyQuotas enforces the size-cap and reserve-space policy. tid is nil for
// a generic maintenance call. When tid is non-nil, added distinguishes a
// torrent-added adjustment (true) from a torrent-done adjustment (false);
// the legal call shapes are spec.md §4.G.2's cases 1 and 4 — cases 2 and 3
// are rejected with apperr.ErrInvalidState.
func (m *Manager) ApplyQuotas(ctx context.Context, tid *int64, added *bool) error {
	if tid == nil {
		return m.applyQuotasAdjusted(ctx, 0, 0)
	}
	if added == nil {
		return apperr.Wrapf(apperr.ErrInvalidState, "applyQuotas: tid given without added")
	}

	list, err := m.client.TorrentGet(ctx, []string{"id", "downloadDir", "sizeWhenDone"}, rpcclient.ID(*tid))
	if err != nil {
		return err
	}
	if len(list) == 0 {
		return apperr.Wrapf(apperr.ErrNotFound, "torrent %d", *tid)
	}
	t := list[0]

	seedDir, err := m.client.SeedDir(ctx)
	if err != nil {
		return err
	}
	inSeed := t.DownloadDir == seedDir || fsutil.IsSubpath(t.DownloadDir, seedDir)

	switch {
	case *added && inSeed: // case 1
		return m.applyQuotasAdjusted(ctx, -t.SizeWhenDone, 0)
	case *added && !inSeed: // case 2
		return apperr.Wrapf(apperr.ErrInvalidState, "applyQuotas: torrent-added outside seed dir")
	case !*added && inSeed: // case 3
		return apperr.Wrapf(apperr.ErrInvalidState, "applyQuotas: torrent-done already in seed dir")
	default: // case 4
		return m.applyQuotasAdjusted(ctx, -t.SizeWhenDone, t.SizeWhenDone)
	}
}

func (m *Manager) applyQuotasAdjusted(ctx context.Context, freeAdj, usedAdj int64) error {
	seedDir, err := m.client.SeedDir(ctx)
	if err != nil {
		return err
	}
	total, free, err := m.diskUsage(ctx, seedDir)
	if err != nil {
		return err
	}
	free += freeAdj

	snap, err := m.client.SeedDirTorrents(ctx)
	if err != nil {
		return err
	}
	var used int64
	for _, t := range snap {
		used += t.SizeWhenDone
	}
	used += usedAdj

	capacity := total - m.reserveBytes
	if m.quotaBytes > 0 && m.quotaBytes < capacity {
		capacity = m.quotaBytes
	}

	sizeToFree := max(used-capacity, m.reserveBytes-free)
	if sizeToFree <= 0 {
		m.log.Info("quota check: headroom sufficient",
			zap.String("used", fsutil.HumanSize(used)),
			zap.String("cap", fsutil.HumanSize(capacity)),
			zap.String("free", fsutil.HumanSize(free)))
		return nil
	}

	ids, err := m.findOptimalRemovals(ctx, sizeToFree)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		m.log.Warn("quota check: no removal candidates", zap.String("size_to_free", fsutil.HumanSize(sizeToFree)))
		return nil
	}

	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return m.client.TorrentRemove(ctx, rpcclient.IDList(args...), true)
}

// diskUsage prefers a local statfs over the RPC fallback, per spec.md §4.E.
func (m *Manager) diskUsage(ctx context.Context, seedDir string) (total, free int64, err error) {
	total, free, err = fsutil.DiskUsage(seedDir)
	if err == nil {
		return total, free, nil
	}
	m.log.Warn("local disk usage failed, falling back to RPC free-space", zap.Error(err))
	return m.client.FreeSpace(ctx, seedDir)
}

type scoredTorrent struct {
	t        rpcclient.Torrent
	leechers int
}

// findOptimalRemovals implements spec.md §4.G.3: filter candidates, refresh
// stale-leecher trackers, partition, greedily drain zero-leecher torrents,
// then knapsack-select which with-leecher torrents to keep.
func (m *Manager) findOptimalRemovals(ctx context.Context, sizeToFree int64) ([]int64, error) {
	snap, err := m.client.SeedDirTorrents(ctx)
	if err != nil {
		return nil, err
	}
	if len(snap) == 0 {
		return nil, nil
	}
	ids := make([]interface{}, 0, len(snap))
	for id := range snap {
		ids = append(ids, id)
	}

	full, err := m.client.TorrentGet(ctx, candidateFields, rpcclient.IDList(ids...))
	if err != nil {
		return nil, err
	}
	candidates := filterCandidates(full, m.now())

	if stale := staleLeecherIDs(candidates, m.now()); len(stale) > 0 {
		m.reannounceAndWait(ctx, stale)
		full, err = m.client.TorrentGet(ctx, candidateFields, rpcclient.IDList(ids...))
		if err != nil {
			return nil, err
		}
		candidates = filterCandidates(full, m.now())
	}

	var zero, withLeech []scoredTorrent
	for _, t := range candidates {
		est := leecherEstimate(t)
		s := scoredTorrent{t: t, leechers: est}
		if est == 0 {
			zero = append(zero, s)
		} else {
			withLeech = append(withLeech, s)
		}
	}
	sort.SliceStable(zero, func(i, j int) bool {
		return zero[i].t.ActivityDate < zero[j].t.ActivityDate
	})

	var removeIDs []int64
	remaining := sizeToFree
	for _, s := range zero {
		if remaining <= 0 {
			break
		}
		removeIDs = append(removeIDs, s.t.ID)
		remaining -= s.t.SizeWhenDone
	}
	if remaining <= 0 || len(withLeech) == 0 {
		return removeIDs, nil
	}

	weights := make([]int, len(withLeech))
	values := make([]int, len(withLeech))
	var sum int64
	for i, s := range withLeech {
		weights[i] = int(s.t.SizeWhenDone)
		values[i] = s.leechers
		sum += s.t.SizeWhenDone
	}
	capacity := int(sum - remaining)
	keep := knapsack.Solve(weights, values, capacity, knapsackMaxCells)
	keepSet := make(map[int]struct{}, len(keep))
	for _, idx := range keep {
		keepSet[idx] = struct{}{}
	}
	for i, s := range withLeech {
		if _, ok := keepSet[i]; !ok {
			removeIDs = append(removeIDs, s.t.ID)
		}
	}
	return removeIDs, nil
}

func filterCandidates(all []rpcclient.Torrent, now time.Time) []rpcclient.Torrent {
	cutoff := now.Add(-graceWindow).Unix()
	var out []rpcclient.Torrent
	for _, t := range all {
		if t.PercentDone != 1.0 {
			continue
		}
		switch t.Status {
		case rpcclient.StatusStopped, rpcclient.StatusSeedWait, rpcclient.StatusSeed:
		default:
			continue
		}
		if !(t.DoneDate > 0 && t.DoneDate < cutoff) {
			continue
		}
		out = append(out, t)
	}
	return out
}

func staleLeecherIDs(candidates []rpcclient.Torrent, now time.Time) []int64 {
	cutoff := now.Add(-staleLeecherWindow).Unix()
	var ids []int64
	for _, t := range candidates {
		if len(t.TrackerStats) == 0 {
			continue
		}
		if trackerFreshness(t.TrackerStats, cutoff) {
			continue
		}
		stale := true
		for _, ts := range t.TrackerStats {
			if ts.LeecherCount > 0 {
				stale = false
				break
			}
		}
		if stale {
			ids = append(ids, t.ID)
		}
	}
	return ids
}

func trackerFreshness(stats []rpcclient.TrackerStat, cutoff int64) bool {
	for _, ts := range stats {
		if (ts.LastAnnounceSucceeded && ts.LastAnnounceTime > cutoff) ||
			(ts.LastScrapeSucceeded && ts.LastScrapeTime > cutoff) {
			return true
		}
	}
	return false
}

// reannounceAndWait asks the tracker for fresh peer counts and polls up to
// reannouncePollCeil, matching spec.md §4.G.3.
func (m *Manager) reannounceAndWait(ctx context.Context, ids []int64) {
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	set := rpcclient.IDList(args...)
	if err := m.client.TorrentReannounce(ctx, set); err != nil {
		m.log.Warn("reannounce failed", zap.Error(err))
		return
	}

	cutoff := m.now().Add(-staleLeecherWindow).Unix()
	deadline := m.now().Add(reannouncePollCeil)
	for m.now().Before(deadline) {
		time.Sleep(reannouncePollPeriod)
		refreshed, err := m.client.TorrentGet(ctx, []string{"id", "trackerStats"}, set)
		if err != nil {
			return
		}
		allFresh := true
		for _, t := range refreshed {
			if !trackerFreshness(t.TrackerStats, cutoff) {
				allFresh = false
				break
			}
		}
		if allFresh {
			return
		}
	}
}

func leecherEstimate(t rpcclient.Torrent) int {
	max := 0
	for _, ts := range t.TrackerStats {
		if ts.LeecherCount > max {
			max = ts.LeecherCount
		}
	}
	active := 0
	for _, p := range t.Peers {
		if p.Progress < 1 {
			active++
		}
	}
	if active > max {
		max = active
	}
	return max
}
