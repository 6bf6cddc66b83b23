// Package classify implements the category-inference engine: given a
// torrent's file list, decide which of five categories (DEFAULT, MOVIES,
// TV_SHOWS, MUSIC, AV) it belongs to.
package classify

import (
	"path"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/seedhook/seedhook/internal/fsutil"
	"github.com/seedhook/seedhook/internal/patterns"
	"github.com/seedhook/seedhook/internal/rpcclient"
)

const (
	// bdISOThreshold is the BD-ISO heuristic size floor (spec.md §4.F step 5,
	// §9: "≥21 GiB .iso under archives → MOVIES").
	bdISOThreshold = 21 * 1 << 30
	// noiseCapBytes caps the noise-removal threshold at 50 MiB.
	noiseCapBytes = 50 * 1 << 20
	// nameBonusWeight is the 0.30x name-category bonus (spec.md §4.F step 6).
	nameBonusWeight = 0.30
)

// Classifier carries the pattern table used to test segments against the
// AV/TV/movie regexes. It is safe for concurrent use; callers typically
// build one per process.
type Classifier struct {
	patterns *patterns.Table
}

// New builds a Classifier bound to table.
func New(table *patterns.Table) *Classifier {
	return &Classifier{patterns: table}
}

// key identifies a byte-size bucket entry: the normalized path without its
// extension (for a collapsed disc image, the disc root) and the lowercase
// extension (without dot; "disc" for a collapsed disc image).
type key struct {
	root, ext string
}

// Categorize assigns one Category to the torrent described by files.
// files must be non-empty; the result is deterministic.
func (c *Classifier) Categorize(files []rpcclient.TorrentFile) (rpcclient.Category, error) {
	if len(files) == 0 {
		return "", errors.New("classify: empty file list")
	}

	// Step 1: torrent-name classification.
	nameCat, nameIsAV := c.classifyName(files[0].Path, hasMultipleSegments(files))
	if nameIsAV {
		return rpcclient.CategoryAV, nil
	}

	// Step 2: file processing, with disc-image collapse.
	discRoots := findDiscRoots(files)

	videos := map[key]int64{}
	archives := map[key]int64{}
	var audioBytes, otherBytes int64

	for _, f := range files {
		norm := fsutil.Normalize(f.Path)
		if root, ok := longestDiscRoot(discRoots, norm); ok {
			videos[key{root: root, ext: "disc"}] += f.Length
			continue
		}
		root, ext := splitExt(norm)
		switch {
		case isIn(c.patterns.VideoExts, ext):
			videos[key{root: root, ext: ext}] += f.Length
		case isIn(c.patterns.ArchiveExts, ext):
			archives[key{root: root, ext: ext}] += f.Length
		case isIn(c.patterns.AudioExts, ext):
			audioBytes += f.Length
		default:
			otherBytes += f.Length
		}
	}

	// Step 3: noise removal.
	videos = removeNoise(videos)

	// Step 4: AV override on surviving content.
	if c.anySegmentIsAV(videos) || c.anySegmentIsAV(archives) {
		return rpcclient.CategoryAV, nil
	}

	// Step 5: score remaining categories.
	scores := map[rpcclient.Category]float64{
		rpcclient.CategoryTVShows: 0,
		rpcclient.CategoryMovies:  0,
		rpcclient.CategoryMusic:   float64(audioBytes),
		rpcclient.CategoryDefault: float64(otherBytes),
	}

	var videoBytes int64
	for _, v := range videos {
		videoBytes += v
	}
	if videoBytes > 0 {
		if c.anySegmentMatches(videos, c.patterns.TestTV) || findSequence(videos) {
			scores[rpcclient.CategoryTVShows] += float64(videoBytes)
		} else {
			scores[rpcclient.CategoryMovies] += float64(videoBytes)
		}
	}

	for k, size := range archives {
		scores[c.scoreArchive(k, size)] += float64(size)
	}

	// Step 6: name bonus.
	if nameCat != "" {
		total := float64(audioBytes + otherBytes + videoBytes)
		for _, v := range archives {
			total += float64(v)
		}
		scores[nameCat] += nameBonusWeight * total
	}

	// Step 7: return highest score, ties resolved by enum order.
	return bestCategory(scores), nil
}

// classifyName implements step 1: the torrent name is the first path
// segment of files[0].Path if the torrent has >= 2 path components,
// otherwise the stem of the single file. Returns the AV/TV/movie match (if
// any) and whether AV matched (which short-circuits the caller).
func (c *Classifier) classifyName(firstPath string, multi bool) (rpcclient.Category, bool) {
	clean := strings.TrimPrefix(firstPath, "/")
	var name string
	if multi {
		name, _, _ = strings.Cut(clean, "/")
	} else {
		name = strings.TrimSuffix(clean, path.Ext(clean))
	}
	norm := fsutil.Normalize(name)

	if c.patterns.TestAV(norm) {
		return rpcclient.CategoryAV, true
	}
	if c.patterns.TestTV(norm) {
		return rpcclient.CategoryTVShows, false
	}
	if c.patterns.TestMovie(norm) {
		return rpcclient.CategoryMovies, false
	}
	return "", false
}

func hasMultipleSegments(files []rpcclient.TorrentFile) bool {
	first := strings.TrimPrefix(files[0].Path, "/")
	return strings.Contains(first, "/")
}

// findDiscRoots scans files for disc-image tree members and returns the set
// of matched disc roots (trailing slash included).
func findDiscRoots(files []rpcclient.TorrentFile) []string {
	seen := map[string]struct{}{}
	var roots []string
	for _, f := range files {
		norm := fsutil.Normalize(f.Path)
		if root, ok := patterns.MatchDiscRoot(norm); ok {
			if _, dup := seen[root]; !dup {
				seen[root] = struct{}{}
				roots = append(roots, root)
			}
		}
	}
	// Longest root first so the longest-prefix-wins rule in
	// longestDiscRoot can return on first match.
	sort.Slice(roots, func(i, j int) bool { return len(roots[i]) > len(roots[j]) })
	return roots
}

func longestDiscRoot(roots []string, normPath string) (string, bool) {
	for _, root := range roots {
		if strings.HasPrefix(normPath, root) {
			return root, true
		}
	}
	return "", false
}

func splitExt(normPath string) (root, ext string) {
	idx := strings.LastIndexByte(normPath, '.')
	slash := strings.LastIndexByte(normPath, '/')
	if idx <= slash {
		return normPath, ""
	}
	return normPath[:idx], normPath[idx+1:]
}

func isIn(set map[string]struct{}, ext string) bool {
	_, ok := set[ext]
	return ok
}

// removeNoise drops video entries smaller than min(max/20, 50 MiB) once
// there are at least 2 video entries, suppressing samples/trailers/ads.
func removeNoise(videos map[key]int64) map[key]int64 {
	if len(videos) < 2 {
		return videos
	}
	var max int64
	for _, v := range videos {
		if v > max {
			max = v
		}
	}
	threshold := max / 20
	if threshold > noiseCapBytes {
		threshold = noiseCapBytes
	}
	out := make(map[key]int64, len(videos))
	for k, v := range videos {
		if v >= threshold {
			out[k] = v
		}
	}
	return out
}

func (c *Classifier) anySegmentIsAV(byKey map[key]int64) bool {
	return c.anySegmentMatches(byKey, c.patterns.TestAV)
}

func (c *Classifier) anySegmentMatches(byKey map[key]int64, test func(string) bool) bool {
	for k := range byKey {
		for _, seg := range strings.Split(k.root, "/") {
			if seg == "" {
				continue
			}
			if test(seg) {
				return true
			}
		}
	}
	return false
}

// scoreArchive implements the per-entry archive allocation of step 5: scan
// segments in order for tv_regex, then movie_regex, then the BD-ISO
// heuristic, defaulting to DEFAULT.
func (c *Classifier) scoreArchive(k key, size int64) rpcclient.Category {
	segs := strings.Split(k.root, "/")
	for _, seg := range segs {
		if seg == "" {
			continue
		}
		if c.patterns.TestTV(seg) {
			return rpcclient.CategoryTVShows
		}
	}
	for _, seg := range segs {
		if seg == "" {
			continue
		}
		if c.patterns.TestMovie(seg) {
			return rpcclient.CategoryMovies
		}
	}
	if k.ext == "iso" && size >= bdISOThreshold {
		return rpcclient.CategoryMovies
	}
	return rpcclient.CategoryDefault
}

// findSequence reports whether, grouped by (dirname, pre-digit prefix,
// post-digit suffix, ext), some group contains three consecutive integers
// in 1..99 found in the file stem. Disc-extension entries are excluded.
func findSequence(videos map[key]int64) bool {
	type seqKey struct {
		dir, pre, post, ext string
	}
	bits := map[seqKey]uint64{}
	for k := range videos {
		if k.ext == "disc" {
			continue
		}
		dir, stem := splitDirStem(k.root)
		start, end, n, ok := firstSeqRun(stem)
		if !ok {
			continue
		}
		pre, post := stem[:start], stem[end:]
		sk := seqKey{dir: dir, pre: pre, post: post, ext: k.ext}
		bits[sk] |= 1 << uint(n)
		b := bits[sk]
		if b&(b>>1)&(b>>2) != 0 {
			return true
		}
	}
	return false
}

// firstSeqRun scans s for the first maximal digit run bounded by non-digits
// (or the string edges) that encodes a value in 1..99: a single digit 1-9,
// a leading-zero pair "0X" with X in 1-9, or a two-digit pair "XY" with X in
// 1-9. Runs of three or more digits, and runs like "00", never qualify and
// are skipped entirely, mirroring what a negative digit lookaround would
// reject.
func firstSeqRun(s string) (start, end, n int, ok bool) {
	i := 0
	for i < len(s) {
		if s[i] < '0' || s[i] > '9' {
			i++
			continue
		}
		j := i
		for j < len(s) && s[j] >= '0' && s[j] <= '9' {
			j++
		}
		if v, valid := seqRunValue(s[i:j]); valid {
			return i, j, v, true
		}
		i = j
	}
	return 0, 0, 0, false
}

func seqRunValue(run string) (int, bool) {
	switch len(run) {
	case 1:
		if run[0] >= '1' && run[0] <= '9' {
			return int(run[0] - '0'), true
		}
	case 2:
		if run[0] == '0' {
			if run[1] >= '1' && run[1] <= '9' {
				return int(run[1] - '0'), true
			}
			return 0, false
		}
		if run[0] >= '1' && run[0] <= '9' {
			return int(run[0]-'0')*10 + int(run[1]-'0'), true
		}
	}
	return 0, false
}

func splitDirStem(root string) (dir, stem string) {
	idx := strings.LastIndexByte(root, '/')
	if idx < 0 {
		return "", root
	}
	return root[:idx], root[idx+1:]
}

// bestCategory returns the highest-scoring category, ties resolved by enum
// order TV_SHOWS, MOVIES, MUSIC, DEFAULT.
func bestCategory(scores map[rpcclient.Category]float64) rpcclient.Category {
	best := rpcclient.AllCategories[0]
	bestScore := scores[best]
	for _, cat := range rpcclient.AllCategories[1:] {
		if s := scores[cat]; s > bestScore {
			best = cat
			bestScore = s
		}
	}
	return best
}
