// Package patterns loads the category pattern file (video/audio/archive
// extension sets plus the AV/TV/movie/disc regexes) the classifier tests
// file paths against, and memoizes regex test results behind bounded LRUs.
package patterns

import (
	"encoding/json"
	"os"
	"regexp"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"

	"github.com/seedhook/seedhook/internal/fsutil"
)

const (
	tvMovieCacheSize = 512
	avCacheSize      = 1024
)

// discRegex recognizes the disc-image tree layouts the classifier collapses
// into a single synthetic video entry: Blu-ray (BDMV), DVD (VIDEO_TS), and
// HD DVD (HVDVD_TS). The captured group is the disc root, trailing slash
// included by construction of the regex; it is returned by MatchDiscRoot.
// The root is captured non-greedily so a VIDEO_TS directory stays part of
// the layout rather than the root, and VIDEO_TS/HVDVD_TS accept either "_"
// or "-" so normalized paths match.
var discRegex = regexp.MustCompile(`(?i)^(.*?/)(?:bdmv/(?:index\.bdmv|stream/[^/]+\.m2ts)|(?:video[-_]ts/)?(?:vts[-_0-9]+|video[-_]ts)\.(?:ifo|vob)|hvdvd[-_]ts/[^/]+\.evo)$`)

// raw mirrors the on-disk JSON schema.
type raw struct {
	VideoExts   []string `json:"video_exts"`
	AudioExts   []string `json:"audio_exts"`
	ArchiveExts []string `json:"archive_exts"`
	AVRegex     string   `json:"av_regex"`
	TVRegex     string   `json:"tv_regex"`
	MovieRegex  string   `json:"movie_regex"`
}

// Table is the immutable, process-wide pattern table. Build one with Load
// and share it; its predicates are safe for concurrent use.
type Table struct {
	VideoExts   map[string]struct{}
	AudioExts   map[string]struct{}
	ArchiveExts map[string]struct{}

	avSource, tvSource, movieSource string

	mu         sync.Mutex
	avRe       *regexp.Regexp
	tvRe       *regexp.Regexp
	movieRe    *regexp.Regexp
	avCache    *lru.Cache[string, bool]
	tvCache    *lru.Cache[string, bool]
	movieCache *lru.Cache[string, bool]
}

// Load reads and validates the pattern file at path. Failure is fatal to the
// caller: a missing or corrupt pattern file means the classifier cannot run.
func Load(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open pattern file %q", path)
	}
	defer f.Close()

	var r raw
	if err := json.NewDecoder(f).Decode(&r); err != nil {
		return nil, errors.Wrapf(err, "decode pattern file %q", path)
	}

	if len(r.VideoExts) == 0 || len(r.AudioExts) == 0 || len(r.ArchiveExts) == 0 ||
		r.AVRegex == "" || r.TVRegex == "" || r.MovieRegex == "" {
		return nil, errors.Errorf("pattern file %q has an empty required entry", path)
	}

	videoSet := toSet(r.VideoExts)
	audioSet := toSet(r.AudioExts)
	archiveSet := toSet(r.ArchiveExts)
	if overlaps(videoSet, audioSet) || overlaps(videoSet, archiveSet) || overlaps(audioSet, archiveSet) {
		return nil, errors.Errorf("pattern file %q: video/audio/archive extension sets must be disjoint", path)
	}

	avCache, err := lru.New[string, bool](avCacheSize)
	if err != nil {
		return nil, errors.Wrap(err, "allocate av cache")
	}
	tvCache, err := lru.New[string, bool](tvMovieCacheSize)
	if err != nil {
		return nil, errors.Wrap(err, "allocate tv cache")
	}
	movieCache, err := lru.New[string, bool](tvMovieCacheSize)
	if err != nil {
		return nil, errors.Wrap(err, "allocate movie cache")
	}

	return &Table{
		VideoExts:   videoSet,
		AudioExts:   audioSet,
		ArchiveExts: archiveSet,
		avSource:    r.AVRegex,
		tvSource:    r.TVRegex,
		movieSource: r.MovieRegex,
		avCache:     avCache,
		tvCache:     tvCache,
		movieCache:  movieCache,
	}, nil
}

// TestAV reports whether s (already normalized by fsutil.Normalize) matches
// the AV regex. The regex compiles lazily on first use and results memoize.
func (t *Table) TestAV(s string) bool { return t.test(&t.avRe, t.avSource, t.avCache, s) }

// TestTV reports whether s matches the TV regex.
func (t *Table) TestTV(s string) bool { return t.test(&t.tvRe, t.tvSource, t.tvCache, s) }

// TestMovie reports whether s matches the movie regex.
func (t *Table) TestMovie(s string) bool { return t.test(&t.movieRe, t.movieSource, t.movieCache, s) }

func (t *Table) test(compiled **regexp.Regexp, source string, cache *lru.Cache[string, bool], s string) bool {
	if v, ok := cache.Get(s); ok {
		return v
	}
	t.mu.Lock()
	if *compiled == nil {
		*compiled = regexp.MustCompile(`(?i)` + asciiOnly(source))
	}
	re := *compiled
	t.mu.Unlock()
	v := re.MatchString(s)
	cache.Add(s, v)
	return v
}

// MatchDiscRoot fullmatches normalized path against the disc-image regex and
// returns the captured root directory (trailing slash included) and true on
// match.
func MatchDiscRoot(path string) (string, bool) {
	m := discRegex.FindStringSubmatch(path)
	if m == nil {
		return "", false
	}
	return m[1], true
}

func toSet(exts []string) map[string]struct{} {
	set := make(map[string]struct{}, len(exts))
	for _, e := range exts {
		set[fsutil.Normalize(e)] = struct{}{}
	}
	return set
}

func overlaps(a, b map[string]struct{}) bool {
	for k := range a {
		if _, ok := b[k]; ok {
			return true
		}
	}
	return false
}

// asciiOnly is a no-op marker kept for documentation: in Go's regexp syntax
// the \d, \w, \s and \b classes are already ASCII-only. The (?i) flag added
// at the call site still folds case by Unicode simple folding. It exists so
// the choice is visible at the call site.
func asciiOnly(pattern string) string { return pattern }
