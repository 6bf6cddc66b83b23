package classify

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seedhook/seedhook/internal/fsutil"
	"github.com/seedhook/seedhook/internal/patterns"
	"github.com/seedhook/seedhook/internal/rpcclient"
)

type patternRaw struct {
	VideoExts   []string `json:"video_exts"`
	AudioExts   []string `json:"audio_exts"`
	ArchiveExts []string `json:"archive_exts"`
	AVRegex     string   `json:"av_regex"`
	TVRegex     string   `json:"tv_regex"`
	MovieRegex  string   `json:"movie_regex"`
}

func newTestClassifier(t *testing.T) *Classifier {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "patterns.json")
	data := patternRaw{
		VideoExts:   []string{"mkv", "mp4", "avi", "m2ts", "ifo", "vob", "evo"},
		AudioExts:   []string{"flac", "mp3"},
		ArchiveExts: []string{"iso", "rar", "zip"},
		AVRegex:     `\b[a-z]{2,6}-\d{2,5}\b`,
		TVRegex:     `\bs\d{1,2}e\d{1,3}\b`,
		MovieRegex:  `\b(19|20)\d{2}\b`,
	}
	b, _ := json.Marshal(data)
	require.NoError(t, os.WriteFile(p, b, 0o644))
	tbl, err := patterns.Load(p)
	require.NoError(t, err)
	return New(tbl)
}

func f(path string, length int64) rpcclient.TorrentFile {
	return rpcclient.TorrentFile{Path: path, Length: length}
}

const GiB = 1 << 30
const MiB = 1 << 20

func TestCategorizeTVBySequence(t *testing.T) {
	c := newTestClassifier(t)
	files := []rpcclient.TorrentFile{
		f("Show/ep01.mkv", GiB),
		f("Show/ep02.mkv", GiB),
		f("Show/ep03.mkv", GiB),
		f("Show/ep07.mkv", GiB),
	}
	got, err := c.Categorize(files)
	require.NoError(t, err)
	assert.Equal(t, rpcclient.CategoryTVShows, got)
}

// TestCategorizeTVBySequenceTwoDigitEpisodes guards against truncating a
// two-digit episode number down to its first digit, which would scatter
// ep09/ep10/ep11 across bits 9/1/1 instead of a consecutive run at 9/10/11.
func TestCategorizeTVBySequenceTwoDigitEpisodes(t *testing.T) {
	c := newTestClassifier(t)
	files := []rpcclient.TorrentFile{
		f("Show/ep09.mkv", GiB),
		f("Show/ep10.mkv", GiB),
		f("Show/ep11.mkv", GiB),
	}
	got, err := c.Categorize(files)
	require.NoError(t, err)
	assert.Equal(t, rpcclient.CategoryTVShows, got)
}

func TestFirstSeqRun(t *testing.T) {
	cases := []struct {
		in         string
		start, end int
		n          int
		ok         bool
	}{
		{"ep10", 2, 4, 10, true},
		{"ep64", 2, 4, 64, true},
		{"ep99", 2, 4, 99, true},
		{"ep05", 2, 4, 5, true},
		{"ep9", 2, 3, 9, true},
		{"s100e1", 5, 6, 1, true},
		{"v00x", 0, 0, 0, false},
		{"noise", 0, 0, 0, false},
	}
	for _, c := range cases {
		start, end, n, ok := firstSeqRun(c.in)
		if !c.ok {
			assert.Falsef(t, ok, "firstSeqRun(%q) expected no match", c.in)
			continue
		}
		require.Truef(t, ok, "firstSeqRun(%q) expected a match", c.in)
		assert.Equal(t, c.start, start, "start for %q", c.in)
		assert.Equal(t, c.end, end, "end for %q", c.in)
		assert.Equal(t, c.n, n, "n for %q", c.in)
	}
}

func TestCategorizeMoviesWithNoiseDropped(t *testing.T) {
	c := newTestClassifier(t)
	files := []rpcclient.TorrentFile{
		f("Feature/feature.mkv", 8*GiB),
		f("Feature/feature-sample.mkv", 20*MiB),
	}
	got, err := c.Categorize(files)
	require.NoError(t, err)
	assert.Equal(t, rpcclient.CategoryMovies, got)
}

func TestCategorizeAVByName(t *testing.T) {
	c := newTestClassifier(t)
	files := []rpcclient.TorrentFile{f("ABC-123.mp4", 1288490188)}
	got, err := c.Categorize(files)
	require.NoError(t, err)
	assert.Equal(t, rpcclient.CategoryAV, got)
}

func TestCategorizeMusic(t *testing.T) {
	c := newTestClassifier(t)
	var files []rpcclient.TorrentFile
	for i := 0; i < 12; i++ {
		files = append(files, f("Album/track"+itoa(i)+".flac", 40*MiB))
	}
	got, err := c.Categorize(files)
	require.NoError(t, err)
	assert.Equal(t, rpcclient.CategoryMusic, got)
}

func TestCategorizeBDISO(t *testing.T) {
	c := newTestClassifier(t)
	files := []rpcclient.TorrentFile{f("Title.iso", 26*GiB)}
	got, err := c.Categorize(files)
	require.NoError(t, err)
	assert.Equal(t, rpcclient.CategoryMovies, got)
}

func TestCategorizeDiscCollapse(t *testing.T) {
	c := newTestClassifier(t)
	files := []rpcclient.TorrentFile{
		f("title/BDMV/STREAM/00001.m2ts", 4*GiB),
		f("title/BDMV/STREAM/00002.m2ts", 4*GiB),
	}
	roots := findDiscRoots(files)
	videos := map[key]int64{}
	for _, file := range files {
		norm := fsutil.Normalize(file.Path)
		root, ok := longestDiscRoot(roots, norm)
		require.True(t, ok, "expected disc root match for %s", file.Path)
		videos[key{root: root, ext: "disc"}] += file.Length
	}
	require.Len(t, videos, 1, "expected 1 collapsed video entry")
	for k := range videos {
		assert.Equal(t, "title/", k.root)
	}
	_, err := c.Categorize(files)
	require.NoError(t, err)
}

func TestCategorizeEmptyFails(t *testing.T) {
	c := newTestClassifier(t)
	_, err := c.Categorize(nil)
	assert.Error(t, err, "expected error for empty file list")
}

func itoa(i int) string {
	if i < 10 {
		return "0" + string(rune('0'+i))
	}
	return string(rune('0'+i/10)) + string(rune('0'+i%10))
}
