package orchestrator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/seedhook/seedhook/internal/classify"
	"github.com/seedhook/seedhook/internal/patterns"
	"github.com/seedhook/seedhook/internal/rpcclient"
	"github.com/seedhook/seedhook/internal/storage"
)

const GiB = 1 << 30

type rpcReq struct {
	Method    string          `json:"method"`
	Arguments json.RawMessage `json:"arguments"`
}

func fieldSet(args map[string]interface{}) map[string]bool {
	out := map[string]bool{}
	raw, _ := args["fields"].([]interface{})
	for _, f := range raw {
		if s, ok := f.(string); ok {
			out[s] = true
		}
	}
	return out
}

func writeOK(w http.ResponseWriter, torrents []map[string]interface{}) {
	json.NewEncoder(w).Encode(map[string]interface{}{
		"result":    "success",
		"arguments": map[string]interface{}{"torrents": torrents},
	})
}

func newTestClassifier(t *testing.T) *classify.Classifier {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "patterns.json")
	data := map[string]interface{}{
		"video_exts":   []string{"mkv", "mp4"},
		"audio_exts":   []string{"flac"},
		"archive_exts": []string{"iso", "rar"},
		"av_regex":     `\b[a-z]{2,6}-\d{2,5}\b`,
		"tv_regex":     `\bs\d{1,2}e\d{1,3}\b`,
		"movie_regex":  `\b(19|20)\d{2}\b`,
	}
	b, _ := json.Marshal(data)
	require.NoError(t, os.WriteFile(p, b, 0o644))
	tbl, err := patterns.Load(p)
	require.NoError(t, err)
	return classify.New(tbl)
}

// TestTorrentDoneCopiesIntoCategoryDir exercises case (src_in_seed_dir=true,
// remove_torrent=false): the payload is categorized and copied, with no
// removal or location change.
func TestTorrentDoneCopiesIntoCategoryDir(t *testing.T) {
	root := t.TempDir()
	seedDir := filepath.Join(root, "seed")
	moviesDir := filepath.Join(root, "movies")
	require.NoError(t, os.MkdirAll(filepath.Join(seedDir, "Feature"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(seedDir, "Feature", "movie.mkv"), []byte("data"), 0o644))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcReq
		json.NewDecoder(r.Body).Decode(&req)
		require.Equal(t, "torrent-get", req.Method)
		writeOK(w, []map[string]interface{}{{
			"downloadDir": seedDir, "name": "Feature", "isPrivate": false,
			"percentDone": 1.0, "sizeWhenDone": int64(8 * GiB),
			"files": []map[string]interface{}{{"path": "Feature/movie.mkv", "length": int64(8 * GiB)}},
		}})
	}))
	defer srv.Close()

	client := rpcclient.New(rpcclient.Config{SeedDir: seedDir, BaseURL: srv.URL})
	mgr := storage.New(client, false, 0, 0, "", nil)
	cls := newTestClassifier(t)

	orch := New(client, mgr, cls, Config{
		Dests: Dests{
			rpcclient.CategoryDefault: filepath.Join(root, "default"),
			rpcclient.CategoryMovies:  moviesDir,
		},
	}, nil)

	require.NoError(t, orch.TorrentDone(context.Background(), 1))

	_, err := os.Stat(filepath.Join(moviesDir, "Feature", "movie.mkv"))
	require.NoError(t, err, "expected copied file at destination")
}

// TestTorrentAddedAppliesQuotaWhenInSeedDir exercises torrent-added case 1:
// the new torrent lands inside seedDir, so applyQuotas(tid, added=true) runs.
func TestTorrentAddedAppliesQuotaWhenInSeedDir(t *testing.T) {
	seedDir := t.TempDir()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcReq
		json.NewDecoder(r.Body).Decode(&req)
		var args map[string]interface{}
		json.Unmarshal(req.Arguments, &args)
		require.Equal(t, "torrent-get", req.Method)
		fields := fieldSet(args)
		switch {
		case fields["isPrivate"]:
			writeOK(w, []map[string]interface{}{{"id": 5, "downloadDir": seedDir, "isPrivate": true, "name": "T5"}})
		case fields["name"]:
			writeOK(w, []map[string]interface{}{{"id": 5, "name": "T5", "downloadDir": seedDir, "isPrivate": true, "sizeWhenDone": int64(1 * GiB)}})
		case fields["sizeWhenDone"]:
			writeOK(w, []map[string]interface{}{{"id": 5, "downloadDir": seedDir, "sizeWhenDone": int64(1 * GiB)}})
		default:
			t.Fatalf("unexpected field set %v", fields)
		}
	}))
	defer srv.Close()

	client := rpcclient.New(rpcclient.Config{SeedDir: seedDir, BaseURL: srv.URL})
	mgr := storage.New(client, false, 0, 0, "", nil)
	cls := newTestClassifier(t)
	orch := New(client, mgr, cls, Config{Dests: Dests{rpcclient.CategoryDefault: t.TempDir()}}, nil)

	require.NoError(t, orch.TorrentAdded(context.Background(), 5))
}

func TestEnsureTorrentDoneTimesOut(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeOK(w, []map[string]interface{}{{"percentDone": 0.5}})
	}))
	defer srv.Close()

	client := rpcclient.New(rpcclient.Config{SeedDir: "/seed", BaseURL: srv.URL})
	mgr := storage.New(client, false, 0, 0, "", nil)
	cls := newTestClassifier(t)
	orch := New(client, mgr, cls, Config{EnsureDoneRetries: 1, Dests: Dests{rpcclient.CategoryDefault: "/dest"}}, nil)
	orch.sleep = func(time.Duration) {}

	_, err := orch.ensureTorrentDone(context.Background(), 1)
	require.Error(t, err, "expected timeout error")
}
