// Package rpcclient implements the minimum JSON-RPC operation set seedhook's
// core needs from a Transmission-compatible torrent daemon: typed field
// wrappers, session-token retry, and a read-mostly snapshot cache.
package rpcclient

// Status mirrors Transmission's torrent status enum
// (libtransmission/transmission.h).
type Status int

const (
	StatusStopped Status = iota
	StatusCheckWait
	StatusCheck
	StatusDownloadWait
	StatusDownload
	StatusSeedWait
	StatusSeed
)

// Category is the closed classification enumeration; each value maps 1:1 to
// a user-configured destination directory.
type Category string

const (
	CategoryDefault  Category = "default"
	CategoryMovies   Category = "movies"
	CategoryTVShows  Category = "tv-shows"
	CategoryMusic    Category = "music"
	CategoryAV       Category = "av"
)

// AllCategories lists the enum in the tie-break order spec.md 4.F step 7
// uses: TV_SHOWS, MOVIES, MUSIC, DEFAULT. AV is decided earlier and never
// needs a tie-break against the others.
var AllCategories = []Category{CategoryTVShows, CategoryMovies, CategoryMusic, CategoryDefault}

// TorrentFile is one entry of a torrent's file list.
type TorrentFile struct {
	Path   string `json:"path"`
	Length int64  `json:"length"`
}

// TrackerStat is the subset of Transmission's trackerStats the core reads.
type TrackerStat struct {
	LeecherCount           int   `json:"leecherCount"`
	LastAnnounceSucceeded  bool  `json:"lastAnnounceSucceeded"`
	LastAnnounceTime       int64 `json:"lastAnnounceTime"`
	LastScrapeSucceeded    bool  `json:"lastScrapeSucceeded"`
	LastScrapeTime         int64 `json:"lastScrapeTime"`
}

// Peer is the subset of Transmission's peer record the core reads.
type Peer struct {
	Progress float64 `json:"progress"`
}

// Torrent is the view materialized from the daemon's torrent-get response.
// Unknown JSON fields are ignored (explicit field-enumerated request, struct
// with optional fields, per spec.md §9's architectural translation note).
type Torrent struct {
	ID            int64         `json:"id"`
	Name          string        `json:"name"`
	Files         []TorrentFile `json:"files"`
	DownloadDir   string        `json:"downloadDir"`
	SizeWhenDone  int64         `json:"sizeWhenDone"`
	PercentDone   float64       `json:"percentDone"`
	IsPrivate     bool          `json:"isPrivate"`
	Status        Status        `json:"status"`
	ActivityDate  int64         `json:"activityDate"`
	DoneDate      int64         `json:"doneDate"`
	TrackerStats  []TrackerStat `json:"trackerStats"`
	Peers         []Peer        `json:"peers"`
}
