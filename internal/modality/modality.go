// Package modality centralizes per-modality behavior: query modifiers
// for web search, direct-asset extension sets for media resolution, and
// the extension allow-lists used when exporting archives.
package modality

import (
	"net/url"
	"path"
	"strings"
)

// Known modalities.
const (
	Image     = "image"
	Text      = "text"
	News      = "news"
	Code      = "code"
	Audio     = "audio"
	Video     = "video"
	ThreeD    = "3d"
	Numerical = "numerical"
	QnA       = "qna"
)

// Profile describes how one modality is gathered and exported.
type Profile struct {
	// QueryModifier is appended to the user query before searching.
	QueryModifier string
	// AssetExts are the direct-asset extensions scanned for inside
	// search results (media modalities).
	AssetExts []string
	// ExportExts is the archive allow-list; empty means text-like
	// (HTML converted to .txt instead of filtered by extension).
	ExportExts []string
	// SearchMultiplier scales the requested result count to leave
	// headroom for filtering.
	SearchMultiplier int
}

var profiles = map[string]Profile{
	Image: {
		ExportExts:       []string{".jpg", ".jpeg", ".png", ".gif", ".webp", ".bmp", ".tif", ".tiff"},
		SearchMultiplier: 1,
	},
	Text: {
		SearchMultiplier: 1,
	},
	News: {
		SearchMultiplier: 1,
	},
	Code: {
		QueryModifier:    "site:github.com OR site:stackoverflow.com OR site:gitlab.com",
		SearchMultiplier: 1,
	},
	Audio: {
		QueryModifier:    "audio download filetype:mp3 OR filetype:wav OR filetype:flac OR filetype:ogg",
		AssetExts:        []string{".mp3", ".wav", ".flac", ".ogg", ".m4a"},
		ExportExts:       []string{".mp3", ".wav", ".flac", ".ogg", ".m4a"},
		SearchMultiplier: 3,
	},
	Video: {
		QueryModifier:    "video download filetype:mp4 OR filetype:webm OR filetype:mov",
		AssetExts:        []string{".mp4", ".webm", ".m4v", ".mov", ".avi", ".mkv"},
		ExportExts:       []string{".mp4", ".webm", ".m4v", ".mov", ".avi", ".mkv"},
		SearchMultiplier: 3,
	},
	ThreeD: {
		QueryModifier:    "3d model download filetype:obj OR filetype:glb OR filetype:stl",
		AssetExts:        []string{".obj", ".glb", ".gltf", ".stl", ".fbx", ".ply"},
		ExportExts:       []string{".obj", ".glb", ".gltf", ".stl", ".fbx", ".ply"},
		SearchMultiplier: 3,
	},
	Numerical: {
		QueryModifier:    "dataset statistics table data csv tsv xlsx xls json",
		AssetExts:        []string{".csv", ".tsv", ".xlsx", ".xls", ".json"},
		ExportExts:       []string{".csv", ".tsv", ".xlsx", ".xls", ".json"},
		SearchMultiplier: 3,
	},
	QnA: {
		SearchMultiplier: 1,
	},
}

// preferredNumericalSubstrings mark URLs likely to serve raw data files.
var preferredNumericalSubstrings = []string{
	"/download", "/downloads", "/dataset", "/data",
	"api.", "/api/", "ourworldindata.org", "datahub.io",
}

// aliases maps accepted spellings onto canonical modalities.
var aliases = map[string]string{
	"images":  Image,
	"img":     Image,
	"texts":   Text,
	"article": News,
	"qa":      QnA,
	"q&a":     QnA,
	"three_d": ThreeD,
	"threed":  ThreeD,
	"model3d": ThreeD,
	"table":   Numerical,
	"tabular": Numerical,
	"numeric": Numerical,
}

// Normalize lowercases and maps aliases onto a known modality. Unknown
// values fall back to text.
func Normalize(m string) string {
	m = strings.ToLower(strings.TrimSpace(m))
	if canonical, ok := aliases[m]; ok {
		return canonical
	}
	if _, ok := profiles[m]; ok {
		return m
	}
	return Text
}

// Lookup returns the profile for a (normalized or raw) modality.
func Lookup(m string) Profile {
	return profiles[Normalize(m)]
}

// IsMedia reports whether the modality resolves embedded direct-asset
// URLs (audio, video, 3d).
func IsMedia(m string) bool {
	switch Normalize(m) {
	case Audio, Video, ThreeD:
		return true
	}
	return false
}

// IsTextLike reports whether the modality exports HTML pages converted
// to plain text.
func IsTextLike(m string) bool {
	switch Normalize(m) {
	case Text, News, Code:
		return true
	}
	return false
}

// SearchQuery appends the modality's query modifier, if any.
func SearchQuery(query, m string) string {
	p := Lookup(m)
	if p.QueryModifier == "" {
		return query
	}
	return query + " " + p.QueryModifier
}

// SearchLimit scales the requested count by the modality multiplier
// with a floor of 10 for media/numerical searches.
func SearchLimit(limit int, m string) int {
	p := Lookup(m)
	if p.SearchMultiplier <= 1 {
		return limit
	}
	n := limit * p.SearchMultiplier
	if n < 10 {
		n = 10
	}
	return n
}

// PreferNumericalURL reports whether the URL looks like a raw tabular
// data source (download endpoints, data-portal hosts).
func PreferNumericalURL(rawURL string) bool {
	lower := strings.ToLower(rawURL)
	for _, sub := range preferredNumericalSubstrings {
		if strings.Contains(lower, sub) {
			return true
		}
	}
	return false
}

// URLExtension returns the lowercased path extension of a URL without
// its query string, or "" when absent.
func URLExtension(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		// Fall back to the raw string with any query trimmed.
		if i := strings.IndexByte(rawURL, '?'); i >= 0 {
			rawURL = rawURL[:i]
		}
		return strings.ToLower(path.Ext(rawURL))
	}
	return strings.ToLower(path.Ext(u.Path))
}

// HasAssetExtension reports whether the URL ends in one of the
// modality's direct-asset extensions.
func HasAssetExtension(rawURL, m string) bool {
	ext := URLExtension(rawURL)
	if ext == "" {
		return false
	}
	for _, want := range Lookup(m).AssetExts {
		if ext == want {
			return true
		}
	}
	return false
}

// AllowedForExport reports whether a stored file with the given
// extension belongs in the modality's archive. Text-like modalities
// accept anything (HTML is converted separately).
func AllowedForExport(ext, m string) bool {
	p := Lookup(m)
	if len(p.ExportExts) == 0 {
		return true
	}
	ext = strings.ToLower(ext)
	for _, want := range p.ExportExts {
		if ext == want {
			return true
		}
	}
	return false
}

// contentTypeExts maps common content types to file extensions, checked
// before falling back to the URL path.
var contentTypeExts = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
	"image/bmp":  ".bmp",
	"image/tiff": ".tiff",

	"text/html":                 ".html",
	"text/plain":                ".txt",
	"text/csv":                  ".csv",
	"text/tab-separated-values": ".tsv",
	"application/json":          ".json",
	"application/pdf":           ".pdf",
	"application/vnd.ms-excel":  ".xls",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": ".xlsx",

	"audio/mpeg":  ".mp3",
	"audio/wav":   ".wav",
	"audio/x-wav": ".wav",
	"audio/flac":  ".flac",
	"audio/ogg":   ".ogg",
	"audio/mp4":   ".m4a",

	"video/mp4":       ".mp4",
	"video/webm":      ".webm",
	"video/quicktime": ".mov",
	"video/x-msvideo": ".avi",

	"model/obj":         ".obj",
	"model/gltf-binary": ".glb",
	"model/gltf+json":   ".gltf",
	"model/stl":         ".stl",
}

// knownURLExts is every extension any modality recognizes, used when
// the content type is missing or generic.
var knownURLExts = func() map[string]struct{} {
	set := make(map[string]struct{})
	for _, p := range profiles {
		for _, ext := range p.AssetExts {
			set[ext] = struct{}{}
		}
		for _, ext := range p.ExportExts {
			set[ext] = struct{}{}
		}
	}
	for _, ext := range []string{".html", ".htm", ".txt", ".md", ".pdf", ".xml"} {
		set[ext] = struct{}{}
	}
	return set
}()

// ExtensionFor picks a file extension from the response content type,
// then the URL path, then ".bin".
func ExtensionFor(contentType, rawURL string) string {
	ct := contentType
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	ct = strings.ToLower(strings.TrimSpace(ct))
	if ext, ok := contentTypeExts[ct]; ok {
		return ext
	}

	if ext := URLExtension(rawURL); ext != "" {
		if _, ok := knownURLExts[ext]; ok {
			return ext
		}
	}
	return ".bin"
}
