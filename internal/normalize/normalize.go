// package normalize canonicalizes raw track metadata for cross-service
// comparison. Normalization is a pure, total function: malformed input
// degrades to empty canonical fields instead of erroring, so matching
// downstream produces low scores rather than failures.
package normalize

import (
	"math"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/desertthunder/tunesync/internal/models"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Canonical is the normalized, comparable form of a track. It is derived on
// demand and never persisted on its own.
type Canonical struct {
	Title          string   // lowercase, noise-stripped title
	PrimaryArtist  string   // lowercase primary artist
	Featured       []string // featured artists, order-irrelevant
	DurationBucket int      // duration rounded to nearest 5s; 0 = absent
}

// Noise phrases stripped from bracketed/parenthetical title segments.
// A segment is dropped when it contains any of these as a whole word;
// other segments hold featuring credits and are folded into the
// featured-artist set.
var noisePhrases = []string{
	"official video",
	"official music video",
	"official audio",
	"lyric video",
	"lyrics",
	"audio",
	"remastered",
	"remaster",
	"visualizer",
	"hd",
	"live",
	"mv",
}

// noiseRe matches noise phrases as whole words only; "live" must not
// fire inside "oliver" nor "mv" inside a longer name.
var noiseRe = func() *regexp.Regexp {
	quoted := make([]string, len(noisePhrases))
	for i, phrase := range noisePhrases {
		quoted[i] = regexp.QuoteMeta(phrase)
	}
	return regexp.MustCompile(`\b(?:` + strings.Join(quoted, "|") + `)\b`)
}()

var (
	bracketRe   = regexp.MustCompile(`[(\[]([^)\]]*)[)\]]`)
	featSplitRe = regexp.MustCompile(`(?i)\s+(?:feat\.?|ft\.?|featuring|with)\s+`)
	featLeadRe  = regexp.MustCompile(`(?i)^(?:feat\.?|ft\.?|featuring|with)\s+`)
	spaceRe     = regexp.MustCompile(`\s+`)
	punctRe     = regexp.MustCompile(`[^a-z0-9\s\-]`)
	nameSplitRe = regexp.MustCompile(`\s*(?:,|&|\band\b)\s*`)
)

var accentStripper = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Track normalizes a raw track into its canonical form.
func Track(t models.Track) Canonical {
	title, featured := splitTitle(t.Title)

	primary := ""
	if len(t.Artists) > 0 {
		primary, featured = splitArtists(t.Artists, featured)
		title = stripArtistSegment(title, primary)
	} else if left, right, ok := strings.Cut(title, "-"); ok {
		// No artist field from the platform: treat the title as an
		// "Artist - Title" pair split on the first hyphen.
		primary = CleanText(left)
		title = right
	}

	return Canonical{
		Title:          CleanText(title),
		PrimaryArtist:  CleanText(primary),
		Featured:       dedupe(featured),
		DurationBucket: DurationBucket(t.Duration),
	}
}

// DurationBucket rounds a duration in seconds to the nearest 5-second bucket.
// Non-positive durations map to 0, meaning absent.
func DurationBucket(seconds int) int {
	if seconds <= 0 {
		return 0
	}
	return int(math.Round(float64(seconds) / 5.0))
}

// CleanText lowercases, folds accents, strips punctuation, and collapses
// whitespace. Applying it twice yields the same string.
func CleanText(s string) string {
	s = strings.ToLower(s)
	if folded, _, err := transform.String(accentStripper, s); err == nil {
		s = folded
	}
	s = punctRe.ReplaceAllString(s, "")
	s = spaceRe.ReplaceAllString(s, " ")
	s = strings.Trim(s, " -")
	return strings.TrimSpace(s)
}

// SearchQuery builds the "artist title" string sent to a destination
// platform's search endpoint.
func (c Canonical) SearchQuery() string {
	if c.PrimaryArtist == "" {
		return c.Title
	}
	return c.PrimaryArtist + " " + c.Title
}

// Equal reports whether two canonical tracks are identical. Featured artists
// compare as a set.
func (c Canonical) Equal(other Canonical) bool {
	if c.Title != other.Title || c.PrimaryArtist != other.PrimaryArtist {
		return false
	}
	if c.DurationBucket != other.DurationBucket {
		return false
	}
	return featuredSetEqual(c.Featured, other.Featured)
}

// FeaturedOverlap reports whether any featured artist appears in both sets.
func (c Canonical) FeaturedOverlap(other Canonical) bool {
	if len(c.Featured) == 0 || len(other.Featured) == 0 {
		return false
	}
	set := make(map[string]struct{}, len(c.Featured))
	for _, f := range c.Featured {
		set[f] = struct{}{}
	}
	for _, f := range other.Featured {
		if _, ok := set[f]; ok {
			return true
		}
	}
	return false
}

// splitTitle lowercases a raw title, removes noise segments, and extracts
// featuring credits from both bracketed segments and inline "feat." markers.
func splitTitle(raw string) (string, []string) {
	title := strings.ToLower(raw)
	var featured []string

	title = bracketRe.ReplaceAllStringFunc(title, func(segment string) string {
		inner := strings.Trim(segment, "()[]")
		if isNoise(inner) {
			return ""
		}
		featured = append(featured, parseFeatured(inner)...)
		return ""
	})

	// Trailing "- official video" style suffixes carry no brackets.
	for _, phrase := range noisePhrases {
		title = strings.TrimSuffix(strings.TrimSpace(title), "- "+phrase)
	}

	parts := featSplitRe.Split(title, -1)
	title = parts[0]
	for _, part := range parts[1:] {
		featured = append(featured, splitNames(part)...)
	}

	return title, featured
}

// splitArtists separates the primary artist from featured ones. Featuring
// markers inside the primary artist string also count.
func splitArtists(artists []string, featured []string) (string, []string) {
	parts := featSplitRe.Split(artists[0], -1)
	primary := parts[0]
	for _, part := range parts[1:] {
		featured = append(featured, splitNames(part)...)
	}

	for _, name := range artists[1:] {
		featured = append(featured, splitNames(name)...)
	}

	return primary, featured
}

// stripArtistSegment removes a hyphen-separated segment equal to the known
// artist from the title, handling both "Artist - Title" and "Title - Artist"
// orderings.
func stripArtistSegment(title, artist string) string {
	cleanArtist := CleanText(artist)
	if cleanArtist == "" {
		return title
	}

	segments := strings.Split(title, "-")
	if len(segments) < 2 {
		return title
	}

	kept := segments[:0]
	for _, segment := range segments {
		if CleanText(segment) == cleanArtist {
			continue
		}
		kept = append(kept, segment)
	}
	if len(kept) == 0 {
		return title
	}
	return strings.Join(kept, "-")
}

func isNoise(segment string) bool {
	return noiseRe.MatchString(CleanText(segment))
}

// parseFeatured interprets a non-noise bracketed segment as featuring
// credits, with or without a leading "feat." marker.
func parseFeatured(segment string) []string {
	segment = featLeadRe.ReplaceAllString(strings.TrimSpace(segment), "")
	return splitNames(segment)
}

func splitNames(s string) []string {
	var names []string
	for _, name := range nameSplitRe.Split(s, -1) {
		if cleaned := CleanText(name); cleaned != "" {
			names = append(names, cleaned)
		}
	}
	return names
}

func dedupe(names []string) []string {
	if len(names) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(names))
	var out []string
	for _, name := range names {
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}

func featuredSetEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	as := append([]string(nil), a...)
	bs := append([]string(nil), b...)
	sort.Strings(as)
	sort.Strings(bs)
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}
