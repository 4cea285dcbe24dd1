package inspect

import (
	"io"
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Virtualized panels typically stamp generated suffixes onto stable
// class/id prefixes ("entryText-491", "timestampSpeakerAriaLabel-23"). The
// analysis groups by prefix and proposes attribute-prefix selectors for the
// groups that repeat enough to look like entry parts.
const minPrefixCount = 5

// Candidate is one proposed selector with how many elements it matched in
// the snapshot.
type Candidate struct {
	Selector string `json:"selector"`
	Count    int    `json:"count"`
}

// Analysis is the result of the static markup pass.
type Analysis struct {
	ContainerCandidates []Candidate `json:"containerCandidates"`
	ClassPrefixes       []Candidate `json:"classPrefixCandidates"`
	IDPrefixes          []Candidate `json:"idPrefixCandidates"`
}

var generatedSuffixRe = regexp.MustCompile(`^(.*?)[-_]\d+$`)

func stablePrefix(name string) string {
	if m := generatedSuffixRe.FindStringSubmatch(name); m != nil {
		return m[1]
	}
	return ""
}

// AnalyzeHTML scans a page snapshot for repeating class/id prefixes and for
// plausible scroll containers (elements with many children carrying a shared
// prefix).
func AnalyzeHTML(r io.Reader) (*Analysis, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, err
	}

	classCounts := make(map[string]int)
	idCounts := make(map[string]int)

	doc.Find("*").Each(func(_ int, s *goquery.Selection) {
		if cls, ok := s.Attr("class"); ok {
			for _, c := range strings.Fields(cls) {
				if p := stablePrefix(c); p != "" {
					classCounts[p]++
				}
			}
		}
		if id, ok := s.Attr("id"); ok {
			if p := stablePrefix(id); p != "" {
				idCounts[p]++
			}
		}
	})

	a := &Analysis{}
	for p, n := range classCounts {
		if n >= minPrefixCount {
			a.ClassPrefixes = append(a.ClassPrefixes, Candidate{
				Selector: `[class^="` + p + `-"]`,
				Count:    n,
			})
		}
	}
	for p, n := range idCounts {
		if n >= minPrefixCount {
			a.IDPrefixes = append(a.IDPrefixes, Candidate{
				Selector: `[id^="` + p + `-"]`,
				Count:    n,
			})
		}
	}

	// A container candidate: an element with an id whose direct children
	// mostly share one stable class prefix.
	doc.Find("[id]").Each(func(_ int, s *goquery.Selection) {
		children := s.Children()
		if children.Length() < minPrefixCount {
			return
		}
		prefixOf := make(map[string]int)
		children.Each(func(_ int, c *goquery.Selection) {
			cls, _ := c.Attr("class")
			for _, cname := range strings.Fields(cls) {
				if p := stablePrefix(cname); p != "" {
					prefixOf[p]++
					break
				}
			}
		})
		for _, n := range prefixOf {
			if n*2 >= children.Length() {
				id, _ := s.Attr("id")
				a.ContainerCandidates = append(a.ContainerCandidates, Candidate{
					Selector: "#" + id,
					Count:    children.Length(),
				})
				break
			}
		}
	})

	byCount := func(cs []Candidate) func(i, j int) bool {
		return func(i, j int) bool {
			if cs[i].Count != cs[j].Count {
				return cs[i].Count > cs[j].Count
			}
			return cs[i].Selector < cs[j].Selector
		}
	}
	sort.Slice(a.ClassPrefixes, byCount(a.ClassPrefixes))
	sort.Slice(a.IDPrefixes, byCount(a.IDPrefixes))
	sort.Slice(a.ContainerCandidates, byCount(a.ContainerCandidates))
	return a, nil
}
