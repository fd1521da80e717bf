package executor

import (
	"bufio"
	"context"
	"io"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"wikistat/internal/domain"
)

// PageviewLine is one parsed line of an hourly dump:
// "domain_code page_title count_views response_size".
type PageviewLine struct {
	Project    string
	Subproject string
	Title      string
	Views      int64
}

// ParseLine parses a dump line. Lines with fewer than three fields, a
// non-numeric view count or invalid UTF-8 are rejected.
func ParseLine(line string) (PageviewLine, bool) {
	cols := strings.Fields(line)
	if len(cols) < 3 {
		return PageviewLine{}, false
	}
	if !utf8.ValidString(cols[1]) {
		return PageviewLine{}, false
	}
	views, err := strconv.ParseInt(cols[2], 10, 64)
	if err != nil || views < 0 {
		return PageviewLine{}, false
	}

	project, subproject, _ := strings.Cut(cols[0], ".")
	return PageviewLine{
		Project:    project,
		Subproject: subproject,
		Title:      cols[1],
		Views:      views,
	}, true
}

// KeywordMatcher tells whether a page title is one of the tracked keywords.
// Titles and keywords are compared in Unicode NFC form, optionally with
// case folding.
type KeywordMatcher struct {
	keywords map[string]struct{}
	fold     bool
	folder   cases.Caser
}

// NewKeywordMatcher returns a matcher for keywords.
func NewKeywordMatcher(keywords []domain.Keyword, foldCase bool) *KeywordMatcher {
	m := &KeywordMatcher{
		keywords: make(map[string]struct{}, len(keywords)),
		fold:     foldCase,
		folder:   cases.Fold(),
	}
	for _, k := range keywords {
		if k.Keyword == "" {
			continue
		}
		m.keywords[m.key(k.Keyword)] = struct{}{}
	}
	return m
}

// Len returns the number of distinct keywords.
func (m *KeywordMatcher) Len() int { return len(m.keywords) }

// Match reports whether title is a tracked keyword.
func (m *KeywordMatcher) Match(title string) bool {
	_, ok := m.keywords[m.key(title)]
	return ok
}

func (m *KeywordMatcher) key(s string) string {
	s = norm.NFC.String(s)
	if m.fold {
		s = m.folder.String(s)
	}
	return s
}

type pageviewKey struct {
	project, subproject, path string
}

// lineBatchSize is the number of dump lines handed from the reading stage to
// the matching stage at once.
const lineBatchSize = 4096

// ReadPageviews scans an uncompressed dump and returns the matching rows,
// with views summed per project, subproject and path in the order they were
// first seen. Unparseable lines are skipped and counted in skipped.
//
// Reading r (which for a dump includes decompression) runs in one goroutine
// and parsing, keyword matching and aggregation in another, joined by a
// channel of line batches.
func ReadPageviews(ctx context.Context, r io.Reader, hour time.Time, m *KeywordMatcher) (rows []domain.Pageview, skipped int, err error) {
	batches := make(chan []string, 4)
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(batches)
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		batch := make([]string, 0, lineBatchSize)
		for scanner.Scan() {
			batch = append(batch, scanner.Text())
			if len(batch) < lineBatchSize {
				continue
			}
			select {
			case batches <- batch:
			case <-ctx.Done():
				return ctx.Err()
			}
			batch = make([]string, 0, lineBatchSize)
		}
		if err := scanner.Err(); err != nil {
			return err
		}
		if len(batch) > 0 {
			select {
			case batches <- batch:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})

	counts := make(map[pageviewKey]int64)
	var order []pageviewKey
	g.Go(func() error {
		for batch := range batches {
			if err := ctx.Err(); err != nil {
				return err
			}
			for _, text := range batch {
				line, ok := ParseLine(text)
				if !ok {
					skipped++
					continue
				}
				if !m.Match(line.Title) {
					continue
				}
				k := pageviewKey{line.Project, line.Subproject, line.Title}
				if _, seen := counts[k]; !seen {
					order = append(order, k)
				}
				counts[k] += line.Views
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, skipped, err
	}

	rows = make([]domain.Pageview, 0, len(order))
	for _, k := range order {
		rows = append(rows, domain.Pageview{
			Hour:       hour,
			Project:    k.project,
			Subproject: k.subproject,
			Path:       k.path,
			Hits:       counts[k],
		})
	}
	return rows, skipped, nil
}
