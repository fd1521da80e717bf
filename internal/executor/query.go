package executor

import (
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"wikistat/internal/domain"
)

// Placeholder names accepted in statement templates.
const (
	PlaceholderBaseURL       = "base_url"
	PlaceholderDatePattern   = "date_pattern"
	PlaceholderTable         = "table"
	PlaceholderKeywordsTable = "keywords_table"
)

var (
	placeholderPattern = regexp.MustCompile(`\{([a-z_]+)\}`)
	identifierPattern  = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

// QueryTemplate is a SQL text with {base_url}, {date_pattern}, {table} and
// {keywords_table} placeholders. Values are validated before substitution, so
// a rendered statement can only ever contain a well-formed URL, dump path and
// plain identifiers.
type QueryTemplate struct {
	name   string
	text   string
	params []string
}

// ParseQueryTemplate checks text for placeholders and rejects unknown names.
func ParseQueryTemplate(name, text string) (*QueryTemplate, error) {
	seen := make(map[string]bool)
	for _, m := range placeholderPattern.FindAllStringSubmatch(text, -1) {
		switch m[1] {
		case PlaceholderBaseURL, PlaceholderDatePattern, PlaceholderTable, PlaceholderKeywordsTable:
			seen[m[1]] = true
		default:
			return nil, fmt.Errorf("template %s: unknown placeholder {%s}", name, m[1])
		}
	}

	params := make([]string, 0, len(seen))
	for p := range seen {
		params = append(params, p)
	}
	sort.Strings(params)
	return &QueryTemplate{name: name, text: text, params: params}, nil
}

// Name returns the template name, usually its file name.
func (q *QueryTemplate) Name() string { return q.name }

// Placeholders returns the placeholder names used by the template.
func (q *QueryTemplate) Placeholders() []string { return q.params }

// Uses reports whether the template contains the placeholder name.
func (q *QueryTemplate) Uses(name string) bool {
	for _, p := range q.params {
		if p == name {
			return true
		}
	}
	return false
}

// Render substitutes the placeholders. Every placeholder used by the template
// must be present in values and pass validation.
func (q *QueryTemplate) Render(values map[string]string) (string, error) {
	for _, p := range q.params {
		v, ok := values[p]
		if !ok {
			return "", fmt.Errorf("template %s: missing value for {%s}", q.name, p)
		}
		if err := validatePlaceholder(p, v); err != nil {
			return "", fmt.Errorf("template %s: %w", q.name, err)
		}
	}

	return placeholderPattern.ReplaceAllStringFunc(q.text, func(m string) string {
		return values[m[1:len(m)-1]]
	}), nil
}

// Params returns the placeholder values for loading id from baseURL.
func Params(baseURL string, id domain.FileID) map[string]string {
	return map[string]string{
		PlaceholderBaseURL:     baseURL,
		PlaceholderDatePattern: string(id),
	}
}

func validatePlaceholder(name, value string) error {
	switch name {
	case PlaceholderDatePattern:
		if _, err := domain.ParseFileID(value); err != nil {
			return fmt.Errorf("invalid {%s}: %w", name, err)
		}
		return nil
	case PlaceholderBaseURL:
		return ValidateBaseURL(value)
	case PlaceholderTable, PlaceholderKeywordsTable:
		if err := ValidateIdentifier(value); err != nil {
			return fmt.Errorf("invalid {%s}: %w", name, err)
		}
		return nil
	}
	return fmt.Errorf("unknown placeholder {%s}", name)
}

// ValidateBaseURL accepts absolute http(s) URLs ending in a slash that are
// safe to embed in a quoted SQL string.
func ValidateBaseURL(value string) error {
	if strings.ContainsAny(value, "'\"\\;{}` \t\r\n") {
		return fmt.Errorf("invalid base url %q: forbidden character", value)
	}
	u, err := url.Parse(value)
	if err != nil {
		return fmt.Errorf("invalid base url %q: %w", value, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid base url %q: scheme must be http or https", value)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid base url %q: missing host", value)
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return fmt.Errorf("invalid base url %q: query and fragment not allowed", value)
	}
	if !strings.HasSuffix(value, "/") {
		return fmt.Errorf("invalid base url %q: must end with /", value)
	}
	return nil
}

// ValidateIdentifier accepts plain SQL identifiers such as table names.
func ValidateIdentifier(name string) error {
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("invalid identifier %q", name)
	}
	return nil
}

// SplitStatements splits a SQL script on semicolons that are outside quoted
// strings and comments. Empty statements are dropped.
func SplitStatements(script string) []string {
	var stmts []string
	var cur strings.Builder
	inQuote, inDoubleQuote, inComment := false, false, false

	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			stmts = append(stmts, s)
		}
		cur.Reset()
	}

	for i := 0; i < len(script); i++ {
		c := script[i]
		switch {
		case inComment:
			if c == '\n' {
				inComment = false
				cur.WriteByte(c)
			}
			continue
		case inQuote:
			if c == '\'' {
				inQuote = false
			}
		case inDoubleQuote:
			if c == '"' {
				inDoubleQuote = false
			}
		case c == '-' && i+1 < len(script) && script[i+1] == '-':
			inComment = true
			continue
		case c == '\'':
			inQuote = true
		case c == '"':
			inDoubleQuote = true
		case c == ';':
			flush()
			continue
		}
		cur.WriteByte(c)
	}
	flush()
	return stmts
}
