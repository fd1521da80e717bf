package executor

import (
	"reflect"
	"strings"
	"testing"

	"wikistat/internal/domain"
)

const testBaseURL = "https://dumps.wikimedia.org/other/pageviews/"

func TestQueryTemplateRender(t *testing.T) {
	q, err := ParseQueryTemplate("load.sql", "SELECT * FROM read_csv('{base_url}{date_pattern}')")
	if err != nil {
		t.Fatalf("ParseQueryTemplate: %v", err)
	}
	if got, want := q.Placeholders(), []string{"base_url", "date_pattern"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Placeholders() = %v, want %v", got, want)
	}

	got, err := q.Render(Params(testBaseURL, domain.NewFileID(2025, 1, 1, 0)))
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	want := "SELECT * FROM read_csv('https://dumps.wikimedia.org/other/pageviews/2025/2025-01/pageviews-20250101-000000.gz')"
	if got != want {
		t.Errorf("Render:\n  got  %s\n  want %s", got, want)
	}
}

func TestParseQueryTemplateUnknownPlaceholder(t *testing.T) {
	if _, err := ParseQueryTemplate("bad.sql", "DROP TABLE {schema}"); err == nil {
		t.Error("expected error for unknown placeholder")
	}
	// Braces that are not placeholder names are left alone.
	if _, err := ParseQueryTemplate("ok.sql", "SELECT regexp_extract(x, '[0-9]{8}')"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestQueryTemplateRejectsUnsafeTable(t *testing.T) {
	q, err := ParseQueryTemplate("load.sql", "INSERT INTO {table} SELECT '{date_pattern}'")
	if err != nil {
		t.Fatalf("ParseQueryTemplate: %v", err)
	}
	values := Params(testBaseURL, domain.NewFileID(2025, 1, 1, 0))
	values[PlaceholderTable] = "t; DROP TABLE x"
	if got, err := q.Render(values); err == nil {
		t.Errorf("Render = %q, want error", got)
	}
}

func TestQueryTemplateRejectsUnsafeValues(t *testing.T) {
	q, err := ParseQueryTemplate("load.sql", "SELECT '{base_url}{date_pattern}'")
	if err != nil {
		t.Fatalf("ParseQueryTemplate: %v", err)
	}
	id := string(domain.NewFileID(2025, 1, 1, 0))

	tests := []struct {
		name   string
		values map[string]string
	}{
		{"missing date", map[string]string{PlaceholderBaseURL: testBaseURL}},
		{"missing base", map[string]string{PlaceholderDatePattern: id}},
		{"quote in url", map[string]string{PlaceholderBaseURL: "https://x.org/'; DROP TABLE t; --/", PlaceholderDatePattern: id}},
		{"bad date", map[string]string{PlaceholderBaseURL: testBaseURL, PlaceholderDatePattern: "2025/2025-01/x'.gz"}},
		{"no trailing slash", map[string]string{PlaceholderBaseURL: "https://x.org/pageviews", PlaceholderDatePattern: id}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got, err := q.Render(tt.values); err == nil {
				t.Errorf("Render = %q, want error", got)
			}
		})
	}
}

func TestValidateBaseURL(t *testing.T) {
	good := []string{testBaseURL, "http://localhost:8080/dumps/"}
	for _, u := range good {
		if err := ValidateBaseURL(u); err != nil {
			t.Errorf("ValidateBaseURL(%q): %v", u, err)
		}
	}
	bad := []string{"", "ftp://x.org/", "https:///", "https://x.org/?a=b/", "https://x.org/a b/", "/relative/"}
	for _, u := range bad {
		if err := ValidateBaseURL(u); err == nil {
			t.Errorf("ValidateBaseURL(%q) should fail", u)
		}
	}
}

func TestValidateIdentifier(t *testing.T) {
	for _, name := range []string{"wikistat_data_engineering", "_t", "T1"} {
		if err := ValidateIdentifier(name); err != nil {
			t.Errorf("ValidateIdentifier(%q): %v", name, err)
		}
	}
	for _, name := range []string{"", "1t", "t;drop", "a.b", "a b"} {
		if err := ValidateIdentifier(name); err == nil {
			t.Errorf("ValidateIdentifier(%q) should fail", name)
		}
	}
}

func TestSplitStatements(t *testing.T) {
	script := `-- header; with a semicolon
CREATE TABLE a (x VARCHAR);
INSERT INTO a VALUES ('x;y');  -- trailing
INSERT INTO a VALUES ("q;r");
;
`
	got := SplitStatements(script)
	want := []string{
		"CREATE TABLE a (x VARCHAR)",
		"INSERT INTO a VALUES ('x;y')",
		`INSERT INTO a VALUES ("q;r")`,
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("SplitStatements:\n  got  %q\n  want %q", got, want)
	}
}

func TestDefaultScripts(t *testing.T) {
	s, err := DefaultScripts()
	if err != nil {
		t.Fatalf("DefaultScripts: %v", err)
	}
	if len(s.Setup) != 2 {
		t.Fatalf("got %d setup scripts, want 2", len(s.Setup))
	}
	if s.Setup[0].Name() != "01_create_tables.sql" || s.Setup[1].Name() != "02_create_keywords.sql" {
		t.Errorf("setup order = %s, %s", s.Setup[0].Name(), s.Setup[1].Name())
	}
	for _, q := range s.Setup {
		if _, err := q.Render(map[string]string{PlaceholderTable: "t", PlaceholderKeywordsTable: "k"}); err != nil {
			t.Errorf("render %s: %v", q.Name(), err)
		}
	}
	if s.Load.Name() != "04_load_filtered_pageviews.sql" {
		t.Errorf("load script = %s", s.Load.Name())
	}

	if !s.Load.Uses(PlaceholderTable) {
		t.Errorf("load script does not insert into {%s}", PlaceholderTable)
	}

	values := Params(testBaseURL, domain.NewFileID(2025, 1, 1, 0))
	values[PlaceholderTable] = "my_table"
	values[PlaceholderKeywordsTable] = "my_keywords"
	stmt, err := s.Load.Render(values)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(stmt, "INSERT INTO my_table") || !strings.Contains(stmt, "FROM my_keywords") {
		t.Errorf("rendered load statement does not use the configured tables:\n%s", stmt)
	}
	if !strings.Contains(stmt, "'https://dumps.wikimedia.org/other/pageviews/2025/2025-01/pageviews-20250101-000000.gz'") {
		t.Errorf("rendered load statement does not reference the dump url:\n%s", stmt)
	}
	if n := len(SplitStatements(stmt)); n != 1 {
		t.Errorf("load script has %d statements, want 1", n)
	}
}
