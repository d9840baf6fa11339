package docstore

import (
	"reflect"
	"strings"
	"testing"
)

func TestSplitDocumentHeaderAndBody(t *testing.T) {
	content := "---\n" +
		"source: whoop\n" +
		"sleep:\n" +
		"  duration_minutes: 412.5\n" +
		"  efficiency: 91\n" +
		"---\n" +
		"Slept well, woke up once.\n"
	header, body, err := SplitDocument(content)
	if err != nil {
		t.Fatalf("split document failed: %v", err)
	}
	if header["source"] != "whoop" {
		t.Fatalf("expected source whoop, got %v", header["source"])
	}
	sleep, ok := header["sleep"].(map[string]any)
	if !ok {
		t.Fatalf("expected nested sleep map, got %T", header["sleep"])
	}
	if sleep["duration_minutes"] != 412.5 {
		t.Fatalf("expected duration 412.5, got %v", sleep["duration_minutes"])
	}
	if sleep["efficiency"] != int64(91) {
		t.Fatalf("expected int64 efficiency, got %T %v", sleep["efficiency"], sleep["efficiency"])
	}
	if body != "Slept well, woke up once.\n" {
		t.Fatalf("expected body preserved, got %q", body)
	}
}

func TestSplitDocumentNoHeader(t *testing.T) {
	content := "just notes\nwith --- in the middle\n"
	header, body, err := SplitDocument(content)
	if err != nil {
		t.Fatalf("split document failed: %v", err)
	}
	if header != nil {
		t.Fatalf("expected nil header, got %v", header)
	}
	if body != content {
		t.Fatalf("expected full content as body, got %q", body)
	}
}

func TestSplitDocumentUnterminatedHeader(t *testing.T) {
	if _, _, err := SplitDocument("---\nsource: whoop\n"); err == nil {
		t.Fatal("expected error for unterminated header")
	}
}

func TestSplitDocumentIgnoresDashesInBody(t *testing.T) {
	content := "---\nkey: value\n---\nfirst\n---\nsecond\n"
	header, body, err := SplitDocument(content)
	if err != nil {
		t.Fatalf("split document failed: %v", err)
	}
	if header["key"] != "value" {
		t.Fatalf("expected key value, got %v", header["key"])
	}
	if body != "first\n---\nsecond\n" {
		t.Fatalf("expected body to keep later markers, got %q", body)
	}
}

func TestParseHeaderLists(t *testing.T) {
	header, err := ParseHeader(strings.Join([]string{
		"workouts:",
		"  - id: w1",
		"    sport: Running",
		"    strain: 12.4",
		"  - id: w2",
		"    sport: Cycling",
		"tags:",
		"  - morning",
		"  - outdoor",
	}, "\n"))
	if err != nil {
		t.Fatalf("parse header failed: %v", err)
	}
	workouts, ok := header["workouts"].([]any)
	if !ok || len(workouts) != 2 {
		t.Fatalf("expected two workouts, got %v", header["workouts"])
	}
	first, ok := workouts[0].(map[string]any)
	if !ok {
		t.Fatalf("expected map item, got %T", workouts[0])
	}
	if first["id"] != "w1" || first["sport"] != "Running" || first["strain"] != 12.4 {
		t.Fatalf("unexpected first workout: %v", first)
	}
	tags, ok := header["tags"].([]any)
	if !ok || !reflect.DeepEqual(tags, []any{"morning", "outdoor"}) {
		t.Fatalf("unexpected tags: %v", header["tags"])
	}
}

func TestParseHeaderScalars(t *testing.T) {
	header, err := ParseHeader(strings.Join([]string{
		"quoted: \"07:30\"",
		"flag: true",
		"absent: null",
		"count: 42",
		"note: plain text",
	}, "\n"))
	if err != nil {
		t.Fatalf("parse header failed: %v", err)
	}
	if header["quoted"] != "07:30" {
		t.Fatalf("expected quoted string, got %v", header["quoted"])
	}
	if header["flag"] != true {
		t.Fatalf("expected bool, got %v", header["flag"])
	}
	if header["absent"] != nil {
		t.Fatalf("expected nil, got %v", header["absent"])
	}
	if header["count"] != int64(42) {
		t.Fatalf("expected int64 42, got %T %v", header["count"], header["count"])
	}
	if header["note"] != "plain text" {
		t.Fatalf("expected plain string, got %v", header["note"])
	}
}

func TestParseHeaderRejectsBadIndent(t *testing.T) {
	if _, err := ParseHeader("key: value\n    orphan: 1\n  bad: 2"); err == nil {
		t.Fatal("expected indentation error")
	}
}

func TestComposeDocumentRoundTrip(t *testing.T) {
	header := map[string]any{
		"source": "whoop",
		"sleep": map[string]any{
			"duration_minutes": 412.5,
			"nap":              false,
			"start":            "2026-03-01T23:10:00Z",
		},
		"workouts": []any{
			map[string]any{"id": "w1", "sport": "Running", "strain": 12.4},
		},
	}
	body := "Felt rested.\n"
	composed := ComposeDocument(header, body)

	parsedHeader, parsedBody, err := SplitDocument(composed)
	if err != nil {
		t.Fatalf("split composed document failed: %v", err)
	}
	if parsedBody != body {
		t.Fatalf("expected body %q, got %q", body, parsedBody)
	}
	if !reflect.DeepEqual(parsedHeader, header) {
		t.Fatalf("round trip mismatch:\nwant %#v\ngot  %#v", header, parsedHeader)
	}
}

func TestComposeDocumentQuotesAmbiguousStrings(t *testing.T) {
	composed := ComposeDocument(map[string]any{
		"offset": "-05:00",
		"state":  "true",
	}, "")
	if !strings.Contains(composed, `offset: "-05:00"`) {
		t.Fatalf("expected quoted offset, got %q", composed)
	}
	if !strings.Contains(composed, `state: "true"`) {
		t.Fatalf("expected quoted boolean-like string, got %q", composed)
	}
	header, _, err := SplitDocument(composed)
	if err != nil {
		t.Fatalf("split composed document failed: %v", err)
	}
	if header["offset"] != "-05:00" || header["state"] != "true" {
		t.Fatalf("quoting did not round trip: %v", header)
	}
}

func TestComposeDocumentSortsKeys(t *testing.T) {
	composed := ComposeDocument(map[string]any{"zebra": 1, "alpha": 2}, "")
	if strings.Index(composed, "alpha") > strings.Index(composed, "zebra") {
		t.Fatalf("expected sorted keys, got %q", composed)
	}
}
