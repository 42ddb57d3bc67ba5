package db

import "testing"

func TestOpenMemory(t *testing.T) {
	d, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { d.Close() })

	// All core tables exist.
	for _, table := range []string{
		"data_sources", "content_items", "signals",
		"narratives", "evidence_links", "ideas", "job_runs",
	} {
		var name string
		err := d.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %s missing: %v", table, err)
		}
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	d, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { d.Close() })

	if err := d.migrate(); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

func TestContentHashUnique(t *testing.T) {
	d, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { d.Close() })

	_, err = d.Exec(`INSERT INTO data_sources (id, name, url, source_type) VALUES ('s1', 'src', 'https://example.com', 'web')`)
	if err != nil {
		t.Fatalf("inserting source: %v", err)
	}

	insert := `INSERT INTO content_items (id, source_id, source_type, raw_text, url, content_hash) VALUES (?, 's1', 'web', 'text', 'https://example.com/a', 'abc')`
	if _, err := d.Exec(insert, "c1"); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if _, err := d.Exec(insert, "c2"); err == nil {
		t.Error("expected unique constraint violation on duplicate content_hash")
	}
}
