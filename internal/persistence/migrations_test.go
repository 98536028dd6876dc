package persistence

import (
	"io/fs"
	"strings"
	"testing"
)

func TestEmbeddedMigrationsAreGooseAnnotated(t *testing.T) {
	names, err := fs.Glob(MigrationFS(), "*.sql")
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(names) == 0 {
		t.Fatalf("no migrations embedded")
	}
	for _, name := range names {
		body, err := fs.ReadFile(MigrationFS(), name)
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		text := string(body)
		if !strings.Contains(text, "-- +goose Up") || !strings.Contains(text, "-- +goose Down") {
			t.Fatalf("%s lacks goose up/down markers", name)
		}
	}
}

func TestInitMigrationGuardsChangelog(t *testing.T) {
	body, err := fs.ReadFile(MigrationFS(), "00001_init.sql")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	for _, want := range []string{"BEFORE UPDATE OR DELETE ON ticket_changelog", "UNIQUE (ticket_id, user_id)", "version"} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("init migration missing %q", want)
		}
	}
}
