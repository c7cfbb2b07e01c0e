package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLocal_ReadMissingIsNotFound(t *testing.T) {
	l := NewLocal(t.TempDir())

	_, err := l.Read(context.Background(), "accounts.csv")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Read() error = %v, want ErrNotFound", err)
	}
}

func TestLocal_ReadOtherFailureIsNotNotFound(t *testing.T) {
	dir := t.TempDir()
	// A directory where a file is expected fails for a reason other than absence.
	if err := os.Mkdir(filepath.Join(dir, "accounts.csv"), 0o755); err != nil {
		t.Fatal(err)
	}

	_, err := NewLocal(dir).Read(context.Background(), "accounts.csv")
	if err == nil {
		t.Fatal("expected an error reading a directory")
	}
	if errors.Is(err, ErrNotFound) {
		t.Error("a non-missing read failure must not be reported as ErrNotFound")
	}
}

func TestLocal_WriteReadList(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "nested", "exports")
	l := NewLocal(dir)

	if err := l.Write(ctx, "pots.csv", []byte("first")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := l.Write(ctx, "pots.csv", []byte("second")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := l.Write(ctx, "accounts.csv", []byte("a")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	data, err := l.Read(ctx, "pots.csv")
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if string(data) != "second" {
		t.Errorf("Read() = %q, want %q", data, "second")
	}

	objects, err := l.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(objects) != 2 || objects[0].Name != "accounts.csv" || objects[1].Name != "pots.csv" {
		t.Errorf("List() = %+v, want accounts.csv and pots.csv only", objects)
	}
}

func TestLocal_ListMissingRoot(t *testing.T) {
	objects, err := NewLocal(filepath.Join(t.TempDir(), "absent")).List(context.Background())
	if err != nil || len(objects) != 0 {
		t.Errorf("List() = %v, %v; want empty, nil", objects, err)
	}
}

func TestParseGCSURI(t *testing.T) {
	tests := []struct {
		uri        string
		wantBucket string
		wantPrefix string
		wantErr    bool
	}{
		{"gs://bucket/exports/monzo", "bucket", "exports/monzo", false},
		{"gs://bucket", "bucket", "", false},
		{"gs://bucket/", "bucket", "", false},
		{"bucket/prefix", "bucket", "prefix", false},
		{"gs://", "", "", true},
		{"", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			bucket, prefix, err := ParseGCSURI(tt.uri)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseGCSURI() error = %v, wantErr %v", err, tt.wantErr)
			}
			if bucket != tt.wantBucket || prefix != tt.wantPrefix {
				t.Errorf("ParseGCSURI() = (%q, %q), want (%q, %q)", bucket, prefix, tt.wantBucket, tt.wantPrefix)
			}
		})
	}
}

func TestObjectPath(t *testing.T) {
	tests := []struct {
		kind Kind
		root string
		want string
	}{
		{KindLocal, "data", filepath.Join("data", "transactions.csv")},
		{KindGCS, "gs://bucket/exports", "gs://bucket/exports/transactions.csv"},
		{KindGCS, "gs://bucket", "gs://bucket/transactions.csv"},
	}
	for _, tt := range tests {
		if got := ObjectPath(tt.kind, tt.root, "transactions", "csv"); got != tt.want {
			t.Errorf("ObjectPath(%s, %q) = %q, want %q", tt.kind, tt.root, got, tt.want)
		}
	}
}

func TestParseKind(t *testing.T) {
	tests := []struct {
		in      string
		want    Kind
		wantErr bool
	}{
		{"local", KindLocal, false},
		{"", KindLocal, false},
		{"GCS", KindGCS, false},
		{"s3", "", true},
	}
	for _, tt := range tests {
		got, err := ParseKind(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseKind(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestOpen_Local(t *testing.T) {
	dir := t.TempDir()
	b, closeFn, err := Open(context.Background(), KindLocal, dir)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer closeFn()

	if got := b.Location("accounts.csv"); got != filepath.Join(dir, "accounts.csv") {
		t.Errorf("Location() = %q", got)
	}

	if _, _, err := Open(context.Background(), Kind("s3"), dir); err == nil {
		t.Error("expected error for unsupported kind")
	}
}
