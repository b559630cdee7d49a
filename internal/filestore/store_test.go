package filestore

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

func TestStore_ListKeysPaginates(t *testing.T) {
	fake := &fakeS3{pageSize: 2, objects: map[string]fakeObject{
		"files/pdf/u1/t1/a.pdf": {body: []byte("a")},
		"files/pdf/u1/t1/b.pdf": {body: []byte("b")},
		"files/pdf/u2/t2/c.pdf": {body: []byte("c")},
		"files/img/u2/t3/d.png": {body: []byte("d")},
		"other/pdf/u1/t1/x.pdf": {body: []byte("x")},
	}}
	store := newFakeStore(t, fake)

	keys, err := store.ListKeys(context.Background(), "files", "")
	if err != nil {
		t.Fatalf("ListKeys: %v", err)
	}
	want := []string{"img/u2/t3/d.png", "pdf/u1/t1/a.pdf", "pdf/u1/t1/b.pdf", "pdf/u2/t2/c.pdf"}
	if !reflect.DeepEqual(keys, want) {
		t.Errorf("ListKeys = %v, want %v", keys, want)
	}

	keys, err = store.ListKeys(context.Background(), "files", "pdf/u1/")
	if err != nil {
		t.Fatalf("ListKeys with prefix: %v", err)
	}
	if len(keys) != 2 {
		t.Errorf("expected 2 keys under prefix, got %v", keys)
	}
}

func TestStore_CopyTagsOwner(t *testing.T) {
	fake := &fakeS3{objects: map[string]fakeObject{
		"files/pdf/user 1/t1/a b.pdf": {body: []byte("payload"), contentType: "application/pdf"},
	}}
	store := newFakeStore(t, fake)
	ctx := context.Background()

	err := store.Copy(ctx, CopyInput{
		SourceBucket: "files",
		SourceKey:    "pdf/user 1/t1/a b.pdf",
		DestKey:      "pdf/CLIENT_A/t1/a b.pdf",
		Owner:        "CLIENT_A",
	})
	if err != nil {
		t.Fatalf("Copy: %v", err)
	}
	copied, ok := fake.objects["files/pdf/CLIENT_A/t1/a b.pdf"]
	if !ok {
		t.Fatalf("copied object missing; have %v", fake.objects)
	}
	if string(copied.body) != "payload" {
		t.Errorf("unexpected body %q", copied.body)
	}
	if copied.tagging != "owner=CLIENT_A" {
		t.Errorf("unexpected tagging %q", copied.tagging)
	}
	if _, ok := fake.objects["files/pdf/user 1/t1/a b.pdf"]; !ok {
		t.Errorf("copy must not remove the source")
	}
}

func TestStore_CopyAcrossBuckets(t *testing.T) {
	fake := &fakeS3{objects: map[string]fakeObject{"files/k": {body: []byte("v")}}}
	store := newFakeStore(t, fake)

	if err := store.Copy(context.Background(), CopyInput{SourceBucket: "files", SourceKey: "k", DestBucket: "backup", DestKey: "snap/k"}); err != nil {
		t.Fatalf("Copy: %v", err)
	}
	obj, ok := fake.objects["backup/snap/k"]
	if !ok {
		t.Fatal("expected object in backup bucket")
	}
	if obj.tagging != "" {
		t.Errorf("expected no tagging without owner, got %q", obj.tagging)
	}
}

func TestStore_CopyMissingSource(t *testing.T) {
	store := newFakeStore(t, &fakeS3{})
	if err := store.Copy(context.Background(), CopyInput{SourceBucket: "files", SourceKey: "nope", DestKey: "x"}); err == nil {
		t.Fatal("expected error copying a missing object")
	}
}

func TestStore_HeadPutDelete(t *testing.T) {
	fake := &fakeS3{}
	store := newFakeStore(t, fake)
	ctx := context.Background()

	if _, err := store.Head(ctx, "files", "k"); err == nil {
		t.Fatal("expected head of missing object to fail")
	}
	if err := store.Put(ctx, "files", "k", []byte(`{"a":1}`), "application/json"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	info, err := store.Head(ctx, "files", "k")
	if err != nil {
		t.Fatalf("Head: %v", err)
	}
	if info.Key != "k" || info.Bucket != "files" || info.ETag != "etag123" {
		t.Errorf("unexpected info %+v", info)
	}
	if string(fake.objects["files/k"].body) != `{"a":1}` {
		t.Errorf("unexpected stored body %q", fake.objects["files/k"].body)
	}
	if err := store.Delete(ctx, "files", "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok := fake.objects["files/k"]; ok {
		t.Error("expected object to be deleted")
	}
}

func TestCopySource(t *testing.T) {
	if got := copySource("b", "a dir/x+y.pdf"); got != "b/a%20dir/x+y.pdf" {
		t.Errorf("copySource = %q", got)
	}
}

func TestStore_NotFoundIsClassified(t *testing.T) {
	store := newFakeStore(t, &fakeS3{})
	ctx := context.Background()

	if _, err := store.Head(ctx, "files", "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Head: expected ErrNotFound, got %v", err)
	}
	err := store.Copy(ctx, CopyInput{SourceBucket: "files", SourceKey: "missing", DestKey: "x"})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Copy: expected ErrNotFound, got %v", err)
	}
}

func TestStore_HeadReportsETag(t *testing.T) {
	fake := &fakeS3{objects: map[string]fakeObject{"files/doc.pdf": {body: []byte("pdf"), contentType: "application/pdf"}}}
	store := newFakeStore(t, fake)

	info, err := store.Head(context.Background(), "files", "doc.pdf")
	if err != nil {
		t.Fatalf("Head: %v", err)
	}
	if info.ETag != "etag123" || info.Size != 3 || info.ContentType != "application/pdf" {
		t.Errorf("unexpected info %+v", info)
	}
	if got := respond(200, "", map[string][]string{"ETag": {"x"}}).Header.Get("ETag"); got != "x" {
		t.Errorf("respond should canonicalize header keys, got %q", got)
	}
}
