package attachments

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
)

func fixedNow() time.Time { return time.Date(2025, 11, 10, 9, 0, 0, 0, time.UTC) }

func TestCheckSize(t *testing.T) {
	if err := CheckSize(File{Name: "a.pdf", Size: 10 << 20}, 10<<20); err != nil {
		t.Fatalf("exact limit should pass: %v", err)
	}
	err := CheckSize(File{Name: "big.pdf", Size: 11 << 20}, 10<<20)
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
}

func TestLocalStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store := NewLocalStore(dir, "/v0/files/")
	store.Now = fixedNow
	att, err := store.Upload(context.Background(), File{Name: "../../term.pdf", Body: strings.NewReader("hello")}, "m1", "it")
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if att.Name != "term.pdf" || att.SizeBytes != 5 || att.UploadedAt != "2025-11-10T09:00:00Z" {
		t.Fatalf("unexpected attachment %+v", att)
	}
	if !strings.HasPrefix(att.URL, "/v0/files/m1/it/") || !strings.HasSuffix(att.URL, "-term.pdf") {
		t.Fatalf("unexpected url %s", att.URL)
	}

	srv := httptest.NewServer(store.Handler())
	defer srv.Close()
	res, err := http.Get(srv.URL + att.URL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(res.Body)
	res.Body.Close()
	if res.StatusCode != http.StatusOK || string(body) != "hello" {
		t.Fatalf("serve: %d %q", res.StatusCode, body)
	}

	ok, err := store.Delete(context.Background(), att.URL)
	if err != nil || !ok {
		t.Fatalf("delete: %v %v", ok, err)
	}
	ok, err = store.Delete(context.Background(), att.URL)
	if err != nil || ok {
		t.Fatalf("second delete should report missing: %v %v", ok, err)
	}
}

func TestLocalStoreDeleteStaysInsideDir(t *testing.T) {
	root := t.TempDir()
	outside := filepath.Join(root, "secret.txt")
	if err := os.WriteFile(outside, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	store := NewLocalStore(filepath.Join(root, "files"), "/v0/files")
	for _, url := range []string{"/v0/files/../secret.txt", "/elsewhere/secret.txt", "/v0/files/"} {
		ok, err := store.Delete(context.Background(), url)
		if ok || err != nil {
			t.Fatalf("%s: expected no-op, got %v %v", url, ok, err)
		}
	}
	if _, err := os.Stat(outside); err != nil {
		t.Fatalf("file outside the store was removed")
	}
}

type fakeS3 struct {
	puts    []*s3.PutObjectInput
	deletes []*s3.DeleteObjectInput
	err     error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.puts = append(f.puts, in)
	return &s3.PutObjectOutput{}, f.err
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.deletes = append(f.deletes, in)
	return &s3.DeleteObjectOutput{}, f.err
}

func TestS3StoreUploadAndDelete(t *testing.T) {
	client := &fakeS3{}
	store := &S3Store{Client: client, Bucket: "hr-docs", Region: "sa-east-1", Prefix: "movements", Now: fixedNow}
	att, err := store.Upload(context.Background(), File{Name: "letter.pdf", Size: 3, Body: strings.NewReader("pdf")}, "m1", "finance")
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if len(client.puts) != 1 || *client.puts[0].Bucket != "hr-docs" || *client.puts[0].ContentType != "application/octet-stream" {
		t.Fatalf("unexpected put %+v", client.puts)
	}
	key := *client.puts[0].Key
	if !strings.HasPrefix(key, "movements/m1/finance/") {
		t.Fatalf("unexpected key %s", key)
	}
	if att.URL != "https://hr-docs.s3.sa-east-1.amazonaws.com/"+key || att.SizeBytes != 3 {
		t.Fatalf("unexpected attachment %+v", att)
	}
	ok, err := store.Delete(context.Background(), att.URL)
	if err != nil || !ok || *client.deletes[0].Key != key {
		t.Fatalf("delete: %v %v", ok, err)
	}
	if ok, _ := store.Delete(context.Background(), "https://other.example.com/x"); ok {
		t.Fatalf("foreign url should not be deleted")
	}
}

func TestS3StoreWrapsErrors(t *testing.T) {
	store := &S3Store{Client: &fakeS3{err: errors.New("access denied")}, Bucket: "b", Region: "r", PublicURL: "https://cdn.example.com"}
	_, err := store.Upload(context.Background(), File{Name: "x.txt", Body: strings.NewReader("x")}, "m", "t")
	var ae *Error
	if !errors.As(err, &ae) || ae.Op != "upload" || ae.Name != "x.txt" {
		t.Fatalf("expected attachment error, got %v", err)
	}
}

func TestLocalStoreOwns(t *testing.T) {
	store := NewLocalStore(t.TempDir(), "/v0/files")
	att, err := store.Upload(context.Background(), File{Name: "settlement.pdf", Body: strings.NewReader("x")}, "m1", "finance")
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if !store.Owns(att.URL, "m1", "finance") {
		t.Fatalf("store should own %s for m1/finance", att.URL)
	}
	cases := map[string][3]string{
		"other team":     {att.URL, "m1", "it"},
		"other movement": {att.URL, "m2", "finance"},
		"traversal":      {"/v0/files/m1/it/../finance/" + path.Base(att.URL), "m1", "it"},
		"foreign host":   {"https://evil.example/m1/finance/x", "m1", "finance"},
		"team dir only":  {"/v0/files/m1/finance", "m1", "finance"},
		"nested":         {"/v0/files/m1/finance/a/b", "m1", "finance"},
	}
	for name, c := range cases {
		if store.Owns(c[0], c[1], c[2]) {
			t.Errorf("%s: %s should not be owned by %s/%s", name, c[0], c[1], c[2])
		}
	}
}

func TestS3StoreOwns(t *testing.T) {
	store := &S3Store{Client: &fakeS3{}, Bucket: "hr-docs", Region: "sa-east-1", Prefix: "movements", Now: fixedNow}
	att, err := store.Upload(context.Background(), File{Name: "letter.pdf", Size: 3, Body: strings.NewReader("pdf")}, "m1", "finance")
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if !store.Owns(att.URL, "m1", "finance") {
		t.Fatalf("store should own %s", att.URL)
	}
	if store.Owns(att.URL, "m1", "it") || store.Owns("https://evil.example/movements/m1/finance/x", "m1", "finance") {
		t.Fatalf("ownership must be scoped to the team and the bucket")
	}
	if store.Owns("https://hr-docs.s3.sa-east-1.amazonaws.com/m1/finance/x", "m1", "finance") {
		t.Fatalf("keys outside the prefix are not owned")
	}
}
