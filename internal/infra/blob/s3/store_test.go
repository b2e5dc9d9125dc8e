package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	aws "github.com/aws/aws-sdk-go-v2/aws"

	"normative/internal/blob/core"
)

func TestStore_MockedBasicFlow(t *testing.T) {
	store := NewMockForTests("")
	ctx := context.Background()
	info, err := store.Put(ctx, "000/ADNI/encoded.csv", bytes.NewReader([]byte("0,1\n")), core.PutOptions{ContentType: "text/csv"})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Key != "000/ADNI/encoded.csv" || info.ContentType != "text/csv" || info.Size != 4 {
		t.Fatalf("unexpected info %#v", info)
	}
	if _, err := store.Put(ctx, "000/ADNI/encoded.csv", bytes.NewReader([]byte("0,1,2\n")), core.PutOptions{ContentType: "text/csv"}); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	_, rc, err := store.Get(ctx, "000/ADNI/encoded.csv")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	data, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(data) != "0,1,2\n" {
		t.Fatalf("expected overwritten body, got %q", string(data))
	}
	list, err := store.List(ctx, "000/")
	if err != nil || len(list) != 1 {
		t.Fatalf("list: %v %+v", err, list)
	}
	if url, err := store.PresignURL(ctx, "000/ADNI/encoded.csv", core.SignedURLOptions{}); err != nil || url == "" {
		t.Fatalf("presign: %v %s", err, url)
	}
	if ok, err := store.Delete(ctx, "000/ADNI/encoded.csv"); err != nil || !ok {
		t.Fatalf("delete: %v %v", ok, err)
	}
	if ok, err := store.Delete(ctx, "000/ADNI/encoded.csv"); err != nil || ok {
		t.Fatalf("second delete: %v %v", ok, err)
	}
}

func TestStore_PrefixIsHidden(t *testing.T) {
	store := NewMockForTests("/outputs/")
	ctx := context.Background()
	for _, k := range []string{"001/ADNI/normalized.csv", "000/ADNI/normalized.csv"} {
		if _, err := store.Put(ctx, k, bytes.NewReader([]byte("x")), core.PutOptions{}); err != nil {
			t.Fatalf("put %s: %v", k, err)
		}
	}
	list, err := store.List(ctx, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].Key != "000/ADNI/normalized.csv" || list[1].Key != "001/ADNI/normalized.csv" {
		t.Fatalf("expected prefix-free sorted keys across pages, got %+v", list)
	}
	info, err := store.Head(ctx, "001/ADNI/normalized.csv")
	if err != nil || info.Key != "001/ADNI/normalized.csv" {
		t.Fatalf("head: %v %+v", err, info)
	}
}

func TestStore_MetadataRoundTrip(t *testing.T) {
	store := NewMockForTests("")
	ctx := context.Background()
	if _, err := store.Put(ctx, "k.json", bytes.NewReader([]byte("{}")), core.PutOptions{Metadata: map[string]string{"replica": "7"}}); err != nil {
		t.Fatalf("put: %v", err)
	}
	info, err := store.Head(ctx, "k.json")
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	if info.Metadata["replica"] != "7" {
		t.Fatalf("expected replica metadata, got %+v", info.Metadata)
	}
}

func TestStore_New(t *testing.T) {
	t.Setenv("AWS_ACCESS_KEY_ID", "AKIA")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "SECRET")
	s, err := New(context.Background(), Config{Bucket: "bkt", Region: "us-east-1", Endpoint: "https://mock.s3.local", PathStyle: true, Prefix: "data"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if s.Driver() != core.DriverS3 || s.prefix != "data/" {
		t.Fatalf("unexpected store %+v", s)
	}
	if _, err := New(context.Background(), Config{Bucket: "bkt", AccessKeyID: "AKIA", SecretAccessKey: "SECRET"}); err != nil {
		t.Fatalf("New with static credentials: %v", err)
	}
}

func TestStore_ErrorPaths(t *testing.T) {
	store := NewMockForTests("")
	ctx := context.Background()
	if _, err := store.Head(ctx, "nope"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on head, got %v", err)
	}
	if _, _, err := store.Get(ctx, "nope"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on get, got %v", err)
	}
	if _, err := store.PresignURL(ctx, "k", core.SignedURLOptions{Method: "PUT"}); !errors.Is(err, core.ErrUnsupported) {
		t.Fatalf("expected presign unsupported error, got %v", err)
	}
}

func TestStore_PresignCustomExpiryAndEmptyList(t *testing.T) {
	store := NewMockForTests("")
	ctx := context.Background()
	if _, err := store.Put(ctx, "k.txt", bytes.NewReader([]byte("body")), core.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if url, err := store.PresignURL(ctx, "k.txt", core.SignedURLOptions{Expiry: 30 * time.Second}); err != nil || url == "" {
		t.Fatalf("presign custom: %v %s", err, url)
	}
	if list, err := store.List(ctx, "no-such-prefix/"); err != nil || len(list) != 0 {
		t.Fatalf("expected empty list: %v %+v", err, list)
	}
}

func TestStore_FromHeadNilBranches(t *testing.T) {
	store := NewMockForTests("")
	info := store.fromHead("k", 10, nil, aws.String("\"etagval\""), map[string]string{"x": "y"}, nil)
	if info.ETag != "etagval" || info.ContentType != "" || info.Key != "k" || info.Size != 10 || info.LastModified.IsZero() {
		t.Fatalf("unexpected info: %+v", info)
	}
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatalf("expected error for missing bucket")
	}
}

func TestDecodeChunked(t *testing.T) {
	if _, ok := decodeChunked([]byte("not-chunked")); ok {
		t.Fatalf("expected plain body to be rejected")
	}
	if _, ok := decodeChunked([]byte("5\r\nabc\r\n0\r\n")); ok {
		t.Fatalf("size mismatch should fail")
	}
	if b, ok := decodeChunked([]byte("5\r\nhello\r\n0\r\nx-amz-checksum-crc32:AAAA\r\n\r\n")); !ok || string(b) != "hello" {
		t.Fatalf("expected decode hello")
	}
}

func TestMockRoundTripperUnsupported(t *testing.T) {
	rt := &mockRoundTripper{state: make(map[string]mockObj)}
	req, _ := http.NewRequest(http.MethodPatch, "https://mock.s3.local/bucket/key", nil)
	resp, _ := rt.RoundTrip(req)
	if resp.StatusCode != http.StatusNotImplemented {
		t.Fatalf("expected 501, got %d", resp.StatusCode)
	}
}
