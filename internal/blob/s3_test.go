package blob_test

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pkordes/travelogue/internal/blob"
)

// fakeS3 answers the handful of path-style S3 calls the store makes, keeping
// objects in memory.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (f *fakeS3) RoundTrip(req *http.Request) (*http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	// Path style: /bucket/key
	parts := strings.SplitN(strings.TrimPrefix(req.URL.Path, "/"), "/", 2)
	key := ""
	if len(parts) == 2 {
		key = parts[1]
	}

	if req.Method == http.MethodGet && req.URL.Query().Get("list-type") == "2" {
		prefix := req.URL.Query().Get("prefix")
		var keys []string
		for k := range f.objects {
			if strings.HasPrefix(k, prefix) {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		var b strings.Builder
		b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><ListBucketResult><IsTruncated>false</IsTruncated>`)
		for _, k := range keys {
			fmt.Fprintf(&b, "<Contents><Key>%s</Key><Size>%d</Size><LastModified>2024-01-01T00:00:00Z</LastModified></Contents>", k, len(f.objects[k]))
		}
		b.WriteString("</ListBucketResult>")
		return respond(http.StatusOK, b.String()), nil
	}

	switch req.Method {
	case http.MethodPut:
		body, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		if strings.Contains(req.Header.Get("Content-Encoding"), "aws-chunked") {
			body = unchunk(body)
		}
		f.objects[key] = body
		return respond(http.StatusOK, ""), nil
	case http.MethodGet:
		body, ok := f.objects[key]
		if !ok {
			return respond(http.StatusNotFound, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`), nil
		}
		return respond(http.StatusOK, string(body)), nil
	case http.MethodDelete:
		delete(f.objects, key)
		return respond(http.StatusNoContent, ""), nil
	}
	return respond(http.StatusNotImplemented, ""), nil
}

func respond(status int, body string) *http.Response {
	return &http.Response{
		StatusCode:    status,
		Body:          io.NopCloser(strings.NewReader(body)),
		ContentLength: int64(len(body)),
		Header:        http.Header{"Content-Type": {"application/xml"}},
	}
}

// unchunk decodes an aws-chunked body, dropping the trailing checksum.
func unchunk(b []byte) []byte {
	var out []byte
	for {
		i := bytes.Index(b, []byte("\r\n"))
		if i < 0 {
			return out
		}
		size, err := strconv.ParseInt(strings.SplitN(string(b[:i]), ";", 2)[0], 16, 64)
		if err != nil || size == 0 {
			return out
		}
		b = b[i+2:]
		out = append(out, b[:size]...)
		b = b[size:]
		b = bytes.TrimPrefix(b, []byte("\r\n"))
	}
}

func TestS3(t *testing.T) {
	s, err := blob.NewS3(context.Background(), blob.S3Config{
		Bucket:          "backups-bucket",
		Region:          "us-east-1",
		Endpoint:        "https://s3.test.local",
		PathStyle:       true,
		AccessKeyID:     "AKIDTEST",
		SecretAccessKey: "secret",
		HTTPClient:      &http.Client{Transport: &fakeS3{objects: map[string][]byte{}}},
	})
	require.NoError(t, err)
	runContract(t, s)
}
