package archive

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rkm/fieldsat/internal/config"
	"github.com/rkm/fieldsat/internal/models"
)

func testObservation() models.SatelliteObservation {
	capture := time.Date(2024, 6, 10, 10, 30, 0, 0, time.UTC)
	return models.NewObservation("field-1", models.SourceSentinelHub, capture, 0.5, capture)
}

func TestKey(t *testing.T) {
	assert.Equal(t, "sentinel_hub/field-1/2024-06-10.json", Key(testObservation()))
}

func TestSanitizeEndpoint(t *testing.T) {
	assert.Equal(t, "minio:9000", sanitizeEndpoint("http://minio:9000/"))
	assert.Equal(t, "s3.example.com", sanitizeEndpoint(" https://s3.example.com/path "))
	assert.Equal(t, "localhost:9000", sanitizeEndpoint("localhost:9000"))
}

// fakeS3 accepts bucket checks and object uploads.
type fakeS3 struct {
	mu   sync.Mutex
	puts []string
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodHead:
		w.WriteHeader(http.StatusOK)
	case http.MethodPut:
		f.mu.Lock()
		f.puts = append(f.puts, r.URL.Path)
		f.mu.Unlock()
		w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusNotImplemented)
	}
}

func TestMinioArchive(t *testing.T) {
	s3 := &fakeS3{}
	srv := httptest.NewServer(s3)
	defer srv.Close()

	a, err := NewMinioArchive(config.ArchiveConfig{
		Endpoint:  srv.URL,
		AccessKey: "access",
		SecretKey: "secret",
		Bucket:    "payloads",
		Region:    "us-east-1",
	}, nil)
	require.NoError(t, err)

	obs := testObservation()
	require.NoError(t, a.Archive(context.Background(), obs, []byte(`{"data":[]}`)))
	require.NoError(t, a.Archive(context.Background(), obs, nil))

	s3.mu.Lock()
	defer s3.mu.Unlock()
	assert.Equal(t, []string{"/payloads/sentinel_hub/field-1/2024-06-10.json"}, s3.puts)
}

func TestNoop(t *testing.T) {
	var a Archiver = Noop{}
	assert.NoError(t, a.Archive(context.Background(), testObservation(), []byte("x")))
}
