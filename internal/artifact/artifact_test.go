package artifact

import (
	"context"
	"errors"
	"io"
	"net/url"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	buckets map[string]bool
	objects map[string][]byte
	opts    map[string]minio.PutObjectOptions
	failPut error
}

func newFakeClient() *fakeClient {
	return &fakeClient{buckets: map[string]bool{}, objects: map[string][]byte{}, opts: map[string]minio.PutObjectOptions{}}
}

func (f *fakeClient) BucketExists(_ context.Context, bucket string) (bool, error) {
	return f.buckets[bucket], nil
}

func (f *fakeClient) MakeBucket(_ context.Context, bucket string, _ minio.MakeBucketOptions) error {
	f.buckets[bucket] = true
	return nil
}

func (f *fakeClient) PutObject(_ context.Context, bucket, object string, reader io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	if f.failPut != nil {
		return minio.UploadInfo{}, f.failPut
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return minio.UploadInfo{}, err
	}
	f.objects[bucket+"/"+object] = data
	f.opts[object] = opts
	return minio.UploadInfo{Bucket: bucket, Key: object, ETag: "etag-1", Size: size}, nil
}

func (f *fakeClient) GetObject(context.Context, string, string, minio.GetObjectOptions) (*minio.Object, error) {
	return nil, errors.New("not supported by fake")
}

func (f *fakeClient) PresignedGetObject(_ context.Context, bucket, object string, expiry time.Duration, params url.Values) (*url.URL, error) {
	u := &url.URL{Scheme: "https", Host: "objects.local", Path: "/" + bucket + "/" + object}
	q := url.Values{}
	for k, v := range params {
		q[k] = v
	}
	q.Set("X-Amz-Expires", expiry.String())
	u.RawQuery = q.Encode()
	return u, nil
}

func TestKeyIsConfinedToReportPrefix(t *testing.T) {
	assert.Equal(t, "reports/rep-1/Intelligence_Report_Jane_IR-1.pdf", Key("rep-1", "Intelligence_Report_Jane_IR-1.pdf"))
	assert.Equal(t, "reports/passwd/x.pdf", Key("../../passwd", "../x.pdf"))
}

func TestEnsureBucketCreatesOnce(t *testing.T) {
	client := newFakeClient()
	s := &Store{client: client, bucket: "exports"}

	require.NoError(t, s.EnsureBucket(context.Background()))
	assert.True(t, client.buckets["exports"])
	require.NoError(t, s.EnsureBucket(context.Background()))
}

func TestPutStoresWithMetadata(t *testing.T) {
	client := newFakeClient()
	s := &Store{client: client, bucket: "exports"}

	obj, err := s.Put(context.Background(), "report.pdf", "application/pdf", []byte("%PDF-1.7"), Metadata{
		ReportID: "rep-1", CaseNumber: "IR-1", Revision: 3, Fingerprint: "abc", PageCount: 2,
	})
	require.NoError(t, err)

	assert.Equal(t, "reports/rep-1/report.pdf", obj.Key)
	assert.Equal(t, int64(8), obj.Size)
	assert.Equal(t, "etag-1", obj.ETag)
	assert.Equal(t, []byte("%PDF-1.7"), client.objects["exports/reports/rep-1/report.pdf"])
	opts := client.opts["reports/rep-1/report.pdf"]
	assert.Equal(t, "application/pdf", opts.ContentType)
	assert.Equal(t, "3", opts.UserMetadata["revision"])
	assert.Equal(t, "2", opts.UserMetadata["page-count"])
}

func TestPutError(t *testing.T) {
	client := newFakeClient()
	client.failPut = errors.New("access denied")
	s := &Store{client: client, bucket: "exports"}

	_, err := s.Put(context.Background(), "report.pdf", "application/pdf", []byte("x"), Metadata{ReportID: "rep-1"})
	assert.ErrorContains(t, err, "access denied")
}

func TestPresignedURL(t *testing.T) {
	s := &Store{client: newFakeClient(), bucket: "exports"}
	link, err := s.PresignedURL(context.Background(), "reports/rep-1/report.pdf", "report.pdf", 15*time.Minute)
	require.NoError(t, err)
	assert.Contains(t, link, "https://objects.local/exports/reports/rep-1/report.pdf")
	assert.Contains(t, link, "response-content-disposition")
}

func TestNewValidatesEndpoint(t *testing.T) {
	_, err := New(Config{Endpoint: "http://not-a-bare-host:9000", Bucket: "exports"})
	assert.Error(t, err, "minio expects host:port without a scheme")

	s, err := New(Config{Endpoint: "localhost:9000", AccessKey: "k", SecretKey: "s", Bucket: "exports"})
	require.NoError(t, err)
	assert.Equal(t, "exports", s.bucket)
}
