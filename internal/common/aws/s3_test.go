package aws

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAWSConfig() aws.Config {
	return aws.Config{
		Region: "us-east-1",
		Credentials: aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
			return aws.Credentials{AccessKeyID: "AKIDTEST", SecretAccessKey: "secret"}, nil
		}),
	}
}

func TestS3Client_Upload(t *testing.T) {
	var gotPath, gotType, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotType = r.Header.Get("Content-Type")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewS3ClientFromConfig(testAWSConfig(), S3Options{Bucket: "docs", Endpoint: srv.URL, UsePathStyle: true})

	err := c.Upload(context.Background(), "applications/app-1/passport.pdf", []byte("%PDF"), "application/pdf")
	require.NoError(t, err)
	assert.Equal(t, "/docs/applications/app-1/passport.pdf", gotPath)
	assert.Equal(t, "application/pdf", gotType)
	assert.Equal(t, "%PDF", gotBody)
}

func TestS3Client_Upload_Error(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`<Error><Code>AccessDenied</Code><Message>denied</Message></Error>`))
	}))
	defer srv.Close()

	c := NewS3ClientFromConfig(testAWSConfig(), S3Options{Bucket: "docs", Endpoint: srv.URL, UsePathStyle: true})
	err := c.Upload(context.Background(), "k", []byte("x"), "text/plain")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s3 put k")
}

func TestS3Client_SignedURL(t *testing.T) {
	c := NewS3ClientFromConfig(testAWSConfig(), S3Options{Bucket: "docs", Endpoint: "https://s3.example.test", UsePathStyle: true})

	url, err := c.SignedURL(context.Background(), "receipts/app-1/pay-1.pdf", 15*time.Minute)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(url, "https://s3.example.test/docs/receipts/app-1/pay-1.pdf?"), url)
	assert.Contains(t, url, "X-Amz-Expires=900")
	assert.Contains(t, url, "X-Amz-Signature=")
	assert.Equal(t, "docs", c.Bucket())
}
