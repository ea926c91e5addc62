package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	objects map[string]string
	pages   [][]types.Object
	getErr  error
	calls   int
}

func (f *fakeClient) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	body, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{Message: aws.String("missing")}
	}
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader([]byte(body))),
		ContentLength: aws.Int64(int64(len(body))),
	}, nil
}

func (f *fakeClient) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	page := f.calls
	f.calls++
	out := &s3.ListObjectsV2Output{Contents: f.pages[page]}
	if page+1 < len(f.pages) {
		out.IsTruncated = aws.Bool(true)
		out.NextContinuationToken = aws.String("next")
	}
	return out, nil
}

func TestGetObject(t *testing.T) {
	client := &fakeClient{objects: map[string]string{
		"locales/en/translation.json": `{"TITLE":"Kudos"}`,
	}}
	svc := NewS3Service(client)

	data, err := svc.GetObject(context.Background(), "bundles", "/locales/en/translation.json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"TITLE":"Kudos"}`, string(data))
}

func TestGetObject_Missing(t *testing.T) {
	svc := NewS3Service(&fakeClient{})

	_, err := svc.GetObject(context.Background(), "bundles", "locales/ko/translation.json")
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestGetObject_Errors(t *testing.T) {
	boom := errors.New("connection reset")
	svc := NewS3Service(&fakeClient{getErr: boom})

	_, err := svc.GetObject(context.Background(), "bundles", "key")
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, fs.ErrNotExist)

	_, err = svc.GetObject(context.Background(), "", "key")
	assert.Error(t, err)
	_, err = svc.GetObject(context.Background(), "bundles", "/")
	assert.Error(t, err)
}

func TestListObjects_FollowsPages(t *testing.T) {
	now := time.Now()
	client := &fakeClient{pages: [][]types.Object{
		{{Key: aws.String("locales/en/translation.json"), Size: aws.Int64(10), LastModified: &now}},
		{{Key: aws.String("locales/ko/translation.json"), Size: aws.Int64(12)}},
	}}
	svc := NewS3Service(client)

	objects, err := svc.ListObjects(context.Background(), "bundles", "locales/")
	require.NoError(t, err)
	require.Len(t, objects, 2)
	assert.Equal(t, "locales/en/translation.json", objects[0].Key)
	assert.Equal(t, int64(10), objects[0].Size)
	assert.Equal(t, &now, objects[0].LastModified)
	assert.Equal(t, "locales/ko/translation.json", objects[1].Key)
	assert.Equal(t, 2, client.calls)
}
