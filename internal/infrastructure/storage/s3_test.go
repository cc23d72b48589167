package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	ststypes "github.com/aws/aws-sdk-go-v2/service/sts/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeS3 keeps objects in a map and pages listings like S3 does.
type fakeS3 struct {
	objects      map[string]string // key -> etag
	listCalls    int
	deleteCalls  int
	copySources  []string
	failCopyKey  string
	deleteErrors []types.Error
	headErr      error
}

func newFakeS3(keys ...string) *fakeS3 {
	f := &fakeS3{objects: make(map[string]string)}
	for _, k := range keys {
		f.objects[k] = `"etag-` + k + `"`
	}
	return f
}

func (f *fakeS3) sortedKeys(prefix string) []string {
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.listCalls++
	keys := f.sortedKeys(aws.ToString(in.Prefix))

	start := 0
	if in.ContinuationToken != nil {
		fmt.Sscanf(aws.ToString(in.ContinuationToken), "%d", &start)
	}
	end := start + int(aws.ToInt32(in.MaxKeys))
	if end > len(keys) {
		end = len(keys)
	}

	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(end < len(keys))}
	for _, k := range keys[start:end] {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(k), ETag: aws.String(f.objects[k])})
	}
	if end < len(keys) {
		out.NextContinuationToken = aws.String(fmt.Sprintf("%d", end))
	}
	return out, nil
}

func (f *fakeS3) CopyObject(_ context.Context, in *s3.CopyObjectInput, _ ...func(*s3.Options)) (*s3.CopyObjectOutput, error) {
	f.copySources = append(f.copySources, aws.ToString(in.CopySource))
	if f.failCopyKey != "" && aws.ToString(in.Key) == f.failCopyKey {
		return nil, &smithy.GenericAPIError{Code: "AccessDenied", Message: "denied"}
	}
	f.objects[aws.ToString(in.Key)] = `"copied"`
	return &s3.CopyObjectOutput{}, nil
}

func (f *fakeS3) DeleteObjects(_ context.Context, in *s3.DeleteObjectsInput, _ ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error) {
	f.deleteCalls++
	if len(in.Delete.Objects) > MaxKeysPerRequest {
		return nil, errors.New("too many keys in one request")
	}
	if len(f.deleteErrors) > 0 {
		return &s3.DeleteObjectsOutput{Errors: f.deleteErrors}, nil
	}
	for _, obj := range in.Delete.Objects {
		delete(f.objects, aws.ToString(obj.Key))
	}
	return &s3.DeleteObjectsOutput{}, nil
}

func (f *fakeS3) HeadBucket(_ context.Context, _ *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	return &s3.HeadBucketOutput{}, f.headErr
}

type fakeSTS struct {
	input *sts.GetFederationTokenInput
	err   error
}

func (f *fakeSTS) GetFederationToken(_ context.Context, in *sts.GetFederationTokenInput, _ ...func(*sts.Options)) (*sts.GetFederationTokenOutput, error) {
	f.input = in
	if f.err != nil {
		return nil, f.err
	}
	return &sts.GetFederationTokenOutput{
		Credentials: &ststypes.Credentials{
			AccessKeyId:     aws.String("AKIA"),
			SecretAccessKey: aws.String("secret"),
			SessionToken:    aws.String("token"),
			Expiration:      aws.Time(time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)),
		},
	}, nil
}

func newTestGateway(fake *fakeS3, fakeSts *fakeSTS) *S3Gateway {
	return NewS3GatewayWithClients(BucketUnitTest, "https://s3.amazonaws.com/"+BucketUnitTest+"/", "bloom-upload", fake, fakeSts)
}

func manyKeys(prefix string, n int) []string {
	keys := make([]string, n)
	for i := range keys {
		keys[i] = fmt.Sprintf("%sfile-%05d.htm", prefix, i)
	}
	return keys
}

func TestS3Gateway_StoreURLTrimsSlash(t *testing.T) {
	g := newTestGateway(newFakeS3(), &fakeSTS{})
	assert.Equal(t, "https://s3.amazonaws.com/bloomharvest-unittests", g.StoreURL())
	assert.Equal(t, BucketUnitTest, g.Bucket())
}

func TestS3Gateway_ListPrefixKeys_Pages(t *testing.T) {
	fake := newFakeS3(manyKeys("book1/100/", 2500)...)
	fake.objects["book2/1/other.htm"] = `"x"`
	g := newTestGateway(fake, &fakeSTS{})

	objects, err := g.ListPrefixKeys(context.Background(), "book1/100/")
	require.NoError(t, err)
	assert.Len(t, objects, 2500)
	assert.Equal(t, 3, fake.listCalls)
	assert.Equal(t, "etag-book1/100/file-00000.htm", objects[0].ETag)
}

func TestS3Gateway_ListPrefixKeys_EmptyPrefix(t *testing.T) {
	g := newTestGateway(newFakeS3("a"), &fakeSTS{})
	_, err := g.ListPrefixKeys(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyPrefix)
}

func TestS3Gateway_CopyPrefix_AllKeys(t *testing.T) {
	fake := newFakeS3("book1/100/My Book/index.htm", "book1/100/My Book/thumb.png")
	g := newTestGateway(fake, &fakeSTS{})

	err := g.CopyPrefix(context.Background(), "book1/100/", "book1/200/", nil)
	require.NoError(t, err)

	assert.Contains(t, fake.objects, "book1/200/My Book/index.htm")
	assert.Contains(t, fake.objects, "book1/200/My Book/thumb.png")
	assert.Contains(t, fake.copySources, "bloomharvest-unittests/book1/100/My%20Book/index.htm")
}

func TestS3Gateway_CopyPrefix_SelectedKeys(t *testing.T) {
	fake := newFakeS3("book1/100/a.htm", "book1/100/b.htm")
	g := newTestGateway(fake, &fakeSTS{})

	err := g.CopyPrefix(context.Background(), "book1/100/", "book1/200/", []string{"book1/100/b.htm"})
	require.NoError(t, err)

	assert.Contains(t, fake.objects, "book1/200/b.htm")
	assert.NotContains(t, fake.objects, "book1/200/a.htm")
}

func TestS3Gateway_CopyPrefix_StopsOnFailure(t *testing.T) {
	fake := newFakeS3("book1/100/a.htm", "book1/100/b.htm", "book1/100/c.htm")
	fake.failCopyKey = "book1/200/b.htm"
	g := newTestGateway(fake, &fakeSTS{})

	err := g.CopyPrefix(context.Background(), "book1/100/", "book1/200/", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AccessDenied")
	assert.Contains(t, fake.objects, "book1/200/a.htm")
	assert.NotContains(t, fake.objects, "book1/200/c.htm")
}

func TestS3Gateway_CopyPrefix_KeyOutsidePrefix(t *testing.T) {
	g := newTestGateway(newFakeS3(), &fakeSTS{})
	err := g.CopyPrefix(context.Background(), "book1/100/", "book1/200/", []string{"book2/1/a.htm"})
	assert.ErrorIs(t, err, ErrKeyOutsidePrefix)
}

func TestS3Gateway_DeletePrefix_Exclude(t *testing.T) {
	fake := newFakeS3("book1/100/a.htm", "book1/200/a.htm", "book1/200/b.htm", "book10/1/a.htm")
	g := newTestGateway(fake, &fakeSTS{})

	err := g.DeletePrefix(context.Background(), "book1/", "book1/200/")
	require.NoError(t, err)

	assert.NotContains(t, fake.objects, "book1/100/a.htm")
	assert.Contains(t, fake.objects, "book1/200/a.htm")
	assert.Contains(t, fake.objects, "book1/200/b.htm")
	assert.Contains(t, fake.objects, "book10/1/a.htm")
}

func TestS3Gateway_DeletePrefix_EmptyExcludeDeletesAll(t *testing.T) {
	fake := newFakeS3("book1/100/a.htm", "book1/200/a.htm")
	g := newTestGateway(fake, &fakeSTS{})

	require.NoError(t, g.DeletePrefix(context.Background(), "book1/", ""))
	assert.Empty(t, fake.objects)
}

func TestS3Gateway_DeletePrefix_Batches(t *testing.T) {
	fake := newFakeS3(manyKeys("book1/100/", 2500)...)
	g := newTestGateway(fake, &fakeSTS{})

	require.NoError(t, g.DeletePrefix(context.Background(), "book1/", ""))
	assert.Empty(t, fake.objects)
	assert.Equal(t, 3, fake.deleteCalls)
}

func TestS3Gateway_DeletePrefix_NothingToDelete(t *testing.T) {
	fake := newFakeS3("book1/200/a.htm")
	g := newTestGateway(fake, &fakeSTS{})

	require.NoError(t, g.DeletePrefix(context.Background(), "book1/", "book1/200/"))
	assert.Equal(t, 0, fake.deleteCalls)
}

func TestS3Gateway_DeletePrefix_ReportsKeyErrors(t *testing.T) {
	fake := newFakeS3("book1/100/a.htm")
	fake.deleteErrors = []types.Error{{Key: aws.String("book1/100/a.htm"), Message: aws.String("denied")}}
	g := newTestGateway(fake, &fakeSTS{})

	err := g.DeletePrefix(context.Background(), "book1/", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "denied")
}

func TestS3Gateway_IssueScopedCredentials(t *testing.T) {
	fakeSts := &fakeSTS{}
	g := newTestGateway(newFakeS3(), fakeSts)

	creds, err := g.IssueScopedCredentials(context.Background(), "book1/200/", 24*time.Hour)
	require.NoError(t, err)

	assert.Equal(t, "AKIA", creds.AccessKeyID)
	assert.Equal(t, "secret", creds.SecretAccessKey)
	assert.Equal(t, "token", creds.SessionToken)
	assert.Equal(t, int32(86400), aws.ToInt32(fakeSts.input.DurationSeconds))
	assert.Equal(t, "bloom-upload", aws.ToString(fakeSts.input.Name))
	assert.Contains(t, aws.ToString(fakeSts.input.Policy), "arn:aws:s3:::bloomharvest-unittests/book1/200/*")
}

func TestS3Gateway_IssueScopedCredentials_Error(t *testing.T) {
	g := newTestGateway(newFakeS3(), &fakeSTS{err: &smithy.GenericAPIError{Code: "AccessDenied", Message: "no"}})

	_, err := g.IssueScopedCredentials(context.Background(), "book1/200/", time.Hour)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AccessDenied")
}

func TestS3Gateway_HealthCheck(t *testing.T) {
	fake := newFakeS3()
	g := newTestGateway(fake, &fakeSTS{})
	assert.NoError(t, g.HealthCheck(context.Background()))

	fake.headErr = errors.New("unreachable")
	assert.Error(t, g.HealthCheck(context.Background()))
}

func TestCopySource(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"a/b c/d?e.png", "bucket/a/b%20c/d%3Fe.png"},
		{"abc1234567/1/Math + Science/a.png", "bucket/abc1234567/1/Math%20%2B%20Science/a.png"},
		{"abc1234567/1/C++/b+c.htm", "bucket/abc1234567/1/C%2B%2B/b%2Bc.htm"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, copySource("bucket", tt.key), tt.key)
	}
}
