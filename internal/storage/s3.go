package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

type s3Adapter struct {
	bucket string
	prefix string
	client *s3.Client
}

// newS3 builds an S3-backed adapter. Credential resolution is an ordered
// chain: explicit static credentials, then the SDK default chain
// (environment, shared config, IAM role); first success wins.
func newS3(ctx context.Context, cfg Config) (*s3Adapter, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("storage: s3 bucket is required")
	}

	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("storage: load aws config: %w", err)
	}

	return &s3Adapter{
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
		client: s3.NewFromConfig(awsCfg),
	}, nil
}

func (a *s3Adapter) ListFiles(ctx context.Context, extFilter []string) ([]FileInfo, error) {
	if extFilter == nil {
		extFilter = DefaultExtensions
	}

	prefix := ""
	if a.prefix != "" {
		prefix = a.prefix + "/"
	}

	var files []FileInfo
	paginator := s3.NewListObjectsV2Paginator(a.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(a.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3 list: %w", err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			name := path.Base(key)
			if !matchesExtension(name, extFilter) {
				continue
			}
			files = append(files, FileInfo{
				Name:     name,
				Path:     fmt.Sprintf("s3://%s/%s", a.bucket, key),
				Size:     aws.ToInt64(obj.Size),
				Modified: aws.ToTime(obj.LastModified).UTC().Format(time.RFC3339),
				Type:     fileType(name),
			})
		}
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Modified > files[j].Modified })
	return files, nil
}

func (a *s3Adapter) ReadFile(ctx context.Context, filePath string) (string, error) {
	out, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(a.keyFor(filePath)),
	})
	if err != nil {
		return "", fmt.Errorf("s3 read %s: %w", filePath, err)
	}
	defer out.Body.Close()

	b, err := io.ReadAll(out.Body)
	if err != nil {
		return "", fmt.Errorf("s3 read %s: %w", filePath, err)
	}
	return string(b), nil
}

func (a *s3Adapter) FileExists(ctx context.Context, filePath string) bool {
	_, err := a.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(a.keyFor(filePath)),
	})
	return err == nil
}

func (a *s3Adapter) GetFileInfo(ctx context.Context, filePath string) (*FileInfo, error) {
	key := a.keyFor(filePath)
	out, err := a.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, nil
	}
	name := path.Base(key)
	return &FileInfo{
		Name:     name,
		Path:     fmt.Sprintf("s3://%s/%s", a.bucket, key),
		Size:     aws.ToInt64(out.ContentLength),
		Modified: aws.ToTime(out.LastModified).UTC().Format(time.RFC3339),
		Type:     fileType(name),
	}, nil
}

func (a *s3Adapter) TestConnection(ctx context.Context) TestResult {
	_, err := a.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(a.bucket),
		MaxKeys: aws.Int32(1),
	})
	if err == nil {
		return TestResult{Success: true, Message: fmt.Sprintf("Successfully connected to S3 bucket: %s", a.bucket)}
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchBucket":
			return TestResult{Success: false, Message: fmt.Sprintf("Bucket not found: %s", a.bucket)}
		case "AccessDenied":
			return TestResult{Success: false, Message: "Access denied. Check IAM permissions."}
		}
	}
	return TestResult{Success: false, Message: fmt.Sprintf("S3 error: %v", err)}
}

func (a *s3Adapter) Close() error { return nil }

// keyFor accepts either a bare object key or an s3://bucket/key URI.
func (a *s3Adapter) keyFor(filePath string) string {
	if !strings.HasPrefix(filePath, "s3://") {
		return filePath
	}
	rest := strings.TrimPrefix(filePath, "s3://")
	if i := strings.Index(rest, "/"); i >= 0 {
		return rest[i+1:]
	}
	return ""
}
