// Package s3store implements storage.ProviderStore on an S3 compatible
// object store.
//
// A provider row is the JSON object <prefix>/<hive>/<key>/provider.json and
// each dependent row is <prefix>/<hive>/<key>/dependents/<dependent>.json.
// Keys in object names are normalized.
package s3store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"path"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/platinummonkey/depreg/pkg/storage"
)

const (
	providerObject = "provider.json"
	dependentsDir  = "dependents"
	jsonSuffix     = ".json"
	contentType    = "application/json"
)

// API is the subset of the S3 client used by the store
type API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// Store implements storage.ProviderStore on a bucket
type Store struct {
	client API
	bucket string
	prefix string
}

var _ storage.ProviderStore = (*Store)(nil)

// New creates an S3 backed store from the storage configuration. Static
// credentials are used when both keys are set, otherwise the default AWS
// credential chain applies.
func New(ctx context.Context, cfg storage.Config) (*Store, error) {
	if cfg.S3Bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.S3Region)}
	if cfg.S3AccessKey != "" && cfg.S3SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		))
	}

	awsConfig, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
		}
		o.UsePathStyle = cfg.S3UsePathStyle
	})

	store := NewWithClient(client, cfg.S3Bucket, cfg.S3Prefix)
	if err := store.HealthCheck(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

// NewWithClient wraps an existing client
func NewWithClient(client API, bucket, prefix string) *Store {
	return &Store{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
	}
}

// Name implements storage.ProviderStore.Name
func (s *Store) Name() string {
	return "s3"
}

func (s *Store) providerDir(hive storage.Hive, key string) string {
	return path.Join(s.prefix, string(hive), storage.NormalizeKey(key))
}

func (s *Store) providerObject(hive storage.Hive, key string) string {
	return path.Join(s.providerDir(hive, key), providerObject)
}

func (s *Store) dependentsPrefix(hive storage.Hive, key string) string {
	return path.Join(s.providerDir(hive, key), dependentsDir) + "/"
}

func (s *Store) dependentObject(hive storage.Hive, dependencyKey, dependentKey string) string {
	return s.dependentsPrefix(hive, dependencyKey) + storage.NormalizeKey(dependentKey) + jsonSuffix
}

// ReadProvider implements storage.ProviderReader.ReadProvider
func (s *Store) ReadProvider(ctx context.Context, hive storage.Hive, key string) (*storage.Provider, error) {
	if err := storage.ValidateRow(hive, key); err != nil {
		return nil, err
	}

	var p storage.Provider
	if err := s.getJSON(ctx, s.providerObject(hive, key), &p); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("provider %s: %w", key, storage.ErrNotFound)
		}
		return nil, err
	}
	return &p, nil
}

// ReadProviderVersion implements storage.ProviderReader.ReadProviderVersion
func (s *Store) ReadProviderVersion(ctx context.Context, hive storage.Hive, key string) (string, error) {
	p, err := s.ReadProvider(ctx, hive, key)
	if err != nil {
		return "", err
	}
	return p.Version, nil
}

// EnumerateDependents implements storage.ProviderReader.EnumerateDependents.
// Object names are listed up front and each row is fetched as it is yielded.
func (s *Store) EnumerateDependents(ctx context.Context, hive storage.Hive, key string) iter.Seq2[storage.Dependent, error] {
	return func(yield func(storage.Dependent, error) bool) {
		if err := storage.ValidateRow(hive, key); err != nil {
			yield(storage.Dependent{}, err)
			return
		}

		prefix := s.dependentsPrefix(hive, key)
		names, err := s.list(ctx, prefix)
		if err != nil {
			yield(storage.Dependent{}, err)
			return
		}

		for _, name := range names {
			var dep storage.Dependent
			err := s.getJSON(ctx, prefix+name+jsonSuffix, &dep)
			if errors.Is(err, storage.ErrNotFound) {
				// Removed since listing
				continue
			}
			if err != nil {
				yield(storage.Dependent{}, err)
				return
			}
			if !yield(dep, nil) {
				return
			}
		}
	}
}

// list returns the normalized dependent names under prefix in sorted order
func (s *Store) list(ctx context.Context, prefix string) ([]string, error) {
	var names []string

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, storage.AccessError("list dependents", err)
		}
		for _, obj := range page.Contents {
			name := strings.TrimPrefix(aws.ToString(obj.Key), prefix)
			if strings.Contains(name, "/") || !strings.HasSuffix(name, jsonSuffix) {
				continue
			}
			names = append(names, strings.TrimSuffix(name, jsonSuffix))
		}
	}

	sort.Strings(names)
	return names, nil
}

// WriteProvider implements storage.ProviderWriter.WriteProvider
func (s *Store) WriteProvider(ctx context.Context, hive storage.Hive, p storage.Provider) error {
	if err := storage.ValidateRow(hive, p.Key); err != nil {
		return err
	}
	return s.putJSON(ctx, s.providerObject(hive, p.Key), p, "write provider")
}

// DeleteProvider implements storage.ProviderWriter.DeleteProvider
func (s *Store) DeleteProvider(ctx context.Context, hive storage.Hive, key string) error {
	if err := storage.ValidateRow(hive, key); err != nil {
		return err
	}

	object := s.providerObject(hive, key)
	exists, err := s.exists(ctx, object)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("provider %s: %w", key, storage.ErrNotFound)
	}
	return s.delete(ctx, object, "delete provider")
}

// WriteDependent implements storage.ProviderWriter.WriteDependent
func (s *Store) WriteDependent(ctx context.Context, hive storage.Hive, dependencyKey string, d storage.Dependent) error {
	if err := storage.ValidateRow(hive, dependencyKey, d.Key); err != nil {
		return err
	}
	return s.putJSON(ctx, s.dependentObject(hive, dependencyKey, d.Key), d, "write dependent")
}

// DeleteDependent implements storage.ProviderWriter.DeleteDependent
func (s *Store) DeleteDependent(ctx context.Context, hive storage.Hive, dependencyKey, dependentKey string) error {
	if err := storage.ValidateRow(hive, dependencyKey, dependentKey); err != nil {
		return err
	}

	object := s.dependentObject(hive, dependencyKey, dependentKey)
	exists, err := s.exists(ctx, object)
	if err != nil {
		return err
	}
	if exists {
		return s.delete(ctx, object, "delete dependent")
	}

	exists, err = s.exists(ctx, s.providerObject(hive, dependencyKey))
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("dependent %s of %s: %w", dependentKey, dependencyKey, storage.ErrNotFound)
	}
	return nil
}

// HealthCheck implements storage.HealthChecker.HealthCheck
func (s *Store) HealthCheck(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err != nil {
		return storage.AccessError("s3 health check", err)
	}
	return nil
}

// Close is a no-op; the S3 client holds no connections that need releasing
func (s *Store) Close() error {
	return nil
}

func (s *Store) getJSON(ctx context.Context, object string, v any) error {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(object),
	})
	if isNotFound(err) {
		return storage.ErrNotFound
	}
	if err != nil {
		return storage.AccessError("get object", err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return storage.AccessError("read object", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return storage.AccessError("decode "+path.Base(object), err)
	}
	return nil
}

func (s *Store) putJSON(ctx context.Context, object string, v any, op string) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal row: %w", err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(object),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return storage.AccessError(op, err)
	}
	return nil
}

func (s *Store) exists(ctx context.Context, object string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(object),
	})
	if isNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, storage.AccessError("head object", err)
	}
	return true, nil
}

func (s *Store) delete(ctx context.Context, object, op string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(object),
	})
	if err != nil {
		return storage.AccessError(op, err)
	}
	return nil
}

// isNotFound matches GetObject's NoSuchKey and HeadObject's NotFound
func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	return errors.As(err, &noSuchKey) || errors.As(err, &notFound)
}
