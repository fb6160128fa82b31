// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package sources

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"github.com/teradata-labs/promptmgr/pkg/prompts"
)

// S3Source reads prompt documents from an S3-compatible bucket.
//
// Params: key (alias path, required), version (object version id), format, field.
// Options: endpoint, bucket, access_key, secret_key, region, use_ssl, prefix.
// The secret key falls back to SourceConfig.APIKey.
type S3Source struct {
	client *minio.Client
	bucket string
	prefix string
	logger *zap.Logger
}

// NewS3Source creates a minio client. No request is made until the first fetch.
func NewS3Source(cfg prompts.SourceConfig, o Options) (*S3Source, error) {
	endpoint := cfg.Option("endpoint", "")
	if endpoint == "" {
		return nil, &prompts.ConfigError{Field: "options.endpoint", Reason: "s3 source requires an endpoint"}
	}
	bucket := cfg.Option("bucket", "")
	if bucket == "" {
		return nil, &prompts.ConfigError{Field: "options.bucket", Reason: "s3 source requires a bucket"}
	}

	useSSL := true
	if v := cfg.Option("use_ssl", ""); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, &prompts.ConfigError{Field: "options.use_ssl", Reason: fmt.Sprintf("not a boolean: %q", v)}
		}
		useSSL = b
	}

	secret := cfg.Option("secret_key", cfg.APIKey)
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.Option("access_key", ""), secret, ""),
		Secure: useSSL,
		Region: cfg.Option("region", ""),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create s3 client: %w", err)
	}

	s := &S3Source{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(cfg.Option("prefix", ""), "/"),
		logger: o.Logger,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s, nil
}

// ValidateParams requires a key and a known format.
func (s *S3Source) ValidateParams(params prompts.Params) error {
	if _, err := requireParam(params, "key", "path"); err != nil {
		return err
	}
	_, err := normalizeFormat(params.Get("format"))
	return err
}

// Fetch downloads and decodes the object.
func (s *S3Source) Fetch(ctx context.Context, params prompts.Params) (string, error) {
	if err := s.ValidateParams(params); err != nil {
		return "", err
	}
	key := s.objectKey(params.Get("key", "path"))

	opts := minio.GetObjectOptions{}
	if v := params.Get("version"); v != "" {
		opts.VersionID = v
	}

	obj, err := s.client.GetObject(ctx, s.bucket, key, opts)
	if err != nil {
		return "", s.translateError(key, err)
	}
	defer obj.Close()

	buf := new(bytes.Buffer)
	if _, err := io.Copy(buf, obj); err != nil {
		return "", s.translateError(key, err)
	}

	data, err := maybeDecompress(key, buf.Bytes())
	if err != nil {
		return "", err
	}
	format, _ := normalizeFormat(params.Get("format"))
	if format == "" {
		format = formatFromPath(key)
	}

	text, err := decodeDocument(data, format, params.Get("field"))
	if err != nil {
		return "", fmt.Errorf("s3://%s/%s: %w", s.bucket, key, err)
	}
	s.logger.Debug("loaded prompt object", zap.String("bucket", s.bucket), zap.String("key", key))
	return text, nil
}

func (s *S3Source) objectKey(key string) string {
	key = strings.TrimLeft(key, "/")
	if s.prefix == "" {
		return key
	}
	return path.Join(s.prefix, key)
}

func (s *S3Source) translateError(key string, err error) error {
	resp := minio.ToErrorResponse(err)
	switch resp.Code {
	case "NoSuchKey", "NoSuchVersion", "NoSuchBucket":
		return notFound("s3://%s/%s", s.bucket, key)
	}
	return fmt.Errorf("failed to get s3://%s/%s: %w", s.bucket, key, err)
}
