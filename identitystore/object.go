package identitystore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	log "github.com/sirupsen/logrus"

	"github.com/modelbridge/rtcore/identity"
)

// ObjectConfig configures an ObjectStore.
type ObjectConfig struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	Region    string
	Prefix    string
	UseSSL    bool
	PathStyle bool
}

// ObjectStore persists identity.Credential records as one JSON object per
// credential in an S3-compatible bucket.
type ObjectStore struct {
	client *minio.Client
	cfg    ObjectConfig
}

// NewObjectStore connects to the configured S3-compatible endpoint.
func NewObjectStore(cfg ObjectConfig) (*ObjectStore, error) {
	cfg.Endpoint = strings.TrimSpace(cfg.Endpoint)
	cfg.Bucket = strings.TrimSpace(cfg.Bucket)
	cfg.Prefix = strings.Trim(cfg.Prefix, "/")
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("identitystore: object endpoint is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("identitystore: object bucket is required")
	}

	lookup := minio.BucketLookupDNS
	if cfg.PathStyle {
		lookup = minio.BucketLookupPath
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:       cfg.UseSSL,
		Region:       cfg.Region,
		BucketLookup: lookup,
	})
	if err != nil {
		return nil, fmt.Errorf("identitystore: connect object store: %w", err)
	}
	return &ObjectStore{client: client, cfg: cfg}, nil
}

func (s *ObjectStore) objectName(id string) string {
	name := id + ".json"
	if s.cfg.Prefix != "" {
		return path.Join(s.cfg.Prefix, name)
	}
	return name
}

// Save implements identity.Store.
func (s *ObjectStore) Save(ctx context.Context, c *identity.Credential) (string, error) {
	payload, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("identitystore: marshal credential %s: %w", c.ID, err)
	}
	_, err = s.client.PutObject(ctx, s.cfg.Bucket, s.objectName(c.ID),
		bytes.NewReader(payload), int64(len(payload)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return "", fmt.Errorf("identitystore: put credential %s: %w", c.ID, err)
	}
	log.WithField("credential_id", c.ID).Debug("identitystore: saved credential to object store")
	return c.ID, nil
}

// List implements identity.Store.
func (s *ObjectStore) List(ctx context.Context) ([]*identity.Credential, error) {
	prefix := ""
	if s.cfg.Prefix != "" {
		prefix = s.cfg.Prefix + "/"
	}
	var out []*identity.Credential
	for object := range s.client.ListObjects(ctx, s.cfg.Bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if object.Err != nil {
			return nil, fmt.Errorf("identitystore: list objects: %w", object.Err)
		}
		if !strings.HasSuffix(object.Key, ".json") {
			continue
		}
		obj, err := s.client.GetObject(ctx, s.cfg.Bucket, object.Key, minio.GetObjectOptions{})
		if err != nil {
			return nil, fmt.Errorf("identitystore: get object %s: %w", object.Key, err)
		}
		payload, err := io.ReadAll(obj)
		_ = obj.Close()
		if err != nil {
			return nil, fmt.Errorf("identitystore: read object %s: %w", object.Key, err)
		}
		var c identity.Credential
		if err := json.Unmarshal(payload, &c); err != nil {
			log.WithField("object", object.Key).Warn("identitystore: skipping malformed credential object")
			continue
		}
		out = append(out, &c)
	}
	return out, nil
}

// Delete implements identity.Store.
func (s *ObjectStore) Delete(ctx context.Context, id string) error {
	err := s.client.RemoveObject(ctx, s.cfg.Bucket, s.objectName(id), minio.RemoveObjectOptions{})
	if err != nil {
		return fmt.Errorf("identitystore: delete credential %s: %w", id, err)
	}
	return nil
}
