// Package s3 mirrors files to any S3-compatible object store. It exists as
// the configuration-gated alternative to the graph backend.
package s3

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type Config struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	Folder          string
	UseSSL          bool
}

type Client struct {
	mc     *minio.Client
	bucket string
	folder string
}

func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, fmt.Errorf("s3: missing endpoint")
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("s3: missing bucket")
	}
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("s3: create client: %w", err)
	}
	folder := strings.Trim(cfg.Folder, "/")
	if folder == "" {
		folder = "telebot"
	}
	return &Client{mc: mc, bucket: cfg.Bucket, folder: folder}, nil
}

func (c *Client) Upload(ctx context.Context, remoteName string, data []byte) error {
	remoteName = strings.TrimSpace(remoteName)
	if remoteName == "" {
		return fmt.Errorf("s3: missing remote name")
	}
	key := path.Join(c.folder, remoteName)
	_, err := c.mc.PutObject(ctx, c.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return fmt.Errorf("s3: upload %s: %w", key, err)
	}
	return nil
}

func (c *Client) EnsureFolder(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("s3: missing folder name")
	}
	// Object stores have no real directories; an empty keep marker makes the
	// prefix visible in bucket listings.
	key := path.Join(c.folder, name, ".keep")
	_, err := c.mc.PutObject(ctx, c.bucket, key, bytes.NewReader(nil), 0, minio.PutObjectOptions{})
	if err != nil {
		return fmt.Errorf("s3: ensure folder %s: %w", key, err)
	}
	return nil
}
