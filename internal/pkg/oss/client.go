package oss

import (
	"bytes"
	"fmt"
	"path"
	"time"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"

	"github.com/qs3c/mirror_server/config"
)

// Client 收据归档使用的对象存储
type Client struct {
	bucket *oss.Bucket
}

func NewClient(cfg *config.OSSConfig) (*Client, error) {
	client, err := oss.New(cfg.Endpoint, cfg.AccessKeyID, cfg.AccessKeySecret)
	if err != nil {
		return nil, fmt.Errorf("failed to create OSS client: %w", err)
	}

	bucket, err := client.Bucket(cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to get bucket: %w", err)
	}

	return &Client{bucket: bucket}, nil
}

// ReceiptObjectKey 收据归档路径，按签发年月分目录
func ReceiptObjectKey(receiptNumber string, issuedAt time.Time) string {
	return path.Join("receipts", issuedAt.UTC().Format("2006/01"), receiptNumber+".html")
}

// PutReceipt 上传收据 HTML，返回 object key
func (c *Client) PutReceipt(receiptNumber string, issuedAt time.Time, html []byte) (string, error) {
	key := ReceiptObjectKey(receiptNumber, issuedAt)

	err := c.bucket.PutObject(key, bytes.NewReader(html),
		oss.ContentType("text/html; charset=utf-8"),
		oss.ObjectACL(oss.ACLPrivate),
	)
	if err != nil {
		return "", fmt.Errorf("failed to upload receipt: %w", err)
	}
	return key, nil
}

// SignedURL 生成带签名的临时下载地址
func (c *Client) SignedURL(objectKey string, expire time.Duration) (string, error) {
	if expire <= 0 {
		expire = time.Hour
	}

	signedURL, err := c.bucket.SignURL(objectKey, oss.HTTPGet, int64(expire.Seconds()))
	if err != nil {
		return "", fmt.Errorf("failed to generate signed URL: %w", err)
	}
	return signedURL, nil
}

// Delete 删除文件
func (c *Client) Delete(objectKey string) error {
	if err := c.bucket.DeleteObject(objectKey); err != nil {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}
