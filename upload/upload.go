// Package upload stores proof-of-payment files next to their order.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

var (
	// ErrMissingIdentifiers is returned when the order id or customer name is empty.
	ErrMissingIdentifiers = errors.New("storefront: upload requires order id and customer name")

	// ErrEmptyFile is returned when no file name is given.
	ErrEmptyFile = errors.New("storefront: upload requires a file name")
)

// S3API is the subset of the S3 client used by Uploader.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Uploader writes files to an S3 bucket.
type Uploader struct {
	client S3API
	bucket string
}

// New creates an Uploader for bucket.
func New(client S3API, bucket string) *Uploader {
	return &Uploader{client: client, bucket: bucket}
}

// ProofOfPayment stores body and returns the stored object name.
// The order id and customer name are recorded as given, both in the object
// name and as object metadata.
func (u *Uploader) ProofOfPayment(ctx context.Context, orderID, customerName, fileName string, body io.Reader) (string, error) {
	if orderID == "" || customerName == "" {
		return "", ErrMissingIdentifiers
	}
	name := path.Base(fileName)
	if name == "." || name == "/" {
		return "", ErrEmptyFile
	}

	key := path.Join(orderID, customerName, name)
	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(u.bucket),
		Key:    aws.String(key),
		Body:   body,
		Metadata: map[string]string{
			"order-id":      orderID,
			"customer-name": customerName,
		},
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	return key, nil
}
