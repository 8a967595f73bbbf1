package transfer

import (
	"bytes"
	"context"
	"os"
	"path"
	"path/filepath"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials/stscreds"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// S3FileHandler exchanges partner files with an S3 bucket shared with the
// transfer endpoint.
type S3FileHandler struct {
	Logger        logrus.FieldLogger
	Bucket        string
	Endpoint      string
	AssumeRoleArn string
	TempDir       string
}

func (handler *S3FileHandler) createSession() (*session.Session, error) {
	config := aws.Config{}
	if handler.Endpoint != "" {
		config.Endpoint = aws.String(handler.Endpoint)
		config.S3ForcePathStyle = aws.Bool(true)
	}

	sess, err := session.NewSession(&config)
	if err != nil {
		return nil, err
	}

	if handler.AssumeRoleArn != "" {
		config.Credentials = stscreds.NewCredentials(sess, handler.AssumeRoleArn)
		sess, err = session.NewSession(&config)
	}
	return sess, err
}

func (handler *S3FileHandler) Upload(ctx context.Context, folder, name string, data []byte) error {
	sess, err := handler.createSession()
	if err != nil {
		return errors.Wrap(err, "could not create S3 session")
	}

	key := path.Join(folder, name)
	uploader := s3manager.NewUploader(sess)
	_, err = uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket: aws.String(handler.Bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return errors.Wrapf(err, "could not upload s3://%s/%s", handler.Bucket, key)
	}

	handler.Logger.Infof("Uploaded s3://%s/%s (%d bytes)", handler.Bucket, key, len(data))
	return nil
}

func (handler *S3FileHandler) Download(ctx context.Context, folder, name string) (string, error) {
	sess, err := handler.createSession()
	if err != nil {
		return "", errors.Wrap(err, "could not create S3 session")
	}

	key := path.Join(folder, name)
	downloader := s3manager.NewDownloader(sess)
	buff := &aws.WriteAtBuffer{}
	numBytes, err := downloader.DownloadWithContext(ctx, buff, &s3.GetObjectInput{
		Bucket: aws.String(handler.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var aerr awserr.Error
		if errors.As(err, &aerr) && (aerr.Code() == s3.ErrCodeNoSuchKey || aerr.Code() == "NotFound") {
			return "", ErrFileNotFound
		}
		return "", errors.Wrapf(err, "could not download s3://%s/%s", handler.Bucket, key)
	}

	dst := filepath.Join(handler.TempDir, name)
	if err := os.WriteFile(dst, buff.Bytes(), 0640); err != nil {
		return "", errors.Wrapf(err, "could not write temp file %s", dst)
	}

	handler.Logger.Infof("Downloaded s3://%s/%s to %s (%d bytes)", handler.Bucket, key, dst, numBytes)
	return dst, nil
}
