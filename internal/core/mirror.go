package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var (
	ErrObjectNotExist = errors.New("object does not exist")
)

// Mirror keeps a local or remote copy of every asset uploaded to the
// document service, keyed by content hash. The document service offers no
// way to download an asset back, so the mirror is the only durable copy.
//
// A mirror is free to save objects in any format as long as it can retrieve
// the same bytes when querying using the same key.
type Mirror interface {
	GetObject(key string) ([]byte, error)
	PutObject(key string, content []byte) error
	DeleteObject(key string) error
}

// NewMirror instantiates the mirror declared in the configuration, or nil
// when no mirror is configured.
func NewMirror(config ConfigMirror) (Mirror, error) {
	switch config.Type {
	case "":
		return nil, nil
	case "fs":
		return NewFSMirror(config.Dir)
	case "s3":
		return NewS3MirrorWithCredentials(config.Endpoint, config.BucketName,
			config.AccessKey, config.SecretKey, config.Secure)
	}
	return nil, fmt.Errorf("unsupported mirror type %q", config.Type)
}

/* FS */

type FSMirror struct {
	path string
}

func NewFSMirror(dirpath string) (*FSMirror, error) {
	stat, err := os.Stat(dirpath)
	if err != nil {
		return nil, err
	}
	if !stat.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", dirpath)
	}

	return &FSMirror{
		path: dirpath,
	}, nil
}

func (r *FSMirror) GetObject(key string) ([]byte, error) {
	path := filepath.Join(r.path, key)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrObjectNotExist
	}
	return data, err
}

func (r *FSMirror) PutObject(key string, data []byte) error {
	dirPath := filepath.Join(r.path, filepath.Dir(key))
	err := os.MkdirAll(dirPath, 0755)
	if err != nil {
		return err
	}
	filePath := filepath.Join(r.path, key)
	return os.WriteFile(filePath, data, 0644)
}

func (r *FSMirror) DeleteObject(key string) error {
	path := filepath.Join(r.path, key)
	_, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return ErrObjectNotExist
	}
	return os.Remove(path)
}

/* S3 */

type S3Mirror struct {
	// Settings
	endpoint   string
	accessKey  string
	secretKey  string
	bucketName string
	// Client
	minioClient *minio.Client
}

func NewS3MirrorWithCredentials(endpoint string, bucketName string, accessKey, secretKey string, secure bool) (*S3Mirror, error) {
	// Initialize minio client object.
	minioClient, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: secure,
	})
	if err != nil {
		return nil, err
	}

	return &S3Mirror{
		endpoint:    endpoint,
		accessKey:   accessKey,
		secretKey:   secretKey,
		bucketName:  bucketName,
		minioClient: minioClient,
	}, nil
}

func (r *S3Mirror) GetObject(key string) ([]byte, error) {
	object, err := r.minioClient.GetObject(context.Background(), r.bucketName, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer object.Close()
	stat, err := object.Stat()
	if err != nil {
		return nil, err
	}
	if stat.Size == 0 {
		return nil, ErrObjectNotExist
	}
	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(object); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (r *S3Mirror) PutObject(key string, data []byte) error {
	_, err := r.minioClient.PutObject(context.Background(), r.bucketName, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{})
	return err
}

func (r *S3Mirror) DeleteObject(key string) error {
	_, err := r.GetObject(key)
	if err != nil {
		return err
	}
	return r.minioClient.RemoveObject(context.Background(), r.bucketName, key, minio.RemoveObjectOptions{})
}
