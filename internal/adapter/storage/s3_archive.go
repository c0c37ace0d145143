// Package storage arquiva os XML autorizados em armazenamento compatível com S3.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	domain "github.com/hugohenrick/erp-veterinaria/internal/domain/fiscal"
	infraconfig "github.com/hugohenrick/erp-veterinaria/internal/infrastructure/config"
	"github.com/hugohenrick/erp-veterinaria/pkg/logger"
)

const xmlContentType = "application/xml"

// PutObjectAPI é o subconjunto do cliente S3 usado pelo arquivo
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archive implementa fiscal.Archive gravando um objeto por NFe autorizada
type S3Archive struct {
	client PutObjectAPI
	bucket string
	logger logger.Logger
}

// S3ArchiveOption configura o S3Archive
type S3ArchiveOption func(*S3Archive)

// WithLogger define o logger do arquivo
func WithLogger(log logger.Logger) S3ArchiveOption {
	return func(a *S3Archive) {
		a.logger = log
	}
}

// WithClient substitui o cliente S3 (MinIO embarcado, testes)
func WithClient(client PutObjectAPI) S3ArchiveOption {
	return func(a *S3Archive) {
		a.client = client
	}
}

// NewS3Archive cria o arquivo a partir da configuração de storage
func NewS3Archive(ctx context.Context, cfg infraconfig.StorageConfig, opts ...S3ArchiveOption) (*S3Archive, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("bucket de armazenamento é obrigatório")
	}

	archive := &S3Archive{
		bucket: cfg.Bucket,
		logger: logger.NewNop(),
	}
	for _, opt := range opts {
		opt(archive)
	}
	if archive.client != nil {
		return archive, nil
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("falha ao carregar configuração AWS: %w", err)
	}

	archive.client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return archive, nil
}

// ObjectKey monta a chave do objeto: nfe/<tenant>/<aaaa>/<mm>/<chave>.xml
func ObjectKey(doc *domain.Document) string {
	return fmt.Sprintf("nfe/%s/%s/%s.xml",
		strings.ReplaceAll(doc.TenantID, "/", "_"),
		doc.IssuedAt.Format("2006/01"),
		doc.AccessKey,
	)
}

// Put grava o XML do documento e devolve a localização s3://bucket/chave
func (a *S3Archive) Put(ctx context.Context, doc *domain.Document) (string, error) {
	if doc.XML == "" {
		return "", errors.New("documento sem XML para arquivar")
	}

	key := ObjectKey(doc)
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader([]byte(doc.XML)),
		ContentType: aws.String(xmlContentType),
		Metadata: map[string]string{
			"tenant-id":   doc.TenantID,
			"document-id": doc.ID,
			"protocol":    doc.Protocol,
		},
	})
	if err != nil {
		return "", fmt.Errorf("falha ao gravar XML no bucket %s: %w", a.bucket, err)
	}

	location := fmt.Sprintf("s3://%s/%s", a.bucket, key)
	a.logger.Debug("XML arquivado", "location", location, "access_key", doc.AccessKey)
	return location, nil
}
