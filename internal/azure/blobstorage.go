package azure

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/allsafeASM/rulegen/internal/common"
	"github.com/allsafeASM/rulegen/internal/models"
	"github.com/allsafeASM/rulegen/internal/storage/file"
	"github.com/projectdiscovery/gologger"
)

// uploader is the part of *azblob.Client used for rule exports
type uploader interface {
	UploadBuffer(ctx context.Context, containerName, blobName string, buffer []byte, o *azblob.UploadBufferOptions) (azblob.UploadBufferResponse, error)
}

// RuleExport is the document written for each run
type RuleExport struct {
	RunID       string        `json:"run_id"`
	GeneratedAt time.Time     `json:"generated_at"`
	Rules       []models.Rule `json:"rules"`
}

// BlobStorageClient wraps Azure Blob Storage operations
type BlobStorageClient struct {
	client        *azblob.Client
	uploader      uploader
	containerName string
	now           func() time.Time
}

// NewBlobStorageClient creates a new Blob Storage client
func NewBlobStorageClient(connectionString, containerName string) (*BlobStorageClient, error) {
	client, err := azblob.NewClientFromConnectionString(connectionString, nil)
	if err != nil {
		return nil, common.NewConfigurationError("BLOB_CONNECTION_STRING", fmt.Sprintf("failed to create blob storage client: %v", err))
	}

	return &BlobStorageClient{
		client:        client,
		uploader:      client,
		containerName: containerName,
		now:           time.Now,
	}, nil
}

// RuleBlobName returns the blob path of the export for runID
func RuleBlobName(runID string) string {
	return fmt.Sprintf("rules/%s.json", runID)
}

// StoreRules uploads the rules of one run as a JSON document
func (b *BlobStorageClient) StoreRules(ctx context.Context, runID string, rules []models.Rule) error {
	if rules == nil {
		rules = []models.Rule{}
	}

	export := RuleExport{
		RunID:       runID,
		GeneratedAt: b.now().UTC(),
		Rules:       rules,
	}

	exportJSON, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return common.NewInternalError("failed to marshal rules", err)
	}

	blobName := RuleBlobName(runID)
	contentType := "application/json"
	_, err = b.uploader.UploadBuffer(ctx, b.containerName, blobName, exportJSON, &azblob.UploadBufferOptions{
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: &contentType},
	})
	if err != nil {
		return common.NewStorageError("failed to upload rules to blob storage", err)
	}

	gologger.Info().Msgf("Stored %d rules in blob: %s/%s", len(rules), b.containerName, blobName)
	return nil
}

// Name returns the sink name
func (b *BlobStorageClient) Name() string {
	return "blob"
}

// DomainBlob reads "owner,domain" records from a blob
type DomainBlob struct {
	client   *BlobStorageClient
	blobName string
}

// DomainSource returns a domain source backed by blobName
func (b *BlobStorageClient) DomainSource(blobName string) *DomainBlob {
	return &DomainBlob{client: b, blobName: blobName}
}

// Domains streams the records of the blob
func (d *DomainBlob) Domains(ctx context.Context) iter.Seq2[models.Domain, error] {
	return func(yield func(models.Domain, error) bool) {
		response, err := d.client.client.DownloadStream(ctx, d.client.containerName, d.blobName, nil)
		if err != nil {
			yield(models.Domain{}, common.NewStorageError(fmt.Sprintf("failed to download %s/%s", d.client.containerName, d.blobName), err))
			return
		}
		defer response.Body.Close()

		gologger.Debug().Msgf("Reading domains from blob: %s/%s", d.client.containerName, d.blobName)
		for domain, err := range file.ParseDomains(ctx, response.Body) {
			if !yield(domain, err) || err != nil {
				return
			}
		}
	}
}
