package blobstore

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"

	coreerrors "github.com/bitriver/edge/internal/errors"
	"github.com/bitriver/edge/internal/logger"
)

// AzureStore implements Store against a single Azure Blob Storage
// container, realizing the intent of the teacher's empty
// azure/blob-sidecar stub with a concrete client: every init/part/
// screenshot blob from SPEC_FULL.md §5/§4.7 is a key within one container,
// uploaded once and never mutated.
type AzureStore struct {
	client    *azblob.Client
	container string
	log       *slog.Logger
}

// NewAzureStore authenticates with DefaultAzureCredential (environment,
// managed identity, or workload identity, in that order) against
// accountURL, e.g. "https://<account>.blob.core.windows.net".
func NewAzureStore(accountURL, container string) (*AzureStore, error) {
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, coreerrors.NewInfraError("blobstore.credential", fmt.Errorf("load azure credential: %w", err), false)
	}
	client, err := azblob.NewClient(accountURL, cred, nil)
	if err != nil {
		return nil, coreerrors.NewInfraError("blobstore.client", fmt.Errorf("create azure blob client: %w", err), false)
	}
	return &AzureStore{
		client:    client,
		container: container,
		log:       logger.Logger().With("component", "blobstore.azure", "container", container),
	}, nil
}

func (s *AzureStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	resp, err := s.client.DownloadStream(ctx, s.container, key, nil)
	if err != nil {
		return nil, coreerrors.NewInfraError("blobstore.get", fmt.Errorf("download %s: %w", key, err), true)
	}
	return resp.Body, nil
}

func (s *AzureStore) Put(ctx context.Context, key string, data []byte) error {
	_, err := s.client.UploadBuffer(ctx, s.container, key, data, nil)
	if err != nil {
		return coreerrors.NewInfraError("blobstore.put", fmt.Errorf("upload %s: %w", key, err), true)
	}
	return nil
}

var _ Store = (*AzureStore)(nil)
