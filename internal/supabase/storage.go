package supabase

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	storage "github.com/supabase-community/storage-go"
)

type StorageClient struct {
	client  *storage.Client
	bucket  string
	baseURL string
}

func NewStorageClient(supabaseURL, serviceRoleKey, bucket string) *StorageClient {
	baseURL := strings.TrimRight(supabaseURL, "/")
	client := storage.NewClient(baseURL+"/storage/v1", serviceRoleKey, nil)

	return &StorageClient{
		client:  client,
		bucket:  bucket,
		baseURL: baseURL,
	}
}

// QuoteDocumentPath is the object path for a quote's PDF.
func QuoteDocumentPath(tradieID uuid.UUID, quoteNumber string) string {
	return fmt.Sprintf("tradies/%s/quotes/%s.pdf", tradieID.String(), quoteNumber)
}

// UploadDocument stores data at path, replacing any previous version, and
// returns the public URL.
func (s *StorageClient) UploadDocument(ctx context.Context, path string, data []byte, contentType string) (string, error) {
	upsert := true
	err := runWithContext(ctx, func() error {
		_, err := s.client.UploadFile(s.bucket, path, bytes.NewReader(data), storage.FileOptions{
			ContentType: &contentType,
			Upsert:      &upsert,
		})
		return err
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload document: %w", err)
	}

	return s.GetPublicURL(path), nil
}

func (s *StorageClient) GetPublicURL(path string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", s.baseURL, s.bucket, path)
}
