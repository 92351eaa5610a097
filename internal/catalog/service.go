// internal/catalog/service.go
package catalog

import "context"

// Service defines the interface for the catalog service.
type Service interface {
	ListBooks(ctx context.Context, ownerID int64) ([]Book, error)
	CreateBook(ctx context.Context, ownerID int64, title, author string) (*Book, error)
	UpdateStatus(ctx context.Context, ownerID, id int64, status string) (*Book, error)
	Search(ctx context.Context, query string) ([]Book, error)
}
