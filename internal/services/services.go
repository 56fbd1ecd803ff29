// package services defines the [Backend] interface for remote storage providers
//
// Google Drive (REST v3)
package services

import (
	"context"

	"github.com/desertthunder/drivecopy/internal/models"
)

// Backend is the remote storage capability the copy engine and the job registry consume.
type Backend interface {
	// CreateFolder creates a folder named name under parentID (the root when empty) and returns its id.
	CreateFolder(ctx context.Context, name, parentID string) (string, error)

	// GetMetadata returns the id, name, kind, size and parents of a remote object.
	GetMetadata(ctx context.Context, id string) (*models.Metadata, error)

	// CopyFile copies a single file into destFolderID.
	// newName overrides the copy's name when non-empty. progress, when non-nil, receives percentages in 0..100.
	CopyFile(ctx context.Context, id, destFolderID, newName string, progress func(int)) (*models.CopyResult, error)

	// ListChildren returns the direct children of folderID in a stable order.
	ListChildren(ctx context.Context, folderID string) ([]models.Metadata, error)
}

// OAuthService is a [Backend] authorized through an OAuth2 authorization code flow.
type OAuthService interface {
	Backend

	// AuthURL returns the consent page URL for the given CSRF state.
	AuthURL(state string) string

	// Authenticate installs a token from an "access_token" or exchanges an "auth_code".
	Authenticate(ctx context.Context, credentials map[string]string) error

	// Name returns the provider name (e.g. "Google Drive").
	Name() string
}

var _ OAuthService = (*DriveService)(nil)
