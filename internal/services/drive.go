// Google Drive v3 implementation of [Backend]
//
// Response shapes based on https://developers.google.com/drive/api/reference/rest/v3/files
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/desertthunder/drivecopy/internal/models"
	"github.com/desertthunder/drivecopy/internal/shared"
	"golang.org/x/oauth2"
)

const (
	driveAuthURL  = "https://accounts.google.com/o/oauth2/auth"
	driveTokenURL = "https://oauth2.googleapis.com/token"
	driveBaseURL  = "https://www.googleapis.com/drive/v3"

	folderMimeType = "application/vnd.google-apps.folder"
	fileFields     = "id,name,mimeType,size,parents"
	listPageSize   = 1000
)

// DriveFile is the subset of the Drive file resource used by the service.
type DriveFile struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	MimeType string   `json:"mimeType"`
	Size     string   `json:"size,omitempty"` // int64 encoded as a string
	Parents  []string `json:"parents,omitempty"`
}

// Metadata converts the Drive resource into a [models.Metadata].
func (f DriveFile) Metadata() models.Metadata {
	m := models.Metadata{ID: f.ID, Name: f.Name, Kind: models.KindFile, ParentIDs: f.Parents}
	if f.MimeType == folderMimeType {
		m.Kind = models.KindFolder
	}
	if f.Size != "" {
		m.Size, _ = strconv.ParseInt(f.Size, 10, 64)
	}
	return m
}

type driveFileList struct {
	NextPageToken string      `json:"nextPageToken"`
	Files         []DriveFile `json:"files"`
}

type driveErrorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Errors  []struct {
			Reason string `json:"reason"`
		} `json:"errors"`
	} `json:"error"`
}

// DriveService implements [Backend] and [OAuthService] against the Drive v3 REST API.
type DriveService struct {
	config     *oauth2.Config
	token      *oauth2.Token
	httpClient *http.Client
	baseURL    string
	tokenPath  string
}

// NewDriveService creates a Drive service from the [credentials.drive] config section.
func NewDriveService(cfg shared.DriveConfig) (*DriveService, error) {
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("%w: missing client_id", shared.ErrMissingCredentials)
	}
	if cfg.ClientSecret == "" {
		return nil, fmt.Errorf("%w: missing client_secret", shared.ErrMissingCredentials)
	}

	redirectURI := cfg.RedirectURI
	if redirectURI == "" {
		redirectURI = "http://localhost:3000/callback"
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = driveBaseURL
	}

	config := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  redirectURI,
		Scopes:       []string{"https://www.googleapis.com/auth/drive"},
		Endpoint: oauth2.Endpoint{
			AuthURL:  driveAuthURL,
			TokenURL: driveTokenURL,
		},
	}

	return &DriveService{
		config:     config,
		httpClient: http.DefaultClient,
		baseURL:    baseURL,
		tokenPath:  ExpandHome(cfg.TokenPath),
	}, nil
}

func (s *DriveService) Name() string {
	return "Google Drive"
}

// Config returns the OAuth2 configuration, used by the callback handler to exchange codes.
func (s *DriveService) Config() *oauth2.Config {
	return s.config
}

// AuthURL returns the OAuth2 consent URL. Offline access is requested so a refresh token is issued.
func (s *DriveService) AuthURL(state string) string {
	return s.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Authenticate performs OAuth2 authentication with Drive. Expects either an "access_token" or "auth_code" in credentials.
func (s *DriveService) Authenticate(ctx context.Context, credentials map[string]string) error {
	if accessToken, ok := credentials["access_token"]; ok && accessToken != "" {
		s.SetToken(ctx, &oauth2.Token{AccessToken: accessToken})
		return nil
	}

	if authCode, ok := credentials["auth_code"]; ok && authCode != "" {
		token, err := s.config.Exchange(ctx, authCode)
		if err != nil {
			return fmt.Errorf("%w: failed to exchange auth code: %v", shared.ErrAuthFailed, err)
		}
		s.SetToken(ctx, token)
		return nil
	}

	return fmt.Errorf("%w: missing access_token or auth_code in credentials", shared.ErrMissingCredentials)
}

// SetToken installs token and an auto-refreshing HTTP client.
func (s *DriveService) SetToken(ctx context.Context, token *oauth2.Token) {
	s.token = token
	s.httpClient = s.config.Client(ctx, token)
}

// LoadToken reads the cached token from the configured token path.
func (s *DriveService) LoadToken(ctx context.Context) error {
	if s.tokenPath == "" {
		return fmt.Errorf("%w: no token_path configured", shared.ErrNotAuthenticated)
	}

	data, err := os.ReadFile(s.tokenPath)
	if err != nil {
		return fmt.Errorf("%w: %v (run `drivecopy auth`)", shared.ErrNotAuthenticated, err)
	}

	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return fmt.Errorf("%w: invalid token file: %v", shared.ErrNotAuthenticated, err)
	}
	s.SetToken(ctx, &token)
	return nil
}

// SaveToken writes the current token to the configured token path with owner-only permissions.
func (s *DriveService) SaveToken() error {
	if s.token == nil {
		return shared.ErrNotAuthenticated
	}
	if s.tokenPath == "" {
		return fmt.Errorf("%w: no token_path configured", shared.ErrInvalidConfig)
	}

	if err := os.MkdirAll(filepath.Dir(s.tokenPath), 0700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}

	data, err := json.MarshalIndent(s.token, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}
	return os.WriteFile(s.tokenPath, data, 0600)
}

// TokenPath returns the resolved token cache location.
func (s *DriveService) TokenPath() string {
	return s.tokenPath
}

// CreateFolder creates a folder under parentID, or under the user's root when parentID is empty.
func (s *DriveService) CreateFolder(ctx context.Context, name, parentID string) (string, error) {
	body := map[string]any{"name": name, "mimeType": folderMimeType}
	if parentID != "" {
		body["parents"] = []string{parentID}
	}

	var created DriveFile
	if err := s.doRequest(ctx, http.MethodPost, "/files", s.query("id,name"), body, &created); err != nil {
		return "", err
	}
	return created.ID, nil
}

// GetMetadata retrieves a file or folder by id.
func (s *DriveService) GetMetadata(ctx context.Context, id string) (*models.Metadata, error) {
	var f DriveFile
	if err := s.doRequest(ctx, http.MethodGet, "/files/"+url.PathEscape(id), s.query(fileFields), nil, &f); err != nil {
		return nil, err
	}
	m := f.Metadata()
	return &m, nil
}

// CopyFile copies id into destFolderID. Drive copies are atomic server-side, so progress jumps to 100 on success.
func (s *DriveService) CopyFile(ctx context.Context, id, destFolderID, newName string, progress func(int)) (*models.CopyResult, error) {
	body := map[string]any{"parents": []string{destFolderID}}
	if newName != "" {
		body["name"] = newName
	}

	var f DriveFile
	endpoint := "/files/" + url.PathEscape(id) + "/copy"
	if err := s.doRequest(ctx, http.MethodPost, endpoint, s.query(fileFields), body, &f); err != nil {
		return nil, err
	}

	if progress != nil {
		progress(100)
	}

	m := f.Metadata()
	return &models.CopyResult{ID: m.ID, Name: m.Name, Size: m.Size}, nil
}

// ListChildren pages through the non-trashed children of folderID, ordered folders first then by name.
func (s *DriveService) ListChildren(ctx context.Context, folderID string) ([]models.Metadata, error) {
	var children []models.Metadata
	pageToken := ""

	for {
		q := s.query("nextPageToken,files(" + fileFields + ")")
		q.Set("q", fmt.Sprintf("'%s' in parents and trashed = false", queryLiteral(folderID)))
		q.Set("orderBy", "folder,name")
		q.Set("pageSize", strconv.Itoa(listPageSize))
		q.Set("includeItemsFromAllDrives", "true")
		if pageToken != "" {
			q.Set("pageToken", pageToken)
		}

		var page driveFileList
		if err := s.doRequest(ctx, http.MethodGet, "/files", q, nil, &page); err != nil {
			return nil, err
		}

		for _, f := range page.Files {
			children = append(children, f.Metadata())
		}

		if page.NextPageToken == "" {
			break
		}
		pageToken = page.NextPageToken
	}

	return children, nil
}

// queryEscaper escapes backslashes before quotes; Replacer never rescans its own output.
var queryEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`)

// queryLiteral escapes s for use inside a single quoted Drive search string.
func queryLiteral(s string) string {
	return queryEscaper.Replace(s)
}

func (s *DriveService) query(fields string) url.Values {
	q := url.Values{}
	q.Set("supportsAllDrives", "true")
	if fields != "" {
		q.Set("fields", fields)
	}
	return q
}

// doRequest performs an authenticated HTTP request to the Drive API.
func (s *DriveService) doRequest(ctx context.Context, method, endpoint string, query url.Values, body any, result any) error {
	if s.token == nil {
		return fmt.Errorf("%w: call Authenticate first", shared.ErrNotAuthenticated)
	}

	apiURL := s.baseURL + endpoint
	if len(query) > 0 {
		apiURL += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, apiURL, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", shared.ErrAPIRequest, method, endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeDriveError(resp)
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// decodeDriveError maps a non-2xx response onto a shared sentinel, keeping Drive's message.
func decodeDriveError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var body driveErrorBody
	msg := strings.TrimSpace(string(data))
	reason := ""
	if err := json.Unmarshal(data, &body); err == nil && body.Error.Message != "" {
		msg = body.Error.Message
		if len(body.Error.Errors) > 0 {
			reason = body.Error.Errors[0].Reason
		}
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}

	var sentinel error
	switch {
	case resp.StatusCode == http.StatusNotFound:
		sentinel = shared.ErrNotFound
	case resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode == http.StatusForbidden && strings.Contains(strings.ToLower(reason), "limit"):
		sentinel = shared.ErrQuotaExceeded
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		sentinel = shared.ErrPermissionDenied
	case resp.StatusCode >= 500:
		sentinel = shared.ErrServiceUnavailable
	default:
		sentinel = shared.ErrAPIRequest
	}
	return fmt.Errorf("%w: status %d: %s", sentinel, resp.StatusCode, msg)
}

// ExpandHome replaces a leading "~" with the user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
