package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"github.com/drivesink/drivesink/internal/logging"
)

// ServiceName identifies this tool to the system keyring.
const ServiceName = "drivesink"

// ServiceAccountKey represents the JSON structure of a service account key file
type ServiceAccountKey struct {
	Type                    string `json:"type"`
	ProjectID               string `json:"project_id"`
	PrivateKeyID            string `json:"private_key_id"`
	PrivateKey              string `json:"private_key"`
	ClientEmail             string `json:"client_email"`
	ClientID                string `json:"client_id"`
	AuthURI                 string `json:"auth_uri"`
	TokenURI                string `json:"token_uri"`
	AuthProviderX509CertURL string `json:"auth_provider_x509_cert_url"`
	ClientX509CertURL       string `json:"client_x509_cert_url"`
}

// ParseServiceAccountKey validates raw key material.
func ParseServiceAccountKey(data []byte) (*ServiceAccountKey, error) {
	var key ServiceAccountKey
	if err := json.Unmarshal(data, &key); err != nil {
		return nil, fmt.Errorf("failed to parse service account key: %w", err)
	}
	if key.Type != "service_account" {
		return nil, fmt.Errorf("invalid service account key type: %s", key.Type)
	}
	if key.ClientEmail == "" {
		return nil, fmt.Errorf("missing client_email in service account key")
	}
	if key.PrivateKey == "" {
		return nil, fmt.Errorf("missing private_key in service account key")
	}
	return &key, nil
}

// DefaultStorageDir is where file-backed credentials live when no keyring is
// available.
func DefaultStorageDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "drivesink"), nil
}

// Provider resolves credentials for the source and sink clients. Resolution
// order: explicit key file, key stored under the profile, application default
// credentials.
type Provider struct {
	credentialsFile string
	profile         string
	store           StorageBackend
	logger          logging.Logger
}

// NewProvider creates a credential provider. credentialsFile may be empty.
func NewProvider(credentialsFile, profile string, store StorageBackend, logger logging.Logger) *Provider {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	return &Provider{
		credentialsFile: credentialsFile,
		profile:         profile,
		store:           store,
		logger:          logger,
	}
}

// keyData resolves the service account key material, or nil for ADC.
func (p *Provider) keyData() ([]byte, error) {
	if p.credentialsFile != "" {
		data, err := os.ReadFile(p.credentialsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read service account key: %w", err)
		}
		return data, nil
	}
	if p.store != nil && p.profile != "" {
		if data, err := p.store.Load(p.profile); err == nil {
			p.logger.Debug("using stored profile credentials",
				logging.F("profile", p.profile),
				logging.F("backend", p.store.Name()),
			)
			return data, nil
		}
	}
	return nil, nil
}

// ClientOptions returns the client options to pass to Google API clients.
func (p *Provider) ClientOptions(ctx context.Context, scopes ...string) ([]option.ClientOption, error) {
	keyData, err := p.keyData()
	if err != nil {
		return nil, err
	}
	if keyData == nil {
		p.logger.Debug("using application default credentials")
		return nil, nil
	}

	saKey, err := ParseServiceAccountKey(keyData)
	if err != nil {
		return nil, err
	}

	creds, err := google.CredentialsFromJSON(ctx, keyData, scopes...)
	if err != nil {
		return nil, fmt.Errorf("failed to build credentials: %w", err)
	}

	p.logger.Debug("using service account credentials",
		logging.F("clientEmail", saKey.ClientEmail),
		logging.F("projectId", saKey.ProjectID),
	)
	return []option.ClientOption{option.WithCredentials(creds)}, nil
}

// NewDriveService creates a read-only Drive API service.
func (p *Provider) NewDriveService(ctx context.Context) (*drive.Service, error) {
	opts, err := p.ClientOptions(ctx, drive.DriveReadonlyScope)
	if err != nil {
		return nil, err
	}
	if len(opts) == 0 {
		opts = []option.ClientOption{option.WithScopes(drive.DriveReadonlyScope)}
	}
	svc, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create drive service: %w", err)
	}
	return svc, nil
}
