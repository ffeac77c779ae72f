package secrets

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	secretmanager "google.golang.org/api/secretmanager/v1"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

var errProjectIDRequired = errors.New("gcp project id is required")

// SecretManager reads secrets from Google Secret Manager.
type SecretManager struct {
	versions  *secretmanager.ProjectsSecretsVersionsService
	projectID string
}

// NewSecretManager builds a Secret Manager accessor for the project.
func NewSecretManager(ctx context.Context, gcp config.GCPConfig, logg *logger.Logger, opts ...option.ClientOption) (*SecretManager, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	if projectID == "" {
		return nil, errProjectIDRequired
	}
	if trimmed := strings.TrimSpace(gcp.CredentialsJSON); trimmed != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(trimmed)))
	}

	svc, err := secretmanager.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating secret manager client: %w", err)
	}
	if logg != nil {
		logg.Info(ctx, "secret manager client initialized")
	}
	return &SecretManager{versions: svc.Projects.Secrets.Versions, projectID: projectID}, nil
}

// Access returns the payload of the latest enabled version of name.
func (m *SecretManager) Access(ctx context.Context, name string) (string, error) {
	resource := fmt.Sprintf("projects/%s/secrets/%s/versions/latest", m.projectID, name)
	resp, err := m.versions.Access(resource).Context(ctx).Do()
	if err != nil {
		return "", mapAccessError(err, name)
	}
	if resp.Payload == nil {
		return "", pkgerrors.New(pkgerrors.CodeCredentialsUnavailable, "secret has no payload")
	}
	data, err := base64.StdEncoding.DecodeString(resp.Payload.Data)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode secret payload")
	}
	return string(data), nil
}

func mapAccessError(err error, name string) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusNotFound, http.StatusForbidden, http.StatusPreconditionFailed:
			return pkgerrors.Wrap(pkgerrors.CodeCredentialsUnavailable, err, fmt.Sprintf("secret %q unavailable", name))
		}
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("access secret %q", name))
}

// NewStoreFromConfig builds the token store used by the binaries. Secret
// Manager is only dialed when a GCP project is configured; without one the
// store serves the static dev tokens alone.
func NewStoreFromConfig(ctx context.Context, cfg *config.Config, cache Cache, logg *logger.Logger) (*Store, error) {
	var accessor Accessor
	if strings.TrimSpace(cfg.GCP.ProjectID) != "" {
		sm, err := NewSecretManager(ctx, cfg.GCP, logg)
		if err != nil {
			return nil, err
		}
		accessor = sm
	}
	return NewStore(StoreParams{
		Accessor: accessor,
		Cache:    cache,
		Config:   cfg.Secrets,
		Logger:   logg,
	})
}
