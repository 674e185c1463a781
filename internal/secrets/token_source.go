package secrets

import (
	"context"
	"fmt"

	"github.com/tidegate/tidegate/internal/domain"
)

// InstallationTokenSource decrypts access tokens from stored installations.
// The decrypted bundle never leaves the scope of one call.
type InstallationTokenSource struct {
	installations domain.InstallationStore
	cipher        *Cipher
}

func NewInstallationTokenSource(installations domain.InstallationStore, cipher *Cipher) *InstallationTokenSource {
	return &InstallationTokenSource{
		installations: installations,
		cipher:        cipher,
	}
}

func (s *InstallationTokenSource) AccessToken(ctx context.Context, tenantID, provider string) (string, error) {
	installation, err := s.installations.Get(ctx, tenantID, provider)
	if err != nil {
		return "", fmt.Errorf("failed to load installation for %s/%s: %w", tenantID, provider, err)
	}

	if !installation.IsActive() {
		return "", fmt.Errorf("installation for %s/%s is %s: %w", tenantID, provider, installation.Status, domain.ErrNotFound)
	}

	bundle, err := s.cipher.Decrypt(installation.EncryptedCredential)
	if err != nil {
		return "", err
	}

	return bundle.AccessToken, nil
}
