package impl

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/snipara/rlm/auth"
	"github.com/snipara/rlm/models"
)

// IntegratorAdmin is the partner provisioning surface: workspaces, clients,
// client keys, and webhook endpoints. Every provisioned client gets its own
// backing project so the retrieval path stays tenant-agnostic.
type IntegratorAdmin struct {
	db *gorm.DB
}

func NewIntegratorAdmin(db *gorm.DB) *IntegratorAdmin {
	return &IntegratorAdmin{db: db}
}

func slugify(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			b.WriteByte('-')
		}
	}
	return strings.Trim(b.String(), "-")
}

func randomSuffix() string {
	buf := make([]byte, 4)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func (s *IntegratorAdmin) CreateWorkspace(ctx context.Context, name, ownerEmail string) (*models.IntegratorWorkspace, error) {
	ws := models.IntegratorWorkspace{
		Name:    name,
		Slug:    slugify(name) + "-" + randomSuffix(),
		OwnerID: ownerEmail,
	}
	if err := s.db.WithContext(ctx).Create(&ws).Error; err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}
	return &ws, nil
}

func (s *IntegratorAdmin) GetWorkspace(ctx context.Context, id uuid.UUID) (*models.IntegratorWorkspace, error) {
	var ws models.IntegratorWorkspace
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&ws).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("workspace not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load workspace: %w", err)
	}
	return &ws, nil
}

// CreateClient provisions a downstream tenant: a team, a backing project,
// and the client row pointing at it, in one transaction.
func (s *IntegratorAdmin) CreateClient(ctx context.Context, workspaceID uuid.UUID, name string, bundle models.IntegratorBundle) (*models.IntegratorClient, error) {
	ws, err := s.GetWorkspace(ctx, workspaceID)
	if err != nil {
		return nil, err
	}

	var client models.IntegratorClient
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		team := models.Team{
			Name:    fmt.Sprintf("%s / %s", ws.Name, name),
			Slug:    slugify(name) + "-" + randomSuffix(),
			OwnerID: ws.OwnerID,
		}
		if err := tx.Create(&team).Error; err != nil {
			return fmt.Errorf("failed to create client team: %w", err)
		}

		project := models.Project{
			TeamID:  team.ID,
			Name:    name,
			Slug:    team.Slug,
			OwnerID: ws.OwnerID,
		}
		if err := tx.Create(&project).Error; err != nil {
			return fmt.Errorf("failed to create client project: %w", err)
		}

		client = models.IntegratorClient{
			WorkspaceID: workspaceID,
			ProjectID:   project.ID,
			Name:        name,
			Bundle:      bundle,
			IsActive:    true,
		}
		if err := tx.Create(&client).Error; err != nil {
			return fmt.Errorf("failed to create client: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &client, nil
}

func (s *IntegratorAdmin) GetClient(ctx context.Context, clientID uuid.UUID) (*models.IntegratorClient, error) {
	var client models.IntegratorClient
	err := s.db.WithContext(ctx).Where("id = ?", clientID).First(&client).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("client not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load client: %w", err)
	}
	return &client, nil
}

func (s *IntegratorAdmin) ListClients(ctx context.Context, workspaceID uuid.UUID) ([]models.IntegratorClient, error) {
	var clients []models.IntegratorClient
	err := s.db.WithContext(ctx).
		Where("workspace_id = ?", workspaceID).
		Order("created_at ASC").
		Find(&clients).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}
	return clients, nil
}

func (s *IntegratorAdmin) UpdateClient(ctx context.Context, clientID uuid.UUID, name string, bundle models.IntegratorBundle) (*models.IntegratorClient, error) {
	var client models.IntegratorClient
	if err := s.db.WithContext(ctx).Where("id = ?", clientID).First(&client).Error; err != nil {
		return nil, fmt.Errorf("client not found")
	}
	if name != "" {
		client.Name = name
	}
	if bundle != "" {
		client.Bundle = bundle
	}
	if err := s.db.WithContext(ctx).Save(&client).Error; err != nil {
		return nil, fmt.Errorf("failed to update client: %w", err)
	}
	return &client, nil
}

// DeleteClient deactivates the client and revokes its keys. The backing
// project and its corpus are kept for audit.
func (s *IntegratorAdmin) DeleteClient(ctx context.Context, clientID uuid.UUID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.IntegratorClient{}).
			Where("id = ?", clientID).
			Update("is_active", false)
		if res.Error != nil {
			return fmt.Errorf("failed to deactivate client: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("client not found")
		}
		err := tx.Model(&models.ClientAPIKey{}).
			Where("client_id = ? AND revoked_at IS NULL", clientID).
			Update("revoked_at", gorm.Expr("CURRENT_TIMESTAMP")).Error
		if err != nil {
			return fmt.Errorf("failed to revoke client keys: %w", err)
		}
		return nil
	})
}

// CreateClientKey mints a snipara_ic_ key. The plaintext is returned
// exactly once; only the hash and audit prefix persist.
func (s *IntegratorAdmin) CreateClientKey(ctx context.Context, clientID uuid.UUID, name string) (*models.ClientAPIKey, string, error) {
	var client models.IntegratorClient
	if err := s.db.WithContext(ctx).Where("id = ?", clientID).First(&client).Error; err != nil {
		return nil, "", fmt.Errorf("client not found")
	}

	raw, err := auth.NewClientKey()
	if err != nil {
		return nil, "", err
	}
	key := models.ClientAPIKey{
		ClientID:  clientID,
		KeyHash:   auth.HashCredential(raw),
		KeyPrefix: auth.AuditPrefix(raw),
		Name:      name,
	}
	if err := s.db.WithContext(ctx).Create(&key).Error; err != nil {
		return nil, "", fmt.Errorf("failed to create client key: %w", err)
	}
	return &key, raw, nil
}

func (s *IntegratorAdmin) RevokeClientKey(ctx context.Context, keyID uuid.UUID) error {
	res := s.db.WithContext(ctx).Model(&models.ClientAPIKey{}).
		Where("id = ? AND revoked_at IS NULL", keyID).
		Update("revoked_at", gorm.Expr("CURRENT_TIMESTAMP"))
	if res.Error != nil {
		return fmt.Errorf("failed to revoke key: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("key not found")
	}
	return nil
}

func (s *IntegratorAdmin) CreateWebhook(ctx context.Context, workspaceID uuid.UUID, url string, eventTypes []string) (*models.WebhookEndpoint, error) {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("failed to generate webhook secret: %w", err)
	}
	ep := models.WebhookEndpoint{
		WorkspaceID: workspaceID,
		URL:         url,
		Secret:      hex.EncodeToString(secret),
		EventTypes:  eventTypes,
		IsActive:    true,
	}
	if err := s.db.WithContext(ctx).Create(&ep).Error; err != nil {
		return nil, fmt.Errorf("failed to create webhook: %w", err)
	}
	return &ep, nil
}

func (s *IntegratorAdmin) DeleteWebhook(ctx context.Context, webhookID uuid.UUID) error {
	res := s.db.WithContext(ctx).Where("id = ?", webhookID).Delete(&models.WebhookEndpoint{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete webhook: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("webhook not found")
	}
	return nil
}
