package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dkozyrev/codeshop/internal/infrastructure/kafka"
	"github.com/dkozyrev/codeshop/internal/infrastructure/redis"
	"github.com/dkozyrev/codeshop/internal/models"
	"github.com/dkozyrev/codeshop/internal/repository"
	"github.com/dkozyrev/codeshop/internal/security"
	pkgerrors "github.com/dkozyrev/codeshop/pkg/errors"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

type AdminService interface {
	CreateProduct(ctx context.Context, product *models.Product) error
	UpdateProduct(ctx context.Context, product *models.Product) error
	DeactivateProduct(ctx context.Context, id int64) error
	ListAllProducts(ctx context.Context) ([]models.Product, error)

	UploadCodes(ctx context.Context, productID int64, plainCodes []string) (int64, error)
	DeleteCode(ctx context.Context, codeID int64) error
	RevealCode(ctx context.Context, codeID int64) (string, error)

	ListCreditRequests(ctx context.Context, status models.CreditRequestStatus) ([]models.CreditRequest, error)
	ReviewCreditRequest(ctx context.Context, requestID, reviewerID int64, approve bool, note string) error

	ListUsers(ctx context.Context) ([]models.Profile, error)
	ChangeRole(ctx context.Context, userID int64, role models.Role) error
}

type adminService struct {
	productRepo   repository.ProductRepository
	codeRepo      repository.CodeRepository
	creditRepo    repository.CreditRequestRepository
	profileRepo   repository.ProfileRepository
	redisClient   redis.RedisClient
	kafkaProducer kafka.KafkaProducer
	cipher        *security.CodeCipher
}

func NewAdminService(
	productRepo repository.ProductRepository,
	codeRepo repository.CodeRepository,
	creditRepo repository.CreditRequestRepository,
	profileRepo repository.ProfileRepository,
	redisClient redis.RedisClient,
	kafkaProducer kafka.KafkaProducer,
	cipher *security.CodeCipher,
) *adminService {
	return &adminService{
		productRepo:   productRepo,
		codeRepo:      codeRepo,
		creditRepo:    creditRepo,
		profileRepo:   profileRepo,
		redisClient:   redisClient,
		kafkaProducer: kafkaProducer,
		cipher:        cipher,
	}
}

func (s *adminService) CreateProduct(ctx context.Context, product *models.Product) error {
	if err := s.productRepo.Create(ctx, product); err != nil {
		slog.Error("failed to create product", "name", product.Name, "error", err)
		return err
	}
	s.invalidateCatalog(ctx)
	slog.Info("product created", "product_id", product.ID, "name", product.Name)
	return nil
}

func (s *adminService) UpdateProduct(ctx context.Context, product *models.Product) error {
	if err := s.productRepo.Update(ctx, product); err != nil {
		slog.Error("failed to update product", "product_id", product.ID, "error", err)
		return err
	}
	s.invalidateCatalog(ctx)
	slog.Info("product updated", "product_id", product.ID)
	return nil
}

func (s *adminService) DeactivateProduct(ctx context.Context, id int64) error {
	if err := s.productRepo.Deactivate(ctx, id); err != nil {
		slog.Error("failed to deactivate product", "product_id", id, "error", err)
		return err
	}
	s.invalidateCatalog(ctx)
	slog.Info("product deactivated", "product_id", id)
	return nil
}

func (s *adminService) ListAllProducts(ctx context.Context) ([]models.Product, error) {
	return s.productRepo.ListAll(ctx)
}

// UploadCodes encrypts a batch of plaintext codes and stores them for one
// product. Plaintext never leaves this function unencrypted.
func (s *adminService) UploadCodes(ctx context.Context, productID int64, plainCodes []string) (int64, error) {
	tracer := otel.Tracer("admin-service")
	ctx, span := tracer.Start(ctx, "UploadCodes")
	defer span.End()

	if len(plainCodes) == 0 {
		span.SetStatus(codes.Error, "empty batch")
		return 0, fmt.Errorf("%w: no codes provided", pkgerrors.ErrInvalidInput)
	}

	batchID := uuid.NewString()
	encrypted := make([]string, 0, len(plainCodes))
	for _, plain := range plainCodes {
		if plain == "" {
			span.SetStatus(codes.Error, "empty code in batch")
			return 0, fmt.Errorf("%w: empty code in batch", pkgerrors.ErrInvalidInput)
		}
		ciphertext, err := s.cipher.Encrypt(plain)
		if err != nil {
			span.RecordError(err)
			slog.Error("failed to encrypt code", "batch_id", batchID, "error", err)
			return 0, fmt.Errorf("%w: encryption failed", pkgerrors.ErrInternal)
		}
		encrypted = append(encrypted, ciphertext)
	}

	inserted, err := s.codeRepo.BulkInsert(ctx, productID, encrypted)
	if err != nil {
		span.RecordError(err)
		slog.Error("failed to store code batch", "batch_id", batchID, "product_id", productID, "error", err)
		return 0, err
	}

	s.invalidateCatalog(ctx)

	available, err := s.codeRepo.CountUnsold(ctx, productID)
	if err != nil {
		slog.Error("failed to count stock after upload", "product_id", productID, "error", err)
		available = -1
	}
	slog.Info("code batch uploaded",
		"batch_id", batchID,
		"product_id", productID,
		"count", inserted,
		"available", available)
	return inserted, nil
}

func (s *adminService) DeleteCode(ctx context.Context, codeID int64) error {
	if err := s.codeRepo.DeleteUnsold(ctx, codeID); err != nil {
		slog.Error("failed to delete code", "game_code_id", codeID, "error", err)
		return err
	}
	s.invalidateCatalog(ctx)
	slog.Info("unsold code deleted", "game_code_id", codeID)
	return nil
}

// RevealCode decrypts a stored code for an authorized admin view.
func (s *adminService) RevealCode(ctx context.Context, codeID int64) (string, error) {
	code, err := s.codeRepo.GetByID(ctx, codeID)
	if err != nil {
		return "", err
	}
	plaintext, err := s.cipher.Decrypt(code.EncryptedCode)
	if err != nil {
		slog.Error("failed to decrypt stored code", "game_code_id", codeID, "error", err)
		return "", pkgerrors.ErrDecryptionFail
	}
	return plaintext, nil
}

func (s *adminService) ListCreditRequests(ctx context.Context, status models.CreditRequestStatus) ([]models.CreditRequest, error) {
	return s.creditRepo.ListByStatus(ctx, status)
}

func (s *adminService) ReviewCreditRequest(ctx context.Context, requestID, reviewerID int64, approve bool, note string) error {
	tracer := otel.Tracer("admin-service")
	ctx, span := tracer.Start(ctx, "ReviewCreditRequest")
	defer span.End()

	req, err := s.creditRepo.GetByID(ctx, requestID)
	if err != nil {
		return err
	}

	if approve {
		if _, err := s.creditRepo.Approve(ctx, requestID, reviewerID, note); err != nil {
			span.RecordError(err)
			slog.Error("failed to approve credit request", "request_id", requestID, "error", err)
			return err
		}
		if err := s.redisClient.Del(ctx, fmt.Sprintf("user:%d:balance", req.UserID)); err != nil {
			slog.Error("failed to invalidate balance cache", "user_id", req.UserID, "error", err)
		}
		s.publishCreditEvent(req, models.CreditRequestApproved)
		return nil
	}

	if err := s.creditRepo.Reject(ctx, requestID, reviewerID, note); err != nil {
		span.RecordError(err)
		slog.Error("failed to reject credit request", "request_id", requestID, "error", err)
		return err
	}
	s.publishCreditEvent(req, models.CreditRequestRejected)
	return nil
}

func (s *adminService) publishCreditEvent(req *models.CreditRequest, status models.CreditRequestStatus) {
	event := kafka.CreditEvent{
		RequestID:   req.ID,
		UserID:      req.UserID,
		AmountCents: req.AmountCents,
		Status:      string(status),
		ReviewedAt:  time.Now().UTC().Format(time.RFC3339),
	}
	eventBytes, err := json.Marshal(event)
	if err != nil {
		slog.Error("failed to marshal credit event", "request_id", req.ID, "error", err)
		return
	}

	go func() {
		retries := 3
		for i := 0; i < retries; i++ {
			if err := s.kafkaProducer.Send(context.Background(), "credits", fmt.Sprintf("%d", req.ID), eventBytes); err == nil {
				return
			}
			time.Sleep(time.Second * time.Duration(i+1))
		}
		slog.Error("failed to send credit event after retries", "request_id", req.ID)
	}()
}

func (s *adminService) ListUsers(ctx context.Context) ([]models.Profile, error) {
	return s.profileRepo.List(ctx)
}

func (s *adminService) ChangeRole(ctx context.Context, userID int64, role models.Role) error {
	if err := s.profileRepo.SetRole(ctx, userID, role); err != nil {
		slog.Error("failed to change role", "user_id", userID, "role", role, "error", err)
		return err
	}
	slog.Info("role changed", "user_id", userID, "role", role)
	return nil
}

func (s *adminService) invalidateCatalog(ctx context.Context) {
	if err := s.redisClient.Del(ctx, productCacheKey); err != nil {
		slog.Error("failed to invalidate product cache", "error", err)
	}
}
