package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	stderrors "errors"

	"github.com/dkozyrev/codeshop/internal/infrastructure/kafka"
	"github.com/dkozyrev/codeshop/internal/infrastructure/redis"
	"github.com/dkozyrev/codeshop/internal/models"
	"github.com/dkozyrev/codeshop/internal/repository"
	"github.com/dkozyrev/codeshop/internal/security"
	pkgerrors "github.com/dkozyrev/codeshop/pkg/errors"
	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/crypto/bcrypt"
)

const (
	productCacheKey = "products:active"
	productCacheTTL = time.Minute
	balanceCacheTTL = 5 * time.Minute
)

// CheckoutReceipt is what a successful checkout returns to the customer:
// the completed order with decrypted codes and the balance that remains.
type CheckoutReceipt struct {
	Order      *models.Order `json:"order"`
	NewBalance int64         `json:"new_balance_cents"`
}

type StoreService interface {
	Register(ctx context.Context, username, password string) (int64, error)
	Login(ctx context.Context, username, password string) (string, error)

	ListProducts(ctx context.Context) ([]models.Product, error)
	GetProduct(ctx context.Context, id int64) (*models.Product, error)

	Checkout(ctx context.Context, userID int64, items []models.CartItem, method models.PaymentMethod, requestID string) (*CheckoutReceipt, error)
	GetOrder(ctx context.Context, orderID, userID int64, role models.Role) (*models.Order, error)
	ListOrders(ctx context.Context, userID int64) ([]models.Order, error)

	GetBalance(ctx context.Context, userID int64) (int64, error)
	SubmitCreditRequest(ctx context.Context, userID, amountCents int64, proofURL string) (*models.CreditRequest, error)
	ListOwnCreditRequests(ctx context.Context, userID int64) ([]models.CreditRequest, error)
}

type storeService struct {
	profileRepo   repository.ProfileRepository
	productRepo   repository.ProductRepository
	orderRepo     repository.OrderRepository
	creditRepo    repository.CreditRequestRepository
	redisClient   redis.RedisClient
	kafkaProducer kafka.KafkaProducer
	cipher        *security.CodeCipher
	jwtSecret     string
}

func NewStoreService(
	profileRepo repository.ProfileRepository,
	productRepo repository.ProductRepository,
	orderRepo repository.OrderRepository,
	creditRepo repository.CreditRequestRepository,
	redisClient redis.RedisClient,
	kafkaProducer kafka.KafkaProducer,
	cipher *security.CodeCipher,
	jwtSecret string,
) *storeService {
	return &storeService{
		profileRepo:   profileRepo,
		productRepo:   productRepo,
		orderRepo:     orderRepo,
		creditRepo:    creditRepo,
		redisClient:   redisClient,
		kafkaProducer: kafkaProducer,
		cipher:        cipher,
		jwtSecret:     jwtSecret,
	}
}

func (s *storeService) Register(ctx context.Context, username, password string) (int64, error) {
	tracer := otel.Tracer("store-service")
	ctx, span := tracer.Start(ctx, "Register")
	defer span.End()

	if username == "" || password == "" {
		span.SetStatus(codes.Error, "empty username or password")
		return 0, pkgerrors.ErrInvalidInput
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		span.RecordError(err)
		slog.Error("failed to hash password", "username", username, "error", err)
		return 0, fmt.Errorf("%w: failed to hash password", pkgerrors.ErrInternal)
	}

	profile := &models.Profile{
		Username:     username,
		PasswordHash: string(hash),
		Role:         models.RoleCustomer,
	}
	if err := s.profileRepo.Create(ctx, profile); err != nil {
		if stderrors.Is(err, pkgerrors.ErrUsernameExists) {
			span.SetStatus(codes.Error, "username already exists")
			return 0, err
		}
		span.RecordError(err)
		slog.Error("failed to create profile", "username", username, "error", err)
		return 0, fmt.Errorf("%w: failed to create profile", pkgerrors.ErrInternal)
	}

	slog.Info("user registered", "user_id", profile.ID, "username", username)
	return profile.ID, nil
}

func (s *storeService) Login(ctx context.Context, username, password string) (string, error) {
	tracer := otel.Tracer("store-service")
	ctx, span := tracer.Start(ctx, "Login")
	defer span.End()

	profile, err := s.profileRepo.GetByUsername(ctx, username)
	if err != nil {
		slog.Error("failed to login", "username", username, "error", err)
		return "", pkgerrors.ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(profile.PasswordHash), []byte(password)); err != nil {
		slog.Error("invalid password", "username", username)
		return "", pkgerrors.ErrInvalidCredentials
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": profile.ID,
		"role":    string(profile.Role),
		"exp":     time.Now().Add(time.Hour).Unix(),
	})
	tokenString, err := token.SignedString([]byte(s.jwtSecret))
	if err != nil {
		slog.Error("failed to generate JWT", "error", err)
		return "", fmt.Errorf("failed to generate token: %w", err)
	}

	if err := s.redisClient.Set(ctx, fmt.Sprintf("user:%d:token", profile.ID), tokenString, time.Hour); err != nil {
		slog.Error("failed to cache JWT", "user_id", profile.ID, "error", err)
	}

	slog.Info("user logged in", "username", username, "user_id", profile.ID)
	return tokenString, nil
}

func (s *storeService) ListProducts(ctx context.Context) ([]models.Product, error) {
	tracer := otel.Tracer("store-service")
	ctx, span := tracer.Start(ctx, "ListProducts")
	defer span.End()

	if cached, err := s.redisClient.Get(ctx, productCacheKey); err == nil {
		var products []models.Product
		if err := json.Unmarshal([]byte(cached), &products); err == nil {
			return products, nil
		}
		slog.Error("failed to unmarshal cached products", "error", err)
	}

	products, err := s.productRepo.ListActive(ctx)
	if err != nil {
		span.RecordError(err)
		slog.Error("failed to list products", "error", err)
		return nil, err
	}

	if raw, err := json.Marshal(products); err == nil {
		if err := s.redisClient.Set(ctx, productCacheKey, string(raw), productCacheTTL); err != nil {
			slog.Error("failed to cache products", "error", err)
		}
	}
	return products, nil
}

func (s *storeService) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	return s.productRepo.GetByID(ctx, id)
}

// Checkout runs the fulfillment transaction and returns the decrypted codes.
// requestID deduplicates client retries: a request id that was already seen
// is rejected before any state is touched.
func (s *storeService) Checkout(ctx context.Context, userID int64, items []models.CartItem, method models.PaymentMethod, requestID string) (*CheckoutReceipt, error) {
	tracer := otel.Tracer("store-service")
	ctx, span := tracer.Start(ctx, "Checkout")
	defer span.End()

	requestKey := fmt.Sprintf("request:%s", requestID)
	ok, err := s.redisClient.SetNX(ctx, requestKey, "pending", 24*time.Hour)
	if err != nil {
		span.RecordError(err)
		slog.Error("failed to set request key", "request_id", requestID, "error", err)
		return nil, fmt.Errorf("%w: idempotency check failed", pkgerrors.ErrInternal)
	}
	if !ok {
		span.SetStatus(codes.Error, "request already processed")
		slog.Warn("duplicate checkout request", "request_id", requestID, "user_id", userID)
		return nil, pkgerrors.ErrRequestAlreadyProcessed
	}

	result, err := s.orderRepo.Fulfill(ctx, userID, items, method)
	if err != nil {
		// A failed attempt should not burn the request id; the user is
		// expected to retry after fixing the cart or topping up.
		if delErr := s.redisClient.Del(ctx, requestKey); delErr != nil {
			slog.Error("failed to release request key", "request_id", requestID, "error", delErr)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "fulfillment failed")
		slog.Error("checkout failed", "user_id", userID, "request_id", requestID, "error", err)
		return nil, err
	}

	order := result.Order
	for i := range order.Items {
		plaintext, decErr := s.cipher.Decrypt(order.Items[i].EncryptedCode)
		if decErr != nil {
			// The order is committed; a code we cannot decrypt is data
			// corruption, not a user problem.
			span.RecordError(decErr)
			slog.Error("failed to decrypt sold code",
				"order_id", order.ID,
				"game_code_id", order.Items[i].GameCodeID,
				"error", decErr)
			return nil, pkgerrors.ErrDecryptionFail
		}
		order.Items[i].Code = plaintext
	}

	if err := s.redisClient.Set(ctx, requestKey, "completed", 24*time.Hour); err != nil {
		slog.Error("failed to finalize request key", "request_id", requestID, "error", err)
	}
	if err := s.redisClient.Del(ctx, fmt.Sprintf("user:%d:balance", userID)); err != nil {
		slog.Error("failed to invalidate balance cache", "user_id", userID, "error", err)
	}

	s.publishOrderEvent(order)

	slog.Info("checkout completed",
		"order_id", order.ID,
		"user_id", userID,
		"total_cents", order.TotalCents,
		"request_id", requestID)
	return &CheckoutReceipt{Order: order, NewBalance: result.NewBalance}, nil
}

func (s *storeService) publishOrderEvent(order *models.Order) {
	event := kafka.OrderEvent{
		OrderID:    order.ID,
		UserID:     order.UserID,
		TotalCents: order.TotalCents,
		CodesSold:  len(order.Items),
		Status:     string(order.Status),
		CreatedAt:  order.CreatedAt.UTC().Format(time.RFC3339),
	}
	eventBytes, err := json.Marshal(event)
	if err != nil {
		slog.Error("failed to marshal order event", "order_id", order.ID, "error", err)
		return
	}

	go func() {
		retries := 3
		for i := 0; i < retries; i++ {
			if err := s.kafkaProducer.Send(context.Background(), "orders", fmt.Sprintf("%d", order.ID), eventBytes); err == nil {
				return
			}
			time.Sleep(time.Second * time.Duration(i+1))
		}
		slog.Error("failed to send order event after retries", "order_id", order.ID)
	}()
}

// GetOrder enforces ownership: customers see only their own orders, admins
// may inspect any. Codes are decrypted only for the owner of a completed
// order.
func (s *storeService) GetOrder(ctx context.Context, orderID, userID int64, role models.Role) (*models.Order, error) {
	tracer := otel.Tracer("store-service")
	ctx, span := tracer.Start(ctx, "GetOrder")
	defer span.End()

	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	isOwner := order.UserID == userID
	if !isOwner && role != models.RoleAdmin && role != models.RoleSuperAdmin {
		span.SetStatus(codes.Error, "not order owner")
		return nil, pkgerrors.ErrNotOrderOwner
	}

	if isOwner && order.Status == models.OrderStatusCompleted {
		for i := range order.Items {
			plaintext, decErr := s.cipher.Decrypt(order.Items[i].EncryptedCode)
			if decErr != nil {
				span.RecordError(decErr)
				slog.Error("failed to decrypt sold code",
					"order_id", order.ID,
					"game_code_id", order.Items[i].GameCodeID,
					"error", decErr)
				return nil, pkgerrors.ErrDecryptionFail
			}
			order.Items[i].Code = plaintext
		}
	}
	return order, nil
}

func (s *storeService) ListOrders(ctx context.Context, userID int64) ([]models.Order, error) {
	return s.orderRepo.ListByUser(ctx, userID)
}

func (s *storeService) GetBalance(ctx context.Context, userID int64) (int64, error) {
	tracer := otel.Tracer("store-service")
	ctx, span := tracer.Start(ctx, "GetBalance")
	defer span.End()

	balanceKey := fmt.Sprintf("user:%d:balance", userID)
	if cached, err := s.redisClient.Get(ctx, balanceKey); err == nil {
		var balance int64
		if err := json.Unmarshal([]byte(cached), &balance); err == nil {
			return balance, nil
		}
		slog.Error("failed to unmarshal cached balance", "user_id", userID, "error", err)
	}

	balance, err := s.profileRepo.GetBalance(ctx, userID)
	if err != nil {
		span.RecordError(err)
		slog.Error("failed to get balance", "user_id", userID, "error", err)
		return 0, err
	}

	if err := s.redisClient.Set(ctx, balanceKey, balance, balanceCacheTTL); err != nil {
		slog.Error("failed to cache balance", "user_id", userID, "error", err)
	}
	return balance, nil
}

func (s *storeService) SubmitCreditRequest(ctx context.Context, userID, amountCents int64, proofURL string) (*models.CreditRequest, error) {
	tracer := otel.Tracer("store-service")
	ctx, span := tracer.Start(ctx, "SubmitCreditRequest")
	defer span.End()

	req := &models.CreditRequest{
		UserID:      userID,
		AmountCents: amountCents,
		ProofURL:    proofURL,
	}
	if err := s.creditRepo.Create(ctx, req); err != nil {
		span.RecordError(err)
		slog.Error("failed to submit credit request", "user_id", userID, "error", err)
		return nil, err
	}

	slog.Info("credit request submitted", "request_id", req.ID, "user_id", userID, "amount_cents", amountCents)
	return req, nil
}

func (s *storeService) ListOwnCreditRequests(ctx context.Context, userID int64) ([]models.CreditRequest, error) {
	return s.creditRepo.ListByUser(ctx, userID)
}
