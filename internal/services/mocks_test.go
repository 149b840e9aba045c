package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dkozyrev/codeshop/internal/infrastructure/redis"
	"github.com/dkozyrev/codeshop/internal/models"
	"github.com/dkozyrev/codeshop/internal/repository"
)

// Hand-rolled fakes over the repository and infrastructure interfaces. Each
// method delegates to an optional func field, so a test wires only what it
// exercises.

type fakeProfileRepo struct {
	CreateFn        func(ctx context.Context, profile *models.Profile) error
	GetByIDFn       func(ctx context.Context, id int64) (*models.Profile, error)
	GetByUsernameFn func(ctx context.Context, username string) (*models.Profile, error)
	GetBalanceFn    func(ctx context.Context, userID int64) (int64, error)
	ListFn          func(ctx context.Context) ([]models.Profile, error)
	SetRoleFn       func(ctx context.Context, userID int64, role models.Role) error
}

func (f *fakeProfileRepo) Create(ctx context.Context, profile *models.Profile) error {
	return f.CreateFn(ctx, profile)
}
func (f *fakeProfileRepo) GetByID(ctx context.Context, id int64) (*models.Profile, error) {
	return f.GetByIDFn(ctx, id)
}
func (f *fakeProfileRepo) GetByUsername(ctx context.Context, username string) (*models.Profile, error) {
	return f.GetByUsernameFn(ctx, username)
}
func (f *fakeProfileRepo) GetBalance(ctx context.Context, userID int64) (int64, error) {
	return f.GetBalanceFn(ctx, userID)
}
func (f *fakeProfileRepo) List(ctx context.Context) ([]models.Profile, error) {
	return f.ListFn(ctx)
}
func (f *fakeProfileRepo) SetRole(ctx context.Context, userID int64, role models.Role) error {
	return f.SetRoleFn(ctx, userID, role)
}

type fakeProductRepo struct {
	CreateFn     func(ctx context.Context, product *models.Product) error
	UpdateFn     func(ctx context.Context, product *models.Product) error
	DeactivateFn func(ctx context.Context, id int64) error
	GetByIDFn    func(ctx context.Context, id int64) (*models.Product, error)
	ListActiveFn func(ctx context.Context) ([]models.Product, error)
	ListAllFn    func(ctx context.Context) ([]models.Product, error)
}

func (f *fakeProductRepo) Create(ctx context.Context, product *models.Product) error {
	return f.CreateFn(ctx, product)
}
func (f *fakeProductRepo) Update(ctx context.Context, product *models.Product) error {
	return f.UpdateFn(ctx, product)
}
func (f *fakeProductRepo) Deactivate(ctx context.Context, id int64) error {
	return f.DeactivateFn(ctx, id)
}
func (f *fakeProductRepo) GetByID(ctx context.Context, id int64) (*models.Product, error) {
	return f.GetByIDFn(ctx, id)
}
func (f *fakeProductRepo) ListActive(ctx context.Context) ([]models.Product, error) {
	return f.ListActiveFn(ctx)
}
func (f *fakeProductRepo) ListAll(ctx context.Context) ([]models.Product, error) {
	return f.ListAllFn(ctx)
}

type fakeOrderRepo struct {
	FulfillFn    func(ctx context.Context, userID int64, items []models.CartItem, method models.PaymentMethod) (*repository.FulfillmentResult, error)
	GetByIDFn    func(ctx context.Context, orderID int64) (*models.Order, error)
	ListByUserFn func(ctx context.Context, userID int64) ([]models.Order, error)
}

func (f *fakeOrderRepo) Fulfill(ctx context.Context, userID int64, items []models.CartItem, method models.PaymentMethod) (*repository.FulfillmentResult, error) {
	return f.FulfillFn(ctx, userID, items, method)
}
func (f *fakeOrderRepo) GetByID(ctx context.Context, orderID int64) (*models.Order, error) {
	return f.GetByIDFn(ctx, orderID)
}
func (f *fakeOrderRepo) ListByUser(ctx context.Context, userID int64) ([]models.Order, error) {
	return f.ListByUserFn(ctx, userID)
}

type fakeCodeRepo struct {
	BulkInsertFn   func(ctx context.Context, productID int64, encryptedCodes []string) (int64, error)
	GetByIDFn      func(ctx context.Context, id int64) (*models.GameCode, error)
	DeleteUnsoldFn func(ctx context.Context, id int64) error
	CountUnsoldFn  func(ctx context.Context, productID int64) (int64, error)
}

func (f *fakeCodeRepo) BulkInsert(ctx context.Context, productID int64, encryptedCodes []string) (int64, error) {
	return f.BulkInsertFn(ctx, productID, encryptedCodes)
}
func (f *fakeCodeRepo) GetByID(ctx context.Context, id int64) (*models.GameCode, error) {
	return f.GetByIDFn(ctx, id)
}
func (f *fakeCodeRepo) DeleteUnsold(ctx context.Context, id int64) error {
	return f.DeleteUnsoldFn(ctx, id)
}
func (f *fakeCodeRepo) CountUnsold(ctx context.Context, productID int64) (int64, error) {
	return f.CountUnsoldFn(ctx, productID)
}

type fakeCreditRepo struct {
	CreateFn       func(ctx context.Context, req *models.CreditRequest) error
	GetByIDFn      func(ctx context.Context, id int64) (*models.CreditRequest, error)
	ListByUserFn   func(ctx context.Context, userID int64) ([]models.CreditRequest, error)
	ListByStatusFn func(ctx context.Context, status models.CreditRequestStatus) ([]models.CreditRequest, error)
	ApproveFn      func(ctx context.Context, requestID, reviewerID int64, note string) (int64, error)
	RejectFn       func(ctx context.Context, requestID, reviewerID int64, note string) error
}

func (f *fakeCreditRepo) Create(ctx context.Context, req *models.CreditRequest) error {
	return f.CreateFn(ctx, req)
}
func (f *fakeCreditRepo) GetByID(ctx context.Context, id int64) (*models.CreditRequest, error) {
	return f.GetByIDFn(ctx, id)
}
func (f *fakeCreditRepo) ListByUser(ctx context.Context, userID int64) ([]models.CreditRequest, error) {
	return f.ListByUserFn(ctx, userID)
}
func (f *fakeCreditRepo) ListByStatus(ctx context.Context, status models.CreditRequestStatus) ([]models.CreditRequest, error) {
	return f.ListByStatusFn(ctx, status)
}
func (f *fakeCreditRepo) Approve(ctx context.Context, requestID, reviewerID int64, note string) (int64, error) {
	return f.ApproveFn(ctx, requestID, reviewerID, note)
}
func (f *fakeCreditRepo) Reject(ctx context.Context, requestID, reviewerID int64, note string) error {
	return f.RejectFn(ctx, requestID, reviewerID, note)
}

// fakeRedis is a goroutine-safe in-memory stand-in for the Redis client.
// Expirations are ignored; tests only care about presence.
type fakeRedis struct {
	mu   sync.Mutex
	data map[string]string
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: make(map[string]string)}
}

func (f *fakeRedis) Get(ctx context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	val, ok := f.data[key]
	if !ok {
		return "", redis.ErrKeyNotFound
	}
	return val, nil
}

func (f *fakeRedis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = toString(value)
	return nil
}

func (f *fakeRedis) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.data[key]; exists {
		return false, nil
	}
	f.data[key] = toString(value)
	return true, nil
}

func (f *fakeRedis) Del(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.data, key)
	return nil
}

func (f *fakeRedis) Close() error { return nil }

func (f *fakeRedis) has(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.data[key]
	return ok
}

func toString(value interface{}) string {
	if s, ok := value.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", value)
}

// fakeProducer records published messages.
type fakeProducer struct {
	mu    sync.Mutex
	sends []sentMessage
}

type sentMessage struct {
	Topic string
	Key   string
	Value []byte
}

func (f *fakeProducer) Send(ctx context.Context, topic, key string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, sentMessage{Topic: topic, Key: key, Value: value})
	return nil
}

func (f *fakeProducer) Close() error { return nil }
