package service

import (
	"context"
	"testing"

	"github.com/dkozyrev/codeshop/internal/models"
	pkgerrors "github.com/dkozyrev/codeshop/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdminService_UploadCodes(t *testing.T) {
	ctx := context.Background()
	cipher := testCipher(t)

	t.Run("EncryptsBeforeStoring", func(t *testing.T) {
		var stored []string
		codesRepo := &fakeCodeRepo{
			BulkInsertFn: func(ctx context.Context, productID int64, encryptedCodes []string) (int64, error) {
				stored = encryptedCodes
				return int64(len(encryptedCodes)), nil
			},
			CountUnsoldFn: func(ctx context.Context, productID int64) (int64, error) { return 2, nil },
		}
		svc := NewAdminService(nil, codesRepo, nil, nil, newFakeRedis(), &fakeProducer{}, cipher)

		inserted, err := svc.UploadCodes(ctx, 1, []string{"AAAA-BBBB", "CCCC-DDDD"})
		require.NoError(t, err)
		assert.Equal(t, int64(2), inserted)
		require.Len(t, stored, 2)

		// Stored values are ciphertexts that round-trip back to the input.
		assert.NotEqual(t, "AAAA-BBBB", stored[0])
		plain, err := cipher.Decrypt(stored[0])
		require.NoError(t, err)
		assert.Equal(t, "AAAA-BBBB", plain)
	})

	t.Run("EmptyBatch", func(t *testing.T) {
		svc := NewAdminService(nil, &fakeCodeRepo{}, nil, nil, newFakeRedis(), &fakeProducer{}, cipher)

		inserted, err := svc.UploadCodes(ctx, 1, nil)
		assert.Zero(t, inserted)
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidInput)
	})

	t.Run("EmptyCodeInBatch", func(t *testing.T) {
		svc := NewAdminService(nil, &fakeCodeRepo{}, nil, nil, newFakeRedis(), &fakeProducer{}, cipher)

		inserted, err := svc.UploadCodes(ctx, 1, []string{"AAAA-BBBB", ""})
		assert.Zero(t, inserted)
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidInput)
	})

	t.Run("InvalidatesCatalogCache", func(t *testing.T) {
		rdb := newFakeRedis()
		require.NoError(t, rdb.Set(ctx, productCacheKey, "stale", 0))
		codesRepo := &fakeCodeRepo{
			BulkInsertFn: func(ctx context.Context, productID int64, encryptedCodes []string) (int64, error) {
				return int64(len(encryptedCodes)), nil
			},
			CountUnsoldFn: func(ctx context.Context, productID int64) (int64, error) { return 1, nil },
		}
		svc := NewAdminService(nil, codesRepo, nil, nil, rdb, &fakeProducer{}, cipher)

		_, err := svc.UploadCodes(ctx, 1, []string{"AAAA-BBBB"})
		require.NoError(t, err)
		assert.False(t, rdb.has(productCacheKey))
	})
}

func TestAdminService_RevealCode(t *testing.T) {
	ctx := context.Background()
	cipher := testCipher(t)

	ciphertext, err := cipher.Encrypt("AAAA-BBBB")
	require.NoError(t, err)

	codesRepo := &fakeCodeRepo{
		GetByIDFn: func(ctx context.Context, id int64) (*models.GameCode, error) {
			switch id {
			case 100:
				return &models.GameCode{ID: 100, ProductID: 1, EncryptedCode: ciphertext}, nil
			case 101:
				return &models.GameCode{ID: 101, ProductID: 1, EncryptedCode: "garbage"}, nil
			default:
				return nil, pkgerrors.ErrCodeNotFound
			}
		},
	}
	svc := NewAdminService(nil, codesRepo, nil, nil, newFakeRedis(), &fakeProducer{}, cipher)

	t.Run("Success", func(t *testing.T) {
		plain, err := svc.RevealCode(ctx, 100)
		require.NoError(t, err)
		assert.Equal(t, "AAAA-BBBB", plain)
	})

	t.Run("CorruptCiphertext", func(t *testing.T) {
		plain, err := svc.RevealCode(ctx, 101)
		assert.Empty(t, plain)
		assert.ErrorIs(t, err, pkgerrors.ErrDecryptionFail)
	})

	t.Run("NotFound", func(t *testing.T) {
		_, err := svc.RevealCode(ctx, 999)
		assert.ErrorIs(t, err, pkgerrors.ErrCodeNotFound)
	})
}

func TestAdminService_ReviewCreditRequest(t *testing.T) {
	ctx := context.Background()
	cipher := testCipher(t)

	pending := &models.CreditRequest{ID: 3, UserID: 7, AmountCents: 5000, Status: models.CreditRequestPending}

	t.Run("ApproveInvalidatesBalanceCache", func(t *testing.T) {
		rdb := newFakeRedis()
		require.NoError(t, rdb.Set(ctx, "user:7:balance", "2500", 0))

		approved := false
		credits := &fakeCreditRepo{
			GetByIDFn: func(ctx context.Context, id int64) (*models.CreditRequest, error) { return pending, nil },
			ApproveFn: func(ctx context.Context, requestID, reviewerID int64, note string) (int64, error) {
				approved = true
				assert.Equal(t, int64(3), requestID)
				assert.Equal(t, int64(2), reviewerID)
				return 7500, nil
			},
		}
		svc := NewAdminService(nil, nil, credits, nil, rdb, &fakeProducer{}, cipher)

		err := svc.ReviewCreditRequest(ctx, 3, 2, true, "checked")
		require.NoError(t, err)
		assert.True(t, approved)
		assert.False(t, rdb.has("user:7:balance"))
	})

	t.Run("Reject", func(t *testing.T) {
		rejected := false
		credits := &fakeCreditRepo{
			GetByIDFn: func(ctx context.Context, id int64) (*models.CreditRequest, error) { return pending, nil },
			RejectFn: func(ctx context.Context, requestID, reviewerID int64, note string) error {
				rejected = true
				assert.Equal(t, "no receipt", note)
				return nil
			},
		}
		svc := NewAdminService(nil, nil, credits, nil, newFakeRedis(), &fakeProducer{}, cipher)

		err := svc.ReviewCreditRequest(ctx, 3, 2, false, "no receipt")
		require.NoError(t, err)
		assert.True(t, rejected)
	})

	t.Run("AlreadyReviewed", func(t *testing.T) {
		credits := &fakeCreditRepo{
			GetByIDFn: func(ctx context.Context, id int64) (*models.CreditRequest, error) { return pending, nil },
			ApproveFn: func(ctx context.Context, requestID, reviewerID int64, note string) (int64, error) {
				return 0, pkgerrors.ErrCreditRequestReviewed
			},
		}
		svc := NewAdminService(nil, nil, credits, nil, newFakeRedis(), &fakeProducer{}, cipher)

		err := svc.ReviewCreditRequest(ctx, 3, 2, true, "")
		assert.ErrorIs(t, err, pkgerrors.ErrCreditRequestReviewed)
	})

	t.Run("NotFound", func(t *testing.T) {
		credits := &fakeCreditRepo{
			GetByIDFn: func(ctx context.Context, id int64) (*models.CreditRequest, error) {
				return nil, pkgerrors.ErrCreditRequestNotFound
			},
		}
		svc := NewAdminService(nil, nil, credits, nil, newFakeRedis(), &fakeProducer{}, cipher)

		err := svc.ReviewCreditRequest(ctx, 99, 2, true, "")
		assert.ErrorIs(t, err, pkgerrors.ErrCreditRequestNotFound)
	})
}

func TestAdminService_ProductLifecycle(t *testing.T) {
	ctx := context.Background()
	cipher := testCipher(t)

	t.Run("CreateInvalidatesCatalogCache", func(t *testing.T) {
		rdb := newFakeRedis()
		require.NoError(t, rdb.Set(ctx, productCacheKey, "stale", 0))
		products := &fakeProductRepo{
			CreateFn: func(ctx context.Context, product *models.Product) error {
				product.ID = 1
				return nil
			},
		}
		svc := NewAdminService(products, nil, nil, nil, rdb, &fakeProducer{}, cipher)

		err := svc.CreateProduct(ctx, &models.Product{Name: "Roblox $10", PriceCents: 1000, IsActive: true})
		require.NoError(t, err)
		assert.False(t, rdb.has(productCacheKey))
	})

	t.Run("DeactivateUnknown", func(t *testing.T) {
		products := &fakeProductRepo{
			DeactivateFn: func(ctx context.Context, id int64) error { return pkgerrors.ErrProductNotFound },
		}
		svc := NewAdminService(products, nil, nil, nil, newFakeRedis(), &fakeProducer{}, cipher)

		err := svc.DeactivateProduct(ctx, 99)
		assert.ErrorIs(t, err, pkgerrors.ErrProductNotFound)
	})
}

func TestAdminService_ChangeRole(t *testing.T) {
	ctx := context.Background()
	cipher := testCipher(t)

	var gotRole models.Role
	profiles := &fakeProfileRepo{
		SetRoleFn: func(ctx context.Context, userID int64, role models.Role) error {
			if userID != 7 {
				return pkgerrors.ErrUserNotFound
			}
			gotRole = role
			return nil
		},
	}
	svc := NewAdminService(nil, nil, nil, profiles, newFakeRedis(), &fakeProducer{}, cipher)

	require.NoError(t, svc.ChangeRole(ctx, 7, models.RoleAdmin))
	assert.Equal(t, models.RoleAdmin, gotRole)

	assert.ErrorIs(t, svc.ChangeRole(ctx, 99, models.RoleAdmin), pkgerrors.ErrUserNotFound)
}
