package profile

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bazar_back_end/internal/models"
	"bazar_back_end/internal/validation"
)

func newService() (*Service, *MemoryRepository) {
	repo := NewMemoryRepository()
	return NewService(repo, slog.New(slog.NewTextHandler(io.Discard, nil))), repo
}

var dhakaShipping = models.ShippingAddress{
	RecipientName: "Farhana",
	Phone:         "01612345678",
	AddressLine:   "House 7, Road 11, Banani",
	City:          "Dhaka",
	Region:        "Dhaka",
}

func TestSyncTaskWritesDefaults(t *testing.T) {
	svc, repo := newService()
	ctx := context.Background()

	require.NoError(t, svc.Task("u1", "01612345678", dhakaShipping).Run(ctx))

	p, err := svc.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "01612345678", p.Phone)
	assert.Equal(t, models.ProfileAddress{Division: "Dhaka", District: "Dhaka", Address: "House 7, Road 11, Banani"}, p.DefaultAddress)

	stored, _ := repo.LoadProfile(ctx, "u1")
	assert.Equal(t, `{"division":"Dhaka","district":"Dhaka","address":"House 7, Road 11, Banani"}`, stored.DefaultAddress)

	saved, err := svc.Addresses(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.True(t, saved[0].IsDefault)
	assert.Equal(t, models.AddressHome, saved[0].Type)
}

func TestSyncTaskIsIdempotent(t *testing.T) {
	svc, repo := newService()
	ctx := context.Background()

	require.NoError(t, svc.Task("u1", "01612345678", dhakaShipping).Run(ctx))
	writes := repo.Writes
	require.NoError(t, svc.Task("u1", "01612345678", dhakaShipping).Run(ctx))

	assert.Equal(t, writes, repo.Writes, "unchanged data is not written again")
	saved, _ := svc.Addresses(ctx, "u1")
	assert.Len(t, saved, 1)
}

func TestSyncTaskMovesDefault(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()

	require.NoError(t, svc.Task("u1", "01612345678", dhakaShipping).Run(ctx))
	office := dhakaShipping
	office.AddressLine = "Level 4, Gulshan Avenue"
	require.NoError(t, svc.Task("u1", "01612345678", office).Run(ctx))

	saved, _ := svc.Addresses(ctx, "u1")
	require.Len(t, saved, 2)
	defaults := 0
	for _, a := range saved {
		if a.IsDefault {
			defaults++
			assert.Equal(t, "Level 4, Gulshan Avenue", a.Line1)
		}
	}
	assert.Equal(t, 1, defaults)

	// Back to the first address: reuse it instead of saving a copy.
	require.NoError(t, svc.Task("u1", "01612345678", dhakaShipping).Run(ctx))
	saved, _ = svc.Addresses(ctx, "u1")
	assert.Len(t, saved, 2)
	assert.Equal(t, "House 7, Road 11, Banani", saved[0].Line1)
	assert.True(t, saved[0].IsDefault)
}

func TestGetRewritesLegacyAddress(t *testing.T) {
	svc, repo := newService()
	ctx := context.Background()
	repo.Put(StoredProfile{
		UserID:         "u2",
		Phone:          "01712345678",
		DefaultAddress: `"{\"division\":\"Dhaka\",\"district\":\"Gulshan\",\"address\":\"X\"}"`,
	})

	p, err := svc.Get(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, models.ProfileAddress{Division: "Dhaka", District: "Gulshan", Address: "X"}, p.DefaultAddress)

	stored, _ := repo.LoadProfile(ctx, "u2")
	assert.Equal(t, `{"division":"Dhaka","district":"Gulshan","address":"X"}`, stored.DefaultAddress)
	assert.Equal(t, "01712345678", stored.Phone)
}

func TestGetLeavesUnreadableAddress(t *testing.T) {
	svc, repo := newService()
	repo.Put(StoredProfile{UserID: "u3", DefaultAddress: `{"0":"{","1":"\""}`})

	p, err := svc.Get(context.Background(), "u3")
	require.NoError(t, err)
	assert.True(t, p.DefaultAddress.IsZero())
	assert.Zero(t, repo.Writes)
}

func TestUpdateCheckoutDefaultsRejectsBadPhone(t *testing.T) {
	svc, repo := newService()
	_, err := svc.UpdateCheckoutDefaults(context.Background(), "u1", "02712345678", models.ProfileAddress{})
	var verrs validation.Errors
	assert.True(t, errors.As(err, &verrs))
	assert.Zero(t, repo.Writes)
}

func TestAddressLifecycle(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()

	first, err := svc.CreateAddress(ctx, "u1", models.SavedAddress{
		Name: "Farhana", Phone: "01612345678", Line1: "Banani", City: "Dhaka", Region: "Dhaka",
	})
	require.NoError(t, err)
	assert.True(t, first.IsDefault, "first address becomes default")

	second, err := svc.CreateAddress(ctx, "u1", models.SavedAddress{
		Name: "Farhana", Phone: "01612345678", Line1: "Agrabad", City: "Chattogram", Region: "Chattogram", Type: models.AddressOffice,
	})
	require.NoError(t, err)
	assert.False(t, second.IsDefault)

	require.NoError(t, svc.SetDefaultAddress(ctx, "u1", second.ID))
	saved, _ := svc.Addresses(ctx, "u1")
	for _, a := range saved {
		assert.Equal(t, a.ID == second.ID, a.IsDefault)
	}

	assert.ErrorIs(t, svc.SetDefaultAddress(ctx, "u1", "missing"), ErrAddressNotFound)
	require.NoError(t, svc.DeleteAddress(ctx, "u1", first.ID))
	assert.ErrorIs(t, svc.DeleteAddress(ctx, "u1", first.ID), ErrAddressNotFound)

	_, err = svc.CreateAddress(ctx, "u1", models.SavedAddress{Name: "x", Phone: "123", Type: "castle"})
	var verrs validation.Errors
	require.True(t, errors.As(err, &verrs))
	assert.GreaterOrEqual(t, len(verrs), 4)
}
