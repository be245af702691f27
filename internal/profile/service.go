// Package profile keeps the buyer's checkout defaults and saved addresses.
package profile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"bazar_back_end/internal/address"
	"bazar_back_end/internal/models"
	"bazar_back_end/internal/tasks"
	"bazar_back_end/internal/validation"
)

type Service struct {
	repo   Repository
	logger *slog.Logger
}

func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger.With("component", "profile")}
}

// Get returns the profile. A legacy encoded default address is rewritten in
// the canonical form on the way out.
func (s *Service) Get(ctx context.Context, userID string) (models.Profile, error) {
	stored, err := s.repo.LoadProfile(ctx, userID)
	if err != nil {
		return models.Profile{}, err
	}
	addr, ok, legacy := address.Read(stored.DefaultAddress)
	if legacy && ok {
		s.rewrite(ctx, stored, addr)
	}
	return models.Profile{
		UserID:         userID,
		Name:           stored.Name,
		Email:          stored.Email,
		Phone:          stored.Phone,
		DefaultAddress: addr,
	}, nil
}

func (s *Service) rewrite(ctx context.Context, stored StoredProfile, addr models.ProfileAddress) {
	encoded, err := address.Encode(addr)
	if err != nil {
		s.logger.WarnContext(ctx, "legacy address not rewritable", "user_id", stored.UserID, "error", err)
		return
	}
	if err := s.repo.SaveCheckoutDefaults(ctx, stored.UserID, stored.Phone, encoded); err != nil {
		s.logger.WarnContext(ctx, "legacy address rewrite failed", "user_id", stored.UserID, "error", err)
		return
	}
	s.logger.InfoContext(ctx, "legacy address rewritten", "user_id", stored.UserID)
}

// UpdateCheckoutDefaults sets phone and default address. Empty values keep
// what is stored. It reports whether anything was written.
func (s *Service) UpdateCheckoutDefaults(ctx context.Context, userID, phone string, addr models.ProfileAddress) (bool, error) {
	phone = strings.TrimSpace(phone)
	if phone != "" && !validation.ValidPhone(phone) {
		return false, validation.Errors{{Field: "phone", Message: "must be a valid mobile number (01XXXXXXXXX)"}}
	}

	stored, err := s.repo.LoadProfile(ctx, userID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return false, err
	}
	current, _, legacy := address.Read(stored.DefaultAddress)

	nextPhone, nextAddr := stored.Phone, current
	if phone != "" {
		nextPhone = phone
	}
	if !addr.IsZero() {
		nextAddr = addr
	}
	if nextPhone == stored.Phone && nextAddr == current && !legacy {
		return false, nil
	}

	encoded, err := address.Encode(nextAddr)
	if err != nil {
		return false, validation.Errors{{Field: "defaultAddress", Message: err.Error()}}
	}
	if err := s.repo.SaveCheckoutDefaults(ctx, userID, nextPhone, encoded); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Service) Addresses(ctx context.Context, userID string) ([]models.SavedAddress, error) {
	return s.repo.ListAddresses(ctx, userID)
}

// CreateAddress saves a new address. The first address of a user becomes
// the default.
func (s *Service) CreateAddress(ctx context.Context, userID string, in models.SavedAddress) (models.SavedAddress, error) {
	var errs validation.Errors
	errs.Required("name", in.Name)
	errs.Phone("phone", in.Phone)
	errs.Required("line1", in.Line1)
	errs.Required("city", in.City)
	errs.Required("region", in.Region)
	if in.Type == "" {
		in.Type = models.AddressHome
	}
	if !in.Type.Valid() {
		errs.Add("type", "must be home, office or other")
	}
	if err := errs.Err(); err != nil {
		return models.SavedAddress{}, err
	}

	existing, err := s.repo.ListAddresses(ctx, userID)
	if err != nil {
		return models.SavedAddress{}, err
	}
	wantDefault := in.IsDefault || len(existing) == 0

	in.ID = uuid.NewString()
	in.UserID = userID
	in.IsDefault = false
	if err := s.repo.InsertAddress(ctx, in); err != nil {
		return models.SavedAddress{}, err
	}
	if wantDefault {
		if err := s.repo.SetDefault(ctx, userID, in.ID); err != nil {
			return models.SavedAddress{}, err
		}
		in.IsDefault = true
	}
	return in, nil
}

func (s *Service) SetDefaultAddress(ctx context.Context, userID, addressID string) error {
	return s.repo.SetDefault(ctx, userID, addressID)
}

func (s *Service) DeleteAddress(ctx context.Context, userID, addressID string) error {
	return s.repo.DeleteAddress(ctx, userID, addressID)
}

// Task builds the post-checkout sync: the order's phone and address become
// the profile defaults and a home address is saved as default. Failures are
// logged by the queue and never reach the order.
func (s *Service) Task(userID, phone string, ship models.ShippingAddress) tasks.Task {
	return tasks.Task{
		Name: "profile-sync",
		Run: func(ctx context.Context) error {
			return s.sync(ctx, userID, phone, ship)
		},
	}
}

func (s *Service) sync(ctx context.Context, userID, phone string, ship models.ShippingAddress) error {
	addr := models.ProfileAddress{Division: ship.Region, District: ship.City, Address: ship.AddressLine}
	changed, err := s.UpdateCheckoutDefaults(ctx, userID, phone, addr)
	if err != nil {
		return fmt.Errorf("profile sync defaults: %w", err)
	}

	saved, err := s.repo.ListAddresses(ctx, userID)
	if err != nil {
		return fmt.Errorf("profile sync addresses: %w", err)
	}
	for _, a := range saved {
		if sameAddress(a, ship) {
			if !a.IsDefault {
				return s.repo.SetDefault(ctx, userID, a.ID)
			}
			s.logger.DebugContext(ctx, "profile already in sync", "user_id", userID, "defaults_changed", changed)
			return nil
		}
	}
	_, err = s.CreateAddress(ctx, userID, models.SavedAddress{
		Name:      ship.RecipientName,
		Phone:     ship.Phone,
		Line1:     ship.AddressLine,
		City:      ship.City,
		Region:    ship.Region,
		Country:   ship.Country,
		Type:      models.AddressHome,
		IsDefault: true,
	})
	return err
}

func sameAddress(a models.SavedAddress, ship models.ShippingAddress) bool {
	return strings.EqualFold(strings.TrimSpace(a.Line1), strings.TrimSpace(ship.AddressLine)) &&
		strings.EqualFold(a.City, ship.City) &&
		strings.EqualFold(a.Region, ship.Region)
}
