package profile

import (
	"context"
	"errors"
	"fmt"

	"github.com/gocql/gocql"

	"bazar_back_end/internal/database/cql"
	"bazar_back_end/internal/models"
)

// ScyllaRepository uses the users keyspace. Saved addresses live in one
// partition per user so the default swap is a single-partition logged batch.
type ScyllaRepository struct {
	session cql.Session
}

func NewScyllaRepository(session cql.Session) *ScyllaRepository {
	return &ScyllaRepository{session: session}
}

func (r *ScyllaRepository) LoadProfile(ctx context.Context, userID string) (StoredProfile, error) {
	p := StoredProfile{UserID: userID}
	err := r.session.Scan(ctx, cql.Stmt(`SELECT name, email, phone, default_address FROM users WHERE user_id = ?`, userID),
		&p.Name, &p.Email, &p.Phone, &p.DefaultAddress)
	if errors.Is(err, gocql.ErrNotFound) {
		return StoredProfile{}, ErrNotFound
	}
	if err != nil {
		return StoredProfile{}, fmt.Errorf("load profile: %w", err)
	}
	return p, nil
}

func (r *ScyllaRepository) SaveCheckoutDefaults(ctx context.Context, userID, phone, encoded string) error {
	err := r.session.Exec(ctx, cql.Stmt(`UPDATE users SET phone = ?, default_address = ? WHERE user_id = ?`,
		phone, encoded, userID))
	if err != nil {
		return fmt.Errorf("save checkout defaults: %w", err)
	}
	return nil
}

func (r *ScyllaRepository) ListAddresses(ctx context.Context, userID string) ([]models.SavedAddress, error) {
	scanner := r.session.Iter(ctx, cql.Stmt(`SELECT address_id, name, phone, line1, line2, city, region, postal_code, country, type, is_default
		FROM addresses_by_user WHERE user_id = ?`, userID))

	var out []models.SavedAddress
	for scanner.Next() {
		var (
			id   gocql.UUID
			a    models.SavedAddress
			kind string
		)
		if err := scanner.Scan(&id, &a.Name, &a.Phone, &a.Line1, &a.Line2, &a.City, &a.Region, &a.PostalCode, &a.Country, &kind, &a.IsDefault); err != nil {
			_ = scanner.Err()
			return nil, fmt.Errorf("list addresses: %w", err)
		}
		a.ID = id.String()
		a.UserID = userID
		a.Type = models.AddressType(kind)
		out = append(out, a)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("list addresses: %w", err)
	}
	return out, nil
}

func (r *ScyllaRepository) InsertAddress(ctx context.Context, a models.SavedAddress) error {
	id, err := gocql.ParseUUID(a.ID)
	if err != nil {
		return fmt.Errorf("address id: %w", err)
	}
	err = r.session.Exec(ctx, cql.Stmt(`INSERT INTO addresses_by_user (user_id, address_id, name, phone, line1, line2, city, region, postal_code, country, type, is_default)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.UserID, id, a.Name, a.Phone, a.Line1, a.Line2, a.City, a.Region, a.PostalCode, a.Country, string(a.Type), a.IsDefault))
	if err != nil {
		return fmt.Errorf("insert address: %w", err)
	}
	return nil
}

func (r *ScyllaRepository) SetDefault(ctx context.Context, userID, addressID string) error {
	target, err := gocql.ParseUUID(addressID)
	if err != nil {
		return ErrAddressNotFound
	}
	existing, err := r.ListAddresses(ctx, userID)
	if err != nil {
		return err
	}

	swaps, found := defaultSwaps(existing, target)
	if !found {
		return ErrAddressNotFound
	}
	batch := make([]cql.Statement, 0, len(swaps))
	for id, isDefault := range swaps {
		batch = append(batch, cql.Stmt(`UPDATE addresses_by_user SET is_default = ? WHERE user_id = ? AND address_id = ?`, isDefault, userID, id))
	}
	if err := r.session.Batch(ctx, batch); err != nil {
		return fmt.Errorf("set default address: %w", err)
	}
	return nil
}

// defaultSwaps returns the rows whose is_default must flip so that only
// target is the default.
func defaultSwaps(existing []models.SavedAddress, target gocql.UUID) (map[gocql.UUID]bool, bool) {
	swaps := map[gocql.UUID]bool{}
	found := false
	for _, a := range existing {
		id, err := gocql.ParseUUID(a.ID)
		if err != nil {
			continue
		}
		isTarget := id == target
		found = found || isTarget
		if a.IsDefault != isTarget {
			swaps[id] = isTarget
		}
	}
	return swaps, found
}

func (r *ScyllaRepository) DeleteAddress(ctx context.Context, userID, addressID string) error {
	id, err := gocql.ParseUUID(addressID)
	if err != nil {
		return ErrAddressNotFound
	}
	applied, err := r.session.CAS(ctx, cql.Stmt(`DELETE FROM addresses_by_user WHERE user_id = ? AND address_id = ? IF EXISTS`, userID, id), nil)
	if err != nil {
		return fmt.Errorf("delete address: %w", err)
	}
	if !applied {
		return ErrAddressNotFound
	}
	return nil
}

var _ Repository = (*ScyllaRepository)(nil)
