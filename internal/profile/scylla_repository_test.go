package profile

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/gocql/gocql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bazar_back_end/internal/database/cql"
	"bazar_back_end/internal/database/cql/cqltest"
	"bazar_back_end/internal/models"
)

const (
	homeID   = "5d0b6b7e-4d3f-4f6e-9a51-0c1f2e3d4a5b"
	officeID = "9a8b7c6d-5e4f-4a3b-8c2d-1e0f9a8b7c6d"
	otherID  = "c3d2e1f0-a9b8-4c7d-9e6f-5a4b3c2d1e0f"
)

func addressRow(t *testing.T, id, name string, isDefault bool) []interface{} {
	t.Helper()
	uid, err := gocql.ParseUUID(id)
	require.NoError(t, err)
	return []interface{}{uid, name, "01812345678", "Road 1", "", "Sylhet", "Sylhet", "3100", "BD", "home", isDefault}
}

func TestScyllaSetDefault(t *testing.T) {
	tests := []struct {
		name      string
		rows      func(t *testing.T) [][]interface{}
		target    string
		batchErr  error
		wantErr   error
		wantFlips map[string]bool
	}{
		{
			name: "moves default to another address",
			rows: func(t *testing.T) [][]interface{} {
				return [][]interface{}{addressRow(t, homeID, "Home", true), addressRow(t, officeID, "Office", false), addressRow(t, otherID, "Other", false)}
			},
			target:    officeID,
			wantFlips: map[string]bool{homeID: false, officeID: true},
		},
		{
			name: "first default only sets the target",
			rows: func(t *testing.T) [][]interface{} {
				return [][]interface{}{addressRow(t, homeID, "Home", false), addressRow(t, officeID, "Office", false)}
			},
			target:    homeID,
			wantFlips: map[string]bool{homeID: true},
		},
		{
			name: "already default writes nothing",
			rows: func(t *testing.T) [][]interface{} {
				return [][]interface{}{addressRow(t, homeID, "Home", true), addressRow(t, officeID, "Office", false)}
			},
			target:    homeID,
			wantFlips: map[string]bool{},
		},
		{
			name: "unknown address",
			rows: func(t *testing.T) [][]interface{} {
				return [][]interface{}{addressRow(t, homeID, "Home", true)}
			},
			target:  officeID,
			wantErr: ErrAddressNotFound,
		},
		{
			name:    "malformed id",
			rows:    func(*testing.T) [][]interface{} { return nil },
			target:  "home",
			wantErr: ErrAddressNotFound,
		},
		{
			name: "batch failure",
			rows: func(t *testing.T) [][]interface{} {
				return [][]interface{}{addressRow(t, homeID, "Home", true), addressRow(t, officeID, "Office", false)}
			},
			target:    officeID,
			batchErr:  errors.New("write timeout"),
			wantFlips: map[string]bool{homeID: false, officeID: true},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := cqltest.New()
			s.OnIter = func(cql.Statement) ([][]interface{}, error) { return tt.rows(t), nil }
			s.OnBatch = func([]cql.Statement) error { return tt.batchErr }
			repo := NewScyllaRepository(s)

			err := repo.SetDefault(context.Background(), "user-1", tt.target)
			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.batchErr != nil:
				assert.ErrorIs(t, err, tt.batchErr)
			default:
				require.NoError(t, err)
			}
			if tt.wantFlips == nil {
				assert.Empty(t, s.Batches)
				return
			}
			if len(tt.wantFlips) == 0 {
				assert.Empty(t, s.Batches, "no batch when nothing changes")
				return
			}

			require.Len(t, s.Batches, 1)
			got := map[string]bool{}
			for _, st := range s.Batches[0] {
				assert.Equal(t, "user-1", st.Values[1], "every row stays in the user's partition")
				got[st.Values[2].(gocql.UUID).String()] = st.Values[0].(bool)
			}
			assert.Equal(t, tt.wantFlips, got)
		})
	}
}

func TestScyllaListAddresses(t *testing.T) {
	s := cqltest.New()
	s.OnIter = func(st cql.Statement) ([][]interface{}, error) {
		assert.Equal(t, []interface{}{"user-1"}, st.Values)
		return [][]interface{}{addressRow(t, homeID, "Home", true)}, nil
	}
	repo := NewScyllaRepository(s)

	list, err := repo.ListAddresses(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, homeID, list[0].ID)
	assert.Equal(t, "user-1", list[0].UserID)
	assert.Equal(t, models.AddressHome, list[0].Type)
	assert.True(t, list[0].IsDefault)

	s.OnIter = func(cql.Statement) ([][]interface{}, error) { return nil, errors.New("read timeout") }
	_, err = repo.ListAddresses(context.Background(), "user-1")
	assert.ErrorContains(t, err, "read timeout")
}

func TestScyllaProfileReadsAndWrites(t *testing.T) {
	s := cqltest.New()
	repo := NewScyllaRepository(s)
	ctx := context.Background()

	_, err := repo.LoadProfile(ctx, "user-1")
	assert.ErrorIs(t, err, ErrNotFound)

	s.OnScan = func(cql.Statement) ([]interface{}, error) {
		return []interface{}{"Karim", "karim@example.com", "01812345678", `{"city":"Sylhet"}`}, nil
	}
	p, err := repo.LoadProfile(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", p.UserID)
	assert.Equal(t, "Karim", p.Name)
	assert.Equal(t, `{"city":"Sylhet"}`, p.DefaultAddress)

	require.NoError(t, repo.SaveCheckoutDefaults(ctx, "user-1", "01812345678", `{"city":"Dhaka"}`))
	saved := s.Ran("UPDATE users SET")
	require.Len(t, saved, 1)
	assert.Equal(t, []interface{}{"01812345678", `{"city":"Dhaka"}`, "user-1"}, saved[0].Values)

	a := models.SavedAddress{ID: officeID, UserID: "user-1", Name: "Office", Type: models.AddressOffice}
	require.NoError(t, repo.InsertAddress(ctx, a))
	inserted := s.Ran("INSERT INTO addresses_by_user")
	require.Len(t, inserted, 1)
	assert.Equal(t, "office", inserted[0].Values[10])
	assert.Error(t, repo.InsertAddress(ctx, models.SavedAddress{ID: "bad"}))
}

func TestScyllaDeleteAddress(t *testing.T) {
	s := cqltest.New()
	repo := NewScyllaRepository(s)
	ctx := context.Background()

	require.NoError(t, repo.DeleteAddress(ctx, "user-1", homeID))
	del := s.Ran("DELETE FROM addresses_by_user")
	require.Len(t, del, 1)
	assert.True(t, strings.HasSuffix(del[0].CQL, "IF EXISTS"))

	s.OnCAS = func(cql.Statement, map[string]interface{}) (bool, error) { return false, nil }
	assert.ErrorIs(t, repo.DeleteAddress(ctx, "user-1", homeID), ErrAddressNotFound)
	assert.ErrorIs(t, repo.DeleteAddress(ctx, "user-1", "nope"), ErrAddressNotFound)
}
