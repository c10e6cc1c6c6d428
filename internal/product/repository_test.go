package product

import (
	"context"
	"errors"
	"testing"

	"tienda-be/internal/apperr"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var variantColumns = []string{
	"id", "product_id", "color_code", "size", "name", "price",
	"stock", "weight_grams", "active", "active",
}

func TestRepository_GetVariants(t *testing.T) {
	ctx := context.Background()
	key := VariantKey{ProductID: 10, ColorCode: "#000000", Size: "M"}

	t.Run("Success", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()
		repo := NewRepository(db)

		mock.ExpectQuery(`(?s)SELECT .* FROM unnest\(\$1::bigint\[\], \$2::text\[\], \$3::text\[\]\)`).
			WillReturnRows(sqlmock.NewRows(variantColumns).
				AddRow(1, 10, "#000000", "M", "Camiseta", "45000.00", 5, 250, true, true))

		res, err := repo.GetVariants(ctx, []VariantKey{key})
		require.NoError(t, err)
		require.Contains(t, res, key)
		v := res[key]
		assert.Equal(t, int64(1), v.ID)
		assert.True(t, v.Price.Equal(decimal.NewFromInt(45000)))
		assert.Equal(t, 5, v.Stock)
		assert.True(t, v.Available())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("EmptyKeys", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		res, err := NewRepository(db).GetVariants(ctx, nil)
		require.NoError(t, err)
		assert.Empty(t, res)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("QueryError", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery(`(?s)SELECT .*`).WillReturnError(errors.New("db error"))

		_, err = NewRepository(db).GetVariants(ctx, []VariantKey{key})
		assert.ErrorIs(t, err, ErrFailedGetVariants)
	})
}

func TestRepository_GetVariant_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`(?s)SELECT .*`).WillReturnRows(sqlmock.NewRows(variantColumns))

	_, err = NewRepository(db).GetVariant(context.Background(), VariantKey{ProductID: 99, ColorCode: "#fff", Size: "S"})
	assert.ErrorIs(t, err, ErrVariantNotFound)
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
}

func TestLoadVariants_Lock(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`(?s)SELECT .* FOR UPDATE OF v`).
		WillReturnRows(sqlmock.NewRows(variantColumns).
			AddRow(1, 10, "#000000", "M", "Camiseta", "45000", 5, 250, true, false))
	mock.ExpectRollback()

	tx, err := db.Begin()
	require.NoError(t, err)
	res, err := LoadVariants(context.Background(), tx, []VariantKey{{ProductID: 10, ColorCode: "#000000", Size: "M"}}, true)
	require.NoError(t, err)
	require.Len(t, res, 1)
	for _, v := range res {
		assert.False(t, v.Available())
	}
	require.NoError(t, tx.Rollback())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDecrementStock(t *testing.T) {
	ctx := context.Background()

	t.Run("Enough", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectExec(`UPDATE product_variants`).
			WithArgs(2, int64(1)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		ok, err := DecrementStock(ctx, db, 1, 2)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("Short", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectExec(`UPDATE product_variants`).
			WithArgs(9, int64(1)).
			WillReturnResult(sqlmock.NewResult(0, 0))

		ok, err := DecrementStock(ctx, db, 1, 9)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}
