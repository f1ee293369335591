package usecase_test

import (
	"context"
	"testing"

	"app/internal/domain/model"
	repo "app/internal/repository"
	"app/internal/usecase"

	"github.com/stretchr/testify/assert"
)

type stubStoreRepo struct {
	stores []model.Store
}

func (s *stubStoreRepo) FindByID(_ context.Context, storeID int64) (model.Store, error) {
	for _, st := range s.stores {
		if st.ID == storeID {
			return st, nil
		}
	}
	return model.Store{}, repo.ErrNotFound
}

func (s *stubStoreRepo) ListActive(context.Context) ([]model.Store, error) {
	return s.stores, nil
}

type stubAddressRepo struct {
	addresses map[int64]model.Address
	defaults  map[int64]model.Address
}

func (s *stubAddressRepo) FindByID(_ context.Context, addressID int64) (model.Address, error) {
	a, ok := s.addresses[addressID]
	if !ok {
		return model.Address{}, repo.ErrNotFound
	}
	return a, nil
}

func (s *stubAddressRepo) FindDefaultByUserID(_ context.Context, userID int64) (model.Address, error) {
	a, ok := s.defaults[userID]
	if !ok {
		return model.Address{}, repo.ErrNotFound
	}
	return a, nil
}

func ptr[T any](v T) *T { return &v }

// 渋谷駅周辺の座標で組む。半径内に2店舗、半径外に1店舗
func testStores() []model.Store {
	return []model.Store{
		{ID: 1, Name: "渋谷店", Latitude: 35.6580, Longitude: 139.7016, ServiceRadiusKM: 5, IsActive: true},
		{ID: 2, Name: "新宿店", Latitude: 35.6896, Longitude: 139.7006, ServiceRadiusKM: 5, IsActive: true},
		{ID: 3, Name: "横浜店", Latitude: 35.4658, Longitude: 139.6223, ServiceRadiusKM: 5, IsActive: true},
	}
}

func TestStoreResolver_ExplicitStoreID(t *testing.T) {
	r := usecase.NewNearestStoreResolver(&stubStoreRepo{stores: testStores()}, &stubAddressRepo{})

	//明示指定なら距離は見ない。横浜店でもそのまま通る
	id, err := r.Resolve(context.Background(), 1, usecase.ResolveStoreInput{StoreID: ptr(int64(3))})
	assert.NoError(t, err)
	assert.Equal(t, int64(3), id)
}

func TestStoreResolver_ExplicitStoreIDUnknown(t *testing.T) {
	r := usecase.NewNearestStoreResolver(&stubStoreRepo{stores: testStores()}, &stubAddressRepo{})

	_, err := r.Resolve(context.Background(), 1, usecase.ResolveStoreInput{StoreID: ptr(int64(999))})
	assert.ErrorIs(t, err, usecase.ErrStoreNotResolved)
}

func TestStoreResolver_ExplicitStoreIDInactive(t *testing.T) {
	stores := testStores()
	stores[2].IsActive = false
	r := usecase.NewNearestStoreResolver(&stubStoreRepo{stores: stores}, &stubAddressRepo{})

	_, err := r.Resolve(context.Background(), 1, usecase.ResolveStoreInput{StoreID: ptr(int64(3))})
	assert.ErrorIs(t, err, usecase.ErrStoreNotResolved)
}

func TestStoreResolver_PicksNearestWithinRadius(t *testing.T) {
	r := usecase.NewNearestStoreResolver(&stubStoreRepo{stores: testStores()}, &stubAddressRepo{})

	//渋谷駅そば。渋谷店と新宿店の両方が半径内だが渋谷店のほうが近い
	id, err := r.Resolve(context.Background(), 1, usecase.ResolveStoreInput{
		Latitude:  ptr(35.6590),
		Longitude: ptr(139.7005),
	})
	assert.NoError(t, err)
	assert.Equal(t, int64(1), id)
}

func TestStoreResolver_NoStoreInRadius(t *testing.T) {
	r := usecase.NewNearestStoreResolver(&stubStoreRepo{stores: testStores()}, &stubAddressRepo{})

	//大阪。どの店舗の半径にも入らない
	_, err := r.Resolve(context.Background(), 1, usecase.ResolveStoreInput{
		Latitude:  ptr(34.7025),
		Longitude: ptr(135.4959),
	})
	assert.ErrorIs(t, err, usecase.ErrStoreNotResolved)
}

func TestStoreResolver_UsesAddressCoordinates(t *testing.T) {
	addrs := &stubAddressRepo{
		addresses: map[int64]model.Address{
			7: {ID: 7, UserID: 1, Latitude: ptr(35.6900), Longitude: ptr(139.7000)},
		},
	}
	r := usecase.NewNearestStoreResolver(&stubStoreRepo{stores: testStores()}, addrs)

	id, err := r.Resolve(context.Background(), 1, usecase.ResolveStoreInput{AddressID: ptr(int64(7))})
	assert.NoError(t, err)
	assert.Equal(t, int64(2), id)
}

func TestStoreResolver_OtherUsersAddressRejected(t *testing.T) {
	addrs := &stubAddressRepo{
		addresses: map[int64]model.Address{
			7: {ID: 7, UserID: 99, Latitude: ptr(35.69), Longitude: ptr(139.70)},
		},
	}
	r := usecase.NewNearestStoreResolver(&stubStoreRepo{stores: testStores()}, addrs)

	_, err := r.Resolve(context.Background(), 1, usecase.ResolveStoreInput{AddressID: ptr(int64(7))})
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestStoreResolver_FallsBackToDefaultAddress(t *testing.T) {
	addrs := &stubAddressRepo{
		defaults: map[int64]model.Address{
			1: {ID: 3, UserID: 1, IsDefault: true, Latitude: ptr(35.6585), Longitude: ptr(139.7010)},
		},
	}
	r := usecase.NewNearestStoreResolver(&stubStoreRepo{stores: testStores()}, addrs)

	id, err := r.Resolve(context.Background(), 1, usecase.ResolveStoreInput{})
	assert.NoError(t, err)
	assert.Equal(t, int64(1), id)
}

func TestStoreResolver_AddressWithoutCoordinates(t *testing.T) {
	addrs := &stubAddressRepo{
		addresses: map[int64]model.Address{
			7: {ID: 7, UserID: 1},
		},
	}
	r := usecase.NewNearestStoreResolver(&stubStoreRepo{stores: testStores()}, addrs)

	_, err := r.Resolve(context.Background(), 1, usecase.ResolveStoreInput{AddressID: ptr(int64(7))})
	assert.ErrorIs(t, err, usecase.ErrStoreNotResolved)
}
