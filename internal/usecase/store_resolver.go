package usecase

import (
	"context"
	"errors"
	"math"

	repo "app/internal/repository"
)

var ErrStoreNotResolved = errors.New("no store within service radius")

type ResolveStoreInput struct {
	StoreID   *int64
	Latitude  *float64
	Longitude *float64
	AddressID *int64
}

// 座標または住所から注文を受ける店舗を1つ決める外部コラボレータ。
type StoreResolver interface {
	Resolve(ctx context.Context, userID int64, in ResolveStoreInput) (int64, error)
}

// 配送可能半径内で最寄りのアクティブ店舗を選ぶ実装。
// 座標の優先順: 明示座標 > 指定住所 > デフォルト住所。
type NearestStoreResolver struct {
	stores    repo.StoreRepository
	addresses repo.AddressRepository
}

func NewNearestStoreResolver(stores repo.StoreRepository, addresses repo.AddressRepository) *NearestStoreResolver {
	return &NearestStoreResolver{stores: stores, addresses: addresses}
}

func (s *NearestStoreResolver) Resolve(ctx context.Context, userID int64, in ResolveStoreInput) (int64, error) {
	// 明示指定の店舗は実在してアクティブなことだけ確認する
	if in.StoreID != nil && *in.StoreID > 0 {
		st, err := s.stores.FindByID(ctx, *in.StoreID)
		if errors.Is(err, repo.ErrNotFound) {
			return 0, ErrStoreNotResolved
		}
		if err != nil {
			return 0, err
		}
		if !st.IsActive {
			return 0, ErrStoreNotResolved
		}
		return st.ID, nil
	}

	lat, lng, err := s.pickCoordinates(ctx, userID, in)
	if err != nil {
		return 0, err
	}

	stores, err := s.stores.ListActive(ctx)
	if err != nil {
		return 0, err
	}

	bestID := int64(0)
	bestDist := math.MaxFloat64
	for _, st := range stores {
		d := haversineKM(lat, lng, st.Latitude, st.Longitude)
		if d > st.ServiceRadiusKM {
			continue
		}
		if d < bestDist {
			bestDist = d
			bestID = st.ID
		}
	}

	if bestID == 0 {
		return 0, ErrStoreNotResolved
	}
	return bestID, nil
}

func (s *NearestStoreResolver) pickCoordinates(ctx context.Context, userID int64, in ResolveStoreInput) (float64, float64, error) {
	if in.Latitude != nil && in.Longitude != nil {
		return *in.Latitude, *in.Longitude, nil
	}

	if in.AddressID != nil {
		addr, err := s.addresses.FindByID(ctx, *in.AddressID)
		if err != nil {
			return 0, 0, err
		}
		//他人の住所は「存在しない扱い」にする
		if addr.UserID != userID {
			return 0, 0, repo.ErrNotFound
		}
		if addr.Latitude == nil || addr.Longitude == nil {
			return 0, 0, ErrStoreNotResolved
		}
		return *addr.Latitude, *addr.Longitude, nil
	}

	addr, err := s.addresses.FindDefaultByUserID(ctx, userID)
	if err != nil {
		return 0, 0, err
	}
	if addr.Latitude == nil || addr.Longitude == nil {
		return 0, 0, ErrStoreNotResolved
	}
	return *addr.Latitude, *addr.Longitude, nil
}

const earthRadiusKM = 6371.0

func haversineKM(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := (lat2 - lat1) * math.Pi / 180
	dLng := (lng2 - lng1) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*
			math.Sin(dLng/2)*math.Sin(dLng/2)

	return earthRadiusKM * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}
