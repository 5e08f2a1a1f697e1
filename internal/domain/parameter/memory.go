package parameter

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/refdata/refdata/internal/platform/apierr"
	"github.com/refdata/refdata/internal/platform/crud"
	"github.com/refdata/refdata/pkg/pagination"
)

// memoryParamRepo answers type membership from the in-memory param types.
type memoryParamRepo struct {
	*crud.MemoryRepository[*Param]
	types *crud.MemoryRepository[*ParamType]
	// PartnerTypes answers PartnerTypeUsed. Nil means no partner exists.
	PartnerTypes func(code string) bool
}

func (r *memoryParamRepo) PartnerTypeUsed(_ context.Context, code string) (bool, error) {
	if r.PartnerTypes == nil {
		return false, nil
	}
	return r.PartnerTypes(code), nil
}

func (r *memoryParamRepo) OfType(ctx context.Context, id uuid.UUID, typeCode string) (bool, error) {
	p, err := r.GetByID(ctx, id)
	if errors.Is(err, apierr.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	pt, err := r.types.GetByID(ctx, p.ParamTypeID)
	if err != nil {
		return false, nil
	}
	return pt.Code == typeCode, nil
}

func (r *memoryParamRepo) CodeOfType(ctx context.Context, typeCode, code string) (bool, error) {
	items, _, err := r.Search(ctx, map[string]string{"code": code}, pagination.Params{Limit: pagination.MaxLimit})
	if err != nil {
		return false, err
	}
	for _, p := range items {
		if ok, _ := r.OfType(ctx, p.ID, typeCode); ok {
			return true, nil
		}
	}
	return false, nil
}

// NewMemoryRepos returns repositories backed by crud.MemoryRepository.
func NewMemoryRepos() Repos {
	types := crud.NewMemoryRepository(ParamTypeTable)
	return Repos{
		Currencies:        crud.NewMemoryRepository(CurrencyTable),
		ParamTypes:        types,
		Params:            &memoryParamRepo{MemoryRepository: crud.NewMemoryRepository(ParamTable), types: types},
		IdentityDocuments: crud.NewMemoryRepository(IdentityDocumentTable),
	}
}
