// Package profile はロールごとのプロフィール読み込みを提供する。
package profile

import (
	"context"
	"fmt"

	"github.com/hitoshi/lamms/internal/model"
	"github.com/hitoshi/lamms/internal/repository"
)

// Loader はアカウントIDからプロフィールを読み込む関数。
// 見つからない場合は nil, nil を返す。
type Loader func(ctx context.Context, accountID string) (model.Profile, error)

// Registry はロールとLoaderの対応表。
type Registry map[model.Role]Loader

// NewRegistry はProfileRepositoryを使う標準のRegistryを生成する。
func NewRegistry(repo repository.ProfileRepository) Registry {
	return Registry{
		model.RoleAdmin: func(ctx context.Context, accountID string) (model.Profile, error) {
			p, err := repo.FindAdminByAccountID(ctx, accountID)
			if p == nil || err != nil {
				return nil, err
			}
			return p, nil
		},
		model.RoleTeacher: func(ctx context.Context, accountID string) (model.Profile, error) {
			p, err := repo.FindTeacherByAccountID(ctx, accountID)
			if p == nil || err != nil {
				return nil, err
			}
			return p, nil
		},
		model.RoleGuardhouse: func(ctx context.Context, accountID string) (model.Profile, error) {
			p, err := repo.FindGuardhouseByAccountID(ctx, accountID)
			if p == nil || err != nil {
				return nil, err
			}
			return p, nil
		},
	}
}

// Load はロールに対応するLoaderでプロフィールを読み込む。
// 未登録のロール、またはプロフィールが存在しない場合はPROFILE_NOT_FOUNDを返す。
func (r Registry) Load(ctx context.Context, accountID string, role model.Role) (model.Profile, error) {
	load, ok := r[role]
	if !ok {
		return nil, model.NewProfileNotFoundError(role)
	}

	p, err := load(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s profile: %w", role, err)
	}
	if p == nil {
		return nil, model.NewProfileNotFoundError(role)
	}
	return p, nil
}
