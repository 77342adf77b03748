// Package repo 提供带缓存的药品仓储实现
package repo

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pharmaops/pharmacy_server/internal/cache"
	"github.com/pharmaops/pharmacy_server/internal/domain"
)

// CachedDrugRepository 带缓存的药品仓储。
// 只缓存按ID/SKU的单条读取，写操作清除相关缓存。
// 库存写入走事务内路径，同样会使缓存失效，
// 缓存中的 quantity_in_stock 在 TTL 内可能是旧值，展示场景可接受。
type CachedDrugRepository struct {
	repo  DrugRepository
	cache cache.Cache
	ttl   time.Duration
}

// NewCachedDrugRepository 创建带缓存的药品仓储
func NewCachedDrugRepository(repo DrugRepository, cache cache.Cache, ttl time.Duration) DrugRepository {
	return &CachedDrugRepository{
		repo:  repo,
		cache: cache,
		ttl:   ttl,
	}
}

// Create 创建药品（清除相关缓存）
func (r *CachedDrugRepository) Create(drug *domain.Drug) error {
	if err := r.repo.Create(drug); err != nil {
		return err
	}

	ctx := context.Background()
	r.cache.Del(ctx, r.drugIDKey(drug.ID))
	r.cache.Del(ctx, r.drugSKUKey(drug.SKU))

	return nil
}

// GetByID 根据ID获取药品（带缓存）
func (r *CachedDrugRepository) GetByID(id int64) (*domain.Drug, error) {
	ctx := context.Background()
	cacheKey := r.drugIDKey(id)

	var drug domain.Drug
	if err := r.cache.Get(ctx, cacheKey, &drug); err == nil {
		return &drug, nil
	}

	result, err := r.repo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, nil
	}

	r.cache.Set(ctx, cacheKey, result, r.ttl)

	return result, nil
}

// GetBySKU 根据SKU获取药品（带缓存）
func (r *CachedDrugRepository) GetBySKU(sku string) (*domain.Drug, error) {
	ctx := context.Background()
	cacheKey := r.drugSKUKey(sku)

	var drug domain.Drug
	if err := r.cache.Get(ctx, cacheKey, &drug); err == nil {
		return &drug, nil
	}

	result, err := r.repo.GetBySKU(sku)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, nil
	}

	r.cache.Set(ctx, cacheKey, result, r.ttl)
	// 同时缓存ID索引
	r.cache.Set(ctx, r.drugIDKey(result.ID), result, r.ttl)

	return result, nil
}

// Update 更新药品（清除相关缓存）
func (r *CachedDrugRepository) Update(drug *domain.Drug) error {
	if err := r.repo.Update(drug); err != nil {
		return err
	}

	ctx := context.Background()
	r.cache.Del(ctx, r.drugIDKey(drug.ID))
	r.cache.Del(ctx, r.drugSKUKey(drug.SKU))

	return nil
}

// Deactivate 停用药品（清除相关缓存）
func (r *CachedDrugRepository) Deactivate(id int64) error {
	// 先读取以便清除SKU缓存
	drug, err := r.repo.GetByID(id)
	if err != nil {
		return err
	}

	if err := r.repo.Deactivate(id); err != nil {
		return err
	}

	ctx := context.Background()
	r.cache.Del(ctx, r.drugIDKey(id))
	if drug != nil {
		r.cache.Del(ctx, r.drugSKUKey(drug.SKU))
	}

	return nil
}

// List 获取药品列表（不缓存，参数组合太多）
func (r *CachedDrugRepository) List(req *domain.DrugListRequest) ([]*domain.Drug, int64, error) {
	return r.repo.List(req)
}

// ListExpiringSoon 获取临近过期药品（不缓存）
func (r *CachedDrugRepository) ListExpiringSoon(days int) ([]*domain.Drug, error) {
	return r.repo.ListExpiringSoon(days)
}

// Stats 获取库存统计（不缓存）
func (r *CachedDrugRepository) Stats() (*domain.InventoryStats, error) {
	return r.repo.Stats()
}

// GetForUpdateInTx 事务内加锁读取，不走缓存
func (r *CachedDrugRepository) GetForUpdateInTx(tx *sql.Tx, id int64) (*domain.Drug, error) {
	return r.repo.GetForUpdateInTx(tx, id)
}

// UpdateStockInTx 事务内更新库存并清除ID缓存。
// SKU 缓存按 TTL 自然过期，避免在事务路径上多一次读。
func (r *CachedDrugRepository) UpdateStockInTx(tx *sql.Tx, drugID, newQuantity int64) error {
	if err := r.repo.UpdateStockInTx(tx, drugID, newQuantity); err != nil {
		return err
	}

	r.cache.Del(context.Background(), r.drugIDKey(drugID))
	return nil
}

// 缓存键生成方法
func (r *CachedDrugRepository) drugIDKey(id int64) string {
	return fmt.Sprintf("drug:id:%d", id)
}

func (r *CachedDrugRepository) drugSKUKey(sku string) string {
	return fmt.Sprintf("drug:sku:%s", sku)
}
