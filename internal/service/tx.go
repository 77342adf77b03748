package service

import (
	"context"
	"database/sql"
)

// TxRunner 在单个事务内执行回调，提交与回滚由实现负责。
// database.DB 满足该接口，单元测试可用轻量替身。
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(tx *sql.Tx) error) error
}
