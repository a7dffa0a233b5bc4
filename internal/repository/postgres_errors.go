package repository

import (
	"errors"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// pgUniqueViolation はPostgreSQLの一意制約違反のSQLSTATE。
const pgUniqueViolation = "23505"

// isUniqueViolation はエラーが一意制約違反かどうかを判定する。
// constraintが空でない場合は制約名も一致する必要がある。
func isUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	if string(pqErr.Code) != pgUniqueViolation {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}

// nullIfEmpty は空文字列をNULLとして渡すための変換を行う。
func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// isUUID はidがUUID列に渡せる形式かどうかを判定する。
// 不正な値をそのまま渡すとPostgreSQLが22P02エラーを返すため、事前に弾く。
func isUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
