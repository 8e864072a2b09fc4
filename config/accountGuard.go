package config

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"bitbucket.org/mmdatafocus/seller_analytics/appctx"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/schema"
)

const accountColumn = "account_id"

// ErrCrossAccountWrite is returned when a row is created for another account than the
// one bound to the context.
var ErrCrossAccountWrite = errors.New("row belongs to another account")

// AccountGuardPlugin keeps every statement inside the seller account bound to the context.
// Reads, updates and deletes on models with an account_id column get an account_id filter
// unless one is already present. Creates fill an empty account_id and refuse rows of a
// different account.
//
// Raw SQL is not rewritten; those queries carry account_id themselves. Cross-account
// maintenance sets appctx.ContextKeySkipAccountScope.
type AccountGuardPlugin struct{}

func NewAccountGuardPlugin() *AccountGuardPlugin { return &AccountGuardPlugin{} }

func (p *AccountGuardPlugin) Name() string { return "account_guard" }

func (p *AccountGuardPlugin) Initialize(db *gorm.DB) error {
	cb := db.Callback()
	if err := cb.Create().Before("gorm:create").Register("account_guard:create", stampAccount); err != nil {
		return err
	}
	if err := cb.Query().Before("gorm:query").Register("account_guard:query", scopeToAccount); err != nil {
		return err
	}
	// First/Take through Row()
	if err := cb.Row().Before("gorm:row").Register("account_guard:row", scopeToAccount); err != nil {
		return err
	}
	if err := cb.Update().Before("gorm:update").Register("account_guard:update", scopeToAccount); err != nil {
		return err
	}
	if err := cb.Delete().Before("gorm:delete").Register("account_guard:delete", scopeToAccount); err != nil {
		return err
	}
	return nil
}

// guardedAccount returns the account the statement must stay in, or "" when the
// statement is unscoped or its model has no account column.
func guardedAccount(db *gorm.DB) (string, *schema.Field) {
	if db == nil || db.Statement == nil || db.Statement.Context == nil || db.Statement.Schema == nil {
		return "", nil
	}
	ctx := db.Statement.Context
	if skip, ok := appctx.GetBool(ctx, appctx.ContextKeySkipAccountScope); ok && skip {
		return "", nil
	}
	accountId := contextAccount(ctx)
	if accountId == "" {
		return "", nil
	}
	field := db.Statement.Schema.LookUpField(accountColumn)
	if field == nil {
		return "", nil
	}
	return accountId, field
}

func contextAccount(ctx context.Context) string {
	v, _ := appctx.GetString(ctx, appctx.ContextKeyAccountId)
	return strings.TrimSpace(v)
}

func scopeToAccount(db *gorm.DB) {
	accountId, _ := guardedAccount(db)
	if accountId == "" {
		return
	}
	filter := clause.Eq{Column: clause.Column{Table: db.Statement.Table, Name: accountColumn}, Value: accountId}
	current := db.Statement.Clauses["WHERE"]
	where, _ := current.Expression.(clause.Where)
	if joinsWithOr(where.Exprs) {
		// a top-level OR would bind looser than the appended filter
		current.Expression = clause.Where{Exprs: []clause.Expression{clause.And(where.Exprs...), filter}}
		db.Statement.Clauses["WHERE"] = current
		return
	}
	if anyFiltersAccount(where.Exprs) {
		return
	}
	db.Statement.AddClause(clause.Where{Exprs: []clause.Expression{filter}})
}

// joinsWithOr reports whether gorm renders any of exprs with a leading OR.
func joinsWithOr(exprs []clause.Expression) bool {
	for i, e := range exprs {
		if or, ok := e.(clause.OrConditions); ok && i > 0 && len(or.Exprs) == 1 {
			return true
		}
	}
	return false
}

func stampAccount(db *gorm.DB) {
	accountId, field := guardedAccount(db)
	if accountId == "" || field.FieldType.Kind() != reflect.String {
		return
	}
	ctx := db.Statement.Context
	rv := reflect.Indirect(db.Statement.ReflectValue)
	stamp := func(row reflect.Value) {
		row = reflect.Indirect(row)
		if row.Kind() != reflect.Struct {
			return
		}
		value, zero := field.ValueOf(ctx, row)
		if zero {
			if err := field.Set(ctx, row, accountId); err != nil {
				db.AddError(err)
			}
			return
		}
		if owner, _ := value.(string); owner != accountId {
			db.AddError(fmt.Errorf("%w: %s is not %s", ErrCrossAccountWrite, owner, accountId))
		}
	}
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			stamp(rv.Index(i))
		}
	case reflect.Struct:
		stamp(rv)
	}
}

func anyFiltersAccount(exprs []clause.Expression) bool {
	for _, e := range exprs {
		if exprFiltersAccount(e) {
			return true
		}
	}
	return false
}

func exprFiltersAccount(e clause.Expression) bool {
	switch v := e.(type) {
	case clause.Eq:
		return isAccountColumn(v.Column)
	case clause.IN:
		return isAccountColumn(v.Column)
	case clause.AndConditions:
		return anyFiltersAccount(v.Exprs)
	case clause.OrConditions:
		// every branch must pin the account, or one side leaks
		for _, x := range v.Exprs {
			if !exprFiltersAccount(x) {
				return false
			}
		}
		return len(v.Exprs) > 0
	case clause.Expr:
		return strings.Contains(strings.ToLower(v.SQL), accountColumn)
	case clause.NamedExpr:
		return strings.Contains(strings.ToLower(v.SQL), accountColumn)
	}
	return false
}

func isAccountColumn(col any) bool {
	switch c := col.(type) {
	case string:
		return strings.EqualFold(c, accountColumn)
	case clause.Column:
		return strings.EqualFold(c.Name, accountColumn)
	}
	return false
}
