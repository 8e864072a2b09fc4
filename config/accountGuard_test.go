package config_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/seller_analytics/config"
	"bitbucket.org/mmdatafocus/seller_analytics/models"
	"bitbucket.org/mmdatafocus/seller_analytics/testutil"
	"bitbucket.org/mmdatafocus/seller_analytics/utils"
	"gorm.io/gorm"
)

func guardOrder(accountId, amazonOrderId string) *models.Order {
	return &models.Order{
		AccountId:     accountId,
		AmazonOrderId: amazonOrderId,
		PurchaseDate:  time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC),
		Status:        models.OrderStatusShipped,
	}
}

func TestAccountGuard_ScopesReads(t *testing.T) {
	db := testutil.OpenSQLite(t)
	for _, o := range []*models.Order{guardOrder("acct-1", "306-0000000-0000001"), guardOrder("acct-2", "306-0000000-0000002")} {
		if err := db.Create(o).Error; err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	scoped := utils.SetAccountIdInContext(context.Background(), "acct-1")

	cases := []struct {
		name  string
		ctx   context.Context
		query func(*gorm.DB) *gorm.DB
		want  int64
	}{
		{"no account in context", context.Background(), func(q *gorm.DB) *gorm.DB { return q }, 2},
		{"account in context", scoped, func(q *gorm.DB) *gorm.DB { return q }, 1},
		{"cross-account maintenance", utils.SetSkipAccountScopeInContext(scoped, true), func(q *gorm.DB) *gorm.DB { return q }, 2},
		{"explicit account filter kept", scoped, func(q *gorm.DB) *gorm.DB { return q.Where("account_id = ?", "acct-2") }, 1},
		{"or branch cannot leave the account", scoped, func(q *gorm.DB) *gorm.DB {
			return q.Where("account_id = ?", "acct-1").Or("amazon_order_id = ?", "306-0000000-0000002")
		}, 1},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			var n int64
			if err := c.query(db.WithContext(c.ctx).Model(&models.Order{})).Count(&n).Error; err != nil {
				t.Fatalf("count: %v", err)
			}
			if n != c.want {
				t.Fatalf("count=%d want %d", n, c.want)
			}
		})
	}
}

func TestAccountGuard_StampsAndRejectsCreates(t *testing.T) {
	db := testutil.OpenSQLite(t)
	scoped := db.WithContext(utils.SetAccountIdInContext(context.Background(), "acct-1"))

	unowned := guardOrder("", "306-0000000-0000001")
	if err := scoped.Create(unowned).Error; err != nil {
		t.Fatalf("create: %v", err)
	}
	var stored models.Order
	if err := db.First(&stored, unowned.ID).Error; err != nil {
		t.Fatalf("load: %v", err)
	}
	if stored.AccountId != "acct-1" {
		t.Fatalf("account_id=%q want acct-1", stored.AccountId)
	}

	batch := []*models.Order{guardOrder("acct-1", "306-0000000-0000002"), guardOrder("acct-2", "306-0000000-0000003")}
	if err := scoped.Create(&batch).Error; !errors.Is(err, config.ErrCrossAccountWrite) {
		t.Fatalf("cross-account create err=%v", err)
	}
	var n int64
	db.Model(&models.Order{}).Count(&n)
	if n != 1 {
		t.Fatalf("orders=%d, a rejected batch must store nothing", n)
	}
}
