package utils

import (
	"context"

	"bitbucket.org/mmdatafocus/seller_analytics/appctx"
)

var (
	ContextKeyAccountId        = appctx.ContextKeyAccountId
	ContextKeyActor            = appctx.ContextKeyActor
	ContextKeyCorrelationId    = appctx.ContextKeyCorrelationId
	ContextKeySkipAccountScope = appctx.ContextKeySkipAccountScope
)

func GetAccountIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyAccountId)
}

func SetAccountIdInContext(ctx context.Context, accountId string) context.Context {
	return appctx.Set(ctx, ContextKeyAccountId, accountId)
}

func GetActorFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyActor)
}

func SetActorInContext(ctx context.Context, actor string) context.Context {
	return appctx.Set(ctx, ContextKeyActor, actor)
}

func GetCorrelationIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyCorrelationId)
}

func SetCorrelationIdInContext(ctx context.Context, correlationId string) context.Context {
	return appctx.Set(ctx, ContextKeyCorrelationId, correlationId)
}

func SetSkipAccountScopeInContext(ctx context.Context, skip bool) context.Context {
	return appctx.Set(ctx, ContextKeySkipAccountScope, skip)
}
