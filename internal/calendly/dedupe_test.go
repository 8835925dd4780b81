package calendly

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestDeduper(t *testing.T, ttl time.Duration) (*RedisDeduper, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisDeduper(rdb, ttl), mr
}

func TestRedisDeduperFirstDeliveryOnce(t *testing.T) {
	d, _ := newTestDeduper(t, time.Hour)
	ctx := context.Background()

	first, err := d.FirstDelivery(ctx, "invitee.canceled|uri|ts")
	if err != nil {
		t.Fatalf(fmtUnexpectedErr, err)
	}
	if !first {
		t.Fatalf("expected first delivery")
	}
	again, err := d.FirstDelivery(ctx, "invitee.canceled|uri|ts")
	if err != nil {
		t.Fatalf(fmtUnexpectedErr, err)
	}
	if again {
		t.Fatalf("expected redelivery to be reported as duplicate")
	}
}

func TestRedisDeduperForgetAllowsRetry(t *testing.T) {
	d, _ := newTestDeduper(t, time.Hour)
	ctx := context.Background()

	if _, err := d.FirstDelivery(ctx, "k"); err != nil {
		t.Fatalf(fmtUnexpectedErr, err)
	}
	if err := d.Forget(ctx, "k"); err != nil {
		t.Fatalf(fmtUnexpectedErr, err)
	}
	first, err := d.FirstDelivery(ctx, "k")
	if err != nil {
		t.Fatalf(fmtUnexpectedErr, err)
	}
	if !first {
		t.Fatalf("expected forgotten key to be accepted again")
	}
}

func TestRedisDeduperKeyExpires(t *testing.T) {
	d, mr := newTestDeduper(t, time.Minute)
	ctx := context.Background()

	if _, err := d.FirstDelivery(ctx, "k"); err != nil {
		t.Fatalf(fmtUnexpectedErr, err)
	}
	mr.FastForward(2 * time.Minute)

	first, err := d.FirstDelivery(ctx, "k")
	if err != nil {
		t.Fatalf(fmtUnexpectedErr, err)
	}
	if !first {
		t.Fatalf("expected expired key to be accepted again")
	}
}

func TestRedisDeduperReportsConnectionErrors(t *testing.T) {
	d, mr := newTestDeduper(t, time.Minute)
	mr.Close()

	if _, err := d.FirstDelivery(context.Background(), "k"); err == nil {
		t.Fatalf("expected error when redis is down")
	}
}
