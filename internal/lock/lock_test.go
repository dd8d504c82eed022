package lock

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"

	xerrors "LSRWA-Express/internal/errors"
)

// fakeRedis emulates SET NX and the compare-and-delete script.
type fakeRedis struct {
	values map[string]string
	ttls   map[string]time.Duration
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeRedis) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd {
	if _, ok := f.values[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.values[key] = value.(string)
	f.ttls[key] = expiration
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd {
	if f.values[keys[0]] == args[0].(string) {
		delete(f.values, keys[0])
		return redis.NewCmdResult(int64(1), nil)
	}
	return redis.NewCmdResult(int64(0), nil)
}

func (f *fakeRedis) Close() error { return nil }

func TestKey(t *testing.T) {
	signer := common.HexToAddress("0xDDA9bF84d2bBb543B49Dd9dB4f32de3c7b19aCa2")
	if got := Key("sepolia", signer); got != "lsrwa:sepolia:0xdda9bf84d2bbb543b49dd9db4f32de3c7b19aca2" {
		t.Fatalf("unexpected key %s", got)
	}
}

func TestRedisLocker(t *testing.T) {
	fake := newFakeRedis()
	locker := newRedisLocker(fake, 0)
	ctx := context.Background()

	release, err := locker.Acquire(ctx, "lsrwa:sepolia:0x1")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if fake.ttls["lsrwa:sepolia:0x1"] != defaultTTL {
		t.Fatalf("unexpected ttl %s", fake.ttls["lsrwa:sepolia:0x1"])
	}

	if _, err := locker.Acquire(ctx, "lsrwa:sepolia:0x1"); xerrors.CodeOf(err) != xerrors.CodeLockHeld {
		t.Fatalf("expected lock held, got %v", err)
	}

	// A lock re-acquired by someone else after expiry must survive our release.
	fake.values["lsrwa:sepolia:0x1"] = "other-token"
	if err := release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if fake.values["lsrwa:sepolia:0x1"] != "other-token" {
		t.Fatal("release removed a lock it did not own")
	}

	delete(fake.values, "lsrwa:sepolia:0x1")
	release, err = locker.Acquire(ctx, "lsrwa:sepolia:0x1")
	if err != nil {
		t.Fatalf("reacquire: %v", err)
	}
	if err := release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, held := fake.values["lsrwa:sepolia:0x1"]; held {
		t.Fatal("lock not released")
	}
}

func TestNewLocker(t *testing.T) {
	locker, err := New(context.Background(), Config{})
	if err != nil {
		t.Fatalf("default locker: %v", err)
	}
	release, err := locker.Acquire(context.Background(), "k")
	if err != nil || release(context.Background()) != nil {
		t.Fatalf("nop locker failed: %v", err)
	}
	if _, err := New(context.Background(), Config{Driver: "etcd"}); xerrors.CodeOf(err) != xerrors.CodeConfigInvalid {
		t.Fatalf("expected config error, got %v", err)
	}
	if _, err := New(context.Background(), Config{Driver: "redis"}); xerrors.CodeOf(err) != xerrors.CodeConfigInvalid {
		t.Fatalf("expected config error, got %v", err)
	}
}
