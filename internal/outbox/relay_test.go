package outbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"resume-intake-go/internal/constants"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeLocker 记录加解锁调用，lockValue为空串表示锁被其他实例持有
type fakeLocker struct {
	lockValue    string
	acquireErr   error
	acquireCalls int
	releaseCalls int
	lastKey      string
	lastExpiry   time.Duration
}

func (f *fakeLocker) AcquireLock(ctx context.Context, lockKey string, expiration time.Duration) (string, error) {
	f.acquireCalls++
	f.lastKey = lockKey
	f.lastExpiry = expiration
	return f.lockValue, f.acquireErr
}

func (f *fakeLocker) ReleaseLock(ctx context.Context, lockKey string, lockValue string) (bool, error) {
	f.releaseCalls++
	return true, nil
}

func TestPollYieldsWhenLockHeldElsewhere(t *testing.T) {
	locker := &fakeLocker{lockValue: ""}
	relay := NewMessageRelay(nil, nil,
		WithPollingInterval(2*time.Second),
		WithRelayLock(locker),
	)

	err := relay.poll(context.Background())
	require.NoError(t, err, "锁被占用时应让出本轮而不报错")
	assert.Equal(t, 1, locker.acquireCalls)
	assert.Equal(t, 0, locker.releaseCalls, "未持有锁不应释放")
	assert.Equal(t, constants.KeyOutboxRelayLock, locker.lastKey)
	assert.Equal(t, 4*time.Second, locker.lastExpiry, "锁过期应为轮询间隔的两倍")
}

func TestPollPropagatesLockError(t *testing.T) {
	locker := &fakeLocker{acquireErr: errors.New("redis: connection refused")}
	relay := NewMessageRelay(nil, nil, WithRelayLock(locker))

	err := relay.poll(context.Background())
	require.Error(t, err, "锁服务不可用应上报而不是静默处理")
	assert.Equal(t, 0, locker.releaseCalls)
}

func TestRelayDefaults(t *testing.T) {
	relay := NewMessageRelay(nil, nil)
	assert.Equal(t, defaultPollingInterval, relay.pollingInterval)
	assert.Equal(t, defaultBatchSize, relay.batchSize)
	assert.Nil(t, relay.locker, "未配置锁时轮询不经过互斥")
}
