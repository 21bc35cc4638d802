package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"chatpdf-go/internal/config"
	"chatpdf-go/pkg/tasks"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const taskJSON = `{"file_id":"f1","user_id":"u1"}`

// stubProcessor 前 failures 次调用返回 err，之后成功。
type stubProcessor struct {
	err      error
	failures int
	seen     []tasks.IndexTask
}

func (s *stubProcessor) Process(_ context.Context, task tasks.IndexTask) error {
	s.seen = append(s.seen, task)
	if s.err != nil && (s.failures == 0 || len(s.seen) <= s.failures) {
		return s.err
	}
	return nil
}

func newTestConsumer(t *testing.T, proc TaskProcessor) (*Consumer, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return &Consumer{rdb: rdb, processor: proc}, mr
}

// unreachableRedis 指向一个不存在的地址，所有命令都会失败。
func unreachableRedis() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
}

func TestHandle_MalformedMessageIsCommitted(t *testing.T) {
	proc := &stubProcessor{}
	c, _ := newTestConsumer(t, proc)
	assert.True(t, c.handle(context.Background(), []byte("{not json")))
	assert.Empty(t, proc.seen)
}

func TestHandle_SuccessClearsAttempts(t *testing.T) {
	proc := &stubProcessor{}
	c, mr := newTestConsumer(t, proc)
	_, err := mr.Incr("kafka:attempts:f1", 2)
	require.NoError(t, err)

	assert.True(t, c.handle(context.Background(), []byte(taskJSON)))
	assert.Equal(t, []tasks.IndexTask{{FileID: "f1", UserID: "u1"}}, proc.seen)
	assert.False(t, mr.Exists("kafka:attempts:f1"))
}

func TestHandle_FailuresCountedUntilLimit(t *testing.T) {
	proc := &stubProcessor{err: errors.New("boom")}
	c, mr := newTestConsumer(t, proc)
	ctx := context.Background()

	assert.False(t, c.handle(ctx, []byte(taskJSON)))
	assert.False(t, c.handle(ctx, []byte(taskJSON)))
	got, err := mr.Get("kafka:attempts:f1")
	require.NoError(t, err)
	assert.Equal(t, "2", got)
	assert.Equal(t, 24*time.Hour, mr.TTL("kafka:attempts:f1"))

	// 第三次失败达到上限，提交 offset
	assert.True(t, c.handle(ctx, []byte(taskJSON)))
	assert.Len(t, proc.seen, 3)
}

func TestHandle_AttemptsSurviveRestart(t *testing.T) {
	proc := &stubProcessor{err: errors.New("boom")}
	c, mr := newTestConsumer(t, proc)
	// 上一个进程已经失败两次
	_, err := mr.Incr("kafka:attempts:f1", 2)
	require.NoError(t, err)

	assert.True(t, c.handle(context.Background(), []byte(taskJSON)))
	assert.Len(t, proc.seen, 1)
}

func TestHandle_FailureWithoutRedisIsRetried(t *testing.T) {
	proc := &stubProcessor{err: errors.New("boom")}
	c := &Consumer{rdb: unreachableRedis(), processor: proc}
	assert.False(t, c.handle(context.Background(), []byte(taskJSON)))
}

func TestProcess_RetriesInPlaceBeforeCommit(t *testing.T) {
	proc := &stubProcessor{err: errors.New("flaky"), failures: 2}
	c, mr := newTestConsumer(t, proc)

	assert.True(t, c.process(context.Background(), []byte(taskJSON)))
	assert.Len(t, proc.seen, 3)
	assert.False(t, mr.Exists("kafka:attempts:f1"))
}

func TestProcess_GivesUpAfterMaxAttempts(t *testing.T) {
	proc := &stubProcessor{err: errors.New("boom")}
	c, _ := newTestConsumer(t, proc)

	assert.True(t, c.process(context.Background(), []byte(taskJSON)))
	assert.Len(t, proc.seen, maxAttempts)
}

func TestProcess_BoundedWithoutRedis(t *testing.T) {
	proc := &stubProcessor{err: errors.New("boom")}
	c := &Consumer{rdb: unreachableRedis(), processor: proc}

	assert.True(t, c.process(context.Background(), []byte(taskJSON)))
	assert.Len(t, proc.seen, maxAttempts)
}

func TestProcess_CancelledLeavesOffsetUncommitted(t *testing.T) {
	proc := &stubProcessor{err: errors.New("boom")}
	c, _ := newTestConsumer(t, proc)
	c.retryDelay = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan bool, 1)
	go func() { done <- c.process(ctx, []byte(taskJSON)) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case commit := <-done:
		assert.False(t, commit)
	case <-time.After(2 * time.Second):
		t.Fatal("process did not stop")
	}
}

func TestBrokers(t *testing.T) {
	assert.Equal(t, []string{"a:9092", "b:9092"}, brokers(config.KafkaConfig{Brokers: " a:9092, ,b:9092"}))
}
